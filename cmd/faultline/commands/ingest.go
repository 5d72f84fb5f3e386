package commands

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oxbowlabs/faultline/config"
	"github.com/oxbowlabs/faultline/db"
	"github.com/oxbowlabs/faultline/fault"
	"github.com/oxbowlabs/faultline/logger"
	"github.com/oxbowlabs/faultline/store"
)

// captureRequest is one stdin line handed to the daemon: the raw error
// plus its context and optional metadata.
type captureRequest struct {
	fault.CaptureInput
	Context  fault.Context  `json:"context"`
	Metadata fault.Metadata `json:"metadata"`
}

// IngestCmd runs the capture daemon. It reads JSON capture requests from
// stdin, one per line, until EOF or a termination signal.
var IngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run the capture daemon, reading errors from stdin",
	Long: `Start the Faultline capture pipeline.

Each stdin line is a JSON capture request:

  {"error_type":"DatabaseError","message":"connection refused",
   "context":{"service":"order-router","environment":"production"},
   "metadata":{"user_id":"u_1042","endpoint":"/api/orders"}}

Records are classified, persisted, and aggregated; aggregation buckets
are flushed to the database on the configured interval and once more on
shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		database, err := db.OpenWithMigrations(cfg.Database.Path, logger.Logger)
		if err != nil {
			return err
		}
		defer database.Close()

		registry := fault.NewDefaultRegistry()
		tracker := fault.New(store.New(database), registry, fault.Config{
			MaxStackFrames:    cfg.Capture.MaxStackFrames,
			FlushInterval:     cfg.FlushInterval(),
			DualMatchSeverity: cfg.Capture.DualMatchSeverity,
		}, logger.Logger)

		// Surface criticals prominently; the tracker already logs every
		// capture at info level.
		tracker.Subscribe(fault.SinkFuncs{
			Critical: func(rec *fault.Record) {
				logger.Errorw("Critical error captured",
					logger.FieldErrorID, rec.ID,
					logger.FieldFingerprint, rec.Fingerprint,
					logger.FieldService, rec.Context.Service,
					"message", rec.Message,
				)
			},
		})

		if cfg.Patterns.File != "" {
			if err := startPatternReload(registry, cfg.Patterns.File); err != nil {
				return err
			}
		}

		tracker.Start()
		defer tracker.Close()

		logger.Infow("Ingest daemon started",
			"database", cfg.Database.Path,
			"flush_interval", cfg.FlushInterval(),
			"patterns", registry.Len(),
		)

		done := make(chan struct{})
		defer close(done)
		lines := readLines(os.Stdin, done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		for {
			select {
			case sig := <-sigCh:
				logger.Infow("Shutting down", "signal", sig.String())
				return nil
			case line, ok := <-lines:
				if !ok {
					logger.Infow("Input closed, shutting down")
					return nil
				}
				if line == "" {
					continue
				}
				var req captureRequest
				if err := json.Unmarshal([]byte(line), &req); err != nil {
					logger.Warnw("Skipping malformed capture request",
						logger.FieldError, err)
					continue
				}
				tracker.Capture(req.CaptureInput, req.Context, req.Metadata)
			}
		}
	},
}

// readLines streams input lines on the returned channel, which closes on
// EOF. Closing done releases the reader goroutine even when nobody is
// receiving anymore.
func readLines(r io.Reader, done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()
	return lines
}

// startPatternReload loads the operator patterns file into the registry
// and watches it for changes, re-syncing on each write.
func startPatternReload(registry *fault.Registry, path string) error {
	applied, err := fault.SyncPatternFile(registry, path)
	if err != nil {
		return err
	}
	logger.Infow("Loaded patterns file", "path", path, "patterns", applied)

	watcher, err := config.NewWatcher(path)
	if err != nil {
		return err
	}
	watcher.OnReload(func(p string) error {
		applied, err := fault.SyncPatternFile(registry, p)
		if err != nil {
			return err
		}
		logger.Infow("Patterns file reloaded", "path", p, "patterns", applied)
		return nil
	})
	watcher.Start()
	return nil
}
