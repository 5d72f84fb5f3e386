package fault

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oxbowlabs/faultline/logger"
)

// Config carries the tunables the tracker consumes. Zero values fall back
// to the defaults.
type Config struct {
	// MaxStackFrames caps retained stack frames per record (default 50).
	MaxStackFrames int

	// FlushInterval is the aggregation flush period (default 1 hour).
	FlushInterval time.Duration

	// DualMatchSeverity enables the legacy independent severity pattern
	// pass (see Classifier.DualMatch).
	DualMatchSeverity bool
}

// DefaultConfig returns the default tracker configuration.
func DefaultConfig() Config {
	return Config{
		MaxStackFrames: DefaultMaxStackFrames,
		FlushInterval:  DefaultFlushInterval,
	}
}

// Tracker is the capture pipeline: it builds structured records, persists
// them, feeds the aggregation cache, and notifies event sinks.
type Tracker struct {
	store      Store
	registry   *Registry
	classifier *Classifier
	cache      *Cache
	flusher    *Flusher
	cfg        Config
	log        *zap.SugaredLogger

	sinkMu sync.RWMutex
	sinks  []Sink
}

// New creates a tracker over the given store and pattern registry.
func New(store Store, registry *Registry, cfg Config, log *zap.SugaredLogger) *Tracker {
	if cfg.MaxStackFrames <= 0 {
		cfg.MaxStackFrames = DefaultMaxStackFrames
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	classifier := NewClassifier(registry)
	classifier.DualMatch = cfg.DualMatchSeverity

	cache := NewCache()

	return &Tracker{
		store:      store,
		registry:   registry,
		classifier: classifier,
		cache:      cache,
		flusher:    NewFlusher(cache, store, cfg.FlushInterval, log),
		cfg:        cfg,
		log:        log,
	}
}

// Start begins the periodic aggregation flush.
func (t *Tracker) Start() {
	t.flusher.Start()
}

// Close stops the flusher, which performs one final synchronous flush.
func (t *Tracker) Close() {
	t.flusher.Stop()
}

// Registry exposes the pattern registry for runtime inspection.
func (t *Tracker) Registry() *Registry {
	return t.registry
}

// Cache exposes the aggregation cache, primarily for stats and tests.
func (t *Tracker) Cache() *Cache {
	return t.cache
}

// FlushNow forces an immediate aggregation flush, returning how many
// buckets were persisted.
func (t *Tracker) FlushNow() int {
	return t.flusher.FlushNow()
}

// Subscribe registers an event sink. Delivery order follows registration
// order.
func (t *Tracker) Subscribe(s Sink) {
	t.sinkMu.Lock()
	defer t.sinkMu.Unlock()
	t.sinks = append(t.sinks, s)
}

// Capture ingests one raw error. It always returns the built record, even
// when persistence fails: the store upsert, the cache merge, and sink
// notification are independent side effects and each is attempted
// regardless of the others' outcome.
func (t *Tracker) Capture(input CaptureInput, ctx Context, meta Metadata) *Record {
	sig := stackSignature(input.Stack)
	cls := t.classifier.Classify(input.ErrorType, input.Message, input.Stack)
	fp := Fingerprint(input.ErrorType, input.Message, ctx.Service, ctx.Environment, sig)

	rec := buildRecord(input, ctx, meta, cls, fp, t.cfg.MaxStackFrames)

	if err := t.store.UpsertError(rec); err != nil {
		t.log.Errorw("Failed to persist error record",
			logger.FieldErrorID, rec.ID,
			logger.FieldFingerprint, rec.Fingerprint,
			logger.FieldError, err,
		)
	}

	t.cache.Absorb(rec)

	t.notifyCaptured(rec)

	t.log.Infow("Error captured",
		logger.FieldErrorID, rec.ID,
		logger.FieldFingerprint, rec.Fingerprint,
		logger.FieldCategory, rec.Category,
		logger.FieldSeverity, rec.Severity,
		logger.FieldService, rec.Context.Service,
	)

	return rec
}

// Resolve marks a record resolved. Unknown ids report failure in the
// result; no error escapes.
func (t *Tracker) Resolve(id, resolvedBy, resolution string) ResolveResult {
	if err := t.store.MarkResolved(id, resolvedBy, resolution); err != nil {
		t.log.Warnw("Failed to resolve error record",
			logger.FieldErrorID, id,
			logger.FieldError, err,
		)
		return ResolveResult{ID: id, Reason: err.Error()}
	}

	t.notifyResolved(id, resolvedBy, resolution)

	t.log.Infow("Error resolved",
		logger.FieldErrorID, id,
		"resolved_by", resolvedBy,
	)
	return ResolveResult{ID: id, Resolved: true}
}

// Recent returns up to limit records ordered by last-seen descending.
// Empty severity/category mean no filter.
func (t *Tracker) Recent(limit int, severity Severity, category Category) ([]*Record, error) {
	return t.store.QueryRecent(limit, severity, category)
}

// StatsSince returns capture counts grouped by category and severity for
// records last seen at or after since.
func (t *Tracker) StatsSince(since time.Time) (*GroupCounts, error) {
	return t.store.GroupCountsSince(since)
}

// AddPattern registers a detection pattern at runtime.
func (t *Tracker) AddPattern(p *Pattern) {
	t.registry.Register(p)
	t.log.Infow("Detection pattern registered",
		logger.FieldPatternID, p.ID,
		logger.FieldCategory, p.Category,
		logger.FieldSeverity, p.Severity,
	)
}

// RemovePattern removes a detection pattern by id, reporting whether it
// existed. Subsequent captures of matching errors fall through to the
// keyword heuristics.
func (t *Tracker) RemovePattern(id string) bool {
	existed := t.registry.Remove(id)
	t.log.Infow("Detection pattern removed",
		logger.FieldPatternID, id,
		"existed", existed,
	)
	return existed
}

func (t *Tracker) snapshotSinks() []Sink {
	t.sinkMu.RLock()
	defer t.sinkMu.RUnlock()
	out := make([]Sink, len(t.sinks))
	copy(out, t.sinks)
	return out
}

func (t *Tracker) notifyCaptured(rec *Record) {
	for _, s := range t.snapshotSinks() {
		t.safely(func() { s.OnCaptured(rec) })
		t.safely(func() { s.OnSeverity(rec.Severity, rec) })
		if rec.Severity == SeverityCritical {
			t.safely(func() { s.OnCritical(rec) })
		}
	}
}

func (t *Tracker) notifyResolved(id, resolvedBy, resolution string) {
	for _, s := range t.snapshotSinks() {
		t.safely(func() { s.OnResolved(id, resolvedBy, resolution) })
	}
}

// safely isolates subscriber faults: a panic in one sink is logged and
// swallowed so later sinks still run and the operation completes.
func (t *Tracker) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Errorw("Event sink panicked", "panic", r)
		}
	}()
	fn()
}
