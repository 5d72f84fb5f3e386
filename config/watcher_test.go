package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWatchedFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "faultline.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\njson = false\n"), 0o644))
	return path
}

func TestWatcherTriggersReload(t *testing.T) {
	path := writeWatchedFile(t)

	w, err := NewWatcher(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	var reloads atomic.Int32
	w.OnReload(func(reloadedPath string) error {
		assert.Equal(t, path, reloadedPath)
		reloads.Add(1)
		return nil
	})
	w.Start()

	require.NoError(t, os.WriteFile(path, []byte("[log]\njson = true\n"), 0o644))

	assert.Eventually(t, func() bool {
		return reloads.Load() >= 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatcherFailingCallbackDoesNotStopOthers(t *testing.T) {
	path := writeWatchedFile(t)

	w, err := NewWatcher(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	var second atomic.Int32
	w.OnReload(func(string) error { return assert.AnError })
	w.OnReload(func(string) error {
		second.Add(1)
		return nil
	})
	w.Start()

	require.NoError(t, os.WriteFile(path, []byte("[log]\njson = true\n"), 0o644))

	assert.Eventually(t, func() bool {
		return second.Load() >= 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatcherMissingFile(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
