package fault

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oxbowlabs/faultline/errors"
)

func captureRecord(fp, userID, endpoint string) *Record {
	now := time.Now().UTC()
	rec := &Record{
		ID:          newRecordID(),
		Fingerprint: fp,
		Count:       1,
		FirstSeen:   now,
		LastSeen:    now,
	}
	if userID != "" {
		rec.AffectedUsers = []string{userID}
	}
	rec.Metadata.Endpoint = endpoint
	return rec
}

func TestCache_UnionNotSum(t *testing.T) {
	c := NewCache()

	c.Absorb(captureRecord("fp1", "u1", ""))
	c.Absorb(captureRecord("fp1", "u1", ""))
	c.Absorb(captureRecord("fp1", "u2", ""))

	b, ok := c.Get("fp1")
	require.True(t, ok)
	assert.Equal(t, 3, b.Count)
	assert.Equal(t, 2, b.AffectedUserCount, "affected users are a union, not a sum")
}

func TestCache_LazyCreation(t *testing.T) {
	c := NewCache()
	assert.Equal(t, 0, c.Len())

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Absorb(captureRecord("fp1", "", ""))
	assert.Equal(t, 1, c.Len())

	b, ok := c.Get("fp1")
	require.True(t, ok)
	assert.Equal(t, 1, b.Count)
	assert.Equal(t, 0, b.AffectedUserCount)
	assert.Equal(t, TrendStable, b.Trend)
}

func TestCache_HourlyDistribution(t *testing.T) {
	c := NewCache()
	rec := captureRecord("fp1", "", "")

	c.Absorb(rec)
	c.Absorb(rec)

	b, _ := c.Get("fp1")
	assert.Equal(t, 2, b.HourlyDistribution[rec.LastSeen.Hour()])
}

func TestCache_TopEndpointsAndUsers(t *testing.T) {
	c := NewCache()

	for i := 0; i < 3; i++ {
		c.Absorb(captureRecord("fp1", "u_heavy", "/api/orders"))
	}
	c.Absorb(captureRecord("fp1", "u_light", "/api/quotes"))

	b, _ := c.Get("fp1")
	require.NotEmpty(t, b.TopEndpoints)
	assert.Equal(t, "/api/orders", b.TopEndpoints[0].Endpoint)
	assert.Equal(t, 3, b.TopEndpoints[0].Count)
	require.NotEmpty(t, b.TopUsers)
	assert.Equal(t, "u_heavy", b.TopUsers[0].UserID)
}

func TestCache_TopListsCapped(t *testing.T) {
	c := NewCache()
	endpoints := []string{"/a", "/b", "/c", "/d", "/e", "/f", "/g"}
	for _, ep := range endpoints {
		c.Absorb(captureRecord("fp1", "", ep))
	}

	b, _ := c.Get("fp1")
	assert.Len(t, b.TopEndpoints, DefaultTopN)
}

func TestCache_RotateTrends(t *testing.T) {
	c := NewCache()

	// Interval 1: two captures. Previous interval was zero, so the first
	// rotation reports increasing.
	c.Absorb(captureRecord("fp1", "", ""))
	c.Absorb(captureRecord("fp1", "", ""))
	c.RotateTrends()
	b, _ := c.Get("fp1")
	assert.Equal(t, TrendIncreasing, b.Trend)

	// Interval 2: one capture, fewer than the previous two.
	c.Absorb(captureRecord("fp1", "", ""))
	c.RotateTrends()
	b, _ = c.Get("fp1")
	assert.Equal(t, TrendDecreasing, b.Trend)

	// Interval 3: one capture again, same as previous.
	c.Absorb(captureRecord("fp1", "", ""))
	c.RotateTrends()
	b, _ = c.Get("fp1")
	assert.Equal(t, TrendStable, b.Trend)
}

func TestCache_SnapshotIsCopy(t *testing.T) {
	c := NewCache()
	c.Absorb(captureRecord("fp1", "", ""))

	snap := c.Snapshot()
	require.Len(t, snap, 1)
	snap[0].Count = 999

	b, _ := c.Get("fp1")
	assert.Equal(t, 1, b.Count, "mutating a snapshot must not touch the cache")
}

// flushRecorder is a fault.Store that records aggregation upserts and can
// fail selected fingerprints.
type flushRecorder struct {
	mu      sync.Mutex
	upserts map[string][]*Bucket
	failFor map[string]bool
}

func newFlushRecorder() *flushRecorder {
	return &flushRecorder{
		upserts: make(map[string][]*Bucket),
		failFor: make(map[string]bool),
	}
}

func (s *flushRecorder) UpsertAggregation(b *Bucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[b.Fingerprint] {
		return errors.New("storage unavailable")
	}
	s.upserts[b.Fingerprint] = append(s.upserts[b.Fingerprint], b)
	return nil
}

func (s *flushRecorder) flushCount(fp string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.upserts[fp])
}

func (s *flushRecorder) lastBucket(fp string) *Bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.upserts[fp]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

func (s *flushRecorder) FindByFingerprint(string) (*Record, error) { return nil, errors.ErrNotFound }
func (s *flushRecorder) UpsertError(*Record) error                 { return nil }
func (s *flushRecorder) GetByID(string) (*Record, error)           { return nil, errors.ErrNotFound }
func (s *flushRecorder) QueryRecent(int, Severity, Category) ([]*Record, error) {
	return nil, nil
}
func (s *flushRecorder) MarkResolved(string, string, string) error { return errors.ErrNotFound }
func (s *flushRecorder) GroupCountsSince(time.Time) (*GroupCounts, error) {
	return &GroupCounts{}, nil
}

func TestFlusher_FlushNow(t *testing.T) {
	cache := NewCache()
	st := newFlushRecorder()
	f := NewFlusher(cache, st, time.Hour, zap.NewNop().Sugar())

	cache.Absorb(captureRecord("fp1", "u1", ""))
	cache.Absorb(captureRecord("fp2", "u2", ""))

	flushed := f.FlushNow()

	assert.Equal(t, 2, flushed)
	assert.Equal(t, 1, st.flushCount("fp1"))
	assert.Equal(t, 1, st.flushCount("fp2"))
}

func TestFlusher_DoubleFlushIdempotent(t *testing.T) {
	cache := NewCache()
	st := newFlushRecorder()
	f := NewFlusher(cache, st, time.Hour, zap.NewNop().Sugar())

	cache.Absorb(captureRecord("fp1", "u1", ""))

	f.FlushNow()
	f.FlushNow()

	require.Equal(t, 2, st.flushCount("fp1"))
	first := st.upserts["fp1"][0]
	second := st.upserts["fp1"][1]
	assert.Equal(t, first.Count, second.Count)
	assert.Equal(t, first.AffectedUserCount, second.AffectedUserCount)
	assert.Equal(t, first.HourlyDistribution, second.HourlyDistribution)

	// Flushing never resets the in-memory bucket
	b, _ := cache.Get("fp1")
	assert.Equal(t, 1, b.Count)
}

func TestFlusher_FailureDoesNotBlockOthers(t *testing.T) {
	cache := NewCache()
	st := newFlushRecorder()
	st.failFor["fp_bad"] = true
	f := NewFlusher(cache, st, time.Hour, zap.NewNop().Sugar())

	cache.Absorb(captureRecord("fp_bad", "", ""))
	cache.Absorb(captureRecord("fp_good", "", ""))

	flushed := f.FlushNow()

	assert.Equal(t, 1, flushed)
	assert.Equal(t, 1, st.flushCount("fp_good"))
	assert.Equal(t, 0, st.flushCount("fp_bad"))
}

func TestFlusher_StopPerformsFinalFlush(t *testing.T) {
	cache := NewCache()
	st := newFlushRecorder()
	f := NewFlusher(cache, st, time.Hour, zap.NewNop().Sugar())

	f.Start()
	cache.Absorb(captureRecord("fp1", "", ""))
	f.Stop()

	assert.Equal(t, 1, st.flushCount("fp1"), "Stop flushes once more before returning")
}

func TestFlusher_PeriodicFlush(t *testing.T) {
	cache := NewCache()
	st := newFlushRecorder()
	f := NewFlusher(cache, st, 10*time.Millisecond, zap.NewNop().Sugar())

	cache.Absorb(captureRecord("fp1", "", ""))
	f.Start()
	defer f.Stop()

	assert.Eventually(t, func() bool {
		return st.flushCount("fp1") >= 2
	}, 2*time.Second, 5*time.Millisecond)
}
