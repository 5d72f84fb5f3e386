package fault

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oxbowlabs/faultline/logger"
)

// DefaultFlushInterval is how often buckets are flushed to the store.
const DefaultFlushInterval = time.Hour

// DefaultTopN is how many endpoints/users a bucket's top lists retain.
const DefaultTopN = 5

// bucketState is a bucket plus the internal tallies needed to keep its
// public fields correct: the full user-id set (the public field is only a
// count), per-endpoint and per-user counters, and per-interval deltas for
// trend derivation.
type bucketState struct {
	bucket         Bucket
	users          map[string]struct{}
	endpointCounts map[string]int
	userCounts     map[string]int
	intervalCount  int
	prevInterval   int
}

// Cache holds the per-fingerprint rolling aggregation buckets in process
// memory. Captures may arrive from any goroutine and the flusher reads on
// its own, so all access is mutex-guarded. Buckets are created lazily and
// never deleted; retention is an external concern.
type Cache struct {
	mu      sync.Mutex
	buckets map[string]*bucketState
	topN    int
}

// NewCache returns an empty aggregation cache.
func NewCache() *Cache {
	return &Cache{
		buckets: make(map[string]*bucketState),
		topN:    DefaultTopN,
	}
}

// Absorb merges one captured record into its fingerprint's bucket,
// creating the bucket on first sight.
func (c *Cache) Absorb(rec *Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.buckets[rec.Fingerprint]
	if !ok {
		st = &bucketState{
			bucket: Bucket{
				Fingerprint: rec.Fingerprint,
				FirstSeen:   rec.FirstSeen,
				Trend:       TrendStable,
			},
			users:          make(map[string]struct{}),
			endpointCounts: make(map[string]int),
			userCounts:     make(map[string]int),
		}
		c.buckets[rec.Fingerprint] = st
	}

	st.bucket.Count++
	st.bucket.LastSeen = rec.LastSeen
	st.intervalCount++

	st.bucket.HourlyDistribution[rec.LastSeen.Hour()]++

	for _, user := range rec.AffectedUsers {
		st.users[user] = struct{}{}
		st.userCounts[user]++
	}
	st.bucket.AffectedUserCount = len(st.users)

	if ep := rec.Metadata.Endpoint; ep != "" {
		st.endpointCounts[ep]++
	}

	st.bucket.TopEndpoints = topEndpoints(st.endpointCounts, c.topN)
	st.bucket.TopUsers = topUsers(st.userCounts, c.topN)
}

// Len returns the number of distinct fingerprints currently aggregated.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buckets)
}

// Get returns a copy of the bucket for a fingerprint, if present.
func (c *Cache) Get(fingerprint string) (Bucket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.buckets[fingerprint]
	if !ok {
		return Bucket{}, false
	}
	return st.bucket, true
}

// Snapshot returns copies of all current buckets. Captures landing after
// the snapshot is taken are picked up by the next flush cycle.
func (c *Cache) Snapshot() []*Bucket {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Bucket, 0, len(c.buckets))
	for _, st := range c.buckets {
		b := st.bucket
		out = append(out, &b)
	}
	return out
}

// RotateTrends closes the current flush interval: each bucket's trend is
// derived by comparing this interval's capture delta to the previous
// interval's, then the interval counters roll over. Called by the flusher
// once per tick.
func (c *Cache) RotateTrends() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, st := range c.buckets {
		switch {
		case st.intervalCount > st.prevInterval:
			st.bucket.Trend = TrendIncreasing
		case st.intervalCount < st.prevInterval:
			st.bucket.Trend = TrendDecreasing
		default:
			st.bucket.Trend = TrendStable
		}
		st.prevInterval = st.intervalCount
		st.intervalCount = 0
	}
}

func topEndpoints(counts map[string]int, n int) []EndpointCount {
	out := make([]EndpointCount, 0, len(counts))
	for ep, count := range counts {
		out = append(out, EndpointCount{Endpoint: ep, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Endpoint < out[j].Endpoint
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func topUsers(counts map[string]int, n int) []UserCount {
	out := make([]UserCount, 0, len(counts))
	for user, count := range counts {
		out = append(out, UserCount{UserID: user, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Flusher periodically upserts the cache's buckets into durable storage.
// It owns a cancelable ticker with an explicit Start/Stop lifecycle;
// Stop performs one final synchronous flush before returning.
type Flusher struct {
	cache    *Cache
	store    Store
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	log      *zap.SugaredLogger
}

// NewFlusher creates a flusher for the given cache and store. A
// non-positive interval falls back to DefaultFlushInterval.
func NewFlusher(cache *Cache, store Store, interval time.Duration, log *zap.SugaredLogger) *Flusher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Flusher{
		cache:    cache,
		store:    store,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		log:      log,
	}
}

// Start begins the flush loop.
func (f *Flusher) Start() {
	f.wg.Add(1)
	go f.run()
	f.log.Infow("Aggregation flusher started", "interval", f.interval)
}

// Stop cancels the flush loop, waits for it to exit, and performs one
// final synchronous flush.
func (f *Flusher) Stop() {
	f.cancel()
	f.wg.Wait()
	flushed := f.FlushNow()
	f.log.Infow("Aggregation flusher stopped", logger.FieldBuckets, flushed)
}

func (f *Flusher) run() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
			f.cache.RotateTrends()
			f.FlushNow()
		}
	}
}

// FlushNow upserts every current bucket into the store and returns how
// many succeeded. A failure on one fingerprint is logged and does not
// block the remaining fingerprints. Buckets are not reset by flushing;
// they keep accumulating for the life of the process.
func (f *Flusher) FlushNow() int {
	flushed := 0
	for _, bucket := range f.cache.Snapshot() {
		if err := f.store.UpsertAggregation(bucket); err != nil {
			f.log.Errorw("Failed to flush aggregation bucket",
				logger.FieldFingerprint, bucket.Fingerprint,
				logger.FieldError, err,
			)
			continue
		}
		flushed++
	}
	return flushed
}
