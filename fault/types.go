// Package fault is the core of Faultline: fingerprinting, pattern-based
// classification, structured record building, and in-memory rolling
// aggregation of application errors.
package fault

import (
	"time"
)

// Category is the routing taxonomy for captured errors.
type Category string

const (
	CategoryDatabase       Category = "database"
	CategoryNetwork        Category = "network"
	CategoryValidation     Category = "validation"
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategoryTrading        Category = "trading"
	CategoryMarketData     Category = "market_data"
	CategoryCompliance     Category = "compliance"
	CategorySystem         Category = "system"
	CategorySecurity       Category = "security"
	CategoryPerformance    Category = "performance"
	CategoryUnknown        Category = "unknown"
)

// Severity is the operator-facing urgency of an error, critical being the
// highest of the five levels.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Rank returns the ordinal position of the severity, higher meaning more
// urgent. Unknown severities rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	case SeverityInfo:
		return 0
	}
	return -1
}

// Context identifies where and when an error occurred. Supplied by the
// caller on every capture.
type Context struct {
	Service      string    `json:"service"`
	Version      string    `json:"version,omitempty"`
	Environment  string    `json:"environment"`
	Timestamp    time.Time `json:"timestamp"`
	TraceID      string    `json:"trace_id,omitempty"`
	SpanID       string    `json:"span_id,omitempty"`
	ParentSpanID string    `json:"parent_span_id,omitempty"`
}

// Metadata carries optional request and user attributes for a capture.
// The record builder stamps Memory at capture time.
type Metadata struct {
	UserID         string                 `json:"user_id,omitempty"`
	SessionID      string                 `json:"session_id,omitempty"`
	RequestID      string                 `json:"request_id,omitempty"`
	Endpoint       string                 `json:"endpoint,omitempty"`
	Method         string                 `json:"method,omitempty"`
	StatusCode     int                    `json:"status_code,omitempty"`
	ResponseTimeMS int64                  `json:"response_time_ms,omitempty"`
	Memory         *MemorySnapshot        `json:"memory,omitempty"`
	Custom         map[string]interface{} `json:"custom,omitempty"`
}

// MemorySnapshot is a best-effort resource-usage snapshot taken at capture
// time. The core attaches it to metadata and never parses it.
type MemorySnapshot struct {
	ProcessRSSBytes    uint64    `json:"process_rss_bytes,omitempty"`
	HostTotalBytes     uint64    `json:"host_total_bytes,omitempty"`
	HostAvailableBytes uint64    `json:"host_available_bytes,omitempty"`
	HostUsedPercent    float64   `json:"host_used_percent,omitempty"`
	CapturedAt         time.Time `json:"captured_at"`
}

// CaptureInput is the raw error handed to the tracker.
type CaptureInput struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
	Stack     string `json:"stack,omitempty"`
}

// Record is the full structured error record assembled for one capture.
// Count and LastSeen are logically cumulative per fingerprint; the
// cumulative merge happens in the store, keyed by fingerprint.
type Record struct {
	ID            string     `json:"id"`
	Fingerprint   string     `json:"fingerprint"`
	Message       string     `json:"message"`
	Category      Category   `json:"category"`
	Severity      Severity   `json:"severity"`
	ErrorType     string     `json:"error_type"`
	Stack         string     `json:"stack,omitempty"`
	Context       Context    `json:"context"`
	Metadata      Metadata   `json:"metadata"`
	Count         int        `json:"count"`
	FirstSeen     time.Time  `json:"first_seen"`
	LastSeen      time.Time  `json:"last_seen"`
	Resolved      bool       `json:"resolved"`
	ResolvedBy    string     `json:"resolved_by,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	Resolution    string     `json:"resolution,omitempty"`
	Tags          []string   `json:"tags"`
	AffectedUsers []string   `json:"affected_users"`
	RelatedErrors []string   `json:"related_errors,omitempty"`
}

// Trend indicates how a fingerprint's capture rate is moving between flush
// intervals.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// EndpointCount is one entry in a bucket's top-endpoints list.
type EndpointCount struct {
	Endpoint string `json:"endpoint"`
	Count    int    `json:"count"`
}

// UserCount is one entry in a bucket's top-users list.
type UserCount struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// Bucket is the rolling in-memory aggregation of all occurrences of one
// fingerprint within the process lifetime.
type Bucket struct {
	Fingerprint        string          `json:"fingerprint"`
	Count              int             `json:"count"`
	AffectedUserCount  int             `json:"affected_user_count"`
	FirstSeen          time.Time       `json:"first_seen"`
	LastSeen           time.Time       `json:"last_seen"`
	Trend              Trend           `json:"trend"`
	HourlyDistribution [24]int         `json:"hourly_distribution"`
	TopEndpoints       []EndpointCount `json:"top_endpoints"`
	TopUsers           []UserCount     `json:"top_users"`
}

// GroupCounts is the statistics rollup returned by the store.
type GroupCounts struct {
	ByCategory map[Category]int `json:"by_category"`
	BySeverity map[Severity]int `json:"by_severity"`
}

// ResolveResult is what Resolve returns to callers. It never carries an
// error value; failures are reported through Resolved=false and Reason.
type ResolveResult struct {
	ID       string `json:"id"`
	Resolved bool   `json:"resolved"`
	Reason   string `json:"reason,omitempty"`
}

// Store is the durable persistence collaborator the core depends on.
// Implementations live outside this package (see the store package).
type Store interface {
	// FindByFingerprint returns the cumulative record for a fingerprint,
	// or an error wrapping errors.ErrNotFound when none exists.
	FindByFingerprint(fingerprint string) (*Record, error)

	// UpsertError merges a freshly built record into durable storage.
	// If a record with the same fingerprint exists its count is
	// incremented, last-seen extended, and affected-users unioned;
	// otherwise the record is inserted as-is.
	UpsertError(rec *Record) error

	// UpsertAggregation creates or overwrites the aggregation row for the
	// bucket's fingerprint with its current metric snapshot.
	UpsertAggregation(b *Bucket) error

	// GetByID returns a record by its generated id.
	GetByID(id string) (*Record, error)

	// QueryRecent returns up to limit records ordered by last-seen
	// descending. Empty severity/category mean no filter.
	QueryRecent(limit int, severity Severity, category Category) ([]*Record, error)

	// MarkResolved flips the resolved flag and stamps resolver and time.
	MarkResolved(id, resolvedBy, resolution string) error

	// GroupCountsSince returns capture counts grouped by category and by
	// severity for records last seen at or after since.
	GroupCountsSince(since time.Time) (*GroupCounts, error)
}
