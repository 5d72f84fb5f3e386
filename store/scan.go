package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/oxbowlabs/faultline/fault"
)

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*fault.Record, error) {
	var rec fault.Record
	var category, severity, firstSeen, lastSeen string
	var stack, serviceVersion, traceID, spanID, parentSpanID sql.NullString
	var metadata, resolvedBy, resolvedAt, resolution sql.NullString
	var tags, affectedUsers, relatedErrors sql.NullString
	var resolved int

	err := row.Scan(
		&rec.ID,
		&rec.Fingerprint,
		&rec.Message,
		&category,
		&severity,
		&rec.ErrorType,
		&stack,
		&rec.Context.Service,
		&serviceVersion,
		&rec.Context.Environment,
		&traceID,
		&spanID,
		&parentSpanID,
		&metadata,
		&rec.Count,
		&firstSeen,
		&lastSeen,
		&resolved,
		&resolvedBy,
		&resolvedAt,
		&resolution,
		&tags,
		&affectedUsers,
		&relatedErrors,
	)
	if err != nil {
		return nil, err
	}

	rec.Category = fault.Category(category)
	rec.Severity = fault.Severity(severity)
	rec.Stack = stack.String
	rec.Context.Version = serviceVersion.String
	rec.Context.TraceID = traceID.String
	rec.Context.SpanID = spanID.String
	rec.Context.ParentSpanID = parentSpanID.String
	rec.FirstSeen = parseTime(firstSeen)
	rec.LastSeen = parseTime(lastSeen)
	rec.Resolved = resolved != 0
	rec.ResolvedBy = resolvedBy.String
	rec.Resolution = resolution.String

	if resolvedAt.Valid {
		t := parseTime(resolvedAt.String)
		rec.ResolvedAt = &t
	}
	if metadata.Valid {
		// Best-effort: a corrupt metadata blob should not make the whole
		// record unreadable.
		_ = json.Unmarshal([]byte(metadata.String), &rec.Metadata)
	}
	rec.Tags = decodeStrings(tags)
	rec.AffectedUsers = decodeStrings(affectedUsers)
	rec.RelatedErrors = decodeStrings(relatedErrors)

	return &rec, nil
}

// timeLayout is RFC 3339 with a fixed nine-digit fraction. RFC3339Nano
// trims trailing fractional zeros, which breaks lexicographic ordering of
// the stored TEXT columns; a fixed-width fraction keeps string order equal
// to chronological order for ORDER BY and range comparisons.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func decodeStrings(ns sql.NullString) []string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		return nil
	}
	return out
}

func encodeJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func unionUsers(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, u := range existing {
		if _, ok := seen[u]; !ok {
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	for _, u := range incoming {
		if _, ok := seen[u]; !ok {
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
