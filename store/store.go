// Package store persists error records and aggregation snapshots in
// SQLite. It implements the fault.Store contract over a *sql.DB opened by
// the db package.
package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/oxbowlabs/faultline/db"
	"github.com/oxbowlabs/faultline/errors"
	"github.com/oxbowlabs/faultline/fault"
)

// SQLStore implements fault.Store over SQLite.
type SQLStore struct {
	db *sql.DB
}

// New creates a store over an open database. The schema must already be
// migrated (see db.OpenWithMigrations).
func New(database *sql.DB) *SQLStore {
	return &SQLStore{db: database}
}

const recordColumns = `
	id, fingerprint, message, category, severity, error_type, stack,
	service, service_version, environment, trace_id, span_id, parent_span_id,
	metadata, count, first_seen, last_seen,
	resolved, resolved_by, resolved_at, resolution,
	tags, affected_users, related_errors`

// UpsertError merges one freshly built record into the cumulative row for
// its fingerprint: insert on first sight, otherwise increment the count,
// extend last-seen, and union the affected users. The count update is
// additive in SQL (count = count + 1) so concurrent upserts from separate
// instances stay correct.
func (s *SQLStore) UpsertError(rec *fault.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin upsert tx")
	}
	defer tx.Rollback()

	var existingID string
	var usersJSON sql.NullString
	err = tx.QueryRow(
		"SELECT id, affected_users FROM error_records WHERE fingerprint = ?",
		rec.Fingerprint,
	).Scan(&existingID, &usersJSON)

	switch {
	case err == sql.ErrNoRows:
		if err := s.insertRecord(tx, rec); err != nil {
			return err
		}
	case err != nil:
		return errors.Wrap(err, "look up fingerprint")
	default:
		users := unionUsers(decodeStrings(usersJSON), rec.AffectedUsers)
		_, err = tx.Exec(`
			UPDATE error_records
			SET count = count + 1,
			    last_seen = ?,
			    affected_users = ?
			WHERE fingerprint = ?`,
			formatTime(rec.LastSeen),
			encodeJSON(users),
			rec.Fingerprint,
		)
		if err != nil {
			return errors.Wrap(err, "update cumulative record")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit upsert tx")
	}
	return nil
}

func (s *SQLStore) insertRecord(tx *sql.Tx, rec *fault.Record) error {
	metadataJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return errors.Wrap(err, "encode metadata")
	}

	_, err = tx.Exec(`
		INSERT INTO error_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Fingerprint,
		rec.Message,
		string(rec.Category),
		string(rec.Severity),
		rec.ErrorType,
		nullable(rec.Stack),
		rec.Context.Service,
		nullable(rec.Context.Version),
		rec.Context.Environment,
		nullable(rec.Context.TraceID),
		nullable(rec.Context.SpanID),
		nullable(rec.Context.ParentSpanID),
		string(metadataJSON),
		rec.Count,
		formatTime(rec.FirstSeen),
		formatTime(rec.LastSeen),
		boolToInt(rec.Resolved),
		nullable(rec.ResolvedBy),
		nullableTime(rec.ResolvedAt),
		nullable(rec.Resolution),
		encodeJSON(rec.Tags),
		encodeJSON(rec.AffectedUsers),
		encodeJSON(rec.RelatedErrors),
	)
	if err != nil {
		return errors.Wrap(err, "insert error record")
	}
	return nil
}

// FindByFingerprint returns the cumulative record for a fingerprint.
func (s *SQLStore) FindByFingerprint(fingerprint string) (*fault.Record, error) {
	row := s.db.QueryRow(
		"SELECT "+recordColumns+" FROM error_records WHERE fingerprint = ?",
		fingerprint,
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(db.ErrNotFound, "fingerprint %s", fingerprint)
	}
	if err != nil {
		return nil, errors.Wrap(err, "find by fingerprint")
	}
	return rec, nil
}

// GetByID returns a record by its generated id.
func (s *SQLStore) GetByID(id string) (*fault.Record, error) {
	row := s.db.QueryRow(
		"SELECT "+recordColumns+" FROM error_records WHERE id = ?",
		id,
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(db.ErrNotFound, "error record %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get by id")
	}
	return rec, nil
}

// QueryRecent returns up to limit records ordered by last-seen descending.
// Empty severity/category mean no filter.
func (s *SQLStore) QueryRecent(limit int, severity fault.Severity, category fault.Category) ([]*fault.Record, error) {
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT " + recordColumns + " FROM error_records WHERE 1=1"
	args := []interface{}{}
	if severity != "" {
		query += " AND severity = ?"
		args = append(args, string(severity))
	}
	if category != "" {
		query += " AND category = ?"
		args = append(args, string(category))
	}
	query += " ORDER BY last_seen DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query recent records")
	}
	defer rows.Close()

	var records []*fault.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan record")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkResolved flips the resolved flag and stamps resolver and timestamp.
// Returns db.ErrNotFound when the id does not exist.
func (s *SQLStore) MarkResolved(id, resolvedBy, resolution string) error {
	res, err := s.db.Exec(`
		UPDATE error_records
		SET resolved = 1,
		    resolved_by = ?,
		    resolved_at = ?,
		    resolution = ?
		WHERE id = ?`,
		resolvedBy,
		formatTime(time.Now()),
		nullable(resolution),
		id,
	)
	if err != nil {
		return errors.Wrap(err, "mark resolved")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return errors.Wrapf(db.ErrNotFound, "error record %s", id)
	}
	return nil
}

// UpsertAggregation creates or overwrites the aggregation row for a
// bucket's fingerprint with its current metric snapshot.
func (s *SQLStore) UpsertAggregation(b *fault.Bucket) error {
	hourly, err := json.Marshal(b.HourlyDistribution)
	if err != nil {
		return errors.Wrap(err, "encode hourly distribution")
	}
	endpoints, err := json.Marshal(b.TopEndpoints)
	if err != nil {
		return errors.Wrap(err, "encode top endpoints")
	}
	users, err := json.Marshal(b.TopUsers)
	if err != nil {
		return errors.Wrap(err, "encode top users")
	}

	_, err = s.db.Exec(`
		INSERT INTO error_aggregations (
			fingerprint, count, affected_user_count, first_seen, last_seen,
			trend, hourly_distribution, top_endpoints, top_users, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			count = excluded.count,
			affected_user_count = excluded.affected_user_count,
			first_seen = excluded.first_seen,
			last_seen = excluded.last_seen,
			trend = excluded.trend,
			hourly_distribution = excluded.hourly_distribution,
			top_endpoints = excluded.top_endpoints,
			top_users = excluded.top_users,
			updated_at = excluded.updated_at`,
		b.Fingerprint,
		b.Count,
		b.AffectedUserCount,
		formatTime(b.FirstSeen),
		formatTime(b.LastSeen),
		string(b.Trend),
		string(hourly),
		string(endpoints),
		string(users),
		formatTime(time.Now()),
	)
	if err != nil {
		return errors.Wrap(err, "upsert aggregation")
	}
	return nil
}

// GetAggregation reads back the aggregation row for a fingerprint.
func (s *SQLStore) GetAggregation(fingerprint string) (*fault.Bucket, error) {
	var b fault.Bucket
	var firstSeen, lastSeen, trend, hourly, endpoints, users string

	err := s.db.QueryRow(`
		SELECT fingerprint, count, affected_user_count, first_seen, last_seen,
		       trend, hourly_distribution, top_endpoints, top_users
		FROM error_aggregations WHERE fingerprint = ?`,
		fingerprint,
	).Scan(&b.Fingerprint, &b.Count, &b.AffectedUserCount, &firstSeen, &lastSeen,
		&trend, &hourly, &endpoints, &users)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(db.ErrNotFound, "aggregation %s", fingerprint)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get aggregation")
	}

	b.FirstSeen = parseTime(firstSeen)
	b.LastSeen = parseTime(lastSeen)
	b.Trend = fault.Trend(trend)
	if err := json.Unmarshal([]byte(hourly), &b.HourlyDistribution); err != nil {
		return nil, errors.Wrap(err, "decode hourly distribution")
	}
	if err := json.Unmarshal([]byte(endpoints), &b.TopEndpoints); err != nil {
		return nil, errors.Wrap(err, "decode top endpoints")
	}
	if err := json.Unmarshal([]byte(users), &b.TopUsers); err != nil {
		return nil, errors.Wrap(err, "decode top users")
	}
	return &b, nil
}

// GroupCountsSince returns occurrence counts grouped by category and by
// severity for records last seen at or after since. Counts sum the
// cumulative per-fingerprint occurrence counts, not row counts.
func (s *SQLStore) GroupCountsSince(since time.Time) (*fault.GroupCounts, error) {
	cutoff := formatTime(since)
	counts := &fault.GroupCounts{
		ByCategory: make(map[fault.Category]int),
		BySeverity: make(map[fault.Severity]int),
	}

	rows, err := s.db.Query(
		"SELECT category, SUM(count) FROM error_records WHERE last_seen >= ? GROUP BY category",
		cutoff,
	)
	if err != nil {
		return nil, errors.Wrap(err, "group by category")
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, errors.Wrap(err, "scan category count")
		}
		counts.ByCategory[fault.Category(category)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sevRows, err := s.db.Query(
		"SELECT severity, SUM(count) FROM error_records WHERE last_seen >= ? GROUP BY severity",
		cutoff,
	)
	if err != nil {
		return nil, errors.Wrap(err, "group by severity")
	}
	defer sevRows.Close()
	for sevRows.Next() {
		var severity string
		var count int
		if err := sevRows.Scan(&severity, &count); err != nil {
			return nil, errors.Wrap(err, "scan severity count")
		}
		counts.BySeverity[fault.Severity(severity)] = count
	}
	return counts, sevRows.Err()
}
