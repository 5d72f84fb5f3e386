package db

import (
	"database/sql"
	"strings"

	"github.com/oxbowlabs/faultline/errors"
)

// ErrNotFound is returned when a lookup matches no row.
// Wraps the shared sentinel so callers can use errors.IsNotFoundError.
var ErrNotFound = errors.ErrNotFound

// ErrDatabaseClosed is returned when operations are attempted on a closed database.
// This typically occurs during graceful shutdown when the database connection
// is closed before the final aggregation flush has finished.
var ErrDatabaseClosed = errors.New("database is closed")

// IsNotFound checks whether an error indicates a missing row, covering both
// our sentinel and the raw sql.ErrNoRows from the driver.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}

// IsDatabaseClosed checks if an error indicates the database connection is closed.
// This handles both:
// - Wrapped ErrDatabaseClosed errors from this package
// - Raw SQLite/sql driver errors that contain "database is closed" in their message
//
// The string matching fallback is necessary because the underlying sql driver
// returns its own error types that we cannot wrap at the source.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}

	// Check for our wrapped error type first (preferred)
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}

	// Fallback: check for raw driver error messages
	errMsg := err.Error()
	return strings.Contains(errMsg, "database is closed") ||
		strings.Contains(errMsg, "sql: database is closed")
}
