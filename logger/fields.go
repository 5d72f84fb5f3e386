package logger

// Standard field names for consistent structured logging across Faultline.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldErrorID     = "error_id"
	FieldFingerprint = "fingerprint"
	FieldTraceID     = "trace_id"
	FieldUserID      = "user_id"
	FieldService     = "service"
	FieldEnvironment = "environment"

	// Classification
	FieldCategory  = "category"
	FieldSeverity  = "severity"
	FieldPatternID = "pattern_id"
	FieldErrorType = "error_type"

	// Operations
	FieldOperation = "operation"
	FieldEvent     = "event"

	// Aggregation
	FieldCount         = "count"
	FieldAffectedUsers = "affected_users"
	FieldBuckets       = "buckets"

	// Errors
	FieldError = "error"
)
