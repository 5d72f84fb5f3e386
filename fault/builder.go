package fault

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// newRecordID generates a unique record id. Uniqueness is the requirement
// here, not unguessability: a millisecond timestamp plus a short random
// suffix is sufficient.
func newRecordID() string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("err_%d_%s", time.Now().UnixMilli(), suffix)
}

// buildRecord assembles the structured error record for one capture.
// The fingerprint and classification are computed by the caller so a
// single classification result drives category, severity, and tags.
func buildRecord(input CaptureInput, ctx Context, meta Metadata, cls Classification, fingerprint string, maxFrames int) *Record {
	now := time.Now().UTC()

	if ctx.Timestamp.IsZero() {
		ctx.Timestamp = now
	}

	errorType := input.ErrorType
	if errorType == "" {
		errorType = "Error"
	}

	// Tags come from the matched pattern; without one, the category is
	// the only tag.
	var tags []string
	if cls.Pattern != nil && len(cls.Pattern.Tags) > 0 {
		tags = append(tags, cls.Pattern.Tags...)
	} else {
		tags = []string{string(cls.Category)}
	}

	meta.Memory = captureMemorySnapshot()

	affected := []string{}
	if meta.UserID != "" {
		affected = append(affected, meta.UserID)
	}

	return &Record{
		ID:            newRecordID(),
		Fingerprint:   fingerprint,
		Message:       input.Message,
		Category:      cls.Category,
		Severity:      cls.Severity,
		ErrorType:     errorType,
		Stack:         CleanStack(input.Stack, maxFrames),
		Context:       ctx,
		Metadata:      meta,
		Count:         1,
		FirstSeen:     now,
		LastSeen:      now,
		Resolved:      false,
		Tags:          tags,
		AffectedUsers: affected,
	}
}
