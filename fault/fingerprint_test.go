package fault

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var hexRe = regexp.MustCompile(`^[0-9a-f]{16}$`)

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("DatabaseError", "connection refused", "order-router", "production", "frame1|frame2")
	b := Fingerprint("DatabaseError", "connection refused", "order-router", "production", "frame1|frame2")

	assert.Equal(t, a, b)
	assert.Regexp(t, hexRe, a)
}

func TestFingerprint_DigitInsensitive(t *testing.T) {
	a := Fingerprint("OrderError", "order 42 failed", "order-router", "production", "")
	b := Fingerprint("OrderError", "order 9001 failed", "order-router", "production", "")

	assert.Equal(t, a, b)
}

func TestFingerprint_SensitiveToEachInput(t *testing.T) {
	base := Fingerprint("TypeA", "message failed", "svc", "prod", "sig")

	assert.NotEqual(t, base, Fingerprint("TypeB", "message failed", "svc", "prod", "sig"))
	assert.NotEqual(t, base, Fingerprint("TypeA", "other failed", "svc", "prod", "sig"))
	assert.NotEqual(t, base, Fingerprint("TypeA", "message failed", "svc2", "prod", "sig"))
	assert.NotEqual(t, base, Fingerprint("TypeA", "message failed", "svc", "staging", "sig"))
	assert.NotEqual(t, base, Fingerprint("TypeA", "message failed", "svc", "prod", "sig2"))
}

func TestFingerprint_NoStack(t *testing.T) {
	fp := Fingerprint("Error", "boom", "svc", "prod", "")

	assert.Regexp(t, hexRe, fp)
}

func TestFingerprint_EmptyEverything(t *testing.T) {
	fp := Fingerprint("", "", "", "", "")

	assert.Regexp(t, hexRe, fp)
}
