package fault

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// fingerprintLen is the number of hex characters retained from the hash.
const fingerprintLen = 16

// digit placeholder keeps "order 1234 failed" and "order 5678 failed" on
// the same fingerprint.
const digitPlaceholder = "#"

// fieldSep is the unit separator; it cannot occur in well-formed error
// text, so joined inputs cannot collide by concatenation.
const fieldSep = "\x1f"

var digitRunRe = regexp.MustCompile(`\d+`)

// Fingerprint derives the stable identity of "the same error" from the
// error type, message (digit runs collapsed), service, environment, and
// stack signature. Deterministic across process restarts: no time
// component, no randomness.
func Fingerprint(errorType, message, service, environment, stackSig string) string {
	normalized := digitRunRe.ReplaceAllString(message, digitPlaceholder)

	payload := strings.Join([]string{
		errorType,
		normalized,
		service,
		environment,
		stackSig,
	}, fieldSep)

	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}
