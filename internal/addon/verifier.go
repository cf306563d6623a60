// verifier.go -- multi-factor verification of inbound add-on requests.
//
// Check order is deliberate: presence checks before cryptographic work,
// cryptographic work before anything that touches a store. Each failure
// maps to a sentinel error so the HTTP layer can pick a status without
// string matching.
package addon

import (
	"crypto/subtle"
	"errors"
	"strconv"
	"strings"
	"time"
)

// FreshnessWindow bounds |server time - request timestamp|. Requests older
// (or further in the future, clock skew abuse) are rejected. The boundary
// itself is accepted: exactly 5m00s old still verifies.
const FreshnessWindow = 5 * time.Minute

// Verification failures. ErrMisconfiguredSecret is a server fault (500);
// the rest are client faults (401).
var (
	ErrMisconfiguredSecret  = errors.New("addon secret not configured")
	ErrMissingAPIKey        = errors.New("missing api key")
	ErrInvalidAPIKey        = errors.New("invalid api key")
	ErrMissingSignedHeaders = errors.New("missing signed headers")
	ErrInvalidTimestamp     = errors.New("invalid timestamp")
	ErrRequestExpired       = errors.New("request expired")
	ErrInvalidSignature     = errors.New("invalid signature")
)

// Verify authenticates one inbound add-on request against the secret set.
// Short-circuits on the first failure; returns nil on acceptance.
// now is injected for testability.
func Verify(apiKey, timestamp, signature string, p Payload, secrets *Secrets, now time.Time) error {
	apiKey = strings.TrimSpace(apiKey)
	timestamp = strings.TrimSpace(timestamp)
	signature = strings.TrimSpace(signature)

	accepted := secrets.Accepted()
	if accepted[0] == "" {
		return ErrMisconfiguredSecret
	}

	if apiKey == "" {
		return ErrMissingAPIKey
	}
	keyMatch := false
	for _, secret := range accepted {
		if constantTimeEqual(apiKey, secret) {
			keyMatch = true
		}
	}
	if !keyMatch {
		return ErrInvalidAPIKey
	}

	if timestamp == "" || signature == "" {
		return ErrMissingSignedHeaders
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}

	skew := now.UnixMilli() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > FreshnessWindow.Milliseconds() {
		return ErrRequestExpired
	}

	// Recompute against every accepted secret so a signature produced with
	// the pre-rotation secret keeps verifying through the grace period.
	for _, secret := range accepted {
		if constantTimeEqual(signature, signPayload(p, secret, timestamp)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// constantTimeEqual compares two strings in constant time. A length
// mismatch is a mismatch; it still burns a full comparison so the caller
// never exposes a fast path.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		subtle.ConstantTimeCompare([]byte(a), []byte(a))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
