// signer.go -- canonical payload construction and HMAC signing.
//
// The canonical form is part of the wire contract: the verifier reproduces
// these exact bytes, so key order and empty-field normalization here are
// not a style choice. Changing either breaks every deployed add-on.
package addon

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"time"
)

// Request headers carrying the handshake material.
const (
	HeaderAPIKey    = "x-api-key"
	HeaderTimestamp = "x-addon-timestamp"
	HeaderSignature = "x-addon-signature"
)

// Payload is the add-on submission: one email plus the claimed owner.
// Transient -- never persisted as-is.
type Payload struct {
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Sender    string `json:"sender"`
	UserEmail string `json:"userEmail"`
}

// canonicalPayload is the signed shape. Field order matters: encoding/json
// emits struct fields in declaration order, which fixes the key order of
// the serialized object. Empty strings stand in for absent fields.
type canonicalPayload struct {
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Sender    string `json:"sender"`
	UserEmail string `json:"userEmail"`
	Timestamp string `json:"timestamp"`
}

// Sign produces the timestamp and signature headers for an outbound payload.
// now is injected so tests can pin the clock; production callers pass time.Now().
func Sign(p Payload, secret string, now time.Time) (timestamp, signature string) {
	timestamp = strconv.FormatInt(now.UnixMilli(), 10)
	return timestamp, signPayload(p, secret, timestamp)
}

// signPayload computes base64(HMAC-SHA256(canonical JSON, secret)).
// Shared by Sign and the verifier's recomputation step.
func signPayload(p Payload, secret, timestamp string) string {
	canonical, err := json.Marshal(canonicalPayload{
		Subject:   p.Subject,
		Body:      p.Body,
		Sender:    p.Sender,
		UserEmail: p.UserEmail,
		Timestamp: timestamp,
	})
	if err != nil {
		// Marshaling a struct of strings cannot fail; keep the signature
		// path infallible rather than threading an impossible error up.
		panic("addon: canonical payload marshal: " + err.Error())
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
