// extractor.go -- prompt construction and defensive parsing.
//
// The model's output is untrusted text. Parse failures downgrade to a
// reviewable placeholder record; only total failure of the call itself
// surfaces as an error. Ingestion must complete a write either way.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sponsoai/dealdesk/internal/store"
)

// ErrUnavailable is returned when the model call itself fails (network,
// auth, quota). This is the one extraction failure a caller surfaces as a
// request failure; everything else degrades to the fallback record.
var ErrUnavailable = errors.New("extraction model unavailable")

// FailedBrandName marks a deal whose extraction response could not be
// parsed. The web app keys its "needs review" badge off this value.
const FailedBrandName = "AI Extraction Failed"

// inputCap bounds how much of the subject/body is embedded in the prompt.
const inputCap = 2000

// fallbackDescriptionCap bounds how much raw model output is kept for
// diagnostics on a parse failure.
const fallbackDescriptionCap = 500

// Deal is the structured result of one extraction.
// Deadline is nil when the email names none (or parsing failed).
type Deal struct {
	BrandName   string     `json:"brand_name"`
	Amount      float64    `json:"amount"`
	Deadline    *time.Time `json:"deadline"`
	Description string     `json:"description"`
}

// Cache stores extraction results keyed by content hash.
// Satisfied by *store.RedisCache and store.NoopCache — defined here (at
// consumer) per Go convention.
type Cache interface {
	GetExtraction(ctx context.Context, contentHash string, out any) error
	SetExtraction(ctx context.Context, contentHash string, result any) error
}

// Extractor wires the opaque model to the parsing pipeline.
type Extractor struct {
	Model Model
	Cache Cache
}

// Extract converts an email into a structured deal.
//
// Contract: never returns an error for malformed model output — that path
// yields the FailedBrandName placeholder. Returns ErrUnavailable (wrapped)
// only when the model call itself fails. One model invocation per call; no
// retries (known gap — at-least-once delivery from the add-on plus the
// response cache covers the common duplicate case, not transient faults).
func (e *Extractor) Extract(ctx context.Context, subject, body string) (Deal, error) {
	hash := contentHash(subject, body)

	var cached Deal
	err := e.Cache.GetExtraction(ctx, hash, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, store.ErrCacheMiss) && !errors.Is(err, store.ErrCacheDisabled) {
		slog.Warn("extraction cache lookup failed", "error", err)
	}

	prompt := buildPrompt(sanitize(subject), sanitize(body))

	resp, err := e.Model.Generate(ctx, prompt)
	if err != nil {
		return Deal{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	deal, ok := parseResponse(resp)
	if !ok {
		// Placeholder record: ingestion still succeeds, user reviews by hand.
		return fallbackDeal(resp), nil
	}

	// Only clean parses are cached; caching a fallback would pin garbage
	// output for the TTL and defeat a retry that might parse.
	if err := e.Cache.SetExtraction(ctx, hash, deal); err != nil {
		slog.Warn("extraction cache write failed", "error", err)
	}
	return deal, nil
}

// contentHash keys the cache on the exact email content.
func contentHash(subject, body string) string {
	h := sha256.New()
	h.Write([]byte(subject))
	h.Write([]byte{0})
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}

// sanitize caps length and strips characters that could close the prompt's
// embedding fences or smuggle instructions past them.
func sanitize(s string) string {
	runes := []rune(s)
	if len(runes) > inputCap {
		runes = []rune(string(runes[:inputCap]))
	}
	out := make([]rune, 0, len(runes))
	for _, r := range runes {
		switch {
		case r == '`':
			out = append(out, '\'')
		case r == '\n' || r == '\t':
			out = append(out, r)
		case r < 0x20 || r == 0x7f:
			// drop remaining control chars
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

// buildPrompt embeds the sanitized email between fences and asks for bare JSON.
func buildPrompt(subject, body string) string {
	var b strings.Builder
	b.WriteString("You are a sponsorship deal parser. Read the email below and respond with ")
	b.WriteString("only a JSON object with exactly these fields:\n")
	b.WriteString(`{"brand_name": string, "amount": number, "deadline": "YYYY-MM-DD" or null, "description": string}`)
	b.WriteString("\namount is the offered payment in dollars (0 if none stated). ")
	b.WriteString("deadline is the reply-by or posting date if one is stated. ")
	b.WriteString("description is a one-sentence summary of the offer.\n\n")
	b.WriteString("Subject:\n```\n")
	b.WriteString(subject)
	b.WriteString("\n```\n\nBody:\n```\n")
	b.WriteString(body)
	b.WriteString("\n```\n")
	return b.String()
}

// parseResponse locates the JSON object in the model's reply and parses it.
// Models wrap answers in prose and code fences; slicing from the first '{'
// to the last '}' discards that noise. Heuristic, not a guarantee.
func parseResponse(resp string) (Deal, bool) {
	start := strings.Index(resp, "{")
	end := strings.LastIndex(resp, "}")
	if start == -1 || end == -1 || end < start {
		return Deal{}, false
	}

	var raw struct {
		BrandName   json.RawMessage `json:"brand_name"`
		Amount      json.RawMessage `json:"amount"`
		Deadline    json.RawMessage `json:"deadline"`
		Description json.RawMessage `json:"description"`
	}
	if err := json.Unmarshal([]byte(resp[start:end+1]), &raw); err != nil {
		return Deal{}, false
	}

	d := Deal{
		BrandName:   asString(raw.BrandName),
		Amount:      asAmount(raw.Amount),
		Deadline:    asDate(raw.Deadline),
		Description: asString(raw.Description),
	}
	if d.BrandName == "" {
		return Deal{}, false
	}
	return d, true
}

// fallbackDeal builds the failure-marker record, keeping a bounded slice of
// the raw response for diagnostics.
func fallbackDeal(resp string) Deal {
	desc := resp
	if len(desc) > fallbackDescriptionCap {
		desc = desc[:fallbackDescriptionCap]
	}
	return Deal{
		BrandName:   FailedBrandName,
		Amount:      0,
		Deadline:    nil,
		Description: desc,
	}
}

// asString accepts a JSON string or any scalar, returning "" for null/absent.
func asString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

// asAmount coerces a number, or a string like "$1,500", to a non-negative
// float. Anything uncoercible is 0.
func asAmount(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return max(n, 0)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(s), "$"), ",", ""))
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return max(n, 0)
		}
	}
	return 0
}

// asDate parses a YYYY-MM-DD string; anything else is nil.
func asDate(raw json.RawMessage) *time.Time {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &t
}
