// extractor_test.go -- unit tests for Extract: defensive parsing, fallback
// behavior, and cache interaction.
package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sponsoai/dealdesk/internal/store"
	"github.com/sponsoai/dealdesk/internal/testutil"
)

func newExtractor(model *testutil.StubModel) *Extractor {
	return &Extractor{Model: model, Cache: store.NoopCache{}}
}

// --- Extract: clean parses ---

func TestExtractCleanResponse(t *testing.T) {
	model := &testutil.StubModel{
		Response: `{"brand_name":"Acme Gear","amount":1500,"deadline":"2025-01-15","description":"Sponsored video for $1500"}`,
	}

	deal, err := newExtractor(model).Extract(context.Background(), "Sponsorship", "We offer $1500.")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if deal.BrandName != "Acme Gear" {
		t.Errorf("BrandName: expected Acme Gear, got %q", deal.BrandName)
	}
	if deal.Amount != 1500 {
		t.Errorf("Amount: expected 1500, got %v", deal.Amount)
	}
	if deal.Deadline == nil || deal.Deadline.Format("2006-01-02") != "2025-01-15" {
		t.Errorf("Deadline: expected 2025-01-15, got %v", deal.Deadline)
	}
}

func TestExtractProseWrappedJSON(t *testing.T) {
	// Models narrate and fence. The parser slices first '{' to last '}'.
	model := &testutil.StubModel{
		Response: "Sure! Here is the extracted deal:\n```json\n" +
			`{"brand_name":"NordShield","amount":250.50,"deadline":null,"description":"VPN promo"}` +
			"\n```\nLet me know if you need anything else.",
	}

	deal, err := newExtractor(model).Extract(context.Background(), "s", "b")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if deal.BrandName != "NordShield" {
		t.Errorf("BrandName: expected NordShield, got %q", deal.BrandName)
	}
	if deal.Amount != 250.50 {
		t.Errorf("Amount: expected 250.50, got %v", deal.Amount)
	}
	if deal.Deadline != nil {
		t.Errorf("Deadline: expected nil, got %v", deal.Deadline)
	}
}

func TestExtractCoercesAmountStrings(t *testing.T) {
	cases := []struct {
		name   string
		amount string
		want   float64
	}{
		{"dollar sign and comma", `"$1,500"`, 1500},
		{"plain string number", `"300"`, 300},
		{"negative clamped to zero", `-50`, 0},
		{"unparseable string", `"call us"`, 0},
		{"null", `null`, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := &testutil.StubModel{
				Response: `{"brand_name":"B","amount":` + tc.amount + `,"deadline":null,"description":""}`,
			}
			deal, err := newExtractor(model).Extract(context.Background(), "s", "b")
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if deal.Amount != tc.want {
				t.Errorf("Amount: expected %v, got %v", tc.want, deal.Amount)
			}
		})
	}
}

func TestExtractIgnoresBadDeadline(t *testing.T) {
	model := &testutil.StubModel{
		Response: `{"brand_name":"B","amount":0,"deadline":"sometime next week","description":""}`,
	}

	deal, err := newExtractor(model).Extract(context.Background(), "s", "b")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if deal.Deadline != nil {
		t.Errorf("Deadline: expected nil for unparseable date, got %v", deal.Deadline)
	}
}

// --- Extract: fallback paths ---

func TestExtractFallbackOnGarbageOutput(t *testing.T) {
	cases := []struct {
		name string
		resp string
	}{
		{"no braces at all", "I cannot find a deal in this email."},
		{"malformed JSON", `{"brand_name": "Acme", "amount": }`},
		{"empty brand name", `{"brand_name":"","amount":100,"deadline":null,"description":"x"}`},
		{"empty response", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := &testutil.StubModel{Response: tc.resp}
			deal, err := newExtractor(model).Extract(context.Background(), "s", "b")
			if err != nil {
				t.Fatalf("fallback path must not return an error, got %v", err)
			}
			if deal.BrandName != FailedBrandName {
				t.Errorf("BrandName: expected %q, got %q", FailedBrandName, deal.BrandName)
			}
			if deal.Amount != 0 || deal.Deadline != nil {
				t.Errorf("fallback record: expected zero amount and nil deadline, got %v / %v", deal.Amount, deal.Deadline)
			}
		})
	}
}

func TestExtractFallbackDescriptionIsBounded(t *testing.T) {
	model := &testutil.StubModel{Response: strings.Repeat("x", 5000)}

	deal, err := newExtractor(model).Extract(context.Background(), "s", "b")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(deal.Description) != fallbackDescriptionCap {
		t.Errorf("Description length: expected %d, got %d", fallbackDescriptionCap, len(deal.Description))
	}
}

func TestExtractModelFailureReturnsErrUnavailable(t *testing.T) {
	model := &testutil.StubModel{Err: errors.New("quota exceeded")}

	_, err := newExtractor(model).Extract(context.Background(), "s", "b")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

// --- Extract: cache interaction ---

func TestExtractCacheHitSkipsModel(t *testing.T) {
	model := &testutil.StubModel{
		Response: `{"brand_name":"Cached Co","amount":99,"deadline":null,"description":"d"}`,
	}
	ex := &Extractor{Model: model, Cache: testutil.NewMockCache()}

	first, err := ex.Extract(context.Background(), "subject", "body")
	if err != nil {
		t.Fatalf("first Extract: %v", err)
	}

	// Same content again; the model must not be consulted.
	model.Err = errors.New("model must not be called")
	second, err := ex.Extract(context.Background(), "subject", "body")
	if err != nil {
		t.Fatalf("second Extract: %v", err)
	}
	if second.BrandName != first.BrandName || second.Amount != first.Amount {
		t.Errorf("cached result mismatch: %+v vs %+v", second, first)
	}
	if len(model.Prompts) != 1 {
		t.Errorf("model calls: expected 1, got %d", len(model.Prompts))
	}
}

func TestExtractFallbackIsNotCached(t *testing.T) {
	model := &testutil.StubModel{Response: "garbage with no json"}
	ex := &Extractor{Model: model, Cache: testutil.NewMockCache()}

	if _, err := ex.Extract(context.Background(), "subject", "body"); err != nil {
		t.Fatalf("first Extract: %v", err)
	}

	// A parse failure must not pin garbage: the next call re-runs the model.
	model.Response = `{"brand_name":"Recovered","amount":10,"deadline":null,"description":""}`
	deal, err := ex.Extract(context.Background(), "subject", "body")
	if err != nil {
		t.Fatalf("second Extract: %v", err)
	}
	if deal.BrandName != "Recovered" {
		t.Errorf("BrandName: expected Recovered (fresh model call), got %q", deal.BrandName)
	}
}

func TestExtractCacheErrorsAreNonFatal(t *testing.T) {
	cache := testutil.NewMockCache()
	cache.GetErr = errors.New("redis down")
	cache.SetErr = errors.New("redis down")
	model := &testutil.StubModel{
		Response: `{"brand_name":"B","amount":1,"deadline":null,"description":""}`,
	}
	ex := &Extractor{Model: model, Cache: cache}

	deal, err := ex.Extract(context.Background(), "s", "b")
	if err != nil {
		t.Fatalf("cache failure must not fail extraction, got %v", err)
	}
	if deal.BrandName != "B" {
		t.Errorf("BrandName: expected B, got %q", deal.BrandName)
	}
}

// --- sanitize ---

func TestSanitize(t *testing.T) {
	t.Run("caps input length", func(t *testing.T) {
		long := strings.Repeat("a", inputCap+500)
		if got := len([]rune(sanitize(long))); got != inputCap {
			t.Errorf("length: expected %d, got %d", inputCap, got)
		}
	})

	t.Run("replaces backticks", func(t *testing.T) {
		if got := sanitize("pay ```now```"); strings.Contains(got, "`") {
			t.Errorf("backticks survived sanitization: %q", got)
		}
	})

	t.Run("strips control characters but keeps newlines and tabs", func(t *testing.T) {
		got := sanitize("a\x00b\nc\td\x1b")
		if got != "ab\nc\td" {
			t.Errorf("expected %q, got %q", "ab\nc\td", got)
		}
	})
}

// --- prompt embedding ---

func TestBuildPromptEmbedsContent(t *testing.T) {
	p := buildPrompt("My Subject", "My Body")
	if !strings.Contains(p, "My Subject") || !strings.Contains(p, "My Body") {
		t.Error("prompt must embed subject and body")
	}
	if !strings.Contains(p, "brand_name") {
		t.Error("prompt must name the expected output fields")
	}
}

// --- parseResponse date handling ---

func TestParseResponseDeadline(t *testing.T) {
	deal, ok := parseResponse(`{"brand_name":"B","amount":0,"deadline":"2025-12-31","description":""}`)
	if !ok {
		t.Fatal("expected clean parse")
	}
	want := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	if deal.Deadline == nil || !deal.Deadline.Equal(want) {
		t.Errorf("Deadline: expected %v, got %v", want, deal.Deadline)
	}
}
