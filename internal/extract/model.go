// Package extract turns free-text sponsorship emails into structured deal
// fields via an opaque generative-text call.
//
// model.go -- the capability boundary. The model is a function from prompt
// text to response text; nothing else about it is assumed, including
// whether the response is well-formed.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Model is the opaque text-generation function.
// Implementations: GeminiModel in production, testutil.StubModel in tests.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// geminiModelName pins the model revision. Flash tier: extraction is a
// short, single-turn task and latency sits on the add-on's button press.
const geminiModelName = "gemini-1.5-flash"

// GeminiModel calls the Generative Language REST API.
type GeminiModel struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiModel returns a Model backed by the hosted Gemini API.
func NewGeminiModel(apiKey string) *GeminiModel {
	return newGeminiModel(apiKey, "https://generativelanguage.googleapis.com")
}

// newGeminiModel lets tests point the client at an httptest server.
func newGeminiModel(apiKey, baseURL string) *GeminiModel {
	return &GeminiModel{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// generateContent request/response shapes, trimmed to the fields used.
type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Generate sends one prompt and returns the raw text of the first
// candidate. Any transport, status, or empty-candidate failure is returned
// as an error; response content is never inspected beyond locating text.
func (m *GeminiModel) Generate(ctx context.Context, prompt string) (string, error) {
	if m.apiKey == "" {
		return "", fmt.Errorf("gemini api key not configured")
	}

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", m.baseURL, geminiModelName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling model: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading model response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model returned status %d", resp.StatusCode)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decoding model response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("model returned no candidates")
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}
