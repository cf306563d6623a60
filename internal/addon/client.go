// client.go -- the trusted sender side of the handshake.
//
// In production the Gmail add-on itself runs as Apps Script; this client
// is the reference implementation of its signing behavior, used by the
// smoke tests and by any future Go-side submitter (backfill tooling, CLI).
package addon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client signs payloads and posts them to the ingestion endpoint.
type Client struct {
	backendURL string
	secrets    *Secrets
	httpClient *http.Client
}

// NewClient validates the operator-supplied settings and returns a signer
// client. The backend URL must be HTTPS (signed material never travels in
// the clear) and the secret must meet MinSecretLength.
func NewClient(backendURL string, secrets *Secrets) (*Client, error) {
	if err := validateBackendURL(backendURL); err != nil {
		return nil, err
	}
	if len(secrets.Current()) < MinSecretLength {
		return nil, fmt.Errorf("secret must be at least %d characters", MinSecretLength)
	}
	return &Client{
		backendURL: strings.TrimRight(backendURL, "/"),
		secrets:    secrets,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// SetBackendURL repoints the client, applying the same HTTPS requirement.
func (c *Client) SetBackendURL(backendURL string) error {
	if err := validateBackendURL(backendURL); err != nil {
		return err
	}
	c.backendURL = strings.TrimRight(backendURL, "/")
	return nil
}

func validateBackendURL(backendURL string) error {
	if !strings.HasPrefix(backendURL, "https://") {
		return fmt.Errorf("backend URL must start with https://")
	}
	return nil
}

// Submit signs the payload with the current secret and posts it to
// /deals/addon. Returns the response body on 200/201; any other status
// becomes an error carrying the server's message.
func (c *Client) Submit(ctx context.Context, p Payload) ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	timestamp, signature := Sign(p, c.secrets.Current(), time.Now())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.backendURL+"/deals/addon", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderAPIKey, c.secrets.Current())
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderSignature, signature)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting payload: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("ingestion rejected (%d): %s", resp.StatusCode, respBody)
	}
	return respBody, nil
}
