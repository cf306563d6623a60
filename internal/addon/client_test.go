// client_test.go -- unit tests for the reference signer client.
package addon

import (
	"testing"
)

// --- NewClient ---

func TestNewClient(t *testing.T) {
	t.Run("rejects non-https backend", func(t *testing.T) {
		if _, err := NewClient("http://api.example.com", NewSecrets(testSecret, "")); err == nil {
			t.Error("expected error for http backend URL")
		}
	})

	t.Run("rejects short secret", func(t *testing.T) {
		if _, err := NewClient("https://api.example.com", NewSecrets("short", "")); err == nil {
			t.Error("expected error for secret below minimum length")
		}
	})

	t.Run("trims trailing slash", func(t *testing.T) {
		c, err := NewClient("https://api.example.com/", NewSecrets(testSecret, ""))
		if err != nil {
			t.Fatalf("NewClient: %v", err)
		}
		if c.backendURL != "https://api.example.com" {
			t.Errorf("backendURL: expected trailing slash stripped, got %q", c.backendURL)
		}
	})
}

// --- SetBackendURL ---

func TestSetBackendURL(t *testing.T) {
	c, err := NewClient("https://api.example.com", NewSecrets(testSecret, ""))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if err := c.SetBackendURL("http://insecure.example.com"); err == nil {
		t.Error("expected error for http backend URL")
	}
	if c.backendURL != "https://api.example.com" {
		t.Error("failed SetBackendURL must not repoint the client")
	}

	if err := c.SetBackendURL("https://staging.example.com/"); err != nil {
		t.Fatalf("SetBackendURL: %v", err)
	}
	if c.backendURL != "https://staging.example.com" {
		t.Errorf("backendURL: expected https://staging.example.com, got %q", c.backendURL)
	}
}
