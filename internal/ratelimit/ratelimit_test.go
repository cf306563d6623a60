// ratelimit_test.go -- unit tests for the fixed-window limiter with an
// injected clock.
package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// --- Allow ---

func TestAllow(t *testing.T) {
	t.Run("allows up to max within one window", func(t *testing.T) {
		l := New(3, time.Minute)

		for i := 0; i < 3; i++ {
			allowed, _, _ := l.Allow("1.2.3.4")
			if !allowed {
				t.Fatalf("request %d: expected allowed", i+1)
			}
		}
		if allowed, remaining, _ := l.Allow("1.2.3.4"); allowed || remaining != 0 {
			t.Errorf("request 4: expected denied with 0 remaining, got allowed=%v remaining=%d", allowed, remaining)
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		l := New(1, time.Minute)

		l.Allow("1.1.1.1")
		if allowed, _, _ := l.Allow("2.2.2.2"); !allowed {
			t.Error("second key must have its own budget")
		}
	})

	t.Run("window expiry resets the counter", func(t *testing.T) {
		l := New(1, time.Minute)
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		l.timeNow = func() time.Time { return now }

		l.Allow("1.2.3.4")
		if allowed, _, _ := l.Allow("1.2.3.4"); allowed {
			t.Fatal("second request in window must be denied")
		}

		now = now.Add(time.Minute + time.Second)
		if allowed, _, _ := l.Allow("1.2.3.4"); !allowed {
			t.Error("request after window expiry must be allowed")
		}
	})

	t.Run("remaining counts down", func(t *testing.T) {
		l := New(3, time.Minute)

		_, r1, _ := l.Allow("k")
		_, r2, _ := l.Allow("k")
		if r1 != 2 || r2 != 1 {
			t.Errorf("remaining: expected 2 then 1, got %d then %d", r1, r2)
		}
	})
}

// --- Middleware ---

func TestMiddleware(t *testing.T) {
	t.Run("sets rate limit headers on every response", func(t *testing.T) {
		l := New(5, time.Minute)
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		r := httptest.NewRequest(http.MethodGet, "/deals", nil)
		r.RemoteAddr = "9.9.9.9:1234"
		w := httptest.NewRecorder()
		l.Middleware(next).ServeHTTP(w, r)

		if got := w.Header().Get("X-RateLimit-Limit"); got != "5" {
			t.Errorf("X-RateLimit-Limit: expected 5, got %q", got)
		}
		if got := w.Header().Get("X-RateLimit-Remaining"); got != "4" {
			t.Errorf("X-RateLimit-Remaining: expected 4, got %q", got)
		}
		if w.Header().Get("X-RateLimit-Reset") == "" {
			t.Error("X-RateLimit-Reset: expected non-empty")
		}
	})

	t.Run("over budget returns 429 and blocks the handler", func(t *testing.T) {
		l := New(1, time.Minute)
		var handlerRan int
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerRan++
		})
		mw := l.Middleware(next)

		for i := 0; i < 2; i++ {
			r := httptest.NewRequest(http.MethodGet, "/deals", nil)
			r.RemoteAddr = "9.9.9.9:1234"
			w := httptest.NewRecorder()
			mw.ServeHTTP(w, r)

			if i == 1 {
				if w.Code != http.StatusTooManyRequests {
					t.Errorf("status: expected 429, got %d", w.Code)
				}
				expected := `{"message":"Too many requests, please try again later."}`
				if w.Body.String() != expected {
					t.Errorf("body: expected %q, got %q", expected, w.Body.String())
				}
			}
		}
		if handlerRan != 1 {
			t.Errorf("handler runs: expected 1, got %d", handlerRan)
		}
	})

	t.Run("same ip on different ports shares one budget", func(t *testing.T) {
		l := New(1, time.Minute)
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
		mw := l.Middleware(next)

		r1 := httptest.NewRequest(http.MethodGet, "/", nil)
		r1.RemoteAddr = "9.9.9.9:1111"
		mw.ServeHTTP(httptest.NewRecorder(), r1)

		r2 := httptest.NewRequest(http.MethodGet, "/", nil)
		r2.RemoteAddr = "9.9.9.9:2222"
		w := httptest.NewRecorder()
		mw.ServeHTTP(w, r2)

		if w.Code != http.StatusTooManyRequests {
			t.Errorf("status: expected 429 (shared budget per ip), got %d", w.Code)
		}
	})
}
