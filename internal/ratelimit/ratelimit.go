// Package ratelimit implements a fixed-window in-process rate limiter.
//
// One counter per client key, reset lazily the next time the key is seen
// past its window boundary -- no background sweeper. Increment-and-check
// is a single read-modify-write under one mutex, so concurrent bursts
// from the same client never undercount. The map only grows with distinct
// client keys inside a window, which is bounded in practice by the
// front-proxy's connection limits.
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// entry is one client's counter for the current window.
type entry struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per key within a fixed window.
type Limiter struct {
	mu      sync.Mutex
	store   map[string]*entry
	max     int
	window  time.Duration
	timeNow func() time.Time // injectable clock for tests
}

// New returns a limiter allowing max requests per key per window.
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		store:   make(map[string]*entry),
		max:     max,
		window:  window,
		timeNow: time.Now,
	}
}

// Allow records one request for key and reports whether it is within
// policy, along with the remaining budget and the window reset time.
func (l *Limiter) Allow(key string) (allowed bool, remaining int, resetAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.timeNow()
	e, ok := l.store[key]
	if !ok || now.After(e.resetAt) {
		e = &entry{resetAt: now.Add(l.window)}
		l.store[key] = e
	}

	e.count++
	remaining = l.max - e.count
	if remaining < 0 {
		remaining = 0
	}
	return e.count <= l.max, remaining, e.resetAt
}

// Middleware applies the limiter per client IP and writes the
// X-RateLimit-* headers on every response. Over-budget requests get a
// 429 JSON body and never reach the next handler.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		allowed, remaining, resetAt := l.Allow(key)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.max))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", resetAt.UTC().Format(time.RFC3339))

		if !allowed {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"message":"Too many requests, please try again later."}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientKey extracts the bare client IP. chi's RealIP middleware has
// already rewritten RemoteAddr from X-Forwarded-For when present.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
