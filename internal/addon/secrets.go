// Package addon implements the signed handshake between the Gmail add-on
// and the ingestion endpoint: canonical payload signing on the sender side,
// multi-factor verification on the receiver side, and rotation of the
// shared secret that keys both.
package addon

import (
	"fmt"
	"sync"
)

// MinSecretLength is the minimum length of the shared add-on secret.
// Part of the operator contract: SetSecret and Rotate both enforce it.
const MinSecretLength = 32

// Secrets holds the current shared secret plus the previous one during a
// rotation grace period. Both verify inbound material; only current signs
// outbound. Read-heavy after startup, so an RWMutex -- rotation is a rare
// operator action and may take the write lock without contention concerns.
type Secrets struct {
	mu       sync.RWMutex
	current  string
	previous string
}

// NewSecrets builds a secret set from configuration. previous may be empty
// when no rotation is in flight. An empty current is representable (the
// verifier reports it as a server misconfiguration) so a bad deploy fails
// requests loudly instead of panicking at startup.
func NewSecrets(current, previous string) *Secrets {
	return &Secrets{current: current, previous: previous}
}

// Current returns the secret used for signing new outbound material.
func (s *Secrets) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Accepted returns every secret valid for verification: current first,
// then previous if a rotation grace period is active.
func (s *Secrets) Accepted() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []string{s.current}
	if s.previous != "" {
		out = append(out, s.previous)
	}
	return out
}

// Rotate swaps in a new current secret and moves the old one into the
// grace slot in a single atomic step. A second rotation evicts the old
// grace secret, ending its validity.
func (s *Secrets) Rotate(next string) error {
	if len(next) < MinSecretLength {
		return fmt.Errorf("secret must be at least %d characters", MinSecretLength)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previous = s.current
	s.current = next
	return nil
}
