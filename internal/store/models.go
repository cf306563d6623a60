// models.go -- Shared domain types for the store package.
// Used by both Postgres (durable store) and Redis (cache layer).
package store

import (
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
)

// ErrCacheMiss is returned by GetExtraction when the key is not in Redis.
// Callers use errors.Is to distinguish a true miss from a Redis infrastructure failure.
var ErrCacheMiss = errors.New("cache miss")

// ErrCacheDisabled is returned by NoopCache when Redis is not configured.
// Callers use errors.Is to distinguish "not configured" from a real infrastructure failure.
var ErrCacheDisabled = errors.New("cache disabled")

// AuthProvider values stored in users.auth_provider.
const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

// User represents a row in the users table.
// Nullable columns are pointers — nil means SQL NULL.
// PasswordHash is nil for google-provisioned accounts.
type User struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash *string
	AuthProvider string
	GoogleID     *string
	CreatedAt    time.Time
}

// DealStatusPending is the status stamped on every newly ingested deal.
// Further statuses are user-managed through the update endpoint.
const DealStatusPending = "Pending"

// Deal represents a row in the deals table.
// Deadline is nil when the extraction engine found none.
// UserEmail is the sole ownership key; every read/update/delete filters on it.
type Deal struct {
	ID          uuid.UUID
	BrandName   string
	Amount      float64
	Deadline    *time.Time
	Description string
	Status      string
	UserEmail   string
	CreatedAt   time.Time
}

// DealPatch carries the mutable deal fields for an update.
// Nil fields are left untouched; CreatedAt is never patchable.
type DealPatch struct {
	BrandName   *string
	Amount      *float64
	Deadline    *time.Time
	Description *string
	Status      *string
}
