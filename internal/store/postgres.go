// Package store handles all database and cache interactions.
//
// postgres.go -- pgxpool connection setup and queries.
// Creates a connection pool at startup, shared across all handlers.
// All queries use parameterized statements (no string concatenation).
package store

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// The store used by the program to connect with the Postgres db
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates and returns a verified connection pool
// to PostgreSQL wrapped in a store and returns a ready-to-use store.
// Call once at startup from main.go...the returned store is safe for concurrent use.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	// Create a pool w/ database url, return if err
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	// Ping db to make sure connection works
	err = pool.Ping(ctx)
	if err != nil {
		return nil, err
	}

	return &PostgresStore{pool}, nil
}

// Close shuts down the connection pool and releases all resources.
// Supposed to call via defer in main.go after creating the store.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// --- users ---

// CreateLocalUser inserts a new user with email + password credentials.
// The caller has to generate the UUID v7 and Argon2id hash BEFORE calling this,
// and must normalize the email (trim + lowercase).
// Returns raw pgx error, handler inspects it for unique violations (duplicate email).
func (s *PostgresStore) CreateLocalUser(ctx context.Context, id uuid.UUID, name, email, passwordHash string) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO users (id, name, email, password_hash, auth_provider) VALUES ($1, $2, $3, $4, $5)",
		id, name, email, passwordHash, ProviderLocal)
	return err
}

// GetUserByEmail fetches a user by normalized email.
// Returns pgx.ErrNoRows if no such user exists.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, auth_provider, google_id, created_at
		   FROM users WHERE email = $1`,
		email,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.AuthProvider, &u.GoogleID, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SetUserGoogleID backfills the google_id column the first time an account
// signs in through Google. No-op if the column is already populated.
func (s *PostgresStore) SetUserGoogleID(ctx context.Context, id uuid.UUID, googleID string) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE users SET google_id = $2 WHERE id = $1 AND google_id IS NULL",
		id, googleID)
	return err
}

// --- deals ---

// CreateDeal inserts a new deal row scoped to its owner and returns the
// stored record. The database stamps created_at at insertion time.
func (s *PostgresStore) CreateDeal(ctx context.Context, d *Deal) (*Deal, error) {
	var out Deal
	err := s.pool.QueryRow(ctx,
		`INSERT INTO deals (id, brand_name, amount, deadline, description, status, user_email)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, brand_name, amount, deadline, description, status, user_email, created_at`,
		d.ID, d.BrandName, d.Amount, d.Deadline, d.Description, d.Status, d.UserEmail,
	).Scan(&out.ID, &out.BrandName, &out.Amount, &out.Deadline, &out.Description,
		&out.Status, &out.UserEmail, &out.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDeals returns every deal owned by ownerEmail, newest first.
// There is no unscoped listing -- cross-user visibility does not exist.
func (s *PostgresStore) ListDeals(ctx context.Context, ownerEmail string) ([]Deal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, brand_name, amount, deadline, description, status, user_email, created_at
		   FROM deals WHERE user_email = $1 ORDER BY created_at DESC`,
		ownerEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []Deal
	for rows.Next() {
		var d Deal
		if err := rows.Scan(&d.ID, &d.BrandName, &d.Amount, &d.Deadline, &d.Description,
			&d.Status, &d.UserEmail, &d.CreatedAt); err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// GetDealByID fetches a single deal with no ownership filter.
// Diagnostics only -- NOT an authorization point; mutating queries carry
// their own owner filter. Returns pgx.ErrNoRows if absent.
func (s *PostgresStore) GetDealByID(ctx context.Context, id uuid.UUID) (*Deal, error) {
	var d Deal
	err := s.pool.QueryRow(ctx,
		`SELECT id, brand_name, amount, deadline, description, status, user_email, created_at
		   FROM deals WHERE id = $1`,
		id,
	).Scan(&d.ID, &d.BrandName, &d.Amount, &d.Deadline, &d.Description,
		&d.Status, &d.UserEmail, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// UpdateDeal applies the non-nil patch fields to the deal, but only if it
// belongs to ownerEmail. Ownership check and mutation happen in the same
// statement so there is no check-then-act window. created_at is never touched.
// Returns pgx.ErrNoRows when the id doesn't exist or belongs to someone else.
func (s *PostgresStore) UpdateDeal(ctx context.Context, id uuid.UUID, patch DealPatch, ownerEmail string) (*Deal, error) {
	var d Deal
	err := s.pool.QueryRow(ctx,
		`UPDATE deals SET
			brand_name  = COALESCE($3, brand_name),
			amount      = COALESCE($4, amount),
			deadline    = COALESCE($5, deadline),
			description = COALESCE($6, description),
			status      = COALESCE($7, status)
		 WHERE id = $1 AND user_email = $2
		 RETURNING id, brand_name, amount, deadline, description, status, user_email, created_at`,
		id, ownerEmail, patch.BrandName, patch.Amount, patch.Deadline, patch.Description, patch.Status,
	).Scan(&d.ID, &d.BrandName, &d.Amount, &d.Deadline, &d.Description,
		&d.Status, &d.UserEmail, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteDeal removes the deal, but only if it belongs to ownerEmail.
// Same single-statement ownership filter as UpdateDeal.
// Returns pgx.ErrNoRows when nothing matched.
func (s *PostgresStore) DeleteDeal(ctx context.Context, id uuid.UUID, ownerEmail string) error {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM deals WHERE id = $1 AND user_email = $2",
		id, ownerEmail)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
