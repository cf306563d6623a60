// stores.go
//
// Shared mock implementations of the auth/deals store interfaces plus a
// stub extraction model and cache. Imported by test files across packages
// to avoid duplicate mock definitions.
package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sponsoai/dealdesk/internal/store"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// MockStore implements auth.Store and deals.Store for tests.
//
// Always stateful...Users and Deals are maps, like a real store.
// Use *Err fields to inject errors for specific operations.
// Missing rows return pgx.ErrNoRows, matching *store.PostgresStore.
type MockStore struct {
	// Error injection...zero value means no error
	CreateLocalUserErr error
	GetUserByEmailErr  error
	SetUserGoogleIDErr error
	CreateDealErr      error
	ListDealsErr       error
	GetDealByIDErr     error
	UpdateDealErr      error
	DeleteDealErr      error

	Users map[string]*store.User    // keyed by normalized email
	Deals map[uuid.UUID]*store.Deal // keyed by deal id

	mu sync.Mutex
}

// NewMockStore returns a MockStore seeded with the given users, indexed by email.
func NewMockStore(users ...*store.User) *MockStore {
	ms := &MockStore{
		Users: make(map[string]*store.User),
		Deals: make(map[uuid.UUID]*store.Deal),
	}
	for _, u := range users {
		ms.Users[u.Email] = u
	}
	return ms
}

func (m *MockStore) CreateLocalUser(_ context.Context, id uuid.UUID, name, email, passwordHash string) error {
	if m.CreateLocalUserErr != nil {
		return m.CreateLocalUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Users[email] = &store.User{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: &passwordHash,
		AuthProvider: store.ProviderLocal,
	}
	return nil
}

func (m *MockStore) GetUserByEmail(_ context.Context, email string) (*store.User, error) {
	if m.GetUserByEmailErr != nil {
		return nil, m.GetUserByEmailErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[email]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return u, nil
}

func (m *MockStore) SetUserGoogleID(_ context.Context, id uuid.UUID, googleID string) error {
	if m.SetUserGoogleIDErr != nil {
		return m.SetUserGoogleIDErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.ID == id && u.GoogleID == nil {
			g := googleID
			u.GoogleID = &g
		}
	}
	return nil
}

func (m *MockStore) CreateDeal(_ context.Context, d *store.Deal) (*store.Deal, error) {
	if m.CreateDealErr != nil {
		return nil, m.CreateDealErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.Deals[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *MockStore) ListDeals(_ context.Context, ownerEmail string) ([]store.Deal, error) {
	if m.ListDealsErr != nil {
		return nil, m.ListDealsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Deal
	for _, d := range m.Deals {
		if d.UserEmail == ownerEmail {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *MockStore) GetDealByID(_ context.Context, id uuid.UUID) (*store.Deal, error) {
	if m.GetDealByIDErr != nil {
		return nil, m.GetDealByIDErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.Deals[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (m *MockStore) UpdateDeal(_ context.Context, id uuid.UUID, patch store.DealPatch, ownerEmail string) (*store.Deal, error) {
	if m.UpdateDealErr != nil {
		return nil, m.UpdateDealErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.Deals[id]
	if !ok || d.UserEmail != ownerEmail {
		return nil, pgx.ErrNoRows
	}
	if patch.BrandName != nil {
		d.BrandName = *patch.BrandName
	}
	if patch.Amount != nil {
		d.Amount = *patch.Amount
	}
	if patch.Deadline != nil {
		t := *patch.Deadline
		d.Deadline = &t
	}
	if patch.Description != nil {
		d.Description = *patch.Description
	}
	if patch.Status != nil {
		d.Status = *patch.Status
	}
	cp := *d
	return &cp, nil
}

func (m *MockStore) DeleteDeal(_ context.Context, id uuid.UUID, ownerEmail string) error {
	if m.DeleteDealErr != nil {
		return m.DeleteDealErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.Deals[id]
	if !ok || d.UserEmail != ownerEmail {
		return pgx.ErrNoRows
	}
	delete(m.Deals, id)
	return nil
}

// StubModel implements extract.Model with a fixed response or injected error.
type StubModel struct {
	Response string
	Err      error

	mu      sync.Mutex
	Prompts []string // every prompt passed to Generate, in order
}

func (s *StubModel) Generate(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.Prompts = append(s.Prompts, prompt)
	s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	return s.Response, nil
}

// MockCache implements extract.Cache in memory, keyed by content hash.
// Use *Err fields to inject errors; misses return store.ErrCacheMiss.
type MockCache struct {
	GetErr error
	SetErr error

	mu      sync.Mutex
	entries map[string][]byte
}

func NewMockCache() *MockCache {
	return &MockCache{entries: make(map[string][]byte)}
}

func (c *MockCache) GetExtraction(_ context.Context, contentHash string, out any) error {
	if c.GetErr != nil {
		return c.GetErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[contentHash]
	if !ok {
		return store.ErrCacheMiss
	}
	return json.Unmarshal(v, out)
}

func (c *MockCache) SetExtraction(_ context.Context, contentHash string, result any) error {
	if c.SetErr != nil {
		return c.SetErr
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[contentHash] = payload
	return nil
}
