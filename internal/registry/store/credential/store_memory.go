package credential

import (
	"context"
	"sync"

	"soulbound/internal/registry/models"
	id "soulbound/pkg/domain"
	"soulbound/pkg/platform/sentinel"
)

// InMemory implements Store with maps guarded by a single mutex. It is the
// default backend; use Postgres for state that must outlive the process.
type InMemory struct {
	mu           sync.RWMutex
	credentials  map[id.CredentialID]*models.Credential
	byHolder     map[id.Identity][]id.CredentialID
	issuedByType map[id.CredentialType]uint64
	nextID       uint64

	maxPerHolder int
}

// InMemoryOption configures an InMemory store.
type InMemoryOption func(*InMemory)

// WithMaxPerHolder bounds the holder index. Zero means unbounded.
func WithMaxPerHolder(limit int) InMemoryOption {
	return func(s *InMemory) {
		s.maxPerHolder = limit
	}
}

// NewInMemory creates an empty in-memory credential store. The first
// credential gets id 1.
func NewInMemory(opts ...InMemoryOption) *InMemory {
	s := &InMemory{
		credentials:  make(map[id.CredentialID]*models.Credential),
		byHolder:     make(map[id.Identity][]id.CredentialID),
		issuedByType: make(map[id.CredentialType]uint64),
		nextID:       1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) Create(_ context.Context, cred *models.Credential) (id.CredentialID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Capacity is checked before the id is allocated so a rejected create
	// consumes nothing.
	if s.maxPerHolder > 0 && len(s.byHolder[cred.Holder]) >= s.maxPerHolder {
		return 0, sentinel.ErrCapacity
	}

	assigned := id.CredentialID(s.nextID)
	s.nextID++

	stored := *cred
	stored.ID = assigned
	s.credentials[assigned] = &stored
	s.byHolder[stored.Holder] = append(s.byHolder[stored.Holder], assigned)
	s.issuedByType[stored.Type]++

	return assigned, nil
}

func (s *InMemory) Get(_ context.Context, credID id.CredentialID) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.credentials[credID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *cred
	return &copied, nil
}

func (s *InMemory) ListByHolder(_ context.Context, holder id.Identity) ([]*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byHolder[holder]
	creds := make([]*models.Credential, 0, len(ids))
	for _, credID := range ids {
		copied := *s.credentials[credID]
		creds = append(creds, &copied)
	}
	return creds, nil
}

func (s *InMemory) Revoke(_ context.Context, credID id.CredentialID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.credentials[credID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if cred.Status == models.StatusRevoked {
		return sentinel.ErrInvalidState
	}
	cred.ApplyRevocation()
	return nil
}

func (s *InMemory) NextID(_ context.Context) (id.CredentialID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return id.CredentialID(s.nextID), nil
}

func (s *InMemory) IssuedCount(_ context.Context, credType id.CredentialType) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.issuedByType[credType], nil
}
