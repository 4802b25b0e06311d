package authgraph

import (
	"context"
	"sync"

	id "soulbound/pkg/domain"
	"soulbound/pkg/platform/sentinel"
)

// InMemory implements Graph with two mirrored maps under one mutex. Every
// mutation updates both maps inside the same critical section, keeping the
// mirror consistent by construction.
type InMemory struct {
	mu            sync.RWMutex
	issuersByType map[id.CredentialType]map[id.Identity]struct{}
	typesByIssuer map[id.Identity]map[id.CredentialType]struct{}

	maxIssuersPerType int
}

// InMemoryOption configures an InMemory graph.
type InMemoryOption func(*InMemory)

// WithMaxIssuersPerType bounds the per-type issuer set. Zero means unbounded.
func WithMaxIssuersPerType(limit int) InMemoryOption {
	return func(g *InMemory) {
		g.maxIssuersPerType = limit
	}
}

// NewInMemory creates an empty authorization graph.
func NewInMemory(opts ...InMemoryOption) *InMemory {
	g := &InMemory{
		issuersByType: make(map[id.CredentialType]map[id.Identity]struct{}),
		typesByIssuer: make(map[id.Identity]map[id.CredentialType]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *InMemory) Grant(_ context.Context, issuer id.Identity, credType id.CredentialType) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	issuers := g.issuersByType[credType]
	if _, exists := issuers[issuer]; exists {
		return sentinel.ErrConflict
	}
	if g.maxIssuersPerType > 0 && len(issuers) >= g.maxIssuersPerType {
		return sentinel.ErrCapacity
	}

	if issuers == nil {
		issuers = make(map[id.Identity]struct{})
		g.issuersByType[credType] = issuers
	}
	issuers[issuer] = struct{}{}

	types := g.typesByIssuer[issuer]
	if types == nil {
		types = make(map[id.CredentialType]struct{})
		g.typesByIssuer[issuer] = types
	}
	types[credType] = struct{}{}

	return nil
}

func (g *InMemory) Revoke(_ context.Context, issuer id.Identity, credType id.CredentialType) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	issuers := g.issuersByType[credType]
	if _, exists := issuers[issuer]; !exists {
		return sentinel.ErrNotFound
	}

	// Remove the target issuer from both directions, not the caller: the
	// relation must shed exactly the (issuer, type) pair that was granted.
	delete(issuers, issuer)
	if len(issuers) == 0 {
		delete(g.issuersByType, credType)
	}
	types := g.typesByIssuer[issuer]
	delete(types, credType)
	if len(types) == 0 {
		delete(g.typesByIssuer, issuer)
	}

	return nil
}

func (g *InMemory) IsAuthorized(_ context.Context, issuer id.Identity, credType id.CredentialType) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, ok := g.issuersByType[credType][issuer]
	return ok, nil
}

func (g *InMemory) IssuersFor(_ context.Context, credType id.CredentialType) ([]id.Identity, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	issuers := make([]id.Identity, 0, len(g.issuersByType[credType]))
	for issuer := range g.issuersByType[credType] {
		issuers = append(issuers, issuer)
	}
	return issuers, nil
}

func (g *InMemory) TypesFor(_ context.Context, issuer id.Identity) ([]id.CredentialType, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	types := make([]id.CredentialType, 0, len(g.typesByIssuer[issuer]))
	for credType := range g.typesByIssuer[issuer] {
		types = append(types, credType)
	}
	return types, nil
}
