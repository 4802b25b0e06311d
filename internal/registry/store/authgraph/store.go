// Package authgraph owns the issuer-authorization relation.
//
// The relation is bidirectional (type → issuers and issuer → types) and both
// directions must always agree. Callers cannot touch one side alone: the port
// exposes only paired insert/remove, so the two views cannot drift no matter
// how the backend stores them.
package authgraph

import (
	"context"

	id "soulbound/pkg/domain"
)

// Graph is the persistence port for issuer/type authorization pairs.
type Graph interface {
	// Grant records that issuer may issue credentials of credType.
	// Returns sentinel.ErrConflict when the pair already exists. Both
	// directions are applied atomically.
	Grant(ctx context.Context, issuer id.Identity, credType id.CredentialType) error

	// Revoke removes the pair from both directions atomically. Returns
	// sentinel.ErrNotFound when the pair does not exist.
	Revoke(ctx context.Context, issuer id.Identity, credType id.CredentialType) error

	// IsAuthorized reports whether the pair exists.
	IsAuthorized(ctx context.Context, issuer id.Identity, credType id.CredentialType) (bool, error)

	// IssuersFor returns the identities authorized for credType.
	IssuersFor(ctx context.Context, credType id.CredentialType) ([]id.Identity, error)

	// TypesFor returns the types issuer is authorized for.
	TypesFor(ctx context.Context, issuer id.Identity) ([]id.CredentialType, error)
}
