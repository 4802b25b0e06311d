// Package credential persists credential records, the per-holder index, and
// the sequential id counter.
package credential

import (
	"context"

	"soulbound/internal/registry/models"
	id "soulbound/pkg/domain"
)

// Store is the persistence port for credential records.
//
// Create must be all-or-nothing: a failed create consumes no id and leaves
// every index untouched. ListByHolder returns credentials in insertion order;
// revoked and expired credentials stay listed because issuance into the
// holder index happens exactly once and is never undone.
type Store interface {
	// Create allocates the next sequential id, stores the record, and
	// appends it to the holder's index. Returns sentinel.ErrCapacity if a
	// bounded holder index is full.
	Create(ctx context.Context, cred *models.Credential) (id.CredentialID, error)

	// Get returns the credential or sentinel.ErrNotFound.
	Get(ctx context.Context, credID id.CredentialID) (*models.Credential, error)

	// ListByHolder returns the holder's credentials in insertion order.
	// A holder with no credentials yields an empty slice, not an error.
	ListByHolder(ctx context.Context, holder id.Identity) ([]*models.Credential, error)

	// Revoke flips the credential's status to revoked. Returns
	// sentinel.ErrNotFound for unknown ids and sentinel.ErrInvalidState
	// when the credential is already revoked.
	Revoke(ctx context.Context, credID id.CredentialID) error

	// NextID returns the id the next successful Create will assign.
	NextID(ctx context.Context) (id.CredentialID, error)

	// IssuedCount returns how many credentials of the type were ever
	// issued, regardless of their current validity.
	IssuedCount(ctx context.Context, credType id.CredentialType) (uint64, error)
}
