package models

import (
	"time"

	id "soulbound/pkg/domain"
	dErrors "soulbound/pkg/domain-errors"
)

// CredentialStatus is the stored lifecycle state of a credential.
//
// Expiry is deliberately NOT a status: whether a credential has expired is
// derived from ExpiresAt and the caller-supplied clock at query time, never
// written back. A stored "expired" state would be a second source of truth
// that can drift from the clock.
type CredentialStatus string

const (
	StatusActive  CredentialStatus = "active"
	StatusRevoked CredentialStatus = "revoked"
)

// Credential is a non-transferable attestation bound to a holder identity.
//
// Invariants:
//   - ID is assigned sequentially by the store, starting at 1, never reused
//   - Holder != Issuer (a party cannot attest to itself)
//   - Holder, Issuer, Type, Metadata, IssuedAt, ExpiresAt are immutable
//   - Status transitions active → revoked exactly once, never back
//   - The credential is never deleted; revocation and expiry are visibility
//     changes, not removals
type Credential struct {
	ID        id.CredentialID   `json:"id"`
	Holder    id.Identity       `json:"holder"`
	Issuer    id.Identity       `json:"issuer"`
	Type      id.CredentialType `json:"credential_type"`
	Metadata  string            `json:"metadata"`
	IssuedAt  time.Time         `json:"issued_at"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	Status    CredentialStatus  `json:"status"`
}

// New validates issuance-time invariants and builds an active credential.
// The ID is zero until the store allocates one.
func New(holder, issuer id.Identity, credType id.CredentialType, metadata string, issuedAt time.Time, expiresAt *time.Time) (*Credential, error) {
	if holder == issuer {
		return nil, dErrors.New(dErrors.CodeInvalidRecipient, "issuer cannot issue a credential to itself")
	}
	if metadata == "" {
		return nil, dErrors.New(dErrors.CodeEmptyMetadata, "credential metadata cannot be empty")
	}
	if expiresAt != nil && !expiresAt.After(issuedAt) {
		return nil, dErrors.New(dErrors.CodeCredentialExpired, "expiry must be in the future")
	}
	return &Credential{
		Holder:    holder,
		Issuer:    issuer,
		Type:      credType,
		Metadata:  metadata,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Status:    StatusActive,
	}, nil
}

// ValidAt is the pure validity predicate: active and not past expiry.
// Two calls with different clocks may disagree without any state change in
// between; that is the contract, not a bug.
func (c *Credential) ValidAt(now time.Time) bool {
	if c.Status != StatusActive {
		return false
	}
	if c.ExpiresAt == nil {
		return true
	}
	return c.ExpiresAt.After(now)
}

// CanRevoke checks whether caller may revoke this credential. Only the exact
// identity that issued it may revoke; a later grant for the same type confers
// no power over credentials it did not issue.
func (c *Credential) CanRevoke(caller id.Identity) error {
	if caller != c.Issuer {
		return dErrors.New(dErrors.CodeNotAuthorized, "only the original issuer may revoke a credential")
	}
	if c.Status == StatusRevoked {
		return dErrors.New(dErrors.CodeCredentialRevoked, "credential is already revoked")
	}
	return nil
}

// ApplyRevocation flips the status. Call CanRevoke first.
func (c *Credential) ApplyRevocation() {
	c.Status = StatusRevoked
}
