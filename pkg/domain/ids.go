// Package domain defines the typed identifiers shared across the registry.
//
// Identities arrive pre-authenticated from the host (HTTP middleware, direct
// library callers, tests). Parsing here enforces trust-boundary invariants
// only; it never decides who an identity belongs to.
package domain

import (
	"strconv"
	"strings"

	dErrors "soulbound/pkg/domain-errors"
)

// Identity is an authenticated principal: a holder, an issuer, or the
// registry administrator. The registry treats it as opaque.
type Identity string

// CredentialID is a sequentially assigned credential identifier. IDs start
// at 1 and are never reused.
type CredentialID uint64

// CredentialType tags a credential category, e.g. "degree" or
// "dao-membership".
type CredentialType string

const maxCredentialTypeLen = 64

// ParseIdentity validates an identity at a trust boundary.
func ParseIdentity(raw string) (Identity, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity cannot be empty")
	}
	return Identity(trimmed), nil
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool { return i == "" }

func (i Identity) String() string { return string(i) }

// ParseCredentialID validates a credential id at a trust boundary.
func ParseCredentialID(raw string) (CredentialID, error) {
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "credential id must be a positive integer")
	}
	if n == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "credential id must be a positive integer")
	}
	return CredentialID(n), nil
}

func (c CredentialID) String() string { return strconv.FormatUint(uint64(c), 10) }

// ParseCredentialType validates a credential type tag at a trust boundary.
func ParseCredentialType(raw string) (CredentialType, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "credential type cannot be empty")
	}
	if len(trimmed) > maxCredentialTypeLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "credential type must be 64 characters or less")
	}
	return CredentialType(trimmed), nil
}

func (t CredentialType) String() string { return string(t) }
