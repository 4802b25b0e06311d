package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"soulbound/internal/audit"
	"soulbound/internal/registry/models"
	"soulbound/internal/registry/store/authgraph"
	"soulbound/internal/registry/store/credential"
	id "soulbound/pkg/domain"
	dErrors "soulbound/pkg/domain-errors"
	"soulbound/pkg/requestcontext"
)

const (
	adminID    = id.Identity("registry-admin")
	issuerA    = id.Identity("university-a")
	issuerB    = id.Identity("university-b")
	holderX    = id.Identity("alice")
	typeDegree = id.CredentialType("degree")
	typeDAO    = id.CredentialType("dao-membership")
)

type RegistrySuite struct {
	suite.Suite
	registry *Registry
	creds    *credential.InMemory
	graph    *authgraph.InMemory
	sink     *audit.InMemoryStore
	now      time.Time
	ctx      context.Context
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.creds = credential.NewInMemory()
	s.graph = authgraph.NewInMemory()
	s.sink = audit.NewInMemoryStore()

	registry, err := New(adminID, s.creds, s.graph,
		WithAuditPublisher(audit.NewPublisher(s.sink)),
	)
	s.Require().NoError(err)
	s.registry = registry

	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

// at returns a context pinned to a specific clock, for exercising lazy expiry.
func (s *RegistrySuite) at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *RegistrySuite) grant(issuer id.Identity, credType id.CredentialType) {
	s.Require().NoError(s.registry.Grant(s.ctx, adminID, issuer, credType))
}

func (s *RegistrySuite) TestIssue() {
	s.grant(issuerA, typeDegree)

	s.Run("issues sequentially starting at 1", func() {
		first, err := s.registry.Issue(s.ctx, issuerA, holderX, typeDegree, "BSc 2025", nil)
		s.Require().NoError(err)
		s.Equal(id.CredentialID(1), first)

		second, err := s.registry.Issue(s.ctx, issuerA, holderX, typeDegree, "MSc 2027", nil)
		s.Require().NoError(err)
		s.Equal(id.CredentialID(2), second)

		cred, err := s.registry.Credential(s.ctx, first)
		s.Require().NoError(err)
		s.Equal(holderX, cred.Holder)
		s.Equal(issuerA, cred.Issuer)
		s.Equal(typeDegree, cred.Type)
		s.Equal(models.StatusActive, cred.Status)
		s.Equal(s.now, cred.IssuedAt)
		s.NotEqual(cred.Holder, cred.Issuer)
	})

	s.Run("unauthorized issuer consumes no id", func() {
		before, err := s.registry.NextID(s.ctx)
		s.Require().NoError(err)

		_, err = s.registry.Issue(s.ctx, issuerB, holderX, typeDegree, "fake", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))

		after, err := s.registry.NextID(s.ctx)
		s.Require().NoError(err)
		s.Equal(before, after)
	})

	s.Run("self issuance rejected", func() {
		_, err := s.registry.Issue(s.ctx, issuerA, issuerA, typeDegree, "self", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidRecipient))
	})

	s.Run("empty metadata rejected without state change", func() {
		before, err := s.registry.NextID(s.ctx)
		s.Require().NoError(err)

		_, err = s.registry.Issue(s.ctx, issuerA, holderX, typeDegree, "", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeEmptyMetadata))

		after, err := s.registry.NextID(s.ctx)
		s.Require().NoError(err)
		s.Equal(before, after)

		creds, err := s.registry.CredentialsOf(s.ctx, holderX)
		s.Require().NoError(err)
		for _, cred := range creds {
			s.NotEmpty(cred.Metadata)
		}
	})

	s.Run("expiry at or before now rejected", func() {
		_, err := s.registry.Issue(s.ctx, issuerA, holderX, typeDegree, "expired", &s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeCredentialExpired))

		past := s.now.Add(-time.Hour)
		_, err = s.registry.Issue(s.ctx, issuerA, holderX, typeDegree, "expired", &past)
		s.True(dErrors.HasCode(err, dErrors.CodeCredentialExpired))
	})

	s.Run("type counter tracks issuance", func() {
		count, err := s.registry.IssuedCount(s.ctx, typeDegree)
		s.Require().NoError(err)
		s.Equal(uint64(2), count)

		count, err = s.registry.IssuedCount(s.ctx, typeDAO)
		s.Require().NoError(err)
		s.Zero(count)
	})
}

func (s *RegistrySuite) TestIssue_HolderIndexBound() {
	bounded := credential.NewInMemory(credential.WithMaxPerHolder(1))
	registry, err := New(adminID, bounded, s.graph)
	s.Require().NoError(err)
	s.Require().NoError(registry.Grant(s.ctx, adminID, issuerA, typeDegree))

	_, err = registry.Issue(s.ctx, issuerA, holderX, typeDegree, "first", nil)
	s.Require().NoError(err)

	_, err = registry.Issue(s.ctx, issuerA, holderX, typeDegree, "second", nil)
	s.True(dErrors.HasCode(err, dErrors.CodeIndexOverflow))

	// The whole operation failed: no id consumed.
	next, err := registry.NextID(s.ctx)
	s.Require().NoError(err)
	s.Equal(id.CredentialID(2), next)
}

func (s *RegistrySuite) TestRevoke() {
	s.grant(issuerA, typeDegree)
	credID, err := s.registry.Issue(s.ctx, issuerA, holderX, typeDegree, "BSc 2025", nil)
	s.Require().NoError(err)

	s.Run("unknown id", func() {
		err := s.registry.Revoke(s.ctx, issuerA, 999, "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("only the original issuer may revoke", func() {
		// A grant for the same type is not enough.
		s.grant(issuerB, typeDegree)
		err := s.registry.Revoke(s.ctx, issuerB, credID, "not mine")
		s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))
	})

	s.Run("issuer revokes and status flips", func() {
		s.Require().NoError(s.registry.Revoke(s.ctx, issuerA, credID, "issued in error"))

		cred, err := s.registry.Credential(s.ctx, credID)
		s.Require().NoError(err)
		s.Equal(models.StatusRevoked, cred.Status)
	})

	s.Run("second revoke fails", func() {
		err := s.registry.Revoke(s.ctx, issuerA, credID, "again")
		s.True(dErrors.HasCode(err, dErrors.CodeCredentialRevoked))
	})

	s.Run("reason lands in the audit trail, not on the record", func() {
		cred, err := s.registry.Credential(s.ctx, credID)
		s.Require().NoError(err)
		s.Equal("BSc 2025", cred.Metadata)

		var revoked []audit.Event
		for _, event := range s.sink.Events() {
			if event.Action == audit.ActionCredentialRevoked {
				revoked = append(revoked, event)
			}
		}
		s.Require().NotEmpty(revoked)
		s.Equal("issued in error", revoked[0].Reason)
		s.Equal(uint64(credID), revoked[0].CredentialID)
	})
}

func (s *RegistrySuite) TestGrants() {
	s.Run("grant then authorized", func() {
		s.Require().NoError(s.registry.Grant(s.ctx, adminID, issuerA, typeDegree))

		authorized, err := s.registry.IsAuthorized(s.ctx, issuerA, typeDegree)
		s.Require().NoError(err)
		s.True(authorized)
	})

	s.Run("duplicate grant", func() {
		err := s.registry.Grant(s.ctx, adminID, issuerA, typeDegree)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})

	s.Run("non-admin cannot grant", func() {
		err := s.registry.Grant(s.ctx, issuerA, issuerB, typeDegree)
		s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))

		authorized, err := s.registry.IsAuthorized(s.ctx, issuerB, typeDegree)
		s.Require().NoError(err)
		s.False(authorized)
	})

	s.Run("revoke-grant removes the target issuer, both directions", func() {
		s.grant(issuerB, typeDegree)
		s.grant(issuerA, typeDAO)

		s.Require().NoError(s.registry.RevokeGrant(s.ctx, adminID, issuerA, typeDegree))

		authorized, err := s.registry.IsAuthorized(s.ctx, issuerA, typeDegree)
		s.Require().NoError(err)
		s.False(authorized)

		// The other issuer and the issuer's other type are untouched.
		authorized, err = s.registry.IsAuthorized(s.ctx, issuerB, typeDegree)
		s.Require().NoError(err)
		s.True(authorized)

		types, err := s.registry.TypesFor(s.ctx, issuerA)
		s.Require().NoError(err)
		s.Equal([]id.CredentialType{typeDAO}, types)

		issuers, err := s.registry.IssuersFor(s.ctx, typeDegree)
		s.Require().NoError(err)
		s.Equal([]id.Identity{issuerB}, issuers)
	})

	s.Run("revoke-grant of absent pair", func() {
		err := s.registry.RevokeGrant(s.ctx, adminID, issuerA, typeDegree)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("non-admin cannot revoke grants", func() {
		err := s.registry.RevokeGrant(s.ctx, issuerB, issuerB, typeDegree)
		s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))
	})
}

func (s *RegistrySuite) TestVerify() {
	s.grant(issuerA, typeDegree)

	s.Run("holder without credentials", func() {
		valid, err := s.registry.Verify(s.ctx, holderX, typeDegree)
		s.Require().NoError(err)
		s.False(valid)
	})

	s.Run("lifecycle scenario: issue, verify, revoke, verify", func() {
		credID, err := s.registry.Issue(s.ctx, issuerA, holderX, typeDegree, "BSc 2025", nil)
		s.Require().NoError(err)

		valid, err := s.registry.Verify(s.ctx, holderX, typeDegree)
		s.Require().NoError(err)
		s.True(valid)

		s.Require().NoError(s.registry.Revoke(s.ctx, issuerA, credID, "rescinded"))

		valid, err = s.registry.Verify(s.ctx, holderX, typeDegree)
		s.Require().NoError(err)
		s.False(valid)
	})

	s.Run("another valid credential of the same type keeps verification true", func() {
		survivor, err := s.registry.Issue(s.ctx, issuerA, holderX, typeDegree, "MSc 2027", nil)
		s.Require().NoError(err)
		doomed, err := s.registry.Issue(s.ctx, issuerA, holderX, typeDegree, "PhD 2030", nil)
		s.Require().NoError(err)

		s.Require().NoError(s.registry.Revoke(s.ctx, issuerA, doomed, ""))

		valid, err := s.registry.Verify(s.ctx, holderX, typeDegree)
		s.Require().NoError(err)
		s.True(valid)

		s.Require().NoError(s.registry.Revoke(s.ctx, issuerA, survivor, ""))
		valid, err = s.registry.Verify(s.ctx, holderX, typeDegree)
		s.Require().NoError(err)
		s.False(valid)
	})

	s.Run("type mismatch does not verify", func() {
		_, err := s.registry.Issue(s.ctx, issuerA, holderX, typeDegree, "BA 2026", nil)
		s.Require().NoError(err)

		valid, err := s.registry.Verify(s.ctx, holderX, typeDAO)
		s.Require().NoError(err)
		s.False(valid)
	})
}

// TestVerify_LazyExpiry pins the clock on either side of the expiry boundary:
// the same credential verifies true then false with no mutation in between.
func (s *RegistrySuite) TestVerify_LazyExpiry() {
	s.grant(issuerA, typeDegree)

	expiry := s.now.Add(24 * time.Hour)
	credID, err := s.registry.Issue(s.ctx, issuerA, holderX, typeDegree, "visa", &expiry)
	s.Require().NoError(err)

	valid, err := s.registry.Verify(s.at(expiry.Add(-time.Second)), holderX, typeDegree)
	s.Require().NoError(err)
	s.True(valid)

	valid, err = s.registry.Verify(s.at(expiry), holderX, typeDegree)
	s.Require().NoError(err)
	s.False(valid)

	valid, err = s.registry.Verify(s.at(expiry.Add(time.Second)), holderX, typeDegree)
	s.Require().NoError(err)
	s.False(valid)

	// Expiry is derived, never written back: the stored record is untouched.
	cred, err := s.registry.Credential(s.ctx, credID)
	s.Require().NoError(err)
	s.Equal(models.StatusActive, cred.Status)
}

func (s *RegistrySuite) TestTransfer() {
	s.grant(issuerA, typeDegree)
	credID, err := s.registry.Issue(s.ctx, issuerA, holderX, typeDegree, "BSc 2025", nil)
	s.Require().NoError(err)

	s.Run("bare transfer always fails", func() {
		err := s.registry.Transfer(s.ctx, holderX, credID, issuerB)
		s.True(dErrors.HasCode(err, dErrors.CodeTransferNotAllowed))
	})

	s.Run("transfer with memo always fails", func() {
		err := s.registry.TransferWithMemo(s.ctx, issuerA, credID, issuerB, "please")
		s.True(dErrors.HasCode(err, dErrors.CodeTransferNotAllowed))
	})

	s.Run("transfer of a nonexistent credential still fails the same way", func() {
		err := s.registry.Transfer(s.ctx, holderX, 999, issuerB)
		s.True(dErrors.HasCode(err, dErrors.CodeTransferNotAllowed))
	})

	s.Run("ownership state is untouched", func() {
		cred, err := s.registry.Credential(s.ctx, credID)
		s.Require().NoError(err)
		s.Equal(holderX, cred.Holder)

		creds, err := s.registry.CredentialsOf(s.ctx, issuerB)
		s.Require().NoError(err)
		s.Empty(creds)
	})
}

// TestConcurrentIssue drives concurrent issuance through the write lock and
// checks every assigned id is unique and the counter advanced exactly once
// per success.
func (s *RegistrySuite) TestConcurrentIssue() {
	s.grant(issuerA, typeDegree)

	const goroutines = 32
	ids := make([]id.CredentialID, goroutines)
	var wg sync.WaitGroup
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assigned, err := s.registry.Issue(s.ctx, issuerA, holderX, typeDegree, "concurrent", nil)
			s.NoError(err)
			ids[i] = assigned
		}()
	}
	wg.Wait()

	seen := make(map[id.CredentialID]struct{}, goroutines)
	for _, assigned := range ids {
		s.NotZero(assigned)
		_, dup := seen[assigned]
		s.False(dup, "credential id %d assigned twice", assigned)
		seen[assigned] = struct{}{}
	}

	next, err := s.registry.NextID(s.ctx)
	s.Require().NoError(err)
	s.Equal(id.CredentialID(goroutines+1), next)
}

func (s *RegistrySuite) TestNew_Validation() {
	_, err := New("", s.creds, s.graph)
	s.Error(err)

	_, err = New(adminID, nil, s.graph)
	s.Error(err)

	_, err = New(adminID, s.creds, nil)
	s.Error(err)
}
