// Package service implements the registry operations: issuance, revocation,
// issuer authorization, and holder verification.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"soulbound/internal/audit"
	"soulbound/internal/registry/metrics"
	"soulbound/internal/registry/models"
	"soulbound/internal/registry/store/authgraph"
	"soulbound/internal/registry/store/credential"
	id "soulbound/pkg/domain"
	dErrors "soulbound/pkg/domain-errors"
	"soulbound/pkg/platform/sentinel"
	"soulbound/pkg/requestcontext"
)

// Type aliases for shared interfaces.
type (
	CredentialStore = credential.Store
	Graph           = authgraph.Graph
)

// AuditPublisher records registry events. Audit failures never fail the
// operation that produced them.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Registry is the single owner of all credential and authorization state.
//
// Mutating operations (Issue, Revoke, Grant, RevokeGrant) are serialized by
// one write lock so multi-index updates apply all-or-nothing. Queries take
// the read lock: they run concurrently with each other but never observe a
// half-applied mutation.
type Registry struct {
	admin       id.Identity
	credentials CredentialStore
	grants      Graph

	mu sync.RWMutex

	logger  *slog.Logger
	auditor AuditPublisher
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(r *Registry) {
		r.auditor = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// New constructs a Registry. The admin identity is fixed here and never
// changes for the lifetime of the instance.
func New(admin id.Identity, credentials CredentialStore, grants Graph, opts ...Option) (*Registry, error) {
	if admin.IsZero() {
		return nil, fmt.Errorf("admin identity is required")
	}
	if credentials == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if grants == nil {
		return nil, fmt.Errorf("authorization graph is required")
	}

	r := &Registry{
		admin:       admin,
		credentials: credentials,
		grants:      grants,
		logger:      slog.Default(),
		tracer:      otel.Tracer("soulbound/registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Issue creates a credential for recipient. The caller must hold a grant for
// credType, may not issue to itself, must supply non-empty metadata, and any
// expiry must lie in the future of the request clock. A failed issue consumes
// no id and touches no index.
func (r *Registry) Issue(ctx context.Context, caller, recipient id.Identity, credType id.CredentialType, metadata string, expiresAt *time.Time) (id.CredentialID, error) {
	ctx, span := r.tracer.Start(ctx, "registry.Issue")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	authorized, err := r.grants.IsAuthorized(ctx, caller, credType)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check issuer authorization")
	}
	if !authorized {
		return 0, r.rejectIssue(dErrors.Newf(dErrors.CodeNotAuthorized, "%s is not an authorized issuer for type %q", caller, credType))
	}

	cred, err := models.New(recipient, caller, credType, metadata, requestcontext.Now(ctx), expiresAt)
	if err != nil {
		return 0, r.rejectIssue(err)
	}

	assigned, err := r.credentials.Create(ctx, cred)
	if err != nil {
		if errors.Is(err, sentinel.ErrCapacity) {
			return 0, r.rejectIssue(dErrors.Newf(dErrors.CodeIndexOverflow, "holder %s has reached the credential limit", recipient))
		}
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store credential")
	}

	if r.metrics != nil {
		r.metrics.IncrementIssued(credType.String())
	}
	r.emitAudit(ctx, audit.Event{
		Action:         audit.ActionCredentialIssued,
		Actor:          caller.String(),
		CredentialID:   uint64(assigned),
		CredentialType: credType.String(),
		Holder:         recipient.String(),
		Issuer:         caller.String(),
	})
	r.logger.Info("credential issued",
		"credential_id", assigned,
		"credential_type", credType,
		"issuer", caller,
		"holder", recipient,
	)
	return assigned, nil
}

// Revoke flips a credential to revoked. Only the exact identity that issued
// the credential may revoke it; a grant for the same type is not enough. The
// reason is emitted as an audit event and deliberately not persisted on the
// record.
func (r *Registry) Revoke(ctx context.Context, caller id.Identity, credID id.CredentialID, reason string) error {
	ctx, span := r.tracer.Start(ctx, "registry.Revoke")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	cred, err := r.credentials.Get(ctx, credID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "credential %d does not exist", credID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	if err := cred.CanRevoke(caller); err != nil {
		return err
	}

	if err := r.credentials.Revoke(ctx, credID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke credential")
	}

	if r.metrics != nil {
		r.metrics.IncrementRevoked()
	}
	r.emitAudit(ctx, audit.Event{
		Action:         audit.ActionCredentialRevoked,
		Actor:          caller.String(),
		CredentialID:   uint64(credID),
		CredentialType: cred.Type.String(),
		Holder:         cred.Holder.String(),
		Issuer:         cred.Issuer.String(),
		Reason:         reason,
	})
	r.logger.Info("credential revoked",
		"credential_id", credID,
		"issuer", caller,
		"reason", reason,
	)
	return nil
}

// Grant authorizes issuer to issue credentials of credType. Admin only.
func (r *Registry) Grant(ctx context.Context, caller, issuer id.Identity, credType id.CredentialType) error {
	ctx, span := r.tracer.Start(ctx, "registry.Grant")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.admin {
		return dErrors.New(dErrors.CodeNotAuthorized, "only the registry administrator may manage grants")
	}

	if err := r.grants.Grant(ctx, issuer, credType); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			return dErrors.Newf(dErrors.CodeAlreadyExists, "%s is already authorized for type %q", issuer, credType)
		case errors.Is(err, sentinel.ErrCapacity):
			return dErrors.Newf(dErrors.CodeIndexOverflow, "type %q has reached the issuer limit", credType)
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store grant")
		}
	}

	if r.metrics != nil {
		r.metrics.IncrementGrants()
	}
	r.emitAudit(ctx, audit.Event{
		Action:         audit.ActionIssuerGranted,
		Actor:          caller.String(),
		CredentialType: credType.String(),
		Issuer:         issuer.String(),
	})
	r.logger.Info("issuer granted", "issuer", issuer, "credential_type", credType)
	return nil
}

// RevokeGrant removes issuer's authorization for credType from both sides of
// the relation. Admin only. The target is always the issuer argument, never
// the caller.
func (r *Registry) RevokeGrant(ctx context.Context, caller, issuer id.Identity, credType id.CredentialType) error {
	ctx, span := r.tracer.Start(ctx, "registry.RevokeGrant")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.admin {
		return dErrors.New(dErrors.CodeNotAuthorized, "only the registry administrator may manage grants")
	}

	if err := r.grants.Revoke(ctx, issuer, credType); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "%s holds no grant for type %q", issuer, credType)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove grant")
	}

	if r.metrics != nil {
		r.metrics.DecrementGrants()
	}
	r.emitAudit(ctx, audit.Event{
		Action:         audit.ActionGrantRevoked,
		Actor:          caller.String(),
		CredentialType: credType.String(),
		Issuer:         issuer.String(),
	})
	r.logger.Info("grant revoked", "issuer", issuer, "credential_type", credType)
	return nil
}

// IsAuthorized reports whether issuer currently holds a grant for credType.
func (r *Registry) IsAuthorized(ctx context.Context, issuer id.Identity, credType id.CredentialType) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	authorized, err := r.grants.IsAuthorized(ctx, issuer, credType)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check issuer authorization")
	}
	return authorized, nil
}

// Verify reports whether holder owns at least one currently valid credential
// of credType. The scan walks the holder's credentials in insertion order and
// short-circuits on the first valid match. Validity is evaluated against the
// request clock; nothing is written back, so the same credential can verify
// true now and false after its expiry passes with no intervening mutation.
func (r *Registry) Verify(ctx context.Context, holder id.Identity, credType id.CredentialType) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "registry.Verify")
	defer span.End()

	r.mu.RLock()
	defer r.mu.RUnlock()

	creds, err := r.credentials.ListByHolder(ctx, holder)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list holder credentials")
	}

	now := requestcontext.Now(ctx)
	valid := false
	for _, cred := range creds {
		if cred.Type == credType && cred.ValidAt(now) {
			valid = true
			break
		}
	}

	if r.metrics != nil {
		r.metrics.IncrementVerifications(valid)
	}
	return valid, nil
}

// Transfer always fails: credentials are bound to their holder. No state is
// read or written.
func (r *Registry) Transfer(ctx context.Context, caller id.Identity, credID id.CredentialID, recipient id.Identity) error {
	return r.rejectTransfer(ctx, caller, credID, recipient, "")
}

// TransferWithMemo behaves exactly like Transfer; the memo changes nothing.
func (r *Registry) TransferWithMemo(ctx context.Context, caller id.Identity, credID id.CredentialID, recipient id.Identity, memo string) error {
	return r.rejectTransfer(ctx, caller, credID, recipient, memo)
}

func (r *Registry) rejectTransfer(ctx context.Context, caller id.Identity, credID id.CredentialID, recipient id.Identity, memo string) error {
	if r.metrics != nil {
		r.metrics.IncrementTransfersRejected()
	}
	r.emitAudit(ctx, audit.Event{
		Action:       audit.ActionTransferRejected,
		Actor:        caller.String(),
		CredentialID: uint64(credID),
		Holder:       recipient.String(),
		Reason:       memo,
	})
	return dErrors.New(dErrors.CodeTransferNotAllowed, "soulbound credentials cannot be transferred")
}

// Credential returns the stored record for credID.
func (r *Registry) Credential(ctx context.Context, credID id.CredentialID) (*models.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cred, err := r.credentials.Get(ctx, credID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "credential %d does not exist", credID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	return cred, nil
}

// CredentialsOf returns all credentials ever issued to holder, in insertion
// order, including revoked and expired ones.
func (r *Registry) CredentialsOf(ctx context.Context, holder id.Identity) ([]*models.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	creds, err := r.credentials.ListByHolder(ctx, holder)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list holder credentials")
	}
	return creds, nil
}

// NextID returns the id the next successful issuance will assign.
func (r *Registry) NextID(ctx context.Context) (id.CredentialID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	next, err := r.credentials.NextID(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read id counter")
	}
	return next, nil
}

// IssuedCount returns how many credentials of credType were ever issued.
func (r *Registry) IssuedCount(ctx context.Context, credType id.CredentialType) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count, err := r.credentials.IssuedCount(ctx, credType)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read type counter")
	}
	return count, nil
}

// IssuersFor returns the identities currently authorized for credType.
func (r *Registry) IssuersFor(ctx context.Context, credType id.CredentialType) ([]id.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	issuers, err := r.grants.IssuersFor(ctx, credType)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list issuers")
	}
	return issuers, nil
}

// TypesFor returns the types issuer is currently authorized for.
func (r *Registry) TypesFor(ctx context.Context, issuer id.Identity) ([]id.CredentialType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types, err := r.grants.TypesFor(ctx, issuer)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list types")
	}
	return types, nil
}

func (r *Registry) rejectIssue(err error) error {
	if r.metrics != nil {
		r.metrics.IncrementIssuanceRejected(string(dErrors.CodeOf(err)))
	}
	return err
}

func (r *Registry) emitAudit(ctx context.Context, event audit.Event) {
	if r.auditor == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if err := r.auditor.Emit(ctx, event); err != nil {
		r.logger.Warn("audit emit failed", "action", event.Action, "error", err)
	}
}
