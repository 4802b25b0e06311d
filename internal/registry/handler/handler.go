// Package handler exposes the registry over HTTP. It is a thin host adapter:
// parsing, identity plumbing, and response mapping only. Business rules stay
// in the service.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"soulbound/internal/registry/service"
	id "soulbound/pkg/domain"
	dErrors "soulbound/pkg/domain-errors"
	"soulbound/pkg/platform/httputil"
	"soulbound/pkg/requestcontext"
)

type Handler struct {
	registry *service.Registry
	logger   *slog.Logger
}

func New(registry *service.Registry, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

// Register wires the endpoints that mutate registry state. Mount behind
// caller authentication.
func (h *Handler) Register(r chi.Router) {
	r.Post("/credentials", h.handleIssue)
	r.Post("/credentials/{id}/revoke", h.handleRevoke)
	r.Post("/credentials/{id}/transfer", h.handleTransfer)
}

// RegisterPublic wires the read-only query endpoints. Queries carry the
// inputs they need; no caller identity is required.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/credentials/{id}", h.handleGetCredential)
	r.Get("/holders/{holder}/credentials", h.handleListHolder)
	r.Get("/verify", h.handleVerify)
	r.Get("/authorized", h.handleIsAuthorized)
	r.Get("/next-id", h.handleNextID)
}

// RegisterAdmin wires the grant management endpoints. Mount behind admin
// authentication; the service still enforces the admin identity itself.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/grants", h.handleGrant)
	r.Delete("/admin/grants", h.handleRevokeGrant)
}

type issueRequest struct {
	Recipient      string     `json:"recipient"`
	CredentialType string     `json:"credential_type"`
	Metadata       string     `json:"metadata"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

type issueResponse struct {
	CredentialID uint64 `json:"credential_id"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid JSON body"))
		return
	}
	recipient, err := id.ParseIdentity(req.Recipient)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	credType, err := id.ParseCredentialType(req.CredentialType)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	assigned, err := h.registry.Issue(r.Context(), caller, recipient, credType, req.Metadata, req.ExpiresAt)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, issueResponse{CredentialID: uint64(assigned)})
}

func (h *Handler) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	credID, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	cred, err := h.registry.Credential(r.Context(), credID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cred)
}

type revokeRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	credID, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req revokeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid JSON body"))
			return
		}
	}

	if err := h.registry.Revoke(r.Context(), caller, credID, req.Reason); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

type transferRequest struct {
	Recipient string `json:"recipient"`
	Memo      string `json:"memo,omitempty"`
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	credID, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req transferRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid JSON body"))
			return
		}
	}

	// Always rejected; the service owns the refusal so direct library
	// callers get the same answer.
	var transferErr error
	if req.Memo != "" {
		transferErr = h.registry.TransferWithMemo(r.Context(), caller, credID, id.Identity(req.Recipient), req.Memo)
	} else {
		transferErr = h.registry.Transfer(r.Context(), caller, credID, id.Identity(req.Recipient))
	}
	httputil.WriteError(w, transferErr)
}

func (h *Handler) handleListHolder(w http.ResponseWriter, r *http.Request) {
	holder, err := id.ParseIdentity(chi.URLParam(r, "holder"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	creds, err := h.registry.CredentialsOf(r.Context(), holder)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"credentials": creds})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	holder, err := id.ParseIdentity(r.URL.Query().Get("holder"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	credType, err := id.ParseCredentialType(r.URL.Query().Get("credential_type"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	valid, err := h.registry.Verify(r.Context(), holder, credType)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (h *Handler) handleIsAuthorized(w http.ResponseWriter, r *http.Request) {
	issuer, err := id.ParseIdentity(r.URL.Query().Get("issuer"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	credType, err := id.ParseCredentialType(r.URL.Query().Get("credential_type"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	authorized, err := h.registry.IsAuthorized(r.Context(), issuer, credType)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"authorized": authorized})
}

func (h *Handler) handleNextID(w http.ResponseWriter, r *http.Request) {
	next, err := h.registry.NextID(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]uint64{"next_id": uint64(next)})
}

type grantRequest struct {
	Issuer         string `json:"issuer"`
	CredentialType string `json:"credential_type"`
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	issuer, credType, ok := h.grantArgs(w, r)
	if !ok {
		return
	}

	if err := h.registry.Grant(r.Context(), caller, issuer, credType); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"status": "granted"})
}

func (h *Handler) handleRevokeGrant(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	issuer, credType, ok := h.grantArgs(w, r)
	if !ok {
		return
	}

	if err := h.registry.RevokeGrant(r.Context(), caller, issuer, credType); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *Handler) grantArgs(w http.ResponseWriter, r *http.Request) (id.Identity, id.CredentialType, bool) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid JSON body"))
		return "", "", false
	}
	issuer, err := id.ParseIdentity(req.Issuer)
	if err != nil {
		httputil.WriteError(w, err)
		return "", "", false
	}
	credType, err := id.ParseCredentialType(req.CredentialType)
	if err != nil {
		httputil.WriteError(w, err)
		return "", "", false
	}
	return issuer, credType, true
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (id.Identity, bool) {
	caller := requestcontext.Caller(r.Context())
	if caller.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotAuthorized, "caller identity is required"))
		return "", false
	}
	return caller, true
}
