package audit

import (
	"time"

	"github.com/google/uuid"
)

// Actions emitted by the registry.
const (
	ActionCredentialIssued  = "credential_issued"
	ActionCredentialRevoked = "credential_revoked"
	ActionIssuerGranted     = "issuer_granted"
	ActionGrantRevoked      = "grant_revoked"
	ActionTransferRejected  = "transfer_rejected"
)

// Event is emitted from registry operations to capture who did what to which
// credential. Revocation reasons live here and only here; the credential
// record itself never stores them.
type Event struct {
	ID             uuid.UUID `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Action         string    `json:"action"`
	Actor          string    `json:"actor"`
	CredentialID   uint64    `json:"credential_id,omitempty"`
	CredentialType string    `json:"credential_type,omitempty"`
	Holder         string    `json:"holder,omitempty"`
	Issuer         string    `json:"issuer,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	RequestID      string    `json:"request_id,omitempty"`
}
