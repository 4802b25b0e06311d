// Package httputil centralizes JSON response helpers for the HTTP layer.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "soulbound/pkg/domain-errors"
)

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a coded domain error into a JSON error envelope.
// Internal errors omit the description so infrastructure details never leak
// to clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)

	body := map[string]string{"error": string(code)}
	var de *dErrors.Error
	if code != dErrors.CodeInternal && errors.As(err, &de) && de.Message != "" {
		body["error_description"] = de.Message
	}
	WriteJSON(w, toHTTPStatus(code), body)
}

func toHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotAuthorized, dErrors.CodeTransferNotAllowed:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeAlreadyExists, dErrors.CodeCredentialRevoked:
		return http.StatusConflict
	case dErrors.CodeInvalidRecipient,
		dErrors.CodeCredentialExpired,
		dErrors.CodeEmptyMetadata,
		dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeIndexOverflow:
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}
