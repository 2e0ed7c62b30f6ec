package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gajwa-dev/account/internal/services/account/storage"
)

type passkeyDTO struct {
	CredentialID string `json:"credential_id"`
	CreatedAt    string `json:"created_at"`
	LastUsedAt   string `json:"last_used_at,omitempty"`
}

type passkeyCreateResponse struct {
	PasskeySessionID string          `json:"passkey_session_id"`
	CreationOptions  json.RawMessage `json:"credential_creation_options"`
}

// handlePasskeys lists the authenticated user's registered credentials.
func (h *Handler) handlePasskeys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	account, _, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	records, err := h.passkeyStore.ListPasskeyCredentials(r.Context(), account.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "failed to list passkeys")
		return
	}

	passkeys := make([]passkeyDTO, 0, len(records))
	for _, record := range records {
		passkeys = append(passkeys, passkeyToDTO(record))
	}
	writeJSON(w, http.StatusOK, map[string][]passkeyDTO{"passkeys": passkeys})
}

// handlePasskeyCreate begins a registration ceremony for an already
// authenticated user adding another credential.
func (h *Handler) handlePasskeyCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	account, _, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	sessionID, options, err := h.engine.BeginRegistration(r.Context(), account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "failed to begin passkey registration")
		return
	}
	writeJSON(w, http.StatusOK, passkeyCreateResponse{
		PasskeySessionID: sessionID,
		CreationOptions:  options,
	})
}

// handlePasskeyByID deletes a credential owned by the authenticated user.
func (h *Handler) handlePasskeyByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	account, _, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	credentialID := strings.TrimPrefix(r.URL.Path, "/api/v1/passkeys/")
	if credentialID == "" || strings.Contains(credentialID, "/") {
		writeError(w, http.StatusNotFound, "not_found", "passkey not found")
		return
	}

	record, err := h.passkeyStore.GetPasskeyCredential(r.Context(), credentialID)
	if err != nil || record.UserID != account.ID {
		writeError(w, http.StatusNotFound, "not_found", "passkey not found")
		return
	}
	if err := h.passkeyStore.DeletePasskeyCredential(r.Context(), credentialID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "passkey not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", "failed to delete passkey")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func passkeyToDTO(record storage.PasskeyCredential) passkeyDTO {
	dto := passkeyDTO{
		CredentialID: record.CredentialID,
		CreatedAt:    record.CreatedAt.UTC().Format(time.RFC3339),
	}
	if record.LastUsedAt != nil {
		dto.LastUsedAt = record.LastUsedAt.UTC().Format(time.RFC3339)
	}
	return dto
}
