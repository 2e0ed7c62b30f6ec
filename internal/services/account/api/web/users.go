package web

import (
	"net/http"
)

// handleMe returns the authenticated user's profile.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	account, _, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.userToDTO(account))
}

// handleDeactivate places the soft-delete marker on the account and revokes
// the current session. Hard deletion happens out of band after the grace
// period.
func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	account, session, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	now := h.clock().UTC()
	account.DeactivatedAt = &now
	account.UpdatedAt = now
	if err := h.users.PutUser(r.Context(), account); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "failed to deactivate account")
		return
	}
	if err := h.sessions.RevokeWebSession(r.Context(), session.ID, now); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "failed to revoke session")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
}
