package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gajwa-dev/account/internal/services/account/passkey"
	"github.com/gajwa-dev/account/internal/services/account/storage"
	"github.com/gajwa-dev/account/internal/services/account/user"
)

type signupRequest struct {
	LoginID    string   `json:"login_id"`
	Password   string   `json:"password"`
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Phone      string   `json:"phone"`
	StudentIDs []string `json:"student_id_list"`
}

type signupResponse struct {
	User             userDTO         `json:"user"`
	PasskeySessionID string          `json:"passkey_session_id"`
	CreationOptions  json.RawMessage `json:"credential_creation_options"`
}

type loginRequest struct {
	LoginID   string `json:"login_id"`
	Password  string `json:"password"`
	PendingID string `json:"pending_id,omitempty"`
}

type loginResponse struct {
	User     userDTO `json:"user"`
	Redirect string  `json:"redirect,omitempty"`
}

type passkeyBeginResponse struct {
	PasskeySessionID string          `json:"passkey_session_id"`
	RequestOptions   json.RawMessage `json:"credential_request_options"`
}

type passkeyFinishRequest struct {
	PasskeySessionID   string          `json:"passkey_session_id"`
	CredentialResponse json.RawMessage `json:"credential_response"`
	PendingID          string          `json:"pending_id,omitempty"`
}

type passkeyFinishResponse struct {
	User         userDTO `json:"user,omitempty"`
	CredentialID string  `json:"credential_id,omitempty"`
	Redirect     string  `json:"redirect,omitempty"`
}

// handleSignup creates a user, opens a web session, and begins a passkey
// registration ceremony so the browser can enroll a credential right away.
func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var request signupRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	account, err := user.CreateUser(user.CreateUserInput{
		LoginID:    request.LoginID,
		Password:   request.Password,
		Name:       request.Name,
		Email:      request.Email,
		Phone:      request.Phone,
		StudentIDs: request.StudentIDs,
	}, h.clock, h.newID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if _, err := h.users.GetUserByLoginID(r.Context(), account.LoginID); err == nil {
		writeError(w, http.StatusConflict, "login_id_taken", "login id is already registered")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "server_error", "failed to check login id")
		return
	}

	if err := h.users.PutUser(r.Context(), account); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "failed to create user")
		return
	}
	if err := h.createSession(w, r, account.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "failed to create session")
		return
	}

	sessionID, options, err := h.engine.BeginRegistration(r.Context(), account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "failed to begin passkey registration")
		return
	}

	writeJSON(w, http.StatusCreated, signupResponse{
		User:             h.userToDTO(account),
		PasskeySessionID: sessionID,
		CreationOptions:  options,
	})
}

// handleLogin is the password path. Plaintext rows left over from the hash
// migration are accepted once and upgraded in place.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var request loginRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	loginID := strings.ToLower(strings.TrimSpace(request.LoginID))
	account, err := h.users.GetUserByLoginID(r.Context(), loginID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid login id or password")
		return
	}
	ok, rehash := user.VerifyPassword(account.PasswordHash, request.Password)
	if !ok || account.Deactivated() {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid login id or password")
		return
	}
	if rehash {
		if hash, err := user.HashPassword(request.Password); err == nil {
			account.PasswordHash = hash
			account.UpdatedAt = h.clock().UTC()
			if err := h.users.PutUser(r.Context(), account); err != nil {
				log.Printf("upgrade password hash for %s: %v", account.ID, err)
			}
		}
	}

	if err := h.createSession(w, r, account.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "failed to create session")
		return
	}

	response := loginResponse{User: h.userToDTO(account)}
	if redirect, err := h.resumeAuthorization(r, request.PendingID, account.ID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "authorization session expired")
		return
	} else if redirect != "" {
		response.Redirect = redirect
	}
	writeJSON(w, http.StatusOK, response)
}

// handlePasskeyLogin runs the discoverable login ceremony: GET begins, POST
// finishes. An optional pending_id resumes an OAuth authorize flow.
func (h *Handler) handlePasskeyLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sessionID, options, err := h.engine.BeginLogin(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", "failed to begin passkey login")
			return
		}
		writeJSON(w, http.StatusOK, passkeyBeginResponse{
			PasskeySessionID: sessionID,
			RequestOptions:   options,
		})
	case http.MethodPost:
		var request passkeyFinishRequest
		if err := decodeJSON(r, &request); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		account, credentialID, err := h.engine.FinishLogin(r.Context(), request.PasskeySessionID, request.CredentialResponse)
		if err != nil {
			h.writePasskeyError(w, err)
			return
		}
		if account.Deactivated() {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "account is deactivated")
			return
		}
		if err := h.createSession(w, r, account.ID); err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", "failed to create session")
			return
		}

		response := passkeyFinishResponse{User: h.userToDTO(account), CredentialID: credentialID}
		if redirect, err := h.resumeAuthorization(r, request.PendingID, account.ID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "authorization session expired")
			return
		} else if redirect != "" {
			response.Redirect = redirect
		}
		writeJSON(w, http.StatusOK, response)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

// handlePasskeyRegisterFinish completes a registration ceremony begun by
// signup or by the authenticated create endpoint.
func (h *Handler) handlePasskeyRegisterFinish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	account, _, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var request passkeyFinishRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	unique := func(credentialID string) (bool, error) {
		_, err := h.passkeyStore.GetPasskeyCredential(r.Context(), credentialID)
		if errors.Is(err, storage.ErrNotFound) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		return false, nil
	}
	credentialID, err := h.engine.FinishRegistration(r.Context(), request.PasskeySessionID, request.CredentialResponse, unique)
	if err != nil {
		h.writePasskeyError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, passkeyFinishResponse{
		User:         h.userToDTO(account),
		CredentialID: credentialID,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	_, session, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if err := h.sessions.RevokeWebSession(r.Context(), session.ID, h.clock().UTC()); err != nil {
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

// resumeAuthorization binds an authenticated user to a pending OAuth
// authorize request and returns the consent URL.
func (h *Handler) resumeAuthorization(r *http.Request, pendingID, userID string) (string, error) {
	pendingID = strings.TrimSpace(pendingID)
	if pendingID == "" {
		return "", nil
	}
	if err := h.oauthStore.AttachPendingAuthorizationUser(r.Context(), pendingID, userID); err != nil {
		return "", err
	}
	return "/oauth/authorize/consent?pending_id=" + url.QueryEscape(pendingID), nil
}

func (h *Handler) writePasskeyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, passkey.ErrSignCountRegression):
		log.Printf("passkey sign count regression, possible cloned authenticator: %v", err)
		writeError(w, http.StatusUnauthorized, "sign_count_regression", "credential rejected")
	case errors.Is(err, passkey.ErrChallengeNotFound):
		writeError(w, http.StatusBadRequest, "challenge_not_found", "ceremony session is missing or expired")
	case errors.Is(err, passkey.ErrCredentialNotFound):
		writeError(w, http.StatusUnauthorized, "credential_not_found", "unknown credential")
	case errors.Is(err, passkey.ErrCredentialExists):
		writeError(w, http.StatusConflict, "credential_exists", "credential is already registered")
	case errors.Is(err, passkey.ErrAttestationFailed), errors.Is(err, passkey.ErrAssertionFailed):
		writeError(w, http.StatusBadRequest, "verification_failed", "credential verification failed")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", "passkey ceremony failed")
	}
}
