// Package web exposes the session-authenticated JSON API: signup and login,
// passkey management, profile, and developer OAuth app registration.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gajwa-dev/account/internal/platform/id"
	"github.com/gajwa-dev/account/internal/services/account/passkey"
	"github.com/gajwa-dev/account/internal/services/account/storage"
	"github.com/gajwa-dev/account/internal/services/account/user"
)

const (
	// SessionCookieName carries the authenticated web session ID.
	SessionCookieName = "account_session"
	// WebSessionTTL is how long a login session stays valid.
	WebSessionTTL = 7 * 24 * time.Hour
)

// Handler serves the JSON API.
type Handler struct {
	users        storage.UserStore
	passkeyStore storage.PasskeyStore
	sessions     storage.WebSessionStore
	clients      storage.ClientStore
	oauthStore   storage.OAuthStore
	engine       *passkey.Engine
	clock        func() time.Time
	newID        func() (string, error)
	secureCookie bool
}

// NewHandler builds the API handler bound to its backing stores and the
// passkey ceremony engine.
func NewHandler(
	users storage.UserStore,
	passkeyStore storage.PasskeyStore,
	sessions storage.WebSessionStore,
	clients storage.ClientStore,
	oauthStore storage.OAuthStore,
	engine *passkey.Engine,
) *Handler {
	return &Handler{
		users:        users,
		passkeyStore: passkeyStore,
		sessions:     sessions,
		clients:      clients,
		oauthStore:   oauthStore,
		engine:       engine,
		clock:        time.Now,
		newID:        id.NewID,
	}
}

// RegisterRoutes registers the JSON API endpoints on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/api/v1/auth/signup", h.handleSignup)
	mux.HandleFunc("/api/v1/auth/login", h.handleLogin)
	mux.HandleFunc("/api/v1/auth/login/passkey", h.handlePasskeyLogin)
	mux.HandleFunc("/api/v1/auth/register/passkey", h.handlePasskeyRegisterFinish)
	mux.HandleFunc("/api/v1/auth/logout", h.handleLogout)
	mux.HandleFunc("/api/v1/passkeys", h.handlePasskeys)
	mux.HandleFunc("/api/v1/passkeys/create", h.handlePasskeyCreate)
	mux.HandleFunc("/api/v1/passkeys/", h.handlePasskeyByID)
	mux.HandleFunc("/api/v1/users/me", h.handleMe)
	mux.HandleFunc("/api/v1/users/me/deactivate", h.handleDeactivate)
	mux.HandleFunc("/api/v1/oauth/apps", h.handleApps)
	mux.HandleFunc("/api/v1/oauth/apps/", h.handleAppByID)
}

// StartCleanup starts periodic expiry cleanup for web sessions and passkey
// ceremony sessions.
func (h *Handler) StartCleanup(ctx context.Context, interval time.Duration) {
	if h == nil || interval <= 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := h.clock().UTC()
				_ = h.sessions.DeleteExpiredWebSessions(ctx, now)
				_ = h.passkeyStore.DeleteExpiredPasskeySessions(ctx, now)
			}
		}
	}()
}

// createSession issues a web session and sets the login cookie.
func (h *Handler) createSession(w http.ResponseWriter, r *http.Request, userID string) error {
	sessionID, err := h.newID()
	if err != nil {
		return err
	}
	now := h.clock().UTC()
	session := storage.WebSession{
		ID:        sessionID,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(WebSessionTTL),
	}
	if err := h.sessions.PutWebSession(r.Context(), session); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		Expires:  session.ExpiresAt,
	})
	return nil
}

// currentUser resolves the authenticated user from the session cookie.
func (h *Handler) currentUser(r *http.Request) (user.User, storage.WebSession, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return user.User{}, storage.WebSession{}, storage.ErrNotFound
	}
	session, err := h.sessions.GetWebSession(r.Context(), cookie.Value)
	if err != nil {
		return user.User{}, storage.WebSession{}, err
	}
	now := h.clock().UTC()
	if session.RevokedAt != nil || !session.ExpiresAt.After(now) {
		return user.User{}, storage.WebSession{}, storage.ErrNotFound
	}
	account, err := h.users.GetUser(r.Context(), session.UserID)
	if err != nil {
		return user.User{}, storage.WebSession{}, err
	}
	if account.Deactivated() {
		return user.User{}, storage.WebSession{}, storage.ErrNotFound
	}
	return account, session, nil
}

// requireUser resolves the session or writes a 401.
func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (user.User, storage.WebSession, bool) {
	account, session, err := h.currentUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "sign in required")
		return user.User{}, storage.WebSession{}, false
	}
	return account, session, true
}

type userDTO struct {
	ID          string   `json:"id"`
	LoginID     string   `json:"login_id"`
	Name        string   `json:"name"`
	Email       string   `json:"email,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	StudentIDs  []string `json:"student_id_list"`
	DevVerified bool     `json:"dev_verified"`
	CreatedAt   string   `json:"created_at"`
}

func (h *Handler) userToDTO(account user.User) userDTO {
	ids := account.StudentIDs
	if ids == nil {
		ids = []string{}
	}
	return userDTO{
		ID:          account.ID,
		LoginID:     account.LoginID,
		Name:        account.Name,
		Email:       account.Email,
		Phone:       account.Phone,
		StudentIDs:  ids,
		DevVerified: account.DevVerified(h.clock().UTC()),
		CreatedAt:   account.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}
