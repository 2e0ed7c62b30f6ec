package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/gajwa-dev/account/internal/services/account/passkey"
	"github.com/gajwa-dev/account/internal/services/account/storage"
	"github.com/gajwa-dev/account/internal/services/account/storage/sqlite"
	"github.com/gajwa-dev/account/internal/services/account/user"
)

func newTestHandler(t *testing.T) (*Handler, *sqlite.Store, *http.ServeMux) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "account.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})

	engine, err := passkey.NewEngine(passkey.Config{
		RPDisplayName: "Gajwa Account",
		RPID:          "localhost",
		RPOrigins:     []string{"http://localhost:8086"},
		SessionTTL:    5 * time.Minute,
	}, store, store)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	handler := NewHandler(store, store, store, store, store, engine)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return handler, store, mux
}

func seedWebUser(t *testing.T, store *sqlite.Store, loginID, password string) user.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	account := user.User{
		ID:           "user-" + loginID,
		LoginID:      loginID,
		PasswordHash: string(hash),
		Name:         "Hong Gildong",
		Email:        loginID + "@example.com",
		StudentIDs:   []string{"20260001"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.PutUser(context.Background(), account); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return account
}

func markDeveloper(t *testing.T, store *sqlite.Store, account user.User) user.User {
	t.Helper()
	verified := time.Now().UTC().Add(-24 * time.Hour).Truncate(time.Millisecond)
	account.DevVerifyDate = &verified
	if err := store.PutUser(context.Background(), account); err != nil {
		t.Fatalf("mark developer: %v", err)
	}
	return account
}

func loginCookie(t *testing.T, mux *http.ServeMux, loginID, password string) *http.Cookie {
	t.Helper()
	recorder := doJSON(t, mux, http.MethodPost, "/api/v1/auth/login", map[string]any{
		"login_id": loginID,
		"password": password,
	}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == SessionCookieName && cookie.Value != "" {
			return cookie
		}
	}
	t.Fatal("no session cookie issued")
	return nil
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, payload any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	mux.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("decode response: %v (body %s)", err, recorder.Body.String())
	}
}

func TestSignup(t *testing.T) {
	t.Run("creates user session and passkey ceremony", func(t *testing.T) {
		_, store, mux := newTestHandler(t)

		recorder := doJSON(t, mux, http.MethodPost, "/api/v1/auth/signup", map[string]any{
			"login_id":        "Gildong",
			"password":        "correct horse battery",
			"name":            "Hong Gildong",
			"email":           "gildong@example.com",
			"student_id_list": []string{"20260001"},
		}, nil)
		if recorder.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
		}

		var response struct {
			User             userDTO         `json:"user"`
			PasskeySessionID string          `json:"passkey_session_id"`
			CreationOptions  json.RawMessage `json:"credential_creation_options"`
		}
		decodeBody(t, recorder, &response)
		if response.User.LoginID != "gildong" {
			t.Errorf("login_id = %q, want lowercased %q", response.User.LoginID, "gildong")
		}
		if response.PasskeySessionID == "" || len(response.CreationOptions) == 0 {
			t.Error("expected a passkey registration ceremony to begin")
		}

		var sessionCookie *http.Cookie
		for _, cookie := range recorder.Result().Cookies() {
			if cookie.Name == SessionCookieName {
				sessionCookie = cookie
			}
		}
		if sessionCookie == nil || !sessionCookie.HttpOnly {
			t.Fatal("expected an HttpOnly session cookie")
		}

		stored, err := store.GetUserByLoginID(context.Background(), "gildong")
		if err != nil {
			t.Fatalf("get stored user: %v", err)
		}
		if !strings.HasPrefix(stored.PasswordHash, "$2") {
			t.Errorf("password stored as %q, want a bcrypt hash", stored.PasswordHash)
		}
	})

	t.Run("duplicate login id conflicts", func(t *testing.T) {
		_, store, mux := newTestHandler(t)
		seedWebUser(t, store, "gildong", "secret-password")

		recorder := doJSON(t, mux, http.MethodPost, "/api/v1/auth/signup", map[string]any{
			"login_id": "gildong",
			"password": "another password",
			"name":     "Second Gildong",
		}, nil)
		if recorder.Code != http.StatusConflict {
			t.Fatalf("status = %d, want %d", recorder.Code, http.StatusConflict)
		}
		var response apiError
		decodeBody(t, recorder, &response)
		if response.Error != "login_id_taken" {
			t.Errorf("error = %q, want login_id_taken", response.Error)
		}
	})
}

func TestLogin(t *testing.T) {
	t.Run("valid credentials open a session", func(t *testing.T) {
		_, store, mux := newTestHandler(t)
		seedWebUser(t, store, "gildong", "secret-password")

		cookie := loginCookie(t, mux, "gildong", "secret-password")

		recorder := doJSON(t, mux, http.MethodGet, "/api/v1/users/me", nil, cookie)
		if recorder.Code != http.StatusOK {
			t.Fatalf("me status = %d, body %s", recorder.Code, recorder.Body.String())
		}
		var me userDTO
		decodeBody(t, recorder, &me)
		if me.LoginID != "gildong" {
			t.Errorf("login_id = %q, want gildong", me.LoginID)
		}
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		_, store, mux := newTestHandler(t)
		seedWebUser(t, store, "gildong", "secret-password")

		recorder := doJSON(t, mux, http.MethodPost, "/api/v1/auth/login", map[string]any{
			"login_id": "gildong",
			"password": "wrong",
		}, nil)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want %d", recorder.Code, http.StatusUnauthorized)
		}
	})

	t.Run("deactivated account is rejected", func(t *testing.T) {
		_, store, mux := newTestHandler(t)
		account := seedWebUser(t, store, "gildong", "secret-password")
		gone := time.Now().UTC().Truncate(time.Millisecond)
		account.DeactivatedAt = &gone
		if err := store.PutUser(context.Background(), account); err != nil {
			t.Fatalf("deactivate user: %v", err)
		}

		recorder := doJSON(t, mux, http.MethodPost, "/api/v1/auth/login", map[string]any{
			"login_id": "gildong",
			"password": "secret-password",
		}, nil)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want %d", recorder.Code, http.StatusUnauthorized)
		}
	})

	t.Run("plaintext row is upgraded on login", func(t *testing.T) {
		_, store, mux := newTestHandler(t)
		account := seedWebUser(t, store, "legacy", "ignored")
		account.PasswordHash = "legacy-plain-password"
		if err := store.PutUser(context.Background(), account); err != nil {
			t.Fatalf("seed plaintext row: %v", err)
		}

		loginCookie(t, mux, "legacy", "legacy-plain-password")

		upgraded, err := store.GetUser(context.Background(), account.ID)
		if err != nil {
			t.Fatalf("get user: %v", err)
		}
		if !strings.HasPrefix(upgraded.PasswordHash, "$2") {
			t.Errorf("hash = %q, want bcrypt after upgrade", upgraded.PasswordHash)
		}
	})

	t.Run("pending id resumes the authorize flow", func(t *testing.T) {
		_, store, mux := newTestHandler(t)
		account := seedWebUser(t, store, "gildong", "secret-password")
		pending := storage.PendingAuthorization{
			ID:           "pending-1",
			ResponseType: "code",
			ClientID:     "client_abcdef123456",
			RedirectURI:  "https://app.example.com/callback",
			Scope:        "profile",
			ExpiresAt:    time.Now().UTC().Add(10 * time.Minute),
		}
		if err := store.PutPendingAuthorization(context.Background(), pending); err != nil {
			t.Fatalf("seed pending: %v", err)
		}

		recorder := doJSON(t, mux, http.MethodPost, "/api/v1/auth/login", map[string]any{
			"login_id":   "gildong",
			"password":   "secret-password",
			"pending_id": pending.ID,
		}, nil)
		if recorder.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
		}
		var response loginResponse
		decodeBody(t, recorder, &response)
		if want := "/oauth/authorize/consent?pending_id=pending-1"; response.Redirect != want {
			t.Errorf("redirect = %q, want %q", response.Redirect, want)
		}

		attached, err := store.GetPendingAuthorization(context.Background(), pending.ID)
		if err != nil {
			t.Fatalf("get pending: %v", err)
		}
		if attached.UserID != account.ID {
			t.Errorf("pending user = %q, want %q", attached.UserID, account.ID)
		}
	})
}

func TestLogout(t *testing.T) {
	_, store, mux := newTestHandler(t)
	seedWebUser(t, store, "gildong", "secret-password")
	cookie := loginCookie(t, mux, "gildong", "secret-password")

	recorder := doJSON(t, mux, http.MethodPost, "/api/v1/auth/logout", nil, cookie)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", recorder.Code)
	}

	recorder = doJSON(t, mux, http.MethodGet, "/api/v1/users/me", nil, cookie)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout = %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
}

func TestDeactivate(t *testing.T) {
	_, store, mux := newTestHandler(t)
	account := seedWebUser(t, store, "gildong", "secret-password")
	cookie := loginCookie(t, mux, "gildong", "secret-password")

	recorder := doJSON(t, mux, http.MethodPost, "/api/v1/users/me/deactivate", nil, cookie)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("deactivate status = %d, body %s", recorder.Code, recorder.Body.String())
	}

	stored, err := store.GetUser(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if stored.DeactivatedAt == nil {
		t.Error("expected a deactivation timestamp")
	}

	recorder = doJSON(t, mux, http.MethodGet, "/api/v1/users/me", nil, cookie)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("me after deactivate = %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
}

func TestRequireUser(t *testing.T) {
	_, _, mux := newTestHandler(t)

	recorder := doJSON(t, mux, http.MethodGet, "/api/v1/users/me", nil, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	var response apiError
	decodeBody(t, recorder, &response)
	if response.Error != "unauthenticated" {
		t.Errorf("error = %q, want unauthenticated", response.Error)
	}
}

func TestPasskeys(t *testing.T) {
	seedStoredCredential := func(t *testing.T, store *sqlite.Store, credentialID, userID string) {
		t.Helper()
		now := time.Now().UTC().Truncate(time.Millisecond)
		err := store.PutPasskeyCredential(context.Background(), storage.PasskeyCredential{
			CredentialID:   credentialID,
			UserID:         userID,
			CredentialJSON: `{}`,
			SignCount:      3,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if err != nil {
			t.Fatalf("seed credential: %v", err)
		}
	}

	t.Run("lists own credentials", func(t *testing.T) {
		_, store, mux := newTestHandler(t)
		account := seedWebUser(t, store, "gildong", "secret-password")
		seedStoredCredential(t, store, "credential-a", account.ID)
		seedStoredCredential(t, store, "credential-b", "someone-else")
		cookie := loginCookie(t, mux, "gildong", "secret-password")

		recorder := doJSON(t, mux, http.MethodGet, "/api/v1/passkeys", nil, cookie)
		if recorder.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
		}
		var response struct {
			Passkeys []passkeyDTO `json:"passkeys"`
		}
		decodeBody(t, recorder, &response)
		if len(response.Passkeys) != 1 || response.Passkeys[0].CredentialID != "credential-a" {
			t.Errorf("passkeys = %+v, want only credential-a", response.Passkeys)
		}
	})

	t.Run("create begins a registration ceremony", func(t *testing.T) {
		_, store, mux := newTestHandler(t)
		seedWebUser(t, store, "gildong", "secret-password")
		cookie := loginCookie(t, mux, "gildong", "secret-password")

		recorder := doJSON(t, mux, http.MethodPost, "/api/v1/passkeys/create", nil, cookie)
		if recorder.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
		}
		var response passkeyCreateResponse
		decodeBody(t, recorder, &response)
		if response.PasskeySessionID == "" || len(response.CreationOptions) == 0 {
			t.Error("expected ceremony session and creation options")
		}
	})

	t.Run("delete removes an owned credential", func(t *testing.T) {
		_, store, mux := newTestHandler(t)
		account := seedWebUser(t, store, "gildong", "secret-password")
		seedStoredCredential(t, store, "credential-a", account.ID)
		cookie := loginCookie(t, mux, "gildong", "secret-password")

		recorder := doJSON(t, mux, http.MethodDelete, "/api/v1/passkeys/credential-a", nil, cookie)
		if recorder.Code != http.StatusNoContent {
			t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
		}
		if _, err := store.GetPasskeyCredential(context.Background(), "credential-a"); err == nil {
			t.Error("credential still present after delete")
		}
	})

	t.Run("delete hides foreign credentials", func(t *testing.T) {
		_, store, mux := newTestHandler(t)
		seedWebUser(t, store, "gildong", "secret-password")
		seedStoredCredential(t, store, "credential-b", "someone-else")
		cookie := loginCookie(t, mux, "gildong", "secret-password")

		recorder := doJSON(t, mux, http.MethodDelete, "/api/v1/passkeys/credential-b", nil, cookie)
		if recorder.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want %d", recorder.Code, http.StatusNotFound)
		}
		if _, err := store.GetPasskeyCredential(context.Background(), "credential-b"); err != nil {
			t.Error("foreign credential was deleted")
		}
	})
}

func TestApps(t *testing.T) {
	newApp := func(t *testing.T, mux *http.ServeMux, cookie *http.Cookie) appDetail {
		t.Helper()
		recorder := doJSON(t, mux, http.MethodPost, "/api/v1/oauth/apps", map[string]any{
			"app_name":      "Classroom Companion",
			"redirect_uris": []string{"https://companion.example.com/callback"},
		}, cookie)
		if recorder.Code != http.StatusCreated {
			t.Fatalf("create app status = %d, body %s", recorder.Code, recorder.Body.String())
		}
		var detail appDetail
		decodeBody(t, recorder, &detail)
		return detail
	}

	t.Run("requires developer verification", func(t *testing.T) {
		_, store, mux := newTestHandler(t)
		seedWebUser(t, store, "gildong", "secret-password")
		cookie := loginCookie(t, mux, "gildong", "secret-password")

		recorder := doJSON(t, mux, http.MethodGet, "/api/v1/oauth/apps", nil, cookie)
		if recorder.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want %d", recorder.Code, http.StatusForbidden)
		}
		var response apiError
		decodeBody(t, recorder, &response)
		if response.Error != "developer_verification_required" {
			t.Errorf("error = %q", response.Error)
		}
	})

	t.Run("create issues credentials", func(t *testing.T) {
		_, store, mux := newTestHandler(t)
		account := seedWebUser(t, store, "gildong", "secret-password")
		markDeveloper(t, store, account)
		cookie := loginCookie(t, mux, "gildong", "secret-password")

		detail := newApp(t, mux, cookie)
		if !strings.HasPrefix(detail.ClientID, "client_") || len(detail.ClientID) != len("client_")+12 {
			t.Errorf("client_id = %q, want client_ prefix and 12 hex chars", detail.ClientID)
		}
		if detail.ClientSecret == "" {
			t.Error("expected a client secret in the create response")
		}
		if !detail.Confidential {
			t.Error("apps default to confidential")
		}

		stored, err := store.GetClientByClientID(context.Background(), detail.ClientID)
		if err != nil {
			t.Fatalf("get stored client: %v", err)
		}
		if stored.DeveloperID != account.ID {
			t.Errorf("developer = %q, want %q", stored.DeveloperID, account.ID)
		}
	})

	t.Run("rejects relative redirect uris", func(t *testing.T) {
		_, store, mux := newTestHandler(t)
		account := seedWebUser(t, store, "gildong", "secret-password")
		markDeveloper(t, store, account)
		cookie := loginCookie(t, mux, "gildong", "secret-password")

		recorder := doJSON(t, mux, http.MethodPost, "/api/v1/oauth/apps", map[string]any{
			"app_name":      "Broken App",
			"redirect_uris": []string{"/callback"},
		}, cookie)
		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", recorder.Code, http.StatusBadRequest)
		}
	})

	t.Run("list omits the client secret", func(t *testing.T) {
		_, store, mux := newTestHandler(t)
		account := seedWebUser(t, store, "gildong", "secret-password")
		markDeveloper(t, store, account)
		cookie := loginCookie(t, mux, "gildong", "secret-password")
		newApp(t, mux, cookie)

		recorder := doJSON(t, mux, http.MethodGet, "/api/v1/oauth/apps", nil, cookie)
		if recorder.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
		}
		if strings.Contains(recorder.Body.String(), "client_secret") {
			t.Error("list response leaks client_secret")
		}
		var response struct {
			Apps []appSummary `json:"apps"`
		}
		decodeBody(t, recorder, &response)
		if len(response.Apps) != 1 {
			t.Fatalf("apps = %d, want 1", len(response.Apps))
		}
	})

	t.Run("patch updates fields", func(t *testing.T) {
		_, store, mux := newTestHandler(t)
		account := seedWebUser(t, store, "gildong", "secret-password")
		markDeveloper(t, store, account)
		cookie := loginCookie(t, mux, "gildong", "secret-password")
		detail := newApp(t, mux, cookie)

		recorder := doJSON(t, mux, http.MethodPatch, "/api/v1/oauth/apps/"+detail.ID, map[string]any{
			"app_name":      "Renamed Companion",
			"redirect_uris": []string{"https://renamed.example.com/cb"},
		}, cookie)
		if recorder.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
		}
		var updated appDetail
		decodeBody(t, recorder, &updated)
		if updated.AppName != "Renamed Companion" {
			t.Errorf("app_name = %q", updated.AppName)
		}
		if len(updated.RedirectURIs) != 1 || updated.RedirectURIs[0] != "https://renamed.example.com/cb" {
			t.Errorf("redirect_uris = %v", updated.RedirectURIs)
		}
		if updated.ClientID != detail.ClientID {
			t.Errorf("client_id changed on update: %q -> %q", detail.ClientID, updated.ClientID)
		}
	})

	t.Run("regenerate secret replaces only the secret", func(t *testing.T) {
		_, store, mux := newTestHandler(t)
		account := seedWebUser(t, store, "gildong", "secret-password")
		markDeveloper(t, store, account)
		cookie := loginCookie(t, mux, "gildong", "secret-password")
		detail := newApp(t, mux, cookie)

		recorder := doJSON(t, mux, http.MethodPost, "/api/v1/oauth/apps/"+detail.ID+"/regenerate-secret", nil, cookie)
		if recorder.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
		}
		var rotated appDetail
		decodeBody(t, recorder, &rotated)
		if rotated.ClientSecret == "" || rotated.ClientSecret == detail.ClientSecret {
			t.Error("expected a fresh client secret")
		}
		if rotated.ClientID != detail.ClientID {
			t.Error("client_id must survive secret rotation")
		}
	})

	t.Run("delete cascades to issued grants", func(t *testing.T) {
		_, store, mux := newTestHandler(t)
		account := seedWebUser(t, store, "gildong", "secret-password")
		markDeveloper(t, store, account)
		cookie := loginCookie(t, mux, "gildong", "secret-password")
		detail := newApp(t, mux, cookie)

		now := time.Now().UTC().Truncate(time.Millisecond)
		err := store.PutToken(context.Background(), storage.OAuthToken{
			ID:          "token-1",
			AccessToken: "access-1",
			UserID:      account.ID,
			ClientID:    detail.ClientID,
			Scope:       "profile",
			TokenType:   "Bearer",
			ExpiresAt:   now.Add(time.Hour),
			CreatedAt:   now,
		})
		if err != nil {
			t.Fatalf("seed token: %v", err)
		}

		recorder := doJSON(t, mux, http.MethodDelete, "/api/v1/oauth/apps/"+detail.ID, nil, cookie)
		if recorder.Code != http.StatusNoContent {
			t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
		}
		if _, err := store.GetClient(context.Background(), detail.ID); err == nil {
			t.Error("client still present after delete")
		}
		if _, err := store.GetTokenByAccess(context.Background(), "access-1"); err == nil {
			t.Error("token survived app deletion")
		}
	})

	t.Run("foreign app is not found", func(t *testing.T) {
		_, store, mux := newTestHandler(t)
		owner := seedWebUser(t, store, "owner", "secret-password")
		markDeveloper(t, store, owner)
		ownerCookie := loginCookie(t, mux, "owner", "secret-password")
		detail := newApp(t, mux, ownerCookie)

		other := seedWebUser(t, store, "other", "secret-password")
		markDeveloper(t, store, other)
		otherCookie := loginCookie(t, mux, "other", "secret-password")

		for _, method := range []string{http.MethodGet, http.MethodDelete} {
			recorder := doJSON(t, mux, method, "/api/v1/oauth/apps/"+detail.ID, nil, otherCookie)
			if recorder.Code != http.StatusNotFound {
				t.Errorf("%s status = %d, want %d", method, recorder.Code, http.StatusNotFound)
			}
		}
	})
}

func TestNewClientID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 32; i++ {
		clientID := newClientID()
		if !strings.HasPrefix(clientID, "client_") {
			t.Fatalf("client id %q lacks prefix", clientID)
		}
		if len(clientID) != len("client_")+12 {
			t.Fatalf("client id %q has wrong length", clientID)
		}
		if seen[clientID] {
			t.Fatalf("duplicate client id %q after %d draws", clientID, i)
		}
		seen[clientID] = true
	}
}
