package web

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gajwa-dev/account/internal/platform/secret"
	"github.com/gajwa-dev/account/internal/services/account/storage"
	"github.com/gajwa-dev/account/internal/services/account/user"
)

const clientSecretLength = 32

type appRequest struct {
	AppName        string   `json:"app_name"`
	AppDescription string   `json:"app_description"`
	RedirectURIs   []string `json:"redirect_uris"`
	HomepageURL    string   `json:"homepage_url"`
	LogoURL        string   `json:"logo_url"`
	Confidential   *bool    `json:"confidential"`
	DefaultScopes  string   `json:"default_scopes"`
}

type appSummary struct {
	ID             string   `json:"id"`
	ClientID       string   `json:"client_id"`
	AppName        string   `json:"app_name"`
	AppDescription string   `json:"app_description,omitempty"`
	RedirectURIs   []string `json:"redirect_uris"`
	HomepageURL    string   `json:"homepage_url,omitempty"`
	LogoURL        string   `json:"logo_url,omitempty"`
	Confidential   bool     `json:"confidential"`
	DefaultScopes  string   `json:"default_scopes,omitempty"`
	CreatedAt      string   `json:"created_at"`
}

// appDetail additionally carries the client secret. Only the owning
// developer ever sees it.
type appDetail struct {
	appSummary
	ClientSecret string `json:"client_secret"`
}

// handleApps serves the developer's app collection: GET lists, POST creates.
func (h *Handler) handleApps(w http.ResponseWriter, r *http.Request) {
	account, _, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if !h.requireDeveloper(w, account) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		clients, err := h.clients.ListClientsByDeveloper(r.Context(), account.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", "failed to list apps")
			return
		}
		apps := make([]appSummary, 0, len(clients))
		for _, client := range clients {
			apps = append(apps, clientToSummary(client))
		}
		writeJSON(w, http.StatusOK, map[string][]appSummary{"apps": apps})
	case http.MethodPost:
		var request appRequest
		if err := decodeJSON(r, &request); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if strings.TrimSpace(request.AppName) == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "app_name is required")
			return
		}
		if err := validateRedirectURIs(request.RedirectURIs); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		appID, err := h.newID()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", "failed to create app")
			return
		}
		clientSecret, err := secret.NewToken(clientSecretLength)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", "failed to create app")
			return
		}

		confidential := true
		if request.Confidential != nil {
			confidential = *request.Confidential
		}
		now := h.clock().UTC()
		client := storage.OAuthClient{
			ID:             appID,
			ClientID:       newClientID(),
			ClientSecret:   clientSecret,
			AppName:        strings.TrimSpace(request.AppName),
			AppDescription: strings.TrimSpace(request.AppDescription),
			RedirectURIs:   request.RedirectURIs,
			HomepageURL:    strings.TrimSpace(request.HomepageURL),
			LogoURL:        strings.TrimSpace(request.LogoURL),
			Confidential:   confidential,
			DefaultScopes:  strings.TrimSpace(request.DefaultScopes),
			DeveloperID:    account.ID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := h.clients.PutClient(r.Context(), client); err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", "failed to create app")
			return
		}
		writeJSON(w, http.StatusCreated, clientToDetail(client))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

// handleAppByID serves a single app: GET, PATCH, DELETE, and the
// regenerate-secret action.
func (h *Handler) handleAppByID(w http.ResponseWriter, r *http.Request) {
	account, _, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if !h.requireDeveloper(w, account) {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/oauth/apps/")
	appID, action, _ := strings.Cut(rest, "/")
	if appID == "" {
		writeError(w, http.StatusNotFound, "not_found", "app not found")
		return
	}

	client, err := h.clients.GetClient(r.Context(), appID)
	if err != nil || client.DeveloperID != account.ID {
		writeError(w, http.StatusNotFound, "not_found", "app not found")
		return
	}

	if action == "regenerate-secret" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		h.regenerateSecret(w, r, client)
		return
	}
	if action != "" {
		writeError(w, http.StatusNotFound, "not_found", "app not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, clientToDetail(client))
	case http.MethodPatch:
		h.updateApp(w, r, client)
	case http.MethodDelete:
		if err := h.clients.DeleteClient(r.Context(), client.ID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "app not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "server_error", "failed to delete app")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (h *Handler) updateApp(w http.ResponseWriter, r *http.Request, client storage.OAuthClient) {
	var request appRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if name := strings.TrimSpace(request.AppName); name != "" {
		client.AppName = name
	}
	if description := strings.TrimSpace(request.AppDescription); description != "" {
		client.AppDescription = description
	}
	if request.RedirectURIs != nil {
		if err := validateRedirectURIs(request.RedirectURIs); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		client.RedirectURIs = request.RedirectURIs
	}
	if homepage := strings.TrimSpace(request.HomepageURL); homepage != "" {
		client.HomepageURL = homepage
	}
	if logo := strings.TrimSpace(request.LogoURL); logo != "" {
		client.LogoURL = logo
	}
	if request.Confidential != nil {
		client.Confidential = *request.Confidential
	}
	if scopes := strings.TrimSpace(request.DefaultScopes); scopes != "" {
		client.DefaultScopes = scopes
	}
	client.UpdatedAt = h.clock().UTC()

	if err := h.clients.PutClient(r.Context(), client); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "failed to update app")
		return
	}
	writeJSON(w, http.StatusOK, clientToDetail(client))
}

// regenerateSecret replaces the client secret. Tokens already issued stay
// valid; only future token-endpoint authentication changes.
func (h *Handler) regenerateSecret(w http.ResponseWriter, r *http.Request, client storage.OAuthClient) {
	clientSecret, err := secret.NewToken(clientSecretLength)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "failed to regenerate secret")
		return
	}
	client.ClientSecret = clientSecret
	client.UpdatedAt = h.clock().UTC()
	if err := h.clients.PutClient(r.Context(), client); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "failed to regenerate secret")
		return
	}
	writeJSON(w, http.StatusOK, clientToDetail(client))
}

// requireDeveloper gates app management behind an active developer
// verification.
func (h *Handler) requireDeveloper(w http.ResponseWriter, account user.User) bool {
	if !account.DevVerified(h.clock().UTC()) {
		writeError(w, http.StatusForbidden, "developer_verification_required", "developer verification is required")
		return false
	}
	return true
}

// newClientID derives a public client identifier from a fresh UUID.
func newClientID() string {
	return "client_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func validateRedirectURIs(uris []string) error {
	if len(uris) == 0 {
		return errors.New("at least one redirect_uri is required")
	}
	for _, raw := range uris {
		parsed, err := url.Parse(raw)
		if err != nil || !parsed.IsAbs() || parsed.Host == "" {
			return errors.New("redirect_uris must be absolute URLs")
		}
	}
	return nil
}

func clientToSummary(client storage.OAuthClient) appSummary {
	return appSummary{
		ID:             client.ID,
		ClientID:       client.ClientID,
		AppName:        client.AppName,
		AppDescription: client.AppDescription,
		RedirectURIs:   client.RedirectURIs,
		HomepageURL:    client.HomepageURL,
		LogoURL:        client.LogoURL,
		Confidential:   client.Confidential,
		DefaultScopes:  client.DefaultScopes,
		CreatedAt:      client.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func clientToDetail(client storage.OAuthClient) appDetail {
	return appDetail{
		appSummary:   clientToSummary(client),
		ClientSecret: client.ClientSecret,
	}
}
