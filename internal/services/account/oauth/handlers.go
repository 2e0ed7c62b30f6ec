package oauth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gajwa-dev/account/internal/platform/id"
	"github.com/gajwa-dev/account/internal/platform/secret"
	"github.com/gajwa-dev/account/internal/services/account/storage"
	"github.com/gajwa-dev/account/internal/services/account/user"
)

const (
	accessTokenLength       = 64
	refreshTokenLength      = 64
	authorizationCodeLength = 48
)

type loginView struct {
	AppName    string
	PendingID  string
	ClientName string
	Error      string
}

type consentView struct {
	AppName    string
	PendingID  string
	ClientName string
	Name       string
	Scopes     []string
}

type errorView struct {
	AppName          string
	Error            string
	ErrorDescription string
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type userinfoResponse struct {
	Sub           string    `json:"sub"`
	LoginID       *string   `json:"login_id,omitempty"`
	Name          *string   `json:"name,omitempty"`
	Email         *string   `json:"email,omitempty"`
	Phone         *string   `json:"phone,omitempty"`
	StudentIDList *[]string `json:"student_id_list,omitempty"`
	DevVerifyDate *string   `json:"dev_verify_date,omitempty"`
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	params := r.URL.Query()
	responseType := params.Get("response_type")
	if responseType == "" {
		responseType = "code"
	}
	clientID := strings.TrimSpace(params.Get("client_id"))
	redirectURI := params.Get("redirect_uri")
	scope := strings.TrimSpace(params.Get("scope"))
	state := params.Get("state")
	codeChallenge := params.Get("code_challenge")
	codeChallengeMethod := params.Get("code_challenge_method")

	// The client and redirect URI are validated before anything else, so no
	// error is ever redirected to an unverified target.
	client, err := s.clients.GetClientByClientID(r.Context(), clientID)
	if err != nil {
		s.renderError(w, ErrCodeInvalidRequest, "Unknown client_id", http.StatusBadRequest)
		return
	}
	if redirectURI == "" {
		s.renderError(w, ErrCodeInvalidRequest, "redirect_uri is required", http.StatusBadRequest)
		return
	}
	if !redirectURIRegistered(redirectURI, client.RedirectURIs) {
		s.renderError(w, ErrCodeInvalidRequest, "redirect_uri is not registered", http.StatusBadRequest)
		return
	}

	if responseType != "code" {
		s.redirectError(w, r, redirectURI, state, ErrCodeUnsupportedResponseType, "Only 'code' response type is supported")
		return
	}
	if codeChallenge != "" {
		if !ValidCodeChallengeMethod(codeChallengeMethod) {
			s.redirectError(w, r, redirectURI, state, ErrCodeInvalidRequest, "code_challenge_method must be plain or S256")
			return
		}
		if !ValidateCodeChallenge(codeChallenge) {
			s.redirectError(w, r, redirectURI, state, ErrCodeInvalidRequest, "invalid code_challenge format")
			return
		}
	}
	if scope == "" {
		scope = client.DefaultScopes
	}
	if scope == "" {
		scope = DefaultScope
	}

	pendingID, err := id.NewID()
	if err != nil {
		s.redirectError(w, r, redirectURI, state, ErrCodeServerError, "failed to create authorization request")
		return
	}
	pending := storage.PendingAuthorization{
		ID:                  pendingID,
		ResponseType:        responseType,
		ClientID:            client.ClientID,
		RedirectURI:         redirectURI,
		Scope:               scope,
		State:               state,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: codeChallengeMethod,
		ExpiresAt:           s.clock().UTC().Add(s.config.PendingAuthorizationTTL),
	}
	if err := s.store.PutPendingAuthorization(r.Context(), pending); err != nil {
		s.redirectError(w, r, redirectURI, state, ErrCodeServerError, "failed to create authorization request")
		return
	}

	view := loginView{
		AppName:    "Gajwa Account",
		PendingID:  pendingID,
		ClientName: clientDisplayName(client),
	}
	if err := templates.ExecuteTemplate(w, "login.html", view); err != nil {
		http.Error(w, "failed to render login", http.StatusInternalServerError)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}

	pendingID := strings.TrimSpace(r.FormValue("pending_id"))
	loginID := strings.ToLower(strings.TrimSpace(r.FormValue("login_id")))
	password := r.FormValue("password")

	pending, err := s.loadPending(r.Context(), pendingID)
	if err != nil {
		s.renderError(w, ErrCodeInvalidRequest, "authorization session expired", http.StatusBadRequest)
		return
	}

	account, err := s.users.GetUserByLoginID(r.Context(), loginID)
	if err != nil {
		s.renderLoginError(w, pending, "invalid login id or password")
		return
	}
	ok, rehash := user.VerifyPassword(account.PasswordHash, password)
	if !ok || account.Deactivated() {
		s.renderLoginError(w, pending, "invalid login id or password")
		return
	}
	if rehash {
		if hash, err := user.HashPassword(password); err == nil {
			account.PasswordHash = hash
			account.UpdatedAt = s.clock().UTC()
			if err := s.users.PutUser(r.Context(), account); err != nil {
				log.Printf("upgrade password hash for %s: %v", account.ID, err)
			}
		}
	}

	if err := s.store.AttachPendingAuthorizationUser(r.Context(), pendingID, account.ID); err != nil {
		s.renderError(w, ErrCodeServerError, "failed to update authorization", http.StatusInternalServerError)
		return
	}
	pending.UserID = account.ID
	s.renderConsentView(w, r, pending, account)
}

func (s *Server) handleConsent(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		pendingID := strings.TrimSpace(r.URL.Query().Get("pending_id"))
		pending, err := s.loadPending(r.Context(), pendingID)
		if err != nil {
			s.renderError(w, ErrCodeInvalidRequest, "authorization session expired", http.StatusBadRequest)
			return
		}
		if pending.UserID == "" {
			s.renderError(w, ErrCodeInvalidRequest, "user not authenticated", http.StatusBadRequest)
			return
		}
		account, err := s.users.GetUser(r.Context(), pending.UserID)
		if err != nil {
			s.renderError(w, ErrCodeServerError, "failed to load user", http.StatusInternalServerError)
			return
		}
		s.renderConsentView(w, r, pending, account)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}

	pendingID := strings.TrimSpace(r.FormValue("pending_id"))
	decision := strings.TrimSpace(r.FormValue("decision"))

	pending, err := s.loadPending(r.Context(), pendingID)
	if err != nil {
		s.renderError(w, ErrCodeInvalidRequest, "authorization session expired", http.StatusBadRequest)
		return
	}
	if pending.UserID == "" {
		s.renderError(w, ErrCodeInvalidRequest, "user not authenticated", http.StatusBadRequest)
		return
	}

	defer func() {
		_ = s.store.DeletePendingAuthorization(r.Context(), pendingID)
	}()

	if decision != "allow" {
		s.redirectError(w, r, pending.RedirectURI, pending.State, ErrCodeAccessDenied, "user denied the request")
		return
	}

	code, err := secret.NewToken(authorizationCodeLength)
	if err != nil {
		s.redirectError(w, r, pending.RedirectURI, pending.State, ErrCodeServerError, "failed to create authorization code")
		return
	}
	now := s.clock().UTC()
	record := storage.AuthorizationCode{
		Code:                code,
		UserID:              pending.UserID,
		ClientID:            pending.ClientID,
		RedirectURI:         pending.RedirectURI,
		Scope:               pending.Scope,
		CodeChallenge:       pending.CodeChallenge,
		CodeChallengeMethod: pending.CodeChallengeMethod,
		ExpiresAt:           now.Add(s.config.AuthorizationCodeTTL),
		CreatedAt:           now,
	}
	if err := s.store.PutAuthorizationCode(r.Context(), record); err != nil {
		s.redirectError(w, r, pending.RedirectURI, pending.State, ErrCodeServerError, "failed to create authorization code")
		return
	}

	redirectURL, err := url.Parse(pending.RedirectURI)
	if err != nil {
		s.renderError(w, ErrCodeServerError, "invalid redirect uri", http.StatusInternalServerError)
		return
	}
	query := redirectURL.Query()
	query.Set("code", code)
	if pending.State != "" {
		query.Set("state", pending.State)
	}
	redirectURL.RawQuery = query.Encode()
	http.Redirect(w, r, redirectURL.String(), http.StatusFound)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeTokenError(w, NewError(ErrCodeInvalidRequest, "method not allowed"))
		return
	}
	if err := r.ParseForm(); err != nil {
		writeTokenError(w, NewError(ErrCodeInvalidRequest, "invalid form data"))
		return
	}

	clientID, clientSecret := clientCredentials(r)
	client, err := s.clients.GetClientByClientID(r.Context(), clientID)
	if err != nil {
		writeTokenError(w, NewError(ErrCodeInvalidClient, ""))
		return
	}
	if client.Confidential {
		if subtle.ConstantTimeCompare([]byte(clientSecret), []byte(client.ClientSecret)) != 1 {
			writeTokenError(w, NewError(ErrCodeInvalidClient, ""))
			return
		}
	}

	switch r.FormValue("grant_type") {
	case "authorization_code":
		s.exchangeAuthorizationCode(w, r, client)
	case "refresh_token":
		s.refreshAccessToken(w, r, client)
	default:
		writeTokenError(w, NewError(ErrCodeUnsupportedGrantType, ""))
	}
}

func (s *Server) exchangeAuthorizationCode(w http.ResponseWriter, r *http.Request, client storage.OAuthClient) {
	code := r.FormValue("code")
	redirectURI := r.FormValue("redirect_uri")
	codeVerifier := r.FormValue("code_verifier")

	if code == "" || redirectURI == "" {
		writeTokenError(w, NewError(ErrCodeInvalidRequest, "missing required fields"))
		return
	}

	authCode, err := s.store.GetAuthorizationCode(r.Context(), client.ClientID, code)
	if err != nil {
		writeTokenError(w, NewError(ErrCodeInvalidGrant, "invalid authorization code"))
		return
	}
	if s.clock().UTC().After(authCode.ExpiresAt) {
		_ = s.store.DeleteAuthorizationCode(r.Context(), code)
		writeTokenError(w, NewError(ErrCodeInvalidGrant, "authorization code expired"))
		return
	}
	if authCode.Used {
		s.revokeReplayedGrant(r.Context(), authCode)
		writeTokenError(w, NewError(ErrCodeInvalidGrant, "authorization code already used"))
		return
	}
	if authCode.RedirectURI != redirectURI {
		writeTokenError(w, NewError(ErrCodeInvalidGrant, "redirect_uri mismatch"))
		return
	}
	if authCode.CodeChallenge != "" {
		if codeVerifier == "" {
			writeTokenError(w, NewError(ErrCodeInvalidRequest, "code_verifier is required"))
			return
		}
		if !ValidatePKCE(codeVerifier, authCode.CodeChallenge, authCode.CodeChallengeMethod) {
			writeTokenError(w, NewError(ErrCodeInvalidGrant, "PKCE verification failed"))
			return
		}
	}

	won, err := s.store.MarkAuthorizationCodeUsed(r.Context(), code)
	if err != nil {
		writeTokenError(w, NewError(ErrCodeServerError, "failed to redeem authorization code"))
		return
	}
	if !won {
		// A concurrent exchange redeemed the code first. Treat the loser as
		// a replay and revoke everything issued to the pair.
		s.revokeReplayedGrant(r.Context(), authCode)
		writeTokenError(w, NewError(ErrCodeInvalidGrant, "authorization code already used"))
		return
	}

	token, err := s.issueToken(r.Context(), client.ClientID, authCode.UserID, authCode.Scope, true)
	if err != nil {
		writeTokenError(w, NewError(ErrCodeServerError, "failed to create access token"))
		return
	}
	_ = s.store.DeleteAuthorizationCode(r.Context(), code)

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		ExpiresIn:    int64(s.config.TokenTTL.Seconds()),
		RefreshToken: token.RefreshToken,
		Scope:        token.Scope,
	})
}

func (s *Server) refreshAccessToken(w http.ResponseWriter, r *http.Request, client storage.OAuthClient) {
	refreshToken := r.FormValue("refresh_token")
	if refreshToken == "" {
		writeTokenError(w, NewError(ErrCodeInvalidRequest, "refresh_token is required"))
		return
	}

	token, err := s.store.GetTokenByRefresh(r.Context(), client.ClientID, refreshToken)
	if err != nil {
		writeTokenError(w, NewError(ErrCodeInvalidGrant, "invalid refresh token"))
		return
	}

	accessToken, err := secret.NewToken(accessTokenLength)
	if err != nil {
		writeTokenError(w, NewError(ErrCodeServerError, "failed to create access token"))
		return
	}
	expiresAt := s.clock().UTC().Add(s.config.TokenTTL)
	if err := s.store.RotateAccessToken(r.Context(), token.ID, accessToken, expiresAt); err != nil {
		writeTokenError(w, NewError(ErrCodeServerError, "failed to rotate access token"))
		return
	}

	// The refresh token is returned unchanged; only the access token rotates.
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  accessToken,
		TokenType:    token.TokenType,
		ExpiresIn:    int64(s.config.TokenTTL.Seconds()),
		RefreshToken: refreshToken,
		Scope:        token.Scope,
	})
}

func (s *Server) handleUserinfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	accessToken := bearerToken(r)
	if accessToken == "" {
		writeUserinfoError(w, NewError(ErrCodeInvalidRequest, "missing or malformed bearer token"))
		return
	}
	token, err := s.store.GetTokenByAccess(r.Context(), accessToken)
	if err != nil {
		writeUserinfoError(w, NewError(ErrCodeInvalidGrant, "invalid access token"))
		return
	}
	if s.clock().UTC().After(token.ExpiresAt) {
		writeUserinfoError(w, NewError(ErrCodeInvalidGrant, "access token expired"))
		return
	}
	account, err := s.users.GetUser(r.Context(), token.UserID)
	if err != nil || account.Deactivated() {
		writeUserinfoError(w, NewError(ErrCodeInvalidGrant, "invalid access token"))
		return
	}

	writeJSON(w, http.StatusOK, buildUserinfo(account, token.Scope, s.clock().UTC()))
}

// buildUserinfo filters profile fields by the token's granted scopes. Absent
// scopes leave their fields out of the response entirely.
func buildUserinfo(account user.User, scope string, now time.Time) userinfoResponse {
	scopes := make(map[string]bool)
	for _, value := range strings.Fields(scope) {
		scopes[value] = true
	}

	response := userinfoResponse{Sub: account.ID}
	if scopes["profile"] {
		response.LoginID = &account.LoginID
		response.Name = &account.Name
	}
	if scopes["email"] {
		response.Email = &account.Email
	}
	if scopes["phone"] {
		response.Phone = &account.Phone
	}
	if scopes["student_id"] {
		list := account.StudentIDs
		if list == nil {
			list = []string{}
		}
		response.StudentIDList = &list
	}
	if scopes["developer"] && account.DevVerified(now) {
		value := account.DevVerifyDate.UTC().Format(time.RFC3339)
		response.DevVerifyDate = &value
	}
	return response
}

// revokeReplayedGrant compensates for a redeemed code being presented again:
// every token issued to the client and user pair is revoked, and the code is
// removed.
func (s *Server) revokeReplayedGrant(ctx context.Context, authCode storage.AuthorizationCode) {
	log.Printf("authorization code replay detected for client %s user %s, revoking tokens", authCode.ClientID, authCode.UserID)
	if err := s.store.DeleteTokensForClientUser(ctx, authCode.ClientID, authCode.UserID); err != nil {
		log.Printf("revoke tokens after code replay: %v", err)
	}
	_ = s.store.DeleteAuthorizationCode(ctx, authCode.Code)
}

func (s *Server) issueToken(ctx context.Context, clientID, userID, scope string, withRefresh bool) (storage.OAuthToken, error) {
	tokenID, err := id.NewID()
	if err != nil {
		return storage.OAuthToken{}, err
	}
	accessToken, err := secret.NewToken(accessTokenLength)
	if err != nil {
		return storage.OAuthToken{}, err
	}
	refreshToken := ""
	if withRefresh {
		refreshToken, err = secret.NewToken(refreshTokenLength)
		if err != nil {
			return storage.OAuthToken{}, err
		}
	}

	now := s.clock().UTC()
	token := storage.OAuthToken{
		ID:           tokenID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserID:       userID,
		ClientID:     clientID,
		Scope:        scope,
		TokenType:    "Bearer",
		ExpiresAt:    now.Add(s.config.TokenTTL),
		CreatedAt:    now,
	}
	if err := s.store.PutToken(ctx, token); err != nil {
		return storage.OAuthToken{}, err
	}
	return token, nil
}

// loadPending fetches a pending authorization and removes it when expired.
func (s *Server) loadPending(ctx context.Context, pendingID string) (storage.PendingAuthorization, error) {
	if pendingID == "" {
		return storage.PendingAuthorization{}, storage.ErrNotFound
	}
	pending, err := s.store.GetPendingAuthorization(ctx, pendingID)
	if err != nil {
		return storage.PendingAuthorization{}, err
	}
	if pending.ExpiresAt.Before(s.clock().UTC()) {
		_ = s.store.DeletePendingAuthorization(ctx, pendingID)
		return storage.PendingAuthorization{}, storage.ErrNotFound
	}
	return pending, nil
}

func (s *Server) renderError(w http.ResponseWriter, code, description string, status int) {
	w.WriteHeader(status)
	_ = templates.ExecuteTemplate(w, "error.html", errorView{AppName: "Gajwa Account", Error: code, ErrorDescription: description})
}

func (s *Server) renderLoginError(w http.ResponseWriter, pending storage.PendingAuthorization, message string) {
	client, err := s.clients.GetClientByClientID(context.Background(), pending.ClientID)
	name := pending.ClientID
	if err == nil {
		name = clientDisplayName(client)
	}
	view := loginView{
		AppName:    "Gajwa Account",
		PendingID:  pending.ID,
		ClientName: name,
		Error:      message,
	}
	_ = templates.ExecuteTemplate(w, "login.html", view)
}

func (s *Server) renderConsentView(w http.ResponseWriter, r *http.Request, pending storage.PendingAuthorization, account user.User) {
	name := pending.ClientID
	if client, err := s.clients.GetClientByClientID(r.Context(), pending.ClientID); err == nil {
		name = clientDisplayName(client)
	}
	view := consentView{
		AppName:    "Gajwa Account",
		PendingID:  pending.ID,
		ClientName: name,
		Name:       account.Name,
		Scopes:     strings.Fields(pending.Scope),
	}
	_ = templates.ExecuteTemplate(w, "consent.html", view)
}

func (s *Server) redirectError(w http.ResponseWriter, r *http.Request, redirectURI, state, code, description string) {
	redirectURL, err := url.Parse(redirectURI)
	if err != nil {
		s.renderError(w, ErrCodeServerError, "invalid redirect uri", http.StatusInternalServerError)
		return
	}
	query := redirectURL.Query()
	query.Set("error", code)
	query.Set("error_description", description)
	if state != "" {
		query.Set("state", state)
	}
	redirectURL.RawQuery = query.Encode()
	http.Redirect(w, r, redirectURL.String(), http.StatusFound)
}

func clientDisplayName(client storage.OAuthClient) string {
	if client.AppName != "" {
		return client.AppName
	}
	return client.ClientID
}

func redirectURIRegistered(uri string, registered []string) bool {
	for _, value := range registered {
		if value == uri {
			return true
		}
	}
	return false
}

// clientCredentials reads client authentication from the form body or HTTP
// Basic auth.
func clientCredentials(r *http.Request) (string, string) {
	if clientID, clientSecret, ok := r.BasicAuth(); ok {
		if unescaped, err := url.QueryUnescape(clientID); err == nil {
			clientID = unescaped
		}
		if unescaped, err := url.QueryUnescape(clientSecret); err == nil {
			clientSecret = unescaped
		}
		return clientID, clientSecret
	}
	return r.FormValue("client_id"), r.FormValue("client_secret")
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func writeTokenError(w http.ResponseWriter, protocolErr *Error) {
	if protocolErr.Code == ErrCodeInvalidClient {
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth"`)
	}
	writeJSON(w, protocolErr.HTTPStatus(), errorResponse{Error: protocolErr.Code, ErrorDescription: protocolErr.Description})
}

// writeUserinfoError applies the same error-kind to status mapping the token
// endpoint uses; the grant family stays 400 here too.
func writeUserinfoError(w http.ResponseWriter, protocolErr *Error) {
	writeJSON(w, protocolErr.HTTPStatus(), errorResponse{Error: protocolErr.Code, ErrorDescription: protocolErr.Description})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}
