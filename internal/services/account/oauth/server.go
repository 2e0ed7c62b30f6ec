// Package oauth implements the OAuth 2.0 authorization server: the
// authorization-code grant with PKCE, refresh tokens, and the userinfo
// endpoint.
package oauth

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gajwa-dev/account/internal/services/account/storage"
)

// Server hosts the authorization server HTTP endpoints.
type Server struct {
	config  Config
	users   storage.UserStore
	clients storage.ClientStore
	store   storage.OAuthStore
	clock   func() time.Time
}

// NewServer builds an authorization server bound to its backing stores.
func NewServer(config Config, users storage.UserStore, clients storage.ClientStore, store storage.OAuthStore) *Server {
	if config.TokenTTL <= 0 {
		config.TokenTTL = time.Hour
	}
	if config.AuthorizationCodeTTL <= 0 {
		config.AuthorizationCodeTTL = 10 * time.Minute
	}
	if config.PendingAuthorizationTTL <= 0 {
		config.PendingAuthorizationTTL = 15 * time.Minute
	}
	return &Server{
		config:  config,
		users:   users,
		clients: clients,
		store:   store,
		clock:   time.Now,
	}
}

// RegisterRoutes registers authorization server endpoints on the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/oauth/authorize", s.handleAuthorize)
	mux.HandleFunc("/oauth/authorize/login", s.handleLogin)
	mux.HandleFunc("/oauth/authorize/consent", s.handleConsent)
	mux.HandleFunc("/oauth/token", s.handleToken)
	mux.HandleFunc("/oauth/userinfo", s.handleUserinfo)
	mux.HandleFunc("/.well-known/oauth-authorization-server", s.handleMetadata)
}

// StartCleanup starts periodic expiry cleanup for codes, tokens without a
// refresh token, and pending authorizations.
func (s *Server) StartCleanup(ctx context.Context, interval time.Duration) {
	if s == nil || s.store == nil || interval <= 0 {
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
				if err := s.store.DeleteExpiredOAuthRecords(ctx, s.clock().UTC()); err != nil {
					log.Printf("oauth cleanup: %v", err)
				}
			}
		}
	}()
}
