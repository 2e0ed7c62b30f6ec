package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gajwa-dev/account/internal/services/account/api/web"
	"github.com/gajwa-dev/account/internal/services/account/oauth"
	"github.com/gajwa-dev/account/internal/services/account/passkey"
	accountsqlite "github.com/gajwa-dev/account/internal/services/account/storage/sqlite"
)

const cleanupInterval = 5 * time.Minute

// Server hosts the account service: the OAuth authorization endpoints and
// the session-authenticated JSON API on a single HTTP listener.
type Server struct {
	listener    net.Listener
	httpServer  *http.Server
	store       *accountsqlite.Store
	oauthServer *oauth.Server
	webHandler  *web.Handler
}

// New creates a configured account server listening on addr.
func New(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	store, err := openAccountStore()
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	oauthConfig := oauth.LoadConfigFromEnv()
	if oauthConfig.Issuer == "" {
		oauthConfig.Issuer = defaultIssuer(addr)
	}
	oauthServer := oauth.NewServer(oauthConfig, store, store, store)

	engine, err := passkey.NewEngine(passkey.LoadConfigFromEnv(), store, store)
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("configure passkey engine: %w", err)
	}
	webHandler := web.NewHandler(store, store, store, store, store, engine)

	mux := http.NewServeMux()
	oauthServer.RegisterRoutes(mux)
	webHandler.RegisterRoutes(mux)

	return &Server{
		listener:    listener,
		httpServer:  &http.Server{Handler: mux},
		store:       store,
		oauthServer: oauthServer,
		webHandler:  webHandler,
	}, nil
}

// Addr returns the listener address for the account server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves an account server until the context ends.
func Run(ctx context.Context, addr string) error {
	accountServer, err := New(addr)
	if err != nil {
		return err
	}
	return accountServer.Serve(ctx)
}

// Serve starts the account server and blocks until it stops or the context
// ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.closeStore()

	s.oauthServer.StartCleanup(serverCtx, cleanupInterval)
	s.webHandler.StartCleanup(serverCtx, cleanupInterval)

	log.Printf("account server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	handleErr := func(err error) error {
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		_ = s.httpServer.Shutdown(shutdownCtx)
		return handleErr(<-serveErr)
	case err := <-serveErr:
		return handleErr(err)
	}
}

func openAccountStore() (*accountsqlite.Store, error) {
	path := strings.TrimSpace(os.Getenv("GAJWA_ACCOUNT_DB_PATH"))
	if path == "" {
		path = filepath.Join("data", "account.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := accountsqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open account sqlite store: %w", err)
	}
	return store, nil
}

func (s *Server) closeStore() {
	if s == nil {
		return
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close account store: %v", err)
		}
	}
}

func defaultIssuer(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/")
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
