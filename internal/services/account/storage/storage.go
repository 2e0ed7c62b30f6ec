// Package storage defines persistence interfaces and record types for the
// account service.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/gajwa-dev/account/internal/services/account/user"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// UserStore persists account identity records.
type UserStore interface {
	PutUser(ctx context.Context, u user.User) error
	GetUser(ctx context.Context, userID string) (user.User, error)
	GetUserByLoginID(ctx context.Context, loginID string) (user.User, error)
	// DeleteUser removes the user and, in the same transaction, every
	// passkey, web session, token, code, and owned client hanging off it.
	DeleteUser(ctx context.Context, userID string) error
}

// PasskeyCredential stores a WebAuthn credential for a user.
//
// CredentialID is the authenticator-chosen identifier, base64url-encoded.
// CredentialJSON is the full webauthn.Credential record; SignCount mirrors the
// counter inside it for visibility and for the monotonicity invariant.
type PasskeyCredential struct {
	CredentialID   string
	UserID         string
	CredentialJSON string
	SignCount      uint32
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastUsedAt     *time.Time
}

// PasskeySession stores a pending WebAuthn ceremony challenge.
// Sessions are single-use: consumed on ceremony completion, success or not.
type PasskeySession struct {
	ID          string
	Kind        string
	UserID      string
	SessionJSON string
	ExpiresAt   time.Time
}

// PasskeyStore persists WebAuthn credential and ceremony session data.
type PasskeyStore interface {
	PutPasskeyCredential(ctx context.Context, credential PasskeyCredential) error
	GetPasskeyCredential(ctx context.Context, credentialID string) (PasskeyCredential, error)
	ListPasskeyCredentials(ctx context.Context, userID string) ([]PasskeyCredential, error)
	DeletePasskeyCredential(ctx context.Context, credentialID string) error
	PutPasskeySession(ctx context.Context, session PasskeySession) error
	GetPasskeySession(ctx context.Context, id string) (PasskeySession, error)
	DeletePasskeySession(ctx context.Context, id string) error
	DeleteExpiredPasskeySessions(ctx context.Context, now time.Time) error
}

// OAuthClient is a registered third-party application.
type OAuthClient struct {
	ID             string
	ClientID       string
	ClientSecret   string
	AppName        string
	AppDescription string
	RedirectURIs   []string
	HomepageURL    string
	LogoURL        string
	Confidential   bool
	DefaultScopes  string
	DeveloperID    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ClientStore persists OAuth client registrations.
type ClientStore interface {
	PutClient(ctx context.Context, client OAuthClient) error
	GetClient(ctx context.Context, id string) (OAuthClient, error)
	GetClientByClientID(ctx context.Context, clientID string) (OAuthClient, error)
	ListClientsByDeveloper(ctx context.Context, developerID string) ([]OAuthClient, error)
	// DeleteClient removes the client and cascades to its tokens and
	// outstanding authorization codes in one transaction.
	DeleteClient(ctx context.Context, id string) error
}

// AuthorizationCode is a single-use grant artifact.
type AuthorizationCode struct {
	Code                string
	UserID              string
	ClientID            string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           time.Time
	Used                bool
	CreatedAt           time.Time
}

// OAuthToken is a bearer credential pair.
type OAuthToken struct {
	ID           string
	AccessToken  string
	RefreshToken string
	UserID       string
	ClientID     string
	Scope        string
	TokenType    string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// PendingAuthorization correlates an authorize request across the login and
// consent round-trips. UserID is empty until authentication completes.
type PendingAuthorization struct {
	ID                  string
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	UserID              string
	ExpiresAt           time.Time
}

// OAuthStore persists authorization codes, tokens, and pending authorizations.
type OAuthStore interface {
	PutAuthorizationCode(ctx context.Context, code AuthorizationCode) error
	GetAuthorizationCode(ctx context.Context, clientID, code string) (AuthorizationCode, error)
	// MarkAuthorizationCodeUsed flips used from 0 to 1 and reports whether
	// this call won the flip. Exactly one concurrent redemption can win.
	MarkAuthorizationCodeUsed(ctx context.Context, code string) (bool, error)
	DeleteAuthorizationCode(ctx context.Context, code string) error

	PutToken(ctx context.Context, token OAuthToken) error
	GetTokenByAccess(ctx context.Context, accessToken string) (OAuthToken, error)
	GetTokenByRefresh(ctx context.Context, clientID, refreshToken string) (OAuthToken, error)
	// RotateAccessToken replaces the access token value and expiry in place.
	RotateAccessToken(ctx context.Context, tokenID, accessToken string, expiresAt time.Time) error
	// DeleteTokensForClientUser revokes every token issued to the pair.
	// This is the replay-attack compensation path.
	DeleteTokensForClientUser(ctx context.Context, clientID, userID string) error

	PutPendingAuthorization(ctx context.Context, pending PendingAuthorization) error
	GetPendingAuthorization(ctx context.Context, id string) (PendingAuthorization, error)
	AttachPendingAuthorizationUser(ctx context.Context, id, userID string) error
	DeletePendingAuthorization(ctx context.Context, id string) error

	DeleteExpiredOAuthRecords(ctx context.Context, now time.Time) error
}

// WebSession is a durable authenticated browser session.
type WebSession struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// WebSessionStore persists authenticated web sessions.
type WebSessionStore interface {
	PutWebSession(ctx context.Context, session WebSession) error
	GetWebSession(ctx context.Context, id string) (WebSession, error)
	RevokeWebSession(ctx context.Context, id string, revokedAt time.Time) error
	DeleteExpiredWebSessions(ctx context.Context, now time.Time) error
}
