package passkey

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/gajwa-dev/account/internal/platform/id"
	"github.com/gajwa-dev/account/internal/services/account/storage"
	"github.com/gajwa-dev/account/internal/services/account/user"
)

var (
	// ErrChallengeNotFound indicates the ceremony session is missing,
	// expired, or already consumed.
	ErrChallengeNotFound = errors.New("passkey challenge not found")
	// ErrCredentialNotFound indicates no stored credential matches the
	// asserted credential ID.
	ErrCredentialNotFound = errors.New("passkey credential not found")
	// ErrCredentialExists indicates the credential ID is already registered.
	ErrCredentialExists = errors.New("passkey credential already registered")
	// ErrAttestationFailed indicates the registration response failed
	// verification against the stored challenge.
	ErrAttestationFailed = errors.New("passkey attestation failed")
	// ErrAssertionFailed indicates the login response failed verification.
	ErrAssertionFailed = errors.New("passkey assertion failed")
	// ErrSignCountRegression indicates the asserted signature counter did
	// not advance past the stored one. The credential may be cloned; the
	// assertion is rejected and nothing is persisted.
	ErrSignCountRegression = errors.New("passkey sign count regression")
)

type provider interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginDiscoverableLogin(opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidatePasskeyLogin(handler webauthn.DiscoverableUserHandler, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (webauthn.User, *webauthn.Credential, error)
}

type parser interface {
	ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error)
	ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error)
}

type defaultParser struct{}

func (defaultParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBytes(data)
}

func (defaultParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBytes(data)
}

// Engine runs WebAuthn ceremonies against the credential store. Challenges
// live server-side as single-use sessions keyed by a generated session ID.
type Engine struct {
	config   Config
	provider provider
	parser   parser
	users    storage.UserStore
	store    storage.PasskeyStore
	clock    func() time.Time
	newID    func() (string, error)
}

// NewEngine builds a ceremony engine from relying party configuration.
func NewEngine(config Config, users storage.UserStore, store storage.PasskeyStore) (*Engine, error) {
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if store == nil {
		return nil, fmt.Errorf("passkey store is required")
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = 5 * time.Minute
	}

	webAuthn, err := webauthn.New(&webauthn.Config{
		RPDisplayName: config.RPDisplayName,
		RPID:          config.RPID,
		RPOrigins:     config.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("configure webauthn: %w", err)
	}

	return &Engine{
		config:   config,
		provider: webAuthn,
		parser:   defaultParser{},
		users:    users,
		store:    store,
		clock:    time.Now,
		newID:    id.NewID,
	}, nil
}

// BeginRegistration starts a registration ceremony for an existing user.
// Already-registered credentials are excluded so authenticators refuse to
// re-enroll, and resident keys are required so logins can be discoverable.
func (e *Engine) BeginRegistration(ctx context.Context, account user.User) (string, []byte, error) {
	ceremonyUser, err := e.loadCeremonyUser(ctx, account)
	if err != nil {
		return "", nil, err
	}

	options := []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
	}
	if len(ceremonyUser.credentials) > 0 {
		options = append(options, webauthn.WithExclusions(webauthn.Credentials(ceremonyUser.credentials).CredentialDescriptors()))
	}

	creation, session, err := e.provider.BeginRegistration(ceremonyUser, options...)
	if err != nil {
		return "", nil, fmt.Errorf("begin registration: %w", err)
	}

	sessionID, err := e.storeSession(ctx, SessionKindRegistration, account.ID, session)
	if err != nil {
		return "", nil, err
	}
	optionsJSON, err := json.Marshal(creation)
	if err != nil {
		return "", nil, fmt.Errorf("encode creation options: %w", err)
	}
	return sessionID, optionsJSON, nil
}

// FinishRegistration verifies the authenticator's attestation response against
// the stored challenge and persists the new credential. The unique predicate
// lets the caller reject credential IDs registered to someone else. The session
// is consumed whether or not verification succeeds.
func (e *Engine) FinishRegistration(ctx context.Context, sessionID string, responseJSON []byte, unique func(credentialID string) (bool, error)) (string, error) {
	session, err := e.consumeSession(ctx, sessionID, SessionKindRegistration)
	if err != nil {
		return "", err
	}
	if session.UserID == "" {
		return "", fmt.Errorf("registration session missing user id")
	}

	account, err := e.users.GetUser(ctx, session.UserID)
	if err != nil {
		return "", fmt.Errorf("load registering user: %w", err)
	}
	ceremonyUser, err := e.loadCeremonyUser(ctx, account)
	if err != nil {
		return "", err
	}

	parsed, err := e.parser.ParseCredentialCreationResponseBytes(responseJSON)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAttestationFailed, err)
	}
	credential, err := e.provider.CreateCredential(ceremonyUser, session.Data, parsed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAttestationFailed, err)
	}

	credentialID := EncodeCredentialID(credential.ID)
	if unique != nil {
		ok, err := unique(credentialID)
		if err != nil {
			return "", fmt.Errorf("check credential uniqueness: %w", err)
		}
		if !ok {
			return "", ErrCredentialExists
		}
	}

	if err := e.persistCredential(ctx, account.ID, *credential, false); err != nil {
		return "", fmt.Errorf("store credential: %w", err)
	}
	return credentialID, nil
}

// BeginLogin starts a discoverable login ceremony. The authenticator picks the
// resident credential, so no user ID is required up front.
func (e *Engine) BeginLogin(ctx context.Context) (string, []byte, error) {
	assertion, session, err := e.provider.BeginDiscoverableLogin()
	if err != nil {
		return "", nil, fmt.Errorf("begin login: %w", err)
	}

	sessionID, err := e.storeSession(ctx, SessionKindLogin, "", session)
	if err != nil {
		return "", nil, err
	}
	optionsJSON, err := json.Marshal(assertion)
	if err != nil {
		return "", nil, fmt.Errorf("encode assertion options: %w", err)
	}
	return sessionID, optionsJSON, nil
}

// FinishLogin verifies the assertion response, enforces sign count
// monotonicity, and returns the authenticated user. On a sign count regression
// the stored credential is left untouched and ErrSignCountRegression is
// returned. The session is consumed whether or not verification succeeds.
func (e *Engine) FinishLogin(ctx context.Context, sessionID string, responseJSON []byte) (user.User, string, error) {
	session, err := e.consumeSession(ctx, sessionID, SessionKindLogin)
	if err != nil {
		return user.User{}, "", err
	}

	parsed, err := e.parser.ParseCredentialRequestResponseBytes(responseJSON)
	if err != nil {
		return user.User{}, "", fmt.Errorf("%w: %v", ErrAssertionFailed, err)
	}

	validatedUser, validatedCredential, err := e.provider.ValidatePasskeyLogin(e.discoverUser(ctx), session.Data, parsed)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return user.User{}, "", ErrCredentialNotFound
		}
		return user.User{}, "", fmt.Errorf("%w: %v", ErrAssertionFailed, err)
	}

	record, ok := validatedUser.(*ceremonyUser)
	if !ok {
		return user.User{}, "", fmt.Errorf("unexpected webauthn user type %T", validatedUser)
	}

	if validatedCredential.Authenticator.CloneWarning {
		return user.User{}, "", ErrSignCountRegression
	}

	if err := e.persistCredential(ctx, record.account.ID, *validatedCredential, true); err != nil {
		return user.User{}, "", fmt.Errorf("store credential: %w", err)
	}
	return record.account, EncodeCredentialID(validatedCredential.ID), nil
}

// DeleteExpiredSessions removes ceremony sessions past their TTL.
func (e *Engine) DeleteExpiredSessions(ctx context.Context) error {
	return e.store.DeleteExpiredPasskeySessions(ctx, e.clock().UTC())
}

// EncodeCredentialID renders an authenticator-chosen credential ID in the
// form used as the store's primary key.
func EncodeCredentialID(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

type ceremonyUser struct {
	account     user.User
	credentials []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte { return []byte(u.account.ID) }

func (u *ceremonyUser) WebAuthnName() string { return u.account.LoginID }

func (u *ceremonyUser) WebAuthnDisplayName() string { return u.account.Name }

func (u *ceremonyUser) WebAuthnIcon() string { return "" }

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

func (e *Engine) loadCeremonyUser(ctx context.Context, account user.User) (*ceremonyUser, error) {
	records, err := e.store.ListPasskeyCredentials(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	credentials, err := decodeStoredCredentials(records)
	if err != nil {
		return nil, err
	}
	return &ceremonyUser{account: account, credentials: credentials}, nil
}

// discoverUser resolves the account behind a discoverable assertion. The
// authenticator reports the user handle it stored at registration, which is
// the account's internal ID.
func (e *Engine) discoverUser(ctx context.Context) webauthn.DiscoverableUserHandler {
	return func(rawID, userHandle []byte) (webauthn.User, error) {
		userID := strings.TrimSpace(string(userHandle))
		if userID == "" {
			record, err := e.store.GetPasskeyCredential(ctx, EncodeCredentialID(rawID))
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return nil, ErrCredentialNotFound
				}
				return nil, err
			}
			userID = record.UserID
		}

		account, err := e.users.GetUser(ctx, userID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, ErrCredentialNotFound
			}
			return nil, err
		}
		ceremonyUser, err := e.loadCeremonyUser(ctx, account)
		if err != nil {
			return nil, err
		}
		if len(ceremonyUser.credentials) == 0 {
			return nil, ErrCredentialNotFound
		}
		return ceremonyUser, nil
	}
}

func (e *Engine) storeSession(ctx context.Context, kind SessionKind, userID string, session *webauthn.SessionData) (string, error) {
	if session == nil {
		return "", fmt.Errorf("session data is required")
	}
	sessionID, err := e.newID()
	if err != nil {
		return "", fmt.Errorf("create session id: %w", err)
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	err = e.store.PutPasskeySession(ctx, storage.PasskeySession{
		ID:          sessionID,
		Kind:        string(kind),
		UserID:      userID,
		SessionJSON: string(payload),
		ExpiresAt:   e.clock().UTC().Add(e.config.SessionTTL),
	})
	if err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return sessionID, nil
}

type loadedSession struct {
	Data   webauthn.SessionData
	Kind   SessionKind
	UserID string
}

// consumeSession loads and deletes a ceremony session. Single use: a second
// finish attempt with the same session ID fails with ErrChallengeNotFound.
func (e *Engine) consumeSession(ctx context.Context, sessionID string, expectedKind SessionKind) (loadedSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return loadedSession{}, ErrChallengeNotFound
	}

	stored, err := e.store.GetPasskeySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return loadedSession{}, ErrChallengeNotFound
		}
		return loadedSession{}, fmt.Errorf("load session: %w", err)
	}
	_ = e.store.DeletePasskeySession(ctx, sessionID)

	if SessionKind(stored.Kind) != expectedKind {
		return loadedSession{}, ErrChallengeNotFound
	}
	if !stored.ExpiresAt.After(e.clock().UTC()) {
		return loadedSession{}, ErrChallengeNotFound
	}

	var data webauthn.SessionData
	if err := json.Unmarshal([]byte(stored.SessionJSON), &data); err != nil {
		return loadedSession{}, fmt.Errorf("decode session: %w", err)
	}
	return loadedSession{Data: data, Kind: SessionKind(stored.Kind), UserID: stored.UserID}, nil
}

func (e *Engine) persistCredential(ctx context.Context, userID string, credential webauthn.Credential, used bool) error {
	credentialID := EncodeCredentialID(credential.ID)
	now := e.clock().UTC()

	stored, err := e.store.GetPasskeyCredential(ctx, credentialID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if errors.Is(err, storage.ErrNotFound) && used {
		return ErrCredentialNotFound
	}

	createdAt := now
	if err == nil {
		createdAt = stored.CreatedAt
	}
	credentialJSON, err := json.Marshal(credential)
	if err != nil {
		return err
	}
	var lastUsed *time.Time
	if used {
		value := now
		lastUsed = &value
	}
	return e.store.PutPasskeyCredential(ctx, storage.PasskeyCredential{
		CredentialID:   credentialID,
		UserID:         userID,
		CredentialJSON: string(credentialJSON),
		SignCount:      credential.Authenticator.SignCount,
		CreatedAt:      createdAt,
		UpdatedAt:      now,
		LastUsedAt:     lastUsed,
	})
}

func decodeStoredCredentials(records []storage.PasskeyCredential) ([]webauthn.Credential, error) {
	if len(records) == 0 {
		return nil, nil
	}
	credentials := make([]webauthn.Credential, 0, len(records))
	for _, record := range records {
		var credential webauthn.Credential
		if err := json.Unmarshal([]byte(record.CredentialJSON), &credential); err != nil {
			return nil, fmt.Errorf("decode credential %s: %w", record.CredentialID, err)
		}
		credentials = append(credentials, credential)
	}
	return credentials, nil
}
