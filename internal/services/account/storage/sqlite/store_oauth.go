package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gajwa-dev/account/internal/services/account/storage"
)

const clientColumns = "id, client_id, client_secret, app_name, app_description, redirect_uris, homepage_url, logo_url, confidential, default_scopes, developer_id, created_at, updated_at"

// PutClient inserts or replaces an OAuth client registration.
func (s *Store) PutClient(ctx context.Context, client storage.OAuthClient) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if strings.TrimSpace(client.ID) == "" {
		return fmt.Errorf("client id is required")
	}
	if strings.TrimSpace(client.ClientID) == "" {
		return fmt.Errorf("public client id is required")
	}

	redirectURIs, err := json.Marshal(client.RedirectURIs)
	if err != nil {
		return fmt.Errorf("encode redirect uris: %w", err)
	}

	confidential := 0
	if client.Confidential {
		confidential = 1
	}

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO oauth_clients (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			client_secret = excluded.client_secret,
			app_name = excluded.app_name,
			app_description = excluded.app_description,
			redirect_uris = excluded.redirect_uris,
			homepage_url = excluded.homepage_url,
			logo_url = excluded.logo_url,
			confidential = excluded.confidential,
			default_scopes = excluded.default_scopes,
			updated_at = excluded.updated_at`,
		client.ID, client.ClientID, client.ClientSecret, client.AppName, client.AppDescription,
		string(redirectURIs), client.HomepageURL, client.LogoURL, confidential,
		client.DefaultScopes, client.DeveloperID, toMillis(client.CreatedAt), toMillis(client.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put client: %w", err)
	}
	return nil
}

// GetClient fetches a client registration by internal ID.
func (s *Store) GetClient(ctx context.Context, id string) (storage.OAuthClient, error) {
	if err := ctx.Err(); err != nil {
		return storage.OAuthClient{}, err
	}
	if err := s.ensureDB(); err != nil {
		return storage.OAuthClient{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+clientColumns+" FROM oauth_clients WHERE id = ?", id)
	return scanClient(row)
}

// GetClientByClientID fetches a client registration by public identifier.
func (s *Store) GetClientByClientID(ctx context.Context, clientID string) (storage.OAuthClient, error) {
	if err := ctx.Err(); err != nil {
		return storage.OAuthClient{}, err
	}
	if err := s.ensureDB(); err != nil {
		return storage.OAuthClient{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+clientColumns+" FROM oauth_clients WHERE client_id = ?", clientID)
	return scanClient(row)
}

// ListClientsByDeveloper returns the clients registered by a developer.
func (s *Store) ListClientsByDeveloper(ctx context.Context, developerID string) ([]storage.OAuthClient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT "+clientColumns+" FROM oauth_clients WHERE developer_id = ? ORDER BY created_at", developerID)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []storage.OAuthClient
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

// DeleteClient removes a client and cascades to its tokens and codes in one
// transaction, so no orphaned credentials survive the registration.
func (s *Store) DeleteClient(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}

	client, err := s.GetClient(ctx, id)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete client: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE client_id = ?`, client.ClientID); err != nil {
		return fmt.Errorf("delete client tokens: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM oauth_authorization_codes WHERE client_id = ?`, client.ClientID); err != nil {
		return fmt.Errorf("delete client codes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM oauth_clients WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete client: %w", err)
	}

	return tx.Commit()
}

// PutAuthorizationCode stores a new authorization code.
func (s *Store) PutAuthorizationCode(ctx context.Context, code storage.AuthorizationCode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if strings.TrimSpace(code.Code) == "" {
		return fmt.Errorf("code value is required")
	}

	used := 0
	if code.Used {
		used = 1
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO oauth_authorization_codes
		(code, user_id, client_id, redirect_uri, scope, code_challenge, code_challenge_method, expires_at, used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		code.Code, code.UserID, code.ClientID, code.RedirectURI, code.Scope,
		code.CodeChallenge, code.CodeChallengeMethod, toMillis(code.ExpiresAt), used, toMillis(code.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put authorization code: %w", err)
	}
	return nil
}

// GetAuthorizationCode fetches a code by value and issuing client.
func (s *Store) GetAuthorizationCode(ctx context.Context, clientID, code string) (storage.AuthorizationCode, error) {
	if err := ctx.Err(); err != nil {
		return storage.AuthorizationCode{}, err
	}
	if err := s.ensureDB(); err != nil {
		return storage.AuthorizationCode{}, err
	}

	var authCode storage.AuthorizationCode
	var expiresAt, createdAt int64
	var used int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT code, user_id, client_id, redirect_uri, scope, code_challenge, code_challenge_method, expires_at, used, created_at
		FROM oauth_authorization_codes WHERE client_id = ? AND code = ?`,
		clientID, code,
	).Scan(
		&authCode.Code, &authCode.UserID, &authCode.ClientID, &authCode.RedirectURI, &authCode.Scope,
		&authCode.CodeChallenge, &authCode.CodeChallengeMethod, &expiresAt, &used, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.AuthorizationCode{}, storage.ErrNotFound
		}
		return storage.AuthorizationCode{}, fmt.Errorf("get authorization code: %w", err)
	}
	authCode.ExpiresAt = fromMillis(expiresAt)
	authCode.Used = used != 0
	authCode.CreatedAt = fromMillis(createdAt)
	return authCode, nil
}

// MarkAuthorizationCodeUsed flips the used flag with a compare-and-set so only
// one concurrent redemption of the same code can win.
func (s *Store) MarkAuthorizationCodeUsed(ctx context.Context, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.ensureDB(); err != nil {
		return false, err
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE oauth_authorization_codes SET used = 1 WHERE code = ? AND used = 0`, code)
	if err != nil {
		return false, fmt.Errorf("mark code used: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// DeleteAuthorizationCode deletes a code.
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM oauth_authorization_codes WHERE code = ?`, code)
	return err
}

// PutToken stores a new bearer token pair.
func (s *Store) PutToken(ctx context.Context, token storage.OAuthToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if strings.TrimSpace(token.ID) == "" {
		return fmt.Errorf("token id is required")
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return fmt.Errorf("access token is required")
	}

	refresh := sql.NullString{}
	if token.RefreshToken != "" {
		refresh = sql.NullString{String: token.RefreshToken, Valid: true}
	}
	tokenType := token.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO oauth_tokens (id, access_token, refresh_token, user_id, client_id, scope, token_type, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		token.ID, token.AccessToken, refresh, token.UserID, token.ClientID, token.Scope,
		tokenType, toMillis(token.ExpiresAt), toMillis(token.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put token: %w", err)
	}
	return nil
}

// GetTokenByAccess fetches a token by access token value.
func (s *Store) GetTokenByAccess(ctx context.Context, accessToken string) (storage.OAuthToken, error) {
	if err := ctx.Err(); err != nil {
		return storage.OAuthToken{}, err
	}
	if err := s.ensureDB(); err != nil {
		return storage.OAuthToken{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, access_token, refresh_token, user_id, client_id, scope, token_type, expires_at, created_at
		FROM oauth_tokens WHERE access_token = ?`, accessToken)
	return scanToken(row)
}

// GetTokenByRefresh fetches a token by refresh token value and client.
func (s *Store) GetTokenByRefresh(ctx context.Context, clientID, refreshToken string) (storage.OAuthToken, error) {
	if err := ctx.Err(); err != nil {
		return storage.OAuthToken{}, err
	}
	if err := s.ensureDB(); err != nil {
		return storage.OAuthToken{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, access_token, refresh_token, user_id, client_id, scope, token_type, expires_at, created_at
		FROM oauth_tokens WHERE client_id = ? AND refresh_token = ?`, clientID, refreshToken)
	return scanToken(row)
}

// RotateAccessToken replaces the access token value and expiry in place.
// The refresh token is deliberately left untouched.
func (s *Store) RotateAccessToken(ctx context.Context, tokenID, accessToken string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE oauth_tokens SET access_token = ?, expires_at = ? WHERE id = ?`,
		accessToken, toMillis(expiresAt), tokenID)
	if err != nil {
		return fmt.Errorf("rotate access token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteTokensForClientUser revokes every token issued to the pair.
func (s *Store) DeleteTokensForClientUser(ctx context.Context, clientID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM oauth_tokens WHERE client_id = ? AND user_id = ?`, clientID, userID)
	return err
}

// PutPendingAuthorization stores a pending authorize request.
func (s *Store) PutPendingAuthorization(ctx context.Context, pending storage.PendingAuthorization) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if strings.TrimSpace(pending.ID) == "" {
		return fmt.Errorf("pending authorization id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO oauth_pending_authorizations
		(id, response_type, client_id, redirect_uri, scope, state, code_challenge, code_challenge_method, user_id, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pending.ID, pending.ResponseType, pending.ClientID, pending.RedirectURI, pending.Scope,
		pending.State, pending.CodeChallenge, pending.CodeChallengeMethod, pending.UserID, toMillis(pending.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("put pending authorization: %w", err)
	}
	return nil
}

// GetPendingAuthorization fetches a pending authorize request.
func (s *Store) GetPendingAuthorization(ctx context.Context, id string) (storage.PendingAuthorization, error) {
	if err := ctx.Err(); err != nil {
		return storage.PendingAuthorization{}, err
	}
	if err := s.ensureDB(); err != nil {
		return storage.PendingAuthorization{}, err
	}

	var pending storage.PendingAuthorization
	var expiresAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, response_type, client_id, redirect_uri, scope, state, code_challenge, code_challenge_method, user_id, expires_at
		FROM oauth_pending_authorizations WHERE id = ?`, id,
	).Scan(
		&pending.ID, &pending.ResponseType, &pending.ClientID, &pending.RedirectURI, &pending.Scope,
		&pending.State, &pending.CodeChallenge, &pending.CodeChallengeMethod, &pending.UserID, &expiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PendingAuthorization{}, storage.ErrNotFound
		}
		return storage.PendingAuthorization{}, fmt.Errorf("get pending authorization: %w", err)
	}
	pending.ExpiresAt = fromMillis(expiresAt)
	return pending, nil
}

// AttachPendingAuthorizationUser records the authenticated user on a pending request.
func (s *Store) AttachPendingAuthorizationUser(ctx context.Context, id, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE oauth_pending_authorizations SET user_id = ? WHERE id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("attach pending authorization user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeletePendingAuthorization deletes a pending authorize request.
func (s *Store) DeletePendingAuthorization(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM oauth_pending_authorizations WHERE id = ?`, id)
	return err
}

// DeleteExpiredOAuthRecords removes expired codes, tokens, and pending rows.
func (s *Store) DeleteExpiredOAuthRecords(ctx context.Context, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	millis := toMillis(now)
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM oauth_authorization_codes WHERE expires_at <= ?`, millis); err != nil {
		return fmt.Errorf("delete expired codes: %w", err)
	}
	// Tokens carrying a refresh token outlive their access-token expiry.
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE expires_at <= ? AND refresh_token IS NULL`, millis); err != nil {
		return fmt.Errorf("delete expired tokens: %w", err)
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM oauth_pending_authorizations WHERE expires_at <= ?`, millis); err != nil {
		return fmt.Errorf("delete expired pending authorizations: %w", err)
	}
	return nil
}

func scanClient(row rowScanner) (storage.OAuthClient, error) {
	var client storage.OAuthClient
	var redirectURIs string
	var confidential int
	var createdAt, updatedAt int64

	err := row.Scan(
		&client.ID, &client.ClientID, &client.ClientSecret, &client.AppName, &client.AppDescription,
		&redirectURIs, &client.HomepageURL, &client.LogoURL, &confidential,
		&client.DefaultScopes, &client.DeveloperID, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.OAuthClient{}, storage.ErrNotFound
		}
		return storage.OAuthClient{}, fmt.Errorf("scan client: %w", err)
	}

	if err := json.Unmarshal([]byte(redirectURIs), &client.RedirectURIs); err != nil {
		return storage.OAuthClient{}, fmt.Errorf("decode redirect uris: %w", err)
	}
	client.Confidential = confidential != 0
	client.CreatedAt = fromMillis(createdAt)
	client.UpdatedAt = fromMillis(updatedAt)
	return client, nil
}

func scanToken(row rowScanner) (storage.OAuthToken, error) {
	var token storage.OAuthToken
	var refresh sql.NullString
	var expiresAt, createdAt int64

	err := row.Scan(
		&token.ID, &token.AccessToken, &refresh, &token.UserID, &token.ClientID,
		&token.Scope, &token.TokenType, &expiresAt, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.OAuthToken{}, storage.ErrNotFound
		}
		return storage.OAuthToken{}, fmt.Errorf("scan token: %w", err)
	}

	token.RefreshToken = refresh.String
	token.ExpiresAt = fromMillis(expiresAt)
	token.CreatedAt = fromMillis(createdAt)
	return token, nil
}
