package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gajwa-dev/account/internal/services/account/storage"
)

// PutPasskeyCredential inserts or replaces a stored WebAuthn credential.
func (s *Store) PutPasskeyCredential(ctx context.Context, credential storage.PasskeyCredential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if strings.TrimSpace(credential.CredentialID) == "" {
		return fmt.Errorf("credential id is required")
	}
	if strings.TrimSpace(credential.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(credential.CredentialJSON) == "" {
		return fmt.Errorf("credential json is required")
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO passkey_credentials
		(credential_id, user_id, credential_json, sign_count, created_at, updated_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(credential_id) DO UPDATE SET
			credential_json = excluded.credential_json,
			sign_count = excluded.sign_count,
			updated_at = excluded.updated_at,
			last_used_at = excluded.last_used_at`,
		credential.CredentialID, credential.UserID, credential.CredentialJSON,
		int64(credential.SignCount), toMillis(credential.CreatedAt), toMillis(credential.UpdatedAt),
		toNullMillis(credential.LastUsedAt),
	)
	if err != nil {
		return fmt.Errorf("put passkey credential: %w", err)
	}
	return nil
}

// GetPasskeyCredential fetches a stored WebAuthn credential.
func (s *Store) GetPasskeyCredential(ctx context.Context, credentialID string) (storage.PasskeyCredential, error) {
	if err := ctx.Err(); err != nil {
		return storage.PasskeyCredential{}, err
	}
	if err := s.ensureDB(); err != nil {
		return storage.PasskeyCredential{}, err
	}
	if strings.TrimSpace(credentialID) == "" {
		return storage.PasskeyCredential{}, fmt.Errorf("credential id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT credential_id, user_id, credential_json, sign_count, created_at, updated_at, last_used_at
		FROM passkey_credentials WHERE credential_id = ?`, credentialID)
	return scanPasskeyCredential(row)
}

// ListPasskeyCredentials returns passkeys for a user.
func (s *Store) ListPasskeyCredentials(ctx context.Context, userID string) ([]storage.PasskeyCredential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT credential_id, user_id, credential_json, sign_count, created_at, updated_at, last_used_at
		FROM passkey_credentials WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list passkeys: %w", err)
	}
	defer rows.Close()

	var credentials []storage.PasskeyCredential
	for rows.Next() {
		credential, err := scanPasskeyCredential(rows)
		if err != nil {
			return nil, err
		}
		credentials = append(credentials, credential)
	}
	return credentials, rows.Err()
}

// DeletePasskeyCredential removes a passkey credential.
func (s *Store) DeletePasskeyCredential(ctx context.Context, credentialID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM passkey_credentials WHERE credential_id = ?`, credentialID)
	if err != nil {
		return fmt.Errorf("delete passkey credential: %w", err)
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

// PutPasskeySession stores a pending ceremony challenge.
func (s *Store) PutPasskeySession(ctx context.Context, session storage.PasskeySession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if strings.TrimSpace(session.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(session.Kind) == "" {
		return fmt.Errorf("session kind is required")
	}
	if strings.TrimSpace(session.SessionJSON) == "" {
		return fmt.Errorf("session json is required")
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO passkey_sessions (id, kind, user_id, session_json, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			user_id = excluded.user_id,
			session_json = excluded.session_json,
			expires_at = excluded.expires_at`,
		session.ID, session.Kind, session.UserID, session.SessionJSON, toMillis(session.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("put passkey session: %w", err)
	}
	return nil
}

// GetPasskeySession fetches a pending ceremony challenge.
func (s *Store) GetPasskeySession(ctx context.Context, id string) (storage.PasskeySession, error) {
	if err := ctx.Err(); err != nil {
		return storage.PasskeySession{}, err
	}
	if err := s.ensureDB(); err != nil {
		return storage.PasskeySession{}, err
	}

	var session storage.PasskeySession
	var expiresAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, kind, user_id, session_json, expires_at FROM passkey_sessions WHERE id = ?`, id,
	).Scan(&session.ID, &session.Kind, &session.UserID, &session.SessionJSON, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PasskeySession{}, storage.ErrNotFound
		}
		return storage.PasskeySession{}, fmt.Errorf("get passkey session: %w", err)
	}
	session.ExpiresAt = fromMillis(expiresAt)
	return session, nil
}

// DeletePasskeySession removes a ceremony challenge.
func (s *Store) DeletePasskeySession(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM passkey_sessions WHERE id = ?`, id)
	return err
}

// DeleteExpiredPasskeySessions removes ceremony challenges past their TTL.
func (s *Store) DeleteExpiredPasskeySessions(ctx context.Context, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM passkey_sessions WHERE expires_at <= ?`, toMillis(now))
	return err
}

func scanPasskeyCredential(row rowScanner) (storage.PasskeyCredential, error) {
	var credential storage.PasskeyCredential
	var signCount int64
	var createdAt, updatedAt int64
	var lastUsed sql.NullInt64

	err := row.Scan(
		&credential.CredentialID, &credential.UserID, &credential.CredentialJSON,
		&signCount, &createdAt, &updatedAt, &lastUsed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PasskeyCredential{}, storage.ErrNotFound
		}
		return storage.PasskeyCredential{}, fmt.Errorf("scan passkey credential: %w", err)
	}

	credential.SignCount = uint32(signCount)
	credential.CreatedAt = fromMillis(createdAt)
	credential.UpdatedAt = fromMillis(updatedAt)
	credential.LastUsedAt = fromNullMillis(lastUsed)
	return credential, nil
}
