package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gajwa-dev/account/internal/services/account/storage"
	"github.com/gajwa-dev/account/internal/services/account/user"
)

const userColumns = "id, login_id, password_hash, name, email, phone, student_ids, dev_verify_date, deactivated_at, created_at, updated_at"

// PutUser inserts or replaces a user record.
func (s *Store) PutUser(ctx context.Context, u user.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(u.LoginID) == "" {
		return fmt.Errorf("login id is required")
	}

	studentIDs, err := json.Marshal(u.StudentIDs)
	if err != nil {
		return fmt.Errorf("encode student ids: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			login_id = excluded.login_id,
			password_hash = excluded.password_hash,
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			student_ids = excluded.student_ids,
			dev_verify_date = excluded.dev_verify_date,
			deactivated_at = excluded.deactivated_at,
			updated_at = excluded.updated_at`,
		u.ID, u.LoginID, u.PasswordHash, u.Name, u.Email, u.Phone, string(studentIDs),
		toNullMillis(u.DevVerifyDate), toNullMillis(u.DeactivatedAt),
		toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// GetUser fetches a user by internal ID.
func (s *Store) GetUser(ctx context.Context, userID string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}
	if err := s.ensureDB(); err != nil {
		return user.User{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", userID)
	return scanUser(row)
}

// GetUserByLoginID fetches a user by login identifier.
func (s *Store) GetUserByLoginID(ctx context.Context, loginID string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}
	if err := s.ensureDB(); err != nil {
		return user.User{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE login_id = ?", loginID)
	return scanUser(row)
}

// DeleteUser removes a user and everything hanging off it in one transaction.
// The cascade is explicit so the ownership invariant stays visible and testable.
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete user: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Tokens and codes issued through clients this user registered.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM oauth_tokens WHERE client_id IN (SELECT client_id FROM oauth_clients WHERE developer_id = ?)`,
		userID,
	); err != nil {
		return fmt.Errorf("delete owned client tokens: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM oauth_authorization_codes WHERE client_id IN (SELECT client_id FROM oauth_clients WHERE developer_id = ?)`,
		userID,
	); err != nil {
		return fmt.Errorf("delete owned client codes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM oauth_clients WHERE developer_id = ?`, userID); err != nil {
		return fmt.Errorf("delete owned clients: %w", err)
	}

	// Credentials the user granted to any client.
	if _, err := tx.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete user tokens: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM oauth_authorization_codes WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete user codes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM passkey_credentials WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete user passkeys: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM web_sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete user web sessions: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows: %w", err)
	}
	if rows == 0 {
		return storage.ErrNotFound
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (user.User, error) {
	var u user.User
	var studentIDs string
	var devVerify, deactivated sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&u.ID, &u.LoginID, &u.PasswordHash, &u.Name, &u.Email, &u.Phone,
		&studentIDs, &devVerify, &deactivated, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, storage.ErrNotFound
		}
		return user.User{}, fmt.Errorf("scan user: %w", err)
	}

	if err := json.Unmarshal([]byte(studentIDs), &u.StudentIDs); err != nil {
		return user.User{}, fmt.Errorf("decode student ids: %w", err)
	}
	u.DevVerifyDate = fromNullMillis(devVerify)
	u.DeactivatedAt = fromNullMillis(deactivated)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}
