// Package user provides account identity records and password verification.
package user

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gajwa-dev/account/internal/platform/id"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrEmptyLoginID indicates a missing login identifier.
	ErrEmptyLoginID = errors.New("login id is required")
	// ErrInvalidLoginID indicates a login identifier that does not match the required format.
	ErrInvalidLoginID = errors.New("login id must be 3-32 lowercase alphanumeric, dot, dash, or underscore characters")
	// ErrEmptyName indicates a missing display name.
	ErrEmptyName = errors.New("name is required")
	// ErrInvalidEmail indicates a malformed email address.
	ErrInvalidEmail = errors.New("email address is invalid")

	loginIDPattern = regexp.MustCompile(`^[a-z0-9_.\-]{3,32}$`)
	emailPattern   = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// DevVerifyWindow is how long a developer verification remains valid.
const DevVerifyWindow = 365 * 24 * time.Hour

// User represents an account identity record.
//
// PasswordHash is empty for passkey-only accounts. DeactivatedAt is the
// soft-delete marker; hard deletion happens out of band after a grace period.
type User struct {
	ID            string
	LoginID       string
	PasswordHash  string
	Name          string
	Email         string
	Phone         string
	StudentIDs    []string
	DevVerifyDate *time.Time
	DeactivatedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DevVerified reports whether the user holds a developer verification issued
// within the verification window.
func (u User) DevVerified(now time.Time) bool {
	if u.DevVerifyDate == nil {
		return false
	}
	return now.Sub(*u.DevVerifyDate) <= DevVerifyWindow
}

// Deactivated reports whether the account carries the soft-delete marker.
func (u User) Deactivated() bool {
	return u.DeactivatedAt != nil
}

// CreateUserInput describes the metadata needed to create a user.
type CreateUserInput struct {
	LoginID    string
	Password   string
	Name       string
	Email      string
	Phone      string
	StudentIDs []string
}

// ValidateLoginID enforces canonical login identifier constraints.
func ValidateLoginID(s string) error {
	if !loginIDPattern.MatchString(s) {
		return ErrInvalidLoginID
	}
	return nil
}

// CreateUser creates a durable user identity from validated input.
//
// This is the canonical point where untrusted signup data becomes a stable
// identity shared by the passkey and OAuth paths.
func CreateUser(input CreateUserInput, now func() time.Time, idGenerator func() (string, error)) (User, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateUserInput(input)
	if err != nil {
		return User{}, err
	}

	userID, err := idGenerator()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	passwordHash := ""
	if normalized.Password != "" {
		passwordHash, err = HashPassword(normalized.Password)
		if err != nil {
			return User{}, fmt.Errorf("hash password: %w", err)
		}
	}

	createdAt := now().UTC()
	return User{
		ID:           userID,
		LoginID:      normalized.LoginID,
		PasswordHash: passwordHash,
		Name:         normalized.Name,
		Email:        normalized.Email,
		Phone:        normalized.Phone,
		StudentIDs:   normalized.StudentIDs,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}, nil
}

// NormalizeCreateUserInput trims and normalizes input before validation.
func NormalizeCreateUserInput(input CreateUserInput) (CreateUserInput, error) {
	input.LoginID = strings.ToLower(strings.TrimSpace(input.LoginID))
	if input.LoginID == "" {
		return CreateUserInput{}, ErrEmptyLoginID
	}
	if err := ValidateLoginID(input.LoginID); err != nil {
		return CreateUserInput{}, err
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return CreateUserInput{}, ErrEmptyName
	}
	input.Email = strings.TrimSpace(input.Email)
	if input.Email != "" && !emailPattern.MatchString(input.Email) {
		return CreateUserInput{}, ErrInvalidEmail
	}
	input.Phone = strings.TrimSpace(input.Phone)

	ids := make([]string, 0, len(input.StudentIDs))
	for _, sid := range input.StudentIDs {
		sid = strings.TrimSpace(sid)
		if sid != "" {
			ids = append(ids, sid)
		}
	}
	input.StudentIDs = ids
	return input, nil
}

// HashPassword hashes a password with bcrypt at the default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks a presented password against the stored value.
//
// Stored values that predate the bcrypt migration are plaintext; a plaintext
// match is accepted and reported via rehash so the caller can upgrade the
// record immediately. The shim goes away once no plaintext rows remain.
func VerifyPassword(stored, presented string) (ok bool, rehash bool) {
	if stored == "" {
		return false, false
	}
	if strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(presented)) == nil, false
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1 {
		return true, true
	}
	return false, false
}
