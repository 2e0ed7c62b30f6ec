package user

import (
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestCreateUser(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	created, err := CreateUser(CreateUserInput{
		LoginID:    "  Jsna  ",
		Password:   "hunter22",
		Name:       "Js Na",
		Email:      "js@example.com",
		StudentIDs: []string{"2026-10101", " ", "2025-10101"},
	}, now, nil)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.LoginID != "jsna" {
		t.Errorf("expected normalized login id, got %q", created.LoginID)
	}
	if len(created.ID) != 26 {
		t.Errorf("expected generated id, got %q", created.ID)
	}
	if len(created.StudentIDs) != 2 {
		t.Errorf("expected blank student ids dropped, got %v", created.StudentIDs)
	}
	if !created.CreatedAt.Equal(now()) || !created.UpdatedAt.Equal(now()) {
		t.Error("expected timestamps from the injected clock")
	}
	if !strings.HasPrefix(created.PasswordHash, "$2") {
		t.Errorf("expected bcrypt hash, got %q", created.PasswordHash)
	}
}

func TestCreateUserPasskeyOnly(t *testing.T) {
	created, err := CreateUser(CreateUserInput{LoginID: "jsna", Name: "Js Na"}, nil, nil)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.PasswordHash != "" {
		t.Errorf("expected empty password hash, got %q", created.PasswordHash)
	}
}

func TestCreateUserValidation(t *testing.T) {
	tests := []struct {
		name  string
		input CreateUserInput
		want  error
	}{
		{"empty login id", CreateUserInput{Name: "A"}, ErrEmptyLoginID},
		{"invalid login id", CreateUserInput{LoginID: "J!", Name: "A"}, ErrInvalidLoginID},
		{"too long login id", CreateUserInput{LoginID: strings.Repeat("a", 33), Name: "A"}, ErrInvalidLoginID},
		{"empty name", CreateUserInput{LoginID: "jsna"}, ErrEmptyName},
		{"bad email", CreateUserInput{LoginID: "jsna", Name: "A", Email: "not-an-email"}, ErrInvalidEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CreateUser(tt.input, nil, nil); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDevVerified(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	var u User
	if u.DevVerified(now) {
		t.Error("expected unverified without a verify date")
	}

	recent := now.Add(-30 * 24 * time.Hour)
	u.DevVerifyDate = &recent
	if !u.DevVerified(now) {
		t.Error("expected verified within the window")
	}

	stale := now.Add(-400 * 24 * time.Hour)
	u.DevVerifyDate = &stale
	if u.DevVerified(now) {
		t.Error("expected expired verification to fail")
	}
}

func TestVerifyPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	t.Run("bcrypt match", func(t *testing.T) {
		ok, rehash := VerifyPassword(string(hash), "correct")
		if !ok || rehash {
			t.Errorf("expected ok without rehash, got ok=%v rehash=%v", ok, rehash)
		}
	})

	t.Run("bcrypt mismatch", func(t *testing.T) {
		ok, _ := VerifyPassword(string(hash), "wrong")
		if ok {
			t.Error("expected mismatch")
		}
	})

	t.Run("legacy plaintext match requests rehash", func(t *testing.T) {
		ok, rehash := VerifyPassword("plaintext-secret", "plaintext-secret")
		if !ok || !rehash {
			t.Errorf("expected ok with rehash, got ok=%v rehash=%v", ok, rehash)
		}
	})

	t.Run("legacy plaintext mismatch", func(t *testing.T) {
		ok, _ := VerifyPassword("plaintext-secret", "wrong")
		if ok {
			t.Error("expected mismatch")
		}
	})

	t.Run("empty stored value", func(t *testing.T) {
		ok, _ := VerifyPassword("", "anything")
		if ok {
			t.Error("expected passkey-only accounts to fail password checks")
		}
	})
}
