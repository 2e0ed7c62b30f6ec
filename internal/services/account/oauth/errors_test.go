package oauth

import (
	"net/http"
	"testing"
)

func TestNewErrorDefaultDescription(t *testing.T) {
	err := NewError(ErrCodeInvalidGrant, "")
	if err.Description == "" {
		t.Fatal("expected default description")
	}
	err = NewError(ErrCodeInvalidGrant, "custom")
	if err.Description != "custom" {
		t.Fatalf("expected custom description, got %q", err.Description)
	}
}

func TestErrorHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{ErrCodeInvalidClient, http.StatusUnauthorized},
		{ErrCodeInvalidRequest, http.StatusBadRequest},
		{ErrCodeInvalidGrant, http.StatusBadRequest},
		{ErrCodeUnsupportedGrantType, http.StatusBadRequest},
		{ErrCodeUnsupportedResponseType, http.StatusBadRequest},
		{ErrCodeAccessDenied, http.StatusBadRequest},
		{ErrCodeServerError, http.StatusInternalServerError},
		{ErrCodeTemporarilyUnavailable, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := NewError(tt.code, "").HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorString(t *testing.T) {
	err := &Error{Code: "invalid_grant", Description: "bad code"}
	if err.Error() != "invalid_grant: bad code" {
		t.Fatalf("unexpected error string %q", err.Error())
	}
	err = &Error{Code: "invalid_grant"}
	if err.Error() != "invalid_grant" {
		t.Fatalf("unexpected error string %q", err.Error())
	}
}
