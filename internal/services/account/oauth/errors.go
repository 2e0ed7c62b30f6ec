package oauth

import "net/http"

// Error is an OAuth 2.0 protocol error. Code is the machine-readable value
// from RFC 6749; Description is safe to show to resource owners and clients.
type Error struct {
	Code        string
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

// Protocol error codes from RFC 6749 §4.1.2.1 and §5.2.
const (
	ErrCodeInvalidRequest          = "invalid_request"
	ErrCodeUnauthorizedClient      = "unauthorized_client"
	ErrCodeAccessDenied            = "access_denied"
	ErrCodeUnsupportedResponseType = "unsupported_response_type"
	ErrCodeInvalidScope            = "invalid_scope"
	ErrCodeServerError             = "server_error"
	ErrCodeTemporarilyUnavailable  = "temporarily_unavailable"
	ErrCodeInvalidClient           = "invalid_client"
	ErrCodeInvalidGrant            = "invalid_grant"
	ErrCodeUnsupportedGrantType    = "unsupported_grant_type"
)

var defaultDescriptions = map[string]string{
	ErrCodeInvalidRequest:          "The request is missing a required parameter or is otherwise malformed.",
	ErrCodeUnauthorizedClient:      "The client is not authorized to request an authorization code.",
	ErrCodeAccessDenied:            "The resource owner denied the request.",
	ErrCodeUnsupportedResponseType: "The authorization server does not support this response type.",
	ErrCodeInvalidScope:            "The requested scope is invalid or malformed.",
	ErrCodeServerError:             "The authorization server encountered an unexpected condition.",
	ErrCodeTemporarilyUnavailable:  "The authorization server is temporarily unable to handle the request.",
	ErrCodeInvalidClient:           "Client authentication failed.",
	ErrCodeInvalidGrant:            "The provided grant is invalid, expired, or revoked.",
	ErrCodeUnsupportedGrantType:    "The authorization grant type is not supported.",
}

// NewError builds a protocol error, falling back to the code's default
// description when none is given.
func NewError(code, description string) *Error {
	if description == "" {
		description = defaultDescriptions[code]
	}
	return &Error{Code: code, Description: description}
}

// HTTPStatus maps a protocol error to the token-endpoint response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case ErrCodeInvalidClient:
		return http.StatusUnauthorized
	case ErrCodeInvalidRequest, ErrCodeInvalidGrant, ErrCodeUnsupportedGrantType,
		ErrCodeUnsupportedResponseType, ErrCodeInvalidScope,
		ErrCodeUnauthorizedClient, ErrCodeAccessDenied:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
