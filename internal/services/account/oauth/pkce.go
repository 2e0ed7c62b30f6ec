package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// PKCE code challenge methods from RFC 7636.
const (
	CodeChallengeMethodPlain = "plain"
	CodeChallengeMethodS256  = "S256"
)

// ComputeS256Challenge derives the S256 code challenge for a verifier.
func ComputeS256Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// ValidateCodeChallenge reports whether a challenge has the RFC 7636 shape:
// 43 to 128 characters over the unreserved URI alphabet.
func ValidateCodeChallenge(challenge string) bool {
	if len(challenge) < 43 || len(challenge) > 128 {
		return false
	}
	for _, r := range challenge {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '.' || r == '_' || r == '~':
		default:
			return false
		}
	}
	return true
}

// ValidCodeChallengeMethod reports whether the method is supported. An empty
// method defaults to plain per RFC 7636 §4.3.
func ValidCodeChallengeMethod(method string) bool {
	switch method {
	case "", CodeChallengeMethodPlain, CodeChallengeMethodS256:
		return true
	default:
		return false
	}
}

// ValidatePKCE verifies a code verifier against the challenge recorded at
// authorization time.
func ValidatePKCE(verifier, challenge, method string) bool {
	if !ValidateCodeChallenge(verifier) {
		return false
	}
	var derived string
	switch method {
	case "", CodeChallengeMethodPlain:
		derived = verifier
	case CodeChallengeMethodS256:
		derived = ComputeS256Challenge(verifier)
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) == 1
}
