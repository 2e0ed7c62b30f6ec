// Package secret produces cryptographically secure random tokens.
//
// Tokens drawn here back client secrets, authorization codes, and bearer
// tokens; uniqueness rests on the entropy budget rather than collision checks,
// so callers must not request fewer than MinTokenLength characters.
package secret

import (
	"crypto/rand"
	"fmt"
)

const (
	// MinTokenLength is the smallest token size callers may request.
	MinTokenLength = 32

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// NewToken returns a random string of length n over the alphanumeric alphabet.
func NewToken(n int) (string, error) {
	if n < MinTokenLength {
		return "", fmt.Errorf("token length %d below minimum %d", n, MinTokenLength)
	}

	out := make([]byte, n)
	// 256 is not a multiple of 62; reject bytes past the last full cycle so
	// every alphabet character stays equally likely.
	max := byte(256 - 256%len(alphabet))
	buf := make([]byte, n)
	filled := 0
	for filled < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= max {
				continue
			}
			out[filled] = alphabet[int(b)%len(alphabet)]
			filled++
			if filled == n {
				break
			}
		}
	}
	return string(out), nil
}
