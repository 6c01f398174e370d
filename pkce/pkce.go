package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const (
	// MethodS256 is the only challenge method this package implements.
	// The "plain" method is deliberately unsupported (RFC 7636 Section 7.2
	// recommends S256 whenever the client is capable of it).
	MethodS256 = "S256"

	// MinVerifierBytes is the smallest amount of entropy used for a verifier.
	// 32 random bytes encode to 43 base64url characters, the RFC 7636 minimum.
	MinVerifierBytes = 32

	// MaxVerifierBytes is the largest amount of entropy used for a verifier.
	// 96 random bytes encode to 128 base64url characters, the RFC 7636 maximum.
	MaxVerifierBytes = 96
)

// Challenge is a verifier/challenge pair for a single authorization attempt.
// It is never persisted; callers hold the Verifier until the code exchange
// completes and then discard it.
type Challenge struct {
	// Verifier is the high-entropy secret sent with the token request.
	Verifier string

	// CodeChallenge is base64url(SHA-256(Verifier)), sent with the
	// authorization request.
	CodeChallenge string

	// Method is always "S256".
	Method string
}

// Generate creates a new challenge from 32 bytes of CSPRNG entropy.
// It fails only if the system entropy source is unavailable, which is
// not recoverable.
func Generate() (*Challenge, error) {
	return GenerateWithLength(MinVerifierBytes)
}

// GenerateWithLength creates a new challenge from n bytes of CSPRNG entropy.
// n is clamped to [MinVerifierBytes, MaxVerifierBytes] so the encoded
// verifier always satisfies the RFC 7636 43-128 character bounds.
func GenerateWithLength(n int) (*Challenge, error) {
	if n < MinVerifierBytes {
		n = MinVerifierBytes
	}
	if n > MaxVerifierBytes {
		n = MaxVerifierBytes
	}

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("entropy source unavailable: %w", err)
	}

	verifier := base64.RawURLEncoding.EncodeToString(buf)
	return &Challenge{
		Verifier:      verifier,
		CodeChallenge: ChallengeFromVerifier(verifier),
		Method:        MethodS256,
	}, nil
}

// ChallengeFromVerifier derives the S256 code challenge for a verifier.
func ChallengeFromVerifier(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyS256 reports whether challenge is the S256 derivation of verifier.
// The comparison is constant-time.
func VerifyS256(verifier, challenge string) bool {
	derived := ChallengeFromVerifier(verifier)
	return subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) == 1
}

// ValidVerifier reports whether v satisfies the RFC 7636 length and
// character requirements for a code verifier.
func ValidVerifier(v string) bool {
	if len(v) < 43 || len(v) > 128 {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '.' || c == '_' || c == '~':
		default:
			return false
		}
	}
	return true
}
