// Package pkce implements RFC 7636 challenge verification.
package pkce

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

// Challenge methods accepted at the authorization endpoint.
const (
	MethodS256  = "S256"
	MethodPlain = "plain"
)

var (
	// ErrUnsupportedMethod indicates an unknown code_challenge_method.
	ErrUnsupportedMethod = errors.New("unsupported code challenge method")
	// ErrVerifierMismatch indicates the verifier does not hash to the
	// stored challenge.
	ErrVerifierMismatch = errors.New("code verifier mismatch")
)

// ValidMethod reports whether the method is one we accept.
func ValidMethod(method string) bool {
	return method == MethodS256 || method == MethodPlain
}

// Verify checks the code verifier against the stored challenge using the
// stored method. Comparison is constant time.
func Verify(challenge, method, verifier string) error {
	var derived string
	switch method {
	case MethodS256:
		sum := sha256.Sum256([]byte(verifier))
		derived = base64.RawURLEncoding.EncodeToString(sum[:])
	case MethodPlain:
		derived = verifier
	default:
		return ErrUnsupportedMethod
	}
	if subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) != 1 {
		return ErrVerifierMismatch
	}
	return nil
}
