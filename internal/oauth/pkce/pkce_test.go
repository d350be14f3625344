package pkce

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func challengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func TestVerifyS256(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	require.NoError(t, Verify(challengeS256(verifier), MethodS256, verifier))
	assert.ErrorIs(t, Verify(challengeS256(verifier), MethodS256, "wrong-verifier"), ErrVerifierMismatch)
}

func TestVerifyPlain(t *testing.T) {
	require.NoError(t, Verify("some-verifier", MethodPlain, "some-verifier"))
	assert.ErrorIs(t, Verify("some-verifier", MethodPlain, "other"), ErrVerifierMismatch)
}

func TestVerifyUnsupportedMethod(t *testing.T) {
	assert.ErrorIs(t, Verify("challenge", "S512", "verifier"), ErrUnsupportedMethod)
}

func TestValidMethod(t *testing.T) {
	assert.True(t, ValidMethod(MethodS256))
	assert.True(t, ValidMethod(MethodPlain))
	assert.False(t, ValidMethod(""))
	assert.False(t, ValidMethod("s256"))
}
