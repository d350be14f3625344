package secrets

import (
	"testing"

	"github.com/peeap/identity-service/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHasher() *Hasher {
	// Low-cost parameters keep the suite fast.
	return NewHasher(config.SecurityConfig{
		Argon2Time:      1,
		Argon2Memory:    8 * 1024,
		Argon2Threads:   1,
		Argon2KeyLength: 32,
	})
}

func TestHashAndCompare(t *testing.T) {
	h := testHasher()
	encoded, err := h.Hash("super-secret")
	require.NoError(t, err)
	assert.Contains(t, encoded, "$argon2id$")

	require.NoError(t, h.Compare(encoded, "super-secret"))
	assert.ErrorIs(t, h.Compare(encoded, "wrong-secret"), ErrMismatch)
}

func TestHashesAreSalted(t *testing.T) {
	h := testHasher()
	first, err := h.Hash("same-secret")
	require.NoError(t, err)
	second, err := h.Hash("same-secret")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	require.NoError(t, h.Compare(second, "same-secret"))
}

func TestCompareRejectsMalformedHash(t *testing.T) {
	h := testHasher()
	assert.ErrorIs(t, h.Compare("not-a-hash", "secret"), ErrInvalidHash)
	assert.ErrorIs(t, h.Compare("$bcrypt$whatever", "secret"), ErrInvalidHash)
	assert.ErrorIs(t, h.Compare("", "secret"), ErrInvalidHash)
}
