package opaque

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	plain, hashed, err := Generate()
	require.NoError(t, err)
	assert.NotEmpty(t, plain)
	assert.Equal(t, Hash(plain), hashed)
	assert.NotEqual(t, plain, hashed)

	other, _, err := Generate()
	require.NoError(t, err)
	assert.NotEqual(t, plain, other)
}
