package clients

import (
	"context"
	"testing"

	"github.com/peeap/identity-service/internal/config"
	"github.com/peeap/identity-service/internal/domain"
	"github.com/peeap/identity-service/internal/secrets"
	"github.com/peeap/identity-service/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	hasher := secrets.NewHasher(config.SecurityConfig{
		Argon2Time:      1,
		Argon2Memory:    8 * 1024,
		Argon2Threads:   1,
		Argon2KeyLength: 32,
	})
	return NewRegistry(memory.New(), nil, "test", hasher, zap.NewNop())
}

func TestRegisterAndLookup(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	client, secret, err := r.Register(ctx, RegisterInput{
		Name:         "wallet",
		RedirectURIs: []string{"https://wallet.peeap.com/callback"},
		Scopes:       domain.NewScopes("openid", "profile"),
		Confidential: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, client.ClientID)
	assert.NotEmpty(t, secret)
	assert.NotEqual(t, secret, client.ClientSecretHash)
	assert.True(t, client.Active)

	found, err := r.Lookup(ctx, client.ClientID)
	require.NoError(t, err)
	assert.Equal(t, client.ClientID, found.ClientID)
	assert.Equal(t, "wallet", found.Name)
}

func TestRegisterPublicClientHasNoSecret(t *testing.T) {
	r := testRegistry(t)

	client, secret, err := r.Register(context.Background(), RegisterInput{
		Name:         "checkout",
		RedirectURIs: []string{"https://checkout.peeap.com/callback"},
		Scopes:       domain.NewScopes("openid"),
	})
	require.NoError(t, err)
	assert.Empty(t, secret)
	assert.Empty(t, client.ClientSecretHash)
}

func TestLookupUnknownClient(t *testing.T) {
	r := testRegistry(t)
	_, err := r.Lookup(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrInvalidClient)

	_, err = r.Lookup(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidClient)
}

func TestLookupDeactivatedClient(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	client, _, err := r.Register(ctx, RegisterInput{
		Name:         "wallet",
		RedirectURIs: []string{"https://wallet.peeap.com/callback"},
		Scopes:       domain.NewScopes("openid"),
	})
	require.NoError(t, err)
	require.NoError(t, r.Deactivate(ctx, client.ClientID))

	_, err = r.Lookup(ctx, client.ClientID)
	assert.ErrorIs(t, err, ErrInvalidClient)
}

func TestVerifySecret(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	client, secret, err := r.Register(ctx, RegisterInput{
		Name:         "merchant",
		RedirectURIs: []string{"https://merchant.peeap.com/callback"},
		Scopes:       domain.NewScopes("openid"),
		Confidential: true,
	})
	require.NoError(t, err)

	verified, err := r.VerifySecret(ctx, client.ClientID, secret)
	require.NoError(t, err)
	assert.Equal(t, client.ClientID, verified.ClientID)

	_, err = r.VerifySecret(ctx, client.ClientID, "wrong")
	assert.ErrorIs(t, err, ErrInvalidClient)
}

func TestVerifySecretRejectsPublicClient(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	client, _, err := r.Register(ctx, RegisterInput{
		Name:         "checkout",
		RedirectURIs: []string{"https://checkout.peeap.com/callback"},
		Scopes:       domain.NewScopes("openid"),
	})
	require.NoError(t, err)

	_, err = r.VerifySecret(ctx, client.ClientID, "")
	assert.ErrorIs(t, err, ErrInvalidClient)
}

func TestValidateRedirect(t *testing.T) {
	r := testRegistry(t)
	client := &domain.Client{
		RedirectURIs: []string{
			"https://wallet.peeap.com/callback",
			"https://*.gov.school.edu.sl/peeap/callback",
		},
	}

	assert.NoError(t, r.ValidateRedirect(client, "https://wallet.peeap.com/callback"))
	assert.NoError(t, r.ValidateRedirect(client, "https://ses.gov.school.edu.sl/peeap/callback"))
	assert.ErrorIs(t, r.ValidateRedirect(client, "https://evil.com/callback"), ErrInvalidRedirectURI)
}

func TestCheckScopes(t *testing.T) {
	r := testRegistry(t)
	client := &domain.Client{Scopes: domain.NewScopes("openid", "profile")}

	assert.NoError(t, r.CheckScopes(client, domain.NewScopes("openid")))
	assert.ErrorIs(t, r.CheckScopes(client, domain.NewScopes("admin")), ErrInvalidScope)
}

func TestUpdateClient(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	client, _, err := r.Register(ctx, RegisterInput{
		Name:         "wallet",
		RedirectURIs: []string{"https://wallet.peeap.com/callback"},
		Scopes:       domain.NewScopes("openid"),
	})
	require.NoError(t, err)

	updated, err := r.Update(ctx, client.ClientID, UpdateInput{
		Name:   "wallet-v2",
		Scopes: domain.NewScopes("openid", "profile"),
	})
	require.NoError(t, err)
	assert.Equal(t, "wallet-v2", updated.Name)
	assert.True(t, updated.Scopes.Contains("profile"))
	// Redirect URIs were not part of the update and are untouched.
	assert.Equal(t, client.RedirectURIs, updated.RedirectURIs)

	_, err = r.Update(ctx, "unknown", UpdateInput{Name: "x"})
	assert.ErrorIs(t, err, ErrInvalidClient)
}
