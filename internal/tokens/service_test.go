package tokens

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/peeap/identity-service/internal/config"
	"github.com/peeap/identity-service/internal/domain"
	"github.com/peeap/identity-service/internal/events"
	"github.com/peeap/identity-service/internal/metrics"
	"github.com/peeap/identity-service/internal/storage/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testService(cfg config.TokenConfig) *Service {
	store := memory.New()
	return New(store, events.NewLogger(store, nil, zap.NewNop()), metrics.New(prometheus.NewRegistry()), cfg, zap.NewNop())
}

func defaultConfig() config.TokenConfig {
	return config.TokenConfig{
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	}
}

func TestIssueAndValidate(t *testing.T) {
	s := testService(defaultConfig())
	ctx := context.Background()
	userID := uuid.New()

	pair, err := s.Issue(ctx, userID, "wallet", domain.NewScopes("openid"), true)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	identity, err := s.ValidateAccess(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, userID, identity.UserID)
	assert.Equal(t, "wallet", identity.ClientID)
	assert.True(t, identity.Scopes.Contains("openid"))
}

func TestIssueWithoutRefresh(t *testing.T) {
	s := testService(defaultConfig())
	pair, err := s.Issue(context.Background(), uuid.New(), "checkout", domain.NewScopes("openid"), false)
	require.NoError(t, err)
	assert.Empty(t, pair.RefreshToken)
}

func TestValidateUnknownToken(t *testing.T) {
	s := testService(defaultConfig())
	_, err := s.ValidateAccess(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateExpiredToken(t *testing.T) {
	s := testService(config.TokenConfig{
		AccessTokenTTL:  -time.Second,
		RefreshTokenTTL: 24 * time.Hour,
	})
	pair, err := s.Issue(context.Background(), uuid.New(), "wallet", domain.NewScopes("openid"), true)
	require.NoError(t, err)

	_, err = s.ValidateAccess(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestRotate(t *testing.T) {
	s := testService(defaultConfig())
	ctx := context.Background()
	userID := uuid.New()

	pair, err := s.Issue(ctx, userID, "wallet", domain.NewScopes("openid", "profile"), true)
	require.NoError(t, err)

	next, err := s.Rotate(ctx, pair.RefreshToken, "wallet")
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, next.AccessToken)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)
	assert.Equal(t, pair.Scopes.Values(), next.Scopes.Values())

	// The rotated-out refresh token is dead.
	_, err = s.Rotate(ctx, pair.RefreshToken, "wallet")
	assert.ErrorIs(t, err, ErrInvalidGrant)

	// So is the old access token.
	_, err = s.ValidateAccess(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	// The new pair works.
	identity, err := s.ValidateAccess(ctx, next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, userID, identity.UserID)
}

func TestRotateChecksClientBinding(t *testing.T) {
	s := testService(defaultConfig())
	ctx := context.Background()

	pair, err := s.Issue(ctx, uuid.New(), "wallet", domain.NewScopes("openid"), true)
	require.NoError(t, err)

	_, err = s.Rotate(ctx, pair.RefreshToken, "merchant")
	assert.ErrorIs(t, err, ErrInvalidGrant)

	// The failed attempt did not burn the token.
	_, err = s.Rotate(ctx, pair.RefreshToken, "wallet")
	require.NoError(t, err)
}

func TestConcurrentRotateSingleWinner(t *testing.T) {
	s := testService(defaultConfig())
	ctx := context.Background()

	pair, err := s.Issue(ctx, uuid.New(), "wallet", domain.NewScopes("openid"), true)
	require.NoError(t, err)

	const callers = 16
	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = s.Rotate(ctx, pair.RefreshToken, "wallet")
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrInvalidGrant)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestRotateUnknownToken(t *testing.T) {
	s := testService(defaultConfig())
	_, err := s.Rotate(context.Background(), "garbage", "wallet")
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestRotateExpiredRefreshToken(t *testing.T) {
	s := testService(config.TokenConfig{
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: -time.Second,
	})
	pair, err := s.Issue(context.Background(), uuid.New(), "wallet", domain.NewScopes("openid"), true)
	require.NoError(t, err)

	_, err = s.Rotate(context.Background(), pair.RefreshToken, "wallet")
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestRevoke(t *testing.T) {
	s := testService(defaultConfig())
	ctx := context.Background()

	pair, err := s.Issue(ctx, uuid.New(), "wallet", domain.NewScopes("openid"), true)
	require.NoError(t, err)

	require.NoError(t, s.Revoke(ctx, pair.AccessToken))
	_, err = s.ValidateAccess(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	// Revoking an access token kills the paired refresh token too.
	_, err = s.Rotate(ctx, pair.RefreshToken, "wallet")
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestRevokeByRefreshToken(t *testing.T) {
	s := testService(defaultConfig())
	ctx := context.Background()

	pair, err := s.Issue(ctx, uuid.New(), "wallet", domain.NewScopes("openid"), true)
	require.NoError(t, err)

	require.NoError(t, s.Revoke(ctx, pair.RefreshToken))
	_, err = s.ValidateAccess(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestRevokeIsIdempotentAndNonLeaking(t *testing.T) {
	s := testService(defaultConfig())
	ctx := context.Background()

	pair, err := s.Issue(ctx, uuid.New(), "wallet", domain.NewScopes("openid"), true)
	require.NoError(t, err)

	require.NoError(t, s.Revoke(ctx, pair.AccessToken))
	require.NoError(t, s.Revoke(ctx, pair.AccessToken))
	// Unknown and empty tokens succeed identically.
	require.NoError(t, s.Revoke(ctx, "never-issued"))
	require.NoError(t, s.Revoke(ctx, ""))
}
