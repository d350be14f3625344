package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/peeap/identity-service/internal/config"
	"github.com/peeap/identity-service/internal/domain"
	"github.com/peeap/identity-service/internal/metrics"
	"github.com/peeap/identity-service/internal/storage"
	"github.com/peeap/identity-service/internal/storage/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testReaper(store storage.Store, retention time.Duration) *Reaper {
	cfg := config.ReaperConfig{
		Interval:       time.Minute,
		BatchSize:      100,
		TokenRetention: retention,
	}
	return New(store, cfg, metrics.New(prometheus.NewRegistry()), zap.NewNop())
}

func TestSweepRemovesExpiredRows(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.CreateCode(ctx, &domain.AuthorizationCode{
		ID: uuid.New(), Code: "expired-code", ClientID: "wallet",
		ExpiresAt: now.Add(-time.Hour),
	}))
	require.NoError(t, store.CreateCode(ctx, &domain.AuthorizationCode{
		ID: uuid.New(), Code: "live-code", ClientID: "wallet",
		ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, store.CreateSSOToken(ctx, &domain.SSOToken{
		ID: uuid.New(), Token: "expired-sso",
		ExpiresAt: now.Add(-time.Hour),
	}))

	testReaper(store, 0).Sweep(ctx)

	_, err := store.GetCode(ctx, "expired-code")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetCode(ctx, "live-code")
	assert.NoError(t, err)
	_, err = store.GetSSOToken(ctx, "expired-sso")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSweepHonoursTokenRetention(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	// Expired two hours ago, inside a 24h retention window.
	require.NoError(t, store.CreateToken(ctx, &domain.Token{
		ID: uuid.New(), AccessTokenHash: "recent", ClientID: "wallet", UserID: uuid.New(),
		ExpiresAt: now.Add(-2 * time.Hour), RefreshExpiresAt: now.Add(-2 * time.Hour),
	}))
	// Expired well past the window.
	require.NoError(t, store.CreateToken(ctx, &domain.Token{
		ID: uuid.New(), AccessTokenHash: "ancient", ClientID: "wallet", UserID: uuid.New(),
		ExpiresAt: now.Add(-48 * time.Hour), RefreshExpiresAt: now.Add(-48 * time.Hour),
	}))

	testReaper(store, 24*time.Hour).Sweep(ctx)

	_, err := store.GetByAccessHash(ctx, "recent")
	assert.NoError(t, err)
	_, err = store.GetByAccessHash(ctx, "ancient")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSweepBoundsBatchSize(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 10; i++ {
		require.NoError(t, store.CreateCode(ctx, &domain.AuthorizationCode{
			ID: uuid.New(), Code: uuid.NewString(), ClientID: "wallet",
			ExpiresAt: now.Add(-time.Hour),
		}))
	}

	r := New(store, config.ReaperConfig{Interval: time.Minute, BatchSize: 4}, metrics.New(prometheus.NewRegistry()), zap.NewNop())
	r.Sweep(ctx)

	deleted, err := store.DeleteExpiredCodes(ctx, now, 100)
	require.NoError(t, err)
	// One sweep removed at most BatchSize rows; the remainder is left for
	// the next pass.
	assert.Equal(t, 6, deleted)
}
