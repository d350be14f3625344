// Package reaper periodically purges expired codes, tokens, and SSO tokens.
// Every read path re-checks expiry directly, so a stalled reaper degrades
// storage growth, never correctness.
package reaper

import (
	"context"
	"time"

	"github.com/peeap/identity-service/internal/config"
	"github.com/peeap/identity-service/internal/metrics"
	"github.com/peeap/identity-service/internal/storage"
	"go.uber.org/zap"
)

// Reaper sweeps expired rows in bounded batches.
type Reaper struct {
	store   storage.Store
	cfg     config.ReaperConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New constructs a Reaper.
func New(store storage.Store, cfg config.ReaperConfig, m *metrics.Metrics, logger *zap.Logger) *Reaper {
	return &Reaper{store: store, cfg: cfg, metrics: m, logger: logger}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one bounded pass over all expirable tables.
func (r *Reaper) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	codes, err := r.store.DeleteExpiredCodes(ctx, now, r.cfg.BatchSize)
	r.report("authorization_codes", codes, err)

	sso, err := r.store.DeleteExpiredSSOTokens(ctx, now, r.cfg.BatchSize)
	r.report("sso_tokens", sso, err)

	// Tokens are retained for a window past expiry so recently revoked
	// rows stay visible for audit.
	tokens, err := r.store.DeleteExpiredTokens(ctx, now.Add(-r.cfg.TokenRetention), r.cfg.BatchSize)
	r.report("tokens", tokens, err)
}

func (r *Reaper) report(table string, deleted int, err error) {
	if err != nil {
		r.logger.Warn("reaper sweep failed", zap.String("table", table), zap.Error(err))
		return
	}
	if deleted > 0 {
		r.metrics.RowsReaped.WithLabelValues(table).Add(float64(deleted))
		r.logger.Info("reaped expired rows", zap.String("table", table), zap.Int("deleted", deleted))
	}
}
