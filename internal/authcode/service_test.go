package authcode

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/peeap/identity-service/internal/clients"
	"github.com/peeap/identity-service/internal/config"
	"github.com/peeap/identity-service/internal/domain"
	"github.com/peeap/identity-service/internal/events"
	"github.com/peeap/identity-service/internal/metrics"
	"github.com/peeap/identity-service/internal/oauth/pkce"
	"github.com/peeap/identity-service/internal/secrets"
	"github.com/peeap/identity-service/internal/storage/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	service  *Service
	registry *clients.Registry
	store    *memory.Store
}

func newFixture(t *testing.T, ttl time.Duration) *fixture {
	t.Helper()
	store := memory.New()
	hasher := secrets.NewHasher(config.SecurityConfig{
		Argon2Time: 1, Argon2Memory: 8 * 1024, Argon2Threads: 1, Argon2KeyLength: 32,
	})
	registry := clients.NewRegistry(store, nil, "test", hasher, zap.NewNop())
	service := New(Dependencies{
		Registry: registry,
		Store:    store,
		Recorder: events.NewLogger(store, nil, zap.NewNop()),
		Metrics:  metrics.New(prometheus.NewRegistry()),
		CodeTTL:  ttl,
		Logger:   zap.NewNop(),
	})
	return &fixture{service: service, registry: registry, store: store}
}

func (f *fixture) registerClient(t *testing.T, confidential bool) *domain.Client {
	t.Helper()
	client, _, err := f.registry.Register(context.Background(), clients.RegisterInput{
		Name:         "acme-docs",
		RedirectURIs: []string{"https://acme.com/callback", "https://*.acme.com/callback"},
		Scopes:       domain.NewScopes("openid", "profile", "docs:read"),
		Confidential: confidential,
	})
	require.NoError(t, err)
	return client
}

func s256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func TestIssueAndConsume(t *testing.T) {
	f := newFixture(t, time.Minute)
	client := f.registerClient(t, true)
	ctx := context.Background()
	userID := uuid.New()

	plain, code, err := f.service.Issue(ctx, IssueInput{
		ClientID:    client.ClientID,
		UserID:      userID,
		RedirectURI: "https://acme.com/callback",
		Scopes:      domain.NewScopes("openid", "profile"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, plain)
	// Only the hash is persisted.
	assert.NotEqual(t, plain, code.Code)

	grant, err := f.service.Consume(ctx, ConsumeInput{
		Code:        plain,
		ClientID:    client.ClientID,
		RedirectURI: "https://acme.com/callback",
	})
	require.NoError(t, err)
	assert.Equal(t, userID, grant.UserID)
	assert.Equal(t, client.ClientID, grant.ClientID)
	assert.True(t, grant.Scopes.Contains("openid"))
}

func TestConsumeReplayFails(t *testing.T) {
	f := newFixture(t, time.Minute)
	client := f.registerClient(t, true)
	ctx := context.Background()

	plain, _, err := f.service.Issue(ctx, IssueInput{
		ClientID:    client.ClientID,
		UserID:      uuid.New(),
		RedirectURI: "https://acme.com/callback",
		Scopes:      domain.NewScopes("openid"),
	})
	require.NoError(t, err)

	in := ConsumeInput{Code: plain, ClientID: client.ClientID, RedirectURI: "https://acme.com/callback"}
	_, err = f.service.Consume(ctx, in)
	require.NoError(t, err)

	_, err = f.service.Consume(ctx, in)
	assert.ErrorIs(t, err, ErrCodeAlreadyUsed)
}

func TestConcurrentConsumeSingleWinner(t *testing.T) {
	f := newFixture(t, time.Minute)
	client := f.registerClient(t, true)
	ctx := context.Background()

	plain, _, err := f.service.Issue(ctx, IssueInput{
		ClientID:    client.ClientID,
		UserID:      uuid.New(),
		RedirectURI: "https://acme.com/callback",
		Scopes:      domain.NewScopes("openid"),
	})
	require.NoError(t, err)

	const callers = 16
	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.service.Consume(ctx, ConsumeInput{
				Code:        plain,
				ClientID:    client.ClientID,
				RedirectURI: "https://acme.com/callback",
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrCodeAlreadyUsed)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestConsumeExpiredCode(t *testing.T) {
	f := newFixture(t, -time.Second)
	client := f.registerClient(t, true)
	ctx := context.Background()

	plain, _, err := f.service.Issue(ctx, IssueInput{
		ClientID:    client.ClientID,
		UserID:      uuid.New(),
		RedirectURI: "https://acme.com/callback",
		Scopes:      domain.NewScopes("openid"),
	})
	require.NoError(t, err)

	_, err = f.service.Consume(ctx, ConsumeInput{
		Code:        plain,
		ClientID:    client.ClientID,
		RedirectURI: "https://acme.com/callback",
	})
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestMismatchDoesNotConsume(t *testing.T) {
	f := newFixture(t, time.Minute)
	client := f.registerClient(t, true)
	ctx := context.Background()

	plain, _, err := f.service.Issue(ctx, IssueInput{
		ClientID:    client.ClientID,
		UserID:      uuid.New(),
		RedirectURI: "https://acme.com/callback",
		Scopes:      domain.NewScopes("openid"),
	})
	require.NoError(t, err)

	// Wrong redirect, then wrong client; neither may burn the code.
	_, err = f.service.Consume(ctx, ConsumeInput{
		Code:        plain,
		ClientID:    client.ClientID,
		RedirectURI: "https://other.com/callback",
	})
	assert.ErrorIs(t, err, ErrInvalidGrant)

	_, err = f.service.Consume(ctx, ConsumeInput{
		Code:        plain,
		ClientID:    "imposter",
		RedirectURI: "https://acme.com/callback",
	})
	assert.ErrorIs(t, err, ErrInvalidGrant)

	// The legitimate exchange still succeeds.
	_, err = f.service.Consume(ctx, ConsumeInput{
		Code:        plain,
		ClientID:    client.ClientID,
		RedirectURI: "https://acme.com/callback",
	})
	require.NoError(t, err)
}

func TestPkceRequiredForPublicClients(t *testing.T) {
	f := newFixture(t, time.Minute)
	client := f.registerClient(t, false)

	_, _, err := f.service.Issue(context.Background(), IssueInput{
		ClientID:    client.ClientID,
		UserID:      uuid.New(),
		RedirectURI: "https://acme.com/callback",
		Scopes:      domain.NewScopes("openid"),
	})
	assert.ErrorIs(t, err, ErrPkceRequired)
}

func TestPkceS256Flow(t *testing.T) {
	f := newFixture(t, time.Minute)
	client := f.registerClient(t, false)
	ctx := context.Background()
	verifier := "correct-horse-battery-staple-and-then-some"

	plain, _, err := f.service.Issue(ctx, IssueInput{
		ClientID:            client.ClientID,
		UserID:              uuid.New(),
		RedirectURI:         "https://acme.com/callback",
		Scopes:              domain.NewScopes("openid"),
		CodeChallenge:       s256(verifier),
		CodeChallengeMethod: pkce.MethodS256,
	})
	require.NoError(t, err)

	// A bad verifier is rejected without consuming the code.
	_, err = f.service.Consume(ctx, ConsumeInput{
		Code:         plain,
		ClientID:     client.ClientID,
		RedirectURI:  "https://acme.com/callback",
		CodeVerifier: "wrong",
	})
	assert.ErrorIs(t, err, ErrPkceMismatch)

	_, err = f.service.Consume(ctx, ConsumeInput{
		Code:        plain,
		ClientID:    client.ClientID,
		RedirectURI: "https://acme.com/callback",
	})
	assert.ErrorIs(t, err, ErrPkceMismatch)

	_, err = f.service.Consume(ctx, ConsumeInput{
		Code:         plain,
		ClientID:     client.ClientID,
		RedirectURI:  "https://acme.com/callback",
		CodeVerifier: verifier,
	})
	require.NoError(t, err)
}

func TestPkceDefaultMethodIsPlain(t *testing.T) {
	f := newFixture(t, time.Minute)
	client := f.registerClient(t, false)
	ctx := context.Background()

	plain, code, err := f.service.Issue(ctx, IssueInput{
		ClientID:      client.ClientID,
		UserID:        uuid.New(),
		RedirectURI:   "https://acme.com/callback",
		Scopes:        domain.NewScopes("openid"),
		CodeChallenge: "plain-challenge-value",
	})
	require.NoError(t, err)
	assert.Equal(t, pkce.MethodPlain, code.CodeChallengeMethod)

	_, err = f.service.Consume(ctx, ConsumeInput{
		Code:         plain,
		ClientID:     client.ClientID,
		RedirectURI:  "https://acme.com/callback",
		CodeVerifier: "plain-challenge-value",
	})
	require.NoError(t, err)
}

func TestIssueUnsupportedChallengeMethod(t *testing.T) {
	f := newFixture(t, time.Minute)
	client := f.registerClient(t, false)

	_, _, err := f.service.Issue(context.Background(), IssueInput{
		ClientID:            client.ClientID,
		UserID:              uuid.New(),
		RedirectURI:         "https://acme.com/callback",
		Scopes:              domain.NewScopes("openid"),
		CodeChallenge:       "xyz",
		CodeChallengeMethod: "S512",
	})
	assert.ErrorIs(t, err, pkce.ErrUnsupportedMethod)
}

func TestIssueValidation(t *testing.T) {
	f := newFixture(t, time.Minute)
	client := f.registerClient(t, true)
	ctx := context.Background()

	_, _, err := f.service.Issue(ctx, IssueInput{
		ClientID:    client.ClientID,
		UserID:      uuid.New(),
		RedirectURI: "https://evil.com/callback",
		Scopes:      domain.NewScopes("openid"),
	})
	assert.ErrorIs(t, err, clients.ErrInvalidRedirectURI)

	_, _, err = f.service.Issue(ctx, IssueInput{
		ClientID:    client.ClientID,
		UserID:      uuid.New(),
		RedirectURI: "https://acme.com/callback",
		Scopes:      domain.NewScopes("admin"),
	})
	assert.ErrorIs(t, err, clients.ErrInvalidScope)

	_, _, err = f.service.Issue(ctx, IssueInput{
		ClientID:    "unknown",
		UserID:      uuid.New(),
		RedirectURI: "https://acme.com/callback",
		Scopes:      domain.NewScopes("openid"),
	})
	assert.ErrorIs(t, err, clients.ErrInvalidClient)
}

func TestConsumeUnknownCode(t *testing.T) {
	f := newFixture(t, time.Minute)
	client := f.registerClient(t, true)

	_, err := f.service.Consume(context.Background(), ConsumeInput{
		Code:        "never-issued",
		ClientID:    client.ClientID,
		RedirectURI: "https://acme.com/callback",
	})
	assert.True(t, errors.Is(err, ErrInvalidGrant))
}

func TestWildcardRedirectAcceptedAtIssue(t *testing.T) {
	f := newFixture(t, time.Minute)
	client := f.registerClient(t, true)

	_, _, err := f.service.Issue(context.Background(), IssueInput{
		ClientID:    client.ClientID,
		UserID:      uuid.New(),
		RedirectURI: "https://tenant-a.acme.com/callback",
		Scopes:      domain.NewScopes("openid"),
	})
	require.NoError(t, err)
}
