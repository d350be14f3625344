package events

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/peeap/identity-service/internal/config"
	"github.com/peeap/identity-service/internal/domain"
	"github.com/peeap/identity-service/internal/metrics"
	"github.com/peeap/identity-service/internal/storage/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testWebhookConfig() config.WebhookConfig {
	return config.WebhookConfig{
		Workers:        2,
		MaxAttempts:    3,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
		RequestTimeout: 2 * time.Second,
		QueueSize:      16,
	}
}

type delivery struct {
	signature string
	body      []byte
}

func TestDispatcherDeliversSignedPayload(t *testing.T) {
	received := make(chan delivery, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- delivery{signature: r.Header.Get(SignatureHeader), body: body}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	store := memory.New()
	secret := "whsec_test"
	require.NoError(t, store.CreateEndpoint(context.Background(), &domain.WebhookEndpoint{
		ID:       uuid.New(),
		ClientID: "wallet",
		URL:      server.URL,
		Secret:   secret,
		Events:   []string{domain.EventTokenIssued},
		Active:   true,
	}))

	d := NewDispatcher(store, testWebhookConfig(), zap.NewNop(), metrics.New(prometheus.NewRegistry()))
	d.Start(context.Background())
	defer d.Close()

	event := &domain.Event{
		ID:         uuid.New(),
		Type:       domain.EventTokenIssued,
		ClientID:   "wallet",
		Payload:    map[string]any{"scopes": []string{"openid"}},
		OccurredAt: time.Now().UTC(),
	}
	d.Enqueue(event)

	select {
	case got := <-received:
		assert.Equal(t, Sign(secret, got.body), got.signature)
		var p payload
		require.NoError(t, json.Unmarshal(got.body, &p))
		assert.Equal(t, domain.EventTokenIssued, p.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never arrived")
	}
}

func TestDispatcherRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		close(done)
	}))
	defer server.Close()

	store := memory.New()
	require.NoError(t, store.CreateEndpoint(context.Background(), &domain.WebhookEndpoint{
		ID:     uuid.New(),
		URL:    server.URL,
		Secret: "whsec_test",
		Events: []string{"*"},
		Active: true,
	}))

	d := NewDispatcher(store, testWebhookConfig(), zap.NewNop(), metrics.New(prometheus.NewRegistry()))
	d.Start(context.Background())
	defer d.Close()

	d.Enqueue(&domain.Event{
		ID:         uuid.New(),
		Type:       domain.EventTokenRotated,
		OccurredAt: time.Now().UTC(),
	})

	select {
	case <-done:
		assert.Equal(t, int32(3), calls.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never succeeded")
	}
}

func TestDispatcherSkipsUnsubscribedEvents(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := memory.New()
	require.NoError(t, store.CreateEndpoint(context.Background(), &domain.WebhookEndpoint{
		ID:     uuid.New(),
		URL:    server.URL,
		Secret: "whsec_test",
		Events: []string{domain.EventTokenRevoked},
		Active: true,
	}))

	d := NewDispatcher(store, testWebhookConfig(), zap.NewNop(), metrics.New(prometheus.NewRegistry()))
	d.Start(context.Background())

	d.Enqueue(&domain.Event{
		ID:         uuid.New(),
		Type:       domain.EventTokenIssued,
		OccurredAt: time.Now().UTC(),
	})

	time.Sleep(100 * time.Millisecond)
	d.Close()
	assert.Zero(t, calls.Load())
}

func TestRecorderPersistsEvents(t *testing.T) {
	store := memory.New()
	recorder := NewLogger(store, nil, zap.NewNop())
	userID := uuid.New()

	recorder.Record(context.Background(), Entry{
		Type:     domain.EventConsentGranted,
		ClientID: "wallet",
		UserID:   &userID,
		Payload:  map[string]any{"scopes": []string{"openid"}},
	})
	// Entries without a type are dropped.
	recorder.Record(context.Background(), Entry{ClientID: "wallet"})

	listed, err := recorder.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, domain.EventConsentGranted, listed[0].Type)
	assert.Equal(t, "wallet", listed[0].ClientID)
}

func TestSign(t *testing.T) {
	sig := Sign("secret", []byte(`{"event":"x"}`))
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, Sign("secret", []byte(`{"event":"x"}`)))
	assert.NotEqual(t, sig, Sign("other", []byte(`{"event":"x"}`)))
}
