package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/peeap/identity-service/internal/config"
	"github.com/peeap/identity-service/internal/domain"
	"github.com/peeap/identity-service/internal/metrics"
	"github.com/peeap/identity-service/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body computed
// from the endpoint's stored secret. Receivers verify it before trusting
// the payload.
const SignatureHeader = "X-Peeap-Signature"

// payload is the delivery wire format.
type payload struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Dispatcher delivers events to subscribed webhook endpoints from a worker
// pool, off the authorization hot path. Delivery is at-least-once with
// bounded exponential backoff; exhausted retries are recorded and dropped.
type Dispatcher struct {
	store   storage.Store
	cfg     config.WebhookConfig
	client  *http.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
	queue   chan *domain.Event
	group   *errgroup.Group
	cancel  context.CancelFunc
}

// NewDispatcher constructs a Dispatcher. Call Start before Enqueue.
func NewDispatcher(store storage.Store, cfg config.WebhookConfig, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		store:   store,
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		logger:  logger,
		metrics: m,
		queue:   make(chan *domain.Event, cfg.QueueSize),
	}
}

// Start launches the delivery workers.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.group, ctx = errgroup.WithContext(ctx)
	workers := d.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		d.group.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case event := <-d.queue:
					d.deliver(ctx, event)
				}
			}
		})
	}
}

// Close stops the workers after the in-flight deliveries finish.
func (d *Dispatcher) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.group != nil {
		_ = d.group.Wait()
	}
}

// Enqueue hands an event to the worker pool. A full queue drops the
// delivery (the event row itself is already persisted) rather than block
// the caller.
func (d *Dispatcher) Enqueue(event *domain.Event) {
	select {
	case d.queue <- event:
	default:
		d.logger.Warn("webhook queue full, dropping delivery",
			zap.String("event_id", event.ID.String()),
			zap.String("type", event.Type),
		)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event *domain.Event) {
	endpoints, err := d.store.ActiveEndpointsForClient(ctx, event.ClientID)
	if err != nil {
		d.logger.Warn("failed to load webhook endpoints", zap.Error(err))
		return
	}

	attempts := 0
	delivered := false
	lastErr := ""
	for _, endpoint := range endpoints {
		if !endpoint.SubscribedTo(event.Type) {
			continue
		}
		n, err := d.deliverWithRetry(ctx, endpoint, event)
		attempts += n
		if err != nil {
			lastErr = err.Error()
			d.metrics.WebhookFailed.Inc()
			d.logger.Warn("webhook delivery exhausted retries",
				zap.String("url", endpoint.URL),
				zap.String("event_id", event.ID.String()),
				zap.Error(err),
			)
			continue
		}
		delivered = true
		d.metrics.WebhookDelivered.Inc()
	}

	if attempts == 0 {
		return
	}
	if err := d.store.UpdateEventDelivery(ctx, event.ID, delivered, attempts, lastErr); err != nil {
		d.logger.Warn("failed to record delivery status", zap.Error(err))
	}
}

func (d *Dispatcher) deliverWithRetry(ctx context.Context, endpoint *domain.WebhookEndpoint, event *domain.Event) (int, error) {
	body, err := json.Marshal(payload{
		Event:     event.Type,
		Timestamp: event.OccurredAt,
		Data:      event.Payload,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}
	signature := Sign(endpoint.Secret, body)

	backoff := d.cfg.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if err := d.post(ctx, endpoint.URL, body, signature); err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return attempt, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > d.cfg.MaxBackoff {
				backoff = d.cfg.MaxBackoff
			}
			continue
		}
		return attempt, nil
	}
	return d.cfg.MaxAttempts, lastErr
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("receiver returned %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 signature of a delivery body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
