// Package events records lifecycle events and fans them out to subscribed
// webhook endpoints. Recording is synchronous (append-only audit log);
// delivery is asynchronous and never blocks or fails the issuing operation.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/peeap/identity-service/internal/domain"
	"github.com/peeap/identity-service/internal/storage"
	"go.uber.org/zap"
)

// Entry is a lifecycle event to record.
type Entry struct {
	Type     string
	ClientID string
	UserID   *uuid.UUID
	Payload  map[string]any
}

// Recorder is the capability services use to emit events.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// Logger appends events to the audit log and enqueues webhook delivery.
type Logger struct {
	store      storage.EventStore
	dispatcher *Dispatcher
	logger     *zap.Logger
}

var _ Recorder = (*Logger)(nil)

// NewLogger constructs a Logger. dispatcher may be nil when webhook
// delivery is disabled.
func NewLogger(store storage.EventStore, dispatcher *Dispatcher, logger *zap.Logger) *Logger {
	return &Logger{store: store, dispatcher: dispatcher, logger: logger}
}

// Record persists the event and hands it to the dispatcher. Failures are
// logged but never interrupt the calling flow.
func (l *Logger) Record(ctx context.Context, entry Entry) {
	if entry.Type == "" {
		return
	}
	event := &domain.Event{
		ID:         uuid.New(),
		Type:       entry.Type,
		ClientID:   entry.ClientID,
		UserID:     entry.UserID,
		Payload:    entry.Payload,
		OccurredAt: time.Now().UTC(),
	}
	if err := l.store.AppendEvent(ctx, event); err != nil {
		l.logger.Warn("failed to persist event",
			zap.String("type", event.Type),
			zap.Error(err),
		)
		return
	}
	if l.dispatcher != nil {
		l.dispatcher.Enqueue(event)
	}
}

// ListRecent retrieves most recent events for ops/debugging.
func (l *Logger) ListRecent(ctx context.Context, limit int) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.store.ListRecentEvents(ctx, limit)
}
