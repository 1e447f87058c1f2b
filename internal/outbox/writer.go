package outbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sledzspecke/internal/domain"
)

// Appender is the slice of the outbox repository the writer needs.
type Appender interface {
	CreateMessageTx(ctx context.Context, q domain.Querier, msg *domain.OutboxMessage) error
}

// Writer appends outbox messages inside a business transaction owned by the
// caller. If that transaction rolls back, the message never exists; if it
// commits, the message is durably recorded. The writer never commits and
// never serializes domain events itself, it stores the payload as given.
type Writer struct {
	store  Appender
	logger *zap.Logger
}

func NewWriter(store Appender, l *zap.Logger) *Writer {
	return &Writer{store: store, logger: l}
}

// Append inserts one message using the caller's transaction and returns its
// id. eventType selects the decoder at dispatch time and must be non-empty;
// payload must already be serialized.
func (w *Writer) Append(ctx context.Context, q domain.Querier, eventType string, payload []byte, metadata domain.Metadata) (uuid.UUID, error) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return uuid.Nil, ErrEventTypeRequired
	}
	if len(payload) == 0 {
		return uuid.Nil, ErrPayloadRequired
	}

	msg := &domain.OutboxMessage{
		ID:         uuid.New(),
		EventType:  eventType,
		Payload:    payload,
		Metadata:   metadata,
		OccurredAt: time.Now().UTC(),
	}

	if err := w.store.CreateMessageTx(ctx, q, msg); err != nil {
		return uuid.Nil, fmt.Errorf("failed to append outbox message: %w", err)
	}

	w.logger.Debug("Appended outbox message",
		zap.String("message_id", msg.ID.String()),
		zap.String("event_type", eventType))
	return msg.ID, nil
}
