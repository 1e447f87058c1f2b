package domain

import (
	"time"

	"github.com/google/uuid"
)

// Metadata carries cross-cutting context alongside an outbox message,
// such as correlation id, causation id and the acting user.
type Metadata map[string]any

// OutboxMessage is the unit of reliable event delivery. It is created inside
// a business transaction and afterwards mutated only by the dispatcher.
type OutboxMessage struct {
	ID          uuid.UUID
	EventType   string
	Payload     []byte
	Metadata    Metadata
	OccurredAt  time.Time
	ProcessedAt *time.Time
	LastError   *string
	RetryCount  int
}

// OutboxFailure records one failed delivery attempt for a message.
type OutboxFailure struct {
	ID     uuid.UUID
	Reason string
}

// Processed reports whether the message has reached its terminal state.
func (m *OutboxMessage) Processed() bool {
	return m.ProcessedAt != nil
}

// Claimable reports whether the message is still visible to the dispatcher
// under the given retry ceiling.
func (m *OutboxMessage) Claimable(maxRetries int) bool {
	return m.ProcessedAt == nil && m.RetryCount < maxRetries
}
