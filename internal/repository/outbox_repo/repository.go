package outbox_repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"sledzspecke/internal/domain"
)

var ErrMessageNotFound = errors.New("outbox message not found")

// OutboxRepository is the single mutation surface of the outbox store.
// CreateMessageTx is called by the writer inside the caller's transaction;
// the remaining methods belong to the dispatcher and the monitoring surface.
type OutboxRepository interface {
	// CreateMessageTx inserts the message using the caller's transaction
	// and never commits.
	CreateMessageTx(ctx context.Context, q domain.Querier, msg *domain.OutboxMessage) error

	// ClaimBatch returns up to limit messages that are unprocessed and under
	// the retry ceiling, oldest first. Concurrent claimers must receive
	// disjoint batches. An empty store yields an empty slice, not an error.
	ClaimBatch(ctx context.Context, limit, maxRetries int) ([]domain.OutboxMessage, error)

	// RecordOutcomes persists the results of one dispatch cycle in a single
	// transaction: processed messages get processed_at set (idempotently,
	// an already-processed row is left untouched), failed ones get their
	// retry_count incremented and last_error replaced.
	RecordOutcomes(ctx context.Context, processed []uuid.UUID, failed []domain.OutboxFailure) error

	// CountUnprocessed reports how many messages have processed_at unset,
	// including those past the retry ceiling awaiting inspection.
	CountUnprocessed(ctx context.Context) (int, error)

	// GetByID fetches a single message, mainly for inspection.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboxMessage, error)
}
