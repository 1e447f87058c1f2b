// Package memory provides an in-memory outbox backend. It exists for tests
// and for exercising the dispatch contract without a database; the querier
// argument of CreateMessageTx is ignored and writes are not transactional.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sledzspecke/internal/domain"
	"sledzspecke/internal/repository/outbox_repo"
)

type memoryOutboxRepository struct {
	mu       sync.Mutex
	messages map[uuid.UUID]*domain.OutboxMessage
	inFlight map[uuid.UUID]struct{}
	seq      map[uuid.UUID]int
	nextSeq  int
}

func NewOutboxRepository() outbox_repo.OutboxRepository {
	return &memoryOutboxRepository{
		messages: make(map[uuid.UUID]*domain.OutboxMessage),
		inFlight: make(map[uuid.UUID]struct{}),
		seq:      make(map[uuid.UUID]int),
	}
}

func (r *memoryOutboxRepository) CreateMessageTx(_ context.Context, _ domain.Querier, msg *domain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *msg
	r.messages[msg.ID] = &stored
	r.seq[msg.ID] = r.nextSeq
	r.nextSeq++
	return nil
}

// ClaimBatch atomically selects eligible messages and marks them in flight,
// so concurrent claimers always receive disjoint batches. Rows return to the
// eligible set when RecordOutcomes settles them.
func (r *memoryOutboxRepository) ClaimBatch(_ context.Context, limit, maxRetries int) ([]domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var eligible []*domain.OutboxMessage
	for id, msg := range r.messages {
		if _, claimed := r.inFlight[id]; claimed {
			continue
		}
		if msg.Claimable(maxRetries) {
			eligible = append(eligible, msg)
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		if !eligible[i].OccurredAt.Equal(eligible[j].OccurredAt) {
			return eligible[i].OccurredAt.Before(eligible[j].OccurredAt)
		}
		return r.seq[eligible[i].ID] < r.seq[eligible[j].ID]
	})

	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	batch := make([]domain.OutboxMessage, 0, len(eligible))
	for _, msg := range eligible {
		r.inFlight[msg.ID] = struct{}{}
		batch = append(batch, *msg)
	}
	return batch, nil
}

func (r *memoryOutboxRepository) RecordOutcomes(_ context.Context, processed []uuid.UUID, failed []domain.OutboxFailure) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for _, id := range processed {
		if msg, ok := r.messages[id]; ok && msg.ProcessedAt == nil {
			processedAt := now
			msg.ProcessedAt = &processedAt
		}
		delete(r.inFlight, id)
	}
	for _, failure := range failed {
		if msg, ok := r.messages[failure.ID]; ok && msg.ProcessedAt == nil {
			msg.RetryCount++
			reason := failure.Reason
			msg.LastError = &reason
		}
		delete(r.inFlight, failure.ID)
	}
	return nil
}

func (r *memoryOutboxRepository) CountUnprocessed(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, msg := range r.messages {
		if msg.ProcessedAt == nil {
			count++
		}
	}
	return count, nil
}

func (r *memoryOutboxRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[id]
	if !ok {
		return nil, outbox_repo.ErrMessageNotFound
	}
	copied := *msg
	return &copied, nil
}
