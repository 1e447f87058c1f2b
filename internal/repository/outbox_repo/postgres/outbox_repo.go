package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"sledzspecke/internal/domain"
	"sledzspecke/internal/repository/outbox_repo"
)

const maxLastErrorLen = 2000

const outboxColumns = "id, event_type, payload, metadata, occurred_at, processed_at, last_error, retry_count"

type pgOutboxRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewOutboxRepository(db *sql.DB, l *zap.Logger) outbox_repo.OutboxRepository {
	return &pgOutboxRepository{db: db, logger: l}
}

func (r *pgOutboxRepository) CreateMessageTx(ctx context.Context, q domain.Querier, msg *domain.OutboxMessage) error {
	metadata, err := marshalMetadata(msg.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO outbox_messages (id, event_type, payload, metadata, occurred_at, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = q.ExecContext(ctx, query,
		msg.ID, msg.EventType, string(msg.Payload), metadata, msg.OccurredAt, msg.RetryCount)
	if err != nil {
		return fmt.Errorf("failed to create outbox message: %w", err)
	}
	r.logger.Debug("Outbox message created", zap.String("message_id", msg.ID.String()), zap.String("event_type", msg.EventType))
	return nil
}

// ClaimBatch runs the skip-locked selection in its own short transaction so
// row locks are never held while messages are being published. Two claimers
// selecting at the same time partition the pending set between them.
func (r *pgOutboxRepository) ClaimBatch(ctx context.Context, limit, maxRetries int) ([]domain.OutboxMessage, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT ` + outboxColumns + `
		FROM outbox_messages
		WHERE processed_at IS NULL AND retry_count < $1
		ORDER BY occurred_at ASC, id ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`
	rows, err := tx.QueryContext(ctx, query, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox batch: %w", err)
	}
	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim transaction: %w", err)
	}
	return messages, nil
}

func (r *pgOutboxRepository) RecordOutcomes(ctx context.Context, processed []uuid.UUID, failed []domain.OutboxFailure) error {
	if len(processed) == 0 && len(failed) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin outcome transaction: %w", err)
	}
	defer tx.Rollback()

	if len(processed) > 0 {
		ids := make([]string, len(processed))
		for i, id := range processed {
			ids[i] = id.String()
		}
		// COALESCE keeps processed_at from ever being overwritten, so a
		// crash-and-retry of this step is safe to replay.
		query := `
			UPDATE outbox_messages
			SET processed_at = COALESCE(processed_at, $1)
			WHERE id = ANY($2)
		`
		if _, err := tx.ExecContext(ctx, query, time.Now().UTC(), pq.Array(ids)); err != nil {
			return fmt.Errorf("failed to mark outbox messages processed: %w", err)
		}
	}

	for _, failure := range failed {
		query := `
			UPDATE outbox_messages
			SET retry_count = retry_count + 1, last_error = $1
			WHERE id = $2 AND processed_at IS NULL
		`
		if _, err := tx.ExecContext(ctx, query, truncateError(failure.Reason), failure.ID); err != nil {
			return fmt.Errorf("failed to record outbox failure for %s: %w", failure.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit outcome transaction: %w", err)
	}
	return nil
}

func (r *pgOutboxRepository) CountUnprocessed(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM outbox_messages WHERE processed_at IS NULL`
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unprocessed outbox messages: %w", err)
	}
	return count, nil
}

func (r *pgOutboxRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboxMessage, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox_messages WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	msg, err := scanMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, outbox_repo.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get outbox message %s: %w", id, err)
	}
	return msg, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*domain.OutboxMessage, error) {
	msg := &domain.OutboxMessage{}
	var payload string
	var metadata []byte
	var processedAt sql.NullTime
	var lastError sql.NullString

	err := row.Scan(&msg.ID, &msg.EventType, &payload, &metadata,
		&msg.OccurredAt, &processedAt, &lastError, &msg.RetryCount)
	if err != nil {
		return nil, err
	}

	msg.Payload = []byte(payload)
	if processedAt.Valid {
		msg.ProcessedAt = &processedAt.Time
	}
	if lastError.Valid {
		msg.LastError = &lastError.String
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode outbox metadata: %w", err)
		}
	}
	return msg, nil
}

func scanMessages(rows *sql.Rows) ([]domain.OutboxMessage, error) {
	defer rows.Close()

	var messages []domain.OutboxMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox message row: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error while claiming outbox messages: %w", err)
	}
	return messages, nil
}

func marshalMetadata(metadata domain.Metadata) (any, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode outbox metadata: %w", err)
	}
	return raw, nil
}

func truncateError(reason string) string {
	if len(reason) > maxLastErrorLen {
		return reason[:maxLastErrorLen]
	}
	return reason
}
