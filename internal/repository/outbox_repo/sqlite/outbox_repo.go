// Package sqlite provides the embedded outbox backend. It supports a single
// dispatcher instance per database file; claims are serialized through the
// repository and rows handed to a cycle stay invisible to the next claim
// until their outcome is recorded.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sledzspecke/internal/domain"
	"sledzspecke/internal/repository/outbox_repo"
)

const maxLastErrorLen = 2000

const schema = `
CREATE TABLE IF NOT EXISTS outbox_messages (
    id           TEXT PRIMARY KEY,
    event_type   TEXT NOT NULL,
    payload      TEXT NOT NULL,
    metadata     TEXT,
    occurred_at  DATETIME NOT NULL,
    processed_at DATETIME,
    last_error   TEXT,
    retry_count  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_outbox_messages_occurred_at ON outbox_messages (occurred_at);

CREATE TABLE IF NOT EXISTS medical_shifts (
    id            TEXT PRIMARY KEY,
    internship_id TEXT NOT NULL,
    status        TEXT NOT NULL,
    approved_by   TEXT,
    approved_at   DATETIME,
    created_at    DATETIME NOT NULL,
    updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS procedures (
    id            TEXT PRIMARY KEY,
    internship_id TEXT NOT NULL,
    code          TEXT NOT NULL,
    performed_at  DATETIME NOT NULL,
    created_at    DATETIME NOT NULL
);
`

// Migrate creates the embedded schema if it does not exist yet. The business
// repositories bind parameters with the $N form, which sqlite also accepts,
// so the same repositories run against either engine.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create sqlite outbox schema: %w", err)
	}
	return nil
}

type sqliteOutboxRepository struct {
	db     *sql.DB
	logger *zap.Logger

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

func NewOutboxRepository(db *sql.DB, l *zap.Logger) outbox_repo.OutboxRepository {
	return &sqliteOutboxRepository{
		db:       db,
		logger:   l,
		inFlight: make(map[uuid.UUID]struct{}),
	}
}

func (r *sqliteOutboxRepository) CreateMessageTx(ctx context.Context, q domain.Querier, msg *domain.OutboxMessage) error {
	var metadata any
	if len(msg.Metadata) > 0 {
		raw, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode outbox metadata: %w", err)
		}
		metadata = string(raw)
	}

	query := `
		INSERT INTO outbox_messages (id, event_type, payload, metadata, occurred_at, retry_count)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		msg.ID.String(), msg.EventType, string(msg.Payload), metadata, msg.OccurredAt.UTC(), msg.RetryCount)
	if err != nil {
		return fmt.Errorf("failed to create outbox message: %w", err)
	}
	r.logger.Debug("Outbox message created", zap.String("message_id", msg.ID.String()), zap.String("event_type", msg.EventType))
	return nil
}

func (r *sqliteOutboxRepository) ClaimBatch(ctx context.Context, limit, maxRetries int) ([]domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Over-fetch by the number of in-flight rows so filtering them out still
	// leaves a full batch when enough eligible rows exist.
	query := `
		SELECT id, event_type, payload, metadata, occurred_at, processed_at, last_error, retry_count
		FROM outbox_messages
		WHERE processed_at IS NULL AND retry_count < ?
		ORDER BY occurred_at ASC, id ASC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, maxRetries, limit+len(r.inFlight))
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox batch: %w", err)
	}
	defer rows.Close()

	var messages []domain.OutboxMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox message row: %w", err)
		}
		if _, claimed := r.inFlight[msg.ID]; claimed {
			continue
		}
		messages = append(messages, *msg)
		if len(messages) == limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error while claiming outbox messages: %w", err)
	}

	for _, msg := range messages {
		r.inFlight[msg.ID] = struct{}{}
	}
	return messages, nil
}

func (r *sqliteOutboxRepository) RecordOutcomes(ctx context.Context, processed []uuid.UUID, failed []domain.OutboxFailure) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(processed) == 0 && len(failed) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin outcome transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, id := range processed {
		query := `
			UPDATE outbox_messages
			SET processed_at = COALESCE(processed_at, ?)
			WHERE id = ?
		`
		if _, err := tx.ExecContext(ctx, query, now, id.String()); err != nil {
			return fmt.Errorf("failed to mark outbox message %s processed: %w", id, err)
		}
	}
	for _, failure := range failed {
		query := `
			UPDATE outbox_messages
			SET retry_count = retry_count + 1, last_error = ?
			WHERE id = ? AND processed_at IS NULL
		`
		if _, err := tx.ExecContext(ctx, query, truncateError(failure.Reason), failure.ID.String()); err != nil {
			return fmt.Errorf("failed to record outbox failure for %s: %w", failure.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit outcome transaction: %w", err)
	}

	for _, id := range processed {
		delete(r.inFlight, id)
	}
	for _, failure := range failed {
		delete(r.inFlight, failure.ID)
	}
	return nil
}

func (r *sqliteOutboxRepository) CountUnprocessed(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM outbox_messages WHERE processed_at IS NULL`
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unprocessed outbox messages: %w", err)
	}
	return count, nil
}

func (r *sqliteOutboxRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboxMessage, error) {
	query := `
		SELECT id, event_type, payload, metadata, occurred_at, processed_at, last_error, retry_count
		FROM outbox_messages WHERE id = ?
	`
	row := r.db.QueryRowContext(ctx, query, id.String())

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
	var id, payload string
	var metadata, lastError sql.NullString
	var processedAt sql.NullTime

	err := row.Scan(&id, &msg.EventType, &payload, &metadata,
		&msg.OccurredAt, &processedAt, &lastError, &msg.RetryCount)
	if err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("failed to parse outbox message id %q: %w", id, err)
	}
	msg.ID = parsed
	msg.Payload = []byte(payload)
	if processedAt.Valid {
		msg.ProcessedAt = &processedAt.Time
	}
	if lastError.Valid {
		msg.LastError = &lastError.String
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode outbox metadata: %w", err)
		}
	}
	return msg, nil
}

func truncateError(reason string) string {
	if len(reason) > maxLastErrorLen {
		return reason[:maxLastErrorLen]
	}
	return reason
}
