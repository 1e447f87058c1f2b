package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sledzspecke/internal/domain"
	"sledzspecke/internal/infrastructure/database"
	"sledzspecke/internal/repository/outbox_repo"
	"sledzspecke/internal/repository/outbox_repo/sqlite"
)

func newTestRepo(t *testing.T) (outbox_repo.OutboxRepository, *sql.DB) {
	t.Helper()

	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "outbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, sqlite.Migrate(db))
	return sqlite.NewOutboxRepository(db, zap.NewNop()), db
}

func insertMessage(t *testing.T, repo outbox_repo.OutboxRepository, db *sql.DB, occurredAt time.Time) uuid.UUID {
	t.Helper()

	msg := &domain.OutboxMessage{
		ID:         uuid.New(),
		EventType:  "MedicalShiftApproved",
		Payload:    []byte(`{"shift_id":"s1"}`),
		Metadata:   domain.Metadata{"correlation_id": "c1"},
		OccurredAt: occurredAt,
	}
	require.NoError(t, repo.CreateMessageTx(context.Background(), db, msg))
	return msg.ID
}

func TestSQLiteCreateAndGet(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	id := insertMessage(t, repo, db, time.Now().UTC())

	msg, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "MedicalShiftApproved", msg.EventType)
	assert.Equal(t, []byte(`{"shift_id":"s1"}`), msg.Payload)
	assert.Equal(t, "c1", msg.Metadata["correlation_id"])
	assert.Nil(t, msg.ProcessedAt)
	assert.Nil(t, msg.LastError)
	assert.Equal(t, 0, msg.RetryCount)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, outbox_repo.ErrMessageNotFound)
}

func TestSQLiteRollbackDiscardsMessage(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)

	msg := &domain.OutboxMessage{
		ID:         uuid.New(),
		EventType:  "ProcedureCreated",
		Payload:    []byte(`{}`),
		OccurredAt: time.Now().UTC(),
	}
	require.NoError(t, repo.CreateMessageTx(ctx, tx, msg))
	require.NoError(t, tx.Rollback())

	_, err = repo.GetByID(ctx, msg.ID)
	assert.ErrorIs(t, err, outbox_repo.ErrMessageNotFound)

	count, err := repo.CountUnprocessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSQLiteClaimBatchOrderAndLimit(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	first := insertMessage(t, repo, db, base)
	second := insertMessage(t, repo, db, base.Add(time.Second))
	insertMessage(t, repo, db, base.Add(2*time.Second))

	batch, err := repo.ClaimBatch(ctx, 2, 3)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, first, batch[0].ID)
	assert.Equal(t, second, batch[1].ID)
}

func TestSQLiteClaimBatchExcludesInFlight(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	id := insertMessage(t, repo, db, time.Now().UTC())

	batch, err := repo.ClaimBatch(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	// The row stays invisible until its outcome lands.
	batch, err = repo.ClaimBatch(ctx, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, batch)

	require.NoError(t, repo.RecordOutcomes(ctx, nil, []domain.OutboxFailure{{ID: id, Reason: "broker unreachable"}}))

	batch, err = repo.ClaimBatch(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, 1, batch[0].RetryCount)
}

func TestSQLiteMarkProcessedIsIdempotent(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	id := insertMessage(t, repo, db, time.Now().UTC())

	require.NoError(t, repo.RecordOutcomes(ctx, []uuid.UUID{id}, nil))
	first, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, first.ProcessedAt)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, repo.RecordOutcomes(ctx, []uuid.UUID{id}, nil))
	second, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, second.ProcessedAt)

	// The first completion timestamp wins.
	assert.True(t, second.ProcessedAt.Equal(*first.ProcessedAt))
}

func TestSQLiteFailureAfterProcessedIsIgnored(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	id := insertMessage(t, repo, db, time.Now().UTC())
	require.NoError(t, repo.RecordOutcomes(ctx, []uuid.UUID{id}, nil))

	require.NoError(t, repo.RecordOutcomes(ctx, nil, []domain.OutboxFailure{{ID: id, Reason: "late failure"}}))

	msg, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, msg.RetryCount)
	assert.Nil(t, msg.LastError)
	assert.NotNil(t, msg.ProcessedAt)
}

func TestSQLiteExhaustedRowsStayVisibleButUnclaimed(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	id := insertMessage(t, repo, db, time.Now().UTC())

	for i := 0; i < 3; i++ {
		batch, err := repo.ClaimBatch(ctx, 10, 3)
		require.NoError(t, err)
		require.Len(t, batch, 1)
		require.NoError(t, repo.RecordOutcomes(ctx, nil, []domain.OutboxFailure{{ID: id, Reason: "subscriber failed"}}))
	}

	batch, err := repo.ClaimBatch(ctx, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, batch)

	// Exhausted rows are never hidden from the operational count.
	count, err := repo.CountUnprocessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	msg, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, msg.RetryCount)
	require.NotNil(t, msg.LastError)
	assert.Equal(t, "subscriber failed", *msg.LastError)
	assert.Nil(t, msg.ProcessedAt)
}

func TestSQLiteLastErrorTruncated(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	id := insertMessage(t, repo, db, time.Now().UTC())

	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'x'
	}
	require.NoError(t, repo.RecordOutcomes(ctx, nil, []domain.OutboxFailure{{ID: id, Reason: string(long)}}))

	msg, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, msg.LastError)
	assert.Len(t, *msg.LastError, 2000)
}

func TestSQLiteCountUnprocessed(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	processed := insertMessage(t, repo, db, time.Now().UTC())
	insertMessage(t, repo, db, time.Now().UTC())
	insertMessage(t, repo, db, time.Now().UTC())

	require.NoError(t, repo.RecordOutcomes(ctx, []uuid.UUID{processed}, nil))

	count, err := repo.CountUnprocessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
