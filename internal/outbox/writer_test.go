package outbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sledzspecke/internal/domain"
	"sledzspecke/internal/outbox"
	"sledzspecke/internal/repository/outbox_repo/memory"
)

func TestWriterAppend(t *testing.T) {
	repo := memory.NewOutboxRepository()
	writer := outbox.NewWriter(repo, zap.NewNop())

	before := time.Now().UTC()
	id, err := writer.Append(context.Background(), nil, "MedicalShiftApproved", []byte(`{"shift_id":"x"}`), domain.Metadata{
		"correlation_id": "abc",
		"actor":          "dr.nowak",
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	msg, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "MedicalShiftApproved", msg.EventType)
	assert.Equal(t, []byte(`{"shift_id":"x"}`), msg.Payload)
	assert.Equal(t, "dr.nowak", msg.Metadata["actor"])
	assert.Equal(t, 0, msg.RetryCount)
	assert.Nil(t, msg.ProcessedAt)
	assert.Nil(t, msg.LastError)
	assert.False(t, msg.OccurredAt.Before(before))
}

func TestWriterAppendValidation(t *testing.T) {
	repo := memory.NewOutboxRepository()
	writer := outbox.NewWriter(repo, zap.NewNop())

	_, err := writer.Append(context.Background(), nil, "   ", []byte(`{}`), nil)
	assert.ErrorIs(t, err, outbox.ErrEventTypeRequired)

	_, err = writer.Append(context.Background(), nil, "MedicalShiftApproved", nil, nil)
	assert.ErrorIs(t, err, outbox.ErrPayloadRequired)

	count, err := repo.CountUnprocessed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestWriterAssignsUniqueIDs(t *testing.T) {
	repo := memory.NewOutboxRepository()
	writer := outbox.NewWriter(repo, zap.NewNop())

	seen := make(map[uuid.UUID]bool)
	for i := 0; i < 20; i++ {
		id, err := writer.Append(context.Background(), nil, "ProcedureCreated", []byte(`{}`), nil)
		require.NoError(t, err)
		require.False(t, seen[id])
		seen[id] = true
	}
}
