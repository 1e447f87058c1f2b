package tracker_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sledzspecke/internal/app/tracker"
	"sledzspecke/internal/domain"
	"sledzspecke/internal/domain/event"
	"sledzspecke/internal/infrastructure/database"
	"sledzspecke/internal/outbox"
	"sledzspecke/internal/repository/outbox_repo"
	outbox_sqlite "sledzspecke/internal/repository/outbox_repo/sqlite"
	procedure_pg "sledzspecke/internal/repository/procedure_repo/postgres"
	shift_pg "sledzspecke/internal/repository/shift_repo/postgres"
)

type fixture struct {
	db         *sql.DB
	service    tracker.TrackerService
	outboxRepo outbox_repo.OutboxRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, outbox_sqlite.Migrate(db))

	logger := zap.NewNop()
	outboxRepo := outbox_sqlite.NewOutboxRepository(db, logger)
	writer := outbox.NewWriter(outboxRepo, logger)
	service := tracker.NewTrackerService(db,
		shift_pg.NewShiftRepository(logger),
		procedure_pg.NewProcedureRepository(logger),
		writer, logger)

	return &fixture{db: db, service: service, outboxRepo: outboxRepo}
}

func TestCreateMedicalShift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	shift, err := f.service.CreateMedicalShift(ctx, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftStatusPending, shift.Status)
	assert.Nil(t, shift.ApprovedBy)

	// Creation alone publishes nothing.
	count, err := f.outboxRepo.CountUnprocessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestApproveMedicalShiftCommitsRowAndMessageTogether(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	internshipID := uuid.New()
	shift, err := f.service.CreateMedicalShift(ctx, internshipID)
	require.NoError(t, err)

	approved, err := f.service.ApproveMedicalShift(ctx, shift.ID, "dr.kowalska")
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, "dr.kowalska", *approved.ApprovedBy)

	batch, err := f.outboxRepo.ClaimBatch(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	msg := batch[0]
	assert.Equal(t, event.TypeMedicalShiftApproved, msg.EventType)
	assert.Equal(t, "dr.kowalska", msg.Metadata["actor"])
	assert.Equal(t, shift.ID.String(), msg.Metadata["causation_id"])
	assert.NotEmpty(t, msg.Metadata["correlation_id"])

	var payload event.MedicalShiftApprovedEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, shift.ID, payload.ShiftID)
	assert.Equal(t, internshipID, payload.InternshipID)
	assert.Equal(t, "dr.kowalska", payload.ApprovedBy)
}

func TestApproveMedicalShiftAlreadyApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	shift, err := f.service.CreateMedicalShift(ctx, uuid.New())
	require.NoError(t, err)

	_, err = f.service.ApproveMedicalShift(ctx, shift.ID, "dr.kowalska")
	require.NoError(t, err)

	_, err = f.service.ApproveMedicalShift(ctx, shift.ID, "dr.nowak")
	assert.ErrorIs(t, err, domain.ErrShiftAlreadyApproved)

	// The rejected approval must not have enqueued a second event.
	count, err := f.outboxRepo.CountUnprocessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestApproveMedicalShiftNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.ApproveMedicalShift(ctx, uuid.New(), "dr.kowalska")
	assert.ErrorIs(t, err, domain.ErrShiftNotFound)

	count, err := f.outboxRepo.CountUnprocessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRegisterProcedureCommitsRowAndMessageTogether(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	internshipID := uuid.New()
	performedAt := time.Now().UTC().Truncate(time.Second)

	procedure, err := f.service.RegisterProcedure(ctx, internshipID, "A.57", performedAt)
	require.NoError(t, err)
	assert.Equal(t, "A.57", procedure.Code)

	batch, err := f.outboxRepo.ClaimBatch(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, event.TypeProcedureCreated, batch[0].EventType)
	assert.Equal(t, procedure.ID.String(), batch[0].Metadata["causation_id"])

	var payload event.ProcedureCreatedEvent
	require.NoError(t, json.Unmarshal(batch[0].Payload, &payload))
	assert.Equal(t, procedure.ID, payload.ProcedureID)
	assert.Equal(t, "A.57", payload.Code)
}

func TestClaimedMessageSurvivesDispatcherRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	shift, err := f.service.CreateMedicalShift(ctx, uuid.New())
	require.NoError(t, err)
	_, err = f.service.ApproveMedicalShift(ctx, shift.ID, "dr.kowalska")
	require.NoError(t, err)

	batch, err := f.outboxRepo.ClaimBatch(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	// A process crash loses the in-memory claim markers. A fresh repository
	// over the same database must see the row again.
	restarted := outbox_sqlite.NewOutboxRepository(f.db, zap.NewNop())
	batch, err = restarted.ClaimBatch(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, event.TypeMedicalShiftApproved, batch[0].EventType)
}

func TestApprovalIsDeliveredExactlyOnceThroughDispatcher(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	registry := outbox.NewEventRegistry()
	registry.MustRegister(event.TypeMedicalShiftApproved, event.DecodeMedicalShiftApproved)
	registry.MustRegister(event.TypeProcedureCreated, event.DecodeProcedureCreated)

	publisher := outbox.NewInProcessPublisher(zap.NewNop())
	var received []event.MedicalShiftApprovedEvent
	require.NoError(t, publisher.Subscribe(event.TypeMedicalShiftApproved, func(_ context.Context, ev event.Event) error {
		received = append(received, ev.(event.MedicalShiftApprovedEvent))
		return nil
	}))

	dispatcher := outbox.NewDispatcher(f.outboxRepo, registry, publisher, outbox.Config{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    10,
		MaxRetries:   3,
	}, zap.NewNop())

	shift, err := f.service.CreateMedicalShift(ctx, uuid.New())
	require.NoError(t, err)
	_, err = f.service.ApproveMedicalShift(ctx, shift.ID, "dr.kowalska")
	require.NoError(t, err)

	result := dispatcher.RunCycle(ctx)
	assert.Equal(t, 1, result.Claimed)
	assert.Equal(t, 1, result.Published)
	assert.Equal(t, 0, result.Failed)

	// A second cycle finds nothing: the message was marked processed.
	result = dispatcher.RunCycle(ctx)
	assert.Equal(t, 0, result.Claimed)

	require.Len(t, received, 1)
	assert.Equal(t, shift.ID, received[0].ShiftID)

	count, err := f.outboxRepo.CountUnprocessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
