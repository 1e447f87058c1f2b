// Package tracker holds the business operations that drive the outbox: each
// state change and its event are committed in one transaction, so neither
// can exist without the other.
package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sledzspecke/internal/domain"
	"sledzspecke/internal/domain/event"
	"sledzspecke/internal/outbox"
	"sledzspecke/internal/repository/procedure_repo"
	"sledzspecke/internal/repository/shift_repo"
)

type TrackerService interface {
	CreateMedicalShift(ctx context.Context, internshipID uuid.UUID) (*domain.MedicalShift, error)
	ApproveMedicalShift(ctx context.Context, shiftID uuid.UUID, approvedBy string) (*domain.MedicalShift, error)
	RegisterProcedure(ctx context.Context, internshipID uuid.UUID, code string, performedAt time.Time) (*domain.Procedure, error)
}

type trackerService struct {
	db            *sql.DB
	shiftRepo     shift_repo.ShiftRepository
	procedureRepo procedure_repo.ProcedureRepository
	writer        *outbox.Writer
	logger        *zap.Logger
}

func NewTrackerService(
	db *sql.DB,
	shiftRepo shift_repo.ShiftRepository,
	procedureRepo procedure_repo.ProcedureRepository,
	writer *outbox.Writer,
	logger *zap.Logger,
) TrackerService {
	return &trackerService{
		db:            db,
		shiftRepo:     shiftRepo,
		procedureRepo: procedureRepo,
		writer:        writer,
		logger:        logger,
	}
}

func (s *trackerService) CreateMedicalShift(ctx context.Context, internshipID uuid.UUID) (*domain.MedicalShift, error) {
	now := time.Now().UTC()
	shift := &domain.MedicalShift{
		ID:           uuid.New(),
		InternshipID: internshipID,
		Status:       domain.ShiftStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.shiftRepo.CreateTx(ctx, s.db, shift); err != nil {
		s.logger.Error("Failed to create medical shift", zap.String("internship_id", internshipID.String()), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Medical shift created", zap.String("shift_id", shift.ID.String()))
	return shift, nil
}

func (s *trackerService) ApproveMedicalShift(ctx context.Context, shiftID uuid.UUID, approvedBy string) (*domain.MedicalShift, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	shift, err := s.approveMedicalShiftTx(ctx, tx, shiftID, approvedBy)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back shift approval", zap.String("shift_id", shiftID.String()), zap.Error(rbErr))
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Medical shift approved",
		zap.String("shift_id", shiftID.String()),
		zap.String("approved_by", approvedBy))
	return shift, nil
}

func (s *trackerService) approveMedicalShiftTx(ctx context.Context, tx *sql.Tx, shiftID uuid.UUID, approvedBy string) (*domain.MedicalShift, error) {
	shift, err := s.shiftRepo.GetByIDTx(ctx, tx, shiftID)
	if err != nil {
		return nil, err
	}
	if shift.Status == domain.ShiftStatusApproved {
		return nil, domain.ErrShiftAlreadyApproved
	}

	approvedAt := time.Now().UTC()
	if err := s.shiftRepo.ApproveTx(ctx, tx, shiftID, approvedBy, approvedAt); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(event.MedicalShiftApprovedEvent{
		ShiftID:      shift.ID,
		InternshipID: shift.InternshipID,
		ApprovedOn:   approvedAt,
		ApprovedBy:   approvedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode shift approved event: %w", err)
	}

	metadata := domain.Metadata{
		"correlation_id": uuid.NewString(),
		"causation_id":   shift.ID.String(),
		"actor":          approvedBy,
	}
	if _, err := s.writer.Append(ctx, tx, event.TypeMedicalShiftApproved, payload, metadata); err != nil {
		return nil, err
	}

	shift.Status = domain.ShiftStatusApproved
	shift.ApprovedBy = &approvedBy
	shift.ApprovedAt = &approvedAt
	shift.UpdatedAt = approvedAt
	return shift, nil
}

func (s *trackerService) RegisterProcedure(ctx context.Context, internshipID uuid.UUID, code string, performedAt time.Time) (*domain.Procedure, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	procedure, err := s.registerProcedureTx(ctx, tx, internshipID, code, performedAt)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back procedure registration", zap.String("internship_id", internshipID.String()), zap.Error(rbErr))
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Procedure registered",
		zap.String("procedure_id", procedure.ID.String()),
		zap.String("code", code))
	return procedure, nil
}

func (s *trackerService) registerProcedureTx(ctx context.Context, tx *sql.Tx, internshipID uuid.UUID, code string, performedAt time.Time) (*domain.Procedure, error) {
	procedure := &domain.Procedure{
		ID:           uuid.New(),
		InternshipID: internshipID,
		Code:         code,
		PerformedAt:  performedAt,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.procedureRepo.CreateTx(ctx, tx, procedure); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(event.ProcedureCreatedEvent{
		ProcedureID:  procedure.ID,
		InternshipID: internshipID,
		Code:         code,
		OccurredOn:   performedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode procedure created event: %w", err)
	}

	metadata := domain.Metadata{
		"correlation_id": uuid.NewString(),
		"causation_id":   procedure.ID.String(),
	}
	if _, err := s.writer.Append(ctx, tx, event.TypeProcedureCreated, payload, metadata); err != nil {
		return nil, err
	}
	return procedure, nil
}
