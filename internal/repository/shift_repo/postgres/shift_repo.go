package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sledzspecke/internal/domain"
	"sledzspecke/internal/repository/shift_repo"
)

type pgShiftRepository struct {
	logger *zap.Logger
}

func NewShiftRepository(l *zap.Logger) shift_repo.ShiftRepository {
	return &pgShiftRepository{logger: l}
}

func (r *pgShiftRepository) CreateTx(ctx context.Context, q domain.Querier, shift *domain.MedicalShift) error {
	query := `
		INSERT INTO medical_shifts (id, internship_id, status, approved_by, approved_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := q.ExecContext(ctx, query,
		shift.ID, shift.InternshipID, shift.Status, shift.ApprovedBy, shift.ApprovedAt,
		shift.CreatedAt, shift.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create medical shift: %w", err)
	}
	return nil
}

func (r *pgShiftRepository) GetByIDTx(ctx context.Context, q domain.Querier, id uuid.UUID) (*domain.MedicalShift, error) {
	shift := &domain.MedicalShift{}
	var approvedBy sql.NullString
	var approvedAt sql.NullTime

	query := `
		SELECT id, internship_id, status, approved_by, approved_at, created_at, updated_at
		FROM medical_shifts WHERE id = $1
	`
	err := q.QueryRowContext(ctx, query, id).Scan(
		&shift.ID, &shift.InternshipID, &shift.Status, &approvedBy, &approvedAt,
		&shift.CreatedAt, &shift.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrShiftNotFound
		}
		return nil, fmt.Errorf("failed to get medical shift %s: %w", id, err)
	}

	if approvedBy.Valid {
		shift.ApprovedBy = &approvedBy.String
	}
	if approvedAt.Valid {
		shift.ApprovedAt = &approvedAt.Time
	}
	return shift, nil
}

func (r *pgShiftRepository) ApproveTx(ctx context.Context, q domain.Querier, id uuid.UUID, approvedBy string, approvedAt time.Time) error {
	query := `
		UPDATE medical_shifts
		SET status = $1, approved_by = $2, approved_at = $3, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	res, err := q.ExecContext(ctx, query,
		domain.ShiftStatusApproved, approvedBy, approvedAt, id, domain.ShiftStatusPending)
	if err != nil {
		return fmt.Errorf("failed to approve medical shift %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check approve result: %w", err)
	}
	if affected == 0 {
		return domain.ErrShiftAlreadyApproved
	}
	return nil
}
