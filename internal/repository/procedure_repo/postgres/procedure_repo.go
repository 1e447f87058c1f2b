package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"sledzspecke/internal/domain"
	"sledzspecke/internal/repository/procedure_repo"
)

type pgProcedureRepository struct {
	logger *zap.Logger
}

func NewProcedureRepository(l *zap.Logger) procedure_repo.ProcedureRepository {
	return &pgProcedureRepository{logger: l}
}

func (r *pgProcedureRepository) CreateTx(ctx context.Context, q domain.Querier, procedure *domain.Procedure) error {
	query := `
		INSERT INTO procedures (id, internship_id, code, performed_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := q.ExecContext(ctx, query,
		procedure.ID, procedure.InternshipID, procedure.Code, procedure.PerformedAt, procedure.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create procedure: %w", err)
	}
	return nil
}
