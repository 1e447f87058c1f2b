package shift_repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sledzspecke/internal/domain"
)

type ShiftRepository interface {
	CreateTx(ctx context.Context, q domain.Querier, shift *domain.MedicalShift) error
	GetByIDTx(ctx context.Context, q domain.Querier, id uuid.UUID) (*domain.MedicalShift, error)
	ApproveTx(ctx context.Context, q domain.Querier, id uuid.UUID, approvedBy string, approvedAt time.Time) error
}
