package procedure_repo

import (
	"context"

	"sledzspecke/internal/domain"
)

type ProcedureRepository interface {
	CreateTx(ctx context.Context, q domain.Querier, procedure *domain.Procedure) error
}
