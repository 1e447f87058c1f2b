package domain

import (
	"time"

	"github.com/google/uuid"
)

type Procedure struct {
	ID           uuid.UUID
	InternshipID uuid.UUID
	Code         string
	PerformedAt  time.Time
	CreatedAt    time.Time
}
