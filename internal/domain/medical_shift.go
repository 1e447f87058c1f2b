package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type ShiftStatus string

const (
	ShiftStatusPending  ShiftStatus = "PENDING"
	ShiftStatusApproved ShiftStatus = "APPROVED"
)

var (
	ErrShiftNotFound        = errors.New("medical shift not found")
	ErrShiftAlreadyApproved = errors.New("medical shift already approved")
)

type MedicalShift struct {
	ID           uuid.UUID
	InternshipID uuid.UUID
	Status       ShiftStatus
	ApprovedBy   *string
	ApprovedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
