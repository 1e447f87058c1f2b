// Package event defines the domain events carried through the outbox and
// their JSON codecs.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type tags stored in the outbox event_type column. They select the decoder
// on the dispatch side, so they must stay stable once rows exist.
const (
	TypeMedicalShiftApproved = "MedicalShiftApproved"
	TypeProcedureCreated     = "ProcedureCreated"
)

// Event is a materialized domain event ready for publishing.
type Event interface {
	EventType() string
}

type MedicalShiftApprovedEvent struct {
	ShiftID      uuid.UUID `json:"shift_id"`
	InternshipID uuid.UUID `json:"internship_id"`
	ApprovedOn   time.Time `json:"approved_on"`
	ApprovedBy   string    `json:"approved_by"`
}

func (MedicalShiftApprovedEvent) EventType() string { return TypeMedicalShiftApproved }

type ProcedureCreatedEvent struct {
	ProcedureID  uuid.UUID `json:"procedure_id"`
	InternshipID uuid.UUID `json:"internship_id"`
	Code         string    `json:"code"`
	OccurredOn   time.Time `json:"occurred_on"`
}

func (ProcedureCreatedEvent) EventType() string { return TypeProcedureCreated }

func DecodeMedicalShiftApproved(payload []byte) (Event, error) {
	var ev MedicalShiftApprovedEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", TypeMedicalShiftApproved, err)
	}
	return ev, nil
}

func DecodeProcedureCreated(payload []byte) (Event, error) {
	var ev ProcedureCreatedEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", TypeProcedureCreated, err)
	}
	return ev, nil
}
