// Package events holds the in-process subscribers delivered to by the outbox
// dispatcher. They are collaborators of the outbox, not part of it: delivery
// is at-least-once, so each handler must tolerate duplicates.
package events

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"sledzspecke/internal/domain/event"
	"sledzspecke/internal/outbox"
)

// NotificationHandler reacts to approved shifts, standing in for the
// confirmation-message side effects of the full application.
type NotificationHandler struct {
	logger *zap.Logger
}

func NewNotificationHandler(l *zap.Logger) *NotificationHandler {
	return &NotificationHandler{logger: l.With(zap.String("component", "NotificationHandler"))}
}

func (h *NotificationHandler) HandleMedicalShiftApproved(ctx context.Context, ev event.Event) error {
	approved, ok := ev.(event.MedicalShiftApprovedEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T for %s", ev, event.TypeMedicalShiftApproved)
	}

	h.logger.Info("Queueing shift approval confirmation",
		zap.String("shift_id", approved.ShiftID.String()),
		zap.String("approved_by", approved.ApprovedBy),
		zap.Time("approved_on", approved.ApprovedOn))
	return nil
}

// StatisticsHandler keeps training-progress counters in step with newly
// registered procedures.
type StatisticsHandler struct {
	logger *zap.Logger
}

func NewStatisticsHandler(l *zap.Logger) *StatisticsHandler {
	return &StatisticsHandler{logger: l.With(zap.String("component", "StatisticsHandler"))}
}

func (h *StatisticsHandler) HandleProcedureCreated(ctx context.Context, ev event.Event) error {
	created, ok := ev.(event.ProcedureCreatedEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T for %s", ev, event.TypeProcedureCreated)
	}

	h.logger.Info("Updating procedure statistics",
		zap.String("procedure_id", created.ProcedureID.String()),
		zap.String("internship_id", created.InternshipID.String()),
		zap.String("code", created.Code))
	return nil
}

// Register wires the default handlers onto the in-process publisher.
func Register(p *outbox.InProcessPublisher, logger *zap.Logger) error {
	notifications := NewNotificationHandler(logger)
	if err := p.Subscribe(event.TypeMedicalShiftApproved, notifications.HandleMedicalShiftApproved); err != nil {
		return err
	}

	statistics := NewStatisticsHandler(logger)
	if err := p.Subscribe(event.TypeProcedureCreated, statistics.HandleProcedureCreated); err != nil {
		return err
	}
	return nil
}
