package outbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sledzspecke/internal/domain/event"
	"sledzspecke/internal/outbox"
)

func shiftApproved() event.MedicalShiftApprovedEvent {
	return event.MedicalShiftApprovedEvent{
		ShiftID:      uuid.New(),
		InternshipID: uuid.New(),
		ApprovedOn:   time.Now().UTC(),
		ApprovedBy:   "dr.nowak",
	}
}

func TestInProcessPublisherFansOut(t *testing.T) {
	publisher := outbox.NewInProcessPublisher(zap.NewNop())

	first, second := 0, 0
	require.NoError(t, publisher.Subscribe(event.TypeMedicalShiftApproved, func(context.Context, event.Event) error {
		first++
		return nil
	}))
	require.NoError(t, publisher.Subscribe(event.TypeMedicalShiftApproved, func(context.Context, event.Event) error {
		second++
		return nil
	}))

	require.NoError(t, publisher.Publish(context.Background(), shiftApproved()))
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

func TestInProcessPublisherAggregatesFailures(t *testing.T) {
	publisher := outbox.NewInProcessPublisher(zap.NewNop())

	delivered := 0
	require.NoError(t, publisher.Subscribe(event.TypeMedicalShiftApproved, func(context.Context, event.Event) error {
		return errors.New("mail relay down")
	}))
	require.NoError(t, publisher.Subscribe(event.TypeMedicalShiftApproved, func(context.Context, event.Event) error {
		delivered++
		return nil
	}))
	require.NoError(t, publisher.Subscribe(event.TypeMedicalShiftApproved, func(context.Context, event.Event) error {
		return errors.New("projection store timeout")
	}))

	err := publisher.Publish(context.Background(), shiftApproved())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mail relay down")
	assert.Contains(t, err.Error(), "projection store timeout")

	// The failing subscribers do not stop delivery to the healthy one.
	assert.Equal(t, 1, delivered)
}

func TestInProcessPublisherRecoversSubscriberPanic(t *testing.T) {
	publisher := outbox.NewInProcessPublisher(zap.NewNop())

	require.NoError(t, publisher.Subscribe(event.TypeMedicalShiftApproved, func(context.Context, event.Event) error {
		panic("nil map write")
	}))

	var err error
	require.NotPanics(t, func() {
		err = publisher.Publish(context.Background(), shiftApproved())
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestInProcessPublisherNoSubscribersIsSuccess(t *testing.T) {
	publisher := outbox.NewInProcessPublisher(zap.NewNop())
	assert.NoError(t, publisher.Publish(context.Background(), shiftApproved()))
}

func TestInProcessPublisherSubscribeValidation(t *testing.T) {
	publisher := outbox.NewInProcessPublisher(zap.NewNop())

	err := publisher.Subscribe("  ", func(context.Context, event.Event) error { return nil })
	assert.ErrorIs(t, err, outbox.ErrEventTypeRequired)

	err = publisher.Subscribe(event.TypeMedicalShiftApproved, nil)
	assert.ErrorIs(t, err, outbox.ErrSubscriberRequired)
}
