package outbox

import "errors"

var (
	ErrEventTypeRequired        = errors.New("event type is required")
	ErrPayloadRequired          = errors.New("payload is required")
	ErrDecoderRequired          = errors.New("event decoder is required")
	ErrDecoderAlreadyRegistered = errors.New("event decoder already registered")
	ErrUnknownEventType         = errors.New("no decoder registered for event type")
	ErrSubscriberRequired       = errors.New("subscriber is required")
)
