package outbox

import (
	"fmt"
	"strings"
	"sync"

	"sledzspecke/internal/domain/event"
)

// DecoderFunc materializes an event from its serialized outbox payload.
type DecoderFunc func(payload []byte) (event.Event, error)

// EventRegistry maps event type tags to decoders. It is built once at
// startup and handed to the dispatcher; registration after that point is
// allowed but unnecessary.
type EventRegistry struct {
	mu       sync.RWMutex
	decoders map[string]DecoderFunc
}

func NewEventRegistry() *EventRegistry {
	return &EventRegistry{decoders: make(map[string]DecoderFunc)}
}

func (r *EventRegistry) Register(eventType string, decoder DecoderFunc) error {
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		return ErrEventTypeRequired
	}
	if decoder == nil {
		return ErrDecoderRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.decoders[normalized]; exists {
		return fmt.Errorf("%w: %s", ErrDecoderAlreadyRegistered, normalized)
	}
	r.decoders[normalized] = decoder
	return nil
}

// MustRegister is Register for startup wiring, where a duplicate or empty
// registration is a programming error.
func (r *EventRegistry) MustRegister(eventType string, decoder DecoderFunc) {
	if err := r.Register(eventType, decoder); err != nil {
		panic(err)
	}
}

// Resolve returns the decoder for the given type tag.
func (r *EventRegistry) Resolve(eventType string) (DecoderFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	decoder, ok := r.decoders[strings.TrimSpace(eventType)]
	return decoder, ok
}
