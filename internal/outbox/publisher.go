package outbox

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"sledzspecke/internal/domain/event"
)

// Publisher delivers a materialized event. The dispatcher only sees success
// or failure, so a broker-backed implementation can replace in-process
// fan-out without touching the outbox contract.
type Publisher interface {
	Publish(ctx context.Context, ev event.Event) error
}

// Subscriber consumes one event. Idempotence is the subscriber's burden:
// delivery is at-least-once.
type Subscriber func(ctx context.Context, ev event.Event) error

// InProcessPublisher fans events out to subscribers registered per event
// type, aggregating their failures into a single error.
type InProcessPublisher struct {
	mu          sync.RWMutex
	subscribers map[string][]Subscriber
	logger      *zap.Logger
}

func NewInProcessPublisher(l *zap.Logger) *InProcessPublisher {
	return &InProcessPublisher{
		subscribers: make(map[string][]Subscriber),
		logger:      l,
	}
}

func (p *InProcessPublisher) Subscribe(eventType string, sub Subscriber) error {
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		return ErrEventTypeRequired
	}
	if sub == nil {
		return ErrSubscriberRequired
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers[normalized] = append(p.subscribers[normalized], sub)
	return nil
}

// Publish invokes every subscriber for the event's type. A subscriber panic
// is converted into an error so one consumer cannot take down the
// dispatcher, and remaining subscribers still run.
func (p *InProcessPublisher) Publish(ctx context.Context, ev event.Event) error {
	p.mu.RLock()
	subs := p.subscribers[ev.EventType()]
	p.mu.RUnlock()

	if len(subs) == 0 {
		p.logger.Debug("No subscribers for event type", zap.String("event_type", ev.EventType()))
		return nil
	}

	var result *multierror.Error
	for i, sub := range subs {
		if err := p.deliver(ctx, sub, ev); err != nil {
			p.logger.Warn("Subscriber failed",
				zap.String("event_type", ev.EventType()),
				zap.Int("subscriber", i),
				zap.Error(err))
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (p *InProcessPublisher) deliver(ctx context.Context, sub Subscriber, ev event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panicked: %v", r)
		}
	}()
	return sub(ctx, ev)
}
