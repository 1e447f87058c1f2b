package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sledzspecke/internal/domain"
	"sledzspecke/internal/domain/event"
)

// Repository is the slice of the outbox store the dispatcher needs.
type Repository interface {
	ClaimBatch(ctx context.Context, limit, maxRetries int) ([]domain.OutboxMessage, error)
	RecordOutcomes(ctx context.Context, processed []uuid.UUID, failed []domain.OutboxFailure) error
}

// Config holds the dispatcher's externally supplied tuning knobs.
type Config struct {
	PollInterval   time.Duration
	BatchSize      int
	MaxRetries     int
	PublishTimeout time.Duration
}

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 50
	defaultMaxRetries     = 3
	defaultPublishTimeout = 10 * time.Second
)

func (c *Config) normalize() {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = defaultPublishTimeout
	}
}

// CycleResult captures one dispatch cycle's outcome counts.
type CycleResult struct {
	Claimed   int
	Published int
	Failed    int
}

// Dispatcher is the background loop that claims pending outbox messages,
// resolves and publishes them, and records per-message outcomes. A failing
// message only costs itself a retry attempt; it never aborts the batch and
// never crashes the host process.
type Dispatcher struct {
	repo      Repository
	registry  *EventRegistry
	publisher Publisher
	logger    *zap.Logger
	cfg       Config

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewDispatcher(repo Repository, registry *EventRegistry, publisher Publisher, cfg Config, l *zap.Logger) *Dispatcher {
	cfg.normalize()
	return &Dispatcher{
		repo:      repo,
		registry:  registry,
		publisher: publisher,
		logger:    l,
		cfg:       cfg,
		stop:      make(chan struct{}),
	}
}

// Start launches the polling loop. Stop stops the loop gracefully: no new
// batch is claimed, but a cycle already running finishes its publish
// attempts and records its outcomes. Cancelling ctx aborts harder, since
// in-flight publishes inherit it.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		d.logger.Info("Outbox dispatcher started",
			zap.Duration("poll_interval", d.cfg.PollInterval),
			zap.Int("batch_size", d.cfg.BatchSize),
			zap.Int("max_retries", d.cfg.MaxRetries))

		ticker := time.NewTicker(d.cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-d.stop:
				d.logger.Info("Outbox dispatcher stopped")
				return
			case <-ctx.Done():
				d.logger.Info("Outbox dispatcher context cancelled")
				return
			case <-ticker.C:
				d.RunCycle(ctx)
			}
		}
	}()
}

// Stop signals the loop to stop claiming new batches.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stop)
	})
}

// Shutdown stops the dispatcher and waits for the in-flight cycle to drain,
// bounded by ctx.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.Stop()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("outbox dispatcher shutdown: %w", ctx.Err())
	}
}

// RunCycle executes one claim/dispatch/record cycle. A failed claim is a
// skipped cycle, not a fatal condition.
func (d *Dispatcher) RunCycle(ctx context.Context) CycleResult {
	var result CycleResult

	batch, err := d.repo.ClaimBatch(ctx, d.cfg.BatchSize, d.cfg.MaxRetries)
	if err != nil {
		d.logger.Error("Failed to claim outbox batch, skipping cycle", zap.Error(err))
		return result
	}
	if len(batch) == 0 {
		return result
	}
	result.Claimed = len(batch)

	d.logger.Debug("Claimed outbox batch", zap.Int("count", len(batch)))

	processed := make([]uuid.UUID, 0, len(batch))
	var failed []domain.OutboxFailure

	for i := range batch {
		msg := &batch[i]
		if err := d.dispatch(ctx, msg); err != nil {
			d.logger.Warn("Outbox message dispatch failed",
				zap.String("message_id", msg.ID.String()),
				zap.String("event_type", msg.EventType),
				zap.Int("retry_count", msg.RetryCount),
				zap.Error(err))
			failed = append(failed, domain.OutboxFailure{ID: msg.ID, Reason: err.Error()})
			continue
		}
		processed = append(processed, msg.ID)
	}
	result.Published = len(processed)
	result.Failed = len(failed)

	if err := d.repo.RecordOutcomes(ctx, processed, failed); err != nil {
		// Outcomes are re-derived on a later cycle: the rows stay claimable
		// and marking processed is idempotent, so at worst subscribers see a
		// duplicate delivery.
		d.logger.Error("Failed to record outbox outcomes", zap.Error(err))
	}

	d.logger.Info("Outbox cycle complete",
		zap.Int("claimed", result.Claimed),
		zap.Int("published", result.Published),
		zap.Int("failed", result.Failed))
	return result
}

// dispatch resolves the message type, decodes the payload and publishes the
// event. An unknown type or malformed payload consumes a retry attempt like
// any other failure, so exhausted messages surface to operators instead of
// being skipped forever.
func (d *Dispatcher) dispatch(ctx context.Context, msg *domain.OutboxMessage) error {
	decoder, ok := d.registry.Resolve(msg.EventType)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, msg.EventType)
	}

	ev, err := decoder(msg.Payload)
	if err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}

	return d.publish(ctx, ev)
}

// publish bounds the publisher call with the configured timeout. The call
// runs in its own goroutine so a publisher that ignores its context cannot
// hang the dispatch loop; on timeout the message is treated as failed.
func (d *Dispatcher) publish(ctx context.Context, ev event.Event) error {
	pubCtx, cancel := context.WithTimeout(ctx, d.cfg.PublishTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("publisher panicked: %v", r)
			}
		}()
		done <- d.publisher.Publish(pubCtx, ev)
	}()

	select {
	case err := <-done:
		return err
	case <-pubCtx.Done():
		return fmt.Errorf("publish timed out after %s: %w", d.cfg.PublishTimeout, pubCtx.Err())
	}
}
