// Package kafka adapts the outbox Publisher seam to a message broker.
// Swapping it in for the in-process publisher changes where events go, not
// how the dispatcher works.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"sledzspecke/internal/domain/event"
)

type envelope struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

type KafkaPublisher struct {
	writer *kafkago.Writer
	topic  string
	logger *zap.Logger
}

func NewPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	writer := &kafkago.Writer{
		Addr:     kafkago.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafkago.LeastBytes{},
	}
	return &KafkaPublisher{writer: writer, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", ev.EventType(), err)
	}
	body, err := json.Marshal(envelope{EventType: ev.EventType(), Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to encode event envelope: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(ev.EventType()),
		Value: body,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to produce event to Kafka",
			zap.String("topic", p.topic),
			zap.String("event_type", ev.EventType()),
			zap.Error(err))
		return fmt.Errorf("failed to produce event: %w", err)
	}

	p.logger.Debug("Produced event to topic",
		zap.String("topic", p.topic),
		zap.String("event_type", ev.EventType()))
	return nil
}

func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	return nil
}
