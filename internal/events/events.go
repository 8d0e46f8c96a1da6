// Package events carries scheduling domain events out of the process. Two
// sinks are provided: KafkaSink writes straight to the broker and is the
// right choice with the in-memory store, while Outbox stages events in
// Postgres and lets Publisher drain them, surviving broker outages.
package events

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/slotbook/slotbook/libs/kafkax"
)

// KafkaSink publishes each event directly to the topic named after its event
// type, keyed by aggregate id so per-appointment ordering is preserved.
type KafkaSink struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewKafkaSink(brokers string, logger *slog.Logger) *KafkaSink {
	return &KafkaSink{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:  kafkax.SplitBrokers(brokers),
			Balancer: &kafka.Hash{},
		}),
		logger: logger,
	}
}

func (s *KafkaSink) Publish(ctx context.Context, eventType, key string, payload []byte) error {
	msg := kafka.Message{
		Topic: eventType,
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(uuid.NewString())},
			{Key: "event_type", Value: []byte(eventType)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	return s.writer.WriteMessages(ctx, msg)
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
