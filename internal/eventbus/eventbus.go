/*
 * @module internal/eventbus
 * @description Best-effort Kafka mirror of ingested events, for audit and
 *   replay independent of the canonical Redis events queue (C1). Adapted
 *   and simplified from the source's generic multi-topic KafkaConnector
 *   down to a single writer for a single topic.
 * @architecture Messaging - secondary, non-authoritative sink
 * @dependencies github.com/segmentio/kafka-go
 */
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"feedranker/internal/models"

	kafka "github.com/segmentio/kafka-go"
)

const defaultTopic = "feedranker.events"

// Mirror publishes interaction events to Kafka for downstream audit/replay
// consumers. It is never on the critical path: publish failures are logged
// and swallowed, since the Redis queue remains the system of record.
type Mirror struct {
	writer *kafka.Writer
}

func NewMirror(brokers []string) *Mirror {
	return &Mirror{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  defaultTopic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish mirrors one event, keyed by session id so a topic-level consumer
// can preserve per-session ordering.
func (m *Mirror) Publish(ctx context.Context, evt models.Event) {
	blob, err := json.Marshal(evt)
	if err != nil {
		slog.Error("eventbus: marshaling event failed", "error", err)
		return
	}

	msg := kafka.Message{Key: []byte(evt.SessionID), Value: blob}
	if err := m.writer.WriteMessages(ctx, msg); err != nil {
		slog.Warn("eventbus: mirror publish failed, continuing without it", "error", err)
	}
}

func (m *Mirror) Close() error {
	if err := m.writer.Close(); err != nil {
		return fmt.Errorf("closing eventbus writer: %w", err)
	}
	return nil
}
