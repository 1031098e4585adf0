// Package notify fans stored alerts out to external sinks.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/lazypower/trendcast/internal/forecast"
)

// Config describes the Kafka topic alerts are published to.
type Config struct {
	Brokers []string
	Topic   string
	Acks    int
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes each alert as one JSON message keyed by meme id,
// so all alerts for a meme land on the same partition.
type KafkaNotifier struct {
	topic   string
	writer  messageWriter
	timeout time.Duration
}

// NewKafka creates a notifier writing to cfg.Topic.
func NewKafka(cfg Config) (*KafkaNotifier, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka notifier: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka notifier: no topic configured")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		RequiredAcks:           kafka.RequiredAcks(cfg.Acks),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: false,
		MaxAttempts:            1,
	}
	return newKafka(cfg.Topic, w), nil
}

func newKafka(topic string, w messageWriter) *KafkaNotifier {
	return &KafkaNotifier{topic: topic, writer: w, timeout: 10 * time.Second}
}

// Notify publishes a synchronously. It does not retry.
func (n *KafkaNotifier) Notify(ctx context.Context, a forecast.Alert) error {
	value, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert %s: %w", a.MemeID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(a.MemeID),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(a.Kind)},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish alert %s to %s: %w", a.MemeID, n.topic, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
