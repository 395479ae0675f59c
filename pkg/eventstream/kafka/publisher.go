// Package kafka publishes entry events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/threads/pkg/eventstream"
)

// Writer is the subset of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures a Kafka publisher.
type Config struct {
	Brokers []string
	Topic   string

	// WriteTimeout bounds each publish. Defaults to 10s.
	WriteTimeout time.Duration
}

// Publisher writes events keyed by stream so one stream's events stay ordered
// within a partition.
type Publisher struct {
	writer Writer
}

// NewPublisher creates a publisher backed by a kafka-go Writer.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}

	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return NewPublisherWithWriter(&kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		WriteTimeout:           timeout,
		AllowAutoTopicCreation: true,
	}), nil
}

// NewPublisherWithWriter wraps an existing writer.
func NewPublisherWithWriter(w Writer) *Publisher {
	return &Publisher{writer: w}
}

// PublishEntry writes one event.
func (p *Publisher) PublishEntry(ctx context.Context, event *eventstream.EntryAppendedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(event.Stream.String()),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
		Time: event.EmittedAt,
	})
	if err != nil {
		return fmt.Errorf("publish event %s: %w", event.EventID, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ eventstream.Publisher = (*Publisher)(nil)
