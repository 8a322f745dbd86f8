package kafka

import (
	"context"
	"fmt"
	"strconv"
	"time"

	skafka "github.com/segmentio/kafka-go"

	"khata/internal/events"
)

// Writer is the subset of kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// Publisher writes ledger events to one topic, keyed by buyer id so every
// buyer's events land on the same partition in order.
type Publisher struct {
	writer Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &skafka.Writer{
			Addr:         skafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &skafka.Hash{},
			RequiredAcks: skafka.RequireAll,
			WriteTimeout: 5 * time.Second,
		},
	}
}

func NewPublisherWithWriter(w Writer) *Publisher {
	return &Publisher{writer: w}
}

func (p *Publisher) Publish(ctx context.Context, e events.LedgerEvent) error {
	body, err := e.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := skafka.Message{
		Key:   []byte(strconv.FormatInt(e.BuyerID, 10)),
		Value: body,
		Time:  e.OccurredAt,
		Headers: []skafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(e.EventID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
