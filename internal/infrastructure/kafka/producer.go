package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/segmentio/kafka-go"
)

// Producer writes committed events to one topic. The aggregate id is the
// message key, so one aggregate's events keep their order in a partition.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}}
}

func (p *Producer) Publish(ctx context.Context, key string, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{Key: []byte(key), Value: value, Time: time.Now()}
	if e, ok := event.(store.Event); ok {
		msg.Headers = eventHeaders(e)
		msg.Time = e.Timestamp
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// eventHeaders let consumers route without decoding the body.
func eventHeaders(e store.Event) []kafka.Header {
	return []kafka.Header{
		{Key: "event_type", Value: []byte(e.EventType)},
		{Key: "aggregate_type", Value: []byte(e.AggregateType)},
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
