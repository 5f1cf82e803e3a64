package rabbitmq

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/ec-checkout/internal/logging"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageHandler has the same shape as the Kafka handler so projectors plug into either bus.
type MessageHandler func(ctx context.Context, key, value []byte) error

type Consumer struct {
	ch           *amqp.Channel
	queue        string
	prefetch     int
	callTimeout  time.Duration
	requeueOnErr bool
	log          *slog.Logger
}

func NewConsumer(ch *amqp.Channel, queue string) *Consumer {
	return &Consumer{
		ch:          ch,
		queue:       queue,
		prefetch:    50,
		callTimeout: 10 * time.Second,
		log:         logging.New("rabbitmq-consumer").With("queue", queue),
	}
}

// Consume blocks until ctx is cancelled or the delivery channel closes.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	if err := c.ch.Qos(c.prefetch, 0, false); err != nil {
		return err
	}
	msgs, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
			err := handler(callCtx, []byte(d.MessageId), d.Body)
			cancel()

			if err != nil {
				c.log.Error("handler error", "err", err, "requeue", c.requeueOnErr)
				_ = d.Nack(false, c.requeueOnErr)
				continue
			}
			_ = d.Ack(false)
		}
	}
}
