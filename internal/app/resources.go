// Package app opens the storage and messaging backends selected in the
// configuration. The api, projector and notifier binaries share it.
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/ec-checkout/configs"
	"github.com/example/ec-checkout/internal/infrastructure/cache"
	"github.com/example/ec-checkout/internal/infrastructure/kafka"
	"github.com/example/ec-checkout/internal/infrastructure/rabbitmq"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/logging"
	"github.com/example/ec-checkout/internal/readmodel"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	BusInline   = "inline"
	BusKafka    = "kafka"
	BusRabbitMQ = "rabbitmq"
)

// MessageHandler consumes one event from the bus.
type MessageHandler func(ctx context.Context, key, value []byte) error

// Resources lazily opens shared connections and closes them in reverse
// order.
type Resources struct {
	cfg     configs.Config
	log     *slog.Logger
	db      *sql.DB
	mongo   *mongo.Client
	redis   *redis.Client
	amqp    *amqp.Connection
	closers []func() error
}

func NewResources(cfg configs.Config) *Resources {
	return &Resources{cfg: cfg, log: logging.New("resources")}
}

func (r *Resources) onClose(fn func() error) {
	r.closers = append(r.closers, fn)
}

func (r *Resources) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	r.closers = nil
	return errors.Join(errs...)
}

// BusDriver returns the configured bus, defaulting to inline.
func (r *Resources) BusDriver() string {
	if r.cfg.Bus.Driver == "" {
		return BusInline
	}
	return r.cfg.Bus.Driver
}

// ReadsInMemory reports whether read models live only in this process.
func (r *Resources) ReadsInMemory() bool {
	return r.cfg.Store.Reads == "" || r.cfg.Store.Reads == "memory"
}

func (r *Resources) postgres(ctx context.Context) (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}
	pg := r.cfg.Postgres
	db, err := store.ConnectPostgres(ctx, pg.DSN, pg.MaxOpenConns, pg.MaxIdleConns, pg.ConnMaxLifetime)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	r.db = db
	r.onClose(db.Close)
	r.log.Info("connected to postgres")
	return db, nil
}

// EventStore opens the write side. Committed events go to publisher.
func (r *Resources) EventStore(ctx context.Context, publisher store.Publisher) (store.EventStoreInterface, error) {
	switch r.cfg.Store.Events {
	case "postgres":
		db, err := r.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return store.NewPostgresEventStore(db, publisher), nil
	case "dynamodb":
		d := r.cfg.Dynamo
		client, err := store.NewDynamoClient(ctx, d.Region, d.Endpoint)
		if err != nil {
			return nil, err
		}
		r.log.Info("using dynamodb event store", "table", d.EventsTable)
		return store.NewDynamoEventStore(client, d.EventsTable, d.SnapshotsTable, publisher), nil
	default:
		return store.NewEventStore(publisher), nil
	}
}

// ReadStore opens the query side.
func (r *Resources) ReadStore(ctx context.Context) (store.ReadStoreInterface, error) {
	switch r.cfg.Store.Reads {
	case "postgres":
		db, err := r.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return store.NewPostgresReadStore(db, readmodel.Decode), nil
	case "mongo":
		if r.mongo == nil {
			client, err := store.ConnectMongo(ctx, r.cfg.Mongo.URI)
			if err != nil {
				return nil, fmt.Errorf("connect mongo: %w", err)
			}
			r.mongo = client
			r.onClose(func() error { return client.Disconnect(context.Background()) })
			r.log.Info("connected to mongo", "database", r.cfg.Mongo.Database)
		}
		return store.NewMongoReadStore(r.mongo.Database(r.cfg.Mongo.Database), readmodel.Decode), nil
	default:
		return store.NewReadStore(readmodel.Decode), nil
	}
}

// Redis returns nil when no address is configured.
func (r *Resources) Redis(ctx context.Context) (*redis.Client, error) {
	if r.cfg.Redis.Addr == "" {
		return nil, nil
	}
	if r.redis != nil {
		return r.redis, nil
	}
	rdb, err := cache.NewRedisClient(ctx, r.cfg.Redis.Addr, r.cfg.Redis.Password, r.cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	r.redis = rdb
	r.onClose(rdb.Close)
	return rdb, nil
}

func (r *Resources) amqpChannel() (*amqp.Channel, error) {
	if r.amqp == nil {
		conn, ch, err := rabbitmq.Dial(r.cfg.Rabbit.URL)
		if err != nil {
			return nil, err
		}
		r.amqp = conn
		r.onClose(conn.Close)
		r.onClose(ch.Close)
		return ch, nil
	}
	return r.amqp.Channel()
}

// Publisher returns the bus producer. With the inline bus events go
// straight to inline.
func (r *Resources) Publisher(inline store.Publisher) (store.Publisher, error) {
	switch r.BusDriver() {
	case BusKafka:
		p := kafka.NewProducer(r.cfg.Kafka.Brokers, r.cfg.Kafka.Topic)
		r.onClose(p.Close)
		return p, nil
	case BusRabbitMQ:
		ch, err := r.amqpChannel()
		if err != nil {
			return nil, err
		}
		p, err := rabbitmq.NewPublisher(ch, r.cfg.Rabbit.Exchange)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return inline, nil
	}
}

// Consume subscribes handler to the bus and blocks until ctx ends. The
// consumer group (Kafka) or queue (RabbitMQ) is chosen by the caller.
func (r *Resources) Consume(ctx context.Context, kafkaGroup, rabbitQueue string, handler MessageHandler) error {
	switch r.BusDriver() {
	case BusKafka:
		c := kafka.NewConsumer(r.cfg.Kafka.Brokers, r.cfg.Kafka.Topic, kafkaGroup)
		defer c.Close()
		return c.Consume(ctx, kafka.MessageHandler(handler))
	case BusRabbitMQ:
		ch, err := r.amqpChannel()
		if err != nil {
			return err
		}
		err = rabbitmq.Declare(ch, rabbitmq.Topology{
			Exchange:   r.cfg.Rabbit.Exchange,
			Queue:      rabbitQueue,
			RoutingKey: "events.#",
		})
		if err != nil {
			return err
		}
		return rabbitmq.NewConsumer(ch, rabbitQueue).Consume(ctx, rabbitmq.MessageHandler(handler))
	default:
		return fmt.Errorf("bus %q has no consumers", r.BusDriver())
	}
}

// InlineBus projects events in the writing process and then hands them to
// side listeners such as the notifier. Listener failures are logged and do
// not fail the command.
type InlineBus struct {
	Projector store.Publisher
	Listeners []MessageHandler
	log       *slog.Logger
}

func NewInlineBus(projector store.Publisher, listeners ...MessageHandler) *InlineBus {
	return &InlineBus{Projector: projector, Listeners: listeners, log: logging.New("inline-bus")}
}

func (b *InlineBus) Publish(ctx context.Context, key string, event any) error {
	if err := b.Projector.Publish(ctx, key, event); err != nil {
		return err
	}
	if len(b.Listeners) == 0 {
		return nil
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	for _, l := range b.Listeners {
		if err := l(ctx, []byte(key), value); err != nil {
			b.log.Warn("listener failed", "key", key, "err", err)
		}
	}
	return nil
}
