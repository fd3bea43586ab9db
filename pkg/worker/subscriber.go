package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmamaqp "github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	wmkafka "github.com/ThreeDotsLabs/watermill-kafka/pkg/kafka"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/pkg/nats"
	wmsql "github.com/ThreeDotsLabs/watermill-sql/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	stan "github.com/nats-io/stan.go"
)

// NewFromConfig builds the subscriber described by cfg and a worker reading
// from it. opts are applied after the settings from cfg.
func NewFromConfig(cfg SubscriberConfig, opts ...Option) (*Worker, error) {
	sub, err := BuildSubscriber(cfg)
	if err != nil {
		return nil, err
	}
	all := append(cfg.options(), opts...)
	all = append(all, WithSubscriber(sub))
	return New(all...), nil
}

type subscriberFactory func(cfg SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error)

// riverqueue is insert-only on the server side; its jobs are consumed by a
// River worker, not through Watermill.
var subscriberFactories = map[string]subscriberFactory{
	"gochannel": buildGoChannelSubscriber,
	"amqp":      buildAMQPSubscriber,
	"nats":      buildNATSSubscriber,
	"kafka":     buildKafkaSubscriber,
	"sql":       buildSQLSubscriber,
}

const subscriberInitDelay = 2 * time.Second

// BuildSubscriber creates a Watermill subscriber for cfg. With several
// drivers the returned subscriber merges their channels and tags each message
// with a "driver" metadata key. A driver in a list that cannot be reached is
// skipped; a lone driver that cannot be reached is an error.
func BuildSubscriber(cfg SubscriberConfig) (message.Subscriber, error) {
	logger := watermill.NewStdLogger(false, false)

	drivers := uniqueStrings(append(append([]string{}, cfg.Drivers...), cfg.Driver))
	if len(drivers) == 0 {
		drivers = []string{"gochannel"}
	}
	if len(drivers) == 1 {
		factory, ok := subscriberFactories[drivers[0]]
		if !ok {
			return nil, fmt.Errorf("unsupported subscriber driver: %s", drivers[0])
		}
		return connect(cfg, logger, factory)
	}

	multi := &multiSubscriber{bufferSize: cfg.GoChannel.OutputChannelBuffer}
	for _, driver := range drivers {
		factory, ok := subscriberFactories[driver]
		if !ok {
			defaultLogger.Printf("warn skipping unsupported subscriber driver=%s", driver)
			continue
		}
		sub, err := connect(cfg, logger, factory)
		if err != nil {
			defaultLogger.Printf("warn subscriber init failed, skipping driver=%s: %v", driver, err)
			continue
		}
		multi.subscribers = append(multi.subscribers, namedSubscriber{driver: driver, sub: sub})
	}
	if len(multi.subscribers) == 0 {
		return nil, errors.New("no supported subscriber drivers configured")
	}
	return multi, nil
}

// connect calls factory until it succeeds or cfg.InitAttempts run out.
func connect(cfg SubscriberConfig, logger watermill.LoggerAdapter, factory subscriberFactory) (message.Subscriber, error) {
	attempts := cfg.InitAttempts
	if attempts <= 0 {
		attempts = 10
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		sub, err := factory(cfg, logger)
		if err == nil {
			return sub, nil
		}
		lastErr = err
		if i < attempts-1 {
			time.Sleep(subscriberInitDelay)
		}
	}
	return nil, lastErr
}

func buildGoChannelSubscriber(cfg SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            cfg.GoChannel.OutputChannelBuffer,
		Persistent:                     cfg.GoChannel.Persistent,
		BlockPublishUntilSubscriberAck: cfg.GoChannel.BlockPublishUntilSubscriberAck,
	}, logger), nil
}

func buildAMQPSubscriber(cfg SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	if cfg.AMQP.URL == "" {
		return nil, errors.New("amqp url is required")
	}
	var amqpCfg wmamaqp.Config
	switch strings.ToLower(cfg.AMQP.Mode) {
	case "", "durable_queue":
		amqpCfg = wmamaqp.NewDurableQueueConfig(cfg.AMQP.URL)
	case "nondurable_queue":
		amqpCfg = wmamaqp.NewNonDurableQueueConfig(cfg.AMQP.URL)
	case "durable_pubsub":
		amqpCfg = wmamaqp.NewDurablePubSubConfig(cfg.AMQP.URL, nil)
	case "nondurable_pubsub":
		amqpCfg = wmamaqp.NewNonDurablePubSubConfig(cfg.AMQP.URL, nil)
	default:
		return nil, fmt.Errorf("unsupported amqp mode: %s", cfg.AMQP.Mode)
	}
	return wmamaqp.NewSubscriber(amqpCfg, logger)
}

func buildNATSSubscriber(cfg SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	if cfg.NATS.ClusterID == "" || cfg.NATS.ClientID == "" {
		return nil, errors.New("nats cluster_id and client_id are required")
	}
	natsCfg := wmnats.StreamingSubscriberConfig{
		ClusterID:   cfg.NATS.ClusterID,
		ClientID:    cfg.NATS.ClientID + cfg.NATS.ClientIDSuffix,
		DurableName: cfg.NATS.Durable,
		Unmarshaler: wmnats.GobMarshaler{},
	}
	if cfg.NATS.URL != "" {
		natsCfg.StanOptions = append(natsCfg.StanOptions, stan.NatsURL(cfg.NATS.URL))
	}
	return wmnats.NewStreamingSubscriber(natsCfg, logger)
}

func buildKafkaSubscriber(cfg SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	return wmkafka.NewSubscriber(wmkafka.SubscriberConfig{
		Brokers:       cfg.Kafka.Brokers,
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
	}, nil, wmkafka.DefaultMarshaler{}, logger)
}

// buildSQLSubscriber reads the table the server's sql publisher writes to.
// Offsets are tracked per consumer group.
func buildSQLSubscriber(cfg SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	if cfg.SQL.Driver == "" || cfg.SQL.DSN == "" {
		return nil, errors.New("sql driver and dsn are required")
	}
	var (
		schema  wmsql.SchemaAdapter
		offsets wmsql.OffsetsAdapter
	)
	switch strings.ToLower(cfg.SQL.Dialect) {
	case "postgres", "postgresql":
		schema, offsets = wmsql.DefaultPostgreSQLSchema{}, wmsql.DefaultPostgreSQLOffsetsAdapter{}
	case "mysql":
		schema, offsets = wmsql.DefaultMySQLSchema{}, wmsql.DefaultMySQLOffsetsAdapter{}
	default:
		return nil, fmt.Errorf("unsupported sql dialect: %s", cfg.SQL.Dialect)
	}
	db, err := sql.Open(cfg.SQL.Driver, cfg.SQL.DSN)
	if err != nil {
		return nil, err
	}
	sub, err := wmsql.NewSubscriber(db, wmsql.SubscriberConfig{
		ConsumerGroup:    cfg.SQL.ConsumerGroup,
		SchemaAdapter:    schema,
		OffsetsAdapter:   offsets,
		InitializeSchema: cfg.SQL.InitializeSchema || cfg.SQL.AutoInitializeSchema,
	}, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &closingSubscriber{Subscriber: sub, closeFn: db.Close}, nil
}

type closingSubscriber struct {
	message.Subscriber
	closeFn func() error
}

func (c *closingSubscriber) Close() error {
	return errors.Join(c.Subscriber.Close(), c.closeFn())
}

type namedSubscriber struct {
	driver string
	sub    message.Subscriber
}

// multiSubscriber merges the channels of several subscribers.
type multiSubscriber struct {
	subscribers []namedSubscriber
	bufferSize  int64
}

func (m *multiSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	buffer := m.bufferSize
	if buffer <= 0 {
		buffer = 64
	}
	out := make(chan *message.Message, buffer)

	channels := make([]<-chan *message.Message, 0, len(m.subscribers))
	for _, entry := range m.subscribers {
		ch, err := entry.sub.Subscribe(ctx, topic)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.driver, err)
		}
		channels = append(channels, ch)
	}

	var wg sync.WaitGroup
	for i, ch := range channels {
		wg.Add(1)
		go func(driver string, ch <-chan *message.Message) {
			defer wg.Done()
			for msg := range ch {
				if msg.Metadata == nil {
					msg.Metadata = message.Metadata{}
				}
				msg.Metadata.Set("driver", driver)
				select {
				case out <- msg:
				case <-ctx.Done():
					msg.Nack()
					return
				}
			}
		}(m.subscribers[i].driver, ch)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

func (m *multiSubscriber) Close() error {
	var err error
	for _, entry := range m.subscribers {
		if closeErr := entry.sub.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("%s: %w", entry.driver, closeErr))
		}
	}
	return err
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
