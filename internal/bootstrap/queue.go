package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/Callflow/internal/config"
	"github.com/shaiso/Callflow/internal/mq"
)

// Queue — издатель и фабрика consumer'ов выбранного транспорта.
type Queue struct {
	Backend string

	pusher   mq.Pusher
	consumer func(ctx context.Context, topic string, prefetch int) (mq.Poller, func() error)
	close    func() error
}

// OpenQueue подключает транспорт очереди: Kafka, RabbitMQ или память процесса.
func OpenQueue(ctx context.Context, cfg config.BackendsConfig, logger *slog.Logger) (*Queue, error) {
	switch cfg.Queue {
	case config.BackendKafka, "":
		group := cfg.KafkaGroupID
		if group == "" {
			group = defaultKafkaGroup
		}
		producer := mq.NewKafkaProducer(cfg.KafkaBrokers, logger)
		return &Queue{
			Backend: config.BackendKafka,
			pusher:  producer,
			consumer: func(_ context.Context, topic string, _ int) (mq.Poller, func() error) {
				c := mq.NewKafkaConsumer(cfg.KafkaBrokers, topic, group, logger)
				return c, c.Close
			},
			close: producer.Close,
		}, nil

	case config.BackendRabbitMQ:
		conn, err := mq.NewConnection(mq.ConnectionConfig{URL: cfg.AMQPURL, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("open rabbitmq: %w", err)
		}
		if err := mq.SetupTopology(ctx, conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("setup topology: %w", err)
		}
		return &Queue{
			Backend: config.BackendRabbitMQ,
			pusher:  mq.NewPublisher(conn, logger),
			consumer: func(ctx context.Context, topic string, prefetch int) (mq.Poller, func() error) {
				c := mq.NewConsumer(conn, logger, mq.ConsumerConfig{Queue: topic, Prefetch: prefetch})
				c.Start(ctx)
				return c, func() error { c.Stop(); return nil }
			},
			close: conn.Close,
		}, nil

	case config.BackendMemory:
		return NewMemoryQueue(mq.NewMemory()), nil

	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue)
	}
}

// NewMemoryQueue оборачивает очередь в памяти (один процесс, тесты).
func NewMemoryQueue(m *mq.Memory) *Queue {
	return &Queue{
		Backend: config.BackendMemory,
		pusher:  m,
		consumer: func(_ context.Context, topic string, _ int) (mq.Poller, func() error) {
			return m.Consumer(topic), func() error { return nil }
		},
		close: m.Close,
	}
}

// Pusher возвращает издателя транспорта.
func (q *Queue) Pusher() mq.Pusher {
	return q.pusher
}

// Consumer создаёт consumer топика и функцию его остановки.
func (q *Queue) Consumer(ctx context.Context, topic string, prefetch int) (mq.Poller, func() error) {
	return q.consumer(ctx, topic, prefetch)
}

// Close закрывает транспорт.
func (q *Queue) Close() error {
	if q.close == nil {
		return nil
	}
	return q.close()
}
