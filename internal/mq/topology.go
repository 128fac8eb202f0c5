package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Callflow/internal/domain"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeTasks Exchange = "callflow.tasks"
	ExchangeDLQ   Exchange = "callflow.dlq"
)

// Queues — имена очередей. Имена совпадают с топиками Kafka.
const (
	QueueOutbound     Queue = Queue(domain.TopicNormal)
	QueueOutboundBulk Queue = Queue(domain.TopicBulk)
	QueueDLQOutbound  Queue = "dlq.outbound_requests"
)

// RoutingKeyDLQ — ключ маршрутизации в DLQ.
const RoutingKeyDLQ RoutingKey = "outbound"

// RoutingKeyForTopic — routing key топика в ExchangeTasks.
func RoutingKeyForTopic(topic string) RoutingKey {
	return RoutingKey(topic)
}

// SetupTopology объявляет exchanges, очереди обоих режимов и DLQ.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

func declareExchanges(ch *amqp.Channel) error {
	for _, ex := range []Exchange{ExchangeTasks, ExchangeDLQ} {
		err := ch.ExchangeDeclare(
			string(ex), // name
			"direct",   // type
			true,       // durable
			false,      // auto-deleted
			false,      // internal
			false,      // no-wait
			nil,        // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}
	return nil
}

func declareQueues(ch *amqp.Channel) error {
	// Битые сообщения (nack без requeue) уходят в DLQ
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQ),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueueOutbound, dlqArgs},
		{QueueOutboundBulk, dlqArgs},
		{QueueDLQOutbound, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueOutbound, RoutingKeyForTopic(domain.TopicNormal), ExchangeTasks},
		{QueueOutboundBulk, RoutingKeyForTopic(domain.TopicBulk), ExchangeTasks},
		{QueueDLQOutbound, RoutingKeyDLQ, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Callflow RabbitMQ Topology:

    callflow.tasks (direct)
    ├── agent_outbound_requests [routing: agent_outbound_requests]
    │       Consumer: worker pool (normal)
    │       DLQ: dlq.outbound_requests
    └── agent_outbound_requests_bulk [routing: agent_outbound_requests_bulk]
            Consumer: worker pool (bulk)
            DLQ: dlq.outbound_requests

    callflow.dlq (direct)
    └── dlq.outbound_requests [routing: outbound]
            Manual processing
  `
}
