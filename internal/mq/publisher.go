package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Callflow/internal/domain"
)

// MessageTypeOutbound — AMQP type исходящего task-сообщения.
const MessageTypeOutbound = "task.outbound"

// Publisher публикует task-сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

var _ Pusher = (*Publisher)(nil)

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Push публикует task-сообщение в очередь топика.
//
// MessageId = task_id:retry_attempt: повторная публикация той же попытки
// видна в брокере как дубликат.
func (p *Publisher) Push(ctx context.Context, topic string, msg domain.TaskMessage) error {
	body, err := EncodeTask(msg)
	if err != nil {
		return err
	}

	return p.publish(ctx, ExchangeTasks, RoutingKeyForTopic(topic), amqp.Publishing{
		MessageId: fmt.Sprintf("%s:%d", msg.TaskID, msg.RetryAttempt),
		Headers: amqp.Table{
			"task_id":       msg.TaskID,
			"retry_attempt": int32(msg.RetryAttempt),
		},
		Body: body,
	})
}

func (p *Publisher) publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, pub amqp.Publishing) error {
	pub.ContentType = "application/json"
	pub.DeliveryMode = amqp.Persistent // сообщение переживёт рестарт RabbitMQ
	pub.Type = MessageTypeOutbound
	pub.Timestamp = time.Now()

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx, string(exchange), string(routingKey), false, false, pub)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", pub.MessageId,
		)
		return nil
	})
}
