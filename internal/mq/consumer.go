package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// consumerRestartDelay — пауза перед повторным Consume после закрытия канала.
const consumerRestartDelay = 5 * time.Second

// Consumer потребляет task-сообщения из очереди RabbitMQ.
//
// Доставки складываются во внутренний буфер, Poll забирает их пачками.
// Ack выполняется вызывающим после обработки; prefetch ограничивает число
// неподтверждённых сообщений.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	prefetch int

	records    chan *Record
	cancelFunc context.CancelFunc
}

var _ Poller = (*Consumer)(nil)

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди (совпадает с топиком).
	Queue string

	// Prefetch — количество сообщений для предварительной загрузки.
	Prefetch int
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    cfg.Queue,
		prefetch: prefetch,
		records:  make(chan *Record, prefetch),
	}
}

// Start запускает потребление в фоне.
func (c *Consumer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	go func() {
		if err := c.consume(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("consumer stopped", "queue", c.queue, "error", err)
		}
	}()
}

// Poll забирает до max доставленных сообщений, ожидая первое не дольше timeout.
func (c *Consumer) Poll(ctx context.Context, timeout time.Duration, max int) ([]*Record, error) {
	if max <= 0 {
		return nil, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var records []*Record
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case r := <-c.records:
		records = append(records, r)
	}

	for len(records) < max {
		select {
		case r := <-c.records:
			records = append(records, r)
		default:
			return records, nil
		}
	}
	return records, nil
}

// consume — основной цикл потребления.
func (c *Consumer) consume(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Канал уведомления берётся до попытки: reconnect может случиться между ними.
		reconnected := c.conn.ReconnectNotify()

		ch, deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "queue", c.queue, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-reconnected:
				c.logger.Info("reconnected, restarting consumer", "queue", c.queue)
				continue
			}
		}

		c.logger.Info("consumer started", "queue", c.queue, "prefetch", c.prefetch)

		err = c.processDeliveries(ctx, deliveries)
		if !ch.IsClosed() {
			ch.Close()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("deliveries channel closed, restarting consumer", "queue", c.queue, "error", err)

		// Канал мог закрыться при живом соединении: пробуем снова и без reconnect.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reconnected:
		case <-time.After(consumerRestartDelay):
		}
	}
}

// setupConsume открывает собственный канал consumer'а и начинает потребление.
func (c *Consumer) setupConsume() (*amqp.Channel, <-chan amqp.Delivery, error) {
	ch, err := c.conn.OpenChannel()
	if err != nil {
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queue, // queue
		"",      // consumer tag (auto-generated)
		false,   // auto-ack (ack после обработки task)
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("consume: %w", err)
	}

	return ch, deliveries, nil
}

func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}
			c.handleDelivery(ctx, raw)
		}
	}
}

// handleDelivery разбирает сообщение и кладёт его в буфер.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	msg, err := DecodeTask(raw.Body)
	if err != nil {
		c.logger.Error("failed to decode message",
			"queue", c.queue,
			"message_id", raw.MessageId,
			"error", err,
		)
		// Некорректное сообщение — отправляем в DLQ
		raw.Nack(false, false)
		return
	}

	c.logger.Debug("received message",
		"queue", c.queue,
		"message_id", raw.MessageId,
		"task_id", msg.TaskID,
	)

	record := NewRecord(c.queue, msg, func(context.Context) error {
		return raw.Ack(false)
	})

	select {
	case c.records <- record:
	case <-ctx.Done():
		// Не обработано — вернуть в очередь
		raw.Nack(false, true)
	}
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}
