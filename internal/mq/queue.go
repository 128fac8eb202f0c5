package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shaiso/Callflow/internal/domain"
)

// Ошибки очереди.
var (
	// ErrClosed — очередь закрыта.
	ErrClosed = errors.New("queue closed")

	// ErrInvalidMessage — сообщение не удалось разобрать или в нём нет task_id.
	ErrInvalidMessage = errors.New("invalid task message")
)

// Poller — источник сообщений одного топика.
type Poller interface {
	// Poll ждёт до timeout и возвращает не больше max записей.
	// Пустой результат без ошибки — очередь пуста.
	Poll(ctx context.Context, timeout time.Duration, max int) ([]*Record, error)
}

// Pusher публикует task-сообщения в топик.
type Pusher interface {
	Push(ctx context.Context, topic string, msg domain.TaskMessage) error
}

// Record — полученное сообщение.
//
// Ack подтверждает обработку (commit offset в Kafka, ack в RabbitMQ).
// Повторный Ack ничего не делает.
type Record struct {
	Topic      string
	Message    domain.TaskMessage
	ReceivedAt time.Time

	once sync.Once
	ack  func(ctx context.Context) error
}

// NewRecord создаёт запись с функцией подтверждения (может быть nil).
func NewRecord(topic string, msg domain.TaskMessage, ack func(ctx context.Context) error) *Record {
	return &Record{
		Topic:      topic,
		Message:    msg,
		ReceivedAt: time.Now(),
		ack:        ack,
	}
}

// Ack подтверждает обработку записи.
func (r *Record) Ack(ctx context.Context) error {
	var err error
	r.once.Do(func() {
		if r.ack != nil {
			err = r.ack(ctx)
		}
	})
	return err
}

// Mode возвращает режим по топику записи.
func (r *Record) Mode() domain.Mode {
	return domain.ModeForTopic(r.Topic)
}

// EncodeTask сериализует task-сообщение.
func EncodeTask(msg domain.TaskMessage) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal task message: %w", err)
	}
	return b, nil
}

// DecodeTask разбирает task-сообщение.
func DecodeTask(body []byte) (domain.TaskMessage, error) {
	var msg domain.TaskMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return domain.TaskMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.TaskID == "" {
		return domain.TaskMessage{}, fmt.Errorf("%w: missing task_id", ErrInvalidMessage)
	}
	return msg, nil
}
