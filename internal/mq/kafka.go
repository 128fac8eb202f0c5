package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	kgo "github.com/segmentio/kafka-go"

	"github.com/shaiso/Callflow/internal/domain"
)

const (
	// DefaultKafkaBrokers — брокеры для локальной разработки.
	DefaultKafkaBrokers = "localhost:9092"

	// DefaultGroupID — consumer group воркеров.
	DefaultGroupID = "callflow-workers"

	kafkaWriteTimeout  = 3 * time.Second
	kafkaCommitTimeout = 3 * time.Second

	// pollLinger — сколько ждать следующих сообщений после первого.
	pollLinger = 50 * time.Millisecond
)

// KafkaProducer публикует task-сообщения в Kafka.
type KafkaProducer struct {
	writer  *kgo.Writer
	timeout time.Duration
	logger  *slog.Logger
}

var _ Pusher = (*KafkaProducer)(nil)

// NewKafkaProducer создаёт producer. Топик задаётся в каждом Push.
func NewKafkaProducer(brokersCSV string, logger *slog.Logger) *KafkaProducer {
	if brokersCSV == "" {
		brokersCSV = DefaultKafkaBrokers
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &kgo.Writer{
		Addr:                   kgo.TCP(SplitCSV(brokersCSV)...),
		Balancer:               &kgo.LeastBytes{},
		RequiredAcks:           kgo.RequireOne,
		AllowAutoTopicCreation: true,
	}

	return &KafkaProducer{
		writer:  w,
		timeout: kafkaWriteTimeout,
		logger:  logger,
	}
}

// Push публикует сообщение. Ключ — task_id, чтобы попытки одной task шли
// в одну партицию.
func (p *KafkaProducer) Push(ctx context.Context, topic string, msg domain.TaskMessage) error {
	b, err := EncodeTask(msg)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(cctx, kgo.Message{
		Topic: topic,
		Key:   []byte(msg.TaskID),
		Value: b,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	p.logger.Debug("published task message", "topic", topic, "task_id", msg.TaskID)
	return nil
}

func (p *KafkaProducer) Close() error { return p.writer.Close() }

// KafkaConsumer читает task-сообщения одного топика с ручным commit.
type KafkaConsumer struct {
	topic  string
	reader *kgo.Reader
	logger *slog.Logger
}

var _ Poller = (*KafkaConsumer)(nil)

// NewKafkaConsumer создаёт consumer топика в группе groupID.
func NewKafkaConsumer(brokersCSV, topic, groupID string, logger *slog.Logger) *KafkaConsumer {
	if brokersCSV == "" {
		brokersCSV = DefaultKafkaBrokers
	}
	if groupID == "" {
		groupID = DefaultGroupID
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := kgo.NewReader(kgo.ReaderConfig{
		Brokers:        SplitCSV(brokersCSV),
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commits
	})

	return &KafkaConsumer{
		topic:  topic,
		reader: r,
		logger: logger.With("topic", topic),
	}
}

// Poll читает до max сообщений. После первого сообщения ждёт следующие
// не дольше pollLinger.
func (c *KafkaConsumer) Poll(ctx context.Context, timeout time.Duration, max int) ([]*Record, error) {
	if max <= 0 {
		return nil, nil
	}

	var records []*Record
	wait := timeout
	for len(records) < max {
		fctx, cancel := context.WithTimeout(ctx, wait)
		m, err := c.reader.FetchMessage(fctx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return records, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return records, fmt.Errorf("fetch message: %w", err)
		}

		msg, err := DecodeTask(m.Value)
		if err != nil {
			c.logger.Error("dropping invalid message",
				"partition", m.Partition,
				"offset", m.Offset,
				"error", err,
			)
			// commit, чтобы не перечитывать битое сообщение бесконечно
			_ = c.commit(ctx, m)
			continue
		}

		records = append(records, NewRecord(c.topic, msg, func(ctx context.Context) error {
			return c.commit(ctx, m)
		}))
		wait = pollLinger
	}

	return records, nil
}

func (c *KafkaConsumer) commit(ctx context.Context, m kgo.Message) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), kafkaCommitTimeout)
	defer cancel()
	return c.reader.CommitMessages(cctx, m)
}

func (c *KafkaConsumer) Close() error { return c.reader.Close() }

// SplitCSV разбивает список через запятую, отбрасывая пустые элементы.
func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
