package mq

import (
	"context"
	"sync"
	"time"

	"github.com/shaiso/Callflow/internal/domain"
)

// Memory — in-memory очередь для тестов и локального запуска (QUEUE_BACKEND=memory).
//
// Сообщения хранятся по топикам в порядке публикации. Ack считается, но
// неподтверждённые сообщения назад не возвращаются.
type Memory struct {
	mu     sync.Mutex
	topics map[string][]domain.TaskMessage
	notify chan struct{}
	acked  int
	closed bool
}

var _ Pusher = (*Memory)(nil)

// NewMemory создаёт пустую очередь.
func NewMemory() *Memory {
	return &Memory{
		topics: make(map[string][]domain.TaskMessage),
		notify: make(chan struct{}),
	}
}

// Push добавляет сообщение в конец топика.
func (m *Memory) Push(_ context.Context, topic string, msg domain.TaskMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	m.topics[topic] = append(m.topics[topic], msg)
	close(m.notify)
	m.notify = make(chan struct{})
	return nil
}

// Len возвращает число сообщений в топике.
func (m *Memory) Len(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.topics[topic])
}

// Messages возвращает копию сообщений топика.
func (m *Memory) Messages(topic string) []domain.TaskMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TaskMessage, len(m.topics[topic]))
	copy(out, m.topics[topic])
	return out
}

// Acked возвращает число подтверждённых записей.
func (m *Memory) Acked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked
}

// Close закрывает очередь.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Consumer возвращает Poller топика.
func (m *Memory) Consumer(topic string) Poller {
	return &memoryConsumer{queue: m, topic: topic}
}

type memoryConsumer struct {
	queue *Memory
	topic string
}

func (c *memoryConsumer) Poll(ctx context.Context, timeout time.Duration, max int) ([]*Record, error) {
	if max <= 0 {
		return nil, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		records, notify, err := c.take(max)
		if err != nil || len(records) > 0 {
			return records, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-notify:
		}
	}
}

func (c *memoryConsumer) take(max int) ([]*Record, <-chan struct{}, error) {
	m := c.queue
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, nil, ErrClosed
	}

	pending := m.topics[c.topic]
	n := min(max, len(pending))
	if n == 0 {
		return nil, m.notify, nil
	}

	records := make([]*Record, 0, n)
	for _, msg := range pending[:n] {
		records = append(records, NewRecord(c.topic, msg, func(context.Context) error {
			m.mu.Lock()
			m.acked++
			m.mu.Unlock()
			return nil
		}))
	}
	m.topics[c.topic] = pending[n:]
	return records, m.notify, nil
}
