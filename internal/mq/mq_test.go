package mq

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/Callflow/internal/domain"
)

// --- Codec Tests ---

func TestDecodeTask(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"task_id":"t1","run_id":"r1","data":{"contact_number":"+919876543210"},"retry_attempt":1}`, false},
		{"missing task id", `{"run_id":"r1"}`, true},
		{"not json", `hello`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeTask([]byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidMessage) {
					t.Errorf("expected ErrInvalidMessage, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msg.TaskID != "t1" || msg.RetryAttempt != 1 || msg.ContactNumber() != "+919876543210" {
				t.Errorf("unexpected message: %+v", msg)
			}
		})
	}
}

func TestEncodeTask_RoundTripsThroughDecode(t *testing.T) {
	in := domain.TaskMessage{TaskID: "t1", AgentID: "a1", BatchCount: 8}
	b, err := EncodeTask(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := DecodeTask(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Mode() != domain.ModeBulk {
		t.Errorf("expected bulk mode, got %s", out.Mode())
	}
}

// --- Record Tests ---

func TestRecord_AckOnce(t *testing.T) {
	calls := 0
	r := NewRecord(domain.TopicBulk, domain.TaskMessage{TaskID: "t1"}, func(context.Context) error {
		calls++
		return nil
	})

	r.Ack(context.Background())
	r.Ack(context.Background())

	if calls != 1 {
		t.Errorf("expected ack once, got %d", calls)
	}
	if r.Mode() != domain.ModeBulk {
		t.Errorf("expected bulk mode from topic, got %s", r.Mode())
	}

	if err := NewRecord("x", domain.TaskMessage{}, nil).Ack(context.Background()); err != nil {
		t.Errorf("nil ack should be a no-op, got %v", err)
	}
}

// --- Memory Queue Tests ---

func TestMemory_PushPoll(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()

	for _, id := range []string{"t1", "t2", "t3"} {
		if err := q.Push(ctx, domain.TopicNormal, domain.TaskMessage{TaskID: id}); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	q.Push(ctx, domain.TopicBulk, domain.TaskMessage{TaskID: "b1"})

	c := q.Consumer(domain.TopicNormal)
	records, err := c.Poll(ctx, 10*time.Millisecond, 2)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(records) != 2 || records[0].Message.TaskID != "t1" || records[1].Message.TaskID != "t2" {
		t.Fatalf("unexpected records: %+v", records)
	}

	for _, r := range records {
		r.Ack(ctx)
	}
	if q.Acked() != 2 {
		t.Errorf("expected 2 acked, got %d", q.Acked())
	}
	if q.Len(domain.TopicNormal) != 1 || q.Len(domain.TopicBulk) != 1 {
		t.Errorf("unexpected remaining lengths")
	}
}

func TestMemory_PollTimeout(t *testing.T) {
	q := NewMemory()

	start := time.Now()
	records, err := q.Consumer(domain.TopicNormal).Poll(context.Background(), 20*time.Millisecond, 5)
	if err != nil || len(records) != 0 {
		t.Fatalf("expected empty poll, got %v, %v", records, err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("poll returned before timeout")
	}
}

func TestMemory_PollWakesOnPush(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(ctx, domain.TopicNormal, domain.TaskMessage{TaskID: "late"})
	}()

	records, err := q.Consumer(domain.TopicNormal).Poll(ctx, time.Second, 1)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(records) != 1 || records[0].Message.TaskID != "late" {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestMemory_Closed(t *testing.T) {
	q := NewMemory()
	q.Close()

	if err := q.Push(context.Background(), domain.TopicNormal, domain.TaskMessage{TaskID: "t"}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := q.Consumer(domain.TopicNormal).Poll(context.Background(), time.Millisecond, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

// --- Helpers Tests ---

func TestSplitCSV(t *testing.T) {
	got := SplitCSV(" a:9092, ,b:9092,")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Errorf("unexpected split: %v", got)
	}
}

func TestTopology_Names(t *testing.T) {
	if string(QueueOutbound) != domain.TopicNormal || string(QueueOutboundBulk) != domain.TopicBulk {
		t.Error("queue names must match topics")
	}
	if !strings.Contains(TopologyInfo(), string(QueueDLQOutbound)) {
		t.Error("topology info should mention the dlq")
	}
}
