package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Callflow/internal/domain"
)

// --- MemoryStore Tests ---

func TestMemoryStore_CreateGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	task := &domain.Task{ID: "t1", RunID: "r1", Input: map[string]any{"contact_number": "+919876543210"}}
	if err := s.Create(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, task); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := s.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.TaskStatusPending {
		t.Errorf("expected pending, got %s", got.Status)
	}
	if got.ContactNumber() != "+919876543210" {
		t.Errorf("unexpected contact number %q", got.ContactNumber())
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_UpdateStatusAtomic_SingleWinner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Create(ctx, &domain.Task{ID: "t1"})

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.UpdateStatusAtomic(ctx, "t1", domain.TaskStatusPending, domain.TaskStatusProcessing)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one CAS winner, got %d", wins)
	}
}

func TestMemoryStore_Update(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Create(ctx, &domain.Task{ID: "t1"})

	at := time.Now().Add(time.Hour)
	if err := s.Update(ctx, "t1", domain.StatusOnly(domain.TaskStatusHold).WithScheduledAt(at)); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := s.Get(ctx, "t1")
	if got.Status != domain.TaskStatusHold || got.ScheduledAt == nil {
		t.Errorf("unexpected task: %+v", got)
	}

	if err := s.Update(ctx, "missing", domain.StatusOnly(domain.TaskStatusFailed)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_CheckAndUpdateRunStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Create(ctx, &domain.Task{ID: "t1", RunID: "r1"})
	s.Create(ctx, &domain.Task{ID: "t2", RunID: "r1"})

	s.Update(ctx, "t1", domain.StatusOnly(domain.TaskStatusCompleted))
	if _, changed, _ := s.CheckAndUpdateRunStatus(ctx, "r1"); changed {
		t.Fatal("run should not finish while t2 is pending")
	}

	s.Update(ctx, "t2", domain.StatusOnly(domain.TaskStatusFailed))
	status, changed, err := s.CheckAndUpdateRunStatus(ctx, "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed || status != domain.RunStatusPartiallyCompleted {
		t.Errorf("expected partially_completed, got %q changed=%v", status, changed)
	}

	if _, changed, _ := s.CheckAndUpdateRunStatus(ctx, "r1"); changed {
		t.Error("finished run should not change again")
	}
	run, _ := s.Run("r1")
	if run.FinishedAt == nil {
		t.Error("expected FinishedAt to be set")
	}
}
