package domain

import (
	"testing"
	"time"
)

// --- Status Tests ---

func TestTaskStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status TaskStatus
		want   bool
	}{
		{TaskStatusPending, false},
		{TaskStatusProcessing, false},
		{TaskStatusInProgress, false},
		{TaskStatusHold, false},
		{TaskStatusCompleted, true},
		{TaskStatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestRollupRunStatus(t *testing.T) {
	tests := []struct {
		name              string
		total, done, fail int
		want              RunStatus
		final             bool
	}{
		{"no tasks", 0, 0, 0, "", false},
		{"still running", 3, 1, 1, "", false},
		{"all completed", 3, 3, 0, RunStatusCompleted, true},
		{"all failed", 2, 0, 2, RunStatusFailed, true},
		{"mixed", 3, 2, 1, RunStatusPartiallyCompleted, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, final := RollupRunStatus(tt.total, tt.done, tt.fail)
			if got != tt.want || final != tt.final {
				t.Errorf("got (%q, %v), want (%q, %v)", got, final, tt.want, tt.final)
			}
		})
	}
}

// --- Mode Tests ---

func TestModeRouting(t *testing.T) {
	if ModeForBatch(5) != ModeNormal {
		t.Error("batch of 5 should stay normal")
	}
	if ModeForBatch(6) != ModeBulk {
		t.Error("batch of 6 should go bulk")
	}
	if ModeForTopic(ModeBulk.Topic()) != ModeBulk {
		t.Error("bulk topic should map back to bulk")
	}
	if _, err := ParseMode("vip"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

// --- TaskUpdate Tests ---

func TestTaskUpdate_Apply(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	now := at.Add(time.Hour)

	task := &Task{ID: "t1", Status: TaskStatusPending, RetryAttempt: 1}
	StatusOnly(TaskStatusHold).WithScheduledAt(at).Apply(task, now)
	if task.Status != TaskStatusHold || task.ScheduledAt == nil || !task.ScheduledAt.Equal(at) {
		t.Fatalf("unexpected task after hold: %+v", task)
	}

	u := StatusOnly(TaskStatusFailed).WithFailure("busy").WithRetryAttempt(2)
	u.ClearScheduledAt = true
	u.Apply(task, now)
	if task.LastFailureReason != "busy" || task.RetryAttempt != 2 || task.ScheduledAt != nil {
		t.Errorf("unexpected task after failure: %+v", task)
	}
	if !task.UpdatedAt.Equal(now) {
		t.Errorf("expected UpdatedAt %v, got %v", now, task.UpdatedAt)
	}
}

func TestTaskMessage_NextAttempt(t *testing.T) {
	msg := TaskMessage{TaskID: "t1", RetryAttempt: 1}
	next := msg.NextAttempt()
	if next.RetryAttempt != 2 || msg.RetryAttempt != 1 {
		t.Errorf("expected copy with attempt 2, got next=%d orig=%d", next.RetryAttempt, msg.RetryAttempt)
	}
}

// --- Truncate Tests ---

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		s    string
		n    int
		want string
	}{
		{"shorter", "abc", 5, "abc"},
		{"exact", "abc", 3, "abc"},
		{"ascii", "abcdef", 3, "abc"},
		{"multibyte", "звонок", 3, "зво"},
		{"mixed", "a€b€c", 2, "a€"},
		{"zero", "abc", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.s, tt.n); got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
			}
		})
	}
}
