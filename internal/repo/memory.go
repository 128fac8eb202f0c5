package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/Callflow/internal/domain"
)

// MemoryStore — in-memory TaskStore для тестов и локального запуска.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[string]*domain.Task
	runs  map[string]*domain.Run
	now   func() time.Time

	// failWith — если не nil, все операции возвращают эту ошибку.
	failWith error
}

var _ TaskStore = (*MemoryStore)(nil)

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]*domain.Task),
		runs:  make(map[string]*domain.Run),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// FailWith заставляет все операции возвращать err (nil — отключить).
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) Create(_ context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}

	if _, ok := s.tasks[task.ID]; ok {
		return ErrAlreadyExists
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = s.now()
	}
	task.UpdatedAt = task.CreatedAt

	cp := *task
	s.tasks[task.ID] = &cp

	if task.RunID != "" {
		if _, ok := s.runs[task.RunID]; !ok {
			s.runs[task.RunID] = &domain.Run{ID: task.RunID, Status: domain.RunStatusPending, CreatedAt: s.now()}
		}
	}
	return nil
}

func (s *MemoryStore) Update(_ context.Context, id string, u domain.TaskUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}

	t, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	u.Apply(t, s.now())
	return nil
}

func (s *MemoryStore) UpdateStatusAtomic(_ context.Context, id string, from, to domain.TaskStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return false, s.failWith
	}

	t, ok := s.tasks[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	t.UpdatedAt = s.now()
	return true, nil
}

func (s *MemoryStore) CheckAndUpdateRunStatus(_ context.Context, runID string) (domain.RunStatus, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return "", false, s.failWith
	}

	run, ok := s.runs[runID]
	if !ok || run.Status.IsTerminal() {
		return "", false, nil
	}

	var total, completed, failed int
	for _, t := range s.tasks {
		if t.RunID != runID {
			continue
		}
		total++
		switch t.Status {
		case domain.TaskStatusCompleted:
			completed++
		case domain.TaskStatusFailed:
			failed++
		}
	}

	status, final := domain.RollupRunStatus(total, completed, failed)
	if !final {
		return "", false, nil
	}
	now := s.now()
	run.Status = status
	run.FinishedAt = &now
	return status, true, nil
}

// Run возвращает копию run.
func (s *MemoryStore) Run(id string) (*domain.Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// CountByStatus возвращает количество tasks по статусам.
func (s *MemoryStore) CountByStatus(context.Context) (map[domain.TaskStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	counts := make(map[domain.TaskStatus]int)
	for _, t := range s.tasks {
		counts[t.Status]++
	}
	return counts, nil
}

var _ Inspector = (*MemoryStore)(nil)

func (s *MemoryStore) GetRun(_ context.Context, id string) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	r, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// ListByRunID возвращает tasks run'а в порядке создания.
func (s *MemoryStore) ListByRunID(_ context.Context, runID string) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	var tasks []domain.Task
	for _, t := range s.tasks {
		if t.RunID == runID {
			tasks = append(tasks, *t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}
