package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Callflow/internal/domain"
)

// PgStore — TaskStore поверх PostgreSQL (tasks + runs).
type PgStore struct {
	Tasks *TaskRepo
	Runs  *RunRepo
}

var _ TaskStore = (*PgStore)(nil)

// NewPgStore создаёт TaskStore на общем пуле соединений.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{
		Tasks: NewTaskRepo(pool),
		Runs:  NewRunRepo(pool),
	}
}

func (s *PgStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	return s.Tasks.Get(ctx, id)
}

// Create сохраняет task и, если указан, её run.
func (s *PgStore) Create(ctx context.Context, task *domain.Task) error {
	if task.RunID != "" {
		if err := s.Runs.Create(ctx, &domain.Run{ID: task.RunID}); err != nil {
			return err
		}
	}
	return s.Tasks.Create(ctx, task)
}

func (s *PgStore) Update(ctx context.Context, id string, u domain.TaskUpdate) error {
	return s.Tasks.Update(ctx, id, u)
}

func (s *PgStore) UpdateStatusAtomic(ctx context.Context, id string, from, to domain.TaskStatus) (bool, error) {
	return s.Tasks.UpdateStatusAtomic(ctx, id, from, to)
}

func (s *PgStore) CheckAndUpdateRunStatus(ctx context.Context, runID string) (domain.RunStatus, bool, error) {
	return s.Runs.CheckAndUpdateRunStatus(ctx, runID)
}

var _ Inspector = (*PgStore)(nil)

func (s *PgStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	return s.Runs.Get(ctx, id)
}

func (s *PgStore) ListByRunID(ctx context.Context, runID string) ([]domain.Task, error) {
	return s.Tasks.ListByRunID(ctx, runID)
}

func (s *PgStore) CountByStatus(ctx context.Context) (map[domain.TaskStatus]int, error) {
	return s.Tasks.CountByStatus(ctx)
}
