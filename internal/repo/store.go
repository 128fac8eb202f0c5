package repo

import (
	"context"

	"github.com/shaiso/Callflow/internal/domain"
)

// TaskStore — источник истины по статусу task.
//
// Единственный арбитр владения task — UpdateStatusAtomic(pending → processing):
// из нескольких воркеров, получивших одно сообщение, true вернётся ровно одному.
type TaskStore interface {
	// Get возвращает task по ID. ErrNotFound, если её нет.
	Get(ctx context.Context, id string) (*domain.Task, error)

	// Create сохраняет новую task. ErrAlreadyExists при конфликте ID.
	Create(ctx context.Context, task *domain.Task) error

	// Update меняет статус и переданные поля. ErrNotFound, если task нет.
	Update(ctx context.Context, id string, u domain.TaskUpdate) error

	// UpdateStatusAtomic меняет статус from → to, только если текущий статус равен from.
	// false без ошибки — статус уже другой (или task нет).
	UpdateStatusAtomic(ctx context.Context, id string, from, to domain.TaskStatus) (bool, error)

	// CheckAndUpdateRunStatus переводит run в финальный статус, если у него
	// не осталось нефинальных tasks. Возвращает новый статус и признак изменения.
	CheckAndUpdateRunStatus(ctx context.Context, runID string) (domain.RunStatus, bool, error)
}

// Inspector — чтение для admin API. Реализуют PgStore и MemoryStore.
type Inspector interface {
	// GetRun возвращает run по ID. ErrNotFound, если его нет.
	GetRun(ctx context.Context, id string) (*domain.Run, error)

	// ListByRunID возвращает tasks run'а.
	ListByRunID(ctx context.Context, runID string) ([]domain.Task, error)

	// CountByStatus возвращает количество tasks по статусам.
	CountByStatus(ctx context.Context) (map[domain.TaskStatus]int, error)
}
