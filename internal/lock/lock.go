// Package lock реализует распределённую блокировку task и dedup-проверку.
//
// Блокировка — дешёвый вторичный барьер: она отсекает большинство
// конкурирующих доставок до CAS в TaskStore. Единственный арбитр
// владения task — CAS pending → processing.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shaiso/Callflow/internal/domain"
	"github.com/shaiso/Callflow/internal/repo"
	"github.com/shaiso/Callflow/internal/store"
)

// Значения по умолчанию.
const (
	DefaultLockTTL  = 900 * time.Second
	DefaultDedupTTL = 3600 * time.Second
)

// Reason — причина решения IsAlreadyProcessed.
type Reason string

const (
	ReasonAlreadyCompleted Reason = "already_completed"
	ReasonDedupCacheHit    Reason = "dedup_cache_hit"
	ReasonReady            Reason = "ready_to_process"
	ReasonTaskNotFound     Reason = "task_not_found"
	ReasonStatusCheckError Reason = "status_check_error"
)

// TaskGetter — чтение task из TaskStore.
type TaskGetter interface {
	Get(ctx context.Context, id string) (*domain.Task, error)
}

// Config — параметры Manager.
type Config struct {
	// WorkerID — идентификатор владельца, пишется в значение блокировки.
	WorkerID string

	// LockTTL — срок жизни блокировки (страховка от упавших воркеров).
	LockTTL time.Duration

	// DedupTTL — срок жизни dedup-записи.
	DedupTTL time.Duration

	Logger *slog.Logger
}

// Manager управляет блокировками и dedup-записями tasks.
type Manager struct {
	store  store.Store
	tasks  TaskGetter
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// New создаёт Manager.
func New(st store.Store, tasks TaskGetter, cfg Config) *Manager {
	if cfg.LockTTL == 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.DedupTTL == 0 {
		cfg.DedupTTL = DefaultDedupTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		store:  st,
		tasks:  tasks,
		config: cfg,
		logger: cfg.Logger,
		now:    time.Now,
	}
}

// Acquire пытается захватить блокировку task.
// true — ключ создан этим вызовом.
func (m *Manager) Acquire(ctx context.Context, taskID string) (bool, error) {
	value := fmt.Sprintf("%s_%d", m.config.WorkerID, m.now().Unix())
	ok, err := m.store.SetNX(ctx, store.LockKey(taskID), value, m.config.LockTTL)
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	return ok, nil
}

// Release снимает блокировку. Безопасно вызывать после истечения TTL.
func (m *Manager) Release(ctx context.Context, taskID string) error {
	if err := m.store.Del(ctx, store.LockKey(taskID)); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// IsHeld проверяет, существует ли блокировка task.
func (m *Manager) IsHeld(ctx context.Context, taskID string) (bool, error) {
	held, err := m.store.Exists(ctx, store.LockKey(taskID))
	if err != nil {
		return false, fmt.Errorf("check lock: %w", err)
	}
	return held, nil
}

// Owner возвращает значение блокировки ({worker_id}_{unix}).
func (m *Manager) Owner(ctx context.Context, taskID string) (string, bool, error) {
	return m.store.Get(ctx, store.LockKey(taskID))
}

// HeldBy проверяет, держит ли блокировку task воркер workerID.
func (m *Manager) HeldBy(ctx context.Context, taskID, workerID string) (bool, error) {
	owner, ok, err := m.Owner(ctx, taskID)
	if err != nil {
		return false, fmt.Errorf("check lock owner: %w", err)
	}
	if !ok {
		return false, nil
	}
	return ownerWorker(owner) == workerID, nil
}

// ownerWorker отрезает время захвата от значения блокировки.
func ownerWorker(owner string) string {
	if i := strings.LastIndexByte(owner, '_'); i >= 0 {
		return owner[:i]
	}
	return owner
}

// IsAlreadyProcessed проверяет, завершена ли task.
//
// Сначала TaskStore (completed), затем dedup-кеш. При любой ошибке
// хранилища отвечает true: лучше пропустить доставку, чем позвонить дважды.
// Побочных эффектов нет.
func (m *Manager) IsAlreadyProcessed(ctx context.Context, taskID string) (bool, Reason) {
	task, err := m.tasks.Get(ctx, taskID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		m.logger.Warn("task not found during dedup check", "task_id", taskID)
		return false, ReasonTaskNotFound
	case err != nil:
		m.logger.Error("task status check failed, skipping", "task_id", taskID, "error", err)
		return true, ReasonStatusCheckError
	case task.Status == domain.TaskStatusCompleted:
		return true, ReasonAlreadyCompleted
	}

	hit, err := m.store.Exists(ctx, store.DedupKey(taskID))
	if err != nil {
		m.logger.Error("dedup cache check failed, skipping", "task_id", taskID, "error", err)
		return true, ReasonStatusCheckError
	}
	if hit {
		return true, ReasonDedupCacheHit
	}
	return false, ReasonReady
}

// MarkCompleted записывает dedup-запись завершённой task.
func (m *Manager) MarkCompleted(ctx context.Context, taskID string) error {
	if err := m.store.Set(ctx, store.DedupKey(taskID), string(domain.TaskStatusCompleted), m.config.DedupTTL); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}
