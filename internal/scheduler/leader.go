package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/shaiso/Callflow/internal/store"
)

// DefaultLeaderInterval — как часто реплика пытается стать лидером
// или подтверждает лидерство.
const DefaultLeaderInterval = 5 * time.Second

// ErrNotLeader — лидерство потеряно.
var ErrNotLeader = errors.New("leadership lost")

// Elector — выбор лидера между репликами.
type Elector interface {
	// TryAcquire пытается стать лидером. true — лидерство получено.
	TryAcquire(ctx context.Context) (bool, error)

	// Confirm подтверждает лидерство; ошибка означает, что оно потеряно.
	Confirm(ctx context.Context) error

	// Release отдаёт лидерство.
	Release(ctx context.Context) error
}

// StoreElector — лидерство через ключ ResourceStore с TTL.
// Используется, когда TaskStore не PostgreSQL.
type StoreElector struct {
	store store.Store
	key   string
	id    string
	ttl   time.Duration
}

// NewStoreElector создаёт StoreElector. ttl должен быть больше интервала Confirm.
func NewStoreElector(st store.Store, name, id string, ttl time.Duration) *StoreElector {
	return &StoreElector{store: st, key: store.LeaderKey(name), id: id, ttl: ttl}
}

func (e *StoreElector) TryAcquire(ctx context.Context) (bool, error) {
	return e.store.SetNX(ctx, e.key, e.id, e.ttl)
}

// Confirm продлевает ключ, только если он всё ещё принадлежит этой реплике.
func (e *StoreElector) Confirm(ctx context.Context) error {
	ok, err := e.store.CompareAndExpire(ctx, e.key, e.id, e.ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotLeader
	}
	return nil
}

// Release удаляет ключ, только если он принадлежит этой реплике.
func (e *StoreElector) Release(ctx context.Context) error {
	_, err := e.store.CompareAndDelete(ctx, e.key, e.id)
	return err
}

// RunAsLeader держит Runner запущенным, пока реплика остаётся лидером.
// Блокирует до отмены ctx; при выходе Runner останавливается, лидерство отдаётся.
func (r *Runner) RunAsLeader(ctx context.Context, el Elector, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultLeaderInterval
	}

	leader := false
	demote := func() {
		r.Stop()
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := el.Release(releaseCtx); err != nil {
			r.logger.Warn("failed to release leadership", "error", err)
		}
		leader = false
	}

	tick := func() {
		if leader {
			if err := el.Confirm(ctx); err != nil {
				r.logger.Warn("leadership lost", "error", err)
				demote()
			}
			return
		}

		ok, err := el.TryAcquire(ctx)
		if err != nil {
			r.logger.Error("leader election failed", "error", err)
			return
		}
		if !ok {
			return
		}
		if err := r.Start(ctx); err != nil {
			r.logger.Error("failed to start sweep runner", "error", err)
			if err := el.Release(ctx); err != nil {
				r.logger.Warn("failed to release leadership", "error", err)
			}
			return
		}
		leader = true
		r.logger.Info("became leader")
	}

	tk := time.NewTicker(interval)
	defer tk.Stop()

	tick()
	for {
		select {
		case <-ctx.Done():
			if leader {
				demote()
			}
			return
		case <-tk.C:
			tick()
		}
	}
}
