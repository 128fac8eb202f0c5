// Package bootstrap собирает зависимости сервисов Callflow по конфигурации:
// хранилища, очередь, провайдеров и фабрику воркеров.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/Callflow/internal/config"
	"github.com/shaiso/Callflow/internal/repo"
	"github.com/shaiso/Callflow/internal/store"
)

// defaultKafkaGroup — consumer group воркеров, если не задана.
const defaultKafkaGroup = "callflow-workers"

// Backends — подключения процесса к хранилищам и очереди.
type Backends struct {
	Store store.Store
	Tasks repo.TaskStore
	Queue *Queue

	closers []func() error
}

// Open подключает бэкенды, выбранные в cfg.Backends.
// При ошибке уже открытые подключения закрываются.
func Open(ctx context.Context, cfg config.BackendsConfig, logger *slog.Logger) (*Backends, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backends{}

	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b.Store = st
	b.closers = append(b.closers, st.Close)
	logger.Info("store connected", "backend", cfg.Store)

	tasks, closeTasks, err := OpenTaskStore(ctx, cfg)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.Tasks = tasks
	b.closers = append(b.closers, closeTasks)
	logger.Info("task store connected", "backend", cfg.TaskStore)

	queue, err := OpenQueue(ctx, cfg, logger)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.Queue = queue
	b.closers = append(b.closers, queue.Close)
	logger.Info("queue connected", "backend", cfg.Queue)

	return b, nil
}

// Close закрывает подключения в обратном порядке.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// OpenStore подключает ResourceStore.
func OpenStore(ctx context.Context, cfg config.BackendsConfig) (store.Store, error) {
	switch cfg.Store {
	case config.BackendRedis, "":
		st, err := store.NewRedis(ctx, store.RedisOptions{URL: cfg.RedisURL})
		if err != nil {
			return nil, fmt.Errorf("open redis: %w", err)
		}
		return st, nil
	case config.BackendMemory:
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}

// OpenTaskStore подключает TaskStore. Для PostgreSQL схема создаётся при старте.
func OpenTaskStore(ctx context.Context, cfg config.BackendsConfig) (repo.TaskStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.TaskStore {
	case config.BackendPostgres, "":
		pool, err := repo.NewPool(ctx, cfg.DatabaseURL, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := repo.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repo.NewPgStore(pool), func() error { pool.Close(); return nil }, nil

	case config.BackendDynamoDB:
		ds, err := repo.NewDynamoStore(ctx, repo.DynamoOptions{
			Region:     cfg.DynamoDB.Region,
			Endpoint:   cfg.DynamoDB.Endpoint,
			TasksTable: cfg.DynamoDB.TasksTable,
			RunsTable:  cfg.DynamoDB.RunsTable,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open dynamodb: %w", err)
		}
		return ds, noop, nil

	case config.BackendMemory:
		return repo.NewMemoryStore(), noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown task store backend %q", cfg.TaskStore)
	}
}
