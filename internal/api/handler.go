package api

import (
	"log/slog"

	"github.com/shaiso/Callflow/internal/domain"
	"github.com/shaiso/Callflow/internal/governor"
	"github.com/shaiso/Callflow/internal/mq"
	"github.com/shaiso/Callflow/internal/repo"
	"github.com/shaiso/Callflow/internal/scheduler"
	"github.com/shaiso/Callflow/internal/store"
	"github.com/shaiso/Callflow/internal/telemetry"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	tasks     repo.TaskStore
	queue     mq.Pusher
	store     store.Store
	governors map[domain.Mode]*governor.Governor
	collector *telemetry.Collector
	deferrer  *scheduler.Scheduler
	providers []string
	region    string
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Tasks     repo.TaskStore
	Queue     mq.Pusher
	Store     store.Store
	Governors []*governor.Governor
	Collector *telemetry.Collector
	Deferrer  *scheduler.Scheduler

	// Providers — зарегистрированные провайдеры (для статистики и сброса счётчиков).
	Providers []string

	// DefaultRegion — регион для локальных номеров при постановке task.
	DefaultRegion string

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	governors := make(map[domain.Mode]*governor.Governor, len(cfg.Governors))
	for _, g := range cfg.Governors {
		governors[g.Mode()] = g
	}

	return &Handler{
		tasks:     cfg.Tasks,
		queue:     cfg.Queue,
		store:     cfg.Store,
		governors: governors,
		collector: cfg.Collector,
		deferrer:  cfg.Deferrer,
		providers: cfg.Providers,
		region:    cfg.DefaultRegion,
		logger:    cfg.Logger,
	}
}
