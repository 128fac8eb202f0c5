package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/shaiso/Callflow/internal/config"
	"github.com/shaiso/Callflow/internal/domain"
	"github.com/shaiso/Callflow/internal/governor"
	"github.com/shaiso/Callflow/internal/lock"
	"github.com/shaiso/Callflow/internal/provider"
	"github.com/shaiso/Callflow/internal/scheduler"
	"github.com/shaiso/Callflow/internal/store"
	"github.com/shaiso/Callflow/internal/telemetry"
	"github.com/shaiso/Callflow/internal/worker"
)

// ErrNoProviders — ни один провайдер не настроен.
var ErrNoProviders = errors.New("no call providers configured")

// NewRegistry регистрирует провайдеров, у которых задан base_url.
func NewRegistry(cfg config.Config, logger *slog.Logger) *provider.Registry {
	reg := provider.NewRegistry()
	pc := cfg.Providers

	if pc.Hosted.Enabled() {
		reg.Register(provider.NewHosted(provider.HostedConfig{
			BaseURL:            pc.Hosted.BaseURL,
			APIKey:             pc.Hosted.APIKey,
			PhoneNumberID:      pc.Hosted.PhoneNumberID,
			DefaultRegion:      cfg.BusinessHours.DefaultRegion,
			MaxConcurrentCalls: pc.Hosted.MaxConcurrentCalls,
			PollInterval:       pc.Hosted.PollInterval,
			MaxPollDuration:    pc.Hosted.MaxPollDuration,
			Logger:             logger,
		}))
	}
	if pc.Dispatch.Enabled() {
		reg.Register(provider.NewDispatch(provider.DispatchConfig{
			BaseURL:   pc.Dispatch.BaseURL,
			APIKey:    pc.Dispatch.APIKey,
			AgentName: pc.Dispatch.AgentName,
			Logger:    logger,
		}))
	}
	if pc.Direct.Enabled() {
		reg.Register(provider.NewDirect(provider.DirectConfig{
			BaseURL: pc.Direct.BaseURL,
			APIKey:  pc.Direct.APIKey,
			Timeout: pc.Direct.Timeout,
			Logger:  logger,
		}))
	}
	return reg
}

// NewGovernor создаёт Governor режима с потолками из конфигурации.
func NewGovernor(st store.Store, cfg config.Config, mode domain.Mode, logger *slog.Logger) *governor.Governor {
	return governor.New(st, governor.Config{
		Mode:           mode,
		DefaultCeiling: cfg.Workers.MaxWorkers(mode),
		Ceilings:       cfg.Providers.Ceilings(),
		Logger:         logger,
	})
}

// Settings возвращает параметры CallExecutor.
func Settings(cfg config.Config) worker.Settings {
	return worker.Settings{
		MaxRetries:           cfg.MaxRetries,
		OutgoingCallsEnabled: cfg.OutgoingCallsEnabled,
		BusinessHoursEnabled: cfg.BusinessHours.Enabled,
		CapacityRetryDelay:   cfg.Workers.CapacityRetryDelay,
	}
}

// Runtime — объекты, общие для воркеров процесса.
//
// Клиенты хранилищ разделяются (go-redis и pgxpool держат собственные пулы),
// а блокировки, счётчики и CallExecutor создаются на каждого воркера.
type Runtime struct {
	Backends *Backends
	Selector *provider.Selector
	Window   *scheduler.Window
	Metrics  *telemetry.Collector
	Tracer   trace.Tracer
	Logger   *slog.Logger

	mu  sync.RWMutex
	cfg config.Config
}

// NewRuntime собирает Runtime по конфигурации.
func NewRuntime(cfg config.Config, b *Backends, tracer trace.Tracer, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	reg := NewRegistry(cfg, logger)
	if reg.Count() == 0 {
		return nil, ErrNoProviders
	}

	var defaultKind provider.Kind
	if cfg.Providers.Default != "" {
		kind, err := provider.ParseKind(cfg.Providers.Default)
		if err != nil {
			return nil, err
		}
		if !reg.Has(kind) {
			return nil, fmt.Errorf("default provider %s is not configured", kind)
		}
		defaultKind = kind
	}

	window, err := scheduler.NewWindow(cfg.BusinessHours.WindowConfig())
	if err != nil {
		return nil, err
	}

	return &Runtime{
		Backends: b,
		Selector: provider.NewSelector(reg, defaultKind),
		Window:   window,
		Metrics: telemetry.NewCollector(b.Store, telemetry.CollectorConfig{
			SLA:    cfg.SLA.ByMode(),
			Logger: logger,
		}),
		Tracer: tracer,
		Logger: logger,
		cfg:    cfg,
	}, nil
}

// Config возвращает текущую конфигурацию.
func (r *Runtime) Config() config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// NewPool создаёт WorkerPool режима.
func (r *Runtime) NewPool(mode domain.Mode) (*worker.Pool, error) {
	cfg := r.Config()
	return worker.NewPool(worker.PoolConfig{
		Mode:               mode,
		MaxWorkers:         cfg.Workers.MaxWorkers(mode),
		PollInterval:       cfg.Workers.PollInterval(mode),
		BatchSize:          cfg.Workers.BatchSize(mode),
		CapacityRetryDelay: cfg.Workers.CapacityRetryDelay,
		SweepInterval:      cfg.Workers.SweepInterval,
		Factory:            r.Factory(mode),
		Logger:             r.Logger,
	})
}

// Factory возвращает worker.Factory режима.
func (r *Runtime) Factory(mode domain.Mode) worker.Factory {
	return func(ctx context.Context, role worker.Role, workerID string) (*worker.Deps, error) {
		cfg := r.Config()
		b := r.Backends
		log := r.Logger.With("worker_id", workerID)

		locks := lock.New(b.Store, b.Tasks, lock.Config{WorkerID: workerID, Logger: log})
		gov := NewGovernor(b.Store, cfg, mode, log)
		deferrer := scheduler.New(scheduler.Config{
			Store:     b.Store,
			Tasks:     b.Tasks,
			Queue:     b.Queue.Pusher(),
			BatchSize: cfg.Scheduler.BatchSize,
			Logger:    log,
		})

		deps := &worker.Deps{
			Tasks:    b.Tasks,
			Locks:    locks,
			Governor: gov,
			Deferrer: deferrer,
			Selector: r.Selector,
		}

		switch role {
		case worker.RolePoller:
			poller, stop := b.Queue.Consumer(ctx, mode.Topic(), cfg.Workers.BatchSize(mode))
			deps.Poller = poller
			deps.Close = stop
		case worker.RoleWorker:
			deps.Executor = worker.NewCallExecutor(worker.ExecutorConfig{
				Tasks:    b.Tasks,
				Locks:    locks,
				Governor: gov,
				Deferrer: deferrer,
				Selector: r.Selector,
				Queue:    b.Queue.Pusher(),
				Window:   r.Window,
				Metrics:  r.Metrics,
				Tracer:   r.Tracer,
				Settings: Settings(cfg),
				Logger:   log,
			})
		}
		return deps, nil
	}
}

// Apply применяет перезагруженную конфигурацию к работающим пулам.
// Размеры пулов и бэкенды меняются только перезапуском.
func (r *Runtime) Apply(cfg config.Config, pools ...*worker.Pool) error {
	if err := r.Window.Update(cfg.BusinessHours.WindowConfig()); err != nil {
		return err
	}

	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()

	settings := Settings(cfg)
	ceilings := cfg.Providers.Ceilings()
	for _, p := range pools {
		defaultCeiling := cfg.Workers.MaxWorkers(p.Mode())
		p.Reconfigure(func(d *worker.Deps) {
			if d.Governor != nil {
				d.Governor.SetCeilings(defaultCeiling, ceilings)
			}
			if d.Executor != nil {
				d.Executor.UpdateSettings(settings)
			}
		})
	}

	r.Logger.Info("config applied",
		"max_retries", settings.MaxRetries,
		"outgoing_calls_enabled", settings.OutgoingCallsEnabled,
		"business_hours_enabled", settings.BusinessHoursEnabled,
	)
	return nil
}
