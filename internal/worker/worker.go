package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Callflow/internal/domain"
	"github.com/shaiso/Callflow/internal/governor"
	"github.com/shaiso/Callflow/internal/lock"
	"github.com/shaiso/Callflow/internal/mq"
	"github.com/shaiso/Callflow/internal/provider"
	"github.com/shaiso/Callflow/internal/repo"
	"github.com/shaiso/Callflow/internal/scheduler"
	"github.com/shaiso/Callflow/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval       = time.Second
	defaultPollTimeout        = 2 * time.Second
	defaultBatchSize          = 5
	defaultCapacityRetryDelay = 5 * time.Minute
	defaultGraceTimeout       = 30 * time.Second
)

// Role — для чего Factory собирает зависимости.
type Role int

const (
	// RolePoller — цикл опроса очереди: нужен Poller.
	RolePoller Role = iota

	// RoleWorker — выполнение tasks: нужен Executor.
	RoleWorker
)

// Deps — зависимости одного воркера (или цикла опроса).
// Каждый воркер получает собственный набор клиентов.
type Deps struct {
	Poller   mq.Poller
	Executor *CallExecutor

	Tasks    repo.TaskStore
	Locks    *lock.Manager
	Governor *governor.Governor
	Deferrer *scheduler.Scheduler
	Selector *provider.Selector

	// Close освобождает клиентов (может быть nil).
	Close func() error
}

func (d *Deps) close() error {
	if d == nil || d.Close == nil {
		return nil
	}
	return d.Close()
}

// Factory собирает зависимости для воркера workerID.
type Factory func(ctx context.Context, role Role, workerID string) (*Deps, error)

// PoolConfig — конфигурация Pool.
type PoolConfig struct {
	// Mode — класс приоритета, который обслуживает пул.
	Mode domain.Mode

	// MaxWorkers — сколько tasks выполняется одновременно.
	MaxWorkers int

	// PollInterval — базовая пауза между опросами очереди.
	PollInterval time.Duration

	// PollTimeout — сколько Poll ждёт первое сообщение (default: 2s).
	PollTimeout time.Duration

	// BatchSize — верхняя граница записей за один Poll.
	BatchSize int

	// CapacityRetryDelay — на сколько откладывается task, если провайдер занят.
	CapacityRetryDelay time.Duration

	// SweepInterval — период Sweep внутри цикла (0 — выключено).
	SweepInterval time.Duration

	// GraceTimeout — сколько ждать снятия блокировки после завершения task.
	GraceTimeout time.Duration

	Factory Factory
	Logger  *slog.Logger
}

// Stats — снимок состояния пула.
type Stats struct {
	Mode       domain.Mode     `json:"mode"`
	MaxWorkers int             `json:"max_workers"`
	Active     int             `json:"active"`
	Polls      int64           `json:"polls"`
	Submitted  int64           `json:"submitted"`
	Deferred   int64           `json:"deferred"`
	Outcomes   map[Outcome]int `json:"outcomes"`
	StartedAt  time.Time       `json:"started_at"`
}

// unit — task, переданная воркеру.
type unit struct {
	taskID     string
	workerID   string
	done       chan struct{}
	outcome    Outcome
	finishedAt time.Time
}

type work struct {
	job  Job
	rec  *mq.Record
	unit *unit
}

// Pool — WorkerPool одного режима.
//
// Один цикл опроса забирает записи из очереди и раздаёт их MaxWorkers
// воркерам. Слот освобождается, только когда воркер закончил и блокировка
// task снята (grace check).
type Pool struct {
	mode               domain.Mode
	maxWorkers         int
	pollInterval       time.Duration
	pollTimeout        time.Duration
	batchSize          int
	capacityRetryDelay time.Duration
	sweepInterval      time.Duration
	graceTimeout       time.Duration
	factory            Factory
	logger             *slog.Logger

	jobs chan work

	// Lifecycle
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	active    []*unit
	deps      []*Deps
	polls     int64
	submitted int64
	deferred  int64
	outcomes  map[Outcome]int
	startedAt time.Time
}

// NewPool создаёт Pool.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Factory == nil {
		return nil, ErrNoFactory
	}
	if cfg.Mode == "" {
		cfg.Mode = domain.ModeNormal
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.CapacityRetryDelay <= 0 {
		cfg.CapacityRetryDelay = defaultCapacityRetryDelay
	}
	if cfg.GraceTimeout <= 0 {
		cfg.GraceTimeout = defaultGraceTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Pool{
		mode:               cfg.Mode,
		maxWorkers:         cfg.MaxWorkers,
		pollInterval:       cfg.PollInterval,
		pollTimeout:        cfg.PollTimeout,
		batchSize:          cfg.BatchSize,
		capacityRetryDelay: cfg.CapacityRetryDelay,
		sweepInterval:      cfg.SweepInterval,
		graceTimeout:       cfg.GraceTimeout,
		factory:            cfg.Factory,
		logger:             telemetry.WithMode(cfg.Logger, cfg.Mode.String()),
		jobs:               make(chan work),
		outcomes:           make(map[Outcome]int),
	}, nil
}

// Mode возвращает режим пула.
func (p *Pool) Mode() domain.Mode {
	return p.mode
}

// Start запускает пул.
//
// Каждый воркер собирает свои зависимости через Factory; если хотя бы
// один не смог, пул не запускается. Счётчики режима по всем
// зарегистрированным провайдерам обнуляются.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.started = true
	p.startedAt = time.Now()
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	p.cancelFunc = cancel

	p.logger.Info("starting worker pool",
		"max_workers", p.maxWorkers,
		"poll_interval", p.pollInterval,
		"batch_size", p.batchSize,
	)

	pollerDeps, err := p.factory(ctx, RolePoller, fmt.Sprintf("%s-poller", p.mode))
	if err != nil {
		cancel()
		return fmt.Errorf("build poller: %w", err)
	}
	p.track(pollerDeps)

	if kinds := pollerDeps.Selector.Registry().Kinds(); len(kinds) > 0 {
		if err := pollerDeps.Governor.Reset(ctx, kinds...); err != nil {
			p.logger.Warn("failed to reset counters", "error", err)
		} else {
			p.logger.Info("counters reset", "providers", kinds)
		}
	}

	ready := make(chan error, p.maxWorkers)
	for i := 0; i < p.maxWorkers; i++ {
		workerID := fmt.Sprintf("%s-%d", p.mode, i)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			deps, err := p.factory(ctx, RoleWorker, workerID)
			if err != nil {
				ready <- fmt.Errorf("build worker %s: %w", workerID, err)
				return
			}
			p.track(deps)
			ready <- nil
			p.runWorker(ctx, workerID, deps)
		}()
	}

	var errs []error
	for i := 0; i < p.maxWorkers; i++ {
		if err := <-ready; err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		p.Stop()
		return errors.Join(errs...)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.pollLoop(ctx, pollerDeps)
	}()

	p.logger.Info("worker pool started")
	return nil
}

// Stop останавливает пул и ждёт воркеров.
// Звонки в процессе получают отмену контекста.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.logger.Info("stopping worker pool...")
	if p.cancelFunc != nil {
		p.cancelFunc()
	}
	p.wg.Wait()

	p.mu.Lock()
	deps := p.deps
	p.deps = nil
	p.mu.Unlock()
	for _, d := range deps {
		if err := d.close(); err != nil {
			p.logger.Warn("failed to close worker deps", "error", err)
		}
	}
	p.logger.Info("worker pool stopped")
}

// IsStopped проверяет, остановлен ли пул.
func (p *Pool) IsStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// Reconfigure применяет fn к зависимостям всех воркеров
// (перезагрузка окна рабочих часов, потолков и настроек).
func (p *Pool) Reconfigure(fn func(*Deps)) {
	p.mu.Lock()
	deps := append([]*Deps(nil), p.deps...)
	p.mu.Unlock()
	for _, d := range deps {
		fn(d)
	}
}

// Stats возвращает снимок состояния пула.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	outcomes := make(map[Outcome]int, len(p.outcomes))
	for k, v := range p.outcomes {
		outcomes[k] = v
	}
	return Stats{
		Mode:       p.mode,
		MaxWorkers: p.maxWorkers,
		Active:     len(p.active),
		Polls:      p.polls,
		Submitted:  p.submitted,
		Deferred:   p.deferred,
		Outcomes:   outcomes,
		StartedAt:  p.startedAt,
	}
}

func (p *Pool) track(d *Deps) {
	p.mu.Lock()
	p.deps = append(p.deps, d)
	p.mu.Unlock()
}

// runWorker выполняет tasks, пока не отменён ctx.
func (p *Pool) runWorker(ctx context.Context, workerID string, deps *Deps) {
	log := telemetry.WithWorkerID(p.logger, workerID)
	log.Debug("worker started")
	for {
		select {
		case <-ctx.Done():
			log.Debug("worker stopped")
			return
		case w := <-p.jobs:
			p.execute(ctx, log, workerID, deps, w)
		}
	}
}

// execute выполняет одну task и подтверждает запись очереди.
func (p *Pool) execute(ctx context.Context, log *slog.Logger, workerID string, deps *Deps, w work) {
	defer close(w.unit.done)
	w.unit.workerID = workerID

	gauge := telemetry.PoolBusy.WithLabelValues(p.mode.String())
	gauge.Inc()
	defer gauge.Dec()

	outcome := OutcomeError
	defer func() {
		if r := recover(); r != nil {
			log.Error("task execution panicked", "task_id", w.job.Message.TaskID, "panic", r)
		}
		w.unit.outcome = outcome
		w.unit.finishedAt = time.Now()

		// Повтор (если нужен) уже переотправлен явно, поэтому запись
		// подтверждается при любом исходе.
		ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if err := w.rec.Ack(ackCtx); err != nil {
			log.Warn("failed to ack record", "task_id", w.job.Message.TaskID, "error", err)
		}

		p.mu.Lock()
		p.outcomes[outcome]++
		p.mu.Unlock()
	}()

	outcome = deps.Executor.Execute(ctx, w.job)
}

// pollLoop — цикл опроса очереди.
func (p *Pool) pollLoop(ctx context.Context, deps *Deps) {
	lastSweep := time.Now()

	for {
		if ctx.Err() != nil {
			return
		}

		p.reclaim(ctx, deps.Locks)

		if p.sweepInterval > 0 && time.Since(lastSweep) >= p.sweepInterval {
			if _, err := deps.Deferrer.Sweep(ctx, time.Now()); err != nil && ctx.Err() == nil {
				p.logger.Error("in-loop sweep failed", "error", err)
			}
			lastSweep = time.Now()
		}

		active := p.activeCount()
		if active >= p.maxWorkers {
			p.logger.Debug("pool at capacity, backing off", "active", active, "max_workers", p.maxWorkers)
			sleepCtx(ctx, 2*p.pollInterval)
			continue
		}

		limit := min(p.maxWorkers-active, p.batchSize)
		records, err := deps.Poller.Poll(ctx, p.pollTimeout, limit)
		p.mu.Lock()
		p.polls++
		p.mu.Unlock()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, mq.ErrClosed) {
				return
			}
			p.logger.Error("poll failed", "error", err)
			sleepCtx(ctx, p.pollInterval)
			continue
		}

		backoff := false
		for _, rec := range records {
			if !p.submit(ctx, deps, rec) {
				backoff = true
			}
		}

		sleep := p.adaptiveSleep(active)
		if backoff {
			sleep = 2 * p.pollInterval
		}
		sleepCtx(ctx, sleep)
	}
}

// adaptiveSleep — пауза по загрузке: >80% — вдвое дольше, <30% — вдвое короче.
func (p *Pool) adaptiveSleep(active int) time.Duration {
	utilization := float64(active) / float64(p.maxWorkers)
	switch {
	case utilization > 0.8:
		return 2 * p.pollInterval
	case utilization < 0.3:
		return p.pollInterval / 2
	default:
		return p.pollInterval
	}
}

// submit передаёт запись воркеру. false — провайдер на пределе и
// task отложена на capacityRetryDelay.
func (p *Pool) submit(ctx context.Context, deps *Deps, rec *mq.Record) bool {
	job := JobFromRecord(rec)
	job.Mode = p.mode
	msg := job.Message

	if p.deferForCapacity(ctx, deps, rec, job) {
		return false
	}

	u := &unit{taskID: msg.TaskID, done: make(chan struct{})}
	p.mu.Lock()
	p.active = append(p.active, u)
	p.submitted++
	p.mu.Unlock()

	select {
	case p.jobs <- work{job: job, rec: rec, unit: u}:
	case <-ctx.Done():
		// Запись не подтверждена и будет доставлена повторно.
		close(u.done)
	}
	return true
}

// deferForCapacity откладывает task, если у её провайдера нет свободных слотов.
// Откладывается только task в pending: остальное решит CallExecutor.
func (p *Pool) deferForCapacity(ctx context.Context, deps *Deps, rec *mq.Record, job Job) bool {
	msg := job.Message
	kind, err := deps.Selector.Select(msg.Data, msg.ModelConfig)
	if err != nil || deps.Governor.HasCapacity(ctx, kind.String()) {
		return false
	}

	log := telemetry.WithProvider(telemetry.WithTaskID(p.logger, msg.TaskID), kind.String())

	won, err := deps.Tasks.UpdateStatusAtomic(ctx, msg.TaskID, domain.TaskStatusPending, domain.TaskStatusHold)
	if err != nil || !won {
		return false
	}

	readyAt := time.Now().Add(p.capacityRetryDelay)
	if err := deps.Deferrer.Defer(ctx, msg, p.mode, readyAt); err != nil {
		log.Error("capacity deferral failed, restoring pending", "error", err)
		if _, err := deps.Tasks.UpdateStatusAtomic(context.WithoutCancel(ctx), msg.TaskID, domain.TaskStatusHold, domain.TaskStatusPending); err != nil {
			log.Error("failed to restore pending status", "error", err)
		}
		return false
	}

	if err := rec.Ack(ctx); err != nil {
		log.Warn("failed to ack deferred record", "error", err)
	}
	telemetry.DeferredTasks.WithLabelValues("capacity").Inc()
	p.mu.Lock()
	p.deferred++
	p.mu.Unlock()
	log.Info("provider at capacity, task deferred", "ready_at", readyAt)
	return true
}

// reclaim освобождает слоты завершённых воркеров.
//
// Слот освобождается, только когда воркер слота больше не держит
// блокировку task: он мог завершиться, а блокировка ещё не удалена.
// Блокировка другого воркера (повтор той же task) слот не держит.
// Если блокировка держится дольше graceTimeout, слот освобождается
// с предупреждением (её снимет TTL).
func (p *Pool) reclaim(ctx context.Context, locks *lock.Manager) {
	p.mu.Lock()
	active := append([]*unit(nil), p.active...)
	p.mu.Unlock()

	retired := make(map[*unit]bool)
	for _, u := range active {
		select {
		case <-u.done:
		default:
			continue
		}

		if !u.outcome.ownsLock() {
			retired[u] = true
			continue
		}

		held, err := locks.HeldBy(ctx, u.taskID, u.workerID)
		switch {
		case err == nil && !held:
			retired[u] = true
		case time.Since(u.finishedAt) > p.graceTimeout:
			p.logger.Warn("lock not released within grace period, reclaiming slot",
				"task_id", u.taskID, "error", err)
			retired[u] = true
		default:
			p.logger.Debug("keeping slot until lock is released", "task_id", u.taskID)
		}
	}

	if len(retired) == 0 {
		return
	}

	p.mu.Lock()
	kept := p.active[:0]
	for _, u := range p.active {
		if !retired[u] {
			kept = append(kept, u)
		}
	}
	p.active = kept
	p.mu.Unlock()
	p.logger.Debug("slots reclaimed", "count", len(retired), "active", len(kept))
}

func (p *Pool) activeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// sleepCtx ждёт d или отмены ctx.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
