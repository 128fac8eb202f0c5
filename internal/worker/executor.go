package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shaiso/Callflow/internal/domain"
	"github.com/shaiso/Callflow/internal/governor"
	"github.com/shaiso/Callflow/internal/lock"
	"github.com/shaiso/Callflow/internal/mq"
	"github.com/shaiso/Callflow/internal/provider"
	"github.com/shaiso/Callflow/internal/repo"
	"github.com/shaiso/Callflow/internal/scheduler"
	"github.com/shaiso/Callflow/internal/telemetry"
)

// cleanupTimeout — ограничение на освобождение ресурсов после task.
const cleanupTimeout = 10 * time.Second

// Outcome — итог обработки одной записи очереди.
type Outcome string

const (
	// OutcomeCompleted — звонок завершён успешно.
	OutcomeCompleted Outcome = "completed"

	// OutcomeInProgress — провайдер принял звонок, финал придёт асинхронно.
	OutcomeInProgress Outcome = "in_progress"

	// OutcomeRetried — RetryNow: task возвращена в pending и переотправлена.
	OutcomeRetried Outcome = "retried"

	// OutcomeFailed — task переведена в failed (Hold или Fail).
	OutcomeFailed Outcome = "failed"

	// OutcomeDuplicate — task уже обработана (тихий пропуск).
	OutcomeDuplicate Outcome = "duplicate"

	// OutcomeLockContended — task выполняет другой воркер (тихий пропуск).
	OutcomeLockContended Outcome = "lock_contended"

	// OutcomeDeferred — вне рабочих часов получателя, task отложена.
	OutcomeDeferred Outcome = "deferred"

	// OutcomeRaced — CAS pending → processing проигран.
	OutcomeRaced Outcome = "raced"

	// OutcomeRescheduled — провайдер на пределе, task отложена.
	OutcomeRescheduled Outcome = "rescheduled"

	// OutcomeError — инфраструктурная ошибка; task остаётся как есть
	// до восстановления по TTL блокировки.
	OutcomeError Outcome = "error"
)

// ownsLock — выполнение дошло до захвата блокировки.
func (o Outcome) ownsLock() bool {
	return o != OutcomeDuplicate && o != OutcomeLockContended
}

// Job — task, полученная из очереди.
type Job struct {
	Message    domain.TaskMessage
	Topic      string
	Mode       domain.Mode
	ReceivedAt time.Time
}

// JobFromRecord собирает Job из записи очереди.
func JobFromRecord(rec *mq.Record) Job {
	return Job{
		Message:    rec.Message,
		Topic:      rec.Topic,
		Mode:       rec.Mode(),
		ReceivedAt: rec.ReceivedAt,
	}
}

// Settings — параметры, которые меняются при перезагрузке конфигурации.
type Settings struct {
	MaxRetries           int
	OutgoingCallsEnabled bool
	BusinessHoursEnabled bool
	CapacityRetryDelay   time.Duration
}

// ExecutorConfig — зависимости CallExecutor.
type ExecutorConfig struct {
	Tasks    repo.TaskStore
	Locks    *lock.Manager
	Governor *governor.Governor
	Deferrer *scheduler.Scheduler
	Selector *provider.Selector
	Queue    mq.Pusher

	// Window — окно рабочих часов (nil — проверка выключена).
	Window *scheduler.Window

	// Metrics — история задержек (nil — не записывается).
	Metrics *telemetry.Collector

	// Tracer — tracer (nil — no-op).
	Tracer trace.Tracer

	Settings Settings
	Logger   *slog.Logger
}

// CallExecutor выполняет одну task от проверки дубликата до записи результата.
//
// После захвата блокировки освобождение ресурсов гарантировано:
// блокировка снимается, счётчик провайдера уменьшается (если был увеличен),
// задержка записывается, span закрывается.
type CallExecutor struct {
	tasks    repo.TaskStore
	locks    *lock.Manager
	governor *governor.Governor
	deferrer *scheduler.Scheduler
	selector *provider.Selector
	queue    mq.Pusher
	window   *scheduler.Window
	metrics  *telemetry.Collector
	tracer   trace.Tracer
	logger   *slog.Logger
	settings atomic.Pointer[Settings]
	now      func() time.Time
}

// NewCallExecutor создаёт CallExecutor.
func NewCallExecutor(cfg ExecutorConfig) *CallExecutor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = telemetry.NoopTracing().Tracer
	}

	e := &CallExecutor{
		tasks:    cfg.Tasks,
		locks:    cfg.Locks,
		governor: cfg.Governor,
		deferrer: cfg.Deferrer,
		selector: cfg.Selector,
		queue:    cfg.Queue,
		window:   cfg.Window,
		metrics:  cfg.Metrics,
		tracer:   cfg.Tracer,
		logger:   cfg.Logger,
		now:      time.Now,
	}
	e.UpdateSettings(cfg.Settings)
	return e
}

// UpdateSettings заменяет параметры выполнения.
func (e *CallExecutor) UpdateSettings(s Settings) {
	if s.MaxRetries <= 0 {
		s.MaxRetries = 3
	}
	if s.CapacityRetryDelay <= 0 {
		s.CapacityRetryDelay = 5 * time.Minute
	}
	e.settings.Store(&s)
}

// Settings возвращает текущие параметры выполнения.
func (e *CallExecutor) Settings() Settings {
	return *e.settings.Load()
}

// Governor возвращает счётчик допуска режима.
func (e *CallExecutor) Governor() *governor.Governor {
	return e.governor
}

// Window возвращает окно рабочих часов (может быть nil).
func (e *CallExecutor) Window() *scheduler.Window {
	return e.window
}

// Execute выполняет task.
//
// Порядок:
//  1. проверка дубликата → OutcomeDuplicate
//  2. захват блокировки → OutcomeLockContended
//  3. дальше освобождение ресурсов гарантировано (defer)
//  4. рабочие часы получателя → OutcomeDeferred
//  5. CAS pending → processing → OutcomeRaced
//  6. допуск по счётчику провайдера → OutcomeRescheduled
//  7. лимит попыток → failed
//  8. выключатель исходящих звонков → failed
//  9. звонок через выбранного провайдера
//  10. запись результата и решение RetryClassifier
func (e *CallExecutor) Execute(ctx context.Context, job Job) (outcome Outcome) {
	msg := job.Message
	mode := job.Mode
	if mode == "" {
		mode = domain.ModeForTopic(job.Topic)
	}
	log := telemetry.WithMode(telemetry.WithRunID(telemetry.WithTaskID(e.logger, msg.TaskID), msg.RunID), mode.String())
	start := e.now()

	defer func() {
		telemetry.TasksTotal.WithLabelValues(mode.String(), string(outcome)).Inc()
	}()

	// 1. Дубликат
	if done, reason := e.locks.IsAlreadyProcessed(ctx, msg.TaskID); done {
		log.Info("duplicate execution prevented", "reason", reason)
		return OutcomeDuplicate
	}

	// 2. Блокировка
	acquired, err := e.locks.Acquire(ctx, msg.TaskID)
	if err != nil {
		log.Error("lock acquire failed", "error", err)
		return OutcomeError
	}
	if !acquired {
		log.Info("task locked by another worker")
		return OutcomeLockContended
	}

	// 3. Гарантированное освобождение
	ctx, span := telemetry.StartSpan(ctx, e.tracer, "callflow.task.execute",
		telemetry.AttrTaskID.String(msg.TaskID),
		telemetry.AttrRunID.String(msg.RunID),
		telemetry.AttrMode.String(mode.String()),
		telemetry.AttrAttempt.Int(msg.RetryAttempt),
	)
	var (
		kind        provider.Kind
		incremented bool
	)
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()

		if incremented {
			if _, err := e.governor.Decrement(cleanupCtx, kind.String()); err != nil {
				log.Error("counter decrement failed", "provider", kind, "error", err)
			}
		}
		if err := e.locks.Release(cleanupCtx, msg.TaskID); err != nil {
			log.Error("lock release failed", "error", err)
		}
		latency := e.now().Sub(start)
		if e.metrics != nil {
			if err := e.metrics.RecordLatency(cleanupCtx, mode.String(), msg.TaskID, latency); err != nil {
				log.Warn("latency record failed", "error", err)
			}
		}

		span.SetAttributes(telemetry.AttrOutcome.String(string(outcome)))
		if outcome == OutcomeError {
			span.SetStatus(codes.Error, "infrastructure error")
		}
		span.End()
		log.Debug("task finished", "outcome", outcome, "latency_ms", latency.Milliseconds())
	}()

	settings := e.Settings()

	// 4. Рабочие часы
	if settings.BusinessHoursEnabled && e.window != nil {
		if number := msg.ContactNumber(); number != "" {
			allowed, next, err := e.window.Check(number, e.now())
			switch {
			case err != nil:
				// Невалидный номер отбракует провайдер.
				log.Warn("business hours check failed", "error", err)
			case !allowed:
				return e.deferOutsideHours(ctx, log, msg, mode, next)
			}
		}
	}

	// 5. CAS
	won, err := e.tasks.UpdateStatusAtomic(ctx, msg.TaskID, domain.TaskStatusPending, domain.TaskStatusProcessing)
	if err != nil {
		log.Error("status transition failed", "error", err)
		return OutcomeError
	}
	if !won {
		log.Info("duplicate execution prevented", "reason", "status_cas_lost")
		return OutcomeRaced
	}

	persistCtx := context.WithoutCancel(ctx)

	kind, err = e.selector.Select(msg.Data, msg.ModelConfig)
	if err != nil {
		log.Warn("provider selection failed", "error", err)
		return e.fail(persistCtx, log, msg, err.Error(), nil)
	}
	log = telemetry.WithProvider(log, kind.String())
	span.SetAttributes(telemetry.AttrProvider.String(kind.String()))

	// 6. Допуск
	adm, err := e.governor.Admit(ctx, kind.String())
	if err != nil {
		log.Error("admission failed", "error", err)
		return OutcomeError
	}
	if !adm.Admitted {
		readyAt := e.now().Add(settings.CapacityRetryDelay)
		if err := e.deferrer.Defer(persistCtx, msg, mode, readyAt); err != nil {
			log.Error("capacity deferral failed", "error", err)
			return OutcomeError
		}
		telemetry.DeferredTasks.WithLabelValues("capacity").Inc()
		log.Info("provider at capacity, task rescheduled",
			"value", adm.Value, "ceiling", adm.Ceiling, "ready_at", readyAt)
		return OutcomeRescheduled
	}
	incremented = true

	// 7. Лимит попыток
	if msg.RetryAttempt >= settings.MaxRetries {
		log.Warn("task exceeded max retries", "retry_attempt", msg.RetryAttempt)
		return e.fail(persistCtx, log, msg, fmt.Sprintf("Task exceeded max retries (%d)", msg.RetryAttempt), nil)
	}

	// 8. Выключатель
	var (
		result  *domain.CallResult
		callErr error
	)
	if !settings.OutgoingCallsEnabled {
		log.Warn("outgoing calls are disabled, failing task")
		result = domain.FailedResult(msg.ContactNumber(), msgCallsDisabled)
	} else {
		// 9. Звонок
		log.Info("executing call", "retry_attempt", msg.RetryAttempt, "counter", adm.Value)
		result, callErr = e.call(ctx, kind, msg, log)
	}

	// 10. Результат
	if callErr != nil {
		span.RecordError(callErr)
		telemetry.ProviderCalls.WithLabelValues(kind.String(), "error").Inc()
		if errors.Is(callErr, context.Canceled) {
			log.Warn("call interrupted by shutdown", "error", callErr)
		} else {
			log.Error("call execution failed", "error", callErr)
		}
		return e.handleFailure(persistCtx, log, job, kind, "Exception during processing: "+callErr.Error(), nil)
	}
	telemetry.ProviderCalls.WithLabelValues(kind.String(), string(result.Status)).Inc()
	return e.handleResult(persistCtx, log, job, kind, result)
}

// deferOutsideHours откладывает task до начала рабочих часов.
// Откладывается только task в pending: повторная доставка task в другом
// статусе (failed, in_progress) не должна вернуть её в очередь.
func (e *CallExecutor) deferOutsideHours(ctx context.Context, log *slog.Logger, msg domain.TaskMessage, mode domain.Mode, readyAt time.Time) Outcome {
	won, err := e.tasks.UpdateStatusAtomic(ctx, msg.TaskID, domain.TaskStatusPending, domain.TaskStatusHold)
	if err != nil {
		log.Error("status transition failed", "error", err)
		return OutcomeError
	}
	if !won {
		log.Info("duplicate execution prevented", "reason", "status_cas_lost")
		return OutcomeRaced
	}

	if err := e.deferrer.Defer(ctx, msg, mode, readyAt); err != nil {
		log.Error("business hours deferral failed, restoring pending", "error", err)
		if _, err := e.tasks.UpdateStatusAtomic(context.WithoutCancel(ctx), msg.TaskID, domain.TaskStatusHold, domain.TaskStatusPending); err != nil {
			log.Error("failed to restore pending status", "error", err)
		}
		return OutcomeError
	}
	telemetry.DeferredTasks.WithLabelValues("business_hours").Inc()
	log.Info("outside business hours, task deferred", "ready_at", readyAt)
	return OutcomeDeferred
}

// call выполняет звонок через провайдера. Паника провайдера превращается в ошибку.
func (e *CallExecutor) call(ctx context.Context, kind provider.Kind, msg domain.TaskMessage, log *slog.Logger) (result *domain.CallResult, err error) {
	p, err := e.selector.Registry().Get(kind)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartClientSpan(ctx, e.tracer, "callflow.provider.call",
		telemetry.AttrProvider.String(kind.String()),
		telemetry.AttrTaskID.String(msg.TaskID),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			log.Error("provider panic recovered", "panic", r)
			result, err = nil, fmt.Errorf("%w: %v", ErrProviderPanic, r)
		}
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	result, err = p.ExecuteCall(ctx, &provider.CallRequest{
		AgentID:      msg.AgentID,
		TaskID:       msg.TaskID,
		Data:         msg.Data,
		Instructions: msg.Instructions,
		ModelConfig:  msg.ModelConfig,
		Callback: func(_ context.Context, taskID, event string) {
			log.Debug("call event", "event", event)
		},
	})
	if err == nil && result == nil {
		err = ErrEmptyResult
	}
	return result, err
}
