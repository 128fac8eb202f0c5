package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSpec — расписание Sweep по умолчанию.
const DefaultSweepSpec = "@every 1m"

// cronParser — парсер cron-выражений (5 полей и дескрипторы @every/@hourly).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	_, err := cronParser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}

// RunnerConfig — конфигурация Runner.
type RunnerConfig struct {
	// Spec — cron-выражение (по умолчанию DefaultSweepSpec).
	Spec string

	// Timeout — ограничение одного Sweep (по умолчанию 30s).
	Timeout time.Duration

	Logger *slog.Logger
}

// Runner запускает Sweep по расписанию.
// Следующий запуск пропускается, если предыдущий ещё не закончился.
type Runner struct {
	sched   *Scheduler
	cron    *cron.Cron
	spec    string
	timeout time.Duration
	logger  *slog.Logger

	once   sync.Once
	addErr error

	mu   sync.Mutex
	last SweepStats
	runs int
}

// NewRunner создаёт Runner.
func NewRunner(sched *Scheduler, cfg RunnerConfig) (*Runner, error) {
	if cfg.Spec == "" {
		cfg.Spec = DefaultSweepSpec
	}
	if err := ValidateCronExpr(cfg.Spec); err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Runner{
		sched: sched,
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		spec:    cfg.Spec,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}, nil
}

// Start регистрирует задание и запускает планировщик.
// После Stop может быть вызван снова: задание регистрируется один раз.
func (r *Runner) Start(ctx context.Context) error {
	r.once.Do(func() {
		_, r.addErr = r.cron.AddFunc(r.spec, func() { r.RunOnce(ctx) })
	})
	if r.addErr != nil {
		return fmt.Errorf("add sweep job: %w", r.addErr)
	}
	r.cron.Start()
	r.logger.Info("sweep runner started", "spec", r.spec)
	return nil
}

// Stop останавливает планировщик и ждёт завершения текущего Sweep.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("sweep runner stopped")
}

// RunOnce выполняет один Sweep.
func (r *Runner) RunOnce(ctx context.Context) SweepStats {
	if ctx.Err() != nil {
		return SweepStats{}
	}

	sweepCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	stats, err := r.sched.Sweep(sweepCtx, time.Now())
	if err != nil {
		r.logger.Error("sweep failed", "error", err)
	}

	r.mu.Lock()
	r.last = stats
	r.runs++
	r.mu.Unlock()
	return stats
}

// Last возвращает результат последнего Sweep и число запусков.
func (r *Runner) Last() (SweepStats, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.runs
}
