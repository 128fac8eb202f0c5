package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shaiso/Callflow/internal/domain"
	"github.com/shaiso/Callflow/internal/store"
)

// Значения по умолчанию.
const (
	// DefaultDeferDelay — задержка, если время готовности не указано.
	DefaultDeferDelay = time.Hour

	// MinPayloadTTL — минимальный срок жизни payload отложенной task.
	MinPayloadTTL = 24 * time.Hour

	// payloadTTLMargin — запас сверх времени ожидания.
	payloadTTLMargin = time.Hour

	// summaryLimit — длина сводки данных, которые не удалось сериализовать.
	summaryLimit = 1000
)

// TaskUpdater — запись статуса task.
type TaskUpdater interface {
	Update(ctx context.Context, id string, u domain.TaskUpdate) error
}

// Pusher — отправка сообщения в очередь.
type Pusher interface {
	Push(ctx context.Context, topic string, msg domain.TaskMessage) error
}

// Config — конфигурация Scheduler.
type Config struct {
	Store  store.Store
	Tasks  TaskUpdater
	Queue  Pusher
	Logger *slog.Logger

	// BatchSize — сколько записей обрабатывать за один Sweep (0 — все).
	BatchSize int64
}

// Scheduler откладывает tasks в sorted set scheduled_tasks и
// возвращает их в очередь, когда наступает время готовности.
type Scheduler struct {
	store     store.Store
	tasks     TaskUpdater
	queue     Pusher
	logger    *slog.Logger
	batchSize int64
	now       func() time.Time
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		store:     cfg.Store,
		tasks:     cfg.Tasks,
		queue:     cfg.Queue,
		logger:    cfg.Logger,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
}

// entry — payload отложенной task.
type entry struct {
	Mode    domain.Mode        `json:"mode"`
	ReadyAt int64              `json:"ready_at"`
	Message domain.TaskMessage `json:"message"`
}

// Entry — отложенная task (для admin API).
type Entry struct {
	TaskID  string    `json:"task_id"`
	ReadyAt time.Time `json:"ready_at"`
}

// SweepStats — итог одного Sweep.
type SweepStats struct {
	Due      int `json:"due"`
	Requeued int `json:"requeued"`
	Stale    int `json:"stale"`
	Corrupt  int `json:"corrupt"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// Defer кладёт task в sorted set до readyAt и переводит её в hold.
// Нулевой readyAt — через DefaultDeferDelay.
//
// Статус меняется последним: task в hold всегда имеет запись в sorted set.
// Если запись или статус не удалось сохранить, уже записанное удаляется.
// Статус пишется безусловно; вызывающий сам проверяет, что task можно
// откладывать (CAS pending → hold или уже выигранный pending → processing).
func (s *Scheduler) Defer(ctx context.Context, msg domain.TaskMessage, mode domain.Mode, readyAt time.Time) error {
	now := s.now()
	if readyAt.IsZero() {
		readyAt = now.Add(DefaultDeferDelay)
	}
	// Округление вверх до миллисекунды: score не должен оказаться раньше readyAt.
	readyAt = readyAt.Add(time.Millisecond - 1).Truncate(time.Millisecond)

	payload, err := encodeEntry(entry{Mode: mode, ReadyAt: readyAt.Unix(), Message: msg})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	ttl := max(MinPayloadTTL, readyAt.Sub(now)+payloadTTLMargin)
	if err := s.store.Set(ctx, store.ScheduledPayloadKey(msg.TaskID), string(payload), ttl); err != nil {
		return fmt.Errorf("store payload: %w", err)
	}
	if err := s.store.ZAdd(ctx, store.ScheduledSetKey, msg.TaskID, score(readyAt)); err != nil {
		s.discard(ctx, msg.TaskID)
		return fmt.Errorf("schedule task: %w", err)
	}
	if err := s.tasks.Update(ctx, msg.TaskID, domain.StatusOnly(domain.TaskStatusHold).WithScheduledAt(readyAt.UTC())); err != nil {
		s.discard(ctx, msg.TaskID)
		return fmt.Errorf("set task on hold: %w", err)
	}

	s.logger.Info("task deferred",
		"task_id", msg.TaskID,
		"mode", mode,
		"ready_at", readyAt.UTC(),
	)
	return nil
}

// discard удаляет запись и payload несостоявшегося Defer.
func (s *Scheduler) discard(ctx context.Context, taskID string) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.store.ZRem(ctx, store.ScheduledSetKey, taskID); err != nil {
		s.logger.Warn("failed to remove scheduled entry", "task_id", taskID, "error", err)
	}
	if err := s.store.Del(ctx, store.ScheduledPayloadKey(taskID)); err != nil {
		s.logger.Warn("failed to delete scheduled payload", "task_id", taskID, "error", err)
	}
}

// Sweep возвращает в очередь все tasks с временем готовности <= now.
//
// Запись захватывается через ZREM: продолжает только тот, кто её удалил,
// поэтому несколько параллельных Sweep не отправят task дважды.
// Запись без payload считается устаревшей и отбрасывается.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) (SweepStats, error) {
	var stats SweepStats

	due, err := s.store.ZRangeByScore(ctx, store.ScheduledSetKey, math.Inf(-1), score(now), s.batchSize)
	if err != nil {
		return stats, fmt.Errorf("list due tasks: %w", err)
	}
	stats.Due = len(due)

	for _, m := range due {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		s.sweepOne(ctx, m, &stats)
	}

	if stats.Due > 0 {
		s.logger.Info("scheduled tasks swept",
			"due", stats.Due,
			"requeued", stats.Requeued,
			"stale", stats.Stale,
			"corrupt", stats.Corrupt,
			"failed", stats.Failed,
		)
	}
	return stats, nil
}

func (s *Scheduler) sweepOne(ctx context.Context, m store.ScoredMember, stats *SweepStats) {
	taskID := m.Member
	log := s.logger.With("task_id", taskID)

	claimed, err := s.store.ZRem(ctx, store.ScheduledSetKey, taskID)
	if err != nil {
		log.Error("failed to claim scheduled task", "error", err)
		stats.Failed++
		return
	}
	if claimed == 0 {
		stats.Skipped++
		return
	}

	payloadKey := store.ScheduledPayloadKey(taskID)
	raw, ok, err := s.store.Get(ctx, payloadKey)
	if err != nil {
		log.Error("failed to read scheduled payload", "error", err)
		s.restore(ctx, m)
		stats.Failed++
		return
	}
	if !ok {
		log.Warn("scheduled payload missing, dropping stale entry")
		stats.Stale++
		return
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil || e.Message.TaskID == "" {
		log.Error("corrupt scheduled payload, dropping", "error", err)
		_ = s.store.Del(ctx, payloadKey)
		stats.Corrupt++
		return
	}
	if e.Mode == "" {
		e.Mode = e.Message.Mode()
	}

	// Статус pending выставляется до отправки: иначе воркер может получить
	// сообщение раньше и проиграть CAS pending → processing.
	if err := s.tasks.Update(ctx, taskID, pendingUpdate()); err != nil {
		log.Error("failed to reset task to pending", "error", err)
		s.restore(ctx, m)
		stats.Failed++
		return
	}

	if err := s.queue.Push(ctx, e.Mode.Topic(), e.Message); err != nil {
		log.Error("failed to requeue scheduled task", "error", err)
		readyAt := fromScore(m.Score)
		if err := s.tasks.Update(ctx, taskID, domain.StatusOnly(domain.TaskStatusHold).WithScheduledAt(readyAt)); err != nil {
			log.Error("failed to put task back on hold", "error", err)
		}
		s.restore(ctx, m)
		stats.Failed++
		return
	}

	if err := s.store.Del(ctx, payloadKey); err != nil {
		log.Warn("failed to delete scheduled payload", "error", err)
	}
	stats.Requeued++
}

// restore возвращает захваченную запись в sorted set.
func (s *Scheduler) restore(ctx context.Context, m store.ScoredMember) {
	if err := s.store.ZAdd(ctx, store.ScheduledSetKey, m.Member, m.Score); err != nil {
		s.logger.Error("failed to restore scheduled entry", "task_id", m.Member, "error", err)
	}
}

// Pending возвращает отложенные tasks по возрастанию времени готовности.
func (s *Scheduler) Pending(ctx context.Context, limit int64) ([]Entry, error) {
	members, err := s.store.ZRangeByScore(ctx, store.ScheduledSetKey, math.Inf(-1), math.Inf(1), limit)
	if err != nil {
		return nil, fmt.Errorf("list scheduled tasks: %w", err)
	}

	entries := make([]Entry, 0, len(members))
	for _, m := range members {
		entries = append(entries, Entry{
			TaskID:  m.Member,
			ReadyAt: fromScore(m.Score),
		})
	}
	return entries, nil
}

// Count возвращает число отложенных tasks.
func (s *Scheduler) Count(ctx context.Context) (int64, error) {
	return s.store.ZCard(ctx, store.ScheduledSetKey)
}

// score — время в секундах Unix с точностью до миллисекунд.
func score(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000
}

func fromScore(f float64) time.Time {
	return time.UnixMilli(int64(math.Round(f * 1000))).UTC()
}

func pendingUpdate() domain.TaskUpdate {
	u := domain.StatusOnly(domain.TaskStatusPending)
	u.ClearScheduledAt = true
	return u
}

// encodeEntry сериализует payload. Если данные звонка не сериализуются,
// они заменяются сводкой, чтобы task не потерялась.
func encodeEntry(e entry) ([]byte, error) {
	b, err := json.Marshal(e)
	if err == nil {
		return b, nil
	}

	summary := fmt.Sprintf("%v", e.Message.Data)
	e.Message.Data = map[string]any{
		"error":          "Data sanitization required",
		"original_error": err.Error(),
		"data_summary":   domain.Truncate(summary, summaryLimit),
	}
	e.Message.ModelConfig = nil
	return json.Marshal(e)
}
