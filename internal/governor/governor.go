// Package governor ограничивает число одновременных звонков на провайдера.
//
// Счётчик живёт в ResourceStore под ключом {mode}_{provider}_call_workers
// и разделяется всеми воркерами всех процессов. Normal и bulk считаются
// раздельно. Гонка между Increment и проверкой потолка допускается и
// исправляется немедленным Decrement.
package governor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/shaiso/Callflow/internal/domain"
	"github.com/shaiso/Callflow/internal/store"
)

// DefaultCounterTTL — срок жизни счётчика.
const DefaultCounterTTL = 3600 * time.Second

// Config — параметры Governor.
type Config struct {
	// Mode — класс приоритета, чьи счётчики ведёт Governor.
	Mode domain.Mode

	// DefaultCeiling — потолок для провайдеров без собственного лимита
	// (обычно max_workers режима).
	DefaultCeiling int

	// Ceilings — потолки по провайдерам.
	Ceilings map[string]int

	// CounterTTL — срок жизни счётчика.
	CounterTTL time.Duration

	Logger *slog.Logger
}

// Admission — результат попытки допуска.
type Admission struct {
	// Admitted — звонок допущен; вызывающий обязан вызвать Decrement.
	Admitted bool

	// Value — значение счётчика после операции.
	Value int64

	// Ceiling — потолок, с которым сравнивалось значение.
	Ceiling int
}

// Governor — счётчик допуска по провайдерам одного режима.
type Governor struct {
	store  store.Store
	mode   domain.Mode
	ttl    time.Duration
	logger *slog.Logger

	mu             sync.RWMutex
	defaultCeiling int
	ceilings       map[string]int
}

// New создаёт Governor.
func New(st store.Store, cfg Config) *Governor {
	if cfg.Mode == "" {
		cfg.Mode = domain.ModeNormal
	}
	if cfg.CounterTTL == 0 {
		cfg.CounterTTL = DefaultCounterTTL
	}
	if cfg.DefaultCeiling <= 0 {
		cfg.DefaultCeiling = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	g := &Governor{
		store:  st,
		mode:   cfg.Mode,
		ttl:    cfg.CounterTTL,
		logger: cfg.Logger,
	}
	g.SetCeilings(cfg.DefaultCeiling, cfg.Ceilings)
	return g
}

// Mode возвращает режим Governor.
func (g *Governor) Mode() domain.Mode {
	return g.mode
}

// SetCeilings заменяет потолки (используется при перезагрузке конфигурации).
func (g *Governor) SetCeilings(defaultCeiling int, ceilings map[string]int) {
	cp := make(map[string]int, len(ceilings))
	for k, v := range ceilings {
		cp[k] = v
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if defaultCeiling > 0 {
		g.defaultCeiling = defaultCeiling
	}
	g.ceilings = cp
}

// Ceiling возвращает потолок провайдера.
func (g *Governor) Ceiling(provider string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if c, ok := g.ceilings[provider]; ok && c > 0 {
		return c
	}
	return g.defaultCeiling
}

func (g *Governor) key(provider string) string {
	return store.CounterKey(g.mode.String(), provider)
}

// Increment атомарно увеличивает счётчик и обновляет TTL.
func (g *Governor) Increment(ctx context.Context, provider string) (int64, error) {
	v, err := g.store.IncrWithTTL(ctx, g.key(provider), g.ttl)
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", provider, err)
	}
	return v, nil
}

// Decrement атомарно уменьшает счётчик, не опуская его ниже нуля.
func (g *Governor) Decrement(ctx context.Context, provider string) (int64, error) {
	v, err := g.store.DecrClamp(ctx, g.key(provider))
	if err != nil {
		return 0, fmt.Errorf("decrement %s: %w", provider, err)
	}
	return v, nil
}

// Current возвращает текущее значение счётчика.
func (g *Governor) Current(ctx context.Context, provider string) (int64, error) {
	raw, ok, err := g.store.Get(ctx, g.key(provider))
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", provider, err)
	}
	if !ok {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse counter %s: %w", provider, err)
	}
	return v, nil
}

// Admit увеличивает счётчик и проверяет потолок. Если потолок превышен,
// счётчик сразу возвращается назад и Admitted = false.
//
// При Admitted = true вызывающий обязан вызвать Decrement ровно один раз.
func (g *Governor) Admit(ctx context.Context, provider string) (Admission, error) {
	ceiling := g.Ceiling(provider)

	v, err := g.Increment(ctx, provider)
	if err != nil {
		return Admission{Ceiling: ceiling}, err
	}
	if v <= int64(ceiling) {
		return Admission{Admitted: true, Value: v, Ceiling: ceiling}, nil
	}

	after, err := g.Decrement(ctx, provider)
	if err != nil {
		// Счётчик завышен на 1 до истечения TTL.
		g.logger.Error("rollback of over-ceiling increment failed",
			"mode", g.mode, "provider", provider, "error", err)
		return Admission{Value: v, Ceiling: ceiling}, err
	}
	g.logger.Info("provider at capacity",
		"mode", g.mode, "provider", provider, "value", v, "ceiling", ceiling)
	return Admission{Value: after, Ceiling: ceiling}, nil
}

// HasCapacity — быстрая проверка без изменения счётчика.
// Ошибка чтения трактуется как наличие ёмкости: окончательно решает Admit.
func (g *Governor) HasCapacity(ctx context.Context, provider string) bool {
	v, err := g.Current(ctx, provider)
	if err != nil {
		g.logger.Warn("capacity pre-check failed", "mode", g.mode, "provider", provider, "error", err)
		return true
	}
	return v < int64(g.Ceiling(provider))
}

// Reset обнуляет счётчики провайдеров (при старте воркеров режима).
func (g *Governor) Reset(ctx context.Context, providers ...string) error {
	for _, p := range providers {
		if err := g.store.Set(ctx, g.key(p), "0", g.ttl); err != nil {
			return fmt.Errorf("reset %s: %w", p, err)
		}
	}
	return nil
}
