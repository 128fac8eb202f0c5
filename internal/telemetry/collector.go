package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/Callflow/internal/store"
)

// Значения по умолчанию MetricsCollector.
const (
	DefaultLatencyHistory = 1000
	DefaultLatencyTTL     = time.Hour
	DefaultSLANormal      = 5 * time.Second
	DefaultSLABulk        = 30 * time.Second
)

// CollectorConfig — настройки Collector.
type CollectorConfig struct {
	// SLA — порог задержки по режиму ("normal", "bulk").
	SLA map[string]time.Duration

	// MaxEntries — сколько последних задержек хранить на режим.
	MaxEntries int64

	// TTL — срок жизни списка задержек.
	TTL time.Duration

	Logger *slog.Logger
}

// LatencyStats — сводка задержек режима.
type LatencyStats struct {
	Count   int           `json:"count"`
	Average time.Duration `json:"average"`
	P95     time.Duration `json:"p95"`
}

// Collector — MetricsCollector: хранит историю задержек в ResourceStore
// и считает среднее и p95.
type Collector struct {
	store      store.Store
	sla        map[string]time.Duration
	maxEntries int64
	ttl        time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewCollector создаёт Collector.
func NewCollector(st store.Store, cfg CollectorConfig) *Collector {
	sla := map[string]time.Duration{
		"normal": DefaultSLANormal,
		"bulk":   DefaultSLABulk,
	}
	for mode, d := range cfg.SLA {
		if d > 0 {
			sla[mode] = d
		}
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultLatencyHistory
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultLatencyTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Collector{
		store:      st,
		sla:        sla,
		maxEntries: cfg.MaxEntries,
		ttl:        cfg.TTL,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

// SLA возвращает порог задержки режима.
func (c *Collector) SLA(mode string) time.Duration {
	return c.sla[mode]
}

// RecordLatency сохраняет задержку task. Превышение SLA логируется и
// считается в SLABreaches.
func (c *Collector) RecordLatency(ctx context.Context, mode, taskID string, latency time.Duration) error {
	TaskLatency.WithLabelValues(mode).Observe(latency.Seconds())

	if sla := c.sla[mode]; sla > 0 && latency > sla {
		SLABreaches.WithLabelValues(mode).Inc()
		c.logger.Warn("task latency exceeded sla",
			"mode", mode,
			"task_id", taskID,
			"latency_ms", latency.Milliseconds(),
			"sla_ms", sla.Milliseconds(),
		)
	}

	entry := fmt.Sprintf("%s:%d:%d", taskID, latency.Milliseconds(), c.now().Unix())
	if err := c.store.PushCapped(ctx, store.LatencyKey(mode), entry, c.maxEntries, c.ttl); err != nil {
		return fmt.Errorf("record latency: %w", err)
	}
	return nil
}

// Average возвращает среднюю задержку режима. Пустая история — 0.
func (c *Collector) Average(ctx context.Context, mode string) (time.Duration, error) {
	s, err := c.Stats(ctx, mode)
	return s.Average, err
}

// P95 возвращает 95-й перцентиль задержки режима.
func (c *Collector) P95(ctx context.Context, mode string) (time.Duration, error) {
	s, err := c.Stats(ctx, mode)
	return s.P95, err
}

// Stats возвращает сводку задержек режима.
func (c *Collector) Stats(ctx context.Context, mode string) (LatencyStats, error) {
	latencies, err := c.latencies(ctx, mode)
	if err != nil {
		return LatencyStats{}, err
	}
	n := len(latencies)
	if n == 0 {
		return LatencyStats{}, nil
	}

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	idx := min(int(float64(n)*0.95), n-1)

	return LatencyStats{
		Count:   n,
		Average: sum / time.Duration(n),
		P95:     latencies[idx],
	}, nil
}

func (c *Collector) latencies(ctx context.Context, mode string) ([]time.Duration, error) {
	entries, err := c.store.LRange(ctx, store.LatencyKey(mode), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("read latencies: %w", err)
	}

	out := make([]time.Duration, 0, len(entries))
	for _, e := range entries {
		if l, ok := parseLatencyEntry(e); ok {
			out = append(out, l)
		}
	}
	return out, nil
}

// parseLatencyEntry разбирает "{task_id}:{latency_ms}:{unix}".
// task_id может содержать ':', поэтому задержка берётся с конца.
func parseLatencyEntry(e string) (time.Duration, bool) {
	parts := strings.Split(e, ":")
	if len(parts) < 3 {
		return 0, false
	}
	ms, err := strconv.ParseInt(parts[len(parts)-2], 10, 64)
	if err != nil || ms < 0 {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}
