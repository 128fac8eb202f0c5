package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/Callflow/internal/domain"
	"github.com/shaiso/Callflow/internal/governor"
	"github.com/shaiso/Callflow/internal/repo"
)

const (
	defaultScheduledLimit = 50
	maxScheduledLimit     = 1000
)

// Health проверяет доступность ResourceStore.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			h.logger.Warn("health check failed", "error", err)
			Unavailable(w, "resource store unavailable")
			return
		}
	}
	Success(w, map[string]string{"status": "ok"})
}

// Stats возвращает счётчики провайдеров, задержки по режимам и число
// отложенных tasks.
// GET /api/v1/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := StatsResponse{Modes: []ModeStats{}}

	if inspector, ok := h.tasks.(repo.Inspector); ok {
		counts, err := inspector.CountByStatus(ctx)
		if HandleRepoError(w, h.logger, err, "") {
			return
		}
		resp.Tasks = counts
	}

	for _, mode := range domain.Modes() {
		g, ok := h.governors[mode]
		if !ok {
			continue
		}
		ms := ModeStats{
			Mode:     mode,
			Counters: make(map[string]int64, len(h.providers)),
			Ceilings: make(map[string]int, len(h.providers)),
		}
		for _, p := range h.providers {
			v, err := g.Current(ctx, p)
			if err != nil {
				InternalError(w, h.logger, err)
				return
			}
			ms.Counters[p] = v
			ms.Ceilings[p] = g.Ceiling(p)
		}
		if h.collector != nil {
			stats, err := h.collector.Stats(ctx, mode.String())
			if err != nil {
				InternalError(w, h.logger, err)
				return
			}
			ms.Latency = stats
			ms.SLA = h.collector.SLA(mode.String())
		}
		resp.Modes = append(resp.Modes, ms)
	}

	if h.deferrer != nil {
		n, err := h.deferrer.Count(ctx)
		if err != nil {
			InternalError(w, h.logger, err)
			return
		}
		resp.Scheduled = n
	}

	Success(w, resp)
}

// ListScheduled возвращает отложенные tasks по возрастанию времени готовности.
// GET /api/v1/scheduled?limit=...
func (h *Handler) ListScheduled(w http.ResponseWriter, r *http.Request) {
	if h.deferrer == nil {
		NotSupported(w, "scheduler is not configured")
		return
	}

	limit := int64(defaultScheduledLimit)
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		limit = min(n, maxScheduledLimit)
	}

	entries, err := h.deferrer.Pending(r.Context(), limit)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	List(w, entries, len(entries))
}

// Sweep возвращает в очередь созревшие отложенные tasks.
// POST /api/v1/scheduled/sweep
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	if h.deferrer == nil {
		NotSupported(w, "scheduler is not configured")
		return
	}

	stats, err := h.deferrer.Sweep(r.Context(), time.Now())
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	remaining, err := h.deferrer.Count(r.Context())
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("manual sweep finished", "requeued", stats.Requeued, "remaining", remaining)
	Success(w, SweepResponse{SweepStats: stats, Remaining: remaining})
}

// ResetCounters обнуляет счётчики ConcurrencyGovernor.
// POST /api/v1/counters/reset
func (h *Handler) ResetCounters(w http.ResponseWriter, r *http.Request) {
	var req ResetCountersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	var targets []*governor.Governor
	if req.Mode != "" {
		mode, err := domain.ParseMode(strings.ToLower(req.Mode))
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		g, ok := h.governors[mode]
		if !ok {
			NotFound(w, "mode not configured")
			return
		}
		targets = append(targets, g)
	} else {
		for _, mode := range domain.Modes() {
			if g, ok := h.governors[mode]; ok {
				targets = append(targets, g)
			}
		}
	}

	providers := req.Providers
	if len(providers) == 0 {
		providers = h.providers
	}

	resp := ResetCountersResponse{Modes: []domain.Mode{}, Providers: providers}
	for _, g := range targets {
		if err := g.Reset(r.Context(), providers...); err != nil {
			InternalError(w, h.logger, err)
			return
		}
		resp.Modes = append(resp.Modes, g.Mode())
	}

	h.logger.Warn("counters reset via api", "modes", resp.Modes, "providers", providers)
	Success(w, resp)
}
