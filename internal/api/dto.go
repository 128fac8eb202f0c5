package api

import (
	"time"

	"github.com/shaiso/Callflow/internal/domain"
	"github.com/shaiso/Callflow/internal/scheduler"
	"github.com/shaiso/Callflow/internal/telemetry"
)

// Task DTOs

// EnqueueTaskRequest — запрос на постановку звонка в очередь.
type EnqueueTaskRequest struct {
	// TaskID — если пусто, генерируется.
	TaskID       string         `json:"task_id,omitempty"`
	RunID        string         `json:"run_id,omitempty"`
	AgentID      string         `json:"agent_id,omitempty"`
	Data         map[string]any `json:"data"`
	Instructions string         `json:"instructions,omitempty"`
	ModelConfig  map[string]any `json:"model_config,omitempty"`
	BatchCount   int            `json:"batch_count,omitempty"`

	// Mode — явный режим (normal|bulk); иначе по batch_count.
	Mode string `json:"mode,omitempty"`
}

// EnqueueTaskResponse — ответ на постановку task.
type EnqueueTaskResponse struct {
	TaskID string      `json:"task_id"`
	RunID  string      `json:"run_id,omitempty"`
	Mode   domain.Mode `json:"mode"`
	Topic  string      `json:"topic"`
}

// RunResponse — run вместе с его tasks.
type RunResponse struct {
	Run   domain.Run    `json:"run"`
	Tasks []domain.Task `json:"tasks"`
}

// Ops DTOs

// ModeStats — состояние одного режима.
type ModeStats struct {
	Mode     domain.Mode            `json:"mode"`
	Counters map[string]int64       `json:"counters"`
	Ceilings map[string]int         `json:"ceilings"`
	Latency  telemetry.LatencyStats `json:"latency"`
	SLA      time.Duration          `json:"sla"`
}

// StatsResponse — сводная статистика.
type StatsResponse struct {
	Tasks     map[domain.TaskStatus]int `json:"tasks,omitempty"`
	Modes     []ModeStats               `json:"modes"`
	Scheduled int64                     `json:"scheduled"`
}

// SweepResponse — итог ручного sweep.
type SweepResponse struct {
	scheduler.SweepStats
	Remaining int64 `json:"remaining"`
}

// ResetCountersRequest — запрос на сброс счётчиков.
// Пустые поля — все режимы и все провайдеры.
type ResetCountersRequest struct {
	Mode      string   `json:"mode,omitempty"`
	Providers []string `json:"providers,omitempty"`
}

// ResetCountersResponse — что было сброшено.
type ResetCountersResponse struct {
	Modes     []domain.Mode `json:"modes"`
	Providers []string      `json:"providers"`
}
