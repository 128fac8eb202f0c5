package domain

import (
	"time"
)

// Task — одна попытка исходящего звонка.
//
// Task создаётся внешним сервисом (или через admin API) и
// выполняется WorkerPool'ом. Источник истины по статусу — TaskStore;
// статус меняется только через Update и UpdateStatusAtomic.
type Task struct {
	// ID — уникальный идентификатор task.
	ID string `json:"task_id"`

	// RunID — ссылка на run (пакет звонков), может быть пустым.
	RunID string `json:"run_id,omitempty"`

	// AgentID — голосовой агент, который ведёт звонок.
	AgentID string `json:"agent_id,omitempty"`

	// Status — текущий статус task.
	Status TaskStatus `json:"status"`

	// RetryAttempt — номер повторной попытки (монотонно не убывает).
	RetryAttempt int `json:"retry_attempt"`

	// Input — входные данные звонка (contact_number, имя, метаданные).
	Input map[string]any `json:"input,omitempty"`

	// Output — нормализованный CallResult.
	Output map[string]any `json:"output,omitempty"`

	// Provider — провайдер, выбранный для звонка.
	Provider string `json:"provider,omitempty"`

	// LastFailureReason — причина последней неудачи (видна пользователю).
	LastFailureReason string `json:"last_failure_reason,omitempty"`

	// ScheduledAt — время, на которое task отложена (nil, если не отложена).
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`

	// CreatedAt — время создания task.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFinished возвращает true, если task завершена.
func (t *Task) IsFinished() bool {
	return t.Status.IsTerminal()
}

// ContactNumber возвращает номер получателя из Input.
func (t *Task) ContactNumber() string {
	return StringField(t.Input, "contact_number")
}

// TaskUpdate — частичное обновление task.
//
// Status обязателен, остальные поля применяются только если не nil.
type TaskUpdate struct {
	Status            TaskStatus
	Output            map[string]any
	Provider          *string
	LastFailureReason *string
	RetryAttempt      *int
	ScheduledAt       *time.Time
	ClearScheduledAt  bool
}

// StatusOnly создаёт TaskUpdate, меняющий только статус.
func StatusOnly(status TaskStatus) TaskUpdate {
	return TaskUpdate{Status: status}
}

// WithFailure добавляет причину неудачи.
func (u TaskUpdate) WithFailure(reason string) TaskUpdate {
	u.LastFailureReason = &reason
	return u
}

// WithOutput добавляет output.
func (u TaskUpdate) WithOutput(output map[string]any) TaskUpdate {
	u.Output = output
	return u
}

// WithProvider добавляет провайдера.
func (u TaskUpdate) WithProvider(provider string) TaskUpdate {
	u.Provider = &provider
	return u
}

// WithRetryAttempt добавляет номер попытки.
func (u TaskUpdate) WithRetryAttempt(attempt int) TaskUpdate {
	u.RetryAttempt = &attempt
	return u
}

// WithScheduledAt добавляет время отложенного запуска.
func (u TaskUpdate) WithScheduledAt(at time.Time) TaskUpdate {
	u.ScheduledAt = &at
	return u
}

// Apply применяет обновление к task (используется in-memory реализациями).
func (u TaskUpdate) Apply(t *Task, now time.Time) {
	t.Status = u.Status
	if u.Output != nil {
		t.Output = u.Output
	}
	if u.Provider != nil {
		t.Provider = *u.Provider
	}
	if u.LastFailureReason != nil {
		t.LastFailureReason = *u.LastFailureReason
	}
	if u.RetryAttempt != nil {
		t.RetryAttempt = *u.RetryAttempt
	}
	if u.ScheduledAt != nil {
		at := *u.ScheduledAt
		t.ScheduledAt = &at
	}
	if u.ClearScheduledAt {
		t.ScheduledAt = nil
	}
	t.UpdatedAt = now
}

// StringField достаёт строковое значение из произвольной map.
func StringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, _ := m[key].(string)
	return v
}

// Truncate обрезает s до n символов, не разрывая многобайтовые руны.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
