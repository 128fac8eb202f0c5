package domain

import (
	"time"
)

// Run — пакет исходящих звонков (кампания), объединяющий tasks.
type Run struct {
	// ID — уникальный идентификатор run.
	ID string `json:"run_id"`

	// Status — текущий статус.
	Status RunStatus `json:"status"`

	// FinishedAt — время, когда последняя task run'а стала финальной.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// IsFinished возвращает true, если run завершён.
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}
