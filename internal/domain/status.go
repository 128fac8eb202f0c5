package domain

// RunStatus — статус run (пакета звонков).
//
// Жизненный цикл:
//
//	pending → in_progress → completed
//	                      ↘ failed
//	                      ↘ partially_completed
//
// Run становится финальным, когда у него не осталось нефинальных tasks.
type RunStatus string

const (
	// RunStatusPending — run создан, tasks ещё не брались в работу.
	RunStatusPending RunStatus = "pending"

	// RunStatusInProgress — хотя бы одна task run'а в работе.
	RunStatusInProgress RunStatus = "in_progress"

	// RunStatusCompleted — все tasks run'а завершены успешно.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed — все tasks run'а завершились ошибкой.
	RunStatusFailed RunStatus = "failed"

	// RunStatusPartiallyCompleted — все tasks финальны, часть из них failed.
	RunStatusPartiallyCompleted RunStatus = "partially_completed"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusPartiallyCompleted:
		return true
	default:
		return false
	}
}

// RollupRunStatus вычисляет финальный статус run по счётчикам его tasks.
// false — у run остались нефинальные tasks (или tasks нет вовсе).
func RollupRunStatus(total, completed, failed int) (RunStatus, bool) {
	switch {
	case total == 0 || completed+failed < total:
		return "", false
	case failed == total:
		return RunStatusFailed, true
	case completed == total:
		return RunStatusCompleted, true
	default:
		return RunStatusPartiallyCompleted, true
	}
}

// TaskStatus — статус task (одного исходящего звонка).
//
// Жизненный цикл:
//
//	pending → processing → completed
//	                     ↘ in_progress (провайдер принял звонок, финал придёт асинхронно)
//	                     ↘ failed
//	pending → hold (отложена до рабочих часов или до освобождения ёмкости) → pending
//	processing → pending (RetryNow, повторная постановка в очередь)
type TaskStatus string

const (
	// TaskStatusPending — task ожидает выполнения.
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusProcessing — task захвачена воркером (CAS pending → processing).
	TaskStatusProcessing TaskStatus = "processing"

	// TaskStatusInProgress — звонок передан провайдеру, результат ещё не известен.
	TaskStatusInProgress TaskStatus = "in_progress"

	// TaskStatusCompleted — звонок завершён успешно.
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusFailed — звонок завершился ошибкой (окончательно или до recovery).
	TaskStatusFailed TaskStatus = "failed"

	// TaskStatusHold — task отложена в sorted set scheduled_tasks.
	TaskStatusHold TaskStatus = "hold"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// IsValid проверяет, что статус известен.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusInProgress,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusHold:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление TaskStatus.
func (s TaskStatus) String() string {
	return string(s)
}
