package store

import "fmt"

// Пространство ключей.
const (
	// ScheduledSetKey — sorted set отложенных tasks (score = Unix время готовности).
	ScheduledSetKey = "scheduled_tasks"
)

// LockKey — ключ блокировки task.
func LockKey(taskID string) string {
	return "task_lock:" + taskID
}

// DedupKey — ключ dedup-записи завершённой task.
func DedupKey(taskID string) string {
	return "task_dedup:" + taskID
}

// CounterKey — ключ счётчика конкурентных звонков провайдера в режиме.
func CounterKey(mode, provider string) string {
	return fmt.Sprintf("%s_%s_call_workers", mode, provider)
}

// ScheduledPayloadKey — ключ payload отложенной task.
func ScheduledPayloadKey(taskID string) string {
	return "scheduled_task:" + taskID
}

// LatencyKey — ключ списка последних задержек режима.
func LatencyKey(mode string) string {
	return "metrics:task_latency:" + mode
}

// LeaderKey — ключ лидерства сервиса.
func LeaderKey(name string) string {
	return "leader:" + name
}
