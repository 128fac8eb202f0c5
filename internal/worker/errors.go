package worker

import "errors"

// Ошибки воркера.
var (
	// ErrWorkerStopped — пул остановлен.
	ErrWorkerStopped = errors.New("worker pool stopped")

	// ErrAlreadyStarted — повторный Start.
	ErrAlreadyStarted = errors.New("worker pool already started")

	// ErrNoFactory — в PoolConfig не задан Factory.
	ErrNoFactory = errors.New("worker pool factory is required")

	// ErrProviderPanic — провайдер паниковал во время звонка.
	ErrProviderPanic = errors.New("provider panicked")

	// ErrEmptyResult — провайдер вернул nil без ошибки.
	ErrEmptyResult = errors.New("provider returned no result")
)
