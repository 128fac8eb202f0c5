package repo

import "errors"

// Ошибки TaskStore, общие для всех бэкендов.
var (
	// ErrNotFound — task или run не найдены.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — task с таким task_id уже создана.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState — переход статуса недопустим.
	ErrInvalidState = errors.New("invalid state")
)
