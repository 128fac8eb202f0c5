package store

import "errors"

// Ошибки хранилища.
var (
	// ErrNotInteger — значение ключа не является целым числом.
	ErrNotInteger = errors.New("value is not an integer")

	// ErrClosed — хранилище закрыто.
	ErrClosed = errors.New("store closed")
)
