package steps

import "errors"

// Ошибки встроенных runnable.
var (
	// ErrInvalidConfig — невалидная конфигурация runnable.
	ErrInvalidConfig = errors.New("invalid step config")

	// ErrCancelled — выполнение отменено контекстом.
	ErrCancelled = errors.New("step execution cancelled")
)
