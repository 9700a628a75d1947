package tool

import (
	"errors"
	"fmt"
)

// Ошибки создания инструмента.
var (
	// ErrInvalidName возвращается, если имя инструмента не является
	// валидным идентификатором.
	ErrInvalidName = errors.New("invalid tool name")

	// ErrNilFunc возвращается, если инструменту не задана функция.
	ErrNilFunc = errors.New("tool function is nil")
)

// ValidationError описывает аргумент вызова, не прошедший проверку схемы.
type ValidationError struct {
	Tool    string
	Field   string
	Message string
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("argument %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("tool %q: argument %q: %s", e.Tool, e.Field, e.Message)
}

// ExecutionError описывает сбой выполнения функции инструмента.
type ExecutionError struct {
	Tool string
	Err  error
}

// Error реализует интерфейс error.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
}

// Unwrap возвращает причину сбоя.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}
