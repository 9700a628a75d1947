package tool

import (
	"context"
	"fmt"
	"time"
)

// Func — функция инструмента. Получает проверенные по схеме аргументы
// и возвращает произвольный результат.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Config — параметры создания инструмента.
type Config struct {
	// Name — имя инструмента, валидный идентификатор.
	Name string

	// Description — описание для модели.
	Description string

	// Schema — схема входных аргументов. Nil отключает проверку.
	Schema *Schema

	// Func — исполняемая функция.
	Func Func

	// CaptureErrors — при true сбой функции не приводит к ошибке вызова:
	// результатом становится текст ошибки. Используется, когда модель
	// должна увидеть причину сбоя и продолжить работу.
	CaptureErrors bool
}

// Tool — именованная функция со схемой входа, доступная агентам.
// Каждый вызов записывается в трекер из контекста, если он привязан.
type Tool struct {
	name          string
	description   string
	schema        *Schema
	fn            Func
	captureErrors bool
}

// New создаёт инструмент по конфигурации.
func New(cfg Config) (*Tool, error) {
	if !validIdent(cfg.Name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, cfg.Name)
	}
	if cfg.Func == nil {
		return nil, fmt.Errorf("%w: %q", ErrNilFunc, cfg.Name)
	}
	return &Tool{
		name:          cfg.Name,
		description:   cfg.Description,
		schema:        cfg.Schema,
		fn:            cfg.Func,
		captureErrors: cfg.CaptureErrors,
	}, nil
}

// Name возвращает имя инструмента.
func (t *Tool) Name() string { return t.name }

// Description возвращает описание инструмента.
func (t *Tool) Description() string { return t.description }

// Schema возвращает схему входных аргументов.
func (t *Tool) Schema() *Schema { return t.schema }

// Call проверяет аргументы по схеме и выполняет функцию инструмента.
// Вызов записывается в трекер из контекста независимо от исхода.
func (t *Tool) Call(ctx context.Context, args map[string]any) (any, error) {
	use := Use{
		ToolName:  t.name,
		Input:     copyArgs(args),
		StartTime: time.Now(),
	}

	if err := t.schema.Validate(args); err != nil {
		if ve, ok := err.(*ValidationError); ok {
			ve.Tool = t.name
		}
		return t.finish(ctx, use, nil, err)
	}

	out, err := t.fn(ctx, args)
	if err != nil {
		return t.finish(ctx, use, nil, &ExecutionError{Tool: t.name, Err: err})
	}
	return t.finish(ctx, use, out, nil)
}

// finish фиксирует исход вызова в трекере и возвращает результат.
func (t *Tool) finish(ctx context.Context, use Use, out any, callErr error) (any, error) {
	use.EndTime = time.Now()
	use.DurationSeconds = use.EndTime.Sub(use.StartTime).Seconds()

	if callErr != nil {
		use.Status = StatusFailed
		use.Error = callErr.Error()
	} else {
		use.Status = StatusSuccess
		use.Output = out
	}
	if tr := TrackerFromContext(ctx); tr != nil {
		tr.Record(use)
	}

	if callErr == nil {
		return out, nil
	}
	if t.captureErrors {
		return fmt.Sprintf("error executing tool %s: %v", t.name, callErr), nil
	}
	return nil, callErr
}

func copyArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}

// validIdent проверяет, что имя начинается с буквы или подчёркивания
// и состоит из букв, цифр и подчёркиваний.
func validIdent(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
