package steps

import (
	"context"
	"encoding/json"
	"fmt"
)

// TransformRunnable — встроенный runnable преобразования данных.
//
// Собирает новый результат из уже разрешённых extra-входов шага:
//
//	{
//	    "total": "{{fetch.output.count}}",
//	    "first": "{{fetch.output.items[0]}}"
//	}
//
// Результатом становится карта всех extra-входов. Если среди них есть
// ключ mappings, результат собирается только из его содержимого.
// Каждое строковое значение дополнительно пробуется как JSON:
// "10" становится числом, "[1,2]" — списком.
type TransformRunnable struct{}

// NewTransformRunnable создаёт transform runnable.
func NewTransformRunnable() *TransformRunnable {
	return &TransformRunnable{}
}

// RunInput собирает результат из mappings.
func (t *TransformRunnable) RunInput(ctx context.Context, _ string, extra map[string]any) (any, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	default:
	}

	mappings := configMap(extra, "mappings")
	if mappings == nil {
		out := make(map[string]any, len(extra))
		for k, v := range extra {
			out[k] = coerceValue(v)
		}
		return out, nil
	}

	out := make(map[string]any, len(mappings))
	for key, value := range mappings {
		out[key] = coerceValue(value)
	}
	return out, nil
}

// coerceValue пытается распарсить строковое значение как JSON.
// Неразбираемые строки и значения других типов возвращаются как есть.
func coerceValue(value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err == nil {
		return obj
	}
	var arr []any
	if err := json.Unmarshal([]byte(s), &arr); err == nil {
		return arr
	}

	var num json.Number
	if err := json.Unmarshal([]byte(s), &num); err == nil {
		if i, err := num.Int64(); err == nil {
			return i
		}
		if f, err := num.Float64(); err == nil {
			return f
		}
	}

	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
