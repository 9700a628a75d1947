package tool

import (
	"fmt"
	"reflect"
)

// Property описывает один аргумент инструмента в схеме входа.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// Schema — JSON-схема аргументов инструмента. Проверяются наличие
// обязательных аргументов и соответствие типов объявленным; аргументы,
// не описанные в Properties, пропускаются без проверки.
type Schema struct {
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Validate проверяет карту аргументов на соответствие схеме.
func (s *Schema) Validate(args map[string]any) error {
	if s == nil {
		return nil
	}
	for _, req := range s.Required {
		if _, ok := args[req]; !ok {
			return &ValidationError{Field: req, Message: "required argument is missing"}
		}
	}
	for name, value := range args {
		prop, ok := s.Properties[name]
		if !ok || prop.Type == "" {
			continue
		}
		if !typeMatches(prop.Type, value) {
			return &ValidationError{
				Field:   name,
				Message: fmt.Sprintf("expected %s, got %T", prop.Type, value),
			}
		}
	}
	return nil
}

// typeMatches сверяет go-значение с типом из JSON-схемы.
// Числа из encoding/json приходят как float64, поэтому integer
// принимает float64 без дробной части.
func typeMatches(typ string, v any) bool {
	if v == nil {
		return true
	}
	switch typ {
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "number":
		return isNumeric(v)
	case "integer":
		switch n := v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64:
			return n == float64(int64(n))
		case float32:
			return n == float32(int64(n))
		default:
			return false
		}
	case "array":
		k := reflect.TypeOf(v).Kind()
		return k == reflect.Slice || k == reflect.Array
	case "object":
		return reflect.TypeOf(v).Kind() == reflect.Map
	default:
		return true
	}
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}
