package tool

import (
	"context"
	"encoding/json"
	"fmt"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// Eino экспортирует инструмент в виде eino-инструмента для передачи
// chat-модели. Аргументы принимаются как JSON, результат сериализуется
// обратно в строку.
func (t *Tool) Eino() einotool.InvokableTool {
	return &einoAdapter{t: t}
}

type einoAdapter struct {
	t *Tool
}

// Info возвращает описание инструмента в формате eino.
func (a *einoAdapter) Info(_ context.Context) (*schema.ToolInfo, error) {
	info := &schema.ToolInfo{
		Name: a.t.name,
		Desc: a.t.description,
	}
	if a.t.schema != nil {
		params := make(map[string]*schema.ParameterInfo, len(a.t.schema.Properties))
		for name, prop := range a.t.schema.Properties {
			params[name] = parameterInfo(prop, contains(a.t.schema.Required, name))
		}
		info.ParamsOneOf = schema.NewParamsOneOfByParams(params)
	}
	return info, nil
}

// InvokableRun декодирует JSON-аргументы и выполняет вызов инструмента.
func (a *einoAdapter) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...einotool.Option) (string, error) {
	args := map[string]any{}
	if argumentsInJSON != "" {
		if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
			return "", fmt.Errorf("tool %q: decode arguments: %w", a.t.name, err)
		}
	}

	out, err := a.t.Call(ctx, args)
	if err != nil {
		return "", err
	}

	switch v := out.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v), nil
		}
		return string(b), nil
	}
}

func parameterInfo(prop Property, required bool) *schema.ParameterInfo {
	info := &schema.ParameterInfo{
		Type:     dataTypeOf(prop.Type),
		Desc:     prop.Description,
		Enum:     prop.Enum,
		Required: required,
	}
	if prop.Items != nil {
		info.ElemInfo = parameterInfo(*prop.Items, false)
	}
	return info
}

func dataTypeOf(typ string) schema.DataType {
	switch typ {
	case "number":
		return schema.Number
	case "integer":
		return schema.Integer
	case "boolean":
		return schema.Boolean
	case "array":
		return schema.Array
	case "object":
		return schema.Object
	default:
		return schema.String
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
