package taskflow

import (
	"github.com/shaiso/taskflow/tool"
)

// StepSummary — итог одного шага: имя, полезный выход, вызовы
// инструментов и расход модели.
type StepSummary struct {
	Name         string     `json:"name"`
	Output       any        `json:"output"`
	ToolsUsed    []tool.Use `json:"tools_used,omitempty"`
	TotalTokens  int        `json:"total_tokens"`
	RequestCount int        `json:"request_count"`
}

// UsageSummary — суммарный расход модели за запуск.
type UsageSummary struct {
	TotalRequests int `json:"total_requests"`
	TotalTokens   int `json:"total_tokens"`
}

// FlowSummary — сводка запуска: итоги всех выполненных и пропущенных
// шагов плюс суммарный расход.
type FlowSummary struct {
	Steps        map[string]StepSummary `json:"steps"`
	UsageSummary UsageSummary           `json:"usage_summary"`
}

// FlowResult — результат успешного запуска flow.
//
// Output — итоговый результат: выход последнего объявленного шага
// без служебной обёртки. Полные результаты шагов доступны в Flow.
type FlowResult struct {
	RunID  string      `json:"run_id"`
	Flow   FlowSummary `json:"flow"`
	Output any         `json:"output"`
}

// buildResult собирает итог запуска из записанных результатов шагов.
func (f *TaskFlow) buildResult(rs *runState) *FlowResult {
	outputs := rs.snapshotOutputs()

	summary := FlowSummary{Steps: make(map[string]StepSummary, len(outputs))}
	for name, raw := range outputs {
		s := StepSummary{Name: name, Output: unwrapOutput(raw)}

		if usage := usageOf(raw); usage != nil {
			s.TotalTokens = usage.TotalTokens
			s.RequestCount = usage.Requests
		}
		s.ToolsUsed = toolsOf(raw)
		if len(s.ToolsUsed) == 0 {
			s.ToolsUsed = rs.stepTools(name)
		}

		summary.Steps[name] = s
		summary.UsageSummary.TotalRequests += s.RequestCount
		summary.UsageSummary.TotalTokens += s.TotalTokens
	}

	result := &FlowResult{RunID: rs.runID, Flow: summary}

	// Итоговый output — выход последнего объявленного шага.
	f.mu.RLock()
	var lastName string
	if n := len(f.steps); n > 0 {
		lastName = f.steps[n-1].name
	}
	f.mu.RUnlock()
	if raw, ok := outputs[lastName]; ok {
		result.Output = unwrapOutput(raw)
	}
	return result
}

// unwrapOutput снимает служебную обёртку с записанного результата шага:
// у Response и карты с ключом output остаётся только полезный выход,
// остальные значения возвращаются как есть.
func unwrapOutput(raw any) any {
	switch v := raw.(type) {
	case *Response:
		if v == nil {
			return nil
		}
		return v.Output
	case Response:
		return v.Output
	case map[string]any:
		if out, ok := v["output"]; ok {
			return out
		}
		return v
	default:
		return raw
	}
}

// usageOf извлекает расход модели из записанного результата шага.
func usageOf(raw any) *Usage {
	switch v := raw.(type) {
	case *Response:
		if v == nil {
			return nil
		}
		return v.Usage
	case Response:
		return v.Usage
	case map[string]any:
		switch u := v["usage"].(type) {
		case *Usage:
			return u
		case Usage:
			return &u
		}
	}
	return nil
}

// toolsOf извлекает вызовы инструментов из записанного результата шага.
func toolsOf(raw any) []tool.Use {
	switch v := raw.(type) {
	case *Response:
		if v == nil {
			return nil
		}
		return v.ToolsUsed
	case Response:
		return v.ToolsUsed
	case map[string]any:
		if uses, ok := v["tools_used"].([]tool.Use); ok {
			return uses
		}
	}
	return nil
}
