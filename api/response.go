package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shaiso/taskflow"
)

// ErrorCode — код результата API.
type ErrorCode string

const (
	CodeOK               ErrorCode = "OK"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeAuthFailed       ErrorCode = "AUTH_FAILED"
	CodeFlowRuntimeError ErrorCode = "FLOW_RUNTIME_ERROR"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeConfigError      ErrorCode = "CONFIG_ERROR"
	CodeDuplicatePath    ErrorCode = "DUPLICATE_PATH"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeInternal         ErrorCode = "INTERNAL"
)

// SuccessResponse — ответ успешного запуска flow.
type SuccessResponse struct {
	Success bool      `json:"success"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`

	Flow    string `json:"flow,omitempty"`
	TraceID string `json:"trace_id"`

	FlowSummary *taskflow.FlowSummary `json:"flow_summary,omitempty"`
	FinalOutput any                   `json:"final_output,omitempty"`

	DurationSeconds float64 `json:"duration_seconds,omitempty"`

	// Timestamp — время формирования ответа, Unix-миллисекунды UTC.
	Timestamp int64 `json:"timestamp"`
}

// ErrorResponse — ответ с ошибкой.
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   any       `json:"details,omitempty"`
	Flow      string    `json:"flow,omitempty"`
	TraceID   string    `json:"trace_id"`
	Timestamp int64     `json:"timestamp"`
}

// DataResponse — ответ служебных ресурсов (расписания).
type DataResponse struct {
	Success   bool      `json:"success"`
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Total     int       `json:"total,omitempty"`
	TraceID   string    `json:"trace_id"`
	Timestamp int64     `json:"timestamp"`
}

// nowMillis возвращает текущее время в Unix-миллисекундах UTC.
func nowMillis() int64 {
	return time.Now().UTC().UnixMilli()
}

// writeJSON отправляет JSON-ответ.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError отправляет ответ с ошибкой.
func writeError(w http.ResponseWriter, status int, code ErrorCode, message, flow, traceID string, details any) {
	writeJSON(w, status, ErrorResponse{
		Success:   false,
		Code:      code,
		Message:   message,
		Details:   details,
		Flow:      flow,
		TraceID:   traceID,
		Timestamp: nowMillis(),
	})
}

// writeData отправляет успешный ответ служебного ресурса.
func writeData(w http.ResponseWriter, status int, traceID string, data any, total int) {
	writeJSON(w, status, DataResponse{
		Success:   true,
		Code:      CodeOK,
		Message:   "OK",
		Data:      data,
		Total:     total,
		TraceID:   traceID,
		Timestamp: nowMillis(),
	})
}

// shortPreview обрезает строковое представление значения для логов
// и полей details: большие выходы не должны раздувать ответ.
func shortPreview(v any, maxLen int) string {
	s, ok := v.(string)
	if !ok {
		b, err := json.Marshal(v)
		if err != nil {
			return "<unserializable>"
		}
		s = string(b)
	}
	if len(s) > maxLen {
		return s[:maxLen-3] + "..."
	}
	return s
}
