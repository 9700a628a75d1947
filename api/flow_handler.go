package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// FlowRequest — тело запроса flow-эндпоинта.
type FlowRequest struct {
	// Input — вход запуска. Строка передаётся как есть, остальные
	// значения сериализуются в JSON.
	Input any `json:"input"`
}

// flowHandler отвечает за один flow-эндпоинт.
// POST <path>
func (s *Server) flowHandler(ep *endpoint) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := TraceID(r.Context())

		var req FlowRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidInput,
				"Invalid request body.", ep.flow, traceID, nil)
			return
		}
		if req.Input == nil {
			writeError(w, http.StatusBadRequest, CodeInvalidInput,
				"Missing 'input' in request body.", ep.flow, traceID, nil)
			return
		}

		s.logger.Info("flow request",
			"flow", ep.flow,
			"trace_id", traceID,
			"input_preview", shortPreview(req.Input, 1024),
			"timeout", ep.timeout,
		)

		s.metrics.inFlight.Inc()
		defer s.metrics.inFlight.Dec()

		ctx, cancel := context.WithTimeout(r.Context(), ep.timeout)
		defer cancel()

		start := time.Now()
		result, err := ep.runner.Run(ctx, inputText(req.Input))
		duration := time.Since(start)

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				s.logger.Warn("flow timeout",
					"flow", ep.flow,
					"trace_id", traceID,
					"timeout", ep.timeout,
				)
				s.metrics.observeRun(ep.flow, runStatusTimeout, duration.Seconds())
				writeError(w, http.StatusGatewayTimeout, CodeTimeout,
					fmt.Sprintf("Flow execution timed out after %s.", ep.timeout),
					ep.flow, traceID, nil)
				return
			}

			s.logger.Error("flow runtime error",
				"flow", ep.flow,
				"trace_id", traceID,
				"error", err,
			)
			s.metrics.observeRun(ep.flow, runStatusFailed, duration.Seconds())
			writeError(w, http.StatusInternalServerError, CodeFlowRuntimeError,
				"Flow runtime error", ep.flow, traceID, shortPreview(err.Error(), 512))
			return
		}

		s.metrics.observeRun(ep.flow, runStatusSuccess, duration.Seconds())
		s.logger.Info("flow success",
			"flow", ep.flow,
			"trace_id", traceID,
			"run_id", result.RunID,
			"duration", duration,
			"output_preview", shortPreview(result.Output, 1024),
		)

		writeJSON(w, http.StatusOK, SuccessResponse{
			Success:         true,
			Code:            CodeOK,
			Message:         "OK",
			Flow:            ep.flow,
			TraceID:         traceID,
			FlowSummary:     &result.Flow,
			FinalOutput:     result.Output,
			DurationSeconds: duration.Seconds(),
			Timestamp:       nowMillis(),
		})
	})
}

// inputText преобразует вход запроса в текстовый вход flow.
func inputText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
