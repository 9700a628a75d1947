package taskflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/taskflow/internal/telemetry"
	"github.com/shaiso/taskflow/memory"
	"github.com/shaiso/taskflow/tool"
)

// executor выполняет шаги одного flow: проверяет условие, разрешает
// входы, гоняет попытки с учётом таймаута и бюджета повторов и
// вызывает хуки жизненного цикла.
type executor struct {
	flow *TaskFlow
}

// runStep выполняет один шаг в рамках запуска rs.
//
// Для шага внутри параллельной группы (inGroup) flow-хук on_error не
// вызывается здесь: группа вызывает его сама после завершения всех
// членов, чтобы сохранить порядок объявления.
func (e *executor) runStep(ctx context.Context, logger *slog.Logger, st *step, rs *runState, inGroup bool) error {
	logger = telemetry.WithStep(logger, st.name)

	reg, ok := e.flow.registry.get(st.runnable)
	if !ok {
		return newDeclarationError("runnable", st.runnable,
			fmt.Sprintf("runnable %q for step %q is not registered", st.runnable, st.name), ErrUnknownRunnable)
	}

	if st.condition != nil && !st.condition(rs.snapshotOutputs()) {
		logger.Info("step skipped", "status", StepStatusSkipped)
		rs.recordOutput(st.name, map[string]any{"output": nil, "skipped": true})
		rs.markSettled(st.name)
		return nil
	}

	res := &resolver{aliases: e.flow.aliasSnapshot(), state: rs}
	rc, err := e.buildRunContext(res, st)
	if err != nil {
		return fmt.Errorf("step %q: %w", st.name, err)
	}

	tracker := tool.NewTracker()
	rc.Tracker = tracker
	runCtx := tool.WithTracker(ctx, tracker)
	// Runnable получает логгер шага через LoggerFromContext.
	runCtx = telemetry.WithLogger(runCtx, logger)

	logger.Info("step started", "runnable", st.runnable, "status", StepStatusRunning)
	e.fireStart(ctx, logger, st, rc.Input)

	retries := st.retries(e.flow.retryOnFail)
	attempts := 0
	var out any
	var lastErr error

	for {
		attempts++
		tracker.Reset()

		out, lastErr = e.invoke(runCtx, st, reg, rc)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			// Запуск отменён — повторы не имеют смысла.
			break
		}
		if retries <= 0 {
			break
		}
		retries--
		logger.Debug("retrying step", "attempt", attempts, "error", lastErr)
	}

	if lastErr != nil {
		errMsg := lastErr.Error()
		logger.Warn("step failed", "status", StepStatusFailed, "attempts", attempts, "error", errMsg)
		rs.recordOutput(st.name, map[string]any{"error": errMsg})
		rs.markSettled(st.name)
		e.fireError(ctx, logger, st, errMsg, inGroup)
		return &StepError{Step: st.name, Attempts: attempts, Err: lastErr}
	}

	rs.recordOutput(st.name, out)
	rs.recordTools(st.name, stepToolUses(out, tracker))
	rs.markSettled(st.name)
	logger.Info("step succeeded", "status", StepStatusSucceeded, "attempts", attempts)
	e.fireComplete(ctx, logger, st, out)
	return nil
}

// invoke выполняет одну попытку runnable с учётом таймаута шага.
func (e *executor) invoke(ctx context.Context, st *step, reg *registered, rc *RunContext) (any, error) {
	if st.timeout <= 0 {
		return reg.invoke(ctx, rc)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, st.timeout)
	defer cancel()

	type attempt struct {
		out any
		err error
	}
	done := make(chan attempt, 1)
	go func() {
		out, err := reg.invoke(attemptCtx, rc)
		done <- attempt{out: out, err: err}
	}()

	select {
	case a := <-done:
		if a.err != nil && errors.Is(a.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: step %q exceeded %s", ErrStepTimeout, st.name, st.timeout)
		}
		return a.out, a.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: step %q exceeded %s", ErrStepTimeout, st.name, st.timeout)
	}
}

// buildRunContext разрешает входы шага и собирает контекст вызова.
// Отрендеренный prompt-шаблон замещает input.
func (e *executor) buildRunContext(res *resolver, st *step) (*RunContext, error) {
	resolved, err := res.resolveInput(st.input)
	if err != nil {
		return nil, err
	}
	extra, _ := resolved["extra_inputs"].(map[string]any)

	input := asText(resolved["input"])
	if st.promptTemplate != "" {
		prompt, err := res.resolvePrompt(st.promptTemplate, extra)
		if err != nil {
			return nil, err
		}
		if prompt != "" {
			input = prompt
		}
	}

	rc := &RunContext{
		Input:          input,
		Model:          asText(resolved["model"]),
		ModelSettings:  asModelSettings(resolved["model_settings"]),
		UsageLimits:    asUsageLimits(resolved["usage_limits"]),
		MessageHistory: append([]memory.Message(nil), st.messageHistory...),
		PreHooks:       asValueHooks(resolved["pre_hooks"]),
		PostHooks:      asValueHooks(resolved["post_hooks"]),
		ExtraInputs:    extra,
	}
	if u, ok := resolved["usage"].(*Usage); ok {
		rc.Usage = u
	}
	return rc, nil
}

// fireStart вызывает хуки on_start: сначала шага, затем flow.
func (e *executor) fireStart(ctx context.Context, logger *slog.Logger, st *step, input string) {
	if st.onStart != nil {
		callHook(ctx, logger, "on_start", func() { st.onStart(st.name, input) })
	}
	if e.flow.onStepStart != nil {
		callHook(ctx, logger, "flow on_start", func() { e.flow.onStepStart(st.name, input) })
	}
}

// fireComplete вызывает хуки on_complete: сначала flow, затем шага.
func (e *executor) fireComplete(ctx context.Context, logger *slog.Logger, st *step, out any) {
	if e.flow.onStepComplete != nil {
		callHook(ctx, logger, "flow on_complete", func() { e.flow.onStepComplete(st.name, out) })
	}
	if st.onComplete != nil {
		callHook(ctx, logger, "on_complete", func() { st.onComplete(st.name, out) })
	}
}

// fireError вызывает хуки on_error ровно один раз: сначала шага,
// затем flow. Для шага в группе flow-хук вызывает группа.
func (e *executor) fireError(ctx context.Context, logger *slog.Logger, st *step, errMsg string, inGroup bool) {
	if st.onError != nil {
		callHook(ctx, logger, "on_error", func() { st.onError(st.name, errMsg) })
	}
	if !inGroup && e.flow.onStepError != nil {
		callHook(ctx, logger, "flow on_error", func() { e.flow.onStepError(st.name, errMsg) })
	}
}

// stepToolUses выбирает вызовы инструментов шага: из Response, если
// runnable отчитался сам, иначе из трекера.
func stepToolUses(out any, tracker *tool.Tracker) []tool.Use {
	if resp, ok := out.(*Response); ok && len(resp.ToolsUsed) > 0 {
		return resp.ToolsUsed
	}
	return tracker.Uses()
}

// asText приводит разрешённое значение input к строке.
func asText(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return extractText(v)
}

// asModelSettings принимает готовую структуру или карту с ключами
// temperature, max_tokens, top_p.
func asModelSettings(v any) *ModelSettings {
	switch t := v.(type) {
	case *ModelSettings:
		return t
	case ModelSettings:
		return &t
	case map[string]any:
		ms := &ModelSettings{}
		if f, ok := asFloat(t["temperature"]); ok {
			temp := float32(f)
			ms.Temperature = &temp
		}
		if f, ok := asFloat(t["max_tokens"]); ok {
			ms.MaxTokens = int(f)
		}
		if f, ok := asFloat(t["top_p"]); ok {
			top := float32(f)
			ms.TopP = &top
		}
		return ms
	}
	return nil
}

// asUsageLimits принимает готовую структуру или карту с ключами
// request_limit, total_tokens_limit.
func asUsageLimits(v any) *UsageLimits {
	switch t := v.(type) {
	case *UsageLimits:
		return t
	case UsageLimits:
		return &t
	case map[string]any:
		ul := &UsageLimits{}
		if f, ok := asFloat(t["request_limit"]); ok {
			ul.RequestLimit = int(f)
		}
		if f, ok := asFloat(t["total_tokens_limit"]); ok {
			ul.TotalTokensLimit = int(f)
		}
		return ul
	}
	return nil
}

func asValueHooks(v any) []ValueHook {
	switch t := v.(type) {
	case []ValueHook:
		return t
	case ValueHook:
		return []ValueHook{t}
	case func(ctx context.Context, value any) (any, error):
		return []ValueHook{ValueHook(t)}
	}
	return nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

