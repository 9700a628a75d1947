package taskflow

import (
	"context"
	"log/slog"
	"time"
)

// hookTimeout — предел ожидания одного хука. Хук, не уложившийся в
// предел, бросается: его горутина продолжает работать, но выполнение
// шага не блокируется.
const hookTimeout = 5 * time.Second

// callHook выполняет хук в отдельной горутине с восстановлением паники
// и таймаутом. Сбой хука логируется и не влияет на исход шага.
func callHook(ctx context.Context, logger *slog.Logger, name string, fn func()) {
	if fn == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				logger.Warn("hook panicked", "hook", name, "panic", r)
			}
		}()
		fn()
	}()

	timer := time.NewTimer(hookTimeout)
	defer timer.Stop()

	select {
	case <-done:
		logger.Debug("hook executed", "hook", name)
	case <-timer.C:
		logger.Warn("hook timed out", "hook", name, "timeout", hookTimeout)
	case <-ctx.Done():
	}
}
