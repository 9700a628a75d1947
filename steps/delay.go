package steps

import (
	"context"
	"fmt"
	"time"
)

// DelayRunnable — встроенный runnable задержки.
//
// Конфигурация в extra-входах шага:
//
//	{
//	    "duration_sec": 10,    // задержка в секундах
//	    // или
//	    "duration_ms": 5000    // задержка в миллисекундах
//	}
//
// Задержка прерывается отменой контекста.
type DelayRunnable struct{}

// NewDelayRunnable создаёт delay runnable.
func NewDelayRunnable() *DelayRunnable {
	return &DelayRunnable{}
}

// RunInput приостанавливает выполнение на заданную длительность.
func (d *DelayRunnable) RunInput(ctx context.Context, _ string, extra map[string]any) (any, error) {
	duration, err := parseDelayDuration(extra)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	case <-timer.C:
		return map[string]any{"duration_ms": duration.Milliseconds()}, nil
	}
}

func parseDelayDuration(extra map[string]any) (time.Duration, error) {
	if sec := configInt(extra, "duration_sec"); sec > 0 {
		return time.Duration(sec) * time.Second, nil
	}
	if ms := configInt(extra, "duration_ms"); ms > 0 {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return 0, fmt.Errorf("%w: delay: duration_sec or duration_ms required", ErrInvalidConfig)
}
