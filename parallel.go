package taskflow

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// runGroup выполняет параллельную группу: конкурентно запускает всех
// ещё не завершённых членов, дожидается каждого и собирает частичные
// отказы в одну агрегированную ошибку.
//
// Flow-хук on_error для упавших членов вызывается здесь после
// завершения всей группы, в порядке объявления членов.
func (e *executor) runGroup(ctx context.Context, logger *slog.Logger, members []*step, rs *runState) error {
	pending := make([]*step, 0, len(members))
	for _, st := range members {
		if !rs.isSettled(st.name) {
			pending = append(pending, st)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	logger.Info("parallel group started", "steps", stepNames(pending))

	var sem *semaphore.Weighted
	if e.flow.maxParallel > 0 {
		sem = semaphore.NewWeighted(int64(e.flow.maxParallel))
	}

	results := make([]error, len(pending))
	var wg sync.WaitGroup
	for i, st := range pending {
		wg.Add(1)
		go func(i int, st *step) {
			defer wg.Done()
			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					results[i] = err
					return
				}
				defer sem.Release(1)
			}
			results[i] = e.runStep(ctx, logger, st, rs, true)
		}(i, st)
	}
	wg.Wait()

	var failures []StepFailure
	for i, err := range results {
		if err != nil {
			failures = append(failures, StepFailure{Step: pending[i].name, Err: err})
		}
	}
	if len(failures) == 0 {
		logger.Info("parallel group succeeded", "steps", stepNames(pending))
		return nil
	}

	// Flow-хук on_error по упавшим членам в порядке объявления.
	if e.flow.onStepError != nil {
		for _, f := range failures {
			name, errMsg := f.Step, causeOf(f.Err).Error()
			callHook(ctx, logger, "flow on_error", func() { e.flow.onStepError(name, errMsg) })
		}
	}

	err := &ParallelError{Failures: failures}
	logger.Warn("parallel group failed", "failed_steps", failureNames(failures), "error", err)
	return err
}

func stepNames(steps []*step) []string {
	names := make([]string, len(steps))
	for i, st := range steps {
		names[i] = st.name
	}
	return names
}

func failureNames(failures []StepFailure) []string {
	names := make([]string, len(failures))
	for i, f := range failures {
		names[i] = f.Step
	}
	return names
}
