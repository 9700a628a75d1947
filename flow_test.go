package taskflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{name: "valid", cfg: Config{Name: "my_flow"}},
		{name: "empty name", cfg: Config{Name: ""}, wantErr: ErrInvalidName},
		{name: "name with dash", cfg: Config{Name: "my-flow"}, wantErr: ErrInvalidName},
		{name: "name with space", cfg: Config{Name: "my flow"}, wantErr: ErrInvalidName},
		{name: "digit first", cfg: Config{Name: "1flow"}, wantErr: ErrInvalidName},
		{name: "negative retry", cfg: Config{Name: "flow", RetryOnFail: -1}, wantErr: ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestStepDeclarationValidation(t *testing.T) {
	f := newTestFlow(t, Config{})
	mustRegister(t, f, "r", func(_ context.Context, _ string, _ map[string]any) (any, error) {
		return nil, nil
	})

	t.Run("default name is runnable name", func(t *testing.T) {
		if err := f.Step(StepConfig{Runnable: "r"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("duplicate name", func(t *testing.T) {
		err := f.Step(StepConfig{Runnable: "r"})
		if !errors.Is(err, ErrDuplicateStep) {
			t.Fatalf("expected ErrDuplicateStep, got %v", err)
		}
	})

	t.Run("missing runnable", func(t *testing.T) {
		err := f.Step(StepConfig{Name: "nameless"})
		if !errors.Is(err, ErrUnknownRunnable) {
			t.Fatalf("expected ErrUnknownRunnable, got %v", err)
		}
	})

	t.Run("invalid name", func(t *testing.T) {
		err := f.Step(StepConfig{Name: "bad name", Runnable: "r"})
		if !errors.Is(err, ErrInvalidName) {
			t.Fatalf("expected ErrInvalidName, got %v", err)
		}
	})

	t.Run("negative retry", func(t *testing.T) {
		err := f.Step(StepConfig{Name: "retrying", Runnable: "r", RetryOnFail: intPtr(-2)})
		if !errors.Is(err, ErrInvalidName) {
			t.Fatalf("expected ErrInvalidName, got %v", err)
		}
	})
}

func TestAliasDeclarationValidation(t *testing.T) {
	f := newTestFlow(t, Config{})
	mustRegister(t, f, "r", func(_ context.Context, _ string, _ map[string]any) (any, error) {
		return nil, nil
	})
	mustStep(t, f, StepConfig{Name: "source", Runnable: "r"})

	if err := f.Alias("short", "source", "output"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Alias("short", "source", "other"); !errors.Is(err, ErrDuplicateAlias) {
		t.Fatalf("expected ErrDuplicateAlias, got %v", err)
	}
	if err := f.Alias("bad alias", "source", ""); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

// Алиас может ссылаться на шаг, объявленный позже: разрешение ленивое.
func TestAliasDeclaredBeforeStep(t *testing.T) {
	f := newTestFlow(t, Config{})
	mustRegister(t, f, "produce", func(_ context.Context, _ string, _ map[string]any) (any, error) {
		return map[string]any{"value": 41}, nil
	})
	mustRegister(t, f, "consume", func(_ context.Context, _ string, extra map[string]any) (any, error) {
		return extra["n"], nil
	})

	if err := f.Alias("answer", "first", "value"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mustStep(t, f, StepConfig{Name: "first", Runnable: "produce"})
	mustStep(t, f, StepConfig{
		Name:      "second",
		Runnable:  "consume",
		Input:     map[string]any{"n": "{{answer}}"},
		DependsOn: []string{"first"},
	})

	result, err := f.Run(context.Background(), "go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, ok := result.Output.(int); !ok || got != 41 {
		t.Fatalf("expected final output 41, got %v", result.Output)
	}
}

// Алиас на так и не объявленный шаг даёт ошибку разрешения при
// обращении, а не при декларации.
func TestAliasUnknownStepFailsAtResolve(t *testing.T) {
	f := newTestFlow(t, Config{})
	mustRegister(t, f, "consume", func(_ context.Context, _ string, extra map[string]any) (any, error) {
		return extra["n"], nil
	})

	if err := f.Alias("phantom", "ghost", "value"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mustStep(t, f, StepConfig{Name: "only", Runnable: "consume", Input: map[string]any{"n": "{{phantom}}"}})

	_, err := f.Run(context.Background(), "go")
	if !errors.Is(err, ErrNoStepOutput) {
		t.Fatalf("expected ErrNoStepOutput, got %v", err)
	}
	var re *ResolveError
	if !errors.As(err, &re) || re.Step != "ghost" {
		t.Fatalf("expected resolve error naming step ghost, got %v", err)
	}
}

func TestDuplicateRunnable(t *testing.T) {
	f := newTestFlow(t, Config{})
	fn := func(_ context.Context, _ string, _ map[string]any) (any, error) { return nil, nil }

	mustRegister(t, f, "dup", fn)
	if err := f.Register("dup", fn); !errors.Is(err, ErrDuplicateRunnable) {
		t.Fatalf("expected ErrDuplicateRunnable, got %v", err)
	}
}

func TestDeclarationsFrozenAfterFirstRun(t *testing.T) {
	f := newTestFlow(t, Config{})
	fn := func(_ context.Context, _ string, _ map[string]any) (any, error) { return "ok", nil }
	mustRegister(t, f, "r", fn)
	mustStep(t, f, StepConfig{Name: "only", Runnable: "r"})

	if _, err := f.Run(context.Background(), "go"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.Step(StepConfig{Name: "late", Runnable: "r"}); !errors.Is(err, ErrFlowStarted) {
		t.Fatalf("expected ErrFlowStarted for step, got %v", err)
	}
	if err := f.Alias("late_alias", "only", ""); !errors.Is(err, ErrFlowStarted) {
		t.Fatalf("expected ErrFlowStarted for alias, got %v", err)
	}
	if err := f.Parallel("only"); !errors.Is(err, ErrFlowStarted) {
		t.Fatalf("expected ErrFlowStarted for group, got %v", err)
	}

	// Реестр runnable остаётся открытым между запусками.
	if err := f.Register("late_runnable", fn); err != nil {
		t.Errorf("expected registry to stay open, got %v", err)
	}
}

func TestRunEmptyFlow(t *testing.T) {
	f := newTestFlow(t, Config{})
	if _, err := f.Run(context.Background(), "go"); !errors.Is(err, ErrNoSteps) {
		t.Fatalf("expected ErrNoSteps, got %v", err)
	}
}

func TestRepeatedRunsAreIsolated(t *testing.T) {
	f := newTestFlow(t, Config{})

	mustRegister(t, f, "echo", func(_ context.Context, input string, _ map[string]any) (any, error) {
		return "echo:" + input, nil
	})
	mustStep(t, f, StepConfig{Runnable: "echo", Input: map[string]any{"input": "{{input}}"}})

	first, err := f.Run(context.Background(), "one")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := f.Run(context.Background(), "two")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.Output != "echo:one" {
		t.Errorf("first run: expected %q, got %v", "echo:one", first.Output)
	}
	if second.Output != "echo:two" {
		t.Errorf("second run: expected %q, got %v", "echo:two", second.Output)
	}
	if first.RunID == second.RunID {
		t.Error("expected distinct run IDs")
	}
}

func TestConcurrentRuns(t *testing.T) {
	f := newTestFlow(t, Config{})

	mustRegister(t, f, "echo", func(_ context.Context, input string, _ map[string]any) (any, error) {
		time.Sleep(10 * time.Millisecond)
		return input, nil
	})
	mustStep(t, f, StepConfig{Runnable: "echo", Input: map[string]any{"input": "{{input}}"}})

	inputs := []string{"a", "b", "c", "d"}
	results := make([]string, len(inputs))
	var wg sync.WaitGroup
	for i, input := range inputs {
		wg.Add(1)
		go func(i int, input string) {
			defer wg.Done()
			res, err := f.Run(context.Background(), input)
			if err != nil {
				t.Errorf("run %s: unexpected error: %v", input, err)
				return
			}
			results[i], _ = res.Output.(string)
		}(i, input)
	}
	wg.Wait()

	// Конкурентные запуски не видят входов друг друга.
	for i, input := range inputs {
		if results[i] != input {
			t.Errorf("run %d: expected %q, got %q", i, input, results[i])
		}
	}
}

func TestStartAndWait(t *testing.T) {
	f := newTestFlow(t, Config{})

	mustRegister(t, f, "slowish", func(_ context.Context, input string, _ map[string]any) (any, error) {
		time.Sleep(20 * time.Millisecond)
		return "bg:" + input, nil
	})
	mustStep(t, f, StepConfig{Runnable: "slowish", Input: map[string]any{"input": "{{input}}"}})

	h := f.Start(context.Background(), "task")

	select {
	case <-h.Done():
		t.Fatal("run finished before it could have")
	default:
	}

	result, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output != "bg:task" {
		t.Errorf("expected %q, got %v", "bg:task", result.Output)
	}

	// Повторный Wait возвращает тот же результат.
	again, err := h.Wait(context.Background())
	if err != nil || again != result {
		t.Errorf("expected cached result, got %v, %v", again, err)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	f := newTestFlow(t, Config{})

	release := make(chan struct{})
	mustRegister(t, f, "blocked", func(ctx context.Context, _ string, _ map[string]any) (any, error) {
		select {
		case <-release:
			return "done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	mustStep(t, f, StepConfig{Runnable: "blocked"})

	h := f.Start(context.Background(), "go")

	waitCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := h.Wait(waitCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}

	close(release)
	if _, err := h.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunWithDependencies(t *testing.T) {
	f := newTestFlow(t, Config{})

	var mu sync.Mutex
	var order []string
	track := func(name string, out any) func(context.Context, string, map[string]any) (any, error) {
		return func(_ context.Context, _ string, _ map[string]any) (any, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return out, nil
		}
	}

	mustRegister(t, f, "load", track("load", map[string]any{"output": "rows"}))
	mustRegister(t, f, "transform", track("transform", "columns"))
	mustRegister(t, f, "save", track("save", "saved"))

	// Декларация в обратном порядке: порядок выполнения определяют зависимости.
	mustStep(t, f, StepConfig{Runnable: "save", DependsOn: []string{"transform"}})
	mustStep(t, f, StepConfig{Runnable: "transform", DependsOn: []string{"load"}})
	mustStep(t, f, StepConfig{Runnable: "load"})

	result, err := f.Run(context.Background(), "go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"load", "transform", "save"}
	for i, name := range want {
		if order[i] != name {
			t.Errorf("position %d: expected %q, got %q", i, name, order[i])
		}
	}

	// Итоговый output — выход последнего объявленного шага (load),
	// а не последнего выполненного.
	if result.Output != "rows" {
		t.Errorf("expected output of last declared step, got %v", result.Output)
	}
}

func TestRunAliasEndToEnd(t *testing.T) {
	f := newTestFlow(t, Config{})

	mustRegister(t, f, "search", func(_ context.Context, _ string, _ map[string]any) (any, error) {
		return map[string]any{
			"output": map[string]any{"hits": []any{"alpha", "beta"}},
		}, nil
	})
	mustRegister(t, f, "pick", func(_ context.Context, input string, _ map[string]any) (any, error) {
		return "picked:" + input, nil
	})

	mustStep(t, f, StepConfig{Runnable: "search"})
	if err := f.Alias("top_hit", "search", "output.hits[0]"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mustStep(t, f, StepConfig{
		Runnable: "pick",
		Input:    map[string]any{"input": "{{top_hit}}"},
	})

	result, err := f.Run(context.Background(), "go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output != "picked:alpha" {
		t.Errorf("expected %q, got %v", "picked:alpha", result.Output)
	}
}

func TestRunErrorCarriesPartialOutputs(t *testing.T) {
	f := newTestFlow(t, Config{})

	mustRegister(t, f, "works", func(_ context.Context, _ string, _ map[string]any) (any, error) {
		return "partial result", nil
	})
	mustRegister(t, f, "breaks", func(_ context.Context, _ string, _ map[string]any) (any, error) {
		return nil, errors.New("halt")
	})

	mustStep(t, f, StepConfig{Runnable: "works"})
	mustStep(t, f, StepConfig{Runnable: "breaks"})

	_, err := f.Run(context.Background(), "go")
	var re *RunError
	if !errors.As(err, &re) {
		t.Fatalf("expected RunError, got %v", err)
	}
	if re.Outputs["works"] != "partial result" {
		t.Errorf("expected partial output preserved, got %v", re.Outputs["works"])
	}
	if re.RunID == "" {
		t.Error("expected run ID in error")
	}
}
