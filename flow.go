package taskflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/taskflow/internal/telemetry"
)

// Config — параметры создания flow.
type Config struct {
	// Name — имя flow, валидный идентификатор. Обязательно.
	Name string

	// RetryOnFail — число повторов шага по умолчанию после неудачной
	// попытки. Шаг может переопределить его своим RetryOnFail.
	RetryOnFail int

	// MaxParallel ограничивает число одновременно выполняемых шагов
	// параллельной группы. Ноль — без ограничения.
	MaxParallel int

	// OnStepStart, OnStepComplete, OnStepError — flow-хуки, вызываемые
	// для каждого шага.
	OnStepStart    StartHook
	OnStepComplete CompleteHook
	OnStepError    ErrorHook

	// Logger — логгер flow. Nil — slog.Default.
	Logger *slog.Logger
}

// TaskFlow — оркестратор шагов: хранит декларации (шаги, алиасы,
// параллельные группы, реестр runnable) и выполняет их в порядке,
// определяемом зависимостями.
//
// Декларации шагов, алиасов и групп после первого запуска заморожены;
// реестр runnable пополняется в любой момент. Каждый запуск получает
// собственное состояние, поэтому Run можно вызывать многократно
// и конкурентно.
type TaskFlow struct {
	id          string
	name        string
	retryOnFail int
	maxParallel int

	onStepStart    StartHook
	onStepComplete CompleteHook
	onStepError    ErrorHook

	logger   *slog.Logger
	registry *registry

	mu        sync.RWMutex
	steps     []*step
	stepIndex map[string]*step
	aliases   map[string]aliasTarget
	groups    [][]string
	started   bool

	orderOnce sync.Once
	order     []string
	orderErr  error
}

// New создаёт flow по конфигурации.
func New(cfg Config) (*TaskFlow, error) {
	if !validName(cfg.Name) {
		return nil, newDeclarationError("flow", cfg.Name,
			fmt.Sprintf("flow name %q must be a valid identifier", cfg.Name), ErrInvalidName)
	}
	if cfg.RetryOnFail < 0 {
		return nil, newDeclarationError("flow", cfg.Name,
			fmt.Sprintf("retry_on_fail must be non-negative, got %d", cfg.RetryOnFail), ErrInvalidName)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &TaskFlow{
		id:             uuid.NewString(),
		name:           cfg.Name,
		retryOnFail:    cfg.RetryOnFail,
		maxParallel:    cfg.MaxParallel,
		onStepStart:    cfg.OnStepStart,
		onStepComplete: cfg.OnStepComplete,
		onStepError:    cfg.OnStepError,
		logger:         telemetry.WithFlow(logger, cfg.Name),
		registry:       newRegistry(),
		stepIndex:      make(map[string]*step),
		aliases:        make(map[string]aliasTarget),
	}, nil
}

// Name возвращает имя flow.
func (f *TaskFlow) Name() string { return f.name }

// ID возвращает идентификатор экземпляра flow.
func (f *TaskFlow) ID() string { return f.id }

// Register добавляет runnable в реестр flow под именем name.
// Поддерживаются значения, реализующие Runnable или InputRunnable,
// и функции соответствующих сигнатур. Реестр пополняется в любой
// момент, в том числе между запусками.
func (f *TaskFlow) Register(name string, r any) error {
	if !validName(name) {
		return newDeclarationError("runnable", name,
			fmt.Sprintf("runnable name %q must be a valid identifier", name), ErrInvalidName)
	}
	reg, err := classify(name, r)
	if err != nil {
		return err
	}
	return f.registry.add(reg)
}

// Step объявляет шаг flow. Имя шага по умолчанию — имя runnable.
// После первого запуска декларации заморожены.
func (f *TaskFlow) Step(cfg StepConfig) error {
	if cfg.Name == "" {
		cfg.Name = cfg.Runnable
	}
	if !validName(cfg.Name) {
		return newDeclarationError("step", cfg.Name,
			fmt.Sprintf("step name %q must be a valid identifier", cfg.Name), ErrInvalidName)
	}
	if cfg.Runnable == "" {
		return newDeclarationError("step", cfg.Name,
			fmt.Sprintf("step %q has no runnable", cfg.Name), ErrUnknownRunnable)
	}
	if cfg.RetryOnFail != nil && *cfg.RetryOnFail < 0 {
		return newDeclarationError("step", cfg.Name,
			fmt.Sprintf("step %q: retry_on_fail must be non-negative, got %d", cfg.Name, *cfg.RetryOnFail), ErrInvalidName)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return fmt.Errorf("%w: cannot declare step %q", ErrFlowStarted, cfg.Name)
	}
	if _, ok := f.stepIndex[cfg.Name]; ok {
		return newDeclarationError("step", cfg.Name,
			fmt.Sprintf("step %q already declared", cfg.Name), ErrDuplicateStep)
	}

	st := newStep(cfg)
	f.steps = append(f.steps, st)
	f.stepIndex[cfg.Name] = st
	return nil
}

// Alias объявляет именованную ссылку на результат шага fromStep,
// суженный по пути key (может быть пустым или содержать путь вида
// "items[0].name"). Шаг-источник может быть объявлен позже: алиас
// разрешается лениво при выполнении, а несуществующий шаг даёт
// ошибку разрешения в момент обращения.
func (f *TaskFlow) Alias(name, fromStep, key string) error {
	if !validName(name) {
		return newDeclarationError("alias", name,
			fmt.Sprintf("alias name %q must be a valid identifier", name), ErrInvalidName)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return fmt.Errorf("%w: cannot declare alias %q", ErrFlowStarted, name)
	}
	if _, ok := f.aliases[name]; ok {
		return newDeclarationError("alias", name,
			fmt.Sprintf("alias %q already declared", name), ErrDuplicateAlias)
	}

	f.aliases[name] = aliasTarget{step: fromStep, key: key}
	return nil
}

// Parallel объявляет параллельную группу из уже объявленных шагов.
// Группа выполняется конкурентно, когда обход достигает первого её
// члена в этом запуске.
func (f *TaskFlow) Parallel(names ...string) error {
	if len(names) == 0 {
		return newDeclarationError("group", "",
			"parallel group must contain at least one step", ErrEmptyGroup)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return fmt.Errorf("%w: cannot declare parallel group", ErrFlowStarted)
	}
	for _, name := range names {
		if _, ok := f.stepIndex[name]; !ok {
			return newDeclarationError("group", name,
				fmt.Sprintf("parallel group refers to unknown step %q", name), ErrUnknownStep)
		}
	}

	group := make([]string, len(names))
	copy(group, names)
	f.groups = append(f.groups, group)
	return nil
}

// Run выполняет flow от начала до конца и возвращает итоговый
// результат. Первый вызов замораживает декларации и фиксирует порядок
// выполнения; повторные запуски используют тот же порядок с чистым
// состоянием.
//
// При сбое шага возвращается RunError с результатами, накопленными
// до сбоя.
func (f *TaskFlow) Run(ctx context.Context, input string) (*FlowResult, error) {
	steps, order, groups, err := f.beginRun()
	if err != nil {
		return nil, err
	}

	rs := newRunState(input, len(groups))
	logger := telemetry.WithRunID(f.logger, rs.runID)
	logger.Info("flow run started", "steps", len(order))

	exec := &executor{flow: f}
	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return nil, &RunError{RunID: rs.runID, Outputs: rs.snapshotOutputs(), Err: err}
		}
		if rs.isSettled(name) {
			continue
		}
		st := steps[name]

		if members := f.takeGroup(name, groups, rs, steps); members != nil {
			if err := exec.runGroup(ctx, logger, members, rs); err != nil {
				return nil, &RunError{RunID: rs.runID, Outputs: rs.snapshotOutputs(), Err: err}
			}
			continue
		}

		if err := exec.runStep(ctx, logger, st, rs, false); err != nil {
			return nil, &RunError{RunID: rs.runID, Outputs: rs.snapshotOutputs(), Err: err}
		}
	}

	result := f.buildResult(rs)
	logger.Info("flow run succeeded",
		"total_requests", result.Flow.UsageSummary.TotalRequests,
		"total_tokens", result.Flow.UsageSummary.TotalTokens,
	)
	return result, nil
}

// Start запускает flow в фоне и возвращает хэндл для ожидания
// результата.
func (f *TaskFlow) Start(ctx context.Context, input string) *RunHandle {
	h := &RunHandle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.result, h.err = f.Run(ctx, input)
	}()
	return h
}

// RunHandle — хэндл фонового запуска flow.
type RunHandle struct {
	done   chan struct{}
	result *FlowResult
	err    error
}

// Done возвращает канал, закрываемый по завершении запуска.
func (h *RunHandle) Done() <-chan struct{} { return h.done }

// Wait блокируется до завершения запуска или отмены ctx.
func (h *RunHandle) Wait(ctx context.Context) (*FlowResult, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// beginRun замораживает декларации, один раз вычисляет порядок
// выполнения и возвращает снимки, с которыми работает запуск.
func (f *TaskFlow) beginRun() (map[string]*step, []string, [][]string, error) {
	f.mu.Lock()
	if len(f.steps) == 0 {
		f.mu.Unlock()
		return nil, nil, nil, newDeclarationError("flow", f.name,
			fmt.Sprintf("flow %q has no steps", f.name), ErrNoSteps)
	}
	f.started = true
	steps := make(map[string]*step, len(f.stepIndex))
	for name, st := range f.stepIndex {
		steps[name] = st
	}
	declared := make([]*step, len(f.steps))
	copy(declared, f.steps)
	groups := make([][]string, len(f.groups))
	copy(groups, f.groups)
	f.mu.Unlock()

	f.orderOnce.Do(func() {
		f.order, f.orderErr = computeOrder(declared)
	})
	if f.orderErr != nil {
		return nil, nil, nil, f.orderErr
	}
	return steps, f.order, groups, nil
}

// takeGroup возвращает члены первой непотреблённой группы, содержащей
// шаг name, и помечает её потреблённой в состоянии запуска.
func (f *TaskFlow) takeGroup(name string, groups [][]string, rs *runState, steps map[string]*step) []*step {
	for idx, group := range groups {
		member := false
		for _, n := range group {
			if n == name {
				member = true
				break
			}
		}
		if !member {
			continue
		}
		if !rs.consumeGroup(idx) {
			continue
		}

		members := make([]*step, 0, len(group))
		seen := make(map[string]struct{}, len(group))
		for _, n := range group {
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			if st, ok := steps[n]; ok {
				members = append(members, st)
			}
		}
		return members
	}
	return nil
}

// aliasSnapshot возвращает копию карты алиасов для резолвера.
func (f *TaskFlow) aliasSnapshot() map[string]aliasTarget {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]aliasTarget, len(f.aliases))
	for k, v := range f.aliases {
		out[k] = v
	}
	return out
}
