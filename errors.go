package taskflow

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки декларации flow.
var (
	// ErrInvalidName — имя не является валидным идентификатором.
	ErrInvalidName = errors.New("invalid name")

	// ErrDuplicateStep — несколько шагов с одинаковым именем.
	ErrDuplicateStep = errors.New("duplicate step name")

	// ErrDuplicateAlias — несколько алиасов с одинаковым именем.
	ErrDuplicateAlias = errors.New("duplicate alias name")

	// ErrDuplicateRunnable — runnable с таким именем уже зарегистрирован.
	ErrDuplicateRunnable = errors.New("runnable already registered")

	// ErrInvalidRunnable — значение не поддерживает ни одну форму запуска.
	ErrInvalidRunnable = errors.New("unsupported runnable")

	// ErrUnknownRunnable — шаг ссылается на незарегистрированный runnable.
	ErrUnknownRunnable = errors.New("runnable is not registered")

	// ErrUnknownStep — ссылка на несуществующий шаг.
	ErrUnknownStep = errors.New("unknown step")

	// ErrUnknownDependency — шаг зависит от несуществующего шага.
	ErrUnknownDependency = errors.New("step depends on unknown step")

	// ErrNoSteps — flow не содержит шагов.
	ErrNoSteps = errors.New("flow has no steps")

	// ErrEmptyGroup — параллельная группа не содержит шагов.
	ErrEmptyGroup = errors.New("parallel group has no steps")

	// ErrFlowStarted — декларации после первого запуска запрещены.
	ErrFlowStarted = errors.New("flow already started")
)

// Ошибки построения порядка выполнения.
var (
	// ErrCyclicDependency — обнаружен цикл в зависимостях.
	ErrCyclicDependency = errors.New("cyclic dependency detected")
)

// Ошибки разрешения ссылок.
var (
	// ErrMalformedReference — строка не является одиночной ссылкой {{...}}.
	ErrMalformedReference = errors.New("malformed reference")

	// ErrNoStepOutput — шаг ещё не записал результат.
	ErrNoStepOutput = errors.New("step has no recorded output")

	// ErrKeyNotFound — ключ отсутствует в результате шага.
	ErrKeyNotFound = errors.New("key not found")

	// ErrBadIndex — сегмент пути не является числом, а значение — массив.
	ErrBadIndex = errors.New("invalid sequence index")

	// ErrIndexOutOfRange — индекс за пределами массива.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrUnsupportedType — значение нельзя обойти по оставшемуся пути.
	ErrUnsupportedType = errors.New("value is not traversable")

	// ErrMissingTemplateKey — в prompt-шаблоне ключ без значения.
	ErrMissingTemplateKey = errors.New("prompt template key missing")
)

// Ошибки выполнения шагов.
var (
	// ErrStepTimeout — шаг не уложился в таймаут.
	ErrStepTimeout = errors.New("step timed out")
)

// DeclarationError — ошибка декларации с контекстом.
type DeclarationError struct {
	Entity  string // вид сущности: flow, step, alias, runnable, group
	Name    string // имя сущности
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *DeclarationError) Error() string {
	if e.Name != "" {
		return e.Entity + " " + e.Name + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *DeclarationError) Unwrap() error {
	return e.Err
}

func newDeclarationError(entity, name, message string, err error) *DeclarationError {
	return &DeclarationError{
		Entity:  entity,
		Name:    name,
		Message: message,
		Err:     err,
	}
}

// ResolveError — ошибка разрешения ссылки {{...}} с контекстом:
// какой шаг упоминается, какая ссылка и на каком сегменте пути
// разрешение остановилось.
type ResolveError struct {
	Step    string // шаг, чей результат разрешался
	Ref     string // исходная ссылка без скобок
	Part    string // сегмент пути, вызвавший ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ResolveError) Error() string {
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ResolveError) Unwrap() error {
	return e.Err
}

// StepError — необратимый сбой шага после исчерпания повторов.
type StepError struct {
	Step     string // имя шага
	Attempts int    // число выполненных попыток
	Err      error  // ошибка последней попытки
}

// Error реализует интерфейс error.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed permanently after %d attempt(s): %v", e.Step, e.Attempts, e.Err)
}

// Unwrap возвращает ошибку последней попытки.
func (e *StepError) Unwrap() error {
	return e.Err
}

// StepFailure — пара из имени шага и его ошибки внутри параллельной группы.
type StepFailure struct {
	Step string
	Err  error
}

// ParallelError — агрегированный сбой параллельной группы.
// Содержит только упавшие шаги; успешные члены группы в ошибку не входят.
type ParallelError struct {
	Failures []StepFailure
}

// Error реализует интерфейс error.
func (e *ParallelError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Step, causeOf(f.Err)))
	}
	return "parallel group failed: " + strings.Join(parts, "; ")
}

// Unwrap возвращает ошибки всех упавших шагов.
func (e *ParallelError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// RunError — сбой запуска flow. Сохраняет результаты шагов,
// накопленные до сбоя, для диагностики.
type RunError struct {
	RunID   string         // идентификатор запуска
	Outputs map[string]any // результаты шагов на момент сбоя
	Err     error          // причина сбоя
}

// Error реализует интерфейс error.
func (e *RunError) Error() string {
	return fmt.Sprintf("flow run %s: %v", e.RunID, e.Err)
}

// Unwrap возвращает причину сбоя.
func (e *RunError) Unwrap() error {
	return e.Err
}

// causeOf снимает обёртку StepError, оставляя исходную причину.
func causeOf(err error) error {
	var se *StepError
	if errors.As(err, &se) {
		return se.Err
	}
	return err
}
