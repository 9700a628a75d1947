package flowdef

import "errors"

// Ошибки валидации определения flow.
var (
	// ErrNoSteps — определение не содержит шагов.
	ErrNoSteps = errors.New("flow definition has no steps")

	// ErrEmptyFlowName — определение не содержит имени flow.
	ErrEmptyFlowName = errors.New("flow definition has no name")

	// ErrMissingRunnable — шаг не называет runnable.
	ErrMissingRunnable = errors.New("step has no runnable")

	// ErrDuplicateStep — несколько шагов с одинаковым именем.
	ErrDuplicateStep = errors.New("duplicate step name")

	// ErrUnknownDependency — шаг зависит от несуществующего шага.
	ErrUnknownDependency = errors.New("step depends on unknown step")

	// ErrSelfDependency — шаг зависит от самого себя.
	ErrSelfDependency = errors.New("step depends on itself")

	// ErrCyclicDependency — обнаружен цикл в зависимостях.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrInvalidValue — недопустимое значение поля.
	ErrInvalidValue = errors.New("invalid field value")
)

// Ошибки алиасов и параллельных групп.
var (
	// ErrEmptyAliasName — алиас не имеет имени.
	ErrEmptyAliasName = errors.New("alias has no name")

	// ErrDuplicateAlias — несколько алиасов с одинаковым именем.
	ErrDuplicateAlias = errors.New("duplicate alias name")

	// ErrUnknownAliasStep — алиас ссылается на несуществующий шаг.
	ErrUnknownAliasStep = errors.New("alias refers to unknown step")

	// ErrEmptyGroup — параллельная группа не содержит шагов.
	ErrEmptyGroup = errors.New("parallel group has no steps")

	// ErrUnknownGroupStep — группа ссылается на несуществующий шаг.
	ErrUnknownGroupStep = errors.New("parallel group refers to unknown step")
)

// Ошибки сборки flow.
var (
	// ErrUnknownRunnable — шаг ссылается на runnable, которого нет
	// в переданном реестре.
	ErrUnknownRunnable = errors.New("runnable is not in the registry")
)

// ValidationError — ошибка валидации определения с контекстом.
type ValidationError struct {
	Step    string // имя шага, где произошла ошибка (может быть пустым)
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Step != "" {
		return "step " + e.Step + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(step, field, message string, err error) *ValidationError {
	return &ValidationError{
		Step:    step,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
