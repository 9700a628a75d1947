package flowdef

import (
	"fmt"
	"strings"
)

// Validate выполняет полную валидацию определения.
//
// Проверяет:
// - Наличие имени flow и шагов
// - Уникальность имён шагов
// - Наличие runnable у каждого шага
// - Валидность зависимостей (depends_on)
// - Отсутствие циклов
// - Валидность алиасов и параллельных групп
//
// Наличие runnable в реестре здесь не проверяется: реестр — свойство
// собираемого flow, а не определения. Build выполняет эту проверку,
// когда реестр передан.
func Validate(def *Definition) error {
	if def == nil || len(def.Steps) == 0 {
		return ErrNoSteps
	}

	if def.Name == "" {
		return NewValidationError("", "name", "flow definition has no name", ErrEmptyFlowName)
	}
	if def.RetryOnFail < 0 {
		return NewValidationError("", "retry_on_fail",
			fmt.Sprintf("retry_on_fail must be non-negative, got %d", def.RetryOnFail), ErrInvalidValue)
	}
	if def.MaxParallel < 0 {
		return NewValidationError("", "max_parallel",
			fmt.Sprintf("max_parallel must be non-negative, got %d", def.MaxParallel), ErrInvalidValue)
	}

	// Собираем имена шагов, проверяя каждый шаг по отдельности.
	names := make(map[string]bool, len(def.Steps))

	for i := range def.Steps {
		if err := validateStep(&def.Steps[i], names); err != nil {
			return err
		}
	}

	if err := validateDependencies(def.Steps, names); err != nil {
		return err
	}
	if err := validateAliases(def.Aliases, names); err != nil {
		return err
	}
	if err := validateGroups(def.Parallel, names); err != nil {
		return err
	}

	return detectCycle(def.Steps)
}

// validateStep валидирует один шаг.
// names — уже встреченные имена шагов (для проверки уникальности).
func validateStep(step *StepDef, names map[string]bool) error {
	name := step.StepName()

	if step.Runnable == "" {
		return NewValidationError(name, "runnable", "step has no runnable", ErrMissingRunnable)
	}

	if names[name] {
		return NewValidationError(name, "name",
			fmt.Sprintf("duplicate step name: %s", name), ErrDuplicateStep)
	}
	names[name] = true

	for _, dep := range step.DependsOn {
		if dep == name {
			return NewValidationError(name, "depends_on",
				"step depends on itself", ErrSelfDependency)
		}
	}

	if step.RetryOnFail != nil && *step.RetryOnFail < 0 {
		return NewValidationError(name, "retry_on_fail",
			fmt.Sprintf("retry_on_fail must be non-negative, got %d", *step.RetryOnFail), ErrInvalidValue)
	}
	if step.TimeoutSec < 0 {
		return NewValidationError(name, "timeout_sec",
			fmt.Sprintf("timeout_sec must be non-negative, got %v", step.TimeoutSec), ErrInvalidValue)
	}

	return nil
}

// validateDependencies проверяет, что все depends_on ссылаются на
// существующие шаги.
func validateDependencies(steps []StepDef, names map[string]bool) error {
	for i := range steps {
		step := &steps[i]

		for _, dep := range step.DependsOn {
			if !names[dep] {
				return NewValidationError(step.StepName(), "depends_on",
					fmt.Sprintf("depends on unknown step: %s", dep), ErrUnknownDependency)
			}
		}
	}

	return nil
}

// validateAliases валидирует алиасы: имя, уникальность, существование
// шага-источника.
func validateAliases(aliases []AliasDef, names map[string]bool) error {
	seen := make(map[string]bool, len(aliases))

	for i := range aliases {
		alias := &aliases[i]

		if alias.Name == "" {
			return NewValidationError("", "aliases",
				fmt.Sprintf("alias %d has no name", i), ErrEmptyAliasName)
		}
		if seen[alias.Name] {
			return NewValidationError("", "aliases",
				fmt.Sprintf("duplicate alias name: %s", alias.Name), ErrDuplicateAlias)
		}
		seen[alias.Name] = true

		if !names[alias.Step] {
			return NewValidationError("", "aliases",
				fmt.Sprintf("alias %s refers to unknown step: %s", alias.Name, alias.Step), ErrUnknownAliasStep)
		}
	}

	return nil
}

// validateGroups валидирует параллельные группы: непустота и
// существование всех членов.
func validateGroups(groups [][]string, names map[string]bool) error {
	for i, group := range groups {
		if len(group) == 0 {
			return NewValidationError("", "parallel",
				fmt.Sprintf("parallel group %d has no steps", i), ErrEmptyGroup)
		}

		for _, member := range group {
			if !names[member] {
				return NewValidationError("", "parallel",
					fmt.Sprintf("parallel group %d refers to unknown step: %s", i, member), ErrUnknownGroupStep)
			}
		}
	}

	return nil
}

// detectCycle ищет цикл в зависимостях сортировкой Кана. Шаги,
// не вошедшие в порядок, образуют цикл; их имена попадают в ошибку
// в порядке декларации.
func detectCycle(steps []StepDef) error {
	inDegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))

	for i := range steps {
		inDegree[steps[i].StepName()] = 0
	}
	for i := range steps {
		name := steps[i].StepName()
		for _, dep := range steps[i].DependsOn {
			inDegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	queue := make([]string, 0, len(steps))
	for i := range steps {
		if name := steps[i].StepName(); inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	done := 0
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		done++

		for _, dep := range dependents[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if done == len(steps) {
		return nil
	}

	remaining := make([]string, 0, len(steps)-done)
	for i := range steps {
		if name := steps[i].StepName(); inDegree[name] > 0 {
			remaining = append(remaining, name)
		}
	}
	return NewValidationError("", "depends_on",
		fmt.Sprintf("cyclic dependency among steps: %s", strings.Join(remaining, ", ")), ErrCyclicDependency)
}
