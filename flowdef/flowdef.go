package flowdef

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/shaiso/taskflow"
)

// Parse разбирает JSON-определение flow. Неизвестные поля считаются
// ошибкой: опечатка в имени поля не должна молча превращаться
// в пропущенную декларацию.
func Parse(data []byte) (*Definition, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("parse flow definition: %w", err)
	}
	return &def, nil
}

// Load читает и разбирает JSON-определение flow из файла.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow definition: %w", err)
	}
	return Parse(data)
}

// Build валидирует определение и собирает из него flow.
//
// runnables — реестр, регистрируемый в собранном flow. Если реестр
// передан (не nil), каждый runnable, на который ссылаются шаги, должен
// в нём присутствовать. Nil-реестр откладывает регистрацию на вызывающую
// сторону: flow.Register доступен вплоть до первого запуска.
func Build(def *Definition, runnables map[string]any) (*taskflow.TaskFlow, error) {
	if err := Validate(def); err != nil {
		return nil, err
	}

	if runnables != nil {
		for i := range def.Steps {
			step := &def.Steps[i]
			if _, ok := runnables[step.Runnable]; !ok {
				return nil, NewValidationError(step.StepName(), "runnable",
					fmt.Sprintf("unknown runnable: %s", step.Runnable), ErrUnknownRunnable)
			}
		}
	}

	flow, err := taskflow.New(taskflow.Config{
		Name:        def.Name,
		RetryOnFail: def.RetryOnFail,
		MaxParallel: def.MaxParallel,
	})
	if err != nil {
		return nil, err
	}

	for name, r := range runnables {
		if err := flow.Register(name, r); err != nil {
			return nil, err
		}
	}

	for i := range def.Steps {
		step := &def.Steps[i]
		cfg := taskflow.StepConfig{
			Name:           step.Name,
			Runnable:       step.Runnable,
			Input:          step.Input,
			PromptTemplate: step.PromptTemplate,
			DependsOn:      step.DependsOn,
			RetryOnFail:    step.RetryOnFail,
			Timeout:        step.timeout(),
		}
		if err := flow.Step(cfg); err != nil {
			return nil, err
		}
	}

	for _, alias := range def.Aliases {
		if err := flow.Alias(alias.Name, alias.Step, alias.Key); err != nil {
			return nil, err
		}
	}

	for _, group := range def.Parallel {
		if err := flow.Parallel(group...); err != nil {
			return nil, err
		}
	}

	return flow, nil
}

// BuildFile — Load и Build одним вызовом.
func BuildFile(path string, runnables map[string]any) (*taskflow.TaskFlow, error) {
	def, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Build(def, runnables)
}
