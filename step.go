package taskflow

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/taskflow/memory"
)

// Condition — предикат пропуска шага. Получает копию результатов уже
// завершённых шагов; false означает, что шаг пропускается без вызова
// runnable и без хуков.
type Condition func(outputs map[string]any) bool

// StartHook вызывается перед первой попыткой шага.
type StartHook func(step string, input string)

// CompleteHook вызывается после успешного завершения шага.
type CompleteHook func(step string, output any)

// ErrorHook вызывается после необратимого сбоя шага.
type ErrorHook func(step string, errMsg string)

// StepConfig — декларация одного шага flow.
type StepConfig struct {
	// Name — уникальное имя шага. По умолчанию — имя runnable.
	Name string

	// Runnable — имя зарегистрированного runnable. Обязательно.
	Runnable string

	// Input — карта входов шага. Строковые значения вида {{...}}
	// разрешаются в момент выполнения; остальные значения передаются
	// как есть.
	Input map[string]any

	// PromptTemplate — шаблон промпта с ключами {{key}} из
	// незарезервированных входов. Отрендеренный шаблон замещает input.
	PromptTemplate string

	// DependsOn — имена шагов, которые должны завершиться раньше.
	DependsOn []string

	// Condition — предикат пропуска. Nil означает «выполнять всегда».
	Condition Condition

	// RetryOnFail — число повторов после неудачной попытки.
	// Nil наследует значение flow.
	RetryOnFail *int

	// Timeout — предел длительности одной попытки. Ноль отключает таймаут.
	Timeout time.Duration

	// MessageHistory — история диалога, передаваемая runnable.
	MessageHistory []memory.Message

	// OnStart, OnComplete, OnError — хуки уровня шага.
	OnStart    StartHook
	OnComplete CompleteHook
	OnError    ErrorHook
}

// step — внутреннее представление объявленного шага. Декларация
// копируется при создании и далее не меняется.
type step struct {
	id             string
	name           string
	runnable       string
	input          map[string]any
	promptTemplate string
	dependsOn      []string
	condition      Condition
	retryOnFail    *int
	timeout        time.Duration
	messageHistory []memory.Message
	onStart        StartHook
	onComplete     CompleteHook
	onError        ErrorHook
}

func newStep(cfg StepConfig) *step {
	return &step{
		id:             uuid.NewString(),
		name:           cfg.Name,
		runnable:       cfg.Runnable,
		input:          copyMap(cfg.Input),
		promptTemplate: cfg.PromptTemplate,
		dependsOn:      dedupe(cfg.DependsOn),
		condition:      cfg.Condition,
		retryOnFail:    cfg.RetryOnFail,
		timeout:        cfg.Timeout,
		messageHistory: append([]memory.Message(nil), cfg.MessageHistory...),
		onStart:        cfg.OnStart,
		onComplete:     cfg.OnComplete,
		onError:        cfg.OnError,
	}
}

// retries возвращает бюджет повторов шага с учётом значения flow.
func (s *step) retries(flowDefault int) int {
	if s.retryOnFail != nil {
		return *s.retryOnFail
	}
	return flowDefault
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func dedupe(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, s := range list {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// validName проверяет, что имя начинается с буквы или подчёркивания
// и состоит из букв, цифр и подчёркиваний.
func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
