package flowdef

import "time"

// Definition — декларативное JSON-описание flow.
//
// Определение покрывает декларации: шаги, зависимости, алиасы,
// параллельные группы и настройки повторов. Условия пропуска и хуки —
// это код, в JSON они не выражаются; их навешивают на собранный flow
// через API пакета taskflow.
type Definition struct {
	// Name — имя flow, валидный идентификатор.
	Name string `json:"name"`

	// Description — описание назначения flow. Не интерпретируется.
	Description string `json:"description,omitempty"`

	// RetryOnFail — число повторов шага по умолчанию после неудачной
	// попытки. Шаг может переопределить его своим retry_on_fail.
	RetryOnFail int `json:"retry_on_fail,omitempty"`

	// MaxParallel ограничивает число одновременно выполняемых шагов
	// параллельной группы. Ноль — без ограничения.
	MaxParallel int `json:"max_parallel,omitempty"`

	// Steps — шаги flow в порядке декларации.
	Steps []StepDef `json:"steps"`

	// Aliases — именованные ссылки на результаты шагов.
	Aliases []AliasDef `json:"aliases,omitempty"`

	// Parallel — параллельные группы: списки имён шагов, выполняемых
	// конкурентно, когда обход достигает первого члена группы.
	Parallel [][]string `json:"parallel,omitempty"`
}

// StepDef — определение одного шага.
type StepDef struct {
	// Name — уникальное имя шага. По умолчанию — имя runnable.
	Name string `json:"name,omitempty"`

	// Runnable — имя runnable в реестре flow. Обязательно.
	Runnable string `json:"runnable"`

	// Input — карта входов шага. Строковые значения вида {{...}}
	// разрешаются в момент выполнения; остальные значения передаются
	// как есть.
	Input map[string]any `json:"input,omitempty"`

	// PromptTemplate — шаблон промпта с ключами {{key}} из
	// незарезервированных входов.
	PromptTemplate string `json:"prompt_template,omitempty"`

	// DependsOn — имена шагов, которые должны завершиться раньше.
	DependsOn []string `json:"depends_on,omitempty"`

	// RetryOnFail — число повторов после неудачной попытки.
	// Отсутствие поля наследует значение flow.
	RetryOnFail *int `json:"retry_on_fail,omitempty"`

	// TimeoutSec — предел длительности одной попытки в секундах.
	// Доли секунды допустимы; ноль отключает таймаут.
	TimeoutSec float64 `json:"timeout_sec,omitempty"`
}

// StepName возвращает действующее имя шага: Name, а при его
// отсутствии — имя runnable.
func (s *StepDef) StepName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Runnable
}

// timeout переводит TimeoutSec в time.Duration.
func (s *StepDef) timeout() time.Duration {
	return time.Duration(s.TimeoutSec * float64(time.Second))
}

// AliasDef — именованная ссылка на результат шага.
type AliasDef struct {
	// Name — имя алиаса, валидный идентификатор.
	Name string `json:"name"`

	// Step — имя шага, на результат которого ссылается алиас.
	Step string `json:"step"`

	// Key — путь внутри записи результата шага, например
	// "output.items[0].name". Пустой путь — вся запись.
	Key string `json:"key,omitempty"`
}
