package taskflow

// StepStatus — статус шага в рамках одного запуска flow.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	        ↘ SKIPPED          ↘ FAILED (после исчерпания повторов)
type StepStatus string

const (
	// StepStatusPending — шаг ожидает своей очереди.
	StepStatusPending StepStatus = "PENDING"

	// StepStatusSkipped — условие шага вернуло false, шаг пропущен.
	StepStatusSkipped StepStatus = "SKIPPED"

	// StepStatusRunning — шаг выполняется.
	StepStatusRunning StepStatus = "RUNNING"

	// StepStatusSucceeded — шаг успешно завершён.
	StepStatusSucceeded StepStatus = "SUCCEEDED"

	// StepStatusFailed — шаг завершился с ошибкой после всех повторов.
	StepStatusFailed StepStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusSkipped, StepStatusSucceeded, StepStatusFailed:
		return true
	default:
		return false
	}
}
