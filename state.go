package taskflow

import (
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/taskflow/tool"
)

// runState — изменяемое состояние одного запуска flow. Каждый запуск
// получает собственный экземпляр, поэтому повторные и конкурентные
// запуски одного flow не видят результатов друг друга.
type runState struct {
	runID string
	input string

	mu      sync.RWMutex
	outputs map[string]any
	tools   map[string][]tool.Use
	settled map[string]struct{}
	groups  []bool // потреблённые параллельные группы по индексу декларации
}

func newRunState(input string, groupCount int) *runState {
	return &runState{
		runID:   uuid.NewString(),
		input:   input,
		outputs: make(map[string]any),
		tools:   make(map[string][]tool.Use),
		settled: make(map[string]struct{}),
		groups:  make([]bool, groupCount),
	}
}

// recordOutput записывает результат шага. Каждый шаг пишет свой
// результат не более одного раза за запуск.
func (rs *runState) recordOutput(step string, out any) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.outputs[step] = out
}

// recordTools сохраняет вызовы инструментов шага.
func (rs *runState) recordTools(step string, uses []tool.Use) {
	if len(uses) == 0 {
		return
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.tools[step] = uses
}

// output возвращает записанный результат шага.
func (rs *runState) output(step string) (any, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out, ok := rs.outputs[step]
	return out, ok
}

// snapshotOutputs возвращает копию карты результатов. Вложенные
// значения не копируются: условия и хуки не должны их изменять.
func (rs *runState) snapshotOutputs() map[string]any {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make(map[string]any, len(rs.outputs))
	for k, v := range rs.outputs {
		out[k] = v
	}
	return out
}

// stepTools возвращает вызовы инструментов шага.
func (rs *runState) stepTools(step string) []tool.Use {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.tools[step]
}

// markSettled отмечает шаг завершённым: выполненным или пропущенным.
func (rs *runState) markSettled(step string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.settled[step] = struct{}{}
}

// isSettled сообщает, завершён ли шаг в этом запуске.
func (rs *runState) isSettled(step string) bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	_, ok := rs.settled[step]
	return ok
}

// consumeGroup атомарно помечает группу потреблённой. Возвращает
// false, если группа уже была потреблена в этом запуске.
func (rs *runState) consumeGroup(idx int) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.groups[idx] {
		return false
	}
	rs.groups[idx] = true
	return true
}
