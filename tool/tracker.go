package tool

import (
	"context"
	"sync"
	"time"
)

// Status — итоговое состояние одного вызова инструмента.
type Status string

const (
	// StatusSuccess — вызов завершился успешно.
	StatusSuccess Status = "success"

	// StatusFailed — вызов завершился ошибкой.
	StatusFailed Status = "failed"
)

// Use — запись об одном вызове инструмента: аргументы, результат,
// статус и тайминги.
type Use struct {
	ToolName        string         `json:"tool_name"`
	Input           map[string]any `json:"input"`
	Output          any            `json:"output,omitempty"`
	Status          Status         `json:"status"`
	StartTime       time.Time      `json:"start_time"`
	EndTime         time.Time      `json:"end_time"`
	DurationSeconds float64        `json:"duration_seconds"`
	Error           string         `json:"error,omitempty"`
}

// Tracker накапливает записи о вызовах инструментов в рамках одного
// запуска. Потокобезопасен: инструменты могут вызываться конкурентно.
type Tracker struct {
	mu   sync.Mutex
	uses []Use
}

// NewTracker создаёт пустой трекер.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Record добавляет запись о вызове.
func (t *Tracker) Record(u Use) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.uses = append(t.uses, u)
}

// Uses возвращает копию накопленных записей в порядке завершения вызовов.
func (t *Tracker) Uses() []Use {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Use, len(t.uses))
	copy(out, t.uses)
	return out
}

// Len возвращает число записей.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.uses)
}

// Reset очищает трекер.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.uses = nil
}

type trackerKey struct{}

// WithTracker привязывает трекер к контексту. Инструменты, вызванные
// с этим контекстом, записывают свои вызовы в него.
func WithTracker(ctx context.Context, tr *Tracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, tr)
}

// TrackerFromContext извлекает трекер из контекста.
// Возвращает nil, если трекер не привязан.
func TrackerFromContext(ctx context.Context) *Tracker {
	tr, _ := ctx.Value(trackerKey{}).(*Tracker)
	return tr
}
