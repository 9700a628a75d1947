package taskflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/taskflow/internal/telemetry"
	"github.com/shaiso/taskflow/memory"
	"github.com/shaiso/taskflow/tool"
)

// ModelSettings — параметры генерации модели.
type ModelSettings struct {
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
}

// UsageLimits — ограничения расхода на один вызов runnable.
type UsageLimits struct {
	RequestLimit     int `json:"request_limit,omitempty"`
	TotalTokensLimit int `json:"total_tokens_limit,omitempty"`
}

// Usage — счётчики расхода модели.
type Usage struct {
	Requests         int `json:"requests"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add прибавляет счётчики other.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.Requests += other.Requests
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// ValueHook — преобразование значения до или после вызова runnable.
type ValueHook func(ctx context.Context, value any) (any, error)

// RunContext — разобранный вход одного вызова runnable. Собирается
// исполнителем из карты входов шага после разрешения ссылок: значения
// зарезервированных ключей попадают в одноимённые поля, остальные — в
// ExtraInputs.
type RunContext struct {
	// Input — основной текстовый вход шага.
	Input string

	// Model — идентификатор модели, переопределяющий модель runnable.
	Model string

	// ModelSettings — параметры генерации, если заданы входом шага.
	ModelSettings *ModelSettings

	// UsageLimits — ограничения расхода, если заданы входом шага.
	UsageLimits *UsageLimits

	// Usage — накопитель расхода, если передан входом шага.
	Usage *Usage

	// MessageHistory — история диалога, объявленная шагом.
	MessageHistory []memory.Message

	// PreHooks и PostHooks — преобразования входа и результата.
	PreHooks  []ValueHook
	PostHooks []ValueHook

	// ExtraInputs — все незарезервированные ключи входа шага.
	ExtraInputs map[string]any

	// Tracker — трекер вызовов инструментов этого шага.
	Tracker *tool.Tracker
}

// Response — структурированный результат runnable: полезный выход
// плюс расход модели и вызовы инструментов. Runnable может вернуть
// и произвольное значение; Response нужен, когда есть что отчитать
// помимо результата.
type Response struct {
	Output    any        `json:"output"`
	Usage     *Usage     `json:"usage,omitempty"`
	ToolsUsed []tool.Use `json:"tools_used,omitempty"`
}

// Runnable — каноническая форма исполняемой единицы шага:
// полный контекст запуска одним аргументом.
type Runnable interface {
	Run(ctx context.Context, rc *RunContext) (any, error)
}

// LoggerFromContext возвращает логгер шага из контекста вызова
// runnable. Логгер несёт атрибуты flow, run_id и step, поэтому записи
// пользовательского кода привязываются к запуску. Вне вызова шага
// возвращает slog.Default.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return telemetry.FromContext(ctx)
}

// InputRunnable — упрощённая форма: текстовый вход и дополнительные
// параметры без остального контекста.
type InputRunnable interface {
	RunInput(ctx context.Context, input string, extra map[string]any) (any, error)
}

// RunnableFunc адаптирует функцию к интерфейсу Runnable.
type RunnableFunc func(ctx context.Context, rc *RunContext) (any, error)

// Run реализует Runnable.
func (f RunnableFunc) Run(ctx context.Context, rc *RunContext) (any, error) {
	return f(ctx, rc)
}

// InputFunc адаптирует функцию к интерфейсу InputRunnable.
type InputFunc func(ctx context.Context, input string, extra map[string]any) (any, error)

// RunInput реализует InputRunnable.
func (f InputFunc) RunInput(ctx context.Context, input string, extra map[string]any) (any, error) {
	return f(ctx, input, extra)
}

// registered — runnable с определённой при регистрации формой запуска.
type registered struct {
	name     string
	ctxRun   Runnable
	inputRun InputRunnable
}

// classify определяет форму запуска значения. Порядок проверки:
// Runnable, InputRunnable, затем голые функции обеих сигнатур.
func classify(name string, r any) (*registered, error) {
	switch v := r.(type) {
	case Runnable:
		return &registered{name: name, ctxRun: v}, nil
	case InputRunnable:
		return &registered{name: name, inputRun: v}, nil
	case func(ctx context.Context, rc *RunContext) (any, error):
		return &registered{name: name, ctxRun: RunnableFunc(v)}, nil
	case func(ctx context.Context, input string, extra map[string]any) (any, error):
		return &registered{name: name, inputRun: InputFunc(v)}, nil
	default:
		return nil, newDeclarationError("runnable", name,
			fmt.Sprintf("runnable %q has unsupported type %T", name, r), ErrInvalidRunnable)
	}
}

// invoke выполняет runnable в определённой при регистрации форме.
func (r *registered) invoke(ctx context.Context, rc *RunContext) (any, error) {
	if r.ctxRun != nil {
		return r.ctxRun.Run(ctx, rc)
	}
	return r.inputRun.RunInput(ctx, rc.Input, rc.ExtraInputs)
}

// registry — реестр runnable по именам. Пополняется в любой момент
// жизни flow, в том числе между запусками.
type registry struct {
	mu    sync.RWMutex
	items map[string]*registered
}

func newRegistry() *registry {
	return &registry{items: make(map[string]*registered)}
}

func (rg *registry) add(r *registered) error {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	if _, ok := rg.items[r.name]; ok {
		return newDeclarationError("runnable", r.name,
			fmt.Sprintf("runnable %q already registered", r.name), ErrDuplicateRunnable)
	}
	rg.items[r.name] = r
	return nil
}

func (rg *registry) get(name string) (*registered, bool) {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	r, ok := rg.items[name]
	return r, ok
}
