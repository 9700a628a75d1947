package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	einoagent "github.com/cloudwego/eino/flow/agent"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"

	"github.com/shaiso/taskflow"
	"github.com/shaiso/taskflow/memory"
	"github.com/shaiso/taskflow/tool"
)

const (
	// hookTimeout — предел времени одного pre/post-хука.
	hookTimeout = 5 * time.Second

	// defaultRetries — повторы вызова модели после временных сбоев.
	defaultRetries = 3

	// maxBackoff — потолок паузы между повторами.
	maxBackoff = 10 * time.Second
)

// StartContext — контекст пользовательской функции запуска: вход после
// pre-хуков и декларация агента.
type StartContext struct {
	Input        string
	SystemPrompt string
	Model        string
	Tools        []*tool.Tool
	ExtraInputs  map[string]any
}

// StartFunc — пользовательская функция запуска. Если задана, замещает
// модельный конвейер агента целиком.
type StartFunc func(ctx context.Context, sc *StartContext) (any, error)

// Config — конфигурация агента.
type Config struct {
	// Name — имя агента, валидный идентификатор. Обязательно.
	Name string

	// Model — идентификатор модели по умолчанию вида "provider/model".
	Model string

	// ChatModel — готовая модель. Имеет приоритет над Model.
	ChatModel model.ToolCallingChatModel

	// SystemPrompt — системный промпт. Пустой заменяется промптом,
	// сгенерированным по списку инструментов.
	SystemPrompt string

	// Tools — инструменты, доступные агенту.
	Tools []*tool.Tool

	// MaxSteps — предел итераций react-агента. Ноль — значение eino.
	MaxSteps int

	// Memory — буфер истории диалога между запусками. Если задан,
	// накопленная история входит в каждый запрос перед историей шага,
	// а успешный обмен дописывается в буфер.
	Memory *memory.Buffer

	// Retries — число повторов вызова модели после временного сбоя.
	// Nil означает 3.
	Retries *int

	// PreHooks и PostHooks — преобразования входа и результата.
	// Выполняются перед хуками, переданными во входе шага.
	PreHooks  []taskflow.ValueHook
	PostHooks []taskflow.ValueHook

	// OnStart — пользовательская функция запуска.
	OnStart StartFunc

	// Logger — логгер агента. Nil — slog.Default.
	Logger *slog.Logger
}

// Agent — LLM-агент с инструментами поверх eino. Реализует
// taskflow.Runnable, поэтому регистрируется во flow как обычный
// runnable; может вызываться и напрямую.
//
// Агент без инструментов вызывает модель напрямую; с инструментами —
// строит react-агента и кэширует его по идентификатору модели.
type Agent struct {
	name         string
	modelID      string
	chatModel    model.ToolCallingChatModel
	systemPrompt string
	tools        []*tool.Tool
	maxSteps     int
	memory       *memory.Buffer
	retries      int
	preHooks     []taskflow.ValueHook
	postHooks    []taskflow.ValueHook
	onStart      StartFunc
	logger       *slog.Logger

	mu     sync.Mutex
	agents map[string]*react.Agent
}

var _ taskflow.Runnable = (*Agent)(nil)

// New создаёт агента по конфигурации.
func New(cfg Config) (*Agent, error) {
	if !validName(cfg.Name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, cfg.Name)
	}
	if cfg.Model != "" {
		if err := validateModelID(cfg.Model); err != nil {
			return nil, err
		}
	}

	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt(cfg.Tools)
	}

	retries := defaultRetries
	if cfg.Retries != nil {
		retries = *cfg.Retries
		if retries < 0 {
			retries = 0
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Agent{
		name:         cfg.Name,
		modelID:      cfg.Model,
		chatModel:    cfg.ChatModel,
		systemPrompt: prompt,
		tools:        append([]*tool.Tool(nil), cfg.Tools...),
		maxSteps:     cfg.MaxSteps,
		memory:       cfg.Memory,
		retries:      retries,
		preHooks:     cfg.PreHooks,
		postHooks:    cfg.PostHooks,
		onStart:      cfg.OnStart,
		logger:       logger.With("agent", cfg.Name),
		agents:       make(map[string]*react.Agent),
	}, nil
}

// Name возвращает имя агента.
func (a *Agent) Name() string { return a.name }

// SystemPrompt возвращает действующий системный промпт.
func (a *Agent) SystemPrompt() string { return a.systemPrompt }

// Run выполняет агента: pre-хуки над входом, пользовательский запуск
// либо модельный конвейер, post-хуки над результатом. Возвращает
// *taskflow.Response с расходом модели и вызовами инструментов.
func (a *Agent) Run(ctx context.Context, rc *taskflow.RunContext) (any, error) {
	if rc == nil {
		rc = &taskflow.RunContext{}
	}

	tr := rc.Tracker
	if tr == nil {
		tr = tool.TrackerFromContext(ctx)
	}
	if tr == nil {
		tr = tool.NewTracker()
	}
	ctx = tool.WithTracker(ctx, tr)
	// Вложенный агент дописывает в трекер внешнего шага; своими
	// считаются только записи после этой отметки.
	recorded := tr.Len()

	input := textOf(a.applyHooks(ctx, "pre", combineHooks(a.preHooks, rc.PreHooks), rc.Input))

	modelID := a.modelID
	if rc.Model != "" {
		modelID = rc.Model
	}

	if a.onStart != nil {
		out, err := a.onStart(ctx, &StartContext{
			Input:        input,
			SystemPrompt: a.systemPrompt,
			Model:        modelID,
			Tools:        a.tools,
			ExtraInputs:  rc.ExtraInputs,
		})
		if err != nil {
			return nil, fmt.Errorf("agent %q: custom start: %w", a.name, err)
		}
		return &taskflow.Response{Output: out}, nil
	}

	col := newUsageCollector(rc.UsageLimits, rc.Usage)
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	col.cancel = cancelRun

	history := a.mergedHistory(rc.MessageHistory)
	gen, err := a.generator(ctx, modelID, input, history, rc, col)
	if err != nil {
		return nil, err
	}

	out, err := a.generate(ctx, runCtx, gen, col)
	if err != nil {
		return nil, err
	}
	if a.memory != nil {
		a.memory.AddUser(input)
		a.memory.AddAssistant(out.Content)
	}

	usage := col.snapshot()
	if usage.Requests == 0 {
		// Модель, не видимая колбэкам, отчитывается метаданными ответа.
		usage.Requests = 1
		if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
			u := out.ResponseMeta.Usage
			usage.PromptTokens = u.PromptTokens
			usage.CompletionTokens = u.CompletionTokens
			usage.TotalTokens = u.TotalTokens
		}
	}
	if rc.Usage != nil {
		rc.Usage.Add(&usage)
	}

	output := a.applyHooks(ctx, "post", combineHooks(a.postHooks, rc.PostHooks), any(out.Content))

	uses := tr.Uses()
	if recorded <= len(uses) {
		uses = uses[recorded:]
	}
	return &taskflow.Response{Output: output, Usage: &usage, ToolsUsed: uses}, nil
}

// generator возвращает функцию одного вызова модели: прямой вызов для
// агента без инструментов, Generate react-агента — с инструментами.
func (a *Agent) generator(ctx context.Context, modelID, input string, history []memory.Message, rc *taskflow.RunContext, col *usageCollector) (func(context.Context) (*schema.Message, error), error) {
	mopts := modelOptions(rc.ModelSettings)

	if len(a.tools) == 0 {
		cm, err := a.resolveModel(ctx, modelID)
		if err != nil {
			return nil, err
		}
		msgs := a.chatMessages(history, input)
		return func(ctx context.Context) (*schema.Message, error) {
			if err := col.beforeRequest(); err != nil {
				return nil, err
			}
			msg, err := cm.Generate(ctx, msgs, mopts...)
			if err != nil {
				return nil, err
			}
			col.addMessage(msg)
			return msg, nil
		}, nil
	}

	ra, err := a.reactAgent(ctx, modelID)
	if err != nil {
		return nil, err
	}
	msgs := append(historyMessages(history), schema.UserMessage(input))
	genOpts := []einoagent.AgentOption{
		einoagent.WithComposeOptions(compose.WithCallbacks(col)),
	}
	if len(mopts) > 0 {
		genOpts = append(genOpts, einoagent.WithComposeOptions(compose.WithChatModelOption(mopts...)))
	}
	return func(ctx context.Context) (*schema.Message, error) {
		return ra.Generate(ctx, msgs, genOpts...)
	}, nil
}

// generate выполняет вызов модели с повторами после временных сбоев.
// runCtx отменяется коллектором при превышении лимитов, parent —
// контекст вызвавшей стороны.
func (a *Agent) generate(parent, runCtx context.Context, gen func(context.Context) (*schema.Message, error), col *usageCollector) (*schema.Message, error) {
	var out *schema.Message
	var lastErr error

	for attempt := 0; attempt <= a.retries; attempt++ {
		if attempt > 0 {
			a.logger.Info("retrying model call", "attempt", attempt+1, "attempts", a.retries+1)
			if err := waitBackoff(parent, attempt); err != nil {
				break
			}
		}

		out, lastErr = gen(runCtx)
		if lerr := col.limitErr(); lerr != nil {
			return nil, fmt.Errorf("agent %q: %w", a.name, lerr)
		}
		if lastErr == nil {
			return out, nil
		}
		if parent.Err() != nil || !retryable(lastErr) {
			break
		}
		a.logger.Warn("model call failed", "attempt", attempt+1, "error", lastErr)
	}
	return nil, fmt.Errorf("agent %q: %w", a.name, lastErr)
}

// resolveModel возвращает модель для запуска: готовую или построенную
// по идентификатору.
func (a *Agent) resolveModel(ctx context.Context, modelID string) (model.ToolCallingChatModel, error) {
	if a.chatModel != nil && (modelID == "" || modelID == a.modelID) {
		return a.chatModel, nil
	}
	if modelID == "" {
		return nil, fmt.Errorf("agent %q: %w", a.name, ErrNoModel)
	}
	return NewChatModel(ctx, modelID)
}

// reactAgent строит react-агента для модели и кэширует его.
func (a *Agent) reactAgent(ctx context.Context, modelID string) (*react.Agent, error) {
	key := modelID
	if a.chatModel != nil && (modelID == "" || modelID == a.modelID) {
		key = ""
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if ra, ok := a.agents[key]; ok {
		return ra, nil
	}

	cm, err := a.resolveModel(ctx, modelID)
	if err != nil {
		return nil, err
	}

	tcfg := compose.ToolsNodeConfig{}
	for _, t := range a.tools {
		tcfg.Tools = append(tcfg.Tools, t.Eino())
	}

	ra, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: cm,
		ToolsConfig:      tcfg,
		MaxStep:          a.maxSteps,
		MessageModifier:  systemModifier(a.systemPrompt),
	})
	if err != nil {
		return nil, fmt.Errorf("agent %q: build react agent: %w", a.name, err)
	}
	a.agents[key] = ra
	return ra, nil
}

// AsTool экспортирует агента как инструмент: вложенные агенты
// вызываются внешним агентом наравне с обычными инструментами.
func (a *Agent) AsTool(description string) (*tool.Tool, error) {
	if description == "" {
		description = fmt.Sprintf("Agent wrapper: %s", a.name)
	}
	return tool.New(tool.Config{
		Name:        a.name,
		Description: description,
		Schema: &tool.Schema{
			Properties: map[string]tool.Property{
				"input": {Type: "string", Description: "Input passed to the agent"},
			},
			Required: []string{"input"},
		},
		Func: func(ctx context.Context, args map[string]any) (any, error) {
			input, _ := args["input"].(string)
			out, err := a.Run(ctx, &taskflow.RunContext{Input: input})
			if err != nil {
				return nil, err
			}
			if resp, ok := out.(*taskflow.Response); ok {
				return resp.Output, nil
			}
			return out, nil
		},
	})
}

// applyHooks прогоняет значение через цепочку хуков. Сбой или таймаут
// хука оставляет значение прежним.
func (a *Agent) applyHooks(ctx context.Context, stage string, hooks []taskflow.ValueHook, value any) any {
	for i, h := range hooks {
		if h == nil {
			continue
		}
		next, err := runHook(ctx, h, value)
		if err != nil {
			a.logger.Warn("hook failed, value kept", "stage", stage, "hook", i, "error", err)
			continue
		}
		value = next
	}
	return value
}

// runHook выполняет один хук с таймаутом.
func runHook(ctx context.Context, h taskflow.ValueHook, value any) (any, error) {
	hctx, cancel := context.WithTimeout(ctx, hookTimeout)
	defer cancel()

	type result struct {
		value any
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("hook panicked: %v", r)}
			}
		}()
		v, err := h(hctx, value)
		done <- result{value: v, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-hctx.Done():
		return nil, fmt.Errorf("hook timed out after %s", hookTimeout)
	}
}

// systemModifier добавляет системный промпт перед сообщениями запуска.
func systemModifier(prompt string) func(ctx context.Context, input []*schema.Message) []*schema.Message {
	return func(_ context.Context, input []*schema.Message) []*schema.Message {
		res := make([]*schema.Message, 0, len(input)+1)
		res = append(res, schema.SystemMessage(prompt))
		return append(res, input...)
	}
}

// chatMessages собирает сообщения прямого вызова модели.
func (a *Agent) chatMessages(history []memory.Message, input string) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(history)+2)
	msgs = append(msgs, schema.SystemMessage(a.systemPrompt))
	msgs = append(msgs, historyMessages(history)...)
	return append(msgs, schema.UserMessage(input))
}

// mergedHistory объединяет историю буфера и историю, объявленную
// шагом: буфер идёт первым как более старая часть диалога.
func (a *Agent) mergedHistory(declared []memory.Message) []memory.Message {
	if a.memory == nil {
		return declared
	}
	buffered := a.memory.Messages()
	if len(declared) == 0 {
		return buffered
	}
	out := make([]memory.Message, 0, len(buffered)+len(declared))
	out = append(out, buffered...)
	return append(out, declared...)
}

// historyMessages переводит историю диалога в сообщения eino.
func historyMessages(history []memory.Message) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case memory.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(m.Content, nil))
		case memory.RoleSystem:
			msgs = append(msgs, schema.SystemMessage(m.Content))
		default:
			msgs = append(msgs, schema.UserMessage(m.Content))
		}
	}
	return msgs
}

// combineHooks объединяет хуки агента и хуки входа шага.
func combineHooks(own, extra []taskflow.ValueHook) []taskflow.ValueHook {
	if len(extra) == 0 {
		return own
	}
	out := make([]taskflow.ValueHook, 0, len(own)+len(extra))
	out = append(out, own...)
	return append(out, extra...)
}

// waitBackoff выдерживает паузу перед повтором: 1s, 2s, 4s... с потолком.
func waitBackoff(ctx context.Context, attempt int) error {
	wait := time.Duration(1<<uint(attempt-1)) * time.Second
	if wait > maxBackoff {
		wait = maxBackoff
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryable сообщает, стоит ли повторять вызов после этой ошибки.
func retryable(err error) bool {
	s := err.Error()
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "operation timed out") ||
		strings.Contains(s, "context deadline exceeded") ||
		strings.Contains(s, "read tcp") ||
		strings.Contains(s, "write tcp")
}

// textOf приводит значение после pre-хуков к тексту входа модели.
func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
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
