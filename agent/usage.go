package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/shaiso/taskflow"
)

// usageCollector накапливает расход модели по ходу одного запуска
// агента и прерывает запуск при превышении лимитов. Лимиты сверяются
// с суммой base и acc, поэтому общий накопитель шага учитывается.
//
// Реализует callbacks.Handler: внутри react-агента вызовы модели
// видны только через колбэки графа.
type usageCollector struct {
	limits *taskflow.UsageLimits
	cancel context.CancelFunc

	mu   sync.Mutex
	base taskflow.Usage // расход, накопленный до этого запуска
	acc  taskflow.Usage // расход этого запуска
	err  error
}

var _ callbacks.Handler = (*usageCollector)(nil)

func newUsageCollector(limits *taskflow.UsageLimits, base *taskflow.Usage) *usageCollector {
	c := &usageCollector{limits: limits}
	if base != nil {
		c.base = *base
	}
	return c
}

// beforeRequest учитывает начало вызова модели и проверяет лимит запросов.
func (c *usageCollector) beforeRequest() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.acc.Requests++
	if c.limits != nil && c.limits.RequestLimit > 0 &&
		c.base.Requests+c.acc.Requests > c.limits.RequestLimit {
		c.fail(fmt.Errorf("%w: request limit is %d", ErrUsageLimitExceeded, c.limits.RequestLimit))
	}
	return c.err
}

// addMessage учитывает токены ответа по его метаданным.
func (c *usageCollector) addMessage(msg *schema.Message) {
	if msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return
	}
	u := msg.ResponseMeta.Usage
	c.addTokens(u.PromptTokens, u.CompletionTokens, u.TotalTokens)
}

// addTokens прибавляет токены и проверяет лимит токенов.
func (c *usageCollector) addTokens(prompt, completion, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.acc.PromptTokens += prompt
	c.acc.CompletionTokens += completion
	c.acc.TotalTokens += total
	if c.limits != nil && c.limits.TotalTokensLimit > 0 &&
		c.base.TotalTokens+c.acc.TotalTokens > c.limits.TotalTokensLimit {
		c.fail(fmt.Errorf("%w: total tokens limit is %d", ErrUsageLimitExceeded, c.limits.TotalTokensLimit))
	}
}

// fail фиксирует первую ошибку лимита и отменяет запуск. Вызывается под mu.
func (c *usageCollector) fail(err error) {
	if c.err != nil {
		return
	}
	c.err = err
	if c.cancel != nil {
		c.cancel()
	}
}

// limitErr возвращает ошибку лимита, если она была зафиксирована.
func (c *usageCollector) limitErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// snapshot возвращает расход этого запуска.
func (c *usageCollector) snapshot() taskflow.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acc
}

func (c *usageCollector) OnStart(ctx context.Context, info *callbacks.RunInfo, _ callbacks.CallbackInput) context.Context {
	if info != nil && info.Component == components.ComponentOfChatModel {
		c.beforeRequest()
	}
	return ctx
}

func (c *usageCollector) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	if info == nil || info.Component != components.ComponentOfChatModel {
		return ctx
	}
	out := model.ConvCallbackOutput(output)
	if out == nil {
		return ctx
	}
	if out.TokenUsage != nil {
		c.addTokens(out.TokenUsage.PromptTokens, out.TokenUsage.CompletionTokens, out.TokenUsage.TotalTokens)
	} else {
		c.addMessage(out.Message)
	}
	return ctx
}

func (c *usageCollector) OnError(ctx context.Context, _ *callbacks.RunInfo, _ error) context.Context {
	return ctx
}

func (c *usageCollector) OnStartWithStreamInput(ctx context.Context, _ *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	return ctx
}

func (c *usageCollector) OnEndWithStreamOutput(ctx context.Context, _ *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	output.Close()
	return ctx
}
