package agent

import "errors"

// Ошибки агента.
var (
	// ErrInvalidName — имя агента не является валидным идентификатором.
	ErrInvalidName = errors.New("invalid agent name")

	// ErrNoModel — ни идентификатор модели, ни готовая модель не заданы.
	ErrNoModel = errors.New("agent model is not configured")

	// ErrUnknownProvider — идентификатор модели ссылается на
	// неизвестного провайдера.
	ErrUnknownProvider = errors.New("unknown model provider")

	// ErrUsageLimitExceeded — превышен лимит запросов или токенов.
	ErrUsageLimitExceeded = errors.New("usage limit exceeded")
)
