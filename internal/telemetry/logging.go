package telemetry

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// SetupLogger инициализирует глобальный логгер по переменным окружения.
//
// LOG_LEVEL задаёт уровень: DEBUG, INFO, WARN, ERROR (по умолчанию
// INFO). LOG_FORMAT задаёт формат вывода: "json" для production
// (по умолчанию) либо "text" для разработки. На уровне DEBUG в записи
// добавляется источник вызова.
func SetupLogger() *slog.Logger {
	level := LogLevel()
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// LogLevel читает уровень логирования из LOG_LEVEL.
// Нераспознанное значение трактуется как INFO.
func LogLevel() slog.Level {
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loggerKey — ключ логгера в контексте.
type loggerKey struct{}

// WithLogger привязывает логгер к контексту. Исполнитель шага кладёт
// сюда логгер с атрибутами запуска перед вызовом runnable.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext извлекает логгер из контекста.
// Если логгер не привязан, возвращает глобальный.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithRunID возвращает логгер с добавленным run_id.
func WithRunID(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With("run_id", runID)
}

// WithFlow возвращает логгер с добавленным именем flow.
func WithFlow(logger *slog.Logger, flow string) *slog.Logger {
	return logger.With("flow", flow)
}

// WithStep возвращает логгер с добавленным именем шага.
func WithStep(logger *slog.Logger, step string) *slog.Logger {
	return logger.With("step", step)
}
