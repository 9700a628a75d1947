package schedule

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// cronParser — парсер cron-выражений.
// Формат: "минуты часы дни месяцы дни_недели".
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidCron, cronExpr, err)
	}
	return nil
}

// cronLogger адаптирует slog к интерфейсу cron.Logger.
// Информационные сообщения cron болтливы, поэтому уходят в Debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
