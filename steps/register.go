package steps

import (
	"github.com/shaiso/taskflow"
)

// RegisterDefaults регистрирует встроенные runnable во flow:
// http, transform и delay.
func RegisterDefaults(f *taskflow.TaskFlow) error {
	if err := f.Register("http", NewHTTPRunnable()); err != nil {
		return err
	}
	if err := f.Register("transform", NewTransformRunnable()); err != nil {
		return err
	}
	return f.Register("delay", NewDelayRunnable())
}
