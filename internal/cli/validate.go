package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/taskflow/flowdef"
)

// NewValidateCmd создаёт команду проверки файла с определением flow.
// Проверка локальная: файл парсится и валидируется без реестра runnable
// и без обращений к серверу.
func NewValidateCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a flow definition file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			def, err := flowdef.Load(args[0])
			if err != nil {
				return err
			}
			if err := flowdef.Validate(def); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Definition is valid: %s (%d steps)", def.Name, len(def.Steps)))

			headers := []string{"STEP", "RUNNABLE", "DEPENDS_ON", "TIMEOUT"}
			rows := make([][]string, len(def.Steps))
			for i, s := range def.Steps {
				timeout := ""
				if s.TimeoutSec > 0 {
					timeout = fmt.Sprintf("%gs", s.TimeoutSec)
				}
				rows[i] = []string{s.StepName(), s.Runnable, strings.Join(s.DependsOn, ","), timeout}
			}

			out.Print(headers, rows, def)
			return nil
		},
	}
}
