package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/taskflow"
	"github.com/shaiso/taskflow/flowdef"
	"github.com/shaiso/taskflow/steps"
)

// NewRunCmd создаёт команду локального запуска flow из файла.
// Доступны только встроенные runnable (http, transform, delay и т.д.):
// шаги с агентами требуют сервера, где настроены модели.
func NewRunCmd(outputFn func() *Output) *cobra.Command {
	var input string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Run a flow definition locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			def, err := flowdef.Load(args[0])
			if err != nil {
				return err
			}

			flow, err := flowdef.Build(def, nil)
			if err != nil {
				return err
			}
			if err := steps.RegisterDefaults(flow); err != nil {
				return err
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			start := time.Now()
			result, err := flow.Run(ctx, input)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Flow %q finished in %s (run %s)", def.Name, time.Since(start).Round(time.Millisecond), result.RunID))
			printRunResult(out, result.Flow.Steps, result.Flow.UsageSummary.TotalTokens, result.Output, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Input passed to the flow")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort the run after this duration (0 = no limit)")

	return cmd
}

// printRunResult выводит итоги шагов и финальный результат запуска.
// В JSON-режиме печатается jsonData целиком.
func printRunResult(out *Output, stepSummaries map[string]taskflow.StepSummary, totalTokens int, finalOutput any, jsonData any) {
	if out.jsonMode {
		out.JSON(jsonData)
		return
	}

	names := make([]string, 0, len(stepSummaries))
	for name := range stepSummaries {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, len(names))
	for i, name := range names {
		s := stepSummaries[name]
		rows[i] = []string{name, formatValue(s.Output), strconv.Itoa(s.TotalTokens)}
	}
	out.Table([]string{"STEP", "OUTPUT", "TOKENS"}, rows)

	out.KeyValue([][2]string{
		{"TOTAL_TOKENS", strconv.Itoa(totalTokens)},
		{"OUTPUT", formatValue(finalOutput)},
	})
}
