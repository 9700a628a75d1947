package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

// NewCallCmd создаёт команду вызова flow-эндпоинта на сервере.
func NewCallCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var input string
	var rawInput bool

	cmd := &cobra.Command{
		Use:   "call URL",
		Short: "Call a flow endpoint on a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var inputVal any = input
			if rawInput {
				if err := json.Unmarshal([]byte(input), &inputVal); err != nil {
					return fmt.Errorf("invalid JSON for --input: %w", err)
				}
			}

			result, err := client.Call(args[0], inputVal)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Flow %q finished in %.2fs (trace %s)", result.Flow, result.DurationSeconds, result.TraceID))
			printCallResult(out, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Input passed to the flow")
	cmd.Flags().BoolVar(&rawInput, "raw", false, "Treat --input as a raw JSON value instead of a string")

	return cmd
}

func printCallResult(out *Output, result *CallResult) {
	if out.jsonMode {
		out.JSON(result)
		return
	}

	if result.FlowSummary != nil {
		names := make([]string, 0, len(result.FlowSummary.Steps))
		for name := range result.FlowSummary.Steps {
			names = append(names, name)
		}
		sort.Strings(names)

		rows := make([][]string, len(names))
		for i, name := range names {
			s := result.FlowSummary.Steps[name]
			rows[i] = []string{name, formatValue(s.Output), strconv.Itoa(s.TotalTokens)}
		}
		out.Table([]string{"STEP", "OUTPUT", "TOKENS"}, rows)
	}

	out.KeyValue([][2]string{
		{"OUTPUT", formatValue(result.FinalOutput)},
	})
}
