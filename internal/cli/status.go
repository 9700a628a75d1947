package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewStatusCmd создаёт команду проверки состояния сервера.
func NewStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			health, err := client.Healthz()
			if err != nil {
				return err
			}

			out.PrintKV([][2]string{
				{"STATUS", health.Status},
				{"VERSION", health.Version},
				{"UPTIME", fmt.Sprintf("%.0fs", health.UptimeSeconds)},
				{"ENDPOINTS", strconv.Itoa(health.Endpoints)},
			}, health)
			return nil
		},
	}
}
