// Taskflow CLI — инструмент командной строки для работы с файлами
// определений flow и с taskflow API.
//
// Использование:
//
//	taskflow [--api-url URL] [--api-key KEY] [--json] <command> [flags]
//
// Команды:
//
//	validate  Проверка файла определения flow
//	run       Локальный запуск определения со встроенными runnable
//	call      Вызов flow-эндпоинта на сервере
//	status    Состояние сервера
//	schedule  Управление расписаниями
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/taskflow/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var apiKey string
	var timeout time.Duration
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "taskflow",
		Short:         "Taskflow CLI — step orchestration tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8000", "API server URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("TASKFLOW_API_KEY"), "API key (env TASKFLOW_API_KEY)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "HTTP request timeout")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL, apiKey, timeout) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewValidateCmd(outputFn),
		cli.NewRunCmd(outputFn),
		cli.NewCallCmd(clientFn, outputFn),
		cli.NewStatusCmd(clientFn, outputFn),
		cli.NewScheduleCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
