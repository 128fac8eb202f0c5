// Callflow CLI — инструмент командной строки для admin API:
// постановка звонков, просмотр tasks и runs, статистика и обслуживание.
//
// Использование:
//
//	callflow [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	task       Постановка и просмотр tasks
//	run        Просмотр runs
//	stats      Статистика
//	scheduled  Отложенные tasks
//	counters   Счётчики провайдеров
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Callflow/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "callflow",
		Short:         "Callflow CLI — outbound call orchestration",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := os.Getenv("CALLFLOW_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewTaskCmd(clientFn, outputFn),
		cli.NewRunCmd(clientFn, outputFn),
		cli.NewStatsCmd(clientFn, outputFn),
		cli.NewScheduledCmd(clientFn, outputFn),
		cli.NewCountersCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
