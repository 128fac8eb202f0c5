package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

// NewStatsCmd создаёт команду вывода статистики.
func NewStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task counts, provider counters and latency",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			stats, err := client.Stats()
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(stats)
				return nil
			}

			if len(stats.Tasks) > 0 {
				statuses := make([]string, 0, len(stats.Tasks))
				for s := range stats.Tasks {
					statuses = append(statuses, s)
				}
				sort.Strings(statuses)

				rows := make([][]string, len(statuses))
				for i, s := range statuses {
					rows[i] = []string{s, strconv.Itoa(stats.Tasks[s])}
				}
				out.Table([]string{"STATUS", "TASKS"}, rows)
			}

			var rows [][]string
			for _, m := range stats.Modes {
				providers := make([]string, 0, len(m.Ceilings))
				for p := range m.Ceilings {
					providers = append(providers, p)
				}
				sort.Strings(providers)

				for _, p := range providers {
					rows = append(rows, []string{
						m.Mode,
						p,
						fmt.Sprintf("%d/%d", m.Counters[p], m.Ceilings[p]),
						m.Latency.Average.String(),
						m.Latency.P95.String(),
						m.SLA.String(),
					})
				}
			}
			out.Table([]string{"MODE", "PROVIDER", "ACTIVE", "AVG", "P95", "SLA"}, rows)

			out.Success(fmt.Sprintf("Scheduled: %d", stats.Scheduled))
			return nil
		},
	}
}

// NewScheduledCmd создаёт группу команд для отложенных tasks.
func NewScheduledCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduled",
		Short: "Inspect deferred tasks",
	}

	cmd.AddCommand(
		newScheduledListCmd(clientFn, outputFn),
		newScheduledSweepCmd(clientFn, outputFn),
	)

	return cmd
}

func newScheduledListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deferred tasks ordered by ready time",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			entries, err := client.ListScheduled(limit)
			if err != nil {
				return err
			}

			rows := make([][]string, len(entries))
			for i, e := range entries {
				rows[i] = []string{e.TaskID, e.ReadyAt}
			}

			out.Print([]string{"TASK_ID", "READY_AT"}, rows, entries)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newScheduledSweepCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Requeue deferred tasks that are due",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			resp, err := client.Sweep()
			if err != nil {
				return err
			}

			out.Print(
				[]string{"DUE", "REQUEUED", "STALE", "CORRUPT", "FAILED", "SKIPPED", "REMAINING"},
				[][]string{{
					strconv.Itoa(resp.Due),
					strconv.Itoa(resp.Requeued),
					strconv.Itoa(resp.Stale),
					strconv.Itoa(resp.Corrupt),
					strconv.Itoa(resp.Failed),
					strconv.Itoa(resp.Skipped),
					strconv.FormatInt(resp.Remaining, 10),
				}},
				resp,
			)
			return nil
		},
	}
}

// NewCountersCmd создаёт группу команд для счётчиков провайдеров.
func NewCountersCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counters",
		Short: "Manage provider concurrency counters",
	}

	cmd.AddCommand(newCountersResetCmd(clientFn, outputFn))

	return cmd
}

func newCountersResetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req ResetRequest

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset provider counters to zero",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			resp, err := client.ResetCounters(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Counters reset: modes=%v providers=%v", resp.Modes, resp.Providers))
			if out.jsonMode {
				out.JSON(resp)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Mode, "mode", "", "Reset only this mode (normal, bulk)")
	cmd.Flags().StringSliceVar(&req.Providers, "provider", nil, "Provider to reset (repeatable)")

	return cmd
}
