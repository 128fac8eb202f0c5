package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для просмотра runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Inspect runs",
	}

	cmd.AddCommand(newRunShowCmd(clientFn, outputFn))

	return cmd
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show run status and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(run)
				return nil
			}

			out.Table(
				[]string{"RUN_ID", "STATUS", "FINISHED", "CREATED"},
				[][]string{{run.Run.ID, run.Run.Status, run.Run.FinishedAt, run.Run.CreatedAt}},
			)

			rows := make([][]string, len(run.Tasks))
			for i, t := range run.Tasks {
				rows[i] = []string{t.ID, t.Status, strconv.Itoa(t.RetryAttempt), t.Provider, t.LastFailureReason}
			}
			out.Table([]string{"TASK_ID", "STATUS", "RETRY", "PROVIDER", "LAST_FAILURE"}, rows)
			return nil
		},
	}
}
