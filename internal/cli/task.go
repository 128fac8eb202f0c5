package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewTaskCmd создаёт группу команд для управления tasks.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage call tasks",
	}

	cmd.AddCommand(
		newTaskEnqueueCmd(clientFn, outputFn),
		newTaskShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newTaskEnqueueCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req EnqueueRequest
	var number string
	var data string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Create a call task and put it into the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req.Data = map[string]any{}
			if data != "" {
				if err := json.Unmarshal([]byte(data), &req.Data); err != nil {
					return fmt.Errorf("invalid --data JSON: %w", err)
				}
			}
			if number != "" {
				req.Data["contact_number"] = number
			}

			resp, err := client.EnqueueTask(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task %s enqueued to %s", resp.TaskID, resp.Topic))
			out.Print(
				[]string{"TASK_ID", "RUN_ID", "MODE", "TOPIC"},
				[][]string{{resp.TaskID, resp.RunID, resp.Mode, resp.Topic}},
				resp,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&number, "number", "", "Contact phone number")
	cmd.Flags().StringVar(&data, "data", "", "Task data as JSON object")
	cmd.Flags().StringVar(&req.TaskID, "id", "", "Task ID (generated when empty)")
	cmd.Flags().StringVar(&req.RunID, "run-id", "", "Run ID")
	cmd.Flags().StringVar(&req.AgentID, "agent-id", "", "Agent ID")
	cmd.Flags().StringVar(&req.Instructions, "instructions", "", "Agent instructions")
	cmd.Flags().IntVar(&req.BatchCount, "batch-count", 0, "Batch size, large batches go to the bulk queue")
	cmd.Flags().StringVar(&req.Mode, "mode", "", "Force queue mode (normal, bulk)")

	return cmd
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show TASK_ID",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.GetTask(args[0])
			if err != nil {
				return err
			}

			out.Details(
				[][2]string{
					{"ID", task.ID},
					{"Run ID", task.RunID},
					{"Agent ID", task.AgentID},
					{"Status", task.Status},
					{"Retry attempt", strconv.Itoa(task.RetryAttempt)},
					{"Provider", task.Provider},
					{"Last failure", task.LastFailureReason},
					{"Scheduled at", task.ScheduledAt},
					{"Created", task.CreatedAt},
					{"Updated", task.UpdatedAt},
				},
				task,
			)
			return nil
		},
	}
}
