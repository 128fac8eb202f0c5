package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shaiso/Callflow/internal/domain"
	"github.com/shaiso/Callflow/internal/provider"
	"github.com/shaiso/Callflow/internal/retry"
	"github.com/shaiso/Callflow/internal/telemetry"
)

const (
	msgCallsDisabled = "Outgoing calls are disabled via configuration."

	// outputSummaryLimit — длина сводки output, который не удалось сериализовать.
	outputSummaryLimit = 1000
)

// handleResult записывает CallResult в TaskStore.
func (e *CallExecutor) handleResult(ctx context.Context, log *slog.Logger, job Job, kind provider.Kind, result *domain.CallResult) Outcome {
	msg := job.Message
	output := sanitizeOutput(result.Output())

	switch result.Status {
	case domain.CallStatusCompleted:
		u := domain.StatusOnly(domain.TaskStatusCompleted).WithOutput(output).WithProvider(kind.String())
		if err := e.tasks.Update(ctx, msg.TaskID, u); err != nil {
			log.Error("failed to store completed call", "error", err)
			return OutcomeError
		}
		if err := e.locks.MarkCompleted(ctx, msg.TaskID); err != nil {
			log.Warn("dedup mark failed", "error", err)
		}
		e.rollupRun(ctx, log, msg.RunID)
		log.Info("call completed", "call_id", result.CallID, "duration", result.Duration)
		return OutcomeCompleted

	case domain.CallStatusInProgress:
		u := domain.StatusOnly(domain.TaskStatusInProgress).WithOutput(output).WithProvider(kind.String())
		if err := e.tasks.Update(ctx, msg.TaskID, u); err != nil {
			log.Error("failed to store in-progress call", "error", err)
			return OutcomeError
		}
		log.Info("call dispatched", "call_id", result.CallID)
		return OutcomeInProgress

	default:
		errText := result.Error
		if errText == "" {
			errText = result.CallEndReason
		}
		if errText == "" {
			errText = "call failed without error details"
		}
		log.Warn("call failed", "error", errText)
		return e.handleFailure(ctx, log, job, kind, errText, output)
	}
}

// handleFailure применяет решение RetryClassifier.
//
// RetryNow — retry_attempt+1, статус pending, сообщение переотправляется
// в тот же топик. Hold и Fail — статус failed с причиной.
func (e *CallExecutor) handleFailure(ctx context.Context, log *slog.Logger, job Job, kind provider.Kind, errText string, output map[string]any) Outcome {
	msg := job.Message
	d := retry.Classify(errText, msg.RetryAttempt, e.Settings().MaxRetries)
	telemetry.RetryDecisions.WithLabelValues(d.Action.String(), d.Reason).Inc()

	log = log.With("action", d.Action.String(), "reason", d.Reason)

	if !d.ShouldRequeue() {
		log.Info("task failed, not retrying")
		return e.fail(ctx, log, msg, errText, output, kind)
	}

	next := msg.NextAttempt()
	u := domain.StatusOnly(domain.TaskStatusPending).
		WithRetryAttempt(next.RetryAttempt).
		WithFailure(errText).
		WithProvider(kind.String())
	if err := e.tasks.Update(ctx, msg.TaskID, u); err != nil {
		log.Error("failed to reset task for retry", "error", err)
		return OutcomeError
	}

	topic := job.Topic
	if topic == "" {
		topic = msg.Mode().Topic()
	}
	if err := e.queue.Push(ctx, topic, next); err != nil {
		log.Error("failed to requeue task, marking failed", "error", err)
		return e.fail(ctx, log, msg, fmt.Sprintf("%s (requeue failed: %v)", errText, err), output, kind)
	}

	log.Info("task requeued", "retry_attempt", next.RetryAttempt, "topic", topic)
	return OutcomeRetried
}

// fail переводит task в failed и пересчитывает статус run.
func (e *CallExecutor) fail(ctx context.Context, log *slog.Logger, msg domain.TaskMessage, reason string, output map[string]any, kind ...provider.Kind) Outcome {
	u := domain.StatusOnly(domain.TaskStatusFailed).WithFailure(reason)
	if output != nil {
		u = u.WithOutput(output)
	}
	if len(kind) > 0 && kind[0] != "" {
		u = u.WithProvider(kind[0].String())
	}
	if err := e.tasks.Update(ctx, msg.TaskID, u); err != nil {
		log.Error("failed to mark task failed", "error", err)
		return OutcomeError
	}
	e.rollupRun(ctx, log, msg.RunID)
	return OutcomeFailed
}

// rollupRun завершает run, если у него не осталось нефинальных tasks.
func (e *CallExecutor) rollupRun(ctx context.Context, log *slog.Logger, runID string) {
	if runID == "" {
		return
	}
	status, changed, err := e.tasks.CheckAndUpdateRunStatus(ctx, runID)
	if err != nil {
		log.Warn("run status check failed", "error", err)
		return
	}
	if changed {
		log.Info("run finished", "status", status)
	}
}

// sanitizeOutput проверяет, что output сериализуется в JSON.
// Иначе он заменяется сводкой, чтобы результат звонка не потерялся.
func sanitizeOutput(output map[string]any) map[string]any {
	_, err := json.Marshal(output)
	if err == nil {
		return output
	}

	summary := fmt.Sprintf("%v", output)
	return map[string]any{
		"error":          "Data sanitization required",
		"original_error": err.Error(),
		"data_summary":   domain.Truncate(summary, outputSummaryLimit),
	}
}
