package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Callflow/internal/domain"
)

// pgUniqueViolation — SQLSTATE нарушения уникальности.
const pgUniqueViolation = "23505"

const taskColumns = `id, run_id, agent_id, status, retry_attempt, input, output,
		       provider, last_failure_reason, scheduled_at, created_at, updated_at`

// TaskRepo — репозиторий для работы с tasks.
type TaskRepo struct {
	pool *pgxpool.Pool
}

// NewTaskRepo создаёт новый TaskRepo.
func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

// Create создаёт новую task.
func (r *TaskRepo) Create(ctx context.Context, task *domain.Task) error {
	inputJSON, err := marshalJSON(task.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	task.UpdatedAt = task.CreatedAt

	query := `
		INSERT INTO tasks (id, run_id, agent_id, status, retry_attempt, input, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		task.ID,
		nullString(task.RunID),
		nullString(task.AgentID),
		task.Status,
		task.RetryAttempt,
		inputJSON,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Get возвращает task по ID.
func (r *TaskRepo) Get(ctx context.Context, id string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	return scanTask(r.pool.QueryRow(ctx, query, id))
}

// ListByRunID возвращает все tasks run'а.
func (r *TaskRepo) ListByRunID(ctx context.Context, runID string) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE run_id = $1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list tasks by run_id: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// Update меняет статус task и переданные поля.
func (r *TaskRepo) Update(ctx context.Context, id string, u domain.TaskUpdate) error {
	var outputJSON []byte
	if u.Output != nil {
		b, err := marshalJSON(u.Output)
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		outputJSON = b
	}

	query := `
		UPDATE tasks
		SET status = $2,
		    output = COALESCE($3, output),
		    provider = COALESCE($4, provider),
		    last_failure_reason = COALESCE($5, last_failure_reason),
		    retry_attempt = COALESCE($6, retry_attempt),
		    scheduled_at = CASE WHEN $8::boolean THEN NULL ELSE COALESCE($7, scheduled_at) END,
		    updated_at = now()
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		id,
		u.Status,
		outputJSON,
		u.Provider,
		u.LastFailureReason,
		u.RetryAttempt,
		u.ScheduledAt,
		u.ClearScheduledAt,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatusAtomic меняет статус, только если текущий равен from.
func (r *TaskRepo) UpdateStatusAtomic(ctx context.Context, id string, from, to domain.TaskStatus) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE tasks SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("update task status atomic: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// CountByStatus возвращает количество tasks по статусам.
func (r *TaskRepo) CountByStatus(ctx context.Context) (map[domain.TaskStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.TaskStatus]int)
	for rows.Next() {
		var status domain.TaskStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// --- Helpers ---

func scanTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	var inputJSON, outputJSON []byte
	var runID, agentID, provider, failure *string

	err := row.Scan(
		&task.ID,
		&runID,
		&agentID,
		&task.Status,
		&task.RetryAttempt,
		&inputJSON,
		&outputJSON,
		&provider,
		&failure,
		&task.ScheduledAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	if inputJSON != nil {
		if err := json.Unmarshal(inputJSON, &task.Input); err != nil {
			return nil, fmt.Errorf("unmarshal input: %w", err)
		}
	}
	if outputJSON != nil {
		if err := json.Unmarshal(outputJSON, &task.Output); err != nil {
			return nil, fmt.Errorf("unmarshal output: %w", err)
		}
	}
	task.RunID = derefString(runID)
	task.AgentID = derefString(agentID)
	task.Provider = derefString(provider)
	task.LastFailureReason = derefString(failure)

	return &task, nil
}

func marshalJSON(v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
