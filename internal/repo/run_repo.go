package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Callflow/internal/domain"
)

// RunRepo — репозиторий для работы с runs.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// Create создаёт новый run. Повторное создание того же run игнорируется.
func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	if run.Status == "" {
		run.Status = domain.RunStatusPending
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO runs (id, status, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, run.ID, run.Status, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Get возвращает run по ID.
func (r *RunRepo) Get(ctx context.Context, id string) (*domain.Run, error) {
	var run domain.Run
	err := r.pool.QueryRow(ctx, `
		SELECT id, status, finished_at, created_at FROM runs WHERE id = $1
	`, id).Scan(&run.ID, &run.Status, &run.FinishedAt, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return &run, nil
}

// CheckAndUpdateRunStatus финализирует run одним UPDATE: статус меняется,
// только если все tasks run'а финальны и run ещё не финализирован.
func (r *RunRepo) CheckAndUpdateRunStatus(ctx context.Context, runID string) (domain.RunStatus, bool, error) {
	if runID == "" {
		return "", false, nil
	}

	query := `
		WITH stats AS (
			SELECT COUNT(*) AS total,
			       COUNT(*) FILTER (WHERE status = 'completed') AS completed,
			       COUNT(*) FILTER (WHERE status = 'failed') AS failed
			FROM tasks
			WHERE run_id = $1
		)
		UPDATE runs
		SET status = CASE
		        WHEN stats.failed = stats.total THEN 'failed'
		        WHEN stats.completed = stats.total THEN 'completed'
		        ELSE 'partially_completed'
		    END,
		    finished_at = now()
		FROM stats
		WHERE runs.id = $1
		  AND stats.total > 0
		  AND stats.completed + stats.failed = stats.total
		  AND runs.status NOT IN ('completed', 'failed', 'partially_completed')
		RETURNING runs.status
	`
	var status domain.RunStatus
	err := r.pool.QueryRow(ctx, query, runID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("update run status: %w", err)
	}
	return status, true, nil
}

// --- Helpers ---

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
