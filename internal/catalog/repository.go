package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tasktoearn/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const taskColumns = `id, title, kind, reward_points, duration_seconds, resource_url, is_active, created_at, updated_at`

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.Title, &t.Kind, &t.RewardPoints, &t.DurationSeconds, &t.ResourceURL, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListActive returns active tasks the user can still start: no progress row
// in pending or completed for that user. kind filters when non-empty.
func (r *Repository) ListActive(ctx context.Context, kind string, excludeCompletedFor uuid.UUID) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks t
		WHERE t.is_active
		  AND ($1 = '' OR t.kind = $1)
		  AND NOT EXISTS (
			SELECT 1 FROM task_progress p
			WHERE p.task_id = t.id AND p.user_id = $2
			  AND p.status IN ('pending', 'completed')
		  )
		ORDER BY t.created_at DESC
	`, kind, excludeCompletedFor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
}

// GetTx reads a task inside the caller's transaction. Task definitions are
// read, never locked: admin edits do not touch in-flight progress.
func (r *Repository) GetTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error) {
	return scanTask(tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
}

func (r *Repository) Create(ctx context.Context, t *models.Task) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO tasks (id, title, kind, reward_points, duration_seconds, resource_url, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, t.ID, t.Title, t.Kind, t.RewardPoints, t.DurationSeconds, t.ResourceURL, t.IsActive).Scan(&t.CreatedAt, &t.UpdatedAt)
}

// UpdateParams carries optional admin edits. Nil fields are left unchanged.
type UpdateParams struct {
	Title           *string
	RewardPoints    *int
	DurationSeconds *int
	ResourceURL     *string
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (*models.Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `
		UPDATE tasks SET
			title            = COALESCE($2, title),
			reward_points    = COALESCE($3, reward_points),
			duration_seconds = COALESCE($4, duration_seconds),
			resource_url     = COALESCE($5, resource_url),
			updated_at       = now()
		WHERE id = $1
		RETURNING `+taskColumns+`
	`, id, p.Title, p.RewardPoints, p.DurationSeconds, p.ResourceURL))
}

func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks SET is_active = $2, updated_at = now() WHERE id = $1
	`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) ListAll(ctx context.Context) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}
