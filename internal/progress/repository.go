package progress

import (
	"context"
	"errors"
	"time"

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

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// GetForUpdate locks the progress row for the (user, task) pair.
// Returns (nil, nil) when no row exists yet. Call within a transaction.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, userID, taskID uuid.UUID) (*models.TaskProgress, error) {
	var p models.TaskProgress
	err := tx.QueryRow(ctx, `
		SELECT user_id, task_id, status, started_at, completed_at
		FROM task_progress WHERE user_id = $1 AND task_id = $2
		FOR UPDATE
	`, userID, taskID).Scan(&p.UserID, &p.TaskID, &p.Status, &p.StartedAt, &p.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert writes the full progress row, creating or replacing it.
func (r *Repository) Upsert(ctx context.Context, tx pgx.Tx, p *models.TaskProgress) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO task_progress (user_id, task_id, status, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, task_id)
		DO UPDATE SET status = $3, started_at = $4, completed_at = $5
	`, p.UserID, p.TaskID, p.Status, p.StartedAt, p.CompletedAt)
	return err
}

// UpdateStatus transitions an existing progress row.
func (r *Repository) UpdateStatus(ctx context.Context, tx pgx.Tx, userID, taskID uuid.UUID, status string, completedAt *time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE task_progress SET status = $3, completed_at = $4
		WHERE user_id = $1 AND task_id = $2
	`, userID, taskID, status, completedAt)
	return err
}

// InsertRewardGuard records that the (user, task) pair has been rewarded.
// Returns false when the guard row already exists, meaning the reward was
// settled before and must not be credited again.
func (r *Repository) InsertRewardGuard(ctx context.Context, tx pgx.Tx, userID, taskID uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO task_rewards (user_id, task_id) VALUES ($1, $2)
		ON CONFLICT (user_id, task_id) DO NOTHING
	`, userID, taskID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) InsertProof(ctx context.Context, tx pgx.Tx, p *models.ProofSubmission) error {
	return tx.QueryRow(ctx, `
		INSERT INTO proof_submissions (id, user_id, task_id, image_ref, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, p.ID, p.UserID, p.TaskID, p.ImageRef, p.Status).Scan(&p.CreatedAt)
}

// GetProofForUpdate locks a proof submission row. Returns (nil, nil) when missing.
func (r *Repository) GetProofForUpdate(ctx context.Context, tx pgx.Tx, proofID uuid.UUID) (*models.ProofSubmission, error) {
	var p models.ProofSubmission
	err := tx.QueryRow(ctx, `
		SELECT id, user_id, task_id, image_ref, status, created_at, reviewed_at
		FROM proof_submissions WHERE id = $1
		FOR UPDATE
	`, proofID).Scan(&p.ID, &p.UserID, &p.TaskID, &p.ImageRef, &p.Status, &p.CreatedAt, &p.ReviewedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) UpdateProofStatus(ctx context.Context, tx pgx.Tx, proofID uuid.UUID, status string, reviewedAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE proof_submissions SET status = $2, reviewed_at = $3 WHERE id = $1
	`, proofID, status, reviewedAt)
	return err
}

// GetProof reads a submission without locking. Returns (nil, nil) when missing.
func (r *Repository) GetProof(ctx context.Context, proofID uuid.UUID) (*models.ProofSubmission, error) {
	var p models.ProofSubmission
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, task_id, image_ref, status, created_at, reviewed_at
		FROM proof_submissions WHERE id = $1
	`, proofID).Scan(&p.ID, &p.UserID, &p.TaskID, &p.ImageRef, &p.Status, &p.CreatedAt, &p.ReviewedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProofsByStatus returns submissions for admin review queues.
func (r *Repository) ListProofsByStatus(ctx context.Context, status string) ([]*models.ProofSubmission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, task_id, image_ref, status, created_at, reviewed_at
		FROM proof_submissions WHERE $1 = '' OR status = $1
		ORDER BY created_at
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ProofSubmission
	for rows.Next() {
		var p models.ProofSubmission
		if err := rows.Scan(&p.ID, &p.UserID, &p.TaskID, &p.ImageRef, &p.Status, &p.CreatedAt, &p.ReviewedAt); err != nil {
			return nil, err
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}

// ListByUser returns the user's progress history, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.TaskProgress, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, task_id, status, started_at, completed_at
		FROM task_progress WHERE user_id = $1 ORDER BY started_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.TaskProgress
	for rows.Next() {
		var p models.TaskProgress
		if err := rows.Scan(&p.UserID, &p.TaskID, &p.Status, &p.StartedAt, &p.CompletedAt); err != nil {
			return nil, err
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}
