package withdrawal

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

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, w *models.WithdrawalRequest) error {
	return tx.QueryRow(ctx, `
		INSERT INTO withdrawal_requests (id, user_id, amount_points, method, payout_target, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, w.ID, w.UserID, w.AmountPoints, w.Method, w.PayoutTarget, w.Status).Scan(&w.CreatedAt)
}

// GetForUpdate locks a withdrawal request row. Returns (nil, nil) when missing.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := tx.QueryRow(ctx, `
		SELECT id, user_id, amount_points, method, payout_target, status, created_at, resolved_at
		FROM withdrawal_requests WHERE id = $1
		FOR UPDATE
	`, id).Scan(&w.ID, &w.UserID, &w.AmountPoints, &w.Method, &w.PayoutTarget, &w.Status, &w.CreatedAt, &w.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, resolvedAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE withdrawal_requests SET status = $2, resolved_at = $3 WHERE id = $1
	`, id, status, resolvedAt)
	return err
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.WithdrawalRequest, error) {
	return r.list(ctx, `WHERE user_id = $1`, userID)
}

// ListByStatus returns requests for the admin queue; empty status means all.
func (r *Repository) ListByStatus(ctx context.Context, status string) ([]*models.WithdrawalRequest, error) {
	return r.list(ctx, `WHERE $1 = '' OR status = $1`, status)
}

func (r *Repository) list(ctx context.Context, where string, arg interface{}) ([]*models.WithdrawalRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, amount_points, method, payout_target, status, created_at, resolved_at
		FROM withdrawal_requests `+where+` ORDER BY created_at DESC
	`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.WithdrawalRequest
	for rows.Next() {
		var w models.WithdrawalRequest
		if err := rows.Scan(&w.ID, &w.UserID, &w.AmountPoints, &w.Method, &w.PayoutTarget, &w.Status, &w.CreatedAt, &w.ResolvedAt); err != nil {
			return nil, err
		}
		list = append(list, &w)
	}
	return list, rows.Err()
}
