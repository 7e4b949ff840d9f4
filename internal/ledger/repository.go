package ledger

import (
	"context"
	"errors"

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

// AddPoints adds amount to the user's cached balance and returns the new balance.
func (r *Repository) AddPoints(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int) (newBalance int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE users SET points = points + $1, updated_at = now()
		WHERE id = $2
		RETURNING points
	`, amount, userID).Scan(&newBalance)
	return newBalance, err
}

// DeductPoints atomically deducts amount if points >= amount. The conditional
// UPDATE takes the row lock, so concurrent debits for the same user serialize
// and the balance can never go negative.
func (r *Repository) DeductPoints(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int) (newBalance int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE users SET points = points - $1, updated_at = now()
		WHERE id = $2 AND points >= $1
		RETURNING points
	`, amount, userID).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInsufficientBalance
	}
	return newBalance, err
}

// InsertEntry appends a ledger entry inside the given transaction.
func (r *Repository) InsertEntry(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (id, user_id, action, points, related_id, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.UserID, e.Action, e.Points, e.RelatedID, e.BalanceAfter).Scan(&e.CreatedAt)
}

func (r *Repository) GetBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	var points int
	err := r.pool.QueryRow(ctx, `SELECT points FROM users WHERE id = $1`, userID).Scan(&points)
	return points, err
}

// SumEntries returns the sum of signed deltas for the user. It must always
// equal the cached users.points balance.
func (r *Repository) SumEntries(ctx context.Context, userID uuid.UUID) (int, error) {
	var sum int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(points), 0) FROM ledger_entries WHERE user_id = $1
	`, userID).Scan(&sum)
	return sum, err
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, action, points, related_id, balance_after, created_at
		FROM ledger_entries WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Points, &e.RelatedID, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
