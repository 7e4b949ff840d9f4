package withdrawal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tasktoearn/backend/internal/models"
)

var (
	// ErrBelowMinimum is returned when the amount is under the configured floor.
	ErrBelowMinimum = errors.New("amount below minimum withdrawal")
	// ErrNotFound is returned when the withdrawal request does not exist.
	ErrNotFound = errors.New("withdrawal request not found")
	// ErrNotPending is returned when resolving an already-resolved request.
	ErrNotPending = errors.New("withdrawal request already resolved")
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repo is the withdrawal storage interface used by the service.
type Repo interface {
	Insert(ctx context.Context, tx pgx.Tx, w *models.WithdrawalRequest) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.WithdrawalRequest, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, resolvedAt time.Time) error
}

// Ledger is the subset of the points ledger the withdrawal manager needs.
type Ledger interface {
	Debit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int, action string, relatedID *uuid.UUID) (int, error)
	Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int, action string, relatedID *uuid.UUID) (int, error)
}

// Service reserves points for withdrawal requests and settles admin
// decisions. Request creation debits the ledger and inserts the request in
// one transaction; a rejection refunds via a compensating ledger entry,
// never by mutating history.
type Service struct {
	Pool        TxBeginner
	Repo        Repo
	Ledger      Ledger
	MinWithdraw int

	// Now is injectable for tests.
	Now func() time.Time
}

func NewService(pool TxBeginner, repo Repo, ledger Ledger, minWithdraw int) *Service {
	return &Service{Pool: pool, Repo: repo, Ledger: ledger, MinWithdraw: minWithdraw, Now: time.Now}
}

// Request debits amount points and records a pending withdrawal. Fails with
// ErrBelowMinimum before touching the ledger, and with
// ledger.ErrInsufficientBalance (passed through) when the balance is short —
// in both cases with zero ledger effect.
func (s *Service) Request(ctx context.Context, userID uuid.UUID, amount int, method, payoutTarget string) (*models.WithdrawalRequest, error) {
	if amount < s.MinWithdraw {
		return nil, ErrBelowMinimum
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	w := &models.WithdrawalRequest{
		ID:           uuid.New(),
		UserID:       userID,
		AmountPoints: amount,
		Method:       method,
		PayoutTarget: payoutTarget,
		Status:       models.WithdrawalPending,
	}
	withdrawalID := w.ID
	if _, err := s.Ledger.Debit(ctx, tx, userID, amount, models.LedgerActionWithdrawRequest, &withdrawalID); err != nil {
		return nil, err
	}
	if err := s.Repo.Insert(ctx, tx, w); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// Resolve settles a pending request. Approve is terminal: the points stay
// debited. Reject credits the same amount back with a withdraw_rejected
// entry, returning the balance to its pre-request level.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID, approve bool) (*models.WithdrawalRequest, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	w, err := s.Repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ErrNotFound
	}
	if w.Status != models.WithdrawalPending {
		return nil, ErrNotPending
	}

	now := s.Now()
	if approve {
		w.Status = models.WithdrawalApproved
	} else {
		w.Status = models.WithdrawalRejected
		withdrawalID := w.ID
		if _, err := s.Ledger.Credit(ctx, tx, w.UserID, w.AmountPoints, models.LedgerActionWithdrawRejected, &withdrawalID); err != nil {
			return nil, err
		}
	}
	if err := s.Repo.UpdateStatus(ctx, tx, id, w.Status, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	w.ResolvedAt = &now
	return w, nil
}
