package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tasktoearn/backend/internal/models"
)

// ErrInsufficientBalance is returned when a debit exceeds the user's balance.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ErrInvalidAmount is returned for zero or negative credit/debit amounts.
var ErrInvalidAmount = errors.New("amount must be positive")

// BalanceRepo is the minimal cached-balance interface for the ledger service.
type BalanceRepo interface {
	AddPoints(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int) (newBalance int, err error)
	DeductPoints(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int) (newBalance int, err error)
}

// EntryRepo is the minimal append-only entry interface for the ledger service.
type EntryRepo interface {
	InsertEntry(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
}

// Service applies point-balance changes as one unit: update the cached
// balance, then append the matching ledger entry. Both run inside the
// caller's transaction; if either fails the caller rolls back and no
// partial mutation survives.
type Service struct {
	Balances BalanceRepo
	Entries  EntryRepo
}

func NewService(balances BalanceRepo, entries EntryRepo) *Service {
	return &Service{Balances: balances, Entries: entries}
}

// Credit adds amount points and appends an entry with a positive delta.
// Call within a transaction.
func (s *Service) Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int, action string, relatedID *uuid.UUID) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	newBalance, err := s.Balances.AddPoints(ctx, tx, userID, amount)
	if err != nil {
		return 0, err
	}
	entry := &models.LedgerEntry{
		ID:           uuid.New(),
		UserID:       userID,
		Action:       action,
		Points:       amount,
		RelatedID:    relatedID,
		BalanceAfter: intPtr(newBalance),
	}
	if err := s.Entries.InsertEntry(ctx, tx, entry); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// Debit removes amount points and appends an entry with a negative delta.
// Returns ErrInsufficientBalance when amount exceeds the current balance.
// Call within a transaction.
func (s *Service) Debit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int, action string, relatedID *uuid.UUID) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	newBalance, err := s.Balances.DeductPoints(ctx, tx, userID, amount)
	if err != nil {
		return 0, err
	}
	entry := &models.LedgerEntry{
		ID:           uuid.New(),
		UserID:       userID,
		Action:       action,
		Points:       -amount,
		RelatedID:    relatedID,
		BalanceAfter: intPtr(newBalance),
	}
	if err := s.Entries.InsertEntry(ctx, tx, entry); err != nil {
		return 0, err
	}
	return newBalance, nil
}

func intPtr(n int) *int { return &n }
