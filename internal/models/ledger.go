package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry action enums.
const (
	LedgerActionTaskReward       = "task_reward"
	LedgerActionWithdrawRequest  = "withdraw_request"
	LedgerActionWithdrawRejected = "withdraw_rejected"
)

// LedgerEntry is an immutable, append-only record of a point-balance change.
// Points is the signed delta; the sum of deltas for a user must always equal
// the cached users.points balance.
type LedgerEntry struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	Action       string     `json:"action"`
	Points       int        `json:"points"`
	RelatedID    *uuid.UUID `json:"related_id,omitempty"`
	BalanceAfter *int       `json:"balance_after,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
