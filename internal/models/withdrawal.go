package models

import (
	"time"

	"github.com/google/uuid"
)

// Withdrawal status enums. Approved is terminal: points stay debited.
// Rejected triggers a compensating withdraw_rejected ledger credit.
const (
	WithdrawalPending  = "pending"
	WithdrawalApproved = "approved"
	WithdrawalRejected = "rejected"
)

type WithdrawalRequest struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	AmountPoints int        `json:"amount_points"`
	Method       string     `json:"method"`
	PayoutTarget string     `json:"payout_target"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}
