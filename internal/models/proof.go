package models

import (
	"time"

	"github.com/google/uuid"
)

// Proof submission status enums.
const (
	ProofPending  = "pending"
	ProofApproved = "approved"
	ProofRejected = "rejected"
)

// ProofSubmission is one manual-task proof image awaiting admin review.
// The image blob is deleted after review; ImageRef stays for audit.
type ProofSubmission struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	TaskID     uuid.UUID  `json:"task_id"`
	ImageRef   string     `json:"image_ref"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
}
