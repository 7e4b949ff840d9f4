package models

import (
	"time"

	"github.com/google/uuid"
)

// Task progress status enums. Manual-proof tasks pass through pending
// between started and completed/failed; timed-auto tasks never do.
const (
	ProgressStarted   = "started"
	ProgressPending   = "pending"
	ProgressCompleted = "completed"
	ProgressFailed    = "failed"
)

// TaskProgress is the per-user-per-task lifecycle record. (user_id, task_id)
// is the primary key.
type TaskProgress struct {
	UserID      uuid.UUID  `json:"user_id"`
	TaskID      uuid.UUID  `json:"task_id"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
