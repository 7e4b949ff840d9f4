package models

import (
	"time"

	"github.com/google/uuid"
)

// Task kind enums. Timed-auto tasks (e.g. watch-ad) complete after a
// server-checked duration; manual-proof tasks require an image reviewed
// by an admin.
const (
	TaskKindTimedAuto   = "timed_auto"
	TaskKindManualProof = "manual_proof"
)

type Task struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Kind            string    `json:"kind"`
	RewardPoints    int       `json:"reward_points"`
	DurationSeconds int       `json:"duration_seconds"`
	ResourceURL     *string   `json:"resource_url,omitempty"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
