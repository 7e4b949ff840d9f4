package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Points       int        `json:"points"`
	ReferralCode string     `json:"referral_code"`
	ReferredBy   *uuid.UUID `json:"referred_by,omitempty"`
	IsAdmin      bool       `json:"is_admin"`
	IsBanned     bool       `json:"is_banned"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
