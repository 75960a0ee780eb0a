package models

import "time"

// Sync attempt statuses
const (
	SyncStatusPending   = "pending"
	SyncStatusDelivered = "delivered"
	SyncStatusFailed    = "failed"
)

// SyncAttempt journals one delivery attempt of an intervention document to
// the downstream reporting system.
type SyncAttempt struct {
	ID             string     `json:"id" db:"id"`
	TenantID       string     `json:"tenant_id" db:"tenant_id"`
	InterventionID string     `json:"intervention_id" db:"intervention_id"`
	Attempt        int        `json:"attempt" db:"attempt"`
	Status         string     `json:"status" db:"status"`
	Error          *string    `json:"error,omitempty" db:"error"`
	NextAttemptAt  *time.Time `json:"next_attempt_at,omitempty" db:"next_attempt_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}
