package models

import "time"

// InterventionReview is the review-committee record backing the
// review → signature guard.
type InterventionReview struct {
	ID                    string     `json:"id" db:"id"`
	TenantID              string     `json:"tenant_id" db:"tenant_id"`
	InterventionID        string     `json:"intervention_id" db:"intervention_id"`
	ReviewType            string     `json:"review_type" db:"review_type"`
	OverallApproval       *bool      `json:"overall_approval,omitempty" db:"overall_approval"`
	SubmittedByID         *string    `json:"submitted_by_id,omitempty" db:"submitted_by_id"`
	ReviewDate            *time.Time `json:"review_date,omitempty" db:"review_date"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt             *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Approved reports whether the review recommends the document for approval.
func (r *InterventionReview) Approved() bool {
	return r.OverallApproval != nil && *r.OverallApproval
}

// CreateReviewRequest records a review outcome for an intervention.
type CreateReviewRequest struct {
	ReviewType      string     `json:"review_type" validate:"required,oneof=prc non-prc no-review"`
	OverallApproval *bool      `json:"overall_approval,omitempty"`
	ReviewDate      *time.Time `json:"review_date,omitempty"`
}
