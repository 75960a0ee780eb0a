package models

import "time"

// Report types
const (
	ReportTypeQPR = "QPR"
	ReportTypeHR  = "HR"
	ReportTypeSPR = "SPR"
	ReportTypeSR  = "SR"
)

// ReportingRequirement is one reporting window for an intervention. Windows
// of the same report type must not overlap.
type ReportingRequirement struct {
	ID             string     `json:"id" db:"id"`
	TenantID       string     `json:"tenant_id" db:"tenant_id"`
	InterventionID string     `json:"intervention_id" db:"intervention_id"`
	ReportType     string     `json:"report_type" db:"report_type"`
	StartDate      time.Time  `json:"start_date" db:"start_date"`
	EndDate        time.Time  `json:"end_date" db:"end_date"`
	DueDate        time.Time  `json:"due_date" db:"due_date"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// ReportingWindow is one window in a planner replace request.
type ReportingWindow struct {
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
	DueDate   time.Time `json:"due_date" validate:"required"`
}

// ReplaceReportingRequirementsRequest atomically replaces the windows for one
// (intervention, report type).
type ReplaceReportingRequirementsRequest struct {
	ReportingRequirements []ReportingWindow `json:"reporting_requirements" validate:"required,dive"`
}

// AppliedIndicator backs the high-frequency guard on HR windows.
type AppliedIndicator struct {
	ID              string     `json:"id" db:"id"`
	TenantID        string     `json:"tenant_id" db:"tenant_id"`
	LowerResultID   string     `json:"lower_result_id" db:"lower_result_id"`
	Title           string     `json:"title" db:"title"`
	IsHighFrequency bool       `json:"is_high_frequency" db:"is_high_frequency"`
	IsActive        bool       `json:"is_active" db:"is_active"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}
