package models

import "time"

// Assessment types
const (
	AssessmentTypeMicroAssessment     = "micro_assessment"
	AssessmentTypeSimplifiedChecklist = "simplified_checklist"
	AssessmentTypeScheduledAudit      = "scheduled_audit_report"
	AssessmentTypeSpecialAudit        = "special_audit"
	AssessmentTypeHighRiskAssumed     = "high_risk_assumed"
	AssessmentTypeNegativeAudit       = "negative_audit"
	AssessmentTypeSpotCheck           = "spot_check"
)

// Monitoring activity statuses
const (
	MonitoringActivityStatusDraft     = "draft"
	MonitoringActivityStatusCompleted = "completed"
	MonitoringActivityStatusCancelled = "cancelled"
)

// FundsReservation is a FR header linked to an intervention. Its presence is
// the cash precondition for signed → active.
type FundsReservation struct {
	ID                 string     `json:"id" db:"id"`
	TenantID           string     `json:"tenant_id" db:"tenant_id"`
	InterventionID     string     `json:"intervention_id" db:"intervention_id"`
	FRNumber           string     `json:"fr_number" db:"fr_number"`
	Currency           string     `json:"currency" db:"currency"`
	TotalAmount        float64    `json:"total_amount" db:"total_amount"`
	OutstandingAmount  float64    `json:"outstanding_amount" db:"outstanding_amount"`
	ActualAmount       float64    `json:"actual_amount" db:"actual_amount"`
	StartDate          *time.Time `json:"start_date,omitempty" db:"start_date"`
	EndDate            *time.Time `json:"end_date,omitempty" db:"end_date"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Assessment is a completed assurance assessment against a partner.
type Assessment struct {
	ID             string     `json:"id" db:"id"`
	TenantID       string     `json:"tenant_id" db:"tenant_id"`
	PartnerID      string     `json:"partner_id" db:"partner_id"`
	AssessmentType string     `json:"assessment_type" db:"assessment_type"`
	CompletedDate  *time.Time `json:"completed_date,omitempty" db:"completed_date"`
	Active         bool       `json:"active" db:"active"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// MonitoringActivity is a field visit that may count as a programmatic visit
// or spot check in the partner's HACT record.
type MonitoringActivity struct {
	ID          string     `json:"id" db:"id"`
	TenantID    string     `json:"tenant_id" db:"tenant_id"`
	PartnerID   string     `json:"partner_id" db:"partner_id"`
	Status      string     `json:"status" db:"status"`
	IsHact      bool       `json:"is_hact" db:"is_hact"`
	IsSpotCheck bool       `json:"is_spot_check" db:"is_spot_check"`
	EndDate     *time.Time `json:"end_date,omitempty" db:"end_date"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Quarter buckets the activity's end date, or 0 when unset.
func (m *MonitoringActivity) Quarter() int {
	if m.EndDate == nil {
		return 0
	}
	return (int(m.EndDate.Month())-1)/3 + 1
}

// MonitoringActivityGroup collapses several completed HACT activities against
// one partner into a single counted programmatic visit.
type MonitoringActivityGroup struct {
	ID        string     `json:"id" db:"id"`
	TenantID  string     `json:"tenant_id" db:"tenant_id"`
	PartnerID string     `json:"partner_id" db:"partner_id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`

	// Member activity ids, loaded separately
	Members []string `json:"members,omitempty" db:"-"`
}

// UpsertFundsReservationRequest attaches a FR header to an intervention.
type UpsertFundsReservationRequest struct {
	FRNumber          string     `json:"fr_number" validate:"required"`
	Currency          string     `json:"currency" validate:"required,len=3"`
	TotalAmount       float64    `json:"total_amount" validate:"gte=0"`
	OutstandingAmount float64    `json:"outstanding_amount" validate:"gte=0"`
	ActualAmount      float64    `json:"actual_amount" validate:"gte=0"`
	StartDate         *time.Time `json:"start_date,omitempty"`
	EndDate           *time.Time `json:"end_date,omitempty"`
}

// CreateAssessmentRequest records an assessment against a partner.
type CreateAssessmentRequest struct {
	AssessmentType string     `json:"assessment_type" validate:"required"`
	CompletedDate  *time.Time `json:"completed_date,omitempty"`
}
