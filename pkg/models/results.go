package models

import "time"

// ResultLink ties an intervention to a country-programme output. Depth 1 of
// the results tree; code is a plain sequence "1", "2", ...
type ResultLink struct {
	ID             string     `json:"id" db:"id"`
	TenantID       string     `json:"tenant_id" db:"tenant_id"`
	InterventionID string     `json:"intervention_id" db:"intervention_id"`
	CPOutputID     *string    `json:"cp_output_id,omitempty" db:"cp_output_id"`
	Code           string     `json:"code" db:"code"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`

	LowerResults []LowerResult `json:"lower_results,omitempty" db:"-"`
}

// LowerResult is a programme-document output under a result link.
type LowerResult struct {
	ID           string     `json:"id" db:"id"`
	TenantID     string     `json:"tenant_id" db:"tenant_id"`
	ResultLinkID string     `json:"result_link_id" db:"result_link_id"`
	Name         string     `json:"name" db:"name"`
	Code         string     `json:"code" db:"code"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`

	Activities []Activity `json:"activities,omitempty" db:"-"`
}

// Activity is a costed line of work under a lower result. If items exist,
// the cash fields are the sum of the items.
type Activity struct {
	ID             string     `json:"id" db:"id"`
	TenantID       string     `json:"tenant_id" db:"tenant_id"`
	LowerResultID  string     `json:"lower_result_id" db:"lower_result_id"`
	Name           string     `json:"name" db:"name"`
	Code           string     `json:"code" db:"code"`
	ContextDetails *string    `json:"context_details,omitempty" db:"context_details"`
	UnicefCash     float64    `json:"unicef_cash" db:"unicef_cash"`
	CSOCash        float64    `json:"cso_cash" db:"cso_cash"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`

	Items      []ActivityItem `json:"items,omitempty" db:"-"`
	TimeFrames []string       `json:"time_frames,omitempty" db:"-"`
}

// ActivityItem is a budget line under an activity.
type ActivityItem struct {
	ID         string     `json:"id" db:"id"`
	TenantID   string     `json:"tenant_id" db:"tenant_id"`
	ActivityID string     `json:"activity_id" db:"activity_id"`
	Name       string     `json:"name" db:"name"`
	Code       string     `json:"code" db:"code"`
	Unit       string     `json:"unit" db:"unit"`
	NoUnits    float64    `json:"no_units" db:"no_units"`
	UnitPrice  float64    `json:"unit_price" db:"unit_price"`
	UnicefCash float64    `json:"unicef_cash" db:"unicef_cash"`
	CSOCash    float64    `json:"cso_cash" db:"cso_cash"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// TimeFrame is one quarter of the intervention's duration.
type TimeFrame struct {
	ID             string     `json:"id" db:"id"`
	TenantID       string     `json:"tenant_id" db:"tenant_id"`
	InterventionID string     `json:"intervention_id" db:"intervention_id"`
	Quarter        int        `json:"quarter" db:"quarter"`
	StartDate      time.Time  `json:"start_date" db:"start_date"`
	EndDate        time.Time  `json:"end_date" db:"end_date"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// UpsertResultLinkRequest creates or updates a result link.
type UpsertResultLinkRequest struct {
	CPOutputID *string `json:"cp_output_id,omitempty" validate:"omitempty,uuid"`
}

// UpsertLowerResultRequest creates or updates a lower result.
type UpsertLowerResultRequest struct {
	Name string `json:"name" validate:"required"`
}

// UpsertActivityRequest creates or updates an activity.
type UpsertActivityRequest struct {
	Name           string   `json:"name" validate:"required"`
	ContextDetails *string  `json:"context_details,omitempty"`
	UnicefCash     float64  `json:"unicef_cash" validate:"gte=0"`
	CSOCash        float64  `json:"cso_cash" validate:"gte=0"`
	IsActive       *bool    `json:"is_active,omitempty"`
	TimeFrames     []string `json:"time_frames,omitempty" validate:"dive,uuid"`
}

// UpsertActivityItemRequest creates or updates an activity item.
type UpsertActivityItemRequest struct {
	Name       string  `json:"name" validate:"required"`
	Unit       string  `json:"unit" validate:"required"`
	NoUnits    float64 `json:"no_units" validate:"gte=0"`
	UnitPrice  float64 `json:"unit_price" validate:"gte=0"`
	UnicefCash float64 `json:"unicef_cash" validate:"gte=0"`
	CSOCash    float64 `json:"cso_cash" validate:"gte=0"`
}
