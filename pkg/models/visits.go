package models

import "time"

// Supply item providers
const (
	SupplyProvidedByUnicef  = "unicef"
	SupplyProvidedByPartner = "partner"
)

// PlannedVisit holds the quarterly programmatic visit plan for one year.
// Only attachable to government partners.
type PlannedVisit struct {
	ID             string     `json:"id" db:"id"`
	TenantID       string     `json:"tenant_id" db:"tenant_id"`
	InterventionID string     `json:"intervention_id" db:"intervention_id"`
	Year           int        `json:"year" db:"year"`
	ProgrammaticQ1 int        `json:"programmatic_q1" db:"programmatic_q1"`
	ProgrammaticQ2 int        `json:"programmatic_q2" db:"programmatic_q2"`
	ProgrammaticQ3 int        `json:"programmatic_q3" db:"programmatic_q3"`
	ProgrammaticQ4 int        `json:"programmatic_q4" db:"programmatic_q4"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`

	// Site references per quarter, loaded separately
	SitesQ1 []string `json:"sites_q1,omitempty" db:"-"`
	SitesQ2 []string `json:"sites_q2,omitempty" db:"-"`
	SitesQ3 []string `json:"sites_q3,omitempty" db:"-"`
	SitesQ4 []string `json:"sites_q4,omitempty" db:"-"`
}

// UpsertPlannedVisitRequest creates or updates the plan for one year.
type UpsertPlannedVisitRequest struct {
	Year           int      `json:"year" validate:"required,gte=2000,lte=2100"`
	ProgrammaticQ1 int      `json:"programmatic_q1" validate:"gte=0"`
	ProgrammaticQ2 int      `json:"programmatic_q2" validate:"gte=0"`
	ProgrammaticQ3 int      `json:"programmatic_q3" validate:"gte=0"`
	ProgrammaticQ4 int      `json:"programmatic_q4" validate:"gte=0"`
	SitesQ1        []string `json:"sites_q1,omitempty" validate:"dive,uuid"`
	SitesQ2        []string `json:"sites_q2,omitempty" validate:"dive,uuid"`
	SitesQ3        []string `json:"sites_q3,omitempty" validate:"dive,uuid"`
	SitesQ4        []string `json:"sites_q4,omitempty" validate:"dive,uuid"`
}

// SupplyItem is a supply contribution line on an intervention.
// TotalPrice is maintained as UnitNumber x UnitPrice on every write.
type SupplyItem struct {
	ID             string     `json:"id" db:"id"`
	TenantID       string     `json:"tenant_id" db:"tenant_id"`
	InterventionID string     `json:"intervention_id" db:"intervention_id"`
	Title          string     `json:"title" db:"title"`
	ProvidedBy     string     `json:"provided_by" db:"provided_by"`
	UnitNumber     float64    `json:"unit_number" db:"unit_number"`
	UnitPrice      float64    `json:"unit_price" db:"unit_price"`
	TotalPrice     float64    `json:"total_price" db:"total_price"`
	OtherMentions  *string    `json:"other_mentions,omitempty" db:"other_mentions"`
	UnicefProductNumber *string `json:"unicef_product_number,omitempty" db:"unicef_product_number"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// UpsertSupplyItemRequest creates or updates a supply item.
type UpsertSupplyItemRequest struct {
	Title               string  `json:"title" validate:"required"`
	ProvidedBy          string  `json:"provided_by" validate:"required,oneof=unicef partner"`
	UnitNumber          float64 `json:"unit_number" validate:"gte=0"`
	UnitPrice           float64 `json:"unit_price" validate:"gte=0"`
	OtherMentions       *string `json:"other_mentions,omitempty"`
	UnicefProductNumber *string `json:"unicef_product_number,omitempty"`
}
