package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
)

// Partner types
const (
	PartnerTypeBilateral  = "bilateral"
	PartnerTypeCSO        = "cso"
	PartnerTypeGovernment = "government"
	PartnerTypeUNAgency   = "un_agency"
)

// Risk ratings
const (
	RiskRatingLow         = "low"
	RiskRatingModerate    = "moderate"
	RiskRatingSignificant = "significant"
	RiskRatingHigh        = "high"
)

// Partner represents an implementing partner organization synced from the
// external vendor system.
type Partner struct {
	ID                      string                          `json:"id" db:"id"`
	TenantID                string                          `json:"tenant_id" db:"tenant_id"`
	VendorNumber            string                          `json:"vendor_number" db:"vendor_number"`
	Name                    string                          `json:"name" db:"name"`
	ShortName               string                          `json:"short_name" db:"short_name"`
	PartnerType             string                          `json:"partner_type" db:"partner_type"`
	CSOType                 *string                         `json:"cso_type,omitempty" db:"cso_type"`
	RiskRating              string                          `json:"risk_rating" db:"risk_rating"`
	TypeOfAssessment        *string                         `json:"type_of_assessment,omitempty" db:"type_of_assessment"`
	LastAssessmentDate      *time.Time                      `json:"last_assessment_date,omitempty" db:"last_assessment_date"`
	CoreValuesAssessmentDate *time.Time                     `json:"core_values_assessment_date,omitempty" db:"core_values_assessment_date"`
	BasisForRiskRating      string                          `json:"basis_for_risk_rating" db:"basis_for_risk_rating"`
	Hidden                  bool                            `json:"hidden" db:"hidden"`
	Blocked                 bool                            `json:"blocked" db:"blocked"`
	LeadSection             *string                         `json:"lead_section,omitempty" db:"lead_section"`
	SEARiskRating           *string                         `json:"sea_risk_rating,omitempty" db:"sea_risk_rating"`
	PSEAAssessmentDate      *time.Time                      `json:"psea_assessment_date,omitempty" db:"psea_assessment_date"`
	TotalCTCP               float64                         `json:"total_ct_cp" db:"total_ct_cp"`
	TotalCTCY               float64                         `json:"total_ct_cy" db:"total_ct_cy"`
	NetCTCY                 float64                         `json:"net_ct_cy" db:"net_ct_cy"`
	ReportedCY              float64                         `json:"reported_cy" db:"reported_cy"`
	TotalCTYTD              float64                         `json:"total_ct_ytd" db:"total_ct_ytd"`
	HactValues              database.JSONB[HactValues]      `json:"hact_values" db:"hact_values"`
	HactMinRequirements     database.JSONB[MinRequirements] `json:"hact_min_requirements" db:"hact_min_requirements"`
	CreatedAt               time.Time                       `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time                       `json:"updated_at" db:"updated_at"`
	DeletedAt               *time.Time                      `json:"deleted_at,omitempty" db:"deleted_at"`
}

// IsGovernment reports whether planned visits may be attached directly.
func (p *Partner) IsGovernment() bool {
	return p.PartnerType == PartnerTypeGovernment
}

// CreatePartnerRequest upserts a partner from the external vendor lookup.
type CreatePartnerRequest struct {
	VendorNumber string  `json:"vendor_number" validate:"required"`
	Name         string  `json:"name" validate:"required"`
	ShortName    string  `json:"short_name"`
	PartnerType  string  `json:"partner_type" validate:"required,oneof=bilateral cso government un_agency"`
	CSOType      *string `json:"cso_type,omitempty"`
	RiskRating   string  `json:"risk_rating" validate:"omitempty,oneof=low moderate significant high"`
}

// UpdatePartnerRequest is a partial update of a partner's local fields.
type UpdatePartnerRequest struct {
	ShortName                *string     `json:"short_name,omitempty"`
	RiskRating               *string     `json:"risk_rating,omitempty" validate:"omitempty,oneof=low moderate significant high"`
	Hidden                   *bool       `json:"hidden,omitempty"`
	LeadSection              *string     `json:"lead_section,omitempty"`
	BasisForRiskRating       *string     `json:"basis_for_risk_rating,omitempty"`
	MonitoringActivityGroups *[][]string `json:"monitoring_activity_groups,omitempty"`
}

// PartnerListFilters are the supported list query parameters.
type PartnerListFilters struct {
	PartnerType              string
	CSOType                  string
	Hidden                   *bool
	LeadSection              string
	SEARiskRating            string
	PSEAAssessmentDateBefore *time.Time
	PSEAAssessmentDateAfter  *time.Time
	Search                   string
	IDs                      []string
	Page                     int
	PageSize                 int
}

// PartnerListResponse is the response for listing partners
type PartnerListResponse struct {
	Items      []Partner `json:"items"`
	TotalCount int       `json:"total_count"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
}
