package models

import (
	"time"
)

// Agreement types
const (
	AgreementTypePCA  = "PCA"
	AgreementTypeMOU  = "MOU"
	AgreementTypeSSFA = "SSFA"
)

// Agreement statuses
const (
	AgreementStatusDraft      = "draft"
	AgreementStatusSigned     = "signed"
	AgreementStatusSuspended  = "suspended"
	AgreementStatusTerminated = "terminated"
	AgreementStatusEnded      = "ended"
	AgreementStatusCancelled  = "cancelled"
)

// Agreement amendment types
const (
	AgreementAmendmentTypeAuthorizedOfficer = "authorized_officer"
	AgreementAmendmentTypeBankingInfo       = "banking_info"
	AgreementAmendmentTypeClause            = "clause"
)

// Agreement is the legal instrument under which interventions execute.
type Agreement struct {
	ID                   string     `json:"id" db:"id"`
	TenantID             string     `json:"tenant_id" db:"tenant_id"`
	PartnerID            string     `json:"partner_id" db:"partner_id"`
	AgreementType        string     `json:"agreement_type" db:"agreement_type"`
	CountryProgrammeID   *string    `json:"country_programme_id,omitempty" db:"country_programme_id"`
	ReferenceNumber      string     `json:"reference_number" db:"reference_number"`
	ReferenceNumberYear  int        `json:"reference_number_year" db:"reference_number_year"`
	Status               string     `json:"status" db:"status"`
	Start                *time.Time `json:"start,omitempty" db:"start"`
	End                  *time.Time `json:"end,omitempty" db:"end"`
	SignedByUnicefDate   *time.Time `json:"signed_by_unicef_date,omitempty" db:"signed_by_unicef_date"`
	SignedByPartnerDate  *time.Time `json:"signed_by_partner_date,omitempty" db:"signed_by_partner_date"`
	SignedByID           *string    `json:"signed_by_id,omitempty" db:"signed_by_id"`
	PartnerManagerID     *string    `json:"partner_manager_id,omitempty" db:"partner_manager_id"`
	AttachmentID         *string    `json:"attachment_id,omitempty" db:"attachment_id"`
	TerminationDocID     *string    `json:"termination_doc_id,omitempty" db:"termination_doc_id"`
	SpecialConditionsPCA bool       `json:"special_conditions_pca" db:"special_conditions_pca"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt            *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`

	// Loaded separately
	AuthorizedOfficers []string             `json:"authorized_officers,omitempty" db:"-"`
	Amendments         []AgreementAmendment `json:"amendments,omitempty" db:"-"`
}

// BaseNumber returns the reference without any amendment suffix.
func (a *Agreement) BaseNumber() string {
	for i := 0; i < len(a.ReferenceNumber); i++ {
		if a.ReferenceNumber[i] == '-' {
			return a.ReferenceNumber[:i]
		}
	}
	return a.ReferenceNumber
}

// AgreementAmendment records a signed change to an agreement.
type AgreementAmendment struct {
	ID           string     `json:"id" db:"id"`
	TenantID     string     `json:"tenant_id" db:"tenant_id"`
	AgreementID  string     `json:"agreement_id" db:"agreement_id"`
	Number       string     `json:"number" db:"number"`
	Types        StringList `json:"types" db:"types"`
	SignedDate   *time.Time `json:"signed_date,omitempty" db:"signed_date"`
	AttachmentID *string    `json:"attachment_id,omitempty" db:"attachment_id"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// CreateAgreementRequest creates a draft agreement.
type CreateAgreementRequest struct {
	PartnerID            string     `json:"partner_id" validate:"required,uuid"`
	AgreementType        string     `json:"agreement_type" validate:"required,oneof=PCA MOU SSFA"`
	CountryProgrammeID   *string    `json:"country_programme_id,omitempty" validate:"omitempty,uuid"`
	Start                *time.Time `json:"start,omitempty"`
	End                  *time.Time `json:"end,omitempty"`
	SignedByUnicefDate   *time.Time `json:"signed_by_unicef_date,omitempty"`
	SignedByPartnerDate  *time.Time `json:"signed_by_partner_date,omitempty"`
	SignedByID           *string    `json:"signed_by_id,omitempty"`
	PartnerManagerID     *string    `json:"partner_manager_id,omitempty"`
	AuthorizedOfficers   []string   `json:"authorized_officers,omitempty"`
	SpecialConditionsPCA bool       `json:"special_conditions_pca"`
}

// UpdateAgreementRequest is a partial update; a Status change dispatches
// into the agreement FSM.
type UpdateAgreementRequest struct {
	Status               *string    `json:"status,omitempty" validate:"omitempty,oneof=draft signed suspended terminated ended cancelled"`
	CountryProgrammeID   *string    `json:"country_programme_id,omitempty" validate:"omitempty,uuid"`
	Start                *time.Time `json:"start,omitempty"`
	End                  *time.Time `json:"end,omitempty"`
	SignedByUnicefDate   *time.Time `json:"signed_by_unicef_date,omitempty"`
	SignedByPartnerDate  *time.Time `json:"signed_by_partner_date,omitempty"`
	SignedByID           *string    `json:"signed_by_id,omitempty"`
	PartnerManagerID     *string    `json:"partner_manager_id,omitempty"`
	AttachmentID         *string    `json:"attachment_id,omitempty"`
	TerminationDocID     *string    `json:"termination_doc_id,omitempty"`
	AuthorizedOfficers   *[]string  `json:"authorized_officers,omitempty"`
	SpecialConditionsPCA *bool      `json:"special_conditions_pca,omitempty"`
}

// AgreementListFilters are the supported list query parameters.
type AgreementListFilters struct {
	AgreementType        string
	Status               string
	PartnerName          string
	Start                *time.Time
	End                  *time.Time
	SpecialConditionsPCA *bool
	Search               string
	Page                 int
	PageSize             int
}

// AgreementListResponse is the response for listing agreements
type AgreementListResponse struct {
	Items      []Agreement `json:"items"`
	TotalCount int         `json:"total_count"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
}

// CountryProgramme is the policy envelope bounding agreements and interventions.
type CountryProgramme struct {
	ID       string    `json:"id" db:"id"`
	TenantID string    `json:"tenant_id" db:"tenant_id"`
	Name     string    `json:"name" db:"name"`
	WBS      string    `json:"wbs" db:"wbs"`
	FromDate time.Time `json:"from_date" db:"from_date"`
	ToDate   time.Time `json:"to_date" db:"to_date"`
	Active   bool      `json:"active" db:"active"`
}
