package models

import (
	"strings"
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
)

// Intervention document types. GOV documents hang off MOU agreements with
// government partners and carry no partner signatory.
const (
	DocumentTypePD   = "PD"
	DocumentTypeSPD  = "SPD"
	DocumentTypeSSFA = "SSFA"
	DocumentTypeGOV  = "GOV"
)

// Intervention statuses
const (
	InterventionStatusDraft      = "draft"
	InterventionStatusReview     = "review"
	InterventionStatusSignature  = "signature"
	InterventionStatusSigned     = "signed"
	InterventionStatusActive     = "active"
	InterventionStatusSuspended  = "suspended"
	InterventionStatusTerminated = "terminated"
	InterventionStatusEnded      = "ended"
	InterventionStatusClosed     = "closed"
	InterventionStatusCancelled  = "cancelled"
	InterventionStatusExpired    = "expired"
)

// Cash transfer modalities
const (
	CashTransferPayment       = "payment"
	CashTransferReimbursement = "reimbursement"
	CashTransferDirect        = "direct"
)

// Review types
const (
	ReviewTypePRC      = "prc"
	ReviewTypeNonPRC   = "non-prc"
	ReviewTypeNoReview = "no-review"
)

// TempRefPrefix marks a placeholder reference held while the document is
// still in draft or cancelled.
const TempRefPrefix = "TempRef:"

// AmendedTitlePrefix marks the shadow copy created by an amendment.
const AmendedTitlePrefix = "[Amended] "

// Intervention is a programme document executing under an agreement.
type Intervention struct {
	ID                     string         `json:"id" db:"id"`
	TenantID               string         `json:"tenant_id" db:"tenant_id"`
	AgreementID            string         `json:"agreement_id" db:"agreement_id"`
	DocumentType           string         `json:"document_type" db:"document_type"`
	Title                  string         `json:"title" db:"title"`
	ReferenceNumber        string         `json:"reference_number" db:"reference_number"`
	ReferenceNumberYear    *int           `json:"reference_number_year,omitempty" db:"reference_number_year"`
	Status                 string         `json:"status" db:"status"`
	Start                  *time.Time     `json:"start,omitempty" db:"start"`
	End                    *time.Time     `json:"end,omitempty" db:"end"`
	SubmissionDate         *time.Time     `json:"submission_date,omitempty" db:"submission_date"`
	SubmissionDatePRC      *time.Time     `json:"submission_date_prc,omitempty" db:"submission_date_prc"`
	ReviewDatePRC          *time.Time     `json:"review_date_prc,omitempty" db:"review_date_prc"`
	ReviewType             *string        `json:"review_type,omitempty" db:"review_type"`
	SignedByUnicefDate     *time.Time     `json:"signed_by_unicef_date,omitempty" db:"signed_by_unicef_date"`
	SignedByPartnerDate    *time.Time     `json:"signed_by_partner_date,omitempty" db:"signed_by_partner_date"`
	UnicefSignatoryID      *string        `json:"unicef_signatory_id,omitempty" db:"unicef_signatory_id"`
	PartnerSignatoryID     *string        `json:"partner_signatory_id,omitempty" db:"partner_signatory_id"`
	SignedPDAttachmentID   *string        `json:"signed_pd_attachment_id,omitempty" db:"signed_pd_attachment_id"`
	FinalReviewAttachmentID *string       `json:"final_review_attachment_id,omitempty" db:"final_review_attachment_id"`
	TerminationDocID       *string        `json:"termination_doc_id,omitempty" db:"termination_doc_id"`
	ContingencyPD          bool           `json:"contingency_pd" db:"contingency_pd"`
	InAmendment            bool           `json:"in_amendment" db:"in_amendment"`
	UnicefAccepted         bool           `json:"unicef_accepted" db:"unicef_accepted"`
	PartnerAccepted        bool           `json:"partner_accepted" db:"partner_accepted"`
	UnicefCourt            bool           `json:"unicef_court" db:"unicef_court"`
	DateSentToPartner      *time.Time     `json:"date_sent_to_partner,omitempty" db:"date_sent_to_partner"`
	FinalReviewApproved    bool           `json:"final_review_approved" db:"final_review_approved"`
	CancelJustification    *string        `json:"cancel_justification,omitempty" db:"cancel_justification"`
	CashTransferModalities StringList     `json:"cash_transfer_modalities" db:"cash_transfer_modalities"`
	DocumentCurrency       *string        `json:"document_currency,omitempty" db:"document_currency"`
	OtherInfo              *string        `json:"other_info,omitempty" db:"other_info"`
	CapacityDevelopment    *string        `json:"capacity_development,omitempty" db:"capacity_development"`
	ImplementationStrategy *string        `json:"implementation_strategy,omitempty" db:"implementation_strategy"`
	IPProgramContribution  *string        `json:"ip_program_contribution,omitempty" db:"ip_program_contribution"`
	PopulationFocus        *string        `json:"population_focus,omitempty" db:"population_focus"`
	Metadata               database.JSONB[map[string]any] `json:"metadata" db:"metadata"`
	CreatedAt              time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at" db:"updated_at"`
	DeletedAt              *time.Time     `json:"deleted_at,omitempty" db:"deleted_at"`

	// Loaded separately. Focal points are stored as email addresses.
	CountryProgrammes  []string             `json:"country_programmes,omitempty" db:"-"`
	Sections           []string             `json:"sections,omitempty" db:"-"`
	Offices            []string             `json:"offices,omitempty" db:"-"`
	FlatLocations      []string             `json:"flat_locations,omitempty" db:"-"`
	UnicefFocalPoints  []string             `json:"unicef_focal_points,omitempty" db:"-"`
	PartnerFocalPoints []string             `json:"partner_focal_points,omitempty" db:"-"`
	PlannedBudget      *InterventionBudget  `json:"planned_budget,omitempty" db:"-"`
	Quarters           []TimeFrame          `json:"quarters,omitempty" db:"-"`
}

// HasTempRef reports whether the reference number is still a placeholder.
func (i *Intervention) HasTempRef() bool {
	return strings.Contains(i.ReferenceNumber, TempRefPrefix)
}

// Locked reports whether either side has accepted the current text.
func (i *Intervention) Locked() bool {
	return i.UnicefAccepted || i.PartnerAccepted
}

// BaseNumber returns the reference without any amendment suffix.
func (i *Intervention) BaseNumber() string {
	if idx := strings.Index(i.ReferenceNumber, "-"); idx >= 0 {
		return i.ReferenceNumber[:idx]
	}
	return i.ReferenceNumber
}

// CreateInterventionRequest creates a draft intervention.
type CreateInterventionRequest struct {
	AgreementID            string     `json:"agreement_id" validate:"required,uuid"`
	DocumentType           string     `json:"document_type" validate:"required,oneof=PD SPD SSFA GOV"`
	Title                  string     `json:"title" validate:"required"`
	Start                  *time.Time `json:"start,omitempty"`
	End                    *time.Time `json:"end,omitempty"`
	ContingencyPD          bool       `json:"contingency_pd"`
	CountryProgrammes      []string   `json:"country_programmes,omitempty"`
	Sections               []string   `json:"sections,omitempty"`
	Offices                []string   `json:"offices,omitempty"`
	UnicefFocalPoints      []string   `json:"unicef_focal_points,omitempty"`
	PartnerFocalPoints     []string   `json:"partner_focal_points,omitempty"`
	CashTransferModalities []string   `json:"cash_transfer_modalities,omitempty" validate:"dive,oneof=payment reimbursement direct"`
	DocumentCurrency       *string    `json:"document_currency,omitempty"`
}

// UpdateInterventionRequest is a partial update; a Status change dispatches
// into the intervention FSM.
type UpdateInterventionRequest struct {
	Status                 *string    `json:"status,omitempty"`
	Title                  *string    `json:"title,omitempty"`
	Start                  *time.Time `json:"start,omitempty"`
	End                    *time.Time `json:"end,omitempty"`
	SubmissionDate         *time.Time `json:"submission_date,omitempty"`
	SubmissionDatePRC      *time.Time `json:"submission_date_prc,omitempty"`
	ReviewDatePRC          *time.Time `json:"review_date_prc,omitempty"`
	ReviewType             *string    `json:"review_type,omitempty" validate:"omitempty,oneof=prc non-prc no-review"`
	SignedByUnicefDate     *time.Time `json:"signed_by_unicef_date,omitempty"`
	SignedByPartnerDate    *time.Time `json:"signed_by_partner_date,omitempty"`
	UnicefSignatoryID      *string    `json:"unicef_signatory_id,omitempty"`
	PartnerSignatoryID     *string    `json:"partner_signatory_id,omitempty"`
	SignedPDAttachmentID   *string    `json:"signed_pd_attachment_id,omitempty"`
	FinalReviewAttachmentID *string   `json:"final_review_attachment_id,omitempty"`
	TerminationDocID       *string    `json:"termination_doc_id,omitempty"`
	FinalReviewApproved    *bool      `json:"final_review_approved,omitempty"`
	CancelJustification    *string    `json:"cancel_justification,omitempty"`
	UnicefAccepted         *bool      `json:"unicef_accepted,omitempty"`
	PartnerAccepted        *bool      `json:"partner_accepted,omitempty"`
	UnicefCourt            *bool      `json:"unicef_court,omitempty"`
	CashTransferModalities *[]string  `json:"cash_transfer_modalities,omitempty" validate:"omitempty,dive,oneof=payment reimbursement direct"`
	DocumentType           *string    `json:"document_type,omitempty" validate:"omitempty,oneof=PD SPD SSFA GOV"`
	DocumentCurrency       *string    `json:"document_currency,omitempty"`
	OtherInfo              *string    `json:"other_info,omitempty"`
	CapacityDevelopment    *string    `json:"capacity_development,omitempty"`
	ImplementationStrategy *string    `json:"implementation_strategy,omitempty"`
	IPProgramContribution  *string    `json:"ip_program_contribution,omitempty"`
	PopulationFocus        *string    `json:"population_focus,omitempty"`
	CountryProgrammes      *[]string  `json:"country_programmes,omitempty"`
	Sections               *[]string  `json:"sections,omitempty"`
	Offices                *[]string  `json:"offices,omitempty"`
	FlatLocations          *[]string  `json:"flat_locations,omitempty"`
	UnicefFocalPoints      *[]string  `json:"unicef_focal_points,omitempty"`
	PartnerFocalPoints     *[]string  `json:"partner_focal_points,omitempty"`
}

// InterventionListFilters are the supported list query parameters.
type InterventionListFilters struct {
	DocumentType      string
	Status            string
	Start             *time.Time
	End               *time.Time
	Sections          []string
	CountryProgrammes []string
	Partners          []string
	ContingencyPD     *bool
	Search            string
	Page              int
	PageSize          int
}

// InterventionListResponse is the response for listing interventions
type InterventionListResponse struct {
	Items      []Intervention `json:"items"`
	TotalCount int            `json:"total_count"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
}

// InterventionDetailResponse is the detail view plus the per-field
// permission block for the caller.
type InterventionDetailResponse struct {
	Intervention
	Permissions map[string]FieldPermission `json:"permissions"`
}

// FieldPermission is the per-field slice of the permission matrix.
type FieldPermission struct {
	View     bool `json:"view"`
	Edit     bool `json:"edit"`
	Required bool `json:"required"`
}
