package permissions

import (
	"github.com/Ramsey-B/fern/pkg/models"
)

// Roles recognized by the permission matrix.
const (
	RolePartnershipManager = "PartnershipManager"
	RoleUnicefFocalPoint   = "UnicefFocalPoint"
	RolePartnerFocalPoint  = "PartnerFocalPoint"
)

// Field sides. UNICEF-side fields follow unicef_court; partner-side fields
// are editable by partner roles only while the document is out of court.
type side int

const (
	sideUnicef side = iota
	sidePartner
	sideShared
)

type fieldPolicy struct {
	side side
	// frozen while either party has accepted the current text
	frozenWhenLocked bool
	// required before draft can leave for review
	required bool
}

// interventionFields is the per-field slice of the matrix, loaded once per
// process.
var interventionFields = map[string]fieldPolicy{
	"title":                    {side: sideUnicef, required: true},
	"document_type":            {side: sideUnicef, frozenWhenLocked: true, required: true},
	"start":                    {side: sideUnicef, required: true},
	"end":                      {side: sideUnicef, required: true},
	"country_programmes":       {side: sideUnicef},
	"sections":                 {side: sideUnicef, required: true},
	"offices":                  {side: sideUnicef, required: true},
	"flat_locations":           {side: sideUnicef},
	"unicef_focal_points":      {side: sideShared},
	"partner_focal_points":     {side: sideShared},
	"unicef_signatory_id":      {side: sideUnicef},
	"partner_signatory_id":     {side: sidePartner},
	"signed_by_unicef_date":    {side: sideUnicef},
	"signed_by_partner_date":   {side: sidePartner},
	"signed_pd_attachment_id":  {side: sideUnicef},
	"submission_date":          {side: sideUnicef},
	"submission_date_prc":      {side: sideUnicef},
	"review_date_prc":          {side: sideUnicef},
	"review_type":              {side: sideUnicef},
	"cash_transfer_modalities": {side: sideUnicef, frozenWhenLocked: true},
	"document_currency":        {side: sideUnicef, frozenWhenLocked: true},
	"budget_hq_cash":           {side: sideUnicef},
	"result_links":             {side: sideShared, required: true},
	"supply_items":             {side: sideShared},
	"planned_visits":           {side: sideUnicef},
	"reporting_requirements":   {side: sideUnicef},
	"risk_and_proposed_mitigations": {side: sidePartner},
	"implementation_strategy":  {side: sidePartner},
	"capacity_development":     {side: sidePartner},
	"ip_program_contribution":  {side: sidePartner},
	"other_info":               {side: sideShared},
	"population_focus":         {side: sideUnicef},
	"contingency_pd":           {side: sideUnicef},
	"final_review_attachment_id": {side: sideUnicef},
	"final_review_approved":    {side: sideUnicef},
	"cancel_justification":     {side: sideUnicef},
}

// editableStatuses are the statuses in which document content is editable at
// all. Content changes on signed or later documents go through an amendment,
// whose shadow copy is in draft.
var editableStatuses = map[string]bool{
	models.InterventionStatusDraft:     true,
	models.InterventionStatusReview:    true,
	models.InterventionStatusSignature: true,
}

// Evaluate computes the per-field permission block for one caller against one
// intervention.
func Evaluate(intervention *models.Intervention, roles []string) map[string]models.FieldPermission {
	result := make(map[string]models.FieldPermission, len(interventionFields))
	for field, policy := range interventionFields {
		result[field] = models.FieldPermission{
			View:     true,
			Edit:     CanEditField(intervention, roles, field),
			Required: policy.required && intervention.Status == models.InterventionStatusDraft,
		}
	}
	return result
}

// CanEditField resolves (status, roles, field) → bool, honoring court and
// acceptance locks.
func CanEditField(intervention *models.Intervention, roles []string, field string) bool {
	policy, ok := interventionFields[field]
	if !ok {
		return false
	}
	if !editableStatuses[intervention.Status] {
		return false
	}
	if policy.frozenWhenLocked && intervention.Locked() {
		return false
	}

	unicefSide := hasAnyRole(roles, RolePartnershipManager, RoleUnicefFocalPoint)
	partnerSide := hasAnyRole(roles, RolePartnerFocalPoint)

	switch policy.side {
	case sideUnicef:
		return unicefSide && intervention.UnicefCourt
	case sidePartner:
		return partnerSide && !intervention.UnicefCourt
	default:
		if unicefSide {
			return intervention.UnicefCourt
		}
		return partnerSide && !intervention.UnicefCourt
	}
}

// CanTransition resolves whether the caller's roles permit a transition to
// the target status. Partnership managers can drive any transition; UNICEF
// focal points only submission for review.
func CanTransition(roles []string, targetStatus string) bool {
	if hasAnyRole(roles, RolePartnershipManager) {
		return true
	}
	if hasAnyRole(roles, RoleUnicefFocalPoint) {
		return targetStatus == models.InterventionStatusReview
	}
	return false
}

// CanToggleAcceptance reports whether the caller may flip the given side's
// acceptance flag.
func CanToggleAcceptance(intervention *models.Intervention, roles []string, partnerSide bool) bool {
	if partnerSide {
		return hasAnyRole(roles, RolePartnerFocalPoint) && !intervention.UnicefCourt
	}
	return hasAnyRole(roles, RolePartnershipManager, RoleUnicefFocalPoint) && intervention.UnicefCourt
}

func hasAnyRole(roles []string, wanted ...string) bool {
	for _, role := range roles {
		for _, want := range wanted {
			if role == want {
				return true
			}
		}
	}
	return false
}
