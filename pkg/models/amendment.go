package models

import (
	"strconv"
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
)

// Amendment kinds
const (
	AmendmentKindNormal      = "normal"
	AmendmentKindContingency = "contingency"
)

// Amendment types
const (
	AmendmentTypeAdminError      = "admin_error"
	AmendmentTypeBudgetLTE20     = "budget_lte_20"
	AmendmentTypeBudgetGT20      = "budget_gt_20"
	AmendmentTypeChange          = "change"
	AmendmentTypeNoCostExtension = "no_cost_extension"
	AmendmentTypeOther           = "other"
)

// RelatedObjectsMap records, per entity kind, the identity correspondence
// between the original's children and their shadow copies.
type RelatedObjectsMap map[string]map[string]string

// ShadowID returns the shadow id cloned from originalID under kind.
func (m RelatedObjectsMap) ShadowID(kind, originalID string) (string, bool) {
	pairs, ok := m[kind]
	if !ok {
		return "", false
	}
	id, ok := pairs[originalID]
	return id, ok
}

// OriginalID reverse-resolves a shadow id back to its original under kind.
func (m RelatedObjectsMap) OriginalID(kind, shadowID string) (string, bool) {
	for originalID, sid := range m[kind] {
		if sid == shadowID {
			return originalID, true
		}
	}
	return "", false
}

// Put records an original → shadow pair under kind.
func (m RelatedObjectsMap) Put(kind, originalID, shadowID string) {
	if m[kind] == nil {
		m[kind] = map[string]string{}
	}
	m[kind][originalID] = shadowID
}

// InterventionAmendment is a controlled rewrite of an intervention executed
// through a shadow copy.
type InterventionAmendment struct {
	ID                    string                             `json:"id" db:"id"`
	TenantID              string                             `json:"tenant_id" db:"tenant_id"`
	InterventionID        string                             `json:"intervention_id" db:"intervention_id"`
	Kind                  string                             `json:"kind" db:"kind"`
	Types                 StringList                         `json:"types" db:"types"`
	OtherDescription      *string                            `json:"other_description,omitempty" db:"other_description"`
	Number                int                                `json:"number" db:"number"`
	IsActive              bool                               `json:"is_active" db:"is_active"`
	AmendedInterventionID *string                            `json:"amended_intervention_id,omitempty" db:"amended_intervention_id"`
	RelatedObjects        database.JSONB[RelatedObjectsMap]  `json:"related_objects_map" db:"related_objects_map"`
	SignedDate            *time.Time                         `json:"signed_date,omitempty" db:"signed_date"`
	SignedAmendmentID     *string                            `json:"signed_amendment_id,omitempty" db:"signed_amendment_id"`
	SignedByUnicefDate    *time.Time                         `json:"signed_by_unicef_date,omitempty" db:"signed_by_unicef_date"`
	SignedByPartnerDate   *time.Time                         `json:"signed_by_partner_date,omitempty" db:"signed_by_partner_date"`
	UnicefSignatoryID     *string                            `json:"unicef_signatory_id,omitempty" db:"unicef_signatory_id"`
	PartnerSignatoryID    *string                            `json:"partner_signatory_id,omitempty" db:"partner_signatory_id"`
	CreatedAt             time.Time                          `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time                          `json:"updated_at" db:"updated_at"`
	DeletedAt             *time.Time                         `json:"deleted_at,omitempty" db:"deleted_at"`
}

// DisplayNumber renders the per-parent amendment label, e.g. "amd/2".
func (a *InterventionAmendment) DisplayNumber() string {
	prefix := "amd"
	if a.Kind == AmendmentKindContingency {
		prefix = "camd"
	}
	return prefix + "/" + strconv.Itoa(a.Number)
}

// CreateAmendmentRequest begins an amendment against an intervention.
type CreateAmendmentRequest struct {
	Kind             string   `json:"kind" validate:"required,oneof=normal contingency"`
	Types            []string `json:"types" validate:"required,min=1,dive,oneof=admin_error budget_lte_20 budget_gt_20 change no_cost_extension other"`
	OtherDescription *string  `json:"other_description,omitempty"`
}

// MergeAmendmentRequest completes an amendment merge.
type MergeAmendmentRequest struct {
	SignedDate        *time.Time `json:"signed_date,omitempty"`
	SignedAmendmentID *string    `json:"signed_amendment_id,omitempty"`
}

// FieldChange is one field-level edit in the amendment diff view.
type FieldChange struct {
	ID     string `json:"id"`
	Field  string `json:"field"`
	Before any    `json:"before"`
	After  any    `json:"after"`
}

// KindDiff is the diff for one entity kind in the amendment graph.
type KindDiff struct {
	Changed []FieldChange `json:"changed"`
	Added   []string      `json:"added"`
	Removed []string      `json:"removed"`
}

// AmendmentDiff is the read-only difference view between an intervention and
// its shadow copy.
type AmendmentDiff map[string]KindDiff
