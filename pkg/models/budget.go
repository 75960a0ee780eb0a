package models

import "time"

// InterventionBudget is the derived 1:1 budget row. All amounts are in the
// document currency; only the recomputer writes it.
type InterventionBudget struct {
	ID                          string     `json:"id" db:"id"`
	TenantID                    string     `json:"tenant_id" db:"tenant_id"`
	InterventionID              string     `json:"intervention_id" db:"intervention_id"`
	Currency                    string     `json:"currency" db:"currency"`
	PartnerContributionLocal    float64    `json:"partner_contribution_local" db:"partner_contribution_local"`
	TotalUnicefCashLocalWoHQ    float64    `json:"total_unicef_cash_local_wo_hq" db:"total_unicef_cash_local_wo_hq"`
	TotalHQCashLocal            float64    `json:"total_hq_cash_local" db:"total_hq_cash_local"`
	UnicefCashLocal             float64    `json:"unicef_cash_local" db:"unicef_cash_local"`
	InKindAmountLocal           float64    `json:"in_kind_amount_local" db:"in_kind_amount_local"`
	PartnerSupplyLocal          float64    `json:"partner_supply_local" db:"partner_supply_local"`
	TotalPartnerContribution    float64    `json:"total_partner_contribution_local" db:"total_partner_contribution_local"`
	TotalLocal                  float64    `json:"total_local" db:"total_local"`
	ProgrammeEffectivenessPct   float64    `json:"programme_effectiveness" db:"programme_effectiveness"`
	CreatedAt                   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt                   time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt                   *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// UpdateBudgetRequest sets the only caller-writable budget fields; everything
// else is derived.
type UpdateBudgetRequest struct {
	TotalHQCashLocal *float64 `json:"total_hq_cash_local,omitempty" validate:"omitempty,gte=0"`
	Currency         *string  `json:"currency,omitempty" validate:"omitempty,len=3"`
}
