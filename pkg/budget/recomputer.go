package budget

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// TreeLoader loads the result tree the totals derive from.
type TreeLoader interface {
	GetTree(ctx context.Context, tenantID, interventionID string) ([]models.ResultLink, error)
}

// SupplyLister loads an intervention's supply items.
type SupplyLister interface {
	ListByIntervention(ctx context.Context, tenantID, interventionID string) ([]models.SupplyItem, error)
}

// Store reads and writes the derived budget row.
type Store interface {
	GetBudget(ctx context.Context, tenantID, interventionID string) (*models.InterventionBudget, error)
	UpsertBudget(ctx context.Context, tenantID string, budget *models.InterventionBudget) error
}

// Recomputer derives the intervention budget row from its activity and supply
// leaves. It is the only writer of the derived fields; callers that change a
// leaf run Recompute inside the same transaction.
type Recomputer struct {
	tree          TreeLoader
	supplies      SupplyLister
	store         Store
	logger        ectologger.Logger
	localCurrency string
}

// NewRecomputer creates a new budget recomputer
func NewRecomputer(tree TreeLoader, supplies SupplyLister, store Store, logger ectologger.Logger, localCurrency string) *Recomputer {
	return &Recomputer{
		tree:          tree,
		supplies:      supplies,
		store:         store,
		logger:        logger,
		localCurrency: localCurrency,
	}
}

// Recompute rebuilds the budget row and persists it. The caller-writable
// fields (currency, HQ cash) are preserved from the existing row.
func (r *Recomputer) Recompute(ctx context.Context, tenantID, interventionID string) (*models.InterventionBudget, error) {
	ctx, span := tracing.StartSpan(ctx, "budget.Recomputer.Recompute")
	defer span.End()

	budget, err := r.store.GetBudget(ctx, tenantID, interventionID)
	if err != nil {
		return nil, err
	}
	if budget == nil {
		budget = &models.InterventionBudget{
			TenantID:       tenantID,
			InterventionID: interventionID,
		}
	}
	if budget.Currency == "" {
		budget.Currency = r.localCurrency
	}

	links, err := r.tree.GetTree(ctx, tenantID, interventionID)
	if err != nil {
		return nil, err
	}
	supplies, err := r.supplies.ListByIntervention(ctx, tenantID, interventionID)
	if err != nil {
		return nil, err
	}

	var partnerContribution, unicefCashWoHQ, managementCash float64
	for _, link := range links {
		// Result links without a cp output hold the programme
		// effectiveness section.
		effectiveness := link.CPOutputID == nil
		for _, lower := range link.LowerResults {
			for _, activity := range lower.Activities {
				if !activity.IsActive {
					continue
				}
				partnerContribution += activity.CSOCash
				unicefCashWoHQ += activity.UnicefCash
				if effectiveness {
					managementCash += activity.UnicefCash + activity.CSOCash
				}
			}
		}
	}

	var inKind, partnerSupply float64
	for _, supply := range supplies {
		switch supply.ProvidedBy {
		case models.SupplyProvidedByUnicef:
			inKind += supply.TotalPrice
		case models.SupplyProvidedByPartner:
			partnerSupply += supply.TotalPrice
		}
	}

	budget.PartnerContributionLocal = partnerContribution
	budget.TotalUnicefCashLocalWoHQ = unicefCashWoHQ
	budget.UnicefCashLocal = unicefCashWoHQ + budget.TotalHQCashLocal
	budget.InKindAmountLocal = inKind
	budget.PartnerSupplyLocal = partnerSupply
	budget.TotalPartnerContribution = partnerContribution + partnerSupply
	budget.TotalLocal = budget.UnicefCashLocal + budget.InKindAmountLocal + budget.TotalPartnerContribution

	denominator := budget.UnicefCashLocal + budget.InKindAmountLocal
	if denominator > 0 {
		budget.ProgrammeEffectivenessPct = 100 * managementCash / denominator
	} else {
		budget.ProgrammeEffectivenessPct = 0
	}

	if err := r.store.UpsertBudget(ctx, tenantID, budget); err != nil {
		return nil, err
	}
	return budget, nil
}

// SetCallerFields applies the caller-writable budget fields and recomputes.
func (r *Recomputer) SetCallerFields(ctx context.Context, tenantID, interventionID string, req models.UpdateBudgetRequest) (*models.InterventionBudget, error) {
	ctx, span := tracing.StartSpan(ctx, "budget.Recomputer.SetCallerFields")
	defer span.End()

	budget, err := r.store.GetBudget(ctx, tenantID, interventionID)
	if err != nil {
		return nil, err
	}
	if budget == nil {
		budget = &models.InterventionBudget{
			TenantID:       tenantID,
			InterventionID: interventionID,
		}
	}
	if req.TotalHQCashLocal != nil {
		budget.TotalHQCashLocal = *req.TotalHQCashLocal
	}
	if req.Currency != nil {
		budget.Currency = *req.Currency
	}
	if budget.Currency == "" {
		budget.Currency = r.localCurrency
	}
	if err := r.store.UpsertBudget(ctx, tenantID, budget); err != nil {
		return nil, err
	}
	return r.Recompute(ctx, tenantID, interventionID)
}
