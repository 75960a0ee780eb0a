package budget

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeTree struct {
	links []models.ResultLink
}

func (f *fakeTree) GetTree(ctx context.Context, tenantID, interventionID string) ([]models.ResultLink, error) {
	return f.links, nil
}

type fakeSupplies struct {
	items []models.SupplyItem
}

func (f *fakeSupplies) ListByIntervention(ctx context.Context, tenantID, interventionID string) ([]models.SupplyItem, error) {
	return f.items, nil
}

type fakeStore struct {
	budget *models.InterventionBudget
}

func (f *fakeStore) GetBudget(ctx context.Context, tenantID, interventionID string) (*models.InterventionBudget, error) {
	return f.budget, nil
}

func (f *fakeStore) UpsertBudget(ctx context.Context, tenantID string, budget *models.InterventionBudget) error {
	f.budget = budget
	return nil
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func strPtr(s string) *string { return &s }

func TestRecompute(t *testing.T) {
	cpOutput := strPtr("cp-1")
	tree := &fakeTree{
		links: []models.ResultLink{
			{
				ID:         "link-1",
				CPOutputID: cpOutput,
				LowerResults: []models.LowerResult{
					{
						Activities: []models.Activity{
							{UnicefCash: 1000, CSOCash: 200, IsActive: true},
							{UnicefCash: 500, CSOCash: 100, IsActive: false},
						},
					},
				},
			},
			{
				// Management link: counts toward programme effectiveness.
				ID: "link-mgmt",
				LowerResults: []models.LowerResult{
					{
						Activities: []models.Activity{
							{UnicefCash: 300, CSOCash: 50, IsActive: true},
						},
					},
				},
			},
		},
	}
	supplies := &fakeSupplies{
		items: []models.SupplyItem{
			{ProvidedBy: models.SupplyProvidedByUnicef, TotalPrice: 400},
			{ProvidedBy: models.SupplyProvidedByPartner, TotalPrice: 150},
		},
	}
	store := &fakeStore{
		budget: &models.InterventionBudget{
			TenantID:         "t1",
			InterventionID:   "i1",
			Currency:         "JOD",
			TotalHQCashLocal: 100,
		},
	}

	recomputer := NewRecomputer(tree, supplies, store, noopLogger(), "USD")
	budget, err := recomputer.Recompute(context.Background(), "t1", "i1")
	require.NoError(t, err)

	assert.Equal(t, "JOD", budget.Currency)
	assert.Equal(t, 250.0, budget.PartnerContributionLocal)
	assert.Equal(t, 1300.0, budget.TotalUnicefCashLocalWoHQ)
	assert.Equal(t, 1400.0, budget.UnicefCashLocal)
	assert.Equal(t, 400.0, budget.InKindAmountLocal)
	assert.Equal(t, 150.0, budget.PartnerSupplyLocal)
	assert.Equal(t, 400.0, budget.TotalPartnerContribution)
	assert.Equal(t, 2200.0, budget.TotalLocal)

	// management cash 350 over (1400 + 400)
	assert.InDelta(t, 100*350.0/1800.0, budget.ProgrammeEffectivenessPct, 0.0001)

	require.NotNil(t, store.budget)
	assert.Equal(t, budget, store.budget)
}

func TestRecomputeCreatesRowWithLocalCurrency(t *testing.T) {
	store := &fakeStore{}
	recomputer := NewRecomputer(&fakeTree{}, &fakeSupplies{}, store, noopLogger(), "USD")

	budget, err := recomputer.Recompute(context.Background(), "t1", "i1")
	require.NoError(t, err)

	assert.Equal(t, "t1", budget.TenantID)
	assert.Equal(t, "i1", budget.InterventionID)
	assert.Equal(t, "USD", budget.Currency)
	assert.Equal(t, 0.0, budget.TotalLocal)
	assert.Equal(t, 0.0, budget.ProgrammeEffectivenessPct)
}

func TestSetCallerFields(t *testing.T) {
	cash := 250.0
	currency := "EUR"
	store := &fakeStore{}
	recomputer := NewRecomputer(&fakeTree{}, &fakeSupplies{}, store, noopLogger(), "USD")

	budget, err := recomputer.SetCallerFields(context.Background(), "t1", "i1", models.UpdateBudgetRequest{
		TotalHQCashLocal: &cash,
		Currency:         &currency,
	})
	require.NoError(t, err)

	assert.Equal(t, "EUR", budget.Currency)
	assert.Equal(t, 250.0, budget.TotalHQCashLocal)
	assert.Equal(t, 250.0, budget.UnicefCashLocal)
	assert.Equal(t, 250.0, budget.TotalLocal)
}
