package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func draftIntervention() *models.Intervention {
	return &models.Intervention{
		Status:      models.InterventionStatusDraft,
		UnicefCourt: true,
	}
}

func TestCanEditField(t *testing.T) {
	manager := []string{RolePartnershipManager}
	partnerFP := []string{RolePartnerFocalPoint}

	t.Run("unicef field editable by manager while in unicef court", func(t *testing.T) {
		assert.True(t, CanEditField(draftIntervention(), manager, "title"))
	})

	t.Run("unicef field blocked for manager out of court", func(t *testing.T) {
		i := draftIntervention()
		i.UnicefCourt = false
		assert.False(t, CanEditField(i, manager, "title"))
	})

	t.Run("partner field editable by partner out of court", func(t *testing.T) {
		i := draftIntervention()
		i.UnicefCourt = false
		assert.True(t, CanEditField(i, partnerFP, "implementation_strategy"))
	})

	t.Run("partner field blocked for partner while in unicef court", func(t *testing.T) {
		assert.False(t, CanEditField(draftIntervention(), partnerFP, "implementation_strategy"))
	})

	t.Run("shared field follows court for each side", func(t *testing.T) {
		i := draftIntervention()
		assert.True(t, CanEditField(i, manager, "result_links"))
		assert.False(t, CanEditField(i, partnerFP, "result_links"))

		i.UnicefCourt = false
		assert.False(t, CanEditField(i, manager, "result_links"))
		assert.True(t, CanEditField(i, partnerFP, "result_links"))
	})

	t.Run("frozen field blocked once a side accepted", func(t *testing.T) {
		i := draftIntervention()
		i.PartnerAccepted = true
		assert.False(t, CanEditField(i, manager, "document_type"))
		assert.True(t, CanEditField(i, manager, "title"))
	})

	t.Run("nothing editable on a signed document", func(t *testing.T) {
		i := draftIntervention()
		i.Status = models.InterventionStatusSigned
		assert.False(t, CanEditField(i, manager, "title"))
		assert.False(t, CanEditField(i, manager, "result_links"))
	})

	t.Run("unknown field is not editable", func(t *testing.T) {
		assert.False(t, CanEditField(draftIntervention(), manager, "no_such_field"))
	})

	t.Run("no roles no edit", func(t *testing.T) {
		assert.False(t, CanEditField(draftIntervention(), nil, "title"))
	})
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		roles   []string
		target  string
		allowed bool
	}{
		{"manager drives any transition", []string{RolePartnershipManager}, models.InterventionStatusSigned, true},
		{"manager drives termination", []string{RolePartnershipManager}, models.InterventionStatusTerminated, true},
		{"focal point submits for review", []string{RoleUnicefFocalPoint}, models.InterventionStatusReview, true},
		{"focal point cannot sign", []string{RoleUnicefFocalPoint}, models.InterventionStatusSigned, false},
		{"partner cannot transition", []string{RolePartnerFocalPoint}, models.InterventionStatusReview, false},
		{"no roles no transition", nil, models.InterventionStatusReview, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.roles, tt.target))
		})
	}
}

func TestCanToggleAcceptance(t *testing.T) {
	i := draftIntervention()

	assert.True(t, CanToggleAcceptance(i, []string{RoleUnicefFocalPoint}, false))
	assert.False(t, CanToggleAcceptance(i, []string{RolePartnerFocalPoint}, true))

	i.UnicefCourt = false
	assert.False(t, CanToggleAcceptance(i, []string{RoleUnicefFocalPoint}, false))
	assert.True(t, CanToggleAcceptance(i, []string{RolePartnerFocalPoint}, true))
}

func TestEvaluate(t *testing.T) {
	i := draftIntervention()
	block := Evaluate(i, []string{RolePartnershipManager})
	require.NotEmpty(t, block)

	title, ok := block["title"]
	require.True(t, ok)
	assert.True(t, title.View)
	assert.True(t, title.Edit)
	assert.True(t, title.Required)

	strategy, ok := block["implementation_strategy"]
	require.True(t, ok)
	assert.True(t, strategy.View)
	assert.False(t, strategy.Edit)
	assert.False(t, strategy.Required)

	i.Status = models.InterventionStatusSigned
	signedBlock := Evaluate(i, []string{RolePartnershipManager})
	assert.False(t, signedBlock["title"].Edit)
	assert.False(t, signedBlock["title"].Required)
}
