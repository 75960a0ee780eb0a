package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/validation"
)

func testTable() []Transition[*models.Intervention] {
	return []Transition[*models.Intervention]{
		{
			From: []string{models.InterventionStatusDraft},
			To:   models.InterventionStatusReview,
		},
		{
			From: []string{models.InterventionStatusSigned, models.InterventionStatusSuspended},
			To:   models.InterventionStatusActive,
		},
		{
			From: []string{models.InterventionStatusDraft, models.InterventionStatusReview, models.InterventionStatusSignature},
			To:   models.InterventionStatusCancelled,
		},
	}
}

func TestResolve(t *testing.T) {
	table := testTable()

	t.Run("finds exact pair", func(t *testing.T) {
		transition := Resolve(table, models.InterventionStatusDraft, models.InterventionStatusReview)
		require.NotNil(t, transition)
		assert.Equal(t, models.InterventionStatusReview, transition.To)
	})

	t.Run("finds pair with multiple sources", func(t *testing.T) {
		transition := Resolve(table, models.InterventionStatusSuspended, models.InterventionStatusActive)
		require.NotNil(t, transition)
		assert.Equal(t, models.InterventionStatusActive, transition.To)
	})

	t.Run("nil for unknown source", func(t *testing.T) {
		assert.Nil(t, Resolve(table, models.InterventionStatusClosed, models.InterventionStatusActive))
	})

	t.Run("nil for unknown target", func(t *testing.T) {
		assert.Nil(t, Resolve(table, models.InterventionStatusDraft, models.InterventionStatusEnded))
	})

	t.Run("nil for reversed pair", func(t *testing.T) {
		assert.Nil(t, Resolve(table, models.InterventionStatusReview, models.InterventionStatusDraft))
	})
}

func TestResolveReturnsGuardAndEffect(t *testing.T) {
	guardCalled := false
	table := []Transition[*models.Intervention]{
		{
			From: []string{models.InterventionStatusDraft},
			To:   models.InterventionStatusReview,
			Guard: func(ctx context.Context, entity *models.Intervention) error {
				guardCalled = true
				return nil
			},
		},
	}

	transition := Resolve(table, models.InterventionStatusDraft, models.InterventionStatusReview)
	require.NotNil(t, transition)
	require.NotNil(t, transition.Guard)
	require.NoError(t, transition.Guard(context.Background(), &models.Intervention{}))
	assert.True(t, guardCalled)
}

func TestIllegalTransition(t *testing.T) {
	err := IllegalTransition(models.InterventionStatusClosed, models.InterventionStatusActive)
	require.Error(t, err)

	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "closed")
	assert.Contains(t, err.Error(), "active")
}
