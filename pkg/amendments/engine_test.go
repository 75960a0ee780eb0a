package amendments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func strPtr(s string) *string {
	return &s
}

func datePtr(y int, m time.Month, d int) *time.Time {
	v := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &v
}

func TestCopyScalars(t *testing.T) {
	signedUnicef := datePtr(2026, 2, 10)
	signedPartner := datePtr(2026, 2, 12)

	shadow := &models.Intervention{
		Title:                models.AmendedTitlePrefix + "Water point rehabilitation",
		Start:                datePtr(2026, 1, 1),
		End:                  datePtr(2026, 12, 31),
		SignedByUnicefDate:   signedUnicef,
		SignedByPartnerDate:  signedPartner,
		UnicefSignatoryID:    strPtr("unicef-signatory"),
		PartnerSignatoryID:   strPtr("partner-signatory"),
		SignedPDAttachmentID: strPtr("signed-doc"),
		UnicefFocalPoints:    []string{"amira@example.org"},
	}
	original := &models.Intervention{
		Title:               "Water point rehabilitation",
		Status:              models.InterventionStatusActive,
		SignedByUnicefDate:  datePtr(2025, 6, 1),
		SignedByPartnerDate: datePtr(2025, 6, 3),
		UnicefSignatoryID:   strPtr("old-unicef"),
		PartnerSignatoryID:  strPtr("old-partner"),
	}

	copyScalars(original, shadow)

	assert.Equal(t, "Water point rehabilitation", original.Title)
	assert.Equal(t, shadow.Start, original.Start)
	assert.Equal(t, shadow.End, original.End)
	assert.Equal(t, signedUnicef, original.SignedByUnicefDate)
	assert.Equal(t, signedPartner, original.SignedByPartnerDate)
	assert.Equal(t, "unicef-signatory", *original.UnicefSignatoryID)
	assert.Equal(t, "partner-signatory", *original.PartnerSignatoryID)
	assert.Equal(t, "signed-doc", *original.SignedPDAttachmentID)
	assert.Equal(t, []string{"amira@example.org"}, original.UnicefFocalPoints)
	// Status is decided by the merge, never by the field copy.
	assert.Equal(t, models.InterventionStatusActive, original.Status)
}

func TestWithinExecutionWindow(t *testing.T) {
	today := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		start    *time.Time
		end      *time.Time
		expected bool
	}{
		{"inside the window", datePtr(2026, 1, 1), datePtr(2026, 12, 31), true},
		{"start not reached", datePtr(2026, 7, 1), datePtr(2026, 12, 31), false},
		{"end already passed", datePtr(2026, 1, 1), datePtr(2026, 5, 31), false},
		{"starts today", datePtr(2026, 6, 15), datePtr(2026, 12, 31), true},
		{"ends today", datePtr(2026, 1, 1), datePtr(2026, 6, 15), true},
		{"missing start", nil, datePtr(2026, 12, 31), false},
		{"missing end", datePtr(2026, 1, 1), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, withinExecutionWindow(tt.start, tt.end, today))
		})
	}
}

func TestRenumberTree(t *testing.T) {
	at := func(sec int) time.Time {
		return time.Date(2026, 1, 1, 0, 0, sec, 0, time.UTC)
	}

	t.Run("orders links by creation then id", func(t *testing.T) {
		tree := []models.ResultLink{
			{ID: "b", CPOutputID: strPtr("cp-2"), Code: "7", CreatedAt: at(20)},
			{ID: "a", CPOutputID: strPtr("cp-1"), Code: "9", CreatedAt: at(10)},
			{ID: "c", CPOutputID: strPtr("cp-3"), Code: "3", CreatedAt: at(20)},
		}

		renumberTree(tree)

		require.Len(t, tree, 3)
		assert.Equal(t, "a", tree[0].ID)
		assert.Equal(t, "1", tree[0].Code)
		assert.Equal(t, "b", tree[1].ID)
		assert.Equal(t, "2", tree[1].Code)
		assert.Equal(t, "c", tree[2].ID)
		assert.Equal(t, "3", tree[2].Code)
	})

	t.Run("management lines stay out of the sequence", func(t *testing.T) {
		tree := []models.ResultLink{
			{ID: "mgmt", Code: "M", CreatedAt: at(5)},
			{ID: "a", CPOutputID: strPtr("cp-1"), Code: "2", CreatedAt: at(10)},
			{ID: "b", CPOutputID: strPtr("cp-2"), Code: "4", CreatedAt: at(15)},
		}

		renumberTree(tree)

		assert.Equal(t, "M", tree[0].Code)
		assert.Equal(t, "1", tree[1].Code)
		assert.Equal(t, "2", tree[2].Code)
	})

	t.Run("dotted codes cascade through the tree", func(t *testing.T) {
		tree := []models.ResultLink{
			{
				ID:         "link",
				CPOutputID: strPtr("cp-1"),
				Code:       "2",
				CreatedAt:  at(1),
				LowerResults: []models.LowerResult{
					{
						ID:   "lr-1",
						Code: "2.1",
						Activities: []models.Activity{
							{
								ID:   "act-1",
								Code: "2.1.3",
								Items: []models.ActivityItem{
									{ID: "item-1", Code: "2.1.3.2"},
									{ID: "item-2", Code: "2.1.3.4"},
								},
							},
						},
					},
					{ID: "lr-2", Code: "2.4"},
				},
			},
		}

		renumberTree(tree)

		link := tree[0]
		assert.Equal(t, "1", link.Code)
		assert.Equal(t, "1.1", link.LowerResults[0].Code)
		assert.Equal(t, "1.2", link.LowerResults[1].Code)
		assert.Equal(t, "1.1.1", link.LowerResults[0].Activities[0].Code)
		assert.Equal(t, "1.1.1.1", link.LowerResults[0].Activities[0].Items[0].Code)
		assert.Equal(t, "1.1.1.2", link.LowerResults[0].Activities[0].Items[1].Code)
	})

	t.Run("already sequential tree is unchanged", func(t *testing.T) {
		tree := []models.ResultLink{
			{ID: "a", CPOutputID: strPtr("cp-1"), Code: "1", CreatedAt: at(1), LowerResults: []models.LowerResult{
				{ID: "lr", Code: "1.1"},
			}},
			{ID: "b", CPOutputID: strPtr("cp-2"), Code: "2", CreatedAt: at(2)},
		}

		renumberTree(tree)

		assert.Equal(t, "1", tree[0].Code)
		assert.Equal(t, "1.1", tree[0].LowerResults[0].Code)
		assert.Equal(t, "2", tree[1].Code)
	})
}

func TestAmendableStatuses(t *testing.T) {
	assert.True(t, amendableStatuses[models.InterventionStatusActive])
	assert.True(t, amendableStatuses[models.InterventionStatusEnded])
	assert.False(t, amendableStatuses[models.InterventionStatusDraft])
	assert.False(t, amendableStatuses[models.InterventionStatusClosed])
	assert.False(t, amendableStatuses[models.InterventionStatusTerminated])
}
