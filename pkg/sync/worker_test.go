package sync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 8 * time.Minute},
		{6, 32 * time.Minute},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestDocumentWindows(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	due := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)

	windows := documentWindows([]models.ReportingRequirement{
		{ReportType: models.ReportTypeQPR, StartDate: start, EndDate: end, DueDate: due},
	})

	require.Len(t, windows, 1)
	assert.Equal(t, models.ReportTypeQPR, windows[0].ReportType)
	assert.Equal(t, start, windows[0].StartDate)
	assert.Equal(t, end, windows[0].EndDate)
	assert.Equal(t, due, windows[0].DueDate)

	assert.Empty(t, documentWindows(nil))
}

// The downstream consumer reads signatories, reporting windows, and focal
// point emails off the wire; their keys are part of the contract.
func TestDocumentWireContract(t *testing.T) {
	signed := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	signatory := "signatory-id"

	doc := Document{
		SignedByUnicefDate:  &signed,
		SignedByPartnerDate: &signed,
		UnicefSignatoryID:   &signatory,
		PartnerSignatoryID:  &signatory,
		ReportingRequirements: []DocumentWindow{
			{ReportType: models.ReportTypeHR, StartDate: signed, EndDate: signed, DueDate: signed},
		},
		UnicefFocalPointEmails:  []string{"amira@example.org"},
		PartnerFocalPointEmails: []string{"jonas@example.org"},
	}

	payload, err := json.Marshal(doc)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	for _, key := range []string{
		"signed_by_unicef_date",
		"signed_by_partner_date",
		"unicef_signatory_id",
		"partner_signatory_id",
		"reporting_requirements",
		"unicef_focal_point_emails",
		"partner_focal_point_emails",
	} {
		assert.Contains(t, decoded, key)
	}
}
