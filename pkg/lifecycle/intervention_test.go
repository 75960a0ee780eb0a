package lifecycle

import (
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/permissions"
)

func boolPtr(b bool) *bool {
	return &b
}

func TestApplyCourtFlips(t *testing.T) {
	s := &InterventionService{}

	t.Run("partner cannot set the unicef flag even alongside its own", func(t *testing.T) {
		i := &models.Intervention{UnicefCourt: false}
		req := models.UpdateInterventionRequest{
			UnicefAccepted:  boolPtr(true),
			PartnerAccepted: boolPtr(true),
		}

		err := s.applyCourtFlips(i, req, []string{permissions.RolePartnerFocalPoint})
		require.Error(t, err)
		assert.Equal(t, http.StatusForbidden, httperror.GetStatusCode(err))
		assert.False(t, i.UnicefAccepted)
	})

	t.Run("partner toggles its own flag out of court", func(t *testing.T) {
		i := &models.Intervention{UnicefCourt: false}
		req := models.UpdateInterventionRequest{PartnerAccepted: boolPtr(true)}

		require.NoError(t, s.applyCourtFlips(i, req, []string{permissions.RolePartnerFocalPoint}))
		assert.True(t, i.PartnerAccepted)
		assert.False(t, i.UnicefAccepted)
	})

	t.Run("manager toggles the unicef flag in court", func(t *testing.T) {
		i := &models.Intervention{UnicefCourt: true}
		req := models.UpdateInterventionRequest{UnicefAccepted: boolPtr(true)}

		require.NoError(t, s.applyCourtFlips(i, req, []string{permissions.RolePartnershipManager}))
		assert.True(t, i.UnicefAccepted)
	})

	t.Run("manager cannot toggle the partner flag", func(t *testing.T) {
		i := &models.Intervention{UnicefCourt: true}
		req := models.UpdateInterventionRequest{PartnerAccepted: boolPtr(true)}

		err := s.applyCourtFlips(i, req, []string{permissions.RolePartnershipManager})
		require.Error(t, err)
		assert.Equal(t, http.StatusForbidden, httperror.GetStatusCode(err))
		assert.False(t, i.PartnerAccepted)
	})

	t.Run("sending to partner resets acceptance", func(t *testing.T) {
		i := &models.Intervention{UnicefCourt: true, PartnerAccepted: true}
		req := models.UpdateInterventionRequest{UnicefCourt: boolPtr(false)}

		require.NoError(t, s.applyCourtFlips(i, req, []string{permissions.RolePartnershipManager}))
		assert.False(t, i.UnicefCourt)
		assert.True(t, i.UnicefAccepted)
		assert.False(t, i.PartnerAccepted)
		assert.NotNil(t, i.DateSentToPartner)
	})
}

func TestAgreementPairing(t *testing.T) {
	tests := []struct {
		documentType  string
		agreementType string
		allowed       bool
	}{
		{models.DocumentTypePD, models.AgreementTypePCA, true},
		{models.DocumentTypeSPD, models.AgreementTypePCA, true},
		{models.DocumentTypePD, models.AgreementTypeMOU, false},
		{models.DocumentTypeGOV, models.AgreementTypeMOU, true},
		{models.DocumentTypeGOV, models.AgreementTypePCA, false},
		{models.DocumentTypeSSFA, models.AgreementTypeSSFA, true},
		{models.DocumentTypeSSFA, models.AgreementTypePCA, false},
	}

	for _, tt := range tests {
		msg := agreementPairing(tt.documentType, tt.agreementType)
		if tt.allowed {
			assert.Empty(t, msg, "%s under %s", tt.documentType, tt.agreementType)
		} else {
			assert.NotEmpty(t, msg, "%s under %s", tt.documentType, tt.agreementType)
		}
	}
}

func TestSignatureFieldErrors(t *testing.T) {
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	id := "7f9c2f9e-8f8f-4f56-9a49-1f2d3c4b5a60"

	t.Run("pd requires both signatories", func(t *testing.T) {
		i := &models.Intervention{
			DocumentType:         models.DocumentTypePD,
			SignedByUnicefDate:   &date,
			UnicefSignatoryID:    &id,
			SignedPDAttachmentID: &id,
		}
		verr := signatureFieldErrors(i)
		require.True(t, verr.HasErrors())
		assert.Contains(t, verr.Fields, "signed_by_partner_date")
		assert.Contains(t, verr.Fields, "partner_signatory_id")
	})

	t.Run("gov skips the partner side", func(t *testing.T) {
		i := &models.Intervention{
			DocumentType:         models.DocumentTypeGOV,
			SignedByUnicefDate:   &date,
			UnicefSignatoryID:    &id,
			SignedPDAttachmentID: &id,
		}
		assert.NoError(t, signatureFieldErrors(i).OrNil())
	})

	t.Run("gov still needs the unicef side", func(t *testing.T) {
		i := &models.Intervention{DocumentType: models.DocumentTypeGOV}
		verr := signatureFieldErrors(i)
		require.True(t, verr.HasErrors())
		assert.Contains(t, verr.Fields, "signed_by_unicef_date")
		assert.Contains(t, verr.Fields, "unicef_signatory_id")
		assert.Contains(t, verr.Fields, "signed_pd_attachment_id")
		assert.NotContains(t, verr.Fields, "signed_by_partner_date")
	})
}

func TestFundsCoverEnd(t *testing.T) {
	day := func(y int, m time.Month, d int) *time.Time {
		v := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return &v
	}
	end := day(2026, 6, 30)

	t.Run("outstanding reservation spanning the end date covers it", func(t *testing.T) {
		frs := []models.FundsReservation{
			{OutstandingAmount: 1200, StartDate: day(2026, 1, 1), EndDate: day(2026, 12, 31)},
		}
		assert.True(t, fundsCoverEnd(frs, end))
	})

	t.Run("settled reservation does not count", func(t *testing.T) {
		frs := []models.FundsReservation{
			{OutstandingAmount: 0, StartDate: day(2026, 1, 1), EndDate: day(2026, 12, 31)},
		}
		assert.False(t, fundsCoverEnd(frs, end))
	})

	t.Run("reservation closing before the end date does not count", func(t *testing.T) {
		frs := []models.FundsReservation{
			{OutstandingAmount: 500, StartDate: day(2026, 1, 1), EndDate: day(2026, 5, 31)},
		}
		assert.False(t, fundsCoverEnd(frs, end))
	})

	t.Run("boundary dates are inclusive", func(t *testing.T) {
		frs := []models.FundsReservation{
			{OutstandingAmount: 500, StartDate: end, EndDate: end},
		}
		assert.True(t, fundsCoverEnd(frs, end))
	})

	t.Run("missing dates never cover", func(t *testing.T) {
		frs := []models.FundsReservation{{OutstandingAmount: 500}}
		assert.False(t, fundsCoverEnd(frs, end))
		assert.False(t, fundsCoverEnd(nil, nil))
	})
}
