package hact

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestMinimumRequirements(t *testing.T) {
	tests := []struct {
		name       string
		cash       float64
		rating     string
		totalCTCP  float64
		visits     int
		spotChecks int
		audits     int
	}{
		{name: "no cash no requirements", cash: 0, rating: models.RiskRatingLow},
		{name: "negative cash no requirements", cash: -500, rating: models.RiskRatingHigh},
		{name: "lowest band", cash: 25_000, rating: models.RiskRatingHigh, visits: 1},
		{name: "lowest band boundary", cash: 50_000, rating: models.RiskRatingLow, visits: 1},
		{name: "second band", cash: 100_000, rating: models.RiskRatingLow, visits: 1, spotChecks: 1},
		{name: "third band low risk", cash: 350_000, rating: models.RiskRatingModerate, visits: 1, spotChecks: 1},
		{name: "third band high risk", cash: 350_000, rating: models.RiskRatingSignificant, visits: 2, spotChecks: 2},
		{name: "top band low risk", cash: 1_000_000, rating: models.RiskRatingModerate, visits: 2, spotChecks: 1},
		{name: "top band high risk", cash: 1_000_000, rating: models.RiskRatingHigh, visits: 4, spotChecks: 3},
		{name: "audit above programme threshold", cash: 10_000, rating: models.RiskRatingLow, totalCTCP: 600_000, visits: 1, audits: 1},
		{name: "no audit at programme threshold", cash: 10_000, rating: models.RiskRatingLow, totalCTCP: 500_000, visits: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			partner := &models.Partner{
				NetCTCY:    tt.cash,
				TotalCTCP:  tt.totalCTCP,
				RiskRating: tt.rating,
			}
			minimums := MinimumRequirements(partner)
			assert.Equal(t, tt.visits, minimums.ProgrammaticVisits, "visits")
			assert.Equal(t, tt.spotChecks, minimums.SpotChecks, "spot checks")
			assert.Equal(t, tt.audits, minimums.Audits, "audits")
		})
	}
}

func TestMicroAssessmentNeeded(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	strPtr := func(s string) *string { return &s }
	fresh := now.AddDate(0, -6, 0)
	stale := now.AddDate(-5, 0, 0)

	t.Run("high risk assumed always needs assessment", func(t *testing.T) {
		partner := &models.Partner{TypeOfAssessment: strPtr(models.AssessmentTypeHighRiskAssumed)}
		assert.Equal(t, "Yes", MicroAssessmentNeeded(partner, nil, now))
	})

	t.Run("checklist with large cash needs assessment", func(t *testing.T) {
		partner := &models.Partner{
			NetCTCY:          150_000,
			TypeOfAssessment: strPtr(models.AssessmentTypeSimplifiedChecklist),
		}
		assert.Equal(t, "Yes", MicroAssessmentNeeded(partner, nil, now))
	})

	t.Run("expired assessment needs redoing", func(t *testing.T) {
		partner := &models.Partner{
			RiskRating:       models.RiskRatingModerate,
			TypeOfAssessment: strPtr(models.AssessmentTypeMicroAssessment),
		}
		assessments := []models.Assessment{
			{AssessmentType: models.AssessmentTypeMicroAssessment, CompletedDate: &stale},
		}
		assert.Equal(t, "Yes", MicroAssessmentNeeded(partner, assessments, now))
	})

	t.Run("fresh assessment is fine", func(t *testing.T) {
		partner := &models.Partner{
			RiskRating:       models.RiskRatingModerate,
			TypeOfAssessment: strPtr(models.AssessmentTypeMicroAssessment),
		}
		assessments := []models.Assessment{
			{AssessmentType: models.AssessmentTypeMicroAssessment, CompletedDate: &fresh},
		}
		assert.Equal(t, "No", MicroAssessmentNeeded(partner, assessments, now))
	})

	t.Run("latest assessment wins", func(t *testing.T) {
		partner := &models.Partner{
			RiskRating:       models.RiskRatingModerate,
			TypeOfAssessment: strPtr(models.AssessmentTypeMicroAssessment),
		}
		assessments := []models.Assessment{
			{AssessmentType: models.AssessmentTypeMicroAssessment, CompletedDate: &stale},
			{AssessmentType: models.AssessmentTypeMicroAssessment, CompletedDate: &fresh},
		}
		assert.Equal(t, "No", MicroAssessmentNeeded(partner, assessments, now))
	})

	t.Run("no history is missing", func(t *testing.T) {
		partner := &models.Partner{RiskRating: models.RiskRatingLow}
		assert.Equal(t, "Missing", MicroAssessmentNeeded(partner, nil, now))
	})

	t.Run("other assessment types do not count as micro", func(t *testing.T) {
		partner := &models.Partner{RiskRating: models.RiskRatingLow}
		assessments := []models.Assessment{
			{AssessmentType: models.AssessmentTypeSpotCheck, CompletedDate: &fresh},
		}
		assert.Equal(t, "Missing", MicroAssessmentNeeded(partner, assessments, now))
	})
}
