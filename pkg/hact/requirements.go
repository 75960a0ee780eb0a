package hact

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// auditThreshold is the current-programme cash above which one scheduled
// audit is required.
const auditThreshold = 500_000

// microAssessmentMaxAge is how long a micro assessment stays valid.
const microAssessmentMaxAge = 1642 * 24 * time.Hour

// MinimumRequirements derives the yearly visit and audit minimums from the
// partner's current-year cash and risk rating.
func MinimumRequirements(partner *models.Partner) models.MinRequirements {
	cash := partner.NetCTCY
	elevated := partner.RiskRating == models.RiskRatingSignificant || partner.RiskRating == models.RiskRatingHigh

	var visits, spotChecks int
	switch {
	case cash <= 0:
	case cash <= 50_000:
		visits = 1
	case cash <= 100_000:
		visits, spotChecks = 1, 1
	case cash <= 350_000:
		if elevated {
			visits, spotChecks = 2, 2
		} else {
			visits, spotChecks = 1, 1
		}
	default:
		if elevated {
			visits, spotChecks = 4, 3
		} else {
			visits, spotChecks = 2, 1
		}
	}

	audits := 0
	if partner.TotalCTCP > auditThreshold {
		audits = 1
	}

	return models.MinRequirements{
		ProgrammaticVisits: visits,
		SpotChecks:         spotChecks,
		Audits:             audits,
	}
}

// MicroAssessmentNeeded derives the partner's micro assessment flag from its
// assessment history. Returns "Yes", "No" or "Missing".
func MicroAssessmentNeeded(partner *models.Partner, assessments []models.Assessment, now time.Time) string {
	var lastMicro *models.Assessment
	for i := range assessments {
		assessment := assessments[i]
		if assessment.AssessmentType != models.AssessmentTypeMicroAssessment {
			continue
		}
		if lastMicro == nil || later(assessment.CompletedDate, lastMicro.CompletedDate) {
			lastMicro = &assessments[i]
		}
	}

	assessmentType := ""
	if partner.TypeOfAssessment != nil {
		assessmentType = *partner.TypeOfAssessment
	}

	switch {
	case assessmentType == models.AssessmentTypeHighRiskAssumed:
		return "Yes"
	case partner.NetCTCY > 100_000 && assessmentType == models.AssessmentTypeSimplifiedChecklist:
		return "Yes"
	case ratedForReassessment(partner.RiskRating) &&
		(assessmentType == models.AssessmentTypeMicroAssessment || assessmentType == models.AssessmentTypeNegativeAudit) &&
		lastMicro != nil && lastMicro.CompletedDate != nil &&
		now.Sub(*lastMicro.CompletedDate) > microAssessmentMaxAge:
		return "Yes"
	case lastMicro == nil:
		return "Missing"
	default:
		return "No"
	}
}

func ratedForReassessment(rating string) bool {
	switch rating {
	case models.RiskRatingLow, models.RiskRatingModerate, models.RiskRatingSignificant, models.RiskRatingHigh:
		return true
	}
	return false
}

func later(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}
