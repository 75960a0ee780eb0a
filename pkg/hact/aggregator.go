package hact

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// lockTTL bounds one partner recomputation.
const lockTTL = 2 * time.Minute

// PartnerStore reads and writes the partner under recomputation.
type PartnerStore interface {
	GetByIDForUpdate(ctx context.Context, tenantID, id string) (*models.Partner, error)
	SetHactValues(ctx context.Context, tenantID, id string, values models.HactValues, minimums models.MinRequirements) error
}

// AssuranceStore loads the event inputs the record derives from.
type AssuranceStore interface {
	ListCompletedActivities(ctx context.Context, tenantID, partnerID string, year int) ([]models.MonitoringActivity, error)
	ListGroups(ctx context.Context, tenantID, partnerID string) ([]models.MonitoringActivityGroup, error)
	ListAssessments(ctx context.Context, tenantID, partnerID string) ([]models.Assessment, error)
}

// Locker serializes recomputation runs per partner.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// Aggregator recomputes the derived hact_values record on a partner from
// assessments, monitoring activities, and group membership. Recomputation is
// idempotent; runs against one partner are serialized by a distributed lock
// plus a row-lock on the partner.
type Aggregator struct {
	db        database.DB
	partners  PartnerStore
	assurance AssuranceStore
	locker    Locker
	logger    ectologger.Logger
}

// NewAggregator creates a new HACT aggregator
func NewAggregator(db database.DB, partners PartnerStore, assurance AssuranceStore, locker Locker, logger ectologger.Logger) *Aggregator {
	return &Aggregator{
		db:        db,
		partners:  partners,
		assurance: assurance,
		locker:    locker,
		logger:    logger,
	}
}

// Refresh recomputes and persists the partner's record. trigger names the
// event that scheduled the run, for metrics only.
func (a *Aggregator) Refresh(ctx context.Context, tenantID, partnerID, trigger string) error {
	ctx, span := tracing.StartSpan(ctx, "hact.Aggregator.Refresh")
	defer span.End()

	key := fmt.Sprintf("hact:%s:%s", tenantID, partnerID)
	err := a.locker.WithLock(ctx, key, lockTTL, func() error {
		return a.refresh(ctx, tenantID, partnerID)
	})
	if err != nil {
		metrics.RecordHactRefresh(tenantID, trigger, "error")
		a.logger.WithContext(ctx).WithError(err).WithField("partner_id", partnerID).Error("HACT refresh failed")
		return err
	}
	metrics.RecordHactRefresh(tenantID, trigger, "ok")
	return nil
}

// TryRefresh recomputes without surfacing the error to the caller. Write
// paths use it so a failed recomputation cannot fail a request whose write
// already persisted; the nightly sweep rebuilds the record regardless.
func (a *Aggregator) TryRefresh(ctx context.Context, tenantID, partnerID, trigger string) {
	_ = a.Refresh(ctx, tenantID, partnerID, trigger)
}

func (a *Aggregator) refresh(ctx context.Context, tenantID, partnerID string) error {
	ctx, tx, err := a.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	partner, err := a.partners.GetByIDForUpdate(ctx, tenantID, partnerID)
	if err != nil {
		return err
	}
	if partner == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "partner not found")
	}

	now := time.Now().UTC()
	year := now.Year()

	activities, err := a.assurance.ListCompletedActivities(ctx, tenantID, partnerID, year)
	if err != nil {
		return err
	}
	groups, err := a.assurance.ListGroups(ctx, tenantID, partnerID)
	if err != nil {
		return err
	}
	assessments, err := a.assurance.ListAssessments(ctx, tenantID, partnerID)
	if err != nil {
		return err
	}

	minimums := MinimumRequirements(partner)

	values := models.HactValues{
		ProgrammaticVisits: models.VisitMetrics{
			Completed:           countProgrammaticVisits(activities, groups),
			MinimumRequirements: minimums.ProgrammaticVisits,
		},
		SpotChecks: models.VisitMetrics{
			Completed:           countSpotChecks(activities),
			MinimumRequirements: minimums.SpotChecks,
		},
		Audits: models.AuditMetrics{
			Completed:           countScheduledAudits(assessments),
			MinimumRequirements: minimums.Audits,
		},
		OutstandingFindings:   countOutstandingFindings(assessments),
		MicroAssessmentNeeded: MicroAssessmentNeeded(partner, assessments, now),
	}
	values.AssuranceCoverage = coverage(values)

	if err := a.partners.SetHactValues(ctx, tenantID, partnerID, values, minimums); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// countProgrammaticVisits buckets completed HACT activities by quarter. A
// group of activities counts once, in the earliest quarter among its HACT
// members; grouped activities are excluded from individual counting.
func countProgrammaticVisits(activities []models.MonitoringActivity, groups []models.MonitoringActivityGroup) models.QuarterCounts {
	byID := make(map[string]*models.MonitoringActivity, len(activities))
	for i := range activities {
		byID[activities[i].ID] = &activities[i]
	}

	grouped := make(map[string]bool)
	var counts models.QuarterCounts
	for _, group := range groups {
		earliest := 0
		for _, memberID := range group.Members {
			member, ok := byID[memberID]
			if !ok || !member.IsHact || member.IsSpotCheck {
				continue
			}
			grouped[memberID] = true
			quarter := member.Quarter()
			if quarter == 0 {
				continue
			}
			if earliest == 0 || quarter < earliest {
				earliest = quarter
			}
		}
		addQuarter(&counts, earliest)
	}

	for i := range activities {
		activity := &activities[i]
		if !activity.IsHact || activity.IsSpotCheck || grouped[activity.ID] {
			continue
		}
		addQuarter(&counts, activity.Quarter())
	}
	return counts
}

func countSpotChecks(activities []models.MonitoringActivity) models.QuarterCounts {
	var counts models.QuarterCounts
	for i := range activities {
		if !activities[i].IsSpotCheck {
			continue
		}
		addQuarter(&counts, activities[i].Quarter())
	}
	return counts
}

func addQuarter(counts *models.QuarterCounts, quarter int) {
	switch quarter {
	case 1:
		counts.Q1++
	case 2:
		counts.Q2++
	case 3:
		counts.Q3++
	case 4:
		counts.Q4++
	default:
		return
	}
	counts.Total++
}

// countOutstandingFindings counts audit assessments still open against the
// partner. An audit row stays active until its findings are closed out, so
// the active audit count is the unresolved-findings figure on the record.
func countOutstandingFindings(assessments []models.Assessment) int {
	count := 0
	for _, assessment := range assessments {
		if !assessment.Active {
			continue
		}
		switch assessment.AssessmentType {
		case models.AssessmentTypeScheduledAudit, models.AssessmentTypeSpecialAudit:
			count++
		}
	}
	return count
}

func countScheduledAudits(assessments []models.Assessment) int {
	count := 0
	for _, assessment := range assessments {
		if assessment.AssessmentType == models.AssessmentTypeScheduledAudit {
			count++
		}
	}
	return count
}

func coverage(values models.HactValues) string {
	met := 0
	required := 0
	pairs := [][2]int{
		{values.ProgrammaticVisits.Completed.Total, values.ProgrammaticVisits.MinimumRequirements},
		{values.SpotChecks.Completed.Total, values.SpotChecks.MinimumRequirements},
		{values.Audits.Completed, values.Audits.MinimumRequirements},
	}
	for _, pair := range pairs {
		if pair[1] == 0 {
			continue
		}
		required++
		if pair[0] >= pair[1] {
			met++
		}
	}
	switch {
	case required == 0 || met == required:
		return models.AssuranceCoverageComplete
	case met > 0:
		return models.AssuranceCoveragePartial
	default:
		return models.AssuranceCoverageNone
	}
}
