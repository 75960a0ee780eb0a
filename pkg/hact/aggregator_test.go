package hact

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

type stubLocker struct {
	err error
}

func (s *stubLocker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	if s.err != nil {
		return s.err
	}
	return fn()
}

func activityEnding(id string, month time.Month, hact, spotCheck bool) models.MonitoringActivity {
	end := time.Date(2026, month, 15, 0, 0, 0, 0, time.UTC)
	return models.MonitoringActivity{
		ID:          id,
		Status:      models.MonitoringActivityStatusCompleted,
		IsHact:      hact,
		IsSpotCheck: spotCheck,
		EndDate:     &end,
	}
}

func TestCountProgrammaticVisits(t *testing.T) {
	t.Run("individual activities bucket by quarter", func(t *testing.T) {
		activities := []models.MonitoringActivity{
			activityEnding("a", time.January, true, false),
			activityEnding("b", time.February, true, false),
			activityEnding("c", time.July, true, false),
		}
		counts := countProgrammaticVisits(activities, nil)
		assert.Equal(t, 2, counts.Q1)
		assert.Equal(t, 1, counts.Q3)
		assert.Equal(t, 3, counts.Total)
	})

	t.Run("non hact and spot checks are excluded", func(t *testing.T) {
		activities := []models.MonitoringActivity{
			activityEnding("a", time.January, false, false),
			activityEnding("b", time.February, true, true),
		}
		counts := countProgrammaticVisits(activities, nil)
		assert.Equal(t, 0, counts.Total)
	})

	t.Run("group counts once in earliest quarter", func(t *testing.T) {
		activities := []models.MonitoringActivity{
			activityEnding("a", time.April, true, false),
			activityEnding("b", time.October, true, false),
		}
		groups := []models.MonitoringActivityGroup{
			{ID: "g1", Members: []string{"a", "b"}},
		}
		counts := countProgrammaticVisits(activities, groups)
		assert.Equal(t, 1, counts.Q2)
		assert.Equal(t, 0, counts.Q4)
		assert.Equal(t, 1, counts.Total)
	})

	t.Run("grouped members are not double counted", func(t *testing.T) {
		activities := []models.MonitoringActivity{
			activityEnding("a", time.April, true, false),
			activityEnding("b", time.May, true, false),
			activityEnding("c", time.November, true, false),
		}
		groups := []models.MonitoringActivityGroup{
			{ID: "g1", Members: []string{"a", "b"}},
		}
		counts := countProgrammaticVisits(activities, groups)
		assert.Equal(t, 1, counts.Q2)
		assert.Equal(t, 1, counts.Q4)
		assert.Equal(t, 2, counts.Total)
	})

	t.Run("group of unknown members counts nothing", func(t *testing.T) {
		groups := []models.MonitoringActivityGroup{
			{ID: "g1", Members: []string{"missing"}},
		}
		counts := countProgrammaticVisits(nil, groups)
		assert.Equal(t, 0, counts.Total)
	})
}

func TestCountSpotChecks(t *testing.T) {
	activities := []models.MonitoringActivity{
		activityEnding("a", time.January, true, true),
		activityEnding("b", time.December, false, true),
		activityEnding("c", time.March, true, false),
	}
	counts := countSpotChecks(activities)
	assert.Equal(t, 1, counts.Q1)
	assert.Equal(t, 1, counts.Q4)
	assert.Equal(t, 2, counts.Total)
}

func TestTryRefreshSwallowsErrors(t *testing.T) {
	logged := 0
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) { logged++ })
	aggregator := NewAggregator(nil, nil, nil, &stubLocker{err: errors.New("lock backend down")}, logger)

	require.Error(t, aggregator.Refresh(context.Background(), "tenant", "partner", "test"))
	assert.NotPanics(t, func() {
		aggregator.TryRefresh(context.Background(), "tenant", "partner", "test")
	})
	assert.NotZero(t, logged)
}

func TestCountOutstandingFindings(t *testing.T) {
	assessments := []models.Assessment{
		{ID: "a", AssessmentType: models.AssessmentTypeScheduledAudit, Active: true},
		{ID: "b", AssessmentType: models.AssessmentTypeSpecialAudit, Active: true},
		{ID: "c", AssessmentType: models.AssessmentTypeScheduledAudit, Active: false},
		{ID: "d", AssessmentType: models.AssessmentTypeMicroAssessment, Active: true},
		{ID: "e", AssessmentType: models.AssessmentTypeSpotCheck, Active: true},
	}
	assert.Equal(t, 2, countOutstandingFindings(assessments))
	assert.Equal(t, 0, countOutstandingFindings(nil))
}

func TestCoverage(t *testing.T) {
	build := func(visitsDone, visitsMin, checksDone, checksMin, auditsDone, auditsMin int) models.HactValues {
		return models.HactValues{
			ProgrammaticVisits: models.VisitMetrics{
				Completed:           models.QuarterCounts{Total: visitsDone},
				MinimumRequirements: visitsMin,
			},
			SpotChecks: models.VisitMetrics{
				Completed:           models.QuarterCounts{Total: checksDone},
				MinimumRequirements: checksMin,
			},
			Audits: models.AuditMetrics{
				Completed:           auditsDone,
				MinimumRequirements: auditsMin,
			},
		}
	}

	tests := []struct {
		name     string
		values   models.HactValues
		expected string
	}{
		{"no requirements means complete", build(0, 0, 0, 0, 0, 0), models.AssuranceCoverageComplete},
		{"all met", build(2, 2, 1, 1, 1, 1), models.AssuranceCoverageComplete},
		{"over-delivery still complete", build(5, 2, 3, 1, 2, 1), models.AssuranceCoverageComplete},
		{"partial", build(2, 2, 0, 1, 0, 0), models.AssuranceCoveragePartial},
		{"none met", build(0, 2, 0, 1, 0, 1), models.AssuranceCoverageNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, coverage(tt.values))
		})
	}
}
