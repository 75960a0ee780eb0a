package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/validation"
)

type fakeStore struct {
	existing []models.ReportingRequirement
	replaced []models.ReportingWindow
}

func (f *fakeStore) List(ctx context.Context, tenantID, interventionID, reportType string) ([]models.ReportingRequirement, error) {
	return f.existing, nil
}

func (f *fakeStore) Replace(ctx context.Context, tenantID, interventionID, reportType string, windows []models.ReportingWindow) ([]models.ReportingRequirement, error) {
	f.replaced = windows
	requirements := make([]models.ReportingRequirement, 0, len(windows))
	for _, window := range windows {
		requirements = append(requirements, models.ReportingRequirement{
			TenantID:       tenantID,
			InterventionID: interventionID,
			ReportType:     reportType,
			StartDate:      window.StartDate,
			EndDate:        window.EndDate,
			DueDate:        window.DueDate,
		})
	}
	return requirements, nil
}

type fakeCounter struct {
	count int
}

func (f *fakeCounter) CountHighFrequencyIndicators(ctx context.Context, tenantID, interventionID string) (int, error) {
	return f.count, nil
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func day(month time.Month, d int) time.Time {
	return time.Date(2026, month, d, 0, 0, 0, 0, time.UTC)
}

func window(start, end, due time.Time) models.ReportingWindow {
	return models.ReportingWindow{StartDate: start, EndDate: end, DueDate: due}
}

func draftIntervention() *models.Intervention {
	return &models.Intervention{
		ID:     "i1",
		Status: models.InterventionStatusDraft,
	}
}

func TestReplace(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects unknown report type", func(t *testing.T) {
		planner := NewPlanner(&fakeStore{}, &fakeCounter{}, noopLogger())
		_, err := planner.Replace(ctx, "t1", draftIntervention(), "WRONG", nil)
		var verr *validation.Error
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields["report_type"][0], "WRONG")
	})

	t.Run("stores valid windows", func(t *testing.T) {
		store := &fakeStore{}
		planner := NewPlanner(store, &fakeCounter{}, noopLogger())
		windows := []models.ReportingWindow{
			window(day(time.January, 1), day(time.March, 31), day(time.April, 15)),
			window(day(time.April, 1), day(time.June, 30), day(time.July, 15)),
		}
		requirements, err := planner.Replace(ctx, "t1", draftIntervention(), models.ReportTypeQPR, windows)
		require.NoError(t, err)
		assert.Len(t, requirements, 2)
		assert.Len(t, store.replaced, 2)
	})

	t.Run("rejects end before start and due before end", func(t *testing.T) {
		planner := NewPlanner(&fakeStore{}, &fakeCounter{}, noopLogger())
		windows := []models.ReportingWindow{
			window(day(time.March, 1), day(time.January, 31), day(time.January, 15)),
		}
		_, err := planner.Replace(ctx, "t1", draftIntervention(), models.ReportTypeQPR, windows)
		var verr *validation.Error
		require.ErrorAs(t, err, &verr)
		require.Len(t, verr.Fields["reporting_requirements"], 2)
	})

	t.Run("rejects overlapping windows", func(t *testing.T) {
		planner := NewPlanner(&fakeStore{}, &fakeCounter{}, noopLogger())
		windows := []models.ReportingWindow{
			window(day(time.January, 1), day(time.March, 31), day(time.April, 15)),
			window(day(time.March, 15), day(time.June, 30), day(time.July, 15)),
		}
		_, err := planner.Replace(ctx, "t1", draftIntervention(), models.ReportTypeQPR, windows)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Reporting windows overlap")
	})

	t.Run("a shared boundary day is an overlap", func(t *testing.T) {
		planner := NewPlanner(&fakeStore{}, &fakeCounter{}, noopLogger())
		windows := []models.ReportingWindow{
			window(day(time.January, 1), day(time.March, 31), day(time.April, 15)),
			window(day(time.March, 31), day(time.June, 30), day(time.July, 15)),
		}
		_, err := planner.Replace(ctx, "t1", draftIntervention(), models.ReportTypeQPR, windows)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Reporting windows overlap")
	})

	t.Run("posted window supersedes the existing one sharing its start date", func(t *testing.T) {
		store := &fakeStore{
			existing: []models.ReportingRequirement{
				{StartDate: day(time.January, 1), EndDate: day(time.March, 31), DueDate: day(time.April, 15)},
				{StartDate: day(time.July, 1), EndDate: day(time.September, 30), DueDate: day(time.October, 15)},
			},
		}
		planner := NewPlanner(store, &fakeCounter{}, noopLogger())
		posted := []models.ReportingWindow{
			window(day(time.January, 1), day(time.February, 28), day(time.March, 15)),
		}
		requirements, err := planner.Replace(ctx, "t1", draftIntervention(), models.ReportTypeQPR, posted)
		require.NoError(t, err)
		require.Len(t, requirements, 2)
		assert.Len(t, store.replaced, 2)

		byStart := map[time.Time]models.ReportingWindow{}
		for _, w := range store.replaced {
			byStart[w.StartDate] = w
		}
		assert.Equal(t, day(time.February, 28), byStart[day(time.January, 1)].EndDate)
		assert.Equal(t, day(time.September, 30), byStart[day(time.July, 1)].EndDate)
	})

	t.Run("empty post clears all windows", func(t *testing.T) {
		store := &fakeStore{
			existing: []models.ReportingRequirement{
				{StartDate: day(time.January, 1), EndDate: day(time.March, 31), DueDate: day(time.April, 15)},
			},
		}
		planner := NewPlanner(store, &fakeCounter{}, noopLogger())
		requirements, err := planner.Replace(ctx, "t1", draftIntervention(), models.ReportTypeQPR, nil)
		require.NoError(t, err)
		assert.Empty(t, requirements)
		assert.Empty(t, store.replaced)
	})

	t.Run("HR windows require a high frequency indicator", func(t *testing.T) {
		planner := NewPlanner(&fakeStore{}, &fakeCounter{count: 0}, noopLogger())
		windows := []models.ReportingWindow{
			window(day(time.January, 1), day(time.January, 31), day(time.February, 15)),
		}
		_, err := planner.Replace(ctx, "t1", draftIntervention(), models.ReportTypeHR, windows)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "high frequency indicator")

		planner = NewPlanner(&fakeStore{}, &fakeCounter{count: 2}, noopLogger())
		_, err = planner.Replace(ctx, "t1", draftIntervention(), models.ReportTypeHR, windows)
		assert.NoError(t, err)
	})
}

func TestReplaceMutability(t *testing.T) {
	ctx := context.Background()
	windows := []models.ReportingWindow{
		window(day(time.January, 1), day(time.March, 31), day(time.April, 15)),
	}

	t.Run("active document refuses planner writes", func(t *testing.T) {
		planner := NewPlanner(&fakeStore{}, &fakeCounter{}, noopLogger())
		intervention := &models.Intervention{ID: "i1", Status: models.InterventionStatusActive}
		_, err := planner.Replace(ctx, "t1", intervention, models.ReportTypeQPR, windows)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "draft or through an amendment")
	})

	t.Run("amendment reopens the planner", func(t *testing.T) {
		planner := NewPlanner(&fakeStore{}, &fakeCounter{}, noopLogger())
		intervention := &models.Intervention{ID: "i1", Status: models.InterventionStatusActive, InAmendment: true}
		_, err := planner.Replace(ctx, "t1", intervention, models.ReportTypeQPR, windows)
		assert.NoError(t, err)
	})

	t.Run("signed contingency allows only the first write", func(t *testing.T) {
		store := &fakeStore{}
		planner := NewPlanner(store, &fakeCounter{}, noopLogger())
		intervention := &models.Intervention{ID: "i1", Status: models.InterventionStatusSigned, ContingencyPD: true}
		_, err := planner.Replace(ctx, "t1", intervention, models.ReportTypeQPR, windows)
		require.NoError(t, err)

		store.existing = []models.ReportingRequirement{
			{StartDate: day(time.January, 1), EndDate: day(time.March, 31), DueDate: day(time.April, 15)},
		}
		next := []models.ReportingWindow{
			window(day(time.July, 1), day(time.September, 30), day(time.October, 15)),
		}
		_, err = planner.Replace(ctx, "t1", intervention, models.ReportTypeQPR, next)
		require.Error(t, err)
	})

	t.Run("terminated document past its end date is frozen", func(t *testing.T) {
		planner := NewPlanner(&fakeStore{}, &fakeCounter{}, noopLogger())
		end := time.Now().UTC().AddDate(0, -1, 0)
		intervention := &models.Intervention{
			ID:          "i1",
			Status:      models.InterventionStatusTerminated,
			End:         &end,
			InAmendment: true,
		}
		_, err := planner.Replace(ctx, "t1", intervention, models.ReportTypeQPR, windows)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "terminated")
	})
}
