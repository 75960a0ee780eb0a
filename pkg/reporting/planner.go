package reporting

import (
	"context"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/validation"
)

// Store persists reporting windows.
type Store interface {
	List(ctx context.Context, tenantID, interventionID, reportType string) ([]models.ReportingRequirement, error)
	Replace(ctx context.Context, tenantID, interventionID, reportType string, windows []models.ReportingWindow) ([]models.ReportingRequirement, error)
}

// IndicatorCounter backs the high-frequency guard on HR windows.
type IndicatorCounter interface {
	CountHighFrequencyIndicators(ctx context.Context, tenantID, interventionID string) (int, error)
}

var validReportTypes = map[string]bool{
	models.ReportTypeQPR: true,
	models.ReportTypeHR:  true,
	models.ReportTypeSPR: true,
	models.ReportTypeSR:  true,
}

// Planner validates and atomically replaces the reporting windows for one
// (intervention, report type).
type Planner struct {
	store      Store
	indicators IndicatorCounter
	logger     ectologger.Logger
}

// NewPlanner creates a new reporting planner
func NewPlanner(store Store, indicators IndicatorCounter, logger ectologger.Logger) *Planner {
	return &Planner{
		store:      store,
		indicators: indicators,
		logger:     logger,
	}
}

// List returns the current windows for one report type.
func (p *Planner) List(ctx context.Context, tenantID, interventionID, reportType string) ([]models.ReportingRequirement, error) {
	if !validReportTypes[reportType] {
		return nil, validation.New("invalid report type").Addf("report_type", "unknown report type %q", reportType)
	}
	return p.store.List(ctx, tenantID, interventionID, reportType)
}

// Replace swaps the window set after checking the window shape, overlap, and
// document mutability rules.
func (p *Planner) Replace(ctx context.Context, tenantID string, intervention *models.Intervention, reportType string, windows []models.ReportingWindow) ([]models.ReportingRequirement, error) {
	ctx, span := tracing.StartSpan(ctx, "reporting.Planner.Replace")
	defer span.End()

	if !validReportTypes[reportType] {
		return nil, validation.New("invalid report type").Addf("report_type", "unknown report type %q", reportType)
	}

	if err := p.checkMutable(ctx, tenantID, intervention, reportType); err != nil {
		return nil, err
	}

	existing, err := p.store.List(ctx, tenantID, intervention.ID, reportType)
	if err != nil {
		return nil, err
	}
	windows = mergeWindows(existing, windows)

	if err := validateWindows(windows); err != nil {
		return nil, err
	}

	if reportType == models.ReportTypeHR && len(windows) > 0 {
		count, err := p.indicators.CountHighFrequencyIndicators(ctx, tenantID, intervention.ID)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, validation.NonField("HR reporting requires at least one high frequency indicator")
		}
	}

	return p.store.Replace(ctx, tenantID, intervention.ID, reportType, windows)
}

// checkMutable rejects planner writes once the document is activated, except
// through an amendment or the first write on a signed contingency document.
func (p *Planner) checkMutable(ctx context.Context, tenantID string, intervention *models.Intervention, reportType string) error {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if intervention.Status == models.InterventionStatusTerminated &&
		intervention.End != nil && intervention.End.Before(today) {
		return validation.NonField("reporting requirements can no longer be changed on a terminated document")
	}

	if intervention.Status == models.InterventionStatusDraft || intervention.InAmendment {
		return nil
	}

	if intervention.Status == models.InterventionStatusSigned && intervention.ContingencyPD {
		existing, err := p.store.List(ctx, tenantID, intervention.ID, reportType)
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			return nil
		}
	}

	return validation.NonField("reporting requirements can only be changed in draft or through an amendment")
}

// mergeWindows builds the effective window set for a write. Posted windows
// supersede existing windows that share a start date; other existing windows
// survive. An empty post clears the whole set.
func mergeWindows(existing []models.ReportingRequirement, posted []models.ReportingWindow) []models.ReportingWindow {
	if len(posted) == 0 {
		return nil
	}
	superseded := make(map[time.Time]bool, len(posted))
	for _, window := range posted {
		superseded[window.StartDate] = true
	}
	merged := make([]models.ReportingWindow, 0, len(posted)+len(existing))
	merged = append(merged, posted...)
	for _, requirement := range existing {
		if superseded[requirement.StartDate] {
			continue
		}
		merged = append(merged, models.ReportingWindow{
			StartDate: requirement.StartDate,
			EndDate:   requirement.EndDate,
			DueDate:   requirement.DueDate,
		})
	}
	return merged
}

func validateWindows(windows []models.ReportingWindow) error {
	verr := validation.New("invalid reporting windows")
	for i, window := range windows {
		if window.EndDate.Before(window.StartDate) {
			verr.Addf("reporting_requirements", "window %d: end_date before start_date", i+1)
		}
		if window.DueDate.Before(window.EndDate) {
			verr.Addf("reporting_requirements", "window %d: due_date before end_date", i+1)
		}
	}
	if verr.HasErrors() {
		return verr
	}

	sorted := make([]models.ReportingWindow, len(windows))
	copy(sorted, windows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartDate.Before(sorted[j].StartDate) })
	for i := 1; i < len(sorted); i++ {
		// Closed intervals: sharing a boundary day counts as overlap.
		if !sorted[i].StartDate.After(sorted[i-1].EndDate) {
			return validation.NonField("Reporting windows overlap")
		}
	}
	return nil
}
