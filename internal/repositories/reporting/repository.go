package reporting

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var requirementColumns = []string{
	"id",
	"tenant_id",
	"intervention_id",
	"report_type",
	"start_date",
	"end_date",
	"due_date",
	"created_at",
	"updated_at",
	"deleted_at",
}

// Repository handles reporting requirement persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new reporting repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// List returns an intervention's requirements of one report type ordered by
// start date.
func (r *Repository) List(ctx context.Context, tenantID, interventionID, reportType string) ([]models.ReportingRequirement, error) {
	ctx, span := tracing.StartSpan(ctx, "reporting.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(requirementColumns...)
	sb.From("reporting_requirements")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("intervention_id", interventionID),
		sb.IsNull("deleted_at"),
	)
	if reportType != "" {
		sb.Where(sb.Equal("report_type", reportType))
	}
	sb.OrderBy("start_date ASC", "id ASC")

	query, args := sb.Build()
	var requirements []models.ReportingRequirement
	if err := r.db.SelectContext(ctx, &requirements, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list reporting requirements")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list reporting requirements")
	}
	return requirements, nil
}

// Replace swaps out every requirement of one report type in a single
// transaction. The old rows are soft deleted so merged amendments can still
// show history.
func (r *Repository) Replace(ctx context.Context, tenantID, interventionID, reportType string, windows []models.ReportingWindow) ([]models.ReportingRequirement, error) {
	ctx, span := tracing.StartSpan(ctx, "reporting.Repository.Replace")
	defer span.End()

	ctxTx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to begin transaction")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace reporting requirements")
	}
	defer tx.Rollback(ctxTx)

	now := time.Now().UTC()

	ub := database.NewUpdateBuilder()
	ub.Update("reporting_requirements")
	ub.Set(ub.Assign("deleted_at", now))
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("intervention_id", interventionID),
		ub.Equal("report_type", reportType),
		ub.IsNull("deleted_at"),
	)
	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctxTx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to clear reporting requirements")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace reporting requirements")
	}

	created := make([]models.ReportingRequirement, 0, len(windows))
	if len(windows) > 0 {
		ib := database.NewInsertBuilder()
		ib.InsertInto("reporting_requirements")
		ib.Cols("id", "tenant_id", "intervention_id", "report_type", "start_date", "end_date", "due_date", "created_at", "updated_at")
		for _, window := range windows {
			requirement := models.ReportingRequirement{
				ID:             uuid.New().String(),
				TenantID:       tenantID,
				InterventionID: interventionID,
				ReportType:     reportType,
				StartDate:      window.StartDate,
				EndDate:        window.EndDate,
				DueDate:        window.DueDate,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			ib.Values(requirement.ID, tenantID, interventionID, reportType, requirement.StartDate, requirement.EndDate, requirement.DueDate, now, now)
			created = append(created, requirement)
		}
		query, args = ib.Build()
		if _, err := r.db.ExecContext(ctxTx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to insert reporting requirements")
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace reporting requirements")
		}
	}

	if err := tx.Commit(ctxTx); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to commit reporting requirements")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace reporting requirements")
	}
	return created, nil
}

// CopyToIntervention clones every requirement from one intervention to
// another. Used when cloning an amendment shadow.
func (r *Repository) CopyToIntervention(ctx context.Context, tenantID, fromID, toID string) error {
	ctx, span := tracing.StartSpan(ctx, "reporting.Repository.CopyToIntervention")
	defer span.End()

	requirements, err := r.List(ctx, tenantID, fromID, "")
	if err != nil {
		return err
	}
	if len(requirements) == 0 {
		return nil
	}

	now := time.Now().UTC()
	ib := database.NewInsertBuilder()
	ib.InsertInto("reporting_requirements")
	ib.Cols("id", "tenant_id", "intervention_id", "report_type", "start_date", "end_date", "due_date", "created_at", "updated_at")
	for _, requirement := range requirements {
		ib.Values(uuid.New().String(), tenantID, toID, requirement.ReportType, requirement.StartDate, requirement.EndDate, requirement.DueDate, now, now)
	}

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to copy reporting requirements")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to copy reporting requirements")
	}
	return nil
}
