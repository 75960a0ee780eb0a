package plannedvisit

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

var plannedVisitColumns = []string{
	"id",
	"tenant_id",
	"intervention_id",
	"year",
	"programmatic_q1",
	"programmatic_q2",
	"programmatic_q3",
	"programmatic_q4",
	"created_at",
	"updated_at",
	"deleted_at",
}

// Repository handles planned visit persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new planned visit repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListByIntervention returns the visit plans for every year, sites attached.
func (r *Repository) ListByIntervention(ctx context.Context, tenantID, interventionID string) ([]models.PlannedVisit, error) {
	ctx, span := tracing.StartSpan(ctx, "plannedvisit.Repository.ListByIntervention")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(plannedVisitColumns...)
	sb.From("planned_visits")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("intervention_id", interventionID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("year ASC")

	query, args := sb.Build()
	var visits []models.PlannedVisit
	if err := r.db.SelectContext(ctx, &visits, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list planned visits")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list planned visits")
	}

	for i := range visits {
		if err := r.loadSites(ctx, tenantID, &visits[i]); err != nil {
			return nil, err
		}
	}
	return visits, nil
}

// Upsert writes the plan for one year, keyed on (intervention, year).
func (r *Repository) Upsert(ctx context.Context, tenantID string, visit *models.PlannedVisit) error {
	ctx, span := tracing.StartSpan(ctx, "plannedvisit.Repository.Upsert")
	defer span.End()

	ctxTx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to begin transaction")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save planned visit")
	}
	defer tx.Rollback(ctxTx)

	now := time.Now().UTC()
	if visit.ID == "" {
		visit.ID = uuid.New().String()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("planned_visits")
	ib.Cols("id", "tenant_id", "intervention_id", "year", "programmatic_q1", "programmatic_q2", "programmatic_q3", "programmatic_q4", "created_at", "updated_at")
	ib.Values(visit.ID, tenantID, visit.InterventionID, visit.Year, visit.ProgrammaticQ1, visit.ProgrammaticQ2, visit.ProgrammaticQ3, visit.ProgrammaticQ4, now, now)
	ub := ib.OnConflict("intervention_id", "year")
	ub.Set(
		ub.Assign("programmatic_q1", database.Excluded("programmatic_q1")),
		ub.Assign("programmatic_q2", database.Excluded("programmatic_q2")),
		ub.Assign("programmatic_q3", database.Excluded("programmatic_q3")),
		ub.Assign("programmatic_q4", database.Excluded("programmatic_q4")),
		ub.Assign("deleted_at", nil),
		ub.Assign("updated_at", now),
	)

	query, args := ib.Build()
	query += " RETURNING id"
	if err := r.db.QueryRowxContext(ctxTx, query, args...).Scan(&visit.ID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to upsert planned visit")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save planned visit")
	}

	if err := r.replaceSites(ctxTx, tenantID, visit); err != nil {
		return err
	}

	if err := tx.Commit(ctxTx); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to commit planned visit")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save planned visit")
	}
	return nil
}

// SoftDelete removes the plan for one year.
func (r *Repository) SoftDelete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "plannedvisit.Repository.SoftDelete")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("planned_visits")
	ub.Set(ub.Assign("deleted_at", time.Now().UTC()))
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", id),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete planned visit")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete planned visit")
	}
	return nil
}

func (r *Repository) loadSites(ctx context.Context, tenantID string, visit *models.PlannedVisit) error {
	type siteRow struct {
		Quarter int    `db:"quarter"`
		SiteID  string `db:"site_id"`
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("quarter", "site_id")
	sb.From("planned_visit_sites")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("planned_visit_id", visit.ID),
	)
	sb.OrderBy("quarter ASC", "site_id ASC")

	query, args := sb.Build()
	var rows []siteRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load planned visit sites")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to list planned visits")
	}

	for _, row := range rows {
		switch row.Quarter {
		case 1:
			visit.SitesQ1 = append(visit.SitesQ1, row.SiteID)
		case 2:
			visit.SitesQ2 = append(visit.SitesQ2, row.SiteID)
		case 3:
			visit.SitesQ3 = append(visit.SitesQ3, row.SiteID)
		case 4:
			visit.SitesQ4 = append(visit.SitesQ4, row.SiteID)
		}
	}
	return nil
}

func (r *Repository) replaceSites(ctx context.Context, tenantID string, visit *models.PlannedVisit) error {
	del := database.NewDeleteBuilder()
	del.DeleteFrom("planned_visit_sites")
	del.Where(
		del.Equal("tenant_id", tenantID),
		del.Equal("planned_visit_id", visit.ID),
	)
	query, args := del.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to clear planned visit sites")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save planned visit")
	}

	quarters := map[int][]string{
		1: visit.SitesQ1,
		2: visit.SitesQ2,
		3: visit.SitesQ3,
		4: visit.SitesQ4,
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("planned_visit_sites")
	ib.Cols("planned_visit_id", "tenant_id", "quarter", "site_id")
	count := 0
	for quarter, sites := range quarters {
		for _, siteID := range sites {
			ib.Values(visit.ID, tenantID, quarter, siteID)
			count++
		}
	}
	if count == 0 {
		return nil
	}

	query, args = ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert planned visit sites")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save planned visit")
	}
	return nil
}
