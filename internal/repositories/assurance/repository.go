package assurance

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

// Repository handles the assurance inputs to the partner HACT record: funds
// reservations, assessments, and monitoring activities with their groups.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new assurance repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListFundsReservations returns an intervention's FR headers.
func (r *Repository) ListFundsReservations(ctx context.Context, tenantID, interventionID string) ([]models.FundsReservation, error) {
	ctx, span := tracing.StartSpan(ctx, "assurance.Repository.ListFundsReservations")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "intervention_id", "fr_number", "currency", "total_amount", "outstanding_amount", "actual_amount", "start_date", "end_date", "created_at", "updated_at", "deleted_at")
	sb.From("funds_reservations")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("intervention_id", interventionID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("fr_number ASC")

	query, args := sb.Build()
	var reservations []models.FundsReservation
	if err := r.db.SelectContext(ctx, &reservations, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list funds reservations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list funds reservations")
	}
	return reservations, nil
}

// CountFundsReservations reports whether any FR header is linked. Backs the
// cash precondition on activation.
func (r *Repository) CountFundsReservations(ctx context.Context, tenantID, interventionID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "assurance.Repository.CountFundsReservations")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("funds_reservations")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("intervention_id", interventionID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count funds reservations")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count funds reservations")
	}
	return count, nil
}

// SumOutstanding totals outstanding FR amounts for an intervention. A nonzero
// sum blocks active → terminated.
func (r *Repository) SumOutstanding(ctx context.Context, tenantID, interventionID string) (float64, error) {
	ctx, span := tracing.StartSpan(ctx, "assurance.Repository.SumOutstanding")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COALESCE(SUM(outstanding_amount), 0)")
	sb.From("funds_reservations")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("intervention_id", interventionID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var total float64
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to sum outstanding funds")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to sum outstanding funds")
	}
	return total, nil
}

// UpsertFundsReservation writes a FR header keyed on (tenant, fr_number).
func (r *Repository) UpsertFundsReservation(ctx context.Context, tenantID string, reservation *models.FundsReservation) error {
	ctx, span := tracing.StartSpan(ctx, "assurance.Repository.UpsertFundsReservation")
	defer span.End()

	now := time.Now().UTC()
	if reservation.ID == "" {
		reservation.ID = uuid.New().String()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("funds_reservations")
	ib.Cols("id", "tenant_id", "intervention_id", "fr_number", "currency", "total_amount", "outstanding_amount", "actual_amount", "start_date", "end_date", "created_at", "updated_at")
	ib.Values(reservation.ID, tenantID, reservation.InterventionID, reservation.FRNumber, reservation.Currency, reservation.TotalAmount, reservation.OutstandingAmount, reservation.ActualAmount, reservation.StartDate, reservation.EndDate, now, now)
	ub := ib.OnConflict("tenant_id", "fr_number")
	ub.Set(
		ub.Assign("intervention_id", database.Excluded("intervention_id")),
		ub.Assign("currency", database.Excluded("currency")),
		ub.Assign("total_amount", database.Excluded("total_amount")),
		ub.Assign("outstanding_amount", database.Excluded("outstanding_amount")),
		ub.Assign("actual_amount", database.Excluded("actual_amount")),
		ub.Assign("start_date", database.Excluded("start_date")),
		ub.Assign("end_date", database.Excluded("end_date")),
		ub.Assign("deleted_at", nil),
		ub.Assign("updated_at", now),
	)

	query, args := ib.Build()
	query += " RETURNING id"
	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&reservation.ID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("fr_number", reservation.FRNumber).Error("Failed to upsert funds reservation")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save funds reservation")
	}
	return nil
}

// CreateAssessment records an assessment against a partner.
func (r *Repository) CreateAssessment(ctx context.Context, tenantID string, assessment *models.Assessment) error {
	ctx, span := tracing.StartSpan(ctx, "assurance.Repository.CreateAssessment")
	defer span.End()

	now := time.Now().UTC()
	if assessment.ID == "" {
		assessment.ID = uuid.New().String()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("assessments")
	ib.Cols("id", "tenant_id", "partner_id", "assessment_type", "completed_date", "active", "created_at", "updated_at")
	ib.Values(assessment.ID, tenantID, assessment.PartnerID, assessment.AssessmentType, assessment.CompletedDate, assessment.Active, now, now)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("partner_id", assessment.PartnerID).Error("Failed to create assessment")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create assessment")
	}
	return nil
}

// ListAssessments returns a partner's active assessments, newest completion
// first.
func (r *Repository) ListAssessments(ctx context.Context, tenantID, partnerID string) ([]models.Assessment, error) {
	ctx, span := tracing.StartSpan(ctx, "assurance.Repository.ListAssessments")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "partner_id", "assessment_type", "completed_date", "active", "created_at", "updated_at", "deleted_at")
	sb.From("assessments")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("partner_id", partnerID),
		sb.Equal("active", true),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("completed_date DESC NULLS LAST", "created_at DESC")

	query, args := sb.Build()
	var assessments []models.Assessment
	if err := r.db.SelectContext(ctx, &assessments, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list assessments")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list assessments")
	}
	return assessments, nil
}

// ListCompletedActivities returns the partner's completed HACT activities that
// ended in the given year.
func (r *Repository) ListCompletedActivities(ctx context.Context, tenantID, partnerID string, year int) ([]models.MonitoringActivity, error) {
	ctx, span := tracing.StartSpan(ctx, "assurance.Repository.ListCompletedActivities")
	defer span.End()

	yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	yearEnd := yearStart.AddDate(1, 0, 0)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "partner_id", "status", "is_hact", "is_spot_check", "end_date", "created_at", "updated_at", "deleted_at")
	sb.From("monitoring_activities")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("partner_id", partnerID),
		sb.Equal("status", models.MonitoringActivityStatusCompleted),
		sb.GreaterEqualThan("end_date", yearStart),
		sb.LessThan("end_date", yearEnd),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("end_date ASC", "id ASC")

	query, args := sb.Build()
	var activities []models.MonitoringActivity
	if err := r.db.SelectContext(ctx, &activities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list monitoring activities")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list monitoring activities")
	}
	return activities, nil
}

// CreateActivity records a monitoring activity against a partner.
func (r *Repository) CreateActivity(ctx context.Context, tenantID string, activity *models.MonitoringActivity) error {
	ctx, span := tracing.StartSpan(ctx, "assurance.Repository.CreateActivity")
	defer span.End()

	now := time.Now().UTC()
	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("monitoring_activities")
	ib.Cols("id", "tenant_id", "partner_id", "status", "is_hact", "is_spot_check", "end_date", "created_at", "updated_at")
	ib.Values(activity.ID, tenantID, activity.PartnerID, activity.Status, activity.IsHact, activity.IsSpotCheck, activity.EndDate, now, now)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("partner_id", activity.PartnerID).Error("Failed to create monitoring activity")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create monitoring activity")
	}
	return nil
}

// ListGroups returns the partner's activity groups with member ids attached.
func (r *Repository) ListGroups(ctx context.Context, tenantID, partnerID string) ([]models.MonitoringActivityGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "assurance.Repository.ListGroups")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "partner_id", "created_at", "deleted_at")
	sb.From("monitoring_activity_groups")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("partner_id", partnerID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()
	var groups []models.MonitoringActivityGroup
	if err := r.db.SelectContext(ctx, &groups, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list monitoring activity groups")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list activity groups")
	}
	if len(groups) == 0 {
		return groups, nil
	}

	groupIDs := make([]any, len(groups))
	groupIndex := make(map[string]int, len(groups))
	for i, group := range groups {
		groupIDs[i] = group.ID
		groupIndex[group.ID] = i
	}

	type memberRow struct {
		GroupID    string `db:"group_id"`
		ActivityID string `db:"activity_id"`
	}
	msb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	msb.Select("group_id", "activity_id")
	msb.From("monitoring_activity_group_members")
	msb.Where(msb.In("group_id", groupIDs...))

	query, args = msb.Build()
	var members []memberRow
	if err := r.db.SelectContext(ctx, &members, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list activity group members")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list activity groups")
	}
	for _, member := range members {
		i := groupIndex[member.GroupID]
		groups[i].Members = append(groups[i].Members, member.ActivityID)
	}
	return groups, nil
}
