package results

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

// Repository handles the result link tree: result links, lower results,
// activities, items, and activity time frame membership.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new results repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetTree loads the full result tree for an intervention, children attached,
// ordered by (created_at, id) at every level so renumbering is deterministic.
func (r *Repository) GetTree(ctx context.Context, tenantID, interventionID string) ([]models.ResultLink, error) {
	ctx, span := tracing.StartSpan(ctx, "results.Repository.GetTree")
	defer span.End()

	links, err := r.ListResultLinks(ctx, tenantID, interventionID)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return links, nil
	}

	linkIDs := make([]any, len(links))
	linkIndex := make(map[string]int, len(links))
	for i, link := range links {
		linkIDs[i] = link.ID
		linkIndex[link.ID] = i
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "result_link_id", "name", "code", "created_at", "updated_at", "deleted_at")
	sb.From("lower_results")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.In("result_link_id", linkIDs...),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()
	var lowerResults []models.LowerResult
	if err := r.db.SelectContext(ctx, &lowerResults, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list lower results")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load result tree")
	}

	if len(lowerResults) > 0 {
		lowerIDs := make([]any, len(lowerResults))
		lowerIndex := make(map[string]int, len(lowerResults))
		for i, lr := range lowerResults {
			lowerIDs[i] = lr.ID
			lowerIndex[lr.ID] = i
		}

		asb := sqlbuilder.PostgreSQL.NewSelectBuilder()
		asb.Select("id", "tenant_id", "lower_result_id", "name", "code", "context_details", "unicef_cash", "cso_cash", "is_active", "created_at", "updated_at", "deleted_at")
		asb.From("activities")
		asb.Where(
			asb.Equal("tenant_id", tenantID),
			asb.In("lower_result_id", lowerIDs...),
			asb.IsNull("deleted_at"),
		)
		asb.OrderBy("created_at ASC", "id ASC")

		query, args = asb.Build()
		var activities []models.Activity
		if err := r.db.SelectContext(ctx, &activities, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to list activities")
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load result tree")
		}

		if len(activities) > 0 {
			activityIDs := make([]any, len(activities))
			activityIndex := make(map[string]int, len(activities))
			for i, a := range activities {
				activityIDs[i] = a.ID
				activityIndex[a.ID] = i
			}

			isb := sqlbuilder.PostgreSQL.NewSelectBuilder()
			isb.Select("id", "tenant_id", "activity_id", "name", "code", "unit", "no_units", "unit_price", "unicef_cash", "cso_cash", "created_at", "updated_at", "deleted_at")
			isb.From("activity_items")
			isb.Where(
				isb.Equal("tenant_id", tenantID),
				isb.In("activity_id", activityIDs...),
				isb.IsNull("deleted_at"),
			)
			isb.OrderBy("created_at ASC", "id ASC")

			query, args = isb.Build()
			var items []models.ActivityItem
			if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
				r.logger.WithContext(ctx).WithError(err).Error("Failed to list activity items")
				return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load result tree")
			}
			for _, item := range items {
				i := activityIndex[item.ActivityID]
				activities[i].Items = append(activities[i].Items, item)
			}

			type frameRow struct {
				ActivityID  string `db:"activity_id"`
				TimeFrameID string `db:"time_frame_id"`
			}
			fsb := sqlbuilder.PostgreSQL.NewSelectBuilder()
			fsb.Select("activity_id", "time_frame_id")
			fsb.From("activity_time_frames")
			fsb.Where(
				fsb.Equal("tenant_id", tenantID),
				fsb.In("activity_id", activityIDs...),
			)

			query, args = fsb.Build()
			var frames []frameRow
			if err := r.db.SelectContext(ctx, &frames, query, args...); err != nil {
				r.logger.WithContext(ctx).WithError(err).Error("Failed to list activity time frames")
				return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load result tree")
			}
			for _, frame := range frames {
				i := activityIndex[frame.ActivityID]
				activities[i].TimeFrames = append(activities[i].TimeFrames, frame.TimeFrameID)
			}
		}

		for _, activity := range activities {
			i := lowerIndex[activity.LowerResultID]
			lowerResults[i].Activities = append(lowerResults[i].Activities, activity)
		}
	}

	for _, lr := range lowerResults {
		i := linkIndex[lr.ResultLinkID]
		links[i].LowerResults = append(links[i].LowerResults, lr)
	}

	return links, nil
}

// ListResultLinks returns an intervention's result links ordered for
// deterministic renumbering.
func (r *Repository) ListResultLinks(ctx context.Context, tenantID, interventionID string) ([]models.ResultLink, error) {
	ctx, span := tracing.StartSpan(ctx, "results.Repository.ListResultLinks")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "intervention_id", "cp_output_id", "code", "created_at", "updated_at", "deleted_at")
	sb.From("result_links")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("intervention_id", interventionID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()
	var links []models.ResultLink
	if err := r.db.SelectContext(ctx, &links, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list result links")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list result links")
	}
	return links, nil
}

// CreateResultLink inserts a result link.
func (r *Repository) CreateResultLink(ctx context.Context, tenantID string, link *models.ResultLink) error {
	ctx, span := tracing.StartSpan(ctx, "results.Repository.CreateResultLink")
	defer span.End()

	now := time.Now().UTC()
	if link.ID == "" {
		link.ID = uuid.New().String()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("result_links")
	ib.Cols("id", "tenant_id", "intervention_id", "cp_output_id", "code", "created_at", "updated_at")
	ib.Values(link.ID, tenantID, link.InterventionID, link.CPOutputID, link.Code, now, now)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create result link")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create result link")
	}
	return nil
}

// CreateLowerResult inserts a lower result.
func (r *Repository) CreateLowerResult(ctx context.Context, tenantID string, lr *models.LowerResult) error {
	ctx, span := tracing.StartSpan(ctx, "results.Repository.CreateLowerResult")
	defer span.End()

	now := time.Now().UTC()
	if lr.ID == "" {
		lr.ID = uuid.New().String()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("lower_results")
	ib.Cols("id", "tenant_id", "result_link_id", "name", "code", "created_at", "updated_at")
	ib.Values(lr.ID, tenantID, lr.ResultLinkID, lr.Name, lr.Code, now, now)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create lower result")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create lower result")
	}
	return nil
}

// CreateActivity inserts an activity with its time frame membership.
func (r *Repository) CreateActivity(ctx context.Context, tenantID string, activity *models.Activity) error {
	ctx, span := tracing.StartSpan(ctx, "results.Repository.CreateActivity")
	defer span.End()

	now := time.Now().UTC()
	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("activities")
	ib.Cols("id", "tenant_id", "lower_result_id", "name", "code", "context_details", "unicef_cash", "cso_cash", "is_active", "created_at", "updated_at")
	ib.Values(activity.ID, tenantID, activity.LowerResultID, activity.Name, activity.Code, activity.ContextDetails, activity.UnicefCash, activity.CSOCash, activity.IsActive, now, now)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create activity")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create activity")
	}

	return r.SetActivityTimeFrames(ctx, tenantID, activity.ID, activity.TimeFrames)
}

// CreateActivityItem inserts an activity item.
func (r *Repository) CreateActivityItem(ctx context.Context, tenantID string, item *models.ActivityItem) error {
	ctx, span := tracing.StartSpan(ctx, "results.Repository.CreateActivityItem")
	defer span.End()

	now := time.Now().UTC()
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("activity_items")
	ib.Cols("id", "tenant_id", "activity_id", "name", "code", "unit", "no_units", "unit_price", "unicef_cash", "cso_cash", "created_at", "updated_at")
	ib.Values(item.ID, tenantID, item.ActivityID, item.Name, item.Code, item.Unit, item.NoUnits, item.UnitPrice, item.UnicefCash, item.CSOCash, now, now)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create activity item")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create activity item")
	}
	return nil
}

// UpdateResultLink persists a result link's mutable fields.
func (r *Repository) UpdateResultLink(ctx context.Context, tenantID string, link *models.ResultLink) error {
	ctx, span := tracing.StartSpan(ctx, "results.Repository.UpdateResultLink")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("result_links")
	ub.Set(
		ub.Assign("cp_output_id", link.CPOutputID),
		ub.Assign("code", link.Code),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", link.ID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update result link")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update result link")
	}
	return nil
}

// UpdateLowerResult persists a lower result's mutable fields.
func (r *Repository) UpdateLowerResult(ctx context.Context, tenantID string, lr *models.LowerResult) error {
	ctx, span := tracing.StartSpan(ctx, "results.Repository.UpdateLowerResult")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("lower_results")
	ub.Set(
		ub.Assign("name", lr.Name),
		ub.Assign("code", lr.Code),
		ub.Assign("result_link_id", lr.ResultLinkID),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", lr.ID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update lower result")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update lower result")
	}
	return nil
}

// UpdateActivity persists an activity's mutable fields and time frames.
func (r *Repository) UpdateActivity(ctx context.Context, tenantID string, activity *models.Activity) error {
	ctx, span := tracing.StartSpan(ctx, "results.Repository.UpdateActivity")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("activities")
	ub.Set(
		ub.Assign("name", activity.Name),
		ub.Assign("code", activity.Code),
		ub.Assign("lower_result_id", activity.LowerResultID),
		ub.Assign("context_details", activity.ContextDetails),
		ub.Assign("unicef_cash", activity.UnicefCash),
		ub.Assign("cso_cash", activity.CSOCash),
		ub.Assign("is_active", activity.IsActive),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", activity.ID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update activity")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update activity")
	}

	return r.SetActivityTimeFrames(ctx, tenantID, activity.ID, activity.TimeFrames)
}

// UpdateActivityItem persists an activity item's mutable fields.
func (r *Repository) UpdateActivityItem(ctx context.Context, tenantID string, item *models.ActivityItem) error {
	ctx, span := tracing.StartSpan(ctx, "results.Repository.UpdateActivityItem")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("activity_items")
	ub.Set(
		ub.Assign("name", item.Name),
		ub.Assign("code", item.Code),
		ub.Assign("activity_id", item.ActivityID),
		ub.Assign("unit", item.Unit),
		ub.Assign("no_units", item.NoUnits),
		ub.Assign("unit_price", item.UnitPrice),
		ub.Assign("unicef_cash", item.UnicefCash),
		ub.Assign("cso_cash", item.CSOCash),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", item.ID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update activity item")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update activity item")
	}
	return nil
}

// SetActivityTimeFrames replaces an activity's quarter membership.
func (r *Repository) SetActivityTimeFrames(ctx context.Context, tenantID, activityID string, timeFrameIDs []string) error {
	del := database.NewDeleteBuilder()
	del.DeleteFrom("activity_time_frames")
	del.Where(
		del.Equal("tenant_id", tenantID),
		del.Equal("activity_id", activityID),
	)
	query, args := del.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to clear activity time frames")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set activity time frames")
	}

	if len(timeFrameIDs) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("activity_time_frames")
	ib.Cols("activity_id", "time_frame_id", "tenant_id")
	for _, frameID := range timeFrameIDs {
		ib.Values(activityID, frameID, tenantID)
	}
	query, args = ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert activity time frames")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set activity time frames")
	}
	return nil
}

// SoftDelete removes one row of the given kind from the tree.
func (r *Repository) SoftDelete(ctx context.Context, tenantID, table, id string) error {
	ctx, span := tracing.StartSpan(ctx, "results.Repository.SoftDelete")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(ub.Assign("deleted_at", time.Now().UTC()))
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", id),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("table", table).Error("Failed to soft delete row")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete row")
	}
	return nil
}

// CountHighFrequencyIndicators returns the number of active high-frequency
// indicators under the intervention. Backs the HR reporting guard.
func (r *Repository) CountHighFrequencyIndicators(ctx context.Context, tenantID, interventionID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "results.Repository.CountHighFrequencyIndicators")
	defer span.End()

	query := `
		SELECT COUNT(*)
		FROM applied_indicators ai
		JOIN lower_results lr ON lr.id = ai.lower_result_id
		JOIN result_links rl ON rl.id = lr.result_link_id
		WHERE ai.tenant_id = $1
		  AND rl.intervention_id = $2
		  AND ai.is_high_frequency
		  AND ai.is_active
		  AND ai.deleted_at IS NULL
		  AND lr.deleted_at IS NULL
		  AND rl.deleted_at IS NULL
	`

	var count int
	if err := r.db.GetContext(ctx, &count, query, tenantID, interventionID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count high frequency indicators")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count indicators")
	}
	return count, nil
}
