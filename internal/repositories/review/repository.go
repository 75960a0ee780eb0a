package review

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

var reviewColumns = []string{
	"id",
	"tenant_id",
	"intervention_id",
	"review_type",
	"overall_approval",
	"submitted_by_id",
	"review_date",
	"created_at",
	"updated_at",
	"deleted_at",
}

// Repository handles intervention review persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new review repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetLatest fetches the most recent review for an intervention. Returns nil
// when none exists.
func (r *Repository) GetLatest(ctx context.Context, tenantID, interventionID string) (*models.InterventionReview, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Repository.GetLatest")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(reviewColumns...)
	sb.From("intervention_reviews")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("intervention_id", interventionID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("created_at DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var review models.InterventionReview
	if err := r.db.GetContext(ctx, &review, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get review")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get review")
	}
	return &review, nil
}

// ListByIntervention returns all reviews, newest first.
func (r *Repository) ListByIntervention(ctx context.Context, tenantID, interventionID string) ([]models.InterventionReview, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Repository.ListByIntervention")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(reviewColumns...)
	sb.From("intervention_reviews")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("intervention_id", interventionID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var reviews []models.InterventionReview
	if err := r.db.SelectContext(ctx, &reviews, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list reviews")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list reviews")
	}
	return reviews, nil
}

// Create records a review outcome.
func (r *Repository) Create(ctx context.Context, tenantID string, review *models.InterventionReview) error {
	ctx, span := tracing.StartSpan(ctx, "review.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	if review.ID == "" {
		review.ID = uuid.New().String()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("intervention_reviews")
	ib.Cols("id", "tenant_id", "intervention_id", "review_type", "overall_approval", "submitted_by_id", "review_date", "created_at", "updated_at")
	ib.Values(review.ID, tenantID, review.InterventionID, review.ReviewType, review.OverallApproval, review.SubmittedByID, review.ReviewDate, now, now)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("intervention_id", review.InterventionID).Error("Failed to create review")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create review")
	}
	return nil
}

// MoveToIntervention reparents reviews from a shadow copy onto the target.
// Runs inside the merge transaction.
func (r *Repository) MoveToIntervention(ctx context.Context, tenantID, fromID, toID string) error {
	ctx, span := tracing.StartSpan(ctx, "review.Repository.MoveToIntervention")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("intervention_reviews")
	ub.Set(
		ub.Assign("intervention_id", toID),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("intervention_id", fromID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to move reviews")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to move reviews")
	}
	return nil
}
