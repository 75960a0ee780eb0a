package syncjournal

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

var attemptColumns = []string{
	"id",
	"tenant_id",
	"intervention_id",
	"attempt",
	"status",
	"error",
	"next_attempt_at",
	"created_at",
	"updated_at",
}

// Repository journals downstream delivery attempts
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new sync journal repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create journals a new attempt.
func (r *Repository) Create(ctx context.Context, tenantID string, attempt *models.SyncAttempt) error {
	ctx, span := tracing.StartSpan(ctx, "syncjournal.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("sync_attempts")
	ib.Cols("id", "tenant_id", "intervention_id", "attempt", "status", "error", "next_attempt_at", "created_at", "updated_at")
	ib.Values(attempt.ID, tenantID, attempt.InterventionID, attempt.Attempt, attempt.Status, attempt.Error, attempt.NextAttemptAt, now, now)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("intervention_id", attempt.InterventionID).Error("Failed to journal sync attempt")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to journal sync attempt")
	}
	return nil
}

// Update persists an attempt's outcome.
func (r *Repository) Update(ctx context.Context, tenantID string, attempt *models.SyncAttempt) error {
	ctx, span := tracing.StartSpan(ctx, "syncjournal.Repository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("sync_attempts")
	ub.Set(
		ub.Assign("attempt", attempt.Attempt),
		ub.Assign("status", attempt.Status),
		ub.Assign("error", attempt.Error),
		ub.Assign("next_attempt_at", attempt.NextAttemptAt),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", attempt.ID),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("attempt_id", attempt.ID).Error("Failed to update sync attempt")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update sync attempt")
	}
	return nil
}

// ListDue returns pending attempts whose next try has come due.
func (r *Repository) ListDue(ctx context.Context, limit int) ([]models.SyncAttempt, error) {
	ctx, span := tracing.StartSpan(ctx, "syncjournal.Repository.ListDue")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(attemptColumns...)
	sb.From("sync_attempts")
	sb.Where(
		sb.Equal("status", models.SyncStatusPending),
		sb.LessEqualThan("next_attempt_at", time.Now().UTC()),
	)
	sb.OrderBy("next_attempt_at ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var attempts []models.SyncAttempt
	if err := r.db.SelectContext(ctx, &attempts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list due sync attempts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list sync attempts")
	}
	return attempts, nil
}

// ListByIntervention returns the journal for one intervention, newest first.
func (r *Repository) ListByIntervention(ctx context.Context, tenantID, interventionID string) ([]models.SyncAttempt, error) {
	ctx, span := tracing.StartSpan(ctx, "syncjournal.Repository.ListByIntervention")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(attemptColumns...)
	sb.From("sync_attempts")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("intervention_id", interventionID),
	)
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var attempts []models.SyncAttempt
	if err := r.db.SelectContext(ctx, &attempts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list sync attempts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list sync attempts")
	}
	return attempts, nil
}
