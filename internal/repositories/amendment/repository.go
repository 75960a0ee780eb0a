package amendment

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

var amendmentColumns = []string{
	"id",
	"tenant_id",
	"intervention_id",
	"kind",
	"types",
	"other_description",
	"number",
	"is_active",
	"amended_intervention_id",
	"related_objects_map",
	"signed_date",
	"signed_amendment_id",
	"signed_by_unicef_date",
	"signed_by_partner_date",
	"unicef_signatory_id",
	"partner_signatory_id",
	"created_at",
	"updated_at",
	"deleted_at",
}

// Repository handles intervention amendment persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new amendment repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetByID fetches one amendment. Returns nil when not found.
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.InterventionAmendment, error) {
	ctx, span := tracing.StartSpan(ctx, "amendment.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(amendmentColumns...)
	sb.From("intervention_amendments")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var amendment models.InterventionAmendment
	if err := r.db.GetContext(ctx, &amendment, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("amendment_id", id).Error("Failed to get amendment")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get amendment")
	}
	return &amendment, nil
}

// GetByShadowID resolves the active amendment owning a shadow intervention.
// Returns nil when the intervention is not a shadow copy.
func (r *Repository) GetByShadowID(ctx context.Context, tenantID, shadowInterventionID string) (*models.InterventionAmendment, error) {
	ctx, span := tracing.StartSpan(ctx, "amendment.Repository.GetByShadowID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(amendmentColumns...)
	sb.From("intervention_amendments")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("amended_intervention_id", shadowInterventionID),
		sb.Equal("is_active", true),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var amendment models.InterventionAmendment
	if err := r.db.GetContext(ctx, &amendment, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to resolve amendment by shadow")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get amendment")
	}
	return &amendment, nil
}

// ListByIntervention returns all amendments for an intervention, active first,
// then newest first.
func (r *Repository) ListByIntervention(ctx context.Context, tenantID, interventionID string) ([]models.InterventionAmendment, error) {
	ctx, span := tracing.StartSpan(ctx, "amendment.Repository.ListByIntervention")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(amendmentColumns...)
	sb.From("intervention_amendments")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("intervention_id", interventionID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("is_active DESC", "created_at DESC")

	query, args := sb.Build()
	var amendments []models.InterventionAmendment
	if err := r.db.SelectContext(ctx, &amendments, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list amendments")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list amendments")
	}
	return amendments, nil
}

// ListActiveByIntervention returns the open amendments, oldest first.
func (r *Repository) ListActiveByIntervention(ctx context.Context, tenantID, interventionID string) ([]models.InterventionAmendment, error) {
	ctx, span := tracing.StartSpan(ctx, "amendment.Repository.ListActiveByIntervention")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(amendmentColumns...)
	sb.From("intervention_amendments")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("intervention_id", interventionID),
		sb.Equal("is_active", true),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()
	var amendments []models.InterventionAmendment
	if err := r.db.SelectContext(ctx, &amendments, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list active amendments")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list amendments")
	}
	return amendments, nil
}

// CountSigned returns how many amendments of the given kind have merged.
// The next display number is this count plus one.
func (r *Repository) CountSigned(ctx context.Context, tenantID, interventionID, kind string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "amendment.Repository.CountSigned")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("intervention_amendments")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("intervention_id", interventionID),
		sb.Equal("kind", kind),
		sb.Equal("is_active", false),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count signed amendments")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count amendments")
	}
	return count, nil
}

// Create inserts an amendment row.
func (r *Repository) Create(ctx context.Context, tenantID string, amendment *models.InterventionAmendment) error {
	ctx, span := tracing.StartSpan(ctx, "amendment.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	if amendment.ID == "" {
		amendment.ID = uuid.New().String()
	}
	amendment.TenantID = tenantID
	amendment.CreatedAt = now
	amendment.UpdatedAt = now

	ib := database.NewInsertBuilder()
	ib.InsertInto("intervention_amendments")
	ib.Cols(
		"id", "tenant_id", "intervention_id", "kind", "types", "other_description",
		"number", "is_active", "amended_intervention_id", "related_objects_map",
		"signed_date", "signed_amendment_id", "signed_by_unicef_date", "signed_by_partner_date",
		"unicef_signatory_id", "partner_signatory_id", "created_at", "updated_at",
	)
	ib.Values(
		amendment.ID, tenantID, amendment.InterventionID, amendment.Kind, amendment.Types, amendment.OtherDescription,
		amendment.Number, amendment.IsActive, amendment.AmendedInterventionID, amendment.RelatedObjects,
		amendment.SignedDate, amendment.SignedAmendmentID, amendment.SignedByUnicefDate, amendment.SignedByPartnerDate,
		amendment.UnicefSignatoryID, amendment.PartnerSignatoryID, now, now,
	)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("intervention_id", amendment.InterventionID).Error("Failed to create amendment")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create amendment")
	}
	return nil
}

// Update persists an amendment's mutable fields.
func (r *Repository) Update(ctx context.Context, tenantID string, amendment *models.InterventionAmendment) error {
	ctx, span := tracing.StartSpan(ctx, "amendment.Repository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("intervention_amendments")
	ub.Set(
		ub.Assign("types", amendment.Types),
		ub.Assign("other_description", amendment.OtherDescription),
		ub.Assign("number", amendment.Number),
		ub.Assign("is_active", amendment.IsActive),
		ub.Assign("related_objects_map", amendment.RelatedObjects),
		ub.Assign("signed_date", amendment.SignedDate),
		ub.Assign("signed_amendment_id", amendment.SignedAmendmentID),
		ub.Assign("signed_by_unicef_date", amendment.SignedByUnicefDate),
		ub.Assign("signed_by_partner_date", amendment.SignedByPartnerDate),
		ub.Assign("unicef_signatory_id", amendment.UnicefSignatoryID),
		ub.Assign("partner_signatory_id", amendment.PartnerSignatoryID),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", amendment.ID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("amendment_id", amendment.ID).Error("Failed to update amendment")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update amendment")
	}
	return nil
}

// SoftDelete marks the amendment deleted. Used on cancellation, together with
// the shadow intervention's own delete.
func (r *Repository) SoftDelete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "amendment.Repository.SoftDelete")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("intervention_amendments")
	ub.Set(
		ub.Assign("deleted_at", time.Now().UTC()),
		ub.Assign("is_active", false),
	)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", id),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("amendment_id", id).Error("Failed to delete amendment")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete amendment")
	}
	return nil
}
