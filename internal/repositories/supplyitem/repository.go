package supplyitem

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

var supplyItemColumns = []string{
	"id",
	"tenant_id",
	"intervention_id",
	"title",
	"provided_by",
	"unit_number",
	"unit_price",
	"total_price",
	"other_mentions",
	"unicef_product_number",
	"created_at",
	"updated_at",
	"deleted_at",
}

// Repository handles supply item persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new supply item repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetByID fetches one supply item. Returns nil when not found.
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.SupplyItem, error) {
	ctx, span := tracing.StartSpan(ctx, "supplyitem.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(supplyItemColumns...)
	sb.From("supply_items")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var item models.SupplyItem
	if err := r.db.GetContext(ctx, &item, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("supply_item_id", id).Error("Failed to get supply item")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get supply item")
	}
	return &item, nil
}

// ListByIntervention returns an intervention's supply items.
func (r *Repository) ListByIntervention(ctx context.Context, tenantID, interventionID string) ([]models.SupplyItem, error) {
	ctx, span := tracing.StartSpan(ctx, "supplyitem.Repository.ListByIntervention")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(supplyItemColumns...)
	sb.From("supply_items")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("intervention_id", interventionID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()
	var items []models.SupplyItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list supply items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list supply items")
	}
	return items, nil
}

// Create inserts a supply item. TotalPrice is derived, never taken from the
// caller.
func (r *Repository) Create(ctx context.Context, tenantID string, item *models.SupplyItem) error {
	ctx, span := tracing.StartSpan(ctx, "supplyitem.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.TotalPrice = item.UnitNumber * item.UnitPrice

	ib := database.NewInsertBuilder()
	ib.InsertInto("supply_items")
	ib.Cols("id", "tenant_id", "intervention_id", "title", "provided_by", "unit_number", "unit_price", "total_price", "other_mentions", "unicef_product_number", "created_at", "updated_at")
	ib.Values(item.ID, tenantID, item.InterventionID, item.Title, item.ProvidedBy, item.UnitNumber, item.UnitPrice, item.TotalPrice, item.OtherMentions, item.UnicefProductNumber, now, now)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create supply item")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create supply item")
	}
	return nil
}

// Update persists a supply item's mutable fields and recomputes TotalPrice.
func (r *Repository) Update(ctx context.Context, tenantID string, item *models.SupplyItem) error {
	ctx, span := tracing.StartSpan(ctx, "supplyitem.Repository.Update")
	defer span.End()

	item.TotalPrice = item.UnitNumber * item.UnitPrice

	ub := database.NewUpdateBuilder()
	ub.Update("supply_items")
	ub.Set(
		ub.Assign("title", item.Title),
		ub.Assign("provided_by", item.ProvidedBy),
		ub.Assign("unit_number", item.UnitNumber),
		ub.Assign("unit_price", item.UnitPrice),
		ub.Assign("total_price", item.TotalPrice),
		ub.Assign("other_mentions", item.OtherMentions),
		ub.Assign("unicef_product_number", item.UnicefProductNumber),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", item.ID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("supply_item_id", item.ID).Error("Failed to update supply item")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update supply item")
	}
	return nil
}

// SoftDelete removes a supply item.
func (r *Repository) SoftDelete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "supplyitem.Repository.SoftDelete")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("supply_items")
	ub.Set(ub.Assign("deleted_at", time.Now().UTC()))
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", id),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete supply item")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete supply item")
	}
	return nil
}
