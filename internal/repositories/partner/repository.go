package partner

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

var partnerColumns = []string{
	"id", "tenant_id", "vendor_number", "name", "short_name", "partner_type", "cso_type",
	"risk_rating", "type_of_assessment", "last_assessment_date", "core_values_assessment_date",
	"basis_for_risk_rating", "hidden", "blocked", "lead_section", "sea_risk_rating",
	"psea_assessment_date", "total_ct_cp", "total_ct_cy", "net_ct_cy", "reported_cy",
	"total_ct_ytd", "hact_values", "hact_min_requirements", "created_at", "updated_at", "deleted_at",
}

// Repository handles partner persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new partner repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves a partner by id within the tenant.
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.Partner, error) {
	ctx, span := tracing.StartSpan(ctx, "partner.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(partnerColumns...)
	sb.From("partners")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var partner models.Partner
	if err := r.db.GetContext(ctx, &partner, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "partner_id": id}).Error("Failed to get partner")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get partner")
	}
	return &partner, nil
}

// GetByIDForUpdate retrieves a partner and takes a row-lock for the enclosing
// transaction. Used by the HACT aggregator to serialize recomputation.
func (r *Repository) GetByIDForUpdate(ctx context.Context, tenantID, id string) (*models.Partner, error) {
	ctx, span := tracing.StartSpan(ctx, "partner.Repository.GetByIDForUpdate")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(partnerColumns...)
	sb.From("partners")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)
	sb.SQL("FOR UPDATE")

	query, args := sb.Build()
	var partner models.Partner
	if err := r.db.GetContext(ctx, &partner, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "partner_id": id}).Error("Failed to lock partner")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to lock partner")
	}
	return &partner, nil
}

// GetByVendorNumber retrieves a partner by its external vendor number.
func (r *Repository) GetByVendorNumber(ctx context.Context, tenantID, vendorNumber string) (*models.Partner, error) {
	ctx, span := tracing.StartSpan(ctx, "partner.Repository.GetByVendorNumber")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(partnerColumns...)
	sb.From("partners")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("vendor_number", vendorNumber),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var partner models.Partner
	if err := r.db.GetContext(ctx, &partner, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "vendor_number": vendorNumber}).Error("Failed to get partner by vendor number")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get partner")
	}
	return &partner, nil
}

// List returns partners matching the filters with total count.
func (r *Repository) List(ctx context.Context, tenantID string, filters models.PartnerListFilters) (*models.PartnerListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "partner.Repository.List")
	defer span.End()

	page := filters.Page
	if page < 1 {
		page = 1
	}
	pageSize := filters.PageSize
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	build := func(sb *sqlbuilder.SelectBuilder) {
		sb.From("partners")
		where := []string{
			sb.Equal("tenant_id", tenantID),
			sb.IsNull("deleted_at"),
		}
		if filters.PartnerType != "" {
			where = append(where, sb.Equal("partner_type", filters.PartnerType))
		}
		if filters.CSOType != "" {
			where = append(where, sb.Equal("cso_type", filters.CSOType))
		}
		if filters.Hidden != nil {
			where = append(where, sb.Equal("hidden", *filters.Hidden))
		}
		if filters.LeadSection != "" {
			where = append(where, sb.Equal("lead_section", filters.LeadSection))
		}
		if filters.SEARiskRating != "" {
			where = append(where, sb.Equal("sea_risk_rating", filters.SEARiskRating))
		}
		if filters.PSEAAssessmentDateBefore != nil {
			where = append(where, sb.LessThan("psea_assessment_date", *filters.PSEAAssessmentDateBefore))
		}
		if filters.PSEAAssessmentDateAfter != nil {
			where = append(where, sb.GreaterThan("psea_assessment_date", *filters.PSEAAssessmentDateAfter))
		}
		if filters.Search != "" {
			pattern := "%" + filters.Search + "%"
			where = append(where, sb.Or(sb.ILike("name", pattern), sb.ILike("short_name", pattern)))
		}
		if len(filters.IDs) > 0 {
			ids := make([]any, len(filters.IDs))
			for i, id := range filters.IDs {
				ids[i] = id
			}
			where = append(where, sb.In("id", ids...))
		}
		sb.Where(where...)
	}

	countSB := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSB.Select("COUNT(*)")
	build(countSB)
	countQuery, countArgs := countSB.Build()

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count partners")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list partners")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(partnerColumns...)
	build(sb)
	sb.OrderBy("name ASC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var partners []models.Partner
	if err := r.db.SelectContext(ctx, &partners, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list partners")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list partners")
	}

	return &models.PartnerListResponse{
		Items:      partners,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Upsert creates or updates a partner keyed on (tenant_id, vendor_number).
func (r *Repository) Upsert(ctx context.Context, tenantID string, req models.CreatePartnerRequest) (*models.Partner, error) {
	ctx, span := tracing.StartSpan(ctx, "partner.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()
	id := uuid.New().String()

	ib := database.NewInsertBuilder()
	ib.InsertInto("partners")
	ib.Cols("id", "tenant_id", "vendor_number", "name", "short_name", "partner_type", "cso_type", "risk_rating", "created_at", "updated_at")
	ib.Values(id, tenantID, req.VendorNumber, req.Name, req.ShortName, req.PartnerType, req.CSOType, req.RiskRating, now, now)
	ub := ib.OnConflict("tenant_id", "vendor_number")
	ub.Set(
		ub.Assign("name", req.Name),
		ub.Assign("short_name", req.ShortName),
		ub.Assign("partner_type", req.PartnerType),
		ub.Assign("cso_type", req.CSOType),
		ub.Assign("risk_rating", req.RiskRating),
		ub.Assign("updated_at", now),
	)

	query, args := ib.Build()
	query += " RETURNING id"

	var insertedID string
	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&insertedID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "vendor_number": req.VendorNumber}).Error("Failed to upsert partner")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert partner")
	}

	return r.GetByID(ctx, tenantID, insertedID)
}

// Update applies a partial update to a partner's local fields.
func (r *Repository) Update(ctx context.Context, tenantID, id string, req models.UpdatePartnerRequest) error {
	ctx, span := tracing.StartSpan(ctx, "partner.Repository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("partners")
	assignments := []string{ub.Assign("updated_at", time.Now().UTC())}
	if req.ShortName != nil {
		assignments = append(assignments, ub.Assign("short_name", *req.ShortName))
	}
	if req.RiskRating != nil {
		assignments = append(assignments, ub.Assign("risk_rating", *req.RiskRating))
	}
	if req.Hidden != nil {
		assignments = append(assignments, ub.Assign("hidden", *req.Hidden))
	}
	if req.LeadSection != nil {
		assignments = append(assignments, ub.Assign("lead_section", *req.LeadSection))
	}
	if req.BasisForRiskRating != nil {
		assignments = append(assignments, ub.Assign("basis_for_risk_rating", *req.BasisForRiskRating))
	}
	ub.Set(assignments...)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", id),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "partner_id": id}).Error("Failed to update partner")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update partner")
	}
	return nil
}

// SetHactValues writes the derived assurance record and its minimums.
func (r *Repository) SetHactValues(ctx context.Context, tenantID, id string, values models.HactValues, minimums models.MinRequirements) error {
	ctx, span := tracing.StartSpan(ctx, "partner.Repository.SetHactValues")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("partners")
	ub.Set(
		ub.Assign("hact_values", database.NewJSONB(values)),
		ub.Assign("hact_min_requirements", database.NewJSONB(minimums)),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", id),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "partner_id": id}).Error("Failed to set partner hact values")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set hact values")
	}
	return nil
}

// SoftDelete marks a partner deleted. Callers enforce the signed-agreement
// and cash-transfer refusal rules before calling.
func (r *Repository) SoftDelete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "partner.Repository.SoftDelete")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("partners")
	ub.Set(ub.Assign("deleted_at", time.Now().UTC()))
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", id),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "partner_id": id}).Error("Failed to delete partner")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete partner")
	}
	return nil
}

// ListIDs returns all live partner ids for the tenant. Used by the nightly
// HACT sweep.
func (r *Repository) ListIDs(ctx context.Context, tenantID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "partner.Repository.ListIDs")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id")
	sb.From("partners")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list partner ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list partner ids")
	}
	return ids, nil
}

// ListTenants returns the distinct tenants with live partners. The sweeper
// iterates these when scheduling per-tenant jobs.
func (r *Repository) ListTenants(ctx context.Context) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "partner.Repository.ListTenants")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("DISTINCT tenant_id")
	sb.From("partners")
	sb.Where(sb.IsNull("deleted_at"))
	sb.OrderBy("tenant_id ASC")

	query, args := sb.Build()
	var tenants []string
	if err := r.db.SelectContext(ctx, &tenants, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list tenants")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list tenants")
	}
	return tenants, nil
}

// ReplaceGroups replaces the partner's monitoring activity groups with the
// provided sets of activity ids.
func (r *Repository) ReplaceGroups(ctx context.Context, tenantID, partnerID string, groups [][]string) error {
	ctx, span := tracing.StartSpan(ctx, "partner.Repository.ReplaceGroups")
	defer span.End()

	ctxTx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to open transaction")
	}
	defer tx.Rollback(ctxTx)

	delMembers := database.NewDeleteBuilder()
	delMembers.DeleteFrom("monitoring_activity_group_members")
	delMembers.Where(
		delMembers.Equal("tenant_id", tenantID),
		delMembers.In("group_id", sqlbuilder.Raw("(SELECT id FROM monitoring_activity_groups WHERE tenant_id = "+delMembers.Var(tenantID)+" AND partner_id = "+delMembers.Var(partnerID)+")")),
	)
	query, args := delMembers.Build()
	if _, err := r.db.ExecContext(ctxTx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to clear group members")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace groups")
	}

	delGroups := database.NewDeleteBuilder()
	delGroups.DeleteFrom("monitoring_activity_groups")
	delGroups.Where(
		delGroups.Equal("tenant_id", tenantID),
		delGroups.Equal("partner_id", partnerID),
	)
	query, args = delGroups.Build()
	if _, err := r.db.ExecContext(ctxTx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to clear groups")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace groups")
	}

	for _, members := range groups {
		if len(members) == 0 {
			continue
		}
		groupID := uuid.New().String()

		ib := database.NewInsertBuilder()
		ib.InsertInto("monitoring_activity_groups")
		ib.Cols("id", "tenant_id", "partner_id")
		ib.Values(groupID, tenantID, partnerID)
		query, args = ib.Build()
		if _, err := r.db.ExecContext(ctxTx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to insert group")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace groups")
		}

		mib := database.NewInsertBuilder()
		mib.InsertInto("monitoring_activity_group_members")
		mib.Cols("group_id", "activity_id", "tenant_id")
		for _, activityID := range members {
			mib.Values(groupID, activityID, tenantID)
		}
		query, args = mib.Build()
		if _, err := r.db.ExecContext(ctxTx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to insert group members")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace groups")
		}
	}

	if err := tx.Commit(ctxTx); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to commit group replacement")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace groups")
	}
	return nil
}
