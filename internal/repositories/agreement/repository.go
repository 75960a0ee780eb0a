package agreement

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

var agreementColumns = []string{
	"id", "tenant_id", "partner_id", "agreement_type", "country_programme_id",
	"reference_number", "reference_number_year", "status", "start", "\"end\"",
	"signed_by_unicef_date", "signed_by_partner_date", "signed_by_id", "partner_manager_id",
	"attachment_id", "termination_doc_id", "special_conditions_pca",
	"created_at", "updated_at", "deleted_at",
}

// Repository handles agreement persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new agreement repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves an agreement with its officers and amendments.
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.Agreement, error) {
	ctx, span := tracing.StartSpan(ctx, "agreement.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(agreementColumns...)
	sb.From("agreements")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var agreement models.Agreement
	if err := r.db.GetContext(ctx, &agreement, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "agreement_id": id}).Error("Failed to get agreement")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get agreement")
	}

	officers, err := r.getAuthorizedOfficers(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	agreement.AuthorizedOfficers = officers

	amendments, err := r.ListAmendments(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	agreement.Amendments = amendments

	return &agreement, nil
}

// GetByIDForUpdate retrieves an agreement and takes a row-lock for the
// enclosing transaction.
func (r *Repository) GetByIDForUpdate(ctx context.Context, tenantID, id string) (*models.Agreement, error) {
	ctx, span := tracing.StartSpan(ctx, "agreement.Repository.GetByIDForUpdate")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(agreementColumns...)
	sb.From("agreements")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)
	sb.SQL("FOR UPDATE")

	query, args := sb.Build()
	var agreement models.Agreement
	if err := r.db.GetContext(ctx, &agreement, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "agreement_id": id}).Error("Failed to lock agreement")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to lock agreement")
	}

	officers, err := r.getAuthorizedOfficers(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	agreement.AuthorizedOfficers = officers

	return &agreement, nil
}

func (r *Repository) getAuthorizedOfficers(ctx context.Context, tenantID, agreementID string) ([]string, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("officer_id")
	sb.From("agreement_authorized_officers")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("agreement_id", agreementID),
	)

	query, args := sb.Build()
	var officers []string
	if err := r.db.SelectContext(ctx, &officers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get authorized officers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get authorized officers")
	}
	return officers, nil
}

// List returns agreements matching the filters with total count.
func (r *Repository) List(ctx context.Context, tenantID string, filters models.AgreementListFilters) (*models.AgreementListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "agreement.Repository.List")
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
		sb.From("agreements a")
		sb.JoinWithOption(sqlbuilder.LeftJoin, "partners p", "p.id = a.partner_id")
		where := []string{
			sb.Equal("a.tenant_id", tenantID),
			sb.IsNull("a.deleted_at"),
		}
		if filters.AgreementType != "" {
			where = append(where, sb.Equal("a.agreement_type", filters.AgreementType))
		}
		if filters.Status != "" {
			where = append(where, sb.Equal("a.status", filters.Status))
		}
		if filters.PartnerName != "" {
			where = append(where, sb.ILike("p.name", "%"+filters.PartnerName+"%"))
		}
		if filters.Start != nil {
			where = append(where, sb.GreaterEqualThan("a.start", *filters.Start))
		}
		if filters.End != nil {
			where = append(where, sb.LessEqualThan("a.\"end\"", *filters.End))
		}
		if filters.SpecialConditionsPCA != nil {
			where = append(where, sb.Equal("a.special_conditions_pca", *filters.SpecialConditionsPCA))
		}
		if filters.Search != "" {
			pattern := "%" + filters.Search + "%"
			where = append(where, sb.Or(sb.ILike("a.reference_number", pattern), sb.ILike("p.name", pattern)))
		}
		sb.Where(where...)
	}

	countSB := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSB.Select("COUNT(*)")
	build(countSB)
	countQuery, countArgs := countSB.Build()

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count agreements")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list agreements")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cols := make([]string, len(agreementColumns))
	for i, c := range agreementColumns {
		cols[i] = "a." + c
	}
	sb.Select(cols...)
	build(sb)
	sb.OrderBy("a.created_at DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var agreements []models.Agreement
	if err := r.db.SelectContext(ctx, &agreements, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list agreements")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list agreements")
	}

	return &models.AgreementListResponse{
		Items:      agreements,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Create inserts a draft agreement with its authorized officers.
func (r *Repository) Create(ctx context.Context, tenantID string, agreement *models.Agreement) error {
	ctx, span := tracing.StartSpan(ctx, "agreement.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	if agreement.ID == "" {
		agreement.ID = uuid.New().String()
	}
	agreement.TenantID = tenantID
	agreement.CreatedAt = now
	agreement.UpdatedAt = now

	ib := database.NewInsertBuilder()
	ib.InsertInto("agreements")
	ib.Cols("id", "tenant_id", "partner_id", "agreement_type", "country_programme_id",
		"reference_number", "reference_number_year", "status", "start", "\"end\"",
		"signed_by_unicef_date", "signed_by_partner_date", "signed_by_id", "partner_manager_id",
		"attachment_id", "termination_doc_id", "special_conditions_pca", "created_at", "updated_at")
	ib.Values(agreement.ID, agreement.TenantID, agreement.PartnerID, agreement.AgreementType,
		agreement.CountryProgrammeID, agreement.ReferenceNumber, agreement.ReferenceNumberYear,
		agreement.Status, agreement.Start, agreement.End, agreement.SignedByUnicefDate,
		agreement.SignedByPartnerDate, agreement.SignedByID, agreement.PartnerManagerID,
		agreement.AttachmentID, agreement.TerminationDocID, agreement.SpecialConditionsPCA, now, now)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to create agreement")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create agreement")
	}

	if len(agreement.AuthorizedOfficers) > 0 {
		if err := r.SetAuthorizedOfficers(ctx, tenantID, agreement.ID, agreement.AuthorizedOfficers); err != nil {
			return err
		}
	}
	return nil
}

// Update persists the mutable fields of an agreement.
func (r *Repository) Update(ctx context.Context, tenantID string, agreement *models.Agreement) error {
	ctx, span := tracing.StartSpan(ctx, "agreement.Repository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("agreements")
	ub.Set(
		ub.Assign("country_programme_id", agreement.CountryProgrammeID),
		ub.Assign("reference_number", agreement.ReferenceNumber),
		ub.Assign("status", agreement.Status),
		ub.Assign("start", agreement.Start),
		ub.Assign("\"end\"", agreement.End),
		ub.Assign("signed_by_unicef_date", agreement.SignedByUnicefDate),
		ub.Assign("signed_by_partner_date", agreement.SignedByPartnerDate),
		ub.Assign("signed_by_id", agreement.SignedByID),
		ub.Assign("partner_manager_id", agreement.PartnerManagerID),
		ub.Assign("attachment_id", agreement.AttachmentID),
		ub.Assign("termination_doc_id", agreement.TerminationDocID),
		ub.Assign("special_conditions_pca", agreement.SpecialConditionsPCA),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", agreement.ID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "agreement_id": agreement.ID}).Error("Failed to update agreement")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update agreement")
	}
	return nil
}

// SetAuthorizedOfficers replaces the agreement's officer set.
func (r *Repository) SetAuthorizedOfficers(ctx context.Context, tenantID, agreementID string, officers []string) error {
	ctx, span := tracing.StartSpan(ctx, "agreement.Repository.SetAuthorizedOfficers")
	defer span.End()

	del := database.NewDeleteBuilder()
	del.DeleteFrom("agreement_authorized_officers")
	del.Where(
		del.Equal("tenant_id", tenantID),
		del.Equal("agreement_id", agreementID),
	)
	query, args := del.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to clear authorized officers")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set authorized officers")
	}

	if len(officers) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("agreement_authorized_officers")
	ib.Cols("agreement_id", "officer_id", "tenant_id")
	for _, officerID := range officers {
		ib.Values(agreementID, officerID, tenantID)
	}
	query, args = ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert authorized officers")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set authorized officers")
	}
	return nil
}

// SoftDelete marks a draft agreement deleted.
func (r *Repository) SoftDelete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "agreement.Repository.SoftDelete")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("agreements")
	ub.Set(ub.Assign("deleted_at", time.Now().UTC()))
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", id),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "agreement_id": id}).Error("Failed to delete agreement")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete agreement")
	}
	return nil
}

// HasActivePCA reports whether the partner already has a signed or suspended
// PCA, optionally excluding one agreement.
func (r *Repository) HasActivePCA(ctx context.Context, tenantID, partnerID, excludeID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "agreement.Repository.HasActivePCA")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("agreements")
	where := []string{
		sb.Equal("tenant_id", tenantID),
		sb.Equal("partner_id", partnerID),
		sb.Equal("agreement_type", models.AgreementTypePCA),
		sb.In("status", models.AgreementStatusSigned, models.AgreementStatusSuspended),
		sb.IsNull("deleted_at"),
	}
	if excludeID != "" {
		where = append(where, sb.NotEqual("id", excludeID))
	}
	sb.Where(where...)

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count active PCAs")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count active PCAs")
	}
	return count > 0, nil
}

// CountSigned reports how many non-draft agreements the partner holds. Backs
// the partner delete refusal.
func (r *Repository) CountSigned(ctx context.Context, tenantID, partnerID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "agreement.Repository.CountSigned")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("agreements")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("partner_id", partnerID),
		sb.NotEqual("status", models.AgreementStatusDraft),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count signed agreements")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count signed agreements")
	}
	return count, nil
}

// ListExpired returns draft/signed agreements whose end has passed, excluding
// SSFA. Backs the sweeper's auto-end job.
func (r *Repository) ListExpired(ctx context.Context, tenantID string, today time.Time, limit int) ([]models.Agreement, error) {
	ctx, span := tracing.StartSpan(ctx, "agreement.Repository.ListExpired")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(agreementColumns...)
	sb.From("agreements")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.In("status", models.AgreementStatusDraft, models.AgreementStatusSigned),
		sb.NotEqual("agreement_type", models.AgreementTypeSSFA),
		sb.LessThan("\"end\"", today),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("\"end\" ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var agreements []models.Agreement
	if err := r.db.SelectContext(ctx, &agreements, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list expired agreements")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list expired agreements")
	}
	return agreements, nil
}

// ListAmendments returns an agreement's amendments newest last.
func (r *Repository) ListAmendments(ctx context.Context, tenantID, agreementID string) ([]models.AgreementAmendment, error) {
	ctx, span := tracing.StartSpan(ctx, "agreement.Repository.ListAmendments")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "agreement_id", "number", "types", "signed_date", "attachment_id", "created_at", "updated_at", "deleted_at")
	sb.From("agreement_amendments")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("agreement_id", agreementID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var amendments []models.AgreementAmendment
	if err := r.db.SelectContext(ctx, &amendments, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list agreement amendments")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list agreement amendments")
	}
	return amendments, nil
}

// CreateAmendment records a signed change to an agreement.
func (r *Repository) CreateAmendment(ctx context.Context, tenantID string, amendment *models.AgreementAmendment) error {
	ctx, span := tracing.StartSpan(ctx, "agreement.Repository.CreateAmendment")
	defer span.End()

	now := time.Now().UTC()
	if amendment.ID == "" {
		amendment.ID = uuid.New().String()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("agreement_amendments")
	ib.Cols("id", "tenant_id", "agreement_id", "number", "types", "signed_date", "attachment_id", "created_at", "updated_at")
	ib.Values(amendment.ID, tenantID, amendment.AgreementID, amendment.Number, amendment.Types, amendment.SignedDate, amendment.AttachmentID, now, now)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create agreement amendment")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create agreement amendment")
	}
	return nil
}

// GetCountryProgramme retrieves a country programme by id.
func (r *Repository) GetCountryProgramme(ctx context.Context, tenantID, id string) (*models.CountryProgramme, error) {
	ctx, span := tracing.StartSpan(ctx, "agreement.Repository.GetCountryProgramme")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "name", "wbs", "from_date", "to_date", "active")
	sb.From("country_programmes")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("id", id),
	)

	query, args := sb.Build()
	var cp models.CountryProgramme
	if err := r.db.GetContext(ctx, &cp, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get country programme")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get country programme")
	}
	return &cp, nil
}

// FindCoveringCountryProgrammes returns country programmes whose date range
// covers [start, end]. Backs the auto-link rule.
func (r *Repository) FindCoveringCountryProgrammes(ctx context.Context, tenantID string, start, end time.Time) ([]models.CountryProgramme, error) {
	ctx, span := tracing.StartSpan(ctx, "agreement.Repository.FindCoveringCountryProgrammes")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "name", "wbs", "from_date", "to_date", "active")
	sb.From("country_programmes")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.LessEqualThan("from_date", start),
		sb.GreaterEqualThan("to_date", end),
	)

	query, args := sb.Build()
	var cps []models.CountryProgramme
	if err := r.db.SelectContext(ctx, &cps, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find covering country programmes")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find country programmes")
	}
	return cps, nil
}
