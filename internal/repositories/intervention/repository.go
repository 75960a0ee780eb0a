package intervention

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

var interventionColumns = []string{
	"id", "tenant_id", "agreement_id", "document_type", "title", "reference_number",
	"reference_number_year", "status", "start", "\"end\"", "submission_date",
	"submission_date_prc", "review_date_prc", "review_type", "signed_by_unicef_date",
	"signed_by_partner_date", "unicef_signatory_id", "partner_signatory_id",
	"signed_pd_attachment_id", "final_review_attachment_id", "termination_doc_id",
	"contingency_pd", "in_amendment", "unicef_accepted", "partner_accepted",
	"unicef_court", "date_sent_to_partner", "final_review_approved", "cancel_justification",
	"cash_transfer_modalities", "document_currency", "other_info", "capacity_development",
	"implementation_strategy", "ip_program_contribution", "population_focus", "metadata",
	"created_at", "updated_at", "deleted_at",
}

// Repository handles intervention persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new intervention repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves an intervention with its membership sets and budget.
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.Intervention, error) {
	return r.get(ctx, tenantID, id, false)
}

// GetByIDForUpdate retrieves an intervention and takes a row-lock for the
// enclosing transaction. Transitions and amendment operations use this to
// totally order mutations per intervention.
func (r *Repository) GetByIDForUpdate(ctx context.Context, tenantID, id string) (*models.Intervention, error) {
	return r.get(ctx, tenantID, id, true)
}

func (r *Repository) get(ctx context.Context, tenantID, id string, forUpdate bool) (*models.Intervention, error) {
	ctx, span := tracing.StartSpan(ctx, "intervention.Repository.get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(interventionColumns...)
	sb.From("interventions")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)
	if forUpdate {
		sb.SQL("FOR UPDATE")
	}

	query, args := sb.Build()
	var intervention models.Intervention
	if err := r.db.GetContext(ctx, &intervention, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "intervention_id": id}).Error("Failed to get intervention")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get intervention")
	}

	if err := r.loadRelations(ctx, tenantID, &intervention); err != nil {
		return nil, err
	}
	return &intervention, nil
}

func (r *Repository) loadRelations(ctx context.Context, tenantID string, intervention *models.Intervention) error {
	var err error
	if intervention.CountryProgrammes, err = r.getMembers(ctx, tenantID, intervention.ID, "intervention_country_programmes", "country_programme_id"); err != nil {
		return err
	}
	if intervention.Sections, err = r.getMembers(ctx, tenantID, intervention.ID, "intervention_sections", "section_id"); err != nil {
		return err
	}
	if intervention.Offices, err = r.getMembers(ctx, tenantID, intervention.ID, "intervention_offices", "office_id"); err != nil {
		return err
	}
	if intervention.FlatLocations, err = r.getMembers(ctx, tenantID, intervention.ID, "intervention_locations", "location_id"); err != nil {
		return err
	}
	if intervention.UnicefFocalPoints, err = r.getFocalPoints(ctx, tenantID, intervention.ID, "unicef"); err != nil {
		return err
	}
	if intervention.PartnerFocalPoints, err = r.getFocalPoints(ctx, tenantID, intervention.ID, "partner"); err != nil {
		return err
	}
	if intervention.PlannedBudget, err = r.GetBudget(ctx, tenantID, intervention.ID); err != nil {
		return err
	}
	if intervention.Quarters, err = r.GetTimeFrames(ctx, tenantID, intervention.ID); err != nil {
		return err
	}
	return nil
}

func (r *Repository) getMembers(ctx context.Context, tenantID, interventionID, table, column string) ([]string, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(column)
	sb.From(table)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("intervention_id", interventionID),
	)

	query, args := sb.Build()
	var members []string
	if err := r.db.SelectContext(ctx, &members, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("table", table).Error("Failed to get intervention members")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get intervention members")
	}
	return members, nil
}

func (r *Repository) getFocalPoints(ctx context.Context, tenantID, interventionID, side string) ([]string, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("user_id")
	sb.From("intervention_focal_points")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("intervention_id", interventionID),
		sb.Equal("side", side),
	)

	query, args := sb.Build()
	var users []string
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get focal points")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get focal points")
	}
	return users, nil
}

// List returns interventions matching the filters with total count.
func (r *Repository) List(ctx context.Context, tenantID string, filters models.InterventionListFilters) (*models.InterventionListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "intervention.Repository.List")
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
		sb.From("interventions i")
		sb.JoinWithOption(sqlbuilder.LeftJoin, "agreements a", "a.id = i.agreement_id")
		where := []string{
			sb.Equal("i.tenant_id", tenantID),
			sb.IsNull("i.deleted_at"),
		}
		if filters.DocumentType != "" {
			where = append(where, sb.Equal("i.document_type", filters.DocumentType))
		}
		if filters.Status != "" {
			where = append(where, sb.Equal("i.status", filters.Status))
		}
		if filters.Start != nil {
			where = append(where, sb.GreaterEqualThan("i.start", *filters.Start))
		}
		if filters.End != nil {
			where = append(where, sb.LessEqualThan("i.\"end\"", *filters.End))
		}
		if filters.ContingencyPD != nil {
			where = append(where, sb.Equal("i.contingency_pd", *filters.ContingencyPD))
		}
		if len(filters.Partners) > 0 {
			ids := make([]any, len(filters.Partners))
			for j, id := range filters.Partners {
				ids[j] = id
			}
			where = append(where, sb.In("a.partner_id", ids...))
		}
		if len(filters.Sections) > 0 {
			ids := make([]any, len(filters.Sections))
			for j, id := range filters.Sections {
				ids[j] = id
			}
			sub := sqlbuilder.PostgreSQL.NewSelectBuilder()
			sub.Select("1")
			sub.From("intervention_sections s")
			sub.Where("s.intervention_id = i.id", sub.In("s.section_id", ids...))
			where = append(where, sb.Exists(sub))
		}
		if len(filters.CountryProgrammes) > 0 {
			ids := make([]any, len(filters.CountryProgrammes))
			for j, id := range filters.CountryProgrammes {
				ids[j] = id
			}
			sub := sqlbuilder.PostgreSQL.NewSelectBuilder()
			sub.Select("1")
			sub.From("intervention_country_programmes cp")
			sub.Where("cp.intervention_id = i.id", sub.In("cp.country_programme_id", ids...))
			where = append(where, sb.Exists(sub))
		}
		if filters.Search != "" {
			pattern := "%" + filters.Search + "%"
			where = append(where, sb.Or(sb.ILike("i.title", pattern), sb.ILike("i.reference_number", pattern)))
		}
		sb.Where(where...)
	}

	countSB := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSB.Select("COUNT(*)")
	build(countSB)
	countQuery, countArgs := countSB.Build()

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count interventions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list interventions")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cols := make([]string, len(interventionColumns))
	for i, c := range interventionColumns {
		cols[i] = "i." + c
	}
	sb.Select(cols...)
	build(sb)
	sb.OrderBy("i.created_at DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var interventions []models.Intervention
	if err := r.db.SelectContext(ctx, &interventions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list interventions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list interventions")
	}

	return &models.InterventionListResponse{
		Items:      interventions,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Create inserts an intervention row with its membership sets.
func (r *Repository) Create(ctx context.Context, tenantID string, intervention *models.Intervention) error {
	ctx, span := tracing.StartSpan(ctx, "intervention.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	if intervention.ID == "" {
		intervention.ID = uuid.New().String()
	}
	intervention.TenantID = tenantID
	intervention.CreatedAt = now
	intervention.UpdatedAt = now
	if intervention.CashTransferModalities == nil {
		intervention.CashTransferModalities = models.StringList{}
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("interventions")
	ib.Cols("id", "tenant_id", "agreement_id", "document_type", "title", "reference_number",
		"reference_number_year", "status", "start", "\"end\"", "submission_date",
		"submission_date_prc", "review_date_prc", "review_type", "signed_by_unicef_date",
		"signed_by_partner_date", "unicef_signatory_id", "partner_signatory_id",
		"signed_pd_attachment_id", "final_review_attachment_id", "termination_doc_id",
		"contingency_pd", "in_amendment", "unicef_accepted", "partner_accepted",
		"unicef_court", "date_sent_to_partner", "final_review_approved", "cancel_justification",
		"cash_transfer_modalities", "document_currency", "other_info", "capacity_development",
		"implementation_strategy", "ip_program_contribution", "population_focus", "metadata",
		"created_at", "updated_at")
	ib.Values(intervention.ID, intervention.TenantID, intervention.AgreementID, intervention.DocumentType,
		intervention.Title, intervention.ReferenceNumber, intervention.ReferenceNumberYear,
		intervention.Status, intervention.Start, intervention.End, intervention.SubmissionDate,
		intervention.SubmissionDatePRC, intervention.ReviewDatePRC, intervention.ReviewType,
		intervention.SignedByUnicefDate, intervention.SignedByPartnerDate, intervention.UnicefSignatoryID,
		intervention.PartnerSignatoryID, intervention.SignedPDAttachmentID, intervention.FinalReviewAttachmentID,
		intervention.TerminationDocID, intervention.ContingencyPD, intervention.InAmendment,
		intervention.UnicefAccepted, intervention.PartnerAccepted, intervention.UnicefCourt,
		intervention.DateSentToPartner, intervention.FinalReviewApproved, intervention.CancelJustification,
		intervention.CashTransferModalities, intervention.DocumentCurrency, intervention.OtherInfo,
		intervention.CapacityDevelopment, intervention.ImplementationStrategy, intervention.IPProgramContribution,
		intervention.PopulationFocus, intervention.Metadata, now, now)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to create intervention")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create intervention")
	}

	return r.saveRelations(ctx, tenantID, intervention)
}

func (r *Repository) saveRelations(ctx context.Context, tenantID string, intervention *models.Intervention) error {
	if err := r.setMembers(ctx, tenantID, intervention.ID, "intervention_country_programmes", "country_programme_id", intervention.CountryProgrammes); err != nil {
		return err
	}
	if err := r.setMembers(ctx, tenantID, intervention.ID, "intervention_sections", "section_id", intervention.Sections); err != nil {
		return err
	}
	if err := r.setMembers(ctx, tenantID, intervention.ID, "intervention_offices", "office_id", intervention.Offices); err != nil {
		return err
	}
	if err := r.setMembers(ctx, tenantID, intervention.ID, "intervention_locations", "location_id", intervention.FlatLocations); err != nil {
		return err
	}
	if err := r.SetFocalPoints(ctx, tenantID, intervention.ID, "unicef", intervention.UnicefFocalPoints); err != nil {
		return err
	}
	return r.SetFocalPoints(ctx, tenantID, intervention.ID, "partner", intervention.PartnerFocalPoints)
}

func (r *Repository) setMembers(ctx context.Context, tenantID, interventionID, table, column string, members []string) error {
	del := database.NewDeleteBuilder()
	del.DeleteFrom(table)
	del.Where(
		del.Equal("tenant_id", tenantID),
		del.Equal("intervention_id", interventionID),
	)
	query, args := del.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("table", table).Error("Failed to clear intervention members")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set intervention members")
	}

	if len(members) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("intervention_id", column, "tenant_id")
	for _, memberID := range members {
		ib.Values(interventionID, memberID, tenantID)
	}
	query, args = ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("table", table).Error("Failed to insert intervention members")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set intervention members")
	}
	return nil
}

// SetFocalPoints replaces one side's focal point set.
func (r *Repository) SetFocalPoints(ctx context.Context, tenantID, interventionID, side string, users []string) error {
	ctx, span := tracing.StartSpan(ctx, "intervention.Repository.SetFocalPoints")
	defer span.End()

	del := database.NewDeleteBuilder()
	del.DeleteFrom("intervention_focal_points")
	del.Where(
		del.Equal("tenant_id", tenantID),
		del.Equal("intervention_id", interventionID),
		del.Equal("side", side),
	)
	query, args := del.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to clear focal points")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set focal points")
	}

	if len(users) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("intervention_focal_points")
	ib.Cols("intervention_id", "user_id", "side", "tenant_id")
	for _, userID := range users {
		ib.Values(interventionID, userID, side, tenantID)
	}
	query, args = ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert focal points")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set focal points")
	}
	return nil
}

// Update persists the mutable fields of an intervention plus its sets.
func (r *Repository) Update(ctx context.Context, tenantID string, intervention *models.Intervention) error {
	ctx, span := tracing.StartSpan(ctx, "intervention.Repository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("interventions")
	ub.Set(
		ub.Assign("title", intervention.Title),
		ub.Assign("reference_number", intervention.ReferenceNumber),
		ub.Assign("reference_number_year", intervention.ReferenceNumberYear),
		ub.Assign("status", intervention.Status),
		ub.Assign("start", intervention.Start),
		ub.Assign("\"end\"", intervention.End),
		ub.Assign("submission_date", intervention.SubmissionDate),
		ub.Assign("submission_date_prc", intervention.SubmissionDatePRC),
		ub.Assign("review_date_prc", intervention.ReviewDatePRC),
		ub.Assign("review_type", intervention.ReviewType),
		ub.Assign("signed_by_unicef_date", intervention.SignedByUnicefDate),
		ub.Assign("signed_by_partner_date", intervention.SignedByPartnerDate),
		ub.Assign("unicef_signatory_id", intervention.UnicefSignatoryID),
		ub.Assign("partner_signatory_id", intervention.PartnerSignatoryID),
		ub.Assign("signed_pd_attachment_id", intervention.SignedPDAttachmentID),
		ub.Assign("final_review_attachment_id", intervention.FinalReviewAttachmentID),
		ub.Assign("termination_doc_id", intervention.TerminationDocID),
		ub.Assign("contingency_pd", intervention.ContingencyPD),
		ub.Assign("in_amendment", intervention.InAmendment),
		ub.Assign("unicef_accepted", intervention.UnicefAccepted),
		ub.Assign("partner_accepted", intervention.PartnerAccepted),
		ub.Assign("unicef_court", intervention.UnicefCourt),
		ub.Assign("date_sent_to_partner", intervention.DateSentToPartner),
		ub.Assign("final_review_approved", intervention.FinalReviewApproved),
		ub.Assign("cancel_justification", intervention.CancelJustification),
		ub.Assign("cash_transfer_modalities", intervention.CashTransferModalities),
		ub.Assign("document_currency", intervention.DocumentCurrency),
		ub.Assign("other_info", intervention.OtherInfo),
		ub.Assign("capacity_development", intervention.CapacityDevelopment),
		ub.Assign("implementation_strategy", intervention.ImplementationStrategy),
		ub.Assign("ip_program_contribution", intervention.IPProgramContribution),
		ub.Assign("population_focus", intervention.PopulationFocus),
		ub.Assign("metadata", intervention.Metadata),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", intervention.ID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "intervention_id": intervention.ID}).Error("Failed to update intervention")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update intervention")
	}

	return r.saveRelations(ctx, tenantID, intervention)
}

// UpdateStatus writes only the status column. Used by cascades and the
// sweeper, which must not touch relations or content fields.
func (r *Repository) UpdateStatus(ctx context.Context, tenantID, id, status string) error {
	ctx, span := tracing.StartSpan(ctx, "intervention.Repository.UpdateStatus")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("interventions")
	ub.Set(
		ub.Assign("status", status),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", id),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "intervention_id": id, "status": status}).Error("Failed to update intervention status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update intervention status")
	}
	return nil
}

// UpdateReference writes only the reference number columns.
func (r *Repository) UpdateReference(ctx context.Context, tenantID, id, reference string, year *int) error {
	ctx, span := tracing.StartSpan(ctx, "intervention.Repository.UpdateReference")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("interventions")
	ub.Set(
		ub.Assign("reference_number", reference),
		ub.Assign("reference_number_year", year),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", id),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "intervention_id": id}).Error("Failed to update intervention reference")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update intervention reference")
	}
	return nil
}

// SoftDelete marks a draft intervention deleted.
func (r *Repository) SoftDelete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "intervention.Repository.SoftDelete")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("interventions")
	ub.Set(ub.Assign("deleted_at", time.Now().UTC()))
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", id),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "intervention_id": id}).Error("Failed to delete intervention")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete intervention")
	}
	return nil
}

// ListByAgreement returns interventions under an agreement whose status is in
// the given set. Backs the suspend/terminate cascade.
func (r *Repository) ListByAgreement(ctx context.Context, tenantID, agreementID string, statuses []string, documentTypes []string) ([]models.Intervention, error) {
	ctx, span := tracing.StartSpan(ctx, "intervention.Repository.ListByAgreement")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(interventionColumns...)
	sb.From("interventions")
	where := []string{
		sb.Equal("tenant_id", tenantID),
		sb.Equal("agreement_id", agreementID),
		sb.IsNull("deleted_at"),
	}
	if len(statuses) > 0 {
		vals := make([]any, len(statuses))
		for i, s := range statuses {
			vals[i] = s
		}
		where = append(where, sb.In("status", vals...))
	}
	if len(documentTypes) > 0 {
		vals := make([]any, len(documentTypes))
		for i, t := range documentTypes {
			vals[i] = t
		}
		where = append(where, sb.In("document_type", vals...))
	}
	sb.Where(where...)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var interventions []models.Intervention
	if err := r.db.SelectContext(ctx, &interventions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list interventions by agreement")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list interventions")
	}
	return interventions, nil
}

// ListForAutoTransition returns sweep candidates: active past end, signed
// ready for activation, or contingency documents. Each candidate is
// re-evaluated under the full guard set before any transition.
func (r *Repository) ListForAutoTransition(ctx context.Context, tenantID string, statuses []string, limit int) ([]models.Intervention, error) {
	ctx, span := tracing.StartSpan(ctx, "intervention.Repository.ListForAutoTransition")
	defer span.End()

	vals := make([]any, len(statuses))
	for i, s := range statuses {
		vals[i] = s
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(interventionColumns...)
	sb.From("interventions")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.In("status", vals...),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("updated_at ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var interventions []models.Intervention
	if err := r.db.SelectContext(ctx, &interventions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list auto-transition candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list interventions")
	}
	return interventions, nil
}

// CountSignedInYear counts interventions of (doc type, year) that have ever
// left the draft/cancelled pool. Backs the reference sequence.
func (r *Repository) CountSignedInYear(ctx context.Context, tenantID, docType string, year int) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "intervention.Repository.CountSignedInYear")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("interventions")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("document_type", docType),
		sb.Equal("reference_number_year", year),
		sb.NotIn("status", models.InterventionStatusDraft, models.InterventionStatusCancelled),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count signed interventions")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count interventions")
	}
	return count, nil
}

// GetBudget retrieves the intervention's 1:1 budget row.
func (r *Repository) GetBudget(ctx context.Context, tenantID, interventionID string) (*models.InterventionBudget, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "intervention_id", "currency", "partner_contribution_local",
		"total_unicef_cash_local_wo_hq", "total_hq_cash_local", "unicef_cash_local",
		"in_kind_amount_local", "partner_supply_local", "total_partner_contribution_local",
		"total_local", "programme_effectiveness", "created_at", "updated_at", "deleted_at")
	sb.From("intervention_budgets")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("intervention_id", interventionID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var budget models.InterventionBudget
	if err := r.db.GetContext(ctx, &budget, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get budget")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get budget")
	}
	return &budget, nil
}

// UpsertBudget writes the derived budget row keyed on intervention_id.
func (r *Repository) UpsertBudget(ctx context.Context, tenantID string, budget *models.InterventionBudget) error {
	ctx, span := tracing.StartSpan(ctx, "intervention.Repository.UpsertBudget")
	defer span.End()

	now := time.Now().UTC()
	if budget.ID == "" {
		budget.ID = uuid.New().String()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("intervention_budgets")
	ib.Cols("id", "tenant_id", "intervention_id", "currency", "partner_contribution_local",
		"total_unicef_cash_local_wo_hq", "total_hq_cash_local", "unicef_cash_local",
		"in_kind_amount_local", "partner_supply_local", "total_partner_contribution_local",
		"total_local", "programme_effectiveness", "created_at", "updated_at")
	ib.Values(budget.ID, tenantID, budget.InterventionID, budget.Currency,
		budget.PartnerContributionLocal, budget.TotalUnicefCashLocalWoHQ, budget.TotalHQCashLocal,
		budget.UnicefCashLocal, budget.InKindAmountLocal, budget.PartnerSupplyLocal,
		budget.TotalPartnerContribution, budget.TotalLocal, budget.ProgrammeEffectivenessPct, now, now)
	ub := ib.OnConflict("intervention_id")
	ub.Set(
		ub.Assign("currency", budget.Currency),
		ub.Assign("partner_contribution_local", budget.PartnerContributionLocal),
		ub.Assign("total_unicef_cash_local_wo_hq", budget.TotalUnicefCashLocalWoHQ),
		ub.Assign("total_hq_cash_local", budget.TotalHQCashLocal),
		ub.Assign("unicef_cash_local", budget.UnicefCashLocal),
		ub.Assign("in_kind_amount_local", budget.InKindAmountLocal),
		ub.Assign("partner_supply_local", budget.PartnerSupplyLocal),
		ub.Assign("total_partner_contribution_local", budget.TotalPartnerContribution),
		ub.Assign("total_local", budget.TotalLocal),
		ub.Assign("programme_effectiveness", budget.ProgrammeEffectivenessPct),
		ub.Assign("updated_at", now),
	)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("intervention_id", budget.InterventionID).Error("Failed to upsert budget")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert budget")
	}
	return nil
}

// GetTimeFrames returns the intervention's quarters ordered.
func (r *Repository) GetTimeFrames(ctx context.Context, tenantID, interventionID string) ([]models.TimeFrame, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "intervention_id", "quarter", "start_date", "end_date", "created_at", "deleted_at")
	sb.From("time_frames")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("intervention_id", interventionID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("quarter ASC")

	query, args := sb.Build()
	var frames []models.TimeFrame
	if err := r.db.SelectContext(ctx, &frames, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get time frames")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get time frames")
	}
	return frames, nil
}

// ReplaceTimeFrames rebuilds the quarter set from the intervention's dates.
func (r *Repository) ReplaceTimeFrames(ctx context.Context, tenantID, interventionID string, frames []models.TimeFrame) error {
	ctx, span := tracing.StartSpan(ctx, "intervention.Repository.ReplaceTimeFrames")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("time_frames")
	ub.Set(ub.Assign("deleted_at", time.Now().UTC()))
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("intervention_id", interventionID),
		ub.IsNull("deleted_at"),
	)
	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to clear time frames")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace time frames")
	}

	if len(frames) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("time_frames")
	ib.Cols("id", "tenant_id", "intervention_id", "quarter", "start_date", "end_date")
	for _, frame := range frames {
		id := frame.ID
		if id == "" {
			id = uuid.New().String()
		}
		ib.Values(id, tenantID, interventionID, frame.Quarter, frame.StartDate, frame.EndDate)
	}
	query, args = ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert time frames")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace time frames")
	}
	return nil
}
