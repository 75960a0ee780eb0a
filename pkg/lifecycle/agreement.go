package lifecycle

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories/agreement"
	"github.com/Ramsey-B/fern/internal/repositories/intervention"
	"github.com/Ramsey-B/fern/internal/repositories/partner"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/permissions"
	"github.com/Ramsey-B/fern/pkg/refnum"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/validation"
)

// maxSSFADays bounds a small-scale funding agreement's duration.
const maxSSFADays = 365

// cascadeStatuses are the intervention statuses an agreement suspend or
// terminate carries over to. Draft documents are never auto-suspended.
var cascadeStatuses = []string{
	models.InterventionStatusReview,
	models.InterventionStatusSignature,
	models.InterventionStatusSigned,
	models.InterventionStatusActive,
	models.InterventionStatusSuspended,
	models.InterventionStatusExpired,
}

// AgreementService owns agreement writes and the agreement state machine.
type AgreementService struct {
	db            database.DB
	agreements    *agreement.Repository
	interventions *intervention.Repository
	partners      *partner.Repository
	allocator     *refnum.Allocator
	logger        ectologger.Logger

	transitions []Transition[*models.Agreement]
}

// NewAgreementService creates a new agreement service
func NewAgreementService(
	db database.DB,
	agreements *agreement.Repository,
	interventions *intervention.Repository,
	partners *partner.Repository,
	allocator *refnum.Allocator,
	logger ectologger.Logger,
) *AgreementService {
	s := &AgreementService{
		db:            db,
		agreements:    agreements,
		interventions: interventions,
		partners:      partners,
		allocator:     allocator,
		logger:        logger,
	}
	s.transitions = []Transition[*models.Agreement]{
		{
			From:        []string{models.AgreementStatusDraft},
			To:          models.AgreementStatusSigned,
			ManagerOnly: true,
			Guard:       s.guardActivate,
		},
		{
			From:        []string{models.AgreementStatusSigned},
			To:          models.AgreementStatusSuspended,
			ManagerOnly: true,
			Effect:      s.cascade(models.InterventionStatusSuspended),
		},
		{
			From:        []string{models.AgreementStatusSuspended},
			To:          models.AgreementStatusSigned,
			ManagerOnly: true,
		},
		{
			From:  []string{models.AgreementStatusSigned},
			To:    models.AgreementStatusEnded,
			Guard: s.guardEnd,
		},
		{
			From:        []string{models.AgreementStatusSigned, models.AgreementStatusSuspended},
			To:          models.AgreementStatusTerminated,
			ManagerOnly: true,
			Guard:       s.guardTerminate,
			Effect:      s.cascade(models.InterventionStatusTerminated),
		},
		{
			From: []string{models.AgreementStatusDraft},
			To:   models.AgreementStatusCancelled,
		},
	}
	return s
}

// Create validates and persists a draft agreement, allocating its reference
// number.
func (s *AgreementService) Create(ctx context.Context, tenantID string, req models.CreateAgreementRequest) (*models.Agreement, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.AgreementService.Create")
	defer span.End()

	p, err := s.partners.GetByID(ctx, tenantID, req.PartnerID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "partner not found")
	}

	verr := validation.New("invalid agreement")
	if req.AgreementType == models.AgreementTypePCA && p.PartnerType != models.PartnerTypeCSO {
		verr.Add("agreement_type", "a PCA can only be held by a CSO partner")
	}
	if req.AgreementType == models.AgreementTypeSSFA && req.Start != nil && req.End != nil {
		if req.End.Sub(*req.Start) > maxSSFADays*24*time.Hour {
			verr.Add("end", "an SSFA cannot exceed 365 days")
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	a := &models.Agreement{
		TenantID:             tenantID,
		PartnerID:            req.PartnerID,
		AgreementType:        req.AgreementType,
		CountryProgrammeID:   req.CountryProgrammeID,
		Status:               models.AgreementStatusDraft,
		Start:                req.Start,
		End:                  req.End,
		SignedByUnicefDate:   req.SignedByUnicefDate,
		SignedByPartnerDate:  req.SignedByPartnerDate,
		SignedByID:           req.SignedByID,
		PartnerManagerID:     req.PartnerManagerID,
		SpecialConditionsPCA: req.SpecialConditionsPCA,
		AuthorizedOfficers:   req.AuthorizedOfficers,
	}
	s.autoLinkCountryProgramme(ctx, tenantID, a)

	year := referenceYear(a.SignedByUnicefDate, a.SignedByPartnerDate)
	a.ReferenceNumberYear = year

	ctxTx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create agreement")
	}
	defer tx.Rollback(ctxTx)

	number, err := s.allocator.NextAgreementNumber(ctxTx, tenantID, a.AgreementType, year)
	if err != nil {
		return nil, err
	}
	a.ReferenceNumber = number

	if err := s.agreements.Create(ctxTx, tenantID, a); err != nil {
		return nil, err
	}
	if len(a.AuthorizedOfficers) > 0 {
		if err := s.agreements.SetAuthorizedOfficers(ctxTx, tenantID, a.ID, a.AuthorizedOfficers); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctxTx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create agreement")
	}
	return a, nil
}

// Update applies a partial update. A status change dispatches into the state
// machine after the field changes are applied.
func (s *AgreementService) Update(ctx context.Context, tenantID, id string, req models.UpdateAgreementRequest, roles []string) (*models.Agreement, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.AgreementService.Update")
	defer span.End()

	ctxTx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update agreement")
	}
	defer tx.Rollback(ctxTx)

	a, err := s.agreements.GetByIDForUpdate(ctxTx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "agreement not found")
	}

	if a.Status != models.AgreementStatusDraft {
		// Reference-bearing fields freeze once the agreement leaves draft.
		if req.CountryProgrammeID != nil && (a.CountryProgrammeID == nil || *req.CountryProgrammeID != *a.CountryProgrammeID) {
			return nil, validation.New("invalid update").Add("country_programme_id", "cannot change once the agreement is signed")
		}
	}

	applyAgreementUpdate(a, req)
	s.autoLinkCountryProgramme(ctxTx, tenantID, a)

	if err := s.agreements.Update(ctxTx, tenantID, a); err != nil {
		return nil, err
	}
	if req.AuthorizedOfficers != nil {
		if err := s.agreements.SetAuthorizedOfficers(ctxTx, tenantID, a.ID, *req.AuthorizedOfficers); err != nil {
			return nil, err
		}
		a.AuthorizedOfficers = *req.AuthorizedOfficers
	}

	if req.Status != nil && *req.Status != a.Status {
		if err := s.transition(ctxTx, tenantID, a, *req.Status, roles); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update agreement")
	}
	return a, nil
}

// Transition dispatches a single state change on its own transaction.
func (s *AgreementService) Transition(ctx context.Context, tenantID, id, target string, roles []string) (*models.Agreement, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.AgreementService.Transition")
	defer span.End()

	ctxTx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to transition agreement")
	}
	defer tx.Rollback(ctxTx)

	a, err := s.agreements.GetByIDForUpdate(ctxTx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "agreement not found")
	}
	if err := s.transition(ctxTx, tenantID, a, target, roles); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctxTx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to transition agreement")
	}
	return a, nil
}

func (s *AgreementService) transition(ctx context.Context, tenantID string, a *models.Agreement, target string, roles []string) error {
	started := time.Now()

	t := Resolve(s.transitions, a.Status, target)
	if t == nil {
		return IllegalTransition(a.Status, target)
	}
	if t.ManagerOnly && !hasRole(roles, permissions.RolePartnershipManager) {
		return httperror.NewHTTPError(http.StatusForbidden, "transition requires the PartnershipManager role")
	}
	if t.Guard != nil {
		if err := t.Guard(ctx, a); err != nil {
			return err
		}
	}
	if t.Effect != nil {
		if err := t.Effect(ctx, a); err != nil {
			return err
		}
	}

	a.Status = target
	if err := s.agreements.Update(ctx, tenantID, a); err != nil {
		return err
	}
	metrics.RecordTransition(tenantID, "agreement", target, "ok", time.Since(started).Seconds())
	return nil
}

// Delete removes a draft agreement.
func (s *AgreementService) Delete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.AgreementService.Delete")
	defer span.End()

	a, err := s.agreements.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if a == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "agreement not found")
	}
	if a.Status != models.AgreementStatusDraft {
		return validation.NonField("only draft agreements can be deleted")
	}
	return s.agreements.SoftDelete(ctx, tenantID, id)
}

func (s *AgreementService) guardActivate(ctx context.Context, a *models.Agreement) error {
	verr := validation.New("agreement cannot be activated")

	p, err := s.partners.GetByID(ctx, a.TenantID, a.PartnerID)
	if err != nil {
		return err
	}
	if p == nil {
		verr.Add("partner_id", "partner not found")
		return verr
	}

	if a.AgreementType == models.AgreementTypePCA {
		if p.PartnerType != models.PartnerTypeCSO {
			verr.Add("agreement_type", "a PCA can only be held by a CSO partner")
		}
		if a.CountryProgrammeID == nil {
			verr.Add("country_programme_id", "a PCA requires a country programme")
		}
		active, err := s.agreements.HasActivePCA(ctx, a.TenantID, a.PartnerID, a.ID)
		if err != nil {
			return err
		}
		if active {
			verr.Add("agreement_type", "partner already has an active PCA")
		}
	}
	if a.SignedByUnicefDate == nil {
		verr.Add("signed_by_unicef_date", "required to activate")
	}
	if a.SignedByPartnerDate == nil {
		verr.Add("signed_by_partner_date", "required to activate")
	}
	if len(a.AuthorizedOfficers) == 0 {
		verr.Add("authorized_officers", "at least one authorized officer is required")
	}
	if a.AttachmentID == nil {
		verr.Add("attachment_id", "the signed agreement document is required")
	}
	if a.Start != nil && a.SignedByUnicefDate != nil && a.SignedByPartnerDate != nil {
		latest := *a.SignedByUnicefDate
		if a.SignedByPartnerDate.After(latest) {
			latest = *a.SignedByPartnerDate
		}
		if a.Start.Before(latest) {
			verr.Add("start", "start cannot precede the later signature date")
		}
	}
	return verr.OrNil()
}

func (s *AgreementService) guardEnd(ctx context.Context, a *models.Agreement) error {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if a.End == nil || !a.End.Before(today) {
		return validation.New("agreement cannot end").Add("end", "end date must be in the past")
	}
	return nil
}

func (s *AgreementService) guardTerminate(ctx context.Context, a *models.Agreement) error {
	if a.TerminationDocID == nil {
		return validation.New("agreement cannot be terminated").Add("termination_doc_id", "a signed termination document is required")
	}
	return nil
}

// cascade builds the effect that carries a suspend or terminate over to every
// dependent PD and SPD document, in the same transaction.
func (s *AgreementService) cascade(target string) func(ctx context.Context, a *models.Agreement) error {
	return func(ctx context.Context, a *models.Agreement) error {
		dependents, err := s.interventions.ListByAgreement(ctx, a.TenantID, a.ID, cascadeStatuses, []string{models.DocumentTypePD, models.DocumentTypeSPD})
		if err != nil {
			return err
		}
		for _, dependent := range dependents {
			if dependent.Status == target {
				continue
			}
			if err := s.interventions.UpdateStatus(ctx, a.TenantID, dependent.ID, target); err != nil {
				return err
			}
			s.logger.WithContext(ctx).WithFields(map[string]any{
				"agreement_id":    a.ID,
				"intervention_id": dependent.ID,
				"status":          target,
			}).Info("Cascaded agreement transition to intervention")
		}
		return nil
	}
}

// autoLinkCountryProgramme resolves the single country programme covering
// [start, end] when none is set. Ambiguity or absence leaves the field null.
func (s *AgreementService) autoLinkCountryProgramme(ctx context.Context, tenantID string, a *models.Agreement) {
	if a.CountryProgrammeID != nil || a.Start == nil || a.End == nil {
		return
	}
	matches, err := s.agreements.FindCoveringCountryProgrammes(ctx, tenantID, *a.Start, *a.End)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Country programme lookup failed")
		return
	}
	switch len(matches) {
	case 1:
		a.CountryProgrammeID = &matches[0].ID
	case 0:
		s.logger.WithContext(ctx).WithField("agreement_id", a.ID).Warn("No country programme covers the agreement dates")
	default:
		s.logger.WithContext(ctx).WithField("agreement_id", a.ID).Warn("Multiple country programmes cover the agreement dates")
	}
}

func applyAgreementUpdate(a *models.Agreement, req models.UpdateAgreementRequest) {
	if req.CountryProgrammeID != nil {
		a.CountryProgrammeID = req.CountryProgrammeID
	}
	if req.Start != nil {
		a.Start = req.Start
	}
	if req.End != nil {
		a.End = req.End
	}
	if req.SignedByUnicefDate != nil {
		a.SignedByUnicefDate = req.SignedByUnicefDate
	}
	if req.SignedByPartnerDate != nil {
		a.SignedByPartnerDate = req.SignedByPartnerDate
	}
	if req.SignedByID != nil {
		a.SignedByID = req.SignedByID
	}
	if req.PartnerManagerID != nil {
		a.PartnerManagerID = req.PartnerManagerID
	}
	if req.AttachmentID != nil {
		a.AttachmentID = req.AttachmentID
	}
	if req.TerminationDocID != nil {
		a.TerminationDocID = req.TerminationDocID
	}
	if req.SpecialConditionsPCA != nil {
		a.SpecialConditionsPCA = *req.SpecialConditionsPCA
	}
}

func referenceYear(signedByUnicef, signedByPartner *time.Time) int {
	year := time.Now().UTC().Year()
	if signedByUnicef != nil {
		year = signedByUnicef.Year()
	}
	if signedByPartner != nil && signedByPartner.Year() > year {
		year = signedByPartner.Year()
	}
	return year
}

func hasRole(roles []string, wanted string) bool {
	for _, role := range roles {
		if role == wanted {
			return true
		}
	}
	return false
}
