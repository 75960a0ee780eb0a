package lifecycle

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/internal/repositories/agreement"
	"github.com/Ramsey-B/fern/internal/repositories/assurance"
	"github.com/Ramsey-B/fern/internal/repositories/intervention"
	"github.com/Ramsey-B/fern/internal/repositories/results"
	"github.com/Ramsey-B/fern/internal/repositories/review"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/permissions"
	"github.com/Ramsey-B/fern/pkg/refnum"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/validation"
)

// SyncEnqueuer hands a freshly signed or activated document to the downstream
// sync pipeline. Called after commit; failures are logged, never propagated.
type SyncEnqueuer interface {
	Enqueue(ctx context.Context, tenantID, interventionID string) error
}

// syncStatuses are the target statuses that trigger a downstream upload.
var syncStatuses = map[string]bool{
	models.InterventionStatusSigned: true,
	models.InterventionStatusActive: true,
}

// InterventionService owns intervention writes and the eleven-state document
// machine.
type InterventionService struct {
	db            database.DB
	interventions *intervention.Repository
	agreements    *agreement.Repository
	results       *results.Repository
	assurance     *assurance.Repository
	reviews       *review.Repository
	allocator     *refnum.Allocator
	sync          SyncEnqueuer
	logger        ectologger.Logger

	transitions []Transition[*models.Intervention]
}

// NewInterventionService creates a new intervention service
func NewInterventionService(
	db database.DB,
	interventions *intervention.Repository,
	agreements *agreement.Repository,
	resultsRepo *results.Repository,
	assuranceRepo *assurance.Repository,
	reviews *review.Repository,
	allocator *refnum.Allocator,
	sync SyncEnqueuer,
	logger ectologger.Logger,
) *InterventionService {
	s := &InterventionService{
		db:            db,
		interventions: interventions,
		agreements:    agreements,
		results:       resultsRepo,
		assurance:     assuranceRepo,
		reviews:       reviews,
		allocator:     allocator,
		sync:          sync,
		logger:        logger,
	}
	s.transitions = []Transition[*models.Intervention]{
		{
			From:  []string{models.InterventionStatusDraft},
			To:    models.InterventionStatusReview,
			Guard: s.guardSubmit,
		},
		{
			From:  []string{models.InterventionStatusReview},
			To:    models.InterventionStatusSignature,
			Guard: s.guardReviewed,
		},
		{
			From:   []string{models.InterventionStatusSignature},
			To:     models.InterventionStatusSigned,
			Guard:  s.guardSign,
			Effect: s.promoteReference,
		},
		{
			From:  []string{models.InterventionStatusSigned, models.InterventionStatusSuspended},
			To:    models.InterventionStatusActive,
			Guard: s.guardActivate,
		},
		{
			From:  []string{models.InterventionStatusActive},
			To:    models.InterventionStatusEnded,
			Guard: s.guardEnd,
		},
		{
			From:  []string{models.InterventionStatusEnded},
			To:    models.InterventionStatusClosed,
			Guard: s.guardClose,
		},
		{
			From: []string{models.InterventionStatusSigned, models.InterventionStatusActive},
			To:   models.InterventionStatusSuspended,
		},
		{
			From:  []string{models.InterventionStatusSigned, models.InterventionStatusActive, models.InterventionStatusSuspended},
			To:    models.InterventionStatusTerminated,
			Guard: s.guardTerminate,
		},
		{
			From:  []string{models.InterventionStatusDraft, models.InterventionStatusReview, models.InterventionStatusSignature},
			To:    models.InterventionStatusCancelled,
			Guard: s.guardCancel,
		},
		{
			From:  []string{models.InterventionStatusSigned},
			To:    models.InterventionStatusExpired,
			Guard: s.guardExpire,
		},
	}
	return s
}

// Create validates and persists a draft intervention with a placeholder
// reference.
func (s *InterventionService) Create(ctx context.Context, tenantID string, req models.CreateInterventionRequest) (*models.Intervention, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.InterventionService.Create")
	defer span.End()

	a, err := s.agreements.GetByID(ctx, tenantID, req.AgreementID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "agreement not found")
	}

	verr := validation.New("invalid intervention")
	if msg := agreementPairing(req.DocumentType, a.AgreementType); msg != "" {
		verr.Add("document_type", msg)
	}
	if req.DocumentType == models.DocumentTypeSSFA {
		existing, err := s.interventions.ListByAgreement(ctx, tenantID, a.ID, nil, []string{models.DocumentTypeSSFA})
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			verr.Add("document_type", "an SSFA agreement can carry only one document")
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	i := &models.Intervention{
		ID:                     uuid.New().String(),
		TenantID:               tenantID,
		AgreementID:            req.AgreementID,
		DocumentType:           req.DocumentType,
		Title:                  req.Title,
		Status:                 models.InterventionStatusDraft,
		Start:                  req.Start,
		End:                    req.End,
		ContingencyPD:          req.ContingencyPD,
		UnicefCourt:            true,
		CountryProgrammes:      req.CountryProgrammes,
		Sections:               req.Sections,
		Offices:                req.Offices,
		UnicefFocalPoints:      req.UnicefFocalPoints,
		PartnerFocalPoints:     req.PartnerFocalPoints,
		CashTransferModalities: req.CashTransferModalities,
		DocumentCurrency:       req.DocumentCurrency,
	}
	i.ReferenceNumber = refnum.TempRef(i.ID)

	if err := s.interventions.Create(ctx, tenantID, i); err != nil {
		return nil, err
	}
	return i, nil
}

// agreementPairing validates a document type against the agreement type it
// is created under. Returns the failure message, or "" when the pair is
// allowed.
func agreementPairing(documentType, agreementType string) string {
	switch documentType {
	case models.DocumentTypePD, models.DocumentTypeSPD:
		if agreementType != models.AgreementTypePCA {
			return "PD and SPD documents require a PCA agreement"
		}
	case models.DocumentTypeGOV:
		if agreementType != models.AgreementTypeMOU {
			return "GOV documents require an MOU agreement"
		}
	case models.DocumentTypeSSFA:
		if agreementType != models.AgreementTypeSSFA {
			return "SSFA documents require an SSFA agreement"
		}
	}
	return ""
}

// Update applies a partial update. Court and acceptance flips are handled
// before content fields; a status change dispatches into the state machine
// last.
func (s *InterventionService) Update(ctx context.Context, tenantID, id string, req models.UpdateInterventionRequest, roles []string) (*models.Intervention, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.InterventionService.Update")
	defer span.End()

	ctxTx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update intervention")
	}
	defer tx.Rollback(ctxTx)

	i, err := s.interventions.GetByIDForUpdate(ctxTx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if i == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "intervention not found")
	}

	if err := s.applyCourtFlips(i, req, roles); err != nil {
		return nil, err
	}
	if err := applyInterventionUpdate(i, req); err != nil {
		return nil, err
	}
	if err := s.interventions.Update(ctxTx, tenantID, i); err != nil {
		return nil, err
	}

	enqueue := false
	if req.Status != nil && *req.Status != i.Status {
		if err := s.transition(ctxTx, tenantID, i, *req.Status, roles); err != nil {
			return nil, err
		}
		enqueue = syncStatuses[i.Status]
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update intervention")
	}
	if enqueue {
		s.enqueueSync(ctx, tenantID, i.ID)
	}
	return i, nil
}

// Transition dispatches a single state change on its own transaction.
func (s *InterventionService) Transition(ctx context.Context, tenantID, id, target string, roles []string) (*models.Intervention, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.InterventionService.Transition")
	defer span.End()

	ctxTx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to transition intervention")
	}
	defer tx.Rollback(ctxTx)

	i, err := s.interventions.GetByIDForUpdate(ctxTx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if i == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "intervention not found")
	}
	if err := s.transition(ctxTx, tenantID, i, target, roles); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctxTx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to transition intervention")
	}
	if syncStatuses[i.Status] {
		s.enqueueSync(ctx, tenantID, i.ID)
	}
	return i, nil
}

func (s *InterventionService) transition(ctx context.Context, tenantID string, i *models.Intervention, target string, roles []string) error {
	started := time.Now()

	t := Resolve(s.transitions, i.Status, target)
	if t == nil {
		return IllegalTransition(i.Status, target)
	}
	if roles != nil && !permissions.CanTransition(roles, target) {
		return httperror.NewHTTPError(http.StatusForbidden, "insufficient role for this transition")
	}
	if t.Guard != nil {
		if err := t.Guard(ctx, i); err != nil {
			return err
		}
	}
	if t.Effect != nil {
		if err := t.Effect(ctx, i); err != nil {
			return err
		}
	}

	i.Status = target
	if err := s.interventions.Update(ctx, tenantID, i); err != nil {
		return err
	}
	metrics.RecordTransition(tenantID, "intervention", target, "ok", time.Since(started).Seconds())
	return nil
}

// Delete removes a draft intervention.
func (s *InterventionService) Delete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.InterventionService.Delete")
	defer span.End()

	i, err := s.interventions.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if i == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "intervention not found")
	}
	if i.Status != models.InterventionStatusDraft {
		return validation.NonField("only draft interventions can be deleted")
	}
	return s.interventions.SoftDelete(ctx, tenantID, id)
}

// applyCourtFlips handles the send-to-partner and send-back flips, which
// carry their acceptance side effects.
func (s *InterventionService) applyCourtFlips(i *models.Intervention, req models.UpdateInterventionRequest, roles []string) error {
	if req.UnicefCourt == nil || *req.UnicefCourt == i.UnicefCourt {
		// Each flag is checked against its own side: posting both in one
		// request must not let one side's permission carry the other flag.
		if req.UnicefAccepted != nil {
			if roles != nil && !permissions.CanToggleAcceptance(i, roles, false) {
				return httperror.NewHTTPError(http.StatusForbidden, "cannot toggle unicef acceptance from this side")
			}
			i.UnicefAccepted = *req.UnicefAccepted
		}
		if req.PartnerAccepted != nil {
			if roles != nil && !permissions.CanToggleAcceptance(i, roles, true) {
				return httperror.NewHTTPError(http.StatusForbidden, "cannot toggle partner acceptance from this side")
			}
			i.PartnerAccepted = *req.PartnerAccepted
		}
		return nil
	}

	if !*req.UnicefCourt {
		// UNICEF sends the document to the partner.
		i.UnicefCourt = false
		i.UnicefAccepted = true
		i.PartnerAccepted = false
		if i.DateSentToPartner == nil {
			now := time.Now().UTC()
			i.DateSentToPartner = &now
		}
		return nil
	}

	// Partner sends the document back.
	i.UnicefCourt = true
	i.PartnerAccepted = true
	i.UnicefAccepted = false
	return nil
}

func (s *InterventionService) enqueueSync(ctx context.Context, tenantID, interventionID string) {
	if s.sync == nil {
		return
	}
	if err := s.sync.Enqueue(ctx, tenantID, interventionID); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("intervention_id", interventionID).Error("Failed to enqueue downstream sync")
	}
}

func (s *InterventionService) guardSubmit(ctx context.Context, i *models.Intervention) error {
	verr := validation.New("intervention is not ready for review")
	if i.Title == "" {
		verr.Add("title", "required")
	}
	if i.Start == nil {
		verr.Add("start", "required")
	}
	if i.End == nil {
		verr.Add("end", "required")
	}
	if len(i.Sections) == 0 {
		verr.Add("sections", "at least one section is required")
	}
	if len(i.Offices) == 0 {
		verr.Add("offices", "at least one office is required")
	}

	tree, err := s.results.GetTree(ctx, i.TenantID, i.ID)
	if err != nil {
		return err
	}
	hasOutput := false
	for _, link := range tree {
		if link.CPOutputID != nil && len(link.LowerResults) > 0 {
			hasOutput = true
			break
		}
	}
	if !hasOutput {
		verr.Add("result_links", "at least one cp output with a programme document output is required")
	}

	budget, err := s.interventions.GetBudget(ctx, i.TenantID, i.ID)
	if err != nil {
		return err
	}
	if budget == nil || budget.TotalLocal < 0 {
		verr.Add("planned_budget", "a budget is required")
	}
	return verr.OrNil()
}

func (s *InterventionService) guardReviewed(ctx context.Context, i *models.Intervention) error {
	if i.ReviewType != nil && *i.ReviewType == models.ReviewTypeNoReview {
		if !i.InAmendment {
			return validation.New("review is required").Add("review_type", "no-review is only allowed in an amendment")
		}
		return nil
	}
	latest, err := s.reviews.GetLatest(ctx, i.TenantID, i.ID)
	if err != nil {
		return err
	}
	if latest == nil || !latest.Approved() {
		return validation.NonField("an approving review is required before signature")
	}
	return nil
}

func (s *InterventionService) guardSign(ctx context.Context, i *models.Intervention) error {
	verr := signatureFieldErrors(i)

	a, err := s.agreements.GetByID(ctx, i.TenantID, i.AgreementID)
	if err != nil {
		return err
	}
	if a == nil || a.Status != models.AgreementStatusSigned {
		verr.Add("agreement_id", "the agreement must be signed first")
	}
	return verr.OrNil()
}

// signatureFieldErrors collects the missing signature fields. GOV documents
// are countersigned by the government through the MOU, so the partner side is
// not required.
func signatureFieldErrors(i *models.Intervention) *validation.Error {
	verr := validation.New("intervention cannot be signed")
	if i.SignedByUnicefDate == nil {
		verr.Add("signed_by_unicef_date", "required")
	}
	if i.UnicefSignatoryID == nil {
		verr.Add("unicef_signatory_id", "required")
	}
	if i.SignedPDAttachmentID == nil {
		verr.Add("signed_pd_attachment_id", "the signed document is required")
	}
	if i.DocumentType != models.DocumentTypeGOV {
		if i.SignedByPartnerDate == nil {
			verr.Add("signed_by_partner_date", "required")
		}
		if i.PartnerSignatoryID == nil {
			verr.Add("partner_signatory_id", "required")
		}
	}
	return verr
}

func (s *InterventionService) guardActivate(ctx context.Context, i *models.Intervention) error {
	verr := validation.New("intervention cannot be activated")
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if i.Start == nil || today.Before(i.Start.Truncate(24*time.Hour)) {
		verr.Add("start", "the start date has not been reached")
	}

	count, err := s.assurance.CountFundsReservations(ctx, i.TenantID, i.ID)
	if err != nil {
		return err
	}
	if count == 0 {
		verr.Add("frs", "at least one funds reservation is required")
	}

	a, err := s.agreements.GetByID(ctx, i.TenantID, i.AgreementID)
	if err != nil {
		return err
	}
	if a != nil && (a.Status == models.AgreementStatusTerminated || a.Status == models.AgreementStatusSuspended) {
		verr.Add("agreement_id", "the agreement is not active")
	}
	return verr.OrNil()
}

func (s *InterventionService) guardEnd(ctx context.Context, i *models.Intervention) error {
	verr := validation.New("intervention cannot end")
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if i.End == nil || !i.End.Truncate(24*time.Hour).Before(today) {
		verr.Add("end", "the end date has not passed")
	}
	outstanding, err := s.assurance.SumOutstanding(ctx, i.TenantID, i.ID)
	if err != nil {
		return err
	}
	if outstanding > 0 {
		frs, err := s.assurance.ListFundsReservations(ctx, i.TenantID, i.ID)
		if err != nil {
			return err
		}
		if !fundsCoverEnd(frs, i.End) {
			verr.Add("frs", "funds are still outstanding")
		}
	}
	return verr.OrNil()
}

// fundsCoverEnd reports whether a reservation with an outstanding balance
// spans the document's end date. Such funds settle on the FR's own schedule
// and do not hold the document open.
func fundsCoverEnd(frs []models.FundsReservation, end *time.Time) bool {
	if end == nil {
		return false
	}
	day := end.Truncate(24 * time.Hour)
	for _, fr := range frs {
		if fr.OutstandingAmount <= 0 || fr.StartDate == nil || fr.EndDate == nil {
			continue
		}
		if !fr.StartDate.Truncate(24*time.Hour).After(day) && !fr.EndDate.Truncate(24*time.Hour).Before(day) {
			return true
		}
	}
	return false
}

func (s *InterventionService) guardClose(ctx context.Context, i *models.Intervention) error {
	verr := validation.New("intervention cannot be closed")
	if i.FinalReviewAttachmentID == nil {
		verr.Add("final_review_attachment_id", "the final partnership review is required")
	}
	if !i.FinalReviewApproved {
		verr.Add("final_review_approved", "the final review must be approved")
	}
	return verr.OrNil()
}

func (s *InterventionService) guardTerminate(ctx context.Context, i *models.Intervention) error {
	if i.TerminationDocID == nil {
		return validation.New("intervention cannot be terminated").Add("termination_doc_id", "a termination document is required")
	}
	return nil
}

func (s *InterventionService) guardCancel(ctx context.Context, i *models.Intervention) error {
	if i.CancelJustification == nil || *i.CancelJustification == "" {
		return validation.New("intervention cannot be cancelled").Add("cancel_justification", "a justification is required")
	}
	return nil
}

// guardExpire admits only contingency documents; the sweeper checks the
// country programme condition before dispatching.
func (s *InterventionService) guardExpire(ctx context.Context, i *models.Intervention) error {
	if !i.ContingencyPD {
		return validation.NonField("only contingency documents expire")
	}
	return nil
}

// promoteReference swaps the draft placeholder for the canonical number on
// the first signature. Later transitions never renumber.
func (s *InterventionService) promoteReference(ctx context.Context, i *models.Intervention) error {
	if !i.HasTempRef() {
		return nil
	}
	a, err := s.agreements.GetByID(ctx, i.TenantID, i.AgreementID)
	if err != nil {
		return err
	}
	if a == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "agreement not found")
	}

	year := referenceYear(i.SignedByUnicefDate, i.SignedByPartnerDate)
	number, err := s.allocator.NextInterventionNumber(ctx, i.TenantID, a.BaseNumber(), i.DocumentType, year)
	if err != nil {
		return err
	}
	i.ReferenceNumber = number
	i.ReferenceNumberYear = &year
	return nil
}

func applyInterventionUpdate(i *models.Intervention, req models.UpdateInterventionRequest) error {
	if i.Locked() {
		verr := validation.New("document is locked")
		if req.DocumentType != nil && *req.DocumentType != i.DocumentType {
			verr.Add("document_type", "frozen while the document is accepted")
		}
		if req.DocumentCurrency != nil && (i.DocumentCurrency == nil || *req.DocumentCurrency != *i.DocumentCurrency) {
			verr.Add("document_currency", "frozen while the document is accepted")
		}
		if req.CashTransferModalities != nil {
			verr.Add("cash_transfer_modalities", "frozen while the document is accepted")
		}
		if err := verr.OrNil(); err != nil {
			return err
		}
	}

	if req.Title != nil {
		i.Title = *req.Title
	}
	if req.Start != nil {
		i.Start = req.Start
	}
	if req.End != nil {
		i.End = req.End
	}
	if req.SubmissionDate != nil {
		i.SubmissionDate = req.SubmissionDate
	}
	if req.SubmissionDatePRC != nil {
		i.SubmissionDatePRC = req.SubmissionDatePRC
	}
	if req.ReviewDatePRC != nil {
		i.ReviewDatePRC = req.ReviewDatePRC
	}
	if req.ReviewType != nil {
		i.ReviewType = req.ReviewType
	}
	if req.SignedByUnicefDate != nil {
		i.SignedByUnicefDate = req.SignedByUnicefDate
	}
	if req.SignedByPartnerDate != nil {
		i.SignedByPartnerDate = req.SignedByPartnerDate
	}
	if req.UnicefSignatoryID != nil {
		i.UnicefSignatoryID = req.UnicefSignatoryID
	}
	if req.PartnerSignatoryID != nil {
		i.PartnerSignatoryID = req.PartnerSignatoryID
	}
	if req.SignedPDAttachmentID != nil {
		i.SignedPDAttachmentID = req.SignedPDAttachmentID
	}
	if req.FinalReviewAttachmentID != nil {
		i.FinalReviewAttachmentID = req.FinalReviewAttachmentID
	}
	if req.TerminationDocID != nil {
		i.TerminationDocID = req.TerminationDocID
	}
	if req.FinalReviewApproved != nil {
		i.FinalReviewApproved = *req.FinalReviewApproved
	}
	if req.CancelJustification != nil {
		i.CancelJustification = req.CancelJustification
	}
	if req.CashTransferModalities != nil {
		i.CashTransferModalities = models.StringList(*req.CashTransferModalities)
	}
	if req.DocumentType != nil {
		i.DocumentType = *req.DocumentType
	}
	if req.DocumentCurrency != nil {
		i.DocumentCurrency = req.DocumentCurrency
	}
	if req.OtherInfo != nil {
		i.OtherInfo = req.OtherInfo
	}
	if req.CapacityDevelopment != nil {
		i.CapacityDevelopment = req.CapacityDevelopment
	}
	if req.ImplementationStrategy != nil {
		i.ImplementationStrategy = req.ImplementationStrategy
	}
	if req.IPProgramContribution != nil {
		i.IPProgramContribution = req.IPProgramContribution
	}
	if req.PopulationFocus != nil {
		i.PopulationFocus = req.PopulationFocus
	}
	if req.CountryProgrammes != nil {
		i.CountryProgrammes = *req.CountryProgrammes
	}
	if req.Sections != nil {
		i.Sections = *req.Sections
	}
	if req.Offices != nil {
		i.Offices = *req.Offices
	}
	if req.FlatLocations != nil {
		i.FlatLocations = *req.FlatLocations
	}
	if req.UnicefFocalPoints != nil {
		i.UnicefFocalPoints = *req.UnicefFocalPoints
	}
	if req.PartnerFocalPoints != nil {
		i.PartnerFocalPoints = *req.PartnerFocalPoints
	}
	return nil
}
