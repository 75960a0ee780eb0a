package amendments

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/internal/repositories/amendment"
	"github.com/Ramsey-B/fern/internal/repositories/intervention"
	"github.com/Ramsey-B/fern/internal/repositories/plannedvisit"
	"github.com/Ramsey-B/fern/internal/repositories/reporting"
	"github.com/Ramsey-B/fern/internal/repositories/results"
	"github.com/Ramsey-B/fern/internal/repositories/review"
	"github.com/Ramsey-B/fern/internal/repositories/supplyitem"
	"github.com/Ramsey-B/fern/pkg/budget"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/refnum"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/validation"
)

// Entity kinds tracked in the related objects map.
const (
	KindResultLink   = "result_links"
	KindLowerResult  = "lower_results"
	KindActivity     = "activities"
	KindActivityItem = "activity_items"
	KindSupplyItem   = "supply_items"
	KindPlannedVisit = "planned_visits"
)

// amendableStatuses are the intervention statuses an amendment can start
// from. A draft document is edited directly, never amended.
var amendableStatuses = map[string]bool{
	models.InterventionStatusSigned:    true,
	models.InterventionStatusActive:    true,
	models.InterventionStatusSuspended: true,
	models.InterventionStatusEnded:     true,
}

// SyncEnqueuer hands the merged document to the downstream sync pipeline.
type SyncEnqueuer interface {
	Enqueue(ctx context.Context, tenantID, interventionID string) error
}

// Engine drives the amendment lifecycle: shadow creation, diffing, and the
// single-transaction merge back into the original document.
type Engine struct {
	db            database.DB
	interventions *intervention.Repository
	amendments    *amendment.Repository
	results       *results.Repository
	supplies      *supplyitem.Repository
	visits        *plannedvisit.Repository
	reporting     *reporting.Repository
	reviews       *review.Repository
	recomputer    *budget.Recomputer
	sync          SyncEnqueuer
	logger        ectologger.Logger
}

// NewEngine creates a new amendment engine
func NewEngine(
	db database.DB,
	interventions *intervention.Repository,
	amendments *amendment.Repository,
	resultsRepo *results.Repository,
	supplies *supplyitem.Repository,
	visits *plannedvisit.Repository,
	reportingRepo *reporting.Repository,
	reviews *review.Repository,
	recomputer *budget.Recomputer,
	sync SyncEnqueuer,
	logger ectologger.Logger,
) *Engine {
	return &Engine{
		db:            db,
		interventions: interventions,
		amendments:    amendments,
		results:       resultsRepo,
		supplies:      supplies,
		visits:        visits,
		reporting:     reportingRepo,
		reviews:       reviews,
		recomputer:    recomputer,
		sync:          sync,
		logger:        logger,
	}
}

// Create opens an amendment: clones the intervention into a draft shadow
// copy, records the identity map, and marks the original as in amendment.
func (e *Engine) Create(ctx context.Context, tenantID, interventionID string, req models.CreateAmendmentRequest) (*models.InterventionAmendment, error) {
	ctx, span := tracing.StartSpan(ctx, "amendments.Engine.Create")
	defer span.End()

	ctxTx, tx, err := e.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create amendment")
	}
	defer tx.Rollback(ctxTx)

	original, err := e.interventions.GetByIDForUpdate(ctxTx, tenantID, interventionID)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "intervention not found")
	}
	if !amendableStatuses[original.Status] {
		return nil, validation.New("intervention cannot be amended").
			Addf("status", "amendments are not allowed in status %s", original.Status)
	}
	if req.Kind == models.AmendmentKindContingency && !original.ContingencyPD {
		return nil, validation.New("intervention cannot be amended").
			Add("kind", "contingency amendments require a contingency document")
	}

	existing, err := e.amendments.ListByIntervention(ctxTx, tenantID, interventionID)
	if err != nil {
		return nil, err
	}
	number := 1
	for _, amd := range existing {
		if amd.Kind == req.Kind {
			number++
		}
	}

	relatedMap := models.RelatedObjectsMap{}
	shadow, err := e.cloneIntervention(ctxTx, tenantID, original, relatedMap)
	if err != nil {
		return nil, err
	}

	amd := &models.InterventionAmendment{
		ID:                    uuid.New().String(),
		TenantID:              tenantID,
		InterventionID:        interventionID,
		Kind:                  req.Kind,
		Types:                 models.StringList(req.Types),
		OtherDescription:      req.OtherDescription,
		Number:                number,
		IsActive:              true,
		AmendedInterventionID: &shadow.ID,
		RelatedObjects:        database.NewJSONB(relatedMap),
	}
	if err := e.amendments.Create(ctxTx, tenantID, amd); err != nil {
		return nil, err
	}

	original.InAmendment = true
	if err := e.interventions.Update(ctxTx, tenantID, original); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create amendment")
	}
	return amd, nil
}

// cloneIntervention copies the document and every owned relation into a new
// draft shadow, recording original → shadow identity pairs as it goes.
func (e *Engine) cloneIntervention(ctx context.Context, tenantID string, original *models.Intervention, relatedMap models.RelatedObjectsMap) (*models.Intervention, error) {
	shadow := *original
	shadow.ID = uuid.New().String()
	shadow.Title = models.AmendedTitlePrefix + original.Title
	shadow.Status = models.InterventionStatusDraft
	shadow.InAmendment = true
	shadow.UnicefCourt = true
	shadow.UnicefAccepted = false
	shadow.PartnerAccepted = false
	shadow.DateSentToPartner = nil

	if err := e.interventions.Create(ctx, tenantID, &shadow); err != nil {
		return nil, err
	}

	frameMap, err := e.cloneTimeFrames(ctx, tenantID, original.ID, shadow.ID)
	if err != nil {
		return nil, err
	}
	if err := e.cloneResultsTree(ctx, tenantID, original.ID, shadow.ID, frameMap, relatedMap); err != nil {
		return nil, err
	}
	if err := e.cloneSupplyItems(ctx, tenantID, original.ID, shadow.ID, relatedMap); err != nil {
		return nil, err
	}
	if err := e.clonePlannedVisits(ctx, tenantID, original.ID, shadow.ID, relatedMap); err != nil {
		return nil, err
	}
	if err := e.reporting.CopyToIntervention(ctx, tenantID, original.ID, shadow.ID); err != nil {
		return nil, err
	}
	if err := e.cloneBudget(ctx, tenantID, original.ID, shadow.ID); err != nil {
		return nil, err
	}
	return &shadow, nil
}

// cloneTimeFrames copies the quarter grid and returns original frame id →
// shadow frame id.
func (e *Engine) cloneTimeFrames(ctx context.Context, tenantID, fromID, toID string) (map[string]string, error) {
	frames, err := e.interventions.GetTimeFrames(ctx, tenantID, fromID)
	if err != nil {
		return nil, err
	}
	copies := make([]models.TimeFrame, len(frames))
	frameMap := make(map[string]string, len(frames))
	for i, frame := range frames {
		copies[i] = models.TimeFrame{
			ID:             uuid.New().String(),
			TenantID:       tenantID,
			InterventionID: toID,
			Quarter:        frame.Quarter,
			StartDate:      frame.StartDate,
			EndDate:        frame.EndDate,
		}
		frameMap[frame.ID] = copies[i].ID
	}
	if err := e.interventions.ReplaceTimeFrames(ctx, tenantID, toID, copies); err != nil {
		return nil, err
	}
	return frameMap, nil
}

func (e *Engine) cloneResultsTree(ctx context.Context, tenantID, fromID, toID string, frameMap map[string]string, relatedMap models.RelatedObjectsMap) error {
	tree, err := e.results.GetTree(ctx, tenantID, fromID)
	if err != nil {
		return err
	}
	for _, link := range tree {
		linkCopy := models.ResultLink{
			ID:             uuid.New().String(),
			TenantID:       tenantID,
			InterventionID: toID,
			CPOutputID:     link.CPOutputID,
			Code:           link.Code,
		}
		if err := e.results.CreateResultLink(ctx, tenantID, &linkCopy); err != nil {
			return err
		}
		relatedMap.Put(KindResultLink, link.ID, linkCopy.ID)

		for _, lr := range link.LowerResults {
			lrCopy := models.LowerResult{
				ID:           uuid.New().String(),
				TenantID:     tenantID,
				ResultLinkID: linkCopy.ID,
				Name:         lr.Name,
				Code:         lr.Code,
			}
			if err := e.results.CreateLowerResult(ctx, tenantID, &lrCopy); err != nil {
				return err
			}
			relatedMap.Put(KindLowerResult, lr.ID, lrCopy.ID)

			for _, activity := range lr.Activities {
				activityCopy := models.Activity{
					ID:             uuid.New().String(),
					TenantID:       tenantID,
					LowerResultID:  lrCopy.ID,
					Name:           activity.Name,
					Code:           activity.Code,
					ContextDetails: activity.ContextDetails,
					UnicefCash:     activity.UnicefCash,
					CSOCash:        activity.CSOCash,
					IsActive:       activity.IsActive,
				}
				if err := e.results.CreateActivity(ctx, tenantID, &activityCopy); err != nil {
					return err
				}
				relatedMap.Put(KindActivity, activity.ID, activityCopy.ID)

				if len(activity.TimeFrames) > 0 {
					frames := make([]string, 0, len(activity.TimeFrames))
					for _, frameID := range activity.TimeFrames {
						if mapped, ok := frameMap[frameID]; ok {
							frames = append(frames, mapped)
						}
					}
					if err := e.results.SetActivityTimeFrames(ctx, tenantID, activityCopy.ID, frames); err != nil {
						return err
					}
				}

				for _, item := range activity.Items {
					itemCopy := item
					itemCopy.ID = uuid.New().String()
					itemCopy.ActivityID = activityCopy.ID
					if err := e.results.CreateActivityItem(ctx, tenantID, &itemCopy); err != nil {
						return err
					}
					relatedMap.Put(KindActivityItem, item.ID, itemCopy.ID)
				}
			}
		}
	}
	return nil
}

func (e *Engine) cloneSupplyItems(ctx context.Context, tenantID, fromID, toID string, relatedMap models.RelatedObjectsMap) error {
	items, err := e.supplies.ListByIntervention(ctx, tenantID, fromID)
	if err != nil {
		return err
	}
	for _, item := range items {
		itemCopy := item
		itemCopy.ID = uuid.New().String()
		itemCopy.InterventionID = toID
		if err := e.supplies.Create(ctx, tenantID, &itemCopy); err != nil {
			return err
		}
		relatedMap.Put(KindSupplyItem, item.ID, itemCopy.ID)
	}
	return nil
}

func (e *Engine) clonePlannedVisits(ctx context.Context, tenantID, fromID, toID string, relatedMap models.RelatedObjectsMap) error {
	visits, err := e.visits.ListByIntervention(ctx, tenantID, fromID)
	if err != nil {
		return err
	}
	for _, visit := range visits {
		visitCopy := visit
		visitCopy.ID = ""
		visitCopy.InterventionID = toID
		if err := e.visits.Upsert(ctx, tenantID, &visitCopy); err != nil {
			return err
		}
		relatedMap.Put(KindPlannedVisit, visit.ID, visitCopy.ID)
	}
	return nil
}

func (e *Engine) cloneBudget(ctx context.Context, tenantID, fromID, toID string) error {
	original, err := e.interventions.GetBudget(ctx, tenantID, fromID)
	if err != nil {
		return err
	}
	if original == nil {
		return nil
	}
	budgetCopy := *original
	budgetCopy.ID = uuid.New().String()
	budgetCopy.InterventionID = toID
	if err := e.interventions.UpsertBudget(ctx, tenantID, &budgetCopy); err != nil {
		return err
	}
	_, err = e.recomputer.Recompute(ctx, tenantID, toID)
	return err
}

// Merge folds an accepted shadow copy back into the original in one
// transaction: survivors keep their original identity, additions are created
// under the original, removals are soft deleted, codes are renumbered, and
// the document gains an amendment suffix on its reference.
func (e *Engine) Merge(ctx context.Context, tenantID, amendmentID string, req models.MergeAmendmentRequest) (*models.Intervention, error) {
	ctx, span := tracing.StartSpan(ctx, "amendments.Engine.Merge")
	defer span.End()

	ctxTx, tx, err := e.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to merge amendment")
	}
	defer tx.Rollback(ctxTx)

	amd, err := e.amendments.GetByID(ctxTx, tenantID, amendmentID)
	if err != nil {
		return nil, err
	}
	if amd == nil || !amd.IsActive || amd.AmendedInterventionID == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "active amendment not found")
	}

	shadow, err := e.interventions.GetByIDForUpdate(ctxTx, tenantID, *amd.AmendedInterventionID)
	if err != nil {
		return nil, err
	}
	original, err := e.interventions.GetByIDForUpdate(ctxTx, tenantID, amd.InterventionID)
	if err != nil {
		return nil, err
	}
	if shadow == nil || original == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "intervention not found")
	}

	verr := validation.New("amendment cannot be merged")
	if !shadow.UnicefAccepted || !shadow.PartnerAccepted {
		verr.AddNonField("both parties must accept the amended document")
	}
	if req.SignedDate == nil {
		verr.Add("signed_date", "required")
	}
	if req.SignedAmendmentID == nil {
		verr.Add("signed_amendment_id", "the signed amendment document is required")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	relatedMap := amd.RelatedObjects.GetValue()

	wasEnded := original.Status == models.InterventionStatusEnded
	copyScalars(original, shadow)

	frameMap, err := e.mergeTimeFrames(ctxTx, tenantID, shadow.ID, original.ID)
	if err != nil {
		return nil, err
	}
	if err := e.mergeResultsTree(ctxTx, tenantID, shadow.ID, original.ID, frameMap, relatedMap); err != nil {
		return nil, err
	}
	if err := e.mergeSupplyItems(ctxTx, tenantID, shadow.ID, original.ID, relatedMap); err != nil {
		return nil, err
	}
	if err := e.mergePlannedVisits(ctxTx, tenantID, shadow.ID, original.ID, relatedMap); err != nil {
		return nil, err
	}
	if err := e.mergeReporting(ctxTx, tenantID, shadow.ID, original.ID); err != nil {
		return nil, err
	}
	if err := e.reviews.MoveToIntervention(ctxTx, tenantID, shadow.ID, original.ID); err != nil {
		return nil, err
	}
	if err := e.renumberCodes(ctxTx, tenantID, original.ID); err != nil {
		return nil, err
	}
	if err := e.mergeBudget(ctxTx, tenantID, shadow.ID, original.ID); err != nil {
		return nil, err
	}

	// A no-cost extension can pull an ended document back into execution.
	if wasEnded && withinExecutionWindow(original.Start, original.End, time.Now().UTC().Truncate(24*time.Hour)) {
		original.Status = models.InterventionStatusActive
	}

	signedCount, err := e.countSigned(ctxTx, tenantID, original.ID)
	if err != nil {
		return nil, err
	}
	original.ReferenceNumber = refnum.AmendmentSuffix(original.BaseNumber(), signedCount+1)

	kindSigned, err := e.amendments.CountSigned(ctxTx, tenantID, original.ID, amd.Kind)
	if err != nil {
		return nil, err
	}
	amd.Number = kindSigned + 1
	amd.IsActive = false
	amd.SignedDate = req.SignedDate
	amd.SignedAmendmentID = req.SignedAmendmentID
	amd.SignedByUnicefDate = shadow.SignedByUnicefDate
	amd.SignedByPartnerDate = shadow.SignedByPartnerDate
	amd.UnicefSignatoryID = shadow.UnicefSignatoryID
	amd.PartnerSignatoryID = shadow.PartnerSignatoryID
	amd.AmendedInterventionID = nil
	if err := e.amendments.Update(ctxTx, tenantID, amd); err != nil {
		return nil, err
	}

	if err := e.interventions.SoftDelete(ctxTx, tenantID, shadow.ID); err != nil {
		return nil, err
	}

	remaining, err := e.amendments.ListActiveByIntervention(ctxTx, tenantID, original.ID)
	if err != nil {
		return nil, err
	}
	if err := e.renumberActive(ctxTx, tenantID, original.ID, remaining); err != nil {
		return nil, err
	}
	original.InAmendment = len(remaining) > 0

	if err := e.interventions.Update(ctxTx, tenantID, original); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctxTx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to merge amendment")
	}

	if e.sync != nil && (original.Status == models.InterventionStatusSigned || original.Status == models.InterventionStatusActive) {
		if err := e.sync.Enqueue(ctx, tenantID, original.ID); err != nil {
			e.logger.WithContext(ctx).WithError(err).WithField("intervention_id", original.ID).Error("Failed to enqueue downstream sync")
		}
	}
	return original, nil
}

// Delete abandons an active amendment: the shadow is discarded and the
// original keeps its state.
func (e *Engine) Delete(ctx context.Context, tenantID, amendmentID string) error {
	ctx, span := tracing.StartSpan(ctx, "amendments.Engine.Delete")
	defer span.End()

	ctxTx, tx, err := e.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete amendment")
	}
	defer tx.Rollback(ctxTx)

	amd, err := e.amendments.GetByID(ctxTx, tenantID, amendmentID)
	if err != nil {
		return err
	}
	if amd == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "amendment not found")
	}
	if !amd.IsActive {
		return validation.NonField("a signed amendment cannot be deleted")
	}

	if amd.AmendedInterventionID != nil {
		if err := e.interventions.SoftDelete(ctxTx, tenantID, *amd.AmendedInterventionID); err != nil {
			return err
		}
	}
	if err := e.amendments.SoftDelete(ctxTx, tenantID, amendmentID); err != nil {
		return err
	}

	remaining, err := e.amendments.ListActiveByIntervention(ctxTx, tenantID, amd.InterventionID)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		if err := e.clearInAmendment(ctxTx, tenantID, amd.InterventionID); err != nil {
			return err
		}
	}
	if err := e.renumberActive(ctxTx, tenantID, amd.InterventionID, remaining); err != nil {
		return err
	}
	if err := tx.Commit(ctxTx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete amendment")
	}
	return nil
}

func (e *Engine) clearInAmendment(ctx context.Context, tenantID, interventionID string) error {
	original, err := e.interventions.GetByIDForUpdate(ctx, tenantID, interventionID)
	if err != nil {
		return err
	}
	if original == nil {
		return nil
	}
	original.InAmendment = false
	return e.interventions.Update(ctx, tenantID, original)
}

// countSigned counts merged amendments across both kinds.
func (e *Engine) countSigned(ctx context.Context, tenantID, interventionID string) (int, error) {
	normal, err := e.amendments.CountSigned(ctx, tenantID, interventionID, models.AmendmentKindNormal)
	if err != nil {
		return 0, err
	}
	contingency, err := e.amendments.CountSigned(ctx, tenantID, interventionID, models.AmendmentKindContingency)
	if err != nil {
		return 0, err
	}
	return normal + contingency, nil
}

// renumberActive reassigns display numbers to the still-open amendments so
// each kind stays densely numbered after its signed predecessors.
func (e *Engine) renumberActive(ctx context.Context, tenantID, interventionID string, active []models.InterventionAmendment) error {
	byKind := map[string]int{}
	for kind := range map[string]bool{models.AmendmentKindNormal: true, models.AmendmentKindContingency: true} {
		signed, err := e.amendments.CountSigned(ctx, tenantID, interventionID, kind)
		if err != nil {
			return err
		}
		byKind[kind] = signed
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].ID < active[j].ID
		}
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	for i := range active {
		amd := &active[i]
		byKind[amd.Kind]++
		if amd.Number == byKind[amd.Kind] {
			continue
		}
		amd.Number = byKind[amd.Kind]
		if err := e.amendments.Update(ctx, tenantID, amd); err != nil {
			return err
		}
	}
	return nil
}

// copyScalars applies the shadow's document content onto the original,
// stripping the shadow title marker. The signature set travels with the
// content: the amended document was re-signed on the shadow.
func copyScalars(original, shadow *models.Intervention) {
	original.Title = strings.TrimPrefix(shadow.Title, models.AmendedTitlePrefix)
	original.Start = shadow.Start
	original.End = shadow.End
	original.ReviewType = shadow.ReviewType
	original.SignedByUnicefDate = shadow.SignedByUnicefDate
	original.SignedByPartnerDate = shadow.SignedByPartnerDate
	original.UnicefSignatoryID = shadow.UnicefSignatoryID
	original.PartnerSignatoryID = shadow.PartnerSignatoryID
	original.SignedPDAttachmentID = shadow.SignedPDAttachmentID
	original.ContingencyPD = shadow.ContingencyPD
	original.CashTransferModalities = shadow.CashTransferModalities
	original.DocumentCurrency = shadow.DocumentCurrency
	original.OtherInfo = shadow.OtherInfo
	original.CapacityDevelopment = shadow.CapacityDevelopment
	original.ImplementationStrategy = shadow.ImplementationStrategy
	original.IPProgramContribution = shadow.IPProgramContribution
	original.PopulationFocus = shadow.PopulationFocus
	original.CountryProgrammes = shadow.CountryProgrammes
	original.Sections = shadow.Sections
	original.Offices = shadow.Offices
	original.FlatLocations = shadow.FlatLocations
	original.UnicefFocalPoints = shadow.UnicefFocalPoints
	original.PartnerFocalPoints = shadow.PartnerFocalPoints
}

// withinExecutionWindow reports whether today falls inside [start, end],
// inclusive on both edges. A document whose window has not opened yet, or
// whose dates are unset, stays in its current status.
func withinExecutionWindow(start, end *time.Time, today time.Time) bool {
	if start == nil || end == nil {
		return false
	}
	return !start.Truncate(24*time.Hour).After(today) && !end.Truncate(24*time.Hour).Before(today)
}

func (e *Engine) mergeTimeFrames(ctx context.Context, tenantID, shadowID, originalID string) (map[string]string, error) {
	shadowFrames, err := e.interventions.GetTimeFrames(ctx, tenantID, shadowID)
	if err != nil {
		return nil, err
	}
	frames := make([]models.TimeFrame, len(shadowFrames))
	frameMap := make(map[string]string, len(shadowFrames))
	for i, frame := range shadowFrames {
		frames[i] = models.TimeFrame{
			ID:             uuid.New().String(),
			TenantID:       tenantID,
			InterventionID: originalID,
			Quarter:        frame.Quarter,
			StartDate:      frame.StartDate,
			EndDate:        frame.EndDate,
		}
		frameMap[frame.ID] = frames[i].ID
	}
	if err := e.interventions.ReplaceTimeFrames(ctx, tenantID, originalID, frames); err != nil {
		return nil, err
	}
	return frameMap, nil
}

func (e *Engine) mergeResultsTree(ctx context.Context, tenantID, shadowID, originalID string, frameMap map[string]string, relatedMap models.RelatedObjectsMap) error {
	shadowTree, err := e.results.GetTree(ctx, tenantID, shadowID)
	if err != nil {
		return err
	}
	originalTree, err := e.results.GetTree(ctx, tenantID, originalID)
	if err != nil {
		return err
	}

	survivingLinks := map[string]bool{}
	survivingLowerResults := map[string]bool{}
	survivingActivities := map[string]bool{}
	survivingItems := map[string]bool{}

	for _, shadowLink := range shadowTree {
		linkID, survived := relatedMap.OriginalID(KindResultLink, shadowLink.ID)
		if survived {
			survivingLinks[linkID] = true
			updated := shadowLink
			updated.ID = linkID
			updated.InterventionID = originalID
			if err := e.results.UpdateResultLink(ctx, tenantID, &updated); err != nil {
				return err
			}
		} else {
			created := models.ResultLink{
				ID:             uuid.New().String(),
				TenantID:       tenantID,
				InterventionID: originalID,
				CPOutputID:     shadowLink.CPOutputID,
				Code:           shadowLink.Code,
			}
			if err := e.results.CreateResultLink(ctx, tenantID, &created); err != nil {
				return err
			}
			linkID = created.ID
		}

		for _, shadowLR := range shadowLink.LowerResults {
			lrID, lrSurvived := relatedMap.OriginalID(KindLowerResult, shadowLR.ID)
			if lrSurvived {
				survivingLowerResults[lrID] = true
				updated := shadowLR
				updated.ID = lrID
				updated.ResultLinkID = linkID
				if err := e.results.UpdateLowerResult(ctx, tenantID, &updated); err != nil {
					return err
				}
			} else {
				created := models.LowerResult{
					ID:           uuid.New().String(),
					TenantID:     tenantID,
					ResultLinkID: linkID,
					Name:         shadowLR.Name,
					Code:         shadowLR.Code,
				}
				if err := e.results.CreateLowerResult(ctx, tenantID, &created); err != nil {
					return err
				}
				lrID = created.ID
			}

			for _, shadowActivity := range shadowLR.Activities {
				activityID, actSurvived := relatedMap.OriginalID(KindActivity, shadowActivity.ID)
				if actSurvived {
					survivingActivities[activityID] = true
					updated := shadowActivity
					updated.ID = activityID
					updated.LowerResultID = lrID
					if err := e.results.UpdateActivity(ctx, tenantID, &updated); err != nil {
						return err
					}
				} else {
					created := models.Activity{
						ID:             uuid.New().String(),
						TenantID:       tenantID,
						LowerResultID:  lrID,
						Name:           shadowActivity.Name,
						Code:           shadowActivity.Code,
						ContextDetails: shadowActivity.ContextDetails,
						UnicefCash:     shadowActivity.UnicefCash,
						CSOCash:        shadowActivity.CSOCash,
						IsActive:       shadowActivity.IsActive,
					}
					if err := e.results.CreateActivity(ctx, tenantID, &created); err != nil {
						return err
					}
					activityID = created.ID
				}

				frames := make([]string, 0, len(shadowActivity.TimeFrames))
				for _, frameID := range shadowActivity.TimeFrames {
					if mapped, ok := frameMap[frameID]; ok {
						frames = append(frames, mapped)
					}
				}
				if err := e.results.SetActivityTimeFrames(ctx, tenantID, activityID, frames); err != nil {
					return err
				}

				for _, shadowItem := range shadowActivity.Items {
					itemID, itemSurvived := relatedMap.OriginalID(KindActivityItem, shadowItem.ID)
					if itemSurvived {
						survivingItems[itemID] = true
						updated := shadowItem
						updated.ID = itemID
						updated.ActivityID = activityID
						if err := e.results.UpdateActivityItem(ctx, tenantID, &updated); err != nil {
							return err
						}
					} else {
						created := shadowItem
						created.ID = uuid.New().String()
						created.ActivityID = activityID
						if err := e.results.CreateActivityItem(ctx, tenantID, &created); err != nil {
							return err
						}
					}
				}
			}
		}
	}

	// Anything in the original tree the shadow no longer carries was removed
	// during the amendment.
	for _, link := range originalTree {
		for _, lr := range link.LowerResults {
			for _, activity := range lr.Activities {
				for _, item := range activity.Items {
					if !survivingItems[item.ID] {
						if err := e.results.SoftDelete(ctx, tenantID, "activity_items", item.ID); err != nil {
							return err
						}
					}
				}
				if !survivingActivities[activity.ID] {
					if err := e.results.SoftDelete(ctx, tenantID, "activities", activity.ID); err != nil {
						return err
					}
				}
			}
			if !survivingLowerResults[lr.ID] {
				if err := e.results.SoftDelete(ctx, tenantID, "lower_results", lr.ID); err != nil {
					return err
				}
			}
		}
		if !survivingLinks[link.ID] {
			if err := e.results.SoftDelete(ctx, tenantID, "result_links", link.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) mergeSupplyItems(ctx context.Context, tenantID, shadowID, originalID string, relatedMap models.RelatedObjectsMap) error {
	shadowItems, err := e.supplies.ListByIntervention(ctx, tenantID, shadowID)
	if err != nil {
		return err
	}
	originalItems, err := e.supplies.ListByIntervention(ctx, tenantID, originalID)
	if err != nil {
		return err
	}

	surviving := map[string]bool{}
	for _, shadowItem := range shadowItems {
		itemID, survived := relatedMap.OriginalID(KindSupplyItem, shadowItem.ID)
		if survived {
			surviving[itemID] = true
			updated := shadowItem
			updated.ID = itemID
			updated.InterventionID = originalID
			if err := e.supplies.Update(ctx, tenantID, &updated); err != nil {
				return err
			}
			continue
		}
		created := shadowItem
		created.ID = uuid.New().String()
		created.InterventionID = originalID
		if err := e.supplies.Create(ctx, tenantID, &created); err != nil {
			return err
		}
	}
	for _, item := range originalItems {
		if !surviving[item.ID] {
			if err := e.supplies.SoftDelete(ctx, tenantID, item.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) mergePlannedVisits(ctx context.Context, tenantID, shadowID, originalID string, relatedMap models.RelatedObjectsMap) error {
	shadowVisits, err := e.visits.ListByIntervention(ctx, tenantID, shadowID)
	if err != nil {
		return err
	}
	originalVisits, err := e.visits.ListByIntervention(ctx, tenantID, originalID)
	if err != nil {
		return err
	}

	years := map[int]bool{}
	for _, visit := range shadowVisits {
		merged := visit
		merged.ID = ""
		merged.InterventionID = originalID
		if err := e.visits.Upsert(ctx, tenantID, &merged); err != nil {
			return err
		}
		years[visit.Year] = true
	}
	for _, visit := range originalVisits {
		if !years[visit.Year] {
			if err := e.visits.SoftDelete(ctx, tenantID, visit.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) mergeReporting(ctx context.Context, tenantID, shadowID, originalID string) error {
	shadowReqs, err := e.reporting.List(ctx, tenantID, shadowID, "")
	if err != nil {
		return err
	}
	originalReqs, err := e.reporting.List(ctx, tenantID, originalID, "")
	if err != nil {
		return err
	}

	byType := map[string][]models.ReportingWindow{}
	for _, req := range shadowReqs {
		byType[req.ReportType] = append(byType[req.ReportType], models.ReportingWindow{
			StartDate: req.StartDate,
			EndDate:   req.EndDate,
			DueDate:   req.DueDate,
		})
	}
	for _, req := range originalReqs {
		if _, ok := byType[req.ReportType]; !ok {
			byType[req.ReportType] = nil
		}
	}
	for reportType, windows := range byType {
		if _, err := e.reporting.Replace(ctx, tenantID, originalID, reportType, windows); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) mergeBudget(ctx context.Context, tenantID, shadowID, originalID string) error {
	shadowBudget, err := e.interventions.GetBudget(ctx, tenantID, shadowID)
	if err != nil {
		return err
	}
	if shadowBudget != nil {
		originalBudget, err := e.interventions.GetBudget(ctx, tenantID, originalID)
		if err != nil {
			return err
		}
		if originalBudget == nil {
			originalBudget = &models.InterventionBudget{
				ID:             uuid.New().String(),
				TenantID:       tenantID,
				InterventionID: originalID,
			}
		}
		originalBudget.Currency = shadowBudget.Currency
		originalBudget.TotalHQCashLocal = shadowBudget.TotalHQCashLocal
		if err := e.interventions.UpsertBudget(ctx, tenantID, originalBudget); err != nil {
			return err
		}
	}
	_, err = e.recomputer.Recompute(ctx, tenantID, originalID)
	return err
}

// renumberTree reassigns the dotted code hierarchy in memory, ordering links
// by creation time with the id as tiebreak. Links without a cp output hold
// management lines and keep their codes out of the sequence.
func renumberTree(tree []models.ResultLink) {
	sort.SliceStable(tree, func(i, j int) bool {
		if tree[i].CreatedAt.Equal(tree[j].CreatedAt) {
			return tree[i].ID < tree[j].ID
		}
		return tree[i].CreatedAt.Before(tree[j].CreatedAt)
	})

	linkSeq := 0
	for li := range tree {
		link := &tree[li]
		if link.CPOutputID == nil {
			continue
		}
		linkSeq++
		link.Code = strconv.Itoa(linkSeq)
		for lri := range link.LowerResults {
			lr := &link.LowerResults[lri]
			lr.Code = link.Code + "." + strconv.Itoa(lri+1)
			for ai := range lr.Activities {
				activity := &lr.Activities[ai]
				activity.Code = lr.Code + "." + strconv.Itoa(ai+1)
				for ii := range activity.Items {
					activity.Items[ii].Code = activity.Code + "." + strconv.Itoa(ii+1)
				}
			}
		}
	}
}

// renumberCodes recomputes the dotted codes for the merged tree and persists
// only the nodes whose code moved.
func (e *Engine) renumberCodes(ctx context.Context, tenantID, interventionID string) error {
	tree, err := e.results.GetTree(ctx, tenantID, interventionID)
	if err != nil {
		return err
	}

	before := map[string]string{}
	for _, link := range tree {
		before[link.ID] = link.Code
		for _, lr := range link.LowerResults {
			before[lr.ID] = lr.Code
			for _, activity := range lr.Activities {
				before[activity.ID] = activity.Code
				for _, item := range activity.Items {
					before[item.ID] = item.Code
				}
			}
		}
	}

	renumberTree(tree)

	for li := range tree {
		link := &tree[li]
		if link.Code != before[link.ID] {
			if err := e.results.UpdateResultLink(ctx, tenantID, link); err != nil {
				return err
			}
		}
		for lri := range link.LowerResults {
			lr := &link.LowerResults[lri]
			if lr.Code != before[lr.ID] {
				if err := e.results.UpdateLowerResult(ctx, tenantID, lr); err != nil {
					return err
				}
			}
			for ai := range lr.Activities {
				activity := &lr.Activities[ai]
				if activity.Code != before[activity.ID] {
					if err := e.results.UpdateActivity(ctx, tenantID, activity); err != nil {
						return err
					}
				}
				for ii := range activity.Items {
					item := &activity.Items[ii]
					if item.Code != before[item.ID] {
						if err := e.results.UpdateActivityItem(ctx, tenantID, item); err != nil {
							return err
						}
					}
				}
			}
		}
	}
	return nil
}
