package sync

import (
	"context"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/internal/repositories/agreement"
	"github.com/Ramsey-B/fern/internal/repositories/intervention"
	"github.com/Ramsey-B/fern/internal/repositories/partner"
	"github.com/Ramsey-B/fern/internal/repositories/reporting"
	"github.com/Ramsey-B/fern/internal/repositories/results"
	"github.com/Ramsey-B/fern/internal/repositories/syncjournal"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const pollInterval = 30 * time.Second

// Publisher is the producer surface the worker needs.
type Publisher interface {
	Publish(ctx context.Context, doc *Document) error
}

// Worker drains the sync journal: it assembles the wire document for each
// due attempt and publishes it downstream. A failed attempt is rescheduled
// with backoff until the attempt budget runs out; sync failures never touch
// the document itself.
type Worker struct {
	journal       *syncjournal.Repository
	interventions *intervention.Repository
	agreements    *agreement.Repository
	partners      *partner.Repository
	results       *results.Repository
	reporting     *reporting.Repository
	publisher     Publisher
	businessArea  string
	maxAttempts   int
	batchSize     int
	logger        ectologger.Logger
}

// NewWorker creates a new sync worker
func NewWorker(
	journal *syncjournal.Repository,
	interventions *intervention.Repository,
	agreements *agreement.Repository,
	partners *partner.Repository,
	resultsRepo *results.Repository,
	reportingRepo *reporting.Repository,
	publisher Publisher,
	businessArea string,
	maxAttempts int,
	batchSize int,
	logger ectologger.Logger,
) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Worker{
		journal:       journal,
		interventions: interventions,
		agreements:    agreements,
		partners:      partners,
		results:       resultsRepo,
		reporting:     reportingRepo,
		publisher:     publisher,
		businessArea:  businessArea,
		maxAttempts:   maxAttempts,
		batchSize:     batchSize,
		logger:        logger,
	}
}

// Enqueue journals a pending delivery for the intervention. Called after the
// owning transaction commits.
func (w *Worker) Enqueue(ctx context.Context, tenantID, interventionID string) error {
	ctx, span := tracing.StartSpan(ctx, "sync.Worker.Enqueue")
	defer span.End()

	now := time.Now().UTC()
	attempt := &models.SyncAttempt{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		InterventionID: interventionID,
		Attempt:        0,
		Status:         models.SyncStatusPending,
		NextAttemptAt:  &now,
	}
	return w.journal.Create(ctx, tenantID, attempt)
}

// Run polls the journal until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	w.logger.WithContext(ctx).Info("Sync worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.WithContext(ctx).Info("Sync worker stopped")
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	due, err := w.journal.ListDue(ctx, w.batchSize)
	if err != nil {
		w.logger.WithContext(ctx).WithError(err).Error("Failed to list due sync attempts")
		return
	}
	for i := range due {
		w.process(ctx, &due[i])
	}
}

func (w *Worker) process(ctx context.Context, attempt *models.SyncAttempt) {
	ctx, span := tracing.StartSpan(ctx, "sync.Worker.process")
	defer span.End()

	attempt.Attempt++
	err := w.deliver(ctx, attempt.TenantID, attempt.InterventionID)
	if err == nil {
		attempt.Status = models.SyncStatusDelivered
		attempt.Error = nil
		attempt.NextAttemptAt = nil
	} else {
		msg := err.Error()
		attempt.Error = &msg
		if attempt.Attempt >= w.maxAttempts {
			attempt.Status = models.SyncStatusFailed
			attempt.NextAttemptAt = nil
			w.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"intervention_id": attempt.InterventionID,
				"attempt":         attempt.Attempt,
			}).Error("Sync attempt budget exhausted")
		} else {
			next := time.Now().UTC().Add(backoff(attempt.Attempt))
			attempt.Status = models.SyncStatusPending
			attempt.NextAttemptAt = &next
			w.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"intervention_id": attempt.InterventionID,
				"attempt":         attempt.Attempt,
				"next_attempt_at": next,
			}).Warn("Sync attempt failed, rescheduling")
		}
	}
	metrics.RecordSyncAttempt(attempt.TenantID, attempt.Status)

	if err := w.journal.Update(ctx, attempt.TenantID, attempt); err != nil {
		w.logger.WithContext(ctx).WithError(err).WithField("attempt_id", attempt.ID).Error("Failed to update sync attempt")
	}
}

func (w *Worker) deliver(ctx context.Context, tenantID, interventionID string) error {
	doc, err := w.buildDocument(ctx, tenantID, interventionID)
	if err != nil {
		return err
	}
	return w.publisher.Publish(ctx, doc)
}

func (w *Worker) buildDocument(ctx context.Context, tenantID, interventionID string) (*Document, error) {
	i, err := w.interventions.GetByID(ctx, tenantID, interventionID)
	if err != nil {
		return nil, err
	}
	if i == nil {
		return nil, errNotFound("intervention", interventionID)
	}
	a, err := w.agreements.GetByID(ctx, tenantID, i.AgreementID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, errNotFound("agreement", i.AgreementID)
	}
	p, err := w.partners.GetByID(ctx, tenantID, a.PartnerID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errNotFound("partner", a.PartnerID)
	}
	tree, err := w.results.GetTree(ctx, tenantID, interventionID)
	if err != nil {
		return nil, err
	}
	windows, err := w.reporting.List(ctx, tenantID, interventionID, "")
	if err != nil {
		return nil, err
	}

	doc := &Document{
		BusinessAreaCode:        w.businessArea,
		TenantID:                tenantID,
		InterventionID:          i.ID,
		ReferenceNumber:         i.ReferenceNumber,
		Status:                  i.Status,
		DocumentType:            i.DocumentType,
		Title:                   i.Title,
		Start:                   i.Start,
		End:                     i.End,
		SignedByUnicefDate:      i.SignedByUnicefDate,
		SignedByPartnerDate:     i.SignedByPartnerDate,
		UnicefSignatoryID:       i.UnicefSignatoryID,
		PartnerSignatoryID:      i.PartnerSignatoryID,
		PartnerVendorNumber:     p.VendorNumber,
		PartnerName:             p.Name,
		AgreementReference:      a.ReferenceNumber,
		ReportingRequirements:   documentWindows(windows),
		UnicefFocalPointEmails:  i.UnicefFocalPoints,
		PartnerFocalPointEmails: i.PartnerFocalPoints,
		PublishedAt:             time.Now().UTC(),
	}

	budget, err := w.interventions.GetBudget(ctx, tenantID, interventionID)
	if err != nil {
		return nil, err
	}
	if budget != nil {
		doc.Currency = budget.Currency
		doc.BudgetTotal = budget.TotalLocal
		doc.UnicefCashTotal = budget.UnicefCashLocal
		doc.PartnerContribution = budget.TotalPartnerContribution
	}

	for _, link := range tree {
		result := DocumentResult{CPOutputID: link.CPOutputID}
		for _, lr := range link.LowerResults {
			if result.Name == "" {
				result.Name = lr.Code + " " + lr.Name
			}
			activities := ectolinq.Map(lr.Activities, func(activity models.Activity) DocumentActivity {
				return DocumentActivity{
					Name:       activity.Code + " " + activity.Name,
					UnicefCash: activity.UnicefCash,
					CSOCash:    activity.CSOCash,
					IsActive:   activity.IsActive,
				}
			})
			result.Activities = append(result.Activities, activities...)
		}
		doc.ResultLinks = append(doc.ResultLinks, result)
	}
	return doc, nil
}

func documentWindows(windows []models.ReportingRequirement) []DocumentWindow {
	return ectolinq.Map(windows, func(window models.ReportingRequirement) DocumentWindow {
		return DocumentWindow{
			ReportType: window.ReportType,
			StartDate:  window.StartDate,
			EndDate:    window.EndDate,
			DueDate:    window.DueDate,
		}
	})
}

// backoff doubles per attempt starting at one minute.
func backoff(attempt int) time.Duration {
	d := time.Minute
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

type notFoundError struct {
	entity string
	id     string
}

func (e notFoundError) Error() string {
	return e.entity + " " + e.id + " not found"
}

func errNotFound(entity, id string) error {
	return notFoundError{entity: entity, id: id}
}
