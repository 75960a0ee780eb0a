package refnum

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Entity types with independent sequence spaces.
const (
	EntityAgreement    = "agreement"
	EntityIntervention = "intervention"
)

// maxSequence is the highest two-digit sequence the reference format can
// carry.
const maxSequence = 99

// ErrSequenceExhausted is returned when a (tenant, entity, doc type, year)
// counter overflows the two-digit format.
var ErrSequenceExhausted = httperror.NewHTTPError(http.StatusConflict, "reference number sequence exhausted")

// Allocator hands out deterministic human-readable reference numbers.
// Allocation is serialized per (tenant, entity type, doc type, year) by a
// row-lock on the sequence counter, so it composes with any transaction the
// caller already holds.
type Allocator struct {
	db          database.DB
	logger      ectologger.Logger
	countryCode string
}

// NewAllocator creates a new reference number allocator
func NewAllocator(db database.DB, logger ectologger.Logger, countryCode string) *Allocator {
	return &Allocator{
		db:          db,
		logger:      logger,
		countryCode: countryCode,
	}
}

// TempRef builds the draft placeholder for an intervention.
func TempRef(interventionID string) string {
	return models.TempRefPrefix + interventionID
}

// AmendmentSuffix appends the two-digit merged-amendment suffix to a base
// reference.
func AmendmentSuffix(baseNumber string, mergedCount int) string {
	return fmt.Sprintf("%s-%02d", baseNumber, mergedCount)
}

// NextAgreementNumber allocates the next agreement reference for the year,
// e.g. "XX/PCA202401".
func (a *Allocator) NextAgreementNumber(ctx context.Context, tenantID, agreementType string, year int) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "refnum.Allocator.NextAgreementNumber")
	defer span.End()

	// Agreement sequences count all agreements in the year regardless of
	// type, so the doc type key is left empty.
	seq, err := a.nextSequence(ctx, tenantID, EntityAgreement, "", year)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s%d%02d", a.countryCode, agreementType, year, seq), nil
}

// NextInterventionNumber allocates the next intervention reference under an
// agreement, e.g. "XX/PCA202401/PD202401".
func (a *Allocator) NextInterventionNumber(ctx context.Context, tenantID, agreementBaseNumber, documentType string, year int) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "refnum.Allocator.NextInterventionNumber")
	defer span.End()

	seq, err := a.nextSequence(ctx, tenantID, EntityIntervention, documentType, year)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s%d%02d", agreementBaseNumber, documentType, year, seq), nil
}

// nextSequence increments and returns the counter under a row-lock. The first
// allocation for a key seeds the row.
func (a *Allocator) nextSequence(ctx context.Context, tenantID, entityType, docType string, year int) (int, error) {
	ctxTx, tx, err := a.db.GetTx(ctx, nil)
	if err != nil {
		a.logger.WithContext(ctx).WithError(err).Error("Failed to begin sequence transaction")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to allocate reference number")
	}
	defer tx.Rollback(ctxTx)

	ib := database.NewInsertBuilder()
	ib.InsertInto("ref_sequences")
	ib.Cols("tenant_id", "entity_type", "doc_type", "year", "next")
	ib.Values(tenantID, entityType, docType, year, 1)
	ib.OnConflictDoNothing()
	query, args := ib.Build()
	if _, err := a.db.ExecContext(ctxTx, query, args...); err != nil {
		a.logger.WithContext(ctx).WithError(err).Error("Failed to seed sequence row")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to allocate reference number")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("next")
	sb.From("ref_sequences")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("entity_type", entityType),
		sb.Equal("doc_type", docType),
		sb.Equal("year", year),
	)
	sb.SQL("FOR UPDATE")

	query, args = sb.Build()
	var seq int
	if err := a.db.GetContext(ctxTx, &seq, query, args...); err != nil {
		a.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity_type": entityType,
			"doc_type":    docType,
			"year":        year,
		}).Error("Failed to lock sequence row")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to allocate reference number")
	}

	if seq > maxSequence {
		return 0, ErrSequenceExhausted
	}

	ub := database.NewUpdateBuilder()
	ub.Update("ref_sequences")
	ub.Set(ub.Incr("next"))
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("entity_type", entityType),
		ub.Equal("doc_type", docType),
		ub.Equal("year", year),
	)
	query, args = ub.Build()
	if _, err := a.db.ExecContext(ctxTx, query, args...); err != nil {
		a.logger.WithContext(ctx).WithError(err).Error("Failed to advance sequence row")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to allocate reference number")
	}

	if err := tx.Commit(ctxTx); err != nil {
		a.logger.WithContext(ctx).WithError(err).Error("Failed to commit sequence allocation")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to allocate reference number")
	}
	return seq, nil
}
