package amendments

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Diff renders the read-only difference between the original document and
// the amendment's shadow copy.
func (e *Engine) Diff(ctx context.Context, tenantID, amendmentID string) (models.AmendmentDiff, error) {
	ctx, span := tracing.StartSpan(ctx, "amendments.Engine.Diff")
	defer span.End()

	amd, err := e.amendments.GetByID(ctx, tenantID, amendmentID)
	if err != nil {
		return nil, err
	}
	if amd == nil || amd.AmendedInterventionID == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "active amendment not found")
	}

	original, err := e.interventions.GetByID(ctx, tenantID, amd.InterventionID)
	if err != nil {
		return nil, err
	}
	shadow, err := e.interventions.GetByID(ctx, tenantID, *amd.AmendedInterventionID)
	if err != nil {
		return nil, err
	}
	if original == nil || shadow == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "intervention not found")
	}

	relatedMap := amd.RelatedObjects.GetValue()
	diff := models.AmendmentDiff{}

	if kind := diffIntervention(original, shadow); len(kind.Changed) > 0 {
		diff["intervention"] = kind
	}

	treeDiff, err := e.diffResultsTree(ctx, tenantID, original.ID, shadow.ID, relatedMap)
	if err != nil {
		return nil, err
	}
	for kind, kindDiff := range treeDiff {
		if len(kindDiff.Changed) > 0 || len(kindDiff.Added) > 0 || len(kindDiff.Removed) > 0 {
			diff[kind] = kindDiff
		}
	}

	supplyDiff, err := e.diffSupplyItems(ctx, tenantID, original.ID, shadow.ID, relatedMap)
	if err != nil {
		return nil, err
	}
	if len(supplyDiff.Changed) > 0 || len(supplyDiff.Added) > 0 || len(supplyDiff.Removed) > 0 {
		diff[KindSupplyItem] = supplyDiff
	}
	return diff, nil
}

func diffIntervention(original, shadow *models.Intervention) models.KindDiff {
	var kind models.KindDiff
	add := func(field string, before, after any) {
		kind.Changed = append(kind.Changed, models.FieldChange{
			ID:     original.ID,
			Field:  field,
			Before: before,
			After:  after,
		})
	}

	shadowTitle := shadow.Title
	if len(shadowTitle) >= len(models.AmendedTitlePrefix) && shadowTitle[:len(models.AmendedTitlePrefix)] == models.AmendedTitlePrefix {
		shadowTitle = shadowTitle[len(models.AmendedTitlePrefix):]
	}
	if original.Title != shadowTitle {
		add("title", original.Title, shadowTitle)
	}
	if !equalDates(original.Start, shadow.Start) {
		add("start", original.Start, shadow.Start)
	}
	if !equalDates(original.End, shadow.End) {
		add("end", original.End, shadow.End)
	}
	if !equalStringPtrs(original.DocumentCurrency, shadow.DocumentCurrency) {
		add("document_currency", original.DocumentCurrency, shadow.DocumentCurrency)
	}
	if fmt.Sprint([]string(original.CashTransferModalities)) != fmt.Sprint([]string(shadow.CashTransferModalities)) {
		add("cash_transfer_modalities", original.CashTransferModalities, shadow.CashTransferModalities)
	}
	if !equalStringPtrs(original.ImplementationStrategy, shadow.ImplementationStrategy) {
		add("implementation_strategy", original.ImplementationStrategy, shadow.ImplementationStrategy)
	}
	if !equalStringPtrs(original.CapacityDevelopment, shadow.CapacityDevelopment) {
		add("capacity_development", original.CapacityDevelopment, shadow.CapacityDevelopment)
	}
	if !equalStringPtrs(original.IPProgramContribution, shadow.IPProgramContribution) {
		add("ip_program_contribution", original.IPProgramContribution, shadow.IPProgramContribution)
	}
	if !equalStringPtrs(original.OtherInfo, shadow.OtherInfo) {
		add("other_info", original.OtherInfo, shadow.OtherInfo)
	}
	if fmt.Sprint(original.Sections) != fmt.Sprint(shadow.Sections) {
		add("sections", original.Sections, shadow.Sections)
	}
	if fmt.Sprint(original.Offices) != fmt.Sprint(shadow.Offices) {
		add("offices", original.Offices, shadow.Offices)
	}
	if fmt.Sprint(original.FlatLocations) != fmt.Sprint(shadow.FlatLocations) {
		add("flat_locations", original.FlatLocations, shadow.FlatLocations)
	}
	return kind
}

func (e *Engine) diffResultsTree(ctx context.Context, tenantID, originalID, shadowID string, relatedMap models.RelatedObjectsMap) (map[string]models.KindDiff, error) {
	originalTree, err := e.results.GetTree(ctx, tenantID, originalID)
	if err != nil {
		return nil, err
	}
	shadowTree, err := e.results.GetTree(ctx, tenantID, shadowID)
	if err != nil {
		return nil, err
	}

	originalActivities := map[string]models.Activity{}
	originalLowerResults := map[string]models.LowerResult{}
	for _, link := range originalTree {
		for _, lr := range link.LowerResults {
			originalLowerResults[lr.ID] = lr
			for _, activity := range lr.Activities {
				originalActivities[activity.ID] = activity
			}
		}
	}

	linkDiff := models.KindDiff{}
	lrDiff := models.KindDiff{}
	activityDiff := models.KindDiff{}
	seenLinks := map[string]bool{}
	seenLowerResults := map[string]bool{}
	seenActivities := map[string]bool{}

	for _, shadowLink := range shadowTree {
		linkID, survived := relatedMap.OriginalID(KindResultLink, shadowLink.ID)
		if !survived {
			linkDiff.Added = append(linkDiff.Added, shadowLink.ID)
		} else {
			seenLinks[linkID] = true
		}
		for _, shadowLR := range shadowLink.LowerResults {
			lrID, lrSurvived := relatedMap.OriginalID(KindLowerResult, shadowLR.ID)
			if !lrSurvived {
				lrDiff.Added = append(lrDiff.Added, shadowLR.ID)
			} else {
				seenLowerResults[lrID] = true
				if before, ok := originalLowerResults[lrID]; ok && before.Name != shadowLR.Name {
					lrDiff.Changed = append(lrDiff.Changed, models.FieldChange{
						ID: lrID, Field: "name", Before: before.Name, After: shadowLR.Name,
					})
				}
			}
			for _, shadowActivity := range shadowLR.Activities {
				activityID, actSurvived := relatedMap.OriginalID(KindActivity, shadowActivity.ID)
				if !actSurvived {
					activityDiff.Added = append(activityDiff.Added, shadowActivity.ID)
					continue
				}
				seenActivities[activityID] = true
				before, ok := originalActivities[activityID]
				if !ok {
					continue
				}
				if before.Name != shadowActivity.Name {
					activityDiff.Changed = append(activityDiff.Changed, models.FieldChange{
						ID: activityID, Field: "name", Before: before.Name, After: shadowActivity.Name,
					})
				}
				if before.UnicefCash != shadowActivity.UnicefCash {
					activityDiff.Changed = append(activityDiff.Changed, models.FieldChange{
						ID: activityID, Field: "unicef_cash", Before: before.UnicefCash, After: shadowActivity.UnicefCash,
					})
				}
				if before.CSOCash != shadowActivity.CSOCash {
					activityDiff.Changed = append(activityDiff.Changed, models.FieldChange{
						ID: activityID, Field: "cso_cash", Before: before.CSOCash, After: shadowActivity.CSOCash,
					})
				}
				if before.IsActive != shadowActivity.IsActive {
					activityDiff.Changed = append(activityDiff.Changed, models.FieldChange{
						ID: activityID, Field: "is_active", Before: before.IsActive, After: shadowActivity.IsActive,
					})
				}
			}
		}
	}

	for _, link := range originalTree {
		if !seenLinks[link.ID] {
			linkDiff.Removed = append(linkDiff.Removed, link.ID)
		}
		for _, lr := range link.LowerResults {
			if !seenLowerResults[lr.ID] {
				lrDiff.Removed = append(lrDiff.Removed, lr.ID)
			}
			for _, activity := range lr.Activities {
				if !seenActivities[activity.ID] {
					activityDiff.Removed = append(activityDiff.Removed, activity.ID)
				}
			}
		}
	}

	return map[string]models.KindDiff{
		KindResultLink:  linkDiff,
		KindLowerResult: lrDiff,
		KindActivity:    activityDiff,
	}, nil
}

func (e *Engine) diffSupplyItems(ctx context.Context, tenantID, originalID, shadowID string, relatedMap models.RelatedObjectsMap) (models.KindDiff, error) {
	var kind models.KindDiff
	originalItems, err := e.supplies.ListByIntervention(ctx, tenantID, originalID)
	if err != nil {
		return kind, err
	}
	shadowItems, err := e.supplies.ListByIntervention(ctx, tenantID, shadowID)
	if err != nil {
		return kind, err
	}

	byID := map[string]models.SupplyItem{}
	for _, item := range originalItems {
		byID[item.ID] = item
	}
	seen := map[string]bool{}
	for _, shadowItem := range shadowItems {
		itemID, survived := relatedMap.OriginalID(KindSupplyItem, shadowItem.ID)
		if !survived {
			kind.Added = append(kind.Added, shadowItem.ID)
			continue
		}
		seen[itemID] = true
		before, ok := byID[itemID]
		if !ok {
			continue
		}
		if before.Title != shadowItem.Title {
			kind.Changed = append(kind.Changed, models.FieldChange{ID: itemID, Field: "title", Before: before.Title, After: shadowItem.Title})
		}
		if before.UnitNumber != shadowItem.UnitNumber {
			kind.Changed = append(kind.Changed, models.FieldChange{ID: itemID, Field: "unit_number", Before: before.UnitNumber, After: shadowItem.UnitNumber})
		}
		if before.UnitPrice != shadowItem.UnitPrice {
			kind.Changed = append(kind.Changed, models.FieldChange{ID: itemID, Field: "unit_price", Before: before.UnitPrice, After: shadowItem.UnitPrice})
		}
		if before.ProvidedBy != shadowItem.ProvidedBy {
			kind.Changed = append(kind.Changed, models.FieldChange{ID: itemID, Field: "provided_by", Before: before.ProvidedBy, After: shadowItem.ProvidedBy})
		}
	}
	for _, item := range originalItems {
		if !seen[item.ID] {
			kind.Removed = append(kind.Removed, item.ID)
		}
	}
	return kind, nil
}

func equalDates(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalStringPtrs(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
