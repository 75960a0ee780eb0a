package intervention

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/agreement"
	"github.com/Ramsey-B/fern/internal/repositories/assurance"
	"github.com/Ramsey-B/fern/internal/repositories/intervention"
	"github.com/Ramsey-B/fern/internal/repositories/partner"
	"github.com/Ramsey-B/fern/internal/repositories/plannedvisit"
	"github.com/Ramsey-B/fern/internal/repositories/results"
	"github.com/Ramsey-B/fern/internal/repositories/review"
	"github.com/Ramsey-B/fern/internal/repositories/supplyitem"
	"github.com/Ramsey-B/fern/internal/repositories/syncjournal"
	"github.com/Ramsey-B/fern/pkg/appcontext"
	"github.com/Ramsey-B/fern/pkg/budget"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/reporting"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/validation"
)

func registerRelations(g *echo.Group) {
	g.GET("/:id/result-links", ListResultLinks)
	g.POST("/:id/result-links", CreateResultLink)
	g.DELETE("/:id/result-links/:linkID", DeleteResultLink)
	g.POST("/:id/result-links/:linkID/lower-results", CreateLowerResult)
	g.PATCH("/:id/lower-results/:lrID", UpdateLowerResult)
	g.DELETE("/:id/lower-results/:lrID", DeleteLowerResult)
	g.POST("/:id/lower-results/:lrID/activities", CreateActivity)
	g.PATCH("/:id/activities/:activityID", UpdateActivity)
	g.DELETE("/:id/activities/:activityID", DeleteActivity)
	g.POST("/:id/activities/:activityID/items", CreateActivityItem)
	g.PATCH("/:id/items/:itemID", UpdateActivityItem)
	g.DELETE("/:id/items/:itemID", DeleteActivityItem)

	g.GET("/:id/reporting-requirements/:type", ListReportingRequirements)
	g.POST("/:id/reporting-requirements/:type", ReplaceReportingRequirements)

	g.GET("/:id/planned-visits", ListPlannedVisits)
	g.POST("/:id/planned-visits", UpsertPlannedVisit)
	g.DELETE("/:id/planned-visits/:visitID", DeletePlannedVisit)

	g.GET("/:id/supply-items", ListSupplyItems)
	g.POST("/:id/supply-items", CreateSupplyItem)
	g.PATCH("/:id/supply-items/:itemID", UpdateSupplyItem)
	g.DELETE("/:id/supply-items/:itemID", DeleteSupplyItem)

	g.GET("/:id/reviews", ListReviews)
	g.POST("/:id/reviews", CreateReview)

	g.GET("/:id/funds-reservations", ListFundsReservations)
	g.POST("/:id/funds-reservations", UpsertFundsReservation)

	g.GET("/:id/sync", ListSyncAttempts)
}

// loadIntervention fetches the parent document under the tenant filter.
func loadIntervention(c echo.Context) (*models.Intervention, echo.Context, error) {
	ctx := c.Request().Context()
	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return nil, c, httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	ctx, repo, err := ectoinject.GetContext[*intervention.Repository](ctx)
	if err != nil {
		return nil, c, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	i, err := repo.GetByID(ctx, tenantID, c.Param("id"))
	if err != nil {
		return nil, c, err
	}
	if i == nil {
		return nil, c, httperror.NewHTTPError(http.StatusNotFound, "intervention not found")
	}
	c.SetRequest(c.Request().WithContext(ctx))
	return i, c, nil
}

// contentEditable refuses child writes outside the editable statuses. A
// signed document changes through its amendment shadow, which is in draft.
func contentEditable(i *models.Intervention) error {
	switch i.Status {
	case models.InterventionStatusDraft, models.InterventionStatusReview, models.InterventionStatusSignature:
		return nil
	}
	return validation.NonField("document content can only be changed in draft or through an amendment")
}

func recompute(c echo.Context, tenantID, interventionID string) error {
	ctx := c.Request().Context()
	ctx, recomputer, err := ectoinject.GetContext[*budget.Recomputer](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get budget recomputer")
	}
	_, err = recomputer.Recompute(ctx, tenantID, interventionID)
	return err
}

// ListResultLinks returns the full results tree.
func ListResultLinks(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "results_handler.List")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	ctx, repo, err := ectoinject.GetContext[*results.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	tree, err := repo.GetTree(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"items": tree})
}

// CreateResultLink adds a cp output link (or the management link when
// cp_output_id is absent).
func CreateResultLink(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "results_handler.CreateLink")
	defer span.End()

	i, c, err := loadIntervention(c)
	if err != nil {
		return err
	}
	if err := contentEditable(i); err != nil {
		return err
	}

	var req models.UpsertResultLinkRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	ctx, repo, err := ectoinject.GetContext[*results.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	code := ""
	if req.CPOutputID != nil {
		links, err := repo.ListResultLinks(ctx, i.TenantID, i.ID)
		if err != nil {
			return err
		}
		seq := 1
		for _, link := range links {
			if link.CPOutputID != nil {
				seq++
			}
		}
		code = strconv.Itoa(seq)
	}

	link := models.ResultLink{
		ID:             uuid.New().String(),
		TenantID:       i.TenantID,
		InterventionID: i.ID,
		CPOutputID:     req.CPOutputID,
		Code:           code,
	}
	if err := repo.CreateResultLink(ctx, i.TenantID, &link); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, link)
}

// DeleteResultLink removes a link and recomputes the budget.
func DeleteResultLink(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "results_handler.DeleteLink")
	defer span.End()

	i, c, err := loadIntervention(c)
	if err != nil {
		return err
	}
	if err := contentEditable(i); err != nil {
		return err
	}

	ctx := c.Request().Context()
	ctx, repo, err := ectoinject.GetContext[*results.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	if err := repo.SoftDelete(ctx, i.TenantID, "result_links", c.Param("linkID")); err != nil {
		return err
	}
	if err := recompute(c, i.TenantID, i.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// CreateLowerResult adds a programme document output under a link.
func CreateLowerResult(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "results_handler.CreateLowerResult")
	defer span.End()

	i, c, err := loadIntervention(c)
	if err != nil {
		return err
	}
	if err := contentEditable(i); err != nil {
		return err
	}

	var req models.UpsertLowerResultRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	ctx, repo, err := ectoinject.GetContext[*results.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	tree, err := repo.GetTree(ctx, i.TenantID, i.ID)
	if err != nil {
		return err
	}
	linkID := c.Param("linkID")
	var parent *models.ResultLink
	for idx := range tree {
		if tree[idx].ID == linkID {
			parent = &tree[idx]
			break
		}
	}
	if parent == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "result link not found")
	}

	lr := models.LowerResult{
		ID:           uuid.New().String(),
		TenantID:     i.TenantID,
		ResultLinkID: linkID,
		Name:         req.Name,
		Code:         parent.Code + "." + strconv.Itoa(len(parent.LowerResults)+1),
	}
	if err := repo.CreateLowerResult(ctx, i.TenantID, &lr); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, lr)
}

// UpdateLowerResult renames a programme document output.
func UpdateLowerResult(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "results_handler.UpdateLowerResult")
	defer span.End()

	i, c, err := loadIntervention(c)
	if err != nil {
		return err
	}
	if err := contentEditable(i); err != nil {
		return err
	}

	var req models.UpsertLowerResultRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	ctx, repo, err := ectoinject.GetContext[*results.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	lr, err := findLowerResult(ctx, repo, i.TenantID, i.ID, c.Param("lrID"))
	if err != nil {
		return err
	}
	lr.Name = req.Name
	if err := repo.UpdateLowerResult(ctx, i.TenantID, lr); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, lr)
}

// DeleteLowerResult removes a programme document output.
func DeleteLowerResult(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "results_handler.DeleteLowerResult")
	defer span.End()

	i, c, err := loadIntervention(c)
	if err != nil {
		return err
	}
	if err := contentEditable(i); err != nil {
		return err
	}

	ctx := c.Request().Context()
	ctx, repo, err := ectoinject.GetContext[*results.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	if err := repo.SoftDelete(ctx, i.TenantID, "lower_results", c.Param("lrID")); err != nil {
		return err
	}
	if err := recompute(c, i.TenantID, i.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// CreateActivity adds a costed line under a lower result.
func CreateActivity(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "results_handler.CreateActivity")
	defer span.End()

	i, c, err := loadIntervention(c)
	if err != nil {
		return err
	}
	if err := contentEditable(i); err != nil {
		return err
	}

	var req models.UpsertActivityRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	ctx, repo, err := ectoinject.GetContext[*results.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	lr, err := findLowerResult(ctx, repo, i.TenantID, i.ID, c.Param("lrID"))
	if err != nil {
		return err
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	activity := models.Activity{
		ID:             uuid.New().String(),
		TenantID:       i.TenantID,
		LowerResultID:  lr.ID,
		Name:           req.Name,
		Code:           lr.Code + "." + strconv.Itoa(len(lr.Activities)+1),
		ContextDetails: req.ContextDetails,
		UnicefCash:     req.UnicefCash,
		CSOCash:        req.CSOCash,
		IsActive:       isActive,
	}
	if err := repo.CreateActivity(ctx, i.TenantID, &activity); err != nil {
		return err
	}
	if len(req.TimeFrames) > 0 {
		if err := repo.SetActivityTimeFrames(ctx, i.TenantID, activity.ID, req.TimeFrames); err != nil {
			return err
		}
	}
	if err := recompute(c, i.TenantID, i.ID); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, activity)
}

// UpdateActivity edits a costed line; cash edits are refused while the
// activity carries items.
func UpdateActivity(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "results_handler.UpdateActivity")
	defer span.End()

	i, c, err := loadIntervention(c)
	if err != nil {
		return err
	}
	if err := contentEditable(i); err != nil {
		return err
	}

	var req models.UpsertActivityRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	ctx, repo, err := ectoinject.GetContext[*results.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	activity, err := findActivity(ctx, repo, i.TenantID, i.ID, c.Param("activityID"))
	if err != nil {
		return err
	}

	activity.Name = req.Name
	activity.ContextDetails = req.ContextDetails
	if req.IsActive != nil {
		activity.IsActive = *req.IsActive
	}
	if len(activity.Items) == 0 {
		activity.UnicefCash = req.UnicefCash
		activity.CSOCash = req.CSOCash
	}
	if err := repo.UpdateActivity(ctx, i.TenantID, activity); err != nil {
		return err
	}
	if req.TimeFrames != nil {
		if err := repo.SetActivityTimeFrames(ctx, i.TenantID, activity.ID, req.TimeFrames); err != nil {
			return err
		}
	}
	if err := recompute(c, i.TenantID, i.ID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, activity)
}

// DeleteActivity removes a costed line.
func DeleteActivity(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "results_handler.DeleteActivity")
	defer span.End()

	i, c, err := loadIntervention(c)
	if err != nil {
		return err
	}
	if err := contentEditable(i); err != nil {
		return err
	}

	ctx := c.Request().Context()
	ctx, repo, err := ectoinject.GetContext[*results.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	if err := repo.SoftDelete(ctx, i.TenantID, "activities", c.Param("activityID")); err != nil {
		return err
	}
	if err := recompute(c, i.TenantID, i.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// CreateActivityItem adds a budget line; the parent activity's cash becomes
// the sum of its items.
func CreateActivityItem(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "results_handler.CreateItem")
	defer span.End()

	i, c, err := loadIntervention(c)
	if err != nil {
		return err
	}
	if err := contentEditable(i); err != nil {
		return err
	}

	var req models.UpsertActivityItemRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	ctx, repo, err := ectoinject.GetContext[*results.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	activity, err := findActivity(ctx, repo, i.TenantID, i.ID, c.Param("activityID"))
	if err != nil {
		return err
	}

	item := models.ActivityItem{
		ID:         uuid.New().String(),
		TenantID:   i.TenantID,
		ActivityID: activity.ID,
		Name:       req.Name,
		Code:       activity.Code + "." + strconv.Itoa(len(activity.Items)+1),
		Unit:       req.Unit,
		NoUnits:    req.NoUnits,
		UnitPrice:  req.UnitPrice,
		UnicefCash: req.UnicefCash,
		CSOCash:    req.CSOCash,
	}
	if err := repo.CreateActivityItem(ctx, i.TenantID, &item); err != nil {
		return err
	}
	if err := syncActivityCash(ctx, repo, i.TenantID, i.ID, activity.ID); err != nil {
		return err
	}
	if err := recompute(c, i.TenantID, i.ID); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, item)
}

// UpdateActivityItem edits a budget line.
func UpdateActivityItem(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "results_handler.UpdateItem")
	defer span.End()

	i, c, err := loadIntervention(c)
	if err != nil {
		return err
	}
	if err := contentEditable(i); err != nil {
		return err
	}

	var req models.UpsertActivityItemRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	ctx, repo, err := ectoinject.GetContext[*results.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	item, activityID, err := findActivityItem(ctx, repo, i.TenantID, i.ID, c.Param("itemID"))
	if err != nil {
		return err
	}

	item.Name = req.Name
	item.Unit = req.Unit
	item.NoUnits = req.NoUnits
	item.UnitPrice = req.UnitPrice
	item.UnicefCash = req.UnicefCash
	item.CSOCash = req.CSOCash
	if err := repo.UpdateActivityItem(ctx, i.TenantID, item); err != nil {
		return err
	}
	if err := syncActivityCash(ctx, repo, i.TenantID, i.ID, activityID); err != nil {
		return err
	}
	if err := recompute(c, i.TenantID, i.ID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

// DeleteActivityItem removes a budget line.
func DeleteActivityItem(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "results_handler.DeleteItem")
	defer span.End()

	i, c, err := loadIntervention(c)
	if err != nil {
		return err
	}
	if err := contentEditable(i); err != nil {
		return err
	}

	ctx := c.Request().Context()
	ctx, repo, err := ectoinject.GetContext[*results.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	item, activityID, err := findActivityItem(ctx, repo, i.TenantID, i.ID, c.Param("itemID"))
	if err != nil {
		return err
	}
	if err := repo.SoftDelete(ctx, i.TenantID, "activity_items", item.ID); err != nil {
		return err
	}
	if err := syncActivityCash(ctx, repo, i.TenantID, i.ID, activityID); err != nil {
		return err
	}
	if err := recompute(c, i.TenantID, i.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ListReportingRequirements returns the windows for one report type.
func ListReportingRequirements(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reporting_handler.List")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	ctx, planner, err := ectoinject.GetContext[*reporting.Planner](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get planner")
	}
	items, err := planner.List(ctx, tenantID, c.Param("id"), c.Param("type"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// ReplaceReportingRequirements replaces the windows for one report type.
func ReplaceReportingRequirements(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "reporting_handler.Replace")
	defer span.End()

	i, c, err := loadIntervention(c)
	if err != nil {
		return err
	}

	var req models.ReplaceReportingRequirementsRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	ctx, planner, err := ectoinject.GetContext[*reporting.Planner](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get planner")
	}
	items, err := planner.Replace(ctx, i.TenantID, i, c.Param("type"), req.ReportingRequirements)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// ListPlannedVisits returns the yearly visit plans.
func ListPlannedVisits(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "plannedvisit_handler.List")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	ctx, repo, err := ectoinject.GetContext[*plannedvisit.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	items, err := repo.ListByIntervention(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// UpsertPlannedVisit writes the plan for one year. Only government partners
// carry visit plans.
func UpsertPlannedVisit(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "plannedvisit_handler.Upsert")
	defer span.End()

	i, c, err := loadIntervention(c)
	if err != nil {
		return err
	}
	if err := contentEditable(i); err != nil {
		return err
	}

	var req models.UpsertPlannedVisitRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	if i.DocumentType != models.DocumentTypeGOV {
		ctx2, agreements, err := ectoinject.GetContext[*agreement.Repository](ctx)
		if err != nil {
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
		}
		ctx = ctx2
		a, err := agreements.GetByID(ctx, i.TenantID, i.AgreementID)
		if err != nil {
			return err
		}
		if a != nil {
			ctx2, partners, err := ectoinject.GetContext[*partner.Repository](ctx)
			if err != nil {
				return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
			}
			ctx = ctx2
			p, err := partners.GetByID(ctx, i.TenantID, a.PartnerID)
			if err != nil {
				return err
			}
			if p != nil && !p.IsGovernment() {
				return validation.New("invalid planned visit").Add("partner", "planned visits only apply to government partners")
			}
		}
	}

	ctx, repo, err := ectoinject.GetContext[*plannedvisit.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	visit := &models.PlannedVisit{
		TenantID:       i.TenantID,
		InterventionID: i.ID,
		Year:           req.Year,
		ProgrammaticQ1: req.ProgrammaticQ1,
		ProgrammaticQ2: req.ProgrammaticQ2,
		ProgrammaticQ3: req.ProgrammaticQ3,
		ProgrammaticQ4: req.ProgrammaticQ4,
		SitesQ1:        req.SitesQ1,
		SitesQ2:        req.SitesQ2,
		SitesQ3:        req.SitesQ3,
		SitesQ4:        req.SitesQ4,
	}
	if err := repo.Upsert(ctx, i.TenantID, visit); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, visit)
}

// DeletePlannedVisit removes one year's plan.
func DeletePlannedVisit(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "plannedvisit_handler.Delete")
	defer span.End()

	i, c, err := loadIntervention(c)
	if err != nil {
		return err
	}
	if err := contentEditable(i); err != nil {
		return err
	}

	ctx := c.Request().Context()
	ctx, repo, err := ectoinject.GetContext[*plannedvisit.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	if err := repo.SoftDelete(ctx, i.TenantID, c.Param("visitID")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ListSupplyItems returns the supply contribution lines.
func ListSupplyItems(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "supplyitem_handler.List")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	ctx, repo, err := ectoinject.GetContext[*supplyitem.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	items, err := repo.ListByIntervention(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// CreateSupplyItem adds a supply line and recomputes the budget.
func CreateSupplyItem(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "supplyitem_handler.Create")
	defer span.End()

	i, c, err := loadIntervention(c)
	if err != nil {
		return err
	}
	if err := contentEditable(i); err != nil {
		return err
	}

	var req models.UpsertSupplyItemRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	ctx, repo, err := ectoinject.GetContext[*supplyitem.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	item := &models.SupplyItem{
		ID:                  uuid.New().String(),
		TenantID:            i.TenantID,
		InterventionID:      i.ID,
		Title:               req.Title,
		ProvidedBy:          req.ProvidedBy,
		UnitNumber:          req.UnitNumber,
		UnitPrice:           req.UnitPrice,
		OtherMentions:       req.OtherMentions,
		UnicefProductNumber: req.UnicefProductNumber,
	}
	if err := repo.Create(ctx, i.TenantID, item); err != nil {
		return err
	}
	if err := recompute(c, i.TenantID, i.ID); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, item)
}

// UpdateSupplyItem edits a supply line and recomputes the budget.
func UpdateSupplyItem(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "supplyitem_handler.Update")
	defer span.End()

	i, c, err := loadIntervention(c)
	if err != nil {
		return err
	}
	if err := contentEditable(i); err != nil {
		return err
	}

	var req models.UpsertSupplyItemRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	ctx, repo, err := ectoinject.GetContext[*supplyitem.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	item, err := repo.GetByID(ctx, i.TenantID, c.Param("itemID"))
	if err != nil {
		return err
	}
	if item == nil || item.InterventionID != i.ID {
		return httperror.NewHTTPError(http.StatusNotFound, "supply item not found")
	}

	item.Title = req.Title
	item.ProvidedBy = req.ProvidedBy
	item.UnitNumber = req.UnitNumber
	item.UnitPrice = req.UnitPrice
	item.OtherMentions = req.OtherMentions
	item.UnicefProductNumber = req.UnicefProductNumber
	if err := repo.Update(ctx, i.TenantID, item); err != nil {
		return err
	}
	if err := recompute(c, i.TenantID, i.ID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

// DeleteSupplyItem removes a supply line and recomputes the budget.
func DeleteSupplyItem(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "supplyitem_handler.Delete")
	defer span.End()

	i, c, err := loadIntervention(c)
	if err != nil {
		return err
	}
	if err := contentEditable(i); err != nil {
		return err
	}

	ctx := c.Request().Context()
	ctx, repo, err := ectoinject.GetContext[*supplyitem.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	if err := repo.SoftDelete(ctx, i.TenantID, c.Param("itemID")); err != nil {
		return err
	}
	if err := recompute(c, i.TenantID, i.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ListReviews returns the review records, newest first.
func ListReviews(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "review_handler.List")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	ctx, repo, err := ectoinject.GetContext[*review.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	items, err := repo.ListByIntervention(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// CreateReview records a review outcome.
func CreateReview(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "review_handler.Create")
	defer span.End()

	i, c, err := loadIntervention(c)
	if err != nil {
		return err
	}

	var req models.CreateReviewRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	ctx, repo, err := ectoinject.GetContext[*review.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	userID := appcontext.GetUserID(ctx)
	reviewRecord := &models.InterventionReview{
		ID:              uuid.New().String(),
		TenantID:        i.TenantID,
		InterventionID:  i.ID,
		ReviewType:      req.ReviewType,
		OverallApproval: req.OverallApproval,
		ReviewDate:      req.ReviewDate,
	}
	if userID != "" {
		reviewRecord.SubmittedByID = &userID
	}
	if err := repo.Create(ctx, i.TenantID, reviewRecord); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, reviewRecord)
}

// ListFundsReservations returns the FR lines linked to the intervention.
func ListFundsReservations(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "assurance_handler.ListFRs")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	ctx, repo, err := ectoinject.GetContext[*assurance.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	items, err := repo.ListFundsReservations(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// UpsertFundsReservation records an FR line from the financial system.
func UpsertFundsReservation(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "assurance_handler.UpsertFR")
	defer span.End()

	i, c, err := loadIntervention(c)
	if err != nil {
		return err
	}

	var reservation models.FundsReservation
	if err := c.Bind(&reservation); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if reservation.FRNumber == "" {
		return validation.New("invalid funds reservation").Add("fr_number", "required")
	}
	reservation.TenantID = i.TenantID
	reservation.InterventionID = i.ID

	ctx := c.Request().Context()
	ctx, repo, err := ectoinject.GetContext[*assurance.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	if err := repo.UpsertFundsReservation(ctx, i.TenantID, &reservation); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reservation)
}

// ListSyncAttempts returns the downstream delivery journal.
func ListSyncAttempts(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "sync_handler.List")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	ctx, repo, err := ectoinject.GetContext[*syncjournal.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	items, err := repo.ListByIntervention(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// findLowerResult scans the tree for one lower result.
func findLowerResult(ctx context.Context, repo *results.Repository, tenantID, interventionID, lrID string) (*models.LowerResult, error) {
	tree, err := repo.GetTree(ctx, tenantID, interventionID)
	if err != nil {
		return nil, err
	}
	for li := range tree {
		for lri := range tree[li].LowerResults {
			if tree[li].LowerResults[lri].ID == lrID {
				return &tree[li].LowerResults[lri], nil
			}
		}
	}
	return nil, httperror.NewHTTPError(http.StatusNotFound, "lower result not found")
}

func findActivity(ctx context.Context, repo *results.Repository, tenantID, interventionID, activityID string) (*models.Activity, error) {
	tree, err := repo.GetTree(ctx, tenantID, interventionID)
	if err != nil {
		return nil, err
	}
	for li := range tree {
		for lri := range tree[li].LowerResults {
			for ai := range tree[li].LowerResults[lri].Activities {
				if tree[li].LowerResults[lri].Activities[ai].ID == activityID {
					return &tree[li].LowerResults[lri].Activities[ai], nil
				}
			}
		}
	}
	return nil, httperror.NewHTTPError(http.StatusNotFound, "activity not found")
}

func findActivityItem(ctx context.Context, repo *results.Repository, tenantID, interventionID, itemID string) (*models.ActivityItem, string, error) {
	tree, err := repo.GetTree(ctx, tenantID, interventionID)
	if err != nil {
		return nil, "", err
	}
	for li := range tree {
		for lri := range tree[li].LowerResults {
			for ai := range tree[li].LowerResults[lri].Activities {
				activity := &tree[li].LowerResults[lri].Activities[ai]
				for ii := range activity.Items {
					if activity.Items[ii].ID == itemID {
						return &activity.Items[ii], activity.ID, nil
					}
				}
			}
		}
	}
	return nil, "", httperror.NewHTTPError(http.StatusNotFound, "activity item not found")
}

// syncActivityCash keeps the parent activity's cash equal to the sum of its
// items.
func syncActivityCash(ctx context.Context, repo *results.Repository, tenantID, interventionID, activityID string) error {
	activity, err := findActivity(ctx, repo, tenantID, interventionID, activityID)
	if err != nil {
		return err
	}
	if len(activity.Items) == 0 {
		return nil
	}
	var unicef, cso float64
	for _, item := range activity.Items {
		unicef += item.UnicefCash
		cso += item.CSOCash
	}
	activity.UnicefCash = unicef
	activity.CSOCash = cso
	return repo.UpdateActivity(ctx, tenantID, activity)
}
