package intervention

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/intervention"
	"github.com/Ramsey-B/fern/pkg/appcontext"
	"github.com/Ramsey-B/fern/pkg/budget"
	"github.com/Ramsey-B/fern/pkg/lifecycle"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/permissions"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New()

// Register registers intervention routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.GET("/dash", List)
	g.GET("/map", List)
	g.POST("", Create)
	g.GET("/:id", Get)
	g.PATCH("/:id", Update)
	g.DELETE("/delete/:id", Delete)
	g.PATCH("/:id/budget", UpdateBudget)

	registerAmendments(g)
	registerRelations(g)
}

// List returns interventions for the tenant with filters
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "intervention_handler.List")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	filters := models.InterventionListFilters{
		DocumentType: c.QueryParam("document_type"),
		Status:       c.QueryParam("status"),
		Search:       c.QueryParam("search"),
	}
	if t, err := time.Parse("2006-01-02", c.QueryParam("start")); err == nil {
		filters.Start = &t
	}
	if t, err := time.Parse("2006-01-02", c.QueryParam("end")); err == nil {
		filters.End = &t
	}
	if raw := c.QueryParam("sections"); raw != "" {
		filters.Sections = strings.Split(raw, ",")
	}
	if raw := c.QueryParam("country_programmes"); raw != "" {
		filters.CountryProgrammes = strings.Split(raw, ",")
	}
	if raw := c.QueryParam("partners"); raw != "" {
		filters.Partners = strings.Split(raw, ",")
	}
	if raw := c.QueryParam("contingency_pd"); raw != "" {
		contingency := raw == "true"
		filters.ContingencyPD = &contingency
	}
	filters.Page, _ = strconv.Atoi(c.QueryParam("page"))
	filters.PageSize, _ = strconv.Atoi(c.QueryParam("page_size"))
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}

	ctx, repo, err := ectoinject.GetContext[*intervention.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	result, err := repo.List(ctx, tenantID, filters)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Create creates a draft intervention
func Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "intervention_handler.Create")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.CreateInterventionRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*lifecycle.InterventionService](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get intervention service")
	}
	result, err := svc.Create(ctx, tenantID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

// Get returns the detail view with the caller's per-field permission block.
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "intervention_handler.Get")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, repo, err := ectoinject.GetContext[*intervention.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	i, err := repo.GetByID(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}
	if i == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "intervention not found")
	}

	planned, err := repo.GetBudget(ctx, tenantID, i.ID)
	if err != nil {
		return err
	}
	i.PlannedBudget = planned
	quarters, err := repo.GetTimeFrames(ctx, tenantID, i.ID)
	if err != nil {
		return err
	}
	i.Quarters = quarters

	return c.JSON(http.StatusOK, models.InterventionDetailResponse{
		Intervention: *i,
		Permissions:  permissions.Evaluate(i, appcontext.GetUserRoles(ctx)),
	})
}

// Update applies a partial update; a status change dispatches into the FSM.
func Update(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "intervention_handler.Update")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.UpdateInterventionRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*lifecycle.InterventionService](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get intervention service")
	}
	result, err := svc.Update(ctx, tenantID, c.Param("id"), req, appcontext.GetUserRoles(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Delete removes a draft intervention
func Delete(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "intervention_handler.Delete")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, svc, err := ectoinject.GetContext[*lifecycle.InterventionService](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get intervention service")
	}
	if err := svc.Delete(ctx, tenantID, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// UpdateBudget sets the caller-writable budget fields and recomputes the
// derived amounts.
func UpdateBudget(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "intervention_handler.UpdateBudget")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.UpdateBudgetRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, recomputer, err := ectoinject.GetContext[*budget.Recomputer](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get budget recomputer")
	}
	result, err := recomputer.SetCallerFields(ctx, tenantID, c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
