package agreement

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/agreement"
	"github.com/Ramsey-B/fern/pkg/appcontext"
	"github.com/Ramsey-B/fern/pkg/lifecycle"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/permissions"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New()

// Register registers agreement routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.POST("", Create)
	g.GET("/:id", Get)
	g.PATCH("/:id", Update)
	g.DELETE("/delete/:id", Delete)
	g.GET("/:id/pdf", PDF)
}

// List returns agreements for the tenant with filters
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "agreement_handler.List")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	filters := models.AgreementListFilters{
		AgreementType: c.QueryParam("agreement_type"),
		Status:        c.QueryParam("status"),
		PartnerName:   c.QueryParam("partner_name"),
		Search:        c.QueryParam("search"),
	}
	if t, err := time.Parse("2006-01-02", c.QueryParam("start")); err == nil {
		filters.Start = &t
	}
	if t, err := time.Parse("2006-01-02", c.QueryParam("end")); err == nil {
		filters.End = &t
	}
	if raw := c.QueryParam("special_conditions_pca"); raw != "" {
		special := raw == "true"
		filters.SpecialConditionsPCA = &special
	}
	filters.Page, _ = strconv.Atoi(c.QueryParam("page"))
	filters.PageSize, _ = strconv.Atoi(c.QueryParam("page_size"))
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}

	ctx, repo, err := ectoinject.GetContext[*agreement.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	result, err := repo.List(ctx, tenantID, filters)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Create creates a draft agreement
func Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "agreement_handler.Create")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.CreateAgreementRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*lifecycle.AgreementService](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get agreement service")
	}
	result, err := svc.Create(ctx, tenantID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

// Get returns one agreement
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "agreement_handler.Get")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, repo, err := ectoinject.GetContext[*agreement.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	a, err := repo.GetByID(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}
	if a == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "agreement not found")
	}
	return c.JSON(http.StatusOK, a)
}

// Update applies a partial update; a status change dispatches into the FSM.
func Update(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "agreement_handler.Update")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.UpdateAgreementRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*lifecycle.AgreementService](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get agreement service")
	}
	result, err := svc.Update(ctx, tenantID, c.Param("id"), req, appcontext.GetUserRoles(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Delete removes a draft agreement
func Delete(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "agreement_handler.Delete")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, svc, err := ectoinject.GetContext[*lifecycle.AgreementService](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get agreement service")
	}
	if err := svc.Delete(ctx, tenantID, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// PDF guards the rendered-agreement download. Rendering itself is handled by
// a separate document service; this endpoint only enforces access.
func PDF(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "agreement_handler.PDF")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	if c.QueryParam("terms_acknowledged") != "true" {
		return httperror.NewHTTPError(http.StatusForbidden, "terms must be acknowledged")
	}
	if !appcontext.HasRole(ctx, permissions.RolePartnershipManager) {
		return httperror.NewHTTPError(http.StatusForbidden, "insufficient role")
	}

	ctx, repo, err := ectoinject.GetContext[*agreement.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	a, err := repo.GetByID(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}
	if a == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "agreement not found")
	}
	return httperror.NewHTTPError(http.StatusNotImplemented, "pdf rendering is not available")
}
