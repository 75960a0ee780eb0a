package partner

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/agreement"
	"github.com/Ramsey-B/fern/internal/repositories/assurance"
	"github.com/Ramsey-B/fern/internal/repositories/partner"
	"github.com/Ramsey-B/fern/pkg/appcontext"
	"github.com/Ramsey-B/fern/pkg/hact"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/validation"
	"github.com/Ramsey-B/fern/pkg/vendors"
)

var validate = validator.New()

// Register registers partner routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.POST("/add", Add)
	g.GET("/:id", Get)
	g.PATCH("/:id", Update)
	g.DELETE("/:id", Delete)
}

// List returns partners for the tenant with filters
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "partner_handler.List")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	filters := models.PartnerListFilters{
		PartnerType:   c.QueryParam("partner_type"),
		CSOType:       c.QueryParam("cso_type"),
		LeadSection:   c.QueryParam("lead_section"),
		SEARiskRating: c.QueryParam("sea_risk_rating"),
		Search:        c.QueryParam("search"),
	}
	if raw := c.QueryParam("hidden"); raw != "" {
		hidden := raw == "true"
		filters.Hidden = &hidden
	}
	if raw := c.QueryParam("values"); raw != "" {
		filters.IDs = strings.Split(raw, ",")
	}
	if t, err := time.Parse("2006-01-02", c.QueryParam("psea_assessment_date_before")); err == nil {
		filters.PSEAAssessmentDateBefore = &t
	}
	if t, err := time.Parse("2006-01-02", c.QueryParam("psea_assessment_date_after")); err == nil {
		filters.PSEAAssessmentDateAfter = &t
	}
	filters.Page, _ = strconv.Atoi(c.QueryParam("page"))
	filters.PageSize, _ = strconv.Atoi(c.QueryParam("page_size"))
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}

	ctx, repo, err := ectoinject.GetContext[*partner.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	result, err := repo.List(ctx, tenantID, filters)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Add looks a vendor number up in the external system and upserts the
// partner locally.
func Add(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "partner_handler.Add")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	vendorNumber := c.QueryParam("vendor")
	if vendorNumber == "" {
		return validation.New("invalid request").Add("vendor", "required")
	}

	ctx, resolver, err := ectoinject.GetContext[vendors.Resolver](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get vendor resolver")
	}
	req, err := resolver.Lookup(ctx, vendorNumber)
	if err != nil {
		return err
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadGateway, "vendor record is incomplete")
	}

	ctx, repo, err := ectoinject.GetContext[*partner.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	result, err := repo.Upsert(ctx, tenantID, *req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

// Get returns one partner with its HACT block
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "partner_handler.Get")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, repo, err := ectoinject.GetContext[*partner.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	p, err := repo.GetByID(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}
	if p == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "partner not found")
	}
	return c.JSON(http.StatusOK, p)
}

// Update applies a partial update; a groups payload replaces the monitoring
// activity groups and triggers a HACT recompute.
func Update(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "partner_handler.Update")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	id := c.Param("id")

	var req models.UpdatePartnerRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*partner.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	existing, err := repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "partner not found")
	}

	if err := repo.Update(ctx, tenantID, id, req); err != nil {
		return err
	}

	if req.MonitoringActivityGroups != nil {
		if err := repo.ReplaceGroups(ctx, tenantID, id, *req.MonitoringActivityGroups); err != nil {
			return err
		}
		ctx, aggregator, err := ectoinject.GetContext[*hact.Aggregator](ctx)
		if err != nil {
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get aggregator")
		}
		// The group replacement is already committed; a failed recompute is
		// picked up by the nightly sweep instead of failing the request.
		aggregator.TryRefresh(ctx, tenantID, id, "groups_changed")
	}

	updated, err := repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

// Delete removes a partner unless it has history that must be kept.
func Delete(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "partner_handler.Delete")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*partner.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	p, err := repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if p == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "partner not found")
	}

	if p.TotalCTCP > 0 {
		return httperror.NewHTTPError(http.StatusConflict, "partner has cash transfers in the current programme")
	}

	ctx, agreements, err := ectoinject.GetContext[*agreement.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	signed, err := agreements.CountSigned(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if signed > 0 {
		return httperror.NewHTTPError(http.StatusConflict, "partner has signed agreements")
	}

	ctx, assuranceRepo, err := ectoinject.GetContext[*assurance.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	completed, err := assuranceRepo.ListCompletedActivities(ctx, tenantID, id, time.Now().UTC().Year())
	if err != nil {
		return err
	}
	if len(completed) > 0 {
		return httperror.NewHTTPError(http.StatusConflict, "partner has completed monitoring activities")
	}

	if err := repo.SoftDelete(ctx, tenantID, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
