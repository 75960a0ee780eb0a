package intervention

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/amendment"
	"github.com/Ramsey-B/fern/pkg/amendments"
	"github.com/Ramsey-B/fern/pkg/appcontext"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

func registerAmendments(g *echo.Group) {
	g.GET("/:id/amendments", ListAmendments)
	g.POST("/:id/amendments", CreateAmendment)
	g.POST("/amendments/:id/merge", MergeAmendment)
	g.GET("/amendments/:id/diff", DiffAmendment)
	g.DELETE("/amendments/:id", DeleteAmendment)
}

// ListAmendments returns the amendments of an intervention, open first.
func ListAmendments(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "amendment_handler.List")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, repo, err := ectoinject.GetContext[*amendment.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	items, err := repo.ListByIntervention(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// CreateAmendment begins an amendment by cloning the document into a shadow
// copy.
func CreateAmendment(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "amendment_handler.Create")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.CreateAmendmentRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, engine, err := ectoinject.GetContext[*amendments.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get amendment engine")
	}
	result, err := engine.Create(ctx, tenantID, c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

// MergeAmendment folds the shadow copy back into the original document.
func MergeAmendment(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "amendment_handler.Merge")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.MergeAmendmentRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, engine, err := ectoinject.GetContext[*amendments.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get amendment engine")
	}
	result, err := engine.Merge(ctx, tenantID, c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// DiffAmendment returns the field-level differences between the original and
// the shadow copy.
func DiffAmendment(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "amendment_handler.Diff")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, engine, err := ectoinject.GetContext[*amendments.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get amendment engine")
	}
	diff, err := engine.Diff(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, diff)
}

// DeleteAmendment abandons an open amendment.
func DeleteAmendment(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "amendment_handler.Delete")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, engine, err := ectoinject.GetContext[*amendments.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get amendment engine")
	}
	if err := engine.Delete(ctx, tenantID, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
