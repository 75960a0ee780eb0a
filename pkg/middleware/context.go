package middleware

import (
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/appcontext"
)

const (
	// HeaderTenantID is the header key for tenant ID
	HeaderTenantID = "X-Tenant-ID"
	// HeaderUserID is the header key for user ID
	HeaderUserID = "X-User-ID"
	// HeaderUserRoles is the header key for comma-separated user roles.
	// Overwritten by the authentication middleware when auth is enabled.
	HeaderUserRoles = "X-User-Roles"
)

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			tenantID := req.Header.Get(HeaderTenantID)
			userID := req.Header.Get(HeaderUserID)

			var roles []string
			if raw := req.Header.Get(HeaderUserRoles); raw != "" {
				for _, role := range strings.Split(raw, ",") {
					roles = append(roles, strings.TrimSpace(role))
				}
			}

			ctx := req.Context()
			ctx = appcontext.SetRequestID(ctx, requestID)
			ctx = appcontext.SetMethod(ctx, req.Method)
			ctx = appcontext.SetRoute(ctx, req.URL.Path)
			ctx = appcontext.SetRemoteIP(ctx, c.RealIP())
			ctx = appcontext.SetTenantID(ctx, tenantID)
			ctx = appcontext.SetUserID(ctx, userID)
			ctx = appcontext.SetUserRoles(ctx, roles)

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
