package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
)

// Checker handles health check endpoints
type Checker struct {
	db        *sqlx.DB
	redis     interface {
		Ping(ctx context.Context) error
	}
	version   string
	startTime time.Time
	ready     atomic.Bool
}

// NewChecker creates a new health checker
func NewChecker(db *sqlx.DB, redis interface{ Ping(ctx context.Context) error }, version string) *Checker {
	return &Checker{
		db:        db,
		redis:     redis,
		version:   version,
		startTime: time.Now(),
	}
}

// SetReady sets the readiness state
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

// RegisterRoutes registers health check endpoints
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", c.Health)
	e.GET("/health/live", c.Live)
	e.GET("/health/ready", c.Ready)
}

// Health reports overall status with dependency checks.
func (c *Checker) Health(ec echo.Context) error {
	ctx, cancel := context.WithTimeout(ec.Request().Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	status := http.StatusOK

	if err := c.db.PingContext(ctx); err != nil {
		checks["database"] = "down"
		status = http.StatusServiceUnavailable
	} else {
		checks["database"] = "up"
	}
	if c.redis != nil {
		if err := c.redis.Ping(ctx); err != nil {
			checks["redis"] = "down"
			status = http.StatusServiceUnavailable
		} else {
			checks["redis"] = "up"
		}
	}

	return ec.JSON(status, map[string]any{
		"status":  httpStatusWord(status),
		"version": c.version,
		"uptime":  time.Since(c.startTime).String(),
		"checks":  checks,
	})
}

// Live always succeeds while the process is running.
func (c *Checker) Live(ec echo.Context) error {
	return ec.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether startup completed.
func (c *Checker) Ready(ec echo.Context) error {
	if !c.ready.Load() {
		return ec.JSON(http.StatusServiceUnavailable, map[string]string{"status": "starting"})
	}
	return ec.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

func httpStatusWord(status int) string {
	if status == http.StatusOK {
		return "ok"
	}
	return "degraded"
}
