package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hirepath/intake/internal/healthcheck"
)

// HealthRunner evaluates dependency health checks.
type HealthRunner interface {
	Run(ctx context.Context) (string, []healthcheck.CheckResult)
}

// HealthHandler exposes dependency health over HTTP.
type HealthHandler struct {
	logger *slog.Logger
	runner HealthRunner
}

// NewHealthHandler creates a health endpoint handler.
func NewHealthHandler(log *slog.Logger, runner HealthRunner) *HealthHandler {
	return &HealthHandler{
		logger: log.With(slog.String("handler", "health")),
		runner: runner,
	}
}

func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.HEAD("/health", h.HealthHead)
}

// Health runs all dependency checks and reports them. A failing
// dependency yields 503 so load balancers can act on it.
func (h *HealthHandler) Health(c echo.Context) error {
	overall, checks := h.runner.Run(c.Request().Context())
	status := http.StatusOK
	if overall == healthcheck.StatusError {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]any{
		"status": overall,
		"checks": checks,
	})
}

// HealthHead is a lightweight liveness probe that skips dependency
// checks.
func (h *HealthHandler) HealthHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
