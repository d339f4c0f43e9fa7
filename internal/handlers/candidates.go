package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hirepath/intake/internal/candidates"
)

// CandidateFinder is the lookup surface the handler needs.
type CandidateFinder interface {
	FindByPhone(ctx context.Context, rawPhone string) (candidates.Candidate, bool, error)
	FindByName(ctx context.Context, name string) (candidates.Candidate, bool, error)
}

// CandidatesHandler exposes the JWT-protected candidate lookup used by
// recruiters and the token CLI.
type CandidatesHandler struct {
	finder CandidateFinder
	logger *slog.Logger
}

func NewCandidatesHandler(log *slog.Logger, finder CandidateFinder) *CandidatesHandler {
	return &CandidatesHandler{
		finder: finder,
		logger: log.With(slog.String("handler", "candidates")),
	}
}

func (h *CandidatesHandler) Register(e *echo.Echo) {
	e.GET("/candidates/lookup", h.Lookup)
}

// Lookup finds a candidate by phone (preferred) or name.
func (h *CandidatesHandler) Lookup(c echo.Context) error {
	phone := strings.TrimSpace(c.QueryParam("phone"))
	name := strings.TrimSpace(c.QueryParam("name"))
	if phone == "" && name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "phone or name is required")
	}

	ctx := c.Request().Context()
	var (
		candidate candidates.Candidate
		found     bool
		err       error
	)
	if phone != "" {
		candidate, found, err = h.finder.FindByPhone(ctx, phone)
	} else {
		candidate, found, err = h.finder.FindByName(ctx, name)
	}
	if err != nil {
		h.logger.Error("candidate lookup failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "candidate not found")
	}
	return c.JSON(http.StatusOK, candidate)
}
