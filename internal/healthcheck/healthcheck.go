// Package healthcheck evaluates the runtime health of the intake
// service's external dependencies.
package healthcheck

import (
	"context"
	"log/slog"
	"time"
)

const (
	// StatusOK indicates check passed.
	StatusOK = "ok"
	// StatusWarn indicates check completed with warning.
	StatusWarn = "warn"
	// StatusError indicates check failed.
	StatusError = "error"
)

const defaultCheckTimeout = 5 * time.Second

// CheckResult is one runtime check item produced by a checker.
type CheckResult struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Summary string `json:"summary"`
	Detail  string `json:"detail,omitempty"`
}

// Checker evaluates a single runtime check.
type Checker interface {
	ID() string
	Check(ctx context.Context) CheckResult
}

// Runner evaluates all registered checkers with a per-check timeout.
type Runner struct {
	logger   *slog.Logger
	checkers []Checker
	timeout  time.Duration
}

// NewRunner creates a health check runner.
func NewRunner(log *slog.Logger, checkers ...Checker) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		logger:   log.With(slog.String("service", "healthcheck")),
		checkers: checkers,
		timeout:  defaultCheckTimeout,
	}
}

// Run evaluates every checker and reports the worst observed status
// alongside the individual results.
func (r *Runner) Run(ctx context.Context) (string, []CheckResult) {
	overall := StatusOK
	results := make([]CheckResult, 0, len(r.checkers))
	for _, checker := range r.checkers {
		checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
		result := checker.Check(checkCtx)
		cancel()
		if result.ID == "" {
			result.ID = checker.ID()
		}
		if result.Status == StatusError {
			r.logger.Warn("health check failed",
				slog.String("check", result.ID),
				slog.String("detail", result.Detail))
		}
		overall = worseOf(overall, result.Status)
		results = append(results, result)
	}
	return overall, results
}

func worseOf(a, b string) string {
	rank := map[string]int{StatusOK: 0, StatusWarn: 1, StatusError: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
