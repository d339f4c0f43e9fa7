package healthcheck

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hirepath/intake/internal/channel"
)

// PostgresChecker verifies database connectivity.
type PostgresChecker struct {
	pool *pgxpool.Pool
}

// NewPostgresChecker creates a database connectivity checker.
func NewPostgresChecker(pool *pgxpool.Pool) *PostgresChecker {
	return &PostgresChecker{pool: pool}
}

func (c *PostgresChecker) ID() string { return "postgres" }

// Check pings the connection pool.
func (c *PostgresChecker) Check(ctx context.Context) CheckResult {
	if c.pool == nil {
		return CheckResult{ID: c.ID(), Status: StatusError, Summary: "pool not initialized"}
	}
	if err := c.pool.Ping(ctx); err != nil {
		return CheckResult{
			ID:      c.ID(),
			Status:  StatusError,
			Summary: "database unreachable",
			Detail:  err.Error(),
		}
	}
	return CheckResult{ID: c.ID(), Status: StatusOK, Summary: "database reachable"}
}

// HTTPChecker verifies that an upstream HTTP service answers at all.
// Any response counts as reachable, the checker does not interpret
// status codes beyond server errors.
type HTTPChecker struct {
	id      string
	baseURL string
	client  *http.Client
}

// NewHTTPChecker creates a reachability checker for an HTTP upstream.
func NewHTTPChecker(id, baseURL string) *HTTPChecker {
	return &HTTPChecker{
		id:      id,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *HTTPChecker) ID() string { return c.id }

// Check sends a HEAD request to the upstream base URL.
func (c *HTTPChecker) Check(ctx context.Context) CheckResult {
	if c.baseURL == "" {
		return CheckResult{ID: c.id, Status: StatusWarn, Summary: "not configured"}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return CheckResult{ID: c.id, Status: StatusError, Summary: "invalid base url", Detail: err.Error()}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return CheckResult{
			ID:      c.id,
			Status:  StatusError,
			Summary: "upstream unreachable",
			Detail:  err.Error(),
		}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return CheckResult{
			ID:      c.id,
			Status:  StatusWarn,
			Summary: fmt.Sprintf("upstream responded %d", resp.StatusCode),
		}
	}
	return CheckResult{ID: c.id, Status: StatusOK, Summary: "upstream reachable"}
}

// ChannelChecker verifies that at least one messaging channel is
// registered.
type ChannelChecker struct {
	registry *channel.Registry
}

// NewChannelChecker creates a channel registry checker.
func NewChannelChecker(registry *channel.Registry) *ChannelChecker {
	return &ChannelChecker{registry: registry}
}

func (c *ChannelChecker) ID() string { return "channels" }

// Check reports the registered channel types.
func (c *ChannelChecker) Check(ctx context.Context) CheckResult {
	types := c.registry.Types()
	if len(types) == 0 {
		return CheckResult{
			ID:      c.ID(),
			Status:  StatusError,
			Summary: "no channels registered",
		}
	}
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	return CheckResult{
		ID:      c.ID(),
		Status:  StatusOK,
		Summary: fmt.Sprintf("%d channel(s) active", len(types)),
		Detail:  strings.Join(names, ", "),
	}
}
