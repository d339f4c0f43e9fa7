// Package gateway talks to the hosted conversational agent. The agent is
// an opaque collaborator: this package only implements its request and
// response contract plus the fallback-reply policy applied when a turn
// ends without user-visible text.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hirepath/intake/internal/phone"
)

// Tool names the agent invokes; the finalizer acts on ToolSubmitApplication.
const (
	ToolSubmitApplication = "submit_application"
	ToolFindCandidate     = "find_candidate"
	ToolSaveContact       = "save_contact"
)

// Request is one conversational turn sent to the agent.
type Request struct {
	Text       string `json:"text"`
	ThreadID   string `json:"threadId"`
	ResourceID string `json:"resourceId"`
}

// ToolCall records a tool the agent decided to invoke, with its arguments.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult records the structured outcome of a tool the agent executed.
type ToolResult struct {
	Name    string         `json:"name"`
	Content map[string]any `json:"content"`
}

// Response is the agent's turn: reply text may be empty when the agent
// only executed a tool without a closing message.
type Response struct {
	Reply        string       `json:"reply"`
	ToolCalls    []ToolCall   `json:"toolCalls"`
	ToolResults  []ToolResult `json:"toolResults"`
	FinishReason string       `json:"finishReason"`
}

// LastToolName returns the name of the most recent tool invocation, or "".
func (r Response) LastToolName() string {
	if len(r.ToolCalls) == 0 {
		return ""
	}
	return r.ToolCalls[len(r.ToolCalls)-1].Name
}

// SubmissionCall returns the submit_application tool call, if the agent
// decided to submit this turn.
func (r Response) SubmissionCall() (ToolCall, bool) {
	for _, call := range r.ToolCalls {
		if call.Name == ToolSubmitApplication {
			return call, true
		}
	}
	return ToolCall{}, false
}

// Client is the HTTP client for the agent gateway.
type Client struct {
	baseURL    string
	timeout    time.Duration
	logger     *slog.Logger
	httpClient *http.Client
}

// NewClient creates a gateway client for the given base URL.
func NewClient(log *slog.Logger, baseURL string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "http://127.0.0.1:8081"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		timeout:    timeout,
		logger:     log.With(slog.String("service", "gateway")),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Send posts one turn to the agent and parses its response.
func (c *Client) Send(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, err
	}
	url := c.baseURL + "/chat/"
	c.logger.Info("gateway request",
		slog.String("thread_id", req.ThreadID),
		slog.String("text_prefix", truncate(req.Text, 120)),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("gateway error",
			slog.Int("status", resp.StatusCode),
			slog.String("body_prefix", truncate(string(respBody), 300)),
		)
		return Response{}, fmt.Errorf("agent gateway error: %s", strings.TrimSpace(string(respBody)))
	}

	var parsed Response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		c.logger.Error("gateway response parse failed",
			slog.String("body_prefix", truncate(string(respBody), 300)),
			slog.Any("error", err),
		)
		return Response{}, fmt.Errorf("failed to parse gateway response: %w", err)
	}
	return parsed, nil
}

// PhoneFromTools extracts a phone value observed in tool invocations or
// results, covering the case where the phone was revealed through
// structured tool data rather than free text. Returns the normalized
// phone or "".
func PhoneFromTools(resp Response) string {
	for _, call := range resp.ToolCalls {
		if p := phoneFromMap(call.Arguments); p != "" {
			return p
		}
	}
	for _, result := range resp.ToolResults {
		if p := phoneFromMap(result.Content); p != "" {
			return p
		}
	}
	return ""
}

func phoneFromMap(fields map[string]any) string {
	for _, key := range []string{"phone", "phoneNumber", "phone_number"} {
		raw, ok := fields[key].(string)
		if !ok {
			continue
		}
		if normalized := phone.Normalize(raw); normalized != "" {
			return normalized
		}
	}
	return ""
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
