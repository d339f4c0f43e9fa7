// Package crm talks to the agency's CRM. The CRM is an opaque
// collaborator; every write here is best-effort per the intake contract.
// Failures are logged for manual reconciliation, never surfaced to the
// candidate.
package crm

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
)

// Lead is the CRM's view of a submitted application.
type Lead struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// FileAttachment is a named file reference forwarded to the CRM.
type FileAttachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Mime string `json:"mime,omitempty"`
}

// Client is the HTTP client for the CRM REST surface.
type Client struct {
	baseURL    string
	token      string
	logger     *slog.Logger
	httpClient *http.Client
}

// NewClient creates a CRM client.
func NewClient(log *slog.Logger, baseURL, token string) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		logger:     log.With(slog.String("service", "crm")),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Configured reports whether a CRM endpoint is set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// CreateOrUpdateContact upserts a contact by phone and returns its id.
func (c *Client) CreateOrUpdateContact(ctx context.Context, name, phone string) (string, error) {
	payload := map[string]string{"name": name, "phone": phone}
	var result struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/contacts", payload, &result); err != nil {
		return "", fmt.Errorf("create contact: %w", err)
	}
	if strings.TrimSpace(result.ID) == "" {
		return "", fmt.Errorf("create contact: response missing id")
	}
	return result.ID, nil
}

// CreateLead opens a lead for the contact with the structured application
// fields. File references are attached separately via AttachFile.
func (c *Client) CreateLead(ctx context.Context, contactID string, fields map[string]string) (Lead, error) {
	payload := map[string]any{"contactId": contactID, "fields": fields}
	var lead Lead
	if err := c.post(ctx, "/leads", payload, &lead); err != nil {
		return Lead{}, fmt.Errorf("create lead: %w", err)
	}
	if strings.TrimSpace(lead.ID) == "" {
		return Lead{}, fmt.Errorf("create lead: response missing id")
	}
	return lead, nil
}

// AttachFile uploads one file reference to a lead. Each attachment is
// independently best-effort at the call site.
func (c *Client) AttachFile(ctx context.Context, leadID string, file FileAttachment) error {
	if err := c.post(ctx, "/leads/"+leadID+"/files", file, nil); err != nil {
		return fmt.Errorf("attach file %q: %w", file.Name, err)
	}
	return nil
}

// AddNote appends a textual note to a lead; used as the fallback when a
// binary upload fails.
func (c *Client) AddNote(ctx context.Context, leadID, text string) error {
	if err := c.post(ctx, "/leads/"+leadID+"/notes", map[string]string{"text": text}, nil); err != nil {
		return fmt.Errorf("add note: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	if !c.Configured() {
		return fmt.Errorf("crm base url not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("crm status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse crm response: %w", err)
	}
	return nil
}
