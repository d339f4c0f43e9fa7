package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hirepath/intake/internal/candidates"
	"github.com/hirepath/intake/internal/channel"
	"github.com/hirepath/intake/internal/healthcheck"
)

type recordingProcessor struct {
	events chan channel.InboundEvent
}

func newRecordingProcessor() *recordingProcessor {
	return &recordingProcessor{events: make(chan channel.InboundEvent, 8)}
}

func (p *recordingProcessor) Handle(_ context.Context, _ channel.Transport, event channel.InboundEvent) error {
	p.events <- event
	return nil
}

func (p *recordingProcessor) wait(t *testing.T) channel.InboundEvent {
	t.Helper()
	select {
	case event := <-p.events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("no event processed")
		return channel.InboundEvent{}
	}
}

type stubTransport struct {
	channelType channel.Type
}

func (s stubTransport) Type() channel.Type                             { return s.channelType }
func (s stubTransport) SendText(context.Context, string, string) error { return nil }
func (s stubTransport) SendTyping(context.Context, string) error       { return nil }
func (s stubTransport) ResolveFileURL(context.Context, string) (string, error) {
	return "", nil
}
func (s stubTransport) MaxAttachmentBytes() int64        { return 1 << 20 }
func (s stubTransport) MaxMessageLength() int            { return 4096 }
func (s stubTransport) NormalizePhone(raw string) string { return raw }

type stubTelegramGateway struct {
	stubTransport
	event channel.InboundEvent
	ok    bool
	err   error
}

func (s stubTelegramGateway) ParseUpdate([]byte) (channel.InboundEvent, bool, error) {
	return s.event, s.ok, s.err
}

type stubWhatsAppGateway struct {
	stubTransport
	events      []channel.InboundEvent
	parseErr    error
	verifyToken string
}

func (s stubWhatsAppGateway) ParseWebhook([]byte) ([]channel.InboundEvent, error) {
	return s.events, s.parseErr
}

func (s stubWhatsAppGateway) VerifyChallenge(mode, token, challenge string) (string, bool) {
	if mode != "subscribe" || token != s.verifyToken {
		return "", false
	}
	return challenge, true
}

func do(e *echo.Echo, method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestPing(t *testing.T) {
	t.Parallel()

	e := echo.New()
	NewPingHandler(slog.Default()).Register(e)

	rec := do(e, http.MethodGet, "/ping", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %#v", body)
	}
}

func TestTelegramWebhookAcksAndDispatches(t *testing.T) {
	t.Parallel()

	processor := newRecordingProcessor()
	gateway := stubTelegramGateway{
		stubTransport: stubTransport{channelType: "telegram"},
		event:         channel.InboundEvent{Channel: "telegram", ChatID: "42", Text: "hi"},
		ok:            true,
	}
	e := echo.New()
	NewTelegramWebhookHandler(slog.Default(), gateway, processor).Register(e)

	rec := do(e, http.MethodPost, "/channels/telegram/webhook", `{"update_id":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook must ack with 200, got %d", rec.Code)
	}
	event := processor.wait(t)
	if event.ChatID != "42" || event.Text != "hi" {
		t.Fatalf("unexpected event: %#v", event)
	}
}

func TestTelegramWebhookSkipsIgnorableUpdates(t *testing.T) {
	t.Parallel()

	processor := newRecordingProcessor()
	gateway := stubTelegramGateway{stubTransport: stubTransport{channelType: "telegram"}}
	e := echo.New()
	NewTelegramWebhookHandler(slog.Default(), gateway, processor).Register(e)

	rec := do(e, http.MethodPost, "/channels/telegram/webhook", `{"update_id":2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("ignorable updates still ack: %d", rec.Code)
	}
	select {
	case event := <-processor.events:
		t.Fatalf("nothing should be dispatched: %#v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTelegramWebhookRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	processor := newRecordingProcessor()
	gateway := stubTelegramGateway{
		stubTransport: stubTransport{channelType: "telegram"},
		err:           errors.New("decode failed"),
	}
	e := echo.New()
	NewTelegramWebhookHandler(slog.Default(), gateway, processor).Register(e)

	rec := do(e, http.MethodPost, "/channels/telegram/webhook", "{broken")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWhatsAppVerifyHandshake(t *testing.T) {
	t.Parallel()

	gateway := stubWhatsAppGateway{
		stubTransport: stubTransport{channelType: "whatsapp"},
		verifyToken:   "verify-1",
	}
	e := echo.New()
	NewWhatsAppWebhookHandler(slog.Default(), gateway, newRecordingProcessor()).Register(e)

	rec := do(e, http.MethodGet, "/channels/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=verify-1&hub.challenge=777", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "777" {
		t.Fatalf("expected challenge echo, got %d %q", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodGet, "/channels/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=777", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestWhatsAppWebhookDispatchesBatch(t *testing.T) {
	t.Parallel()

	processor := newRecordingProcessor()
	gateway := stubWhatsAppGateway{
		stubTransport: stubTransport{channelType: "whatsapp"},
		events: []channel.InboundEvent{
			{Channel: "whatsapp", ChatID: "111", Text: "one"},
			{Channel: "whatsapp", ChatID: "222", Text: "two"},
		},
	}
	e := echo.New()
	NewWhatsAppWebhookHandler(slog.Default(), gateway, processor).Register(e)

	rec := do(e, http.MethodPost, "/channels/whatsapp/webhook", `{"entry":[]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook must ack with 200, got %d", rec.Code)
	}
	seen := map[string]bool{}
	seen[processor.wait(t).ChatID] = true
	seen[processor.wait(t).ChatID] = true
	if !seen["111"] || !seen["222"] {
		t.Fatalf("both events should dispatch: %#v", seen)
	}
}

type stubWebhookTransport struct {
	stubTransport
	setURL  string
	setErr  error
	info    map[string]any
	deleted bool
}

func (s *stubWebhookTransport) SetWebhook(_ context.Context, url string) error {
	s.setURL = url
	return s.setErr
}

func (s *stubWebhookTransport) WebhookInfo(context.Context) (map[string]any, error) {
	return s.info, nil
}

func (s *stubWebhookTransport) DeleteWebhook(context.Context) error {
	s.deleted = true
	return nil
}

func TestWebhookAdminRegisterDefaultsURL(t *testing.T) {
	t.Parallel()

	registry := channel.NewRegistry()
	transport := &stubWebhookTransport{stubTransport: stubTransport{channelType: "telegram"}}
	registry.MustRegister(transport)
	e := echo.New()
	NewWebhookAdminHandler(slog.Default(), registry, "https://intake.example/").Register(e)

	rec := do(e, http.MethodPost, "/webhook/register", `{"channel":"telegram"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", rec.Code, rec.Body.String())
	}
	if transport.setURL != "https://intake.example/channels/telegram/webhook" {
		t.Fatalf("unexpected url: %s", transport.setURL)
	}
}

func TestWebhookAdminUnsupportedChannel(t *testing.T) {
	t.Parallel()

	registry := channel.NewRegistry()
	registry.MustRegister(stubTransport{channelType: "whatsapp"})
	e := echo.New()
	NewWebhookAdminHandler(slog.Default(), registry, "").Register(e)

	rec := do(e, http.MethodPost, "/webhook/register", `{"channel":"whatsapp"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("whatsapp has no programmatic webhook, got %d", rec.Code)
	}
	rec = do(e, http.MethodPost, "/webhook/register", `{"channel":"discord"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown channel should 404, got %d", rec.Code)
	}
}

func TestWebhookAdminInfoAndDelete(t *testing.T) {
	t.Parallel()

	registry := channel.NewRegistry()
	transport := &stubWebhookTransport{
		stubTransport: stubTransport{channelType: "telegram"},
		info:          map[string]any{"url": "https://intake.example/hook"},
	}
	registry.MustRegister(transport)
	e := echo.New()
	NewWebhookAdminHandler(slog.Default(), registry, "").Register(e)

	rec := do(e, http.MethodGet, "/webhook/info?channel=telegram", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "intake.example") {
		t.Fatalf("unexpected info response: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodDelete, "/webhook?channel=telegram", "")
	if rec.Code != http.StatusOK || !transport.deleted {
		t.Fatalf("delete failed: %d deleted=%v", rec.Code, transport.deleted)
	}
}

type stubFinder struct {
	candidate candidates.Candidate
	found     bool
	err       error
	lastPhone string
	lastName  string
}

func (s *stubFinder) FindByPhone(_ context.Context, rawPhone string) (candidates.Candidate, bool, error) {
	s.lastPhone = rawPhone
	return s.candidate, s.found, s.err
}

func (s *stubFinder) FindByName(_ context.Context, name string) (candidates.Candidate, bool, error) {
	s.lastName = name
	return s.candidate, s.found, s.err
}

func TestCandidateLookup(t *testing.T) {
	t.Parallel()

	finder := &stubFinder{
		candidate: candidates.Candidate{ID: "c-1", Name: "Ann", NormalizedPhone: "+79991234567"},
		found:     true,
	}
	e := echo.New()
	NewCandidatesHandler(slog.Default(), finder).Register(e)

	rec := do(e, http.MethodGet, "/candidates/lookup?phone=%2B79991234567", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if finder.lastPhone != "+79991234567" {
		t.Fatalf("phone not forwarded: %q", finder.lastPhone)
	}

	rec = do(e, http.MethodGet, "/candidates/lookup", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without criteria, got %d", rec.Code)
	}

	finder.found = false
	rec = do(e, http.MethodGet, "/candidates/lookup?name=Bob", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for miss, got %d", rec.Code)
	}
}

type stubHealthRunner struct {
	overall string
	checks  []healthcheck.CheckResult
}

func (r *stubHealthRunner) Run(_ context.Context) (string, []healthcheck.CheckResult) {
	return r.overall, r.checks
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	runner := &stubHealthRunner{
		overall: healthcheck.StatusOK,
		checks: []healthcheck.CheckResult{
			{ID: "postgres", Status: healthcheck.StatusOK, Summary: "database reachable"},
		},
	}
	e := echo.New()
	NewHealthHandler(slog.Default(), runner).Register(e)

	rec := do(e, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var body struct {
		Status string                    `json:"status"`
		Checks []healthcheck.CheckResult `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != healthcheck.StatusOK || len(body.Checks) != 1 {
		t.Fatalf("unexpected body: %+v", body)
	}

	runner.overall = healthcheck.StatusError
	rec = do(e, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on failing dependency, got %d", rec.Code)
	}

	rec = do(e, http.MethodHead, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("liveness probe should not depend on checks, got %d", rec.Code)
	}
}
