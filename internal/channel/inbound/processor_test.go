package inbound

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hirepath/intake/internal/channel"
	"github.com/hirepath/intake/internal/correlation"
	"github.com/hirepath/intake/internal/gateway"
	"github.com/hirepath/intake/internal/session"
	"github.com/hirepath/intake/internal/submission"
)

type fakeTransport struct {
	sent       []string
	typing     int
	resolveErr error
	urls       map[string]string
	maxBytes   int64
	maxLen     int
}

func (t *fakeTransport) Type() channel.Type { return "telegram" }

func (t *fakeTransport) SendText(_ context.Context, _ string, text string) error {
	t.sent = append(t.sent, text)
	return nil
}

func (t *fakeTransport) SendTyping(context.Context, string) error {
	t.typing++
	return nil
}

func (t *fakeTransport) ResolveFileURL(_ context.Context, key string) (string, error) {
	if t.resolveErr != nil {
		return "", t.resolveErr
	}
	return t.urls[key], nil
}

func (t *fakeTransport) MaxAttachmentBytes() int64 {
	if t.maxBytes == 0 {
		return 20 * 1024 * 1024
	}
	return t.maxBytes
}

func (t *fakeTransport) MaxMessageLength() int {
	if t.maxLen == 0 {
		return 4096
	}
	return t.maxLen
}

func (t *fakeTransport) NormalizePhone(raw string) string {
	return strings.TrimPrefix(raw, "whatsapp:")
}

type fakeAgent struct {
	resp   gateway.Response
	err    error
	onSend func(gateway.Request)
}

func (a *fakeAgent) Send(_ context.Context, req gateway.Request) (gateway.Response, error) {
	if a.onSend != nil {
		a.onSend(req)
	}
	return a.resp, a.err
}

type fakeSubmitter struct {
	input  submission.Input
	result submission.Result
	err    error
	called int
}

func (s *fakeSubmitter) Finalize(_ context.Context, input submission.Input) (submission.Result, error) {
	s.called++
	s.input = input
	return s.result, s.err
}

type fakeUploader struct {
	durableURL string
}

func (u fakeUploader) Upload(context.Context, string, string, string) string {
	return u.durableURL
}

type pipeline struct {
	processor    *Processor
	sessions     *session.Store
	correlations *correlation.Store
	agent        *fakeAgent
	submitter    *fakeSubmitter
	slept        *int
}

func newPipeline(t *testing.T, agent *fakeAgent, submitter *fakeSubmitter) pipeline {
	t.Helper()
	sessions := session.NewStore(nil, 0)
	correlations := correlation.NewStore(nil)
	processor := NewProcessor(nil, sessions, correlations, agent, submitter, nil, time.Millisecond)
	slept := 0
	processor.sleep = func(time.Duration) { slept++ }
	return pipeline{processor, sessions, correlations, agent, submitter, &slept}
}

func event(text string, att *channel.Attachment) channel.InboundEvent {
	return channel.InboundEvent{
		Channel:    "telegram",
		ChatID:     "42",
		Sender:     channel.Identity{SubjectID: "42", DisplayName: "Ann"},
		Text:       text,
		Attachment: att,
		ReceivedAt: time.Now(),
	}
}

func TestHandleBuffersResume(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, &fakeAgent{}, &fakeSubmitter{})
	transport := &fakeTransport{urls: map[string]string{"file-1": "https://cdn/cv.pdf"}}

	err := p.processor.Handle(context.Background(), transport, event("", &channel.Attachment{
		PlatformKey: "file-1", Name: "cv.pdf", Mime: "application/pdf", SizeBytes: 1024,
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	buffered := p.sessions.Snapshot("telegram:42")
	if len(buffered) != 1 || buffered[0].Kind != channel.FileResume {
		t.Fatalf("expected buffered resume, got %#v", buffered)
	}
	if buffered[0].URL != "https://cdn/cv.pdf" {
		t.Fatalf("url not resolved: %#v", buffered[0])
	}
	if len(transport.sent) != 1 || !strings.Contains(transport.sent[0], "resume") {
		t.Fatalf("expected resume ack, got %#v", transport.sent)
	}
}

func TestHandleUnknownAttachmentNotBuffered(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, &fakeAgent{}, &fakeSubmitter{})
	transport := &fakeTransport{}

	err := p.processor.Handle(context.Background(), transport, event("", &channel.Attachment{
		PlatformKey: "file-1", Name: "archive.zip", Mime: "application/zip",
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := p.sessions.Snapshot("telegram:42"); got != nil {
		t.Fatalf("unknown file must not be buffered: %#v", got)
	}
	if len(transport.sent) != 1 || !strings.Contains(transport.sent[0], "couldn't tell") {
		t.Fatalf("expected clarifying question, got %#v", transport.sent)
	}
}

func TestHandleOversizedAttachmentRejected(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, &fakeAgent{}, &fakeSubmitter{})
	transport := &fakeTransport{maxBytes: 1024}

	err := p.processor.Handle(context.Background(), transport, event("", &channel.Attachment{
		PlatformKey: "file-1", Name: "cv.pdf", Mime: "application/pdf", SizeBytes: 2048,
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := p.sessions.Snapshot("telegram:42"); got != nil {
		t.Fatalf("oversized file must not be buffered: %#v", got)
	}
	if len(transport.sent) != 1 || !strings.Contains(transport.sent[0], "too large") {
		t.Fatalf("expected size rejection, got %#v", transport.sent)
	}
}

func TestHandleResolveFailureStillBuffers(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, &fakeAgent{}, &fakeSubmitter{})
	transport := &fakeTransport{resolveErr: errors.New("file api down")}

	err := p.processor.Handle(context.Background(), transport, event("", &channel.Attachment{
		PlatformKey: "file-1", Name: "cv.pdf", Mime: "application/pdf",
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	buffered := p.sessions.Snapshot("telegram:42")
	if len(buffered) != 1 || buffered[0].URL != "" {
		t.Fatalf("expected buffered ref without url, got %#v", buffered)
	}
}

func TestHandleDurableUploadReplacesURL(t *testing.T) {
	t.Parallel()

	sessions := session.NewStore(nil, 0)
	correlations := correlation.NewStore(nil)
	processor := NewProcessor(nil, sessions, correlations, &fakeAgent{}, &fakeSubmitter{},
		fakeUploader{durableURL: "https://drive/cv"}, time.Millisecond)
	transport := &fakeTransport{urls: map[string]string{"file-1": "https://cdn/cv.pdf"}}

	if err := processor.Handle(context.Background(), transport, event("", &channel.Attachment{
		PlatformKey: "file-1", Name: "cv.pdf", Mime: "application/pdf",
	})); err != nil {
		t.Fatalf("handle: %v", err)
	}
	buffered := sessions.Snapshot("telegram:42")
	if len(buffered) != 1 || buffered[0].URL != "https://drive/cv" {
		t.Fatalf("durable url should replace transient, got %#v", buffered)
	}
}

func TestHandlePhoneInTextPublishesBeforeAgent(t *testing.T) {
	t.Parallel()

	publishedAtSend := -1
	agent := &fakeAgent{resp: gateway.Response{Reply: "noted"}}
	p := newPipeline(t, agent, &fakeSubmitter{})
	agent.onSend = func(gateway.Request) {
		publishedAtSend = p.correlations.Len()
	}
	transport := &fakeTransport{urls: map[string]string{"file-1": "https://cdn/cv.pdf"}}

	ctx := context.Background()
	if err := p.processor.Handle(ctx, transport, event("", &channel.Attachment{
		PlatformKey: "file-1", Name: "cv.pdf", Mime: "application/pdf",
	})); err != nil {
		t.Fatalf("file turn: %v", err)
	}
	if err := p.processor.Handle(ctx, transport, event("My number is +7 999 123-45-67", nil)); err != nil {
		t.Fatalf("text turn: %v", err)
	}

	if publishedAtSend != 1 {
		t.Fatalf("buffered files must be published before the agent turn, store had %d entries", publishedAtSend)
	}
	if resume, _ := p.correlations.Consume("+79991234567"); resume == nil {
		t.Fatal("expected resume under normalized phone")
	}
	if got := p.sessions.Phone("telegram:42"); got != "+79991234567" {
		t.Fatalf("session phone not recorded: %q", got)
	}
}

func TestHandleLateFileCorrelatesViaKnownPhone(t *testing.T) {
	t.Parallel()

	agent := &fakeAgent{resp: gateway.Response{Reply: "ok"}}
	p := newPipeline(t, agent, &fakeSubmitter{})
	transport := &fakeTransport{urls: map[string]string{"file-1": "https://cdn/cv.pdf"}}

	ctx := context.Background()
	if err := p.processor.Handle(ctx, transport, event("call me at 89991234567", nil)); err != nil {
		t.Fatalf("text turn: %v", err)
	}
	if err := p.processor.Handle(ctx, transport, event("", &channel.Attachment{
		PlatformKey: "file-1", Name: "cv.pdf", Mime: "application/pdf",
	})); err != nil {
		t.Fatalf("file turn: %v", err)
	}

	if resume, _ := p.correlations.Consume("+79991234567"); resume == nil {
		t.Fatal("file arriving after the phone should correlate immediately")
	}
}

func TestHandleAgentFailureApologizes(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, &fakeAgent{err: errors.New("gateway 502")}, &fakeSubmitter{})
	transport := &fakeTransport{}

	if err := p.processor.Handle(context.Background(), transport, event("hello", nil)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(transport.sent) != 1 || !strings.Contains(transport.sent[0], "went wrong") {
		t.Fatalf("expected apology, got %#v", transport.sent)
	}
	if !strings.Contains(transport.sent[0], "ref ") {
		t.Fatalf("apology should carry an incident reference: %q", transport.sent[0])
	}
}

func TestHandleEmptyReplyFallsBack(t *testing.T) {
	t.Parallel()

	agent := &fakeAgent{resp: gateway.Response{
		ToolCalls: []gateway.ToolCall{{Name: gateway.ToolSaveContact}},
	}}
	p := newPipeline(t, agent, &fakeSubmitter{})
	transport := &fakeTransport{}

	if err := p.processor.Handle(context.Background(), transport, event("hi", nil)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(transport.sent) != 1 || transport.sent[0] != gateway.FallbackReply(gateway.ToolSaveContact) {
		t.Fatalf("expected save_contact fallback, got %#v", transport.sent)
	}
}

func TestHandleSubmissionClearsSessionAndAppendsReminders(t *testing.T) {
	t.Parallel()

	agent := &fakeAgent{resp: gateway.Response{
		Reply: "All set!",
		ToolCalls: []gateway.ToolCall{{
			Name: gateway.ToolSubmitApplication,
			Arguments: map[string]any{
				"name": "Ann", "phone": "+79991234567", "position": "courier",
			},
		}},
	}}
	submitter := &fakeSubmitter{result: submission.Result{
		Ack:       "Thanks, Ann!",
		Reminders: []string{"Please send your resume when you have it handy."},
	}}
	p := newPipeline(t, agent, submitter)
	transport := &fakeTransport{urls: map[string]string{"file-1": "https://cdn/cv.pdf"}}

	ctx := context.Background()
	if err := p.processor.Handle(ctx, transport, event("", &channel.Attachment{
		PlatformKey: "file-1", Name: "cv.pdf", Mime: "application/pdf",
	})); err != nil {
		t.Fatalf("file turn: %v", err)
	}
	if err := p.processor.Handle(ctx, transport, event("submit it please", nil)); err != nil {
		t.Fatalf("text turn: %v", err)
	}

	if submitter.called != 1 {
		t.Fatalf("expected one finalize call, got %d", submitter.called)
	}
	if submitter.input.Name != "Ann" || submitter.input.Position != "courier" {
		t.Fatalf("unexpected submission input: %#v", submitter.input)
	}
	if got := p.sessions.Snapshot("telegram:42"); got != nil {
		t.Fatalf("session buffer should be cleared after submission: %#v", got)
	}
	final := transport.sent[len(transport.sent)-1]
	if !strings.Contains(final, "All set!") || !strings.Contains(final, "resume") {
		t.Fatalf("reply should keep agent text and append reminder: %q", final)
	}
}

func TestHandleSubmissionFallsBackToSessionPhone(t *testing.T) {
	t.Parallel()

	agent := &fakeAgent{resp: gateway.Response{
		ToolCalls: []gateway.ToolCall{{
			Name:      gateway.ToolSubmitApplication,
			Arguments: map[string]any{"name": "Ann"},
		}},
	}}
	submitter := &fakeSubmitter{result: submission.Result{Ack: "Thanks!"}}
	p := newPipeline(t, agent, submitter)
	transport := &fakeTransport{}

	ctx := context.Background()
	if err := p.processor.Handle(ctx, transport, event("my phone is 89991234567", nil)); err != nil {
		t.Fatalf("text turn: %v", err)
	}
	if submitter.input.Phone != "+79991234567" {
		t.Fatalf("session phone should backfill the submission: %#v", submitter.input)
	}
}

func TestHandleSubmissionFailureKeepsBuffer(t *testing.T) {
	t.Parallel()

	agent := &fakeAgent{resp: gateway.Response{
		ToolCalls: []gateway.ToolCall{{Name: gateway.ToolSubmitApplication, Arguments: map[string]any{}}},
	}}
	submitter := &fakeSubmitter{err: errors.New("invalid submission")}
	p := newPipeline(t, agent, submitter)
	transport := &fakeTransport{urls: map[string]string{"file-1": "https://cdn/cv.pdf"}}

	ctx := context.Background()
	if err := p.processor.Handle(ctx, transport, event("", &channel.Attachment{
		PlatformKey: "file-1", Name: "cv.pdf", Mime: "application/pdf",
	})); err != nil {
		t.Fatalf("file turn: %v", err)
	}
	if err := p.processor.Handle(ctx, transport, event("submit", nil)); err != nil {
		t.Fatalf("text turn: %v", err)
	}

	if got := p.sessions.Snapshot("telegram:42"); len(got) != 1 {
		t.Fatalf("rejected submission must keep the buffer: %#v", got)
	}
	final := transport.sent[len(transport.sent)-1]
	if !strings.Contains(final, "missing something") {
		t.Fatalf("expected clarification request, got %q", final)
	}
}

func TestHandleSplitsLongRepliesWithPacing(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 30) + "\n\n" + strings.Repeat("b", 30) + "\n\n" + strings.Repeat("c", 30)
	p := newPipeline(t, &fakeAgent{resp: gateway.Response{Reply: long}}, &fakeSubmitter{})
	transport := &fakeTransport{maxLen: 40}

	if err := p.processor.Handle(context.Background(), transport, event("hi", nil)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(transport.sent) != 3 {
		t.Fatalf("expected 3 chunks, got %#v", transport.sent)
	}
	if *p.slept != 2 {
		t.Fatalf("expected pacing between chunks, slept %d times", *p.slept)
	}
	if transport.typing != 1 {
		t.Fatalf("expected one typing indicator, got %d", transport.typing)
	}
}

func TestHandleCaptionedFileGoesThroughAgent(t *testing.T) {
	t.Parallel()

	agent := &fakeAgent{resp: gateway.Response{Reply: "thanks for the caption"}}
	p := newPipeline(t, agent, &fakeSubmitter{})
	transport := &fakeTransport{urls: map[string]string{"file-1": "https://cdn/cv.pdf"}}

	if err := p.processor.Handle(context.Background(), transport, event("here is my cv", &channel.Attachment{
		PlatformKey: "file-1", Name: "cv.pdf", Mime: "application/pdf",
	})); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(p.sessions.Snapshot("telegram:42")) != 1 {
		t.Fatal("captioned file should still be buffered")
	}
	if len(transport.sent) != 1 || transport.sent[0] != "thanks for the caption" {
		t.Fatalf("caption should go through the agent, got %#v", transport.sent)
	}
}

func TestHandleRequiresChatID(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, &fakeAgent{}, &fakeSubmitter{})
	evt := event("hi", nil)
	evt.ChatID = " "
	if err := p.processor.Handle(context.Background(), &fakeTransport{}, evt); err == nil {
		t.Fatal("expected error for missing chat id")
	}
}
