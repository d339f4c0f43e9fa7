// Package inbound implements the shared message pipeline every channel
// adapter feeds into: attachment classification and buffering, phone
// detection and correlation, the agent round-trip, submission dispatch,
// and paced reply delivery. The pipeline exists exactly once; adapters
// only translate platform payloads into channel.InboundEvent.
package inbound

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hirepath/intake/internal/channel"
	"github.com/hirepath/intake/internal/correlation"
	"github.com/hirepath/intake/internal/gateway"
	"github.com/hirepath/intake/internal/phone"
	"github.com/hirepath/intake/internal/session"
	"github.com/hirepath/intake/internal/storage"
	"github.com/hirepath/intake/internal/submission"
)

const defaultReplyPacing = 400 * time.Millisecond

// Agent is the conversational backend the processor round-trips each text
// turn through.
type Agent interface {
	Send(ctx context.Context, req gateway.Request) (gateway.Response, error)
}

// Submitter finalizes an application once the agent decides to submit.
type Submitter interface {
	Finalize(ctx context.Context, input submission.Input) (submission.Result, error)
}

// Processor is the channel-agnostic inbound pipeline.
type Processor struct {
	sessions     *session.Store
	correlations *correlation.Store
	agent        Agent
	submitter    Submitter
	uploader     storage.Uploader
	pacing       time.Duration
	sleep        func(time.Duration)
	logger       *slog.Logger
}

// NewProcessor wires the pipeline. The uploader may be storage.Disabled
// when durable re-upload is not configured.
func NewProcessor(log *slog.Logger, sessions *session.Store, correlations *correlation.Store, agent Agent, submitter Submitter, uploader storage.Uploader, pacing time.Duration) *Processor {
	if log == nil {
		log = slog.Default()
	}
	if uploader == nil {
		uploader = storage.Disabled{}
	}
	if pacing <= 0 {
		pacing = defaultReplyPacing
	}
	return &Processor{
		sessions:     sessions,
		correlations: correlations,
		agent:        agent,
		submitter:    submitter,
		uploader:     uploader,
		pacing:       pacing,
		sleep:        time.Sleep,
		logger:       log.With(slog.String("service", "inbound")),
	}
}

// Handle processes one inbound event end to end. Webhook handlers call it
// on a detached goroutine after acknowledging the platform; the returned
// error covers reply delivery only, everything upstream is handled
// internally.
func (p *Processor) Handle(ctx context.Context, transport channel.Transport, event channel.InboundEvent) error {
	if strings.TrimSpace(event.ChatID) == "" {
		return fmt.Errorf("inbound event without chat id on %s", event.Channel)
	}

	if event.Attachment != nil {
		ack, done := p.handleAttachment(ctx, transport, event)
		if done || strings.TrimSpace(event.Text) == "" {
			return p.deliver(ctx, transport, event.ChatID, ack)
		}
		// A captioned file: the file is buffered, the caption still
		// goes through the agent as a regular turn.
	}

	if strings.TrimSpace(event.Text) == "" {
		return nil
	}
	return p.handleText(ctx, transport, event)
}

// handleAttachment classifies, resolves, and buffers one file. The second
// return value reports whether the event is fully handled (rejections and
// uncaptioned files); the first is the reply to send in that case.
func (p *Processor) handleAttachment(ctx context.Context, transport channel.Transport, event channel.InboundEvent) (string, bool) {
	att := *event.Attachment
	key := event.SessionKey()

	kind := channel.Classify(att)
	if kind == channel.FileUnknown {
		p.logger.Info("unclassifiable attachment",
			slog.String("session", key),
			slog.String("name", att.Name),
			slog.String("mime", att.Mime))
		return "I couldn't tell what this file is. If it's your resume, a PDF or Word document works best; intro videos are welcome as regular video files.", true
	}
	if limit := transport.MaxAttachmentBytes(); limit > 0 && att.SizeBytes > limit {
		p.logger.Info("attachment over size limit",
			slog.String("session", key),
			slog.Int64("size", att.SizeBytes),
			slog.Int64("limit", limit))
		return fmt.Sprintf("That file is too large for me to receive here (the limit is %d MB). Could you send a smaller version, or a link to it?", limit/(1024*1024)), true
	}

	ref := channel.FileRef{
		Kind:        kind,
		PlatformKey: att.PlatformKey,
		Name:        att.Name,
		Mime:        att.Mime,
		DurationSec: att.DurationSec,
	}
	if att.PlatformKey != "" {
		url, err := transport.ResolveFileURL(ctx, att.PlatformKey)
		if err != nil {
			p.logger.Warn("resolve file url failed",
				slog.String("session", key),
				slog.String("platform_key", att.PlatformKey),
				slog.Any("error", err))
		} else {
			ref.URL = url
		}
	}
	if ref.HasURL() {
		if durable := p.uploader.Upload(ctx, ref.URL, uploadName(ref), ref.Mime); durable != "" {
			ref.URL = durable
		}
	}

	p.sessions.Append(key, ref)
	p.logger.Info("buffered file",
		slog.String("session", key),
		slog.String("kind", string(ref.Kind)),
		slog.String("name", ref.Name))

	// A phone learned earlier in the session correlates late files
	// immediately; Publish is fill-only so re-publishing is harmless.
	if known := p.sessions.Phone(key); known != "" {
		p.correlations.Publish(known, p.sessions.Snapshot(key))
	}

	if kind == channel.FileVideo {
		return "Got your video, thanks! I'll attach it to your application.", false
	}
	return "Got your resume, thanks! I'll attach it to your application.", false
}

func (p *Processor) handleText(ctx context.Context, transport channel.Transport, event channel.InboundEvent) error {
	key := event.SessionKey()

	// Correlate before the agent turn: if this very message carries the
	// phone, buffered files must be published before the agent can
	// decide to submit.
	if found := phone.Find(event.Text); found != "" {
		normalized := transport.NormalizePhone(found)
		p.sessions.SetPhone(key, normalized)
		if buffered := p.sessions.Snapshot(key); len(buffered) > 0 {
			p.correlations.Publish(normalized, buffered)
		}
	}

	if err := transport.SendTyping(ctx, event.ChatID); err != nil {
		p.logger.Debug("typing indicator failed",
			slog.String("session", key), slog.Any("error", err))
	}

	resp, err := p.agent.Send(ctx, gateway.Request{
		Text:       event.Text,
		ThreadID:   key,
		ResourceID: event.Sender.SubjectID,
	})
	if err != nil {
		incidentID := uuid.NewString()
		p.logger.Error("agent turn failed",
			slog.String("session", key),
			slog.String("incident_id", incidentID),
			slog.Any("error", err))
		return p.deliver(ctx, transport, event.ChatID,
			fmt.Sprintf("Sorry, something went wrong on my side. Please try again in a moment (ref %s).", incidentID))
	}

	// The phone may also surface through tool traffic rather than the
	// visible text.
	if toolPhone := gateway.PhoneFromTools(resp); toolPhone != "" {
		p.sessions.SetPhone(key, toolPhone)
		if buffered := p.sessions.Snapshot(key); len(buffered) > 0 {
			p.correlations.Publish(toolPhone, buffered)
		}
	}

	reply := resp.Reply
	if call, ok := resp.SubmissionCall(); ok {
		reply = p.submit(ctx, event, call, reply)
	} else if strings.TrimSpace(reply) == "" {
		reply = gateway.FallbackReply(resp.LastToolName())
	}
	return p.deliver(ctx, transport, event.ChatID, reply)
}

// submit turns the agent's submit_application call into a finalized
// application. On success the session buffer is cleared; on invalid input
// the candidate is asked for what is missing and the buffer kept.
func (p *Processor) submit(ctx context.Context, event channel.InboundEvent, call gateway.ToolCall, agentReply string) string {
	key := event.SessionKey()
	input := submission.Input{
		Channel:   event.Channel,
		Name:      stringArg(call.Arguments, "name"),
		Phone:     stringArg(call.Arguments, "phone", "phoneNumber", "phone_number"),
		Position:  stringArg(call.Arguments, "position"),
		Comment:   stringArg(call.Arguments, "comment"),
		ResumeURL: stringArg(call.Arguments, "resumeUrl", "resume_url"),
		VideoURL:  stringArg(call.Arguments, "videoUrl", "video_url"),
	}
	if input.Name == "" {
		input.Name = event.Sender.DisplayName
	}
	if input.Phone == "" {
		input.Phone = p.sessions.Phone(key)
	}

	result, err := p.submitter.Finalize(ctx, input)
	if err != nil {
		p.logger.Warn("submission rejected",
			slog.String("session", key), slog.Any("error", err))
		return "I'm missing something to submit your application. Could you confirm your full name and phone number?"
	}

	p.sessions.Clear(key)
	p.logger.Info("application submitted",
		slog.String("session", key),
		slog.Bool("returning", result.Returning),
		slog.String("lead_url", result.LeadURL))

	reply := strings.TrimSpace(agentReply)
	if reply == "" {
		reply = result.Ack
	}
	for _, reminder := range result.Reminders {
		reply += "\n\n" + reminder
	}
	return reply
}

// deliver strips markup, splits to the platform's message limit, and
// sends the chunks in order with a small pause between them.
func (p *Processor) deliver(ctx context.Context, transport channel.Transport, chatID, text string) error {
	chunks := channel.SplitText(channel.StripMarkup(text), transport.MaxMessageLength())
	for i, chunk := range chunks {
		if i > 0 {
			p.sleep(p.pacing)
		}
		if err := transport.SendText(ctx, chatID, chunk); err != nil {
			return fmt.Errorf("send reply chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

func stringArg(args map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := args[key].(string); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func uploadName(ref channel.FileRef) string {
	if strings.TrimSpace(ref.Name) != "" {
		return ref.Name
	}
	if ref.Kind == channel.FileVideo {
		return "intro-video"
	}
	return "resume"
}
