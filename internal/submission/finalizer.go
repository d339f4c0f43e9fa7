// Package submission finalizes an application once the agent decides to
// submit: it merges explicitly supplied file references with whatever the
// correlation store holds for the phone, persists the candidate, and
// forwards the structured application to the CRM. Downstream persistence
// is best-effort by contract: the user-facing promise is "we received
// your message", not "we persisted it transactionally".
package submission

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hirepath/intake/internal/candidates"
	"github.com/hirepath/intake/internal/channel"
	"github.com/hirepath/intake/internal/correlation"
	"github.com/hirepath/intake/internal/crm"
	"github.com/hirepath/intake/internal/phone"
)

// CandidateStore is the durable candidate persistence surface.
type CandidateStore interface {
	Upsert(ctx context.Context, name, rawPhone string) (candidates.Candidate, error)
	IsReturning(ctx context.Context, name, rawPhone string) (bool, error)
}

// CRM is the lead/contact surface of the agency CRM.
type CRM interface {
	Configured() bool
	CreateOrUpdateContact(ctx context.Context, name, phone string) (string, error)
	CreateLead(ctx context.Context, contactID string, fields map[string]string) (crm.Lead, error)
	AttachFile(ctx context.Context, leadID string, file crm.FileAttachment) error
	AddNote(ctx context.Context, leadID, text string) error
}

// Input is one application submission as decided by the agent. File URLs
// are the explicitly supplied references; either may be empty, in which
// case the correlation store entry (if any) fills the gap.
type Input struct {
	Channel   channel.Type
	Name      string `validate:"required"`
	Phone     string `validate:"required,min=9"`
	Position  string
	Comment   string
	ResumeURL string
	VideoURL  string
}

// Result is the user-facing outcome: always a success acknowledgment,
// plus follow-up reminders for anything still missing.
type Result struct {
	Ack       string
	Reminders []string
	LeadURL   string
	Returning bool
}

// Finalizer merges, persists, and forwards submissions.
type Finalizer struct {
	correlations *correlation.Store
	store        CandidateStore
	crm          CRM
	registry     *channel.Registry
	validate     *validator.Validate
	logger       *slog.Logger
}

// NewFinalizer creates a submission finalizer.
func NewFinalizer(log *slog.Logger, correlations *correlation.Store, store CandidateStore, crmClient CRM, registry *channel.Registry) *Finalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Finalizer{
		correlations: correlations,
		store:        store,
		crm:          crmClient,
		registry:     registry,
		validate:     validator.New(),
		logger:       log.With(slog.String("service", "submission")),
	}
}

// Finalize runs the submission pipeline. It errors only on invalid input;
// downstream persistence failures are logged and never propagate.
func (f *Finalizer) Finalize(ctx context.Context, input Input) (Result, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Phone = phone.Normalize(input.Phone)
	if err := f.validate.Struct(input); err != nil {
		return Result{}, fmt.Errorf("invalid submission: %w", err)
	}

	// Drain the correlation entry first: even when explicit references
	// win, the entry must not be left for a future submission.
	bufferedResume, bufferedVideo := f.correlations.Consume(input.Phone)

	resume := f.resolveFile(ctx, input.Channel, channel.FileResume, input.ResumeURL, bufferedResume)
	video := f.resolveFile(ctx, input.Channel, channel.FileVideo, input.VideoURL, bufferedVideo)

	returning := false
	if f.store != nil {
		var err error
		returning, err = f.store.IsReturning(ctx, input.Name, input.Phone)
		if err != nil {
			f.logger.Warn("returning-candidate lookup failed",
				slog.String("phone", input.Phone), slog.Any("error", err))
		}
		if _, err := f.store.Upsert(ctx, input.Name, input.Phone); err != nil {
			f.logger.Error("persist candidate failed",
				slog.String("phone", input.Phone), slog.Any("error", err))
		}
	}

	leadURL := f.forwardToCRM(ctx, input, returning, resume, video)

	result := Result{
		Ack:       buildAck(input.Name, returning),
		LeadURL:   leadURL,
		Returning: returning,
	}
	if resume == nil {
		result.Reminders = append(result.Reminders, "Please send your resume when you have it handy. A PDF or document is fine.")
	}
	if video == nil {
		result.Reminders = append(result.Reminders, "A short intro video helps recruiters put a face to your application, feel free to send one.")
	}
	return result, nil
}

// resolveFile picks the explicit reference over the buffered one and
// attempts to resolve a retrievable URL for whichever wins. URL
// resolution failure is non-fatal: submission proceeds without the file.
func (f *Finalizer) resolveFile(ctx context.Context, channelType channel.Type, kind channel.FileKind, explicitURL string, buffered *channel.FileRef) *channel.FileRef {
	explicitURL = strings.TrimSpace(explicitURL)
	if explicitURL != "" {
		return &channel.FileRef{Kind: kind, URL: explicitURL, Name: string(kind)}
	}
	if buffered == nil {
		return nil
	}
	ref := *buffered
	if !ref.HasURL() && ref.PlatformKey != "" && f.registry != nil {
		if transport, ok := f.registry.Get(channelType); ok {
			url, err := transport.ResolveFileURL(ctx, ref.PlatformKey)
			if err != nil {
				f.logger.Warn("resolve buffered file url failed",
					slog.String("kind", string(kind)),
					slog.String("platform_key", ref.PlatformKey),
					slog.Any("error", err))
			} else {
				ref.URL = url
			}
		}
	}
	return &ref
}

// forwardToCRM writes the contact, lead, and file attachments. Every step
// is best-effort; a failed binary upload degrades to a textual note with
// the link.
func (f *Finalizer) forwardToCRM(ctx context.Context, input Input, returning bool, resume, video *channel.FileRef) string {
	if f.crm == nil || !f.crm.Configured() {
		return ""
	}
	contactID, err := f.crm.CreateOrUpdateContact(ctx, input.Name, input.Phone)
	if err != nil {
		f.logger.Error("crm contact write failed",
			slog.String("phone", input.Phone), slog.Any("error", err))
		return ""
	}
	fields := map[string]string{
		"position": input.Position,
		"comment":  input.Comment,
		"channel":  string(input.Channel),
	}
	if returning {
		fields["returning"] = "true"
	}
	lead, err := f.crm.CreateLead(ctx, contactID, fields)
	if err != nil {
		f.logger.Error("crm lead write failed",
			slog.String("phone", input.Phone), slog.Any("error", err))
		return ""
	}
	for _, ref := range []*channel.FileRef{resume, video} {
		if ref == nil || !ref.HasURL() {
			continue
		}
		attachment := crm.FileAttachment{Name: ref.Name, URL: ref.URL, Mime: ref.Mime}
		if attachment.Name == "" {
			attachment.Name = string(ref.Kind)
		}
		if err := f.crm.AttachFile(ctx, lead.ID, attachment); err != nil {
			f.logger.Warn("crm file upload failed, leaving note",
				slog.String("lead_id", lead.ID),
				slog.String("file", attachment.Name),
				slog.Any("error", err))
			note := fmt.Sprintf("%s upload failed, link: %s", ref.Kind, ref.URL)
			if noteErr := f.crm.AddNote(ctx, lead.ID, note); noteErr != nil {
				f.logger.Warn("crm fallback note failed",
					slog.String("lead_id", lead.ID), slog.Any("error", noteErr))
			}
		}
	}
	return lead.URL
}

func buildAck(name string, returning bool) string {
	if returning {
		return fmt.Sprintf("Welcome back, %s! We've updated your application and passed it to our recruiters.", name)
	}
	return fmt.Sprintf("Thanks, %s! We've received your application and passed it to our recruiters.", name)
}
