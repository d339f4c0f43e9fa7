// Package whatsapp implements the WhatsApp transport on top of the Cloud
// API. Inbound traffic arrives via the Meta webhook; media references are
// opaque ids that must be exchanged for a download URL through the Graph
// API before use.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hirepath/intake/internal/channel"
	"github.com/hirepath/intake/internal/phone"
)

// Type is the WhatsApp channel type.
const Type channel.Type = "whatsapp"

const (
	defaultGraphBaseURL = "https://graph.facebook.com/v19.0"
	maxMessageLength    = 4096

	// Cloud API refuses video uploads above 16 MB; documents go higher
	// but the stricter limit keeps intake handling uniform.
	defaultMaxAttachmentBytes int64 = 16 * 1024 * 1024
)

// Adapter implements channel.Transport for the WhatsApp Cloud API.
type Adapter struct {
	logger             *slog.Logger
	accessToken        string
	phoneNumberID      string
	verifyToken        string
	graphBaseURL       string
	maxAttachmentBytes int64
	httpClient         *http.Client
}

// Options configures a WhatsApp adapter.
type Options struct {
	AccessToken        string
	PhoneNumberID      string
	VerifyToken        string
	GraphBaseURL       string
	MaxAttachmentBytes int64
}

// New creates a WhatsApp Cloud API adapter.
func New(log *slog.Logger, opts Options) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	graphBaseURL := strings.TrimRight(strings.TrimSpace(opts.GraphBaseURL), "/")
	if graphBaseURL == "" {
		graphBaseURL = defaultGraphBaseURL
	}
	maxBytes := opts.MaxAttachmentBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxAttachmentBytes
	}
	return &Adapter{
		logger:             log.With(slog.String("adapter", "whatsapp")),
		accessToken:        opts.AccessToken,
		phoneNumberID:      opts.PhoneNumberID,
		verifyToken:        opts.VerifyToken,
		graphBaseURL:       graphBaseURL,
		maxAttachmentBytes: maxBytes,
		httpClient:         &http.Client{Timeout: 30 * time.Second},
	}
}

// Type returns the WhatsApp channel type.
func (a *Adapter) Type() channel.Type {
	return Type
}

// VerifyChallenge validates Meta's webhook verification handshake and
// returns the challenge to echo back. Returns false on token mismatch.
func (a *Adapter) VerifyChallenge(mode, token, challenge string) (string, bool) {
	if mode != "subscribe" || token == "" || token != a.verifyToken {
		return "", false
	}
	return challenge, true
}

// webhookPayload mirrors the Cloud API webhook envelope, limited to the
// fields intake consumes.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []waMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type waMedia struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

type waMessage struct {
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
	Document *waMedia `json:"document"`
	Video    *waMedia `json:"video"`
	Audio    *waMedia `json:"audio"`
}

// ParseWebhook translates one webhook request body into inbound events.
// A single POST may batch several messages.
func (a *Adapter) ParseWebhook(body []byte) ([]channel.InboundEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode whatsapp webhook: %w", err)
	}

	var events []channel.InboundEvent
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := map[string]string{}
			for _, contact := range change.Value.Contacts {
				names[contact.WaID] = strings.TrimSpace(contact.Profile.Name)
			}
			for _, msg := range change.Value.Messages {
				event, ok := a.buildEvent(msg, names[msg.From])
				if !ok {
					continue
				}
				events = append(events, event)
			}
		}
	}
	return events, nil
}

func (a *Adapter) buildEvent(msg waMessage, displayName string) (channel.InboundEvent, bool) {
	from := strings.TrimSpace(msg.From)
	if from == "" {
		return channel.InboundEvent{}, false
	}
	event := channel.InboundEvent{
		Channel:    Type,
		ChatID:     from,
		Sender:     channel.Identity{SubjectID: from, DisplayName: displayName},
		ReceivedAt: parseTimestamp(msg.Timestamp),
	}
	switch msg.Type {
	case "text":
		event.Text = strings.TrimSpace(msg.Text.Body)
		if event.Text == "" {
			return channel.InboundEvent{}, false
		}
	case "document":
		if msg.Document == nil {
			return channel.InboundEvent{}, false
		}
		event.Attachment = &channel.Attachment{
			PlatformKey: msg.Document.ID,
			Name:        strings.TrimSpace(msg.Document.Filename),
			Mime:        strings.TrimSpace(msg.Document.MimeType),
			SizeBytes:   msg.Document.FileSize,
		}
	case "video":
		if msg.Video == nil {
			return channel.InboundEvent{}, false
		}
		event.Attachment = &channel.Attachment{
			PlatformKey: msg.Video.ID,
			Mime:        strings.TrimSpace(msg.Video.MimeType),
			SizeBytes:   msg.Video.FileSize,
			VideoField:  true,
		}
	case "audio":
		if msg.Audio == nil {
			return channel.InboundEvent{}, false
		}
		event.Attachment = &channel.Attachment{
			PlatformKey: msg.Audio.ID,
			Mime:        strings.TrimSpace(msg.Audio.MimeType),
			SizeBytes:   msg.Audio.FileSize,
		}
	default:
		// Stickers, reactions, location shares and the like do not
		// participate in intake.
		return channel.InboundEvent{}, false
	}
	return event, true
}

func parseTimestamp(raw string) time.Time {
	seconds, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return time.Now().UTC()
	}
	return time.Unix(seconds, 0).UTC()
}

// SendText delivers one plain-text message through the Cloud API.
func (a *Adapter) SendText(ctx context.Context, chatID, text string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                chatID,
		"type":              "text",
		"text":              map[string]string{"body": text},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/%s/messages", a.graphBaseURL, a.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.accessToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("whatsapp send status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}

// SendTyping is a no-op: the Cloud API has no standalone typing action.
func (a *Adapter) SendTyping(context.Context, string) error {
	return nil
}

// ResolveFileURL exchanges a media id for a time-limited download URL via
// the Graph API media endpoint.
func (a *Adapter) ResolveFileURL(ctx context.Context, platformKey string) (string, error) {
	url := fmt.Sprintf("%s/%s", a.graphBaseURL, platformKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.accessToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolve whatsapp media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("whatsapp media lookup status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var parsed struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode media lookup: %w", err)
	}
	if strings.TrimSpace(parsed.URL) == "" {
		return "", fmt.Errorf("media lookup returned no url for %s", platformKey)
	}
	return parsed.URL, nil
}

// MaxAttachmentBytes is the configured media retrieval ceiling.
func (a *Adapter) MaxAttachmentBytes() int64 {
	return a.maxAttachmentBytes
}

// MaxMessageLength is the Cloud API text body limit.
func (a *Adapter) MaxMessageLength() int {
	return maxMessageLength
}

// NormalizePhone strips the "whatsapp:" transport prefix sender ids carry
// before generic normalization.
func (a *Adapter) NormalizePhone(raw string) string {
	return phone.NormalizeWhatsApp(raw)
}
