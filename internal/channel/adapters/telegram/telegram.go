// Package telegram implements the Telegram transport on top of the Bot
// API. Inbound traffic arrives via webhook; this package translates
// webhook updates into channel.InboundEvent and provides the outbound
// send, typing, and file-resolution capabilities.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hirepath/intake/internal/channel"
	"github.com/hirepath/intake/internal/phone"
)

// Type is the Telegram channel type.
const Type channel.Type = "telegram"

const maxMessageLength = 4096

// Telegram's getFile API refuses files above 20 MB.
const defaultMaxAttachmentBytes int64 = 20 * 1024 * 1024

// Adapter implements channel.Transport and channel.WebhookManager for
// Telegram.
type Adapter struct {
	logger             *slog.Logger
	bot                *tgbotapi.BotAPI
	maxAttachmentBytes int64
}

// New creates a Telegram adapter. It validates the token against the Bot
// API (getMe) during construction.
func New(log *slog.Logger, botToken string, maxAttachmentBytes int64) (*Adapter, error) {
	if log == nil {
		log = slog.Default()
	}
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	adapter := newWithBot(log, bot, maxAttachmentBytes)
	adapter.logger.Info("telegram bot ready", slog.String("username", bot.Self.UserName))
	return adapter, nil
}

func newWithBot(log *slog.Logger, bot *tgbotapi.BotAPI, maxAttachmentBytes int64) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	if maxAttachmentBytes <= 0 {
		maxAttachmentBytes = defaultMaxAttachmentBytes
	}
	return &Adapter{
		logger:             log.With(slog.String("adapter", "telegram")),
		bot:                bot,
		maxAttachmentBytes: maxAttachmentBytes,
	}
}

// Type returns the Telegram channel type.
func (a *Adapter) Type() channel.Type {
	return Type
}

// ParseUpdate translates one webhook request body into an inbound event.
// The second return value is false for updates the intake flow ignores
// (edits, channel posts, service messages).
func (a *Adapter) ParseUpdate(body []byte) (channel.InboundEvent, bool, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return channel.InboundEvent{}, false, fmt.Errorf("decode telegram update: %w", err)
	}
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return channel.InboundEvent{}, false, nil
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	attachment := collectAttachment(msg)
	if text == "" && attachment == nil {
		return channel.InboundEvent{}, false, nil
	}

	event := channel.InboundEvent{
		Channel:    Type,
		ChatID:     strconv.FormatInt(msg.Chat.ID, 10),
		Sender:     resolveSender(msg),
		Text:       text,
		Attachment: attachment,
		ReceivedAt: time.Unix(int64(msg.Date), 0).UTC(),
	}
	return event, true, nil
}

// collectAttachment maps the typed Telegram file fields onto the shared
// attachment model. At most one file per message matters for intake;
// video-typed fields are flagged so classification prefers them.
func collectAttachment(msg *tgbotapi.Message) *channel.Attachment {
	switch {
	case msg.Document != nil:
		return &channel.Attachment{
			PlatformKey: msg.Document.FileID,
			Name:        strings.TrimSpace(msg.Document.FileName),
			Mime:        strings.TrimSpace(msg.Document.MimeType),
			SizeBytes:   int64(msg.Document.FileSize),
		}
	case msg.Video != nil:
		return &channel.Attachment{
			PlatformKey: msg.Video.FileID,
			Name:        strings.TrimSpace(msg.Video.FileName),
			Mime:        strings.TrimSpace(msg.Video.MimeType),
			SizeBytes:   int64(msg.Video.FileSize),
			DurationSec: msg.Video.Duration,
			VideoField:  true,
		}
	case msg.VideoNote != nil:
		return &channel.Attachment{
			PlatformKey: msg.VideoNote.FileID,
			SizeBytes:   int64(msg.VideoNote.FileSize),
			DurationSec: msg.VideoNote.Duration,
			VideoField:  true,
		}
	case msg.Audio != nil:
		return &channel.Attachment{
			PlatformKey: msg.Audio.FileID,
			Name:        strings.TrimSpace(msg.Audio.FileName),
			Mime:        strings.TrimSpace(msg.Audio.MimeType),
			SizeBytes:   int64(msg.Audio.FileSize),
			DurationSec: msg.Audio.Duration,
		}
	case msg.Voice != nil:
		return &channel.Attachment{
			PlatformKey: msg.Voice.FileID,
			Mime:        strings.TrimSpace(msg.Voice.MimeType),
			SizeBytes:   int64(msg.Voice.FileSize),
			DurationSec: msg.Voice.Duration,
		}
	}
	return nil
}

func resolveSender(msg *tgbotapi.Message) channel.Identity {
	if msg.From == nil {
		return channel.Identity{SubjectID: strconv.FormatInt(msg.Chat.ID, 10)}
	}
	displayName := strings.TrimSpace(msg.From.UserName)
	if displayName == "" {
		displayName = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	}
	return channel.Identity{
		SubjectID:   strconv.FormatInt(msg.From.ID, 10),
		DisplayName: displayName,
	}
}

// SendText delivers one plain-text message. Callers split to
// MaxMessageLength before sending.
func (a *Adapter) SendText(_ context.Context, chatID, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id must be numeric: %q", chatID)
	}
	message := tgbotapi.NewMessage(id, text)
	if _, err := a.bot.Send(message); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// SendTyping emits the "typing" chat action.
func (a *Adapter) SendTyping(_ context.Context, chatID string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return err
	}
	action := tgbotapi.NewChatAction(id, tgbotapi.ChatTyping)
	_, err = a.bot.Request(action)
	return err
}

// ResolveFileURL resolves a file_id to a time-limited direct download URL.
func (a *Adapter) ResolveFileURL(_ context.Context, platformKey string) (string, error) {
	url, err := a.bot.GetFileDirectURL(platformKey)
	if err != nil {
		return "", fmt.Errorf("resolve telegram file url: %w", err)
	}
	return url, nil
}

// MaxAttachmentBytes is the Bot API file retrieval ceiling.
func (a *Adapter) MaxAttachmentBytes() int64 {
	return a.maxAttachmentBytes
}

// MaxMessageLength is Telegram's per-message text limit.
func (a *Adapter) MaxMessageLength() int {
	return maxMessageLength
}

// NormalizePhone canonicalizes a phone string. Telegram carries no
// transport prefix, so this is plain normalization.
func (a *Adapter) NormalizePhone(raw string) string {
	return phone.Normalize(raw)
}

// SetWebhook registers the given HTTPS URL for update delivery.
func (a *Adapter) SetWebhook(_ context.Context, url string) error {
	webhook, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("build webhook config: %w", err)
	}
	if _, err := a.bot.Request(webhook); err != nil {
		return fmt.Errorf("set telegram webhook: %w", err)
	}
	a.logger.Info("webhook registered", slog.String("url", url))
	return nil
}

// WebhookInfo reports the currently registered webhook state.
func (a *Adapter) WebhookInfo(_ context.Context) (map[string]any, error) {
	info, err := a.bot.GetWebhookInfo()
	if err != nil {
		return nil, fmt.Errorf("get telegram webhook info: %w", err)
	}
	return map[string]any{
		"url":                  info.URL,
		"pending_update_count": info.PendingUpdateCount,
		"last_error_date":      info.LastErrorDate,
		"last_error_message":   info.LastErrorMessage,
	}, nil
}

// DeleteWebhook removes the registered webhook.
func (a *Adapter) DeleteWebhook(_ context.Context) error {
	if _, err := a.bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete telegram webhook: %w", err)
	}
	a.logger.Info("webhook removed")
	return nil
}
