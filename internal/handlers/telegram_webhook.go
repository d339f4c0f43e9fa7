package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hirepath/intake/internal/channel"
)

// processTimeout bounds the detached processing of one webhook event:
// one agent round-trip plus paced reply delivery.
const processTimeout = 2 * time.Minute

// EventProcessor runs the shared inbound pipeline for one event.
type EventProcessor interface {
	Handle(ctx context.Context, transport channel.Transport, event channel.InboundEvent) error
}

// TelegramGateway is the Telegram adapter surface the handler needs.
type TelegramGateway interface {
	channel.Transport
	ParseUpdate(body []byte) (channel.InboundEvent, bool, error)
}

// TelegramWebhookHandler receives Telegram webhook updates. The platform
// retries undelivered updates aggressively, so the handler acknowledges
// with 200 immediately and processes on a detached goroutine.
type TelegramWebhookHandler struct {
	adapter   TelegramGateway
	processor EventProcessor
	logger    *slog.Logger
}

func NewTelegramWebhookHandler(log *slog.Logger, adapter TelegramGateway, processor EventProcessor) *TelegramWebhookHandler {
	return &TelegramWebhookHandler{
		adapter:   adapter,
		processor: processor,
		logger:    log.With(slog.String("handler", "telegram_webhook")),
	}
}

func (h *TelegramWebhookHandler) Register(e *echo.Echo) {
	e.POST("/channels/telegram/webhook", h.HandleUpdate)
}

// HandleUpdate parses one update and dispatches it. Malformed bodies get
// a 400; everything else is acknowledged so Telegram stops retrying.
func (h *TelegramWebhookHandler) HandleUpdate(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	event, ok, err := h.adapter.ParseUpdate(body)
	if err != nil {
		h.logger.Warn("malformed update", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadRequest, "malformed update")
	}
	if ok {
		go h.process(event)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *TelegramWebhookHandler) process(event channel.InboundEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()
	if err := h.processor.Handle(ctx, h.adapter, event); err != nil {
		h.logger.Error("process update failed",
			slog.String("chat_id", event.ChatID),
			slog.Any("error", err))
	}
}
