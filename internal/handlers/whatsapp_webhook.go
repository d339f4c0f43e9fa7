package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hirepath/intake/internal/channel"
)

// WhatsAppGateway is the WhatsApp adapter surface the handler needs.
type WhatsAppGateway interface {
	channel.Transport
	ParseWebhook(body []byte) ([]channel.InboundEvent, error)
	VerifyChallenge(mode, token, challenge string) (string, bool)
}

// WhatsAppWebhookHandler receives Cloud API webhook traffic: the GET
// verification handshake Meta performs at subscription time, and POSTed
// message batches afterwards.
type WhatsAppWebhookHandler struct {
	adapter   WhatsAppGateway
	processor EventProcessor
	logger    *slog.Logger
}

func NewWhatsAppWebhookHandler(log *slog.Logger, adapter WhatsAppGateway, processor EventProcessor) *WhatsAppWebhookHandler {
	return &WhatsAppWebhookHandler{
		adapter:   adapter,
		processor: processor,
		logger:    log.With(slog.String("handler", "whatsapp_webhook")),
	}
}

func (h *WhatsAppWebhookHandler) Register(e *echo.Echo) {
	e.GET("/channels/whatsapp/webhook", h.HandleVerify)
	e.POST("/channels/whatsapp/webhook", h.HandleMessages)
}

// HandleVerify answers Meta's subscription handshake by echoing the
// challenge when the verify token matches.
func (h *WhatsAppWebhookHandler) HandleVerify(c echo.Context) error {
	challenge, ok := h.adapter.VerifyChallenge(
		c.QueryParam("hub.mode"),
		c.QueryParam("hub.verify_token"),
		c.QueryParam("hub.challenge"),
	)
	if !ok {
		h.logger.Warn("webhook verification rejected",
			slog.String("mode", c.QueryParam("hub.mode")))
		return echo.NewHTTPError(http.StatusForbidden, "verification failed")
	}
	return c.String(http.StatusOK, challenge)
}

// HandleMessages acknowledges the batch immediately and processes each
// message on a detached goroutine; Meta redelivers on non-200.
func (h *WhatsAppWebhookHandler) HandleMessages(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	events, err := h.adapter.ParseWebhook(body)
	if err != nil {
		h.logger.Warn("malformed webhook", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadRequest, "malformed webhook")
	}
	for _, event := range events {
		go h.process(event)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *WhatsAppWebhookHandler) process(event channel.InboundEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()
	if err := h.processor.Handle(ctx, h.adapter, event); err != nil {
		h.logger.Error("process message failed",
			slog.String("chat_id", event.ChatID),
			slog.Any("error", err))
	}
}
