package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hirepath/intake/internal/channel"
)

// WebhookAdminHandler exposes the JWT-protected webhook management
// surface for channels that support programmatic registration.
type WebhookAdminHandler struct {
	registry  *channel.Registry
	publicURL string
	logger    *slog.Logger
}

func NewWebhookAdminHandler(log *slog.Logger, registry *channel.Registry, publicURL string) *WebhookAdminHandler {
	return &WebhookAdminHandler{
		registry:  registry,
		publicURL: strings.TrimRight(strings.TrimSpace(publicURL), "/"),
		logger:    log.With(slog.String("handler", "webhook_admin")),
	}
}

func (h *WebhookAdminHandler) Register(e *echo.Echo) {
	e.POST("/webhook/register", h.RegisterWebhook)
	e.GET("/webhook/info", h.WebhookInfo)
	e.DELETE("/webhook", h.DeleteWebhook)
}

type registerWebhookRequest struct {
	Channel string `json:"channel"`
	URL     string `json:"url"`
}

func (h *WebhookAdminHandler) manager(channelName string) (channel.WebhookManager, channel.Type, error) {
	channelType := channel.Type(strings.TrimSpace(channelName))
	if channelType == "" {
		return nil, "", echo.NewHTTPError(http.StatusBadRequest, "channel is required")
	}
	transport, ok := h.registry.Get(channelType)
	if !ok {
		return nil, "", echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("channel not configured: %s", channelType))
	}
	manager, ok := transport.(channel.WebhookManager)
	if !ok {
		return nil, "", echo.NewHTTPError(http.StatusBadRequest, channel.ErrWebhookNotSupported.Error())
	}
	return manager, channelType, nil
}

// RegisterWebhook points the channel's webhook at this deployment. The
// URL defaults to the configured public base plus the channel's inbound
// path.
func (h *WebhookAdminHandler) RegisterWebhook(c echo.Context) error {
	var req registerWebhookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	manager, channelType, err := h.manager(req.Channel)
	if err != nil {
		return err
	}
	url := strings.TrimSpace(req.URL)
	if url == "" {
		if h.publicURL == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "url is required when no public base url is configured")
		}
		url = fmt.Sprintf("%s/channels/%s/webhook", h.publicURL, channelType)
	}
	if err := manager.SetWebhook(c.Request().Context(), url); err != nil {
		h.logger.Error("webhook registration failed",
			slog.String("channel", string(channelType)), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadGateway, "webhook registration failed")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"channel": string(channelType),
		"url":     url,
	})
}

func (h *WebhookAdminHandler) WebhookInfo(c echo.Context) error {
	manager, channelType, err := h.manager(c.QueryParam("channel"))
	if err != nil {
		return err
	}
	info, err := manager.WebhookInfo(c.Request().Context())
	if err != nil {
		h.logger.Error("webhook info failed",
			slog.String("channel", string(channelType)), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadGateway, "webhook info failed")
	}
	return c.JSON(http.StatusOK, info)
}

func (h *WebhookAdminHandler) DeleteWebhook(c echo.Context) error {
	manager, channelType, err := h.manager(c.QueryParam("channel"))
	if err != nil {
		return err
	}
	if err := manager.DeleteWebhook(c.Request().Context()); err != nil {
		h.logger.Error("webhook removal failed",
			slog.String("channel", string(channelType)), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadGateway, "webhook removal failed")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "removed"})
}
