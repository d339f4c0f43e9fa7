package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"golang.org/x/oauth2"

	"github.com/hirepath/intake/internal/candidates"
	"github.com/hirepath/intake/internal/channel"
	"github.com/hirepath/intake/internal/channel/adapters/telegram"
	"github.com/hirepath/intake/internal/channel/adapters/whatsapp"
	"github.com/hirepath/intake/internal/channel/inbound"
	"github.com/hirepath/intake/internal/config"
	"github.com/hirepath/intake/internal/correlation"
	"github.com/hirepath/intake/internal/crm"
	"github.com/hirepath/intake/internal/db"
	"github.com/hirepath/intake/internal/gateway"
	"github.com/hirepath/intake/internal/handlers"
	"github.com/hirepath/intake/internal/healthcheck"
	"github.com/hirepath/intake/internal/logger"
	"github.com/hirepath/intake/internal/schedule"
	"github.com/hirepath/intake/internal/server"
	"github.com/hirepath/intake/internal/session"
	"github.com/hirepath/intake/internal/storage"
	"github.com/hirepath/intake/internal/submission"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideCandidateRepository,
			provideSessionStore,
			correlation.NewStore,
			provideAgentClient,
			provideCRMClient,
			provideUploader,
			provideTelegramAdapter,
			provideWhatsAppAdapter,
			provideChannelRegistry,
			provideFinalizer,
			provideProcessor,
			provideGC,
			provideHealthRunner,
			handlers.NewPingHandler,
			provideHealthHandler,
			provideCandidatesHandler,
			provideWebhookAdminHandler,
			provideTelegramWebhookHandler,
			provideWhatsAppWebhookHandler,
			provideServer,
		),
		fx.Invoke(
			startGC,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	return loadConfig()
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideCandidateRepository(log *slog.Logger, conn *pgxpool.Pool) *candidates.Repository {
	return candidates.NewRepository(log, conn)
}

func provideSessionStore(log *slog.Logger, cfg config.Config) *session.Store {
	ttl, err := time.ParseDuration(cfg.Intake.SessionTTL)
	if err != nil {
		log.Warn("invalid session ttl, using default",
			slog.String("value", cfg.Intake.SessionTTL))
		ttl = 0
	}
	return session.NewStore(log, ttl)
}

func provideAgentClient(log *slog.Logger, cfg config.Config) *gateway.Client {
	timeout := time.Duration(cfg.AgentGateway.TimeoutSeconds) * time.Second
	return gateway.NewClient(log, cfg.AgentGateway.BaseURL(), timeout)
}

func provideCRMClient(log *slog.Logger, cfg config.Config) *crm.Client {
	return crm.NewClient(log, cfg.CRM.BaseURL, cfg.CRM.AccessToken)
}

func provideUploader(log *slog.Logger, cfg config.Config) storage.Uploader {
	if !cfg.Storage.Enabled() {
		return storage.Disabled{}
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.Storage.ClientID,
		ClientSecret: cfg.Storage.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.Storage.TokenURL},
		Scopes:       []string{"https://www.googleapis.com/auth/drive.file"},
	}
	return storage.NewDriveUploader(log, cfg.Storage.UploadURL, cfg.Storage.FolderID, oauthCfg, cfg.Storage.RefreshToken)
}

func provideTelegramAdapter(log *slog.Logger, cfg config.Config) (*telegram.Adapter, error) {
	if !cfg.Telegram.Enabled() {
		return nil, nil
	}
	return telegram.New(log, cfg.Telegram.BotToken, cfg.Telegram.MaxAttachmentBytes)
}

func provideWhatsAppAdapter(log *slog.Logger, cfg config.Config) *whatsapp.Adapter {
	if !cfg.WhatsApp.Enabled() {
		return nil
	}
	return whatsapp.New(log, whatsapp.Options{
		AccessToken:        cfg.WhatsApp.AccessToken,
		PhoneNumberID:      cfg.WhatsApp.PhoneNumberID,
		VerifyToken:        cfg.WhatsApp.VerifyToken,
		GraphBaseURL:       cfg.WhatsApp.GraphBaseURL,
		MaxAttachmentBytes: cfg.WhatsApp.MaxAttachmentBytes,
	})
}

func provideChannelRegistry(tg *telegram.Adapter, wa *whatsapp.Adapter) *channel.Registry {
	registry := channel.NewRegistry()
	if tg != nil {
		registry.MustRegister(tg)
	}
	if wa != nil {
		registry.MustRegister(wa)
	}
	return registry
}

func provideFinalizer(log *slog.Logger, correlations *correlation.Store, repo *candidates.Repository, crmClient *crm.Client, registry *channel.Registry) *submission.Finalizer {
	return submission.NewFinalizer(log, correlations, repo, crmClient, registry)
}

func provideProcessor(log *slog.Logger, sessions *session.Store, correlations *correlation.Store, agent *gateway.Client, finalizer *submission.Finalizer, uploader storage.Uploader, cfg config.Config) *inbound.Processor {
	pacing := time.Duration(cfg.Intake.ReplyPacingMs) * time.Millisecond
	return inbound.NewProcessor(log, sessions, correlations, agent, finalizer, uploader, pacing)
}

func provideGC(log *slog.Logger, sessions *session.Store, cfg config.Config) (*schedule.GC, error) {
	return schedule.NewGC(log, sessions, cfg.Intake.GCSchedule)
}

func provideHealthRunner(log *slog.Logger, conn *pgxpool.Pool, registry *channel.Registry, cfg config.Config) *healthcheck.Runner {
	checkers := []healthcheck.Checker{
		healthcheck.NewPostgresChecker(conn),
		healthcheck.NewChannelChecker(registry),
		healthcheck.NewHTTPChecker("agent_gateway", cfg.AgentGateway.BaseURL()),
	}
	if cfg.CRM.BaseURL != "" {
		checkers = append(checkers, healthcheck.NewHTTPChecker("crm", cfg.CRM.BaseURL))
	}
	return healthcheck.NewRunner(log, checkers...)
}

func provideHealthHandler(log *slog.Logger, runner *healthcheck.Runner) *handlers.HealthHandler {
	return handlers.NewHealthHandler(log, runner)
}

func provideCandidatesHandler(log *slog.Logger, repo *candidates.Repository) *handlers.CandidatesHandler {
	return handlers.NewCandidatesHandler(log, repo)
}

func provideWebhookAdminHandler(log *slog.Logger, registry *channel.Registry, cfg config.Config) *handlers.WebhookAdminHandler {
	return handlers.NewWebhookAdminHandler(log, registry, cfg.Server.PublicURL)
}

func provideTelegramWebhookHandler(log *slog.Logger, adapter *telegram.Adapter, processor *inbound.Processor) *handlers.TelegramWebhookHandler {
	if adapter == nil {
		return nil
	}
	return handlers.NewTelegramWebhookHandler(log, adapter, processor)
}

func provideWhatsAppWebhookHandler(log *slog.Logger, adapter *whatsapp.Adapter, processor *inbound.Processor) *handlers.WhatsAppWebhookHandler {
	if adapter == nil {
		return nil
	}
	return handlers.NewWhatsAppWebhookHandler(log, adapter, processor)
}

type serverParams struct {
	fx.In
	Logger       *slog.Logger
	Config       config.Config
	Ping         *handlers.PingHandler
	Health       *handlers.HealthHandler
	Candidates   *handlers.CandidatesHandler
	WebhookAdmin *handlers.WebhookAdminHandler
	Telegram     *handlers.TelegramWebhookHandler
	WhatsApp     *handlers.WhatsAppWebhookHandler
}

func provideServer(params serverParams) *server.Server {
	allHandlers := []server.Handler{
		params.Ping,
		params.Health,
		params.Candidates,
		params.WebhookAdmin,
	}
	// Nil concrete pointers must not reach the registration loop as
	// non-nil interfaces.
	if params.Telegram != nil {
		allHandlers = append(allHandlers, params.Telegram)
	}
	if params.WhatsApp != nil {
		allHandlers = append(allHandlers, params.WhatsApp)
	}
	return server.New(params.Logger, params.Config.Server.Addr, params.Config.Auth.JWTSecret, allHandlers)
}

func startGC(lc fx.Lifecycle, gc *schedule.GC) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { gc.Start(); return nil },
		OnStop:  func(_ context.Context) error { gc.Stop(); return nil },
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
