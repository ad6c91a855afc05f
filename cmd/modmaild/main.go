// Command modmaild runs the modmail service daemon: it restores the
// open-ticket snapshot, keeps it autosaved, and serves the staff dashboard
// API over the ticket archive. The chat gateway embeds the lifecycle core
// from internal/modmail and supplies the platform collaborators.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/modmail-service/internal/analytics"
	httptransport "github.com/spec-kit/modmail-service/internal/api/http"
	"github.com/spec-kit/modmail-service/internal/api/http/handlers"
	"github.com/spec-kit/modmail-service/internal/auth"
	"github.com/spec-kit/modmail-service/internal/config"
	"github.com/spec-kit/modmail-service/internal/events"
	"github.com/spec-kit/modmail-service/internal/modmail"
	"github.com/spec-kit/modmail-service/internal/notify"
	"github.com/spec-kit/modmail-service/internal/observability"
	"github.com/spec-kit/modmail-service/internal/persistence"
	"github.com/spec-kit/modmail-service/internal/ratelimit"
	"github.com/spec-kit/modmail-service/internal/storage"
	"github.com/spec-kit/modmail-service/internal/transcript"
	"github.com/spec-kit/modmail-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	guilds, err := config.LoadGuildStore(filepath.Join(cfg.Data.Dir, cfg.Data.GuildConfigs))
	if err != nil {
		logger.Fatal("failed to load guild configs", zap.Error(err))
	}
	logger.Info("guild configs loaded", zap.Int("guilds", len(guilds.GuildIDs())))

	ticketStore, err := storage.NewTicketStore(cfg.Data.Dir, logger)
	if err != nil {
		logger.Fatal("failed to open ticket store", zap.Error(err))
	}
	historyStore, err := storage.NewHistoryStore(cfg.Data.Dir, logger)
	if err != nil {
		logger.Fatal("failed to open history store", zap.Error(err))
	}
	transcripts, err := transcript.NewGenerator(filepath.Join(cfg.Data.Dir, cfg.Data.TranscriptsDir), logger)
	if err != nil {
		logger.Fatal("failed to open transcripts directory", zap.Error(err))
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}
	if pg.Enabled() {
		historyStore.SetMirror(pg)
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	registry := modmail.NewRegistry()
	modmail.Restore(ticketStore, registry, logger)

	limiter := ratelimit.NewLimiter()
	dispatcher := events.NewInMemoryDispatcher()
	notify.NewWebhookNotifier(guilds, logger).Register(dispatcher)

	metrics := observability.NewMetrics()
	engine := analytics.NewEngine(historyStore, registry)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	hashedSecret := ""
	if cfg.Auth.DashboardSecret != "" {
		hashedSecret, err = auth.HashSecret(cfg.Auth.DashboardSecret, cfg.Auth.BcryptCost)
		if err != nil {
			logger.Fatal("failed to hash dashboard secret", zap.Error(err))
		}
	}

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(tokens, hashedSecret),
		Analytics:      handlers.NewAnalyticsHandler(engine),
		History:        handlers.NewHistoryHandler(historyStore),
		Transcripts:    handlers.NewTranscriptHandler(transcripts),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	autosave := worker.NewAutosave(cfg.App.AutosaveInterval(), worker.SnapshotFunc(func() {
		if err := ticketStore.Save(registry.Snapshot()); err != nil {
			logger.Error("failed to persist open tickets", zap.Error(err))
		}
	}), logger, limiter)
	go autosave.Run(ctx)

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
	// Final snapshot so a SIGTERM never loses open tickets.
	if err := ticketStore.Save(registry.Snapshot()); err != nil {
		logger.Error("failed to persist open tickets on shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
