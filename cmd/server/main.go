package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-gateway-go/internal/config"
	"github.com/openclaw/session-gateway-go/internal/credentials"
	"github.com/openclaw/session-gateway-go/internal/database"
	"github.com/openclaw/session-gateway-go/internal/handler"
	"github.com/openclaw/session-gateway-go/internal/jobs"
	"github.com/openclaw/session-gateway-go/internal/metrics"
	"github.com/openclaw/session-gateway-go/internal/middleware"
	"github.com/openclaw/session-gateway-go/internal/redis"
	"github.com/openclaw/session-gateway-go/internal/repository"
	"github.com/openclaw/session-gateway-go/internal/service"
	"github.com/openclaw/session-gateway-go/internal/session"
	"github.com/openclaw/session-gateway-go/internal/sse"
	"github.com/openclaw/session-gateway-go/internal/transport/bridge"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), config.StoreWriteTimeout)
	if err := db.EnsureSchema(schemaCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to prepare schema")
	}
	schemaCancel()

	redisCtx, redisCancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	redisClient, err := redis.NewClient(redisCtx, cfg.RedisURL)
	redisCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	credStore, err := credentials.NewFileStore(cfg.SessionDir, cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare credential store")
	}

	sessionRepo := repository.NewSessionRepository(db.DB)
	m := metrics.New()

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	controller := session.NewController(session.Options{
		Dialer:          bridge.NewDialer(redisClient, cfg.BridgeReplyTimeout()),
		Credentials:     credStore,
		Store:           sessionRepo,
		Notifier:        broker,
		Metrics:         m,
		ReconnectPolicy: session.ConstantReconnect(cfg.ReconnectDelay()),
	})
	defer controller.Shutdown()
	m.TrackActiveConnections(controller.ActiveConnectionsCount)

	gatewayService := service.NewGatewayService(controller, sessionRepo, credStore, m, service.GatewayConfig{
		QRWait:      cfg.QRWaitTimeout(),
		FreshQRWait: cfg.FreshQRWaitTimeout(),
		SessionTTL:  cfg.SessionTTL(),
	})
	healthService := service.NewHealthService(controller.ActiveConnectionsCount)

	go func() {
		report, err := controller.RestoreActiveSessions(context.Background(), cfg.RestoreWorkers)
		if err != nil {
			log.Error().Err(err).Msg("session restoration failed")
			return
		}
		log.Info().
			Int("restored", report.Restored).
			Int("stale", report.Stale).
			Int("failed", report.Failed).
			Msg("session restoration finished")
	}()

	cleanupJob := jobs.NewCleanupJob(gatewayService, cfg.CleanupInterval())
	cleanupJob.Start()
	defer cleanupJob.Stop()

	probes := handler.NewProbes(db.DB.DB, handler.PingerFunc(func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}))

	r := handler.NewRouter(handler.RouterDeps{
		Gateway: handler.NewGatewayHandler(gatewayService, middleware.NewSendRateLimiter(redisClient, cfg.SendRateLimitPerMin)),
		Events:  handler.NewEventsHandler(broker, gatewayService),
		Health:  handler.NewHealthHandler(healthService),
		Probes:  probes,
		Metrics: m,
		Auth:    middleware.NewAuthMiddleware(cfg.APIToken),
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
