package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"loopfan-backend/auth"
	"loopfan-backend/config"
	"loopfan-backend/contracts"
	"loopfan-backend/handlers"
	"loopfan-backend/ingest"
	"loopfan-backend/metrics"
	"loopfan-backend/middleware"
	"loopfan-backend/store"
)

const shutdownTimeout = 10 * time.Second

func newLogger(production bool) (*zap.Logger, error) {
	if production {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// newNonceStore uses Redis when REDIS_URL is set so challenges survive
// restarts and are shared between instances.
func newNonceStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (auth.NonceStore, func(), error) {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set, keeping login nonces in memory")
		return auth.NewMemoryNonceStore(cfg.NonceLifetime()), func() {}, nil
	}

	nonces, err := auth.NewRedisNonceStore(ctx, cfg.RedisURL, cfg.NonceLifetime())
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Connected to Redis")
	return nonces, func() { _ = nonces.Close() }, nil
}

func newRouter(cfg *config.Config, h handlers.Handlers, requireAuth gin.HandlerFunc, logger *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.UseJSONFieldNames()

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(logger),
		middleware.Metrics(),
		middleware.ErrorHandler(logger, cfg.IsProduction()),
		middleware.Recovery(logger),
	)

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins()
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	handlers.RegisterRoutes(router, h, requireAuth)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.NoRoute(middleware.NoRoute)
	return router
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.IsProduction())
	if err != nil {
		log.Fatalf("Failed to initialize zap logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()

	db, err := store.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("Unable to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := store.Migrate(cfg.DatabaseURL, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	nonces, closeNonces, err := newNonceStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Unable to connect to Redis", zap.Error(err))
	}
	defer closeNonces()

	gateway, err := contracts.NewGateway(ctx, cfg.Chain, logger)
	if errors.Is(err, contracts.ErrNoSigningKey) {
		logger.Fatal("PRIVATE_KEY is required to run the blockchain gateway")
	}
	if err != nil {
		logger.Fatal("Unable to initialize blockchain gateway", zap.Error(err))
	}
	defer gateway.Close()

	dispatcher := ingest.NewDispatcher(db, gateway, ingest.DispatcherOptions{
		MaxAttempts: cfg.OutboxMaxAttempts,
		Workers:     cfg.OutboxWorkers,
	}, logger)
	dispatcher.Start()
	listener := ingest.NewService(db, gateway, dispatcher, logger)
	if err := listener.Start(ctx); err != nil {
		logger.Fatal("Failed to start event listeners", zap.Error(err))
	}

	scheduler, err := ingest.NewScheduler(dispatcher, db, ingest.ScheduleOptions{
		OutboxReplay:     cfg.OutboxReplaySchedule,
		MembershipExpiry: cfg.MembershipExpirySchedule,
	}, logger)
	if err != nil {
		logger.Fatal("Invalid job schedule", zap.Error(err))
	}
	scheduler.Start()

	tokens := auth.NewTokens(cfg.TokenSecret(), cfg.TokenTTL())
	router := newRouter(cfg, handlers.Handlers{
		Health:     handlers.NewHealthHandler(cfg.NodeEnv),
		Users:      handlers.NewUserHandler(db, nonces, tokens, logger),
		Content:    handlers.NewContentHandler(db, gateway, logger),
		Blockchain: handlers.NewBlockchainHandler(db, gateway, cfg.Chain, logger),
		Analytics:  handlers.NewAnalyticsHandler(db),
	}, middleware.Auth(tokens, db, logger), logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Port), zap.String("environment", cfg.NodeEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("Shutting down server", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	scheduler.Stop()
	listener.Stop()
	dispatcher.Stop()
	logger.Info("Server exited")
}
