package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"pickings/internal/bootstrap"
	"pickings/internal/config"
	"pickings/internal/handlers"
	"pickings/internal/logging"
	"pickings/internal/metrics"
	"pickings/internal/middleware"
	"pickings/internal/tracing"
)

// APIServer represents the API server
type APIServer struct {
	app    *fiber.App
	cfg    *config.AppConfig
	rt     *bootstrap.Runtime
	queue  *asynq.Client
	tracer *tracing.Tracer
	logger *logging.Logger
}

// NewAPIServer creates a new API server over rt
func NewAPIServer(cfg *config.AppConfig, rt *bootstrap.Runtime, queue *asynq.Client) *APIServer {
	server := &APIServer{
		cfg:    cfg,
		rt:     rt,
		queue:  queue,
		logger: rt.Logger,
	}

	bodyLimit := cfg.Server.BodyLimitMB
	if bodyLimit <= 0 {
		bodyLimit = 10
	}
	server.app = fiber.New(fiber.Config{
		AppName:      "Pickings API",
		ServerHeader: "Pickings",
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    bodyLimit * 1024 * 1024,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	})

	server.app.Use(recover.New())
	server.app.Use(requestid.New())
	server.app.Use(middleware.RequestContext())
	server.app.Use(rt.Logger.FiberLoggerMiddleware())
	if cfg.Tracing.Enabled {
		server.app.Use(tracing.Middleware())
	}
	server.app.Use(middleware.Metrics(rt.Metrics))
	server.app.Use(middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateWindow))

	server.setupRoutes()

	return server
}

// setupRoutes configures the API routes
func (s *APIServer) setupRoutes() {
	deps := handlers.Deps{
		Folios:   s.rt.Folios,
		Details:  s.rt.Details,
		Users:    s.rt.Users,
		Health:   s.rt.HealthChecker(),
		Gatherer: prometheus.DefaultGatherer,
	}
	// A nil *asynq.Client must stay a nil interface.
	if s.queue != nil {
		deps.Enqueuer = s.queue
	}
	handlers.Register(s.app, deps)
}

// Start starts the API server
func (s *APIServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.logger.Zerolog().Info().Str("addr", addr).Str("store", s.cfg.Store.Backend).Msg("starting API server")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server and releases its connections
func (s *APIServer) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	if s.queue != nil {
		if cerr := s.queue.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if s.tracer != nil {
		if terr := s.tracer.Shutdown(ctx); terr != nil && err == nil {
			err = terr
		}
	}
	if cerr := s.rt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Main entry point for the API service
func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		os.Exit(1)
	}

	logger := logging.InitGlobalLogger(logging.LogLevel(cfg.Logging.Level), cfg.Logging.Format)
	log := logger.Zerolog()

	ctx := context.Background()
	var tracer *tracing.Tracer
	if cfg.Tracing.Enabled {
		tracer, err = tracing.NewTracer(ctx, cfg.Tracing, nil)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracing")
		}
	}

	m := metrics.InitializeMetrics()

	rt, err := bootstrap.New(ctx, cfg, logger, m)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}

	// Async imports need the queue; without redis the API imports inline.
	var queue *asynq.Client
	if cfg.Redis.Addr != "" {
		queue = asynq.NewClient(rt.AsynqRedis())
	}

	server := NewAPIServer(cfg, rt, queue)
	server.tracer = tracer

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error during shutdown")
		}
	}()

	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("Server failed to start")
	}
}
