package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"pickings/internal/bootstrap"
	"pickings/internal/config"
	"pickings/internal/jobs"
	"pickings/internal/logging"
	"pickings/internal/metrics"
	"pickings/internal/tracing"
)

// WorkerServer handles background job processing
type WorkerServer struct {
	srv       *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	rt        *bootstrap.Runtime
	tracer    *tracing.Tracer
	log       *zerolog.Logger
}

// NewWorkerServer creates a new worker server
func NewWorkerServer(ctx context.Context) (*WorkerServer, error) {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.InitGlobalLogger(logging.LogLevel(cfg.Logging.Level), cfg.Logging.Format)

	var tracer *tracing.Tracer
	if cfg.Tracing.Enabled {
		if tracer, err = tracing.NewTracer(ctx, cfg.Tracing, nil); err != nil {
			return nil, err
		}
	}

	rt, err := bootstrap.New(ctx, cfg, logger, metrics.InitializeMetrics())
	if err != nil {
		return nil, err
	}

	redisOpt := rt.AsynqRedis()
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Queues:      jobs.Queues,
		Concurrency: cfg.Worker.Concurrency,
		Logger:      newAsynqLogger(logging.WithModule("asynq")),
	})

	mux := asynq.NewServeMux()
	jobs.NewHandlers(rt.Folios, logger).Register(mux)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger: newAsynqLogger(logging.WithModule("scheduler")),
	})
	entryID, err := jobs.RegisterSchedules(scheduler, cfg.Worker.AuditCron, cfg.Worker.AuditRepair)
	if err != nil {
		rt.Close()
		return nil, err
	}
	log := logging.WithModule("worker")
	if entryID != "" {
		log.Info().Str("cron", cfg.Worker.AuditCron).Bool("repair", cfg.Worker.AuditRepair).Msg("count audit scheduled")
	}

	return &WorkerServer{
		srv:       srv,
		scheduler: scheduler,
		mux:       mux,
		rt:        rt,
		tracer:    tracer,
		log:       log,
	}, nil
}

// Start starts the scheduler and the worker server
func (w *WorkerServer) Start() error {
	w.log.Info().Msg("Starting worker server...")

	if err := w.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	if err := w.srv.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the worker server
func (w *WorkerServer) Shutdown(ctx context.Context) {
	w.log.Info().Msg("Shutting down worker server...")
	w.scheduler.Shutdown()
	w.srv.Shutdown()
	if w.tracer != nil {
		if err := w.tracer.Shutdown(ctx); err != nil {
			w.log.Error().Err(err).Msg("tracer shutdown")
		}
	}
	if err := w.rt.Close(); err != nil {
		w.log.Error().Err(err).Msg("runtime close")
	}
}

// asynqLogger routes asynq's own logging through zerolog.
type asynqLogger struct {
	log *zerolog.Logger
}

func newAsynqLogger(log *zerolog.Logger) *asynqLogger {
	return &asynqLogger{log: log}
}

func (l *asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }

// Main entry point for the worker service
func main() {
	ctx := context.Background()
	worker, err := NewWorkerServer(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to create worker server:", err)
		os.Exit(1)
	}

	if err := worker.Start(); err != nil {
		worker.log.Fatal().Err(err).Msg("Worker server error")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	worker.log.Info().Msg("Received shutdown signal")
	worker.Shutdown(ctx)
}
