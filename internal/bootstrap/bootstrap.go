// Package bootstrap assembles the store, caches and registries from an
// AppConfig. Every binary starts from a Runtime.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"pickings/internal/cache"
	"pickings/internal/config"
	"pickings/internal/database"
	"pickings/internal/health"
	"pickings/internal/logging"
	"pickings/internal/metrics"
	"pickings/internal/models"
	"pickings/internal/services"
	"pickings/internal/store"
	"pickings/internal/store/sheets"
	"pickings/internal/store/sqlstore"
)

// Runtime holds the long-lived collaborators of a process.
type Runtime struct {
	Config  *config.AppConfig
	Logger  *logging.Logger
	Metrics *metrics.Metrics

	Store store.Store
	DB    *database.Manager
	Redis redis.UniversalClient

	Folios  *services.FolioRegistry
	Details *services.DetailLedger
	Users   *services.UserRegistry

	closers []func() error
}

// New connects the configured backend, makes sure the three tables carry
// their canonical columns and builds the registries over it.
func New(ctx context.Context, cfg *config.AppConfig, logger *logging.Logger, m *metrics.Metrics) (*Runtime, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	rt := &Runtime{Config: cfg, Logger: logger, Metrics: m}

	base, err := rt.openBackend(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Store = store.NewAccessor(store.WithTableNames(base, cfg.Store.TableNames()), store.AccessorConfig{
		MaxRetries:        cfg.Retry.MaxRetries,
		RequestsPerMinute: cfg.Retry.RequestsPerMinute,
		Metrics:           m,
		Logger:            logging.WithModule("store"),
	})

	if err := EnsureTables(ctx, rt.Store); err != nil {
		rt.Close()
		return nil, err
	}

	backend, err := rt.cacheBackend()
	if err != nil {
		rt.Close()
		return nil, err
	}
	opts := services.Options{Metrics: m}
	rt.Folios = services.NewFolioRegistry(rt.Store, cache.New[[]models.Folio](backend, cache.Options{
		Name:    "folios",
		TTL:     cfg.Cache.TTL,
		Metrics: m,
		Logger:  logging.WithModule("cache"),
	}), opts)
	rt.Details = services.NewDetailLedger(rt.Store, opts)
	rt.Users = services.NewUserRegistry(rt.Store, cache.New[[]models.User](backend, cache.Options{
		Name:    "users",
		TTL:     cfg.Cache.TTL,
		Metrics: m,
		Logger:  logging.WithModule("cache"),
	}), opts)

	return rt, nil
}

// EnsureTables creates the pickings, details and users tables or adds the
// columns they are missing.
func EnsureTables(ctx context.Context, st store.Store) error {
	for table, header := range map[string][]string{
		store.TablePickings: models.PickingColumns,
		store.TableDetails:  models.DetailColumns,
		store.TableUsers:    models.UserColumns,
	} {
		if err := st.EnsureTable(ctx, table, header); err != nil {
			return fmt.Errorf("ensure table %s: %w", table, err)
		}
	}
	return nil
}

func (rt *Runtime) openBackend(ctx context.Context) (store.Store, error) {
	cfg := rt.Config
	switch cfg.Store.Backend {
	case config.BackendSheets:
		st, err := sheets.NewFromCredentialsFile(ctx, cfg.Store.SpreadsheetID, cfg.Store.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
		}
		return st, nil
	case config.BackendSQL:
		mgr, err := database.Open(&cfg.Database, rt.Logger.Zerolog())
		if err != nil {
			return nil, err
		}
		rt.DB = mgr
		rt.closers = append(rt.closers, mgr.Close)
		return sqlstore.New(mgr.GetGormDB())
	case config.BackendMemory, "":
		rt.Logger.Warn("using the in-memory store, data is lost on exit")
		return store.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
}

func (rt *Runtime) cacheBackend() (cache.Backend, error) {
	switch rt.Config.Cache.Backend {
	case "redis":
		client := rt.RedisClient()
		return cache.NewRedis(client), nil
	case "memory", "":
		return cache.NewMemory(), nil
	}
	return nil, fmt.Errorf("unsupported cache backend: %s", rt.Config.Cache.Backend)
}

// RedisClient returns the shared redis client, connecting on first use.
func (rt *Runtime) RedisClient() redis.UniversalClient {
	if rt.Redis == nil {
		r := rt.Config.Redis
		client := redis.NewClient(&redis.Options{
			Addr:         r.Addr,
			Password:     r.Password,
			DB:           r.DB,
			PoolSize:     r.PoolSize,
			DialTimeout:  r.Timeout,
			ReadTimeout:  r.Timeout,
			WriteTimeout: r.Timeout,
		})
		rt.Redis = client
		rt.closers = append(rt.closers, client.Close)
	}
	return rt.Redis
}

// AsynqRedis returns the connection options for the task queue.
func (rt *Runtime) AsynqRedis() asynq.RedisClientOpt {
	r := rt.Config.Redis
	return asynq.RedisClientOpt{
		Addr:         r.Addr,
		Password:     r.Password,
		DB:           r.DB,
		PoolSize:     r.PoolSize,
		DialTimeout:  r.Timeout,
		ReadTimeout:  r.Timeout,
		WriteTimeout: r.Timeout,
	}
}

// HealthChecker checks the store plus whichever of redis and the database
// this runtime connected.
func (rt *Runtime) HealthChecker() *health.Checker {
	opts := []health.Option{health.WithMetrics(rt.Metrics)}
	if rt.Redis != nil {
		opts = append(opts, health.WithRedis(rt.Redis))
	}
	if rt.DB != nil {
		opts = append(opts, health.WithDatabase(rt.DB))
	}
	return health.NewChecker(rt.Store, store.TablePickings, opts...)
}

// Close releases connections in reverse order of opening.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
