package bootstrap

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickings/internal/config"
	"pickings/internal/health"
	"pickings/internal/logging"
	"pickings/internal/models"
	"pickings/internal/services"
	"pickings/internal/store"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Store: config.StoreConfig{
			Backend: config.BackendMemory,
			Tables: config.TablesConfig{
				Pickings: "Hoja1",
				Details:  "detalle_pickings",
				Users:    "usuarios",
			},
		},
		Cache: config.CacheConfig{Backend: "memory", TTL: time.Minute},
		Retry: config.RetryConfig{MaxRetries: 3},
	}
}

func quietLogger() *logging.Logger {
	return logging.NewLogger(logging.ErrorLevel, io.Discard)
}

func TestNew_MemoryBackend(t *testing.T) {
	ctx := context.Background()
	rt, err := New(ctx, testConfig(), quietLogger(), nil)
	require.NoError(t, err)
	defer rt.Close()

	header, err := rt.Store.Header(ctx, store.TablePickings)
	require.NoError(t, err)
	assert.Equal(t, models.PickingColumns, header)

	_, err = rt.Details.Register(ctx, services.ScanRequest{QRData: "F-1|DOC-9", Capturista: "Juan"})
	require.NoError(t, err)
	counts, err := rt.Details.CountByFolio(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"F-1": 1}, counts)

	report := rt.HealthChecker().Check(ctx)
	assert.Equal(t, health.StatusOK, report.Status)
	assert.NotContains(t, report.Dependencies, "redis")
}

func TestNew_SQLBackendWithRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Store.Backend = config.BackendSQL
	cfg.Database = config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "pickings.db")}
	cfg.Cache.Backend = "redis"
	cfg.Redis = config.RedisConfig{Addr: mr.Addr(), Timeout: time.Second}

	ctx := context.Background()
	rt, err := New(ctx, cfg, quietLogger(), nil)
	require.NoError(t, err)
	defer rt.Close()
	require.NotNil(t, rt.DB)

	_, err = rt.Users.Add(ctx, "Lupita", models.RoleCapturista)
	require.NoError(t, err)
	users, err := rt.Users.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Lupita", users[0].Username)
	assert.NotEmpty(t, mr.Keys())

	report := rt.HealthChecker().Check(ctx)
	assert.Contains(t, report.Dependencies, "redis")
	assert.Contains(t, report.Dependencies, "database")
	assert.Equal(t, health.StatusOK, report.Dependencies["database"].Status)

	assert.Equal(t, mr.Addr(), rt.AsynqRedis().Addr)
}

func TestNew_RejectsUnknownBackends(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Backend = "ftp"
	_, err := New(context.Background(), cfg, quietLogger(), nil)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Cache.Backend = "memcached"
	_, err = New(context.Background(), cfg, quietLogger(), nil)
	assert.Error(t, err)
}

func TestEnsureTablesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	require.NoError(t, EnsureTables(ctx, mem))
	require.NoError(t, EnsureTables(ctx, mem))

	header, err := mem.Header(ctx, store.TableUsers)
	require.NoError(t, err)
	assert.Equal(t, models.UserColumns, header)
}
