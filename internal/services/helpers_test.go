package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/require"

	"pickings/internal/cache"
	"pickings/internal/models"
	"pickings/internal/store"
)

var t0 = time.Date(2024, 6, 3, 9, 15, 0, 0, time.Local)

type fixture struct {
	mem     *store.MemoryStore
	clock   *testclock.Clock
	folios  *FolioRegistry
	details *DetailLedger
	users   *UserRegistry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, store.NewMemoryStore(), nil)
}

// newFixtureOn builds the registries over st behind the retrying accessor,
// as the binaries wire them; mem is the backing table set used for seeding
// and assertions.
func newFixtureOn(t *testing.T, mem *store.MemoryStore, st store.Store) *fixture {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, mem.EnsureTable(ctx, store.TablePickings, models.PickingColumns))
	require.NoError(t, mem.EnsureTable(ctx, store.TableDetails, models.DetailColumns))
	require.NoError(t, mem.EnsureTable(ctx, store.TableUsers, models.UserColumns))
	if st == nil {
		st = mem
	}

	clk := testclock.NewClock(t0)
	st = store.NewAccessor(st, store.AccessorConfig{Clock: clk})
	opts := Options{Clock: clk}
	return &fixture{
		mem:     mem,
		clock:   clk,
		folios:  NewFolioRegistry(st, cache.New[[]models.Folio](cache.NewMemory(), cache.Options{Name: "folios", Clock: clk}), opts),
		details: NewDetailLedger(st, opts),
		users:   NewUserRegistry(st, cache.New[[]models.User](cache.NewMemory(), cache.Options{Name: "users", Clock: clk}), opts),
	}
}

func (f *fixture) seedFolio(t *testing.T, folio models.Folio) {
	t.Helper()
	require.NoError(t, f.mem.AppendRow(context.Background(), store.TablePickings, models.Ordered(models.PickingColumns, folio.Cells())))
}

func (f *fixture) seedRow(t *testing.T, table string, header []string, cells map[string]string) {
	t.Helper()
	require.NoError(t, f.mem.AppendRow(context.Background(), table, models.Ordered(header, cells)))
}

func (f *fixture) rawFolio(t *testing.T, folio string) store.Row {
	t.Helper()
	ctx := context.Background()
	ref, err := f.mem.Find(ctx, store.TablePickings, store.Query{Column: models.ColFolio, Value: folio})
	require.NoError(t, err)
	row, err := f.mem.ReadRow(ctx, store.TablePickings, ref)
	require.NoError(t, err)
	return row
}

func (f *fixture) rowCount(t *testing.T, table string) int {
	t.Helper()
	rows, err := f.mem.ReadAll(context.Background(), table)
	require.NoError(t, err)
	return len(rows)
}

// brokenStore fails every read of the named table.
type brokenStore struct {
	*store.MemoryStore
	table string
	err   error
}

func (b *brokenStore) ReadAll(ctx context.Context, table string) ([]store.Row, error) {
	if table == b.table {
		return nil, b.err
	}
	return b.MemoryStore.ReadAll(ctx, table)
}

var errStoreDown = errors.New("dial tcp: connection refused")
