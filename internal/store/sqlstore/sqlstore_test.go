package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickings/internal/config"
	"pickings/internal/database"
	"pickings/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	mgr, err := database.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	st, err := New(mgr.GetGormDB())
	require.NoError(t, err)
	return st
}

func TestStore_SheetSemantics(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.Header(ctx, store.TablePickings)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, st.AppendRow(ctx, store.TablePickings, []string{"A1"}), store.ErrNotFound)

	require.NoError(t, st.EnsureTable(ctx, store.TablePickings, []string{"FOLIO", "ESTATUS"}))
	require.NoError(t, st.AppendRows(ctx, store.TablePickings, [][]string{
		{"A1", "PENDIENTE"},
		{"A2", "IMPRESOS"},
		{"A3", "LIBERADO"},
	}))

	ref, err := st.Find(ctx, store.TablePickings, store.Query{Column: "FOLIO", Value: "A3"})
	require.NoError(t, err)
	assert.Equal(t, store.RowRef(4), ref)

	require.NoError(t, st.DeleteRow(ctx, store.TablePickings, 2))

	ref, err = st.Find(ctx, store.TablePickings, store.Query{Column: "FOLIO", Value: "A3"})
	require.NoError(t, err)
	assert.Equal(t, store.RowRef(3), ref, "rows below a deleted row shift up")

	rows, err := st.ReadAll(ctx, store.TablePickings)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "A2", rows[0].Get("FOLIO"))
	assert.Equal(t, store.RowRef(2), rows[0].Ref)

	require.NoError(t, st.AppendRow(ctx, store.TablePickings, []string{"A4"}))
	row, err := st.ReadRow(ctx, store.TablePickings, 4)
	require.NoError(t, err)
	assert.Equal(t, "A4", row.Get("FOLIO"))
}

func TestStore_BatchUpdate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.EnsureTable(ctx, store.TablePickings, []string{"FOLIO", "ESTATUS", "EVENTO"}))
	require.NoError(t, st.AppendRow(ctx, store.TablePickings, []string{"A1"}))

	require.NoError(t, st.BatchUpdate(ctx, store.TablePickings, []store.CellUpdate{
		{Row: 2, Column: 2, Value: "IMPRESOS"},
		{Row: 2, Column: 3, Value: "printed"},
	}))
	row, err := st.ReadRow(ctx, store.TablePickings, 2)
	require.NoError(t, err)
	assert.Equal(t, "IMPRESOS", row.Get("ESTATUS"))
	assert.Equal(t, "printed", row.Get("EVENTO"))

	err = st.BatchUpdate(ctx, store.TablePickings, []store.CellUpdate{{Row: 9, Column: 1, Value: "x"}})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_EnsureTableAddsMissingColumns(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.EnsureTable(ctx, store.TableUsers, []string{"USUARIO"}))
	require.NoError(t, st.AppendRow(ctx, store.TableUsers, []string{"Maria"}))
	require.NoError(t, st.EnsureTable(ctx, store.TableUsers, []string{"USUARIO", "ROL"}))

	header, err := st.Header(ctx, store.TableUsers)
	require.NoError(t, err)
	assert.Equal(t, []string{"USUARIO", "ROL"}, header)

	rows, err := st.ReadAll(ctx, store.TableUsers)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0].Get("ROL"))
}

func TestStore_TablesAreIsolated(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.EnsureTable(ctx, store.TablePickings, []string{"FOLIO"}))
	require.NoError(t, st.EnsureTable(ctx, store.TableDetails, []string{"QR_DATA"}))
	require.NoError(t, st.AppendRow(ctx, store.TableDetails, []string{"A1|x"}))

	rows, err := st.ReadAll(ctx, store.TablePickings)
	require.NoError(t, err)
	assert.Empty(t, rows)

	assert.ErrorIs(t, st.DeleteRow(ctx, store.TablePickings, 2), store.ErrNotFound)
	_, err = st.ReadRow(ctx, store.TableDetails, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
