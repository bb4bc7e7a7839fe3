package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps tables in process memory. It mirrors sheet semantics:
// deleting a row shifts the rows below it up by one.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string][][]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string][][]string)}
}

func (m *MemoryStore) table(name string) ([][]string, error) {
	rows, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("table %q: %w", name, ErrNotFound)
	}
	return rows, nil
}

// Header implements Store.
func (m *MemoryStore) Header(ctx context.Context, table string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, err := m.table(table)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return append([]string(nil), rows[0]...), nil
}

// Find implements Store.
func (m *MemoryStore) Find(ctx context.Context, table string, q Query) (RowRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, err := m.table(table)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("%q in %s: %w", q.Value, table, ErrNotFound)
	}
	for i := 1; i < len(rows); i++ {
		if q.Matches(rows[0], rows[i]) {
			return RowRef(i + 1), nil
		}
	}
	return 0, fmt.Errorf("%q in %s: %w", q.Value, table, ErrNotFound)
}

// ReadAll implements Store.
func (m *MemoryStore) ReadAll(ctx context.Context, table string) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, err := m.table(table)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return []Row{}, nil
	}
	out := make([]Row, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		out = append(out, RowFromValues(RowRef(i+1), rows[0], rows[i]))
	}
	return out, nil
}

// ReadRow implements Store.
func (m *MemoryStore) ReadRow(ctx context.Context, table string, ref RowRef) (Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, err := m.table(table)
	if err != nil {
		return Row{}, err
	}
	idx := int(ref) - 1
	if idx < 1 || idx >= len(rows) {
		return Row{}, fmt.Errorf("row %d in %s: %w", ref, table, ErrNotFound)
	}
	return RowFromValues(ref, rows[0], rows[idx]), nil
}

// AppendRow implements Store.
func (m *MemoryStore) AppendRow(ctx context.Context, table string, values []string) error {
	return m.AppendRows(ctx, table, [][]string{values})
}

// AppendRows implements Store.
func (m *MemoryStore) AppendRows(ctx context.Context, table string, rows [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.table(table)
	if err != nil {
		return err
	}
	for _, r := range rows {
		existing = append(existing, append([]string(nil), r...))
	}
	m.tables[table] = existing
	return nil
}

// BatchUpdate implements Store.
func (m *MemoryStore) BatchUpdate(ctx context.Context, table string, cells []CellUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := m.table(table)
	if err != nil {
		return err
	}
	for _, c := range cells {
		idx := int(c.Row) - 1
		if idx < 0 || idx >= len(rows) || c.Column < 1 {
			return fmt.Errorf("cell (%d,%d) in %s: %w", c.Row, c.Column, table, ErrNotFound)
		}
		for len(rows[idx]) < c.Column {
			rows[idx] = append(rows[idx], "")
		}
		rows[idx][c.Column-1] = c.Value
	}
	return nil
}

// DeleteRow implements Store.
func (m *MemoryStore) DeleteRow(ctx context.Context, table string, ref RowRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := m.table(table)
	if err != nil {
		return err
	}
	idx := int(ref) - 1
	if idx < 1 || idx >= len(rows) {
		return fmt.Errorf("row %d in %s: %w", ref, table, ErrNotFound)
	}
	m.tables[table] = append(rows[:idx], rows[idx+1:]...)
	return nil
}

// EnsureTable implements Store.
func (m *MemoryStore) EnsureTable(ctx context.Context, table string, header []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.tables[table]
	if !ok || len(rows) == 0 {
		m.tables[table] = [][]string{append([]string(nil), header...)}
		return nil
	}
	rows[0] = append(rows[0], MissingColumns(rows[0], header)...)
	return nil
}
