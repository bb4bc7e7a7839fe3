package store

import "context"

// Renamed maps logical table names onto the names the backend knows them by.
// Tables without an entry pass through unchanged.
type Renamed struct {
	next  Store
	names map[string]string
}

var _ Store = (*Renamed)(nil)

// WithTableNames wraps next so callers keep using the logical names.
func WithTableNames(next Store, names map[string]string) *Renamed {
	return &Renamed{next: next, names: names}
}

func (r *Renamed) name(table string) string {
	if n, ok := r.names[table]; ok && n != "" {
		return n
	}
	return table
}

// Header implements Store.
func (r *Renamed) Header(ctx context.Context, table string) ([]string, error) {
	return r.next.Header(ctx, r.name(table))
}

// Find implements Store.
func (r *Renamed) Find(ctx context.Context, table string, q Query) (RowRef, error) {
	return r.next.Find(ctx, r.name(table), q)
}

// ReadAll implements Store.
func (r *Renamed) ReadAll(ctx context.Context, table string) ([]Row, error) {
	return r.next.ReadAll(ctx, r.name(table))
}

// ReadRow implements Store.
func (r *Renamed) ReadRow(ctx context.Context, table string, ref RowRef) (Row, error) {
	return r.next.ReadRow(ctx, r.name(table), ref)
}

// AppendRow implements Store.
func (r *Renamed) AppendRow(ctx context.Context, table string, values []string) error {
	return r.next.AppendRow(ctx, r.name(table), values)
}

// AppendRows implements Store.
func (r *Renamed) AppendRows(ctx context.Context, table string, rows [][]string) error {
	return r.next.AppendRows(ctx, r.name(table), rows)
}

// BatchUpdate implements Store.
func (r *Renamed) BatchUpdate(ctx context.Context, table string, cells []CellUpdate) error {
	return r.next.BatchUpdate(ctx, r.name(table), cells)
}

// DeleteRow implements Store.
func (r *Renamed) DeleteRow(ctx context.Context, table string, ref RowRef) error {
	return r.next.DeleteRow(ctx, r.name(table), ref)
}

// EnsureTable implements Store.
func (r *Renamed) EnsureTable(ctx context.Context, table string, header []string) error {
	return r.next.EnsureTable(ctx, r.name(table), header)
}
