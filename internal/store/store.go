package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pickings/internal/apperrors"
)

// Table names used by the registries.
const (
	TablePickings = "pickings"
	TableDetails  = "detalle_pickings"
	TableUsers    = "usuarios"
)

var (
	// ErrNotFound is returned when the table or the searched row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrQuotaExceeded marks transient throttling errors; the Accessor retries them.
	ErrQuotaExceeded = fmt.Errorf("store: %w", apperrors.ErrQuotaExceeded)

	// ErrUnavailable marks connectivity or configuration failures.
	ErrUnavailable = fmt.Errorf("store: %w", apperrors.ErrStoreUnavailable)
)

// RowRef is the 1-based row number inside a table. Row 1 is the header.
type RowRef int

// Row is one data row keyed by header name.
type Row struct {
	Ref    RowRef
	Values map[string]string
}

// Get returns the value for column, or "" when the column is missing.
func (r Row) Get(column string) string {
	return r.Values[column]
}

// Query selects the first data row whose cell equals Value. An empty Column
// matches any cell of the row.
type Query struct {
	Column string
	Value  string
}

// CellUpdate addresses one cell by row and 1-based column index.
type CellUpdate struct {
	Row    RowRef
	Column int
	Value  string
}

// Store is the narrow tabular contract the registries need from a backend.
// Writes in one BatchUpdate call are sent together but carry no atomicity
// guarantee beyond that.
type Store interface {
	Header(ctx context.Context, table string) ([]string, error)
	Find(ctx context.Context, table string, q Query) (RowRef, error)
	ReadAll(ctx context.Context, table string) ([]Row, error)
	ReadRow(ctx context.Context, table string, ref RowRef) (Row, error)
	AppendRow(ctx context.Context, table string, values []string) error
	AppendRows(ctx context.Context, table string, rows [][]string) error
	BatchUpdate(ctx context.Context, table string, cells []CellUpdate) error
	DeleteRow(ctx context.Context, table string, ref RowRef) error
	EnsureTable(ctx context.Context, table string, header []string) error
}

// IsQuotaExceeded reports whether err signals throttling by the store, either
// through ErrQuotaExceeded or through the wording backends commonly use.
func IsQuotaExceeded(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, apperrors.ErrQuotaExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota exceeded") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "resource_exhausted")
}

// ColumnIndex returns the 1-based index of column in header, or 0.
func ColumnIndex(header []string, column string) int {
	for i, h := range header {
		if strings.TrimSpace(h) == column {
			return i + 1
		}
	}
	return 0
}

// MissingColumns returns the entries of want not present in header, in order.
func MissingColumns(header, want []string) []string {
	var missing []string
	for _, col := range want {
		if ColumnIndex(header, col) == 0 {
			missing = append(missing, col)
		}
	}
	return missing
}

// RowFromValues maps positional values onto header names.
func RowFromValues(ref RowRef, header, values []string) Row {
	row := Row{Ref: ref, Values: make(map[string]string, len(header))}
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if i < len(values) {
			row.Values[h] = values[i]
		} else {
			row.Values[h] = ""
		}
	}
	return row
}

// Matches reports whether values satisfy q under header.
func (q Query) Matches(header, values []string) bool {
	if q.Column == "" {
		for _, v := range values {
			if v == q.Value {
				return true
			}
		}
		return false
	}
	idx := ColumnIndex(header, q.Column)
	if idx == 0 || idx > len(values) {
		return false
	}
	return values[idx-1] == q.Value
}
