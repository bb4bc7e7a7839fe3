// Package sqlstore implements store.Store on a relational database. Every
// table is a set of positioned rows in one sheet_rows table so the store keeps
// sheet semantics: row 1 is the header and deleting a row shifts the rest up.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"pickings/internal/store"
)

// SheetRow is one positioned row of a logical table.
type SheetRow struct {
	ID       uint     `gorm:"primaryKey"`
	Sheet    string   `gorm:"size:128;not null;index:idx_sheet_rows_sheet_position,priority:1"`
	Position int      `gorm:"not null;index:idx_sheet_rows_sheet_position,priority:2"`
	Cells    []string `gorm:"type:text;serializer:json"`
}

// TableName pins the table name.
func (SheetRow) TableName() string { return "sheet_rows" }

// Store keeps tables in sheet_rows.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// New migrates the schema and returns a store on db.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&SheetRow{}); err != nil {
		return nil, fmt.Errorf("migrate sheet_rows: %w", err)
	}
	return &Store{db: db}, nil
}

// Header implements store.Store.
func (s *Store) Header(ctx context.Context, table string) ([]string, error) {
	row, err := s.row(s.db.WithContext(ctx), table, 1)
	if err != nil {
		return nil, err
	}
	return row.Cells, nil
}

// Find implements store.Store.
func (s *Store) Find(ctx context.Context, table string, q store.Query) (store.RowRef, error) {
	rows, err := s.rows(s.db.WithContext(ctx), table)
	if err != nil {
		return 0, err
	}
	header := rows[0].Cells
	for _, r := range rows[1:] {
		if q.Matches(header, r.Cells) {
			return store.RowRef(r.Position), nil
		}
	}
	return 0, fmt.Errorf("%q in %s: %w", q.Value, table, store.ErrNotFound)
}

// ReadAll implements store.Store.
func (s *Store) ReadAll(ctx context.Context, table string) ([]store.Row, error) {
	rows, err := s.rows(s.db.WithContext(ctx), table)
	if err != nil {
		return nil, err
	}
	header := rows[0].Cells
	out := make([]store.Row, 0, len(rows)-1)
	for _, r := range rows[1:] {
		out = append(out, store.RowFromValues(store.RowRef(r.Position), header, r.Cells))
	}
	return out, nil
}

// ReadRow implements store.Store.
func (s *Store) ReadRow(ctx context.Context, table string, ref store.RowRef) (store.Row, error) {
	if ref < 2 {
		return store.Row{}, store.ErrNotFound
	}
	db := s.db.WithContext(ctx)
	header, err := s.row(db, table, 1)
	if err != nil {
		return store.Row{}, err
	}
	row, err := s.row(db, table, int(ref))
	if err != nil {
		return store.Row{}, err
	}
	return store.RowFromValues(ref, header.Cells, row.Cells), nil
}

// AppendRow implements store.Store.
func (s *Store) AppendRow(ctx context.Context, table string, values []string) error {
	return s.AppendRows(ctx, table, [][]string{values})
}

// AppendRows implements store.Store.
func (s *Store) AppendRows(ctx context.Context, table string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	return s.transaction(ctx, func(tx *gorm.DB) error {
		last, err := s.lastPosition(tx, table)
		if err != nil {
			return err
		}
		if last == 0 {
			return fmt.Errorf("table %q: %w", table, store.ErrNotFound)
		}
		records := make([]SheetRow, len(rows))
		for i, values := range rows {
			records[i] = SheetRow{Sheet: table, Position: last + 1 + i, Cells: append([]string{}, values...)}
		}
		return tx.Create(&records).Error
	})
}

// BatchUpdate implements store.Store. Cells are grouped per row so each row
// is read and written once.
func (s *Store) BatchUpdate(ctx context.Context, table string, cells []store.CellUpdate) error {
	if len(cells) == 0 {
		return nil
	}
	byRow := make(map[store.RowRef][]store.CellUpdate)
	for _, c := range cells {
		if c.Row < 1 || c.Column < 1 {
			return fmt.Errorf("invalid cell address row %d column %d", c.Row, c.Column)
		}
		byRow[c.Row] = append(byRow[c.Row], c)
	}
	refs := make([]int, 0, len(byRow))
	for ref := range byRow {
		refs = append(refs, int(ref))
	}
	sort.Ints(refs)

	return s.transaction(ctx, func(tx *gorm.DB) error {
		for _, ref := range refs {
			row, err := s.row(tx, table, ref)
			if err != nil {
				return err
			}
			for _, c := range byRow[store.RowRef(ref)] {
				for len(row.Cells) < c.Column {
					row.Cells = append(row.Cells, "")
				}
				row.Cells[c.Column-1] = c.Value
			}
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteRow implements store.Store.
func (s *Store) DeleteRow(ctx context.Context, table string, ref store.RowRef) error {
	if ref < 2 {
		return store.ErrNotFound
	}
	return s.transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Where("sheet = ? AND position = ?", table, int(ref)).Delete(&SheetRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("row %d in %s: %w", ref, table, store.ErrNotFound)
		}
		return tx.Model(&SheetRow{}).
			Where("sheet = ? AND position > ?", table, int(ref)).
			Update("position", gorm.Expr("position - 1")).Error
	})
}

// EnsureTable implements store.Store.
func (s *Store) EnsureTable(ctx context.Context, table string, header []string) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		row, err := s.row(tx, table, 1)
		if errors.Is(err, store.ErrNotFound) {
			return tx.Create(&SheetRow{Sheet: table, Position: 1, Cells: append([]string{}, header...)}).Error
		}
		if err != nil {
			return err
		}
		missing := store.MissingColumns(row.Cells, header)
		if len(missing) == 0 {
			return nil
		}
		row.Cells = append(row.Cells, missing...)
		return tx.Save(&row).Error
	})
}

func (s *Store) row(db *gorm.DB, table string, position int) (SheetRow, error) {
	var row SheetRow
	err := db.Where("sheet = ? AND position = ?", table, position).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SheetRow{}, fmt.Errorf("row %d in %s: %w", position, table, store.ErrNotFound)
	}
	if err != nil {
		return SheetRow{}, classify(err)
	}
	return row, nil
}

// rows returns every row of table ordered by position, header first.
func (s *Store) rows(db *gorm.DB, table string) ([]SheetRow, error) {
	var rows []SheetRow
	if err := db.Where("sheet = ?", table).Order("position").Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	if len(rows) == 0 || rows[0].Position != 1 {
		return nil, fmt.Errorf("table %q: %w", table, store.ErrNotFound)
	}
	return rows, nil
}

func (s *Store) lastPosition(db *gorm.DB, table string) (int, error) {
	var last int
	err := db.Model(&SheetRow{}).
		Where("sheet = ?", table).
		Select("COALESCE(MAX(position), 0)").
		Scan(&last).Error
	return last, classify(err)
}

func (s *Store) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := s.db.WithContext(ctx).Transaction(fn)
	if err == nil || errors.Is(err, store.ErrNotFound) {
		return err
	}
	return classify(err)
}

// classify marks database failures as store unavailability, leaving context
// errors alone.
func classify(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, store.ErrUnavailable) || errors.Is(err, store.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
}
