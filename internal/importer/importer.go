// Package importer reads folio spreadsheets uploaded for bulk import.
package importer

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/xuri/excelize/v2"

	"pickings/internal/rules"
)

var (
	// ErrEmptyWorkbook is returned when the file has no sheet or no header row.
	ErrEmptyWorkbook = errors.New("workbook has no header row")
)

// Sheet is the first worksheet of an upload with normalized column names.
// Each row maps a column to its cell text; short rows read as empty cells.
type Sheet struct {
	Columns []string
	Rows    []map[string]string
}

// HasColumn reports whether the normalized column is present.
func (s Sheet) HasColumn(column string) bool {
	for _, c := range s.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Checksum identifies an upload by content.
func Checksum(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

// ReadFile parses the workbook at path.
func ReadFile(path string) (Sheet, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Sheet{}, "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	sheet, err := Parse(data)
	if err != nil {
		return Sheet{}, "", err
	}
	return sheet, Checksum(data), nil
}

// Parse reads the first worksheet of an .xlsx payload. The first row is the
// header; fully blank rows are dropped.
func Parse(data []byte) (Sheet, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return Sheet{}, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return Sheet{}, ErrEmptyWorkbook
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return Sheet{}, fmt.Errorf("failed to get rows: %w", err)
	}
	if len(rows) == 0 {
		return Sheet{}, ErrEmptyWorkbook
	}

	return FromRows(rows[0], rows[1:]), nil
}

// FromRows builds a Sheet from a raw header and positional rows.
func FromRows(header []string, rows [][]string) Sheet {
	sheet := Sheet{Columns: make([]string, len(header))}
	for i, col := range header {
		sheet.Columns[i] = rules.NormalizeColumn(col)
	}

	for _, row := range rows {
		if blank(row) {
			continue
		}
		record := make(map[string]string, len(sheet.Columns))
		for i, col := range sheet.Columns {
			if col == "" {
				continue
			}
			if _, seen := record[col]; seen {
				// first occurrence of a repeated column wins
				continue
			}
			if i < len(row) {
				record[col] = strings.TrimSpace(row[i])
			} else {
				record[col] = ""
			}
		}
		sheet.Rows = append(sheet.Rows, record)
	}
	return sheet
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
