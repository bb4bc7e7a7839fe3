// Package sheets implements store.Store on a Google Sheets spreadsheet, one
// worksheet per table with the header in row 1.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"pickings/internal/store"
)

const (
	valueInput  = "RAW"
	renderValue = "FORMATTED_VALUE"

	newSheetRows    = 1000
	newSheetColumns = 20
)

// Store talks to one spreadsheet.
type Store struct {
	svc           *gsheets.Service
	spreadsheetID string

	mu       sync.Mutex
	sheetIDs map[string]int64
}

var _ store.Store = (*Store)(nil)

// New connects to spreadsheetID with the given client options.
func New(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*Store, error) {
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: sheets client: %v", store.ErrUnavailable, err)
	}
	return &Store{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// NewFromCredentialsFile connects with a service account key file.
func NewFromCredentialsFile(ctx context.Context, spreadsheetID, credentialsFile string) (*Store, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: read credentials: %v", store.ErrUnavailable, err)
	}
	ts, err := TokenSource(ctx, data)
	if err != nil {
		return nil, err
	}
	return New(ctx, spreadsheetID, option.WithTokenSource(ts))
}

// TokenSource builds a spreadsheet-scoped token source from a service
// account JSON key.
func TokenSource(ctx context.Context, serviceAccountJSON []byte) (oauth2.TokenSource, error) {
	cfg, err := google.JWTConfigFromJSON(serviceAccountJSON, gsheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid service account key: %v", store.ErrUnavailable, err)
	}
	return cfg.TokenSource(ctx), nil
}

// Header implements store.Store.
func (s *Store) Header(ctx context.Context, table string) ([]string, error) {
	vr, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rowRange(table, 1)).
		ValueRenderOption(renderValue).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	if len(vr.Values) == 0 {
		return []string{}, nil
	}
	return toStrings(vr.Values[0]), nil
}

// Find implements store.Store.
func (s *Store) Find(ctx context.Context, table string, q store.Query) (store.RowRef, error) {
	values, err := s.values(ctx, table)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, store.ErrNotFound
	}
	header := values[0]
	for i, row := range values[1:] {
		if q.Matches(header, row) {
			return store.RowRef(i + 2), nil
		}
	}
	return 0, store.ErrNotFound
}

// ReadAll implements store.Store.
func (s *Store) ReadAll(ctx context.Context, table string) ([]store.Row, error) {
	values, err := s.values(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(values) < 2 {
		return []store.Row{}, nil
	}
	header := values[0]
	rows := make([]store.Row, 0, len(values)-1)
	for i, row := range values[1:] {
		rows = append(rows, store.RowFromValues(store.RowRef(i+2), header, row))
	}
	return rows, nil
}

// ReadRow implements store.Store.
func (s *Store) ReadRow(ctx context.Context, table string, ref store.RowRef) (store.Row, error) {
	if ref < 2 {
		return store.Row{}, store.ErrNotFound
	}
	resp, err := s.svc.Spreadsheets.Values.BatchGet(s.spreadsheetID).
		Ranges(rowRange(table, 1), rowRange(table, int(ref))).
		ValueRenderOption(renderValue).Context(ctx).Do()
	if err != nil {
		return store.Row{}, classify(err)
	}
	if len(resp.ValueRanges) != 2 || len(resp.ValueRanges[1].Values) == 0 {
		return store.Row{}, store.ErrNotFound
	}
	var header []string
	if len(resp.ValueRanges[0].Values) > 0 {
		header = toStrings(resp.ValueRanges[0].Values[0])
	}
	return store.RowFromValues(ref, header, toStrings(resp.ValueRanges[1].Values[0])), nil
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
	vr := &gsheets.ValueRange{Values: make([][]interface{}, len(rows))}
	for i, row := range rows {
		vr.Values[i] = toCells(row)
	}
	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, cellRange(table, 1, 1), vr).
		ValueInputOption(valueInput).InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return classify(err)
}

// BatchUpdate implements store.Store.
func (s *Store) BatchUpdate(ctx context.Context, table string, cells []store.CellUpdate) error {
	if len(cells) == 0 {
		return nil
	}
	req := &gsheets.BatchUpdateValuesRequest{ValueInputOption: valueInput}
	for _, c := range cells {
		if c.Row < 1 || c.Column < 1 {
			return fmt.Errorf("invalid cell address row %d column %d", c.Row, c.Column)
		}
		req.Data = append(req.Data, &gsheets.ValueRange{
			Range:  cellRange(table, int(c.Row), c.Column),
			Values: [][]interface{}{{c.Value}},
		})
	}
	_, err := s.svc.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
	return classify(err)
}

// DeleteRow implements store.Store.
func (s *Store) DeleteRow(ctx context.Context, table string, ref store.RowRef) error {
	if ref < 2 {
		return store.ErrNotFound
	}
	sheetID, ok, err := s.sheetID(ctx, table)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	_, err = s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			DeleteDimension: &gsheets.DeleteDimensionRequest{
				Range: &gsheets.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(ref) - 1,
					EndIndex:        int64(ref),
					ForceSendFields: []string{"SheetId"},
				},
			},
		}},
	}).Context(ctx).Do()
	return classify(err)
}

// EnsureTable implements store.Store. A missing worksheet is created with
// header; an existing one gets any missing header columns appended.
func (s *Store) EnsureTable(ctx context.Context, table string, header []string) error {
	_, ok, err := s.sheetID(ctx, table)
	if err != nil {
		return err
	}
	if !ok {
		if err := s.addSheet(ctx, table); err != nil {
			return err
		}
		return s.writeHeader(ctx, table, 1, header)
	}

	current, err := s.Header(ctx, table)
	if err != nil {
		return err
	}
	missing := store.MissingColumns(current, header)
	if len(missing) == 0 {
		return nil
	}
	return s.writeHeader(ctx, table, len(current)+1, missing)
}

func (s *Store) addSheet(ctx context.Context, table string) error {
	resp, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			AddSheet: &gsheets.AddSheetRequest{
				Properties: &gsheets.SheetProperties{
					Title: table,
					GridProperties: &gsheets.GridProperties{
						RowCount:    newSheetRows,
						ColumnCount: newSheetColumns,
					},
				},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return classify(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sheetIDs == nil {
		s.sheetIDs = make(map[string]int64)
	}
	for _, reply := range resp.Replies {
		if reply.AddSheet != nil && reply.AddSheet.Properties != nil {
			s.sheetIDs[table] = reply.AddSheet.Properties.SheetId
		}
	}
	return nil
}

func (s *Store) writeHeader(ctx context.Context, table string, fromColumn int, columns []string) error {
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, cellRange(table, 1, fromColumn), &gsheets.ValueRange{
		Values: [][]interface{}{toCells(columns)},
	}).ValueInputOption(valueInput).Context(ctx).Do()
	return classify(err)
}

// sheetID resolves a worksheet title to its numeric id, caching the
// spreadsheet layout after the first lookup.
func (s *Store) sheetID(ctx context.Context, table string) (int64, bool, error) {
	s.mu.Lock()
	id, ok := s.sheetIDs[table]
	s.mu.Unlock()
	if ok {
		return id, true, nil
	}

	sp, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, false, classify(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheetIDs = make(map[string]int64, len(sp.Sheets))
	for _, sh := range sp.Sheets {
		if sh.Properties != nil {
			s.sheetIDs[sh.Properties.Title] = sh.Properties.SheetId
		}
	}
	id, ok = s.sheetIDs[table]
	return id, ok, nil
}

func (s *Store) values(ctx context.Context, table string) ([][]string, error) {
	vr, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, quote(table)).
		ValueRenderOption(renderValue).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	out := make([][]string, len(vr.Values))
	for i, row := range vr.Values {
		out[i] = toStrings(row)
	}
	return out, nil
}

// classify maps API failures onto the store error kinds, keeping the
// original error in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 429 || strings.Contains(gerr.Body, "RESOURCE_EXHAUSTED") || hasReason(gerr, "rateLimitExceeded"):
			return fmt.Errorf("%w: %w", store.ErrQuotaExceeded, err)
		case gerr.Code == 404:
			return fmt.Errorf("%w: %w", store.ErrNotFound, err)
		case gerr.Code == 400 && strings.Contains(gerr.Message, "Unable to parse range"):
			return fmt.Errorf("%w: %w", store.ErrNotFound, err)
		case gerr.Code >= 500:
			return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
		}
		return err
	}

	var uerr *url.Error
	var nerr net.Error
	if errors.As(err, &uerr) || errors.As(err, &nerr) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return err
}

func hasReason(gerr *googleapi.Error, reason string) bool {
	for _, item := range gerr.Errors {
		if item.Reason == reason {
			return true
		}
	}
	return false
}

func quote(table string) string {
	return "'" + strings.ReplaceAll(table, "'", "''") + "'"
}

func rowRange(table string, row int) string {
	return fmt.Sprintf("%s!%d:%d", quote(table), row, row)
}

func cellRange(table string, row, column int) string {
	return fmt.Sprintf("%s!%s%d", quote(table), ColumnName(column), row)
}

// ColumnName converts a 1-based column index to its A1 letters.
func ColumnName(column int) string {
	var name []byte
	for column > 0 {
		column--
		name = append([]byte{byte('A' + column%26)}, name...)
		column /= 26
	}
	return string(name)
}

func toStrings(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		if v == nil {
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	return out
}

func toCells(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}
