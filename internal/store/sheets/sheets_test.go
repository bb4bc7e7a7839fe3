package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"pickings/internal/store"
)

const spreadsheetID = "sheet-1"

// fakeSheets serves the subset of the Sheets v4 REST surface the store uses.
type fakeSheets struct {
	mu     sync.Mutex
	tables map[string][][]string
	ids    map[string]int64
	nextID int64
	fail   []int
	calls  int
}

func newFakeSheets() *fakeSheets {
	return &fakeSheets{tables: map[string][][]string{}, ids: map[string]int64{}}
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if len(f.fail) > 0 {
		code := f.fail[0]
		f.fail = f.fail[1:]
		if code == http.StatusTooManyRequests {
			writeError(w, code, "Quota exceeded for quota metric 'Read requests'", "RESOURCE_EXHAUSTED")
		} else {
			writeError(w, code, "The service is currently unavailable.", "UNAVAILABLE")
		}
		return
	}

	p := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/"+spreadsheetID)
	switch {
	case p == "" && r.Method == http.MethodGet:
		f.getSpreadsheet(w)
	case p == ":batchUpdate":
		f.batchUpdateSpreadsheet(w, r)
	case p == "/values:batchGet":
		f.batchGet(w, r)
	case p == "/values:batchUpdate":
		f.batchUpdateValues(w, r)
	case strings.HasPrefix(p, "/values/") && strings.HasSuffix(p, ":append"):
		f.appendValues(w, r, strings.TrimSuffix(strings.TrimPrefix(p, "/values/"), ":append"))
	case strings.HasPrefix(p, "/values/") && r.Method == http.MethodPut:
		f.updateValues(w, r, strings.TrimPrefix(p, "/values/"))
	case strings.HasPrefix(p, "/values/") && r.Method == http.MethodGet:
		vr, ok := f.read(strings.TrimPrefix(p, "/values/"))
		if !ok {
			writeError(w, http.StatusBadRequest, "Unable to parse range: "+p, "INVALID_ARGUMENT")
			return
		}
		writeJSON(w, vr)
	default:
		http.NotFound(w, r)
	}
}

func writeError(w http.ResponseWriter, code int, message, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":%q,"status":%q}}`, code, message, status)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// parseRange understands 'title', 'title'!N:N and 'title'!<col><row>.
func parseRange(rng string) (title string, row, col int, wholeRow bool) {
	end := strings.Index(rng[1:], "'") + 1
	title = rng[1:end]
	rest := strings.TrimPrefix(rng[end+1:], "!")
	if rest == "" {
		return title, 0, 0, false
	}
	if i := strings.Index(rest, ":"); i > 0 {
		row, _ = strconv.Atoi(rest[:i])
		return title, row, 0, true
	}
	i := 0
	for i < len(rest) && rest[i] >= 'A' && rest[i] <= 'Z' {
		col = col*26 + int(rest[i]-'A'+1)
		i++
	}
	row, _ = strconv.Atoi(rest[i:])
	return title, row, col, false
}

func (f *fakeSheets) read(rng string) (*gsheets.ValueRange, bool) {
	title, row, _, wholeRow := parseRange(rng)
	rows, ok := f.tables[title]
	if !ok {
		return nil, false
	}
	vr := &gsheets.ValueRange{Range: rng, MajorDimension: "ROWS"}
	if wholeRow {
		if row <= len(rows) {
			vr.Values = [][]interface{}{cells(rows[row-1])}
		}
		return vr, true
	}
	for _, r := range rows {
		vr.Values = append(vr.Values, cells(r))
	}
	return vr, true
}

func cells(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}

func (f *fakeSheets) set(title string, row, col int, value string) {
	rows := f.tables[title]
	for len(rows) < row {
		rows = append(rows, nil)
	}
	for len(rows[row-1]) < col {
		rows[row-1] = append(rows[row-1], "")
	}
	rows[row-1][col-1] = value
	f.tables[title] = rows
}

func (f *fakeSheets) getSpreadsheet(w http.ResponseWriter) {
	sp := &gsheets.Spreadsheet{}
	for title, id := range f.ids {
		sp.Sheets = append(sp.Sheets, &gsheets.Sheet{Properties: &gsheets.SheetProperties{Title: title, SheetId: id}})
	}
	writeJSON(w, sp)
}

func (f *fakeSheets) batchUpdateSpreadsheet(w http.ResponseWriter, r *http.Request) {
	var req gsheets.BatchUpdateSpreadsheetRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	resp := &gsheets.BatchUpdateSpreadsheetResponse{}
	for _, rq := range req.Requests {
		switch {
		case rq.AddSheet != nil:
			f.nextID++
			title := rq.AddSheet.Properties.Title
			f.tables[title] = nil
			f.ids[title] = f.nextID
			resp.Replies = append(resp.Replies, &gsheets.Response{AddSheet: &gsheets.AddSheetResponse{
				Properties: &gsheets.SheetProperties{Title: title, SheetId: f.nextID},
			}})
		case rq.DeleteDimension != nil:
			dr := rq.DeleteDimension.Range
			for title, id := range f.ids {
				if id == dr.SheetId {
					rows := f.tables[title]
					f.tables[title] = append(rows[:dr.StartIndex], rows[dr.EndIndex:]...)
				}
			}
		}
	}
	writeJSON(w, resp)
}

func (f *fakeSheets) batchGet(w http.ResponseWriter, r *http.Request) {
	resp := &gsheets.BatchGetValuesResponse{}
	for _, rng := range r.URL.Query()["ranges"] {
		vr, ok := f.read(rng)
		if !ok {
			writeError(w, http.StatusBadRequest, "Unable to parse range: "+rng, "INVALID_ARGUMENT")
			return
		}
		resp.ValueRanges = append(resp.ValueRanges, vr)
	}
	writeJSON(w, resp)
}

func (f *fakeSheets) batchUpdateValues(w http.ResponseWriter, r *http.Request) {
	var req gsheets.BatchUpdateValuesRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	for _, vr := range req.Data {
		title, row, col, _ := parseRange(vr.Range)
		f.set(title, row, col, fmt.Sprint(vr.Values[0][0]))
	}
	writeJSON(w, &gsheets.BatchUpdateValuesResponse{})
}

func (f *fakeSheets) appendValues(w http.ResponseWriter, r *http.Request, rng string) {
	var vr gsheets.ValueRange
	_ = json.NewDecoder(r.Body).Decode(&vr)
	title, _, _, _ := parseRange(rng)
	for _, row := range vr.Values {
		f.tables[title] = append(f.tables[title], toStrings(row))
	}
	writeJSON(w, &gsheets.AppendValuesResponse{})
}

func (f *fakeSheets) updateValues(w http.ResponseWriter, r *http.Request, rng string) {
	var vr gsheets.ValueRange
	_ = json.NewDecoder(r.Body).Decode(&vr)
	title, row, col, _ := parseRange(rng)
	for i, v := range vr.Values[0] {
		f.set(title, row, col+i, fmt.Sprint(v))
	}
	writeJSON(w, &gsheets.UpdateValuesResponse{})
}

func newTestStore(t *testing.T) (*Store, *fakeSheets) {
	t.Helper()
	fake := newFakeSheets()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	st, err := New(context.Background(), spreadsheetID,
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return st, fake
}

func TestStore_TableLifecycle(t *testing.T) {
	st, fake := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnsureTable(ctx, store.TablePickings, []string{"FOLIO", "ESTATUS"}))
	assert.Equal(t, [][]string{{"FOLIO", "ESTATUS"}}, fake.tables[store.TablePickings])

	require.NoError(t, st.AppendRows(ctx, store.TablePickings, [][]string{{"A1", "PENDIENTE"}, {"A2", "IMPRESOS"}}))
	require.NoError(t, st.AppendRow(ctx, store.TablePickings, []string{"A3"}))

	rows, err := st.ReadAll(ctx, store.TablePickings)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, store.RowRef(3), rows[1].Ref)
	assert.Equal(t, "IMPRESOS", rows[1].Get("ESTATUS"))
	assert.Equal(t, "", rows[2].Get("ESTATUS"))

	ref, err := st.Find(ctx, store.TablePickings, store.Query{Column: "FOLIO", Value: "A2"})
	require.NoError(t, err)
	assert.Equal(t, store.RowRef(3), ref)

	require.NoError(t, st.BatchUpdate(ctx, store.TablePickings, []store.CellUpdate{{Row: ref, Column: 2, Value: "LIBERADO"}}))
	row, err := st.ReadRow(ctx, store.TablePickings, ref)
	require.NoError(t, err)
	assert.Equal(t, "LIBERADO", row.Get("ESTATUS"))

	require.NoError(t, st.DeleteRow(ctx, store.TablePickings, 2))
	_, err = st.Find(ctx, store.TablePickings, store.Query{Column: "FOLIO", Value: "A1"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, st.EnsureTable(ctx, store.TablePickings, []string{"FOLIO", "ESTATUS", "EVENTO"}))
	header, err := st.Header(ctx, store.TablePickings)
	require.NoError(t, err)
	assert.Equal(t, []string{"FOLIO", "ESTATUS", "EVENTO"}, header)
}

func TestStore_MissingTableIsNotFound(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	_, err := st.ReadAll(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, st.DeleteRow(ctx, "nope", 2), store.ErrNotFound)
	assert.ErrorIs(t, st.DeleteRow(ctx, "nope", 1), store.ErrNotFound)
}

func TestStore_QuotaErrorsAreClassified(t *testing.T) {
	st, fake := newTestStore(t)
	fake.fail = []int{http.StatusTooManyRequests}

	_, err := st.ReadAll(context.Background(), store.TablePickings)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrQuotaExceeded)
	assert.True(t, store.IsQuotaExceeded(err))
}

func TestStore_ServerErrorsAreUnavailable(t *testing.T) {
	st, fake := newTestStore(t)
	fake.fail = []int{http.StatusServiceUnavailable}

	_, err := st.Header(context.Background(), store.TablePickings)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestStore_AccessorRetriesThrottledReads(t *testing.T) {
	st, fake := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.EnsureTable(ctx, store.TableUsers, []string{"USUARIO"}))
	require.NoError(t, st.AppendRow(ctx, store.TableUsers, []string{"Maria"}))

	fake.mu.Lock()
	fake.fail = []int{http.StatusTooManyRequests}
	fake.mu.Unlock()

	clk := testclock.NewClock(time.Now())
	acc := store.NewAccessor(st, store.AccessorConfig{Clock: clk})

	done := make(chan error, 1)
	go func() {
		_, err := acc.ReadAll(ctx, store.TableUsers)
		done <- err
	}()
	require.NoError(t, clk.WaitAdvance(2*time.Second, 5*time.Second, 1))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("read did not complete after backoff")
	}
}

func TestColumnName(t *testing.T) {
	assert.Equal(t, "A", ColumnName(1))
	assert.Equal(t, "Z", ColumnName(26))
	assert.Equal(t, "AA", ColumnName(27))
	assert.Equal(t, "AN", ColumnName(40))
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "'pickings'!2:2", rowRange("pickings", 2))
	assert.Equal(t, "'O''Brien'!C4", cellRange("O'Brien", 4, 3))
}

func TestNewFromCredentialsFile_Failures(t *testing.T) {
	ctx := context.Background()

	_, err := NewFromCredentialsFile(ctx, spreadsheetID, t.TempDir()+"/missing.json")
	assert.ErrorIs(t, err, store.ErrUnavailable)

	_, err = TokenSource(ctx, []byte(`{"type": "authorized_user"}`))
	assert.ErrorIs(t, err, store.ErrUnavailable)
}
