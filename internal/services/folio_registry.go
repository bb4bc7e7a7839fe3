package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pickings/internal/apperrors"
	"pickings/internal/cache"
	"pickings/internal/importer"
	"pickings/internal/models"
	"pickings/internal/rules"
	"pickings/internal/store"
)

const folioCacheKey = "folios"

// FolioFilter narrows a folio list. Empty fields match everything.
type FolioFilter struct {
	Statuses  []string
	Assignees []string
	Search    string
}

// ImportResult counts the outcome of a bulk import.
type ImportResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// Message renders the result for display.
func (r ImportResult) Message() string {
	if r.Added == 0 {
		return "No new records to add (all duplicates)."
	}
	return fmt.Sprintf("Successfully added %d new records. Skipped %d duplicates.", r.Added, r.Skipped)
}

// CountDrift is one folio whose stored count disagrees with its list.
type CountDrift struct {
	Folio  string       `json:"folio"`
	Row    store.RowRef `json:"row"`
	Stored string       `json:"stored"`
	Actual int          `json:"actual"`
}

// AuditReport summarizes a document count audit.
type AuditReport struct {
	Checked  int          `json:"checked"`
	Drift    []CountDrift `json:"drift"`
	Repaired int          `json:"repaired"`
}

// FolioRegistry owns the pickings table. Each mutating call is a locate
// followed by one batch write; concurrent writers to the same folio can lose
// each other's update.
type FolioRegistry struct {
	store store.Store
	cache *cache.Cache[[]models.Folio]
	opts  Options
}

// NewFolioRegistry returns a registry reading through c.
func NewFolioRegistry(st store.Store, c *cache.Cache[[]models.Folio], opts Options) *FolioRegistry {
	return &FolioRegistry{store: st, cache: c, opts: opts.withDefaults("folios")}
}

// List returns every folio, served from the cache inside its freshness
// window. On a read failure it returns an empty slice along with the error.
func (r *FolioRegistry) List(ctx context.Context) ([]models.Folio, error) {
	if folios, fr := r.cache.Get(ctx, folioCacheKey); fr.Hit {
		return folios, nil
	}

	rows, err := r.store.ReadAll(ctx, store.TablePickings)
	if err != nil {
		r.opts.Logger.Error().Err(err).Msg("failed to load folios")
		return []models.Folio{}, fmt.Errorf("load folios: %w", err)
	}

	folios := make([]models.Folio, 0, len(rows))
	for _, row := range rows {
		f := models.FolioFromRow(row)
		if f.Folio == "" {
			continue
		}
		folios = append(folios, f)
	}
	r.cache.Set(ctx, folioCacheKey, folios)
	return folios, nil
}

// Invalidate drops the cached folio list.
func (r *FolioRegistry) Invalidate(ctx context.Context) {
	r.cache.Invalidate(ctx, folioCacheKey)
}

// Get reads one folio straight from the store.
func (r *FolioRegistry) Get(ctx context.Context, folio string) (models.Folio, error) {
	ref, err := r.locate(ctx, folio)
	if err != nil {
		return models.Folio{}, err
	}
	row, err := r.store.ReadRow(ctx, store.TablePickings, ref)
	if err != nil {
		return models.Folio{}, fmt.Errorf("read folio %s: %w", folio, err)
	}
	return models.FolioFromRow(row), nil
}

// AssignedTo lists the folios assigned to user.
func (r *FolioRegistry) AssignedTo(ctx context.Context, user string) ([]models.Folio, error) {
	folios, err := r.List(ctx)
	if err != nil {
		return folios, err
	}
	return Filter(folios, FolioFilter{Assignees: []string{user}}), nil
}

// Filter applies f to folios without touching the store.
func Filter(folios []models.Folio, f FolioFilter) []models.Folio {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]models.Folio, 0, len(folios))
	for _, folio := range folios {
		if len(f.Statuses) > 0 && !oneOf(f.Statuses, folio.Status) {
			continue
		}
		if len(f.Assignees) > 0 && !oneOf(f.Assignees, strings.TrimSpace(folio.Assignee)) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(folio.Folio), search) {
			continue
		}
		out = append(out, folio)
	}
	return out
}

func oneOf(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// UpdateStatus sets the folio status. Any known status may follow any other,
// including itself.
func (r *FolioRegistry) UpdateStatus(ctx context.Context, folio, status, actor string) (err error) {
	log := r.opts.Logger.With().Str("folio", folio).Str("status", status).Str("actor", actor).Logger()
	defer func() { logOutcome(&log, "update_status", err).Msg("folio status update") }()

	status = strings.TrimSpace(status)
	if !models.IsFolioStatus(status) {
		return apperrors.Newf(apperrors.ErrInvalidFormat, "Unknown status %q", status)
	}
	err = r.writeEvent(ctx, folio, models.ColStatus, status, fmt.Sprintf("Status changed to %s by %s", status, actor))
	if err == nil {
		r.opts.Metrics.StatusChanged(status)
	}
	return err
}

// Reassign changes the capturista a folio is assigned to.
func (r *FolioRegistry) Reassign(ctx context.Context, folio, assignee, actor string) (err error) {
	log := r.opts.Logger.With().Str("folio", folio).Str("assignee", assignee).Str("actor", actor).Logger()
	defer func() { logOutcome(&log, "reassign", err).Msg("folio reassignment") }()

	return r.writeEvent(ctx, folio, models.ColAssignee, assignee, fmt.Sprintf("Reassigned to %s by %s", assignee, actor))
}

func (r *FolioRegistry) writeEvent(ctx context.Context, folio, column, value, event string) error {
	ref, err := r.locate(ctx, folio)
	if err != nil {
		return err
	}
	cols, err := columns(ctx, r.store, store.TablePickings, column, models.ColEvent, models.ColLastEventAt)
	if err != nil {
		return err
	}

	err = r.store.BatchUpdate(ctx, store.TablePickings, []store.CellUpdate{
		{Row: ref, Column: cols[column], Value: value},
		{Row: ref, Column: cols[models.ColEvent], Value: event},
		{Row: ref, Column: cols[models.ColLastEventAt], Value: models.FormatTimestamp(r.opts.Clock.Now())},
	})
	if err != nil {
		return fmt.Errorf("update folio %s: %w", folio, err)
	}
	r.Invalidate(ctx)
	return nil
}

// IncrementDocCount records a document received at the warehouse against
// folio. A code already contained in the stored list is rejected. The first
// document of a PENDIENTE or blank folio promotes it to IMPRESOS in the same
// write.
func (r *FolioRegistry) IncrementDocCount(ctx context.Context, folio, code string) (updated models.Folio, err error) {
	log := r.opts.Logger.With().Str("folio", folio).Str("code", code).Logger()
	defer func() {
		logOutcome(&log, "increment_doc_count", err).Int("count", updated.ScannedDocCount).Msg("warehouse document")
		r.opts.Metrics.Scan("reception", scanResult(err))
	}()

	code = strings.TrimSpace(code)
	if code == "" {
		return models.Folio{}, apperrors.New(apperrors.ErrInvalidFormat, "Empty document code")
	}
	// The list is newline-joined; a multi-line code would count as one and split as many.
	if strings.ContainsAny(code, "\r\n") {
		return models.Folio{}, apperrors.New(apperrors.ErrInvalidFormat, "Document code must be a single line")
	}

	ref, err := r.locate(ctx, folio)
	if err != nil {
		return models.Folio{}, err
	}
	cols, err := columns(ctx, r.store, store.TablePickings,
		models.ColScannedDocs, models.ColScannedDocCount, models.ColStatus, models.ColEvent, models.ColLastEventAt)
	if err != nil {
		return models.Folio{}, err
	}
	row, err := r.store.ReadRow(ctx, store.TablePickings, ref)
	if err != nil {
		return models.Folio{}, fmt.Errorf("read folio %s: %w", folio, err)
	}

	current := models.FolioFromRow(row)
	if rules.InDocList(row.Get(models.ColScannedDocs), code) {
		return current, apperrors.Newf(apperrors.ErrDuplicateScan, "Document %s was already scanned for folio %s", code, folio)
	}

	updated = current
	updated.ScannedDocs = append(append([]string(nil), current.ScannedDocs...), code)
	updated.ScannedDocCount = len(updated.ScannedDocs)
	updated.LastEvent = fmt.Sprintf("Document %s received", code)
	updated.LastEventAt = r.opts.Clock.Now()

	cells := []store.CellUpdate{
		{Row: ref, Column: cols[models.ColScannedDocs], Value: models.JoinDocList(updated.ScannedDocs)},
		{Row: ref, Column: cols[models.ColScannedDocCount], Value: strconv.Itoa(updated.ScannedDocCount)},
		{Row: ref, Column: cols[models.ColEvent], Value: updated.LastEvent},
		{Row: ref, Column: cols[models.ColLastEventAt], Value: models.FormatTimestamp(updated.LastEventAt)},
	}
	promoted := rules.ShouldPromote(current.Status)
	if promoted {
		updated.Status = models.StatusImpresos
		cells = append(cells, store.CellUpdate{Row: ref, Column: cols[models.ColStatus], Value: updated.Status})
	}

	if err := r.store.BatchUpdate(ctx, store.TablePickings, cells); err != nil {
		return current, fmt.Errorf("update folio %s: %w", folio, err)
	}
	if promoted {
		r.opts.Metrics.StatusChanged(updated.Status)
	}
	r.Invalidate(ctx)
	return updated, nil
}

// Import appends the folios of sheet that are not yet registered. Rows with
// an empty folio, or a folio already present in the table or earlier in the
// sheet, are skipped. Existing rows are never modified.
func (r *FolioRegistry) Import(ctx context.Context, sheet importer.Sheet) (res ImportResult, err error) {
	defer func() {
		logOutcome(r.opts.Logger, "import", err).Int("added", res.Added).Int("skipped", res.Skipped).Msg("folio import")
	}()

	if !sheet.HasColumn(models.ColFolio) {
		return res, apperrors.Newf(apperrors.ErrInvalidFormat, "Missing required columns in Excel: [%s]", models.ColFolio)
	}

	header, err := r.store.Header(ctx, store.TablePickings)
	if err != nil {
		return res, fmt.Errorf("read pickings header: %w", err)
	}
	rows, err := r.store.ReadAll(ctx, store.TablePickings)
	if err != nil {
		return res, fmt.Errorf("load folios: %w", err)
	}

	known := make(map[string]bool, len(rows))
	for _, row := range rows {
		known[strings.TrimSpace(row.Get(models.ColFolio))] = true
	}

	now := models.FormatTimestamp(r.opts.Clock.Now())
	var staged [][]string
	for _, in := range sheet.Rows {
		folio := strings.TrimSpace(in[models.ColFolio])
		if folio == "" || known[folio] {
			res.Skipped++
			continue
		}
		known[folio] = true

		cells := make(map[string]string, len(in))
		for col, v := range in {
			cells[col] = v
		}
		cells[models.ColFolio] = folio
		cells[models.ColStatus] = rules.ImportStatus(in[models.ColStatus])
		cells[models.ColLastEventAt] = r.importTimestamp(folio, in[models.ColLastEventAt], now)

		staged = append(staged, models.Ordered(header, cells))
		res.Added++
	}

	if len(staged) == 0 {
		r.opts.Metrics.Imported(0, res.Skipped)
		return res, nil
	}
	if err := r.store.AppendRows(ctx, store.TablePickings, staged); err != nil {
		return ImportResult{}, fmt.Errorf("append folios: %w", err)
	}
	r.opts.Metrics.Imported(res.Added, res.Skipped)
	r.Invalidate(ctx)
	return res, nil
}

// importTimestamp normalizes an imported last-event timestamp. Blank takes
// now; a value in no known layout is kept verbatim.
func (r *FolioRegistry) importTimestamp(folio, raw, now string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now
	}
	if t := models.ParseTimestamp(raw); !t.IsZero() {
		return models.FormatTimestamp(t)
	}
	r.opts.Logger.Warn().Str("folio", folio).Str("value", raw).Msg("unrecognized timestamp kept as imported")
	return raw
}

// AuditCounts compares each folio's stored document count with its list.
// With repair set, drifted counts are rewritten in one batch.
func (r *FolioRegistry) AuditCounts(ctx context.Context, repair bool) (AuditReport, error) {
	var report AuditReport
	rows, err := r.store.ReadAll(ctx, store.TablePickings)
	if err != nil {
		return report, fmt.Errorf("load folios: %w", err)
	}

	for _, row := range rows {
		f := models.FolioFromRow(row)
		if f.Folio == "" {
			continue
		}
		report.Checked++
		stored := strings.TrimSpace(row.Get(models.ColScannedDocCount))
		actual := len(f.ScannedDocs)
		if stored == strconv.Itoa(actual) || (stored == "" && actual == 0) {
			continue
		}
		report.Drift = append(report.Drift, CountDrift{Folio: f.Folio, Row: row.Ref, Stored: stored, Actual: actual})
	}

	if !repair || len(report.Drift) == 0 {
		return report, nil
	}

	cols, err := columns(ctx, r.store, store.TablePickings, models.ColScannedDocCount)
	if err != nil {
		return report, err
	}
	cells := make([]store.CellUpdate, 0, len(report.Drift))
	for _, d := range report.Drift {
		cells = append(cells, store.CellUpdate{Row: d.Row, Column: cols[models.ColScannedDocCount], Value: strconv.Itoa(d.Actual)})
	}
	if err := r.store.BatchUpdate(ctx, store.TablePickings, cells); err != nil {
		return report, fmt.Errorf("repair counts: %w", err)
	}
	report.Repaired = len(cells)
	r.Invalidate(ctx)

	r.opts.Logger.Info().Int("checked", report.Checked).Int("repaired", report.Repaired).Msg("document counts repaired")
	return report, nil
}

func (r *FolioRegistry) locate(ctx context.Context, folio string) (store.RowRef, error) {
	folio = strings.TrimSpace(folio)
	if folio == "" {
		return 0, apperrors.New(apperrors.ErrNotFound, "Folio not found")
	}
	return locate(ctx, r.store, store.TablePickings, store.Query{Column: models.ColFolio, Value: folio}, "Folio not found")
}

func scanResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrDuplicateScan):
		return "duplicate"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrInvalidFormat):
		return "invalid"
	default:
		return "error"
	}
}
