package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pickings/internal/apperrors"
	"pickings/internal/models"
	"pickings/internal/rules"
	"pickings/internal/store"
)

// ScanRequest is one decoded QR payload handed over by a capture screen.
// ForcedFolio, when set, is the folio the screen is working on and overrides
// whatever the payload parses to.
type ScanRequest struct {
	QRData      string `json:"qr_data"`
	Capturista  string `json:"capturista"`
	Status      string `json:"status"`
	ForcedFolio string `json:"folio"`
}

// DetailLedger owns the detalle_pickings table. QR_DATA is unique across the
// ledger, checked by a scan before each insert; two concurrent registrations
// of the same payload can both pass the check.
type DetailLedger struct {
	store store.Store
	opts  Options
}

// NewDetailLedger returns a ledger over st.
func NewDetailLedger(st store.Store, opts Options) *DetailLedger {
	return &DetailLedger{store: st, opts: opts.withDefaults("details")}
}

// Register appends a detail row for req.
func (l *DetailLedger) Register(ctx context.Context, req ScanRequest) (detail models.Detail, err error) {
	log := l.opts.Logger.With().Str("qr", req.QRData).Str("actor", req.Capturista).Logger()
	defer func() {
		logOutcome(&log, "register_scan", err).Str("folio", detail.ParentFolio).Msg("qr scan")
		l.opts.Metrics.Scan("capture", scanResult(err))
	}()

	if strings.TrimSpace(req.QRData) == "" {
		return detail, apperrors.New(apperrors.ErrInvalidFormat, "Formato de QR inválido o no legible.")
	}
	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = models.ItemSurtido
	}
	if !models.IsItemStatus(status) {
		return detail, apperrors.Newf(apperrors.ErrInvalidFormat, "Estatus de documento desconocido: %s", status)
	}

	ref, err := l.store.Find(ctx, store.TableDetails, rules.QRKey(req.QRData))
	switch {
	case err == nil:
		return detail, apperrors.Newf(apperrors.ErrDuplicateScan, "Este QR ya fue registrado previamente (Fila %d).", ref)
	case !errors.Is(err, store.ErrNotFound):
		return detail, fmt.Errorf("check qr: %w", err)
	}

	folio, extra, ok := rules.ResolveFolio(req.QRData, req.ForcedFolio)
	if !ok {
		return detail, apperrors.New(apperrors.ErrInvalidFormat, "Formato de QR inválido o no legible.")
	}

	detail = models.Detail{
		QRData:      req.QRData,
		ParentFolio: folio,
		Capturista:  req.Capturista,
		ItemStatus:  status,
		ScannedAt:   l.opts.Clock.Now(),
		Extra:       extra,
	}
	header, err := l.store.Header(ctx, store.TableDetails)
	if err != nil {
		return detail, fmt.Errorf("read %s header: %w", store.TableDetails, err)
	}
	if err := l.store.AppendRow(ctx, store.TableDetails, models.Ordered(header, detail.Cells())); err != nil {
		return detail, fmt.Errorf("append qr: %w", err)
	}
	return detail, nil
}

// UpdateItemStatus overwrites the item status of a registered payload. The
// scan timestamp is left as first recorded.
func (l *DetailLedger) UpdateItemStatus(ctx context.Context, qr, status string) (err error) {
	log := l.opts.Logger.With().Str("qr", qr).Str("status", status).Logger()
	defer func() { logOutcome(&log, "update_item_status", err).Msg("qr status update") }()

	status = strings.TrimSpace(status)
	if !models.IsItemStatus(status) {
		return apperrors.Newf(apperrors.ErrInvalidFormat, "Estatus de documento desconocido: %s", status)
	}
	ref, err := locate(ctx, l.store, store.TableDetails, rules.QRKey(qr), "QR no encontrado en el sistema. ¿Fue registrado al inicio?")
	if err != nil {
		return err
	}
	cols, err := columns(ctx, l.store, store.TableDetails, models.ColItemStatus)
	if err != nil {
		return err
	}
	if err := l.store.BatchUpdate(ctx, store.TableDetails, []store.CellUpdate{
		{Row: ref, Column: cols[models.ColItemStatus], Value: status},
	}); err != nil {
		return fmt.Errorf("update qr: %w", err)
	}
	return nil
}

// Delete removes the row for qr permanently.
func (l *DetailLedger) Delete(ctx context.Context, qr string) (err error) {
	log := l.opts.Logger.With().Str("qr", qr).Logger()
	defer func() { logOutcome(&log, "delete_scan", err).Msg("qr delete") }()

	ref, err := locate(ctx, l.store, store.TableDetails, rules.QRKey(qr), "QR no encontrado para eliminar.")
	if err != nil {
		return err
	}
	if err := l.store.DeleteRow(ctx, store.TableDetails, ref); err != nil {
		return fmt.Errorf("delete qr: %w", err)
	}
	return nil
}

// ListByFolio returns the details whose parent folio equals folio. A missing
// table or column yields an empty list.
func (l *DetailLedger) ListByFolio(ctx context.Context, folio string) ([]models.Detail, error) {
	details := []models.Detail{}
	folio = strings.TrimSpace(folio)
	if folio == "" {
		return details, nil
	}

	rows, err := l.store.ReadAll(ctx, store.TableDetails)
	if errors.Is(err, store.ErrNotFound) {
		return details, nil
	}
	if err != nil {
		return details, fmt.Errorf("load details: %w", err)
	}
	for _, row := range rows {
		if d := models.DetailFromRow(row); d.ParentFolio == folio {
			details = append(details, d)
		}
	}
	return details, nil
}

// CountByFolio counts details per parent folio in one read. On failure the
// map is empty, so callers can show zero counts alongside the error.
func (l *DetailLedger) CountByFolio(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	rows, err := l.store.ReadAll(ctx, store.TableDetails)
	if errors.Is(err, store.ErrNotFound) {
		return counts, nil
	}
	if err != nil {
		return map[string]int{}, fmt.Errorf("count details: %w", err)
	}
	for _, row := range rows {
		if folio := strings.TrimSpace(row.Get(models.ColParentFolio)); folio != "" {
			counts[folio]++
		}
	}
	return counts, nil
}
