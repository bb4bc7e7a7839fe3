// Package rules holds the stateless reconciliation policy shared by the
// folio registry and the detail ledger.
package rules

import (
	"strings"

	"pickings/internal/models"
	"pickings/internal/store"
)

// RawQRMarker is stored as the extra payload when a scan has no pipe structure.
const RawQRMarker = "Raw QR"

// ImportStatus returns the status an imported folio starts with.
func ImportStatus(status string) string {
	if s := strings.TrimSpace(status); s != "" {
		return s
	}
	return models.StatusPendiente
}

// ShouldPromote reports whether the first warehouse scan moves a folio
// from status to IMPRESOS.
func ShouldPromote(status string) bool {
	s := strings.TrimSpace(status)
	return s == "" || s == models.StatusPendiente
}

// InDocList is the folio registry duplicate check: code counts as already
// scanned when it occurs anywhere in the stored newline-joined list.
func InDocList(list, code string) bool {
	if code == "" {
		return false
	}
	return strings.Contains(list, code)
}

// QRKey is the detail ledger duplicate check: a row collides only when its
// QR_DATA cell equals qr exactly.
func QRKey(qr string) store.Query {
	return store.Query{Column: models.ColQRData, Value: qr}
}

// ParseQR extracts the folio a scanned payload belongs to. A pipe-delimited
// payload yields its first segment and keeps the whole payload as extra;
// anything else is taken as the folio itself. ok is false when no folio can
// be determined.
func ParseQR(qr string) (folio, extra string, ok bool) {
	if strings.Contains(qr, "|") {
		folio = strings.TrimSpace(strings.SplitN(qr, "|", 2)[0])
		extra = qr
	} else {
		folio = strings.TrimSpace(qr)
		extra = RawQRMarker
	}
	return folio, extra, folio != ""
}

// ResolveFolio picks the parent folio for a scan. A forced folio from the
// enclosing context always wins over the parsed one.
func ResolveFolio(qr, forced string) (folio, extra string, ok bool) {
	folio, extra, ok = ParseQR(qr)
	if f := strings.TrimSpace(forced); f != "" {
		return f, extra, true
	}
	return folio, extra, ok
}

// NormalizeColumn maps an imported column name to its canonical form:
// trimmed, uppercased, inner whitespace collapsed to single spaces.
func NormalizeColumn(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), " "))
}

// ItemStatusesFor returns the item statuses role may set.
func ItemStatusesFor(role string) []string {
	if role == models.RoleResponsable {
		return append([]string(nil), models.ItemStatuses...)
	}
	statuses := make([]string, 0, len(models.ItemStatuses))
	for _, s := range models.ItemStatuses {
		if s != models.ItemLiberado {
			statuses = append(statuses, s)
		}
	}
	return statuses
}
