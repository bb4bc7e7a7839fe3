package models

import (
	"strconv"
	"strings"
	"time"

	"pickings/internal/store"
)

// TimestampLayout is the cell format for every timestamp written to the store.
const TimestampLayout = "2006-01-02 15:04:05"

// Folio statuses, in workflow order. The order is advisory only.
const (
	StatusPendiente  = "PENDIENTE"
	StatusImpresos   = "IMPRESOS"
	StatusEnSurtido  = "EN_SURTIDO"
	StatusEnCaptura  = "EN_CAPTURA"
	StatusCapturados = "CAPTURADOS"
	StatusValidacion = "VALIDACION"
	StatusEmbarque   = "EMBARQUE"
	StatusLiberado   = "LIBERADO"
)

// FolioStatuses lists every folio status in workflow order.
var FolioStatuses = []string{
	StatusPendiente,
	StatusImpresos,
	StatusEnSurtido,
	StatusEnCaptura,
	StatusCapturados,
	StatusValidacion,
	StatusEmbarque,
	StatusLiberado,
}

// Item statuses of individually scanned documents.
const (
	ItemSurtido      = "SURTIDO"
	ItemCapturado    = "CAPTURADO"
	ItemEnValidacion = "EN_VALIDACION"
	ItemDocLista     = "DOC_LISTA"
	ItemLiberado     = "LIBERADO"
)

// ItemStatuses lists every item status.
var ItemStatuses = []string{ItemSurtido, ItemCapturado, ItemEnValidacion, ItemDocLista, ItemLiberado}

// Roles.
const (
	RoleCapturista  = "CAPTURISTA"
	RoleResponsable = "RESPONSABLE"
)

// Roles lists the two fixed roles.
var Roles = []string{RoleCapturista, RoleResponsable}

// AdminUsername is the distinguished identity that can never be deleted.
const AdminUsername = "Admin"

// Columns of the pickings table.
const (
	ColRegion          = "REGION"
	ColDeliveryDate    = "FECHA_ENTREGA"
	ColRoute           = "RUTA"
	ColFolio           = "FOLIO"
	ColAssignee        = "CAPTURISTA"
	ColEvent           = "EVENTO"
	ColFinancing       = "FINANCIAMIENTO"
	ColStatus          = "ESTATUS"
	ColLastEventAt     = "FECHA_ULTIMO_EVENTO"
	ColScannedDocs     = "FOLIO DOCUMENTOS POR PICKING"
	ColScannedDocCount = "# FOLIOS DOCUMENTOS"
	ColFolioAccount    = "CUENTA FOLIOS"
	ColScaldFolios     = "FOLIOS SCALD"
	ColScaldStatus     = "ESTATUS FOLIOS SCALD"
)

// PickingColumns is the canonical header of the pickings table.
var PickingColumns = []string{
	ColRegion, ColDeliveryDate, ColRoute, ColFolio,
	ColAssignee, ColEvent, ColFinancing,
	ColStatus, ColLastEventAt,
	ColScannedDocs, ColScannedDocCount,
	ColFolioAccount, ColScaldFolios, ColScaldStatus,
}

// Columns of the detalle_pickings table.
const (
	ColQRData      = "QR_DATA"
	ColParentFolio = "FOLIO_PADRE"
	ColCapturista  = "CAPTURISTA"
	ColItemStatus  = "ESTATUS_ITEM"
	ColScannedAt   = "FECHA_ESCANEO"
	ColExtra       = "DETALLES_EXTRA"
)

// DetailColumns is the canonical header of the detalle_pickings table.
var DetailColumns = []string{ColQRData, ColParentFolio, ColCapturista, ColItemStatus, ColScannedAt, ColExtra}

// Columns of the usuarios table.
const (
	ColUsername  = "USUARIO"
	ColRole      = "ROL"
	ColCreatedAt = "FECHA_CREACION"
)

// UserColumns is the canonical header of the usuarios table.
var UserColumns = []string{ColUsername, ColRole, ColCreatedAt}

// Folio is one shipment document set in the pickings table.
type Folio struct {
	Folio           string    `json:"folio"`
	Status          string    `json:"status"`
	Assignee        string    `json:"assignee"`
	Region          string    `json:"region"`
	Route           string    `json:"route"`
	DeliveryDate    string    `json:"delivery_date"`
	Financing       string    `json:"financing"`
	LastEvent       string    `json:"last_event"`
	LastEventAt     time.Time `json:"last_event_at"`
	ScannedDocs     []string  `json:"scanned_docs"`
	ScannedDocCount int       `json:"scanned_doc_count"`
	FolioAccount    string    `json:"folio_account,omitempty"`
	ScaldFolios     string    `json:"scald_folios,omitempty"`
	ScaldStatus     string    `json:"scald_status,omitempty"`
}

// Detail is one individually scanned document in detalle_pickings.
type Detail struct {
	QRData      string    `json:"qr_data"`
	ParentFolio string    `json:"parent_folio"`
	Capturista  string    `json:"capturista"`
	ItemStatus  string    `json:"item_status"`
	ScannedAt   time.Time `json:"scanned_at"`
	Extra       string    `json:"extra"`
}

// User is one registered identity.
type User struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// FolioFromRow converts a store row into a Folio.
func FolioFromRow(row store.Row) Folio {
	return Folio{
		Folio:           strings.TrimSpace(row.Get(ColFolio)),
		Status:          strings.TrimSpace(row.Get(ColStatus)),
		Assignee:        row.Get(ColAssignee),
		Region:          row.Get(ColRegion),
		Route:           row.Get(ColRoute),
		DeliveryDate:    row.Get(ColDeliveryDate),
		Financing:       row.Get(ColFinancing),
		LastEvent:       row.Get(ColEvent),
		LastEventAt:     ParseTimestamp(row.Get(ColLastEventAt)),
		ScannedDocs:     SplitDocList(row.Get(ColScannedDocs)),
		ScannedDocCount: ParseCount(row.Get(ColScannedDocCount)),
		FolioAccount:    row.Get(ColFolioAccount),
		ScaldFolios:     row.Get(ColScaldFolios),
		ScaldStatus:     row.Get(ColScaldStatus),
	}
}

// Cells returns the folio keyed by column name.
func (f Folio) Cells() map[string]string {
	return map[string]string{
		ColRegion:          f.Region,
		ColDeliveryDate:    f.DeliveryDate,
		ColRoute:           f.Route,
		ColFolio:           f.Folio,
		ColAssignee:        f.Assignee,
		ColEvent:           f.LastEvent,
		ColFinancing:       f.Financing,
		ColStatus:          f.Status,
		ColLastEventAt:     FormatTimestamp(f.LastEventAt),
		ColScannedDocs:     JoinDocList(f.ScannedDocs),
		ColScannedDocCount: strconv.Itoa(f.ScannedDocCount),
		ColFolioAccount:    f.FolioAccount,
		ColScaldFolios:     f.ScaldFolios,
		ColScaldStatus:     f.ScaldStatus,
	}
}

// DetailFromRow converts a store row into a Detail.
func DetailFromRow(row store.Row) Detail {
	return Detail{
		QRData:      row.Get(ColQRData),
		ParentFolio: strings.TrimSpace(row.Get(ColParentFolio)),
		Capturista:  row.Get(ColCapturista),
		ItemStatus:  row.Get(ColItemStatus),
		ScannedAt:   ParseTimestamp(row.Get(ColScannedAt)),
		Extra:       row.Get(ColExtra),
	}
}

// Cells returns the detail keyed by column name.
func (d Detail) Cells() map[string]string {
	return map[string]string{
		ColQRData:      d.QRData,
		ColParentFolio: d.ParentFolio,
		ColCapturista:  d.Capturista,
		ColItemStatus:  d.ItemStatus,
		ColScannedAt:   FormatTimestamp(d.ScannedAt),
		ColExtra:       d.Extra,
	}
}

// UserFromRow converts a store row into a User.
func UserFromRow(row store.Row) User {
	return User{
		Username:  strings.TrimSpace(row.Get(ColUsername)),
		Role:      strings.TrimSpace(row.Get(ColRole)),
		CreatedAt: ParseTimestamp(row.Get(ColCreatedAt)),
	}
}

// Cells returns the user keyed by column name.
func (u User) Cells() map[string]string {
	return map[string]string{
		ColUsername:  u.Username,
		ColRole:      u.Role,
		ColCreatedAt: FormatTimestamp(u.CreatedAt),
	}
}

// Ordered lays cells out following header. Columns absent from cells are empty.
func Ordered(header []string, cells map[string]string) []string {
	values := make([]string, len(header))
	for i, h := range header {
		values[i] = cells[strings.TrimSpace(h)]
	}
	return values
}

// SplitDocList parses the newline-joined scanned document list.
func SplitDocList(raw string) []string {
	var docs []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			docs = append(docs, line)
		}
	}
	return docs
}

// JoinDocList renders the scanned document list as stored.
func JoinDocList(docs []string) string {
	return strings.Join(docs, "\n")
}

// ParseCount reads a counter cell; empty or non-numeric reads as 0.
func ParseCount(raw string) int {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f >= 0 {
		return int(f)
	}
	return 0
}

var timestampLayouts = []string{
	TimestampLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006",
}

// ParseTimestamp reads a timestamp cell in any accepted layout. Unparseable
// input yields the zero time.
func ParseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

// FormatTimestamp renders t for a cell; the zero time renders empty.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimestampLayout)
}

// IsFolioStatus reports whether s is a known folio status.
func IsFolioStatus(s string) bool {
	return contains(FolioStatuses, s)
}

// IsItemStatus reports whether s is a known item status.
func IsItemStatus(s string) bool {
	return contains(ItemStatuses, s)
}

// IsRole reports whether s is one of the two roles.
func IsRole(s string) bool {
	return contains(Roles, s)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
