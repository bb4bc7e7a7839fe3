package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pickings/internal/models"
)

func TestImportStatus(t *testing.T) {
	assert.Equal(t, models.StatusPendiente, ImportStatus(""))
	assert.Equal(t, models.StatusPendiente, ImportStatus("   "))
	assert.Equal(t, models.StatusEmbarque, ImportStatus("EMBARQUE"))
}

func TestShouldPromote(t *testing.T) {
	assert.True(t, ShouldPromote(""))
	assert.True(t, ShouldPromote(models.StatusPendiente))
	assert.False(t, ShouldPromote(models.StatusImpresos))
	assert.False(t, ShouldPromote(models.StatusLiberado))
}

func TestDuplicateChecksDiffer(t *testing.T) {
	list := "ABC123\nZZ9"

	// loose: any substring of a stored code collides
	assert.True(t, InDocList(list, "ABC123"))
	assert.True(t, InDocList(list, "BC12"))
	assert.False(t, InDocList(list, "Q1"))
	assert.False(t, InDocList(list, ""))

	// strict: only the exact key in the QR column collides
	header := models.DetailColumns
	key := QRKey("ABC123")
	assert.True(t, key.Matches(header, []string{"ABC123", "F1"}))
	assert.False(t, key.Matches(header, []string{"ABC1234", "F1"}))
	assert.False(t, key.Matches(header, []string{"F1", "ABC123"}), "other columns are ignored")
}

func TestParseQR(t *testing.T) {
	tests := []struct {
		name      string
		qr        string
		wantFolio string
		wantExtra string
		wantOK    bool
	}{
		{"pipe delimited", " F-10 |CONTADO|3", "F-10", " F-10 |CONTADO|3", true},
		{"raw folio", "  F-11  ", "F-11", RawQRMarker, true},
		{"empty", "", "", RawQRMarker, false},
		{"empty first segment", "|x|y", "", "|x|y", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			folio, extra, ok := ParseQR(tt.qr)
			assert.Equal(t, tt.wantFolio, folio)
			assert.Equal(t, tt.wantExtra, extra)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestResolveFolio_ForcedWins(t *testing.T) {
	folio, extra, ok := ResolveFolio("F-1|a|b", "F-9")
	assert.True(t, ok)
	assert.Equal(t, "F-9", folio)
	assert.Equal(t, "F-1|a|b", extra)

	folio, _, ok = ResolveFolio("|a", " F-2 ")
	assert.True(t, ok)
	assert.Equal(t, "F-2", folio)

	folio, _, ok = ResolveFolio("F-3|a", "")
	assert.True(t, ok)
	assert.Equal(t, "F-3", folio)
}

func TestNormalizeColumn(t *testing.T) {
	assert.Equal(t, "FOLIO", NormalizeColumn("  folio "))
	assert.Equal(t, "FOLIO DOCUMENTOS POR PICKING", NormalizeColumn("Folio   documentos\tpor picking"))
	assert.Equal(t, "# FOLIOS DOCUMENTOS", NormalizeColumn("# folios documentos"))
}

func TestItemStatusesFor(t *testing.T) {
	assert.Contains(t, ItemStatusesFor(models.RoleResponsable), models.ItemLiberado)
	capturista := ItemStatusesFor(models.RoleCapturista)
	assert.NotContains(t, capturista, models.ItemLiberado)
	assert.Contains(t, capturista, models.ItemSurtido)
}
