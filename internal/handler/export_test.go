package handler

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"testing"
	"time"

	"github.com/Juls95/Trinit-AI/internal/models"
	"github.com/Juls95/Trinit-AI/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newExportFixture(t *testing.T) (*ExportHandler, *models.User) {
	t.Helper()
	st := newStore(t)
	ana := testutil.CreateUser(t, st.DB(), "ana@x.com")
	ben := testutil.CreateUser(t, st.DB(), "ben@x.com")
	testutil.Link(t, st.DB(), ana, ben)

	day := 24 * time.Hour
	seedTx(t, st, ana, "INCOME", "1000", "Salary", testNow.Add(-2*day))
	seedTx(t, st, ana, "EXPENSE", "100", "Food", testNow.Add(-day), ben)
	seedTx(t, st, ben, "EXPENSE", "40", "Transportation", testNow, ana)

	h := NewExportHandler(st)
	h.Now = fixedClock()
	return h, ana
}

var wantExportRows = [][]string{
	exportHeaders,
	{"2026-10-15", "EXPENSE", "Transportation", "Transportation 40", "40.00", "20.00", "With me"},
	{"2026-10-14", "EXPENSE", "Food", "Food 100", "100.00", "50.00", "Yes"},
	{"2026-10-13", "INCOME", "Salary", "Salary 1000", "1000.00", "1000.00", "No"},
}

func TestExportCSV(t *testing.T) {
	h, ana := newExportFixture(t)

	w := do(t, h.ExportCSV, ana, http.MethodGet, "/api/export/csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="trinit_transactions_20261015.csv"`, w.Header().Get("Content-Disposition"))

	body := w.Body.Bytes()
	require.True(t, bytes.HasPrefix(body, []byte{0xEF, 0xBB, 0xBF}))
	rows, err := csv.NewReader(bytes.NewReader(body[3:])).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, wantExportRows, rows)
}

func TestExportXLSX(t *testing.T) {
	h, ana := newExportFixture(t)

	w := do(t, h.ExportXLSX, ana, http.MethodGet, "/api/export/xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "trinit_transactions_20261015.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{exportSheet}, f.GetSheetList())
	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	assert.Equal(t, wantExportRows, rows)
}

func TestExport_Unauthenticated(t *testing.T) {
	h := NewExportHandler(newStore(t))
	w := do(t, h.ExportCSV, nil, http.MethodGet, "/api/export/csv", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
