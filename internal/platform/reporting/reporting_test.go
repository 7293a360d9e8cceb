package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ehr/claims/internal/platform/apperr"
)

var reportTime = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

type stubSource struct {
	table *Table
	err   error
	sql   string
	args  []interface{}
}

func (s *stubSource) Query(_ context.Context, sql string, args ...interface{}) (*Table, error) {
	s.sql, s.args = sql, args
	return s.table, s.err
}

func newTestService(src Source) *Service {
	svc := NewService(src, zerolog.Nop())
	svc.SetClock(func() time.Time { return reportTime })
	return svc
}

func statusTable() *Table {
	return &Table{
		Columns: []string{"status", "bills", "billed", "outstanding"},
		Rows: [][]interface{}{
			{"SUBMITTED", int64(3), decimal.RequireFromString("3150.50"), decimal.RequireFromString("2000")},
			{"PAID", int64(1), decimal.RequireFromString("1000"), decimal.Zero},
		},
	}
}

func TestMeasures_Unique(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range Measures {
		assert.False(t, seen[m.ID], "duplicate measure %s", m.ID)
		seen[m.ID] = true
		assert.NotEmpty(t, m.SQL, m.ID)
		assert.NotEmpty(t, m.Name, m.ID)
	}
}

func TestFind(t *testing.T) {
	m, err := Find("policy-utilization")
	require.NoError(t, err)
	assert.Equal(t, "Policy Utilization", m.Name)

	_, err = Find("patient-count")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMeasure_Bind(t *testing.T) {
	m, _ := Find("payments-by-method")

	args, used, err := m.Bind(map[string]string{"from": "2024-01-01", "ignored": "x"})
	require.NoError(t, err)
	require.Len(t, args, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), args[0])
	assert.Nil(t, args[1])
	assert.Equal(t, map[string]string{"from": "2024-01-01"}, used)

	_, _, err = m.Bind(map[string]string{"to": "15/03/2024"})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	year, _ := Find("policy-utilization")
	args, _, err = year.Bind(map[string]string{"year": "2024"})
	require.NoError(t, err)
	assert.Equal(t, 2024, args[0])
	_, _, err = year.Bind(map[string]string{"year": "last"})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestService_Evaluate(t *testing.T) {
	src := &stubSource{table: statusTable()}
	r, err := newTestService(src).Evaluate(context.Background(), "bill-status-summary", nil)
	require.NoError(t, err)

	assert.Equal(t, "Bills by Status", r.MeasureName)
	assert.Equal(t, reportTime, r.GeneratedAt)
	assert.Len(t, r.Results, 2)
	assert.Equal(t, "SUBMITTED", r.Results[0]["status"])
	assert.Empty(t, src.args)
}

func TestService_Evaluate_Errors(t *testing.T) {
	_, err := newTestService(&stubSource{}).Evaluate(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = newTestService(&stubSource{err: errors.New("relation does not exist")}).
		Evaluate(context.Background(), "bill-status-summary", nil)
	assert.ErrorContains(t, err, "evaluate measure bill-status-summary")
}

func TestNormalize(t *testing.T) {
	n := pgtype.Numeric{Int: big.NewInt(105650), Exp: -2, Valid: true}
	assert.True(t, decimal.RequireFromString("1056.50").Equal(normalize(n).(decimal.Decimal)))
	assert.Nil(t, normalize(pgtype.Numeric{}))

	id := [16]byte{0x12, 0x34}
	assert.Equal(t, "12340000-0000-0000-0000-000000000000", normalize(id))
	assert.Equal(t, "PAID", normalize("PAID"))
}

func TestWriteXLSX(t *testing.T) {
	r, err := newTestService(&stubSource{table: statusTable()}).
		Evaluate(context.Background(), "bill-status-summary", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, r))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{dataSheet, aboutSheet}, f.GetSheetList())
	rows, err := f.GetRows(dataSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"status", "bills", "billed", "outstanding"}, rows[0])
	assert.Equal(t, "SUBMITTED", rows[1][0])

	raw, err := f.GetCellValue(dataSheet, "C2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "3150.5", raw)

	measure, err := f.GetCellValue(aboutSheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "Bills by Status", measure)
	assert.Equal(t, "bill-status-summary-20240315.xlsx", r.Filename())
}

func TestHandler(t *testing.T) {
	e := echo.New()
	h := NewHandler(newTestService(&stubSource{table: statusTable()}))

	rec := httptest.NewRecorder()
	require.NoError(t, h.ListMeasures(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)))
	var measures []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &measures))
	assert.Len(t, measures, len(Measures))
	assert.NotContains(t, measures[0], "SQL")

	rec = httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues("bill-status-summary")
	require.NoError(t, h.ExportMeasure(c))
	assert.Equal(t, ContentTypeXLSX, rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "bill-status-summary-20240315.xlsx")

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/?from=yesterday", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("claim-status-summary")
	err := h.EvaluateMeasure(c)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}
