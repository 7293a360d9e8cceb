package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordClaimStatusChange(t *testing.T) {
	before := testutil.ToFloat64(claimStatusChanged.WithLabelValues("IN_REVIEW", "APPROVED"))
	RecordClaimStatusChange("IN_REVIEW", "APPROVED")
	after := testutil.ToFloat64(claimStatusChanged.WithLabelValues("IN_REVIEW", "APPROVED"))
	if after-before != 1 {
		t.Errorf("expected counter to increase by 1, got %v", after-before)
	}
}

func TestRecordAdjudication(t *testing.T) {
	denied := testutil.ToFloat64(adjudicationsTotal.WithLabelValues("denied", "Policy expired"))
	RecordAdjudication(false, "Policy expired", 0)
	if got := testutil.ToFloat64(adjudicationsTotal.WithLabelValues("denied", "Policy expired")); got-denied != 1 {
		t.Errorf("expected denied counter to increase, got %v", got-denied)
	}

	approved := testutil.ToFloat64(adjudicationsTotal.WithLabelValues("approved", ""))
	RecordAdjudication(true, "", 720)
	if got := testutil.ToFloat64(adjudicationsTotal.WithLabelValues("approved", "")); got-approved != 1 {
		t.Errorf("expected approved counter to increase, got %v", got-approved)
	}
}

func TestRecordPayment(t *testing.T) {
	before := testutil.ToFloat64(paymentAmount.WithLabelValues("CARD"))
	RecordPayment("CARD", 125.5)
	if got := testutil.ToFloat64(paymentAmount.WithLabelValues("CARD")); got-before != 125.5 {
		t.Errorf("expected amount to increase by 125.5, got %v", got-before)
	}
}

func TestMiddleware_CountsByRoute(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/api/v1/bills/:id", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/bills/:id", "200"))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/bills/123", nil)
	e.ServeHTTP(httptest.NewRecorder(), req)
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/bills/:id", "200"))
	if after-before != 1 {
		t.Errorf("expected route counter to increase by 1, got %v", after-before)
	}
}

func TestHandler_ExposesMetrics(t *testing.T) {
	RecordBillStatusChange("DRAFT", "SUBMITTED")
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "bills_status_changed_total") {
		t.Error("expected bill status metric in exposition")
	}
}
