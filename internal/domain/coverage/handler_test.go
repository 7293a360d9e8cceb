package coverage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/claims/internal/platform/validate"
)

func newTestHandler() (*Handler, *echo.Echo) {
	h := NewHandler(newTestService())
	e := echo.New()
	validate.Register(e)
	return h, e
}

func TestHandler_CreatePolicy(t *testing.T) {
	h, e := newTestHandler()
	body := `{"policy_number":"POL-9","holder_id":"` + uuid.New().String() + `","name":"Silver",
		"provider_id":"ins-7","expires_at":"2030-01-01T00:00:00Z",
		"plan":{"deductible":"100","coinsurance_rate":"0.2","covered_benefits":["SURGERY"]}}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreatePolicy(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var got map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got["status"] != "active" {
		t.Errorf("expected active, got %v", got["status"])
	}
}

func TestHandler_CreatePolicy_ValidationError(t *testing.T) {
	h, e := newTestHandler()
	body := `{"name":"Silver"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.CreatePolicy(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_GetPolicy_NotFound(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("number")
	c.SetParamValues("POL-404")

	err := h.GetPolicy(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_ListPolicies_ByHolder(t *testing.T) {
	h, e := newTestHandler()
	holder := uuid.New()
	h.svc.CreatePolicy(context.Background(), testPolicy("POL-1", holder, testNow.AddDate(1, 0, 0)))
	h.svc.CreatePolicy(context.Background(), testPolicy("POL-2", uuid.New(), testNow.AddDate(1, 0, 0)))

	req := httptest.NewRequest(http.MethodGet, "/?holder_id="+holder.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListPolicies(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Total != 1 {
		t.Errorf("expected 1 policy, got %d", got.Total)
	}
}
