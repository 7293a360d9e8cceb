package validate

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/ehr/claims/internal/platform/apperr"
)

type paymentRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"positive_amount,amount"`
	Method string          `json:"method" validate:"required,oneof=CASH CARD"`
}

func TestValidate_OK(t *testing.T) {
	v := New()
	err := v.Validate(&paymentRequest{Amount: decimal.RequireFromString("12.50"), Method: "CASH"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_ReportsJSONFieldNames(t *testing.T) {
	v := New()
	err := v.Validate(&paymentRequest{Amount: decimal.RequireFromString("-1"), Method: "GOLD"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("expected invalid argument, got %v", err)
	}
	if !strings.Contains(err.Error(), "amount must be a positive amount") {
		t.Errorf("missing amount message: %s", err.Error())
	}
	if !strings.Contains(err.Error(), "method must be one of: CASH, CARD") {
		t.Errorf("missing method message: %s", err.Error())
	}
}

func TestRegisterTags(t *testing.T) {
	if err := registerTags(validator.New(), customTags); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := registerTags(validator.New(), map[string]validator.Func{"": positiveAmount})
	if err == nil {
		t.Fatal("expected an empty tag name to fail registration")
	}
}

func TestValidate_RejectsSubCent(t *testing.T) {
	v := New()
	err := v.Validate(&paymentRequest{Amount: decimal.RequireFromString("1.005"), Method: "CARD"})
	if err == nil || !strings.Contains(err.Error(), "at most 2 decimal places") {
		t.Fatalf("expected precision error, got %v", err)
	}
}

func TestJSONSerializer_RoundTrip(t *testing.T) {
	e := echo.New()
	Register(e)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"10.00","method":"CARD"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var body paymentRequest
	if err := c.Bind(&body); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := c.Validate(&body); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := c.JSON(http.StatusOK, body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"method":"CARD"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestJSONSerializer_SyntaxError(t *testing.T) {
	e := echo.New()
	Register(e)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	var body paymentRequest
	err := c.Bind(&body)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
