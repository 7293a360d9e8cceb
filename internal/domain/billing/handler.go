package billing

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/ehr/claims/internal/domain/coverage"
	"github.com/ehr/claims/internal/platform/apperr"
	"github.com/ehr/claims/internal/platform/auth"
	"github.com/ehr/claims/internal/platform/fhir"
	"github.com/ehr/claims/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	read := auth.RequireRole(auth.RoleBilling, auth.RoleInsurer)
	billing := auth.RequireRole(auth.RoleBilling)
	insurer := auth.RequireRole(auth.RoleInsurer)

	api.GET("/bill-statuses", h.ListStatuses, read)

	g := api.Group("/bills")
	g.POST("", h.CreateBill, billing)
	g.GET("", h.ListBills, read)
	g.GET("/:id", h.GetBill, read)
	g.POST("/:id/items", h.AddItem, billing)
	g.POST("/:id/hold", h.HoldBill, billing)
	g.POST("/:id/submit", h.SubmitBill, billing)
	g.POST("/:id/adjudicate", h.AdjudicateBill, billing)
	g.POST("/:id/insurance/approve", h.ApproveInsurance, insurer)
	g.POST("/:id/insurance/reject", h.RejectInsurance, insurer)
	g.POST("/:id/payments", h.RecordPayment, billing)
	g.POST("/:id/settle", h.SettleBill, billing)
	g.POST("/:id/refunds", h.InitiateRefund, billing)
	g.POST("/:id/refunds/complete", h.CompleteRefund, billing)
	g.POST("/:id/dispute", h.DisputeBill, billing)
	g.POST("/:id/dispute/resolve", h.ResolveDispute, billing)
	g.POST("/:id/cancel", h.CancelBill, billing)
	g.POST("/:id/overdue", h.MarkOverdue, billing)

	fhirGroup.GET("/Invoice/:id", h.GetFHIRInvoice, read)
}

type createRequest struct {
	PatientID    uuid.UUID  `json:"patient_id" validate:"required"`
	PolicyNumber string     `json:"policy_number"`
	Inpatient    bool       `json:"inpatient"`
	DueDate      *time.Time `json:"due_date"`
}

// itemRequest adds either a catalog item by code or an inline item.
type itemRequest struct {
	Code     string         `json:"code" validate:"required_without=Item"`
	Item     *coverage.Item `json:"item"`
	Quantity int            `json:"quantity" validate:"gte=0"`
}

type paymentRequest struct {
	Amount    decimal.Decimal `json:"amount" validate:"positive_amount,amount"`
	Method    string          `json:"method" validate:"required"`
	Reference string          `json:"reference"`
}

type settleRequest struct {
	Method    string `json:"method" validate:"required"`
	Reference string `json:"reference"`
}

type refundRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type resolveRequest struct {
	InFavourOfPatient bool `json:"in_favour_of_patient"`
}

func (h *Handler) ListStatuses(c echo.Context) error {
	return c.JSON(http.StatusOK, Statuses())
}

func (h *Handler) CreateBill(c echo.Context) error {
	var req createRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	b, err := h.svc.Create(c.Request().Context(), CreateRequest{
		PatientID:    req.PatientID,
		PolicyNumber: req.PolicyNumber,
		Inpatient:    req.Inpatient,
		DueDate:      req.DueDate,
	})
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) ListBills(c echo.Context) error {
	pg := pagination.FromContext(c)
	var filter ListFilter
	if s := c.QueryParam("status"); s != "" {
		st, err := ParseStatus(s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		filter.Status = st
	}
	if p := c.QueryParam("patient_id"); p != "" {
		pid, err := uuid.Parse(p)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		filter.PatientID = pid
	}

	items, total, err := h.svc.List(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return pagination.Respond(c, items, total, pg)
}

func (h *Handler) GetBill(c echo.Context) error {
	id, err := billID(c)
	if err != nil {
		return err
	}
	return respond(c)(h.svc.Get(c.Request().Context(), id))
}

func (h *Handler) GetFHIRInvoice(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("Invoice", c.Param("id")))
	}
	b, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("Invoice", c.Param("id")))
	}
	return c.JSON(http.StatusOK, b.ToFHIR())
}

func (h *Handler) AddItem(c echo.Context) error {
	id, err := billID(c)
	if err != nil {
		return err
	}
	var req itemRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	qty := req.Quantity
	if qty == 0 {
		qty = 1
	}
	ctx := c.Request().Context()
	var b *Bill
	if req.Item != nil {
		b, err = h.svc.AddItem(ctx, id, *req.Item, qty)
	} else {
		b, err = h.svc.AddCatalogItem(ctx, id, req.Code, qty)
	}
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) HoldBill(c echo.Context) error {
	return h.simple(c, h.svc.Hold)
}

func (h *Handler) SubmitBill(c echo.Context) error {
	return h.simple(c, h.svc.Submit)
}

func (h *Handler) AdjudicateBill(c echo.Context) error {
	id, err := billID(c)
	if err != nil {
		return err
	}
	b, result, err := h.svc.Adjudicate(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"bill":   b,
		"result": result,
	})
}

func (h *Handler) ApproveInsurance(c echo.Context) error {
	return h.simple(c, h.svc.ApproveInsurance)
}

func (h *Handler) RejectInsurance(c echo.Context) error {
	id, err := billID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	return respond(c)(h.svc.RejectInsurance(c.Request().Context(), id, req.Reason))
}

func (h *Handler) RecordPayment(c echo.Context) error {
	id, err := billID(c)
	if err != nil {
		return err
	}
	var req paymentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	method, err := ParsePaymentMethod(req.Method)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return paymentResponse(c)(h.svc.RecordPayment(c.Request().Context(), id, &req.Amount, method, req.Reference))
}

func (h *Handler) SettleBill(c echo.Context) error {
	id, err := billID(c)
	if err != nil {
		return err
	}
	var req settleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	method, err := ParsePaymentMethod(req.Method)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return paymentResponse(c)(h.svc.RecordPayment(c.Request().Context(), id, nil, method, req.Reference))
}

func (h *Handler) InitiateRefund(c echo.Context) error {
	id, err := billID(c)
	if err != nil {
		return err
	}
	var req refundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return respond(c)(h.svc.InitiateRefund(c.Request().Context(), id, req.Amount))
}

func (h *Handler) CompleteRefund(c echo.Context) error {
	id, err := billID(c)
	if err != nil {
		return err
	}
	var req settleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	method, err := ParsePaymentMethod(req.Method)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return respond(c)(h.svc.CompleteRefund(c.Request().Context(), id, method, req.Reference))
}

func (h *Handler) DisputeBill(c echo.Context) error {
	id, err := billID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	return respond(c)(h.svc.Dispute(c.Request().Context(), id, req.Reason))
}

func (h *Handler) ResolveDispute(c echo.Context) error {
	id, err := billID(c)
	if err != nil {
		return err
	}
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return respond(c)(h.svc.ResolveDispute(c.Request().Context(), id, req.InFavourOfPatient))
}

func (h *Handler) CancelBill(c echo.Context) error {
	return h.simple(c, h.svc.Cancel)
}

func (h *Handler) MarkOverdue(c echo.Context) error {
	return h.simple(c, h.svc.MarkOverdue)
}

func (h *Handler) simple(c echo.Context, op func(context.Context, uuid.UUID) (*Bill, error)) error {
	id, err := billID(c)
	if err != nil {
		return err
	}
	return respond(c)(op(c.Request().Context(), id))
}

func billID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid bill id")
	}
	return id, nil
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return nil
}

func respond(c echo.Context) func(*Bill, error) error {
	return func(b *Bill, err error) error {
		if err != nil {
			return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
		}
		return c.JSON(http.StatusOK, b)
	}
}

func paymentResponse(c echo.Context) func(*Bill, *Payment, error) error {
	return func(b *Bill, p *Payment, err error) error {
		if err != nil {
			return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
		}
		return c.JSON(http.StatusCreated, map[string]interface{}{
			"bill":    b,
			"payment": p,
		})
	}
}
