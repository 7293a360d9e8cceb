package claim

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

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

	g := api.Group("/claims")
	g.GET("", h.ListClaims, read)
	g.GET("/:id", h.GetClaim, read)
	g.POST("/:id/submit", h.SubmitClaim, billing)
	g.POST("/:id/cancel", h.CancelClaim, billing)
	g.POST("/:id/appeal", h.AppealClaim, billing)
	g.POST("/:id/documents", h.AddDocument, billing)
	g.POST("/:id/process", h.ProcessClaim, insurer)
	g.POST("/:id/review", h.StartReview, insurer)
	g.POST("/:id/approve", h.ApproveClaim, insurer)
	g.POST("/:id/partial-approval", h.PartiallyApproveClaim, insurer)
	g.POST("/:id/deny", h.DenyClaim, insurer)
	g.POST("/:id/request-info", h.RequestInformation, insurer)
	g.POST("/:id/pay", h.PayClaim, insurer)
	g.POST("/:id/expire", h.ExpireClaim, insurer)

	fhirGroup.GET("/Claim/:id", h.GetFHIRClaim, read)
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type partialApprovalRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"positive_amount"`
	Reason string          `json:"reason"`
}

type documentRequest struct {
	Description string `json:"description" validate:"required"`
}

func (h *Handler) ListClaims(c echo.Context) error {
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
	filter.PolicyNumber = c.QueryParam("policy_number")

	items, total, err := h.svc.List(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return pagination.Respond(c, items, total, pg)
}

func (h *Handler) GetClaim(c echo.Context) error {
	cl, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) GetFHIRClaim(c echo.Context) error {
	cl, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("Claim", c.Param("id")))
	}
	return c.JSON(http.StatusOK, cl.ToFHIR())
}

func (h *Handler) SubmitClaim(c echo.Context) error {
	return respond(c)(h.svc.Submit(c.Request().Context(), c.Param("id")))
}

func (h *Handler) ProcessClaim(c echo.Context) error {
	return respond(c)(h.svc.Process(c.Request().Context(), c.Param("id")))
}

func (h *Handler) StartReview(c echo.Context) error {
	return respond(c)(h.svc.StartReview(c.Request().Context(), c.Param("id")))
}

func (h *Handler) ApproveClaim(c echo.Context) error {
	return respond(c)(h.svc.Approve(c.Request().Context(), c.Param("id")))
}

func (h *Handler) PartiallyApproveClaim(c echo.Context) error {
	var req partialApprovalRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	return respond(c)(h.svc.PartiallyApprove(c.Request().Context(), c.Param("id"), req.Amount, req.Reason))
}

func (h *Handler) DenyClaim(c echo.Context) error {
	var req reasonRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	return respond(c)(h.svc.Deny(c.Request().Context(), c.Param("id"), req.Reason))
}

func (h *Handler) AppealClaim(c echo.Context) error {
	var req reasonRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	return respond(c)(h.svc.Appeal(c.Request().Context(), c.Param("id"), req.Reason))
}

func (h *Handler) RequestInformation(c echo.Context) error {
	var req noteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return respond(c)(h.svc.RequestInformation(c.Request().Context(), c.Param("id"), req.Note))
}

func (h *Handler) PayClaim(c echo.Context) error {
	return respond(c)(h.svc.MarkPaid(c.Request().Context(), c.Param("id")))
}

func (h *Handler) CancelClaim(c echo.Context) error {
	return respond(c)(h.svc.Cancel(c.Request().Context(), c.Param("id")))
}

func (h *Handler) ExpireClaim(c echo.Context) error {
	return respond(c)(h.svc.Expire(c.Request().Context(), c.Param("id")))
}

func (h *Handler) AddDocument(c echo.Context) error {
	var req documentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	cl, at, err := h.svc.AddDocument(c.Request().Context(), c.Param("id"), req.Description)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"claim":       cl,
		"recorded_at": at,
	})
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

func respond(c echo.Context) func(*InsuranceClaim, error) error {
	return func(cl *InsuranceClaim, err error) error {
		if err != nil {
			return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
		}
		return c.JSON(http.StatusOK, cl)
	}
}
