package coverage

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/claims/internal/platform/apperr"
	"github.com/ehr/claims/internal/platform/auth"
	"github.com/ehr/claims/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/policies", auth.RequireRole("admin", "billing"))
	g.POST("", h.CreatePolicy)
	g.GET("", h.ListPolicies)
	g.GET("/:number", h.GetPolicy)
	g.POST("/:number/cancel", h.CancelPolicy)
}

type createPolicyRequest struct {
	PolicyNumber  string       `json:"policy_number" validate:"required,max=64"`
	HolderID      uuid.UUID    `json:"holder_id" validate:"required"`
	Name          string       `json:"name" validate:"required"`
	ProviderID    string       `json:"provider_id" validate:"required"`
	ProviderName  *string      `json:"provider_name"`
	Status        PolicyStatus `json:"status" validate:"omitempty,oneof=active pending cancelled"`
	EffectiveFrom *time.Time   `json:"effective_from"`
	ExpiresAt     time.Time    `json:"expires_at" validate:"required"`
	Plan          Plan         `json:"plan"`
}

func (h *Handler) CreatePolicy(c echo.Context) error {
	var req createPolicyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	p := &InsurancePolicy{
		PolicyNumber:  req.PolicyNumber,
		HolderID:      req.HolderID,
		Name:          req.Name,
		ProviderID:    req.ProviderID,
		ProviderName:  req.ProviderName,
		Status:        req.Status,
		EffectiveFrom: req.EffectiveFrom,
		ExpiresAt:     req.ExpiresAt,
		Plan:          req.Plan,
	}
	if err := h.svc.CreatePolicy(c.Request().Context(), p); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPolicy(c echo.Context) error {
	p, err := h.svc.GetPolicy(c.Request().Context(), c.Param("number"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "policy not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPolicies(c echo.Context) error {
	pg := pagination.FromContext(c)
	if holder := c.QueryParam("holder_id"); holder != "" {
		hid, err := uuid.Parse(holder)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid holder_id")
		}
		items, total, err := h.svc.ListPoliciesByHolder(c.Request().Context(), hid, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return pagination.Respond(c, items, total, pg)
	}
	items, total, err := h.svc.ListPolicies(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return pagination.Respond(c, items, total, pg)
}

func (h *Handler) CancelPolicy(c echo.Context) error {
	p, err := h.svc.CancelPolicy(c.Request().Context(), c.Param("number"))
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, p)
}
