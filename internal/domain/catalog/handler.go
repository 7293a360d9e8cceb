package catalog

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/claims/internal/domain/coverage"
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
	read := auth.RequireRole(auth.RoleBilling, auth.RoleInsurer)
	write := auth.RequireRole(auth.RoleBilling)

	g := api.Group("/catalog")
	g.POST("", h.CreateItem, write)
	g.GET("", h.ListItems, read)
	g.GET("/:code", h.GetItem, read)
	g.DELETE("/:code", h.DeactivateItem, write)
}

func (h *Handler) CreateItem(c echo.Context) error {
	var ci ChargeItem
	if err := c.Bind(&ci); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&ci); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), &ci); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, &ci)
}

func (h *Handler) ListItems(c echo.Context) error {
	pg := pagination.FromContext(c)
	filter := ListFilter{ActiveOnly: c.QueryParam("active") == "true"}
	if k := c.QueryParam("kind"); k != "" {
		kind := coverage.ItemKind(k)
		if !kind.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown kind "+k)
		}
		filter.Kind = kind
	}
	items, total, err := h.svc.List(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return pagination.Respond(c, items, total, pg)
}

func (h *Handler) GetItem(c echo.Context) error {
	ci, err := h.svc.Get(c.Request().Context(), c.Param("code"))
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, ci)
}

func (h *Handler) DeactivateItem(c echo.Context) error {
	ci, err := h.svc.Deactivate(c.Request().Context(), c.Param("code"))
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, ci)
}
