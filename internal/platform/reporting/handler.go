package reporting

import (
	"bytes"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/claims/internal/platform/apperr"
	"github.com/ehr/claims/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reports", auth.RequireRole(auth.RoleAdmin, auth.RoleBilling))
	g.GET("/measures", h.ListMeasures)
	g.GET("/measures/:id/evaluate", h.EvaluateMeasure)
	g.GET("/measures/:id/export", h.ExportMeasure)
}

func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Measures())
}

func (h *Handler) EvaluateMeasure(c echo.Context) error {
	r, err := h.evaluate(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ExportMeasure(c echo.Context) error {
	r, err := h.evaluate(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, r); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+r.Filename()+`"`)
	return c.Blob(http.StatusOK, ContentTypeXLSX, buf.Bytes())
}

func (h *Handler) evaluate(c echo.Context) (*Report, error) {
	raw := make(map[string]string)
	for name, values := range c.QueryParams() {
		if len(values) > 0 {
			raw[name] = values[0]
		}
	}
	r, err := h.svc.Evaluate(c.Request().Context(), c.Param("id"), raw)
	if err != nil {
		return nil, echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return r, nil
}
