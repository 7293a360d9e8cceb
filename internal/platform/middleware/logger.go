package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/claims/internal/platform/auth"
)

// Logger writes one access line per request. Tenant and user are read after
// the handler chain runs because tenant resolution and authentication happen
// further down.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			var evt *zerolog.Event
			switch {
			case status >= 500:
				evt = logger.Error().Err(err)
			case err != nil || status >= 400:
				evt = logger.Warn().Err(err)
			default:
				evt = logger.Info()
			}

			req := c.Request()
			requestFields(evt, c).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("route", c.Path()).
				Int("status", status).
				Int64("bytes_out", c.Response().Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")
			return err
		}
	}
}

// requestFields adds the correlation fields shared by access and panic logs.
func requestFields(evt *zerolog.Event, c echo.Context) *zerolog.Event {
	rid, _ := c.Get("request_id").(string)
	evt = evt.Str("request_id", rid)
	if tenant, ok := c.Get("tenant_id").(string); ok && tenant != "" {
		evt = evt.Str("tenant_id", tenant)
	}
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
		evt = evt.Str("user_id", uid)
	}
	return evt
}
