package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// AuthSkipper lets health checks and scrapes through without a bearer token. Those
// routes also sit outside the tenant-scoped groups.
func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Path())
}

func IsPublicPath(path string) bool {
	return path == "/metrics" || path == "/health" || strings.HasPrefix(path, "/health/")
}
