package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

const apiKeyHeader = "X-Api-Key"

// APIKey rejects requests that do not carry the expected API key. The key is
// resolved per request so a regenerated key takes effect immediately.
func APIKey(expected func() string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(apiKeyHeader)
			if key == "" {
				key = c.QueryParam("apikey")
			}
			want := expected()
			if want == "" || subtle.ConstantTimeCompare([]byte(key), []byte(want)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid API key")
			}
			return next(c)
		}
	}
}
