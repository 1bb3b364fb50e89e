package middleware

import (
	"github.com/labstack/echo/v4"
)

// apiHeaders go on every response. The service is a JSON API carrying
// tokenized schedule data to staff dashboards; responses must never be
// cached, framed, or sniffed into another content type.
var apiHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Referrer-Policy":           "no-referrer",
	"Cache-Control":             "no-store",
}

// SecurityHeaders sets the API's hardening headers on every response,
// including error responses.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for name, value := range apiHeaders {
				h.Set(name, value)
			}
			return next(c)
		}
	}
}
