package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

// RecordPrefixes are the URL prefixes whose responses carry patient billing
// records.
var RecordPrefixes = []string{"/patients"}

// SecurityHeaders sets hardening headers on every response. Responses under
// recordPrefixes are marked no-store. Everything else (CPT reference data and
// health checks) may be cached but must be revalidated.
func SecurityHeaders(recordPrefixes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			// Prevent MIME type sniffing
			h.Set("X-Content-Type-Options", "nosniff")

			// Prevent clickjacking
			h.Set("X-Frame-Options", "DENY")

			// Modern browsers rely on CSP; the legacy filter is disabled.
			h.Set("X-XSS-Protection", "0")

			// Responses are JSON only, so nothing may be loaded or framed.
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

			// HTTP Strict Transport Security for one year
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")

			// Do not send Referer header to other origins
			h.Set("Referrer-Policy", "no-referrer")

			// Disable browser features that an API does not need.
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			path := c.Request().URL.Path
			if lo.SomeBy(recordPrefixes, func(p string) bool { return hasPathPrefix(path, p) }) {
				// Patient records must not land in any cache.
				h.Set("Cache-Control", "no-store")
				h.Set("Pragma", "no-cache")
			} else {
				h.Set("Cache-Control", "no-cache")
			}

			return next(c)
		}
	}
}

// hasPathPrefix reports whether path is prefix or lies beneath it.
func hasPathPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/")
}
