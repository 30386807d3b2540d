package middlewares

import "github.com/gin-gonic/gin"

// The API only ever answers with JSON, so nothing may be framed, embedded or cached.
const (
	apiCSP       = "default-src 'none'; frame-ancestors 'none'"
	hstsMaxAge   = "max-age=63072000; includeSubDomains"
	noStoreCache = "no-store"
)

// SecurityHeaders sets the response headers for a JSON-only API. HSTS is only
// sent when hsts is true, since dev servers usually run over plain HTTP.
func SecurityHeaders(hsts bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", apiCSP)
		h.Set("Cross-Origin-Resource-Policy", "same-origin")
		// user records must not linger in shared caches
		h.Set("Cache-Control", noStoreCache)

		if hsts {
			h.Set("Strict-Transport-Security", hstsMaxAge)
		}
		c.Next()
	}
}
