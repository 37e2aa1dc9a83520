// Package security carries the HTTP hardening layer: response headers,
// CORS, and the SSRF screen for outbound webhook targets.
package security

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// hardeningHeaders go on every response. The API serves JSON plus one
// websocket stream and never renders pages, so the CSP permits nothing
// except websocket connects back to this host.
var hardeningHeaders = [...][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"X-XSS-Protection", "1; mode=block"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Content-Security-Policy", "default-src 'none'; connect-src 'self' ws: wss:; frame-ancestors 'none'"},
	{"Permissions-Policy", "geolocation=(), microphone=(), camera=()"},
}

// HeadersMiddleware stamps the hardening headers onto every response.
func HeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, kv := range hardeningHeaders {
			c.Header(kv[0], kv[1])
		}
		c.Next()
	}
}

// CORSMiddleware answers cross-origin requests for the listed origins. An
// empty list or a "*" entry admits any origin. Credentials are granted
// only with a concrete origin list; the CORS spec forbids combining them
// with a wildcard.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	_, wildcard := allowed["*"]

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		_, listed := allowed[origin]
		if len(allowed) == 0 || listed || wildcard {
			if origin != "" {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, X-Admin-Secret")
			c.Header("Access-Control-Max-Age", "86400")
			if !wildcard {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
