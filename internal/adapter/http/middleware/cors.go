package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS allows browser storefronts to call the checkout API. Preflight
// requests are answered here and never reach a handler.
func CORS(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		SetCORSHeaders(c, allowedOrigin)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// SetCORSHeaders writes the storefront CORS headers; an empty origin means "*".
func SetCORSHeaders(c *gin.Context, allowedOrigin string) {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	h := c.Writer.Header()
	h.Set("Access-Control-Allow-Origin", allowedOrigin)
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	if allowedOrigin != "*" {
		h.Add("Vary", "Origin")
	}
}
