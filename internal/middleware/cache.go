package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// PrivateCache sets Cache-Control for per-student responses. Shared caches
// must never keep them; maxAgeSeconds <= 0 forbids storing them at all.
func PrivateCache(maxAgeSeconds int) gin.HandlerFunc {
	value := "private, no-store"
	if maxAgeSeconds > 0 {
		value = fmt.Sprintf("private, max-age=%d", maxAgeSeconds)
	}
	return func(c *gin.Context) {
		c.Header("Cache-Control", value)
		c.Next()
	}
}
