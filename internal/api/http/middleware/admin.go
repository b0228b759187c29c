package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/dtroode/accessgate/internal/apierror"
)

const AdminKeyHeader = "X-Admin-Key"

// RequireAdminKey guards administrative routes. An empty key disables them.
func RequireAdminKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			abortWithError(c, apierror.NewErrNotFound())
			return
		}
		presented := c.GetHeader(AdminKeyHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
			abortWithError(c, apierror.NewErrInvalidAuthorizationToken())
			return
		}
		c.Next()
	}
}
