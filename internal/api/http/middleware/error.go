package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/dtroode/accessgate/internal/apierror"
)

func abortWithError(c *gin.Context, apiErr *apierror.APIError) {
	c.AbortWithStatusJSON(apiErr.HTTPStatus, apiErr.Body())
}
