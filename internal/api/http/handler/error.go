package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/dtroode/accessgate/internal/apierror"
	"github.com/dtroode/accessgate/internal/logger"
)

// writeError renders err as the JSON error body. Internal errors are logged
// and never leak their message.
func writeError(c *gin.Context, log *logger.Logger, err error) {
	apiErr := apierror.FromError(err)
	if apiErr.Code == apierror.CodeInternal {
		log.Error("HTTP handler: request failed",
			"path", c.FullPath(),
			"error", err)
	}
	c.AbortWithStatusJSON(apiErr.HTTPStatus, apiErr.Body())
}

func badRequest(c *gin.Context, message string) {
	apiErr := apierror.NewErrBadRequest(message)
	c.AbortWithStatusJSON(apiErr.HTTPStatus, apiErr.Body())
}
