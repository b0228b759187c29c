package handler

import (
	"google.golang.org/grpc/status"

	"github.com/dtroode/accessgate/internal/apierror"
)

func handleError(err error) error {
	apiErr := apierror.FromError(err)
	return status.Error(apiErr.GRPCCode, apiErr.Message)
}
