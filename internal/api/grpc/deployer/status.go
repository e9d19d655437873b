package deployer

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
)

// Code maps a service error to a gRPC code.
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, deployment.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, deployment.ErrValidation):
		return codes.InvalidArgument
	case errors.Is(err, deployment.ErrAmbiguousResult):
		return codes.FailedPrecondition
	case errors.Is(err, deployment.ErrExecutionTimeout), errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, deployment.ErrExecutionInterrupted), errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}

// toStatus converts a service error into a status error keeping its message.
func toStatus(err error) error {
	if err == nil {
		return nil
	}

	return status.Error(Code(err), err.Error())
}
