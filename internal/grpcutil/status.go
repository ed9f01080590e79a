package grpcutil

import (
	"context"
	"errors"

	"github.com/chrissnell/fragsize/internal/calibration"
	"github.com/chrissnell/fragsize/internal/peaks"
	"github.com/chrissnell/fragsize/internal/trace"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Status converts an error to a gRPC status error. Errors that already carry a status are
// returned unchanged.
func Status(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, peaks.ErrInvalidParameter),
		errors.Is(err, calibration.ErrInsufficientPoints),
		errors.Is(err, calibration.ErrNonMonotonic):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, trace.ErrUnknownSample), errors.Is(err, trace.ErrMissingChannel):
		return status.Error(codes.NotFound, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
