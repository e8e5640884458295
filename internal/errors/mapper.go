// internal/errors/mapper.go
package errors

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/oggyb/crosspost-earnings/internal/cache"
	"github.com/oggyb/crosspost-earnings/internal/engine"
	"github.com/oggyb/crosspost-earnings/internal/repository"
)

// Map converts repo/infra/domain errors into gRPC-friendly status errors.
// Errors that already carry a status pass through untouched.
func Map(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return status.Error(codes.NotFound, "record not found")

	case errors.Is(err, repository.ErrNoActiveCycle), errors.Is(err, repository.ErrSettingsMissing):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, engine.ErrCycleAlreadyPaid), errors.Is(err, engine.ErrCycleNotPaid):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, repository.ErrVideoConflict), errors.Is(err, gorm.ErrDuplicatedKey):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, cache.ErrLockHeld):
		return status.Error(codes.Aborted, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request was canceled")

	default:
		// fallback → bubble up error message for debugging
		return status.Error(codes.Internal, err.Error())
	}
}

// InvalidArgument creates a gRPC InvalidArgument error.
// Use this in service layer for bad input validation.
func InvalidArgument(msg string) error {
	return status.Error(codes.InvalidArgument, msg)
}

// FailedPrecondition creates a gRPC FailedPrecondition error.
func FailedPrecondition(msg string) error {
	return status.Error(codes.FailedPrecondition, msg)
}
