package grpc

import (
	"errors"

	"github.com/rbroggi/userlifecycle/internal/core/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// StatusFromError maps a usecase error to a gRPC status. Domain errors keep msg, which must be
// safe to show to the caller; anything else becomes an opaque internal error.
func StatusFromError(err error, msg string) *status.Status {
	switch {
	case err == nil:
		return status.New(codes.OK, "")
	case errors.Is(err, model.ErrNotFound):
		return status.New(codes.NotFound, msg)
	case errors.Is(err, model.ErrAlreadyExists):
		return status.New(codes.AlreadyExists, msg)
	default:
		return status.New(codes.Internal, "internal error")
	}
}
