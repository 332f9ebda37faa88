// internal/errors/mapper.go
package errors

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

// Domain error taxonomy. Services wrap these with fmt.Errorf("...: %w", ErrX)
// so transports can classify them with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("not authorized")
	ErrBadRequest         = errors.New("bad request")
	ErrPreferencesMissing = errors.New("matchmaking preferences not set")
	ErrMatchingPaused     = errors.New("matching is paused")
	ErrBlocked            = errors.New("one user has blocked the other")
)

// Map converts domain/repo/infra errors into gRPC-friendly status errors.
// Keeps service layer clean by centralizing error mapping.
func Map(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(code(err), err.Error())
}

// HTTPStatus is the REST counterpart of Map.
func HTTPStatus(err error) int {
	if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown {
		return httpFromCode(s.Code())
	}
	return httpFromCode(code(err))
}

func code(err error) codes.Code {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return codes.NotFound
	case errors.Is(err, ErrUnauthorized):
		return codes.PermissionDenied
	case errors.Is(err, ErrBadRequest):
		return codes.InvalidArgument
	case errors.Is(err, ErrPreferencesMissing), errors.Is(err, ErrMatchingPaused), errors.Is(err, ErrBlocked):
		return codes.FailedPrecondition
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}

func httpFromCode(c codes.Code) int {
	switch c {
	case codes.NotFound:
		return http.StatusNotFound
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.FailedPrecondition:
		return http.StatusConflict
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Canceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// InvalidArgument creates a gRPC InvalidArgument error.
// Use this in service layer for bad input validation.
func InvalidArgument(msg string) error {
	return status.Error(codes.InvalidArgument, msg)
}

// Unauthenticated is returned when no upstream identity reached the core.
func Unauthenticated(msg string) error {
	return status.Error(codes.Unauthenticated, msg)
}
