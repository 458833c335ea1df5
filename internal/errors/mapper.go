// internal/errors/mapper.go
package errors

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

var grpcCodes = map[Code]codes.Code{
	CodeNotFound:             codes.NotFound,
	CodeDuplicate:            codes.AlreadyExists,
	CodeDuplicatePhrase:      codes.AlreadyExists,
	CodeAlreadyVoted:         codes.AlreadyExists,
	CodeAlreadyClosed:        codes.FailedPrecondition,
	CodeNotCurator:           codes.PermissionDenied,
	CodeNotOwner:             codes.PermissionDenied,
	CodeSubmitterBlacklisted: codes.PermissionDenied,
	CodeLinkTokenInvalid:     codes.InvalidArgument,
	CodePromotionFailed:      codes.Aborted,
	CodeStorageUnavailable:   codes.Unavailable,
	CodeConflict:             codes.Aborted,
	CodeInvalidArgument:      codes.InvalidArgument,
}

// Map converts core/infra errors into gRPC-friendly status errors so that
// adapters talking gRPC get a stable code plus the human message.
func Map(err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	switch {
	case errors.As(err, &e):
		c, ok := grpcCodes[e.Code]
		if !ok {
			c = codes.Internal
		}
		return status.Error(c, e.Error())

	case errors.Is(err, gorm.ErrRecordNotFound):
		return status.Error(codes.NotFound, Message(CodeNotFound))

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request was canceled")

	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// FromGorm translates a gorm error into the core taxonomy. op names the
// failing repository call for the wrapped message.
func FromGorm(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return New(CodeNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return New(CodeDuplicate, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return Storage(op, err)
	}
}
