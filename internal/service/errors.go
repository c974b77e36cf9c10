package service

import (
	"context"
	"errors"

	"github.com/nurpe/freight/internal/model"
	"github.com/nurpe/freight/internal/pricing"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = pricing.ErrInvalidInput
	ErrConflict     = errors.New("conflict")

	ErrSyncInProgress          = errors.New("sync already in progress")
	ErrOperationModeMismatch   = errors.New("operation mode mismatch")
	ErrNoCharacter             = errors.New("no sync character")
	ErrTokenExpired            = errors.New("token expired")
	ErrTokenInvalid            = errors.New("token invalid")
	ErrNoToken                 = errors.New("no valid token")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrLookupFailed            = errors.New("location lookup failed")
	ErrUnknownStatus           = model.ErrUnknownContractStatus
	ErrTimeout                 = errors.New("timeout")
	ErrUnavailable             = errors.New("external source unavailable")
)

// ClassifySyncError maps an error returned by a sync run to the kind stored
// as the handler's last error.
func ClassifySyncError(err error) model.SyncError {
	switch {
	case err == nil:
		return model.SyncErrorNone
	case errors.Is(err, ErrOperationModeMismatch):
		return model.SyncErrorOperationModeMismatch
	case errors.Is(err, ErrNoCharacter):
		return model.SyncErrorNoCharacter
	case errors.Is(err, ErrTokenExpired):
		return model.SyncErrorTokenExpired
	case errors.Is(err, ErrTokenInvalid):
		return model.SyncErrorTokenInvalid
	case errors.Is(err, ErrNoToken):
		return model.SyncErrorNoToken
	case errors.Is(err, ErrInsufficientPermissions):
		return model.SyncErrorInsufficientPermissions
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return model.SyncErrorTimeout
	case errors.Is(err, ErrUnavailable):
		return model.SyncErrorESIUnavailable
	default:
		return model.SyncErrorUnknown
	}
}

// IsSyncPrecondition reports whether err stopped a run before any contract
// was fetched.
func IsSyncPrecondition(err error) bool {
	return errors.Is(err, ErrOperationModeMismatch) ||
		errors.Is(err, ErrNoCharacter) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenInvalid) ||
		errors.Is(err, ErrNoToken) ||
		errors.Is(err, ErrInsufficientPermissions)
}
