package services

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced by the engine. Operations wrap them with context;
// callers match with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicate       = errors.New("already exists")
	ErrPrivilegeDenied = errors.New("privilege denied")
	ErrBadCredential   = errors.New("bad credential")
	ErrAlreadyLoggedIn = errors.New("already logged in")
	ErrNotLoggedIn     = errors.New("not logged in")
	ErrAlreadyReleased = errors.New("train already released")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrSoldOut         = errors.New("insufficient seats")
	ErrInvalidState    = errors.New("invalid state")
	ErrStorage         = errors.New("storage failure")
)

// ErrorCode maps an engine error to a stable machine-readable code
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrDuplicate):
		return "DUPLICATE"
	case errors.Is(err, ErrPrivilegeDenied):
		return "PRIVILEGE_DENIED"
	case errors.Is(err, ErrBadCredential):
		return "BAD_CREDENTIAL"
	case errors.Is(err, ErrAlreadyLoggedIn):
		return "ALREADY_LOGGED_IN"
	case errors.Is(err, ErrNotLoggedIn):
		return "NOT_LOGGED_IN"
	case errors.Is(err, ErrAlreadyReleased):
		return "ALREADY_RELEASED"
	case errors.Is(err, ErrInvalidArgument):
		return "INVALID_ARGUMENT"
	case errors.Is(err, ErrSoldOut):
		return "SOLD_OUT"
	case errors.Is(err, ErrInvalidState):
		return "INVALID_STATE"
	case errors.Is(err, ErrStorage):
		return "STORAGE_FAILURE"
	default:
		return "INTERNAL_ERROR"
	}
}

func invalidArgument(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
}

func storageFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
