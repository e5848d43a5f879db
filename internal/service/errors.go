package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidInput     = errors.New("invalid input")
	ErrPermitExists     = errors.New("an active national permit already exists for this vehicle and permit number")

	ErrPermitNotFound  = fmt.Errorf("national permit %w", ErrNotFound)
	ErrBillNotFound    = fmt.Errorf("bill %w", ErrNotFound)
	ErrPDFNotGenerated = fmt.Errorf("bill pdf not generated yet: %w", ErrNotFound)
)

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
