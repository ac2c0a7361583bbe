package service

import (
	"fmt"

	"github.com/and161185/keyqueue/internal/errs"
)

// invalid builds a validation error matching errs.ErrInvalidArgument.
func invalid(format string, args ...any) error {
	return fmt.Errorf("validation: %s: %w", fmt.Sprintf(format, args...), errs.ErrInvalidArgument)
}
