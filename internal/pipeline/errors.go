package pipeline

import (
	"errors"
	"fmt"
)

// ValidationError reports missing or structurally incomplete upstream
// data. The HTTP layer maps it to a 400 with the message verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a caller-input problem rather than
// a stage failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
