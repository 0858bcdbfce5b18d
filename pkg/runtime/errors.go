package runtime

import (
	"errors"
	"fmt"
)

// ErrUnknownStep is returned when a step object carries none of the
// recognized kind keys. Treated as an ordinary step failure, subject to the
// active error policy.
var ErrUnknownStep = errors.New("unknown step type")

// FatalError marks a failure that aborts the whole run regardless of error
// policy: the browser session is gone or was never established.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as a FatalError. A nil err returns nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err (or anything it wraps) is a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
