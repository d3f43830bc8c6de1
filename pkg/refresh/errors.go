package refresh

import (
	"errors"
	"fmt"
)

var ErrEmptyYear = errors.New("empty year")

// ApplyError reports the side effect that failed while applying a payload.
// Effects applied before it remain visible.
type ApplyError struct {
	Step string
	Err  error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply %s: %v", e.Step, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}
