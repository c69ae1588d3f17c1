package browser

import (
	"errors"
	"fmt"
)

// ErrTargetNotFound is wrapped by AttachError when the target id is
// unknown to the browser.
var ErrTargetNotFound = errors.New("target not found")

// ErrAlreadyAttached is wrapped by AttachError when the target already
// has an active session. Attaching is exclusive: callers must detach
// before attaching again.
var ErrAlreadyAttached = errors.New("target already attached")

// AttachError reports a failed attach to a browser target.
type AttachError struct {
	TargetID string
	Err      error
}

func (e *AttachError) Error() string {
	return fmt.Sprintf("attaching to target %q: %v", e.TargetID, e.Err)
}

func (e *AttachError) Unwrap() error { return e.Err }
