package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/DamienLove/browser-automation/bridge"
	"github.com/DamienLove/browser-automation/cdp"
)

// UnsupportedActionError reports an action kind outside the supported
// set. It is recorded as Failed and never retried.
type UnsupportedActionError struct {
	Kind Kind
}

func (e *UnsupportedActionError) Error() string {
	return fmt.Sprintf("unsupported action kind %q", e.Kind)
}

// ActionError is a semantic failure reported by a handler, such as a
// missing target element. Subject to the retry policy.
type ActionError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *ActionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *ActionError) Unwrap() error { return e.Err }

// retryable decides whether a failed attempt may be retried.
// Permission denials and unsupported kinds are permanent; connection
// errors abort the run anyway; cancellation means the caller is gone.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	var perr *bridge.PermissionError
	if errors.As(err, &perr) {
		return false
	}
	var uerr *UnsupportedActionError
	if errors.As(err, &uerr) {
		return false
	}
	if cdp.IsConnectionError(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// timedOut reports whether the attempt failed by exceeding its bound.
func timedOut(err error) bool {
	return errors.Is(err, cdp.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
