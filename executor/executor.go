package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DamienLove/browser-automation/bridge"
	"github.com/DamienLove/browser-automation/cdp"
	"github.com/DamienLove/browser-automation/log"
	"github.com/DamienLove/browser-automation/storage"

	"github.com/google/uuid"
	"github.com/mailru/easyjson"
)

// Session is the protocol session actions are executed against.
// Implemented by *cdp.Client.
type Session interface {
	Send(ctx context.Context, method string, params easyjson.RawMessage) (easyjson.RawMessage, error)
	SendWithTimeout(ctx context.Context, method string, params easyjson.RawMessage, timeout time.Duration) (easyjson.RawMessage, error)
}

var _ Session = (*cdp.Client)(nil)

// NativeRunner executes allowlisted native commands for run_native
// actions. Implemented by *bridge.Bridge.
type NativeRunner interface {
	Run(ctx context.Context, name string, extraArgs []string) (*bridge.Result, error)
}

// Option configures an Executor.
type Option func(*Executor)

// WithNativeRunner wires the bridge consulted by run_native actions.
func WithNativeRunner(r NativeRunner) Option {
	return func(e *Executor) { e.native = r }
}

// WithPersister wires the persister and directory used for screenshot
// output.
func WithPersister(p storage.FilePersister, dir string) Option {
	return func(e *Executor) {
		e.persister = p
		e.screenshotDir = dir
	}
}

// Executor runs action lists strictly sequentially against a session.
// It holds no action-to-action state beyond the accumulating trace; the
// browser itself is the only carried-forward context.
type Executor struct {
	policy        Policy
	logger        *log.Logger
	native        NativeRunner
	persister     storage.FilePersister
	screenshotDir string
}

// New returns an Executor with the given policy.
func New(policy Policy, logger *log.Logger, opts ...Option) *Executor {
	e := &Executor{
		policy:    policy,
		logger:    logger,
		persister: &storage.LocalFilePersister{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the actions in order and returns the trace. The trace
// has one entry per attempted action and never exceeds the input
// length. Cancellation of ctx is honored between actions and during
// action waits; a lost session aborts immediately regardless of the
// per-kind policy.
func (e *Executor) Execute(ctx context.Context, session Session, actions []Action) *Trace {
	trace := &Trace{RunID: uuid.NewString(), Status: RunCompleted}
	e.logger.Infof("Executor:Execute", "run:%s actions:%d", trace.RunID, len(actions))

	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			trace.Status = RunAborted
			trace.Reason = fmt.Sprintf("cancelled before %s", action)
			break
		}

		res := e.runAction(ctx, session, action)
		trace.Results = append(trace.Results, res)
		e.logger.Debugf("Executor:Execute",
			"run:%s %s status:%s attempts:%d in %s", trace.RunID, action, res.Status, res.Attempts, res.Duration)

		if res.Status == StatusSucceeded {
			continue
		}

		var uerr *UnsupportedActionError
		switch {
		case cdp.IsConnectionError(res.Err):
			trace.Status = RunAborted
			trace.Reason = fmt.Sprintf("connection lost during %s", action)
		case errors.Is(res.Err, context.Canceled):
			trace.Status = RunAborted
			trace.Reason = fmt.Sprintf("cancelled during %s", action)
		case errors.As(res.Err, &uerr) && e.policy.AbortOnUnsupported:
			trace.Status = RunAborted
			trace.Reason = fmt.Sprintf("unsupported %s", action)
		case e.policy.ForKind(action.Kind).Fatal:
			trace.Status = RunAborted
			trace.Reason = fmt.Sprintf("fatal failure in %s", action)
		}
		if trace.Status == RunAborted {
			break
		}
	}

	e.logger.Infof("Executor:Execute", "run:%s %s (%d/%d actions)",
		trace.RunID, trace.Status, len(trace.Results), len(actions))
	return trace
}

// runAction drives one action through Pending → Running → terminal,
// applying the kind's timeout and retry policy.
func (e *Executor) runAction(ctx context.Context, session Session, action Action) Result {
	kp := e.policy.ForKind(action.Kind)
	start := time.Now()

	var (
		out      easyjson.RawMessage
		err      error
		attempts int
	)

attempts:
	for attempt := 1; attempt <= kp.MaxAttempts; attempt++ {
		attempts = attempt
		if attempt > 1 {
			delay := e.policy.backoffDelay(attempt - 1)
			e.logger.Debugf("Executor:runAction", "%s retrying in %s (attempt %d/%d)",
				action, delay, attempt, kp.MaxAttempts)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				err = ctx.Err()
				break attempts
			}
		}

		actx, cancel := context.WithTimeout(ctx, kp.Timeout)
		out, err = e.dispatch(actx, session, action)
		cancel()
		if err == nil {
			break
		}
		e.logger.Warnf("Executor:runAction", "%s attempt %d/%d failed: %v",
			action, attempt, kp.MaxAttempts, err)
		if !retryable(err) {
			break
		}
	}

	res := Result{
		ActionID: action.ID,
		Kind:     action.Kind,
		Attempts: attempts,
		Duration: time.Since(start),
		Output:   out,
		Err:      err,
	}
	switch {
	case err == nil:
		res.Status = StatusSucceeded
	case timedOut(err):
		res.Status = StatusTimedOut
		res.Error = err.Error()
	default:
		res.Status = StatusFailed
		res.Error = err.Error()
	}
	return res
}
