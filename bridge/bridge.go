// Package bridge executes allowlisted native desktop commands. It is
// intentionally strict: commands must be registered in advance with
// their exact executable and base arguments, so an action can never
// trigger arbitrary command execution.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/DamienLove/browser-automation/log"
)

// unsafeMarker blocks escalation-style arguments regardless of which
// command they are passed to.
const unsafeMarker = "--unsafe"

// PermissionError reports a denied bridge operation. It is never
// retried and the process is never started once it is raised.
type PermissionError struct {
	Name   string
	Reason string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("native command %q denied: %s", e.Name, e.Reason)
}

// Result is the outcome of a completed native command.
type Result struct {
	ExitStatus int
	Output     string
}

// runner spawns the process. Tests replace it to spy on process
// creation without spawning anything.
type runner func(ctx context.Context, argv, env []string) (*Result, error)

// Bridge runs pre-registered native commands.
type Bridge struct {
	logger *log.Logger
	run    runner
	env    []string

	mu        sync.Mutex
	allowlist map[string][]string
}

// New returns a Bridge with an empty allowlist.
func New(logger *log.Logger) *Bridge {
	return &Bridge{
		logger:    logger,
		run:       execRunner,
		env:       os.Environ(),
		allowlist: make(map[string][]string),
	}
}

// Register adds a command under name with its executable and base
// arguments. Registering an existing name replaces its command.
func (b *Bridge) Register(name string, argv []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allowlist[name] = append([]string(nil), argv...)
}

// IsAllowed reports whether name is registered.
func (b *Bridge) IsAllowed(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.allowlist[name]
	return ok
}

// Describe returns a copy of the allowlist.
func (b *Bridge) Describe() map[string][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string][]string, len(b.allowlist))
	for name, argv := range b.allowlist {
		out[name] = append([]string(nil), argv...)
	}
	return out
}

// Run executes the registered command name with extraArgs appended.
// Unregistered names and arguments carrying the unsafe marker fail with
// a PermissionError before any process is created.
func (b *Bridge) Run(ctx context.Context, name string, extraArgs []string) (*Result, error) {
	// The argument check runs before the registration check so an
	// unsafe argument is rejected regardless of the name's status.
	for _, arg := range extraArgs {
		if strings.HasPrefix(arg, unsafeMarker) {
			return nil, &PermissionError{Name: name, Reason: fmt.Sprintf("argument %q is blocked", arg)}
		}
	}

	b.mu.Lock()
	base, ok := b.allowlist[name]
	b.mu.Unlock()
	if !ok {
		return nil, &PermissionError{Name: name, Reason: "not allowlisted"}
	}

	argv := make([]string, 0, len(base)+len(extraArgs))
	argv = append(argv, base...)
	argv = append(argv, extraArgs...)

	b.logger.Debugf("Bridge:Run", "name:%q argv:%v", name, argv)
	return b.run(ctx, argv, b.env)
}

func execRunner(ctx context.Context, argv, env []string) (*Result, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec
	cmd.Env = env

	out, err := cmd.CombinedOutput()
	res := &Result{Output: string(out)}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitStatus = exitErr.ExitCode()
			return res, fmt.Errorf("native command exited with status %d", res.ExitStatus)
		}
		return nil, fmt.Errorf("running native command: %w", err)
	}
	return res, nil
}
