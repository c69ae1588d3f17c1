// Package chromium launches a Chromium based browser with the remote
// debugging port enabled and manages its lifetime.
package chromium

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/DamienLove/browser-automation/log"

	"github.com/pkg/errors"
)

const (
	// DefaultExecutablePath is used when no browser binary is configured.
	DefaultExecutablePath = "google-chrome"

	// DefaultStartupTimeout bounds the wait for the debugging endpoint to
	// become reachable after the process starts.
	DefaultStartupTimeout = 15 * time.Second

	readinessPollInterval = 500 * time.Millisecond
	terminateWait         = 5 * time.Second
)

// Options configure the browser launch.
type Options struct {
	ExecutablePath string
	Host           string
	Port           int
	Headless       bool
	UserDataDir    string
	Args           []string
	StartupTimeout time.Duration
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.ExecutablePath == "" {
		opts.ExecutablePath = DefaultExecutablePath
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Port == 0 {
		opts.Port = 9222
	}
	if opts.StartupTimeout == 0 {
		opts.StartupTimeout = DefaultStartupTimeout
	}
	return opts
}

// Browser is a launched browser process.
type Browser struct {
	opts   Options
	cmd    *exec.Cmd
	done   chan struct{}
	logger *log.Logger
}

// Launch starts the browser and waits until its debugging endpoint
// answers, or fails after the startup timeout. The returned Browser
// must be terminated by the caller.
func Launch(ctx context.Context, opts Options, logger *log.Logger) (*Browser, error) {
	opts = (&opts).withDefaults()

	args := buildArgs(opts)
	logger.Debugf("chromium:Launch", "path:%q args:%v", opts.ExecutablePath, args)

	cmd := exec.CommandContext(ctx, opts.ExecutablePath, args...) //nolint:gosec
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "starting browser process %q", opts.ExecutablePath)
	}

	b := &Browser{
		opts:   opts,
		cmd:    cmd,
		done:   make(chan struct{}),
		logger: logger,
	}
	go func() {
		defer close(b.done)
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			logger.Warnf("chromium", "browser process with PID %d ended: %v", cmd.Process.Pid, err)
		}
	}()

	if err := b.waitUntilReady(ctx); err != nil {
		b.Terminate()
		return nil, err
	}
	logger.Infof("chromium:Launch", "browser ready at %s", b.Endpoint())

	return b, nil
}

// Endpoint returns the host:port of the debugging endpoint.
func (b *Browser) Endpoint() string {
	return fmt.Sprintf("%s:%d", b.opts.Host, b.opts.Port)
}

// Pid returns the browser process ID.
func (b *Browser) Pid() int {
	return b.cmd.Process.Pid
}

// IsRunning reports whether the process has not exited yet.
func (b *Browser) IsRunning() bool {
	select {
	case <-b.done:
		return false
	default:
		return true
	}
}

// Terminate stops the browser process, waiting briefly for a clean
// exit. Idempotent.
func (b *Browser) Terminate() {
	if !b.IsRunning() {
		return
	}
	b.logger.Debugf("chromium:Terminate", "pid:%d", b.Pid())
	_ = b.cmd.Process.Signal(os.Interrupt)

	select {
	case <-b.done:
	case <-time.After(terminateWait):
		b.logger.Warnf("chromium:Terminate", "pid:%d did not exit, killing", b.Pid())
		_ = b.cmd.Process.Kill()
	}
}

// waitUntilReady polls the /json/version endpoint until it answers.
// The browser opens the port only after its startup is far enough
// along, so early refusals are expected.
func (b *Browser) waitUntilReady(ctx context.Context) error {
	versionURL := fmt.Sprintf("http://%s/json/version", b.Endpoint())
	client := &http.Client{Timeout: readinessPollInterval}
	deadline := time.Now().Add(b.opts.StartupTimeout)

	var lastErr error
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return errors.New("browser process exited before the debugging endpoint became ready")
		case <-time.After(readinessPollInterval):
		}

		resp, err := client.Get(versionURL) //nolint:noctx
		if err != nil {
			lastErr = err
			continue
		}
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return nil
		}
		lastErr = fmt.Errorf("unexpected status %s", resp.Status)
	}

	return errors.Wrapf(lastErr, "browser did not become ready within %s", b.opts.StartupTimeout)
}

// buildArgs assembles the browser command line for the given options.
func buildArgs(opts Options) []string {
	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", opts.Port),
		"--remote-allow-origins=*",
		"--no-first-run",
		"--no-default-browser-check",
	}
	if opts.Headless {
		args = append(args, "--headless=new")
	}
	if opts.UserDataDir != "" {
		args = append(args, "--user-data-dir="+opts.UserDataDir)
	}
	return append(args, opts.Args...)
}
