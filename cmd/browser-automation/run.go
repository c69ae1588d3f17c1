package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/DamienLove/browser-automation/bridge"
	"github.com/DamienLove/browser-automation/browser"
	"github.com/DamienLove/browser-automation/chromium"
	"github.com/DamienLove/browser-automation/config"
	"github.com/DamienLove/browser-automation/executor"
	"github.com/DamienLove/browser-automation/storage"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	flagEndpoint      string
	flagPort          int
	flagChromePath    string
	flagHeadless      bool
	flagNoLaunch      bool
	flagDryRun        bool
	flagStrict        bool
	flagScreenshotDir string
	flagTimeout       time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Plan a request and execute it against a browser",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&flagEndpoint, "endpoint", "", "DevTools endpoint host:port of an already running browser")
	f.IntVar(&flagPort, "port", 0, "remote debugging port (default 9222)")
	f.StringVar(&flagChromePath, "chrome-path", "", "browser executable to launch")
	f.BoolVar(&flagHeadless, "headless", false, "launch the browser headless")
	f.BoolVar(&flagNoLaunch, "no-launch", false, "attach to a running browser instead of launching one")
	f.BoolVar(&flagDryRun, "dry-run", false, "print the plan without executing it")
	f.BoolVar(&flagStrict, "strict", false, "non-zero exit when any action fails")
	f.StringVar(&flagScreenshotDir, "screenshot-dir", "", "directory for screenshot output")
	f.DurationVar(&flagTimeout, "timeout", 0, "overall run timeout")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}

	request := strings.Join(args, " ")
	actions := newPlanner(cfg).Plan(request)

	if flagDryRun {
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, action := range actions {
			if err := enc.Encode(action); err != nil {
				return err
			}
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if flagTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flagTimeout)
		defer cancel()
	}

	host, port, err := resolveEndpoint(cfg)
	if err != nil {
		return err
	}

	if !flagNoLaunch && flagEndpoint == "" {
		headless := flagHeadless
		if cfg.Browser.Headless != nil && !cmd.Flags().Changed("headless") {
			headless = *cfg.Browser.Headless
		}
		execPath := flagChromePath
		if execPath == "" {
			execPath = cfg.Browser.ExecutablePath
		}
		launched, err := chromium.Launch(ctx, chromium.Options{
			ExecutablePath: execPath,
			Host:           host,
			Port:           port,
			Headless:       headless,
			UserDataDir:    cfg.Browser.UserDataDir,
			Args:           cfg.Browser.Args,
		}, logger)
		if err != nil {
			return err
		}
		defer launched.Terminate()
	}

	mgr := browser.NewManager(ctx, host, port, logger)
	defer mgr.Close()

	target, err := mgr.OpenTarget(ctx, "about:blank")
	if err != nil {
		return fmt.Errorf("opening target: %w", err)
	}
	defer func() { _ = mgr.CloseTarget(context.Background(), target.ID) }()

	client, err := mgr.Attach(ctx, target.ID)
	if err != nil {
		return fmt.Errorf("attaching to target %s: %w", target.ID, err)
	}

	br := bridge.New(logger)
	for name, argv := range cfg.Bridge.Allowlist {
		br.Register(name, argv)
	}

	policy := cfg.Policy()
	strict := flagStrict || policy.Strict
	screenshotDir := flagScreenshotDir
	if screenshotDir == "" {
		screenshotDir = cfg.Executor.ScreenshotDir
	}
	if screenshotDir == "" {
		screenshotDir = "."
	}

	ex := executor.New(policy, logger,
		executor.WithNativeRunner(br),
		executor.WithPersister(&storage.LocalFilePersister{}, screenshotDir))
	trace := ex.Execute(ctx, client, actions)

	printTrace(cmd, trace, len(actions))

	if code := trace.ExitCode(strict); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// resolveEndpoint picks the DevTools host and port from --endpoint,
// --port and the config, in that order.
func resolveEndpoint(cfg config.Config) (string, int, error) {
	host := cfg.Browser.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := flagPort
	if port == 0 {
		port = cfg.Browser.Port
	}
	if port == 0 {
		port = 9222
	}

	if flagEndpoint != "" {
		h, p, err := net.SplitHostPort(flagEndpoint)
		if err != nil {
			return "", 0, fmt.Errorf("invalid --endpoint %q: %w", flagEndpoint, err)
		}
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, fmt.Errorf("invalid --endpoint port %q: %w", p, err)
		}
		host = h
	}
	return host, port, nil
}

func printTrace(cmd *cobra.Command, trace *executor.Trace, planned int) {
	out := cmd.OutOrStdout()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	for _, res := range trace.Results {
		var mark, status string
		switch res.Status {
		case executor.StatusSucceeded:
			mark, status = green("✓"), green(res.Status)
		case executor.StatusTimedOut:
			mark, status = yellow("✗"), yellow(res.Status)
		default:
			mark, status = red("✗"), red(res.Status)
		}
		fmt.Fprintf(out, "%s action %d %-18s %s (attempts: %d, %s)\n",
			mark, res.ActionID, res.Kind, status, res.Attempts, res.Duration.Round(time.Millisecond))
		if res.Error != "" {
			fmt.Fprintf(out, "  %s\n", red(res.Error))
		}
	}

	switch trace.Status {
	case executor.RunCompleted:
		fmt.Fprintf(out, "%s run %s: %d/%d actions\n", green("✓"), trace.Status, len(trace.Results), planned)
	default:
		fmt.Fprintf(out, "%s run %s: %s (%d/%d actions)\n", red("✗"), trace.Status, trace.Reason, len(trace.Results), planned)
	}
}
