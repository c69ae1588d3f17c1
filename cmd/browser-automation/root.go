package main

import (
	"regexp"

	"github.com/DamienLove/browser-automation/config"
	"github.com/DamienLove/browser-automation/log"
	"github.com/DamienLove/browser-automation/planner"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	flagConfig    string
	flagVerbose   bool
	flagLogFilter string
)

var rootCmd = &cobra.Command{
	Use:           "browser-automation",
	Short:         "Plan and run browser automation over the DevTools protocol",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "path to a YAML config file")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&flagLogFilter, "log-filter", "", "regexp limiting log output to matching categories")

	rootCmd.AddCommand(planCmd, runCmd)
}

func loadConfig() (config.Config, error) {
	if flagConfig == "" {
		return config.Default(), nil
	}
	return config.Load(flagConfig)
}

func newLogger() (*log.Logger, error) {
	var filter *regexp.Regexp
	if flagLogFilter != "" {
		var err error
		if filter, err = regexp.Compile(flagLogFilter); err != nil {
			return nil, err
		}
	}
	backend := logrus.New()
	backend.SetOutput(rootCmd.ErrOrStderr())
	if flagVerbose {
		backend.SetLevel(logrus.DebugLevel)
	} else {
		backend.SetLevel(logrus.WarnLevel)
	}
	return log.New(backend, filter), nil
}

func newPlanner(cfg config.Config) planner.RuleBased {
	return planner.RuleBased{SearchEngine: cfg.Planner.SearchEngine}
}
