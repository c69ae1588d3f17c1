// Package config loads run configuration from YAML: browser launch
// settings, executor policy overrides and the native bridge allowlist.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/DamienLove/browser-automation/executor"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "250ms" or "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the top-level run configuration. Zero values mean "use the
// default"; only set fields override.
type Config struct {
	Browser  Browser  `yaml:"browser"`
	Executor Executor `yaml:"executor"`
	Bridge   Bridge   `yaml:"bridge"`
	Planner  Planner  `yaml:"planner"`
}

// Browser configures how the Chrome process is launched and reached.
type Browser struct {
	ExecutablePath string   `yaml:"executablePath"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	Headless       *bool    `yaml:"headless"`
	UserDataDir    string   `yaml:"userDataDir"`
	Args           []string `yaml:"args"`
}

// Executor overrides parts of executor.DefaultPolicy.
type Executor struct {
	Kinds              map[string]KindPolicy `yaml:"kinds"`
	Backoff            string                `yaml:"backoff"`
	BackoffBase        Duration              `yaml:"backoffBase"`
	BackoffMax         Duration              `yaml:"backoffMax"`
	PollInterval       Duration              `yaml:"pollInterval"`
	AbortOnUnsupported bool                  `yaml:"abortOnUnsupported"`
	Strict             bool                  `yaml:"strict"`
	ScreenshotDir      string                `yaml:"screenshotDir"`
}

// KindPolicy overrides one action kind's policy. Zero fields keep the
// default.
type KindPolicy struct {
	Timeout     Duration `yaml:"timeout"`
	MaxAttempts int      `yaml:"maxAttempts"`
	Fatal       *bool    `yaml:"fatal"`
}

// Bridge lists the allowlisted native commands, name to argv.
type Bridge struct {
	Allowlist map[string][]string `yaml:"allowlist"`
}

// Planner configures the rule-based planner.
type Planner struct {
	SearchEngine string `yaml:"searchEngine"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{}
}

// Load reads and parses the YAML file at path.
func Load(path string) (Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %q: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Executor.Backoff {
	case "", string(executor.BackoffFixed), string(executor.BackoffExponential):
	default:
		return fmt.Errorf("unknown backoff %q", c.Executor.Backoff)
	}
	for name := range c.Executor.Kinds {
		if !executor.Kind(name).Valid() {
			return fmt.Errorf("unknown action kind %q", name)
		}
	}
	for name, argv := range c.Bridge.Allowlist {
		if len(argv) == 0 {
			return fmt.Errorf("allowlist entry %q has empty argv", name)
		}
	}
	return nil
}

// Policy applies the executor overrides on top of
// executor.DefaultPolicy.
func (c Config) Policy() executor.Policy {
	p := executor.DefaultPolicy()
	ex := c.Executor

	if ex.Backoff != "" {
		p.Backoff = executor.Backoff(ex.Backoff)
	}
	if ex.BackoffBase > 0 {
		p.BackoffBase = time.Duration(ex.BackoffBase)
	}
	if ex.BackoffMax > 0 {
		p.BackoffMax = time.Duration(ex.BackoffMax)
	}
	if ex.PollInterval > 0 {
		p.PollInterval = time.Duration(ex.PollInterval)
	}
	p.AbortOnUnsupported = ex.AbortOnUnsupported
	p.Strict = ex.Strict

	for name, o := range ex.Kinds {
		kind := executor.Kind(name)
		kp := p.ForKind(kind)
		if o.Timeout > 0 {
			kp.Timeout = time.Duration(o.Timeout)
		}
		if o.MaxAttempts > 0 {
			kp.MaxAttempts = o.MaxAttempts
		}
		if o.Fatal != nil {
			kp.Fatal = *o.Fatal
		}
		p.Kinds[kind] = kp
	}
	return p
}
