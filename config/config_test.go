package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DamienLove/browser-automation/executor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
browser:
  executablePath: /usr/bin/chromium
  port: 9333
  headless: true
executor:
  strict: true
  backoff: fixed
  backoffBase: 50ms
  kinds:
    navigate:
      timeout: 5s
      maxAttempts: 3
    click:
      fatal: true
bridge:
  allowlist:
    notify: ["notify-send", "automation"]
planner:
  searchEngine: "https://duckduckgo.com/?q={query}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/usr/bin/chromium", cfg.Browser.ExecutablePath)
	assert.Equal(t, 9333, cfg.Browser.Port)
	require.NotNil(t, cfg.Browser.Headless)
	assert.True(t, *cfg.Browser.Headless)
	assert.Equal(t, []string{"notify-send", "automation"}, cfg.Bridge.Allowlist["notify"])
	assert.Equal(t, "https://duckduckgo.com/?q={query}", cfg.Planner.SearchEngine)

	p := cfg.Policy()
	assert.True(t, p.Strict)
	assert.Equal(t, executor.BackoffFixed, p.Backoff)
	assert.Equal(t, 50*time.Millisecond, p.BackoffBase)

	nav := p.ForKind(executor.KindNavigate)
	assert.Equal(t, 5*time.Second, nav.Timeout)
	assert.Equal(t, 3, nav.MaxAttempts)
	assert.True(t, nav.Fatal, "fatal default survives override")

	click := p.ForKind(executor.KindClick)
	assert.True(t, click.Fatal)
	assert.Equal(t, 10*time.Second, click.Timeout, "unset fields keep defaults")
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "bad_yaml",
			body:    "browser: [",
			wantErr: "parsing config",
		},
		{
			name:    "unknown_kind",
			body:    "executor:\n  kinds:\n    teleport:\n      timeout: 1s\n",
			wantErr: `unknown action kind "teleport"`,
		},
		{
			name:    "unknown_backoff",
			body:    "executor:\n  backoff: fibonacci\n",
			wantErr: `unknown backoff "fibonacci"`,
		},
		{
			name:    "empty_allowlist_argv",
			body:    "bridge:\n  allowlist:\n    notify: []\n",
			wantErr: `allowlist entry "notify" has empty argv`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}

func TestDefaultPolicyUntouched(t *testing.T) {
	t.Parallel()

	p := Default().Policy()
	assert.Equal(t, executor.DefaultPolicy(), p)
}
