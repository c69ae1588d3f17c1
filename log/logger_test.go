package log

import (
	"bytes"
	"regexp"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(filter *regexp.Regexp) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	ll := logrus.New()
	ll.SetOutput(&buf)
	ll.SetLevel(logrus.DebugLevel)
	return New(ll, filter), &buf
}

func TestLoggerCategoryFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filter   string
		category string
		logged   bool
	}{
		{name: "no_filter", category: "Client:Send", logged: true},
		{name: "match", filter: "^Client", category: "Client:Send", logged: true},
		{name: "no_match", filter: "^Client", category: "Manager:Attach", logged: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var filter *regexp.Regexp
			if tt.filter != "" {
				filter = regexp.MustCompile(tt.filter)
			}
			l, buf := newTestLogger(filter)
			l.Debugf(tt.category, "hello %s", "world")

			if tt.logged {
				assert.Contains(t, buf.String(), "hello world")
				assert.Contains(t, buf.String(), tt.category)
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestLoggerSetLevel(t *testing.T) {
	t.Parallel()

	l, buf := newTestLogger(nil)
	require.NoError(t, l.SetLevel("warn"))
	assert.False(t, l.DebugMode())

	l.Debugf("Client:Send", "should be dropped")
	assert.Empty(t, buf.String())

	l.Warnf("Client:Send", "should be logged")
	assert.Contains(t, buf.String(), "should be logged")

	assert.Error(t, l.SetLevel("nonsense"))
}

func TestNullLoggerDiscards(t *testing.T) {
	t.Parallel()

	l := NullLogger()
	// Must not panic and must stay silent.
	l.Errorf("Client:Send", "dropped %d", 1)
}
