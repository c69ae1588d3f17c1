// Package browser discovers and attaches to browser targets through
// the remote debugging endpoint's JSON HTTP surface.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/DamienLove/browser-automation/cdp"
	"github.com/DamienLove/browser-automation/log"
)

const httpRequestTimeout = 5 * time.Second

// Manager discovers targets and owns their session attachments. A
// target has at most one attached session at any time; attaching twice
// without detaching first fails rather than silently replacing the
// existing attachment.
type Manager struct {
	ctx    context.Context
	host   string
	port   int
	client *http.Client
	logger *log.Logger

	mu       sync.Mutex
	attached map[string]*cdp.Client
}

// NewManager returns a Manager speaking to the debugging endpoint at
// host:port.
func NewManager(ctx context.Context, host string, port int, logger *log.Logger) *Manager {
	return &Manager{
		ctx:      ctx,
		host:     host,
		port:     port,
		client:   &http.Client{Timeout: httpRequestTimeout},
		logger:   logger,
		attached: make(map[string]*cdp.Client),
	}
}

// ListTargets returns the targets currently known to the browser.
func (m *Manager) ListTargets(ctx context.Context) ([]Target, error) {
	body, err := m.request(ctx, http.MethodGet, "/json/list")
	if err != nil {
		return nil, err
	}
	var targets []Target
	if err := json.Unmarshal(body, &targets); err != nil {
		return nil, fmt.Errorf("decoding target list: %w", err)
	}
	return targets, nil
}

// OpenTarget opens a new tab at url and returns its target.
func (m *Manager) OpenTarget(ctx context.Context, pageURL string) (Target, error) {
	path := "/json/new?" + url.Values{"url": {pageURL}}.Encode()
	body, err := m.request(ctx, http.MethodPut, path)
	if err != nil {
		return Target{}, err
	}
	var t Target
	if err := json.Unmarshal(body, &t); err != nil {
		return Target{}, fmt.Errorf("decoding new target: %w", err)
	}
	m.logger.Debugf("Manager:OpenTarget", "tid:%v url:%q", t.ID, pageURL)
	return t, nil
}

// ActivateTarget brings the target's tab to the foreground.
func (m *Manager) ActivateTarget(ctx context.Context, targetID string) error {
	_, err := m.request(ctx, http.MethodGet, "/json/activate/"+targetID)
	return err
}

// CloseTarget asks the browser to close the target's tab. Any attached
// session is detached first.
func (m *Manager) CloseTarget(ctx context.Context, targetID string) error {
	m.Detach(targetID)
	_, err := m.request(ctx, http.MethodGet, "/json/close/"+targetID)
	return err
}

// Attach opens a session bound to the given target. Fails with an
// AttachError if the target does not exist or is already attached.
func (m *Manager) Attach(ctx context.Context, targetID string) (*cdp.Client, error) {
	m.mu.Lock()
	if _, ok := m.attached[targetID]; ok {
		m.mu.Unlock()
		return nil, &AttachError{TargetID: targetID, Err: ErrAlreadyAttached}
	}
	m.mu.Unlock()

	targets, err := m.ListTargets(ctx)
	if err != nil {
		return nil, &AttachError{TargetID: targetID, Err: err}
	}

	var target *Target
	for i := range targets {
		if targets[i].ID == targetID {
			target = &targets[i]
			break
		}
	}
	if target == nil {
		return nil, &AttachError{TargetID: targetID, Err: ErrTargetNotFound}
	}
	if target.WebSocketDebuggerURL == "" {
		// Another debugging client holds the target's ws endpoint.
		return nil, &AttachError{TargetID: targetID, Err: ErrAlreadyAttached}
	}

	session := cdp.NewClient(m.ctx, m.logger)
	if err := session.Connect(target.WebSocketDebuggerURL); err != nil {
		return nil, &AttachError{TargetID: targetID, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attached[targetID]; ok {
		// Lost the race with a concurrent Attach for the same target.
		session.Close()
		return nil, &AttachError{TargetID: targetID, Err: ErrAlreadyAttached}
	}
	m.attached[targetID] = session
	m.logger.Debugf("Manager:Attach", "tid:%v wsURL:%q", targetID, target.WebSocketDebuggerURL)

	return session, nil
}

// Detach closes the target's session and releases it. Idempotent.
func (m *Manager) Detach(targetID string) {
	m.mu.Lock()
	session, ok := m.attached[targetID]
	delete(m.attached, targetID)
	m.mu.Unlock()

	if ok {
		m.logger.Debugf("Manager:Detach", "tid:%v", targetID)
		session.Close()
	}
}

// Close detaches every attached session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*cdp.Client, 0, len(m.attached))
	for tid, session := range m.attached {
		sessions = append(sessions, session)
		delete(m.attached, tid)
	}
	m.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}

func (m *Manager) request(ctx context.Context, method, path string) ([]byte, error) {
	endpoint := fmt.Sprintf("http://%s:%d%s", m.host, m.port, path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %q: %w", endpoint, err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", cdp.ErrConnectionFailed, endpoint, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %q: %w", endpoint, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("debugging endpoint %q returned %s", endpoint, resp.Status)
	}
	return body, nil
}
