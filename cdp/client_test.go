package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DamienLove/browser-automation/log"

	"github.com/chromedp/cdproto"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBrowser is a WebSocket server that stands in for a browser's
// debugging endpoint. The handler decides which frames, if any, to send
// back for each received command.
type fakeBrowser struct {
	t       *testing.T
	srv     *httptest.Server
	handler func(msg *cdproto.Message) []*cdproto.Message

	mu   sync.Mutex
	conn *websocket.Conn
}

func newFakeBrowser(t *testing.T, handler func(msg *cdproto.Message) []*cdproto.Message) *fakeBrowser {
	t.Helper()

	fb := &fakeBrowser{t: t, handler: handler}
	fb.srv = httptest.NewServer(http.HandlerFunc(fb.serve))
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBrowser) serve(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		fb.t.Errorf("upgrading fake browser connection: %v", err)
		return
	}
	fb.mu.Lock()
	fb.conn = conn
	fb.mu.Unlock()

	for {
		_, buf, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg cdproto.Message
		if err := easyjson.Unmarshal(buf, &msg); err != nil {
			fb.t.Errorf("decoding fake browser frame: %v", err)
			return
		}
		for _, resp := range fb.handler(&msg) {
			fb.send(resp)
		}
	}
}

func (fb *fakeBrowser) send(msg *cdproto.Message) {
	buf, err := easyjson.Marshal(msg)
	if err != nil {
		fb.t.Errorf("encoding fake browser frame: %v", err)
		return
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.conn == nil {
		return
	}
	_ = fb.conn.WriteMessage(websocket.TextMessage, buf)
}

func (fb *fakeBrowser) closeConn() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.conn != nil {
		_ = fb.conn.Close()
	}
}

func (fb *fakeBrowser) wsURL() string {
	return "ws" + strings.TrimPrefix(fb.srv.URL, "http")
}

func echoResult(msg *cdproto.Message) []*cdproto.Message {
	res, _ := json.Marshal(map[string]interface{}{"method": string(msg.Method)})
	return []*cdproto.Message{{ID: msg.ID, Result: res}}
}

func connectedClient(t *testing.T, fb *fakeBrowser) *Client {
	t.Helper()

	c := NewClient(context.Background(), log.NullLogger())
	require.NoError(t, c.Connect(fb.wsURL()))
	t.Cleanup(c.Close)
	return c
}

func TestClientConnectFailure(t *testing.T) {
	t.Parallel()

	c := NewClient(context.Background(), log.NullLogger())
	err := c.Connect("ws://127.0.0.1:1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestClientSendCorrelation(t *testing.T) {
	t.Parallel()

	// Delay every odd-id response so responses arrive out of order
	// relative to the requests.
	fb := newFakeBrowser(t, func(msg *cdproto.Message) []*cdproto.Message {
		if msg.ID%2 == 1 {
			time.Sleep(20 * time.Millisecond)
		}
		return echoResult(msg)
	})
	c := connectedClient(t, fb)

	const callers = 10
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			method := fmt.Sprintf("Test.command%d", i)
			res, err := c.Send(context.Background(), method, nil)
			if !assert.NoError(t, err) {
				return
			}
			var got struct {
				Method string `json:"method"`
			}
			require.NoError(t, json.Unmarshal(res, &got))
			// Each caller must resolve with the response to its own
			// request, never a concurrent one.
			assert.Equal(t, method, got.Method)
		}(i)
	}
	wg.Wait()
}

func TestClientSendProtocolError(t *testing.T) {
	t.Parallel()

	fb := newFakeBrowser(t, func(msg *cdproto.Message) []*cdproto.Message {
		return []*cdproto.Message{{
			ID:    msg.ID,
			Error: &cdproto.Error{Code: -32000, Message: "Cannot navigate to invalid URL"},
		}}
	})
	c := connectedClient(t, fb)

	_, err := c.Send(context.Background(), "Page.navigate", nil)
	require.Error(t, err)

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, int64(-32000), perr.Code)
	assert.Contains(t, perr.Message, "invalid URL")
}

func TestClientSendTimeoutDropsPending(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		withheld []*cdproto.Message
	)
	fb := newFakeBrowser(t, func(msg *cdproto.Message) []*cdproto.Message {
		if msg.Method == "Test.slow" {
			mu.Lock()
			withheld = append(withheld, &cdproto.Message{ID: msg.ID, Result: []byte(`{"late":true}`)})
			mu.Unlock()
			return nil
		}
		return echoResult(msg)
	})
	c := connectedClient(t, fb)

	const timeout = 100 * time.Millisecond
	start := time.Now()
	_, err := c.SendWithTimeout(context.Background(), "Test.slow", nil, timeout)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), timeout+2*time.Second)

	// Deliver the late response: it is now an orphan and must not reach
	// any caller, in particular not the next Send below.
	mu.Lock()
	for _, msg := range withheld {
		fb.send(msg)
	}
	mu.Unlock()

	res, err := c.Send(context.Background(), "Test.fast", nil)
	require.NoError(t, err)
	var got struct {
		Method string `json:"method"`
		Late   bool   `json:"late"`
	}
	require.NoError(t, json.Unmarshal(res, &got))
	assert.Equal(t, "Test.fast", got.Method)
	assert.False(t, got.Late)
}

func TestClientCloseResolvesPending(t *testing.T) {
	t.Parallel()

	fb := newFakeBrowser(t, func(msg *cdproto.Message) []*cdproto.Message {
		return nil // never respond
	})
	c := connectedClient(t, fb)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), "Test.hang", nil)
		errCh <- err
	}()

	// Give the send a moment to become pending.
	time.Sleep(50 * time.Millisecond)
	c.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrConnectionLost)
	case <-time.After(2 * time.Second):
		t.Fatal("pending send was not resolved by Close")
	}

	// Closed sessions reject new sends.
	_, err := c.Send(context.Background(), "Test.after", nil)
	assert.ErrorIs(t, err, ErrConnectionClosed)

	// Close is idempotent.
	c.Close()
}

func TestClientServerDisconnectResolvesPending(t *testing.T) {
	t.Parallel()

	fb := newFakeBrowser(t, func(msg *cdproto.Message) []*cdproto.Message {
		return nil
	})
	c := connectedClient(t, fb)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), "Test.hang", nil)
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	fb.closeConn()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrConnectionLost)
	case <-time.After(2 * time.Second):
		t.Fatal("pending send was not resolved by the lost connection")
	}
}

func TestClientSendContextCancel(t *testing.T) {
	t.Parallel()

	fb := newFakeBrowser(t, func(msg *cdproto.Message) []*cdproto.Message {
		return nil
	})
	c := connectedClient(t, fb)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := c.Send(ctx, "Test.hang", nil)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestClientSubscribeReceivesEvents(t *testing.T) {
	t.Parallel()

	fb := newFakeBrowser(t, func(msg *cdproto.Message) []*cdproto.Message {
		// Respond, then emit two events in order.
		frames := echoResult(msg)
		frames = append(frames,
			&cdproto.Message{Method: "Page.frameStartedLoading", Params: []byte(`{"n":1}`)},
			&cdproto.Message{Method: "Page.loadEventFired", Params: []byte(`{"n":2}`)},
		)
		return frames
	})
	c := connectedClient(t, fb)

	events, cancel := c.Subscribe("Page.frameStartedLoading", "Page.loadEventFired")
	defer cancel()

	_, err := c.Send(context.Background(), "Page.navigate", nil)
	require.NoError(t, err)

	want := []cdproto.MethodType{"Page.frameStartedLoading", "Page.loadEventFired"}
	for _, name := range want {
		select {
		case evt := <-events:
			assert.Equal(t, name, evt.Name)
			assert.False(t, evt.Overflow)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %q", name)
		}
	}
}
