// Package cdp implements the protocol session to a browser's remote
// debugging endpoint: one persistent WebSocket connection, correlated
// request/response traffic and event fan-out to subscribers.
package cdp

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DamienLove/browser-automation/log"

	"github.com/chromedp/cdproto"
	"github.com/mailru/easyjson"
)

// DefaultTimeout bounds a Send call that does not override it.
const DefaultTimeout = 30 * time.Second

// Client is a protocol session. Multiple goroutines may issue Send
// calls concurrently; each is resolved independently and exactly once.
// A single reader goroutine routes responses to the pending caller
// registered under the message id and fans events out to subscribers.
type Client struct {
	ctx    context.Context
	logger *log.Logger

	conn  *connection
	wsURL string

	msgID     int64
	pendingMu sync.Mutex
	pending   map[int64]chan *cdproto.Message

	watcher *eventWatcher

	closeOnce sync.Once
	closed    int32
	done      chan struct{}
}

// NewClient returns a Client that is unusable until Connect establishes
// the session.
func NewClient(ctx context.Context, logger *log.Logger) *Client {
	return &Client{
		ctx:     ctx,
		logger:  logger,
		pending: make(map[int64]chan *cdproto.Message),
		watcher: newEventWatcher(logger),
		done:    make(chan struct{}),
	}
}

// Connect dials the browser's debugging endpoint at wsURL and starts
// the reader loop.
func (c *Client) Connect(wsURL string) error {
	conn, err := newConnection(c.ctx, wsURL, c.logger)
	if err != nil {
		return err
	}
	c.conn = conn
	c.wsURL = wsURL
	c.logger.Infof("Client:Connect", "established CDP session to %q", wsURL)

	go c.readLoop()

	return nil
}

// URL returns the endpoint this session is connected to.
func (c *Client) URL() string { return c.wsURL }

// Send issues a command and blocks until the matching response arrives,
// DefaultTimeout elapses, ctx is done or the session closes.
func (c *Client) Send(ctx context.Context, method string, params easyjson.RawMessage) (easyjson.RawMessage, error) {
	return c.SendWithTimeout(ctx, method, params, DefaultTimeout)
}

// SendWithTimeout is Send with a per-call timeout. On expiry the
// pending entry is removed before ErrTimeout is returned, so a late
// response for the same id is dropped as an orphan.
func (c *Client) SendWithTimeout(
	ctx context.Context, method string, params easyjson.RawMessage, timeout time.Duration,
) (easyjson.RawMessage, error) {
	if atomic.LoadInt32(&c.closed) == 1 {
		return nil, ErrConnectionClosed
	}

	id := atomic.AddInt64(&c.msgID, 1)
	respCh := make(chan *cdproto.Message, 1)

	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	msg := &cdproto.Message{
		ID:     id,
		Method: cdproto.MethodType(method),
		Params: params,
	}
	c.logger.Debugf("Client:Send", "id:%d method:%q", id, method)

	if err := c.conn.writeMessage(msg); err != nil {
		c.removePending(id)
		if atomic.LoadInt32(&c.closed) == 1 {
			return nil, ErrConnectionClosed
		}
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, &ProtocolError{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		return resp.Result, nil
	case <-timer.C:
		c.removePending(id)
		c.logger.Debugf("Client:Send", "id:%d method:%q timed out after %s", id, method, timeout)
		return nil, ErrTimeout
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrConnectionLost
	}
}

// Subscribe registers interest in the named events. Events are
// delivered in wire-arrival order through a bounded queue; when the
// queue overflows, the oldest queued event is dropped and the next
// delivered one carries the overflow marker. The returned cancel
// function unsubscribes and closes the channel.
func (c *Client) Subscribe(events ...cdproto.MethodType) (<-chan Event, func()) {
	return c.watcher.subscribe(events...)
}

// Close shuts the session down. It is idempotent: the first call
// resolves every pending send with ErrConnectionLost, closes subscriber
// channels and stops the reader; later calls are no-ops. After Close
// every new send fails with ErrConnectionClosed.
func (c *Client) Close() {
	c.close(false)
}

func (c *Client) close(lost bool) {
	c.closeOnce.Do(func() {
		atomic.StoreInt32(&c.closed, 1)
		c.logger.Debugf("Client:Close", "wsURL:%q lost:%t", c.wsURL, lost)

		// Waking pending callers through the done channel resolves each
		// exactly once; the map entries go away with the session.
		c.pendingMu.Lock()
		c.pending = make(map[int64]chan *cdproto.Message)
		c.pendingMu.Unlock()
		close(c.done)

		c.watcher.closeAll()
		if c.conn != nil {
			_ = c.conn.close()
		}
	})
}

// Done is closed when the session is no longer usable.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) removePending(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// readLoop is the single reader of the connection. Each frame is either
// a response (carries the id of the originating request) or an
// unsolicited event (carries a method name, no id). Unmatched ids are
// protocol anomalies: logged and dropped, never fatal.
func (c *Client) readLoop() {
	for {
		msg, err := c.conn.readMessage()
		if err != nil {
			if atomic.LoadInt32(&c.closed) == 0 {
				c.logger.Warnf("Client:readLoop", "wsURL:%q read failed: %v", c.wsURL, err)
				c.close(true)
			}
			return
		}

		switch {
		case msg.Method != "":
			c.watcher.notify(Event{Name: msg.Method, Params: msg.Params})
		case msg.ID > 0:
			c.pendingMu.Lock()
			respCh, ok := c.pending[msg.ID]
			if ok {
				delete(c.pending, msg.ID)
			}
			c.pendingMu.Unlock()
			if !ok {
				c.logger.Debugf("Client:readLoop", "dropping orphaned response id:%d", msg.ID)
				continue
			}
			// Buffered, exactly one waiter: never blocks.
			respCh <- msg
		default:
			c.logger.Warnf("Client:readLoop", "malformed frame without id or method")
		}
	}
}
