package cdp

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/DamienLove/browser-automation/log"

	"github.com/chromedp/cdproto"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jwriter"
	"github.com/oxtoacart/bpool"
)

const wsHandshakeTimeout = 10 * time.Second

// connection wraps the WebSocket transport to the browser's debugging
// endpoint. Writes are serialized by a mutex so frames are never
// interleaved mid-write; reads happen only from the client's single
// reader goroutine.
type connection struct {
	ws     *websocket.Conn
	logger *log.Logger

	writeMu  sync.Mutex
	writeBuf *bpool.BufferPool
}

func newConnection(ctx context.Context, wsURL string, logger *log.Logger) (*connection, error) {
	wd := websocket.Dialer{
		HandshakeTimeout: wsHandshakeTimeout,
		ReadBufferSize:   1 << 20,
		WriteBufferSize:  1 << 20,
		Proxy:            http.ProxyFromEnvironment,
	}
	ws, _, err := wd.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnectionFailed, wsURL, err)
	}
	return &connection{
		ws:       ws,
		logger:   logger,
		writeBuf: bpool.NewBufferPool(16),
	}, nil
}

// readMessage decodes the next inbound frame. Must only be called from
// the reader loop.
func (c *connection) readMessage() (*cdproto.Message, error) {
	_, buf, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	var msg cdproto.Message
	if err := easyjson.Unmarshal(buf, &msg); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}
	return &msg, nil
}

// writeMessage encodes and writes a frame. Safe for concurrent use.
func (c *connection) writeMessage(msg *cdproto.Message) error {
	var jw jwriter.Writer
	msg.MarshalEasyJSON(&jw)
	if err := jw.Error; err != nil {
		return fmt.Errorf("encoding message %d: %w", msg.ID, err)
	}

	buf := c.writeBuf.Get()
	defer c.writeBuf.Put(buf)
	if _, err := jw.DumpTo(buf); err != nil {
		return fmt.Errorf("encoding message %d: %w", msg.ID, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	w, err := c.ws.NextWriter(websocket.TextMessage)
	if err != nil {
		return fmt.Errorf("writing message %d: %w", msg.ID, err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing message %d: %w", msg.ID, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("writing message %d: %w", msg.ID, err)
	}
	return nil
}

func (c *connection) close() error {
	return c.ws.Close()
}
