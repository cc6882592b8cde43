package stream

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the orchestrator's view of a client connection.
type Conn interface {
	ID() string
	// Send writes v as a JSON text frame. Concurrent calls are serialized.
	Send(v any) error
	// Close sends a close frame with code and reason. Only the first call
	// has any effect.
	Close(code int, reason string) error
	IsOpen() bool
}

var ErrConnClosed = errors.New("connection closed")

const (
	writeWait  = 10 * time.Second
	closeGrace = 2 * time.Second
)

// wsConn adapts a gorilla connection. The read loop owns the underlying
// socket and closes it when reading stops; Close only performs the closing
// handshake.
type wsConn struct {
	id string
	ws *websocket.Conn

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

func newWSConn(id string, ws *websocket.Conn) *wsConn {
	return &wsConn{id: id, ws: ws}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) IsOpen() bool { return !c.closed.Load() }

func (c *wsConn) Send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrConnClosed
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c *wsConn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()

		wasOpen := !c.closed.Swap(true)
		if wasOpen {
			err = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		}
		// Wake the read loop if the peer never answers the close frame.
		c.ws.SetReadDeadline(time.Now().Add(closeGrace))
	})
	return err
}

// markClosed records that the peer or the network ended the connection.
func (c *wsConn) markClosed() {
	c.closed.Store(true)
}
