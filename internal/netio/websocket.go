package netio

import (
	"time"

	"github.com/gorilla/websocket"
)

// WSConn adapts a gorilla/websocket connection to crawler.Conn so a dump
// scan (metadump/mgdump) can stream straight to a browser client, the way
// DAGStreamer pushes JSON events to its registered clients.
type WSConn struct {
	conn       *websocket.Conn
	writeTimeo time.Duration
}

func NewWSConn(conn *websocket.Conn, writeTimeout time.Duration) *WSConn {
	return &WSConn{conn: conn, writeTimeo: writeTimeout}
}

func (c *WSConn) Write(p []byte) (int, error) {
	if c.writeTimeo > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeo))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Poll always reports writable: gorilla/websocket's WriteMessage already
// blocks only up to the deadline set on each Write, so there is nothing
// further to probe here.
func (c *WSConn) Poll(timeout time.Duration) (writable bool, closed bool, err error) {
	return true, false, nil
}

func (c *WSConn) Close() error {
	return c.conn.Close()
}

func (c *WSConn) Release() {
	c.conn.Close()
}
