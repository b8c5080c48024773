// Package netio adapts real transports to crawler.Conn: a raw TCP
// connection (poll emulated via a deadline-bounded read probe, since
// net.Conn has no poll(2) equivalent) and a websocket connection (grounded
// on the gorilla/websocket hub pattern).
package netio

import (
	"errors"
	"net"
	"time"
)

// TCPConn adapts a net.Conn to crawler.Conn.
type TCPConn struct {
	conn       net.Conn
	release    func(net.Conn)
	writeTimeo time.Duration
}

// NewTCPConn wraps conn. release, if non-nil, is called by Release instead
// of closing the connection outright (e.g. to return it to a listener's
// keep-alive pool); if nil, Release closes the connection.
func NewTCPConn(conn net.Conn, writeTimeout time.Duration, release func(net.Conn)) *TCPConn {
	return &TCPConn{conn: conn, release: release, writeTimeo: writeTimeout}
}

func (c *TCPConn) Write(p []byte) (int, error) {
	if c.writeTimeo > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeo))
	}
	return c.conn.Write(p)
}

// Poll emulates lru_crawler_write's non-blocking writability check. Go's
// net.Conn has no portable poll(2) equivalent, so Poll instead attempts a
// 1ms deadline-bounded zero-byte read: a timeout means the peer is idle
// and the connection is presumed still writable (Write's own deadline is
// what actually bounds blocking time); any other read error means the
// peer closed or broke the connection.
func (c *TCPConn) Poll(timeout time.Duration) (writable bool, closed bool, err error) {
	one := make([]byte, 1)
	c.conn.SetReadDeadline(time.Now().Add(1 * time.Millisecond))
	_, rerr := c.conn.Read(one)
	c.conn.SetReadDeadline(time.Time{})

	if rerr == nil {
		// Peer sent data we didn't expect on this leg; treat the
		// connection as still writable, the data is simply dropped.
		return true, false, nil
	}
	var ne net.Error
	if errors.As(rerr, &ne) && ne.Timeout() {
		return true, false, nil
	}
	return false, true, rerr
}

func (c *TCPConn) Close() error {
	return c.conn.Close()
}

func (c *TCPConn) Release() {
	if c.release != nil {
		c.release(c.conn)
		return
	}
	c.conn.Close()
}
