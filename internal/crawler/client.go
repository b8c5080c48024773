package crawler

import "time"

// MinBufSpace is the free space reserved in the client buffer for one
// record: the scheduler flushes when less than this is free, and the dump
// modules call EnsureSpace(MinBufSpace) before each Append (spec §4.2's
// LRU_CRAWLER_MINBUFSPACE). The buffer itself grows by doubling.
const MinBufSpace = 8192

// initialBufferMultiplier sizes the client buffer's first allocation as a
// multiple of MinBufSpace, matching lru_crawler_set_client.
const initialBufferMultiplier = 16

// flushPollTimeout is how long a single flush attempt waits for the
// connection to become writable before giving up for this pass (spec
// §4.2's one-second poll).
const flushPollTimeout = time.Second

// Conn is a non-blocking, poll-driven connection a Client writes into.
// Implementations live in internal/netio (raw TCP, websocket, ...).
type Conn interface {
	Write(p []byte) (int, error)
	// Poll waits up to timeout for the connection to become writable, or
	// returns early with closed=true if the peer hung up or the
	// connection became otherwise unusable. Bytes the peer sends are not
	// treated as incoming data and do not by themselves report closed.
	Poll(timeout time.Duration) (writable bool, closed bool, err error)
	// Close tears the connection down. Never re-dispatches it.
	Close() error
	// Release returns the connection to its owning worker fleet instead
	// of closing it outright.
	Release()
}

// Client is the Output Client of spec §4.2 (C2): a heap buffer over a
// possibly-slow, non-blocking socket, grown by doubling and drained by a
// poll-guarded write loop.
type Client struct {
	conn   Conn
	buf    []byte
	used   int
	closed bool
}

// OpenClient attaches conn and allocates the initial buffer.
func OpenClient(conn Conn) *Client {
	return &Client{
		conn: conn,
		buf:  make([]byte, initialBufferMultiplier*MinBufSpace),
	}
}

// Free reports how much unused buffer space remains.
func (c *Client) Free() int {
	return len(c.buf) - c.used
}

// EnsureSpace doubles the buffer until at least n bytes are free for a
// following Append; it never shrinks the buffer.
func (c *Client) EnsureSpace(n int) {
	for c.Free() < n {
		grown := make([]byte, len(c.buf)*2)
		copy(grown, c.buf[:c.used])
		c.buf = grown
	}
}

// Append copies p into the tail of the buffer. Callers must have already
// called EnsureSpace for at least len(p) bytes.
func (c *Client) Append(p []byte) {
	c.used += copy(c.buf[c.used:], p)
}

// Used reports how many bytes are buffered and unflushed.
func (c *Client) Used() int { return c.used }

// Flush drives the poll-guarded write loop of spec §4.2. Return values:
//
//	0  - fully drained (Used() == 0 afterward), or a poll timeout left the
//	     buffer still partially full (caller retries later)
//	-1 - the client was closed (poll error, peer hangup, or write error)
func (c *Client) Flush() int {
	if c.closed {
		return -1
	}
	if c.used == 0 {
		return 0
	}

	sent := 0
	for sent < c.used {
		writable, closed, err := c.conn.Poll(flushPollTimeout)
		if err != nil || closed {
			c.closeNoRelease()
			return -1
		}
		if !writable {
			// Timeout: shift the unsent remainder to the front and leave
			// the rest for the next pass.
			c.used = copy(c.buf, c.buf[sent:c.used])
			return 0
		}

		n, werr := c.conn.Write(c.buf[sent:c.used])
		if n > 0 {
			sent += n
		}
		if werr != nil {
			if isTransientWriteErr(werr) {
				continue
			}
			c.closeNoRelease()
			return -1
		}
		if n == 0 {
			c.closeNoRelease()
			return -1
		}
	}

	c.used = 0
	return 0
}

// isTransientWriteErr reports whether werr represents a would-block
// condition rather than a genuine write failure: an error whose
// Temporary() method reports true. The netio adapters return their
// transport's errors unchanged, so a net.Conn write-deadline timeout
// counts as transient.
func isTransientWriteErr(err error) bool {
	type temporary interface{ Temporary() bool }
	if t, ok := err.(temporary); ok {
		return t.Temporary()
	}
	return false
}

func (c *Client) closeNoRelease() {
	if c.closed {
		return
	}
	c.closed = true
	c.conn.Close()
	c.conn = nil
}

// Close tears down the client without re-dispatching its connection.
func (c *Client) Close() {
	if c.closed {
		return
	}
	c.closed = true
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Release returns the connection to its worker fleet. Idempotent.
func (c *Client) Release() {
	if c.closed {
		return
	}
	c.closed = true
	if c.conn != nil {
		c.conn.Release()
		c.conn = nil
	}
}

// Closed reports whether the client has been torn down (either via Close
// or Release, or by Flush observing a dead connection).
func (c *Client) Closed() bool { return c.closed }
