package netio

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPConnWriteAndPoll(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := NewTCPConn(server, time.Second, nil)

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 5)
		n, err := client.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(buf[:n]))
		close(done)
	}()

	n, err := conn.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	<-done

	writable, closed, err := conn.Poll(10 * time.Millisecond)
	assert.True(t, writable)
	assert.False(t, closed)
	assert.NoError(t, err)
}

func TestTCPConnReleaseUsesCallback(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	var released net.Conn
	conn := NewTCPConn(server, 0, func(c net.Conn) { released = c })
	conn.Release()

	assert.Equal(t, server, released)
}

func TestTCPConnReleaseClosesWithoutCallback(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	conn := NewTCPConn(server, 0, nil)
	conn.Release()

	_, err := server.Write([]byte("x"))
	assert.Error(t, err, "write after Release (no callback) must fail: connection closed")
}
