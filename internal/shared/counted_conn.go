// FILE: internal/shared/counted_conn.go
package shared

import (
	"net"
	"sync/atomic"
)

// CountedConn 是一个 net.Conn 的包装器，用于原子地统计发送给客户端的字节数。
// The session-local counter and the process-wide counter are both updated.
type CountedConn struct {
	net.Conn
	sent  atomic.Uint64
	total *atomic.Uint64
}

// NewCountedConn wraps conn. total may be nil.
func NewCountedConn(conn net.Conn, total *atomic.Uint64) *CountedConn {
	return &CountedConn{
		Conn:  conn,
		total: total,
	}
}

// Write 将数据写入底层连接，并增加发送字节计数。
func (c *CountedConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	if n > 0 {
		c.sent.Add(uint64(n))
		if c.total != nil {
			c.total.Add(uint64(n))
		}
	}
	return n, err
}

// BytesSent returns the bytes written through this connection so far.
func (c *CountedConn) BytesSent() uint64 {
	return c.sent.Load()
}
