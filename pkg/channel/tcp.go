package channel

import (
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qsib-cbie/reader-controller/pkg/errs"
)

// TCPChannel is the TCP stream variant: no inter-frame sleep is required
// before a write, but every read is followed by a fixed settle delay to let
// the reader's Ethernet stack finish flushing.
type TCPChannel struct {
	conn net.Conn
	log  *logrus.Entry
}

// DialTCP connects to the reader's Ethernet interface at addr.
func DialTCP(addr string) (*TCPChannel, error) {
	conn, err := net.DialTimeout("tcp", addr, WriteTimeout)
	if err != nil {
		return nil, &errs.TransportError{Op: "dial " + addr, Err: err}
	}
	return &TCPChannel{
		conn: conn,
		log:  logrus.WithField("channel", "tcp").WithField("addr", addr),
	}, nil
}

// Write sends data with the shared write timeout; no pre-write delay.
func (c *TCPChannel) Write(data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout)); err != nil {
		return &errs.TransportError{Op: "set write deadline", Err: err}
	}
	if _, err := c.conn.Write(data); err != nil {
		return &errs.TransportError{Op: "write", Err: err}
	}
	return nil
}

// Read blocks up to the shared read timeout, then sleeps the post-read
// settle delay before returning.
func (c *TCPChannel) Read() ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
		return nil, &errs.TransportError{Op: "set read deadline", Err: err}
	}
	buf := make([]byte, 4096)
	n, err := c.conn.Read(buf)
	if err != nil {
		return nil, &errs.TransportError{Op: "read", Err: fmt.Errorf("%w", err)}
	}
	time.Sleep(TCPPostReadSettle)
	return buf[:n], nil
}

// Close closes the underlying TCP connection.
func (c *TCPChannel) Close() error {
	return c.conn.Close()
}
