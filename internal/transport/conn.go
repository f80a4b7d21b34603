package transport

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
)

// Conn is an established single-peer byte stream.
type Conn interface {
	// ReadExactly blocks until n bytes arrive. A peer that closed before
	// sending anything yields io.EOF; a partial read yields
	// io.ErrUnexpectedEOF.
	ReadExactly(n int) ([]byte, error)
	Write(p []byte) (int, error)
	Flush() error
	// Close is idempotent. Pending and later I/O fails with ErrClosed.
	Close() error
	Peer() Peer
}

// Peer describes the process on the other end, when the platform knows.
type Peer struct {
	PID   int32
	UID   uint32
	Known bool
}

type streamConn struct {
	raw     net.Conn
	r       *bufio.Reader
	w       *bufio.Writer
	peer    Peer
	release func()

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newStreamConn(raw net.Conn, release func()) *streamConn {
	c := &streamConn{
		raw:     raw,
		r:       bufio.NewReader(raw),
		w:       bufio.NewWriter(raw),
		release: release,
	}
	if uc, ok := raw.(*net.UnixConn); ok {
		c.peer = peerOf(uc)
	}
	return c
}

func (c *streamConn) ReadExactly(n int) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, c.mapErr(err)
	}
	return buf, nil
}

func (c *streamConn) Write(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	n, err := c.w.Write(p)
	return n, c.mapErr(err)
}

func (c *streamConn) Flush() error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.mapErr(c.w.Flush())
}

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.raw.Close()
		if c.release != nil {
			c.release()
		}
	})
	return c.closeErr
}

func (c *streamConn) Peer() Peer { return c.peer }

func (c *streamConn) mapErr(err error) error {
	if err == nil {
		return nil
	}
	if c.closed.Load() || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return ErrClosed
	}
	return err
}

// Pipe returns two connected in-memory endpoints.
func Pipe() (Conn, Conn) {
	a, b := net.Pipe()
	return newStreamConn(a, nil), newStreamConn(b, nil)
}
