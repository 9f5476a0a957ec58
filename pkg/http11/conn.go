//go:build linux

package http11

import (
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/MgJun-ux/MyWebServer/pkg/buffer"
	"github.com/MgJun-ux/MyWebServer/pkg/logger"
)

// UserCount tracks live connections process-wide. It mirrors the size
// of the reactor's connection map.
var UserCount atomic.Int64

// writevThreshold keeps the level-triggered write loop going while a
// large body is still queued, instead of bouncing through the poller
// for every few packets.
const writevThreshold = 10240

// Conn is the per-connection state: the socket, its two buffers, the
// request parser and response builder, and the scatter-write vector
// [response head, mapped file]. A Conn is mutated only by the single
// task currently running for its fd.
type Conn struct {
	fd         int
	remoteAddr string

	closed atomic.Bool

	readBuf  *buffer.Buffer
	writeBuf *buffer.Buffer

	req  Request
	resp Response

	iov0 []byte // unsent slice of writeBuf
	iov1 []byte // unsent slice of the file mapping

	isET   bool
	srcDir string
}

// NewConn returns an unopened connection configured for a resource
// root and trigger mode. verify is handed to the request parser.
func NewConn(srcDir string, isET bool, verify UserVerifier) *Conn {
	c := &Conn{
		readBuf:  buffer.New(),
		writeBuf: buffer.New(),
		isET:     isET,
		srcDir:   srcDir,
	}
	c.closed.Store(true)
	c.req.Verify = verify
	return c
}

// Init takes ownership of an accepted socket.
func (c *Conn) Init(fd int, remoteAddr string) {
	c.fd = fd
	c.remoteAddr = remoteAddr
	c.readBuf.RetrieveAll()
	c.writeBuf.RetrieveAll()
	c.req.Reset()
	c.iov0, c.iov1 = nil, nil
	c.closed.Store(false)
	UserCount.Add(1)
	logger.Infof("client[%d](%s) in, userCount: %d", fd, remoteAddr, UserCount.Load())
}

// Fd returns the owned socket.
func (c *Conn) Fd() int { return c.fd }

// RemoteAddr returns the peer address recorded at accept.
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

// IsClosed reports whether Close already ran.
func (c *Conn) IsClosed() bool { return c.closed.Load() }

// Close releases the file mapping and the socket. Idempotent: the
// timer callback and a worker task may both reach it.
func (c *Conn) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.resp.UnmapFile()
	unix.Close(c.fd)
	UserCount.Add(-1)
	logger.Infof("client[%d](%s) quit, userCount: %d", c.fd, c.remoteAddr, UserCount.Load())
}

// Read fills the read buffer from the socket: once in level-triggered
// mode, until EAGAIN in edge-triggered mode. Returns the last readv
// count and error.
func (c *Conn) Read() (int, error) {
	var (
		n   int
		err error
	)
	for {
		n, err = c.readBuf.ReadFd(c.fd)
		if n <= 0 {
			break
		}
		if !c.isET {
			break
		}
	}
	return n, err
}

// Write drains the scatter vector with writev, adjusting the two
// slices as the kernel accepts bytes. Edge-triggered connections loop
// until done or EAGAIN; level-triggered ones keep looping while more
// than the threshold remains.
func (c *Conn) Write() (int, error) {
	var (
		n   int
		err error
	)
	for {
		n, err = unix.Writev(c.fd, [][]byte{c.iov0, c.iov1})
		if n <= 0 {
			break
		}
		c.advance(n)
		if c.ToWriteBytes() == 0 {
			break
		}
		if !c.isET && c.ToWriteBytes() <= writevThreshold {
			break
		}
	}
	return n, err
}

// advance consumes n sent bytes from the vector, releasing the head
// buffer once it is fully on the wire.
func (c *Conn) advance(n int) {
	if n > len(c.iov0) {
		c.iov1 = c.iov1[n-len(c.iov0):]
		if len(c.iov0) > 0 {
			c.writeBuf.RetrieveAll()
			c.iov0 = nil
		}
		return
	}
	c.iov0 = c.iov0[n:]
	c.writeBuf.Retrieve(n)
}

// ToWriteBytes reports how much of the response is still unsent.
func (c *Conn) ToWriteBytes() int { return len(c.iov0) + len(c.iov1) }

// IsKeepAlive reports the parsed request's keep-alive intent.
func (c *Conn) IsKeepAlive() bool { return c.req.IsKeepAlive() }

// ResponseCode returns the status code of the last built response.
func (c *Conn) ResponseCode() int { return c.resp.Code() }

// Process parses whatever is buffered and, once a full (or malformed)
// request is in hand, renders the response and assembles the write
// vector. It returns true when there is a response to send, false when
// the connection should keep waiting for request bytes. A request left
// half-parsed by a short read resumes where it stopped.
func (c *Conn) Process() bool {
	if c.req.State() == StateFinish {
		c.req.Reset()
	}
	if c.readBuf.ReadableBytes() <= 0 {
		return false
	}
	done, err := c.req.Parse(c.readBuf)
	switch {
	case err != nil:
		logger.Warnf("client[%d] bad request: %v", c.fd, err)
		c.resp.Init(c.srcDir, c.req.Path, false, 400)
	case !done:
		return false
	default:
		c.resp.Init(c.srcDir, c.req.Path, c.req.IsKeepAlive(), -1)
	}

	c.resp.MakeResponse(c.writeBuf)
	c.iov0 = c.writeBuf.Peek()
	c.iov1 = nil
	if c.resp.FileLen() > 0 && c.resp.File() != nil {
		c.iov1 = c.resp.File()
	}
	return true
}
