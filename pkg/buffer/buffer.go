// Package buffer implements the growable byte buffer used for
// connection I/O and response assembly. A Buffer keeps two cursors into one
// contiguous region: everything between readPos and writePos is
// unconsumed payload, everything after writePos is free space.
package buffer

import (
	"sync"

	"golang.org/x/sys/unix"
)

// InitialSize is the starting capacity of a Buffer's region.
const InitialSize = 1024

// scratchSize is the size of the stack-replacement scratch slab used by
// ReadFd. The scatter read always has at least this much free
// destination even when the buffer is nearly full, so an edge-triggered
// drain cannot under-read.
const scratchSize = 64 * 1024

// scratchPool recycles the 64KiB slabs across connections. One slab is
// in flight per ReadFd call.
var scratchPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, scratchSize)
		return &b
	},
}

// Buffer is a byte container with separate read and write cursors.
//
// Invariant: 0 <= readPos <= writePos <= len(region). A Buffer is owned
// by exactly one goroutine at a time; it performs no locking.
type Buffer struct {
	region   []byte
	readPos  int
	writePos int
}

// New returns a Buffer with the default initial capacity.
func New() *Buffer {
	return NewSize(InitialSize)
}

// NewSize returns a Buffer whose region starts at size bytes.
func NewSize(size int) *Buffer {
	return &Buffer{region: make([]byte, size)}
}

// ReadableBytes reports how many appended bytes have not been consumed.
func (b *Buffer) ReadableBytes() int { return b.writePos - b.readPos }

// WritableBytes reports the free space after the write cursor.
func (b *Buffer) WritableBytes() int { return len(b.region) - b.writePos }

// PrependableBytes reports the space already consumed at the front of
// the region, reclaimable by compaction.
func (b *Buffer) PrependableBytes() int { return b.readPos }

// Peek returns a view of the readable bytes. The slice aliases the
// region and is invalidated by the next Append or Retrieve.
func (b *Buffer) Peek() []byte {
	return b.region[b.readPos:b.writePos]
}

// Retrieve advances the read cursor by n. n must not exceed
// ReadableBytes.
func (b *Buffer) Retrieve(n int) {
	if n >= b.ReadableBytes() {
		b.RetrieveAll()
		return
	}
	b.readPos += n
}

// RetrieveAll zeroes the region and resets both cursors.
func (b *Buffer) RetrieveAll() {
	for i := range b.region {
		b.region[i] = 0
	}
	b.readPos = 0
	b.writePos = 0
}

// RetrieveAllToString copies out the readable bytes and resets the
// buffer.
func (b *Buffer) RetrieveAllToString() string {
	s := string(b.Peek())
	b.RetrieveAll()
	return s
}

// Append copies p into the buffer, growing the region as needed.
func (b *Buffer) Append(p []byte) {
	b.ensureWritable(len(p))
	copy(b.region[b.writePos:], p)
	b.writePos += len(p)
}

// AppendString copies s into the buffer.
func (b *Buffer) AppendString(s string) {
	b.ensureWritable(len(s))
	copy(b.region[b.writePos:], s)
	b.writePos += len(s)
}

// ReadFd performs one scatter read from fd into the tail of the region
// plus a pooled 64KiB scratch slab. Bytes that land in the slab are
// appended after the read. Returns the byte count from readv and any
// syscall error (unix.EAGAIN on a drained non-blocking fd).
func (b *Buffer) ReadFd(fd int) (int, error) {
	scratch := scratchPool.Get().(*[]byte)
	defer scratchPool.Put(scratch)

	writable := b.WritableBytes()
	iov := [][]byte{b.region[b.writePos:], *scratch}
	n, err := unix.Readv(fd, iov)
	if n < 0 {
		return n, err
	}
	if n <= writable {
		b.writePos += n
	} else {
		b.writePos = len(b.region)
		b.Append((*scratch)[:n-writable])
	}
	return n, err
}

// WriteFd writes the readable bytes to fd once and advances the read
// cursor by however much the kernel accepted.
func (b *Buffer) WriteFd(fd int) (int, error) {
	n, err := unix.Write(fd, b.Peek())
	if n < 0 {
		return n, err
	}
	b.readPos += n
	return n, err
}

// ensureWritable makes room for n more bytes. When the free space at
// both ends is still short the region is grown; otherwise the unread
// bytes are compacted to offset 0.
func (b *Buffer) ensureWritable(n int) {
	if b.WritableBytes() >= n {
		return
	}
	if b.WritableBytes()+b.PrependableBytes() < n {
		grown := make([]byte, b.writePos+n+1)
		copy(grown, b.region[:b.writePos])
		b.region = grown
		return
	}
	readable := b.ReadableBytes()
	copy(b.region, b.region[b.readPos:b.writePos])
	b.readPos = 0
	b.writePos = readable
}
