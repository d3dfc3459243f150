package sftp

import (
	"io"
	"sync/atomic"

	"github.com/klauspost/compress/s2"
)

// CompressedReadWriteCloser wraps an arbitrary io.ReadWriteCloser with
// S2 (Snappy-compatible) stream compression. It is an optional
// transport-adjacent convenience, not a core requirement: the core
// treats whatever stream it's given as opaque bytes (spec.md §1), but
// a caller is free to apply this before handing the stream to
// NewClient/NewServer when both ends agree to it out of
// band — the same role CompressedReadWriteCloser plays for the
// teacher's RPC connections.
type CompressedReadWriteCloser struct {
	r *s2.Reader
	w *s2.Writer
	c io.Closer
}

func NewCompressedReadWriteCloser(rwc io.ReadWriteCloser) *CompressedReadWriteCloser {
	return &CompressedReadWriteCloser{
		r: s2.NewReader(rwc),
		w: s2.NewWriter(rwc),
		c: rwc,
	}
}

func (c *CompressedReadWriteCloser) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *CompressedReadWriteCloser) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, c.w.Flush()
}

func (c *CompressedReadWriteCloser) Close() error {
	_ = c.w.Close()
	return c.c.Close()
}

// ByteCounters tracks bytes moved through a wrapped stream, for hosts
// that want to report transfer throughput (cmd/sftptool does, via
// go-humanize) without the core committing to any particular metrics
// backend.
type ByteCounters struct {
	Read, Written atomic.Uint64
}

// CountingReadWriteCloser wraps rwc, tallying bytes into counters as
// they pass through Read/Write.
type CountingReadWriteCloser struct {
	rwc      io.ReadWriteCloser
	counters *ByteCounters
}

func NewCountingReadWriteCloser(rwc io.ReadWriteCloser, counters *ByteCounters) *CountingReadWriteCloser {
	return &CountingReadWriteCloser{rwc: rwc, counters: counters}
}

func (c *CountingReadWriteCloser) Read(p []byte) (int, error) {
	n, err := c.rwc.Read(p)
	c.counters.Read.Add(uint64(n))
	return n, err
}

func (c *CountingReadWriteCloser) Write(p []byte) (int, error) {
	n, err := c.rwc.Write(p)
	c.counters.Written.Add(uint64(n))
	return n, err
}

func (c *CountingReadWriteCloser) Close() error {
	return c.rwc.Close()
}
