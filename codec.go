package sftp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrShortStream is returned by frameReader when the underlying stream
// ends before a read could be satisfied in full. It is distinct from a
// clean end-of-stream at a frame boundary, which the server engine
// treats as graceful shutdown (spec.md §4.5) rather than an error.
var ErrShortStream = errors.New("sftp: stream ended mid-frame")

// ErrFrameTooLarge is returned by frameWriter.flush when the buffered
// payload exceeds the configured maximum (spec.md §4.1).
var ErrFrameTooLarge = errors.New("sftp: encoded frame exceeds maximum size")

// frameReader decodes the primitive and composite wire forms off of an
// io.Reader. Every read is exact: a short read is retried internally
// until satisfied or the stream ends, in which case readFull returns
// ErrShortStream rather than a partial, silently-truncated value.
type frameReader struct {
	r        io.Reader
	buf      [8]byte
	consumed int // bytes read so far via readFull; used to bound EXTENDED payloads
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: r}
}

func (d *frameReader) readFull(p []byte) error {
	_, err := io.ReadFull(d.r, p)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrShortStream
		}
		return err
	}
	d.consumed += len(p)
	return nil
}

// readFrameLength reads just the leading length word of a frame. It
// returns io.EOF verbatim (not wrapped as ErrShortStream) when the
// stream ends cleanly at a frame boundary, so callers can distinguish
// "peer hung up between messages" from "peer died mid-message".
func (d *frameReader) readFrameLength() (uint32, error) {
	_, err := io.ReadFull(d.r, d.buf[:4])
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, ErrShortStream
		}
		return 0, err
	}
	return binary.BigEndian.Uint32(d.buf[:4]), nil
}

func (d *frameReader) readByte() (byte, error) {
	if err := d.readFull(d.buf[:1]); err != nil {
		return 0, err
	}
	return d.buf[0], nil
}

func (d *frameReader) readUint32() (uint32, error) {
	if err := d.readFull(d.buf[:4]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(d.buf[:4]), nil
}

func (d *frameReader) readUint64() (uint64, error) {
	if err := d.readFull(d.buf[:8]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(d.buf[:8]), nil
}

// readFrame reads one complete frame off r: the length word, then
// exactly that many payload bytes (the first of which is the message
// tag, per spec.md §3). It returns io.EOF verbatim when the stream
// ends cleanly before a new frame starts, and ErrShortStream if it
// ends partway through one.
func readFrame(r io.Reader) (tag byte, body []byte, err error) {
	d := newFrameReader(r)
	length, err := d.readFrameLength()
	if err != nil {
		return 0, nil, err
	}
	if length == 0 {
		return 0, nil, nil
	}
	payload := make([]byte, length)
	if err := d.readFull(payload); err != nil {
		return 0, nil, err
	}
	return payload[0], payload[1:], nil
}

func (d *frameReader) readBinary() ([]byte, error) {
	n, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if n > 0 {
		if err := d.readFull(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// readString decodes a length-prefixed UTF-8 field. Decoders must not
// stop at embedded zero bytes (spec.md §4.1); string(b) does not.
func (d *frameReader) readString() (string, error) {
	b, err := d.readBinary()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// frameWriter buffers one message's payload and emits it as a single
// length-prefixed frame on flush. The underlying stream write of
// length||payload is performed as one Write call so it is atomic with
// respect to other flush calls sharing the same writer lock (spec.md
// §4.1/§5).
type frameWriter struct {
	w       io.Writer
	maxSize int
	buf     []byte
}

func newFrameWriter(w io.Writer, maxSize int) *frameWriter {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &frameWriter{w: w, maxSize: maxSize}
}

func (e *frameWriter) reset() {
	e.buf = e.buf[:0]
}

func (e *frameWriter) writeByte(b byte) {
	e.buf = append(e.buf, b)
}

func (e *frameWriter) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *frameWriter) writeUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *frameWriter) writeBinary(b []byte) {
	e.writeUint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *frameWriter) writeString(s string) {
	e.writeBinary([]byte(s))
}

// flush emits length||payload as a single Write and resets the buffer
// for the next message.
func (e *frameWriter) flush() error {
	if len(e.buf) > e.maxSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(e.buf), e.maxSize)
	}
	frame := make([]byte, 4+len(e.buf))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(e.buf)))
	copy(frame[4:], e.buf)
	_, err := e.w.Write(frame)
	e.reset()
	return err
}
