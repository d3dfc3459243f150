package sftp

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestFrameWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	ew := newFrameWriter(&buf, DefaultMaxFrameSize)
	ew.writeByte(42)
	ew.writeUint32(123456)
	ew.writeUint64(9876543210)
	ew.writeString("hello world")
	if err := ew.flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	tag, body, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if tag != 42 {
		t.Fatalf("tag = %d, want 42", tag)
	}

	d := newFrameReader(bytes.NewReader(body))
	n32, err := d.readUint32()
	if err != nil || n32 != 123456 {
		t.Fatalf("readUint32 = %d, %v", n32, err)
	}
	n64, err := d.readUint64()
	if err != nil || n64 != 9876543210 {
		t.Fatalf("readUint64 = %d, %v", n64, err)
	}
	s, err := d.readString()
	if err != nil || s != "hello world" {
		t.Fatalf("readString = %q, %v", s, err)
	}
}

func TestReadFrameZeroLengthIsGraceful(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0})
	tag, body, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if tag != 0 || body != nil {
		t.Fatalf("got tag=%d body=%v, want 0, nil", tag, body)
	}
}

func TestReadFrameCleanEOFBetweenFrames(t *testing.T) {
	_, _, err := readFrame(bytes.NewReader(nil))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestReadFrameShortStreamMidFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 10})
	buf.Write([]byte{1, 2, 3})
	_, _, err := readFrame(&buf)
	if !errors.Is(err, ErrShortStream) {
		t.Fatalf("err = %v, want ErrShortStream", err)
	}
}

func TestFrameWriterTooLarge(t *testing.T) {
	var buf bytes.Buffer
	ew := newFrameWriter(&buf, 4)
	ew.writeString("this is definitely longer than four bytes")
	if err := ew.flush(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestReadStringPreservesEmbeddedNUL(t *testing.T) {
	var buf bytes.Buffer
	ew := newFrameWriter(&buf, DefaultMaxFrameSize)
	ew.writeByte(0)
	ew.writeString("a\x00b")
	if err := ew.flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	_, body, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	d := newFrameReader(bytes.NewReader(body))
	s, err := d.readString()
	if err != nil {
		t.Fatalf("readString: %v", err)
	}
	if s != "a\x00b" {
		t.Fatalf("readString = %q, want %q", s, "a\x00b")
	}
}
