package sftp

import (
	"bytes"
	"reflect"
	"testing"
)

func roundTripRequest(t *testing.T, req Request) Request {
	t.Helper()
	var buf bytes.Buffer
	ew := newFrameWriter(&buf, DefaultMaxFrameSize)
	encodeRequest(ew, req)
	if err := ew.flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	tag, body, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	d := newFrameReader(bytes.NewReader(body))
	got, err := decodeRequest(tag, len(body), d)
	if err != nil {
		t.Fatalf("decodeRequest: %v", err)
	}
	return got
}

func TestSymlinkRequestWireOrderIsTargetThenLink(t *testing.T) {
	req := SymlinkRequest{ID: 7, LinkPath: "/new-link", TargetPath: "/target"}
	var buf bytes.Buffer
	ew := newFrameWriter(&buf, DefaultMaxFrameSize)
	encodeRequest(ew, req)
	if err := ew.flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	_, body, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	d := newFrameReader(bytes.NewReader(body))
	if _, err := d.readUint32(); err != nil {
		t.Fatalf("readUint32 id: %v", err)
	}
	first, err := d.readString()
	if err != nil {
		t.Fatalf("readString first: %v", err)
	}
	if first != req.TargetPath {
		t.Fatalf("first wire field = %q, want target path %q", first, req.TargetPath)
	}

	got := roundTripRequest(t, req)
	sl, ok := got.(SymlinkRequest)
	if !ok {
		t.Fatalf("decoded type = %T, want SymlinkRequest", got)
	}
	if sl.LinkPath != req.LinkPath || sl.TargetPath != req.TargetPath {
		t.Fatalf("decoded = %+v, want %+v", sl, req)
	}
}

func TestExtendedRequestPayloadBounding(t *testing.T) {
	req := ExtendedRequest{ID: 3, RequestName: "check-file@openssh.com", Payload: []byte{1, 2, 3, 4, 5}}
	got := roundTripRequest(t, req)
	er, ok := got.(ExtendedRequest)
	if !ok {
		t.Fatalf("decoded type = %T, want ExtendedRequest", got)
	}
	if er.RequestName != req.RequestName || !bytes.Equal(er.Payload, req.Payload) {
		t.Fatalf("decoded = %+v, want %+v", er, req)
	}
}

func TestOpenRequestRoundTrip(t *testing.T) {
	req := OpenRequest{
		ID:    1,
		Path:  "/tmp/file",
		Flags: AccessRead | AccessWrite | AccessCreate,
		Attrs: Attributes{HasPermissions: true, Permissions: 0o644},
	}
	got := roundTripRequest(t, req)
	or, ok := got.(OpenRequest)
	if !ok {
		t.Fatalf("decoded type = %T, want OpenRequest", got)
	}
	if !reflect.DeepEqual(or, req) {
		t.Fatalf("decoded = %+v, want %+v", or, req)
	}
}

func TestWriteStatusOmitsMessageBelowV3(t *testing.T) {
	var buf bytes.Buffer
	ew := newFrameWriter(&buf, DefaultMaxFrameSize)
	writeStatus(ew, 2, 5, StatusFailure, "custom", "en")
	if err := ew.flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	_, body, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	// id(4) + status(4) with nothing else left when message/lang are omitted.
	if len(body) != 8 {
		t.Fatalf("body length = %d, want 8 (no message/lang for v2)", len(body))
	}
}

func TestWriteStatusIncludesMessageAtV3(t *testing.T) {
	var buf bytes.Buffer
	ew := newFrameWriter(&buf, DefaultMaxFrameSize)
	writeStatus(ew, 3, 5, StatusFailure, "custom", "en")
	if err := ew.flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	_, body, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if len(body) == 8 {
		t.Fatalf("body length = %d, want message/lang included for v3", len(body))
	}
}
