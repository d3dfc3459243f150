package sftp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ClientOption configures a Client at construction time.
type ClientOption func(*clientConfig)

type clientConfig struct {
	maxFrameSize  uint32
	clientVersion uint32
	extensions    map[string]string
	logger        *zerolog.Logger
}

func WithClientMaxFrameSize(n int) ClientOption {
	return func(c *clientConfig) { c.maxFrameSize = uint32(n) }
}

// WithClientExtensions sets the extensions advertised in the INIT
// request (spec.md §4.2).
func WithClientExtensions(ext map[string]string) ClientOption {
	return func(c *clientConfig) { c.extensions = ext }
}

func WithClientLogger(l zerolog.Logger) ClientOption {
	return func(c *clientConfig) { c.logger = &l }
}

type pendingRequest struct {
	result    chan pendingResult
	extDecode extendedDecoder
}

type pendingResult struct {
	resp Response
	ext  any
	err  error
}

// Client is the client-side protocol engine (spec.md §4.2): it performs
// the INIT/VERSION handshake, then lets callers issue concurrent
// requests identified by request_id while a single background goroutine
// reads responses off the wire and routes them back to the caller
// waiting on that id.
type Client struct {
	r io.Reader
	w io.Writer

	writeMu sync.Mutex
	idSeq   uint32

	mu       sync.Mutex
	pending  map[uint32]*pendingRequest
	closed   bool
	closeErr error

	protocolVersion  uint32
	serverExtensions map[string]string

	maxFrameSize int
	log          *zerolog.Logger
}

// NewClient performs the INIT/VERSION handshake over r/w and, on
// success, starts the background read loop. The returned Client is
// ready for concurrent use by any number of goroutines (spec.md §4.2/§5).
func NewClient(ctx context.Context, r io.Reader, w io.Writer, opts ...ClientOption) (*Client, error) {
	cfg := clientConfig{
		maxFrameSize:  DefaultMaxFrameSize,
		clientVersion: ProtocolVersion,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Client{
		r:            r,
		w:            w,
		pending:      make(map[uint32]*pendingRequest),
		maxFrameSize: int(cfg.maxFrameSize),
		log:          cfg.logger,
	}

	ew := newFrameWriter(c.w, c.maxFrameSize)
	encodeRequest(ew, InitRequest{ClientVersion: cfg.clientVersion, Extensions: cfg.extensions})
	if err := ew.flush(); err != nil {
		return nil, err
	}

	tag, body, err := readFrame(c.r)
	if err != nil {
		return nil, err
	}
	if body == nil || tag != msgVersion {
		return nil, protocolErrorf("expected VERSION, got tag %d", tag)
	}
	fr := newFrameReader(bytes.NewReader(body))
	version, err := fr.readUint32()
	if err != nil {
		return nil, err
	}
	extensions := map[string]string{}
	for fr.consumed < len(body) {
		name, err := fr.readString()
		if err != nil {
			return nil, err
		}
		value, err := fr.readString()
		if err != nil {
			return nil, err
		}
		extensions[name] = value
	}
	if version > ProtocolVersion {
		version = ProtocolVersion
	}
	c.protocolVersion = version
	c.serverExtensions = extensions

	go c.readLoop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return c, nil
}

func (c *Client) logger() *zerolog.Logger {
	if c.log != nil {
		return c.log
	}
	return &Logger
}

// ProtocolVersion returns the version negotiated during the handshake.
func (c *Client) ProtocolVersion() uint32 { return c.protocolVersion }

// ServerExtensions returns the extensions the server advertised in its
// VERSION response.
func (c *Client) ServerExtensions() map[string]string { return c.serverExtensions }

func (c *Client) nextID() uint32 {
	return atomic.AddUint32(&c.idSeq, 1)
}

// send encodes req, registers a pending slot for its id, writes it, and
// blocks until the matching response (or disposal) arrives. extDecode
// is consulted only for ExtendedRequest; pass nil otherwise.
func (c *Client) send(ctx context.Context, req Request, extDecode extendedDecoder) (Response, any, error) {
	id := req.id()
	result := make(chan pendingResult, 1)

	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return nil, nil, err
	}
	c.pending[id] = &pendingRequest{result: result, extDecode: extDecode}
	c.mu.Unlock()

	c.writeMu.Lock()
	ew := newFrameWriter(c.w, c.maxFrameSize)
	encodeRequest(ew, req)
	err := ew.flush()
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, nil, err
	}

	select {
	case res := <-result:
		return res.resp, res.ext, res.err
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, nil, ctx.Err()
	}
}

// readLoop is the sole reader of c.r. It decodes each response frame
// and hands the result to whichever send call is waiting on that id.
func (c *Client) readLoop() {
	err := c.readLoopInner()
	c.dispose(err)
}

func (c *Client) readLoopInner() error {
	for {
		tag, body, err := readFrame(c.r)
		if err != nil {
			return err
		}
		if body == nil {
			return io.EOF
		}

		if tag == msgExtended {
			fr := newFrameReader(bytes.NewReader(body))
			id, err := fr.readUint32()
			if err != nil {
				return err
			}
			c.resolveExtended(id, body[fr.consumed:])
			continue
		}

		fr := newFrameReader(bytes.NewReader(body))
		resp, err := decodeResponse(tag, c.protocolVersion, fr)
		if err != nil {
			return err
		}
		c.resolve(resp)
	}
}

func (c *Client) takePending(id uint32) (*pendingRequest, bool) {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	return p, ok
}

func (c *Client) resolve(resp Response) {
	p, ok := c.takePending(resp.id())
	if !ok {
		c.logger().Warn().Uint32("id", resp.id()).Msg("sftp: response for unknown request id")
		return
	}
	var result pendingResult
	if sr, isStatus := resp.(StatusResponse); isStatus && sr.Status != StatusOK {
		result.err = &StatusError{Status: sr.Status, Message: sr.Message, Lang: sr.Lang}
	} else {
		result.resp = resp
	}
	p.result <- result
}

func (c *Client) resolveExtended(id uint32, payload []byte) {
	p, ok := c.takePending(id)
	if !ok {
		c.logger().Warn().Uint32("id", id).Msg("sftp: extended response for unknown request id")
		return
	}
	var result pendingResult
	if p.extDecode != nil {
		v, err := p.extDecode(payload)
		result.ext, result.err = v, err
	} else {
		result.resp = ExtendedResponse{ID: id, Payload: payload}
	}
	p.result <- result
}

// dispose fails every outstanding request with ErrDisposed (wrapping
// err as the root cause when err is neither nil nor io.EOF) and marks
// the client closed, so any later send call fails immediately instead
// of hanging (spec.md §3/§7/§8).
func (c *Client) dispose(err error) {
	if err == nil || errors.Is(err, io.EOF) {
		err = ErrDisposed
	} else if !errors.Is(err, ErrDisposed) {
		err = fmt.Errorf("%w: %w", ErrDisposed, err)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = err
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, p := range pending {
		p.result <- pendingResult{err: err}
	}
}

// Close releases the client's wait state immediately; it does not close
// the underlying stream, which the caller owns (spec.md §1).
func (c *Client) Close() error {
	c.dispose(ErrDisposed)
	return nil
}

// OpenFile issues OPEN and wraps the resulting handle as a RemoteFile.
func (c *Client) OpenFile(ctx context.Context, path string, flags uint32, attrs Attributes) (*RemoteFile, error) {
	resp, _, err := c.send(ctx, OpenRequest{ID: c.nextID(), Path: path, Flags: flags, Attrs: attrs}, nil)
	if err != nil {
		return nil, err
	}
	hr, ok := resp.(HandleResponse)
	if !ok {
		return nil, protocolErrorf("OPEN: unexpected response type %T", resp)
	}
	return &RemoteFile{client: c, handle: hr.Handle, name: path}, nil
}

func (c *Client) closeHandle(ctx context.Context, handle []byte) error {
	_, _, err := c.send(ctx, CloseRequest{ID: c.nextID(), Handle: handle}, nil)
	return err
}

func (c *Client) Lstat(ctx context.Context, path string) (Attributes, error) {
	resp, _, err := c.send(ctx, LstatRequest{ID: c.nextID(), Path: path}, nil)
	if err != nil {
		return Attributes{}, err
	}
	return attrsFrom(resp)
}

func (c *Client) Stat(ctx context.Context, path string) (Attributes, error) {
	resp, _, err := c.send(ctx, StatRequest{ID: c.nextID(), Path: path}, nil)
	if err != nil {
		return Attributes{}, err
	}
	return attrsFrom(resp)
}

func (c *Client) fstat(ctx context.Context, handle []byte) (Attributes, error) {
	resp, _, err := c.send(ctx, FstatRequest{ID: c.nextID(), Handle: handle}, nil)
	if err != nil {
		return Attributes{}, err
	}
	return attrsFrom(resp)
}

func attrsFrom(resp Response) (Attributes, error) {
	ar, ok := resp.(AttrsResponse)
	if !ok {
		return Attributes{}, protocolErrorf("STAT: unexpected response type %T", resp)
	}
	return ar.Attrs, nil
}

func (c *Client) SetStat(ctx context.Context, path string, attrs Attributes) error {
	_, _, err := c.send(ctx, SetstatRequest{ID: c.nextID(), Path: path, Attrs: attrs}, nil)
	return err
}

func (c *Client) fsetstat(ctx context.Context, handle []byte, attrs Attributes) error {
	_, _, err := c.send(ctx, FsetstatRequest{ID: c.nextID(), Handle: handle, Attrs: attrs}, nil)
	return err
}

func (c *Client) Mkdir(ctx context.Context, path string, attrs Attributes) error {
	_, _, err := c.send(ctx, MkdirRequest{ID: c.nextID(), Path: path, Attrs: attrs}, nil)
	return err
}

func (c *Client) Rmdir(ctx context.Context, path string) error {
	_, _, err := c.send(ctx, RmdirRequest{ID: c.nextID(), Path: path}, nil)
	return err
}

func (c *Client) Remove(ctx context.Context, path string) error {
	_, _, err := c.send(ctx, RemoveRequest{ID: c.nextID(), Path: path}, nil)
	return err
}

func (c *Client) Rename(ctx context.Context, oldPath, newPath string) error {
	_, _, err := c.send(ctx, RenameRequest{ID: c.nextID(), OldPath: oldPath, NewPath: newPath}, nil)
	return err
}

func (c *Client) Readlink(ctx context.Context, path string) (string, error) {
	resp, _, err := c.send(ctx, ReadlinkRequest{ID: c.nextID(), Path: path}, nil)
	if err != nil {
		return "", err
	}
	return firstName(resp)
}

func (c *Client) Realpath(ctx context.Context, path string) (string, error) {
	resp, _, err := c.send(ctx, RealpathRequest{ID: c.nextID(), Path: path}, nil)
	if err != nil {
		return "", err
	}
	return firstName(resp)
}

func firstName(resp Response) (string, error) {
	nr, ok := resp.(NameResponse)
	if !ok || len(nr.Names) == 0 {
		return "", protocolErrorf("expected a single NAME entry, got %T", resp)
	}
	return nr.Names[0].Name, nil
}

func (c *Client) Symlink(ctx context.Context, linkPath, targetPath string) error {
	_, _, err := c.send(ctx, SymlinkRequest{ID: c.nextID(), LinkPath: linkPath, TargetPath: targetPath}, nil)
	return err
}

// OpenDir issues OPENDIR and wraps the resulting handle as a RemoteDir.
func (c *Client) OpenDir(ctx context.Context, path string) (*RemoteDir, error) {
	resp, _, err := c.send(ctx, OpendirRequest{ID: c.nextID(), Path: path}, nil)
	if err != nil {
		return nil, err
	}
	hr, ok := resp.(HandleResponse)
	if !ok {
		return nil, protocolErrorf("OPENDIR: unexpected response type %T", resp)
	}
	return &RemoteDir{client: c, handle: hr.Handle, path: path}, nil
}

// ReadDirAll opens path and drains every READDIR page, closing the
// handle before returning (SPEC_FULL.md §4). It is a convenience for
// callers that want the whole listing rather than manual paging.
func (c *Client) ReadDirAll(ctx context.Context, path string) ([]Name, error) {
	d, err := c.OpenDir(ctx, path)
	if err != nil {
		return nil, err
	}
	defer d.Close(ctx)

	var all []Name
	for {
		page, err := d.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return all, nil
			}
			return all, err
		}
		all = append(all, page...)
	}
}

// Extended issues an EXTENDED request. decode, if non-nil, parses the
// raw response payload into a caller-defined value; otherwise the raw
// bytes are returned as-is.
func (c *Client) Extended(ctx context.Context, requestName string, payload []byte, decode func([]byte) (any, error)) (any, error) {
	var dec extendedDecoder
	if decode != nil {
		dec = decode
	}
	resp, ext, err := c.send(ctx, ExtendedRequest{ID: c.nextID(), RequestName: requestName, Payload: payload}, dec)
	if err != nil {
		return nil, err
	}
	if dec != nil {
		return ext, nil
	}
	er, ok := resp.(ExtendedResponse)
	if !ok {
		return nil, protocolErrorf("EXTENDED: unexpected response type %T", resp)
	}
	return er.Payload, nil
}
