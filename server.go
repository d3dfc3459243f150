package sftp

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"
)

// ServerOption configures a Server at construction time (SPEC_FULL.md §2).
type ServerOption func(*serverConfig)

type serverConfig struct {
	maxHandles      int
	readdirPageSize int
	maxFrameSize    int
	logger          *zerolog.Logger
}

func WithMaxHandles(n int) ServerOption {
	return func(c *serverConfig) { c.maxHandles = n }
}

func WithReaddirPageSize(n int) ServerOption {
	return func(c *serverConfig) { c.readdirPageSize = n }
}

func WithMaxFrameSize(n int) ServerOption {
	return func(c *serverConfig) { c.maxFrameSize = n }
}

func WithServerLogger(l zerolog.Logger) ServerOption {
	return func(c *serverConfig) { c.logger = &l }
}

// Server is the server-side protocol engine (spec.md §4.5): it reads
// frames, dispatches by request type, invokes the backend, builds
// responses, paginates directory listings, and manages version
// negotiation. One Server owns exactly one reader/writer pair for its
// whole lifetime (spec.md §5).
type Server struct {
	r       io.Reader
	w       io.Writer
	backend Backend
	handles *HandleTable

	readdirPageSize int
	maxFrameSize    int
	log             *zerolog.Logger

	protocolVersion uint32
}

func NewServer(r io.Reader, w io.Writer, backend Backend, opts ...ServerOption) *Server {
	cfg := serverConfig{
		maxHandles:      DefaultMaxHandles,
		readdirPageSize: DefaultReaddirPageSize,
		maxFrameSize:    DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		r:               r,
		w:               w,
		backend:         backend,
		handles:         NewHandleTable(cfg.maxHandles),
		readdirPageSize: cfg.readdirPageSize,
		maxFrameSize:    cfg.maxFrameSize,
		log:             cfg.logger,
	}
}

func (s *Server) logger() *zerolog.Logger {
	if s.log != nil {
		return s.log
	}
	return &Logger
}

// Run drives the AwaitingInit -> Serving -> Terminated state machine
// until the peer closes its end, an unrecoverable codec error occurs,
// or ctx is canceled (spec.md §3/§4.5). Every open handle is finalized
// on return.
func (s *Server) Run(ctx context.Context) error {
	defer s.handles.CloseAll()

	if err := s.awaitInit(ctx); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		tag, body, err := readFrame(s.r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if body == nil {
			// Zero-length frame: graceful termination (spec.md §4.5).
			return nil
		}
		if tag == msgInit {
			return protocolErrorf("INIT received after handshake")
		}

		fr := newFrameReader(bytes.NewReader(body))
		req, err := decodeRequest(tag, len(body), fr)
		if err != nil {
			return err
		}

		resp, herr := s.dispatch(ctx, req)

		ew := newFrameWriter(s.w, s.maxFrameSize)
		if herr != nil {
			s.respondError(ew, req.id(), herr)
		} else {
			writeResponseMessage(ew, s.protocolVersion, resp)
		}
		if err := ew.flush(); err != nil {
			return err
		}
	}
}

// awaitInit implements the AwaitingInit state: exactly one frame, which
// must be INIT, answered with VERSION (spec.md §4.5).
func (s *Server) awaitInit(ctx context.Context) error {
	tag, body, err := readFrame(s.r)
	if err != nil {
		return err
	}
	if body == nil || tag != msgInit {
		return protocolErrorf("expected INIT, got tag %d", tag)
	}

	fr := newFrameReader(bytes.NewReader(body))
	clientVersion, err := fr.readUint32()
	if err != nil {
		return err
	}
	clientExtensions := map[string]string{}
	for fr.consumed < len(body) {
		name, err := fr.readString()
		if err != nil {
			return err
		}
		value, err := fr.readString()
		if err != nil {
			return err
		}
		clientExtensions[name] = value
	}

	negotiated := clientVersion
	if negotiated > ProtocolVersion {
		negotiated = ProtocolVersion
	}
	s.protocolVersion = negotiated

	serverExtensions, err := s.backend.Init(ctx, negotiated, clientExtensions)
	if err != nil {
		return err
	}

	ew := newFrameWriter(s.w, s.maxFrameSize)
	writeVersion(ew, negotiated, serverExtensions)
	return ew.flush()
}

func (s *Server) respondError(ew *frameWriter, id uint32, err error) {
	if hf, ok := asHandlerFailure(err); ok {
		writeStatus(ew, s.protocolVersion, id, hf.Status, hf.Message, "")
		return
	}
	s.logger().Error().Err(err).Msg("sftp: backend call failed")
	writeStatus(ew, s.protocolVersion, id, StatusFailure, err.Error(), "")
}

// dispatch invokes the backend for req and builds the success response.
// A returned error is always either a *HandlerFailure or an arbitrary
// backend error to be reported as StatusFailure; dispatch itself never
// writes to the wire.
func (s *Server) dispatch(ctx context.Context, req Request) (Response, error) {
	switch r := req.(type) {
	case OpenRequest:
		return s.opOpen(ctx, r)
	case CloseRequest:
		return s.opClose(r)
	case ReadRequest:
		return s.opRead(r)
	case WriteRequest:
		return s.opWrite(r)
	case LstatRequest:
		return s.opLstat(ctx, r)
	case FstatRequest:
		return s.opFstat(ctx, r)
	case SetstatRequest:
		return s.opSetstat(ctx, r)
	case FsetstatRequest:
		return s.opFsetstat(ctx, r)
	case OpendirRequest:
		return s.opOpendir(ctx, r)
	case ReaddirRequest:
		return s.opReaddir(ctx, r)
	case RemoveRequest:
		return s.opRemove(ctx, r)
	case MkdirRequest:
		return s.opMkdir(ctx, r)
	case RmdirRequest:
		return s.opRmdir(ctx, r)
	case RealpathRequest:
		return s.opRealpath(ctx, r)
	case StatRequest:
		return s.opStat(ctx, r)
	case RenameRequest:
		return s.opRename(ctx, r)
	case ReadlinkRequest:
		return s.opReadlink(ctx, r)
	case SymlinkRequest:
		return s.opSymlink(ctx, r)
	case ExtendedRequest:
		return s.opExtended(ctx, r)
	default:
		return nil, NewHandlerFailure(StatusOpUnsupported, "", nil)
	}
}

func handleFor(b []byte) Handle {
	var h Handle
	copy(h[:], b)
	return h
}

func (s *Server) opOpen(ctx context.Context, r OpenRequest) (Response, error) {
	f, err := s.backend.Open(ctx, r.Path, r.Flags, r.Attrs)
	if err != nil {
		return nil, err
	}
	h, err := s.handles.AddFile(r.Path, f)
	if err != nil {
		return nil, err
	}
	return HandleResponse{ID: r.ID, Handle: h[:]}, nil
}

func (s *Server) opClose(r CloseRequest) (Response, error) {
	if !s.handles.Remove(handleFor(r.Handle)) {
		return nil, NoSuchFile(nil)
	}
	return StatusResponse{ID: r.ID, Status: StatusOK}, nil
}

func (s *Server) opRead(r ReadRequest) (Response, error) {
	f, err := s.handles.RequireFile(handleFor(r.Handle))
	if err != nil {
		return nil, err
	}
	buf := make([]byte, r.Length)
	n, err := f.ReadAt(buf, int64(r.Offset))
	if n == 0 {
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, NewHandlerFailure(StatusEOF, "", nil)
			}
			return nil, err
		}
	}
	return DataResponse{ID: r.ID, Data: buf[:n]}, nil
}

func (s *Server) opWrite(r WriteRequest) (Response, error) {
	f, err := s.handles.RequireFile(handleFor(r.Handle))
	if err != nil {
		return nil, err
	}
	if _, err := f.WriteAt(r.Data, int64(r.Offset)); err != nil {
		return nil, err
	}
	return StatusResponse{ID: r.ID, Status: StatusOK}, nil
}

func (s *Server) opLstat(ctx context.Context, r LstatRequest) (Response, error) {
	attrs, err := s.backend.Lstat(ctx, r.Path)
	if err != nil {
		return nil, err
	}
	return AttrsResponse{ID: r.ID, Attrs: attrs}, nil
}

func (s *Server) opFstat(ctx context.Context, r FstatRequest) (Response, error) {
	f, err := s.handles.RequireFile(handleFor(r.Handle))
	if err != nil {
		return nil, err
	}
	attrs, err := s.backend.Fstat(ctx, f)
	if err != nil {
		return nil, err
	}
	return AttrsResponse{ID: r.ID, Attrs: attrs}, nil
}

func (s *Server) opSetstat(ctx context.Context, r SetstatRequest) (Response, error) {
	if err := s.backend.Setstat(ctx, r.Path, r.Attrs); err != nil {
		return nil, err
	}
	return StatusResponse{ID: r.ID, Status: StatusOK}, nil
}

func (s *Server) opFsetstat(ctx context.Context, r FsetstatRequest) (Response, error) {
	f, err := s.handles.RequireFile(handleFor(r.Handle))
	if err != nil {
		return nil, err
	}
	if err := s.backend.Fsetstat(ctx, f, r.Attrs); err != nil {
		return nil, err
	}
	return StatusResponse{ID: r.ID, Status: StatusOK}, nil
}

func (s *Server) opOpendir(ctx context.Context, r OpendirRequest) (Response, error) {
	it, err := s.backend.Opendir(ctx, r.Path)
	if err != nil {
		return nil, err
	}
	h, err := s.handles.AddDir(r.Path, it)
	if err != nil {
		return nil, err
	}
	return HandleResponse{ID: r.ID, Handle: h[:]}, nil
}

func (s *Server) opReaddir(ctx context.Context, r ReaddirRequest) (Response, error) {
	names, err := s.handles.RequireDirPage(ctx, handleFor(r.Handle), s.readdirPageSize)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, NewHandlerFailure(StatusEOF, "", nil)
		}
		return nil, err
	}
	return NameResponse{ID: r.ID, Names: names}, nil
}

func (s *Server) opRemove(ctx context.Context, r RemoveRequest) (Response, error) {
	if err := s.backend.Remove(ctx, r.Path); err != nil {
		return nil, err
	}
	return StatusResponse{ID: r.ID, Status: StatusOK}, nil
}

func (s *Server) opMkdir(ctx context.Context, r MkdirRequest) (Response, error) {
	if err := s.backend.Mkdir(ctx, r.Path, r.Attrs); err != nil {
		return nil, err
	}
	return StatusResponse{ID: r.ID, Status: StatusOK}, nil
}

func (s *Server) opRmdir(ctx context.Context, r RmdirRequest) (Response, error) {
	if err := s.backend.Rmdir(ctx, r.Path); err != nil {
		return nil, err
	}
	return StatusResponse{ID: r.ID, Status: StatusOK}, nil
}

// opRealpath coerces empty or "." paths to "/" (spec.md §4.5).
func (s *Server) opRealpath(ctx context.Context, r RealpathRequest) (Response, error) {
	path := r.Path
	if path == "" || path == "." {
		path = "/"
	}
	resolved, err := s.backend.Realpath(ctx, path)
	if err != nil {
		return nil, err
	}
	return NameResponse{ID: r.ID, Names: []Name{{Name: resolved, LongName: resolved}}}, nil
}

func (s *Server) opStat(ctx context.Context, r StatRequest) (Response, error) {
	attrs, err := s.backend.Stat(ctx, r.Path)
	if err != nil {
		return nil, err
	}
	return AttrsResponse{ID: r.ID, Attrs: attrs}, nil
}

func (s *Server) opRename(ctx context.Context, r RenameRequest) (Response, error) {
	if err := s.backend.Rename(ctx, r.OldPath, r.NewPath); err != nil {
		return nil, err
	}
	return StatusResponse{ID: r.ID, Status: StatusOK}, nil
}

func (s *Server) opReadlink(ctx context.Context, r ReadlinkRequest) (Response, error) {
	target, err := s.backend.Readlink(ctx, r.Path)
	if err != nil {
		return nil, err
	}
	return NameResponse{ID: r.ID, Names: []Name{{Name: target, LongName: target}}}, nil
}

func (s *Server) opSymlink(ctx context.Context, r SymlinkRequest) (Response, error) {
	if err := s.backend.Symlink(ctx, r.LinkPath, r.TargetPath); err != nil {
		return nil, err
	}
	return StatusResponse{ID: r.ID, Status: StatusOK}, nil
}

func (s *Server) opExtended(ctx context.Context, r ExtendedRequest) (Response, error) {
	payload, err := handleExtended(ctx, s.backend, r.RequestName, r.Payload)
	if err != nil {
		return nil, err
	}
	return ExtendedResponse{ID: r.ID, Payload: payload}, nil
}

// writeResponseMessage encodes a successful Response onto ew.
func writeResponseMessage(ew *frameWriter, protocolVersion uint32, resp Response) {
	switch r := resp.(type) {
	case StatusResponse:
		writeStatus(ew, protocolVersion, r.ID, r.Status, r.Message, r.Lang)
	case HandleResponse:
		writeHandle(ew, r.ID, r.Handle)
	case DataResponse:
		writeData(ew, r.ID, r.Data)
	case NameResponse:
		writeNames(ew, r.ID, r.Names)
	case AttrsResponse:
		writeAttrsResponse(ew, r.ID, r.Attrs)
	case ExtendedResponse:
		writeExtendedReply(ew, r.ID, r.Payload)
	default:
		panic("sftp: unhandled response type in writeResponseMessage")
	}
}
