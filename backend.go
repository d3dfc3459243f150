package sftp

import "context"

// Backend is the pluggable capability set the server engine invokes to
// fulfill each request (spec.md §4.4). Every method accepts a context
// for cancellation and returns a typed failure: an error that is, or
// wraps, a *HandlerFailure carries the StatusCode the server should
// answer with; any other error becomes StatusFailure (spec.md §7).
//
// Open/Opendir hand back the concrete byte_source_sink/iterator
// (File/DirIterator) rather than raw "handle bytes" — the engine's
// HandleTable is what manufactures the wire-visible opaque handle, per
// spec.md §4.3's entry shape ({path, byte_source_sink} /
// {path, lazy_iterator_factory, ...}), which is more precise than
// §4.4's terse "-> handle_bytes" summary of the same contract.
type Backend interface {
	// Init is called once, after version negotiation, with the
	// client's requested extensions; it returns the extensions this
	// backend advertises back in the VERSION response.
	Init(ctx context.Context, clientVersion uint32, clientExtensions map[string]string) (map[string]string, error)

	Open(ctx context.Context, path string, flags uint32, attrs Attributes) (File, error)
	Lstat(ctx context.Context, path string) (Attributes, error)
	Fstat(ctx context.Context, f File) (Attributes, error)
	Setstat(ctx context.Context, path string, attrs Attributes) error
	Fsetstat(ctx context.Context, f File, attrs Attributes) error
	Opendir(ctx context.Context, path string) (DirIterator, error)
	Remove(ctx context.Context, path string) error
	Mkdir(ctx context.Context, path string, attrs Attributes) error
	Rmdir(ctx context.Context, path string) error
	Realpath(ctx context.Context, path string) (string, error)
	Stat(ctx context.Context, path string) (Attributes, error)
	Rename(ctx context.Context, oldPath, newPath string) error
	Readlink(ctx context.Context, path string) (string, error)
	Symlink(ctx context.Context, linkPath, targetPath string) error
}

// ExtendedHandler is an optional capability: a Backend that implements
// it answers EXTENDED requests itself; one that doesn't gets the
// default OP_UNSUPPORTED reply (spec.md §4.4).
type ExtendedHandler interface {
	Extended(ctx context.Context, requestName string, payload []byte) ([]byte, error)
}

// handleExtended dispatches to backend's ExtendedHandler if it has
// one, else returns the default unsupported failure.
func handleExtended(ctx context.Context, backend Backend, requestName string, payload []byte) ([]byte, error) {
	if h, ok := backend.(ExtendedHandler); ok {
		return h.Extended(ctx, requestName, payload)
	}
	return nil, NewHandlerFailure(StatusOpUnsupported, "", nil)
}

// OpenMode is the conventional create/truncate/append decomposition of
// an OPEN request's access flags (spec.md §6), for backends that map
// onto a typical filesystem API.
type OpenMode struct {
	Read, Write bool
	Append      bool
	Create      bool
	CreateNew   bool // CREATE|EXCLUSIVE: fail if the file already exists
	Truncate    bool
}

// AccessFlagsToOpenMode implements the access-flag table of spec.md §6,
// resolving the two-revisions ambiguity noted in spec.md §9 by adopting
// the more conservative mapping the spec itself settles on: TRUNCATE
// without CREATE truncates an existing file rather than creating a new
// one (DESIGN.md open question 2).
func AccessFlagsToOpenMode(flags uint32) OpenMode {
	m := OpenMode{
		Read:  flags&AccessRead != 0,
		Write: flags&AccessWrite != 0,
	}
	create := flags&AccessCreate != 0
	trunc := flags&AccessTrunc != 0
	excl := flags&AccessExcl != 0
	switch {
	case create && excl:
		m.CreateNew = true
	case create && trunc:
		m.Create = true
		m.Truncate = true
	case create:
		m.Create = true
	case trunc:
		m.Truncate = true
	case flags&AccessAppend != 0:
		m.Append = true
	}
	return m
}
