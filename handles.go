package sftp

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"sync"

	"github.com/lkarlslund/gonk"
)

// Handle is the server-chosen opaque token for an open file or
// directory (spec.md §3). Clients must treat it as opaque; this
// package never interprets a handle it receives back except by exact
// byte comparison.
type Handle [16]byte

func newHandle() (Handle, error) {
	var h Handle
	if _, err := rand.Read(h[:]); err != nil {
		return h, err
	}
	return h, nil
}

// File is the byte_source_sink a Backend hands back from Open
// (spec.md §4.3/§4.4): positioned reads and writes, closed once on
// CLOSE or engine teardown.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}

// Syncer is implemented by a File that can flush its dirty pages on
// demand. The engine never calls it: fsync@openssh.com is not
// implemented, because an ExtendedHandler never receives a resolved
// handle (SPEC_FULL.md §4).
type Syncer interface {
	Sync() error
}

// DirIterator is the lazy_sequence_of_name a Backend hands back from
// Opendir (spec.md §4.3/§4.4). Next returns up to n more entries;
// fewer than n (including zero) with a nil error means "that's all for
// now, call again"; io.EOF means the sequence is exhausted.
type DirIterator interface {
	Next(ctx context.Context, n int) ([]Name, error)
}

// handleEntry is the handle table's value type: exactly one of file or
// dirIter is non-nil. gonk orders entries by raw handle bytes, which
// is arbitrary but stable — the table is a lookup structure, not a
// sequence anyone iterates in order.
type handleEntry struct {
	handle  Handle
	path    string
	file    File
	dirIter DirIterator
	// buffered holds names already pulled from dirIter but not yet
	// paged out by READDIR; exhausted is set once dirIter reports io.EOF
	// and buffered has been fully drained.
	buffered  []Name
	exhausted bool
}

func (h handleEntry) LessThan(o handleEntry) bool {
	return bytes.Compare(h.handle[:], o.handle[:]) < 0
}

func (h handleEntry) isDir() bool { return h.dirIter != nil }

func (h handleEntry) close() error {
	if h.file != nil {
		return h.file.Close()
	}
	if c, ok := h.dirIter.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ErrTooManyHandles is the typed overflow failure the handle table
// raises when asked to register a new handle at capacity (spec.md
// §4.3). The server engine translates it to STATUS=FAILURE.
var ErrTooManyHandles = errors.New("sftp: too many open handles")

// HandleTable is the server-side registry mapping opaque handle bytes
// to open file or directory state (spec.md §4.3). It enforces a
// configurable maximum of concurrently open handles; overflow never
// silently leaks the entry that was about to be registered.
type HandleTable struct {
	entries gonk.Gonk[handleEntry]
	max     int

	// liveMu/live track the set of outstanding handles so CloseAll can
	// finalize every entry on teardown; gonk.Gonk exposes lookup by key
	// (Load/Store/Delete/AtomicMutate) but not a full traversal, so this
	// small mirror carries the "close everything" responsibility.
	liveMu sync.Mutex
	live   map[Handle]struct{}
}

func NewHandleTable(max int) *HandleTable {
	if max <= 0 {
		max = DefaultMaxHandles
	}
	return &HandleTable{max: max, live: make(map[Handle]struct{})}
}

func (t *HandleTable) addLocked(entry handleEntry) (Handle, error) {
	if t.entries.Len() >= t.max {
		_ = entry.close()
		return Handle{}, ErrTooManyHandles
	}
	t.entries.Store(entry)
	t.liveMu.Lock()
	t.live[entry.handle] = struct{}{}
	t.liveMu.Unlock()
	return entry.handle, nil
}

// AddFile registers a newly opened file and returns its handle.
func (t *HandleTable) AddFile(path string, f File) (Handle, error) {
	h, err := newHandle()
	if err != nil {
		_ = f.Close()
		return h, err
	}
	return t.addLocked(handleEntry{handle: h, path: path, file: f})
}

// AddDir registers a newly opened directory iterator and returns its handle.
func (t *HandleTable) AddDir(path string, it DirIterator) (Handle, error) {
	h, err := newHandle()
	if err != nil {
		if c, ok := it.(io.Closer); ok {
			_ = c.Close()
		}
		return h, err
	}
	return t.addLocked(handleEntry{handle: h, path: path, dirIter: it})
}

// load looks h up, treating a handle no longer in live as absent even
// if gonk still returns a deleted entry for it.
func (t *HandleTable) load(h Handle) (handleEntry, bool) {
	t.liveMu.Lock()
	_, ok := t.live[h]
	t.liveMu.Unlock()
	if !ok {
		return handleEntry{}, false
	}
	return t.entries.Load(handleEntry{handle: h})
}

// Get looks up an entry without removing it.
func (t *HandleTable) Get(h Handle) (handleEntry, bool) {
	return t.load(h)
}

// Remove finalizes and removes the entry for h. It reports whether a
// matching entry existed.
func (t *HandleTable) Remove(h Handle) bool {
	entry, found := t.load(h)
	if !found {
		return false
	}
	_ = entry.close()
	t.entries.Delete(entry)
	t.liveMu.Lock()
	delete(t.live, h)
	t.liveMu.Unlock()
	return true
}

// RequireFile is the lookup-and-type-check combinator handlers use: it
// raises NoSuchFile if the handle is absent or names a directory, not
// a file (spec.md §4.3).
func (t *HandleTable) RequireFile(h Handle) (File, error) {
	entry, found := t.load(h)
	if !found || entry.isDir() {
		return nil, NoSuchFile(nil)
	}
	return entry.file, nil
}

// RequireDirPage drains up to pageSize buffered names for h, refilling
// the buffer from the backend's iterator when it runs dry. It returns
// io.EOF once the iterator is exhausted and the buffer is empty.
func (t *HandleTable) RequireDirPage(ctx context.Context, h Handle, pageSize int) ([]Name, error) {
	entry, found := t.load(h)
	if !found || !entry.isDir() {
		return nil, NoSuchFile(nil)
	}

	for len(entry.buffered) < pageSize && !entry.exhausted {
		more, err := entry.dirIter.Next(ctx, pageSize-len(entry.buffered))
		entry.buffered = append(entry.buffered, more...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				entry.exhausted = true
				break
			}
			return nil, err
		}
		if len(more) == 0 {
			break
		}
	}

	var page []Name
	if len(entry.buffered) <= pageSize {
		page = entry.buffered
		entry.buffered = nil
	} else {
		page = entry.buffered[:pageSize]
		entry.buffered = entry.buffered[pageSize:]
	}

	t.entries.AtomicMutate(handleEntry{handle: h}, func(e *handleEntry) {
		e.buffered = entry.buffered
		e.exhausted = entry.exhausted
	}, false)

	if len(page) == 0 && entry.exhausted {
		return nil, io.EOF
	}
	return page, nil
}

// CloseAll finalizes every open entry, used on engine teardown
// (spec.md §3).
func (t *HandleTable) CloseAll() {
	t.liveMu.Lock()
	handles := make([]Handle, 0, len(t.live))
	for h := range t.live {
		handles = append(handles, h)
	}
	t.liveMu.Unlock()

	for _, h := range handles {
		t.Remove(h)
	}
}
