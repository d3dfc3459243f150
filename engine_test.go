package sftp

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

// fakeBackend is a minimal in-memory Backend for engine-level tests: a
// single flat namespace of byte slices, no real filesystem involved.
type fakeBackend struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string][]string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{files: map[string][]byte{}, dirs: map[string][]string{}}
}

func (b *fakeBackend) Init(ctx context.Context, clientVersion uint32, clientExtensions map[string]string) (map[string]string, error) {
	return map[string]string{"fake@example.com": "1"}, nil
}

type fakeFile struct {
	b    *fakeBackend
	path string
}

func (f *fakeFile) ReadAt(p []byte, off int64) (int, error) {
	f.b.mu.Lock()
	data := f.b.files[f.path]
	f.b.mu.Unlock()
	if off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *fakeFile) WriteAt(p []byte, off int64) (int, error) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	data := f.b.files[f.path]
	end := off + int64(len(p))
	if end > int64(len(data)) {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	copy(data[off:], p)
	f.b.files[f.path] = data
	return len(p), nil
}

func (f *fakeFile) Close() error { return nil }

func (b *fakeBackend) Open(ctx context.Context, path string, flags uint32, attrs Attributes) (File, error) {
	b.mu.Lock()
	if _, ok := b.files[path]; !ok {
		b.files[path] = nil
	}
	b.mu.Unlock()
	return &fakeFile{b: b, path: path}, nil
}

func (b *fakeBackend) Lstat(ctx context.Context, path string) (Attributes, error) {
	return b.Stat(ctx, path)
}

func (b *fakeBackend) Stat(ctx context.Context, path string) (Attributes, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.files[path]
	if !ok {
		return Attributes{}, NoSuchFile(nil)
	}
	return Attributes{HasSize: true, Size: uint64(len(data))}, nil
}

func (b *fakeBackend) Fstat(ctx context.Context, f File) (Attributes, error) {
	ff := f.(*fakeFile)
	return b.Stat(ctx, ff.path)
}

func (b *fakeBackend) Setstat(ctx context.Context, path string, attrs Attributes) error { return nil }
func (b *fakeBackend) Fsetstat(ctx context.Context, f File, attrs Attributes) error     { return nil }

type fakeDirIterator struct {
	names []string
}

func (it *fakeDirIterator) Next(ctx context.Context, n int) ([]Name, error) {
	if len(it.names) == 0 {
		return nil, io.EOF
	}
	if n > len(it.names) {
		n = len(it.names)
	}
	page := make([]Name, n)
	for i, name := range it.names[:n] {
		page[i] = Name{Name: name, LongName: name}
	}
	it.names = it.names[n:]
	return page, nil
}

func (b *fakeBackend) Opendir(ctx context.Context, path string) (DirIterator, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries, ok := b.dirs[path]
	if !ok {
		return nil, NoSuchFile(nil)
	}
	names := make([]string, len(entries))
	copy(names, entries)
	return &fakeDirIterator{names: names}, nil
}

func (b *fakeBackend) Remove(ctx context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.files[path]; !ok {
		return NoSuchFile(nil)
	}
	delete(b.files, path)
	return nil
}

func (b *fakeBackend) Mkdir(ctx context.Context, path string, attrs Attributes) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dirs[path] = nil
	return nil
}

func (b *fakeBackend) Rmdir(ctx context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.dirs, path)
	return nil
}

func (b *fakeBackend) Realpath(ctx context.Context, path string) (string, error) { return path, nil }

func (b *fakeBackend) Rename(ctx context.Context, oldPath, newPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.files[oldPath]
	if !ok {
		return NoSuchFile(nil)
	}
	b.files[newPath] = data
	delete(b.files, oldPath)
	return nil
}

func (b *fakeBackend) Readlink(ctx context.Context, path string) (string, error) { return "", NoSuchFile(nil) }
func (b *fakeBackend) Symlink(ctx context.Context, linkPath, targetPath string) error { return nil }

func newTestPipe(t *testing.T, backend Backend) (*Client, *Server, func()) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	server := NewServer(serverConn, serverConn, backend)

	ctx, cancel := context.WithCancel(context.Background())
	serverDone := make(chan error, 1)
	go func() { serverDone <- server.Run(ctx) }()

	client, err := NewClient(ctx, clientConn, clientConn)
	if err != nil {
		cancel()
		t.Fatalf("NewClient: %v", err)
	}

	cleanup := func() {
		client.Close()
		cancel()
		serverConn.Close()
		clientConn.Close()
		<-serverDone
	}
	return client, server, cleanup
}

func TestEngineHandshakeNegotiatesVersionAndExtensions(t *testing.T) {
	client, _, cleanup := newTestPipe(t, newFakeBackend())
	defer cleanup()

	if client.ProtocolVersion() != ProtocolVersion {
		t.Fatalf("ProtocolVersion = %d, want %d", client.ProtocolVersion(), ProtocolVersion)
	}
	if client.ServerExtensions()["fake@example.com"] != "1" {
		t.Fatalf("ServerExtensions = %v, missing fake@example.com", client.ServerExtensions())
	}
}

func TestEngineWriteReadRoundTrip(t *testing.T) {
	client, _, cleanup := newTestPipe(t, newFakeBackend())
	defer cleanup()
	ctx := context.Background()

	f, err := client.OpenFile(ctx, "/greeting.txt", AccessRead|AccessWrite|AccessCreate, Attributes{})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.WriteAt([]byte("hello world"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	buf := make([]byte, 5)
	n, err := f.ReadAt(buf, 0)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if n != 5 || string(buf) != "hello" {
		t.Fatalf("ReadAt = %q, want %q", buf[:n], "hello")
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestEngineReadAtEOFReturnsIOEOFNotZeroData(t *testing.T) {
	client, _, cleanup := newTestPipe(t, newFakeBackend())
	defer cleanup()
	ctx := context.Background()

	f, err := client.OpenFile(ctx, "/empty.txt", AccessRead|AccessWrite|AccessCreate, Attributes{})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	buf := make([]byte, 4)
	n, err := f.ReadAt(buf, 0)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("ReadAt at EOF err = %v, want io.EOF", err)
	}
	if n != 0 {
		t.Fatalf("ReadAt at EOF n = %d, want 0", n)
	}
}

func TestEngineHandleIsInvalidAfterClose(t *testing.T) {
	client, _, cleanup := newTestPipe(t, newFakeBackend())
	defer cleanup()
	ctx := context.Background()

	f, err := client.OpenFile(ctx, "/x.txt", AccessRead|AccessWrite|AccessCreate, Attributes{})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err = f.ReadAt(make([]byte, 1), 0)
	if !IsStatus(err, StatusNoSuchFile) {
		t.Fatalf("ReadAt after close err = %v, want StatusNoSuchFile", err)
	}
}

func TestEngineReaddirExhaustionReturnsIOEOF(t *testing.T) {
	backend := newFakeBackend()
	backend.dirs["/listing"] = []string{"a", "b", "c"}
	client, _, cleanup := newTestPipe(t, backend)
	defer cleanup()
	ctx := context.Background()

	dir, err := client.OpenDir(ctx, "/listing")
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	defer dir.Close(ctx)

	var got []string
	for {
		names, err := dir.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		for _, n := range names {
			got = append(got, n.Name)
		}
	}
	if len(got) != 3 {
		t.Fatalf("got %v entries, want 3", got)
	}
}

func TestEngineConcurrentRequestsCorrelateByID(t *testing.T) {
	client, _, cleanup := newTestPipe(t, newFakeBackend())
	defer cleanup()
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := "/concurrent-" + string(rune('a'+i))
			f, err := client.OpenFile(ctx, path, AccessRead|AccessWrite|AccessCreate, Attributes{})
			if err != nil {
				errs <- err
				return
			}
			defer f.Close()
			if _, err := f.WriteAt([]byte(path), 0); err != nil {
				errs <- err
				return
			}
			buf := make([]byte, len(path))
			if _, err := f.ReadAt(buf, 0); err != nil {
				errs <- err
				return
			}
			if string(buf) != path {
				errs <- errors.New("mismatched readback for " + path)
				return
			}
			errs <- nil
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent request failed: %v", err)
		}
	}
}

func TestEngineRequestAfterClientCloseFailsWithErrDisposed(t *testing.T) {
	client, _, cleanup := newTestPipe(t, newFakeBackend())
	ctx := context.Background()

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err := client.Lstat(ctx, "/anything")
	if !errors.Is(err, ErrDisposed) {
		t.Fatalf("Lstat after Close err = %v, want ErrDisposed", err)
	}
	cleanup()
}

func TestEngineServerTerminationDisposesClient(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	backend := newFakeBackend()
	server := NewServer(serverConn, serverConn, backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serverDone := make(chan error, 1)
	go func() { serverDone <- server.Run(ctx) }()

	client, err := NewClient(ctx, clientConn, clientConn)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	serverConn.Close()

	select {
	case <-serverDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("server.Run did not return after its connection closed")
	}

	_, err = client.Lstat(context.Background(), "/anything")
	if err == nil {
		t.Fatalf("Lstat after server termination succeeded, want an error")
	}
	clientConn.Close()
}
