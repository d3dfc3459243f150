package sftp

import (
	"context"
	"errors"
	"io"
	"testing"
)

type memFile struct {
	data   []byte
	closed bool
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:], p)
	return len(p), nil
}

func (f *memFile) Close() error {
	f.closed = true
	return nil
}

type memDir struct {
	names  []Name
	closed bool
}

func (d *memDir) Next(ctx context.Context, n int) ([]Name, error) {
	if len(d.names) == 0 {
		return nil, io.EOF
	}
	if n > len(d.names) {
		n = len(d.names)
	}
	page := d.names[:n]
	d.names = d.names[n:]
	return page, nil
}

func TestHandleTableFileLifecycle(t *testing.T) {
	ht := NewHandleTable(4)
	f := &memFile{}
	h, err := ht.AddFile("/a", f)
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	got, err := ht.RequireFile(h)
	if err != nil || got != f {
		t.Fatalf("RequireFile = %v, %v", got, err)
	}

	if !ht.Remove(h) {
		t.Fatalf("Remove reported false for a live handle")
	}
	if !f.closed {
		t.Fatalf("file was not closed on Remove")
	}

	_, err = ht.RequireFile(h)
	hf, ok := asHandlerFailure(err)
	if !ok || hf.Status != StatusNoSuchFile {
		t.Fatalf("RequireFile after removal = %v, want NoSuchFile", err)
	}
}

func TestHandleTableOverflowDoesNotLeak(t *testing.T) {
	ht := NewHandleTable(1)
	f1 := &memFile{}
	if _, err := ht.AddFile("/a", f1); err != nil {
		t.Fatalf("AddFile 1: %v", err)
	}

	f2 := &memFile{}
	_, err := ht.AddFile("/b", f2)
	if !errors.Is(err, ErrTooManyHandles) {
		t.Fatalf("err = %v, want ErrTooManyHandles", err)
	}
	if !f2.closed {
		t.Fatalf("the rejected file was not closed")
	}
	if f1.closed {
		t.Fatalf("the accepted file must not be closed")
	}
}

func TestHandleTableCloseAllFinalizesEverything(t *testing.T) {
	ht := NewHandleTable(8)
	files := make([]*memFile, 3)
	for i := range files {
		files[i] = &memFile{}
		if _, err := ht.AddFile("/x", files[i]); err != nil {
			t.Fatalf("AddFile: %v", err)
		}
	}
	ht.CloseAll()
	for i, f := range files {
		if !f.closed {
			t.Errorf("file %d was not closed by CloseAll", i)
		}
	}
}

func TestHandleTableDirPagingExhaustion(t *testing.T) {
	ht := NewHandleTable(4)
	dir := &memDir{names: []Name{{Name: "a"}, {Name: "b"}, {Name: "c"}}}
	h, err := ht.AddDir("/d", dir)
	if err != nil {
		t.Fatalf("AddDir: %v", err)
	}

	page, err := ht.RequireDirPage(context.Background(), h, 2)
	if err != nil {
		t.Fatalf("RequireDirPage 1: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page 1 length = %d, want 2", len(page))
	}

	page, err = ht.RequireDirPage(context.Background(), h, 2)
	if err != nil {
		t.Fatalf("RequireDirPage 2: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("page 2 length = %d, want 1", len(page))
	}

	_, err = ht.RequireDirPage(context.Background(), h, 2)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want io.EOF once exhausted", err)
	}
}
