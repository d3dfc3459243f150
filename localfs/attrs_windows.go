//go:build windows
// +build windows

package localfs

import (
	"os"
	"syscall"
	"time"

	"github.com/Bip901/JustSFTP"
)

// statAttrs has no uid/gid or POSIX permission bits to report on
// Windows; it reports size and timestamps only, leaving HasUIDGID and
// HasPermissions false rather than fabricating values (spec.md §4.1:
// unset attribute flags, not zero values, signal "don't know").
func statAttrs(fi os.FileInfo) sftp.Attributes {
	a := sftp.Attributes{
		HasSize: true,
		Size:    uint64(fi.Size()),
	}
	if native, ok := fi.Sys().(*syscall.Win32FileAttributeData); ok {
		a.HasACModTime = true
		a.AccessTime = uint32(time.Unix(0, native.LastAccessTime.Nanoseconds()).Unix())
		a.ModifyTime = uint32(time.Unix(0, native.LastWriteTime.Nanoseconds()).Unix())
	}
	return a
}

func applyAttrs(path string, attrs sftp.Attributes) error {
	if attrs.HasSize {
		if err := os.Truncate(path, int64(attrs.Size)); err != nil {
			return err
		}
	}
	if attrs.HasACModTime {
		at := time.Unix(int64(attrs.AccessTime), 0)
		mt := time.Unix(int64(attrs.ModifyTime), 0)
		if err := os.Chtimes(path, at, mt); err != nil {
			return err
		}
	}
	return nil
}

func applyFdAttrs(f *os.File, attrs sftp.Attributes) error {
	return applyAttrs(f.Name(), attrs)
}

func listXattrs(path string) (map[string][]byte, error) {
	return nil, sftp.NewHandlerFailure(sftp.StatusOpUnsupported, "extended attributes are not supported on this platform", nil)
}

// augmentExtended/applyExtended are no-ops on Windows: there is
// neither a POSIX ACL nor an xattr store to fold into Attributes.Extended.
func augmentExtended(path string, a *sftp.Attributes) {}

func applyExtended(path string, attrs sftp.Attributes) error { return nil }
