// Package localfs is an sftp.Backend that serves a directory tree off
// the local filesystem, grounded on the teacher's own FileInfo/xattr
// handling (fileinfo.go) but rebuilt against sftp.Backend's contract
// instead of the teacher's peer-to-peer sync model.
package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Bip901/JustSFTP"
)

// FS roots every SFTP path at root on the local filesystem. Paths the
// peer sends are resolved under root, so ".." segments cannot escape
// it. Symlink targets are not rewritten: Symlink stores the target as
// the peer sent it, and the host follows such a link as an ordinary
// host path, so a link whose target is absolute or climbs out with
// ".." points outside root.
type FS struct {
	root string
}

var _ sftp.Backend = (*FS)(nil)
var _ sftp.ExtendedHandler = (*FS)(nil)

func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &FS{root: abs}, nil
}

// resolve maps an SFTP-visible path onto a host path under fs.root.
func (fs *FS) resolve(sftpPath string) string {
	cleaned := filepath.Clean("/" + sftpPath)
	return filepath.Join(fs.root, cleaned)
}

// virtualize is resolve's inverse, used by Realpath.
func (fs *FS) virtualize(hostPath string) string {
	rel, err := filepath.Rel(fs.root, hostPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "/"
	}
	if rel == "." {
		return "/"
	}
	return "/" + filepath.ToSlash(rel)
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case os.IsNotExist(err):
		return sftp.NoSuchFile(err)
	case os.IsPermission(err):
		return sftp.NewHandlerFailure(sftp.StatusPermissionDenied, "", err)
	default:
		return sftp.NewHandlerFailure(sftp.StatusFailure, "", err)
	}
}

// Init advertises the extensions this backend can actually fulfill
// (SPEC_FULL.md §4). fstatvfs@openssh.com and fsync@openssh.com are
// deliberately not advertised: both need a resolved handle, and
// sftp.ExtendedHandler only ever sees a request name and a raw payload
// (DESIGN.md).
func (fs *FS) Init(ctx context.Context, clientVersion uint32, clientExtensions map[string]string) (map[string]string, error) {
	return map[string]string{
		"posix-rename@openssh.com": "1",
		"statvfs@openssh.com":      "2",
		"check-file@openssh.com":   "1",
	}, nil
}

func (fs *FS) Open(ctx context.Context, path string, flags uint32, attrs sftp.Attributes) (sftp.File, error) {
	mode := sftp.AccessFlagsToOpenMode(flags)
	perm := os.FileMode(0o666)
	if attrs.HasPermissions {
		perm = os.FileMode(attrs.Permissions & 0o7777)
	}
	f, err := os.OpenFile(fs.resolve(path), openFlags(mode), perm)
	if err != nil {
		return nil, translateErr(err)
	}
	return osFile{f}, nil
}

func (fs *FS) Lstat(ctx context.Context, path string) (sftp.Attributes, error) {
	full := fs.resolve(path)
	fi, err := os.Lstat(full)
	if err != nil {
		return sftp.Attributes{}, translateErr(err)
	}
	a := statAttrs(fi)
	augmentExtended(full, &a)
	return a, nil
}

func (fs *FS) Stat(ctx context.Context, path string) (sftp.Attributes, error) {
	full := fs.resolve(path)
	fi, err := os.Stat(full)
	if err != nil {
		return sftp.Attributes{}, translateErr(err)
	}
	a := statAttrs(fi)
	augmentExtended(full, &a)
	return a, nil
}

func (fs *FS) Fstat(ctx context.Context, f sftp.File) (sftp.Attributes, error) {
	of, ok := f.(osFile)
	if !ok {
		return sftp.Attributes{}, sftp.NewHandlerFailure(sftp.StatusOpUnsupported, "", nil)
	}
	fi, err := of.File.Stat()
	if err != nil {
		return sftp.Attributes{}, translateErr(err)
	}
	a := statAttrs(fi)
	augmentExtended(of.File.Name(), &a)
	return a, nil
}

func (fs *FS) Setstat(ctx context.Context, path string, attrs sftp.Attributes) error {
	full := fs.resolve(path)
	if err := applyAttrs(full, attrs); err != nil {
		return translateErr(err)
	}
	return translateErr(applyExtended(full, attrs))
}

func (fs *FS) Fsetstat(ctx context.Context, f sftp.File, attrs sftp.Attributes) error {
	of, ok := f.(osFile)
	if !ok {
		return sftp.NewHandlerFailure(sftp.StatusOpUnsupported, "", nil)
	}
	if err := applyFdAttrs(of.File, attrs); err != nil {
		return translateErr(err)
	}
	return translateErr(applyExtended(of.File.Name(), attrs))
}

func (fs *FS) Opendir(ctx context.Context, path string) (sftp.DirIterator, error) {
	f, err := os.Open(fs.resolve(path))
	if err != nil {
		return nil, translateErr(err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, translateErr(err)
	}
	if !fi.IsDir() {
		f.Close()
		return nil, sftp.NewHandlerFailure(sftp.StatusFailure, "not a directory", nil)
	}
	return newDirIterator(osFile{f}, path), nil
}

func (fs *FS) Remove(ctx context.Context, path string) error {
	return translateErr(os.Remove(fs.resolve(path)))
}

func (fs *FS) Mkdir(ctx context.Context, path string, attrs sftp.Attributes) error {
	perm := os.FileMode(0o777)
	if attrs.HasPermissions {
		perm = os.FileMode(attrs.Permissions & 0o7777)
	}
	full := fs.resolve(path)
	if err := os.Mkdir(full, perm); err != nil {
		return translateErr(err)
	}
	return translateErr(applyAttrs(full, attrs))
}

func (fs *FS) Rmdir(ctx context.Context, path string) error {
	return translateErr(os.Remove(fs.resolve(path)))
}

// Realpath resolves symlinks and ".."/"." segments within the rooted
// tree, returning an SFTP-visible absolute path (spec.md §4.5).
func (fs *FS) Realpath(ctx context.Context, path string) (string, error) {
	full := fs.resolve(path)
	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		if os.IsNotExist(err) {
			return fs.virtualize(full), nil
		}
		return "", translateErr(err)
	}
	return fs.virtualize(resolved), nil
}

// Rename implements the base RENAME operation, which must fail if
// newPath already exists; posix-rename@openssh.com (Extended, below)
// is the opt-in overwrite form (spec.md §4.5/§6).
func (fs *FS) Rename(ctx context.Context, oldPath, newPath string) error {
	newFull := fs.resolve(newPath)
	if _, err := os.Lstat(newFull); err == nil {
		return sftp.NewHandlerFailure(sftp.StatusFailure, "destination already exists", nil)
	}
	return translateErr(os.Rename(fs.resolve(oldPath), newFull))
}

func (fs *FS) Readlink(ctx context.Context, path string) (string, error) {
	target, err := os.Readlink(fs.resolve(path))
	if err != nil {
		return "", translateErr(err)
	}
	return target, nil
}

func (fs *FS) Symlink(ctx context.Context, linkPath, targetPath string) error {
	return translateErr(os.Symlink(targetPath, fs.resolve(linkPath)))
}

// Extended answers the extensions advertised by Init (SPEC_FULL.md §4).
func (fs *FS) Extended(ctx context.Context, requestName string, payload []byte) ([]byte, error) {
	switch requestName {
	case "posix-rename@openssh.com":
		return fs.posixRename(payload)
	case "statvfs@openssh.com":
		return fs.statvfs(payload)
	case "check-file@openssh.com":
		return fs.checkFile(ctx, payload)
	default:
		return nil, sftp.NewHandlerFailure(sftp.StatusOpUnsupported, "", nil)
	}
}

func readExtString(p []byte) (string, []byte, error) {
	if len(p) < 4 {
		return "", nil, sftp.NewHandlerFailure(sftp.StatusBadMessage, "", io.ErrUnexpectedEOF)
	}
	n := int(uint32(p[0])<<24 | uint32(p[1])<<16 | uint32(p[2])<<8 | uint32(p[3]))
	p = p[4:]
	if len(p) < n {
		return "", nil, sftp.NewHandlerFailure(sftp.StatusBadMessage, "", io.ErrUnexpectedEOF)
	}
	return string(p[:n]), p[n:], nil
}

func readExtUint64(p []byte) (uint64, []byte, error) {
	if len(p) < 8 {
		return 0, nil, sftp.NewHandlerFailure(sftp.StatusBadMessage, "", io.ErrUnexpectedEOF)
	}
	var v uint64
	for _, b := range p[:8] {
		v = v<<8 | uint64(b)
	}
	return v, p[8:], nil
}

func appendExtString(buf []byte, s string) []byte {
	n := uint32(len(s))
	buf = append(buf, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	return append(buf, s...)
}

func appendExtUint64(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// posixRename overwrites newPath if it already exists, unlike the base
// RENAME operation (openssh.com's reason for the extension existing).
func (fs *FS) posixRename(payload []byte) ([]byte, error) {
	oldPath, rest, err := readExtString(payload)
	if err != nil {
		return nil, err
	}
	newPath, _, err := readExtString(rest)
	if err != nil {
		return nil, err
	}
	if err := os.Rename(fs.resolve(oldPath), fs.resolve(newPath)); err != nil {
		return nil, translateErr(err)
	}
	return nil, nil
}
