//go:build !windows
// +build !windows

package localfs

import (
	"os"
	"strings"
	"syscall"
	"time"

	eintr "github.com/akihirosuda/x-sys-unix-auto-eintr"
	"github.com/pkg/xattr"
	"golang.org/x/sys/unix"

	"github.com/Bip901/JustSFTP"
)

// statAttrs builds an sftp.Attributes record from a Lstat/Stat result,
// following the same *syscall.Stat_t field mapping as the teacher's
// FileInfo extraction (fileinfo_unix.go): inode/link/device fields are
// platform detail the protocol doesn't carry, so only size, uid/gid,
// permission bits and access/modify time make it onto the wire.
func statAttrs(fi os.FileInfo) sftp.Attributes {
	a := sftp.Attributes{
		HasSize:        true,
		Size:           uint64(fi.Size()),
		HasPermissions: true,
		Permissions:    uint32(fi.Mode().Perm()),
	}
	if fi.Mode()&os.ModeSetuid != 0 {
		a.Permissions |= syscall.S_ISUID
	}
	if fi.Mode()&os.ModeSetgid != 0 {
		a.Permissions |= syscall.S_ISGID
	}
	if fi.Mode()&os.ModeSticky != 0 {
		a.Permissions |= syscall.S_ISVTX
	}

	if stat, ok := fi.Sys().(*syscall.Stat_t); ok {
		a.HasUIDGID = true
		a.UID = stat.Uid
		a.GID = stat.Gid

		atim, mtim, _ := getAMtime(*stat)
		a.HasACModTime = true
		a.AccessTime = uint32(atim.Sec)
		a.ModifyTime = uint32(mtim.Sec)
	}
	return a
}

// applyAttrs sets whichever fields attrs carries onto path, via lchown/
// chmod/utimes so symlinks themselves (not their targets) are affected,
// matching spec.md §4.4's per-path SETSTAT/MKDIR semantics. Where the
// platform cannot chmod a symlink itself (Linux), permissions are
// applied to any path that is not a symlink and skipped for symlinks;
// size is applied with truncate, which follows symlinks.
func applyAttrs(path string, attrs sftp.Attributes) error {
	if attrs.HasUIDGID {
		if err := unix.Lchown(path, int(attrs.UID), int(attrs.GID)); err != nil {
			return err
		}
	}
	if attrs.HasPermissions {
		err := unix.Fchmodat(unix.AT_FDCWD, path, attrs.Permissions, unix.AT_SYMLINK_NOFOLLOW)
		if err == unix.ENOTSUP {
			fi, lerr := os.Lstat(path)
			err = lerr
			if lerr == nil && fi.Mode()&os.ModeSymlink == 0 {
				err = unix.Chmod(path, attrs.Permissions&0o7777)
			}
		}
		if err != nil {
			return err
		}
	}
	if attrs.HasSize {
		if err := os.Truncate(path, int64(attrs.Size)); err != nil {
			return err
		}
	}
	if attrs.HasACModTime {
		ts := []unix.Timespec{
			{Sec: int64(attrs.AccessTime), Nsec: 0},
			{Sec: int64(attrs.ModifyTime), Nsec: 0},
		}
		if err := eintr.UtimesNanoAt(unix.AT_FDCWD, path, ts, unix.AT_SYMLINK_NOFOLLOW); err != nil {
			return err
		}
	}
	return nil
}

func applyFdAttrs(f *os.File, attrs sftp.Attributes) error {
	if attrs.HasUIDGID {
		if err := f.Chown(int(attrs.UID), int(attrs.GID)); err != nil {
			return err
		}
	}
	if attrs.HasPermissions {
		if err := f.Chmod(os.FileMode(attrs.Permissions & 0o7777)); err != nil {
			return err
		}
	}
	if attrs.HasSize {
		if err := f.Truncate(int64(attrs.Size)); err != nil {
			return err
		}
	}
	if attrs.HasACModTime {
		at := time.Unix(int64(attrs.AccessTime), 0)
		mt := time.Unix(int64(attrs.ModifyTime), 0)
		if err := os.Chtimes(f.Name(), at, mt); err != nil {
			return err
		}
	}
	return nil
}

// listXattrs reads the extended attribute set for path; augmentExtended
// folds it into the attributes answered for LSTAT/STAT/FSTAT.
func listXattrs(path string) (map[string][]byte, error) {
	if !xattr.XATTR_SUPPORTED {
		return nil, nil
	}
	names, err := xattr.LList(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(names))
	for _, name := range names {
		v, err := xattr.LGet(path, name)
		if err != nil {
			continue
		}
		out[name] = v
	}
	return out, nil
}

// augmentExtended folds xattrs and the POSIX ACL onto a, under the
// Extended map SSH_FILEXFER_ATTR_EXTENDED carries on the wire (spec.md
// §4.1). Explicit LSTAT/STAT/FSTAT calls pay for this; directory
// listings don't, to keep READDIR paging cheap.
func augmentExtended(path string, a *sftp.Attributes) {
	if xattrs, err := listXattrs(path); err == nil {
		for name, v := range xattrs {
			if a.Extended == nil {
				a.Extended = map[string]string{}
			}
			a.Extended["xattr:"+name] = string(v)
		}
	}
	if posixACL, err := readACL(path); err == nil && len(posixACL) > 0 {
		if a.Extended == nil {
			a.Extended = map[string]string{}
		}
		a.Extended[extKeyACL] = encodeACL(posixACL)
	}
}

// applyExtended is augmentExtended's inverse: it applies any xattr:*
// or acl@openssh.com entries a SETSTAT/FSETSTAT carried back.
func applyExtended(path string, attrs sftp.Attributes) error {
	for key, v := range attrs.Extended {
		name, ok := strings.CutPrefix(key, "xattr:")
		if !ok {
			continue
		}
		if err := xattr.LSet(path, name, []byte(v)); err != nil {
			return err
		}
	}
	if v, ok := attrs.Extended[extKeyACL]; ok {
		a, err := decodeACL(v)
		if err != nil {
			return err
		}
		if err := applyACL(path, a); err != nil {
			return err
		}
	}
	return nil
}
