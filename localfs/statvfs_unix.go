//go:build !windows
// +build !windows

package localfs

import "golang.org/x/sys/unix"

// statvfsFields mirrors the wire layout of OpenSSH's statvfs@openssh.com
// reply: eleven big-endian uint64 fields (SPEC_FULL.md §4).
type statvfsFields struct {
	bsize, frsize                     uint64
	blocks, bfree, bavail             uint64
	files, ffree, favail              uint64
	fsid, flag, namemax               uint64
}

func statfsFields(path string) (statvfsFields, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return statvfsFields{}, err
	}
	var flag uint64
	if st.Flags&unix.MS_RDONLY != 0 {
		flag |= 0x1
	}
	if st.Flags&unix.MS_NOSUID != 0 {
		flag |= 0x2
	}
	return statvfsFields{
		bsize:   uint64(st.Bsize),
		frsize:  uint64(st.Bsize),
		blocks:  st.Blocks,
		bfree:   st.Bfree,
		bavail:  st.Bavail,
		files:   st.Files,
		ffree:   st.Ffree,
		favail:  st.Ffree,
		fsid:    uint64(st.Fsid.Val[0]),
		flag:    flag,
		namemax: uint64(st.Namelen),
	}, nil
}
