//go:build windows
// +build windows

package localfs

type statvfsFields struct {
	bsize, frsize          uint64
	blocks, bfree, bavail  uint64
	files, ffree, favail   uint64
	fsid, flag, namemax    uint64
}

func statfsFields(path string) (statvfsFields, error) {
	return statvfsFields{}, errUnsupported
}
