package localfs

import (
	"errors"

	"github.com/Bip901/JustSFTP"
)

// statvfs answers statvfs@openssh.com: a path in, eleven big-endian
// uint64 filesystem-capacity fields out (SPEC_FULL.md §4).
func (fs *FS) statvfs(payload []byte) ([]byte, error) {
	path, _, err := readExtString(payload)
	if err != nil {
		return nil, err
	}
	fields, err := statfsFields(fs.resolve(path))
	if errors.Is(err, errUnsupported) {
		return nil, sftp.NewHandlerFailure(sftp.StatusOpUnsupported, "", err)
	}
	if err != nil {
		return nil, translateErr(err)
	}
	var buf []byte
	for _, v := range []uint64{
		fields.bsize, fields.frsize,
		fields.blocks, fields.bfree, fields.bavail,
		fields.files, fields.ffree, fields.favail,
		fields.fsid, fields.flag, fields.namemax,
	} {
		buf = appendExtUint64(buf, v)
	}
	return buf, nil
}
