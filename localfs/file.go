package localfs

import (
	"os"

	"github.com/Bip901/JustSFTP"
)

// osFile adapts *os.File to sftp.File (and sftp.Syncer), grounded on the
// teacher's own io.ReaderAt/io.WriterAt use for transferred files
// (client.go's copy loops) rather than buffered sequential I/O.
type osFile struct {
	*os.File
}

var _ sftp.File = osFile{}
var _ sftp.Syncer = osFile{}

func (f osFile) Sync() error { return f.File.Sync() }

// openFlags translates an sftp.OpenMode (already resolved from the
// wire's access flags by sftp.AccessFlagsToOpenMode) into the os
// package's open flags.
func openFlags(mode sftp.OpenMode) int {
	var flags int
	switch {
	case mode.Read && mode.Write:
		flags = os.O_RDWR
	case mode.Write:
		flags = os.O_WRONLY
	default:
		flags = os.O_RDONLY
	}
	if mode.Append {
		flags |= os.O_APPEND | os.O_WRONLY
	}
	if mode.CreateNew {
		flags |= os.O_CREATE | os.O_EXCL
	} else if mode.Create {
		flags |= os.O_CREATE
	}
	if mode.Truncate {
		flags |= os.O_TRUNC
	}
	return flags
}
