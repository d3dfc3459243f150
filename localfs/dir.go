package localfs

import (
	"context"
	"io"

	"github.com/Bip901/JustSFTP"
)

// osDirIterator pages a directory's entries via *os.File.ReadDir,
// converting each to an sftp.Name the way the teacher's InfoToFileInfo
// builds a FileInfo from an os.FileInfo plus its absolute path. The
// first page always leads with "." and ".." the way classic SFTP
// servers do, since many clients assume their presence.
type osDirIterator struct {
	f        *osFile
	dirPath  string
	returned bool
}

var _ sftp.DirIterator = (*osDirIterator)(nil)

func newDirIterator(f osFile, dirPath string) *osDirIterator {
	return &osDirIterator{f: &f, dirPath: dirPath}
}

func (it *osDirIterator) Next(ctx context.Context, n int) ([]sftp.Name, error) {
	if !it.returned {
		it.returned = true
		dotAttrs := sftp.Attributes{}
		if fi, err := it.f.File.Stat(); err == nil {
			dotAttrs = statAttrs(fi)
		}
		return []sftp.Name{
			{Name: ".", LongName: sftp.LongName(".", true, dotAttrs), Attributes: dotAttrs},
			{Name: "..", LongName: sftp.LongName("..", true, dotAttrs), Attributes: dotAttrs},
		}, nil
	}

	entries, err := it.f.File.ReadDir(n)
	if len(entries) == 0 {
		if err == nil || err == io.EOF {
			return nil, io.EOF
		}
		return nil, err
	}

	names := make([]sftp.Name, 0, len(entries))
	for _, de := range entries {
		fi, ferr := de.Info()
		if ferr != nil {
			continue
		}
		attrs := statAttrs(fi)
		names = append(names, sftp.Name{
			Name:       de.Name(),
			LongName:   sftp.LongName(de.Name(), de.IsDir(), attrs),
			Attributes: attrs,
		})
	}
	if err == io.EOF {
		return names, nil
	}
	return names, err
}

func (it *osDirIterator) Close() error {
	return it.f.Close()
}
