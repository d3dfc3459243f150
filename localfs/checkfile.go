package localfs

import (
	"context"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/Bip901/JustSFTP"
)

// checkFile answers check-file@openssh.com using xxhash-64 as its sole
// supported digest algorithm (no SHA implementation is wired into this
// module; SPEC_FULL.md §4 names the substitution explicitly). Payload:
// path, alg-list (comma-separated, must include "xxhash-64"),
// start-offset, length (0 means "to EOF"), block-size (0 means "one
// block covering the whole range"). Reply: alg-name, then one 8-byte
// digest per block.
func (fs *FS) checkFile(ctx context.Context, payload []byte) ([]byte, error) {
	path, rest, err := readExtString(payload)
	if err != nil {
		return nil, err
	}
	algList, rest, err := readExtString(rest)
	if err != nil {
		return nil, err
	}
	if !containsAlg(algList, "xxhash-64") {
		return nil, sftp.NewHandlerFailure(sftp.StatusOpUnsupported, "only xxhash-64 is supported", nil)
	}
	start, rest, err := readExtUint64(rest)
	if err != nil {
		return nil, err
	}
	length, rest, err := readExtUint64(rest)
	if err != nil {
		return nil, err
	}
	blockSize, _, err := readExtUint64(rest)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fs.resolve(path))
	if err != nil {
		return nil, translateErr(err)
	}
	defer f.Close()

	if length == 0 {
		fi, err := f.Stat()
		if err != nil {
			return nil, translateErr(err)
		}
		length = uint64(fi.Size()) - start
	}
	if blockSize == 0 {
		blockSize = length
	}
	if blockSize == 0 {
		return appendExtString(nil, "xxhash-64"), nil
	}

	buf := make([]byte, blockSize)
	reply := appendExtString(nil, "xxhash-64")
	remaining := length
	offset := int64(start)
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := blockSize
		if remaining < n {
			n = remaining
		}
		got, err := f.ReadAt(buf[:n], offset)
		if err != nil && err != io.EOF {
			return nil, translateErr(err)
		}
		reply = appendExtUint64(reply, xxhash.Sum64(buf[:got]))
		offset += int64(got)
		remaining -= uint64(got)
		if got == 0 {
			break
		}
	}
	return reply, nil
}

func containsAlg(list, want string) bool {
	start := 0
	for i := 0; i <= len(list); i++ {
		if i == len(list) || list[i] == ',' {
			if list[start:i] == want {
				return true
			}
			start = i + 1
		}
	}
	return false
}
