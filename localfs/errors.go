package localfs

import "errors"

var errUnsupported = errors.New("localfs: not supported on this platform")
