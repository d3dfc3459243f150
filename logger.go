package sftp

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the package-level logger used by engines that aren't given
// an explicit per-engine override via WithClientLogger or
// WithServerLogger.
var Logger zerolog.Logger

func init() {
	Logger = zerolog.New(
		zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339},
	).With().Timestamp().Caller().Logger()
}

// SetLogger replaces the package-level logger, e.g. to raise the
// level or redirect output.
func SetLogger(l zerolog.Logger) {
	Logger = l
}
