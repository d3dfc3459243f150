package main

import (
	"context"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/Bip901/JustSFTP"
	"github.com/Bip901/JustSFTP/localfs"
)

func main() {
	bind := pflag.String("bind", "0.0.0.0:7331", "Address to bind/connect to")
	directory := pflag.String("directory", ".", "Directory to expose as the filesystem root")
	compress := pflag.Bool("compress", false, "Apply S2 stream compression to the connection")
	statsinterval := pflag.Int("statsinterval", 5, "Show transfer stats every N seconds, 0 to disable")
	dashboard := pflag.Bool("dashboard", false, "Show a live terminal throughput chart instead of log lines (client mode)")
	loglevel := pflag.String("loglevel", "info", "Log level")
	maxhandles := pflag.Int("maxhandles", sftp.DefaultMaxHandles, "Maximum concurrently open handles (server mode)")

	pflag.Parse()

	sftp.SetLogger(sftp.Logger.Level(parseLevel(*loglevel)))

	var err error
	if *directory == "." {
		*directory, err = os.Getwd()
		if err != nil {
			sftp.Logger.Fatal().Msgf("Error getting working directory: %v", err)
		}
	}

	if len(pflag.Args()) == 0 {
		sftp.Logger.Fatal().Msg("Need command argument: serve or client")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch strings.ToLower(pflag.Arg(0)) {
	case "serve":
		runServer(ctx, *bind, *directory, *maxhandles, *compress)
	case "client":
		runClient(ctx, *bind, *compress, *statsinterval, *dashboard)
	default:
		sftp.Logger.Fatal().Msgf("Invalid mode: %v", pflag.Arg(0))
	}
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		sftp.Logger.Fatal().Msgf("Invalid log level: %v", s)
		return zerolog.InfoLevel
	}
}

func runServer(ctx context.Context, bind, directory string, maxHandles int, compress bool) {
	backend, err := localfs.NewFS(directory)
	if err != nil {
		sftp.Logger.Fatal().Msgf("Error setting up filesystem root: %v", err)
	}

	listener, err := net.Listen("tcp", bind)
	if err != nil {
		sftp.Logger.Fatal().Msgf("Error binding listener: %v", err)
	}
	sftp.Logger.Info().Msgf("Listening on %s, serving %s", bind, directory)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			sftp.Logger.Error().Msgf("Error accepting connection: %v", err)
			continue
		}
		sftp.Logger.Info().Msgf("Accepted connection from %v", conn.RemoteAddr())
		go func() {
			defer conn.Close()
			stream := wrapStream(conn, compress)
			server := sftp.NewServer(stream, stream, backend, sftp.WithMaxHandles(maxHandles))
			if err := server.Run(ctx); err != nil {
				sftp.Logger.Warn().Msgf("Connection from %v ended: %v", conn.RemoteAddr(), err)
			} else {
				sftp.Logger.Info().Msgf("Closed connection from %v", conn.RemoteAddr())
			}
		}()
	}
}

func runClient(ctx context.Context, bind string, compress bool, statsInterval int, dashboard bool) {
	conn, err := net.Dial("tcp", bind)
	if err != nil {
		sftp.Logger.Fatal().Msgf("Error connecting to %s: %v", bind, err)
	}
	defer conn.Close()
	sftp.Logger.Info().Msgf("Connected to %s", bind)

	counters := &sftp.ByteCounters{}
	counted := sftp.NewCountingReadWriteCloser(conn, counters)
	stream := wrapStream(counted, compress)

	client, err := sftp.NewClient(ctx, stream, stream)
	if err != nil {
		sftp.Logger.Fatal().Msgf("Error performing handshake: %v", err)
	}
	defer client.Close()

	switch {
	case dashboard:
		go func() {
			if err := runStatsDashboard(ctx, counters, time.Second); err != nil {
				sftp.Logger.Warn().Msgf("dashboard exited: %v", err)
			}
		}()
	case statsInterval > 0:
		go reportStats(ctx, counters, statsInterval)
	}

	names, err := client.ReadDirAll(ctx, "/")
	if err != nil {
		sftp.Logger.Error().Msgf("Error listing /: %v", err)
		return
	}
	for _, n := range names {
		sftp.Logger.Info().Msg(n.LongName)
	}
}

// wrapStream optionally layers S2 compression over a raw
// io.ReadWriteCloser (SPEC_FULL.md §3).
func wrapStream(rwc io.ReadWriteCloser, compress bool) io.ReadWriteCloser {
	if !compress {
		return rwc
	}
	return sftp.NewCompressedReadWriteCloser(rwc)
}

func reportStats(ctx context.Context, counters *sftp.ByteCounters, intervalSeconds int) {
	interval := time.Duration(intervalSeconds) * time.Second
	var lastRead, lastWritten uint64
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			read := counters.Read.Load()
			written := counters.Written.Load()
			sftp.Logger.Info().Msgf("in %v/sec, out %v/sec",
				humanize.Bytes((read-lastRead)/uint64(intervalSeconds)),
				humanize.Bytes((written-lastWritten)/uint64(intervalSeconds)))
			lastRead, lastWritten = read, written
		}
	}
}
