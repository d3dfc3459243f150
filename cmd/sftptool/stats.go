package main

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mum4k/termdash"
	"github.com/mum4k/termdash/cell"
	"github.com/mum4k/termdash/container"
	"github.com/mum4k/termdash/linestyle"
	"github.com/mum4k/termdash/terminal/tcell"
	"github.com/mum4k/termdash/widgets/linechart"

	"github.com/Bip901/JustSFTP"
)

// runStatsDashboard renders a live throughput chart for the duration of
// ctx, sampling counters on the given interval (SPEC_FULL.md §3). It is
// an alternative to reportStats' plain log lines, selected with
// --dashboard.
func runStatsDashboard(ctx context.Context, counters *sftp.ByteCounters, interval time.Duration) error {
	t, err := tcell.New()
	if err != nil {
		return err
	}
	defer t.Close()

	chart, err := linechart.New(
		linechart.AxesCellOpts(cell.FgColor(cell.ColorNumber(8))),
		linechart.YAxisAdaptive(),
	)
	if err != nil {
		return err
	}

	c, err := container.New(t, container.Border(linestyle.Light), container.BorderTitle("throughput (bytes/sec)"), container.PlaceWidget(chart))
	if err != nil {
		return err
	}

	var readSeries, writeSeries []float64
	var lastRead, lastWritten uint64

	update := func() error {
		read := counters.Read.Load()
		written := counters.Written.Load()
		readSeries = append(readSeries, float64(read-lastRead))
		writeSeries = append(writeSeries, float64(written-lastWritten))
		lastRead, lastWritten = read, written

		if err := chart.Series("read", readSeries, linechart.SeriesCellOpts(cell.FgColor(cell.ColorGreen))); err != nil {
			return err
		}
		return chart.Series("write", writeSeries, linechart.SeriesCellOpts(cell.FgColor(cell.ColorBlue)))
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := update(); err != nil {
					sftp.Logger.Warn().Msgf("dashboard update failed: %v", err)
				}
				read := counters.Read.Load()
				written := counters.Written.Load()
				sftp.Logger.Debug().Msgf("read %s, written %s", humanize.Bytes(read), humanize.Bytes(written))
			}
		}
	}()

	return termdash.Run(ctx, t, c, termdash.RedrawInterval(interval))
}
