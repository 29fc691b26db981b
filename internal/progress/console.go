package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// ConsoleSink renders snapshots as an interactive bar on a terminal and as
// plain line output everywhere else.
type ConsoleSink struct {
	out   io.Writer
	isTTY bool
	bar   *progressbar.ProgressBar
	total int64
}

// NewConsoleSink builds a sink writing to out (defaults to stderr).
func NewConsoleSink(out io.Writer) *ConsoleSink {
	if out == nil {
		out = os.Stderr
	}
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &ConsoleSink{out: out, isTTY: tty}
}

// Render implements Sink.
func (s *ConsoleSink) Render(snap Snapshot) {
	if s.isTTY {
		s.renderBar(snap)
		return
	}
	s.renderLine(snap)
}

func (s *ConsoleSink) renderBar(snap Snapshot) {
	if s.bar == nil || s.total != snap.TotalBytes {
		s.total = snap.TotalBytes
		s.bar = progressbar.NewOptions64(
			max64(snap.TotalBytes, 1),
			progressbar.OptionSetWriter(s.out),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetDescription("syncing"),
			progressbar.OptionSetTheme(progressbar.Theme{Saucer: "=", SaucerPadding: " ", BarStart: "[", BarEnd: "]"}),
			progressbar.OptionThrottle(50*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = s.bar.Set64(snap.TransferredBytes)
	if snap.Final {
		_ = s.bar.Finish()
		s.renderLine(snap)
		s.bar = nil
	}
}

func (s *ConsoleSink) renderLine(snap Snapshot) {
	done := snap.Counts.Succeeded + snap.Counts.Skipped + snap.Counts.Failed
	eta := "unknown"
	if snap.ETAKnown {
		eta = snap.ETA.Round(time.Second).String()
	}
	if snap.Final {
		fmt.Fprintf(s.out, "synced %d/%d items (%s transferred)\n",
			done, snap.TotalItems, humanize.IBytes(uint64(snap.TransferredBytes)))
		return
	}
	if snap.TotalBytes > 0 {
		fmt.Fprintf(s.out, "progress %d/%d items, %s / %s, %s/s, eta %s\n",
			done, snap.TotalItems,
			humanize.IBytes(uint64(snap.TransferredBytes)),
			humanize.IBytes(uint64(snap.TotalBytes)),
			humanize.IBytes(uint64(snap.Speed)),
			eta)
		return
	}
	fmt.Fprintf(s.out, "progress %d/%d items, %s transferred\n",
		done, snap.TotalItems, humanize.IBytes(uint64(snap.TransferredBytes)))
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
