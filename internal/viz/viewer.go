// Package viz renders live replay progress on the controlling goroutine.
// It only ever reads engine snapshots; frame submission happens elsewhere.
package viz

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"

	"rgbdtum/internal/engine"
	"rgbdtum/internal/logging"
)

const clearScreen = "\x1b[2J\x1b[H"

// Viewer polls engine state at a bounded interval and renders it until the
// context is cancelled.
type Viewer struct {
	logger   *slog.Logger
	out      io.Writer
	interval time.Duration
	isTTY    bool
}

// Option configures the viewer.
type Option func(*Viewer)

// WithOutput redirects rendering, mainly for tests.
func WithOutput(out io.Writer, isTTY bool) Option {
	return func(v *Viewer) {
		v.out = out
		v.isTTY = isTTY
	}
}

// New constructs a viewer writing to stdout. Off a terminal the live table
// degrades to periodic log lines.
func New(refreshInterval time.Duration, logger *slog.Logger, opts ...Option) *Viewer {
	v := &Viewer{
		logger:   logging.NewComponentLogger(logger, "viewer"),
		out:      os.Stdout,
		interval: refreshInterval,
		isTTY:    isatty.IsTerminal(os.Stdout.Fd()),
	}
	if v.interval <= 0 {
		v.interval = 250 * time.Millisecond
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Run blocks until ctx is cancelled, rendering one final frame before
// returning so the terminal shows the end state.
func (v *Viewer) Run(ctx context.Context, snapshot func() engine.Snapshot) {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			v.render(snapshot())
			return
		case <-ticker.C:
			v.render(snapshot())
		}
	}
}

func (v *Viewer) render(snap engine.Snapshot) {
	if !v.isTTY {
		v.logger.Info("tracking progress",
			logging.String("state", string(snap.State)),
			logging.Int("frames", snap.FramesTracked),
			logging.Int("keyframes", snap.Keyframes),
			logging.Float64(logging.FieldTimestamp, snap.LastTimestamp),
		)
		return
	}

	t := snap.CurrentPose.Translation
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Field", "Value"})
	tw.AppendRows([]table.Row{
		{"state", string(snap.State)},
		{"frames tracked", snap.FramesTracked},
		{"keyframes", snap.Keyframes},
		{"last timestamp", fmt.Sprintf("%.6f", snap.LastTimestamp)},
		{"position (m)", fmt.Sprintf("%.3f %.3f %.3f", t.X, t.Y, t.Z)},
	})
	fmt.Fprint(v.out, clearScreen)
	fmt.Fprintln(v.out, tw.Render())
}
