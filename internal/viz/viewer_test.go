package viz_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"rgbdtum/internal/engine"
	"rgbdtum/internal/logging"
	"rgbdtum/internal/trajectory"
	"rgbdtum/internal/viz"
)

func snapshotFunc() func() engine.Snapshot {
	return func() engine.Snapshot {
		return engine.Snapshot{
			State:         engine.StateTracking,
			FramesTracked: 42,
			Keyframes:     7,
			LastTimestamp: 1305031102.175304,
			CurrentPose:   trajectory.Identity(),
		}
	}
}

func TestRunRendersTableOnTerminal(t *testing.T) {
	var buf bytes.Buffer
	v := viz.New(5*time.Millisecond, logging.NewNop(), viz.WithOutput(&buf, true))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	v.Run(ctx, snapshotFunc())

	out := buf.String()
	if !strings.Contains(out, "42") {
		t.Fatalf("expected frame count in output, got %q", out)
	}
	if !strings.Contains(out, "tracking") {
		t.Fatalf("expected engine state in output, got %q", out)
	}
}

func TestRunReturnsOnCancellation(t *testing.T) {
	var buf bytes.Buffer
	v := viz.New(time.Minute, logging.NewNop(), viz.WithOutput(&buf, false))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		v.Run(ctx, snapshotFunc())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("viewer did not return after cancellation")
	}
}
