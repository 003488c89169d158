package producer_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"rgbdtum/internal/catalog"
	"rgbdtum/internal/frame"
	"rgbdtum/internal/logging"
	"rgbdtum/internal/producer"
	"rgbdtum/internal/testsupport"
	"rgbdtum/internal/trajectory"
)

// recordingSink tracks submission order and detects overlapping Submit
// calls, which would mean two frames were in flight at once.
type recordingSink struct {
	mu         sync.Mutex
	inFlight   bool
	overlapped bool
	timestamps []float64

	cancelAfter int
	cancel      context.CancelFunc
	err         error
}

func (s *recordingSink) Submit(ctx context.Context, f frame.Frame) (trajectory.Pose, error) {
	s.mu.Lock()
	if s.inFlight {
		s.overlapped = true
	}
	s.inFlight = true
	s.mu.Unlock()

	time.Sleep(time.Millisecond)

	s.mu.Lock()
	s.inFlight = false
	s.timestamps = append(s.timestamps, f.Timestamp)
	submitted := len(s.timestamps)
	s.mu.Unlock()

	if s.err != nil {
		return trajectory.Pose{}, s.err
	}
	if s.cancel != nil && submitted == s.cancelAfter {
		s.cancel()
	}
	return trajectory.Identity(), nil
}

func loadCatalog(t *testing.T, seq testsupport.Sequence) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load(seq.AssociationPath, seq.Dir)
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	return cat
}

func TestRunSubmitsInManifestOrder(t *testing.T) {
	seq := testsupport.WriteSequence(t, 5)
	cat := loadCatalog(t, seq)
	sink := &recordingSink{}

	if err := producer.New(logging.NewNop()).Run(context.Background(), cat, sink); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sink.overlapped {
		t.Fatal("observed overlapping submissions")
	}
	if len(sink.timestamps) != len(seq.Timestamps) {
		t.Fatalf("submitted %d frames, want %d", len(sink.timestamps), len(seq.Timestamps))
	}
	for i, ts := range seq.Timestamps {
		if sink.timestamps[i] != ts {
			t.Fatalf("frame %d: timestamp %f, want %f", i, sink.timestamps[i], ts)
		}
	}
}

func TestRunStopsGracefullyOnCancellation(t *testing.T) {
	seq := testsupport.WriteSequence(t, 10)
	cat := loadCatalog(t, seq)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &recordingSink{cancelAfter: 3, cancel: cancel}

	if err := producer.New(logging.NewNop()).Run(ctx, cat, sink); err != nil {
		t.Fatalf("Run after cancellation should be nil, got %v", err)
	}
	if len(sink.timestamps) != 3 {
		t.Fatalf("submitted %d frames after cancel, want 3", len(sink.timestamps))
	}
}

func TestRunFailsOnMissingColorImage(t *testing.T) {
	seq := testsupport.WriteSequence(t, 4)
	cat := loadCatalog(t, seq)

	// Removing a mid-sequence image must abort the replay, not skip ahead.
	if err := os.Remove(cat.Entries()[2].ColorPath); err != nil {
		t.Fatalf("remove color image: %v", err)
	}

	sink := &recordingSink{}
	err := producer.New(logging.NewNop()).Run(context.Background(), cat, sink)
	if err == nil {
		t.Fatal("expected error for missing color image")
	}
	if !strings.Contains(err.Error(), "frame 2") {
		t.Fatalf("error should name the failing frame, got %v", err)
	}
	if len(sink.timestamps) != 2 {
		t.Fatalf("submitted %d frames before failure, want 2", len(sink.timestamps))
	}
}

func TestRunPropagatesSinkError(t *testing.T) {
	seq := testsupport.WriteSequence(t, 2)
	cat := loadCatalog(t, seq)

	sinkErr := errors.New("tracking diverged")
	sink := &recordingSink{err: sinkErr}

	err := producer.New(logging.NewNop()).Run(context.Background(), cat, sink)
	if !errors.Is(err, sinkErr) {
		t.Fatalf("expected sink error to propagate, got %v", err)
	}
}
