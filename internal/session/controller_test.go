package session_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"rgbdtum/internal/catalog"
	"rgbdtum/internal/config"
	"rgbdtum/internal/engine"
	"rgbdtum/internal/frame"
	"rgbdtum/internal/logging"
	"rgbdtum/internal/session"
	"rgbdtum/internal/store"
	"rgbdtum/internal/testsupport"
	"rgbdtum/internal/trajectory"
)

type fixture struct {
	cfg *config.Config
	cat *catalog.Catalog
	seq testsupport.Sequence
}

func newFixture(t *testing.T, frames int) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	seq := testsupport.WriteSequence(t, frames)
	cfg.Engine.Vocabulary = seq.VocabularyPath
	cfg.Engine.Settings = seq.SettingsPath

	cat, err := catalog.Load(seq.AssociationPath, seq.Dir)
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	return fixture{cfg: cfg, cat: cat, seq: seq}
}

func newOdometry(t *testing.T, f fixture) *engine.Odometry {
	t.Helper()
	settings, err := engine.LoadSettings(f.seq.SettingsPath, f.cfg.Engine.DepthScale)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	eng, err := engine.NewOdometry(f.seq.VocabularyPath, settings, logging.NewNop())
	if err != nil {
		t.Fatalf("NewOdometry: %v", err)
	}
	return eng
}

// triggerEngine records every tracked timestamp and fires a callback after
// a fixed number of frames, which tests use to cancel the replay context
// mid-run.
type triggerEngine struct {
	mu          sync.Mutex
	poses       trajectory.Trajectory
	shutdown    bool
	afterFrames int
	trigger     func()
}

func (e *triggerEngine) TrackRGBD(ctx context.Context, f frame.Frame) (trajectory.Pose, error) {
	e.mu.Lock()
	pose := trajectory.Identity()
	e.poses = append(e.poses, trajectory.TimedPose{Timestamp: f.Timestamp, Pose: pose})
	count := len(e.poses)
	e.mu.Unlock()
	if e.trigger != nil && count == e.afterFrames {
		e.trigger()
	}
	return pose, nil
}

func (e *triggerEngine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shutdown = true
	return nil
}

func (e *triggerEngine) Trajectory() trajectory.Trajectory {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append(trajectory.Trajectory(nil), e.poses...)
}

func (e *triggerEngine) KeyframeTrajectory() trajectory.Trajectory {
	return e.Trajectory()
}

func (e *triggerEngine) Snapshot() engine.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return engine.Snapshot{State: engine.StateTracking, FramesTracked: len(e.poses)}
}

// blockingEngine stalls inside TrackRGBD until its context is cancelled
// and records whether the engine was touched while a frame was still in
// flight.
type blockingEngine struct {
	mu          sync.Mutex
	inFlight    bool
	overlap     bool
	enteredOnce sync.Once
	entered     chan struct{}
}

func newBlockingEngine() *blockingEngine {
	return &blockingEngine{entered: make(chan struct{})}
}

func (e *blockingEngine) TrackRGBD(ctx context.Context, f frame.Frame) (trajectory.Pose, error) {
	e.mu.Lock()
	e.inFlight = true
	e.mu.Unlock()
	e.enteredOnce.Do(func() { close(e.entered) })

	<-ctx.Done()

	e.mu.Lock()
	e.inFlight = false
	e.mu.Unlock()
	return trajectory.Pose{}, ctx.Err()
}

func (e *blockingEngine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight {
		e.overlap = true
	}
	return nil
}

func (e *blockingEngine) Trajectory() trajectory.Trajectory {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight {
		e.overlap = true
	}
	return nil
}

func (e *blockingEngine) KeyframeTrajectory() trajectory.Trajectory {
	return e.Trajectory()
}

func (e *blockingEngine) Snapshot() engine.Snapshot {
	return engine.Snapshot{State: engine.StateTracking}
}

func TestCancelDuringTrackingJoinsEngineGoroutine(t *testing.T) {
	f := newFixture(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := newBlockingEngine()
	ctrl := session.New(f.cfg, eng, f.cat, logging.NewNop())

	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Cancel while the first frame is mid-track so the producer gives up
	// on its reply and exits before the engine call returns.
	<-eng.entered
	cancel()

	if err := ctrl.AwaitCompletion(); err != nil {
		t.Fatalf("AwaitCompletion: %v", err)
	}
	if _, err := ctrl.Finalize(context.Background()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if eng.overlap {
		t.Fatal("engine accessed while a frame was still being tracked")
	}
}

func TestLifecycleEndToEnd(t *testing.T) {
	f := newFixture(t, 3)
	eng := newOdometry(t, f)
	ctrl := session.New(f.cfg, eng, f.cat, logging.NewNop())

	ctx := context.Background()
	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := ctrl.AwaitCompletion(); err != nil {
		t.Fatalf("AwaitCompletion: %v", err)
	}
	if got := ctrl.State(); got != session.StateShutDown {
		t.Fatalf("state after join = %s", got)
	}

	result, err := ctrl.Finalize(ctx)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if result.FramesTracked != 3 {
		t.Fatalf("FramesTracked = %d, want 3", result.FramesTracked)
	}

	saved, err := trajectory.LoadFile(result.CameraTrajectoryPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(saved) != 3 {
		t.Fatalf("saved trajectory has %d poses, want 3", len(saved))
	}
	for i, ts := range f.seq.Timestamps {
		if saved[i].Timestamp != ts {
			t.Fatalf("pose %d: timestamp %f, want %f", i, saved[i].Timestamp, ts)
		}
	}
	if _, err := trajectory.LoadFile(result.KeyframeTrajectoryPath); err != nil {
		t.Fatalf("keyframe trajectory missing: %v", err)
	}
}

func TestFinalizeBeforeJoinFails(t *testing.T) {
	f := newFixture(t, 3)
	eng := newOdometry(t, f)
	ctrl := session.New(f.cfg, eng, f.cat, logging.NewNop())

	ctx := context.Background()
	if _, err := ctrl.Finalize(ctx); err == nil {
		t.Fatal("Finalize before Start should fail")
	}

	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := ctrl.Finalize(ctx); err == nil || !strings.Contains(err.Error(), "shut down") {
		t.Fatalf("Finalize before join should fail fast, got %v", err)
	}

	if err := ctrl.AwaitCompletion(); err != nil {
		t.Fatalf("AwaitCompletion: %v", err)
	}
	if _, err := ctrl.Finalize(ctx); err != nil {
		t.Fatalf("Finalize after join: %v", err)
	}
}

func TestFinalizeTwiceFails(t *testing.T) {
	f := newFixture(t, 2)
	eng := newOdometry(t, f)
	ctrl := session.New(f.cfg, eng, f.cat, logging.NewNop())

	ctx := context.Background()
	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := ctrl.AwaitCompletion(); err != nil {
		t.Fatalf("AwaitCompletion: %v", err)
	}
	if _, err := ctrl.Finalize(ctx); err != nil {
		t.Fatalf("first Finalize: %v", err)
	}
	if _, err := ctrl.Finalize(ctx); err == nil {
		t.Fatal("second Finalize should fail")
	}
}

func TestStartTwiceFails(t *testing.T) {
	f := newFixture(t, 2)
	eng := newOdometry(t, f)
	ctrl := session.New(f.cfg, eng, f.cat, logging.NewNop())

	ctx := context.Background()
	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := ctrl.Start(ctx); err == nil {
		t.Fatal("second Start should fail")
	}
	if err := ctrl.AwaitCompletion(); err != nil {
		t.Fatalf("AwaitCompletion: %v", err)
	}
	if _, err := ctrl.Finalize(ctx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

func TestCancellationStillPersistsTrajectory(t *testing.T) {
	f := newFixture(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := &triggerEngine{afterFrames: 3, trigger: cancel}
	ctrl := session.New(f.cfg, eng, f.cat, logging.NewNop())

	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := ctrl.AwaitCompletion(); err != nil {
		t.Fatalf("cancelled replay should join cleanly, got %v", err)
	}

	result, err := ctrl.Finalize(context.Background())
	if err != nil {
		t.Fatalf("Finalize after cancel: %v", err)
	}
	if result.FramesTracked != 3 {
		t.Fatalf("FramesTracked = %d, want 3", result.FramesTracked)
	}

	saved, err := trajectory.LoadFile(result.CameraTrajectoryPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(saved) != 3 {
		t.Fatalf("saved %d poses after cancel, want 3", len(saved))
	}
	if !eng.shutdown {
		t.Fatal("engine should be shut down after Finalize")
	}
}

func TestOutputDirLockIsExclusive(t *testing.T) {
	f := newFixture(t, 2)
	first := session.New(f.cfg, newOdometry(t, f), f.cat, logging.NewNop())
	second := session.New(f.cfg, newOdometry(t, f), f.cat, logging.NewNop())

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		t.Fatal("second session should fail to lock the output directory")
	}

	if err := first.AwaitCompletion(); err != nil {
		t.Fatalf("AwaitCompletion: %v", err)
	}
	if _, err := first.Finalize(ctx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

func TestStoreRecordsCompletion(t *testing.T) {
	f := newFixture(t, 3)
	s := testsupport.MustOpenStore(t, f.cfg)
	eng := newOdometry(t, f)
	ctrl := session.New(f.cfg, eng, f.cat, logging.NewNop(), session.WithStore(s))

	ctx := context.Background()
	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	running, err := s.List(ctx, store.StatusRunning)
	if err != nil {
		t.Fatalf("List(running): %v", err)
	}
	if len(running) != 1 {
		t.Fatalf("expected 1 running session, got %d", len(running))
	}

	if err := ctrl.AwaitCompletion(); err != nil {
		t.Fatalf("AwaitCompletion: %v", err)
	}
	result, err := ctrl.Finalize(ctx)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	completed, err := s.List(ctx, store.StatusCompleted)
	if err != nil {
		t.Fatalf("List(completed): %v", err)
	}
	if len(completed) != 1 {
		t.Fatalf("expected 1 completed session, got %d", len(completed))
	}
	got := completed[0]
	if got.FramesTracked != result.FramesTracked || got.Keyframes != result.Keyframes {
		t.Fatalf("store counts %d/%d, result %d/%d", got.FramesTracked, got.Keyframes, result.FramesTracked, result.Keyframes)
	}
	if got.TrajectoryPath != result.CameraTrajectoryPath {
		t.Fatalf("store trajectory path %q, want %q", got.TrajectoryPath, result.CameraTrajectoryPath)
	}
}
