// Package session orchestrates a single replay run: it owns the state
// machine around the frame producer, the engine-access goroutine, the
// live viewer, and trajectory persistence.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"rgbdtum/internal/catalog"
	"rgbdtum/internal/config"
	"rgbdtum/internal/engine"
	"rgbdtum/internal/logging"
	"rgbdtum/internal/producer"
	"rgbdtum/internal/store"
	"rgbdtum/internal/trajectory"
)

const (
	lockFileName               = ".rgbdtum.lock"
	cameraTrajectoryFileName   = "CameraTrajectory.txt"
	keyframeTrajectoryFileName = "KeyFrameTrajectory.txt"
)

// Viewer renders engine snapshots until its context is cancelled. It runs
// on the goroutine that calls Controller.Start.
type Viewer interface {
	Run(ctx context.Context, snapshot func() engine.Snapshot)
}

// Result describes the artifacts of a finalized session.
type Result struct {
	CameraTrajectoryPath   string
	KeyframeTrajectoryPath string
	FramesTracked          int
	Keyframes              int
}

// Controller drives one replay session through its lifecycle. The legal
// transitions are Initializing -> Running -> Draining -> ShutDown;
// Finalize is only valid once the controller is ShutDown.
type Controller struct {
	cfg      *config.Config
	eng      engine.Engine
	cat      *catalog.Catalog
	logger   *slog.Logger
	producer *producer.Producer
	handoff  *handoff

	viewer   Viewer
	sessions *store.Store

	serveCtx    context.Context
	serveCancel context.CancelFunc
	done        chan struct{}

	mu          sync.Mutex
	state       State
	lock        *flock.Flock
	record      *store.Session
	producerErr error
	finalized   bool
}

// Option configures optional controller collaborators.
type Option func(*Controller)

// WithViewer attaches a live viewer that Start runs on its calling goroutine.
func WithViewer(v Viewer) Option {
	return func(c *Controller) {
		c.viewer = v
	}
}

// WithStore records the session lifecycle in the given store.
func WithStore(s *store.Store) Option {
	return func(c *Controller) {
		c.sessions = s
	}
}

// New constructs a controller in the Initializing state.
func New(cfg *config.Config, eng engine.Engine, cat *catalog.Catalog, logger *slog.Logger, opts ...Option) *Controller {
	serveCtx, serveCancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:         cfg,
		eng:         eng,
		cat:         cat,
		logger:      logging.NewComponentLogger(logger, "session"),
		producer:    producer.New(logger),
		handoff:     newHandoff(),
		serveCtx:    serveCtx,
		serveCancel: serveCancel,
		done:        make(chan struct{}),
		state:       StateInitializing,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start acquires the output lock, transitions to Running, launches the
// engine-access and producer goroutines, and then runs the viewer on the
// calling goroutine until the producer finishes or ctx is cancelled.
// With no viewer attached Start returns immediately after launching.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateInitializing {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("session already started (state %s)", state)
	}

	if err := c.cfg.EnsureDirectories(); err != nil {
		c.mu.Unlock()
		return err
	}

	lock := flock.New(filepath.Join(c.cfg.Paths.OutputDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("acquire session lock: %w", err)
	}
	if !locked {
		c.mu.Unlock()
		return fmt.Errorf("another session is writing to %s", c.cfg.Paths.OutputDir)
	}
	c.lock = lock

	if c.sessions != nil {
		record, err := c.sessions.Begin(ctx, c.cat.SequenceDir(), c.cat.AssociationPath(), c.cfg.Engine.Vocabulary, c.cfg.Engine.Settings, c.cat.Len())
		if err != nil {
			_ = lock.Unlock()
			c.lock = nil
			c.mu.Unlock()
			return fmt.Errorf("record session start: %w", err)
		}
		c.record = record
	}

	c.state = StateRunning
	c.mu.Unlock()

	c.logger.Info("replay session started",
		logging.Int("frames_total", c.cat.Len()),
		logging.Float64("sequence_duration_s", c.cat.Duration()),
	)

	go c.handoff.serve(c.serveCtx, c.eng)
	go func() {
		defer close(c.done)
		c.producerErr = c.producer.Run(ctx, c.cat, c.handoff)
	}()

	if c.viewer != nil {
		viewCtx, cancel := context.WithCancel(ctx)
		go func() {
			<-c.done
			cancel()
		}()
		c.viewer.Run(viewCtx, c.eng.Snapshot)
		cancel()
	}
	return nil
}

// AwaitCompletion joins the producer goroutine, stops the engine-access
// goroutine, and transitions to ShutDown. It returns the producer's
// error, which is nil for both full completion and graceful early exit.
func (c *Controller) AwaitCompletion() error {
	c.mu.Lock()
	if c.state != StateRunning {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot drain session in state %s", state)
	}
	c.state = StateDraining
	c.mu.Unlock()

	<-c.done
	c.serveCancel()
	// A cancelled producer can abandon its in-flight submission, so the
	// engine-access goroutine may still be inside TrackRGBD here. Joining
	// it is what makes Finalize's engine access safe.
	<-c.handoff.served

	c.mu.Lock()
	c.state = StateShutDown
	err := c.producerErr
	c.mu.Unlock()

	c.logger.Info("producer joined", logging.String("state", string(StateShutDown)))
	return err
}

// Finalize shuts the engine down, persists both trajectories, records the
// outcome, and releases the session lock. Calling it in any state other
// than ShutDown is an error; so is calling it twice. Trajectories are
// written even when the run ended early, partial output is still output.
func (c *Controller) Finalize(ctx context.Context) (Result, error) {
	c.mu.Lock()
	if c.state != StateShutDown {
		state := c.state
		c.mu.Unlock()
		return Result{}, fmt.Errorf("finalize requires a shut down session, state is %s", state)
	}
	if c.finalized {
		c.mu.Unlock()
		return Result{}, fmt.Errorf("session already finalized")
	}
	c.finalized = true
	producerErr := c.producerErr
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		lock := c.lock
		c.lock = nil
		c.mu.Unlock()
		if lock != nil {
			_ = lock.Unlock()
		}
	}()

	if err := c.eng.Shutdown(ctx); err != nil {
		return Result{}, fmt.Errorf("engine shutdown: %w", err)
	}

	camera := c.eng.Trajectory()
	keyframes := c.eng.KeyframeTrajectory()

	result := Result{
		CameraTrajectoryPath:   filepath.Join(c.cfg.Paths.OutputDir, cameraTrajectoryFileName),
		KeyframeTrajectoryPath: filepath.Join(c.cfg.Paths.OutputDir, keyframeTrajectoryFileName),
		FramesTracked:          len(camera),
		Keyframes:              len(keyframes),
	}

	if err := trajectory.Save(result.CameraTrajectoryPath, camera); err != nil {
		return Result{}, fmt.Errorf("save camera trajectory: %w", err)
	}
	if err := trajectory.Save(result.KeyframeTrajectoryPath, keyframes); err != nil {
		return Result{}, fmt.Errorf("save keyframe trajectory: %w", err)
	}

	c.logger.Info("trajectories saved",
		logging.String("camera", result.CameraTrajectoryPath),
		logging.String("keyframes", result.KeyframeTrajectoryPath),
		logging.Int("frames_tracked", result.FramesTracked),
		logging.Int("keyframes_count", result.Keyframes),
	)

	if c.sessions != nil && c.record != nil {
		if producerErr != nil {
			if err := c.sessions.Fail(ctx, c.record.ID, producerErr.Error()); err != nil {
				return result, fmt.Errorf("record session failure: %w", err)
			}
		} else {
			if err := c.sessions.Complete(ctx, c.record.ID, result.FramesTracked, result.Keyframes, result.CameraTrajectoryPath, result.KeyframeTrajectoryPath); err != nil {
				return result, fmt.Errorf("record session completion: %w", err)
			}
		}
	}

	return result, nil
}
