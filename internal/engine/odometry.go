package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"rgbdtum/internal/frame"
	"rgbdtum/internal/logging"
	"rgbdtum/internal/trajectory"
)

// ErrShutDown is returned when frames are submitted after Shutdown.
var ErrShutDown = errors.New("engine is shut down")

// depthSampleStride bounds per-frame work: every Nth pixel in both axes
// contributes to the depth centroid.
const depthSampleStride = 4

// Option configures the odometry engine.
type Option func(*Odometry)

// WithKeyframeMinTranslation overrides the keyframe promotion threshold.
func WithKeyframeMinTranslation(meters float64) Option {
	return func(o *Odometry) {
		if meters > 0 {
			o.keyframeMinTranslation = meters
		}
	}
}

// Odometry is a self-contained depth-centroid visual odometry engine. Each
// frame's valid depth pixels are back-projected through the camera
// intrinsics and averaged; the camera pose advances by the shift of that
// centroid between consecutive frames. Orientation stays identity, which
// keeps the output a valid TUM trajectory while leaving rotation
// estimation to a full SLAM system.
//
// All methods are safe for concurrent use: the viewer polls Snapshot while
// frames are being tracked.
type Odometry struct {
	settings Settings
	logger   *slog.Logger

	keyframeMinTranslation float64

	mu           sync.RWMutex
	shutdown     bool
	pose         trajectory.Pose
	poses        trajectory.Trajectory
	keyframes    trajectory.Trajectory
	lastCentroid r3.Vec
	hasReference bool
	lastStamp    float64
}

// NewOdometry validates the vocabulary resource and constructs the engine.
// The vocabulary is not consumed by this implementation, but a missing
// file is caught here rather than deep inside a replay.
func NewOdometry(vocabularyPath string, settings Settings, logger *slog.Logger, opts ...Option) (*Odometry, error) {
	if vocabularyPath != "" {
		info, err := os.Stat(vocabularyPath)
		if err != nil {
			return nil, fmt.Errorf("vocabulary file: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("vocabulary path %q is a directory", vocabularyPath)
		}
	}

	o := &Odometry{
		settings:               settings,
		logger:                 logging.NewComponentLogger(logger, "engine"),
		keyframeMinTranslation: 0.05,
		pose:                   trajectory.Identity(),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.logger.Info("engine ready",
		logging.Float64("fx", settings.Fx),
		logging.Float64("fy", settings.Fy),
		logging.Float64("depth_map_factor", settings.DepthMapFactor),
	)
	return o, nil
}

// TrackRGBD processes one frame and returns the updated camera pose.
func (o *Odometry) TrackRGBD(ctx context.Context, f frame.Frame) (trajectory.Pose, error) {
	if err := ctx.Err(); err != nil {
		return trajectory.Pose{}, err
	}

	centroid, ok := o.depthCentroid(f.Depth)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.shutdown {
		return trajectory.Pose{}, ErrShutDown
	}

	if ok && o.hasReference {
		delta := r3.Sub(centroid, o.lastCentroid)
		o.pose.Translation = r3.Add(o.pose.Translation, delta)
	}
	if ok {
		o.lastCentroid = centroid
		o.hasReference = true
	}
	o.lastStamp = f.Timestamp

	timed := trajectory.TimedPose{Timestamp: f.Timestamp, Pose: o.pose}
	o.poses = append(o.poses, timed)
	if o.isKeyframeLocked() {
		o.keyframes = append(o.keyframes, timed)
	}
	return o.pose, nil
}

// isKeyframeLocked reports whether the current pose should be promoted.
// Caller holds o.mu.
func (o *Odometry) isKeyframeLocked() bool {
	if len(o.keyframes) == 0 {
		return true
	}
	last := o.keyframes[len(o.keyframes)-1].Pose.Translation
	return r3.Norm(r3.Sub(o.pose.Translation, last)) >= o.keyframeMinTranslation
}

// depthCentroid back-projects sampled valid depth pixels into camera space
// and averages them. Returns false when the frame has no usable depth.
func (o *Odometry) depthCentroid(depth *image.Gray16) (r3.Vec, bool) {
	if depth == nil {
		return r3.Vec{}, false
	}
	bounds := depth.Bounds()
	var sum r3.Vec
	count := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y += depthSampleStride {
		for x := bounds.Min.X; x < bounds.Max.X; x += depthSampleStride {
			raw := depth.Gray16At(x, y).Y
			if raw == 0 {
				continue
			}
			z := float64(raw) / o.settings.DepthMapFactor
			sum = r3.Add(sum, r3.Vec{
				X: (float64(x) - o.settings.Cx) / o.settings.Fx * z,
				Y: (float64(y) - o.settings.Cy) / o.settings.Fy * z,
				Z: z,
			})
			count++
		}
	}
	if count == 0 {
		return r3.Vec{}, false
	}
	return r3.Scale(1/float64(count), sum), true
}

// Shutdown stops accepting frames. Idempotent.
func (o *Odometry) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.shutdown {
		return nil
	}
	o.shutdown = true
	o.logger.Info("engine shut down",
		logging.Int("frames", len(o.poses)),
		logging.Int("keyframes", len(o.keyframes)),
	)
	return nil
}

// Trajectory returns a copy of the full camera trajectory.
func (o *Odometry) Trajectory() trajectory.Trajectory {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append(trajectory.Trajectory(nil), o.poses...)
}

// KeyframeTrajectory returns a copy of the keyframe-only trajectory.
func (o *Odometry) KeyframeTrajectory() trajectory.Trajectory {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append(trajectory.Trajectory(nil), o.keyframes...)
}

// Snapshot returns the current engine state for rendering.
func (o *Odometry) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	state := StateTracking
	switch {
	case o.shutdown:
		state = StateShutDown
	case len(o.poses) == 0:
		state = StateInitializing
	}
	return Snapshot{
		State:         state,
		FramesTracked: len(o.poses),
		Keyframes:     len(o.keyframes),
		LastTimestamp: o.lastStamp,
		CurrentPose:   o.pose,
	}
}

var _ Engine = (*Odometry)(nil)
