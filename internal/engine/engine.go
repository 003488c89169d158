// Package engine defines the tracking engine contract consumed by the
// replay session, plus a built-in depth-odometry implementation. The
// session only ever talks to the Engine interface, so a real SLAM system
// can be swapped in behind it.
package engine

import (
	"context"

	"rgbdtum/internal/frame"
	"rgbdtum/internal/trajectory"
)

// Engine consumes paired color/depth frames and maintains an evolving
// trajectory estimate.
//
// TrackRGBD may block while the engine processes the frame; callers must
// not submit the next frame until it returns. Trajectory and
// KeyframeTrajectory are only meaningful after Shutdown.
type Engine interface {
	TrackRGBD(ctx context.Context, f frame.Frame) (trajectory.Pose, error)
	Shutdown(ctx context.Context) error
	Trajectory() trajectory.Trajectory
	KeyframeTrajectory() trajectory.Trajectory
	Snapshot() Snapshot
}

// TrackingState describes the engine phase exposed to the viewer.
type TrackingState string

const (
	StateInitializing TrackingState = "initializing"
	StateTracking     TrackingState = "tracking"
	StateShutDown     TrackingState = "shut down"
)

// Snapshot is a read-only view of engine progress for rendering. It is
// safe to request concurrently with frame submission.
type Snapshot struct {
	State         TrackingState
	FramesTracked int
	Keyframes     int
	LastTimestamp float64
	CurrentPose   trajectory.Pose
}
