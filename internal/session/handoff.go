package session

import (
	"context"

	"rgbdtum/internal/engine"
	"rgbdtum/internal/frame"
	"rgbdtum/internal/trajectory"
)

type trackResult struct {
	pose trajectory.Pose
	err  error
}

type submission struct {
	frame frame.Frame
	reply chan trackResult
}

// handoff is the single-slot channel between the producer and the
// engine-access goroutine. The requests channel is unbuffered and every
// submission waits for its reply, so exactly one frame is ever in flight
// and the engine is only touched from one goroutine.
type handoff struct {
	requests chan submission
	served   chan struct{}
}

func newHandoff() *handoff {
	return &handoff{
		requests: make(chan submission),
		served:   make(chan struct{}),
	}
}

// Submit hands a frame to the engine-access goroutine and blocks until the
// engine has processed it.
func (h *handoff) Submit(ctx context.Context, f frame.Frame) (trajectory.Pose, error) {
	reply := make(chan trackResult, 1)
	select {
	case h.requests <- submission{frame: f, reply: reply}:
	case <-ctx.Done():
		return trajectory.Pose{}, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.pose, res.err
	case <-ctx.Done():
		return trajectory.Pose{}, ctx.Err()
	}
}

// serve owns all TrackRGBD calls. The served channel closes only when
// serve has returned, so waiting on it guarantees no engine call is still
// in flight. A cancelled Submit may abandon its reply while the engine is
// mid-frame; the controller must join here before touching the engine.
func (h *handoff) serve(ctx context.Context, eng engine.Engine) {
	defer close(h.served)
	for {
		select {
		case <-ctx.Done():
			return
		case sub := <-h.requests:
			pose, err := eng.TrackRGBD(ctx, sub.frame)
			sub.reply <- trackResult{pose: pose, err: err}
		}
	}
}
