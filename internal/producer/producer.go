// Package producer replays catalog entries into the tracking engine.
//
// The producer runs on its own goroutine, decodes one entry at a time and
// submits it synchronously through a Sink: the next frame is never decoded
// for submission until the previous submission has returned. Ordering and
// single-frame backpressure are what the tracking engine's internal state
// depends on.
package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"rgbdtum/internal/catalog"
	"rgbdtum/internal/frame"
	"rgbdtum/internal/logging"
	"rgbdtum/internal/trajectory"
)

// Sink accepts one frame at a time. Submit blocks until the engine has
// fully processed the frame.
type Sink interface {
	Submit(ctx context.Context, f frame.Frame) (trajectory.Pose, error)
}

// Producer drives a catalog through a Sink in manifest order.
type Producer struct {
	logger *slog.Logger
}

// New constructs a producer.
func New(logger *slog.Logger) *Producer {
	return &Producer{logger: logging.NewComponentLogger(logger, "producer")}
}

// Run replays every catalog entry in order. It returns nil both on full
// completion and on a context cancellation observed between frames: a
// user-requested stop is a graceful early exit, not an error. Any decode
// failure aborts the remaining sequence; skipping a frame would
// desynchronize the engine's state from the manifest timestamps.
func (p *Producer) Run(ctx context.Context, cat *catalog.Catalog, sink Sink) error {
	entries := cat.Entries()
	for i, entry := range entries {
		color, err := frame.DecodeColor(entry.ColorPath)
		if err != nil {
			p.logger.Error("failed to load image",
				logging.Error(err),
				logging.Int(logging.FieldFrame, i),
				logging.String(logging.FieldEventType, "color_decode_failed"),
			)
			return fmt.Errorf("frame %d: %w", i, err)
		}
		depth, err := frame.DecodeDepth(entry.DepthPath)
		if err != nil {
			p.logger.Error("failed to load depth map",
				logging.Error(err),
				logging.Int(logging.FieldFrame, i),
				logging.String(logging.FieldEventType, "depth_decode_failed"),
			)
			return fmt.Errorf("frame %d: %w", i, err)
		}

		_, err = sink.Submit(ctx, frame.Frame{Color: color, Depth: depth, Timestamp: entry.Timestamp})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				p.logger.Info("replay stopped by request",
					logging.Int("frames_submitted", i),
				)
				return nil
			}
			return fmt.Errorf("frame %d: submit: %w", i, err)
		}

		p.logger.Debug("frame submitted",
			logging.Int(logging.FieldFrame, i),
			logging.Float64(logging.FieldTimestamp, entry.Timestamp),
		)

		// Early-exit poll between frames; cancellation is graceful.
		select {
		case <-ctx.Done():
			p.logger.Info("replay stopped by request",
				logging.Int("frames_submitted", i+1),
			)
			return nil
		default:
		}
	}
	p.logger.Info("replay complete", logging.Int("frames_submitted", len(entries)))
	return nil
}
