// Package frame holds the transient unit of work submitted to the tracking
// engine: one decoded color/depth image pair plus its timestamp.
package frame

import (
	"fmt"
	"image"
	"image/png"
	"os"

	// Color images in TUM sequences are PNG; register JPEG as well since
	// some recordings ship re-encoded rgb streams.
	_ "image/jpeg"
)

// Frame is a decoded color/depth pair. Frames are created per catalog entry
// and discarded right after submission; never buffer more than one.
type Frame struct {
	Color     image.Image
	Depth     *image.Gray16
	Timestamp float64
}

// DecodeColor reads a color image from disk without format conversion.
func DecodeColor(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open color image %s: %w", path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode color image %s: %w", path, err)
	}
	return img, nil
}

// DecodeDepth reads a 16-bit grayscale depth map. The native bit depth is
// preserved; raw values are scaled to meters by the engine, not here.
func DecodeDepth(path string) (*image.Gray16, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open depth image %s: %w", path, err)
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode depth image %s: %w", path, err)
	}
	depth, ok := img.(*image.Gray16)
	if !ok {
		// 8-bit or paletted depth maps lose precision; widen instead of
		// rejecting so sparse test fixtures still work.
		bounds := img.Bounds()
		depth = image.NewGray16(bounds)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				depth.Set(x, y, img.At(x, y))
			}
		}
	}
	return depth, nil
}
