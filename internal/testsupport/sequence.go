package testsupport

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Sequence describes an on-disk RGB-D fixture.
type Sequence struct {
	Dir             string
	AssociationPath string
	SettingsPath    string
	VocabularyPath  string
	Timestamps      []float64
}

// WriteSequence materializes a complete RGB-D sequence: color and depth
// images, association manifest, settings file, and a placeholder
// vocabulary. Depth values increase per frame so the odometry engine
// observes motion.
func WriteSequence(t testing.TB, frames int) Sequence {
	t.Helper()

	dir := t.TempDir()
	for _, sub := range []string{"rgb", "depth"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", sub, err)
		}
	}

	var (
		lines      []string
		timestamps []float64
	)
	for i := 0; i < frames; i++ {
		timestamp := 1305031102.0 + float64(i)*0.04
		colorRel := fmt.Sprintf("rgb/%.6f.png", timestamp)
		depthRel := fmt.Sprintf("depth/%.6f.png", timestamp)

		writeColorPNG(t, filepath.Join(dir, colorRel))
		writeDepthPNG(t, filepath.Join(dir, depthRel), uint16(5000+i*250))

		lines = append(lines, fmt.Sprintf("%.6f %s %.6f %s", timestamp, colorRel, timestamp, depthRel))
		timestamps = append(timestamps, timestamp)
	}

	associationPath := filepath.Join(dir, "associations.txt")
	if err := os.WriteFile(associationPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write association manifest: %v", err)
	}

	settingsPath := filepath.Join(dir, "TUM1.yaml")
	settings := "Camera.fx: 525.0\nCamera.fy: 525.0\nCamera.cx: 8.0\nCamera.cy: 8.0\nDepthMapFactor: 5000.0\n"
	if err := os.WriteFile(settingsPath, []byte(settings), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	vocabularyPath := filepath.Join(dir, "ORBvoc.txt")
	if err := os.WriteFile(vocabularyPath, []byte("vocabulary\n"), 0o644); err != nil {
		t.Fatalf("write vocabulary: %v", err)
	}

	return Sequence{
		Dir:             dir,
		AssociationPath: associationPath,
		SettingsPath:    settingsPath,
		VocabularyPath:  vocabularyPath,
		Timestamps:      timestamps,
	}
}

func writeColorPNG(t testing.TB, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 64, A: 255})
		}
	}
	writePNG(t, path, img)
}

func writeDepthPNG(t testing.TB, path string, raw uint16) {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetGray16(x, y, color.Gray16{Y: raw})
		}
	}
	writePNG(t, path, img)
}

func writePNG(t testing.TB, path string, img image.Image) {
	t.Helper()
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer file.Close()
	if err := png.Encode(file, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}
