package engine_test

import (
	"os"
	"path/filepath"
	"testing"

	"rgbdtum/internal/engine"
)

func writeSettings(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "TUM1.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	return path
}

func TestLoadSettingsParsesScalars(t *testing.T) {
	path := writeSettings(t, `%YAML:1.0

# Camera calibration for TUM freiburg1
Camera.fx: 517.306408
Camera.fy: 516.469215
Camera.cx: 318.643040
Camera.cy: 255.313989

Camera.width: 640
Camera.height: 480
Camera.fps: 30.0

DepthMapFactor: 5000.0 # raw units per meter

# Matrix nodes are skipped
LEFT.K: !!opencv-matrix
   rows: 3
`)

	settings, err := engine.LoadSettings(path, 0)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if settings.Fx != 517.306408 {
		t.Fatalf("Fx = %v", settings.Fx)
	}
	if settings.Cy != 255.313989 {
		t.Fatalf("Cy = %v", settings.Cy)
	}
	if settings.Width != 640 || settings.Height != 480 {
		t.Fatalf("dimensions = %dx%d", settings.Width, settings.Height)
	}
	if settings.DepthMapFactor != 5000 {
		t.Fatalf("DepthMapFactor = %v", settings.DepthMapFactor)
	}
}

func TestLoadSettingsDefaults(t *testing.T) {
	path := writeSettings(t, "Camera.fx: 525.0\nCamera.fy: 525.0\n")
	settings, err := engine.LoadSettings(path, 0)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if settings.DepthMapFactor != 5000 {
		t.Fatalf("expected default DepthMapFactor, got %v", settings.DepthMapFactor)
	}
	if settings.FPS != 30 {
		t.Fatalf("expected default FPS, got %v", settings.FPS)
	}
}

func TestLoadSettingsConfiguredDepthScaleFallback(t *testing.T) {
	path := writeSettings(t, "Camera.fx: 525.0\nCamera.fy: 525.0\n")
	settings, err := engine.LoadSettings(path, 1000)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if settings.DepthMapFactor != 1000 {
		t.Fatalf("expected configured fallback 1000, got %v", settings.DepthMapFactor)
	}
}

func TestLoadSettingsFileDepthScaleWinsOverFallback(t *testing.T) {
	path := writeSettings(t, "Camera.fx: 525.0\nCamera.fy: 525.0\nDepthMapFactor: 5000.0\n")
	settings, err := engine.LoadSettings(path, 1000)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if settings.DepthMapFactor != 5000 {
		t.Fatalf("file value should win, got %v", settings.DepthMapFactor)
	}
}

func TestLoadSettingsRequiresFocalLength(t *testing.T) {
	path := writeSettings(t, "Camera.cx: 320.0\n")
	if _, err := engine.LoadSettings(path, 0); err == nil {
		t.Fatal("expected error for missing focal length")
	}
}

func TestLoadSettingsMissingFile(t *testing.T) {
	if _, err := engine.LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"), 0); err == nil {
		t.Fatal("expected error for missing file")
	}
}
