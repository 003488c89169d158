// Package testsupport provides fixtures shared by package tests: temp
// configs, session stores, and tiny RGB-D sequences on disk.
package testsupport

import (
	"path/filepath"
	"testing"

	"rgbdtum/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Viewer.Enabled = false

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithViewerEnabled turns the live viewer on for tests that exercise it.
func WithViewerEnabled() ConfigOption {
	return func(c *config.Config) {
		c.Viewer.Enabled = true
	}
}

// WithKeyframeMinTranslation overrides the keyframe threshold.
func WithKeyframeMinTranslation(meters float64) ConfigOption {
	return func(c *config.Config) {
		c.Engine.KeyframeMinTranslation = meters
	}
}
