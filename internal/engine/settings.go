package engine

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Settings holds the camera parameters read from an OpenCV FileStorage
// style settings file (the format ORB vocabularies ship with). Only the
// scalar "Key: value" entries are consumed; matrices and nested nodes are
// skipped.
type Settings struct {
	Fx float64
	Fy float64
	Cx float64
	Cy float64
	// DepthMapFactor converts raw 16-bit depth values to meters
	// (value / DepthMapFactor). 5000 for TUM recordings.
	DepthMapFactor float64
	FPS            float64
	Width          int
	Height         int
}

// LoadSettings parses a camera settings file. A file without a
// DepthMapFactor entry falls back to fallbackDepthScale (or the TUM
// benchmark's 5000 when that is zero); a missing focal length is an error
// since depth back-projection would be meaningless.
func LoadSettings(path string, fallbackDepthScale float64) (Settings, error) {
	file, err := os.Open(path)
	if err != nil {
		return Settings{}, fmt.Errorf("open settings file: %w", err)
	}
	defer file.Close()

	values := map[string]float64{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "%") {
			continue
		}
		key, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value := strings.TrimSpace(rest)
		if comment := strings.Index(value, "#"); comment >= 0 {
			value = strings.TrimSpace(value[:comment])
		}
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		values[strings.TrimSpace(key)] = parsed
	}
	if err := scanner.Err(); err != nil {
		return Settings{}, fmt.Errorf("read settings file: %w", err)
	}

	settings := Settings{
		Fx:             values["Camera.fx"],
		Fy:             values["Camera.fy"],
		Cx:             values["Camera.cx"],
		Cy:             values["Camera.cy"],
		DepthMapFactor: values["DepthMapFactor"],
		FPS:            values["Camera.fps"],
		Width:          int(values["Camera.width"]),
		Height:         int(values["Camera.height"]),
	}
	if settings.Fx == 0 || settings.Fy == 0 {
		return Settings{}, fmt.Errorf("settings file %s: Camera.fx and Camera.fy are required", path)
	}
	if settings.DepthMapFactor == 0 {
		settings.DepthMapFactor = fallbackDepthScale
	}
	if settings.DepthMapFactor <= 0 {
		settings.DepthMapFactor = 5000
	}
	if settings.FPS == 0 {
		settings.FPS = 30
	}
	return settings, nil
}
