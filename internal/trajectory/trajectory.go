// Package trajectory implements the TUM trajectory text format shared by
// RGB-D benchmark tooling: one "timestamp tx ty tz qx qy qz qw" line per
// pose, comments starting with '#'.
package trajectory

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Pose is a camera pose: translation in meters and orientation as a unit
// quaternion.
type Pose struct {
	Translation r3.Vec
	Rotation    quat.Number
}

// Identity returns the origin pose.
func Identity() Pose {
	return Pose{Rotation: quat.Number{Real: 1}}
}

// TimedPose pairs a pose with the source frame timestamp.
type TimedPose struct {
	Timestamp float64
	Pose      Pose
}

// Trajectory is an ordered pose sequence.
type Trajectory []TimedPose

// Write serializes the trajectory in TUM format.
func Write(w io.Writer, traj Trajectory) error {
	bw := bufio.NewWriter(w)
	for _, tp := range traj {
		q := tp.Pose.Rotation
		t := tp.Pose.Translation
		_, err := fmt.Fprintf(bw, "%.6f %.7f %.7f %.7f %.7f %.7f %.7f %.7f\n",
			tp.Timestamp, t.X, t.Y, t.Z, q.Imag, q.Jmag, q.Kmag, q.Real)
		if err != nil {
			return fmt.Errorf("write trajectory line: %w", err)
		}
	}
	return bw.Flush()
}

// Save writes the trajectory to a file, creating or truncating it.
func Save(path string, traj Trajectory) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trajectory file: %w", err)
	}
	if err := Write(file, traj); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// Read parses a TUM trajectory. Comment and blank lines are skipped; lines
// with a wrong field count are rejected.
func Read(r io.Reader) (Trajectory, error) {
	var traj Trajectory
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 8 {
			return nil, fmt.Errorf("trajectory line %d: want 8 fields, got %d", lineNo, len(fields))
		}
		values := make([]float64, 8)
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("trajectory line %d: parse %q: %w", lineNo, field, err)
			}
			values[i] = v
		}
		traj = append(traj, TimedPose{
			Timestamp: values[0],
			Pose: Pose{
				Translation: r3.Vec{X: values[1], Y: values[2], Z: values[3]},
				Rotation:    quat.Number{Imag: values[4], Jmag: values[5], Kmag: values[6], Real: values[7]},
			},
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trajectory: %w", err)
	}
	return traj, nil
}

// LoadFile reads a trajectory from disk.
func LoadFile(path string) (Trajectory, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trajectory file: %w", err)
	}
	defer file.Close()
	return Read(file)
}

// Stats summarizes a trajectory for reporting.
type Stats struct {
	Points     int
	Duration   float64
	PathLength float64
	Min        r3.Vec
	Max        r3.Vec
}

// Summarize computes trajectory statistics. It fails on an empty
// trajectory since every statistic would be meaningless.
func Summarize(traj Trajectory) (Stats, error) {
	if len(traj) == 0 {
		return Stats{}, errors.New("trajectory is empty")
	}

	first := traj[0].Pose.Translation
	stats := Stats{
		Points: len(traj),
		Min:    first,
		Max:    first,
	}
	stats.Duration = traj[len(traj)-1].Timestamp - traj[0].Timestamp

	for i, tp := range traj {
		t := tp.Pose.Translation
		stats.Min.X = math.Min(stats.Min.X, t.X)
		stats.Min.Y = math.Min(stats.Min.Y, t.Y)
		stats.Min.Z = math.Min(stats.Min.Z, t.Z)
		stats.Max.X = math.Max(stats.Max.X, t.X)
		stats.Max.Y = math.Max(stats.Max.Y, t.Y)
		stats.Max.Z = math.Max(stats.Max.Z, t.Z)
		if i > 0 {
			stats.PathLength += r3.Norm(r3.Sub(t, traj[i-1].Pose.Translation))
		}
	}
	return stats, nil
}

// Rotate applies the pose orientation to a vector, used when projecting
// camera axes into the world frame.
func (p Pose) Rotate(v r3.Vec) r3.Vec {
	qv := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	rotated := quat.Mul(quat.Mul(p.Rotation, qv), quat.Conj(p.Rotation))
	return r3.Vec{X: rotated.Imag, Y: rotated.Jmag, Z: rotated.Kmag}
}
