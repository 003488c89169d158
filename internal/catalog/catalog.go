// Package catalog loads TUM RGB-D association manifests into an ordered
// sequence of timestamped color/depth image pairs.
package catalog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrEmptyManifest indicates the association file contained no entries.
	ErrEmptyManifest = errors.New("association manifest contains no entries")
	// ErrNoImages indicates no color image paths were parsed.
	ErrNoImages = errors.New("no images found in provided path")
	// ErrMismatchedCounts indicates the color and depth path counts differ.
	ErrMismatchedCounts = errors.New("number of color and depth images do not match")
)

// Entry is one timestamped color/depth pair. Immutable once parsed.
type Entry struct {
	// Timestamp is the depth timestamp from the manifest. Association files
	// carry a timestamp per stream; the pairs are pre-aligned, so keeping
	// one of them is enough.
	Timestamp float64
	ColorPath string
	DepthPath string
}

// Catalog is an ordered sequence of entries, insertion order matching
// manifest line order.
type Catalog struct {
	entries         []Entry
	sequenceDir     string
	associationPath string
}

// Load reads an association manifest and resolves image paths against
// sequenceDir. Each non-empty line must hold at least four whitespace
// separated tokens: <ts> <color_rel_path> <ts> <depth_rel_path>.
//
// All returned errors are fatal preconditions: the tracking engine expects
// a gapless ordered stream, so callers must abort rather than process a
// partial catalog.
func Load(associationPath, sequenceDir string) (*Catalog, error) {
	file, err := os.Open(associationPath)
	if err != nil {
		return nil, fmt.Errorf("open association manifest: %w", err)
	}
	defer file.Close()

	var (
		entries    []Entry
		colorCount int
		depthCount int
		lineNo     int
		parsed     int
	)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parsed++
		fields := strings.Fields(line)

		// Tokens are consumed positionally: a truncated line can yield a
		// color path with no matching depth path, which the count check
		// below turns into a fatal mismatch.
		if len(fields) >= 2 {
			colorCount++
		}
		if len(fields) < 4 {
			continue
		}
		depthCount++

		timestamp, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("association manifest line %d: parse timestamp %q: %w", lineNo, fields[2], err)
		}
		entries = append(entries, Entry{
			Timestamp: timestamp,
			ColorPath: filepath.Join(sequenceDir, fields[1]),
			DepthPath: filepath.Join(sequenceDir, fields[3]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read association manifest: %w", err)
	}

	if parsed == 0 {
		return nil, ErrEmptyManifest
	}
	if colorCount == 0 {
		return nil, ErrNoImages
	}
	if colorCount != depthCount {
		return nil, ErrMismatchedCounts
	}

	return &Catalog{
		entries:         entries,
		sequenceDir:     sequenceDir,
		associationPath: associationPath,
	}, nil
}

// SequenceDir returns the directory image paths were resolved against.
func (c *Catalog) SequenceDir() string {
	return c.sequenceDir
}

// AssociationPath returns the manifest the catalog was loaded from.
func (c *Catalog) AssociationPath() string {
	return c.associationPath
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Entries returns the entries in manifest order. Callers must treat the
// slice as read-only.
func (c *Catalog) Entries() []Entry {
	if c == nil {
		return nil
	}
	return c.entries
}

// Duration returns the time span covered by the catalog in seconds.
func (c *Catalog) Duration() float64 {
	if c.Len() < 2 {
		return 0
	}
	return c.entries[len(c.entries)-1].Timestamp - c.entries[0].Timestamp
}
