package store

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a recorded replay session.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{StatusRunning, StatusCompleted, StatusFailed}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// Session is one replay run persisted in SQLite.
type Session struct {
	ID                     int64
	UUID                   string
	SequenceDir            string
	AssociationPath        string
	VocabularyPath         string
	SettingsPath           string
	Status                 Status
	FramesTotal            int
	FramesTracked          int
	Keyframes              int
	TrajectoryPath         string
	KeyframeTrajectoryPath string
	ErrorMessage           string
	StartedAt              time.Time
	FinishedAt             *time.Time
}
