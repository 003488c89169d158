// Package store persists replay session history in SQLite so past runs
// and their trajectory artifacts can be inspected later.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"rgbdtum/internal/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid TEXT NOT NULL,
    sequence_dir TEXT NOT NULL,
    association_path TEXT NOT NULL,
    vocabulary_path TEXT,
    settings_path TEXT,
    status TEXT NOT NULL,
    frames_total INTEGER NOT NULL DEFAULT 0,
    frames_tracked INTEGER NOT NULL DEFAULT 0,
    keyframes INTEGER NOT NULL DEFAULT 0,
    trajectory_path TEXT,
    keyframe_trajectory_path TEXT,
    error_message TEXT,
    started_at TEXT NOT NULL,
    finished_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
`

// Store manages session persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the session database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "sessions.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Begin records a new running session.
func (s *Store) Begin(ctx context.Context, sequenceDir, associationPath, vocabularyPath, settingsPath string, framesTotal int) (*Session, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO sessions (
            uuid, sequence_dir, association_path, vocabulary_path, settings_path,
            status, frames_total, started_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		sequenceDir,
		associationPath,
		nullableString(vocabularyPath),
		nullableString(settingsPath),
		StatusRunning,
		framesTotal,
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Complete marks a session as finished and records its artifacts.
func (s *Store) Complete(ctx context.Context, id int64, framesTracked, keyframes int, trajectoryPath, keyframeTrajectoryPath string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE sessions
         SET status = ?, frames_tracked = ?, keyframes = ?,
             trajectory_path = ?, keyframe_trajectory_path = ?, finished_at = ?
         WHERE id = ?`,
		StatusCompleted,
		framesTracked,
		keyframes,
		nullableString(trajectoryPath),
		nullableString(keyframeTrajectoryPath),
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	return nil
}

// Fail marks a session as failed with the given message.
func (s *Store) Fail(ctx context.Context, id int64, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE sessions SET status = ?, error_message = ?, finished_at = ? WHERE id = ?`,
		StatusFailed,
		nullableString(message),
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("fail session: %w", err)
	}
	return nil
}

// GetByID fetches a session by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// List returns sessions filtered by status set (or all when no status is
// provided), newest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Session, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + sessionColumns + ` FROM sessions`
	orderClause := ` ORDER BY started_at DESC`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

const sessionColumns = "id, uuid, sequence_dir, association_path, vocabulary_path, settings_path, status, frames_total, frames_tracked, keyframes, trajectory_path, keyframe_trajectory_path, error_message, started_at, finished_at"

func scanSession(scanner interface{ Scan(dest ...any) error }) (*Session, error) {
	var (
		id             int64
		uuidValue      string
		sequenceDir    string
		association    string
		vocabulary     sql.NullString
		settings       sql.NullString
		statusStr      string
		framesTotal    int
		framesTracked  int
		keyframes      int
		trajectoryPath sql.NullString
		keyframePath   sql.NullString
		errorMessage   sql.NullString
		startedRaw     string
		finishedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&uuidValue,
		&sequenceDir,
		&association,
		&vocabulary,
		&settings,
		&statusStr,
		&framesTotal,
		&framesTracked,
		&keyframes,
		&trajectoryPath,
		&keyframePath,
		&errorMessage,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	session := &Session{
		ID:                     id,
		UUID:                   uuidValue,
		SequenceDir:            sequenceDir,
		AssociationPath:        association,
		VocabularyPath:         vocabulary.String,
		SettingsPath:           settings.String,
		Status:                 Status(statusStr),
		FramesTotal:            framesTotal,
		FramesTracked:          framesTracked,
		Keyframes:              keyframes,
		TrajectoryPath:         trajectoryPath.String,
		KeyframeTrajectoryPath: keyframePath.String,
		ErrorMessage:           errorMessage.String,
	}
	if started, err := time.Parse(time.RFC3339Nano, startedRaw); err == nil {
		session.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := time.Parse(time.RFC3339Nano, finishedRaw.String); err == nil {
			session.FinishedAt = &finished
		}
	}
	return session, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
