package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"crmbridge/internal/models"
	"crmbridge/internal/security"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// Journal persists session state transitions in SQLite. Message content is never stored.
type Journal struct {
	db    *sql.DB
	runID string
}

// Open creates the database file if needed and applies the schema
func Open(ctx context.Context, dbPath string) (*Journal, error) {
	if err := security.ValidateFilePath(dbPath, true); err != nil {
		return nil, fmt.Errorf("invalid journal path: %w", err)
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create journal file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close journal file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return nil, closeWith(db, fmt.Errorf("failed to ping journal: %w", err))
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, closeWith(db, fmt.Errorf("failed to initialize journal schema: %w", err))
	}

	return &Journal{db: db, runID: uuid.NewString()}, nil
}

func closeWith(db *sql.DB, err error) error {
	if closeErr := db.Close(); closeErr != nil {
		return fmt.Errorf("%w (close error: %v)", err, closeErr)
	}
	return err
}

// RunID identifies this process run in every recorded transition
func (j *Journal) RunID() string {
	return j.runID
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one transition. RunID and CreatedAt are filled in when empty.
func (j *Journal) Record(ctx context.Context, t models.SessionTransition) error {
	if t.RunID == "" {
		t.RunID = j.runID
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO session_transitions (
			run_id, session_id, from_state, to_state, cause, attempt, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	return retryableOperation(ctx, func() error {
		_, err := j.db.ExecContext(ctx, query,
			t.RunID,
			t.SessionID,
			string(t.FromState),
			string(t.ToState),
			t.Cause,
			t.Attempt,
			t.CreatedAt.UTC(),
		)
		return err
	}, "record session transition")
}

// LastConnected returns when the session last reached CONNECTED, across runs
func (j *Journal) LastConnected(ctx context.Context, sessionID string) (time.Time, bool, error) {
	query := `
		SELECT created_at FROM session_transitions
		WHERE session_id = ? AND to_state = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var connectedAt time.Time
	err := j.db.QueryRowContext(ctx, query, sessionID, string(models.SessionConnected)).Scan(&connectedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query last connection: %w", err)
	}
	return connectedAt, true, nil
}

// Recent returns up to limit transitions for a session, newest first
func (j *Journal) Recent(ctx context.Context, sessionID string, limit int) ([]models.SessionTransition, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, run_id, session_id, from_state, to_state, cause, attempt, created_at
		FROM session_transitions
		WHERE session_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := j.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var transitions []models.SessionTransition
	for rows.Next() {
		var (
			t        models.SessionTransition
			from, to string
		)
		if err := rows.Scan(&t.ID, &t.RunID, &t.SessionID, &from, &to, &t.Cause, &t.Attempt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		t.FromState = models.SessionState(from)
		t.ToState = models.SessionState(to)
		transitions = append(transitions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transitions: %w", err)
	}
	return transitions, nil
}

// Cleanup removes transitions older than retentionDays and reports how many were deleted
func (j *Journal) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour).UTC()

	var deleted int64
	err := retryableOperation(ctx, func() error {
		result, err := j.db.ExecContext(ctx, `DELETE FROM session_transitions WHERE created_at < ?`, cutoff)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	}, "cleanup session transitions")
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
