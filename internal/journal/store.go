// Package journal keeps an append-mostly SQLite audit trail of project runs:
// the tasks of each run, every status transition and the usage each task
// consumed. Nothing in the journal is read back into the scheduler.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aristath/contractor/internal/usage"
)

// ErrNotFound is returned when a run or task is not in the journal.
var ErrNotFound = errors.New("not found in journal")

// Run is one started project.
type Run struct {
	ID          string
	ProjectType string
	Description string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskRecord is the last known state of a task within a run.
type TaskRecord struct {
	RunID         string
	ID            string
	Agent         string
	Description   string
	Phase         string
	DependsOn     []string
	Status        string
	Skipped       bool
	Result        string
	Error         string
	FailureReason string
}

// Transition is one recorded task status change.
type Transition struct {
	Seq    int64
	RunID  string
	TaskID string
	From   string
	To     string
	Reason string
	At     time.Time
}

// Store defines the journal interface.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, runID string) (Run, error)
	UpdateRunStatus(ctx context.Context, runID, status string) error

	// Tasks
	SaveTask(ctx context.Context, task TaskRecord) error
	GetTask(ctx context.Context, runID, taskID string) (TaskRecord, error)
	ListTasks(ctx context.Context, runID string) ([]TaskRecord, error)
	UpdateTaskStatus(ctx context.Context, runID, taskID, status string, skipped bool) error
	SetTaskResult(ctx context.Context, runID, taskID, result string) error
	SetTaskFailure(ctx context.Context, runID, taskID, reason, msg string) error
	ResetTasks(ctx context.Context, runID string) error

	// Audit trail
	RecordTransition(ctx context.Context, tr Transition) error
	ListTransitions(ctx context.Context, runID, taskID string) ([]Transition, error)
	RecordUsage(ctx context.Context, runID, taskID, agent string, u usage.Usage) error
	UsageTotals(ctx context.Context, runID string) (usage.Usage, error)

	// Lifecycle
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the journal at dbPath. Parent
// directories are created as needed.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory journal, mostly for tests. Every call
// gets its own database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:journal-%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc.org/sqlite needs foreign keys enabled per connection.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
