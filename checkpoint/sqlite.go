package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hupe1980/routemesh/core"
)

// SQLiteStore persists checkpoints in a SQLite database. States are stored as
// JSON using the core state codec.
type SQLiteStore struct {
	db   *sql.DB
	path string
	opts Options
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	thread_id  TEXT NOT NULL,
	parent_id  TEXT,
	state_json TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_thread ON checkpoints(thread_id, seq);
`

// NewSQLiteStore opens (or creates) the database at path. ":memory:" opens a
// private in-memory database.
func NewSQLiteStore(path string, optFns ...func(o *Options)) (*SQLiteStore, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
		}

		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}

	// A second connection to ":memory:" would see an empty database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize checkpoint schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path, opts: opts}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Path returns the database path.
func (s *SQLiteStore) Path() string { return s.path }

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, threadID string, state core.ConversationState) (Checkpoint, error) {
	if threadID == "" {
		return Checkpoint{}, fmt.Errorf("put checkpoint: empty thread id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Checkpoint{}, err
	}
	defer tx.Rollback() //nolint:errcheck

	cp, err := s.insert(ctx, tx, threadID, state)
	if err != nil {
		return Checkpoint{}, err
	}

	return cp, tx.Commit()
}

func (s *SQLiteStore) insert(ctx context.Context, tx *sql.Tx, threadID string, state core.ConversationState) (Checkpoint, error) {
	var parent sql.NullString

	err := tx.QueryRowContext(ctx,
		`SELECT id FROM checkpoints WHERE thread_id = ? ORDER BY seq DESC LIMIT 1`, threadID).Scan(&parent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, fmt.Errorf("lookup head of %s: %w", threadID, err)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("encode state: %w", err)
	}

	cp := Checkpoint{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		ParentID:  parent.String,
		State:     state.Clone(),
		CreatedAt: s.opts.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkpoints (id, thread_id, parent_id, state_json, created_at) VALUES (?, ?, ?, ?, ?)`,
		cp.ID, cp.ThreadID, parent, string(data), cp.CreatedAt)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("insert checkpoint: %w", err)
	}

	return cp, nil
}

// Latest implements Store.
func (s *SQLiteStore) Latest(ctx context.Context, threadID string) (Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, thread_id, parent_id, state_json, created_at FROM checkpoints
		 WHERE thread_id = ? ORDER BY seq DESC LIMIT 1`, threadID)

	cp, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}

	return cp, err
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, thread_id, parent_id, state_json, created_at FROM checkpoints WHERE id = ?`, id)

	cp, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, fmt.Errorf("checkpoint %s: %w", id, ErrNotFound)
	}

	return cp, err
}

// History implements Store.
func (s *SQLiteStore) History(ctx context.Context, threadID string) ([]Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, parent_id, state_json, created_at FROM checkpoints
		 WHERE thread_id = ? ORDER BY seq ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("query history of %s: %w", threadID, err)
	}
	defer rows.Close()

	var out []Checkpoint

	for rows.Next() {
		cp, err := scan(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, cp)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}

	return out, nil
}

// Branch implements Store.
func (s *SQLiteStore) Branch(ctx context.Context, id, newThreadID string) (Checkpoint, error) {
	src, err := s.Get(ctx, id)
	if err != nil {
		return Checkpoint{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Checkpoint{}, err
	}
	defer tx.Rollback() //nolint:errcheck

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM checkpoints WHERE thread_id = ?`, newThreadID).Scan(&n); err != nil {
		return Checkpoint{}, err
	}

	if n > 0 {
		return Checkpoint{}, fmt.Errorf("branch into %s: thread already exists", newThreadID)
	}

	cp, err := s.insert(ctx, tx, newThreadID, rethread(src.State, newThreadID))
	if err != nil {
		return Checkpoint{}, err
	}

	return cp, tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (Checkpoint, error) {
	var (
		cp        Checkpoint
		parent    sql.NullString
		stateJSON string
		createdAt time.Time
	)

	if err := row.Scan(&cp.ID, &cp.ThreadID, &parent, &stateJSON, &createdAt); err != nil {
		return Checkpoint{}, err
	}

	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint %s: %w", cp.ID, err)
	}

	cp.ParentID = parent.String
	cp.CreatedAt = createdAt

	return cp, nil
}
