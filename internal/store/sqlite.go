package store

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
	_ "modernc.org/sqlite"

	"github.com/KaramelBytes/datasage-cli/internal/profile"
)

// ErrNotFound is returned when a session has no snapshots.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is one saved dataset profile. Snapshots are append-only.
type Snapshot struct {
	ID           string                  `json:"id" yaml:"id"`
	SessionID    string                  `json:"session_id" yaml:"session_id"`
	CreatedAt    time.Time               `json:"created_at" yaml:"created_at"`
	Rows         int                     `json:"rows" yaml:"rows"`
	Columns      int                     `json:"columns" yaml:"columns"`
	MissingCells int                     `json:"missing_cells" yaml:"missing_cells"`
	Profile      *profile.DatasetProfile `json:"profile,omitempty" yaml:"profile,omitempty"`
}

// Store keeps profile history in a SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// writes are serialized by SQLite anyway
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect history db: %w", err)
	}
	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS snapshots (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		row_count INTEGER NOT NULL,
		column_count INTEGER NOT NULL,
		missing_cells INTEGER NOT NULL,
		data TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_session ON snapshots(session_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveSnapshot records a new profile for a session.
func (s *Store) SaveSnapshot(ctx context.Context, sessionID string, p *profile.DatasetProfile) (*Snapshot, error) {
	if sessionID == "" {
		return nil, errors.New("save snapshot: empty session id")
	}
	if p == nil {
		return nil, fmt.Errorf("save snapshot: %w", profile.ErrNilDataset)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal profile: %w", err)
	}
	snap := &Snapshot{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		CreatedAt:    s.now(),
		Rows:         p.TotalRows,
		Columns:      p.TotalColumns,
		MissingCells: p.MissingCells,
		Profile:      p,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, session_id, created_at, row_count, column_count, missing_cells, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.SessionID, snap.CreatedAt.UnixNano(), snap.Rows, snap.Columns, snap.MissingCells, string(data))
	if err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns a session's snapshots newest first, without the
// profile payload.
func (s *Store) ListSnapshots(ctx context.Context, sessionID string) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, created_at, row_count, column_count, missing_cells
		 FROM snapshots WHERE session_id = ? ORDER BY created_at DESC, seq DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()
	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var created int64
		if err := rows.Scan(&snap.ID, &snap.SessionID, &created, &snap.Rows, &snap.Columns, &snap.MissingCells); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// Latest returns the newest snapshot of a session with its profile.
func (s *Store) Latest(ctx context.Context, sessionID string) (*Snapshot, error) {
	var snap Snapshot
	var created int64
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, created_at, row_count, column_count, missing_cells, data
		 FROM snapshots WHERE session_id = ? ORDER BY created_at DESC, seq DESC LIMIT 1`, sessionID).
		Scan(&snap.ID, &snap.SessionID, &created, &snap.Rows, &snap.Columns, &snap.MissingCells, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest snapshot for %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}
	snap.CreatedAt = time.Unix(0, created).UTC()
	var p profile.DatasetProfile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decode snapshot profile: %w", err)
	}
	snap.Profile = &p
	return &snap, nil
}

// DeleteSession removes every snapshot of a session.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
