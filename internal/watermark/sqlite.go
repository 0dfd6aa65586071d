package watermark

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"gradwatch/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS watermark (
	name       TEXT PRIMARY KEY,
	tid        INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);
`

const sqliteKey = "last-tid"

// SQLiteStore keeps the watermark in a single-row local table. Drop-in
// replacement for ChatStore when the channel description should stay
// human-owned; same read-then-write contract.
type SQLiteStore struct {
	db   *sql.DB
	log  logx.Logger
	read bool
}

func OpenSQLite(path string, log logx.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("watermark: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("watermark: migrate: %w", err)
	}
	return &SQLiteStore{db: db, log: log}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Read(ctx context.Context) (int64, error) {
	var tid int64
	err := s.db.QueryRowContext(ctx,
		`SELECT tid FROM watermark WHERE name = ?`, sqliteKey).Scan(&tid)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.read = true
		return Unknown, nil
	case err != nil:
		return Unknown, fmt.Errorf("watermark: read: %w", err)
	}
	s.read = true
	return tid, nil
}

func (s *SQLiteStore) Write(ctx context.Context, tid int64) error {
	if !s.read {
		return ErrNotRead
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watermark(name, tid, updated_at) VALUES(?,?,?)
		 ON CONFLICT(name) DO UPDATE SET tid = excluded.tid, updated_at = excluded.updated_at`,
		sqliteKey, tid, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("watermark: write: %w", err)
	}
	s.log.Debug("watermark advanced", logx.Int64("tid", tid))
	return nil
}
