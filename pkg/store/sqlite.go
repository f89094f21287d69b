package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps documents in one table of a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
// The path ":memory:" opens a private in-memory database.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite store needs a database path")
	}
	dsn := dbPath
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		dsn = dbPath + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS assets (
		key        TEXT PRIMARY KEY,
		format     TEXT NOT NULL,
		data       BLOB,
		revision   TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`)
	return err
}

func (s *SQLiteStore) Put(ctx context.Context, doc *Document) (*Document, error) {
	next, err := prepare(doc)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT revision FROM assets WHERE key = ?`, doc.Key).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("read revision: %w", err)
	}
	if err := checkRevision(doc.Key, doc.Revision, current); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO assets (key, format, data, revision, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			format = excluded.format,
			data = excluded.data,
			revision = excluded.revision,
			updated_at = excluded.updated_at`,
		next.Key, next.Format, next.Data, next.Revision, next.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("write asset: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*Document, error) {
	var (
		doc     Document
		updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT key, format, data, revision, updated_at FROM assets WHERE key = ?`, key).
		Scan(&doc.Key, &doc.Format, &doc.Data, &doc.Revision, &updated)
	if err == sql.ErrNoRows {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("read asset: %w", err)
	}
	doc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &doc, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(key)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]Info, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, format, COALESCE(length(data), 0), revision, updated_at FROM assets
		 WHERE key >= ? ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var (
			info    Info
			updated string
		)
		if err := rows.Scan(&info.Key, &info.Format, &info.Size, &info.Revision, &updated); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		if !strings.HasPrefix(info.Key, prefix) {
			break
		}
		info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
