package registry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/aweris/amber/internal/ident"
)

// SQLite keeps the registry in a SQLite database, for hosts that share one
// registry between several processes.
type SQLite struct {
	entries
	db     *sql.DB
	dbPath string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`
		PRAGMA synchronous = NORMAL;
		PRAGMA busy_timeout = 5000;

		CREATE TABLE IF NOT EXISTS repositories (
			key TEXT PRIMARY KEY,
			root TEXT NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database: %w", err)
	}

	return &SQLite{db: db, dbPath: path}, nil
}

// Load reads every row.
func (s *SQLite) Load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT key, root FROM repositories`)
	if err != nil {
		return fmt.Errorf("query registry: %w", err)
	}
	defer rows.Close()

	roots := make(map[ident.ID]string)
	for rows.Next() {
		var k, root string
		if err := rows.Scan(&k, &root); err != nil {
			return fmt.Errorf("scan registry: %w", err)
		}
		key, err := ident.ParseHex(k)
		if err != nil {
			return fmt.Errorf("parse registry key %q: %w", k, err)
		}
		roots[key] = root
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read registry: %w", err)
	}
	s.replace(roots)
	return nil
}

// Save upserts every record in one transaction.
func (s *SQLite) Save(ctx context.Context) error {
	roots, dirty := s.snapshot()
	if !dirty {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO repositories (key, root) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for key, root := range roots {
		if _, err := stmt.ExecContext(ctx, key.Hex(), root); err != nil {
			return fmt.Errorf("upsert %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.markClean()
	return nil
}

// Close saves pending changes and closes the database connection.
func (s *SQLite) Close() error {
	saveErr := s.Save(context.Background())
	if err := s.db.Close(); err != nil {
		return err
	}
	return saveErr
}
