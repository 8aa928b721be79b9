package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteMedium stores every collection as one row of a SQLite table.
type SQLiteMedium struct {
	db   *sql.DB
	path string
}

const createCollectionsTable = `
CREATE TABLE IF NOT EXISTS collections (
	name TEXT PRIMARY KEY,
	body TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// NewSQLiteMedium opens (or creates) the database at dbPath.
func NewSQLiteMedium(dbPath string) (*SQLiteMedium, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	// modernc/sqlite serializes writers per connection; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createCollectionsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store db: %w", err)
	}

	return &SQLiteMedium{db: db, path: dbPath}, nil
}

// Load returns the stored document for name.
func (m *SQLiteMedium) Load(ctx context.Context, name string) ([]byte, error) {
	var body string
	err := m.db.QueryRowContext(ctx, `SELECT body FROM collections WHERE name = ?`, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collection %s: %w", name, ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("load collection %s: %w", name, err)
	}
	return []byte(body), nil
}

// Save upserts the document for name.
func (m *SQLiteMedium) Save(ctx context.Context, name string, data []byte) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO collections (name, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		name, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save collection %s: %w", name, err)
	}
	return nil
}

// Identity returns the database path qualified by the collection name.
func (m *SQLiteMedium) Identity(name string) string {
	return "sqlite:" + m.path + "#" + name
}

// Close releases the database connection.
func (m *SQLiteMedium) Close() error {
	return m.db.Close()
}
