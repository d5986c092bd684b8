package memory

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed schema.sql
var schema string

// SQLiteBackend stores records in a single SQLite file.
type SQLiteBackend struct {
	db *sql.DB
}

var _ Backend = (*SQLiteBackend)(nil)

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	path = expandHome(path)
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create memory directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open memory database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	b := &SQLiteBackend{db: db}
	if err := b.init(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *SQLiteBackend) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := b.db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	if _, err := b.db.Exec(schema); err != nil {
		return fmt.Errorf("apply memory schema: %w", err)
	}
	return nil
}

const upsertRecord = `
INSERT INTO memory_records
    (id, content, tags, links, importance, created_at, retention, last_access, access_count, forgotten, embedding)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    retention    = excluded.retention,
    last_access  = excluded.last_access,
    access_count = excluded.access_count,
    forgotten    = excluded.forgotten,
    importance   = excluded.importance`

// Put upserts records in one transaction.
func (b *SQLiteBackend) Put(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertRecord)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		tags, err := json.Marshal(r.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}
		links, err := json.Marshal(r.Links)
		if err != nil {
			return fmt.Errorf("marshal links: %w", err)
		}
		_, err = stmt.ExecContext(ctx,
			r.ID, r.Content, string(tags), string(links), r.Importance,
			r.CreatedAt.UnixNano(), r.Retention, r.LastAccess.UnixNano(),
			r.AccessCount, r.Forgotten, Float32SliceToBytes(r.Embedding),
		)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// Delete removes records by ID.
func (b *SQLiteBackend) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := b.db.ExecContext(ctx, "DELETE FROM memory_records WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	return nil
}

// LoadAll returns every stored record in creation order.
func (b *SQLiteBackend) LoadAll(ctx context.Context) ([]Record, error) {
	rows, err := b.db.QueryContext(ctx, `
SELECT id, content, tags, links, importance, created_at, retention, last_access, access_count, forgotten, embedding
FROM memory_records ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                   Record
			tags, links         string
			created, lastAccess int64
			embedding           []byte
		)
		if err := rows.Scan(&r.ID, &r.Content, &tags, &links, &r.Importance, &created,
			&r.Retention, &lastAccess, &r.AccessCount, &r.Forgotten, &embedding); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(links), &r.Links); err != nil {
			return nil, fmt.Errorf("decode links of %s: %w", r.ID, err)
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		r.LastAccess = time.Unix(0, lastAccess).UTC()
		r.Embedding = BytesToFloat32Slice(embedding)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
