package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SQLiteCache implements Cache on a SQLite database
type SQLiteCache struct {
	db   *sql.DB
	path string
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" && !strings.HasPrefix(dbPath, "file:") {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteCache opens (creating if needed) the cache database at dbPath
func NewSQLiteCache(ctx context.Context, dbPath string) (*SQLiteCache, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, storageError("open database", err)
	}

	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, storageError("apply migrations", err)
	}

	return &SQLiteCache{db: db, path: dbPath}, nil
}

// Path returns the database path
func (s *SQLiteCache) Path() string {
	return s.path
}

// Close closes the database connection
func (s *SQLiteCache) Close() error {
	if err := s.db.Close(); err != nil {
		return storageError("close", err)
	}
	return nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn in a transaction, committing on success
func (s *SQLiteCache) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Load returns the entry for pageKey
func (s *SQLiteCache) Load(ctx context.Context, pageKey string) (*Entry, bool, error) {
	var entry *Entry

	err := s.withTx(ctx, func(q querier) error {
		var err error
		entry, err = loadEntry(ctx, q, pageKey)
		return err
	})
	if err != nil {
		return nil, false, storageError("load "+pageKey, err)
	}

	return entry, entry != nil, nil
}

func loadEntry(ctx context.Context, q querier, pageKey string) (*Entry, error) {
	query := `
		SELECT format_version, embedding_model, embedding_dimension, record_count, created_at, saved_at
		FROM pages
		WHERE page_key = ?
	`
	entry := &Entry{PageKey: pageKey}
	var recordCount int
	var createdAt, savedAt int64
	err := q.QueryRowContext(ctx, query, pageKey).Scan(
		&entry.FormatVersion, &entry.EmbeddingModel, &entry.EmbeddingDimension,
		&recordCount, &createdAt, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page: %w", err)
	}
	entry.CreatedAt = time.Unix(0, createdAt)
	entry.SavedAt = time.Unix(0, savedAt)

	rows, err := q.QueryContext(ctx, `
		SELECT seq, chunk_text, source_offset_start, source_offset_end, vector
		FROM page_records
		WHERE page_key = ?
		ORDER BY seq
	`, pageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	entry.Records = make([]Record, 0, recordCount)
	for rows.Next() {
		var r Record
		var blob []byte
		if err := rows.Scan(&r.Seq, &r.Text, &r.OffsetStart, &r.OffsetEnd, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if r.Vector, err = deserializeVector(blob); err != nil {
			return nil, fmt.Errorf("record %d: %w", r.Seq, err)
		}
		entry.Records = append(entry.Records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(entry.Records) != recordCount {
		return nil, fmt.Errorf("page %q has %d records, header says %d", pageKey, len(entry.Records), recordCount)
	}

	return entry, nil
}

// Save replaces the entry for entry.PageKey in a single transaction.
// FormatVersion, CreatedAt and SavedAt are filled in on entry.
func (s *SQLiteCache) Save(ctx context.Context, entry *Entry) error {
	if err := entry.Validate(); err != nil {
		return storageError("save", err)
	}
	stamp(entry)

	err := s.withTx(ctx, func(q querier) error {
		if err := deleteEntry(ctx, q, entry.PageKey); err != nil {
			return err
		}

		_, err := q.ExecContext(ctx, `
			INSERT INTO pages (page_key, format_version, embedding_model, embedding_dimension, record_count, created_at, saved_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, entry.PageKey, entry.FormatVersion, entry.EmbeddingModel, entry.EmbeddingDimension,
			len(entry.Records), entry.CreatedAt.UnixNano(), entry.SavedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to insert page: %w", err)
		}

		for _, r := range entry.Records {
			_, err := q.ExecContext(ctx, `
				INSERT INTO page_records (page_key, seq, chunk_text, source_offset_start, source_offset_end, vector)
				VALUES (?, ?, ?, ?, ?, ?)
			`, entry.PageKey, r.Seq, r.Text, r.OffsetStart, r.OffsetEnd, serializeVector(r.Vector))
			if err != nil {
				return fmt.Errorf("failed to insert record %d: %w", r.Seq, err)
			}
		}
		return nil
	})
	if err != nil {
		return storageError("save "+entry.PageKey, err)
	}

	return nil
}

// deleteEntry removes a page and its records
func deleteEntry(ctx context.Context, q querier, pageKey string) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM page_records WHERE page_key = ?", pageKey); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM pages WHERE page_key = ?", pageKey); err != nil {
		return fmt.Errorf("failed to delete page: %w", err)
	}
	return nil
}

// Delete removes one entry
func (s *SQLiteCache) Delete(ctx context.Context, pageKey string) (bool, error) {
	var existed bool

	err := s.withTx(ctx, func(q querier) error {
		var n int
		if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM pages WHERE page_key = ?", pageKey).Scan(&n); err != nil {
			return fmt.Errorf("failed to check page: %w", err)
		}
		existed = n > 0
		return deleteEntry(ctx, q, pageKey)
	})
	if err != nil {
		return false, storageError("delete "+pageKey, err)
	}

	return existed, nil
}

// Clear removes every entry
func (s *SQLiteCache) Clear(ctx context.Context) (int, error) {
	var removed int

	err := s.withTx(ctx, func(q querier) error {
		if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM pages").Scan(&removed); err != nil {
			return fmt.Errorf("failed to count pages: %w", err)
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM page_records"); err != nil {
			return fmt.Errorf("failed to delete records: %w", err)
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM pages"); err != nil {
			return fmt.Errorf("failed to delete pages: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, storageError("clear", err)
	}

	return removed, nil
}

// List returns metadata for every entry
func (s *SQLiteCache) List(ctx context.Context) ([]EntryInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT page_key, format_version, embedding_model, embedding_dimension, record_count, created_at, saved_at
		FROM pages
		ORDER BY saved_at DESC, page_key
	`)
	if err != nil {
		return nil, storageError("list", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	infos := make([]EntryInfo, 0)
	for rows.Next() {
		var info EntryInfo
		var createdAt, savedAt int64
		if err := rows.Scan(&info.PageKey, &info.FormatVersion, &info.EmbeddingModel,
			&info.EmbeddingDimension, &info.RecordCount, &createdAt, &savedAt); err != nil {
			return nil, storageError("list", err)
		}
		info.CreatedAt = time.Unix(0, createdAt)
		info.SavedAt = time.Unix(0, savedAt)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list", err)
	}

	return infos, nil
}
