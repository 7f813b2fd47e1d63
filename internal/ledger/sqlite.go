package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// SQLiteStore persists the guestbook chain to a SQLite database file.
// It implements the Store interface and suits single-node deployments.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger

	// SQLite allows one writer at a time; serialise appends in-process
	// instead of relying on the driver's busy handler.
	appendMu sync.Mutex
}

// OpenSQLite opens (creating if needed) the database at path and ensures
// the ledger table exists.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS guestbook_ledger (
			idx       INTEGER PRIMARY KEY,
			ts        TEXT NOT NULL,
			author    TEXT NOT NULL,
			body      TEXT NOT NULL,
			prev_hash TEXT NOT NULL,
			hash      TEXT NOT NULL
		)`); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("create guestbook_ledger table: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, author, body string) (*Entry, error) {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	prevIdx := -1
	prevHash := GenesisHash
	err = tx.QueryRowContext(ctx,
		"SELECT idx, hash FROM guestbook_ledger ORDER BY idx DESC LIMIT 1",
	).Scan(&prevIdx, &prevHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read ledger tail: %w", err)
	}

	entry := &Entry{
		Index:     prevIdx + 1,
		Timestamp: time.Now().UTC(),
		Author:    author,
		Body:      body,
		PrevHash:  prevHash,
	}
	entry.Hash = hashEntry(entry)

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO guestbook_ledger (idx, ts, author, body, prev_hash, hash)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Index, entry.Timestamp.Format(time.RFC3339Nano),
		entry.Author, entry.Body, entry.PrevHash, entry.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit ledger tx: %w", err)
	}

	s.logger.Debug("ledger entry appended",
		zap.Int("idx", entry.Index),
		zap.String("author", entry.Author),
	)
	return entry, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, index int) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT idx, ts, author, body, prev_hash, hash
		 FROM guestbook_ledger WHERE idx = ?`, index)
	entry, err := scanSQLiteEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index %d: %w", index, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry %d: %w", index, err)
	}
	return entry, nil
}

// All implements Store.
func (s *SQLiteStore) All(ctx context.Context) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, ts, author, body, prev_hash, hash
		 FROM guestbook_ledger ORDER BY idx ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanSQLiteEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Len implements Store.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM guestbook_ledger").Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger entries: %w", err)
	}
	return n, nil
}

// Verify implements Store.
func (s *SQLiteStore) Verify(ctx context.Context) error {
	entries, err := s.All(ctx)
	if err != nil {
		return err
	}

	prevHash := GenesisHash
	for i, curr := range entries {
		if curr.Index != i {
			return fmt.Errorf("entry at position %d has index %d", i, curr.Index)
		}
		if curr.PrevHash != prevHash {
			return fmt.Errorf("hash chain broken at index %d", curr.Index)
		}
		if curr.Hash != hashEntry(curr) {
			return fmt.Errorf("entry %d has invalid hash", curr.Index)
		}
		prevHash = curr.Hash
	}
	return nil
}

// Root implements Store.
func (s *SQLiteStore) Root(ctx context.Context) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		"SELECT hash FROM guestbook_ledger ORDER BY idx DESC LIMIT 1",
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return GenesisHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("get ledger root: %w", err)
	}
	return hash, nil
}

// scanSQLiteEntry scans a row, parsing the RFC3339Nano timestamp column.
func scanSQLiteEntry(scan func(dest ...any) error) (*Entry, error) {
	entry := &Entry{}
	var ts string
	if err := scan(&entry.Index, &ts, &entry.Author, &entry.Body, &entry.PrevHash, &entry.Hash); err != nil {
		return nil, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	entry.Timestamp = parsed
	return entry, nil
}
