package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to serialise
// concurrent Append calls. The value is arbitrary but must be consistent
// across all node instances sharing a database.
const advisoryLockKey = int64(7_420_118_305)

// PostgresStore persists the guestbook chain to a PostgreSQL database.
// It implements the Store interface.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres creates a PostgresStore backed by the given connection pool.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Append implements Store.
// It acquires a PostgreSQL advisory lock, reads the chain tail, computes the
// new entry hash, and inserts it, all within a single transaction.
func (s *PostgresStore) Append(ctx context.Context, author, body string) (*Entry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Serialise concurrent appends with a transaction-scoped advisory lock.
	// The lock is automatically released when the transaction commits or rolls back.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	// Read the current tail of the chain; an empty table chains from GenesisHash.
	prevIdx := -1
	prevHash := GenesisHash
	err = tx.QueryRow(ctx,
		"SELECT idx, hash FROM guestbook_ledger ORDER BY idx DESC LIMIT 1",
	).Scan(&prevIdx, &prevHash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("read ledger tail: %w", err)
	}

	// Postgres stores timestamptz at microsecond precision; truncate up front
	// so the stored timestamp round-trips and Verify recomputes the same hash.
	entry := &Entry{
		Index:     prevIdx + 1,
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
		Author:    author,
		Body:      body,
		PrevHash:  prevHash,
	}
	entry.Hash = hashEntry(entry)

	if _, err := tx.Exec(ctx,
		`INSERT INTO guestbook_ledger (idx, ts, author, body, prev_hash, hash)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.Index, entry.Timestamp, entry.Author, entry.Body, entry.PrevHash, entry.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit ledger tx: %w", err)
	}

	s.logger.Debug("ledger entry appended",
		zap.Int("idx", entry.Index),
		zap.String("author", entry.Author),
	)
	return entry, nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, index int) (*Entry, error) {
	entry := &Entry{}
	err := s.pool.QueryRow(ctx,
		`SELECT idx, ts, author, body, prev_hash, hash
		 FROM guestbook_ledger WHERE idx = $1`, index,
	).Scan(&entry.Index, &entry.Timestamp, &entry.Author, &entry.Body, &entry.PrevHash, &entry.Hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("index %d: %w", index, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry %d: %w", index, err)
	}
	entry.Timestamp = entry.Timestamp.UTC()
	return entry, nil
}

// All implements Store.
func (s *PostgresStore) All(ctx context.Context) ([]*Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT idx, ts, author, body, prev_hash, hash
		 FROM guestbook_ledger ORDER BY idx ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry := &Entry{}
		if err := rows.Scan(
			&entry.Index, &entry.Timestamp, &entry.Author,
			&entry.Body, &entry.PrevHash, &entry.Hash,
		); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		// Hashes cover the RFC 3339 rendering, so the zone must stay UTC
		// regardless of what location the driver decoded into.
		entry.Timestamp = entry.Timestamp.UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Len implements Store.
func (s *PostgresStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM guestbook_ledger").Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger entries: %w", err)
	}
	return n, nil
}

// Verify implements Store. It streams all rows ordered by idx and validates
// the hash chain. O(n) in ledger length; may be slow for very large ledgers.
func (s *PostgresStore) Verify(ctx context.Context) error {
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
func (s *PostgresStore) Root(ctx context.Context) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx,
		"SELECT hash FROM guestbook_ledger ORDER BY idx DESC LIMIT 1",
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return GenesisHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("get ledger root: %w", err)
	}
	return hash, nil
}

// Migrate creates the guestbook_ledger table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS guestbook_ledger (
			idx       INTEGER PRIMARY KEY,
			ts        TIMESTAMPTZ NOT NULL,
			author    TEXT NOT NULL,
			body      TEXT NOT NULL,
			prev_hash TEXT NOT NULL,
			hash      TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create guestbook_ledger table: %w", err)
	}
	return nil
}
