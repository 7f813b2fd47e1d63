// Package ledger implements the authoritative append-only guestbook sequence.
//
// The chain starts empty; the first entry (index 0) records GenesisHash
// (64 hex zeros) as its predecessor. Every subsequent entry records the
// SHA-256 of the entry before it, making removal or reordering detectable
// via Verify.
//
// Three implementations of the Store interface are provided:
//   - MemoryStore: in-process, for testing and development.
//   - SQLiteStore: durable, for single-node deployments.
//   - PostgresStore: durable, for shared deployments.
package ledger

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no entry exists at the given index.
var ErrNotFound = errors.New("ledger: entry not found")

// Store is the interface for the append-only guestbook ledger.
// Appends are the only mutation; entries are never updated, removed,
// or reordered. Duplicate (author, body) pairs are permitted and
// recorded as distinct entries.
type Store interface {
	// Append adds a new entry as the last element and returns it with
	// its assigned index. Empty author or body is permitted.
	Append(ctx context.Context, author, body string) (*Entry, error)

	// Get returns the entry at the given zero-based index, or ErrNotFound.
	Get(ctx context.Context, index int) (*Entry, error)

	// All returns every entry in insertion order, a full snapshot as of
	// the call. Safe to call concurrently with appends.
	All(ctx context.Context) ([]*Entry, error)

	// Len returns the total number of entries.
	Len(ctx context.Context) (int, error)

	// Verify walks the entire chain and checks hash consistency.
	// Returns nil if the chain is intact.
	Verify(ctx context.Context) error

	// Root returns the hash of the most recent entry (the chain tip),
	// or GenesisHash when the ledger is empty.
	Root(ctx context.Context) (string, error)
}
