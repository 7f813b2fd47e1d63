package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-memory, thread-safe Store implementation.
// It is primarily useful for testing and for single-process deployments
// that do not require durable persistence across restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, author, body string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevHash := GenesisHash
	if n := len(s.entries); n > 0 {
		prevHash = s.entries[n-1].Hash
	}

	entry := &Entry{
		Index:     len(s.entries),
		Timestamp: time.Now().UTC(),
		Author:    author,
		Body:      body,
		PrevHash:  prevHash,
	}
	entry.Hash = hashEntry(entry)
	s.entries = append(s.entries, entry)
	return entry, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, index int) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.entries) {
		return nil, fmt.Errorf("index %d: %w", index, ErrNotFound)
	}
	return s.entries[index], nil
}

// All implements Store. The returned slice is a copy, so a snapshot taken
// before an append is unaffected by it.
func (s *MemoryStore) All(_ context.Context) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make([]*Entry, len(s.entries))
	copy(snapshot, s.entries)
	return snapshot, nil
}

// Len implements Store.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Verify implements Store. It walks the chain and checks that all hashes
// are consistent. The first entry is validated against GenesisHash.
func (s *MemoryStore) Verify(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prevHash := GenesisHash
	for i, curr := range s.entries {
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
func (s *MemoryStore) Root(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return GenesisHash, nil
	}
	return s.entries[len(s.entries)-1].Hash, nil
}
