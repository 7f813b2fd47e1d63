package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// GenesisHash is the canonical well-known predecessor hash of the first
// entry. It serves as the trust anchor of the chain; the entry at index 0
// chains from this constant rather than from a stored predecessor.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Entry is a single guestbook record in the ledger. Author and Body are
// caller-controlled text of unbounded length; identity is positional
// (the Index field), so duplicate pairs are distinct entries.
type Entry struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// hashEntry computes a deterministic SHA-256 hash over an entry's fields.
func hashEntry(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%d|%s|%d|%s|%s",
		e.Index, e.Timestamp.Format(time.RFC3339Nano),
		len(e.Author), e.Author, len(e.Body), e.Body, e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}
