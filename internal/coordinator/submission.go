package coordinator

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a submission. Confirmed and Failed are
// terminal; a submission never leaves a terminal state.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Submission is the client-local record of one append request.
type Submission struct {
	Handle      uuid.UUID `json:"handle"`
	Author      string    `json:"author"`
	Body        string    `json:"body"`
	Status      Status    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	Index       int       `json:"index"` // ledger index once confirmed, -1 otherwise
	SubmittedAt time.Time `json:"submitted_at"`
}

// ViewEntry is one row of the rendered local view: a ledger entry or a
// still-pending local submission. Index is -1 while no index is assigned.
type ViewEntry struct {
	Author string `json:"author"`
	Body   string `json:"body"`
	Status Status `json:"status"`
	Index  int    `json:"index"`
}

// EventKind classifies coordinator notifications.
type EventKind string

const (
	EventSubmitted     EventKind = "submitted"
	EventConfirmed     EventKind = "confirmed"
	EventFailed        EventKind = "failed"
	EventViewRefreshed EventKind = "view_refreshed"
	EventError         EventKind = "error"
)

// Event is delivered to observers on every status or view change.
// Handle is zero for events not tied to a single submission.
type Event struct {
	Kind   EventKind `json:"kind"`
	Handle uuid.UUID `json:"handle,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

// Observer receives coordinator events. Callbacks run synchronously on the
// coordinator's notifying goroutine and must not block.
type Observer func(Event)
