// Package settlement defines the narrow contract between the guestbook
// client side and the layer that orders and finalizes writes. The core
// depends only on this interface, not on any particular consensus protocol.
package settlement

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/guestchain/guestchain/internal/ledger"
)

// ErrClosed is returned by Dispatch after the settler has shut down.
var ErrClosed = errors.New("settlement: settler closed")

// Status is the final outcome of a dispatched write.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

// Outcome reports the settlement result for a dispatched write,
// correlated by handle. Entry is set only when Status is StatusConfirmed.
type Outcome struct {
	Handle uuid.UUID
	Status Status
	Reason string
	Entry  *ledger.Entry
}

// Settler orders and finalizes writes. Dispatch hands a candidate entry
// off and returns a correlation handle without waiting for settlement;
// the outcome arrives later on the Outcomes channel. A write cannot be
// withdrawn once dispatched.
type Settler interface {
	Dispatch(ctx context.Context, author, body string) (uuid.UUID, error)
	Outcomes() <-chan Outcome
}
