// Package coordinator bridges user intent to the append-only ledger across
// asynchronous settlement. It tracks each submission through an explicit
// state machine (Submitted, then Confirmed or Failed), keeps a local view
// of the ledger that is reconciled against authoritative reads, and
// notifies observers on every status or view change.
//
// The local view is derived state: on any conflict the ledger wins. A
// coordinator serves a single logical client session; its methods are
// nonetheless safe to call from the UI goroutine while the outcome loop
// runs in the background.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guestchain/guestchain/internal/ledger"
	"github.com/guestchain/guestchain/internal/settlement"
	"go.uber.org/zap"
)

var (
	// ErrNotReady is returned by Submit when no settlement layer is
	// attached or the coordinator has been closed.
	ErrNotReady = errors.New("coordinator: settlement layer not ready")

	// ErrUnknownHandle is returned when a handle matches no submission.
	ErrUnknownHandle = errors.New("coordinator: unknown submission handle")
)

// DefaultTimeout bounds how long a submission may stay unresolved before
// it is marked Failed. Callers override it with WithTimeout.
const DefaultTimeout = 10 * time.Second

type pendingState struct {
	sub   *Submission
	timer *time.Timer
	done  chan struct{} // closed when the submission reaches a terminal state
}

// Coordinator tracks submissions and maintains the local view.
type Coordinator struct {
	settler settlement.Settler
	store   ledger.Store
	logger  *zap.Logger
	timeout time.Duration

	mu        sync.Mutex
	snapshot  []*ledger.Entry // last reconciled authoritative read
	subs      map[uuid.UUID]*pendingState
	order     []uuid.UUID // every submission handle, in submission order
	observers []Observer
	orphans   map[uuid.UUID]settlement.Outcome
	closed    bool

	done chan struct{}
	wg   sync.WaitGroup
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithTimeout sets the per-submission settlement timeout.
func WithTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.timeout = d }
}

// WithLogger sets the coordinator's logger.
func WithLogger(logger *zap.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = logger }
}

// New creates a Coordinator reading authoritative state from store and
// dispatching writes through settler. A nil settler is permitted; Submit
// then fails with ErrNotReady until a coordinator with a settler is used.
func New(settler settlement.Settler, store ledger.Store, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		settler: settler,
		store:   store,
		logger:  zap.NewNop(),
		timeout: DefaultTimeout,
		subs:    make(map[uuid.UUID]*pendingState),
		orphans: make(map[uuid.UUID]settlement.Outcome),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if settler != nil {
		c.wg.Add(1)
		go c.run()
	}
	return c
}

// Subscribe registers an observer for all subsequent events.
func (c *Coordinator) Subscribe(fn Observer) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Submit validates readiness, dispatches the write, and returns its
// correlation handle. It does not block past the hand-off; the outcome
// arrives asynchronously and is reflected in the view and via events.
func (c *Coordinator) Submit(ctx context.Context, author, body string) (uuid.UUID, error) {
	c.mu.Lock()
	if c.closed || c.settler == nil {
		c.mu.Unlock()
		return uuid.Nil, ErrNotReady
	}
	c.mu.Unlock()

	handle, err := c.settler.Dispatch(ctx, author, body)
	if err != nil {
		if errors.Is(err, settlement.ErrClosed) {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrNotReady, err)
		}
		return uuid.Nil, fmt.Errorf("dispatch: %w", err)
	}

	ps := &pendingState{
		sub: &Submission{
			Handle:      handle,
			Author:      author,
			Body:        body,
			Status:      StatusSubmitted,
			Index:       -1,
			SubmittedAt: time.Now().UTC(),
		},
		done: make(chan struct{}),
	}

	c.mu.Lock()
	c.subs[handle] = ps
	c.order = append(c.order, handle)
	// The record must be registered before the timer is armed, or an
	// immediate expiry would find nothing and the submission would never
	// reach a terminal state. expire and apply both take the lock, so the
	// timer assignment is visible to them.
	ps.timer = time.AfterFunc(c.timeout, func() { c.expire(handle) })
	// The settler may have already reported an outcome for this handle
	// before we registered it; replay it below.
	early, replay := c.orphans[handle]
	delete(c.orphans, handle)
	c.mu.Unlock()

	c.logger.Debug("submission dispatched", zap.String("handle", handle.String()))
	c.notify(Event{Kind: EventSubmitted, Handle: handle})
	if replay {
		c.apply(early)
	}
	return handle, nil
}

// CurrentView returns confirmed entries from the last reconciled snapshot
// followed by still-pending local submissions in submission order. It never
// touches the network.
func (c *Coordinator) CurrentView() []ViewEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	view := make([]ViewEntry, 0, len(c.snapshot)+len(c.order))
	for _, e := range c.snapshot {
		view = append(view, ViewEntry{
			Author: e.Author,
			Body:   e.Body,
			Status: StatusConfirmed,
			Index:  e.Index,
		})
	}
	for _, h := range c.order {
		ps, ok := c.subs[h]
		if !ok || ps.sub.Status != StatusSubmitted {
			continue
		}
		view = append(view, ViewEntry{
			Author: ps.sub.Author,
			Body:   ps.sub.Body,
			Status: StatusSubmitted,
			Index:  -1,
		})
	}
	return view
}

// Refresh forces an unconditional authoritative read and replaces the
// snapshot. On failure the previous snapshot is kept and the error is both
// returned and published to observers.
func (c *Coordinator) Refresh(ctx context.Context) error {
	return c.reconcile(ctx)
}

// Submission returns a copy of the record for handle.
func (c *Coordinator) Submission(handle uuid.UUID) (Submission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ps, ok := c.subs[handle]
	if !ok {
		return Submission{}, ErrUnknownHandle
	}
	return *ps.sub, nil
}

// Submissions returns copies of all records, terminal ones included, in
// submission order. Useful for user-visible history.
func (c *Coordinator) Submissions() []Submission {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Submission, 0, len(c.order))
	for _, h := range c.order {
		if ps, ok := c.subs[h]; ok {
			out = append(out, *ps.sub)
		}
	}
	return out
}

// Wait blocks until the submission reaches a terminal state or ctx is done.
// Cancelling the wait never cancels the submission itself; it may still
// confirm or fail later and the view is updated either way.
func (c *Coordinator) Wait(ctx context.Context, handle uuid.UUID) (Submission, error) {
	c.mu.Lock()
	ps, ok := c.subs[handle]
	c.mu.Unlock()
	if !ok {
		return Submission{}, ErrUnknownHandle
	}

	select {
	case <-ps.done:
		return c.Submission(handle)
	case <-ctx.Done():
		return Submission{}, ctx.Err()
	}
}

// Close stops the outcome loop. In-flight submissions are not withdrawn;
// their outcomes are simply no longer observed by this coordinator.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, ps := range c.subs {
		if ps.timer != nil {
			ps.timer.Stop()
		}
	}
	c.mu.Unlock()

	close(c.done)
	c.wg.Wait()
}

// run consumes settlement outcomes until the coordinator closes or the
// settler's outcome channel is closed.
func (c *Coordinator) run() {
	defer c.wg.Done()
	outcomes := c.settler.Outcomes()
	for {
		select {
		case o, ok := <-outcomes:
			if !ok {
				return
			}
			c.apply(o)
		case <-c.done:
			return
		}
	}
}

// apply folds one settlement outcome into the state machine.
func (c *Coordinator) apply(o settlement.Outcome) {
	c.mu.Lock()
	ps, ok := c.subs[o.Handle]
	if !ok {
		// Outcome raced ahead of Submit's bookkeeping; stash it for replay.
		c.orphans[o.Handle] = o
		c.mu.Unlock()
		return
	}

	if ps.sub.Status != StatusSubmitted {
		c.mu.Unlock()
		// Terminal states are never re-entered. A confirmation arriving
		// after a timeout still lands in the ledger, so reconcile to make
		// the entry visible exactly once, without resurrecting the record.
		if o.Status == settlement.StatusConfirmed {
			c.logger.Info("late confirmation after terminal state",
				zap.String("handle", o.Handle.String()),
			)
			if err := c.reconcile(context.Background()); err != nil {
				c.logger.Warn("reconcile after late confirmation", zap.Error(err))
			}
		}
		return
	}

	if ps.timer != nil {
		ps.timer.Stop()
	}

	switch o.Status {
	case settlement.StatusConfirmed:
		ps.sub.Status = StatusConfirmed
		ps.sub.Index = o.Entry.Index
		close(ps.done)
		c.mu.Unlock()

		c.notify(Event{Kind: EventConfirmed, Handle: o.Handle})
		// Replace the view with a fresh authoritative snapshot rather than
		// appending the local guess: the settled index and entries from
		// other writers must both be reflected.
		if err := c.reconcile(context.Background()); err != nil {
			c.logger.Warn("reconcile after confirmation", zap.Error(err))
		}

	case settlement.StatusRejected:
		ps.sub.Status = StatusFailed
		ps.sub.Reason = o.Reason
		close(ps.done)
		c.mu.Unlock()

		c.logger.Info("submission rejected",
			zap.String("handle", o.Handle.String()),
			zap.String("reason", o.Reason),
		)
		c.notify(Event{Kind: EventFailed, Handle: o.Handle, Reason: o.Reason})
	}
}

// expire marks a still-pending submission Failed after the timeout window.
// Timeout is not rejection: the write may still land later, which is
// handled by the late-confirmation path in apply.
func (c *Coordinator) expire(handle uuid.UUID) {
	c.mu.Lock()
	ps, ok := c.subs[handle]
	if !ok || ps.sub.Status != StatusSubmitted {
		c.mu.Unlock()
		return
	}
	ps.sub.Status = StatusFailed
	ps.sub.Reason = "settlement timeout"
	close(ps.done)
	c.mu.Unlock()

	c.logger.Info("submission timed out", zap.String("handle", handle.String()))
	c.notify(Event{Kind: EventFailed, Handle: handle, Reason: "settlement timeout"})
}

// reconcile reads the full ledger and replaces the snapshot. The previous
// snapshot is kept on read failure.
func (c *Coordinator) reconcile(ctx context.Context) error {
	entries, err := c.store.All(ctx)
	if err != nil {
		c.notify(Event{Kind: EventError, Reason: err.Error()})
		return fmt.Errorf("read ledger: %w", err)
	}

	c.mu.Lock()
	c.snapshot = entries
	c.mu.Unlock()

	c.notify(Event{Kind: EventViewRefreshed})
	return nil
}

// notify delivers an event to all observers registered at call time.
func (c *Coordinator) notify(e Event) {
	c.mu.Lock()
	observers := make([]Observer, len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(e)
	}
}
