package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guestchain/guestchain/internal/ledger"
	"go.uber.org/zap"
)

// Policy decides whether a candidate entry may settle. A nil error accepts
// the write; a non-nil error rejects it with the error text as the reason.
type Policy func(author, body string) error

// MaxSizePolicy rejects entries whose author or body exceeds maxBytes.
func MaxSizePolicy(maxBytes int) Policy {
	return func(author, body string) error {
		if len(author) > maxBytes {
			return fmt.Errorf("author exceeds %d bytes", maxBytes)
		}
		if len(body) > maxBytes {
			return fmt.Errorf("body exceeds %d bytes", maxBytes)
		}
		return nil
	}
}

type request struct {
	handle uuid.UUID
	author string
	body   string
}

// Local is an in-process Settler that serializes dispatched writes through
// a single apply goroutine onto a ledger.Store. It is the sole ordering
// point for writes from all sessions of one node, standing in for an
// external consensus layer.
type Local struct {
	store  ledger.Store
	logger *zap.Logger
	delay  time.Duration
	policy Policy

	requests chan request
	outcomes chan Outcome
	done     chan struct{}
	wg       sync.WaitGroup
	closeMu  sync.Mutex
	closed   bool
}

// Option configures a Local settler.
type Option func(*Local)

// WithDelay makes each write settle only after d has elapsed, simulating
// consensus latency.
func WithDelay(d time.Duration) Option {
	return func(l *Local) { l.delay = d }
}

// WithPolicy installs an acceptance policy evaluated before each append.
func WithPolicy(p Policy) Option {
	return func(l *Local) { l.policy = p }
}

// NewLocal creates a Local settler applying writes to store and starts
// its apply loop. Call Close to stop it.
func NewLocal(store ledger.Store, logger *zap.Logger, opts ...Option) *Local {
	l := &Local{
		store:    store,
		logger:   logger,
		requests: make(chan request, 64),
		outcomes: make(chan Outcome, 64),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	l.wg.Add(1)
	go l.run()
	return l
}

// Dispatch implements Settler. It queues the write and returns its handle
// without waiting for settlement. Every handle handed out is guaranteed an
// outcome: the enqueue happens under the same lock Close takes, so a write
// either lands before the drain or is refused with ErrClosed.
func (l *Local) Dispatch(ctx context.Context, author, body string) (uuid.UUID, error) {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()
	if l.closed {
		return uuid.Nil, ErrClosed
	}

	handle := uuid.New()
	select {
	case l.requests <- request{handle: handle, author: author, body: body}:
		return handle, nil
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
}

// Outcomes implements Settler. The channel is closed when the settler shuts
// down; writes queued before Close still produce outcomes.
func (l *Local) Outcomes() <-chan Outcome {
	return l.outcomes
}

// Close stops the apply loop after draining queued writes.
func (l *Local) Close() {
	l.closeMu.Lock()
	if l.closed {
		l.closeMu.Unlock()
		return
	}
	l.closed = true
	close(l.done)
	l.closeMu.Unlock()

	l.wg.Wait()
	close(l.outcomes)
}

func (l *Local) run() {
	defer l.wg.Done()
	for {
		select {
		case req := <-l.requests:
			l.settle(req)
		case <-l.done:
			// Drain anything already queued so no dispatched write is lost.
			for {
				select {
				case req := <-l.requests:
					l.settle(req)
				default:
					return
				}
			}
		}
	}
}

func (l *Local) settle(req request) {
	if l.delay > 0 {
		time.Sleep(l.delay)
	}

	if l.policy != nil {
		if err := l.policy(req.author, req.body); err != nil {
			l.logger.Info("write rejected",
				zap.String("handle", req.handle.String()),
				zap.String("reason", err.Error()),
			)
			l.emit(Outcome{Handle: req.handle, Status: StatusRejected, Reason: err.Error()})
			return
		}
	}

	entry, err := l.store.Append(context.Background(), req.author, req.body)
	if err != nil {
		l.logger.Error("ledger append failed",
			zap.String("handle", req.handle.String()),
			zap.Error(err),
		)
		l.emit(Outcome{Handle: req.handle, Status: StatusRejected, Reason: err.Error()})
		return
	}

	l.logger.Debug("write settled",
		zap.String("handle", req.handle.String()),
		zap.Int("idx", entry.Index),
	)
	l.emit(Outcome{Handle: req.handle, Status: StatusConfirmed, Entry: entry})
}

func (l *Local) emit(o Outcome) {
	// The outcome channel is buffered; if the consumer has fallen far
	// behind we still must not drop outcomes, so block until accepted.
	l.outcomes <- o
}
