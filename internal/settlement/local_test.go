package settlement_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guestchain/guestchain/internal/ledger"
	"github.com/guestchain/guestchain/internal/settlement"
	"go.uber.org/zap"
)

var ctx = context.Background()

func waitOutcome(t *testing.T, s *settlement.Local) settlement.Outcome {
	t.Helper()
	select {
	case o := <-s.Outcomes():
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for settlement outcome")
		return settlement.Outcome{}
	}
}

func TestDispatch_confirms(t *testing.T) {
	store := ledger.NewMemory()
	s := settlement.NewLocal(store, zap.NewNop())
	defer s.Close()

	handle, err := s.Dispatch(ctx, "alice", "hi")
	if err != nil {
		t.Fatal(err)
	}

	o := waitOutcome(t, s)
	if o.Handle != handle {
		t.Errorf("outcome handle mismatch: got %s, want %s", o.Handle, handle)
	}
	if o.Status != settlement.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s (%s)", o.Status, o.Reason)
	}
	if o.Entry == nil || o.Entry.Index != 0 {
		t.Errorf("expected entry at index 0, got %+v", o.Entry)
	}
}

func TestDispatch_policyRejects(t *testing.T) {
	store := ledger.NewMemory()
	s := settlement.NewLocal(store, zap.NewNop(),
		settlement.WithPolicy(settlement.MaxSizePolicy(4)),
	)
	defer s.Close()

	if _, err := s.Dispatch(ctx, "alice", "this body is too long"); err != nil {
		t.Fatal(err)
	}

	o := waitOutcome(t, s)
	if o.Status != settlement.StatusRejected {
		t.Fatalf("expected rejected, got %s", o.Status)
	}
	if o.Reason == "" {
		t.Error("rejection must carry a reason")
	}

	n, _ := store.Len(ctx)
	if n != 0 {
		t.Errorf("rejected write reached the ledger: %d entries", n)
	}
}

func TestDispatch_ordersWrites(t *testing.T) {
	store := ledger.NewMemory()
	s := settlement.NewLocal(store, zap.NewNop())
	defer s.Close()

	h1, _ := s.Dispatch(ctx, "alice", "first")
	h2, _ := s.Dispatch(ctx, "bob", "second")

	o1 := waitOutcome(t, s)
	o2 := waitOutcome(t, s)

	if o1.Handle != h1 || o2.Handle != h2 {
		t.Fatal("outcomes delivered out of dispatch order")
	}
	if o1.Entry.Index != 0 || o2.Entry.Index != 1 {
		t.Errorf("indices: got %d then %d, want 0 then 1", o1.Entry.Index, o2.Entry.Index)
	}
}

func TestDispatch_afterClose(t *testing.T) {
	s := settlement.NewLocal(ledger.NewMemory(), zap.NewNop())
	s.Close()

	if _, err := s.Dispatch(ctx, "alice", "hi"); !errors.Is(err, settlement.ErrClosed) {
		t.Errorf("Dispatch after Close: got %v, want ErrClosed", err)
	}
}

func TestClose_drainsQueuedWrites(t *testing.T) {
	store := ledger.NewMemory()
	s := settlement.NewLocal(store, zap.NewNop())

	if _, err := s.Dispatch(ctx, "alice", "queued"); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range s.Outcomes() {
		}
	}()
	s.Close()
	<-done

	n, _ := store.Len(ctx)
	if n != 1 {
		t.Errorf("queued write lost on Close: %d entries", n)
	}
}

func TestDispatch_racingCloseNeverLosesOutcomes(t *testing.T) {
	store := ledger.NewMemory()
	s := settlement.NewLocal(store, zap.NewNop())

	var (
		wg         sync.WaitGroup
		dispatched int64
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if _, err := s.Dispatch(ctx, "alice", "racing"); err != nil {
					if !errors.Is(err, settlement.ErrClosed) {
						t.Error(err)
					}
					return
				}
				atomic.AddInt64(&dispatched, 1)
			}
		}()
	}

	received := make(chan int, 1)
	go func() {
		n := 0
		for range s.Outcomes() {
			n++
		}
		received <- n
	}()

	time.Sleep(time.Millisecond)
	s.Close()
	wg.Wait()

	if got, want := <-received, int(atomic.LoadInt64(&dispatched)); got != want {
		t.Errorf("dispatched %d writes but received %d outcomes", want, got)
	}
}

func TestWithDelay_settlesLater(t *testing.T) {
	store := ledger.NewMemory()
	s := settlement.NewLocal(store, zap.NewNop(), settlement.WithDelay(50*time.Millisecond))
	defer s.Close()

	start := time.Now()
	if _, err := s.Dispatch(ctx, "alice", "hi"); err != nil {
		t.Fatal(err)
	}
	o := waitOutcome(t, s)
	if o.Status != settlement.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", o.Status)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("settled in %v, expected at least the configured delay", elapsed)
	}
}
