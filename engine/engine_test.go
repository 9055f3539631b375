package engine

import (
	"context"
	"sync"
	"testing"

	"janus/domain/book"
)

type captureSink struct {
	mu     sync.Mutex
	fills  []book.Fill
	quotes []book.Quote
}

func (c *captureSink) OnFill(f book.Fill) {
	c.mu.Lock()
	c.fills = append(c.fills, f)
	c.mu.Unlock()
}

func (c *captureSink) OnQuote(_ uint64, q book.Quote) {
	c.mu.Lock()
	c.quotes = append(c.quotes, q)
	c.mu.Unlock()
}

func (c *captureSink) Fills() []book.Fill {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]book.Fill(nil), c.fills...)
}

func newTestEngine(t *testing.T, sink FillSink) (*Engine, context.Context) {
	t.Helper()
	eng := New(Config{Sink: sink, DumpDir: t.TempDir()})
	if err := eng.OpenEvent(1, EventConfig{}); err != nil {
		t.Fatalf("open event: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	eng.Start(ctx)
	return eng, ctx
}

func submit(t *testing.T, eng *Engine, ctx context.Context, side book.Side, price, qty int64) Result {
	t.Helper()
	res, err := eng.Submit(ctx, SubmitRequest{
		EventID: 1, Account: 7, Side: side, Price: price, Qty: qty,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return res
}

func TestSubmitAssignsSequence(t *testing.T) {
	eng, ctx := newTestEngine(t, nil)

	r1 := submit(t, eng, ctx, book.Yes, 50, 5)
	r2 := submit(t, eng, ctx, book.Yes, 51, 5)
	if !r1.OK || !r2.OK {
		t.Fatalf("submits rejected: %+v %+v", r1, r2)
	}
	if r2.Seq <= r1.Seq {
		t.Errorf("sequences not strictly increasing: %d then %d", r1.Seq, r2.Seq)
	}
	if r1.OrderID == r2.OrderID {
		t.Error("order IDs must be unique")
	}
}

func TestSubmitMatchEmitsFill(t *testing.T) {
	sink := &captureSink{}
	eng, ctx := newTestEngine(t, sink)

	submit(t, eng, ctx, book.Yes, 60, 10)
	submit(t, eng, ctx, book.No, 60, 10)

	fills := sink.Fills()
	if len(fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(fills))
	}
	if fills[0].Price != 60 || fills[0].Qty != 10 {
		t.Errorf("fill %+v, want price 60 qty 10", fills[0])
	}

	q, err := eng.BestQuote(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if q.HasBid || q.HasAsk {
		t.Error("book should be empty after full match")
	}
}

func TestSubmitUnknownEvent(t *testing.T) {
	eng, ctx := newTestEngine(t, nil)
	res, err := eng.Submit(ctx, SubmitRequest{EventID: 99, Side: book.Yes, Price: 50, Qty: 1})
	if err != nil {
		t.Fatal(err)
	}
	if res.OK || res.Reason != book.ReasonUnknownEvent {
		t.Fatalf("got %+v, want unknown-event rejection", res)
	}
}

func TestCancelByOrderID(t *testing.T) {
	eng, ctx := newTestEngine(t, nil)
	r := submit(t, eng, ctx, book.Yes, 50, 5)

	res, err := eng.Cancel(ctx, r.OrderID)
	if err != nil || !res.OK {
		t.Fatalf("cancel failed: %+v %v", res, err)
	}

	res, err = eng.Cancel(ctx, r.OrderID)
	if err != nil {
		t.Fatal(err)
	}
	if res.OK || res.Reason != book.ReasonUnknownOrder {
		// The route was dropped on the first cancel; a repeat no longer
		// resolves to an event.
		t.Fatalf("repeat cancel = %+v, want unknown rejection", res)
	}
}

func TestCancelAfterFillIsBenign(t *testing.T) {
	eng, ctx := newTestEngine(t, nil)
	r := submit(t, eng, ctx, book.Yes, 60, 5)
	submit(t, eng, ctx, book.No, 60, 5)

	res, err := eng.Cancel(ctx, r.OrderID)
	if err != nil {
		t.Fatal(err)
	}
	if res.OK || res.Reason != book.ReasonAlreadyTerminal {
		t.Fatalf("cancel after fill = %+v, want already-terminal", res)
	}
}

func TestModifyReduceKeepsPriority(t *testing.T) {
	sink := &captureSink{}
	eng, ctx := newTestEngine(t, sink)

	r1 := submit(t, eng, ctx, book.Yes, 55, 10)
	submit(t, eng, ctx, book.Yes, 55, 10)

	res, err := eng.Modify(ctx, r1.OrderID, 4, 55)
	if err != nil || !res.OK {
		t.Fatalf("modify failed: %+v %v", res, err)
	}

	submit(t, eng, ctx, book.No, 55, 4)
	fills := sink.Fills()
	if len(fills) != 1 || fills[0].YesOrderID != r1.OrderID {
		t.Fatal("reduced order should keep its FIFO slot")
	}
}

func TestModifyPriceChangeForfeitsPriority(t *testing.T) {
	sink := &captureSink{}
	eng, ctx := newTestEngine(t, sink)

	r1 := submit(t, eng, ctx, book.Yes, 55, 5)
	r2 := submit(t, eng, ctx, book.Yes, 56, 5)

	// Move r1 to 56: it should land behind r2.
	res, err := eng.Modify(ctx, r1.OrderID, 5, 56)
	if err != nil || !res.OK {
		t.Fatalf("modify failed: %+v %v", res, err)
	}

	submit(t, eng, ctx, book.No, 56, 5)
	fills := sink.Fills()
	if len(fills) != 1 || fills[0].YesOrderID != r2.OrderID {
		t.Fatal("price change must forfeit time priority")
	}
}

func TestCloseRejectsSubmissions(t *testing.T) {
	eng, ctx := newTestEngine(t, nil)
	submit(t, eng, ctx, book.Yes, 50, 5)

	res, err := eng.Close(ctx, 1)
	if err != nil || !res.OK {
		t.Fatalf("close failed: %+v %v", res, err)
	}

	r := submit(t, eng, ctx, book.Yes, 51, 5)
	if r.OK || r.Reason != book.ReasonEventClosed {
		t.Fatalf("submit after close = %+v, want event-closed", r)
	}

	// Repeat close is benign.
	res, err = eng.Close(ctx, 1)
	if err != nil || !res.OK {
		t.Fatalf("repeat close = %+v %v, want ok", res, err)
	}
}

func TestResolveReturnsLedger(t *testing.T) {
	eng, ctx := newTestEngine(t, nil)
	submit(t, eng, ctx, book.Yes, 60, 10)
	submit(t, eng, ctx, book.No, 60, 4)
	submit(t, eng, ctx, book.No, 60, 6)

	res, err := eng.Resolve(ctx, 1, book.OutcomeYes)
	if err != nil || !res.OK {
		t.Fatalf("resolve failed: %+v %v", res, err)
	}
	if len(res.Fills) != 2 {
		t.Fatalf("ledger has %d fills, want 2", len(res.Fills))
	}
	var total int64
	for _, f := range res.Fills {
		total += f.Qty
	}
	if total != 10 {
		t.Errorf("ledger quantity %d, want 10", total)
	}

	// Terminal: no further mutation.
	res, err = eng.Resolve(ctx, 1, book.OutcomeNo)
	if err != nil {
		t.Fatal(err)
	}
	if res.OK {
		t.Fatal("second resolve must be rejected")
	}
}

func TestEventsIndependent(t *testing.T) {
	eng, ctx := newTestEngine(t, nil)
	if err := eng.OpenEvent(2, EventConfig{}); err != nil {
		t.Fatal(err)
	}

	if res, _ := eng.Close(ctx, 1); !res.OK {
		t.Fatal("close event 1 failed")
	}

	res, err := eng.Submit(ctx, SubmitRequest{EventID: 2, Side: book.Yes, Price: 50, Qty: 1})
	if err != nil || !res.OK {
		t.Fatalf("event 2 must keep accepting: %+v %v", res, err)
	}
}

func TestOpenEventTwice(t *testing.T) {
	eng, _ := newTestEngine(t, nil)
	if err := eng.OpenEvent(1, EventConfig{}); err != ErrEventExists {
		t.Fatalf("got %v, want ErrEventExists", err)
	}
}

func TestDepthAggregation(t *testing.T) {
	eng, ctx := newTestEngine(t, nil)
	submit(t, eng, ctx, book.Yes, 50, 5)
	submit(t, eng, ctx, book.Yes, 50, 3)
	submit(t, eng, ctx, book.Yes, 48, 2)
	submit(t, eng, ctx, book.No, 60, 4)

	bids, asks, err := eng.Depth(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(bids) != 2 || len(asks) != 1 {
		t.Fatalf("depth %d/%d levels, want 2/1", len(bids), len(asks))
	}
	if bids[0].Price != 50 || bids[0].TotalQty != 8 || bids[0].Orders != 2 {
		t.Errorf("top bid level %+v", bids[0])
	}
	if bids[1].Price != 48 {
		t.Errorf("second bid level %+v, want 48", bids[1])
	}
}

// Fully matched aggressors are retired into the ring during their own
// matching pass. With the reclaim job recycling retired orders through
// the shared pool concurrently, the reply must still carry the identity
// assigned at admission.
func TestSubmitResultStableUnderReclaim(t *testing.T) {
	eng, ctx := newTestEngine(t, nil)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				eng.Reclaim()
			}
		}
	}()

	var last uint64
	for i := 0; i < 300; i++ {
		r1 := submit(t, eng, ctx, book.Yes, 60, 3)
		r2 := submit(t, eng, ctx, book.No, 60, 3) // fills both immediately
		for _, r := range []Result{r1, r2} {
			if !r.OK {
				t.Fatalf("iteration %d: %+v", i, r)
			}
			if r.OrderID != r.Seq {
				t.Fatalf("iteration %d: id %d != seq %d", i, r.OrderID, r.Seq)
			}
			if r.OrderID <= last {
				t.Fatalf("iteration %d: id %d not after %d", i, r.OrderID, last)
			}
			last = r.OrderID
		}
	}
	close(stop)
	wg.Wait()
}

// Order routing entries must not outlive the event's trading phase.
func TestResolveReleasesRoutes(t *testing.T) {
	eng, ctx := newTestEngine(t, nil)

	submit(t, eng, ctx, book.Yes, 60, 5)
	submit(t, eng, ctx, book.No, 60, 5) // filled pair
	submit(t, eng, ctx, book.Yes, 40, 2)

	eng.mu.RLock()
	before := len(eng.routes)
	eng.mu.RUnlock()
	if before == 0 {
		t.Fatal("expected live routes before resolution")
	}

	if res, err := eng.Resolve(ctx, 1, book.OutcomeYes); err != nil || !res.OK {
		t.Fatalf("resolve: %+v %v", res, err)
	}

	eng.mu.RLock()
	after := len(eng.routes)
	eng.mu.RUnlock()
	if after != 0 {
		t.Fatalf("%d routes survive resolution, want 0", after)
	}
}
