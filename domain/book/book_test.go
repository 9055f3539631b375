package book

import (
	"math/rand"
	"testing"
)

// harness mimics the owning worker: it assigns sequences, admits, and
// runs the matching pass after every admission.
type harness struct {
	t     *testing.T
	book  *Book
	seq   uint64
	fills []Fill
}

func newHarness(t *testing.T, rule CrossRule) *harness {
	return &harness{t: t, book: NewBook(1, rule)}
}

func (h *harness) submit(side Side, price, qty int64) *Order {
	h.t.Helper()
	h.seq++
	o := &Order{
		ID:      h.seq,
		EventID: 1,
		Account: h.seq,
		Price:   price,
		Qty:     qty,
		Seq:     h.seq,
		Side:    side,
		Status:  Active,
	}
	if r := h.book.Admit(o); r != ReasonNone {
		h.t.Fatalf("admit rejected: %s", r)
	}
	h.uncross()
	return o
}

func (h *harness) uncross() {
	h.t.Helper()
	_, err := h.book.Uncross(0, func() uint64 { h.seq++; return h.seq },
		func(f Fill) { h.fills = append(h.fills, f) }, nil)
	if err != nil {
		h.t.Fatalf("uncross: %v", err)
	}
}

func TestMatchAtEqualPrice(t *testing.T) {
	h := newHarness(t, DirectRule{})
	h.submit(Yes, 60, 10)
	h.submit(No, 60, 10)

	if len(h.fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(h.fills))
	}
	f := h.fills[0]
	if f.Price != 60 || f.Qty != 10 {
		t.Errorf("fill price=%d qty=%d, want 60/10", f.Price, f.Qty)
	}
	if h.book.RestingCount() != 0 {
		t.Error("book should be empty after full match")
	}
}

func TestFIFOWithinLevel(t *testing.T) {
	h := newHarness(t, DirectRule{})
	first := h.submit(Yes, 55, 5)
	second := h.submit(Yes, 55, 5)
	h.submit(No, 55, 5)

	if len(h.fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(h.fills))
	}
	if h.fills[0].YesOrderID != first.ID {
		t.Errorf("fill went to order %d, want earlier order %d", h.fills[0].YesOrderID, first.ID)
	}
	if second.Filled != 0 {
		t.Error("later order at same price must be untouched")
	}
	q := h.book.Quote()
	if !q.HasBid || q.Bid != 55 {
		t.Errorf("second order should remain best bid at 55, got %+v", q)
	}
}

func TestPartialFillRestsAtHead(t *testing.T) {
	h := newHarness(t, DirectRule{})
	bid := h.submit(Yes, 70, 10)
	h.submit(No, 70, 4)

	if len(h.fills) != 1 || h.fills[0].Qty != 4 || h.fills[0].Price != 70 {
		t.Fatalf("expected one fill qty 4 at 70, got %+v", h.fills)
	}
	if bid.Remaining() != 6 {
		t.Errorf("remaining = %d, want 6", bid.Remaining())
	}
	if bid.Status != PartiallyFilled {
		t.Errorf("status = %s, want PARTIAL", bid.Status)
	}
	lvl := h.book.bids.FindLevel(70)
	if lvl == nil || lvl.Head() != bid {
		t.Error("partially filled bid must stay at the head of its level")
	}
}

func TestCancelledOrderDoesNotMatch(t *testing.T) {
	h := newHarness(t, DirectRule{})
	bid := h.submit(Yes, 50, 5)
	if _, r := h.book.Cancel(bid.ID); r != ReasonNone {
		t.Fatalf("cancel rejected: %s", r)
	}
	h.submit(No, 50, 5)

	if len(h.fills) != 0 {
		t.Fatalf("cancelled bid must not match, got %d fills", len(h.fills))
	}
	q := h.book.Quote()
	if q.HasBid || !q.HasAsk || q.Ask != 50 {
		t.Errorf("ask should rest alone, got %+v", q)
	}
}

func TestCancelIdempotent(t *testing.T) {
	h := newHarness(t, DirectRule{})
	bid := h.submit(Yes, 40, 3)
	other := h.submit(Yes, 41, 3)

	if _, r := h.book.Cancel(bid.ID); r != ReasonNone {
		t.Fatalf("first cancel: %s", r)
	}
	if _, r := h.book.Cancel(bid.ID); r != ReasonAlreadyTerminal {
		t.Fatalf("second cancel = %s, want already-terminal", r)
	}
	if other.Status != Active || h.book.RestingCount() != 1 {
		t.Error("repeat cancel must not disturb other orders")
	}
}

func TestCancelUnknownOrder(t *testing.T) {
	h := newHarness(t, DirectRule{})
	if _, r := h.book.Cancel(999); r != ReasonUnknownOrder {
		t.Fatalf("got %s, want unknown", r)
	}
}

func TestCancelAfterFullMatchIsTerminal(t *testing.T) {
	h := newHarness(t, DirectRule{})
	bid := h.submit(Yes, 60, 10)
	h.submit(No, 60, 10)

	if _, r := h.book.Cancel(bid.ID); r != ReasonAlreadyTerminal {
		t.Fatalf("cancel after fill = %s, want already-terminal", r)
	}
}

func TestQuantityConservation(t *testing.T) {
	h := newHarness(t, DirectRule{})
	orders := []*Order{
		h.submit(Yes, 60, 10),
		h.submit(Yes, 58, 7),
		h.submit(No, 58, 12),
		h.submit(No, 60, 4),
		h.submit(Yes, 59, 3),
	}

	executed := make(map[uint64]int64)
	for _, f := range h.fills {
		executed[f.YesOrderID] += f.Qty
		executed[f.NoOrderID] += f.Qty
	}
	for _, o := range orders {
		if executed[o.ID] != o.Filled {
			t.Errorf("order %d: fills sum %d != filled %d", o.ID, executed[o.ID], o.Filled)
		}
		if o.Remaining() < 0 {
			t.Errorf("order %d: negative remaining", o.ID)
		}
		if o.Remaining() != o.Qty-o.Filled {
			t.Errorf("order %d: remaining mismatch", o.ID)
		}
	}
}

func TestNoPersistentCross(t *testing.T) {
	h := newHarness(t, DirectRule{})
	h.submit(Yes, 62, 5)
	h.submit(No, 64, 5)
	h.submit(Yes, 65, 9)
	h.submit(No, 61, 3)
	h.submit(No, 60, 8)

	if err := h.book.CheckConsistency(); err != nil {
		t.Fatalf("book inconsistent after matching: %v", err)
	}
	if h.book.Quote().Crossed() {
		t.Fatal("book still crossed after matching pass")
	}
}

func TestRestingPriceWins(t *testing.T) {
	h := newHarness(t, DirectRule{})
	h.submit(Yes, 65, 5) // resting
	h.submit(No, 60, 5)  // aggressor willing to sell lower

	if len(h.fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(h.fills))
	}
	if h.fills[0].Price != 65 {
		t.Errorf("execution price = %d, want resting price 65", h.fills[0].Price)
	}
}

func TestAggressorSweepsLevels(t *testing.T) {
	h := newHarness(t, DirectRule{})
	h.submit(Yes, 66, 2)
	h.submit(Yes, 64, 2)
	h.submit(No, 63, 5)

	if len(h.fills) != 2 {
		t.Fatalf("expected 2 fills, got %d", len(h.fills))
	}
	if h.fills[0].Price != 66 || h.fills[1].Price != 64 {
		t.Errorf("fills must sweep best price first: %+v", h.fills)
	}
	q := h.book.Quote()
	if !q.HasAsk || q.Ask != 63 {
		t.Errorf("leftover ask qty should rest at 63, got %+v", q)
	}
}

func TestValidateRejections(t *testing.T) {
	b := NewBook(1, DirectRule{})
	cases := []struct {
		name string
		o    Order
		want RejectReason
	}{
		{"zero qty", Order{Side: Yes, Price: 50}, ReasonBadQty},
		{"negative qty", Order{Side: Yes, Price: 50, Qty: -1}, ReasonBadQty},
		{"zero price", Order{Side: Yes, Qty: 1}, ReasonBadPrice},
		{"price at scale", Order{Side: Yes, Price: PriceScale, Qty: 1}, ReasonBadPrice},
		{"bad side", Order{Side: Side(9), Price: 50, Qty: 1}, ReasonBadSide},
	}
	for _, tc := range cases {
		if got := b.Validate(&tc.o); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestReduceKeepsPriority(t *testing.T) {
	h := newHarness(t, DirectRule{})
	first := h.submit(Yes, 55, 10)
	h.submit(Yes, 55, 10)

	if r := h.book.Reduce(first.ID, 4); r != ReasonNone {
		t.Fatalf("reduce: %s", r)
	}
	h.submit(No, 55, 4)

	if len(h.fills) != 1 || h.fills[0].YesOrderID != first.ID {
		t.Fatal("reduced order must keep its FIFO slot")
	}
}

func TestRequeueForfeitsPriority(t *testing.T) {
	h := newHarness(t, DirectRule{})
	first := h.submit(Yes, 55, 5)
	second := h.submit(Yes, 55, 5)

	h.seq++
	if r := h.book.Requeue(first.ID, 8, 55, h.seq); r != ReasonNone {
		t.Fatalf("requeue: %s", r)
	}
	h.submit(No, 55, 5)

	if len(h.fills) != 1 || h.fills[0].YesOrderID != second.ID {
		t.Fatal("size increase must move the order behind the untouched one")
	}
	if first.Remaining() != 8 {
		t.Errorf("requeued remaining = %d, want 8", first.Remaining())
	}
}

func TestComplementRuleCross(t *testing.T) {
	h := newHarness(t, ComplementRule{})
	// YES at 60 and NO at 40: 60 + 40 >= 100, a tradable pair.
	h.submit(Yes, 60, 5)
	h.submit(No, 40, 5)

	if len(h.fills) != 1 {
		t.Fatalf("expected 1 fill under complement rule, got %d", len(h.fills))
	}
	if h.book.RestingCount() != 0 {
		t.Error("both sides should be consumed")
	}
}

func TestComplementRuleNoCross(t *testing.T) {
	h := newHarness(t, ComplementRule{})
	// 60 + 30 < 100: no trade.
	h.submit(Yes, 60, 5)
	h.submit(No, 30, 5)

	if len(h.fills) != 0 {
		t.Fatalf("expected no fill, got %d", len(h.fills))
	}
	if h.book.RestingCount() != 2 {
		t.Error("both orders should rest")
	}
}

func TestDrainResting(t *testing.T) {
	h := newHarness(t, DirectRule{})
	h.submit(Yes, 50, 5)
	h.submit(Yes, 48, 5)
	h.submit(No, 60, 5)

	var drained []*Order
	n := h.book.DrainResting(func(o *Order) { drained = append(drained, o) })
	if n != 3 || len(drained) != 3 {
		t.Fatalf("drained %d, want 3", n)
	}
	for _, o := range drained {
		if o.Status != Cancelled {
			t.Errorf("order %d status %s, want CANCELLED", o.ID, o.Status)
		}
	}
	if h.book.RestingCount() != 0 {
		t.Error("book not empty after drain")
	}
	q := h.book.Quote()
	if q.HasBid || q.HasAsk {
		t.Error("quote must be empty after drain")
	}
}

func TestDrainReleasesTerminalRetention(t *testing.T) {
	h := newHarness(t, DirectRule{})
	h.submit(Yes, 60, 5)
	h.submit(No, 60, 5) // filled pair
	resting := h.submit(Yes, 40, 2)

	h.book.DrainResting(nil)

	// Nothing consults per-order history once the book is drained; both
	// the filled and the drained order now classify as unknown.
	if r := h.book.Missing(h.fills[0].YesOrderID); r != ReasonUnknownOrder {
		t.Errorf("filled order after drain = %s, want unknown-order", r)
	}
	if r := h.book.Missing(resting.ID); r != ReasonUnknownOrder {
		t.Errorf("drained order = %s, want unknown-order", r)
	}
}

func TestDuplicateOrderID(t *testing.T) {
	b := NewBook(1, DirectRule{})
	o1 := &Order{ID: 1, Side: Yes, Price: 50, Qty: 1, Seq: 1, Status: Active}
	o2 := &Order{ID: 1, Side: Yes, Price: 51, Qty: 1, Seq: 2, Status: Active}
	if r := b.Admit(o1); r != ReasonNone {
		t.Fatalf("first admit: %s", r)
	}
	if r := b.Admit(o2); r != ReasonDuplicateOrder {
		t.Fatalf("second admit = %s, want duplicate-order", r)
	}
}

func TestWalkOrdersVisitsFIFO(t *testing.T) {
	h := newHarness(t, DirectRule{})
	h.submit(Yes, 50, 1)
	h.submit(Yes, 52, 1)
	h.submit(Yes, 52, 2)
	h.submit(No, 60, 1)

	var ids []uint64
	h.book.WalkOrders(func(o *Order) bool {
		ids = append(ids, o.ID)
		return true
	})
	// bids best-first (52 before 50), FIFO within 52, then asks
	want := []uint64{2, 3, 1, 4}
	if len(ids) != len(want) {
		t.Fatalf("visited %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("visited %v, want %v", ids, want)
		}
	}
}

// A bounded random walk of admissions churns levels on both sides hard
// enough to exercise every rebalancing path of the level trees. Failure
// mode guarded here is structural: a bad rotation either panics or
// leaves the walk out of order.
func TestRandomWalkChurnsLevels(t *testing.T) {
	h := newHarness(t, DirectRule{})
	rng := rand.New(rand.NewSource(1234))

	var submitted, cancelled int64
	price := int64(50)
	for i := 0; i < 500; i++ {
		price += rng.Int63n(9) - 4
		if price < 1 {
			price = 1
		}
		if price > 99 {
			price = 99
		}
		side := Yes
		if rng.Int63n(2) == 1 {
			side = No
		}
		qty := 1 + rng.Int63n(15)

		o := h.submit(side, price, qty)
		submitted += qty

		if rng.Int63n(4) == 0 {
			if c, r := h.book.Cancel(o.ID); r == ReasonNone {
				cancelled += c.Remaining()
			}
		}
	}

	var filled, resting int64
	for _, f := range h.fills {
		filled += 2 * f.Qty
	}
	h.book.WalkOrders(func(o *Order) bool {
		resting += o.Remaining()
		return true
	})
	if filled+cancelled+resting != submitted {
		t.Fatalf("quantity leak: filled %d + cancelled %d + resting %d != submitted %d",
			filled, cancelled, resting, submitted)
	}
	if err := h.book.CheckConsistency(); err != nil {
		t.Fatalf("book inconsistent after churn: %v", err)
	}
}

func BenchmarkSubmitResting(b *testing.B) {
	bk := NewBook(1, DirectRule{})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		o := &Order{
			ID:     uint64(i + 1),
			Price:  int64(1 + i%98),
			Qty:    1,
			Seq:    uint64(i + 1),
			Side:   Yes,
			Status: Active,
		}
		bk.Admit(o)
	}
}

func BenchmarkSubmitAndMatch(b *testing.B) {
	bk := NewBook(1, DirectRule{})
	seq := uint64(0)
	next := func() uint64 { seq++; return seq }
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		side := Yes
		if i%2 == 1 {
			side = No
		}
		seq++
		o := &Order{ID: seq, Price: 50, Qty: 1, Seq: seq, Side: side, Status: Active}
		if bk.Admit(o) == ReasonNone {
			_, _ = bk.Uncross(0, next, func(Fill) {}, nil)
		}
	}
}
