package book

// Book is the per-event dual-sided price-level structure. It is pure data:
// single-writer and deterministic, with no locking of its own. All mutation
// happens on the owning event worker.
type Book struct {
	EventID uint64

	bids *RBTree // YES interest, best = max
	asks *RBTree // NO interest mapped into bid space, best = min
	rule CrossRule

	index    map[uint64]*Order
	terminal map[uint64]Status // retains reasons for idempotent-cancel replies

	bestBid *PriceLevel
	bestAsk *PriceLevel

	lastSeq uint64
}

func NewBook(eventID uint64, rule CrossRule) *Book {
	if rule == nil {
		rule = DirectRule{}
	}
	return &Book{
		EventID:  eventID,
		bids:     NewRBTree(),
		asks:     NewRBTree(),
		rule:     rule,
		index:    make(map[uint64]*Order),
		terminal: make(map[uint64]Status),
	}
}

func (b *Book) Rule() CrossRule { return b.rule }
func (b *Book) LastSeq() uint64 { return b.lastSeq }

// Validate runs admission-time checks. It never touches book state.
func (b *Book) Validate(o *Order) RejectReason {
	if o.Side != Yes && o.Side != No {
		return ReasonBadSide
	}
	if o.Price <= 0 || o.Price >= PriceScale {
		return ReasonBadPrice
	}
	if o.Qty <= 0 || o.Filled != 0 {
		return ReasonBadQty
	}
	return ReasonNone
}

// Admit inserts a validated order at the tail of its price level, creating
// the level if absent. The caller has already assigned ID and Seq; Seq must
// be strictly increasing per event.
func (b *Book) Admit(o *Order) RejectReason {
	if r := b.Validate(o); r != ReasonNone {
		return r
	}
	if _, ok := b.index[o.ID]; ok {
		return ReasonDuplicateOrder
	}
	if _, ok := b.terminal[o.ID]; ok {
		return ReasonDuplicateOrder
	}

	b.lastSeq = o.Seq
	b.insert(o)
	b.index[o.ID] = o
	return ReasonNone
}

// Cancel removes a resting order in O(1) via the index. A cancel for an
// order already matched or cancelled reports already-terminal; that is an
// expected race, not an anomaly.
func (b *Book) Cancel(id uint64) (*Order, RejectReason) {
	o, ok := b.index[id]
	if !ok {
		if _, done := b.terminal[id]; done {
			return nil, ReasonAlreadyTerminal
		}
		return nil, ReasonUnknownOrder
	}

	b.remove(o)
	o.Status = Cancelled
	delete(b.index, id)
	b.terminal[id] = Cancelled
	return o, ReasonNone
}

// Reduce shrinks a resting order's quantity in place, preserving its FIFO
// position. Price changes and quantity increases go through cancel+admit
// instead and forfeit time priority.
func (b *Book) Reduce(id uint64, newQty int64) RejectReason {
	o, ok := b.index[id]
	if !ok {
		if _, done := b.terminal[id]; done {
			return ReasonAlreadyTerminal
		}
		return ReasonUnknownOrder
	}
	if newQty >= o.Qty || newQty <= o.Filled {
		return ReasonBadQty
	}

	o.level.reduce(o.Qty - newQty)
	o.Qty = newQty
	return ReasonNone
}

// Requeue re-enters a resting order at a new price or size. The order
// keeps its public ID but takes a fresh arrival sequence and moves to the
// tail of its level: price changes and size increases forfeit time
// priority. newQty is the new total quantity; filled quantity stays
// counted against it.
func (b *Book) Requeue(id uint64, newQty, newPrice int64, newSeq uint64) RejectReason {
	o, ok := b.index[id]
	if !ok {
		return b.Missing(id)
	}
	if newPrice <= 0 || newPrice >= PriceScale {
		return ReasonBadPrice
	}
	if newQty <= o.Filled {
		return ReasonBadQty
	}

	b.remove(o)
	o.Price = newPrice
	o.Qty = newQty
	o.Seq = newSeq
	b.lastSeq = newSeq
	b.insert(o)
	return ReasonNone
}

// Restore re-inserts a snapshotted resting order, bypassing admission
// validation: the order may carry partial fills. Only used while
// rebuilding a book before it serves traffic.
func (b *Book) Restore(o *Order) error {
	if _, ok := b.index[o.ID]; ok {
		return ErrIndexMismatch
	}
	if o.Remaining() <= 0 {
		return ErrNegativeRemaining
	}
	if o.Seq > b.lastSeq {
		b.lastSeq = o.Seq
	}
	b.insert(o)
	b.index[o.ID] = o
	return nil
}

// Lookup returns the resting order for id, if any.
func (b *Book) Lookup(id uint64) (*Order, bool) {
	o, ok := b.index[id]
	return o, ok
}

// Missing classifies an id that is not resting: terminal orders report
// already-terminal, anything else is unknown.
func (b *Book) Missing(id uint64) RejectReason {
	if _, done := b.terminal[id]; done {
		return ReasonAlreadyTerminal
	}
	return ReasonUnknownOrder
}

// Quote returns the top of book in bid space, O(1) from the cached best
// level pointers.
func (b *Book) Quote() Quote {
	var q Quote
	if b.bestBid != nil {
		q.Bid = b.bestBid.Price
		q.HasBid = true
	}
	if b.bestAsk != nil {
		q.Ask = b.bestAsk.Price
		q.HasAsk = true
	}
	return q
}

func (b *Book) RestingCount() int {
	return len(b.index)
}

// WalkBids visits YES levels best to worst. Read-only.
func (b *Book) WalkBids(fn func(*PriceLevel) bool) {
	b.bids.ForEachDescending(fn)
}

// WalkAsks visits NO levels best to worst. Read-only.
func (b *Book) WalkAsks(fn func(*PriceLevel) bool) {
	b.asks.ForEachAscending(fn)
}

// WalkOrders visits every resting order, bids then asks, best level
// first, FIFO within a level. Read-only.
func (b *Book) WalkOrders(fn func(*Order) bool) {
	stopped := false
	walk := func(lvl *PriceLevel) bool {
		for o := lvl.Head(); o != nil; o = o.Next() {
			if !fn(o) {
				stopped = true
				return false
			}
		}
		return true
	}
	b.WalkBids(walk)
	if !stopped {
		b.WalkAsks(walk)
	}
}

// DrainResting cancels every resting order and empties the book. Used once,
// when the event enters resolution. Each drained order is reported so the
// caller can log it apart from user cancels and retire it.
//
// The terminal map is released here too: once the event stops accepting
// commands nothing consults it again, and it would otherwise hold an
// entry per order for the rest of the event's life.
func (b *Book) DrainResting(emit func(*Order)) int {
	n := 0
	drainTree := func(t *RBTree) {
		t.ForEachAscending(func(lvl *PriceLevel) bool {
			for o := lvl.PopHead(); o != nil; o = lvl.PopHead() {
				o.Status = Cancelled
				delete(b.index, o.ID)
				n++
				if emit != nil {
					emit(o)
				}
			}
			return true
		})
		t.Clear()
	}
	drainTree(b.bids)
	drainTree(b.asks)
	b.bestBid = nil
	b.bestAsk = nil
	b.terminal = make(map[uint64]Status)
	return n
}

// CheckConsistency verifies the cheap structural invariants. It is called
// after every matching pass; any error is treated as corruption of this
// event's book.
func (b *Book) CheckConsistency() error {
	if b.Quote().Crossed() {
		return ErrCrossedBook
	}
	if b.bestBid != nil {
		if h := b.bestBid.Head(); h == nil || h.Remaining() <= 0 {
			return ErrIndexMismatch
		}
	}
	if b.bestAsk != nil {
		if h := b.bestAsk.Head(); h == nil || h.Remaining() <= 0 {
			return ErrIndexMismatch
		}
	}
	return nil
}

// ---- level maintenance ----

// bidSpace returns the tree key for an order's displayed price.
func (b *Book) bidSpace(o *Order) int64 {
	if o.Side == Yes {
		return o.Price
	}
	return b.rule.BidSpace(o.Price)
}

func (b *Book) insert(o *Order) {
	key := b.bidSpace(o)
	if o.Side == Yes {
		lvl := b.bids.UpsertLevel(key)
		lvl.Enqueue(o)
		if b.bestBid == nil || key > b.bestBid.Price {
			b.bestBid = lvl
		}
	} else {
		lvl := b.asks.UpsertLevel(key)
		lvl.Enqueue(o)
		if b.bestAsk == nil || key < b.bestAsk.Price {
			b.bestAsk = lvl
		}
	}
}

// remove unlinks an order and drops its level if it became empty,
// refreshing the cached best pointer when the top level goes away.
func (b *Book) remove(o *Order) {
	lvl := o.level
	lvl.Unlink(o)
	if !lvl.Empty() {
		return
	}
	if o.Side == Yes {
		b.bids.DeleteLevel(lvl.Price)
		if b.bestBid == lvl {
			b.bestBid = b.bids.MaxLevel()
		}
	} else {
		b.asks.DeleteLevel(lvl.Price)
		if b.bestAsk == lvl {
			b.bestAsk = b.asks.MinLevel()
		}
	}
}
