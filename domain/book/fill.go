package book

// Fill is one matched quantity between a YES order and a NO order at a
// single price. Immutable once created.
type Fill struct {
	TradeID uint64
	EventID uint64

	YesOrderID uint64
	NoOrderID  uint64
	YesAccount uint64
	NoAccount  uint64

	Price int64 // bid-space execution price (resting order's price)
	Qty   int64
	Time  int64 // unix nanos

	// Origin is Chaos when either counterparty was injected by the
	// volatility generator, so downstream consumers can tell simulated
	// flow apart. Matching itself never looks at it.
	Origin Origin
}
