package chaos

import (
	"math/rand"

	"janus/domain/book"
)

// Account is the reserved account ID synthetic orders trade under.
const Account uint64 = 0

// Synthetic is one generated order. It goes through the ordinary
// submission path; nothing downstream of admission treats it specially
// beyond the origin tag on resulting fills.
type Synthetic struct {
	EventID uint64
	Side    book.Side
	Price   int64
	Qty     int64
}

// Generator produces the synthetic order stream. Implementations must be
// deterministic for a given seed so a fill sequence can be replayed
// exactly; test doubles replace this in the engine tests.
type Generator interface {
	Next() Synthetic
}

// Perturb is a bounded random walk around the last generated price. Side
// alternates randomly, quantity is uniform in [1, maxQty], price moves at
// most jitter ticks per order and stays inside the valid band.
type Perturb struct {
	eventID uint64
	rng     *rand.Rand
	anchor  int64
	jitter  int64
	maxQty  int64
}

func NewPerturb(eventID uint64, seed, jitter, maxQty int64) *Perturb {
	if jitter <= 0 {
		jitter = 1
	}
	if maxQty <= 0 {
		maxQty = 1
	}
	return &Perturb{
		eventID: eventID,
		rng:     rand.New(rand.NewSource(seed)),
		anchor:  book.PriceScale / 2,
		jitter:  jitter,
		maxQty:  maxQty,
	}
}

func (p *Perturb) Next() Synthetic {
	side := book.Yes
	if p.rng.Intn(2) == 1 {
		side = book.No
	}

	price := p.anchor + p.rng.Int63n(2*p.jitter+1) - p.jitter
	if price < 1 {
		price = 1
	}
	if price > book.PriceScale-1 {
		price = book.PriceScale - 1
	}
	p.anchor = price

	return Synthetic{
		EventID: p.eventID,
		Side:    side,
		Price:   price,
		Qty:     1 + p.rng.Int63n(p.maxQty),
	}
}
