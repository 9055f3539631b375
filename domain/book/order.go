package book

import "fmt"

type Side uint8
type Origin uint8
type Status uint8

const (
	// Yes interest bids on the event resolving "yes"; No interest is the
	// opposing side. How the two compose into a tradable cross is decided
	// by the book's CrossRule.
	Yes Side = iota
	No
)

const (
	Real Origin = iota
	Chaos
)

const (
	Active Status = iota
	PartiallyFilled
	Filled
	Cancelled
)

func (s Side) String() string {
	if s == No {
		return "NO"
	}
	return "YES"
}

func (o Origin) String() string {
	if o == Chaos {
		return "CHAOS"
	}
	return "REAL"
}

func (s Status) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case PartiallyFilled:
		return "PARTIAL"
	case Filled:
		return "FILLED"
	case Cancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Order is a pure domain entity. It is owned by exactly one event's book
// until it reaches a terminal status and is never shared across events.
type Order struct {
	ID      uint64
	EventID uint64
	Account uint64

	Price  int64 // displayed price in the order's own side terms, 0 < p < PriceScale
	Qty    int64
	Filled int64
	Seq    uint64 // arrival sequence, strictly increasing per event

	Side   Side
	Origin Origin
	Status Status

	next *Order
	prev *Order

	level *PriceLevel
}

func (o *Order) Remaining() int64 {
	return o.Qty - o.Filled
}

func (o *Order) Terminal() bool {
	return o.Status == Filled || o.Status == Cancelled
}

// Read-only traversal helper
func (o *Order) Next() *Order {
	return o.next
}

// legal status transitions; anything else is book corruption
var legalTransitions = map[Status][]Status{
	Active:          {PartiallyFilled, Filled, Cancelled},
	PartiallyFilled: {PartiallyFilled, Filled, Cancelled},
}

func (o *Order) transition(to Status) error {
	for _, t := range legalTransitions[o.Status] {
		if t == to {
			o.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: order %d %s -> %s", ErrIllegalTransition, o.ID, o.Status, to)
}
