package book

import "errors"

// RejectReason is the caller-visible classification for refused commands.
// Everything here is non-fatal: validation failures never touch book state
// and state rejections are expected under producer races.
type RejectReason uint8

const (
	ReasonNone RejectReason = iota
	ReasonBadPrice
	ReasonBadQty
	ReasonBadSide
	ReasonUnknownEvent
	ReasonEventClosed
	ReasonUnknownOrder
	ReasonAlreadyTerminal
	ReasonDuplicateOrder
	ReasonHalted
)

func (r RejectReason) String() string {
	switch r {
	case ReasonNone:
		return "ok"
	case ReasonBadPrice:
		return "bad-price"
	case ReasonBadQty:
		return "bad-qty"
	case ReasonBadSide:
		return "bad-side"
	case ReasonUnknownEvent:
		return "unknown-event"
	case ReasonEventClosed:
		return "event-closed"
	case ReasonUnknownOrder:
		return "unknown"
	case ReasonAlreadyTerminal:
		return "already-terminal"
	case ReasonDuplicateOrder:
		return "duplicate-order"
	case ReasonHalted:
		return "event-halted"
	default:
		return "unknown-reason"
	}
}

// Invariant faults. Unlike rejections these mean the event's book is
// corrupted; the owning worker halts and the state is dumped for diagnosis.
var (
	ErrCrossedBook       = errors.New("book: crossed after matching pass")
	ErrNegativeRemaining = errors.New("book: negative remaining quantity")
	ErrIllegalTransition = errors.New("book: illegal status transition")
	ErrIndexMismatch     = errors.New("book: index entry out of sync")
)

// EventStatus is the per-event lifecycle.
type EventStatus uint8

const (
	Open EventStatus = iota
	Resolving
	Resolved
	Halted
)

func (s EventStatus) String() string {
	switch s {
	case Open:
		return "OPEN"
	case Resolving:
		return "RESOLVING"
	case Resolved:
		return "RESOLVED"
	case Halted:
		return "HALTED"
	default:
		return "UNKNOWN"
	}
}

// Outcome is set exactly once, when an event resolves.
type Outcome uint8

const (
	OutcomeYes Outcome = iota
	OutcomeNo
)

func (o Outcome) String() string {
	if o == OutcomeNo {
		return "NO"
	}
	return "YES"
}

// Quote is the top of book in bid space.
type Quote struct {
	Bid    int64
	Ask    int64
	HasBid bool
	HasAsk bool
}

// Crossed reports whether the quote itself satisfies the cross predicate.
// Outside the matching pass this must always be false.
func (q Quote) Crossed() bool {
	return q.HasBid && q.HasAsk && q.Bid >= q.Ask
}
