package engine

import "janus/domain/book"

type commandKind uint8

const (
	cmdSubmit commandKind = iota
	cmdCancel
	cmdModify
	cmdQuote
	cmdClose
	cmdResolve
)

// SubmitRequest is an order admission request. ID and arrival sequence
// are assigned by the owning worker at admission, never by the caller.
type SubmitRequest struct {
	EventID uint64
	Account uint64
	Side    book.Side
	Price   int64
	Qty     int64
	Origin  book.Origin
}

// Result is the reply for every command: success or a typed rejection.
// Only invariant faults escalate beyond this.
type Result struct {
	OK      bool
	Reason  book.RejectReason
	OrderID uint64
	Seq     uint64
	Quote   book.Quote
	Fills   []book.Fill // populated by resolve: the event's full fill ledger
}

func accepted(orderID, seq uint64) Result {
	return Result{OK: true, OrderID: orderID, Seq: seq}
}

func rejected(r book.RejectReason) Result {
	return Result{Reason: r}
}

type command struct {
	kind commandKind

	submit   SubmitRequest
	orderID  uint64
	newQty   int64
	newPrice int64
	outcome  book.Outcome

	// replay commands come from the WAL: apply state changes but do not
	// journal again or publish downstream.
	replay bool

	reply chan Result
}

// FillSink receives the ordered per-event fill stream and quote updates.
// Implementations must be safe for concurrent use: every event worker
// calls in on its own goroutine.
type FillSink interface {
	OnFill(f book.Fill)
	OnQuote(eventID uint64, q book.Quote)
}

// NopSink discards everything. Used in tests and replay.
type NopSink struct{}

func (NopSink) OnFill(book.Fill) {}
func (NopSink) OnQuote(uint64, book.Quote) {}
