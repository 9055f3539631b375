package engine

import (
	"context"
	"fmt"

	"janus/domain/book"
)

// EventCapture is a consistent copy of one event's full state, taken on
// the owning worker so it sees no half-applied command. Snapshots persist
// these; RestoreEvent rebuilds a worker from one before Start.
type EventCapture struct {
	EventID    uint64
	Cfg        EventConfig
	Status     book.EventStatus
	Outcome    book.Outcome
	WALSeq     uint64 // last journal sequence this capture reflects
	LastIssued uint64
	Orders     []book.Order // resting orders, bids then asks, FIFO within level
	Fills      []book.Fill
}

// Capture runs through the command queue like any mutation, so the copy
// is sequenced against all prior commands of the event.
func (e *Engine) Capture(ctx context.Context, eventID uint64) (EventCapture, error) {
	w, err := e.lookup(eventID)
	if err != nil {
		return EventCapture{}, err
	}

	reply := make(chan EventCapture, 1)
	select {
	case w.captures <- reply:
	case <-ctx.Done():
		return EventCapture{}, ctx.Err()
	}
	select {
	case cap := <-reply:
		cfg, _ := e.EventConfigFor(eventID)
		cap.Cfg = cfg
		return cap, nil
	case <-ctx.Done():
		return EventCapture{}, ctx.Err()
	}
}

// RestoreEvent rebuilds an event from a capture. Only valid before Start.
func (e *Engine) RestoreEvent(cap EventCapture) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return fmt.Errorf("engine: restore after start")
	}
	if err := e.openEventLocked(cap.EventID, cap.Cfg, true); err != nil {
		return err
	}

	w := e.workers[cap.EventID]
	w.status = cap.Status
	w.outcome = cap.Outcome
	w.walSeq = cap.WALSeq
	w.fills = append(w.fills, cap.Fills...)

	for i := range cap.Orders {
		o := w.pool.Get()
		*o = cap.Orders[i]
		if err := w.book.Restore(o); err != nil {
			return fmt.Errorf("restore event %d order %d: %w", cap.EventID, o.ID, err)
		}
		e.routes[o.ID] = cap.EventID
	}
	if cap.LastIssued > w.seq.Current() {
		w.seq.Reset(cap.LastIssued)
	}
	return nil
}
