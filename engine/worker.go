package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"janus/domain/book"
	"janus/infra/memory"
	"janus/infra/sequence"
	"janus/infra/wal/entry"
)

// Worker owns exactly one event's book and drains its command queue
// sequentially. All mutation of the book happens here, so the book needs
// no locks; producers only ever touch the inbox channel. The worker
// blocks only when its inbox is empty and never on another event.
type worker struct {
	eventID  uint64
	book     *book.Book
	inbox    chan command
	captures chan chan EventCapture

	seq  *sequence.Sequencer // order IDs, arrival sequences and trade IDs
	wal  *entry.WAL          // nil in tests
	sink FillSink

	pool *memory.Pool[book.Order]
	ring *memory.RetireRing

	fills   []book.Fill
	status  book.EventStatus
	outcome book.Outcome
	walSeq  uint64 // last journal sequence applied to this book

	lastQuote book.Quote
	haltErr   error
	onFault   func(eventID uint64, err error)

	dumpDir string
	log     *slog.Logger
}

func newWorker(eventID uint64, rule book.CrossRule, inboxSize int, wal *entry.WAL, sink FillSink, pool *memory.Pool[book.Order], onFault func(uint64, error), dumpDir string, log *slog.Logger) *worker {
	if sink == nil {
		sink = NopSink{}
	}
	return &worker{
		eventID:  eventID,
		book:     book.NewBook(eventID, rule),
		inbox:    make(chan command, inboxSize),
		captures: make(chan chan EventCapture),
		seq:      sequence.New(0),
		wal:      wal,
		sink:     sink,
		pool:     pool,
		ring:     memory.NewRetireRing(1 << 14),
		status:   book.Open,
		onFault:  onFault,
		dumpDir:  dumpDir,
		log:      log.With(slog.Uint64("event", eventID)),
	}
}

// run is the worker's only goroutine. MUST be the sole caller of apply
// once started.
func (w *worker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-w.inbox:
			res := w.apply(cmd, time.Now().UnixNano())
			if cmd.reply != nil {
				cmd.reply <- res
			}
		case reply := <-w.captures:
			reply <- w.capture()
		}
	}
}

// capture copies the event state for snapshotting. Runs on the worker
// goroutine, so it observes no half-applied command. Copied orders carry
// no list linkage; Restore rebuilds that.
func (w *worker) capture() EventCapture {
	cap := EventCapture{
		EventID:    w.eventID,
		Status:     w.status,
		Outcome:    w.outcome,
		WALSeq:     w.walSeq,
		LastIssued: w.seq.Current(),
		Fills:      append([]book.Fill(nil), w.fills...),
	}
	w.book.WalkOrders(func(o *book.Order) bool {
		cap.Orders = append(cap.Orders, book.Order{
			ID:      o.ID,
			EventID: o.EventID,
			Account: o.Account,
			Price:   o.Price,
			Qty:     o.Qty,
			Filled:  o.Filled,
			Seq:     o.Seq,
			Side:    o.Side,
			Origin:  o.Origin,
			Status:  o.Status,
		})
		return true
	})
	return cap
}

func (w *worker) apply(cmd command, now int64) Result {
	if w.status == book.Halted {
		return rejected(book.ReasonHalted)
	}

	switch cmd.kind {
	case cmdSubmit:
		return w.applySubmit(cmd, now)
	case cmdCancel:
		return w.applyCancel(cmd)
	case cmdModify:
		return w.applyModify(cmd, now)
	case cmdQuote:
		return Result{OK: true, Quote: w.book.Quote()}
	case cmdClose:
		return w.applyClose(cmd)
	case cmdResolve:
		return w.applyResolve(cmd)
	default:
		return rejected(book.ReasonUnknownEvent)
	}
}

func (w *worker) applySubmit(cmd command, now int64) Result {
	if w.status != book.Open {
		return rejected(book.ReasonEventClosed)
	}

	o := w.pool.Get()
	*o = book.Order{
		EventID: w.eventID,
		Account: cmd.submit.Account,
		Price:   cmd.submit.Price,
		Qty:     cmd.submit.Qty,
		Side:    cmd.submit.Side,
		Origin:  cmd.submit.Origin,
		Status:  book.Active,
	}

	if r := w.book.Validate(o); r != book.ReasonNone {
		w.pool.Put(o)
		return rejected(r)
	}

	// Admission: the sequence is assigned exactly once, here.
	id := w.seq.Next()
	o.ID = id
	o.Seq = id

	if err := w.journal(cmd, entry.RecordSubmit, encodeSubmit(cmd.submit)); err != nil {
		w.pool.Put(o)
		return w.halt(err)
	}

	if r := w.book.Admit(o); r != book.ReasonNone {
		w.pool.Put(o)
		return rejected(r)
	}

	// o may be retired and recycled during the matching pass; the reply
	// must not read it afterwards.
	if err := w.uncross(cmd, now); err != nil {
		return w.halt(err)
	}

	w.publishQuote(cmd)
	return accepted(id, id)
}

func (w *worker) applyCancel(cmd command) Result {
	if w.status != book.Open {
		return rejected(book.ReasonEventClosed)
	}

	o, r := w.book.Cancel(cmd.orderID)
	if r != book.ReasonNone {
		return rejected(r)
	}

	if err := w.journal(cmd, entry.RecordCancel, encodeCancel(cmd.orderID)); err != nil {
		return w.halt(err)
	}

	w.retire(o)
	w.publishQuote(cmd)
	return Result{OK: true, OrderID: cmd.orderID}
}

func (w *worker) applyModify(cmd command, now int64) Result {
	if w.status != book.Open {
		return rejected(book.ReasonEventClosed)
	}

	o, ok := w.book.Lookup(cmd.orderID)
	if !ok {
		return rejected(w.book.Missing(cmd.orderID))
	}

	var r book.RejectReason
	if cmd.newPrice == o.Price && cmd.newQty < o.Qty {
		// Pure decrease keeps the FIFO slot.
		r = w.book.Reduce(cmd.orderID, cmd.newQty)
	} else {
		// Price change or size increase forfeits time priority: the
		// order re-enters at the tail with a fresh sequence.
		r = w.book.Requeue(cmd.orderID, cmd.newQty, cmd.newPrice, w.seq.Next())
	}
	if r != book.ReasonNone {
		return rejected(r)
	}
	id, seq := o.ID, o.Seq

	if err := w.journal(cmd, entry.RecordModify, encodeModify(cmd.orderID, cmd.newQty, cmd.newPrice)); err != nil {
		return w.halt(err)
	}

	if err := w.uncross(cmd, now); err != nil {
		return w.halt(err)
	}

	w.publishQuote(cmd)
	return accepted(id, seq)
}

func (w *worker) applyClose(cmd command) Result {
	switch w.status {
	case book.Resolving:
		return Result{OK: true} // benign repeat
	case book.Resolved:
		return rejected(book.ReasonAlreadyTerminal)
	}

	if err := w.journal(cmd, entry.RecordClose, nil); err != nil {
		return w.halt(err)
	}

	w.status = book.Resolving
	n := w.book.DrainResting(func(o *book.Order) {
		if !cmd.replay {
			w.log.Info("cancelled on resolution",
				slog.Uint64("order", o.ID),
				slog.String("side", o.Side.String()),
				slog.Int64("remaining", o.Remaining()))
		}
		w.retire(o)
	})

	if !cmd.replay {
		w.log.Info("event closed", slog.Int("cancelled", n))
	}
	w.publishQuote(cmd)
	return Result{OK: true}
}

func (w *worker) applyResolve(cmd command) Result {
	if w.status == book.Resolved {
		return rejected(book.ReasonAlreadyTerminal)
	}
	if w.status == book.Open {
		// Resolving an event that was never closed closes it first.
		if res := w.applyClose(cmd); !res.OK {
			return res
		}
	}

	if err := w.journal(cmd, entry.RecordResolve, encodeResolve(cmd.outcome)); err != nil {
		return w.halt(err)
	}

	w.status = book.Resolved
	w.outcome = cmd.outcome

	ledger := make([]book.Fill, len(w.fills))
	copy(ledger, w.fills)

	if !cmd.replay {
		w.log.Info("event resolved",
			slog.String("outcome", cmd.outcome.String()),
			slog.Int("fills", len(ledger)))
	}
	return Result{OK: true, Fills: ledger}
}

// uncross runs the matching pass and fans fills out to the ledger and the
// sink. Any error from the pass is book corruption.
func (w *worker) uncross(cmd command, now int64) error {
	_, err := w.book.Uncross(now, w.seq.Next,
		func(f book.Fill) {
			w.fills = append(w.fills, f)
			if !cmd.replay {
				w.sink.OnFill(f)
			}
		},
		func(o *book.Order) {
			w.retire(o)
		},
	)
	return err
}

func (w *worker) journal(cmd command, t entry.RecordType, payload []byte) error {
	if w.wal == nil || cmd.replay {
		return nil
	}
	seq, err := w.wal.Append(t, w.eventID, payload)
	if err == nil {
		w.walSeq = seq
	}
	return err
}

func (w *worker) publishQuote(cmd command) {
	if cmd.replay {
		return
	}
	q := w.book.Quote()
	if q == w.lastQuote {
		return
	}
	w.lastQuote = q
	w.sink.OnQuote(w.eventID, q)
}

func (w *worker) retire(o *book.Order) {
	// Ring full means reclamation is behind; let the GC take this one.
	_ = w.ring.Enqueue(o)
}

// halt stops this event permanently: the book is corrupted and must not
// serve further commands. The blast radius is one event; everything else
// keeps running.
func (w *worker) halt(err error) Result {
	w.status = book.Halted
	w.haltErr = err
	w.dumpState(err)
	w.log.Error("event halted", slog.Any("error", err))
	if w.onFault != nil {
		w.onFault(w.eventID, err)
	}
	return rejected(book.ReasonHalted)
}

// dumpState writes a post-mortem of the halted book.
func (w *worker) dumpState(cause error) {
	type levelDump struct {
		Price    int64 `json:"price"`
		TotalQty int64 `json:"total_qty"`
		Orders   int   `json:"orders"`
	}
	dump := struct {
		EventID uint64      `json:"event_id"`
		Status  string      `json:"status"`
		Cause   string      `json:"cause"`
		LastSeq uint64      `json:"last_seq"`
		Resting int         `json:"resting"`
		Fills   int         `json:"fills"`
		Bids    []levelDump `json:"bids"`
		Asks    []levelDump `json:"asks"`
	}{
		EventID: w.eventID,
		Status:  w.status.String(),
		Cause:   cause.Error(),
		LastSeq: w.book.LastSeq(),
		Resting: w.book.RestingCount(),
		Fills:   len(w.fills),
	}
	w.book.WalkBids(func(lvl *book.PriceLevel) bool {
		dump.Bids = append(dump.Bids, levelDump{lvl.Price, lvl.TotalQty, lvl.OrderCount})
		return true
	})
	w.book.WalkAsks(func(lvl *book.PriceLevel) bool {
		dump.Asks = append(dump.Asks, levelDump{lvl.Price, lvl.TotalQty, lvl.OrderCount})
		return true
	})

	b, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return
	}
	path := fmt.Sprintf("%s/halt-event-%d.json", w.dumpDir, w.eventID)
	if w.dumpDir == "" {
		path = fmt.Sprintf("halt-event-%d.json", w.eventID)
	}
	_ = os.WriteFile(path, b, 0o644)
}
