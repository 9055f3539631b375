package engine

import (
	"fmt"
	"log/slog"

	"janus/infra/wal/entry"
)

/*
Replay rebuilds all in-memory state from the entry WAL.

It MUST run before Start: records are applied synchronously on the
calling goroutine, workers are created but not yet draining, and nothing
is journaled or published downstream. Re-running the same admissions in
file order reproduces the original order IDs, arrival sequences and fill
sequence, so cancels and modifies later in the journal resolve against
the same orders they did live.

Snapshot coverage is per event: each restored worker carries the last
journal sequence its capture reflects, and records at or below it are
skipped for that event only. A command journaled while the snapshot was
being written is therefore applied exactly once, whichever side of its
worker's capture it landed on. afterSeq is the snapshot's global
sequence, used only as the floor for resuming the journal's sequencer;
pass 0 without a snapshot.
*/
func (e *Engine) Replay(dir string, afterSeq uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return 0, fmt.Errorf("engine: replay after start")
	}

	lastSeq, err := entry.Replay(dir, e.applyRecord)
	if err != nil {
		return lastSeq, err
	}
	if lastSeq < afterSeq {
		lastSeq = afterSeq
	}

	if e.cfg.WAL != nil {
		e.cfg.WAL.ResumeAfter(lastSeq)
	}
	e.log.Info("wal replay completed",
		slog.Uint64("last_seq", lastSeq),
		slog.Int("events", len(e.workers)))
	return lastSeq, nil
}

func (e *Engine) applyRecord(rec *entry.Record) error {
	if rec.Type == entry.RecordOpenEvent {
		if _, ok := e.workers[rec.Event]; ok {
			// Already restored from the snapshot.
			return nil
		}
		cfg, err := decodeOpenEvent(rec.Data)
		if err != nil {
			return err
		}
		return e.openEventLocked(rec.Event, cfg, true)
	}

	w, ok := e.workers[rec.Event]
	if !ok {
		return fmt.Errorf("engine: record for unopened event %d", rec.Event)
	}
	if rec.Seq <= w.walSeq {
		// The snapshot capture already reflects this record.
		return nil
	}

	cmd := command{replay: true}
	switch rec.Type {
	case entry.RecordSubmit:
		req, err := decodeSubmit(rec.Event, rec.Data)
		if err != nil {
			return err
		}
		cmd.kind = cmdSubmit
		cmd.submit = req
	case entry.RecordCancel:
		id, err := decodeCancel(rec.Data)
		if err != nil {
			return err
		}
		cmd.kind = cmdCancel
		cmd.orderID = id
	case entry.RecordModify:
		id, qty, price, err := decodeModify(rec.Data)
		if err != nil {
			return err
		}
		cmd.kind = cmdModify
		cmd.orderID = id
		cmd.newQty = qty
		cmd.newPrice = price
	case entry.RecordClose:
		cmd.kind = cmdClose
	case entry.RecordResolve:
		out, err := decodeResolve(rec.Data)
		if err != nil {
			return err
		}
		cmd.kind = cmdResolve
		cmd.outcome = out
	default:
		return fmt.Errorf("engine: unknown record type %d", rec.Type)
	}

	res := w.apply(cmd, rec.Time)
	w.walSeq = rec.Seq
	if res.OK && cmd.kind == cmdSubmit {
		e.routes[res.OrderID] = rec.Event
	}
	if res.OK && (cmd.kind == cmdClose || cmd.kind == cmdResolve) {
		e.pruneRoutesLocked(rec.Event)
	}
	if w.haltErr != nil {
		return fmt.Errorf("engine: replay corrupted event %d: %w", rec.Event, w.haltErr)
	}
	// Rejections during replay mirror rejections live (races replay the
	// same way), so they are not errors.
	return nil
}
