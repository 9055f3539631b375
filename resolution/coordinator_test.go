package resolution

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"janus/domain/book"
	"janus/engine"
	"janus/infra/storage"
	"janus/infra/wal/outbox"
)

func startEngine(t *testing.T) (*engine.Engine, context.Context) {
	t.Helper()
	eng := engine.New(engine.Config{})
	if err := eng.OpenEvent(1, engine.EventConfig{}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	eng.Start(ctx)
	return eng, ctx
}

func fillEvent(t *testing.T, eng *engine.Engine, ctx context.Context) {
	t.Helper()
	for _, req := range []engine.SubmitRequest{
		{EventID: 1, Account: 100, Side: book.Yes, Price: 60, Qty: 5},
		{EventID: 1, Account: 200, Side: book.No, Price: 60, Qty: 5},
	} {
		if res, err := eng.Submit(ctx, req); err != nil || !res.OK {
			t.Fatalf("submit: %+v %v", res, err)
		}
	}
}

func TestResolveExactlyOnce(t *testing.T) {
	eng, ctx := startEngine(t)
	fillEvent(t, eng, ctx)

	var calls atomic.Int32
	c := New(eng, nil, nil, func(eventID uint64, outcome book.Outcome, recs []Record) {
		calls.Add(1)
		if eventID != 1 || outcome != book.OutcomeYes || len(recs) != 1 {
			t.Errorf("callback args: event %d outcome %s recs %d", eventID, outcome, len(recs))
		}
	}, nil)

	recs, err := c.Resolve(ctx, 1, book.OutcomeYes)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(recs) != 1 || recs[0].Account != 100 {
		t.Fatalf("records %+v", recs)
	}

	if _, err := c.Resolve(ctx, 1, book.OutcomeYes); err == nil {
		t.Fatal("second resolve must fail")
	}
	if calls.Load() != 1 {
		t.Fatalf("callback fired %d times", calls.Load())
	}
}

func TestResolveStagesAndArchives(t *testing.T) {
	eng, ctx := startEngine(t)
	fillEvent(t, eng, ctx)

	out, err := outbox.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()
	store, err := storage.Open(t.TempDir() + "/settle.db")
	if err != nil {
		t.Fatal(err)
	}

	c := New(eng, store, out, nil, nil)
	recs, err := c.Resolve(ctx, 1, book.OutcomeNo)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(recs) != 1 || recs[0].Account != 200 {
		t.Fatalf("records %+v", recs)
	}

	staged := 0
	_ = out.ScanState(outbox.StateNew, func(kind outbox.Kind, id uint64, e outbox.Entry) error {
		if kind == outbox.KindSettlement {
			staged++
		}
		return nil
	})
	if staged != 1 {
		t.Fatalf("staged %d settlement entries, want 1", staged)
	}

	resolved, err := store.Resolved(1)
	if err != nil || !resolved {
		t.Fatalf("archive missing: %v %v", resolved, err)
	}
	rows, err := store.Settlements(1)
	if err != nil || len(rows) != 1 {
		t.Fatalf("settlement rows: %v %v", rows, err)
	}
	if rows[0].Account != 200 || rows[0].Amount != "5" {
		t.Errorf("row %+v", rows[0])
	}

	// A fresh coordinator over the same store still refuses a repeat.
	c2 := New(eng, store, out, nil, nil)
	if _, err := c2.Resolve(ctx, 1, book.OutcomeNo); err == nil {
		t.Fatal("archived event must not resolve again")
	}
}

func TestDeadlineClosesEvent(t *testing.T) {
	eng, ctx := startEngine(t)
	c := New(eng, nil, nil, nil, nil)

	c.Schedule(1, time.Now().Add(20*time.Millisecond))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		res, err := eng.Submit(ctx, engine.SubmitRequest{
			EventID: 1, Side: book.Yes, Price: 50, Qty: 1,
		})
		if err != nil {
			t.Fatal(err)
		}
		if !res.OK && res.Reason == book.ReasonEventClosed {
			return // deadline fired
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("deadline never closed the event")
}
