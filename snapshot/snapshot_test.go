package snapshot

import (
	"context"
	"testing"

	"janus/domain/book"
	"janus/engine"
	"janus/infra/wal/entry"
)

func trade(t *testing.T, eng *engine.Engine, ctx context.Context, side book.Side, price, qty int64) engine.Result {
	t.Helper()
	res, err := eng.Submit(ctx, engine.SubmitRequest{
		EventID: 1, Account: 3, Side: side, Price: price, Qty: qty,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return res
}

func TestSnapshotRoundTrip(t *testing.T) {
	snapDir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := engine.New(engine.Config{})
	if err := eng.OpenEvent(1, engine.EventConfig{}); err != nil {
		t.Fatal(err)
	}
	eng.Start(ctx)

	trade(t, eng, ctx, book.Yes, 60, 10)
	trade(t, eng, ctx, book.No, 60, 4) // one fill, bid rests with 6
	trade(t, eng, ctx, book.Yes, 55, 5)
	trade(t, eng, ctx, book.No, 70, 2)

	w := &Writer{Dir: snapDir}
	if _, err := w.Write(ctx, eng, nil); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := Load(snapDir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s == nil || len(s.Events) != 1 {
		t.Fatalf("snapshot missing event state: %+v", s)
	}
	cap := s.Events[0]
	if len(cap.Orders) != 3 {
		t.Fatalf("captured %d resting orders, want 3", len(cap.Orders))
	}
	if len(cap.Fills) != 1 {
		t.Fatalf("captured %d fills, want 1", len(cap.Fills))
	}

	eng2 := engine.New(engine.Config{})
	if err := Restore(s, eng2); err != nil {
		t.Fatalf("restore: %v", err)
	}

	b1, a1, _ := eng.Depth(1)
	b2, a2, err := eng2.Depth(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(b1) != len(b2) || len(a1) != len(a2) {
		t.Fatalf("depth mismatch after restore")
	}
	for i := range b1 {
		if b1[i] != b2[i] {
			t.Errorf("bid level %d: %+v vs %+v", i, b1[i], b2[i])
		}
	}
	for i := range a1 {
		if a1[i] != a2[i] {
			t.Errorf("ask level %d: %+v vs %+v", i, a1[i], a2[i])
		}
	}
}

func TestLoadMissingSnapshot(t *testing.T) {
	s, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("missing snapshot must not error: %v", err)
	}
	if s != nil {
		t.Fatal("expected nil snapshot")
	}
}

// A command can land between the writer's global sequence read and the
// event's capture. The capture reflects it, so replay must not apply it
// a second time; the rebuilt book has to match the live one exactly.
func TestCommandBetweenSequenceReadAndCapture(t *testing.T) {
	walDir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wal, err := entry.Open(entry.Config{Dir: walDir})
	if err != nil {
		t.Fatal(err)
	}
	eng := engine.New(engine.Config{WAL: wal})
	if err := eng.OpenEvent(1, engine.EventConfig{}); err != nil {
		t.Fatal(err)
	}
	eng.Start(ctx)

	trade(t, eng, ctx, book.Yes, 60, 5)

	// Writer's interleaving, spelled out: global sequence first, then a
	// command slips in, then the capture.
	walSeq := wal.Current()
	trade(t, eng, ctx, book.Yes, 58, 7)

	cap, err := eng.Capture(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	wal.Close()

	s := &Snapshot{WALSeq: walSeq, Events: []engine.EventCapture{cap}}

	eng2 := engine.New(engine.Config{})
	if err := Restore(s, eng2); err != nil {
		t.Fatal(err)
	}
	if _, err := eng2.Replay(walDir, s.WALSeq); err != nil {
		t.Fatalf("replay: %v", err)
	}

	b1, _, _ := eng.Depth(1)
	b2, _, err := eng2.Depth(1)
	if err != nil {
		t.Fatal(err)
	}
	var live, rebuilt int64
	for _, l := range b1 {
		live += l.TotalQty
	}
	for _, l := range b2 {
		rebuilt += l.TotalQty
	}
	if rebuilt != live {
		t.Fatalf("rebuilt qty %d != live %d: command applied from snapshot and replay", rebuilt, live)
	}
	if len(b2) != len(b1) {
		t.Fatalf("rebuilt %d bid levels, live %d", len(b2), len(b1))
	}
}

// Snapshot plus journal suffix must rebuild the same book and keep IDs
// resolvable, including an ID issued after the snapshot was taken.
func TestSnapshotWithJournalSuffix(t *testing.T) {
	walDir := t.TempDir()
	snapDir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wal, err := entry.Open(entry.Config{Dir: walDir})
	if err != nil {
		t.Fatal(err)
	}
	eng := engine.New(engine.Config{WAL: wal})
	if err := eng.OpenEvent(1, engine.EventConfig{}); err != nil {
		t.Fatal(err)
	}
	eng.Start(ctx)

	pre := trade(t, eng, ctx, book.Yes, 60, 10)

	w := &Writer{Dir: snapDir}
	walSeq, err := w.Write(ctx, eng, wal)
	if err != nil {
		t.Fatal(err)
	}

	// post-snapshot traffic, including a cancel of a pre-snapshot order
	post := trade(t, eng, ctx, book.Yes, 55, 5)
	if res, _ := eng.Cancel(ctx, pre.OrderID); !res.OK {
		t.Fatal("cancel failed")
	}
	wal.Close()

	s, err := Load(snapDir)
	if err != nil || s == nil {
		t.Fatalf("load: %v", err)
	}
	if s.WALSeq != walSeq {
		t.Fatalf("WALSeq %d, want %d", s.WALSeq, walSeq)
	}

	eng2 := engine.New(engine.Config{})
	if err := Restore(s, eng2); err != nil {
		t.Fatal(err)
	}
	if _, err := eng2.Replay(walDir, s.WALSeq); err != nil {
		t.Fatalf("replay: %v", err)
	}

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	eng2.Start(ctx2)

	// pre-snapshot order was cancelled in the suffix
	res, err := eng2.Cancel(ctx2, pre.OrderID)
	if err != nil {
		t.Fatal(err)
	}
	if res.OK {
		t.Fatal("cancelled order must be terminal after rebuild")
	}

	// post-snapshot order must still rest under the same ID
	res, err = eng2.Cancel(ctx2, post.OrderID)
	if err != nil || !res.OK {
		t.Fatalf("post-snapshot order not resolvable: %+v %v", res, err)
	}
}
