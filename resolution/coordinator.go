package resolution

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"janus/domain/book"
	"janus/engine"
	"janus/infra/storage"
	"janus/infra/wal/outbox"
)

// Callback is invoked exactly once per event, after the settlement
// records are finalized and durably staged.
type Callback func(eventID uint64, outcome book.Outcome, records []Record)

// Coordinator drives the Open -> Resolving -> Resolved state machine for
// every event. Deadlines enqueue a close command like any other producer;
// the outcome arrives later through Resolve. Store and outbox are
// optional (nil in tests).
type Coordinator struct {
	eng   *engine.Engine
	store *storage.Store
	out   *outbox.Outbox
	cb    Callback
	log   *slog.Logger

	mu     sync.Mutex
	timers map[uint64]*time.Timer
	done   map[uint64]bool
}

func New(eng *engine.Engine, store *storage.Store, out *outbox.Outbox, cb Callback, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		eng:    eng,
		store:  store,
		out:    out,
		cb:     cb,
		log:    log,
		timers: make(map[uint64]*time.Timer),
		done:   make(map[uint64]bool),
	}
}

// Schedule arms the close deadline for an event. A zero deadline means
// the event closes only by explicit command.
func (c *Coordinator) Schedule(eventID uint64, deadline time.Time) {
	if deadline.IsZero() {
		return
	}
	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[eventID]; ok {
		t.Stop()
	}
	c.timers[eventID] = time.AfterFunc(d, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.CloseEvent(ctx, eventID); err != nil {
			c.log.Error("deadline close failed",
				slog.Uint64("event", eventID), slog.Any("error", err))
		}
	})
}

// CloseEvent transitions the event to Resolving: submissions start
// rejecting with event-closed and the resting book is drained.
func (c *Coordinator) CloseEvent(ctx context.Context, eventID uint64) error {
	res, err := c.eng.Close(ctx, eventID)
	if err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("close event %d: %s", eventID, res.Reason)
	}
	return nil
}

// Resolve finalizes the event: computes the settlement records from the
// fill ledger, archives them, stages them on the outbox, and fires the
// callback. It is idempotent; only the first call per event emits.
func (c *Coordinator) Resolve(ctx context.Context, eventID uint64, outcome book.Outcome) ([]Record, error) {
	c.mu.Lock()
	if c.done[eventID] {
		c.mu.Unlock()
		return nil, fmt.Errorf("event %d already resolved", eventID)
	}
	c.mu.Unlock()

	if c.store != nil {
		resolved, err := c.store.Resolved(eventID)
		if err != nil {
			return nil, err
		}
		if resolved {
			return nil, fmt.Errorf("event %d already resolved", eventID)
		}
	}

	res, err := c.eng.Resolve(ctx, eventID, outcome)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, fmt.Errorf("resolve event %d: %s", eventID, res.Reason)
	}

	recs := Payouts(res.Fills, outcome)

	if c.out != nil {
		for _, r := range recs {
			payload, merr := json.Marshal(settlementMsg{
				EventID: eventID,
				TradeID: r.TradeID,
				Account: r.Account,
				Amount:  r.Amount.String(),
				Outcome: outcome.String(),
			})
			if merr != nil {
				return nil, merr
			}
			if serr := c.out.Stage(outbox.KindSettlement, r.TradeID, payload); serr != nil {
				return nil, serr
			}
		}
	}

	if c.store != nil {
		rows := make([]storage.SettlementRow, 0, len(recs))
		for _, r := range recs {
			rows = append(rows, storage.SettlementRow{
				EventID: eventID,
				TradeID: r.TradeID,
				Account: r.Account,
				Amount:  r.Amount.String(),
			})
		}
		ev := storage.ResolvedEvent{
			EventID:    eventID,
			Outcome:    outcome.String(),
			ResolvedAt: time.Now().UnixNano(),
			Records:    len(rows),
		}
		if err := c.store.ArchiveResolution(ev, rows); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	c.done[eventID] = true
	if t, ok := c.timers[eventID]; ok {
		t.Stop()
		delete(c.timers, eventID)
	}
	c.mu.Unlock()

	c.log.Info("event settled",
		slog.Uint64("event", eventID),
		slog.String("outcome", outcome.String()),
		slog.Int("records", len(recs)))

	if c.cb != nil {
		c.cb(eventID, outcome, recs)
	}
	return recs, nil
}

type settlementMsg struct {
	EventID uint64 `json:"event_id"`
	TradeID uint64 `json:"trade_id"`
	Account uint64 `json:"account"`
	Amount  string `json:"amount"`
	Outcome string `json:"outcome"`
}
