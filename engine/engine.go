package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"janus/chaos"
	"janus/domain/book"
	"janus/infra/memory"
	"janus/infra/wal/entry"
)

var (
	ErrUnknownEvent = errors.New("engine: unknown event")
	ErrEventExists  = errors.New("engine: event already open")
)

// Config is engine-wide; per-event knobs live in EventConfig.
type Config struct {
	InboxSize int
	Rule      book.CrossRule
	WAL       *entry.WAL // nil disables journaling
	Sink      FillSink
	DumpDir   string
	OnFault   func(eventID uint64, err error)
	Log       *slog.Logger
}

// EventConfig is the admission-time configuration for one event.
type EventConfig struct {
	ChaosEnabled     bool
	ChaosSeed        int64
	ChaosRateBound   float64 // synthetic orders per second, upper bound
	ChaosMaxQty      int64
	ChaosPriceJitter int64
	CloseDeadline    time.Time
}

// Engine routes commands to per-event workers. Concurrency exists only at
// this funnel: producers enqueue from any goroutine, each event's queue is
// drained by its single owning worker.
type Engine struct {
	cfg Config

	mu      sync.RWMutex
	workers map[uint64]*worker
	evCfgs  map[uint64]EventConfig
	routes  map[uint64]uint64 // orderID -> eventID

	pool *memory.Pool[book.Order]

	ctx     context.Context
	started bool

	log *slog.Logger
}

func New(cfg Config) *Engine {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 1024
	}
	if cfg.Rule == nil {
		cfg.Rule = book.DirectRule{}
	}
	if cfg.Sink == nil {
		cfg.Sink = NopSink{}
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Engine{
		cfg:     cfg,
		workers: make(map[uint64]*worker),
		evCfgs:  make(map[uint64]EventConfig),
		routes:  make(map[uint64]uint64),
		pool: memory.NewPool(func() *book.Order {
			return &book.Order{}
		}),
		log: cfg.Log,
	}
}

// Start launches every worker goroutine and the chaos injectors. Call
// once, after any replay has completed.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.ctx = ctx
	e.started = true
	for id, w := range e.workers {
		go w.run(ctx)
		e.startChaos(ctx, id, e.evCfgs[id])
	}
}

// OpenEvent creates the event's book and worker. With the engine already
// started the worker begins draining immediately.
func (e *Engine) OpenEvent(eventID uint64, cfg EventConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.openEventLocked(eventID, cfg, false)
}

func (e *Engine) openEventLocked(eventID uint64, cfg EventConfig, replay bool) error {
	if _, ok := e.workers[eventID]; ok {
		return ErrEventExists
	}

	if !replay && e.cfg.WAL != nil {
		if _, err := e.cfg.WAL.Append(entry.RecordOpenEvent, eventID, encodeOpenEvent(cfg)); err != nil {
			return err
		}
	}

	w := newWorker(eventID, e.cfg.Rule, e.cfg.InboxSize, e.cfg.WAL, e.cfg.Sink, e.pool, e.cfg.OnFault, e.cfg.DumpDir, e.log)
	e.workers[eventID] = w
	e.evCfgs[eventID] = cfg

	if e.started {
		go w.run(e.ctx)
		e.startChaos(e.ctx, eventID, cfg)
	}
	if !replay {
		e.log.Info("event opened",
			slog.Uint64("event", eventID),
			slog.Bool("chaos", cfg.ChaosEnabled),
			slog.String("rule", e.cfg.Rule.Name()))
	}
	return nil
}

// startChaos wires the deterministic volatility injector through the
// ordinary submission path. It holds no privileged access to the book.
func (e *Engine) startChaos(ctx context.Context, eventID uint64, cfg EventConfig) {
	if !cfg.ChaosEnabled {
		return
	}
	inj := chaos.NewInjector(
		chaos.NewPerturb(eventID, cfg.ChaosSeed, cfg.ChaosPriceJitter, cfg.ChaosMaxQty),
		cfg.ChaosRateBound,
		func(s chaos.Synthetic) {
			_, _ = e.Submit(ctx, SubmitRequest{
				EventID: s.EventID,
				Account: chaos.Account,
				Side:    s.Side,
				Price:   s.Price,
				Qty:     s.Qty,
				Origin:  book.Chaos,
			})
		},
		e.log,
	)
	go inj.Run(ctx)
}

func (e *Engine) lookup(eventID uint64) (*worker, error) {
	e.mu.RLock()
	w, ok := e.workers[eventID]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownEvent
	}
	return w, nil
}

func (e *Engine) dispatch(ctx context.Context, w *worker, cmd command) (Result, error) {
	cmd.reply = make(chan Result, 1)
	select {
	case w.inbox <- cmd:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case res := <-cmd.reply:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Submit admits an order. On acceptance the returned Result carries the
// assigned order ID and arrival sequence.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (Result, error) {
	w, err := e.lookup(req.EventID)
	if err != nil {
		return rejected(book.ReasonUnknownEvent), nil
	}
	res, err := e.dispatch(ctx, w, command{kind: cmdSubmit, submit: req})
	if err != nil {
		return Result{}, err
	}
	if res.OK {
		e.mu.Lock()
		e.routes[res.OrderID] = req.EventID
		e.mu.Unlock()
	}
	return res, nil
}

// Cancel routes by order ID alone; the engine keeps an order->event map
// for that.
func (e *Engine) Cancel(ctx context.Context, orderID uint64) (Result, error) {
	w, err := e.route(orderID)
	if err != nil {
		return rejected(book.ReasonUnknownOrder), nil
	}
	res, derr := e.dispatch(ctx, w, command{kind: cmdCancel, orderID: orderID})
	if derr != nil {
		return Result{}, derr
	}
	if res.OK || res.Reason == book.ReasonAlreadyTerminal {
		e.dropRoute(orderID)
	}
	return res, nil
}

func (e *Engine) Modify(ctx context.Context, orderID uint64, newQty, newPrice int64) (Result, error) {
	w, err := e.route(orderID)
	if err != nil {
		return rejected(book.ReasonUnknownOrder), nil
	}
	return e.dispatch(ctx, w, command{kind: cmdModify, orderID: orderID, newQty: newQty, newPrice: newPrice})
}

// BestQuote goes through the command queue like every other operation, so
// it observes a book that satisfies the no-cross invariant.
func (e *Engine) BestQuote(ctx context.Context, eventID uint64) (book.Quote, error) {
	w, err := e.lookup(eventID)
	if err != nil {
		return book.Quote{}, err
	}
	res, derr := e.dispatch(ctx, w, command{kind: cmdQuote})
	if derr != nil {
		return book.Quote{}, derr
	}
	if !res.OK {
		return book.Quote{}, fmt.Errorf("quote rejected: %s", res.Reason)
	}
	return res.Quote, nil
}

// Close moves the event to Resolving: no further submissions, resting
// interest cancelled.
func (e *Engine) Close(ctx context.Context, eventID uint64) (Result, error) {
	w, err := e.lookup(eventID)
	if err != nil {
		return rejected(book.ReasonUnknownEvent), nil
	}
	res, derr := e.dispatch(ctx, w, command{kind: cmdClose})
	if derr == nil && res.OK {
		e.pruneRoutes(eventID)
	}
	return res, derr
}

// Resolve finalizes the event with its outcome and returns the full fill
// ledger for settlement.
func (e *Engine) Resolve(ctx context.Context, eventID uint64, outcome book.Outcome) (Result, error) {
	w, err := e.lookup(eventID)
	if err != nil {
		return rejected(book.ReasonUnknownEvent), nil
	}
	res, derr := e.dispatch(ctx, w, command{kind: cmdResolve, outcome: outcome})
	if derr == nil && res.OK {
		e.pruneRoutes(eventID)
	}
	return res, derr
}

// EventConfigFor returns the admission-time configuration of an event.
func (e *Engine) EventConfigFor(eventID uint64) (EventConfig, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cfg, ok := e.evCfgs[eventID]
	return cfg, ok
}

// Events lists open event IDs.
func (e *Engine) Events() []uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]uint64, 0, len(e.workers))
	for id := range e.workers {
		ids = append(ids, id)
	}
	return ids
}

func (e *Engine) route(orderID uint64) (*worker, error) {
	e.mu.RLock()
	eventID, ok := e.routes[orderID]
	var w *worker
	if ok {
		w = e.workers[eventID]
	}
	e.mu.RUnlock()
	if w == nil {
		return nil, ErrUnknownEvent
	}
	return w, nil
}

func (e *Engine) dropRoute(orderID uint64) {
	e.mu.Lock()
	delete(e.routes, orderID)
	e.mu.Unlock()
}

// pruneRoutes drops every route pointing at a closed event. The event no
// longer accepts order commands, so the entries only answer with
// event-closed; without pruning they would outlive the event's trading
// phase one entry per order.
func (e *Engine) pruneRoutes(eventID uint64) {
	e.mu.Lock()
	e.pruneRoutesLocked(eventID)
	e.mu.Unlock()
}

func (e *Engine) pruneRoutesLocked(eventID uint64) {
	for id, ev := range e.routes {
		if ev == eventID {
			delete(e.routes, id)
		}
	}
}

// Reclaim advances the global epoch and returns retired orders from every
// worker's ring once no reader pins an older epoch. Called periodically
// by a background job.
func (e *Engine) Reclaim(readers ...*memory.ReaderEpoch) {
	e.mu.RLock()
	rings := make([]*memory.RetireRing, 0, len(e.workers))
	for _, w := range e.workers {
		rings = append(rings, w.ring)
	}
	e.mu.RUnlock()

	for _, ring := range rings {
		memory.AdvanceEpochAndReclaim(ring, e.pool, readers...)
	}
}
