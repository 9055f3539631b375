package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"janus/domain/book"
	"janus/engine"
	"janus/infra/kafka"
	"janus/infra/wal/entry"
	"janus/infra/wal/outbox"
	"janus/resolution"
	"janus/snapshot"
)

// Feed is the push side of the market data stream. The websocket hub
// implements it; tests use a capture double.
type Feed interface {
	Broadcast(payload []byte)
}

// Service wires the engine to its durable and streaming outputs. It
// implements engine.FillSink: every fill is staged on the outbox before
// anything downstream sees it, and quotes fan out to Kafka and the feed.
type Service struct {
	eng      *engine.Engine
	coord    *resolution.Coordinator
	wal      *entry.WAL
	out      *outbox.Outbox
	quotes   *kafka.Producer
	feed     Feed
	reader   *snapshot.Reader
	defaults engine.EventConfig
	log      *slog.Logger
}

type Deps struct {
	Engine      *engine.Engine
	Coordinator *resolution.Coordinator
	WAL         *entry.WAL
	Outbox      *outbox.Outbox
	Quotes      *kafka.Producer
	Feed        Feed
	// ChaosDefaults applies to events opened without their own chaos
	// settings.
	ChaosDefaults engine.EventConfig
	Log           *slog.Logger
}

func New(d Deps) *Service {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	return &Service{
		eng:      d.Engine,
		coord:    d.Coordinator,
		wal:      d.WAL,
		out:      d.Outbox,
		quotes:   d.Quotes,
		feed:     d.Feed,
		reader:   snapshot.NewReader(),
		defaults: d.ChaosDefaults,
		log:      d.Log,
	}
}

// Reader exposes the depth-query epoch for the reclamation job.
func (s *Service) Reader() *snapshot.Reader { return s.reader }

// ---- commands ----

func (s *Service) OpenEvent(eventID uint64, cfg engine.EventConfig) error {
	if !cfg.ChaosEnabled && s.defaults.ChaosEnabled {
		deadline := cfg.CloseDeadline
		cfg = s.defaults
		cfg.CloseDeadline = deadline
	}
	if err := s.eng.OpenEvent(eventID, cfg); err != nil {
		return err
	}
	if s.coord != nil {
		s.coord.Schedule(eventID, cfg.CloseDeadline)
	}
	return nil
}

func (s *Service) Submit(ctx context.Context, req engine.SubmitRequest) (engine.Result, error) {
	return s.eng.Submit(ctx, req)
}

func (s *Service) Cancel(ctx context.Context, orderID uint64) (engine.Result, error) {
	return s.eng.Cancel(ctx, orderID)
}

func (s *Service) Modify(ctx context.Context, orderID uint64, newQty, newPrice int64) (engine.Result, error) {
	return s.eng.Modify(ctx, orderID, newQty, newPrice)
}

func (s *Service) CloseEvent(ctx context.Context, eventID uint64) error {
	if s.coord != nil {
		return s.coord.CloseEvent(ctx, eventID)
	}
	_, err := s.eng.Close(ctx, eventID)
	return err
}

func (s *Service) ResolveEvent(ctx context.Context, eventID uint64, outcome book.Outcome) ([]resolution.Record, error) {
	if s.coord != nil {
		return s.coord.Resolve(ctx, eventID, outcome)
	}
	res, err := s.eng.Resolve(ctx, eventID, outcome)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, fmt.Errorf("resolve event %d: %s", eventID, res.Reason)
	}
	return resolution.Payouts(res.Fills, outcome), nil
}

// ---- queries ----

func (s *Service) BestQuote(ctx context.Context, eventID uint64) (book.Quote, error) {
	return s.eng.BestQuote(ctx, eventID)
}

// Depth walks the live book under the read epoch. Callers must treat the
// returned levels as a point-in-time view.
func (s *Service) Depth(eventID uint64) (bids, asks []engine.LevelDepth, err error) {
	s.reader.Begin()
	defer s.reader.End()
	return s.eng.Depth(eventID)
}

func (s *Service) Events() []uint64 { return s.eng.Events() }

// ---- engine.FillSink ----

type fillMsg struct {
	EventID    uint64 `json:"event_id"`
	TradeID    uint64 `json:"trade_id"`
	YesOrderID uint64 `json:"yes_order_id"`
	NoOrderID  uint64 `json:"no_order_id"`
	YesAccount uint64 `json:"yes_account"`
	NoAccount  uint64 `json:"no_account"`
	Price      int64  `json:"price"`
	Qty        int64  `json:"qty"`
	Time       int64  `json:"time"`
	Origin     string `json:"origin"`
}

type quoteMsg struct {
	EventID uint64 `json:"event_id"`
	Bid     int64  `json:"bid,omitempty"`
	Ask     int64  `json:"ask,omitempty"`
	HasBid  bool   `json:"has_bid"`
	HasAsk  bool   `json:"has_ask"`
	Time    int64  `json:"time"`
}

// OnFill stages the fill on the outbox; the broadcaster owns delivery
// and retries. The feed gets a copy immediately, best effort.
func (s *Service) OnFill(f book.Fill) {
	payload, err := json.Marshal(fillMsg{
		EventID:    f.EventID,
		TradeID:    f.TradeID,
		YesOrderID: f.YesOrderID,
		NoOrderID:  f.NoOrderID,
		YesAccount: f.YesAccount,
		NoAccount:  f.NoAccount,
		Price:      f.Price,
		Qty:        f.Qty,
		Time:       f.Time,
		Origin:     f.Origin.String(),
	})
	if err != nil {
		s.log.Error("fill encode failed", slog.Any("error", err))
		return
	}

	if s.out != nil {
		if err := s.out.Stage(outbox.KindFill, f.TradeID, payload); err != nil {
			s.log.Error("fill stage failed",
				slog.Uint64("trade", f.TradeID), slog.Any("error", err))
		}
	}
	if s.feed != nil {
		s.feed.Broadcast(payload)
	}
}

// OnQuote publishes top-of-book changes to the quote topic and the feed.
func (s *Service) OnQuote(eventID uint64, q book.Quote) {
	payload, err := json.Marshal(quoteMsg{
		EventID: eventID,
		Bid:     q.Bid,
		Ask:     q.Ask,
		HasBid:  q.HasBid,
		HasAsk:  q.HasAsk,
		Time:    time.Now().UnixNano(),
	})
	if err != nil {
		return
	}

	if s.quotes != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		key := []byte(strconv.FormatUint(eventID, 10))
		if err := s.quotes.Send(ctx, key, payload); err != nil {
			s.log.Warn("quote publish failed",
				slog.Uint64("event", eventID), slog.Any("error", err))
		}
	}
	if s.feed != nil {
		s.feed.Broadcast(payload)
	}
}
