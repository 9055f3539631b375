package grpcserver

import "janus/engine"

type SubmitRequest struct {
	EventID uint64 `json:"event_id"`
	Account uint64 `json:"account"`
	Side    string `json:"side"` // "YES" or "NO"
	Price   int64  `json:"price"`
	Qty     int64  `json:"qty"`
}

type SubmitResponse struct {
	OK      bool   `json:"ok"`
	Reason  string `json:"reason,omitempty"`
	OrderID uint64 `json:"order_id,omitempty"`
	Seq     uint64 `json:"seq,omitempty"`
}

type CancelRequest struct {
	OrderID uint64 `json:"order_id"`
}

type CancelResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

type ModifyRequest struct {
	OrderID  uint64 `json:"order_id"`
	NewQty   int64  `json:"new_qty"`
	NewPrice int64  `json:"new_price"`
}

type ModifyResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	Seq    uint64 `json:"seq,omitempty"`
}

type QuoteRequest struct {
	EventID uint64 `json:"event_id"`
}

type QuoteResponse struct {
	Bid    int64 `json:"bid,omitempty"`
	Ask    int64 `json:"ask,omitempty"`
	HasBid bool  `json:"has_bid"`
	HasAsk bool  `json:"has_ask"`
}

type DepthRequest struct {
	EventID uint64 `json:"event_id"`
}

type DepthResponse struct {
	Bids []engine.LevelDepth `json:"bids"`
	Asks []engine.LevelDepth `json:"asks"`
}

type OpenEventRequest struct {
	EventID       uint64  `json:"event_id"`
	ChaosEnabled  bool    `json:"chaos_enabled"`
	ChaosSeed     int64   `json:"chaos_seed"`
	ChaosRate     float64 `json:"chaos_rate"`
	ChaosMaxQty   int64   `json:"chaos_max_qty"`
	ChaosJitter   int64   `json:"chaos_jitter"`
	CloseDeadline int64   `json:"close_deadline,omitempty"` // unix nanos, 0 = none
}

type OpenEventResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

type CloseEventRequest struct {
	EventID uint64 `json:"event_id"`
}

type CloseEventResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

type ResolveRequest struct {
	EventID uint64 `json:"event_id"`
	Outcome string `json:"outcome"` // "YES" or "NO"
}

type SettlementRecord struct {
	Account uint64 `json:"account"`
	TradeID uint64 `json:"trade_id"`
	Amount  string `json:"amount"`
}

type ResolveResponse struct {
	OK      bool               `json:"ok"`
	Reason  string             `json:"reason,omitempty"`
	Records []SettlementRecord `json:"records,omitempty"`
}
