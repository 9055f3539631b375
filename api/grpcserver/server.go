package grpcserver

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"janus/domain/book"
	"janus/engine"
	"janus/service"
)

type Server struct {
	svc *service.Service
}

func NewServer(svc *service.Service) *Server {
	return &Server{svc: svc}
}

// Register attaches the engine service to a grpc.Server.
func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&serviceDesc, s)
}

func (s *Server) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	side, err := parseSide(req.Side)
	if err != nil {
		return nil, err
	}
	res, err := s.svc.Submit(ctx, engine.SubmitRequest{
		EventID: req.EventID,
		Account: req.Account,
		Side:    side,
		Price:   req.Price,
		Qty:     req.Qty,
		Origin:  book.Real,
	})
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return &SubmitResponse{
		OK:      res.OK,
		Reason:  reason(res),
		OrderID: res.OrderID,
		Seq:     res.Seq,
	}, nil
}

func (s *Server) Cancel(ctx context.Context, req *CancelRequest) (*CancelResponse, error) {
	res, err := s.svc.Cancel(ctx, req.OrderID)
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return &CancelResponse{OK: res.OK, Reason: reason(res)}, nil
}

func (s *Server) Modify(ctx context.Context, req *ModifyRequest) (*ModifyResponse, error) {
	res, err := s.svc.Modify(ctx, req.OrderID, req.NewQty, req.NewPrice)
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return &ModifyResponse{OK: res.OK, Reason: reason(res), Seq: res.Seq}, nil
}

func (s *Server) Quote(ctx context.Context, req *QuoteRequest) (*QuoteResponse, error) {
	q, err := s.svc.BestQuote(ctx, req.EventID)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	return &QuoteResponse{Bid: q.Bid, Ask: q.Ask, HasBid: q.HasBid, HasAsk: q.HasAsk}, nil
}

func (s *Server) Depth(ctx context.Context, req *DepthRequest) (*DepthResponse, error) {
	bids, asks, err := s.svc.Depth(req.EventID)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	return &DepthResponse{Bids: bids, Asks: asks}, nil
}

func (s *Server) OpenEvent(ctx context.Context, req *OpenEventRequest) (*OpenEventResponse, error) {
	var deadline time.Time
	if req.CloseDeadline != 0 {
		deadline = time.Unix(0, req.CloseDeadline)
	}
	err := s.svc.OpenEvent(req.EventID, engine.EventConfig{
		ChaosEnabled:     req.ChaosEnabled,
		ChaosSeed:        req.ChaosSeed,
		ChaosRateBound:   req.ChaosRate,
		ChaosMaxQty:      req.ChaosMaxQty,
		ChaosPriceJitter: req.ChaosJitter,
		CloseDeadline:    deadline,
	})
	if err != nil {
		return &OpenEventResponse{OK: false, Reason: err.Error()}, nil
	}
	return &OpenEventResponse{OK: true}, nil
}

func (s *Server) CloseEvent(ctx context.Context, req *CloseEventRequest) (*CloseEventResponse, error) {
	if err := s.svc.CloseEvent(ctx, req.EventID); err != nil {
		return &CloseEventResponse{OK: false, Reason: err.Error()}, nil
	}
	return &CloseEventResponse{OK: true}, nil
}

func (s *Server) Resolve(ctx context.Context, req *ResolveRequest) (*ResolveResponse, error) {
	outcome, err := parseOutcome(req.Outcome)
	if err != nil {
		return nil, err
	}
	recs, err := s.svc.ResolveEvent(ctx, req.EventID, outcome)
	if err != nil {
		return &ResolveResponse{OK: false, Reason: err.Error()}, nil
	}
	resp := &ResolveResponse{OK: true}
	for _, r := range recs {
		resp.Records = append(resp.Records, SettlementRecord{
			Account: r.Account,
			TradeID: r.TradeID,
			Amount:  r.Amount.String(),
		})
	}
	return resp, nil
}

func reason(res engine.Result) string {
	if res.OK {
		return ""
	}
	return res.Reason.String()
}

func parseSide(s string) (book.Side, error) {
	switch strings.ToUpper(s) {
	case "YES":
		return book.Yes, nil
	case "NO":
		return book.No, nil
	default:
		return 0, status.Errorf(codes.InvalidArgument, "bad side %q", s)
	}
}

func parseOutcome(s string) (book.Outcome, error) {
	switch strings.ToUpper(s) {
	case "YES":
		return book.OutcomeYes, nil
	case "NO":
		return book.OutcomeNo, nil
	default:
		return 0, status.Errorf(codes.InvalidArgument, "bad outcome %q", s)
	}
}
