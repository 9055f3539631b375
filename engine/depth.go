package engine

import (
	"janus/domain/book"
)

// LevelDepth is one aggregated price level for depth queries.
type LevelDepth struct {
	Price    int64 `json:"price"`
	TotalQty int64 `json:"total_qty"`
	Orders   int   `json:"orders"`
}

// Depth returns aggregated bid/ask levels, best first.
//
// Reads here bypass the command queue: the owning worker is the single
// writer and readers walk the live structures under an epoch reader (see
// infra/memory), the same model the depth snapshots use. Callers must
// bracket with ReaderEpoch.Enter/Exit via the service layer.
func (e *Engine) Depth(eventID uint64) (bids, asks []LevelDepth, err error) {
	w, err := e.lookup(eventID)
	if err != nil {
		return nil, nil, err
	}

	w.book.WalkBids(func(lvl *book.PriceLevel) bool {
		bids = append(bids, LevelDepth{lvl.Price, lvl.TotalQty, lvl.OrderCount})
		return true
	})
	w.book.WalkAsks(func(lvl *book.PriceLevel) bool {
		asks = append(asks, LevelDepth{lvl.Price, lvl.TotalQty, lvl.OrderCount})
		return true
	})
	return bids, asks, nil
}
