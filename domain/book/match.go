package book

// Uncross runs the price-time priority matching loop until no resting
// bid/ask pair satisfies the cross predicate. It is the only place where
// fills are produced and the only place allowed to leave the book
// uncrossed again.
//
// Execution price is the resting order's price; when both heads were
// admitted in the same pass the earlier arrival sequence counts as
// resting. Ties at equal price are broken purely by arrival sequence.
//
// now stamps the fills, nextID assigns trade IDs, onFill receives each
// fill in execution order, and onDone receives orders that reached a
// terminal status so the caller can retire them.
func (b *Book) Uncross(now int64, nextID func() uint64, onFill func(Fill), onDone func(*Order)) (int, error) {
	fills := 0

	for b.bestBid != nil && b.bestAsk != nil && b.bestBid.Price >= b.bestAsk.Price {
		bid := b.bestBid.Head()
		ask := b.bestAsk.Head()
		if bid == nil || ask == nil {
			return fills, ErrIndexMismatch
		}

		// The earlier arrival is "resting" and keeps price priority.
		price := b.bestBid.Price
		if ask.Seq < bid.Seq {
			price = b.bestAsk.Price
		}

		qty := min64(bid.Remaining(), ask.Remaining())
		if qty <= 0 {
			return fills, ErrNegativeRemaining
		}

		bid.Filled += qty
		ask.Filled += qty
		b.bestBid.reduce(qty)
		b.bestAsk.reduce(qty)

		if bid.Remaining() < 0 || ask.Remaining() < 0 {
			return fills, ErrNegativeRemaining
		}

		origin := Real
		if bid.Origin == Chaos || ask.Origin == Chaos {
			origin = Chaos
		}

		onFill(Fill{
			TradeID:    nextID(),
			EventID:    b.EventID,
			YesOrderID: bid.ID,
			NoOrderID:  ask.ID,
			YesAccount: bid.Account,
			NoAccount:  ask.Account,
			Price:      price,
			Qty:        qty,
			Time:       now,
			Origin:     origin,
		})
		fills++

		if err := b.settleAfterFill(bid, onDone); err != nil {
			return fills, err
		}
		if err := b.settleAfterFill(ask, onDone); err != nil {
			return fills, err
		}
	}

	return fills, b.CheckConsistency()
}

// settleAfterFill moves an order to its post-fill status and unlinks it
// once exhausted.
func (b *Book) settleAfterFill(o *Order, onDone func(*Order)) error {
	if o.Remaining() > 0 {
		return o.transition(PartiallyFilled)
	}

	if err := o.transition(Filled); err != nil {
		return err
	}
	b.remove(o)
	delete(b.index, o.ID)
	b.terminal[o.ID] = Filled
	if onDone != nil {
		onDone(o)
	}
	return nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
