package resolution

import (
	"github.com/shopspring/decimal"

	"janus/domain/book"
)

// Record is one settlement instruction: pay Amount to Account for the
// winning side of fill TradeID. Amounts are exact decimals in currency
// units; actual balance transfer belongs to the external settlement
// collaborator.
type Record struct {
	Account uint64
	TradeID uint64
	Amount  decimal.Decimal
}

// one full contract pays PriceScale ticks; a tick is one cent
var contractValue = decimal.New(book.PriceScale, -2)

// Payouts derives the settlement records for a resolved event from its
// fill ledger. Output order follows the ledger (trade ID order), one
// record per fill, paid to whichever side the outcome favors.
func Payouts(fills []book.Fill, outcome book.Outcome) []Record {
	recs := make([]Record, 0, len(fills))
	for _, f := range fills {
		winner := f.YesAccount
		if outcome == book.OutcomeNo {
			winner = f.NoAccount
		}
		recs = append(recs, Record{
			Account: winner,
			TradeID: f.TradeID,
			Amount:  contractValue.Mul(decimal.NewFromInt(f.Qty)),
		})
	}
	return recs
}
