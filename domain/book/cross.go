package book

// PriceScale is the number of ticks in a full contract payout. Displayed
// prices are open-interval ticks: 0 < p < PriceScale.
const PriceScale = 100

// CrossRule decides how YES and NO interest compose into a tradable cross.
// The book stores all levels in bid space: YES orders keep their displayed
// price, NO orders are mapped through BidSpace before insertion on the
// opposing tree. After that mapping a cross is always bid >= ask.
//
// The upstream product never pinned down the exact predicate, so it is a
// configuration choice rather than a constant.
type CrossRule interface {
	// BidSpace maps a NO-side displayed price into bid space.
	BidSpace(displayed int64) int64
	// Displayed maps a bid-space price back to the NO side's displayed price.
	Displayed(bidSpace int64) int64
	Name() string
}

// DirectRule treats NO interest as an ask quoted in the same price space:
// a YES bid at p and a NO ask at q trade when p >= q.
type DirectRule struct{}

func (DirectRule) BidSpace(displayed int64) int64 { return displayed }
func (DirectRule) Displayed(bidSpace int64) int64 { return bidSpace }
func (DirectRule) Name() string                   { return "direct" }

// ComplementRule treats a NO bid at q as a YES ask at PriceScale-q:
// a YES bid at p and a NO bid at q trade when p + q >= PriceScale.
type ComplementRule struct{}

func (ComplementRule) BidSpace(displayed int64) int64 { return PriceScale - displayed }
func (ComplementRule) Displayed(bidSpace int64) int64 { return PriceScale - bidSpace }
func (ComplementRule) Name() string                   { return "complement" }

// RuleByName resolves a configured rule name. Unknown names fall back to
// the direct rule.
func RuleByName(name string) CrossRule {
	if name == "complement" {
		return ComplementRule{}
	}
	return DirectRule{}
}
