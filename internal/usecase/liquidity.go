package usecase

import "github.com/vitos/crypto_spread_arb/internal/domain"

// LiquidityReport summarizes the depth available on the side each leg
// would hit: asks on the buy venue, bids on the sell venue. It is
// advisory only and never gates an entry.
type LiquidityReport struct {
	Symbol       string  `json:"symbol"`
	BuyVenue     string  `json:"buy_venue"`
	SellVenue    string  `json:"sell_venue"`
	AskDepth     float64 `json:"ask_depth"` // buy venue, top-N asks
	BidDepth     float64 `json:"bid_depth"` // sell venue, top-N bids
	Levels       int     `json:"levels"`
	WantQuantity float64 `json:"want_quantity"`
}

// Sufficient reports whether both sides cover the intended quantity.
func (r *LiquidityReport) Sufficient() bool {
	return r.AskDepth >= r.WantQuantity && r.BidDepth >= r.WantQuantity
}

// SumDepth aggregates the size available across the top n levels of one
// book side.
func SumDepth(levels []domain.OrderBookEntry, n int) float64 {
	if n > len(levels) {
		n = len(levels)
	}
	total := 0.0
	for _, level := range levels[:n] {
		total += level.Size
	}
	return total
}
