package domain

import "time"

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// FillResult is what a venue returns for a submitted market order.
// FillPrice is zero when the venue does not report it synchronously.
type FillResult struct {
	OrderID   string
	Symbol    string // venue-raw
	Side      Side
	Qty       float64
	FillPrice float64
}

// VenuePosition is a single-leg position as reported by one venue.
type VenuePosition struct {
	Symbol        string // venue-raw
	Side          Side
	Size          float64
	AvgEntryPrice float64
}

// OpenPosition is one two-leg convergence trade: long on the cheaper
// venue, short on the dearer one. At most one exists per canonical
// symbol. Entry prices are the confirmed fills where the venue could
// report them, otherwise the triggering snapshot prices.
type OpenPosition struct {
	Symbol      string    `json:"symbol"` // canonical
	BuyVenue    string    `json:"buy_venue"`
	SellVenue   string    `json:"sell_venue"`
	EntryPriceA float64   `json:"entry_price_a"`
	EntryPriceB float64   `json:"entry_price_b"`
	Quantity    float64   `json:"quantity"`
	OpenedAt    time.Time `json:"opened_at"`
}

// ClosedTrade is the write-once record of a finished two-leg trade.
type ClosedTrade struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	BuyVenue    string    `json:"buy_venue"`
	SellVenue   string    `json:"sell_venue"`
	EntryPriceA float64   `json:"entry_price_a"`
	EntryPriceB float64   `json:"entry_price_b"`
	ExitPriceA  float64   `json:"exit_price_a"`
	ExitPriceB  float64   `json:"exit_price_b"`
	Quantity    float64   `json:"quantity"`
	Fees        float64   `json:"fees"`
	GrossProfit float64   `json:"gross_profit"`
	NetProfit   float64   `json:"net_profit"`
	CloseFailed bool      `json:"close_failed"` // a close order errored; trade still finalized
	OpenedAt    time.Time `json:"opened_at"`
	ClosedAt    time.Time `json:"closed_at"`
}
