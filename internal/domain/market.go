package domain

import "time"

// Ticker is one venue's snapshot entry for a single contract.
type Ticker struct {
	Symbol    string  `json:"symbol"` // venue-raw contract name
	LastPrice float64 `json:"last_price"`
	Volume24h float64 `json:"volume_24h"` // 24h turnover in USDT
	Time      int64   `json:"time"`       // ms since epoch
}

// MatchedPair is a contract quoted on both venues in the current tick.
// DiffPercent uses venue A as the reference denominator everywhere.
type MatchedPair struct {
	Symbol      string  `json:"symbol"` // canonical
	PriceA      float64 `json:"price_a"`
	PriceB      float64 `json:"price_b"`
	VolumeA     float64 `json:"volume_a"`
	VolumeB     float64 `json:"volume_b"`
	AvgVolume   float64 `json:"avg_volume"`
	DiffPercent float64 `json:"diff_percent"`
}

// DivergenceSample records the widest divergence observed on one tick.
type DivergenceSample struct {
	Symbol      string    `json:"symbol"`
	PriceA      float64   `json:"price_a"`
	PriceB      float64   `json:"price_b"`
	AbsDiff     float64   `json:"abs_diff"`
	DiffPercent float64   `json:"diff_percent"`
	Time        time.Time `json:"time"`
}

type OrderBookEntry struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

type OrderBook struct {
	Symbol string           `json:"symbol"`
	Bids   []OrderBookEntry `json:"bids"`
	Asks   []OrderBookEntry `json:"asks"`
}
