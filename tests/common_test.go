package tests

import (
	"context"
	"fmt"

	"github.com/vitos/crypto_spread_arb/internal/domain"
)

type OrderCall struct {
	Symbol     string
	Qty        float64
	ReduceOnly bool
}

// ScenarioVenue is a scriptable venue for end-to-end scenarios. Prices
// are keyed by canonical symbol and can be moved between ticks; market
// orders fill synchronously at the current price.
type ScenarioVenue struct {
	VenueName   string
	RawSuffix   string // appended to the canonical symbol for raw names
	Prices      map[string]float64
	Volumes     map[string]float64
	Balance     float64
	CanTradeVal bool

	Buys  []OrderCall
	Sells []OrderCall

	// OnPricePoll runs before every GetCurrentPrice lookup, letting a
	// scenario move the market while the watch loop is polling.
	OnPricePoll func(symbol string)
}

func NewScenarioVenue(name, rawSuffix string, balance float64) *ScenarioVenue {
	return &ScenarioVenue{
		VenueName:   name,
		RawSuffix:   rawSuffix,
		Prices:      make(map[string]float64),
		Volumes:     make(map[string]float64),
		Balance:     balance,
		CanTradeVal: true,
	}
}

func (v *ScenarioVenue) SetMarket(symbol string, price, volume float64) {
	v.Prices[symbol] = price
	v.Volumes[symbol] = volume
}

func (v *ScenarioVenue) Name() string { return v.VenueName }

func (v *ScenarioVenue) CanTrade() bool { return v.CanTradeVal }

func (v *ScenarioVenue) Normalize(raw string) string {
	n := len(raw) - len(v.RawSuffix)
	if n <= 0 || raw[n:] != v.RawSuffix {
		return ""
	}
	return raw[:n]
}

func (v *ScenarioVenue) Denormalize(canonical string) string {
	return canonical + v.RawSuffix
}

func (v *ScenarioVenue) GetTickers(ctx context.Context) ([]domain.Ticker, error) {
	tickers := make([]domain.Ticker, 0, len(v.Prices))
	for symbol, price := range v.Prices {
		tickers = append(tickers, domain.Ticker{
			Symbol:    v.Denormalize(symbol),
			LastPrice: price,
			Volume24h: v.Volumes[symbol],
		})
	}
	return tickers, nil
}

func (v *ScenarioVenue) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if v.OnPricePoll != nil {
		v.OnPricePoll(symbol)
	}
	price, ok := v.Prices[symbol]
	if !ok {
		return 0, fmt.Errorf("%s: no price for %s", v.VenueName, symbol)
	}
	return price, nil
}

func (v *ScenarioVenue) GetOrderBook(ctx context.Context, symbol string, depth int) (*domain.OrderBook, error) {
	price := v.Prices[symbol]
	return &domain.OrderBook{
		Symbol: v.Denormalize(symbol),
		Bids:   []domain.OrderBookEntry{{Price: price * 0.999, Size: 1000}},
		Asks:   []domain.OrderBookEntry{{Price: price * 1.001, Size: 1000}},
	}, nil
}

func (v *ScenarioVenue) GetWalletBalance(ctx context.Context) (float64, error) {
	return v.Balance, nil
}

func (v *ScenarioVenue) MarketBuy(ctx context.Context, symbol string, qty float64, reduceOnly bool) (*domain.FillResult, error) {
	v.Buys = append(v.Buys, OrderCall{Symbol: symbol, Qty: qty, ReduceOnly: reduceOnly})
	return &domain.FillResult{
		OrderID:   fmt.Sprintf("%s-buy-%d", v.VenueName, len(v.Buys)),
		Symbol:    v.Denormalize(symbol),
		Side:      domain.SideLong,
		Qty:       qty,
		FillPrice: v.Prices[symbol],
	}, nil
}

func (v *ScenarioVenue) MarketSell(ctx context.Context, symbol string, qty float64, reduceOnly bool) (*domain.FillResult, error) {
	v.Sells = append(v.Sells, OrderCall{Symbol: symbol, Qty: qty, ReduceOnly: reduceOnly})
	return &domain.FillResult{
		OrderID:   fmt.Sprintf("%s-sell-%d", v.VenueName, len(v.Sells)),
		Symbol:    v.Denormalize(symbol),
		Side:      domain.SideShort,
		Qty:       qty,
		FillPrice: v.Prices[symbol],
	}, nil
}

func (v *ScenarioVenue) GetPosition(ctx context.Context, symbol string) (*domain.VenuePosition, error) {
	return nil, nil
}

func (v *ScenarioVenue) Subscribe(symbols []string) error { return nil }
