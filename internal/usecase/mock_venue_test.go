package usecase_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/vitos/crypto_spread_arb/internal/domain"
)

type mockOrder struct {
	Symbol     string
	Qty        float64
	ReduceOnly bool
}

// MockVenue is a scriptable venue shared by the usecase tests. Raw and
// canonical symbols are identical for simplicity.
type MockVenue struct {
	VenueName string
	Auth      bool

	Tickers    []domain.Ticker
	TickersErr error

	Prices   map[string]float64 // symbol -> current price
	PriceErr error

	Balance    float64
	BalanceErr error

	Book    *domain.OrderBook
	BookErr error

	Position    *domain.VenuePosition
	PositionErr error

	FillPrice float64 // reported on fills; 0 = not reported
	BuyErr    error
	SellErr   error

	mu         sync.Mutex
	BuyCalls   []mockOrder
	SellCalls  []mockOrder
	Subscribed []string
}

func (m *MockVenue) Name() string                  { return m.VenueName }
func (m *MockVenue) CanTrade() bool                { return m.Auth }
func (m *MockVenue) Normalize(raw string) string   { return raw }
func (m *MockVenue) Denormalize(c string) string   { return c }
func (m *MockVenue) Subscribe(ss []string) error   { m.Subscribed = append(m.Subscribed, ss...); return nil }

func (m *MockVenue) GetTickers(ctx context.Context) ([]domain.Ticker, error) {
	return m.Tickers, m.TickersErr
}

func (m *MockVenue) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if m.PriceErr != nil {
		return 0, m.PriceErr
	}
	price, ok := m.Prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return price, nil
}

func (m *MockVenue) GetOrderBook(ctx context.Context, symbol string, depth int) (*domain.OrderBook, error) {
	if m.BookErr != nil {
		return nil, m.BookErr
	}
	if m.Book != nil {
		return m.Book, nil
	}
	return &domain.OrderBook{Symbol: symbol}, nil
}

func (m *MockVenue) GetWalletBalance(ctx context.Context) (float64, error) {
	return m.Balance, m.BalanceErr
}

func (m *MockVenue) MarketBuy(ctx context.Context, symbol string, qty float64, reduceOnly bool) (*domain.FillResult, error) {
	m.mu.Lock()
	m.BuyCalls = append(m.BuyCalls, mockOrder{symbol, qty, reduceOnly})
	m.mu.Unlock()
	if m.BuyErr != nil {
		return nil, m.BuyErr
	}
	return &domain.FillResult{OrderID: "buy-1", Symbol: symbol, Side: domain.SideLong, Qty: qty, FillPrice: m.FillPrice}, nil
}

func (m *MockVenue) MarketSell(ctx context.Context, symbol string, qty float64, reduceOnly bool) (*domain.FillResult, error) {
	m.mu.Lock()
	m.SellCalls = append(m.SellCalls, mockOrder{symbol, qty, reduceOnly})
	m.mu.Unlock()
	if m.SellErr != nil {
		return nil, m.SellErr
	}
	return &domain.FillResult{OrderID: "sell-1", Symbol: symbol, Side: domain.SideShort, Qty: qty, FillPrice: m.FillPrice}, nil
}

func (m *MockVenue) GetPosition(ctx context.Context, symbol string) (*domain.VenuePosition, error) {
	if m.PositionErr != nil {
		return nil, m.PositionErr
	}
	return m.Position, nil
}

// MockTradeRepo records persisted trades and reports in memory.
type MockTradeRepo struct {
	mu      sync.Mutex
	Trades  []*domain.ClosedTrade
	Reports []*domain.SessionReport
	SaveErr error
}

func (r *MockTradeRepo) SaveClosedTrade(ctx context.Context, t *domain.ClosedTrade) error {
	if r.SaveErr != nil {
		return r.SaveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Trades = append(r.Trades, t)
	return nil
}

func (r *MockTradeRepo) ListClosedTrades(ctx context.Context, limit int) ([]*domain.ClosedTrade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.ClosedTrade(nil), r.Trades...), nil
}

func (r *MockTradeRepo) SaveSessionReport(ctx context.Context, report *domain.SessionReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Reports = append(r.Reports, report)
	return nil
}

type NopNotifier struct {
	mu       sync.Mutex
	Messages []string
}

func (n *NopNotifier) Notify(ctx context.Context, kind domain.EventKind, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Messages = append(n.Messages, string(kind)+": "+text)
}
