package domain

import "context"

// Venue is one of the two trading platforms whose prices are compared.
// Symbols passed in are canonical; adapters translate to their raw
// contract names internally.
type Venue interface {
	Name() string

	// CanTrade reports whether API credentials are configured. When
	// false the market-data methods still work but order and account
	// methods will fail.
	CanTrade() bool

	Normalize(raw string) string
	Denormalize(canonical string) string

	GetTickers(ctx context.Context) ([]Ticker, error)
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error)
	GetWalletBalance(ctx context.Context) (float64, error)

	MarketBuy(ctx context.Context, symbol string, qty float64, reduceOnly bool) (*FillResult, error)
	MarketSell(ctx context.Context, symbol string, qty float64, reduceOnly bool) (*FillResult, error)
	GetPosition(ctx context.Context, symbol string) (*VenuePosition, error)

	Subscribe(symbols []string) error
}

// PositionRepository is the open-position ledger, keyed by canonical
// symbol. The monitoring loop goroutine is the single writer; Put and
// Delete must never be called from any other goroutine. Reads may come
// from the web handlers concurrently.
type PositionRepository interface {
	Get(symbol string) (*OpenPosition, bool)
	Put(pos *OpenPosition)
	Delete(symbol string)
	List() []*OpenPosition
	Len() int
}

// TradeRepository defines storage operations for finished trades and
// session summaries.
type TradeRepository interface {
	SaveClosedTrade(ctx context.Context, trade *ClosedTrade) error
	ListClosedTrades(ctx context.Context, limit int) ([]*ClosedTrade, error)
	SaveSessionReport(ctx context.Context, report *SessionReport) error
}

type EventKind string

const (
	EventEntry EventKind = "entry"
	EventExit  EventKind = "exit"
)

// Notifier delivers fire-and-forget trade event notifications.
// Implementations must never block the caller and must swallow
// delivery failures (logging them is enough).
type Notifier interface {
	Notify(ctx context.Context, kind EventKind, text string)
}
