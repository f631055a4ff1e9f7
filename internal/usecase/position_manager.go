package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/crypto_spread_arb/internal/domain"
	"go.uber.org/zap"
)

type PositionManagerConfig struct {
	PositionPct      float64       `json:"position_pct"`       // fraction of collateral per trade
	MinOrderNotional float64       `json:"min_order_notional"` // USDT
	FeeRateA         float64       `json:"fee_rate_a"`         // taker fee, venue A
	FeeRateB         float64       `json:"fee_rate_b"`         // taker fee, venue B
	WatchInterval    time.Duration `json:"watch_interval"`
	LiquidityDepth   int           `json:"liquidity_depth"` // top-N levels for the advisory check
}

// PositionManager owns the position lifecycle: entry direction, order
// submission, fill confirmation, reversal detection, close and PnL.
// TryEnter, WatchOpenPositions and CheckForReversal run on the
// monitoring loop goroutine only.
type PositionManager struct {
	venueA   domain.Venue
	venueB   domain.Venue
	book     domain.PositionRepository
	trades   domain.TradeRepository
	notifier domain.Notifier
	cfg      PositionManagerConfig
	logger   *zap.Logger

	authWarned bool

	mu           sync.Mutex
	tradesClosed int
	netProfit    float64
}

func NewPositionManager(
	venueA, venueB domain.Venue,
	book domain.PositionRepository,
	trades domain.TradeRepository,
	notifier domain.Notifier,
	cfg PositionManagerConfig,
	logger *zap.Logger,
) *PositionManager {
	if cfg.LiquidityDepth <= 0 {
		cfg.LiquidityDepth = 20
	}
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = time.Second
	}
	return &PositionManager{
		venueA:   venueA,
		venueB:   venueB,
		book:     book,
		trades:   trades,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// Book exposes the ledger for the status handlers.
func (pm *PositionManager) Book() domain.PositionRepository { return pm.book }

// Stats returns the number of trades closed and the accumulated net
// profit since startup.
func (pm *PositionManager) Stats() (int, float64) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.tradesClosed, pm.netProfit
}

// TryEnter opens the two offsetting legs for the given divergence: buy
// on the cheaper venue, short on the dearer one. It is a no-op when a
// position already exists for the symbol, when the prices are equal, or
// when either venue has no credentials. The two submissions are
// independent; a failed leg is reported, the surviving leg is left
// alone and no position is recorded.
func (pm *PositionManager) TryEnter(ctx context.Context, sample *domain.DivergenceSample) error {
	if _, exists := pm.book.Get(sample.Symbol); exists {
		pm.logger.Debug("Position already open, skipping entry", zap.String("symbol", sample.Symbol))
		return nil
	}
	if sample.PriceA == sample.PriceB {
		pm.logger.Debug("Prices equal, direction ambiguous, skipping entry", zap.String("symbol", sample.Symbol))
		return nil
	}
	if !pm.venueA.CanTrade() || !pm.venueB.CanTrade() {
		if !pm.authWarned {
			pm.authWarned = true
			pm.logger.Warn("Trading disabled: venue credentials missing, running scan-only",
				zap.Bool("venue_a_auth", pm.venueA.CanTrade()),
				zap.Bool("venue_b_auth", pm.venueB.CanTrade()))
		}
		return nil
	}

	buyVenue, sellVenue := pm.venueA, pm.venueB
	buyPrice := sample.PriceA
	if sample.PriceA > sample.PriceB {
		buyVenue, sellVenue = pm.venueB, pm.venueA
		buyPrice = sample.PriceB
	}

	qty, err := pm.orderQuantity(ctx, buyPrice)
	if err != nil {
		return fmt.Errorf("sizing %s: %w", sample.Symbol, err)
	}
	if qty <= 0 {
		pm.logger.Info("Collateral below minimum order notional, skipping entry",
			zap.String("symbol", sample.Symbol))
		return nil
	}

	pm.reportLiquidity(ctx, sample.Symbol, buyVenue, sellVenue, qty)

	pm.logger.Info("Opening position pair",
		zap.String("symbol", sample.Symbol),
		zap.String("buy_venue", buyVenue.Name()),
		zap.String("sell_venue", sellVenue.Name()),
		zap.Float64("price_a", sample.PriceA),
		zap.Float64("price_b", sample.PriceB),
		zap.Float64("diff_percent", sample.DiffPercent),
		zap.Float64("quantity", qty))

	buyFill, buyErr := buyVenue.MarketBuy(ctx, sample.Symbol, qty, false)
	sellFill, sellErr := sellVenue.MarketSell(ctx, sample.Symbol, qty, false)

	if buyErr != nil || sellErr != nil {
		if buyErr != nil {
			pm.logger.Error("Buy leg failed", zap.String("venue", buyVenue.Name()), zap.Error(buyErr))
		}
		if sellErr != nil {
			pm.logger.Error("Sell leg failed", zap.String("venue", sellVenue.Name()), zap.Error(sellErr))
		}
		pm.notifier.Notify(ctx, domain.EventEntry, fmt.Sprintf(
			"Entry FAILED for %s: buy(%s) err=%v, sell(%s) err=%v; no rollback, check venues",
			sample.Symbol, buyVenue.Name(), buyErr, sellVenue.Name(), sellErr))
		return fmt.Errorf("entry %s: buy=%v sell=%v", sample.Symbol, buyErr, sellErr)
	}

	buyEntry := pm.confirmEntryPrice(ctx, buyVenue, sample.Symbol, buyFill, pm.snapshotPrice(sample, buyVenue))
	sellEntry := pm.confirmEntryPrice(ctx, sellVenue, sample.Symbol, sellFill, pm.snapshotPrice(sample, sellVenue))

	entryA, entryB := buyEntry, sellEntry
	if buyVenue.Name() != pm.venueA.Name() {
		entryA, entryB = sellEntry, buyEntry
	}

	pos := &domain.OpenPosition{
		Symbol:      sample.Symbol,
		BuyVenue:    buyVenue.Name(),
		SellVenue:   sellVenue.Name(),
		EntryPriceA: entryA,
		EntryPriceB: entryB,
		Quantity:    qty,
		OpenedAt:    time.Now(),
	}
	pm.book.Put(pos)

	for _, v := range []domain.Venue{pm.venueA, pm.venueB} {
		if err := v.Subscribe([]string{sample.Symbol}); err != nil {
			pm.logger.Warn("Price stream subscribe failed, watch loop will poll REST",
				zap.String("venue", v.Name()), zap.Error(err))
		}
	}

	pm.logger.Info("Position opened",
		zap.String("symbol", pos.Symbol),
		zap.Float64("entry_a", pos.EntryPriceA),
		zap.Float64("entry_b", pos.EntryPriceB),
		zap.Float64("quantity", pos.Quantity))
	pm.notifier.Notify(ctx, domain.EventEntry, fmt.Sprintf(
		"Opened %s: long %s @ %.6f, short %s @ %.6f, qty %.4f (diff %.2f%%)",
		pos.Symbol, pos.BuyVenue, buyEntry, pos.SellVenue, sellEntry, qty, sample.DiffPercent))
	return nil
}

// orderQuantity sizes the trade from the smaller of the two venues'
// available balances: clamp(collateral*pct, [minNotional, collateral]),
// converted to contracts at the buy-leg price. Returns 0 when the
// collateral cannot cover the minimum notional.
func (pm *PositionManager) orderQuantity(ctx context.Context, buyPrice float64) (float64, error) {
	balanceA, err := pm.venueA.GetWalletBalance(ctx)
	if err != nil {
		return 0, fmt.Errorf("venue %s balance: %w", pm.venueA.Name(), err)
	}
	balanceB, err := pm.venueB.GetWalletBalance(ctx)
	if err != nil {
		return 0, fmt.Errorf("venue %s balance: %w", pm.venueB.Name(), err)
	}

	collateral := balanceA
	if balanceB < collateral {
		collateral = balanceB
	}
	if collateral < pm.cfg.MinOrderNotional {
		return 0, nil
	}

	notional := collateral * pm.cfg.PositionPct
	if notional < pm.cfg.MinOrderNotional {
		notional = pm.cfg.MinOrderNotional
	}
	if notional > collateral {
		notional = collateral
	}
	return notional / buyPrice, nil
}

// confirmEntryPrice resolves the recorded entry price for one leg: the
// synchronous fill price when the venue reported one, else the avg
// entry of the venue's position, else the triggering snapshot price.
func (pm *PositionManager) confirmEntryPrice(ctx context.Context, venue domain.Venue, symbol string, fill *domain.FillResult, fallback float64) float64 {
	if fill != nil && fill.FillPrice > 0 {
		return fill.FillPrice
	}
	pos, err := venue.GetPosition(ctx, symbol)
	if err != nil {
		pm.logger.Warn("Fill confirmation failed, recording snapshot price",
			zap.String("venue", venue.Name()),
			zap.String("symbol", symbol),
			zap.Error(err))
		return fallback
	}
	if pos == nil || pos.AvgEntryPrice <= 0 {
		return fallback
	}
	return pos.AvgEntryPrice
}

func (pm *PositionManager) snapshotPrice(sample *domain.DivergenceSample, venue domain.Venue) float64 {
	if venue.Name() == pm.venueA.Name() {
		return sample.PriceA
	}
	return sample.PriceB
}

func (pm *PositionManager) reportLiquidity(ctx context.Context, symbol string, buyVenue, sellVenue domain.Venue, qty float64) {
	report := &LiquidityReport{
		Symbol:       symbol,
		BuyVenue:     buyVenue.Name(),
		SellVenue:    sellVenue.Name(),
		Levels:       pm.cfg.LiquidityDepth,
		WantQuantity: qty,
	}
	if book, err := buyVenue.GetOrderBook(ctx, symbol, pm.cfg.LiquidityDepth); err != nil {
		pm.logger.Warn("Orderbook fetch failed on buy venue", zap.String("venue", buyVenue.Name()), zap.Error(err))
	} else {
		report.AskDepth = SumDepth(book.Asks, pm.cfg.LiquidityDepth)
	}
	if book, err := sellVenue.GetOrderBook(ctx, symbol, pm.cfg.LiquidityDepth); err != nil {
		pm.logger.Warn("Orderbook fetch failed on sell venue", zap.String("venue", sellVenue.Name()), zap.Error(err))
	} else {
		report.BidDepth = SumDepth(book.Bids, pm.cfg.LiquidityDepth)
	}

	pm.logger.Info("Orderbook liquidity (advisory)",
		zap.String("symbol", symbol),
		zap.Float64("ask_depth", report.AskDepth),
		zap.Float64("bid_depth", report.BidDepth),
		zap.Float64("want_quantity", qty),
		zap.Bool("sufficient", report.Sufficient()))
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// CheckForReversal closes the pair when the price ordering between the
// venues has strictly flipped relative to entry. A touch of equality on
// either side does not count. The ledger entry is removed exactly once
// after the close attempt, whether or not the close orders succeeded;
// a failure is carried on the resulting trade for visibility.
func (pm *PositionManager) CheckForReversal(ctx context.Context, pos *domain.OpenPosition, currentPriceA, currentPriceB float64) (*domain.ClosedTrade, error) {
	entrySign := sign(pos.EntryPriceA - pos.EntryPriceB)
	currentSign := sign(currentPriceA - currentPriceB)
	if entrySign == 0 || currentSign == 0 || entrySign == currentSign {
		return nil, nil
	}

	pm.logger.Info("Reversal detected, closing position pair",
		zap.String("symbol", pos.Symbol),
		zap.Float64("current_a", currentPriceA),
		zap.Float64("current_b", currentPriceB))

	buyVenue, sellVenue := pm.legVenues(pos)

	// Close = opposite side on each leg, reduce-only, full quantity.
	longExitFill, longErr := buyVenue.MarketSell(ctx, pos.Symbol, pos.Quantity, true)
	shortExitFill, shortErr := sellVenue.MarketBuy(ctx, pos.Symbol, pos.Quantity, true)

	closeFailed := longErr != nil || shortErr != nil
	if longErr != nil {
		pm.logger.Error("Close failed on long leg", zap.String("venue", buyVenue.Name()), zap.Error(longErr))
	}
	if shortErr != nil {
		pm.logger.Error("Close failed on short leg", zap.String("venue", sellVenue.Name()), zap.Error(shortErr))
	}

	currentFor := func(v domain.Venue) float64 {
		if v.Name() == pm.venueA.Name() {
			return currentPriceA
		}
		return currentPriceB
	}
	longExit := exitPrice(longExitFill, currentFor(buyVenue))
	shortExit := exitPrice(shortExitFill, currentFor(sellVenue))

	exitA, exitB := longExit, shortExit
	if buyVenue.Name() != pm.venueA.Name() {
		exitA, exitB = shortExit, longExit
	}

	trade := pm.settle(pos, exitA, exitB, closeFailed)

	// Exited the trading state either way; the entry must go exactly once.
	pm.book.Delete(pos.Symbol)

	if err := pm.trades.SaveClosedTrade(ctx, trade); err != nil {
		pm.logger.Error("Failed to persist closed trade", zap.Error(err))
	}

	pm.mu.Lock()
	pm.tradesClosed++
	pm.netProfit += trade.NetProfit
	pm.mu.Unlock()

	pm.logger.Info("Position closed",
		zap.String("symbol", trade.Symbol),
		zap.Float64("gross_profit", trade.GrossProfit),
		zap.Float64("fees", trade.Fees),
		zap.Float64("net_profit", trade.NetProfit),
		zap.Bool("close_failed", trade.CloseFailed))
	msg := fmt.Sprintf("Closed %s: net %.4f USDT (gross %.4f, fees %.4f)",
		trade.Symbol, trade.NetProfit, trade.GrossProfit, trade.Fees)
	if trade.CloseFailed {
		msg += " WARNING: a close order failed, check the venue manually"
	}
	pm.notifier.Notify(ctx, domain.EventExit, msg)

	return trade, nil
}

func (pm *PositionManager) legVenues(pos *domain.OpenPosition) (buy, sell domain.Venue) {
	if pos.BuyVenue == pm.venueA.Name() {
		return pm.venueA, pm.venueB
	}
	return pm.venueB, pm.venueA
}

func exitPrice(fill *domain.FillResult, fallback float64) float64 {
	if fill != nil && fill.FillPrice > 0 {
		return fill.FillPrice
	}
	return fallback
}

// settle computes per-leg profit with the sign of each leg's direction
// and subtracts (entry+exit)*qty*feeRate per venue.
func (pm *PositionManager) settle(pos *domain.OpenPosition, exitA, exitB float64, closeFailed bool) *domain.ClosedTrade {
	qty := pos.Quantity

	profitA := (exitA - pos.EntryPriceA) * qty
	profitB := (exitB - pos.EntryPriceB) * qty
	if pos.BuyVenue != pm.venueA.Name() {
		profitA = -profitA // venue A holds the short leg
	} else {
		profitB = -profitB
	}
	gross := profitA + profitB

	fees := (pos.EntryPriceA+exitA)*qty*pm.cfg.FeeRateA +
		(pos.EntryPriceB+exitB)*qty*pm.cfg.FeeRateB

	return &domain.ClosedTrade{
		ID:          uuid.NewString(),
		Symbol:      pos.Symbol,
		BuyVenue:    pos.BuyVenue,
		SellVenue:   pos.SellVenue,
		EntryPriceA: pos.EntryPriceA,
		EntryPriceB: pos.EntryPriceB,
		ExitPriceA:  exitA,
		ExitPriceB:  exitB,
		Quantity:    qty,
		Fees:        fees,
		GrossProfit: gross,
		NetProfit:   gross - fees,
		CloseFailed: closeFailed,
		OpenedAt:    pos.OpenedAt,
		ClosedAt:    time.Now(),
	}
}

// WatchOpenPositions re-polls current prices on a short cadence and
// runs reversal checks for every open symbol until the ledger is empty
// or ctx is cancelled. Poll failures are logged and retried on the next
// cycle.
func (pm *PositionManager) WatchOpenPositions(ctx context.Context) {
	ticker := time.NewTicker(pm.cfg.WatchInterval)
	defer ticker.Stop()

	for pm.book.Len() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, pos := range pm.book.List() {
			currentA, err := pm.venueA.GetCurrentPrice(ctx, pos.Symbol)
			if err != nil {
				pm.logger.Warn("Price poll failed, retrying next cycle",
					zap.String("venue", pm.venueA.Name()),
					zap.String("symbol", pos.Symbol),
					zap.Error(err))
				continue
			}
			currentB, err := pm.venueB.GetCurrentPrice(ctx, pos.Symbol)
			if err != nil {
				pm.logger.Warn("Price poll failed, retrying next cycle",
					zap.String("venue", pm.venueB.Name()),
					zap.String("symbol", pos.Symbol),
					zap.Error(err))
				continue
			}

			if _, err := pm.CheckForReversal(ctx, pos, currentA, currentB); err != nil {
				pm.logger.Error("Reversal check failed",
					zap.String("symbol", pos.Symbol),
					zap.Error(err))
			}
		}
	}
}
