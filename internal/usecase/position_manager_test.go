package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_spread_arb/internal/domain"
	"github.com/vitos/crypto_spread_arb/internal/usecase"
	"go.uber.org/zap"
)

func newTestManager(venueA, venueB *MockVenue) (*usecase.PositionManager, *usecase.PositionBook, *MockTradeRepo, *NopNotifier) {
	book := usecase.NewPositionBook()
	trades := &MockTradeRepo{}
	notifier := &NopNotifier{}
	cfg := usecase.PositionManagerConfig{
		PositionPct:      0.1,
		MinOrderNotional: 10,
		FeeRateA:         0.001,
		FeeRateB:         0.001,
		WatchInterval:    5 * time.Millisecond,
		LiquidityDepth:   5,
	}
	pm := usecase.NewPositionManager(venueA, venueB, book, trades, notifier, cfg, zap.NewNop())
	return pm, book, trades, notifier
}

func tradingVenue(name string, balance float64) *MockVenue {
	return &MockVenue{VenueName: name, Auth: true, Balance: balance}
}

func sampleAt(symbol string, priceA, priceB float64) *domain.DivergenceSample {
	diff := priceA - priceB
	if diff < 0 {
		diff = -diff
	}
	return &domain.DivergenceSample{
		Symbol:      symbol,
		PriceA:      priceA,
		PriceB:      priceB,
		AbsDiff:     diff,
		DiffPercent: diff / priceA * 100,
		Time:        time.Now(),
	}
}

func TestTryEnterDirectionRule(t *testing.T) {
	venueA := tradingVenue("bybit", 1000)
	venueB := tradingVenue("gateio", 1000)
	pm, book, _, _ := newTestManager(venueA, venueB)

	// A cheaper than B: buy on A, short on B.
	err := pm.TryEnter(context.Background(), sampleAt("BTC", 100, 102))
	require.NoError(t, err)

	require.Len(t, venueA.BuyCalls, 1)
	require.Len(t, venueB.SellCalls, 1)
	assert.Empty(t, venueA.SellCalls)
	assert.Empty(t, venueB.BuyCalls)
	assert.False(t, venueA.BuyCalls[0].ReduceOnly)

	pos, ok := book.Get("BTC")
	require.True(t, ok)
	assert.Equal(t, "bybit", pos.BuyVenue)
	assert.Equal(t, "gateio", pos.SellVenue)
}

func TestTryEnterDirectionRuleReversed(t *testing.T) {
	venueA := tradingVenue("bybit", 1000)
	venueB := tradingVenue("gateio", 1000)
	pm, book, _, _ := newTestManager(venueA, venueB)

	// B cheaper than A: buy on B, short on A.
	err := pm.TryEnter(context.Background(), sampleAt("BTC", 102, 100))
	require.NoError(t, err)

	require.Len(t, venueB.BuyCalls, 1)
	require.Len(t, venueA.SellCalls, 1)

	pos, ok := book.Get("BTC")
	require.True(t, ok)
	assert.Equal(t, "gateio", pos.BuyVenue)
	assert.Equal(t, "bybit", pos.SellVenue)
}

func TestTryEnterAtMostOnePosition(t *testing.T) {
	venueA := tradingVenue("bybit", 1000)
	venueB := tradingVenue("gateio", 1000)
	pm, book, _, _ := newTestManager(venueA, venueB)

	book.Put(&domain.OpenPosition{Symbol: "BTC", BuyVenue: "bybit", SellVenue: "gateio", Quantity: 1})

	err := pm.TryEnter(context.Background(), sampleAt("BTC", 100, 102))
	require.NoError(t, err)
	assert.Empty(t, venueA.BuyCalls, "second entry for an open symbol must not submit orders")
	assert.Empty(t, venueB.SellCalls)
}

func TestTryEnterEqualPricesSkips(t *testing.T) {
	venueA := tradingVenue("bybit", 1000)
	venueB := tradingVenue("gateio", 1000)
	pm, book, _, _ := newTestManager(venueA, venueB)

	err := pm.TryEnter(context.Background(), sampleAt("BTC", 100, 100))
	require.NoError(t, err)
	assert.Empty(t, venueA.BuyCalls)
	assert.Empty(t, venueB.SellCalls)
	assert.Equal(t, 0, book.Len())
}

func TestTryEnterAuthMissingNoOp(t *testing.T) {
	venueA := tradingVenue("bybit", 1000)
	venueB := &MockVenue{VenueName: "gateio", Auth: false, Balance: 1000}
	pm, book, _, _ := newTestManager(venueA, venueB)

	for i := 0; i < 3; i++ {
		err := pm.TryEnter(context.Background(), sampleAt("BTC", 100, 102))
		require.NoError(t, err)
	}
	assert.Empty(t, venueA.BuyCalls)
	assert.Empty(t, venueB.SellCalls)
	assert.Equal(t, 0, book.Len())
}

func TestTryEnterSizing(t *testing.T) {
	// Collateral = min(1000, 800) = 800; notional = 10% = 80; qty = 80/100.
	venueA := tradingVenue("bybit", 1000)
	venueB := tradingVenue("gateio", 800)
	pm, _, _, _ := newTestManager(venueA, venueB)

	err := pm.TryEnter(context.Background(), sampleAt("BTC", 100, 102))
	require.NoError(t, err)
	require.Len(t, venueA.BuyCalls, 1)
	assert.InDelta(t, 0.8, venueA.BuyCalls[0].Qty, 1e-9)
	assert.InDelta(t, 0.8, venueB.SellCalls[0].Qty, 1e-9)
}

func TestTryEnterSizingClampedToMinNotional(t *testing.T) {
	// 10% of 50 = 5, below the 10 USDT minimum: bumped to 10 -> qty 0.1.
	venueA := tradingVenue("bybit", 50)
	venueB := tradingVenue("gateio", 50)
	pm, _, _, _ := newTestManager(venueA, venueB)

	err := pm.TryEnter(context.Background(), sampleAt("BTC", 100, 102))
	require.NoError(t, err)
	require.Len(t, venueA.BuyCalls, 1)
	assert.InDelta(t, 0.1, venueA.BuyCalls[0].Qty, 1e-9)
}

func TestTryEnterCollateralBelowMinimumSkips(t *testing.T) {
	venueA := tradingVenue("bybit", 5)
	venueB := tradingVenue("gateio", 5)
	pm, book, _, _ := newTestManager(venueA, venueB)

	err := pm.TryEnter(context.Background(), sampleAt("BTC", 100, 102))
	require.NoError(t, err)
	assert.Empty(t, venueA.BuyCalls)
	assert.Equal(t, 0, book.Len())
}

func TestTryEnterBalanceErrorPropagates(t *testing.T) {
	venueA := tradingVenue("bybit", 1000)
	venueA.BalanceErr = errors.New("balance endpoint down")
	venueB := tradingVenue("gateio", 1000)
	pm, book, _, _ := newTestManager(venueA, venueB)

	err := pm.TryEnter(context.Background(), sampleAt("BTC", 100, 102))
	require.Error(t, err)
	assert.Empty(t, venueA.BuyCalls)
	assert.Equal(t, 0, book.Len())
}

func TestTryEnterLegFailureNoRollbackNoPosition(t *testing.T) {
	venueA := tradingVenue("bybit", 1000)
	venueB := tradingVenue("gateio", 1000)
	venueB.SellErr = errors.New("insufficient margin")
	pm, book, _, notifier := newTestManager(venueA, venueB)

	err := pm.TryEnter(context.Background(), sampleAt("BTC", 100, 102))
	require.Error(t, err)

	// Both legs were attempted; the surviving buy leg is not rolled back.
	assert.Len(t, venueA.BuyCalls, 1)
	assert.Len(t, venueB.SellCalls, 1)
	assert.Empty(t, venueA.SellCalls, "no rollback order on the surviving leg")
	assert.Equal(t, 0, book.Len(), "no position recorded on a failed entry")
	require.NotEmpty(t, notifier.Messages)
	assert.Contains(t, notifier.Messages[0], "Entry FAILED for BTC")
	assert.Contains(t, notifier.Messages[0], "insufficient margin")
	assert.Contains(t, notifier.Messages[0], "; no rollback, check venues")
}

func TestTryEnterConfirmedFillPricesRecorded(t *testing.T) {
	venueA := tradingVenue("bybit", 1000)
	venueA.Position = &domain.VenuePosition{Symbol: "BTC", Side: domain.SideLong, Size: 1, AvgEntryPrice: 100.05}
	venueB := tradingVenue("gateio", 1000)
	venueB.Position = &domain.VenuePosition{Symbol: "BTC", Side: domain.SideShort, Size: 1, AvgEntryPrice: 101.95}
	pm, book, _, _ := newTestManager(venueA, venueB)

	err := pm.TryEnter(context.Background(), sampleAt("BTC", 100, 102))
	require.NoError(t, err)

	pos, ok := book.Get("BTC")
	require.True(t, ok)
	assert.Equal(t, 100.05, pos.EntryPriceA, "confirmed fill, not the snapshot price")
	assert.Equal(t, 101.95, pos.EntryPriceB)
}

func TestTryEnterFillConfirmationFallsBackToSnapshot(t *testing.T) {
	venueA := tradingVenue("bybit", 1000)
	venueA.PositionErr = errors.New("position query failed")
	venueB := tradingVenue("gateio", 1000) // Position nil: nothing to confirm
	pm, book, _, _ := newTestManager(venueA, venueB)

	err := pm.TryEnter(context.Background(), sampleAt("BTC", 100, 102))
	require.NoError(t, err)

	pos, ok := book.Get("BTC")
	require.True(t, ok)
	assert.Equal(t, 100.0, pos.EntryPriceA, "query failure falls back to snapshot price")
	assert.Equal(t, 102.0, pos.EntryPriceB, "empty query falls back to snapshot price")
}

func openPosition() *domain.OpenPosition {
	return &domain.OpenPosition{
		Symbol:      "BTC",
		BuyVenue:    "bybit",
		SellVenue:   "gateio",
		EntryPriceA: 100,
		EntryPriceB: 102,
		Quantity:    2,
		OpenedAt:    time.Now(),
	}
}

func TestCheckForReversalNotYetReversed(t *testing.T) {
	venueA := tradingVenue("bybit", 1000)
	venueB := tradingVenue("gateio", 1000)
	pm, book, _, _ := newTestManager(venueA, venueB)

	pos := openPosition()
	book.Put(pos)

	// Same ordering as entry.
	trade, err := pm.CheckForReversal(context.Background(), pos, 100.5, 101.5)
	require.NoError(t, err)
	assert.Nil(t, trade)

	// Zero crossing: equality is "not yet reversed".
	trade, err = pm.CheckForReversal(context.Background(), pos, 101.5, 101.5)
	require.NoError(t, err)
	assert.Nil(t, trade)

	assert.Equal(t, 1, book.Len())
	assert.Empty(t, venueA.SellCalls)
}

func TestCheckForReversalClosesAndSettles(t *testing.T) {
	venueA := tradingVenue("bybit", 1000)
	venueB := tradingVenue("gateio", 1000)
	pm, book, trades, _ := newTestManager(venueA, venueB)

	pos := openPosition()
	book.Put(pos)

	trade, err := pm.CheckForReversal(context.Background(), pos, 103, 101)
	require.NoError(t, err)
	require.NotNil(t, trade)

	// Close orders: reduce-only, opposite sides, full quantity.
	require.Len(t, venueA.SellCalls, 1)
	require.Len(t, venueB.BuyCalls, 1)
	assert.True(t, venueA.SellCalls[0].ReduceOnly)
	assert.True(t, venueB.BuyCalls[0].ReduceOnly)
	assert.Equal(t, 2.0, venueA.SellCalls[0].Qty)

	// Leg A long: (103-100)*2 = 6; leg B short: (102-101)*2 = 2.
	assert.InDelta(t, 8.0, trade.GrossProfit, 1e-9)
	wantFees := (100.0+103.0)*2*0.001 + (102.0+101.0)*2*0.001
	assert.InDelta(t, wantFees, trade.Fees, 1e-9)
	assert.InDelta(t, 8.0-wantFees, trade.NetProfit, 1e-9)
	assert.False(t, trade.CloseFailed)

	assert.Equal(t, 0, book.Len(), "ledger entry removed after close")
	require.Len(t, trades.Trades, 1)
	assert.NotEmpty(t, trades.Trades[0].ID)

	closed, net := pm.Stats()
	assert.Equal(t, 1, closed)
	assert.InDelta(t, trade.NetProfit, net, 1e-9)
}

func TestCheckForReversalShortLegOnVenueA(t *testing.T) {
	venueA := tradingVenue("bybit", 1000)
	venueB := tradingVenue("gateio", 1000)
	pm, book, _, _ := newTestManager(venueA, venueB)

	pos := &domain.OpenPosition{
		Symbol:      "BTC",
		BuyVenue:    "gateio", // B was cheaper at entry
		SellVenue:   "bybit",
		EntryPriceA: 102,
		EntryPriceB: 100,
		Quantity:    1,
		OpenedAt:    time.Now(),
	}
	book.Put(pos)

	trade, err := pm.CheckForReversal(context.Background(), pos, 101, 103)
	require.NoError(t, err)
	require.NotNil(t, trade)

	// Venue A short: (102-101)*1 = 1; venue B long: (103-100)*1 = 3.
	assert.InDelta(t, 4.0, trade.GrossProfit, 1e-9)
	require.Len(t, venueB.SellCalls, 1, "long leg closed on the buy venue")
	require.Len(t, venueA.BuyCalls, 1, "short leg closed on the sell venue")
}

func TestCheckForReversalCloseFailureStillRemoves(t *testing.T) {
	venueA := tradingVenue("bybit", 1000)
	venueB := tradingVenue("gateio", 1000)
	venueB.BuyErr = errors.New("close rejected")
	pm, book, trades, _ := newTestManager(venueA, venueB)

	pos := openPosition()
	book.Put(pos)

	trade, err := pm.CheckForReversal(context.Background(), pos, 103, 101)
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.True(t, trade.CloseFailed)
	assert.Equal(t, 0, book.Len(), "entry removed even when a close order failed")
	require.Len(t, trades.Trades, 1)
}

func TestWatchOpenPositionsClosesOnReversal(t *testing.T) {
	venueA := tradingVenue("bybit", 1000)
	venueA.Prices = map[string]float64{"BTC": 103}
	venueB := tradingVenue("gateio", 1000)
	venueB.Prices = map[string]float64{"BTC": 101}
	pm, book, trades, _ := newTestManager(venueA, venueB)

	book.Put(openPosition())

	done := make(chan struct{})
	go func() {
		pm.WatchOpenPositions(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch loop did not terminate after the ledger emptied")
	}
	assert.Equal(t, 0, book.Len())
	assert.Len(t, trades.Trades, 1)
}

func TestWatchOpenPositionsRetriesOnPollFailure(t *testing.T) {
	venueA := tradingVenue("bybit", 1000)
	venueA.PriceErr = errors.New("timeout")
	venueB := tradingVenue("gateio", 1000)
	pm, book, _, _ := newTestManager(venueA, venueB)

	book.Put(openPosition())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	pm.WatchOpenPositions(ctx)

	// Poll failures never close the position; the loop exits on ctx only.
	assert.Equal(t, 1, book.Len())
	assert.Empty(t, venueA.SellCalls)
}
