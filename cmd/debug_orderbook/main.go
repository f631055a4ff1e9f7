package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/vitos/crypto_spread_arb/internal/domain"
	"github.com/vitos/crypto_spread_arb/internal/infrastructure/exchange"
	"github.com/vitos/crypto_spread_arb/internal/usecase"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	coin := "BTC"
	if len(os.Args) > 1 {
		coin = os.Args[1]
	}
	depth := 20

	logger := zap.NewNop()
	bybit := exchange.NewBybitVenue(
		os.Getenv("BYBIT_API_KEY"), os.Getenv("BYBIT_API_SECRET"),
		exchange.BybitBaseURL, exchange.BybitWSURL, logger)
	gate := exchange.NewGateVenue(
		os.Getenv("GATE_API_KEY"), os.Getenv("GATE_API_SECRET"),
		exchange.GateBaseURL, exchange.GateWSURL, logger)

	ctx := context.Background()

	fmt.Printf("Fetching Order Book for %s on Bybit...\n", bybit.Denormalize(coin))
	bookA, err := bybit.GetOrderBook(ctx, coin, depth)
	if err != nil {
		log.Fatalf("Error fetching Bybit order book: %v", err)
	}
	printBook(bookA)

	fmt.Printf("\nFetching Order Book for %s on Gate.io...\n", gate.Denormalize(coin))
	bookB, err := gate.GetOrderBook(ctx, coin, depth)
	if err != nil {
		log.Fatalf("Error fetching Gate.io order book: %v", err)
	}
	printBook(bookB)

	// Depth available to a bybit-buy / gateio-sell pair
	report := usecase.LiquidityReport{
		Symbol:    coin,
		BuyVenue:  bybit.Name(),
		SellVenue: gate.Name(),
		AskDepth:  usecase.SumDepth(bookA.Asks, depth),
		BidDepth:  usecase.SumDepth(bookB.Bids, depth),
		Levels:    depth,
	}
	fmt.Printf("\nTop-%d depth (buy bybit / sell gateio): asks=%.4f bids=%.4f\n",
		report.Levels, report.AskDepth, report.BidDepth)
}

func printBook(ob *domain.OrderBook) {
	fmt.Printf("Order Book: %d Bids, %d Asks\n", len(ob.Bids), len(ob.Asks))
	if len(ob.Bids) > 0 {
		fmt.Printf("Best Bid: %.4f (Size: %.4f)\n", ob.Bids[0].Price, ob.Bids[0].Size)
	}
	if len(ob.Asks) > 0 {
		fmt.Printf("Best Ask: %.4f (Size: %.4f)\n", ob.Asks[0].Price, ob.Asks[0].Size)
	}
}
