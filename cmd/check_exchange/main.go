package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/vitos/crypto_spread_arb/internal/infrastructure/exchange"
	"github.com/vitos/crypto_spread_arb/internal/usecase"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	log := zap.NewNop()

	bybit := exchange.NewBybitVenue(
		os.Getenv("BYBIT_API_KEY"), os.Getenv("BYBIT_API_SECRET"),
		exchange.BybitBaseURL, exchange.BybitWSURL, log)
	gate := exchange.NewGateVenue(
		os.Getenv("GATE_API_KEY"), os.Getenv("GATE_API_SECRET"),
		exchange.GateBaseURL, exchange.GateWSURL, log)

	ctx := context.Background()

	// 1. Public endpoints (price). The adapters take the canonical
	// symbol and translate to their raw contract names themselves.
	fmt.Println("Testing Bybit Interaction...")
	priceA, err := bybit.GetCurrentPrice(ctx, "BTC")
	if err != nil {
		fmt.Printf("❌ Failed to get Bybit price: %v\n", err)
	} else {
		fmt.Printf("✅ Bybit Price (%s): %f\n", bybit.Denormalize("BTC"), priceA)
	}

	fmt.Println("\nTesting Gate.io Interaction...")
	priceB, err := gate.GetCurrentPrice(ctx, "BTC")
	if err != nil {
		fmt.Printf("❌ Failed to get Gate.io price: %v\n", err)
	} else {
		fmt.Printf("✅ Gate.io Price (%s): %f\n", gate.Denormalize("BTC"), priceB)
	}

	// 2. Private endpoints (balance), only when keys are present
	if bybit.CanTrade() {
		bal, err := bybit.GetWalletBalance(ctx)
		if err != nil {
			fmt.Printf("❌ Failed to get Bybit balance: %v\n", err)
		} else {
			fmt.Printf("✅ Bybit Available Balance: %.2f USDT\n", bal)
		}
	} else {
		fmt.Println("⚠️ No Bybit API keys, skipping balance check")
	}
	if gate.CanTrade() {
		bal, err := gate.GetWalletBalance(ctx)
		if err != nil {
			fmt.Printf("❌ Failed to get Gate.io balance: %v\n", err)
		} else {
			fmt.Printf("✅ Gate.io Available Balance: %.2f USDT\n", bal)
		}
	} else {
		fmt.Println("⚠️ No Gate.io API keys, skipping balance check")
	}

	// 3. Matched universe snapshot
	fmt.Println("\nFetching matched universe...")
	tickersA, err := bybit.GetTickers(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to get Bybit tickers: %v\n", err)
		os.Exit(1)
	}
	tickersB, err := gate.GetTickers(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to get Gate.io tickers: %v\n", err)
		os.Exit(1)
	}

	matcher := usecase.NewMatcher(bybit.Normalize, gate.Normalize, log)
	pairs := matcher.Match(tickersA, tickersB)
	fmt.Printf("✅ Matched %d symbols (bybit=%d, gateio=%d)\n", len(pairs), len(tickersA), len(tickersB))

	top := pairs
	if len(top) > 10 {
		top = top[:10]
	}
	fmt.Println("\nTop divergences:")
	for _, p := range top {
		fmt.Printf("  %-8s bybit=%.6f gateio=%.6f diff=%.3f%%\n",
			p.Symbol, p.PriceA, p.PriceB, p.DiffPercent)
	}
}
