package usecase

import (
	"sort"

	"github.com/vitos/crypto_spread_arb/internal/domain"
	"go.uber.org/zap"
)

// Matcher intersects two venue snapshots by canonical symbol and ranks
// the result by relative divergence. Venue A is the fixed reference
// denominator for DiffPercent across the whole bot.
type Matcher struct {
	normalizeA func(string) string
	normalizeB func(string) string
	logger     *zap.Logger
}

func NewMatcher(normalizeA, normalizeB func(string) string, logger *zap.Logger) *Matcher {
	return &Matcher{
		normalizeA: normalizeA,
		normalizeB: normalizeB,
		logger:     logger,
	}
}

// Match returns every symbol present in both snapshots, sorted by
// DiffPercent descending. Symbols quoted on only one venue are dropped.
// Duplicate raw symbols within one snapshot are last-write-wins.
func (m *Matcher) Match(tickersA, tickersB []domain.Ticker) []domain.MatchedPair {
	byA := m.index(tickersA, m.normalizeA, "A")
	byB := m.index(tickersB, m.normalizeB, "B")

	pairs := make([]domain.MatchedPair, 0, len(byA))
	for symbol, ta := range byA {
		tb, ok := byB[symbol]
		if !ok {
			continue
		}
		if ta.LastPrice <= 0 || tb.LastPrice <= 0 {
			continue
		}
		diff := ta.LastPrice - tb.LastPrice
		if diff < 0 {
			diff = -diff
		}
		pairs = append(pairs, domain.MatchedPair{
			Symbol:      symbol,
			PriceA:      ta.LastPrice,
			PriceB:      tb.LastPrice,
			VolumeA:     ta.Volume24h,
			VolumeB:     tb.Volume24h,
			DiffPercent: diff / ta.LastPrice * 100,
		})
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].DiffPercent > pairs[j].DiffPercent
	})
	return pairs
}

func (m *Matcher) index(tickers []domain.Ticker, normalize func(string) string, venue string) map[string]domain.Ticker {
	out := make(map[string]domain.Ticker, len(tickers))
	skipped := 0
	for _, t := range tickers {
		symbol := normalize(t.Symbol)
		if symbol == "" {
			skipped++
			continue
		}
		out[symbol] = t
	}
	if skipped > 0 {
		m.logger.Debug("Skipped unmappable snapshot entries",
			zap.String("venue", venue),
			zap.Int("skipped", skipped))
	}
	return out
}
