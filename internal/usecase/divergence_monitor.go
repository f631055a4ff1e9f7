package usecase

import (
	"sync"
	"time"

	"github.com/vitos/crypto_spread_arb/internal/domain"
	"go.uber.org/zap"
)

// DivergenceMonitor owns the MonitoringSession state: the running
// maximum divergence and the per-tick history. Tick is called by the
// scanning loop only; the mutex exists for the read-only status
// handlers.
type DivergenceMonitor struct {
	matcher        *Matcher
	minVolume      float64
	pauseThreshold float64 // percent
	logger         *zap.Logger

	mu         sync.RWMutex
	session    domain.MonitoringSession
	lastRanked []domain.MatchedPair
}

func NewDivergenceMonitor(matcher *Matcher, minVolume, pauseThreshold float64, logger *zap.Logger) *DivergenceMonitor {
	return &DivergenceMonitor{
		matcher:        matcher,
		minVolume:      minVolume,
		pauseThreshold: pauseThreshold,
		logger:         logger,
		session:        domain.MonitoringSession{StartTime: time.Now()},
	}
}

// Tick matches and ranks one pair of snapshots, records the top sample
// and reports whether it crossed the pause threshold. The running
// maximum is replaced only by a strictly greater DiffPercent, so ties
// keep the first-seen sample.
func (m *DivergenceMonitor) Tick(tickersA, tickersB []domain.Ticker) (*domain.DivergenceSample, bool) {
	pairs := FilterByVolume(m.matcher.Match(tickersA, tickersB), m.minVolume)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.session.TickCount++
	m.lastRanked = pairs

	if len(pairs) == 0 {
		return nil, false
	}

	top := pairs[0]
	absDiff := top.PriceA - top.PriceB
	if absDiff < 0 {
		absDiff = -absDiff
	}
	sample := domain.DivergenceSample{
		Symbol:      top.Symbol,
		PriceA:      top.PriceA,
		PriceB:      top.PriceB,
		AbsDiff:     absDiff,
		DiffPercent: top.DiffPercent,
		Time:        time.Now(),
	}
	m.session.Samples = append(m.session.Samples, sample)

	if m.session.MaxSample == nil || sample.DiffPercent > m.session.MaxSample.DiffPercent {
		s := sample
		m.session.MaxSample = &s
		m.logger.Info("New session maximum divergence",
			zap.String("symbol", s.Symbol),
			zap.Float64("diff_percent", s.DiffPercent))
	}

	return &sample, sample.DiffPercent > m.pauseThreshold
}

// Session returns a copy of the current session state.
func (m *DivergenceMonitor) Session() domain.MonitoringSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.session
	if m.session.MaxSample != nil {
		max := *m.session.MaxSample
		s.MaxSample = &max
	}
	s.Samples = append([]domain.DivergenceSample(nil), m.session.Samples...)
	return s
}

// TopPairs returns up to n entries from the last tick's ranking.
func (m *DivergenceMonitor) TopPairs(n int) []domain.MatchedPair {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n > len(m.lastRanked) {
		n = len(m.lastRanked)
	}
	return append([]domain.MatchedPair(nil), m.lastRanked[:n]...)
}

// AverageDiffPercent is the arithmetic mean over the session history.
func (m *DivergenceMonitor) AverageDiffPercent() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.AverageDiffPercent()
}
