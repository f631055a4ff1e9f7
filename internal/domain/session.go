package domain

import "time"

// MonitoringSession accumulates divergence observations over one run of
// the scanning loop. Samples is append-only; MaxSample only moves on a
// strictly greater DiffPercent, so the first occurrence of a value wins
// ties.
type MonitoringSession struct {
	StartTime time.Time          `json:"start_time"`
	TickCount int                `json:"tick_count"`
	MaxSample *DivergenceSample  `json:"max_sample,omitempty"`
	Samples   []DivergenceSample `json:"samples"`
}

// AverageDiffPercent is the arithmetic mean over all recorded samples.
func (s *MonitoringSession) AverageDiffPercent() float64 {
	if len(s.Samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, sample := range s.Samples {
		sum += sample.DiffPercent
	}
	return sum / float64(len(s.Samples))
}

// SessionReport is the persisted end-of-session summary.
type SessionReport struct {
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	TickCount      int       `json:"tick_count"`
	MaxSymbol      string    `json:"max_symbol"`
	MaxDiffPercent float64   `json:"max_diff_percent"`
	AvgDiffPercent float64   `json:"avg_diff_percent"`
	TradesClosed   int       `json:"trades_closed"`
	NetProfit      float64   `json:"net_profit"`
}
