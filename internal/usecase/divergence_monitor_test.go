package usecase_test

import (
	"testing"

	"github.com/vitos/crypto_spread_arb/internal/domain"
	"github.com/vitos/crypto_spread_arb/internal/usecase"
	"go.uber.org/zap"
)

func identityMatcher() *usecase.Matcher {
	identity := func(s string) string { return s }
	return usecase.NewMatcher(identity, identity, zap.NewNop())
}

func snapshotsAt(priceA, priceB float64) ([]domain.Ticker, []domain.Ticker) {
	return []domain.Ticker{{Symbol: "BTC", LastPrice: priceA, Volume24h: 1_000_000}},
		[]domain.Ticker{{Symbol: "BTC", LastPrice: priceB, Volume24h: 1_000_000}}
}

func TestMonitorTickThreshold(t *testing.T) {
	monitor := usecase.NewDivergenceMonitor(identityMatcher(), 0, 1.0, zap.NewNop())

	ta, tb := snapshotsAt(100, 100.5) // 0.5%
	sample, triggered := monitor.Tick(ta, tb)
	if sample == nil || triggered {
		t.Fatalf("0.5%% should record a sample without triggering, got sample=%v triggered=%v", sample, triggered)
	}

	ta, tb = snapshotsAt(100, 102) // 2.0%
	sample, triggered = monitor.Tick(ta, tb)
	if sample == nil || !triggered {
		t.Fatalf("2.0%% should trigger, got sample=%v triggered=%v", sample, triggered)
	}

	session := monitor.Session()
	if session.TickCount != 2 {
		t.Errorf("TickCount = %d, want 2", session.TickCount)
	}
	if len(session.Samples) != 2 {
		t.Errorf("history length = %d, want 2", len(session.Samples))
	}
}

func TestMonitorExactThresholdDoesNotTrigger(t *testing.T) {
	monitor := usecase.NewDivergenceMonitor(identityMatcher(), 0, 1.0, zap.NewNop())

	ta, tb := snapshotsAt(100, 101) // exactly 1.0%
	_, triggered := monitor.Tick(ta, tb)
	if triggered {
		t.Error("a top diff equal to the threshold must not trigger")
	}
}

func TestMonitorMaxTrackingTieKeepsFirst(t *testing.T) {
	monitor := usecase.NewDivergenceMonitor(identityMatcher(), 0, 10, zap.NewNop())

	ta, tb := snapshotsAt(100, 101.2)
	monitor.Tick(ta, tb)
	first := monitor.Session().MaxSample
	if first == nil || first.DiffPercent != 1.2 {
		t.Fatalf("unexpected first max: %+v", first)
	}

	// Tie: same diff percent again, later timestamp. Max must not move.
	ta, tb = snapshotsAt(100, 101.2)
	monitor.Tick(ta, tb)
	second := monitor.Session().MaxSample
	if !second.Time.Equal(first.Time) {
		t.Error("a tie replaced the max sample; first-seen must win")
	}

	// Strictly greater replaces.
	ta, tb = snapshotsAt(100, 101.5)
	monitor.Tick(ta, tb)
	third := monitor.Session().MaxSample
	if third.DiffPercent != 1.5 {
		t.Errorf("max DiffPercent = %v, want 1.5", third.DiffPercent)
	}
}

func TestMonitorEmptyTick(t *testing.T) {
	monitor := usecase.NewDivergenceMonitor(identityMatcher(), 0, 1.0, zap.NewNop())

	sample, triggered := monitor.Tick(nil, nil)
	if sample != nil || triggered {
		t.Errorf("empty snapshots must yield no sample, got %v/%v", sample, triggered)
	}
	if got := monitor.Session().TickCount; got != 1 {
		t.Errorf("TickCount = %d, want 1 (empty ticks still count)", got)
	}
}

func TestMonitorAverageDiffPercent(t *testing.T) {
	monitor := usecase.NewDivergenceMonitor(identityMatcher(), 0, 10, zap.NewNop())

	for _, priceB := range []float64{100.8, 101.2, 100.5} {
		ta, tb := snapshotsAt(100, priceB)
		monitor.Tick(ta, tb)
	}

	want := (0.8 + 1.2 + 0.5) / 3
	got := monitor.AverageDiffPercent()
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("AverageDiffPercent = %v, want %v", got, want)
	}
}

func TestMonitorVolumeGate(t *testing.T) {
	monitor := usecase.NewDivergenceMonitor(identityMatcher(), 2_000_000, 1.0, zap.NewNop())

	ta, tb := snapshotsAt(100, 105) // 5%, but volume 1M on both legs
	sample, triggered := monitor.Tick(ta, tb)
	if sample != nil || triggered {
		t.Error("a pair failing the volume gate must not produce a sample")
	}
}
