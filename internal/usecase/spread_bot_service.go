package usecase

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/vitos/crypto_spread_arb/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BotState is the monitoring loop's explicit state machine. The loop
// moves Scanning -> EnteringPosition -> WatchingPosition -> Scanning;
// while a position from a previous trigger is being entered or watched,
// no new opportunity is acted on.
type BotState int32

const (
	StateScanning BotState = iota
	StateEnteringPosition
	StateWatchingPosition
)

func (s BotState) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateEnteringPosition:
		return "entering_position"
	case StateWatchingPosition:
		return "watching_position"
	default:
		return "unknown"
	}
}

type SpreadBotConfig struct {
	ScanInterval    time.Duration `json:"scan_interval"`
	SessionDuration time.Duration `json:"session_duration"` // 0 = unbounded
}

// SpreadBotService orchestrates one monitoring session: per tick it
// fetches both venues' snapshots concurrently, feeds the monitor, and
// on a trigger hands off to the position manager. No error escapes a
// tick; every failure is logged and the cadence continues.
type SpreadBotService struct {
	venueA    domain.Venue
	venueB    domain.Venue
	monitor   *DivergenceMonitor
	positions *PositionManager
	trades    domain.TradeRepository
	cfg       SpreadBotConfig
	logger    *zap.Logger

	state atomic.Int32
}

func NewSpreadBotService(
	venueA, venueB domain.Venue,
	monitor *DivergenceMonitor,
	positions *PositionManager,
	trades domain.TradeRepository,
	cfg SpreadBotConfig,
	logger *zap.Logger,
) *SpreadBotService {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 5 * time.Second
	}
	return &SpreadBotService{
		venueA:    venueA,
		venueB:    venueB,
		monitor:   monitor,
		positions: positions,
		trades:    trades,
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *SpreadBotService) State() BotState {
	return BotState(s.state.Load())
}

// Monitor exposes the divergence monitor for the status handlers.
func (s *SpreadBotService) Monitor() *DivergenceMonitor { return s.monitor }

// Run drives the session until ctx is cancelled or the configured
// session duration elapses, then writes the session report.
func (s *SpreadBotService) Run(ctx context.Context) error {
	if s.cfg.SessionDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SessionDuration)
		defer cancel()
	}

	s.logger.Info("Monitoring session started",
		zap.String("venue_a", s.venueA.Name()),
		zap.String("venue_b", s.venueB.Name()),
		zap.Duration("scan_interval", s.cfg.ScanInterval),
		zap.Duration("session_duration", s.cfg.SessionDuration))

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.finish()
		case <-ticker.C:
			s.RunTick(ctx)
		}
	}
}

// RunTick executes one scan cycle. Exported for the scenario tests.
func (s *SpreadBotService) RunTick(ctx context.Context) {
	tickersA, tickersB, err := s.fetchSnapshots(ctx)
	if err != nil {
		s.logger.Warn("Snapshot fetch failed, skipping tick", zap.Error(err))
		return
	}

	sample, triggered := s.monitor.Tick(tickersA, tickersB)
	if sample == nil {
		return
	}
	s.logger.Debug("Top divergence",
		zap.String("symbol", sample.Symbol),
		zap.Float64("diff_percent", sample.DiffPercent))
	if !triggered {
		return
	}

	s.logger.Info("Pause threshold crossed, handling opportunity",
		zap.String("symbol", sample.Symbol),
		zap.Float64("diff_percent", sample.DiffPercent))

	s.state.Store(int32(StateEnteringPosition))
	if err := s.positions.TryEnter(ctx, sample); err != nil {
		s.logger.Error("Entry failed", zap.String("symbol", sample.Symbol), zap.Error(err))
	}

	// Watch runs to completion before normal scanning resumes; this is
	// the backpressure that keeps a second opportunity from overlapping
	// an open pair.
	if s.positions.Book().Len() > 0 {
		s.state.Store(int32(StateWatchingPosition))
		s.positions.WatchOpenPositions(ctx)
	}
	s.state.Store(int32(StateScanning))
}

// fetchSnapshots issues both venue requests concurrently and joins
// them; either failure voids the whole tick.
func (s *SpreadBotService) fetchSnapshots(ctx context.Context) ([]domain.Ticker, []domain.Ticker, error) {
	var tickersA, tickersB []domain.Ticker

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tickersA, err = s.venueA.GetTickers(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		tickersB, err = s.venueB.GetTickers(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return tickersA, tickersB, nil
}

func (s *SpreadBotService) finish() error {
	session := s.monitor.Session()
	closed, netProfit := s.positions.Stats()

	report := &domain.SessionReport{
		StartTime:      session.StartTime,
		EndTime:        time.Now(),
		TickCount:      session.TickCount,
		AvgDiffPercent: session.AverageDiffPercent(),
		TradesClosed:   closed,
		NetProfit:      netProfit,
	}
	if session.MaxSample != nil {
		report.MaxSymbol = session.MaxSample.Symbol
		report.MaxDiffPercent = session.MaxSample.DiffPercent
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.trades.SaveSessionReport(ctx, report); err != nil {
		s.logger.Error("Failed to persist session report", zap.Error(err))
	}

	s.logger.Info("Monitoring session finished",
		zap.Int("ticks", report.TickCount),
		zap.String("max_symbol", report.MaxSymbol),
		zap.Float64("max_diff_percent", report.MaxDiffPercent),
		zap.Float64("avg_diff_percent", report.AvgDiffPercent),
		zap.Int("trades_closed", report.TradesClosed),
		zap.Float64("net_profit", report.NetProfit))
	return nil
}
