package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/vitos/crypto_spread_arb/internal/domain"
	"github.com/vitos/crypto_spread_arb/internal/infrastructure/exchange"
	"github.com/vitos/crypto_spread_arb/internal/infrastructure/logger"
	"github.com/vitos/crypto_spread_arb/internal/infrastructure/notify"
	"github.com/vitos/crypto_spread_arb/internal/infrastructure/storage"
	"github.com/vitos/crypto_spread_arb/internal/usecase"
	"github.com/vitos/crypto_spread_arb/internal/web"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Venues struct {
		Bybit struct {
			RESTEndpoint string `yaml:"rest_endpoint"`
			WSEndpoint   string `yaml:"ws_endpoint"`
		} `yaml:"bybit"`
		Gateio struct {
			RESTEndpoint string `yaml:"rest_endpoint"`
			WSEndpoint   string `yaml:"ws_endpoint"`
		} `yaml:"gateio"`
	} `yaml:"venues"`
	Trading struct {
		MinVolumeUSD      float64 `yaml:"min_volume_usd"`
		PauseThresholdPct float64 `yaml:"pause_threshold_pct"`
		PositionPct       float64 `yaml:"position_pct"`
		MinOrderNotional  float64 `yaml:"min_order_notional"`
		FeeRateBybit      float64 `yaml:"fee_rate_bybit"`
		FeeRateGateio     float64 `yaml:"fee_rate_gateio"`
		LiquidityDepth    int     `yaml:"liquidity_depth"`
	} `yaml:"trading"`
	Polling struct {
		ScanIntervalMs  int `yaml:"scan_interval_ms"`
		WatchIntervalMs int `yaml:"watch_interval_ms"`
	} `yaml:"polling"`
	Session struct {
		DurationMinutes int `yaml:"duration_minutes"`
	} `yaml:"session"`
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	// 1. Load Config and secrets
	configPath := "config/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	_ = godotenv.Load()

	// 2. Init Logger
	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = "spread_arb.db"
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Venues (A = bybit, the diff reference; B = gateio)
	venueA := exchange.NewBybitVenue(
		os.Getenv("BYBIT_API_KEY"), os.Getenv("BYBIT_API_SECRET"),
		cfg.Venues.Bybit.RESTEndpoint, cfg.Venues.Bybit.WSEndpoint, log)
	venueB := exchange.NewGateVenue(
		os.Getenv("GATE_API_KEY"), os.Getenv("GATE_API_SECRET"),
		cfg.Venues.Gateio.RESTEndpoint, cfg.Venues.Gateio.WSEndpoint, log)
	if !venueA.CanTrade() || !venueB.CanTrade() {
		log.Warn("Credentials missing for at least one venue, running scan-only",
			zap.Bool("bybit_auth", venueA.CanTrade()),
			zap.Bool("gateio_auth", venueB.CanTrade()))
	}

	// 5. Init Notifier
	var notifier domain.Notifier
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		chatID, _ := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64)
		tn, err := notify.NewTelegramNotifier(token, chatID, log)
		if err != nil {
			log.Error("Failed to init telegram notifier, falling back to log", zap.Error(err))
			notifier = &notify.LogNotifier{Logger: log}
		} else {
			notifier = tn
		}
	} else {
		notifier = &notify.LogNotifier{Logger: log}
	}

	// 6. Init Services
	matcher := usecase.NewMatcher(venueA.Normalize, venueB.Normalize, log)
	monitor := usecase.NewDivergenceMonitor(matcher, cfg.Trading.MinVolumeUSD, cfg.Trading.PauseThresholdPct, log)
	book := usecase.NewPositionBook()
	positions := usecase.NewPositionManager(venueA, venueB, book, store, notifier, usecase.PositionManagerConfig{
		PositionPct:      cfg.Trading.PositionPct,
		MinOrderNotional: cfg.Trading.MinOrderNotional,
		FeeRateA:         cfg.Trading.FeeRateBybit,
		FeeRateB:         cfg.Trading.FeeRateGateio,
		WatchInterval:    time.Duration(cfg.Polling.WatchIntervalMs) * time.Millisecond,
		LiquidityDepth:   cfg.Trading.LiquidityDepth,
	}, log)
	bot := usecase.NewSpreadBotService(venueA, venueB, monitor, positions, store, usecase.SpreadBotConfig{
		ScanInterval:    time.Duration(cfg.Polling.ScanIntervalMs) * time.Millisecond,
		SessionDuration: time.Duration(cfg.Session.DurationMinutes) * time.Minute,
	}, log)

	// 7. Run
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		if err := bot.Run(ctx); err != nil {
			log.Error("Bot run failed", zap.Error(err))
		}
	}()

	// 8. Web Server
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	server := web.NewServer(port, bot, book, store, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 9. Wait for Shutdown
	select {
	case <-stop:
		log.Info("Shutting down...")
		cancel()
		<-botDone
	case <-botDone:
		log.Info("Session finished, shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
}
