package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vitos/crypto_spread_arb/internal/domain"
	"github.com/vitos/crypto_spread_arb/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router    *http.ServeMux
	server    *http.Server
	bot       *usecase.SpreadBotService
	positions domain.PositionRepository
	trades    domain.TradeRepository
	logger    *zap.Logger
}

func NewServer(
	port int,
	bot *usecase.SpreadBotService,
	positions domain.PositionRepository,
	trades domain.TradeRepository,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:    http.NewServeMux(),
		bot:       bot,
		positions: positions,
		trades:    trades,
		logger:    logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /status", s.handleStatus)
	s.router.HandleFunc("GET /api/divergences", s.handleDivergences)
	s.router.HandleFunc("GET /api/positions", s.handlePositions)
	s.router.HandleFunc("GET /api/trades", s.handleTrades)
	s.router.HandleFunc("GET /api/session", s.handleSession)
}

func (s *Server) Start() error {
	s.logger.Info("Web server listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
