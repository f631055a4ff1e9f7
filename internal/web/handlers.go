package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	session := s.bot.Monitor().Session()

	status := struct {
		State          string  `json:"state"`
		TickCount      int     `json:"tick_count"`
		OpenPositions  int     `json:"open_positions"`
		MaxSymbol      string  `json:"max_symbol,omitempty"`
		MaxDiffPercent float64 `json:"max_diff_percent"`
		AvgDiffPercent float64 `json:"avg_diff_percent"`
	}{
		State:          s.bot.State().String(),
		TickCount:      session.TickCount,
		OpenPositions:  s.positions.Len(),
		AvgDiffPercent: session.AverageDiffPercent(),
	}
	if session.MaxSample != nil {
		status.MaxSymbol = session.MaxSample.Symbol
		status.MaxDiffPercent = session.MaxSample.DiffPercent
	}
	s.writeJSON(w, status)
}

func (s *Server) handleDivergences(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	s.writeJSON(w, s.bot.Monitor().TopPairs(limit))
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.positions.List())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	trades, err := s.trades.ListClosedTrades(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list trades", zap.Error(err))
		http.Error(w, "Failed to list trades", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, trades)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.bot.Monitor().Session())
}
