// Package api exposes the HTTP endpoint that triggers backtest runs.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/alejandrodnm/kalshibot/internal/engine"
	"github.com/alejandrodnm/kalshibot/internal/ports"
	"github.com/alejandrodnm/kalshibot/internal/strategy"
)

const maxJSONBodyBytes int64 = 1 << 20 // 1 MiB

// Server wires the backtest engine behind a small JSON API.
type Server struct {
	source ports.StateSource
	reg    strategy.Registry
	runs   ports.RunStore
	http   *http.Server
}

// New builds the server. runs may be nil, in which case results are
// returned to the caller but not persisted.
func New(addr string, source ports.StateSource, reg strategy.Registry, runs ports.RunStore) *Server {
	s := &Server{source: source, reg: reg, runs: runs}

	mux := http.NewServeMux()
	mux.HandleFunc("/backtest", s.handleBacktest)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	slog.Info("api listening", "addr", s.http.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api.Run: shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api.Run: %w", err)
		}
		return nil
	}
}

type backtestRequest struct {
	Strategy string         `json:"strategy"`
	Params   map[string]any `json:"params"`
	Config   struct {
		Sport       string   `json:"sport"`
		GameIDs     []string `json:"game_ids"`
		InitialCash float64  `json:"initial_cash"`
		Settlement  string   `json:"settlement"`
	} `json:"config"`
}

type backtestResponse struct {
	RunID     string  `json:"run_id"`
	Sport     string  `json:"sport"`
	Games     int     `json:"games"`
	Failed    int     `json:"games_failed"`
	NumTrades int     `json:"num_trades"`
	PnL       float64 `json:"realized_pnl"`
	WinRate   float64 `json:"win_rate"`
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req backtestRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	if req.Strategy == "" {
		writeError(w, http.StatusBadRequest, "strategy is required")
		return
	}
	if req.Config.Sport == "" {
		writeError(w, http.StatusBadRequest, "config.sport is required")
		return
	}

	specs := []strategy.Spec{{Name: req.Strategy, Params: req.Params}}
	bt, err := engine.NewBacktest(s.source, s.reg, specs, engine.BacktestConfig{
		Sport:       req.Config.Sport,
		GameIDs:     req.Config.GameIDs,
		InitialCash: req.Config.InitialCash,
		Settlement:  req.Config.Settlement,
	})
	if err != nil {
		// Unknown strategy or bad params: the caller's fault.
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := bt.Run(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	result.RunID = uuid.NewString()

	if s.runs != nil {
		cfgJSON, _ := json.Marshal(req)
		if err := s.runs.SaveRun(r.Context(), result, string(cfgJSON)); err != nil {
			slog.Warn("failed to persist run", "run_id", result.RunID, "err", err)
		}
	}

	slog.Info("backtest run complete",
		"run_id", result.RunID,
		"sport", result.Sport,
		"games", len(result.Games),
		"failed", result.GamesFailed,
		"trades", result.NumTrades(),
	)

	writeJSON(w, http.StatusOK, backtestResponse{
		RunID:     result.RunID,
		Sport:     result.Sport,
		Games:     len(result.Games),
		Failed:    result.GamesFailed,
		NumTrades: result.NumTrades(),
		PnL:       result.Summary.RealizedPnL,
		WinRate:   result.Summary.WinRate,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}
