package main

import (
	"context"
	"log/slog"
	"os"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/alejandrodnm/kalshibot/config"
	"github.com/alejandrodnm/kalshibot/internal/adapters/notify"
	"github.com/alejandrodnm/kalshibot/internal/adapters/storage"
	"github.com/alejandrodnm/kalshibot/internal/engine"
	"github.com/alejandrodnm/kalshibot/internal/strategy"
)

func runBacktest(ctx context.Context, cfg *config.Config, reg strategy.Registry, sport string, gameIDs []string) {
	source := storage.NewStateDir(cfg.Storage.StatesDir)

	bt, err := engine.NewBacktest(source, reg, specsFromConfig(cfg), engine.BacktestConfig{
		Sport:       sport,
		GameIDs:     gameIDs,
		InitialCash: cfg.Backtest.InitialCapital,
		Settlement:  cfg.Backtest.Settlement,
	})
	if err != nil {
		slog.Error("failed to configure backtest", "err", err)
		os.Exit(1)
	}

	result, err := bt.Run(ctx)
	if err != nil {
		slog.Error("backtest failed", "err", err)
		os.Exit(1)
	}
	result.RunID = uuid.NewString()

	runs, err := storage.NewSQLiteRunStore(cfg.Storage.ResultsDSN)
	if err != nil {
		slog.Warn("run store unavailable, results not persisted", "err", err)
	} else {
		defer runs.Close()
		cfgJSON, _ := json.Marshal(cfg.Backtest)
		if err := runs.SaveRun(ctx, result, string(cfgJSON)); err != nil {
			slog.Warn("failed to persist run", "run_id", result.RunID, "err", err)
		}
	}

	notify.NewConsole().Report(result)

	slog.Info("backtest complete",
		"run_id", result.RunID,
		"games", len(result.Games),
		"failed", result.GamesFailed,
		"trades", result.NumTrades(),
		"realized_pnl", result.Summary.RealizedPnL,
	)
}
