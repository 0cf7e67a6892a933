package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/alejandrodnm/kalshibot/config"
	"github.com/alejandrodnm/kalshibot/internal/adapters/kalshi"
	"github.com/alejandrodnm/kalshibot/internal/adapters/scorefeed"
	"github.com/alejandrodnm/kalshibot/internal/adapters/storage"
	"github.com/alejandrodnm/kalshibot/internal/broker"
	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/engine"
	"github.com/alejandrodnm/kalshibot/internal/merger"
	"github.com/alejandrodnm/kalshibot/internal/ports"
	"github.com/alejandrodnm/kalshibot/internal/strategy"
)

type liveFlags struct {
	gameID  string
	event   string
	markets []string
	home    string
	away    string
	sport   string
}

// liveAbortWindow gives the operator a chance to Ctrl-C before real
// orders can be placed.
const liveAbortWindow = 5 * time.Second

func runLive(ctx context.Context, cfg *config.Config, reg strategy.Registry, f liveFlags) {
	if f.gameID == "" || len(f.markets) == 0 {
		slog.Error("live mode requires -game-id and -markets")
		os.Exit(1)
	}

	specs := specsFromConfig(cfg)
	strats, err := reg.BuildAll(specs)
	if err != nil {
		slog.Error("failed to build strategies", "err", err)
		os.Exit(1)
	}
	composite := strategy.NewComposite(strats...)

	pf := domain.NewPortfolio(cfg.Trading.InitialCapital)

	var b ports.Broker
	if cfg.Live() {
		slog.Warn("LIVE MODE: real orders will be placed", "abort_window", liveAbortWindow)
		select {
		case <-time.After(liveAbortWindow):
		case <-ctx.Done():
			slog.Info("aborted before start")
			return
		}

		client, err := kalshi.NewClient(cfg.Feeds.KalshiAPIBase, os.Getenv("KALSHI_API_KEY"))
		if err != nil {
			slog.Error("failed to create exchange client", "err", err)
			os.Exit(1)
		}
		b = broker.NewLive(client, pf, broker.LiveConfig{
			SafetyCapUSD: cfg.Trading.SafetyCapUSD,
			OrderTimeout: cfg.OrderTimeout(),
		})
	} else {
		b = broker.NewSimulated(pf, broker.SimConfig{
			SafetyCapUSD: cfg.Trading.SafetyCapUSD,
		})
	}

	scores := scorefeed.NewPoller(scorefeed.Config{
		BaseURL:      cfg.Feeds.ScoreboardBase,
		GameID:       f.gameID,
		PollInterval: cfg.PollInterval(),
		StopOnFinal:  true,
	})
	ticks := kalshi.NewTickerStream(kalshi.StreamConfig{
		URL:           cfg.Feeds.KalshiWSURL,
		MarketTickers: f.markets,
		APIKey:        os.Getenv("KALSHI_API_KEY"),
		MaxReconnect:  time.Duration(cfg.Feeds.ReconnectMaxSeconds) * time.Second,
	})

	m := merger.New(merger.Config{
		GameID:         f.gameID,
		EventID:        f.event,
		HomeTeam:       f.home,
		AwayTeam:       f.away,
		InitialMarkets: f.markets,
	})

	writer, err := storage.NewStateWriter(cfg.Storage.StatesDir, f.sport, f.gameID)
	if err != nil {
		slog.Error("failed to open state writer", "err", err)
		os.Exit(1)
	}
	defer writer.Close()

	eng := engine.NewLive(engine.LiveConfig{GameID: f.gameID}, scores, ticks, m, composite, b, pf, writer)

	if err := eng.Run(ctx); err != nil {
		slog.Error("live engine exited with error", "err", err)
		os.Exit(1)
	}
	slog.Info("kalshibot stopped cleanly")
}

// specsFromConfig maps the enabled config entries to registry specs.
// An empty list falls back to the price logger so a bare config still
// produces a visible stream.
func specsFromConfig(cfg *config.Config) []strategy.Spec {
	entries := cfg.EnabledStrategies()
	if len(entries) == 0 {
		return []strategy.Spec{{Name: "price_logger"}}
	}
	specs := make([]strategy.Spec, 0, len(entries))
	for _, e := range entries {
		specs = append(specs, strategy.Spec{Name: e.Name, Params: e.Params})
	}
	return specs
}
