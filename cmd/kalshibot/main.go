package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/alejandrodnm/kalshibot/config"
	"github.com/alejandrodnm/kalshibot/internal/adapters/storage"
	"github.com/alejandrodnm/kalshibot/internal/api"
	"github.com/alejandrodnm/kalshibot/internal/strategy"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	backtest := flag.Bool("backtest", false, "replay recorded games instead of trading")
	serve := flag.Bool("serve", false, "start the HTTP API for backtest runs")
	gameID := flag.String("game-id", "", "scoreboard game ID to trade (live mode)")
	event := flag.String("event", "", "exchange event ticker for the game")
	markets := flag.String("markets", "", "comma-separated market tickers to subscribe")
	home := flag.String("home", "", "home team code")
	away := flag.String("away", "", "away team code")
	sport := flag.String("sport", "nba", "sport key for recorded states")
	games := flag.String("games", "", "comma-separated game IDs to backtest (default: all recorded)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("kalshibot starting",
		"config", *configPath,
		"mode", cfg.Trading.Mode,
		"backtest", *backtest,
		"serve", *serve,
	)

	reg := strategy.DefaultRegistry()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *serve:
		runServe(ctx, cfg, reg)
	case *backtest:
		runBacktest(ctx, cfg, reg, *sport, splitList(*games))
	default:
		runLive(ctx, cfg, reg, liveFlags{
			gameID:  *gameID,
			event:   *event,
			markets: splitList(*markets),
			home:    *home,
			away:    *away,
			sport:   *sport,
		})
	}
}

func runServe(ctx context.Context, cfg *config.Config, reg strategy.Registry) {
	source := storage.NewStateDir(cfg.Storage.StatesDir)

	runs, err := storage.NewSQLiteRunStore(cfg.Storage.ResultsDSN)
	if err != nil {
		slog.Error("failed to open run store", "err", err, "dsn", cfg.Storage.ResultsDSN)
		os.Exit(1)
	}
	defer runs.Close()

	srv := api.New(cfg.API.Addr, source, reg, runs)
	if err := srv.Run(ctx); err != nil {
		slog.Error("api exited with error", "err", err)
		os.Exit(1)
	}
	slog.Info("api stopped cleanly")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stdout
	if cfg.File != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}
