package engine

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/sourcegraph/conc"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/merger"
	"github.com/alejandrodnm/kalshibot/internal/ports"
	"github.com/alejandrodnm/kalshibot/internal/strategy"
)

// LiveConfig configures the per-game live pipeline.
type LiveConfig struct {
	GameID    string
	Heartbeat int // log a heartbeat every N states; <=0 means 300
}

// Live wires one game's whole pipeline: the two feeds produce into the
// merger, and this engine is the merger's single consumer — each merged
// state is recorded, handed to the composite strategy, and every
// resulting intent is executed before the next state is accepted.
// Back-pressure is the synchrony itself.
type Live struct {
	cfg    LiveConfig
	scores ports.ScoreFeed
	ticks  ports.MarketFeed
	merger *merger.Merger
	strat  strategy.Strategy
	broker ports.Broker
	pf     *domain.Portfolio
	writer ports.StateWriter
}

// NewLive creates the pipeline with all dependencies injected.
func NewLive(
	cfg LiveConfig,
	scores ports.ScoreFeed,
	ticks ports.MarketFeed,
	m *merger.Merger,
	strat strategy.Strategy,
	b ports.Broker,
	pf *domain.Portfolio,
	writer ports.StateWriter,
) *Live {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 300
	}
	return &Live{
		cfg:    cfg,
		scores: scores,
		ticks:  ticks,
		merger: m,
		strat:  strat,
		broker: b,
		pf:     pf,
		writer: writer,
	}
}

// Run drives the pipeline until the merged stream ends (game final and
// markets closed) or ctx is canceled. On shutdown the feeds stop, the
// broker refuses new submissions, and in-flight orders finish or time
// out — filled order state is never abandoned.
func (e *Live) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scoreCh := make(chan domain.ScoreEvent, 64)
	tickCh := make(chan domain.MarketTick, 256)
	merged := make(chan domain.MergedState)

	var wg conc.WaitGroup
	wg.Go(func() {
		defer close(scoreCh)
		if err := e.scores.Run(ctx, scoreCh); err != nil {
			slog.Error("live: score feed stopped with error", "game_id", e.cfg.GameID, "err", err)
		}
	})
	wg.Go(func() {
		defer close(tickCh)
		if err := e.ticks.Run(ctx, tickCh); err != nil {
			slog.Error("live: market feed stopped with error", "game_id", e.cfg.GameID, "err", err)
		}
	})
	wg.Go(func() {
		// The merger owns merged and closes it when done.
		_ = e.merger.Run(ctx, scoreCh, tickCh, merged)
	})

	count := 0
	for state := range merged {
		count++
		e.processState(ctx, state)

		if count%e.cfg.Heartbeat == 0 {
			view := e.pf.View()
			slog.Info("live: heartbeat",
				"game_id", e.cfg.GameID,
				"states", count,
				"score", scoreLine(state),
				"markets", len(state.Markets),
				"cash", view.Cash,
				"positions", len(view.Positions),
			)
		}
	}

	// The merger ended the stream (game final and markets closed, or
	// both feeds done). The feeds themselves only stop on cancellation.
	cancel()
	wg.Wait()

	if err := e.broker.Close(); err != nil {
		slog.Warn("live: broker close", "err", err)
	}
	slog.Info("live: pipeline finished",
		"game_id", e.cfg.GameID,
		"states", count,
		"realized_pnl", e.pf.RealizedPnL(),
		"open_positions", e.pf.OpenPositions(),
	)
	return nil
}

// processState records the state and runs strategies + execution for it.
// Everything here is synchronous with the emission that produced it.
func (e *Live) processState(ctx context.Context, state domain.MergedState) {
	if err := e.writer.Append(ctx, state); err != nil {
		slog.Warn("live: state write failed", "game_id", e.cfg.GameID, "err", err)
	}

	intents, err := e.strat.OnState(state, e.pf.View())
	if err != nil {
		// The composite isolates member failures; an error here means
		// the whole tick is unusable.
		slog.Error("live: strategy error", "game_id", e.cfg.GameID, "err", err)
		return
	}

	for _, intent := range intents {
		res, execErr := e.broker.Execute(ctx, intent, state)
		if execErr != nil {
			slog.Error("live: order submission failed",
				"strategy", intent.StrategyName,
				"market", intent.MarketID,
				"action", intent.Action,
				"err", execErr,
			)
			continue
		}
		if res.Status == domain.OrderRejected {
			slog.Warn("live: order rejected",
				"strategy", intent.StrategyName,
				"market", intent.MarketID,
				"action", intent.Action,
				"reason", res.Reason,
			)
		}
	}
}

func scoreLine(s domain.MergedState) string {
	return strconv.Itoa(s.ScoreAway) + "-" + strconv.Itoa(s.ScoreHome)
}
