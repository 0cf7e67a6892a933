package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/kalshibot/internal/broker"
	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
	"github.com/alejandrodnm/kalshibot/internal/strategy"
)

// Settlement rules for positions still open when a game's recording ends.
const (
	// SettlementWinner resolves each binary moneyline market to 1 or 0
	// from the final score and the market's side.
	SettlementWinner = "winner"

	// SettlementLastPrice closes positions at the final observed price.
	SettlementLastPrice = "last_price"
)

const defaultInitialCash = 10_000.0

// BacktestConfig selects what to replay and how to settle it.
type BacktestConfig struct {
	Sport       string
	GameIDs     []string // empty = every recorded game for the sport
	InitialCash float64
	Settlement  string
}

// Backtest replays recorded merged-state sequences through the same
// strategy contract and a simulated broker — no wall clock, no network.
// Single-threaded by design: with sorted iteration everywhere, repeated
// runs on the same input are bit-identical.
type Backtest struct {
	source ports.StateSource
	reg    strategy.Registry
	specs  []strategy.Spec
	cfg    BacktestConfig
}

// NewBacktest validates the configuration (unknown strategies and bad
// params fail here, before any game is touched) and returns the engine.
func NewBacktest(source ports.StateSource, reg strategy.Registry, specs []strategy.Spec, cfg BacktestConfig) (*Backtest, error) {
	if cfg.InitialCash <= 0 {
		cfg.InitialCash = defaultInitialCash
	}
	switch cfg.Settlement {
	case "":
		cfg.Settlement = SettlementWinner
	case SettlementWinner, SettlementLastPrice:
	default:
		return nil, fmt.Errorf("engine.NewBacktest: unknown settlement rule %q", cfg.Settlement)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("engine.NewBacktest: no strategies configured")
	}
	// Dry-build to surface configuration errors at load time.
	if _, err := reg.BuildAll(specs); err != nil {
		return nil, fmt.Errorf("engine.NewBacktest: %w", err)
	}
	return &Backtest{source: source, reg: reg, specs: specs, cfg: cfg}, nil
}

// Run replays every selected game and aggregates the results. A game
// whose recording is missing or malformed fails that game only; the
// batch continues and reports the error in its GameResult.
func (b *Backtest) Run(ctx context.Context) (domain.BacktestResult, error) {
	games := b.cfg.GameIDs
	if len(games) == 0 {
		var err error
		games, err = b.source.Games(ctx, b.cfg.Sport)
		if err != nil {
			return domain.BacktestResult{}, fmt.Errorf("engine.Backtest: list games: %w", err)
		}
	}
	if len(games) == 0 {
		return domain.BacktestResult{}, fmt.Errorf("engine.Backtest: no recorded games for sport %q", b.cfg.Sport)
	}

	result := domain.BacktestResult{
		Sport:       b.cfg.Sport,
		Strategy:    strategyLabel(b.specs),
		PerStrategy: make(map[string]domain.StrategyStats),
	}

	var offset float64 // P&L realizado acumulado de partidos anteriores
	for _, gid := range games {
		gr := b.runGame(ctx, gid)
		result.Games = append(result.Games, gr)
		if gr.Error != "" {
			result.GamesFailed++
			slog.Warn("backtest: game replay failed", "game_id", gid, "err", gr.Error)
			continue
		}

		result.Summary.RealizedPnL += gr.Summary.RealizedPnL
		result.Summary.SettlementPnL += gr.Summary.SettlementPnL
		result.Summary.TradeCount += gr.Summary.TradeCount
		result.Summary.ClosedTrades += gr.Summary.ClosedTrades
		for name, st := range attribution(gr.Trades) {
			agg := result.PerStrategy[name]
			agg.Trades += st.Trades
			agg.PnL += st.PnL
			result.PerStrategy[name] = agg
		}
		for _, pt := range gr.EquityCurve {
			result.EquityCurve = append(result.EquityCurve, domain.EquityPoint{
				Timestamp: pt.Timestamp,
				Equity:    pt.Equity + offset,
			})
		}
		offset += gr.Summary.RealizedPnL
	}

	result.Summary.WinRate = winRate(allTrades(result.Games))
	result.Summary.MaxDrawdown = maxDrawdown(result.EquityCurve)
	return result, nil
}

// runGame replays one game on a fresh portfolio and fresh strategy
// instances, so no state ever leaks between games.
func (b *Backtest) runGame(ctx context.Context, gameID string) domain.GameResult {
	gr := domain.GameResult{GameID: gameID}

	states, err := b.source.Load(ctx, b.cfg.Sport, gameID)
	if err != nil {
		gr.Error = err.Error()
		return gr
	}
	if len(states) == 0 {
		gr.Error = "no recorded states"
		return gr
	}

	strategies, err := b.reg.BuildAll(b.specs)
	if err != nil {
		gr.Error = err.Error()
		return gr
	}
	comp := strategy.NewComposite(strategies...)

	pf := domain.NewPortfolio(b.cfg.InitialCash)
	sim := broker.NewSimulated(pf, broker.SimConfig{})

	var last domain.MergedState
	for i, state := range states {
		if i > 0 && !state.Timestamp.After(last.Timestamp) {
			gr.Error = fmt.Sprintf("state sequence out of order at index %d (%s <= %s)",
				i, state.Timestamp.Format("15:04:05.000"), last.Timestamp.Format("15:04:05.000"))
			return gr
		}
		last = state

		intents, _ := comp.OnState(state, pf.View())
		for _, intent := range intents {
			res, execErr := sim.Execute(ctx, intent, state)
			if execErr != nil {
				gr.Error = execErr.Error()
				return gr
			}
			if res.Status == domain.OrderRejected {
				slog.Debug("backtest: intent rejected",
					"game_id", gameID,
					"strategy", intent.StrategyName,
					"market", intent.MarketID,
					"reason", res.Reason,
				)
			}
		}

		gr.EquityCurve = append(gr.EquityCurve, domain.EquityPoint{
			Timestamp: state.Timestamp,
			Equity:    pf.Equity(state) - b.cfg.InitialCash,
		})
	}
	gr.States = len(states)

	// Settlement: close whatever is still open at the game's final
	// resolved value, realizing final P&L.
	valueFor := b.settlementValue(last, &gr.Notes)
	settlePnL := pf.SettleAll(valueFor, last.Timestamp)

	// The last equity sample reflects post-settlement reality.
	gr.EquityCurve[len(gr.EquityCurve)-1].Equity = pf.Equity(last) - b.cfg.InitialCash

	gr.Trades = pf.Trades()
	gr.Summary = summarize(gr.Trades, gr.EquityCurve)
	gr.Summary.SettlementPnL = settlePnL
	return gr
}

// settlementValue builds the per-position final value function for the
// configured rule, collecting a note whenever it has to fall back.
func (b *Backtest) settlementValue(final domain.MergedState, notes *[]string) func(domain.Position) float64 {
	lastPrice := func(pos domain.Position) float64 {
		if m, ok := final.Market(pos.MarketID); ok {
			if p := m.PriceFor(pos.Side); p > 0 {
				return p
			}
		}
		*notes = append(*notes, fmt.Sprintf("no final price for %s/%s, settled at entry", pos.MarketID, pos.Side))
		return pos.AvgEntryPrice
	}

	if b.cfg.Settlement == SettlementLastPrice {
		return lastPrice
	}

	if !final.Final() || final.ScoreHome == final.ScoreAway {
		*notes = append(*notes, "game not resolved, settling at last price")
		return lastPrice
	}

	winner := domain.SideHome
	if final.ScoreAway > final.ScoreHome {
		winner = domain.SideAway
	}

	return func(pos domain.Position) float64 {
		m, ok := final.Market(pos.MarketID)
		if !ok || m.Side == domain.SideUnknown {
			*notes = append(*notes, fmt.Sprintf("market %s has no resolvable side, settled at last price", pos.MarketID))
			return lastPrice(pos)
		}
		yes := 0.0
		if m.Side == winner {
			yes = 1.0
		}
		if pos.Side == domain.TradeNo {
			return 1 - yes
		}
		return yes
	}
}

// strategyLabel names a run after its strategies, in config order.
func strategyLabel(specs []strategy.Spec) string {
	if len(specs) == 1 {
		return specs[0].Name
	}
	label := specs[0].Name
	for _, sp := range specs[1:] {
		label += "+" + sp.Name
	}
	return label
}

func allTrades(games []domain.GameResult) []domain.TradeRecord {
	var all []domain.TradeRecord
	for _, g := range games {
		all = append(all, g.Trades...)
	}
	return all
}
