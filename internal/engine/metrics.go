package engine

import "github.com/alejandrodnm/kalshibot/internal/domain"

// summarize computes the post-replay metrics for one game.
func summarize(trades []domain.TradeRecord, curve []domain.EquityPoint) domain.Summary {
	s := domain.Summary{
		TradeCount:  len(trades),
		MaxDrawdown: maxDrawdown(curve),
	}
	for _, t := range trades {
		if t.Action == domain.ActionOpen {
			continue
		}
		s.ClosedTrades++
		s.RealizedPnL += t.PnL
	}
	s.WinRate = winRate(trades)
	return s
}

// winRate is winning closes over total closes. No closes → 0.
func winRate(trades []domain.TradeRecord) float64 {
	var closed, wins int
	for _, t := range trades {
		if t.Action == domain.ActionOpen {
			continue
		}
		closed++
		if t.PnL > 0 {
			wins++
		}
	}
	if closed == 0 {
		return 0
	}
	return float64(wins) / float64(closed)
}

// maxDrawdown is the deepest peak-to-trough fall of the equity curve.
func maxDrawdown(curve []domain.EquityPoint) float64 {
	var peak, dd float64
	for i, pt := range curve {
		if i == 0 || pt.Equity > peak {
			peak = pt.Equity
		}
		if fall := peak - pt.Equity; fall > dd {
			dd = fall
		}
	}
	return dd
}

// attribution groups realized P&L and trade counts by originating
// strategy, using the TradeIntent tag carried into the trade log.
func attribution(trades []domain.TradeRecord) map[string]domain.StrategyStats {
	out := make(map[string]domain.StrategyStats)
	for _, t := range trades {
		st := out[t.StrategyName]
		st.Trades++
		if t.Action != domain.ActionOpen {
			st.PnL += t.PnL
		}
		out[t.StrategyName] = st
	}
	return out
}
