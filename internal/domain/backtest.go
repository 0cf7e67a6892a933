package domain

import "time"

// EquityPoint es una muestra de la curva de equity, una por estado procesado.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"` // P&L acumulado respecto al capital inicial
}

// Summary son las métricas agregadas de un replay (por partido o por run).
type Summary struct {
	RealizedPnL   float64 `json:"realized_pnl"`
	TradeCount    int     `json:"trade_count"`
	ClosedTrades  int     `json:"closed_trades"`
	WinRate       float64 `json:"win_rate"` // cierres con P&L > 0 / cierres
	MaxDrawdown   float64 `json:"max_drawdown"`
	SettlementPnL float64 `json:"settlement_pnl"`
}

// StrategyStats es la atribución por estrategia vía el tag del TradeIntent.
type StrategyStats struct {
	Trades int     `json:"trades"`
	PnL    float64 `json:"pnl"`
}

// GameResult es el resultado individual de un partido dentro de un run.
// Error no vacío significa que el replay de ese partido falló; el resto
// del batch continúa.
type GameResult struct {
	GameID      string        `json:"game_id"`
	States      int           `json:"states"`
	Summary     Summary       `json:"summary"`
	Trades      []TradeRecord `json:"trades"`
	EquityCurve []EquityPoint `json:"equity_curve"`
	Notes       []string      `json:"notes,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// BacktestResult es el resultado completo de un run, multi-partido.
// Las métricas agregan aditivamente; los resultados por partido quedan
// inspeccionables uno a uno.
type BacktestResult struct {
	RunID       string                   `json:"run_id"`
	Sport       string                   `json:"sport"`
	Strategy    string                   `json:"strategy"`
	Summary     Summary                  `json:"summary"`
	PerStrategy map[string]StrategyStats `json:"per_strategy"`
	Games       []GameResult             `json:"games"`
	GamesFailed int                      `json:"games_failed"`
	EquityCurve []EquityPoint            `json:"equity_curve"` // curva del run completo
}

// NumTrades devuelve el total de trades del run.
func (r BacktestResult) NumTrades() int {
	return r.Summary.TradeCount
}
