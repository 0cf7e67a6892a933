package strategy

import (
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// PriceLogger observa el stream y loggea precios cada N estados.
// Nunca emite intents: sirve para validar el pipeline en producción sin
// arriesgar un céntimo, y como referencia mínima del contrato.
type PriceLogger struct {
	every int
	seen  int
}

// NewPriceLogger construye la estrategia. Params: log_every (int, >0).
func NewPriceLogger(params map[string]any) (Strategy, error) {
	if err := checkKnownKeys(params, "log_every"); err != nil {
		return nil, err
	}
	every, err := paramInt(params, "log_every", 60)
	if err != nil {
		return nil, err
	}
	if every <= 0 {
		every = 60
	}
	return &PriceLogger{every: every}, nil
}

func (p *PriceLogger) Name() string { return "price_logger" }

func (p *PriceLogger) OnState(state domain.MergedState, _ domain.PortfolioView) ([]domain.TradeIntent, error) {
	p.seen++
	if p.seen%p.every != 0 {
		return nil, nil
	}
	for _, m := range state.Markets {
		slog.Debug("price_logger: market",
			"game_id", state.GameID,
			"score", scoreString(state),
			"market", m.MarketID,
			"price", m.Price,
			"bid", m.YesBidProb,
			"ask", m.YesAskProb,
		)
	}
	return nil, nil
}

func scoreString(s domain.MergedState) string {
	return fmt.Sprintf("%d-%d", s.ScoreAway, s.ScoreHome)
}
