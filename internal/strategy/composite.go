package strategy

import (
	"log/slog"

	"github.com/sourcegraph/conc/panics"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// Composite ejecuta un conjunto ordenado de estrategias sobre cada
// estado y concatena sus intents preservando el orden interno de cada
// una. El fallo de una estrategia — error o panic — se aísla: se loggea
// y esa estrategia no aporta intents en ese tick, las demás siguen.
type Composite struct {
	members []Strategy
}

// NewComposite crea el composite con las estrategias en orden de config.
func NewComposite(members ...Strategy) *Composite {
	return &Composite{members: members}
}

// Name identifica al composite en los logs.
func (c *Composite) Name() string { return "composite" }

// Members devuelve el número de estrategias activas.
func (c *Composite) Members() int { return len(c.members) }

// OnState invoca cada miembro en orden fijo y devuelve la concatenación
// de sus intents, cada uno etiquetado con el nombre de su estrategia.
// Nunca devuelve error: los fallos por miembro no abortan el tick.
func (c *Composite) OnState(state domain.MergedState, view domain.PortfolioView) ([]domain.TradeIntent, error) {
	var all []domain.TradeIntent

	for _, s := range c.members {
		var (
			intents []domain.TradeIntent
			err     error
		)
		if recovered := panics.Try(func() {
			intents, err = s.OnState(state, view)
		}); recovered != nil {
			slog.Error("strategy panicked, isolated for this tick",
				"strategy", s.Name(),
				"game_id", state.GameID,
				"panic", recovered.Value,
			)
			continue
		}
		if err != nil {
			slog.Warn("strategy error, isolated for this tick",
				"strategy", s.Name(),
				"game_id", state.GameID,
				"err", err,
			)
			continue
		}

		for _, it := range intents {
			if it.StrategyName == "" {
				it.StrategyName = s.Name()
			}
			all = append(all, it)
		}
	}
	return all, nil
}
