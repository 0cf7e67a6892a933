package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrNoPosition se devuelve al cerrar o reducir una posición inexistente.
var ErrNoPosition = errors.New("no open position")

// PositionKey identifica una posición: un mercado y un lado del contrato.
type PositionKey struct {
	MarketID string
	Side     TradeSide
}

func (k PositionKey) String() string {
	return k.MarketID + "/" + string(k.Side)
}

// Position es una posición abierta, propiedad exclusiva del Portfolio.
// Solo se muta a través de fills de órdenes o del settlement.
type Position struct {
	MarketID      string
	Side          TradeSide
	Size          float64 // contratos
	AvgEntryPrice float64
	OpenTime      time.Time
}

// CostBasis devuelve los dólares en riesgo de la posición.
func (p Position) CostBasis() float64 {
	return p.Size * p.AvgEntryPrice
}

// MarkValue devuelve el valor de mercado de la posición dado el precio
// YES actual del mercado. Las posiciones NO valen el complemento.
func (p Position) MarkValue(yesPrice float64) float64 {
	price := yesPrice
	if p.Side == TradeNo {
		price = 1 - yesPrice
	}
	return p.Size * price
}

// TradeRecord es una entrada del trade log, etiquetada con la estrategia
// que originó el intent.
type TradeRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	StrategyName string    `json:"strategy_name"`
	MarketID     string    `json:"market_id"`
	Side         TradeSide `json:"side"`
	Action       Action    `json:"action"`
	Price        float64   `json:"price"`
	Size         float64   `json:"size"`
	PnL          float64   `json:"pnl"` // solo para close/reduce/settle
}

// Portfolio es el ledger de un partido: cash, posiciones abiertas y P&L
// realizado. Un único dueño por partido (worker o backtest run); nunca se
// comparte entre partidos. Las órdenes rechazadas no pasan por aquí.
type Portfolio struct {
	cash      float64
	positions map[PositionKey]*Position
	realized  float64
	trades    []TradeRecord
}

// NewPortfolio crea un portfolio con el cash inicial dado.
func NewPortfolio(cash float64) *Portfolio {
	return &Portfolio{
		cash:      cash,
		positions: make(map[PositionKey]*Position),
	}
}

func (p *Portfolio) Cash() float64        { return p.cash }
func (p *Portfolio) RealizedPnL() float64 { return p.realized }

// Trades devuelve el trade log en orden de ejecución.
func (p *Portfolio) Trades() []TradeRecord {
	out := make([]TradeRecord, len(p.trades))
	copy(out, p.trades)
	return out
}

// OpenPositions devuelve el número de posiciones abiertas.
func (p *Portfolio) OpenPositions() int { return len(p.positions) }

// Position devuelve una copia de la posición si existe.
func (p *Portfolio) Position(marketID string, side TradeSide) (Position, bool) {
	pos, ok := p.positions[PositionKey{MarketID: marketID, Side: side}]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// ApplyFill aplica una orden ejecutada al ledger. La aplicación es
// atómica: valida primero y solo entonces muta cash, posición y log.
func (p *Portfolio) ApplyFill(o Order, ts time.Time) error {
	if o.Status != OrderFilled && o.Status != OrderPartialFilled {
		return fmt.Errorf("domain.ApplyFill: order %s not filled (status %s)", o.ID, o.Status)
	}
	if o.FilledSize <= 0 || o.FilledPrice <= 0 {
		return fmt.Errorf("domain.ApplyFill: order %s has invalid fill %f @ %f", o.ID, o.FilledSize, o.FilledPrice)
	}

	key := PositionKey{MarketID: o.Intent.MarketID, Side: o.Intent.Side}

	switch o.Intent.Action {
	case ActionOpen:
		p.open(key, o, ts)
	case ActionClose, ActionReduce:
		pos, ok := p.positions[key]
		if !ok {
			return fmt.Errorf("domain.ApplyFill: %s: %w", key, ErrNoPosition)
		}
		size := o.FilledSize
		if size > pos.Size {
			size = pos.Size
		}
		p.realize(key, pos, size, o.FilledPrice, o.Intent.Action, o.Intent.StrategyName, ts)
	default:
		return fmt.Errorf("domain.ApplyFill: unsupported action %q", o.Intent.Action)
	}
	return nil
}

// open añade contratos con actualización de precio medio ponderado.
func (p *Portfolio) open(key PositionKey, o Order, ts time.Time) {
	cost := o.FilledSize * o.FilledPrice
	pos, ok := p.positions[key]
	if ok {
		total := pos.Size + o.FilledSize
		pos.AvgEntryPrice = (pos.AvgEntryPrice*pos.Size + o.FilledPrice*o.FilledSize) / total
		pos.Size = total
	} else {
		p.positions[key] = &Position{
			MarketID:      key.MarketID,
			Side:          key.Side,
			Size:          o.FilledSize,
			AvgEntryPrice: o.FilledPrice,
			OpenTime:      ts,
		}
	}
	p.cash -= cost
	p.trades = append(p.trades, TradeRecord{
		Timestamp:    ts,
		StrategyName: o.Intent.StrategyName,
		MarketID:     key.MarketID,
		Side:         key.Side,
		Action:       ActionOpen,
		Price:        o.FilledPrice,
		Size:         o.FilledSize,
	})
}

// realize cierra size contratos al precio dado y registra el P&L.
// Cerrar a cero elimina la posición.
func (p *Portfolio) realize(key PositionKey, pos *Position, size, price float64, action Action, strategyName string, ts time.Time) float64 {
	pnl := size * (price - pos.AvgEntryPrice)
	p.cash += size * price
	p.realized += pnl
	pos.Size -= size
	if pos.Size <= 1e-9 {
		delete(p.positions, key)
	}
	p.trades = append(p.trades, TradeRecord{
		Timestamp:    ts,
		StrategyName: strategyName,
		MarketID:     key.MarketID,
		Side:         key.Side,
		Action:       action,
		Price:        price,
		Size:         size,
		PnL:          pnl,
	})
	return pnl
}

// SettleAll cierra todas las posiciones abiertas al valor final que
// devuelva valueFor (en términos del lado de la posición, no del YES) y
// devuelve el P&L realizado por el settlement. Itera en orden de clave
// para que el resultado sea determinista.
func (p *Portfolio) SettleAll(valueFor func(Position) float64, ts time.Time) float64 {
	keys := make([]PositionKey, 0, len(p.positions))
	for k := range p.positions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	var total float64
	for _, k := range keys {
		pos := p.positions[k]
		value := valueFor(*pos)
		total += p.realize(k, pos, pos.Size, value, ActionClose, "settlement", ts)
	}
	return total
}

// Equity devuelve cash + valor de mercado de las posiciones abiertas
// según los precios del estado dado. Posiciones cuyo mercado no aparece
// en el estado se valoran a su precio medio de entrada.
func (p *Portfolio) Equity(state MergedState) float64 {
	eq := p.cash
	for _, pos := range p.positions {
		m, ok := state.Market(pos.MarketID)
		yes := pos.AvgEntryPrice
		if pos.Side == TradeNo {
			yes = 1 - pos.AvgEntryPrice
		}
		if ok && m.ExecutionPrice() > 0 {
			yes = m.ExecutionPrice()
		}
		eq += pos.MarkValue(yes)
	}
	return eq
}

// PositionView es la proyección de solo lectura de una posición.
type PositionView struct {
	MarketID      string
	Side          TradeSide
	Size          float64
	AvgEntryPrice float64
	CostBasis     float64
}

// PortfolioView es la proyección de solo lectura que ven las estrategias.
// Mutar la view no afecta al portfolio.
type PortfolioView struct {
	Cash        float64
	RealizedPnL float64
	Positions   map[string]PositionView // clave: "market_id/side"
}

// HasPosition devuelve true si hay posición abierta en ese mercado y lado.
func (v PortfolioView) HasPosition(marketID string, side TradeSide) bool {
	_, ok := v.Positions[PositionKey{MarketID: marketID, Side: side}.String()]
	return ok
}

// View construye la proyección de solo lectura del estado actual.
func (p *Portfolio) View() PortfolioView {
	v := PortfolioView{
		Cash:        p.cash,
		RealizedPnL: p.realized,
		Positions:   make(map[string]PositionView, len(p.positions)),
	}
	for k, pos := range p.positions {
		v.Positions[k.String()] = PositionView{
			MarketID:      pos.MarketID,
			Side:          pos.Side,
			Size:          pos.Size,
			AvgEntryPrice: pos.AvgEntryPrice,
			CostBasis:     pos.CostBasis(),
		}
	}
	return v
}
