package domain

// Action es lo que la estrategia quiere hacer con una posición.
type Action string

const (
	ActionOpen   Action = "open"
	ActionClose  Action = "close"
	ActionReduce Action = "reduce"
)

// TradeSide es el lado del contrato binario que se compra.
type TradeSide string

const (
	TradeYes TradeSide = "yes"
	TradeNo  TradeSide = "no"
)

// TradeIntent es la instrucción de una estrategia hacia el broker.
// Se crea fresca por cada MergedState y nunca se muta después de emitida;
// StrategyName la etiqueta para auditoría y atribución.
type TradeIntent struct {
	StrategyName string    `json:"strategy_name"`
	MarketID     string    `json:"market_id"`
	Side         TradeSide `json:"side"`
	Action       Action    `json:"action"`
	Size         float64   `json:"size"`        // contratos
	LimitPrice   float64   `json:"limit_price"` // probabilidad en (0,1); 0 = usar precio del mercado
	Reason       string    `json:"reason,omitempty"`
}

// Notional devuelve el valor en dólares de la orden al precio dado.
func (i TradeIntent) Notional(price float64) float64 {
	return i.Size * price
}
