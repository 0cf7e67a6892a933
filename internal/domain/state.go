package domain

import (
	"sort"
	"time"
)

// GameStatus es el estado del partido según el feed de marcador.
type GameStatus string

const (
	GameScheduled  GameStatus = "scheduled"
	GameInProgress GameStatus = "in_progress"
	GameFinal      GameStatus = "final"
)

// MarketSide indica a qué lado del partido pertenece un mercado moneyline.
type MarketSide string

const (
	SideHome    MarketSide = "home"
	SideAway    MarketSide = "away"
	SideUnknown MarketSide = "unknown"
)

// ScoreEvent es un evento crudo del feed de marcador (polling o push).
type ScoreEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	GameID    string         `json:"game_id"`
	ScoreHome int            `json:"score_home"`
	ScoreAway int            `json:"score_away"`
	Status    GameStatus     `json:"status"`
	Context   map[string]any `json:"context,omitempty"` // reloj, periodo, raw del deporte
}

// MarketTick es un evento crudo del feed de precios: un cambio de precio
// en un mercado concreto. Los campos a cero significan "sin dato".
type MarketTick struct {
	Timestamp    time.Time `json:"timestamp"`
	MarketID     string    `json:"market_id"`
	Price        float64   `json:"price"`
	YesBidProb   float64   `json:"yes_bid_prob"`
	YesAskProb   float64   `json:"yes_ask_prob"`
	Volume       float64   `json:"volume"`
	OpenInterest float64   `json:"open_interest"`
	Status       string    `json:"status"`
}

// MarketSnapshot es el último estado conocido de un mercado dentro de un
// MergedState. Inmutable una vez emitido.
type MarketSnapshot struct {
	MarketID       string     `json:"market_id"`
	Team           string     `json:"team,omitempty"`
	Side           MarketSide `json:"side"`
	Price          float64    `json:"price"`
	YesBidProb     float64    `json:"yes_bid_prob"`
	YesAskProb     float64    `json:"yes_ask_prob"`
	Volume         float64    `json:"volume,omitempty"`
	OpenInterest   float64    `json:"open_interest,omitempty"`
	Status         string     `json:"status,omitempty"`
	LastUpdateTime time.Time  `json:"last_update_time"`
}

// ExecutionPrice devuelve el precio de ejecución para compras YES:
// ask, luego mid, luego bid. Devuelve 0 si no hay precio usable.
func (m MarketSnapshot) ExecutionPrice() float64 {
	for _, p := range [3]float64{m.YesAskProb, m.Price, m.YesBidProb} {
		if p > 0 {
			return p
		}
	}
	return 0
}

// PriceFor devuelve el precio de ejecución para el lado dado del
// contrato. El lado NO cuesta el complemento del precio YES.
func (m MarketSnapshot) PriceFor(side TradeSide) float64 {
	p := m.ExecutionPrice()
	if p <= 0 {
		return 0
	}
	if side == TradeNo {
		return 1 - p
	}
	return p
}

// Closed devuelve true si el mercado está en un estado terminal.
func (m MarketSnapshot) Closed() bool {
	switch m.Status {
	case "closed", "settled", "finalized":
		return true
	}
	return false
}

// MergedState es un snapshot inmutable del mundo para un partido:
// marcador + todos los mercados conocidos, sellado con el timestamp del
// evento que lo produjo. Los timestamps son estrictamente crecientes
// dentro del stream de un partido.
type MergedState struct {
	Timestamp time.Time        `json:"timestamp"`
	EventID   string           `json:"event_id"`
	GameID    string           `json:"game_id"`
	ScoreHome int              `json:"score_home"`
	ScoreAway int              `json:"score_away"`
	Status    GameStatus       `json:"status"`
	Context   map[string]any   `json:"context,omitempty"`
	Markets   []MarketSnapshot `json:"markets"` // ordenados por MarketID
}

// Market busca un mercado por ID dentro del snapshot.
func (s MergedState) Market(marketID string) (MarketSnapshot, bool) {
	for _, m := range s.Markets {
		if m.MarketID == marketID {
			return m, true
		}
	}
	return MarketSnapshot{}, false
}

// Final devuelve true si el partido terminó.
func (s MergedState) Final() bool {
	return s.Status == GameFinal
}

// MarketsClosed devuelve true si todos los mercados conocidos están cerrados.
// Con cero mercados devuelve false: aún no sabemos nada.
func (s MergedState) MarketsClosed() bool {
	if len(s.Markets) == 0 {
		return false
	}
	for _, m := range s.Markets {
		if !m.Closed() {
			return false
		}
	}
	return true
}

// SortMarkets ordena los snapshots por MarketID. El orden determinista
// importa: los backtests deben ser bit-idénticos entre ejecuciones.
func SortMarkets(markets []MarketSnapshot) {
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].MarketID < markets[j].MarketID
	})
}
