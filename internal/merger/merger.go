// Package merger combina los dos feeds asíncronos de un partido — marcador
// y precios de mercado — en un único stream ordenado de MergedStates.
//
// Modelo single-writer: los dos feeds producen en canales independientes y
// el loop de Run es el único consumidor, dueño de todo el estado del merge.
// No hay locks porque no hacen falta.
package merger

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// Config identifica el partido y siembra los mercados conocidos.
type Config struct {
	GameID   string
	EventID  string // event ticker del exchange
	HomeTeam string
	AwayTeam string

	// InitialMarkets siembra el mapa de mercados. Un mercado sin tick
	// sigue sin aparecer en los estados emitidos hasta su primer tick.
	InitialMarkets []string
}

// Merger mantiene el latch de marcador y el último snapshot por mercado.
// Solo reiniciable desde el inicio del partido: no hay resume a mitad
// de stream.
type Merger struct {
	cfg Config

	score   *domain.ScoreEvent
	markets map[string]domain.MarketSnapshot
	seeded  map[string]bool // sembrados pero aún sin tick: no se emiten
	lastTS  int64           // unix nanos del último estado emitido

	emitted   int
	coalesced int
	dropped   int
}

// New crea un merger para un partido.
func New(cfg Config) *Merger {
	m := &Merger{
		cfg:     cfg,
		markets: make(map[string]domain.MarketSnapshot),
		seeded:  make(map[string]bool),
	}
	for _, id := range cfg.InitialMarkets {
		if id == "" {
			continue
		}
		snap := domain.MarketSnapshot{MarketID: id}
		snap.Team, snap.Side = inferSide(id, cfg.HomeTeam, cfg.AwayTeam)
		m.markets[id] = snap
		m.seeded[id] = true
	}
	return m
}

// Run consume los dos feeds hasta que ambos canales se cierren, el partido
// termine con los mercados cerrados, o ctx se cancele. Cierra out al salir.
//
// Cada evento de cualquiera de las dos fuentes actualiza su latch y, si su
// timestamp es estrictamente mayor que el del último estado emitido,
// produce un MergedState nuevo. Si no, el evento se coalesce: el latch
// queda actualizado y su contenido viaja en la siguiente emisión válida.
// Así el stream mantiene timestamps estrictamente crecientes incluso con
// reconexiones que rebobinan timestamps.
func (m *Merger) Run(ctx context.Context, scores <-chan domain.ScoreEvent, ticks <-chan domain.MarketTick, out chan<- domain.MergedState) error {
	defer close(out)
	defer func() {
		slog.Info("merger: finished",
			"game_id", m.cfg.GameID,
			"emitted", m.emitted,
			"coalesced", m.coalesced,
			"dropped", m.dropped,
		)
	}()

	for scores != nil || ticks != nil {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-scores:
			if !ok {
				scores = nil
				continue
			}
			if !m.applyScore(ev) {
				continue
			}
			if done := m.maybeEmit(ctx, out, ev.Timestamp.UnixNano()); done {
				return nil
			}

		case t, ok := <-ticks:
			if !ok {
				ticks = nil
				continue
			}
			if !m.applyTick(t) {
				continue
			}
			if done := m.maybeEmit(ctx, out, t.Timestamp.UnixNano()); done {
				return nil
			}
		}
	}
	return nil
}

// applyScore actualiza el latch de marcador. Devuelve false si el evento
// no es de este partido.
func (m *Merger) applyScore(ev domain.ScoreEvent) bool {
	if ev.GameID != "" && ev.GameID != m.cfg.GameID {
		m.dropped++
		slog.Warn("merger: score event for wrong game dropped",
			"want", m.cfg.GameID, "got", ev.GameID)
		return false
	}

	if m.score != nil {
		// Los marcadores nunca retroceden dentro de un partido. Un feed
		// que informa menos puntos que el latch (glitch o replay tras
		// reconexión) se clampa al máximo conocido.
		if ev.ScoreHome < m.score.ScoreHome || ev.ScoreAway < m.score.ScoreAway {
			slog.Warn("merger: score regression clamped",
				"game_id", m.cfg.GameID,
				"latch", scoreLabel(m.score.ScoreAway, m.score.ScoreHome),
				"event", scoreLabel(ev.ScoreAway, ev.ScoreHome),
			)
			ev.ScoreHome = max(ev.ScoreHome, m.score.ScoreHome)
			ev.ScoreAway = max(ev.ScoreAway, m.score.ScoreAway)
		}
	}
	m.score = &ev
	return true
}

// applyTick actualiza el snapshot del mercado con los campos presentes
// del tick. Devuelve false si el tick no identifica un mercado.
func (m *Merger) applyTick(t domain.MarketTick) bool {
	if t.MarketID == "" {
		m.dropped++
		return false
	}

	snap, known := m.markets[t.MarketID]
	if !known {
		// Mercado descubierto al vuelo: nunca se sintetiza, solo se
		// registra cuando su primer tick real llega.
		snap = domain.MarketSnapshot{MarketID: t.MarketID}
		snap.Team, snap.Side = inferSide(t.MarketID, m.cfg.HomeTeam, m.cfg.AwayTeam)
	}

	if t.Price > 0 {
		snap.Price = t.Price
	}
	if t.YesBidProb > 0 {
		snap.YesBidProb = t.YesBidProb
	}
	if t.YesAskProb > 0 {
		snap.YesAskProb = t.YesAskProb
	}
	if t.Volume > 0 {
		snap.Volume = t.Volume
	}
	if t.OpenInterest > 0 {
		snap.OpenInterest = t.OpenInterest
	}
	if t.Status != "" {
		snap.Status = t.Status
	}
	if t.Timestamp.After(snap.LastUpdateTime) {
		snap.LastUpdateTime = t.Timestamp
	}

	m.markets[t.MarketID] = snap
	delete(m.seeded, t.MarketID)
	return true
}

// maybeEmit emite un MergedState con el timestamp dado si supera
// estrictamente al último emitido; si no, coalesce. Devuelve true cuando
// el stream terminó (partido final y mercados cerrados, o ctx cancelado).
func (m *Merger) maybeEmit(ctx context.Context, out chan<- domain.MergedState, tsNanos int64) bool {
	if m.score == nil {
		// Sin marcador todavía no hay estado que emitir; el latch de
		// mercados queda listo para la primera emisión.
		m.coalesced++
		return false
	}
	if tsNanos <= m.lastTS {
		m.coalesced++
		if tsNanos < m.lastTS {
			slog.Warn("merger: stale event coalesced",
				"game_id", m.cfg.GameID,
				"behind_ns", m.lastTS-tsNanos,
			)
		}
		return false
	}

	state := m.buildState(tsNanos)
	select {
	case out <- state:
	case <-ctx.Done():
		return true
	}
	m.lastTS = tsNanos
	m.emitted++

	if state.Final() && state.MarketsClosed() {
		slog.Info("merger: game final and markets closed", "game_id", m.cfg.GameID)
		return true
	}
	return false
}

func (m *Merger) buildState(tsNanos int64) domain.MergedState {
	markets := make([]domain.MarketSnapshot, 0, len(m.markets))
	for id, snap := range m.markets {
		if m.seeded[id] {
			continue
		}
		markets = append(markets, snap)
	}
	domain.SortMarkets(markets)

	return domain.MergedState{
		Timestamp: time.Unix(0, tsNanos).UTC(),
		EventID:   m.cfg.EventID,
		GameID:    m.cfg.GameID,
		ScoreHome: m.score.ScoreHome,
		ScoreAway: m.score.ScoreAway,
		Status:    m.score.Status,
		// Clonado: cada estado emitido es inmutable y no puede compartir
		// el mapa con el latch ni con emisiones posteriores.
		Context: maps.Clone(m.score.Context),
		Markets: markets,
	}
}

// inferSide deduce equipo y lado desde el sufijo del ticker, igual que
// hace el exchange con los moneyline: "KXNBAGAME-...-LAL" → LAL.
func inferSide(marketID, home, away string) (string, domain.MarketSide) {
	i := strings.LastIndex(marketID, "-")
	if i < 0 || i == len(marketID)-1 {
		return "", domain.SideUnknown
	}
	suffix := marketID[i+1:]
	switch suffix {
	case home:
		return suffix, domain.SideHome
	case away:
		return suffix, domain.SideAway
	}
	return "", domain.SideUnknown
}

// scoreLabel formatea un marcador como visitante-local, igual que los
// rótulos de la TV americana.
func scoreLabel(away, home int) string {
	return fmt.Sprintf("%d-%d", away, home)
}
