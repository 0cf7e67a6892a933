package strategy

import (
	"fmt"
	"sort"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// Strategy define el contrato de decisión: una función del estado
// mergeado y la vista del portfolio hacia cero o más TradeIntents.
//
// El contrato exige determinismo: mismos inputs, mismos intents — es lo
// que hace reproducibles los backtests. El estado interno (medias
// móviles, etc.) vive en la instancia y dura un partido; las instancias
// nunca se comparten entre partidos ni entre procesos. Las estrategias
// no mutan el portfolio: solo el broker lo hace.
type Strategy interface {
	// Name devuelve el identificador único de la estrategia.
	Name() string

	// OnState evalúa un estado y devuelve los intents, en orden.
	// Un error aborta esta estrategia para este tick, no el tick.
	OnState(state domain.MergedState, view domain.PortfolioView) ([]domain.TradeIntent, error)
}

// Factory construye una estrategia validando sus params. Params
// inválidos son un error de configuración: fatal en el arranque, nunca
// en runtime.
type Factory struct {
	New         func(params map[string]any) (Strategy, error)
	Description string
}

// Spec es una entrada de configuración resuelta contra el registry.
type Spec struct {
	Name   string
	Params map[string]any
}

// Registry mantiene las estrategias disponibles indexadas por nombre.
type Registry map[string]Factory

// NewRegistry crea un registry vacío.
func NewRegistry() Registry {
	return make(Registry)
}

// DefaultRegistry devuelve el registry con las estrategias incluidas.
func DefaultRegistry() Registry {
	r := NewRegistry()
	r.Register("price_logger", Factory{
		New:         NewPriceLogger,
		Description: "observa y loggea precios; nunca opera",
	})
	return r
}

// Register añade una factory al registry.
func (r Registry) Register(name string, f Factory) {
	r[name] = f
}

// Names devuelve los nombres registrados, ordenados.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build construye una estrategia por nombre. Nombre desconocido o
// params inválidos devuelven error.
func (r Registry) Build(name string, params map[string]any) (Strategy, error) {
	f, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("strategy.Build: unknown strategy %q (available: %v)", name, r.Names())
	}
	s, err := f.New(params)
	if err != nil {
		return nil, fmt.Errorf("strategy.Build: %q: %w", name, err)
	}
	return s, nil
}

// BuildAll construye las estrategias de los specs dados, en su orden.
func (r Registry) BuildAll(specs []Spec) ([]Strategy, error) {
	out := make([]Strategy, 0, len(specs))
	for _, sp := range specs {
		s, err := r.Build(sp.Name, sp.Params)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
