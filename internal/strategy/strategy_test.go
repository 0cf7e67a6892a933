package strategy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// stub es una estrategia de test con comportamiento inyectable.
type stub struct {
	name    string
	intents []domain.TradeIntent
	err     error
	panics  bool
	calls   int
}

func (s *stub) Name() string { return s.name }

func (s *stub) OnState(domain.MergedState, domain.PortfolioView) ([]domain.TradeIntent, error) {
	s.calls++
	if s.panics {
		panic("boom")
	}
	return s.intents, s.err
}

func TestRegistry_BuildUnknownName(t *testing.T) {
	r := DefaultRegistry()
	_, err := r.Build("does_not_exist", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does_not_exist")
	assert.Contains(t, err.Error(), "price_logger", "error should list available strategies")
}

func TestRegistry_BuildAllPreservesOrder(t *testing.T) {
	r := NewRegistry()
	r.Register("a", Factory{New: func(map[string]any) (Strategy, error) { return &stub{name: "a"}, nil }})
	r.Register("b", Factory{New: func(map[string]any) (Strategy, error) { return &stub{name: "b"}, nil }})

	out, err := r.BuildAll([]Spec{{Name: "b"}, {Name: "a"}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].Name())
	assert.Equal(t, "a", out[1].Name())
}

func TestPriceLogger_RejectsUnknownParams(t *testing.T) {
	_, err := NewPriceLogger(map[string]any{"log_evry": 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_evry")
}

func TestPriceLogger_RejectsNonNumericParam(t *testing.T) {
	_, err := NewPriceLogger(map[string]any{"log_every": "often"})
	require.Error(t, err)
}

func TestPriceLogger_NeverEmitsIntents(t *testing.T) {
	s, err := NewPriceLogger(map[string]any{"log_every": 1})
	require.NoError(t, err)

	state := domain.MergedState{
		GameID:  "g1",
		Markets: []domain.MarketSnapshot{{MarketID: "MKT-A", Price: 0.5}},
	}
	for i := 0; i < 5; i++ {
		intents, err := s.OnState(state, domain.PortfolioView{})
		require.NoError(t, err)
		assert.Empty(t, intents)
	}
}

// --- Composite ---

func TestComposite_FailureIsolation(t *testing.T) {
	failing := &stub{name: "s1", err: errors.New("model exploded")}
	emitting := &stub{name: "s2", intents: []domain.TradeIntent{
		{MarketID: "MKT-A", Side: domain.TradeYes, Action: domain.ActionOpen, Size: 1},
	}}

	c := NewComposite(failing, emitting)
	intents, err := c.OnState(domain.MergedState{GameID: "g1"}, domain.PortfolioView{})

	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, "MKT-A", intents[0].MarketID)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, emitting.calls)
}

func TestComposite_PanicIsolation(t *testing.T) {
	panicking := &stub{name: "s1", panics: true}
	emitting := &stub{name: "s2", intents: []domain.TradeIntent{
		{MarketID: "MKT-A", Side: domain.TradeYes, Action: domain.ActionOpen, Size: 1},
	}}

	c := NewComposite(panicking, emitting)
	intents, err := c.OnState(domain.MergedState{GameID: "g1"}, domain.PortfolioView{})

	require.NoError(t, err)
	require.Len(t, intents, 1)
}

func TestComposite_TagsIntentsWithStrategyName(t *testing.T) {
	s1 := &stub{name: "s1", intents: []domain.TradeIntent{
		{MarketID: "MKT-A", Side: domain.TradeYes, Action: domain.ActionOpen, Size: 1},
	}}
	s2 := &stub{name: "s2", intents: []domain.TradeIntent{
		{StrategyName: "custom", MarketID: "MKT-B", Side: domain.TradeNo, Action: domain.ActionOpen, Size: 2},
	}}

	c := NewComposite(s1, s2)
	intents, err := c.OnState(domain.MergedState{}, domain.PortfolioView{})

	require.NoError(t, err)
	require.Len(t, intents, 2)
	assert.Equal(t, "s1", intents[0].StrategyName)
	// Un nombre ya puesto por la estrategia no se sobreescribe.
	assert.Equal(t, "custom", intents[1].StrategyName)
}

func TestComposite_PreservesMemberOrder(t *testing.T) {
	s1 := &stub{name: "s1", intents: []domain.TradeIntent{
		{MarketID: "A1", Action: domain.ActionOpen, Size: 1},
		{MarketID: "A2", Action: domain.ActionOpen, Size: 1},
	}}
	s2 := &stub{name: "s2", intents: []domain.TradeIntent{
		{MarketID: "B1", Action: domain.ActionOpen, Size: 1},
	}}

	c := NewComposite(s1, s2)
	intents, _ := c.OnState(domain.MergedState{}, domain.PortfolioView{})

	require.Len(t, intents, 3)
	assert.Equal(t, "A1", intents[0].MarketID)
	assert.Equal(t, "A2", intents[1].MarketID)
	assert.Equal(t, "B1", intents[2].MarketID)
}
