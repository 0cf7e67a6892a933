package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

func simState(price float64) domain.MergedState {
	return domain.MergedState{
		GameID: "g1",
		Markets: []domain.MarketSnapshot{
			{MarketID: "MKT-A", YesAskProb: price},
		},
	}
}

func openIntent(size float64) domain.TradeIntent {
	return domain.TradeIntent{
		StrategyName: "test",
		MarketID:     "MKT-A",
		Side:         domain.TradeYes,
		Action:       domain.ActionOpen,
		Size:         size,
	}
}

func TestSimulated_FillsAtMarketPrice(t *testing.T) {
	pf := domain.NewPortfolio(1000)
	b := NewSimulated(pf, SimConfig{})

	res, err := b.Execute(context.Background(), openIntent(100), simState(0.50))
	require.NoError(t, err)
	require.Equal(t, domain.OrderFilled, res.Status)
	assert.InDelta(t, 0.50, res.FilledPrice, 1e-9)
	assert.InDelta(t, 950.0, pf.Cash(), 1e-9)
}

func TestSimulated_FillsAtLimitPrice(t *testing.T) {
	pf := domain.NewPortfolio(1000)
	b := NewSimulated(pf, SimConfig{})

	it := openIntent(100)
	it.LimitPrice = 0.45
	res, err := b.Execute(context.Background(), it, simState(0.50))
	require.NoError(t, err)
	assert.InDelta(t, 0.45, res.FilledPrice, 1e-9)
}

func TestSimulated_SafetyCapRejects(t *testing.T) {
	pf := domain.NewPortfolio(10_000)
	b := NewSimulated(pf, SimConfig{SafetyCapUSD: 100})

	// 300 × 0.50 = $150 notional > $100 cap.
	res, err := b.Execute(context.Background(), openIntent(300), simState(0.50))
	require.NoError(t, err)
	require.Equal(t, domain.OrderRejected, res.Status)
	assert.Contains(t, res.Reason, "safety cap")

	// El rechazo no tocó el portfolio.
	assert.InDelta(t, 10_000.0, pf.Cash(), 1e-9)
	assert.Equal(t, 0, pf.OpenPositions())
	assert.Empty(t, pf.Trades())
}

func TestSimulated_UnderCapFills(t *testing.T) {
	pf := domain.NewPortfolio(10_000)
	b := NewSimulated(pf, SimConfig{SafetyCapUSD: 100})

	// 100 × 0.50 = $50 notional, bajo el cap.
	res, err := b.Execute(context.Background(), openIntent(100), simState(0.50))
	require.NoError(t, err)
	require.Equal(t, domain.OrderFilled, res.Status)
	assert.InDelta(t, 9950.0, pf.Cash(), 1e-9)
}

func TestSimulated_InsufficientBalanceRejects(t *testing.T) {
	pf := domain.NewPortfolio(10)
	b := NewSimulated(pf, SimConfig{})

	res, err := b.Execute(context.Background(), openIntent(100), simState(0.50))
	require.NoError(t, err)
	require.Equal(t, domain.OrderRejected, res.Status)
	assert.Contains(t, res.Reason, "insufficient balance")
	assert.InDelta(t, 10.0, pf.Cash(), 1e-9)
}

func TestSimulated_NoPriceRejects(t *testing.T) {
	pf := domain.NewPortfolio(1000)
	b := NewSimulated(pf, SimConfig{})

	res, err := b.Execute(context.Background(), openIntent(10), domain.MergedState{GameID: "g1"})
	require.NoError(t, err)
	require.Equal(t, domain.OrderRejected, res.Status)
	assert.Contains(t, res.Reason, "no usable price")
}

func TestSimulated_CloseWithoutPositionRejects(t *testing.T) {
	pf := domain.NewPortfolio(1000)
	b := NewSimulated(pf, SimConfig{})

	it := openIntent(10)
	it.Action = domain.ActionClose
	res, err := b.Execute(context.Background(), it, simState(0.50))
	require.NoError(t, err)
	require.Equal(t, domain.OrderRejected, res.Status)
	assert.Contains(t, res.Reason, "no open position")
}

func TestSimulated_CloseExitsFullPosition(t *testing.T) {
	pf := domain.NewPortfolio(1000)
	b := NewSimulated(pf, SimConfig{})

	_, err := b.Execute(context.Background(), openIntent(20), simState(0.40))
	require.NoError(t, err)

	// Close ignora el size del intent: sale la posición entera.
	it := openIntent(5)
	it.Action = domain.ActionClose
	res, err := b.Execute(context.Background(), it, simState(0.60))
	require.NoError(t, err)
	require.Equal(t, domain.OrderFilled, res.Status)
	assert.InDelta(t, 20.0, res.FilledSize, 1e-9)
	assert.Equal(t, 0, pf.OpenPositions())
	// 20 × (0.60 - 0.40) = 4.0
	assert.InDelta(t, 4.0, pf.RealizedPnL(), 1e-9)
}

func TestSimulated_SequentialOrderIDs(t *testing.T) {
	pf := domain.NewPortfolio(1000)
	b := NewSimulated(pf, SimConfig{})

	r1, _ := b.Execute(context.Background(), openIntent(10), simState(0.50))
	r2, _ := b.Execute(context.Background(), openIntent(10), simState(0.50))
	assert.Equal(t, "sim-1", r1.OrderID)
	assert.Equal(t, "sim-2", r2.OrderID)
}

func TestSimulated_ClosedBrokerRejects(t *testing.T) {
	pf := domain.NewPortfolio(1000)
	b := NewSimulated(pf, SimConfig{})
	require.NoError(t, b.Close())

	res, err := b.Execute(context.Background(), openIntent(10), simState(0.50))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderRejected, res.Status)
}
