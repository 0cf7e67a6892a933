package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(market string, side TradeSide, action Action, size, price float64) Order {
	return Order{
		ID: "t-1",
		Intent: TradeIntent{
			StrategyName: "test",
			MarketID:     market,
			Side:         side,
			Action:       action,
			Size:         size,
		},
		Status:      OrderFilled,
		FilledSize:  size,
		FilledPrice: price,
	}
}

func TestApplyFill_OpenDeductsCash(t *testing.T) {
	pf := NewPortfolio(1000)
	err := pf.ApplyFill(fill("MKT-A", TradeYes, ActionOpen, 10, 0.40), time.Now())
	require.NoError(t, err)

	assert.InDelta(t, 996.0, pf.Cash(), 1e-9)
	pos, ok := pf.Position("MKT-A", TradeYes)
	require.True(t, ok)
	assert.InDelta(t, 10.0, pos.Size, 1e-9)
	assert.InDelta(t, 0.40, pos.AvgEntryPrice, 1e-9)
}

func TestApplyFill_OpenAveragesEntryPrice(t *testing.T) {
	pf := NewPortfolio(1000)
	require.NoError(t, pf.ApplyFill(fill("MKT-A", TradeYes, ActionOpen, 10, 0.40), time.Now()))
	require.NoError(t, pf.ApplyFill(fill("MKT-A", TradeYes, ActionOpen, 10, 0.60), time.Now()))

	pos, ok := pf.Position("MKT-A", TradeYes)
	require.True(t, ok)
	assert.InDelta(t, 20.0, pos.Size, 1e-9)
	// (10×0.40 + 10×0.60) / 20 = 0.50
	assert.InDelta(t, 0.50, pos.AvgEntryPrice, 1e-9)
}

func TestApplyFill_CloseRealizesPnL(t *testing.T) {
	pf := NewPortfolio(1000)
	require.NoError(t, pf.ApplyFill(fill("MKT-A", TradeYes, ActionOpen, 10, 0.40), time.Now()))
	require.NoError(t, pf.ApplyFill(fill("MKT-A", TradeYes, ActionClose, 10, 0.70), time.Now()))

	// 10 × (0.70 - 0.40) = 3.0
	assert.InDelta(t, 3.0, pf.RealizedPnL(), 1e-9)
	assert.InDelta(t, 1003.0, pf.Cash(), 1e-9)
	assert.Equal(t, 0, pf.OpenPositions())
}

func TestApplyFill_ReduceKeepsRemainder(t *testing.T) {
	pf := NewPortfolio(1000)
	require.NoError(t, pf.ApplyFill(fill("MKT-A", TradeYes, ActionOpen, 10, 0.40), time.Now()))
	require.NoError(t, pf.ApplyFill(fill("MKT-A", TradeYes, ActionReduce, 4, 0.50), time.Now()))

	pos, ok := pf.Position("MKT-A", TradeYes)
	require.True(t, ok)
	assert.InDelta(t, 6.0, pos.Size, 1e-9)
	assert.InDelta(t, 0.40, pos.AvgEntryPrice, 1e-9)
	assert.InDelta(t, 0.4, pf.RealizedPnL(), 1e-9)
}

func TestApplyFill_CloseWithoutPosition(t *testing.T) {
	pf := NewPortfolio(1000)
	err := pf.ApplyFill(fill("MKT-A", TradeYes, ActionClose, 10, 0.70), time.Now())
	assert.ErrorIs(t, err, ErrNoPosition)
	assert.InDelta(t, 1000.0, pf.Cash(), 1e-9)
}

func TestApplyFill_RejectedOrderNeverApplied(t *testing.T) {
	pf := NewPortfolio(1000)
	o := fill("MKT-A", TradeYes, ActionOpen, 10, 0.40)
	o.Status = OrderRejected
	err := pf.ApplyFill(o, time.Now())
	assert.Error(t, err)
	assert.InDelta(t, 1000.0, pf.Cash(), 1e-9)
	assert.Equal(t, 0, pf.OpenPositions())
	assert.Empty(t, pf.Trades())
}

// --- SettleAll ---

func TestSettleAll_WinnerPaysOut(t *testing.T) {
	pf := NewPortfolio(1000)
	require.NoError(t, pf.ApplyFill(fill("MKT-A", TradeYes, ActionOpen, 10, 0.30), time.Now()))

	// El mercado resuelve YES: cada contrato vale $1.00.
	pnl := pf.SettleAll(func(Position) float64 { return 1.0 }, time.Now())

	// 10 × (1.00 - 0.30) = 7.0
	assert.InDelta(t, 7.0, pnl, 1e-9)
	assert.Equal(t, 0, pf.OpenPositions())
	assert.InDelta(t, 1007.0, pf.Cash(), 1e-9)
}

func TestSettleAll_LoserWorthless(t *testing.T) {
	pf := NewPortfolio(1000)
	require.NoError(t, pf.ApplyFill(fill("MKT-A", TradeYes, ActionOpen, 10, 0.30), time.Now()))

	pnl := pf.SettleAll(func(Position) float64 { return 0.0 }, time.Now())

	assert.InDelta(t, -3.0, pnl, 1e-9)
	assert.Equal(t, 0, pf.OpenPositions())
}

func TestSettleAll_TagsSettlementTrades(t *testing.T) {
	pf := NewPortfolio(1000)
	require.NoError(t, pf.ApplyFill(fill("MKT-A", TradeYes, ActionOpen, 10, 0.30), time.Now()))
	pf.SettleAll(func(Position) float64 { return 1.0 }, time.Now())

	trades := pf.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, "settlement", trades[1].StrategyName)
	assert.Equal(t, ActionClose, trades[1].Action)
}

// --- Equity / View ---

func TestEquity_MarksToState(t *testing.T) {
	pf := NewPortfolio(1000)
	require.NoError(t, pf.ApplyFill(fill("MKT-A", TradeYes, ActionOpen, 10, 0.40), time.Now()))

	state := MergedState{Markets: []MarketSnapshot{{MarketID: "MKT-A", YesAskProb: 0.60}}}
	// 996 cash + 10 × 0.60 = 1002
	assert.InDelta(t, 1002.0, pf.Equity(state), 1e-9)
}

func TestEquity_FallsBackToEntryPrice(t *testing.T) {
	pf := NewPortfolio(1000)
	require.NoError(t, pf.ApplyFill(fill("MKT-A", TradeYes, ActionOpen, 10, 0.40), time.Now()))

	// Estado sin el mercado: la posición se valora a su entrada.
	assert.InDelta(t, 1000.0, pf.Equity(MergedState{}), 1e-9)
}

func TestView_IsACopy(t *testing.T) {
	pf := NewPortfolio(1000)
	require.NoError(t, pf.ApplyFill(fill("MKT-A", TradeNo, ActionOpen, 5, 0.20), time.Now()))

	v := pf.View()
	assert.True(t, v.HasPosition("MKT-A", TradeNo))
	assert.False(t, v.HasPosition("MKT-A", TradeYes))

	// Mutar la view no toca el portfolio.
	delete(v.Positions, PositionKey{MarketID: "MKT-A", Side: TradeNo}.String())
	assert.Equal(t, 1, pf.OpenPositions())
}

// --- MarketSnapshot pricing ---

func TestExecutionPrice_AskThenMidThenBid(t *testing.T) {
	assert.InDelta(t, 0.55, MarketSnapshot{YesAskProb: 0.55, Price: 0.50, YesBidProb: 0.45}.ExecutionPrice(), 1e-9)
	assert.InDelta(t, 0.50, MarketSnapshot{Price: 0.50, YesBidProb: 0.45}.ExecutionPrice(), 1e-9)
	assert.InDelta(t, 0.45, MarketSnapshot{YesBidProb: 0.45}.ExecutionPrice(), 1e-9)
	assert.Equal(t, 0.0, MarketSnapshot{}.ExecutionPrice())
}

func TestPriceFor_NoSideIsComplement(t *testing.T) {
	m := MarketSnapshot{YesAskProb: 0.70}
	assert.InDelta(t, 0.70, m.PriceFor(TradeYes), 1e-9)
	assert.InDelta(t, 0.30, m.PriceFor(TradeNo), 1e-9)
}

// --- OrderStatus lifecycle ---

func TestOrderStatus_Transitions(t *testing.T) {
	assert.True(t, OrderPending.CanTransition(OrderFilled))
	assert.True(t, OrderPending.CanTransition(OrderPartialFilled))
	assert.True(t, OrderPartialFilled.CanTransition(OrderFilled))
	assert.False(t, OrderPartialFilled.CanTransition(OrderPending))
	assert.False(t, OrderFilled.CanTransition(OrderRejected))
	assert.False(t, OrderRejected.CanTransition(OrderPending))
}
