package broker

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// SimConfig configures the simulated broker.
type SimConfig struct {
	// SafetyCapUSD caps single-order notional. Zero means uncapped:
	// the hard floor only applies to the live broker.
	SafetyCapUSD float64
}

// Simulated fills every order that passes the checks, immediately, at
// the intent's limit price (or the market's current price from the
// state), and mutates its portfolio synchronously. Fully deterministic:
// order IDs are sequential and fill timestamps come from the state, not
// the wall clock — this is what backtests run on.
type Simulated struct {
	pf     *domain.Portfolio
	cap    float64
	seq    int
	closed bool
}

// NewSimulated creates a simulated broker over the given portfolio.
func NewSimulated(pf *domain.Portfolio, cfg SimConfig) *Simulated {
	return &Simulated{pf: pf, cap: cfg.SafetyCapUSD}
}

// Execute fills or rejects the intent against the state's prices.
// Rejections never touch the portfolio.
func (b *Simulated) Execute(_ context.Context, intent domain.TradeIntent, state domain.MergedState) (domain.OrderResult, error) {
	if b.closed {
		return rejected("", "broker closed"), nil
	}

	price := resolvePrice(intent, state)

	size := intent.Size
	if intent.Action == domain.ActionClose || intent.Action == domain.ActionReduce {
		pos, ok := b.pf.Position(intent.MarketID, intent.Side)
		if !ok {
			return rejected("", fmt.Sprintf("no open position for %s/%s", intent.MarketID, intent.Side)), nil
		}
		size = closeSize(intent, pos)
	}

	sized := intent
	sized.Size = size
	if reason := rejectReason(sized, price, b.cap, b.pf.Cash()); reason != "" {
		return rejected("", reason), nil
	}

	b.seq++
	order := domain.Order{
		ID:          fmt.Sprintf("sim-%d", b.seq),
		Intent:      sized,
		Status:      domain.OrderFilled,
		FilledSize:  size,
		FilledPrice: price,
		SubmittedAt: state.Timestamp,
		ResolvedAt:  state.Timestamp,
	}
	if err := b.pf.ApplyFill(order, state.Timestamp); err != nil {
		return rejected(order.ID, err.Error()), nil
	}

	return domain.OrderResult{
		OrderID:     order.ID,
		Status:      domain.OrderFilled,
		FilledSize:  size,
		FilledPrice: price,
	}, nil
}

// Close stops the broker; further submissions are rejected.
func (b *Simulated) Close() error {
	b.closed = true
	return nil
}

func rejected(orderID, reason string) domain.OrderResult {
	return domain.OrderResult{OrderID: orderID, Status: domain.OrderRejected, Reason: reason}
}
