package broker

import (
	"fmt"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// DefaultSafetyCapUSD is the per-order notional ceiling the live broker
// falls back to when the configured cap is missing or non-positive. The
// cap check itself cannot be disabled; only its value is configurable.
const DefaultSafetyCapUSD = 250.0

// resolvePrice picks the execution price for an intent: the intent's
// limit price when set, otherwise the market's current price from the
// state (ask, then mid, then bid — in side terms). Returns 0 when no
// usable price exists.
func resolvePrice(intent domain.TradeIntent, state domain.MergedState) float64 {
	if intent.LimitPrice > 0 {
		return intent.LimitPrice
	}
	m, ok := state.Market(intent.MarketID)
	if !ok {
		return 0
	}
	return m.PriceFor(intent.Side)
}

// rejectReason runs the mandatory order checks, in order: intent sanity,
// then the per-order notional cap, then balance (opens only — closes
// free cash). A negative balance skips the balance check so the live
// broker can enforce the cap before spending an API call on the account
// balance. Both broker implementations go through this helper so neither
// can bypass the invariants. Empty string means the order may proceed.
func rejectReason(intent domain.TradeIntent, price, cap, balance float64) string {
	if intent.Size <= 0 {
		return fmt.Sprintf("invalid size %.4f", intent.Size)
	}
	if price <= 0 || price >= 1 {
		return fmt.Sprintf("no usable price for market %s", intent.MarketID)
	}

	notional := intent.Notional(price)
	if cap > 0 && notional > cap {
		return fmt.Sprintf("safety cap exceeded: notional $%.2f > cap $%.2f", notional, cap)
	}
	if balance >= 0 && intent.Action == domain.ActionOpen && notional > balance {
		return fmt.Sprintf("insufficient balance: need $%.2f, have $%.2f", notional, balance)
	}
	return ""
}

// closeSize resolves how many contracts a close/reduce actually trades
// given the open position. Close always exits the full position.
func closeSize(intent domain.TradeIntent, pos domain.Position) float64 {
	if intent.Action == domain.ActionClose {
		return pos.Size
	}
	if intent.Size >= pos.Size {
		return pos.Size
	}
	return intent.Size
}
