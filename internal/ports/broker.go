package ports

import (
	"context"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// Broker turns a TradeIntent into an order lifecycle. Two conforming
// implementations exist: simulated (backtest/dry_run) and live.
//
// Intents are processed in the order the composite emitted them; the
// broker never reorders or batches across calls. A REJECTED result
// never mutates the portfolio, and the broker never auto-generates
// closing orders.
type Broker interface {
	// Execute runs an intent against the given merged state and returns
	// a terminal OrderResult. A non-nil error means the submission
	// outcome is unknown at the transport level (caller may retry; the
	// idempotent client order ID prevents duplicates). Timeouts map to
	// a REJECTED result, not an error.
	Execute(ctx context.Context, intent domain.TradeIntent, state domain.MergedState) (domain.OrderResult, error)

	// Close stops the broker: new submissions are refused, in-flight
	// ones are allowed to finish or time out.
	Close() error
}
