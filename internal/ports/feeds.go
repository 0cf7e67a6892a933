package ports

import (
	"context"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// ScoreFeed produces raw score/clock events for one game.
type ScoreFeed interface {
	// Run emits events on out until the game goes final or ctx is
	// canceled. The caller owns out and closes it after Run returns.
	// Transient feed errors are retried internally, never returned.
	Run(ctx context.Context, out chan<- domain.ScoreEvent) error
}

// MarketFeed produces raw price ticks for the game's markets.
type MarketFeed interface {
	// Run emits one tick per market price change on out until all
	// markets close or ctx is canceled. The caller owns out and closes
	// it after Run returns. Reconnects are handled internally with
	// backoff.
	Run(ctx context.Context, out chan<- domain.MarketTick) error
}
