package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// ExchangeClient is the REST surface the live broker needs from the
// exchange. kalshi.Client implements it.
type ExchangeClient interface {
	// Balance returns the available account balance in USD.
	Balance(ctx context.Context) (float64, error)

	// SubmitOrder submits an immediate limit order. ClientOrderID makes
	// retries idempotent on the exchange side.
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResponse, error)

	// OrderStatus fetches the current state of a submitted order, used
	// to reconcile partial fills.
	OrderStatus(ctx context.Context, orderID string) (OrderResponse, error)
}

// OrderRequest is the wire-side view of an intent.
type OrderRequest struct {
	ClientOrderID string
	MarketID      string
	Side          domain.TradeSide
	Buy           bool // true for opens, false for close/reduce
	Size          float64
	LimitPrice    float64
}

// OrderResponse is the exchange's answer, normalized by the adapter.
type OrderResponse struct {
	OrderID     string
	Status      string // "filled" | "partial" | "rejected" | "pending"
	FilledSize  float64
	FilledPrice float64
	Reason      string
}

// LiveConfig configures the live broker.
type LiveConfig struct {
	// SafetyCapUSD is the per-order notional cap. Non-positive values
	// fall back to DefaultSafetyCapUSD — there is no way to configure
	// this check away.
	SafetyCapUSD float64

	// OrderTimeout bounds a single submission round-trip. A timeout is
	// surfaced as a rejection so the portfolio stays consistent.
	OrderTimeout time.Duration
}

// Live submits real orders. Before every submission it enforces, in
// order: the per-order notional safety cap, then a balance check against
// the live account. No code path submits an order that fails either.
type Live struct {
	exch    ExchangeClient
	pf      *domain.Portfolio
	cap     float64
	timeout time.Duration

	mu       sync.Mutex
	closed   bool
	dedup    map[string]string // dedup key → client order ID
	inflight sync.WaitGroup
}

// NewLive creates a live broker over the given exchange client and
// portfolio.
func NewLive(exch ExchangeClient, pf *domain.Portfolio, cfg LiveConfig) *Live {
	cap := cfg.SafetyCapUSD
	if cap <= 0 {
		cap = DefaultSafetyCapUSD
	}
	timeout := cfg.OrderTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Live{
		exch:    exch,
		pf:      pf,
		cap:     cap,
		timeout: timeout,
		dedup:   make(map[string]string),
	}
}

// Execute runs the mandatory checks and submits the order. Transport
// failures where the submission outcome is unknown return an error; the
// idempotent client order ID makes caller retries safe. Timeouts map to
// a REJECTED result.
func (b *Live) Execute(ctx context.Context, intent domain.TradeIntent, state domain.MergedState) (domain.OrderResult, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return rejected("", "broker shutting down"), nil
	}
	b.inflight.Add(1)
	b.mu.Unlock()
	defer b.inflight.Done()

	price := resolvePrice(intent, state)

	size := intent.Size
	buy := true
	if intent.Action == domain.ActionClose || intent.Action == domain.ActionReduce {
		pos, ok := b.pf.Position(intent.MarketID, intent.Side)
		if !ok {
			return rejected("", fmt.Sprintf("no open position for %s/%s", intent.MarketID, intent.Side)), nil
		}
		size = closeSize(intent, pos)
		buy = false
	}

	sized := intent
	sized.Size = size

	// Mandatory invariant: cap first, then live balance. Unconditional.
	if reason := rejectReason(sized, price, b.cap, -1); reason != "" {
		slog.Warn("live broker: order rejected pre-submit",
			"market", intent.MarketID, "strategy", intent.StrategyName, "reason", reason)
		return rejected("", reason), nil
	}
	balance, err := b.exch.Balance(ctx)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("broker.Execute: balance check: %w", err)
	}
	if reason := rejectReason(sized, price, b.cap, balance); reason != "" {
		slog.Warn("live broker: order rejected pre-submit",
			"market", intent.MarketID, "strategy", intent.StrategyName, "reason", reason)
		return rejected("", reason), nil
	}

	key := dedupKey(sized, state)
	clientID := b.reserveOrderID(key)

	subCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	resp, err := b.exch.SubmitOrder(subCtx, OrderRequest{
		ClientOrderID: clientID,
		MarketID:      sized.MarketID,
		Side:          sized.Side,
		Buy:           buy,
		Size:          size,
		LimitPrice:    price,
	})
	if err != nil {
		// Outcome unknown: the reserved ID stays cached so a retry of
		// this same decision reuses it instead of duplicating the order.
		if errors.Is(err, context.DeadlineExceeded) {
			return rejected(clientID, "order timeout"), nil
		}
		return domain.OrderResult{}, fmt.Errorf("broker.Execute: submit %s: %w", sized.MarketID, err)
	}

	return b.resolve(ctx, sized, key, clientID, resp)
}

// resolve maps the exchange response to a terminal status, reconciling
// partial fills. Statuses never regress: a partial only moves forward to
// FILLED (for the filled portion) or REJECTED (nothing filled). On an
// exchange-terminal outcome the dedup entry is released; on an unknown
// one (canceled, never confirmed) it stays reserved for the retry.
func (b *Live) resolve(ctx context.Context, intent domain.TradeIntent, key, clientID string, resp OrderResponse) (domain.OrderResult, error) {
	status := resp.Status
	deadline := time.Now().Add(b.timeout)

	for status == "partial" || status == "pending" {
		if time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return rejected(clientID, "canceled during reconciliation"), nil
		case <-time.After(500 * time.Millisecond):
		}
		next, err := b.exch.OrderStatus(ctx, resp.OrderID)
		if err != nil {
			slog.Warn("live broker: reconciliation poll failed", "order", resp.OrderID, "err", err)
			continue
		}
		resp = next
		status = next.Status
	}

	switch status {
	case "filled":
		b.releaseOrderID(key)
		return b.applyFill(intent, clientID, resp)
	case "partial":
		// Reconciliation window expired with a partial fill: book what
		// actually filled, never more. The order may still be live on
		// the exchange, so the ID stays reserved.
		if resp.FilledSize > 0 {
			return b.applyFill(intent, clientID, resp)
		}
		return rejected(clientID, "partial fill reconciliation expired with zero fill"), nil
	case "pending":
		return rejected(clientID, "order not confirmed before timeout"), nil
	default:
		b.releaseOrderID(key)
		reason := resp.Reason
		if reason == "" {
			reason = "rejected by exchange"
		}
		return rejected(clientID, reason), nil
	}
}

func (b *Live) applyFill(intent domain.TradeIntent, clientID string, resp OrderResponse) (domain.OrderResult, error) {
	now := time.Now().UTC()
	price := resp.FilledPrice
	if price <= 0 {
		price = intent.LimitPrice
	}
	order := domain.Order{
		ID:          clientID,
		Intent:      intent,
		Status:      domain.OrderFilled,
		FilledSize:  resp.FilledSize,
		FilledPrice: price,
		SubmittedAt: now,
		ResolvedAt:  now,
	}
	if order.FilledSize <= 0 {
		order.FilledSize = intent.Size
	}
	if err := b.pf.ApplyFill(order, now); err != nil {
		return domain.OrderResult{}, fmt.Errorf("broker.applyFill: %w", err)
	}
	slog.Info("live broker: order filled",
		"market", intent.MarketID,
		"strategy", intent.StrategyName,
		"action", intent.Action,
		"size", order.FilledSize,
		"price", order.FilledPrice,
	)
	return domain.OrderResult{
		OrderID:     clientID,
		Status:      domain.OrderFilled,
		FilledSize:  order.FilledSize,
		FilledPrice: order.FilledPrice,
	}, nil
}

// dedupKey identifies one strategy decision. Two strategies firing on
// the same market at the same score are distinct decisions and must not
// share a client order ID.
func dedupKey(intent domain.TradeIntent, state domain.MergedState) string {
	return fmt.Sprintf("%s|%s|%s|%s|%d|%d",
		intent.StrategyName, intent.MarketID, intent.Side, intent.Action,
		state.ScoreHome, state.ScoreAway)
}

// reserveOrderID returns the client order ID for a decision, minting one
// on first use. An entry survives only while the decision's outcome is
// unknown: retries reuse the ID, every exchange-terminal result releases
// it so the next identical decision is a fresh order.
func (b *Live) reserveOrderID(key string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id, ok := b.dedup[key]; ok {
		return id
	}
	id := uuid.NewString()
	b.dedup[key] = id
	return id
}

func (b *Live) releaseOrderID(key string) {
	b.mu.Lock()
	delete(b.dedup, key)
	b.mu.Unlock()
}

// Close refuses new submissions and waits for in-flight ones to finish
// or time out. Filled order state is never lost on shutdown.
func (b *Live) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.inflight.Wait()
	return nil
}
