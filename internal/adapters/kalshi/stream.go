package kalshi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

const (
	defaultMaxReconnect = 30 * time.Second
	readDeadline        = 60 * time.Second
)

// StreamConfig configures the websocket ticker stream for one game.
type StreamConfig struct {
	URL           string
	MarketTickers []string
	APIKey        string

	// MaxReconnect bounds the reconnect backoff. <=0 uses the default.
	MaxReconnect time.Duration
}

// TickerStream implements ports.MarketFeed over the exchange's public
// ticker websocket channel. One tick per price change per market.
type TickerStream struct {
	cfg StreamConfig
}

// NewTickerStream creates the feed for the given markets.
func NewTickerStream(cfg StreamConfig) *TickerStream {
	return &TickerStream{cfg: cfg}
}

// subscribeCmd is the ticker channel subscription message.
type subscribeCmd struct {
	ID     int           `json:"id"`
	Cmd    string        `json:"cmd"`
	Params subscribeBody `json:"params"`
}

type subscribeBody struct {
	Channels      []string `json:"channels"`
	MarketTickers []string `json:"market_tickers"`
}

// tickerMsg is the wire shape of a ticker update. Prices come in cents.
type tickerMsg struct {
	Type string `json:"type"`
	Msg  struct {
		MarketTicker string  `json:"market_ticker"`
		Price        float64 `json:"price"`
		YesBid       float64 `json:"yes_bid"`
		YesAsk       float64 `json:"yes_ask"`
		Volume       float64 `json:"volume"`
		OpenInterest float64 `json:"open_interest"`
		Status       string  `json:"status"`
		TS           int64   `json:"ts"`
	} `json:"msg"`
}

// Run keeps one websocket session alive until ctx is canceled, emitting
// normalized ticks on out. Dial and read failures reconnect with
// exponential backoff and resubscribe; the merger downstream guards
// against any timestamp rewind a reconnect replay may cause.
func (t *TickerStream) Run(ctx context.Context, out chan<- domain.MarketTick) error {
	maxReconnect := t.cfg.MaxReconnect
	if maxReconnect <= 0 {
		maxReconnect = defaultMaxReconnect
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = maxReconnect

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := t.session(ctx, out)
		if err == nil {
			// Clean close: all markets terminal or server done.
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		sleep := bo.NextBackOff()
		if sleep == backoff.Stop {
			sleep = maxReconnect
		}
		slog.Warn("kalshi: ticker stream disconnected, reconnecting",
			"err", err, "backoff", sleep.Round(time.Millisecond))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sleep):
		}
	}
}

// session dials, subscribes, and pumps ticks until the connection drops.
func (t *TickerStream) session(ctx context.Context, out chan<- domain.MarketTick) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("kalshi.session: dial %q: %w", t.cfg.URL, err)
	}
	defer conn.Close()

	sub := subscribeCmd{
		ID:  1,
		Cmd: "subscribe",
		Params: subscribeBody{
			Channels:      []string{"ticker"},
			MarketTickers: t.cfg.MarketTickers,
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("kalshi.session: subscribe: %w", err)
	}
	slog.Info("kalshi: ticker stream subscribed", "markets", len(t.cfg.MarketTickers))

	// Unblock the blocking read when ctx is canceled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			return fmt.Errorf("kalshi.session: set deadline: %w", err)
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kalshi.session: read: %w", err)
		}

		var msg tickerMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("kalshi: unparseable ws message dropped", "err", err)
			continue
		}
		if msg.Type != "ticker" || msg.Msg.MarketTicker == "" {
			continue
		}

		tick := domain.MarketTick{
			Timestamp:    time.Unix(msg.Msg.TS, 0).UTC(),
			MarketID:     msg.Msg.MarketTicker,
			Price:        msg.Msg.Price / 100,
			YesBidProb:   msg.Msg.YesBid / 100,
			YesAskProb:   msg.Msg.YesAsk / 100,
			Volume:       msg.Msg.Volume,
			OpenInterest: msg.Msg.OpenInterest,
			Status:       msg.Msg.Status,
		}
		if msg.Msg.TS == 0 {
			tick.Timestamp = time.Now().UTC()
		}

		select {
		case out <- tick:
		case <-ctx.Done():
			return nil
		}
	}
}
