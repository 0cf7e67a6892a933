package kalshi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/kalshibot/internal/broker"
	"github.com/alejandrodnm/kalshibot/internal/domain"
)

const (
	tradeRatePerSec = 5
	readRatePerSec  = 10
)

// Client es el cliente REST autenticado del exchange. Implementa
// broker.ExchangeClient.
type Client struct {
	base       string
	apiKey     string
	http       *http.Client
	tradeLimit *rate.Limiter
	readLimit  *rate.Limiter
}

// NewClient crea el cliente. apiKey no puede estar vacío: sin
// credenciales no hay trading en vivo.
func NewClient(base, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("kalshi.NewClient: missing API key")
	}
	return &Client{
		base:       base,
		apiKey:     apiKey,
		http:       &http.Client{Timeout: 15 * time.Second},
		tradeLimit: rate.NewLimiter(tradeRatePerSec, 5),
		readLimit:  rate.NewLimiter(readRatePerSec, 10),
	}, nil
}

type balanceResponse struct {
	Balance int64 `json:"balance"` // céntimos
}

// Balance devuelve el balance disponible de la cuenta en USD.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	var resp balanceResponse
	if err := c.get(ctx, c.readLimit, "/trade-api/v2/portfolio/balance", &resp); err != nil {
		return 0, fmt.Errorf("kalshi.Balance: %w", err)
	}
	return float64(resp.Balance) / 100, nil
}

type orderBody struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Side          string `json:"side"`   // yes | no
	Action        string `json:"action"` // buy | sell
	Count         int64  `json:"count"`
	Type          string `json:"type"` // limit
	YesPrice      int64  `json:"yes_price,omitempty"`
	NoPrice       int64  `json:"no_price,omitempty"`
}

type orderEnvelope struct {
	Order struct {
		OrderID        string `json:"order_id"`
		Status         string `json:"status"`
		TakerFillCount int64  `json:"taker_fill_count"`
		TakerFillCost  int64  `json:"taker_fill_cost"` // céntimos totales
		RemainingCount int64  `json:"remaining_count"`
		Reason         string `json:"reason"`
	} `json:"order"`
}

// SubmitOrder envía una orden límite inmediata con client_order_id
// idempotente: reenviar el mismo ID nunca duplica la orden.
func (c *Client) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResponse, error) {
	body := orderBody{
		Ticker:        req.MarketID,
		ClientOrderID: req.ClientOrderID,
		Side:          string(req.Side),
		Action:        "buy",
		Count:         int64(math.Round(req.Size)),
		Type:          "limit",
	}
	if !req.Buy {
		body.Action = "sell"
	}
	priceCents := int64(math.Round(req.LimitPrice * 100))
	if req.Side == domain.TradeNo {
		body.NoPrice = priceCents
	} else {
		body.YesPrice = priceCents
	}

	var resp orderEnvelope
	if err := c.post(ctx, c.tradeLimit, "/trade-api/v2/portfolio/orders", body, &resp); err != nil {
		return broker.OrderResponse{}, fmt.Errorf("kalshi.SubmitOrder: %w", err)
	}
	return normalizeOrder(resp, req.Size), nil
}

// OrderStatus consulta el estado actual de una orden enviada.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (broker.OrderResponse, error) {
	var resp orderEnvelope
	if err := c.get(ctx, c.readLimit, "/trade-api/v2/portfolio/orders/"+orderID, &resp); err != nil {
		return broker.OrderResponse{}, fmt.Errorf("kalshi.OrderStatus: %w", err)
	}
	return normalizeOrder(resp, 0), nil
}

// normalizeOrder traduce la respuesta del exchange al contrato del broker.
func normalizeOrder(env orderEnvelope, requested float64) broker.OrderResponse {
	o := env.Order
	out := broker.OrderResponse{
		OrderID:    o.OrderID,
		FilledSize: float64(o.TakerFillCount),
		Reason:     o.Reason,
	}
	if o.TakerFillCount > 0 {
		out.FilledPrice = float64(o.TakerFillCost) / float64(o.TakerFillCount) / 100
	}

	switch o.Status {
	case "executed":
		out.Status = "filled"
	case "canceled", "cancelled", "rejected":
		out.Status = "rejected"
	default:
		// resting/pending: algo se llenó → parcial; nada → pendiente
		if o.TakerFillCount > 0 && (o.RemainingCount > 0 || (requested > 0 && float64(o.TakerFillCount) < requested)) {
			out.Status = "partial"
		} else if o.TakerFillCount > 0 {
			out.Status = "filled"
		} else {
			out.Status = "pending"
		}
	}
	return out
}

func (c *Client) get(ctx context.Context, limiter *rate.Limiter, path string, out any) error {
	return c.do(ctx, limiter, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, limiter *rate.Limiter, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	return c.do(ctx, limiter, http.MethodPost, path, data, out)
}

func (c *Client) do(ctx context.Context, limiter *rate.Limiter, method, path string, body []byte, out any) error {
	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, truncate(string(data), 200))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
