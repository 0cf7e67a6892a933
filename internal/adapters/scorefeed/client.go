// Package scorefeed implementa el feed de marcador como un cliente de
// polling sobre el scoreboard HTTP público del deporte. El merger aguas
// abajo coalesce los snapshots repetidos, así que aquí se emite cada
// poll sin deduplicar.
package scorefeed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// Config configura el poller para un partido.
type Config struct {
	BaseURL      string
	GameID       string
	PollInterval time.Duration // default 1s
	StopOnFinal  bool
}

// Poller implementa ports.ScoreFeed.
type Poller struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// NewPoller crea el feed de marcador.
func NewPoller(cfg Config) *Poller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Poller{
		cfg:     cfg,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(cfg.PollInterval), 1),
	}
}

// scoreboardPayload es la forma mínima que necesitamos del scoreboard.
type scoreboardPayload struct {
	GameID    string `json:"game_id"`
	HomeScore int    `json:"home_score"`
	AwayScore int    `json:"away_score"`
	Status    string `json:"status"`
	Period    any    `json:"period"`
	Clock     string `json:"clock"`
}

// Run hace polling hasta que el partido termina, o ctx se cancela.
// Los errores transitorios (red, parseo) se loggean y se reintenta en
// el siguiente tick: nunca son fatales.
func (p *Poller) Run(ctx context.Context, out chan<- domain.ScoreEvent) error {
	url := fmt.Sprintf("%s/games/%s", p.cfg.BaseURL, p.cfg.GameID)
	consecutiveErrs := 0

	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil
		}

		ev, err := p.fetch(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			consecutiveErrs++
			slog.Warn("scorefeed: poll failed, will retry",
				"game_id", p.cfg.GameID, "consecutive", consecutiveErrs, "err", err)
			continue
		}
		consecutiveErrs = 0

		select {
		case out <- ev:
		case <-ctx.Done():
			return nil
		}

		if p.cfg.StopOnFinal && ev.Status == domain.GameFinal {
			slog.Info("scorefeed: game final, stopping", "game_id", p.cfg.GameID)
			return nil
		}
	}
}

func (p *Poller) fetch(ctx context.Context, url string) (domain.ScoreEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.ScoreEvent{}, fmt.Errorf("scorefeed.fetch: build request: %w", err)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return domain.ScoreEvent{}, fmt.Errorf("scorefeed.fetch: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.ScoreEvent{}, fmt.Errorf("scorefeed.fetch: read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.ScoreEvent{}, fmt.Errorf("scorefeed.fetch: status %d", resp.StatusCode)
	}

	var payload scoreboardPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.ScoreEvent{}, fmt.Errorf("scorefeed.fetch: decode: %w", err)
	}

	return domain.ScoreEvent{
		Timestamp: time.Now().UTC(),
		GameID:    p.cfg.GameID,
		ScoreHome: payload.HomeScore,
		ScoreAway: payload.AwayScore,
		Status:    normalizeStatus(payload.Status),
		Context: map[string]any{
			"status": payload.Status,
			"period": payload.Period,
			"clock":  payload.Clock,
		},
	}, nil
}

// normalizeStatus mapea los estados del scoreboard a los nuestros.
func normalizeStatus(s string) domain.GameStatus {
	switch s {
	case "FINAL", "Final", "final", "STATUS_FINAL":
		return domain.GameFinal
	case "", "SCHEDULED", "Scheduled", "scheduled", "PRE_GAME":
		return domain.GameScheduled
	}
	return domain.GameInProgress
}
