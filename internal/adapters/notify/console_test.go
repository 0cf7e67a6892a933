package notify

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

func TestReport_PrintsSummaryAndGames(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	c.Report(domain.BacktestResult{
		RunID:    "run-1",
		Sport:    "nba",
		Strategy: "price_logger",
		Summary:  domain.Summary{RealizedPnL: 12.5, TradeCount: 4, WinRate: 0.5},
		Games: []domain.GameResult{
			{GameID: "g1", States: 100, Summary: domain.Summary{RealizedPnL: 12.5, TradeCount: 4}},
			{GameID: "g2", Error: "recording truncated"},
		},
		PerStrategy: map[string]domain.StrategyStats{
			"price_logger": {Trades: 4, PnL: 12.5},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "$12.50")
	assert.Contains(t, out, "g1")
	assert.Contains(t, out, "ERROR: recording truncated")
	assert.Contains(t, out, "price_logger")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a much ...", truncate("a much longer string", 10))
}
