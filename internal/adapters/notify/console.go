package notify

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// Console imprime resultados de backtest por stdout.
type Console struct {
	out io.Writer
}

// NewConsole crea el reporter sobre stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea el reporter sobre un writer arbitrario (tests).
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Report imprime el resumen del run, la tabla por partido y la
// atribución por estrategia.
func (c *Console) Report(result domain.BacktestResult) {
	fmt.Fprintf(c.out, "\n=== BACKTEST %s | sport=%s strategy=%s ===\n",
		result.RunID, result.Sport, result.Strategy)
	fmt.Fprintf(c.out, "P&L: $%.2f | trades: %d | win rate: %.1f%% | max drawdown: $%.2f | games: %d (%d failed)\n\n",
		result.Summary.RealizedPnL,
		result.Summary.TradeCount,
		result.Summary.WinRate*100,
		result.Summary.MaxDrawdown,
		len(result.Games),
		result.GamesFailed,
	)

	c.printGames(result.Games)
	c.printAttribution(result.PerStrategy)
}

func (c *Console) printGames(games []domain.GameResult) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Game", "States", "Trades", "P&L", "Settle P&L", "Win%", "MaxDD", "Notes")

	for _, g := range games {
		if g.Error != "" {
			table.Append(g.GameID, "-", "-", "-", "-", "-", "-", "ERROR: "+truncate(g.Error, 40))
			continue
		}
		notes := ""
		if len(g.Notes) > 0 {
			notes = truncate(g.Notes[0], 40)
			if len(g.Notes) > 1 {
				notes += fmt.Sprintf(" (+%d)", len(g.Notes)-1)
			}
		}
		table.Append(
			g.GameID,
			fmt.Sprintf("%d", g.States),
			fmt.Sprintf("%d", g.Summary.TradeCount),
			fmt.Sprintf("$%.2f", g.Summary.RealizedPnL),
			fmt.Sprintf("$%.2f", g.Summary.SettlementPnL),
			fmt.Sprintf("%.0f%%", g.Summary.WinRate*100),
			fmt.Sprintf("$%.2f", g.Summary.MaxDrawdown),
			notes,
		)
	}
	table.Render()
}

func (c *Console) printAttribution(stats map[string]domain.StrategyStats) {
	if len(stats) == 0 {
		return
	}
	names := make([]string, 0, len(stats))
	for n := range stats {
		names = append(names, n)
	}
	sort.Strings(names)

	fmt.Fprintln(c.out, "\nPer-strategy attribution:")
	table := tablewriter.NewWriter(c.out)
	table.Header("Strategy", "Trades", "P&L")
	for _, n := range names {
		st := stats[n]
		table.Append(n, fmt.Sprintf("%d", st.Trades), fmt.Sprintf("$%.2f", st.PnL))
	}
	table.Render()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
