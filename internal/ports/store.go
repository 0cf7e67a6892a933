package ports

import (
	"context"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// StateWriter persiste el stream de merged states de un partido.
// Append-only: un registro por estado, en orden de emisión.
type StateWriter interface {
	Append(ctx context.Context, state domain.MergedState) error
	Close() error
}

// StateSource lee secuencias de estados grabadas para backtests.
// El contrato de lectura: ordenado por timestamp, un partido por
// secuencia, agrupado por deporte.
type StateSource interface {
	// Games devuelve los game IDs disponibles para un deporte, ordenados.
	Games(ctx context.Context, sport string) ([]string, error)

	// Load devuelve la secuencia completa de un partido en orden original.
	Load(ctx context.Context, sport, gameID string) ([]domain.MergedState, error)
}

// RunStore persiste los resultados completos de un backtest run
// (config, trades, curva de equity) bajo su run_id.
type RunStore interface {
	SaveRun(ctx context.Context, result domain.BacktestResult, configJSON string) error
	Close() error
}
