package storage

// sqlite.go — persistencia de backtest runs. Cada run guarda su config,
// resumen, trades y curva de equity bajo su run_id, consultable por
// deporte y estrategia.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	_ "modernc.org/sqlite"
)

const runSchema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id       TEXT PRIMARY KEY,
    sport        TEXT NOT NULL,
    strategy     TEXT NOT NULL,
    created_at   DATETIME NOT NULL,
    config_json  TEXT NOT NULL,
    realized_pnl REAL NOT NULL,
    trade_count  INTEGER NOT NULL,
    win_rate     REAL NOT NULL,
    max_drawdown REAL NOT NULL,
    games        INTEGER NOT NULL,
    games_failed INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS run_trades (
    run_id    TEXT NOT NULL,
    game_id   TEXT NOT NULL,
    ts        DATETIME NOT NULL,
    strategy  TEXT NOT NULL,
    market_id TEXT NOT NULL,
    side      TEXT NOT NULL,
    action    TEXT NOT NULL,
    price     REAL NOT NULL,
    size      REAL NOT NULL,
    pnl       REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS run_equity (
    run_id TEXT NOT NULL,
    seq    INTEGER NOT NULL,
    ts     DATETIME NOT NULL,
    equity REAL NOT NULL,
    PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_sport    ON runs(sport, strategy, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_trades_run    ON run_trades(run_id);
`

// SQLiteRunStore implementa ports.RunStore usando SQLite (pure Go, sin CGo).
type SQLiteRunStore struct {
	db *sql.DB
}

// NewSQLiteRunStore abre (o crea) la base de datos y aplica el schema.
func NewSQLiteRunStore(path string) (*SQLiteRunStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteRunStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(runSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteRunStore: apply schema: %w", err)
	}
	return &SQLiteRunStore{db: db}, nil
}

// SaveRun persiste el resultado completo de un run en una transacción.
func (s *SQLiteRunStore) SaveRun(ctx context.Context, result domain.BacktestResult, configJSON string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, sport, strategy, created_at, config_json,
		                  realized_pnl, trade_count, win_rate, max_drawdown, games, games_failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID, result.Sport, result.Strategy, time.Now().UTC(), configJSON,
		result.Summary.RealizedPnL, result.Summary.TradeCount, result.Summary.WinRate,
		result.Summary.MaxDrawdown, len(result.Games), result.GamesFailed,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: insert run %s: %w", result.RunID, err)
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_trades (run_id, game_id, ts, strategy, market_id, side, action, price, size, pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: prepare trades: %w", err)
	}
	defer tradeStmt.Close()

	for _, g := range result.Games {
		for _, t := range g.Trades {
			if _, err := tradeStmt.ExecContext(ctx,
				result.RunID, g.GameID, t.Timestamp, t.StrategyName,
				t.MarketID, string(t.Side), string(t.Action), t.Price, t.Size, t.PnL,
			); err != nil {
				return fmt.Errorf("storage.SaveRun: insert trade: %w", err)
			}
		}
	}

	eqStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_equity (run_id, seq, ts, equity) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: prepare equity: %w", err)
	}
	defer eqStmt.Close()

	for i, pt := range result.EquityCurve {
		if _, err := eqStmt.ExecContext(ctx, result.RunID, i, pt.Timestamp, pt.Equity); err != nil {
			return fmt.Errorf("storage.SaveRun: insert equity point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveRun: commit: %w", err)
	}
	return nil
}

// Close cierra la conexión a la base de datos limpiamente.
func (s *SQLiteRunStore) Close() error {
	return s.db.Close()
}
