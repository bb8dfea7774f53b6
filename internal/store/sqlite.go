package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"mateo/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ MetadataStore = (*SQLiteStore)(nil)
var _ SignalStore = (*SQLiteStore)(nil)

// SQLiteStore implements MetadataStore and SignalStore backed by a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS symbol_metadata (
	symbol     TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	exchange   TEXT NOT NULL DEFAULT '',
	sector     TEXT NOT NULL DEFAULT '',
	asset_type TEXT NOT NULL DEFAULT 'stock'
);

CREATE TABLE IF NOT EXISTS computed_signals (
	symbol             TEXT PRIMARY KEY,
	asset_type         TEXT NOT NULL DEFAULT 'stock',
	name               TEXT NOT NULL DEFAULT '',
	exchange           TEXT NOT NULL DEFAULT '',
	sector             TEXT NOT NULL DEFAULT '',
	price              REAL NOT NULL DEFAULT 0,
	change             REAL NOT NULL DEFAULT 0,
	change_percent     REAL NOT NULL DEFAULT 0,
	signal             TEXT NOT NULL DEFAULT 'HOLD',
	macd_histogram     REAL NOT NULL DEFAULT 0,
	macd_histogram_adj REAL NOT NULL DEFAULT 0,
	rsi                REAL NOT NULL DEFAULT 0,
	signal_strength    REAL NOT NULL DEFAULT 0,
	last_signal_change TEXT NOT NULL DEFAULT '',
	signal_changes     INTEGER NOT NULL DEFAULT 0,
	data_points        INTEGER NOT NULL DEFAULT 0,
	volume             INTEGER NOT NULL DEFAULT 0,
	computed_at        INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_signals_type ON computed_signals(asset_type, signal);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// MetadataStore implementation
// ---------------------------------------------------------------------------

// SaveSymbolMeta inserts or updates metadata rows in one transaction.
func (s *SQLiteStore) SaveSymbolMeta(ctx context.Context, meta []domain.SymbolMeta) error {
	if len(meta) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO symbol_metadata (symbol, name, exchange, sector, asset_type)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range meta {
		if _, err := stmt.ExecContext(ctx, strings.ToUpper(m.Symbol), m.Name, m.Exchange, m.Sector, m.AssetType); err != nil {
			return fmt.Errorf("saving metadata for %s: %w", m.Symbol, err)
		}
	}
	return tx.Commit()
}

// GetSymbolMeta returns the metadata for one symbol, or nil when unknown.
func (s *SQLiteStore) GetSymbolMeta(ctx context.Context, symbol string) (*domain.SymbolMeta, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT symbol, name, exchange, sector, asset_type
		FROM symbol_metadata WHERE symbol = ?`, strings.ToUpper(symbol))

	var m domain.SymbolMeta
	if err := row.Scan(&m.Symbol, &m.Name, &m.Exchange, &m.Sector, &m.AssetType); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// ListSymbolsByExchange returns the symbols of the asset type listed on the
// given exchange, ascending. An empty exchange matches all.
func (s *SQLiteStore) ListSymbolsByExchange(ctx context.Context, assetType, exchange string) ([]string, error) {
	query := `SELECT symbol FROM symbol_metadata WHERE asset_type = ?`
	args := []any{assetType}
	if exchange != "" {
		query += ` AND exchange = ?`
		args = append(args, exchange)
	}
	query += ` ORDER BY symbol`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// ---------------------------------------------------------------------------
// SignalStore implementation
// ---------------------------------------------------------------------------

// analysisSortColumns whitelists the sortable columns for ListAnalyses.
var analysisSortColumns = map[string]string{
	"symbol":         "symbol",
	"price":          "price",
	"changePercent":  "change_percent",
	"signal":         "signal",
	"rsi":            "rsi",
	"signalStrength": "signal_strength",
	"signalChanges":  "signal_changes",
	"volume":         "volume",
}

// SaveAnalyses replaces the cached analysis rows for the given symbols.
func (s *SQLiteStore) SaveAnalyses(ctx context.Context, assetType string, rows []domain.StockAnalysis, computedAt time.Time) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO computed_signals (
			symbol, asset_type, name, exchange, sector, price, change,
			change_percent, signal, macd_histogram, macd_histogram_adj, rsi,
			signal_strength, last_signal_change, signal_changes, data_points,
			volume, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	ts := computedAt.UnixMilli()
	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			strings.ToUpper(r.Symbol), assetType, r.Name, r.Exchange, r.Sector,
			r.Price, r.Change, r.ChangePercent, r.Signal, r.MACDHistogram,
			r.MACDHistogramAdj, r.RSI, r.SignalStrength, r.LastSignalChange,
			r.SignalChanges, r.DataPoints, r.Volume, ts)
		if err != nil {
			return fmt.Errorf("saving analysis for %s: %w", r.Symbol, err)
		}
	}
	return tx.Commit()
}

// ListAnalyses returns the filtered page of rows plus the unpaged total.
func (s *SQLiteStore) ListAnalyses(ctx context.Context, f AnalysisFilter) ([]domain.StockAnalysis, int, error) {
	where := `WHERE asset_type = ?`
	args := []any{f.AssetType}
	if f.Signal != "" {
		where += ` AND signal = ?`
		args = append(args, f.Signal)
	}
	if f.Search != "" {
		where += ` AND (symbol LIKE ? OR name LIKE ?)`
		pattern := "%" + strings.ToUpper(f.Search) + "%"
		args = append(args, pattern, "%"+f.Search+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM computed_signals `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	col, ok := analysisSortColumns[f.SortBy]
	if !ok {
		col = "symbol"
	}
	dir := "DESC"
	if f.SortAsc {
		dir = "ASC"
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT symbol, name, exchange, sector, price, change, change_percent,
		       signal, macd_histogram, macd_histogram_adj, rsi, signal_strength,
		       last_signal_change, signal_changes, data_points, volume
		FROM computed_signals %s
		ORDER BY %s %s, symbol ASC
		LIMIT ? OFFSET ?`, where, col, dir)
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []domain.StockAnalysis
	for rows.Next() {
		var a domain.StockAnalysis
		err := rows.Scan(&a.Symbol, &a.Name, &a.Exchange, &a.Sector, &a.Price,
			&a.Change, &a.ChangePercent, &a.Signal, &a.MACDHistogram,
			&a.MACDHistogramAdj, &a.RSI, &a.SignalStrength,
			&a.LastSignalChange, &a.SignalChanges, &a.DataPoints, &a.Volume)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// GetAnalysis returns the cached row for one symbol, or nil when absent.
func (s *SQLiteStore) GetAnalysis(ctx context.Context, symbol string) (*domain.StockAnalysis, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT symbol, name, exchange, sector, price, change, change_percent,
		       signal, macd_histogram, macd_histogram_adj, rsi, signal_strength,
		       last_signal_change, signal_changes, data_points, volume
		FROM computed_signals WHERE symbol = ?`, strings.ToUpper(symbol))

	var a domain.StockAnalysis
	err := row.Scan(&a.Symbol, &a.Name, &a.Exchange, &a.Sector, &a.Price,
		&a.Change, &a.ChangePercent, &a.Signal, &a.MACDHistogram,
		&a.MACDHistogramAdj, &a.RSI, &a.SignalStrength,
		&a.LastSignalChange, &a.SignalChanges, &a.DataPoints, &a.Volume)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// TopPerformers returns the top gainers, losers, and strongest BUY rows.
func (s *SQLiteStore) TopPerformers(ctx context.Context, assetType string, limit int) ([]domain.TopPerformer, []domain.TopPerformer, []domain.TopPerformer, error) {
	if limit <= 0 {
		limit = 10
	}

	gainers, err := s.queryPerformers(ctx, assetType, `ORDER BY change_percent DESC`, limit)
	if err != nil {
		return nil, nil, nil, err
	}
	losers, err := s.queryPerformers(ctx, assetType, `ORDER BY change_percent ASC`, limit)
	if err != nil {
		return nil, nil, nil, err
	}
	strongBuys, err := s.queryPerformers(ctx, assetType, `AND signal = 'BUY' ORDER BY signal_strength DESC`, limit)
	if err != nil {
		return nil, nil, nil, err
	}
	return gainers, losers, strongBuys, nil
}

func (s *SQLiteStore) queryPerformers(ctx context.Context, assetType, tail string, limit int) ([]domain.TopPerformer, error) {
	query := fmt.Sprintf(`
		SELECT symbol, name, price, change_percent, signal, rsi
		FROM computed_signals WHERE asset_type = ? %s LIMIT ?`, tail)

	rows, err := s.db.QueryContext(ctx, query, assetType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TopPerformer
	for rows.Next() {
		var p domain.TopPerformer
		if err := rows.Scan(&p.Symbol, &p.Name, &p.Price, &p.ChangePercent, &p.Signal, &p.RSI); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Stats returns signal counts and the latest compute time.
func (s *SQLiteStore) Stats(ctx context.Context, assetType string) (*SignalStats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN signal = 'BUY' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN signal = 'SELL' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN signal = 'HOLD' THEN 1 ELSE 0 END), 0),
		       COALESCE(MAX(computed_at), 0)
		FROM computed_signals WHERE asset_type = ?`, assetType)

	var st SignalStats
	var lastMs int64
	if err := row.Scan(&st.Total, &st.Buys, &st.Sells, &st.Holds, &lastMs); err != nil {
		return nil, err
	}
	if lastMs > 0 {
		st.LastUpdate = time.UnixMilli(lastMs).UTC()
	}
	return &st, nil
}
