// Package store defines storage interfaces for daily price bars, symbol
// metadata, and the precomputed per-symbol signal cache, with Parquet and
// SQLite implementations.
package store

import (
	"context"
	"time"

	"mateo/internal/domain"
	"mateo/pkg/mateo"
)

// BarStore persists and retrieves daily OHLCV bar data, keyed by asset type
// ("stock" or "crypto") and symbol. Dates are ISO calendar dates.
type BarStore interface {
	// WriteBars persists a batch of bars for one symbol, merging with any
	// bars already stored for the same dates.
	WriteBars(ctx context.Context, assetType, symbol string, bars []domain.Bar) error

	// ReadBars returns the symbol's bars within [start, end], ascending by
	// date.
	ReadBars(ctx context.Context, assetType, symbol, start, end string) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols stored for the asset type.
	ListSymbols(ctx context.Context, assetType string) ([]string, error)

	// DataRange returns the earliest and latest bar dates stored for the
	// asset type, or empty strings when nothing is stored.
	DataRange(ctx context.Context, assetType string) (min, max string, err error)
}

// MetadataStore persists reference metadata (name, exchange, sector) for
// listed symbols.
type MetadataStore interface {
	// SaveSymbolMeta inserts or updates metadata rows.
	SaveSymbolMeta(ctx context.Context, meta []domain.SymbolMeta) error

	// GetSymbolMeta returns the metadata for one symbol, or nil when the
	// symbol is unknown.
	GetSymbolMeta(ctx context.Context, symbol string) (*domain.SymbolMeta, error)

	// ListSymbolsByExchange returns the symbols of the asset type listed on
	// the given exchange. An empty exchange matches all.
	ListSymbolsByExchange(ctx context.Context, assetType, exchange string) ([]string, error)
}

// AnalysisFilter selects and orders rows from the signal cache.
type AnalysisFilter struct {
	AssetType string
	Signal    string // BUY, SELL, HOLD, or empty for all
	Search    string // matches symbol or name, case-insensitive
	SortBy    string // validated against a column whitelist
	SortAsc   bool
	Limit     int
	Offset    int
}

// SignalStats summarizes the signal cache for the dashboard header.
type SignalStats = mateo.SignalStats

// SignalStore persists the precomputed per-symbol analysis rows that back
// the stock list endpoints.
type SignalStore interface {
	// SaveAnalyses replaces the cached analysis rows for the given symbols.
	SaveAnalyses(ctx context.Context, assetType string, rows []domain.StockAnalysis, computedAt time.Time) error

	// ListAnalyses returns the filtered page of rows plus the unpaged total.
	ListAnalyses(ctx context.Context, f AnalysisFilter) ([]domain.StockAnalysis, int, error)

	// GetAnalysis returns the cached row for one symbol, or nil when absent.
	GetAnalysis(ctx context.Context, symbol string) (*domain.StockAnalysis, error)

	// TopPerformers returns the top gainers, losers, and strongest BUY rows.
	TopPerformers(ctx context.Context, assetType string, limit int) (gainers, losers, strongBuys []domain.TopPerformer, err error)

	// Stats returns signal counts and the latest compute time.
	Stats(ctx context.Context, assetType string) (*SignalStats, error)
}
