// Package sim implements the backtesting engine: a day-stepped portfolio
// simulator over daily bars, the statistics pipeline that condenses a run
// into a SimulationResult, a randomized strategy comparator, and a market
// regime analyzer.
package sim

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"mateo/internal/domain"
	"mateo/internal/store"
)

// minBarsPerSymbol is the minimum history a symbol needs to participate in a
// simulation. Shorter series are dropped by the loader.
const minBarsPerSymbol = 30

// SymbolData bundles one symbol's bars with the indicators derived from them.
// Bars are ascending by date. Indicators are filled in by the engine for the
// window being simulated.
type SymbolData struct {
	Symbol     string
	Bars       []domain.Bar
	Indicators []domain.IndicatorSnapshot
}

// Loader supplies price data to the engine. Implementations return only
// symbols with at least minBarsPerSymbol bars in the window, sorted by
// symbol.
type Loader interface {
	// LoadPriceData returns bar series for the requested symbols (or the
	// whole stored universe when symbols is empty) within [start, end].
	// An empty exchange matches all exchanges.
	LoadPriceData(ctx context.Context, symbols []string, start, end, assetType, exchange string) ([]SymbolData, error)
}

// StoreLoader implements Loader on top of the bar and metadata stores.
type StoreLoader struct {
	Bars store.BarStore
	Meta store.MetadataStore
}

var _ Loader = (*StoreLoader)(nil)

// NewStoreLoader creates a loader backed by the given stores. meta may be nil
// when no exchange filtering is needed.
func NewStoreLoader(bars store.BarStore, meta store.MetadataStore) *StoreLoader {
	return &StoreLoader{Bars: bars, Meta: meta}
}

// LoadPriceData reads bars for the requested universe, applies the exchange
// filter and the minimum-history filter, and returns the surviving symbols
// sorted ascending.
func (l *StoreLoader) LoadPriceData(ctx context.Context, symbols []string, start, end, assetType, exchange string) ([]SymbolData, error) {
	if assetType == "" {
		assetType = domain.AssetTypeStock
	}

	universe, err := l.resolveUniverse(ctx, symbols, assetType, exchange)
	if err != nil {
		return nil, err
	}

	var out []SymbolData
	for _, sym := range universe {
		bars, err := l.Bars.ReadBars(ctx, assetType, sym, start, end)
		if err != nil {
			return nil, fmt.Errorf("reading bars for %s: %w", sym, err)
		}
		if len(bars) < minBarsPerSymbol {
			continue
		}
		out = append(out, SymbolData{Symbol: sym, Bars: bars})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (l *StoreLoader) resolveUniverse(ctx context.Context, symbols []string, assetType, exchange string) ([]string, error) {
	if len(symbols) > 0 {
		requested := make([]string, 0, len(symbols))
		for _, s := range symbols {
			requested = append(requested, strings.ToUpper(s))
		}
		if exchange == "" || l.Meta == nil {
			return requested, nil
		}
		listed, err := l.Meta.ListSymbolsByExchange(ctx, assetType, exchange)
		if err != nil {
			return nil, err
		}
		onExchange := make(map[string]bool, len(listed))
		for _, s := range listed {
			onExchange[s] = true
		}
		var filtered []string
		for _, s := range requested {
			if onExchange[s] {
				filtered = append(filtered, s)
			}
		}
		return filtered, nil
	}

	if exchange != "" && l.Meta != nil {
		return l.Meta.ListSymbolsByExchange(ctx, assetType, exchange)
	}
	return l.Bars.ListSymbols(ctx, assetType)
}
