// Package refresh recomputes cached signal analyses for every stored symbol.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mateo/internal/domain"
	"mateo/internal/indicator"
	"mateo/internal/store"
	"mateo/internal/util"
)

// lookbackDays covers enough history for the slow EMA and the 200-day SMA to
// settle before the latest bar.
const lookbackDays = 400

// minBarsRequired matches the floor below which indicator output is too noisy
// to classify.
const minBarsRequired = 30

// Refresher recomputes a StockAnalysis row per symbol from stored bars and
// writes the batch into the signal cache.
type Refresher struct {
	bars    store.BarStore
	meta    store.MetadataStore
	signals store.SignalStore
	workers int
	log     *slog.Logger
}

// NewRefresher creates a Refresher with the given worker count.
func NewRefresher(bars store.BarStore, meta store.MetadataStore, signals store.SignalStore, workers int, log *slog.Logger) *Refresher {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Refresher{bars: bars, meta: meta, signals: signals, workers: workers, log: log}
}

// Refresh recomputes analyses for all symbols of the asset type and replaces
// the cached rows. Symbols with too little history are skipped, not failed.
func (r *Refresher) Refresh(ctx context.Context, assetType string) (int, error) {
	symbols, err := r.bars.ListSymbols(ctx, assetType)
	if err != nil {
		return 0, fmt.Errorf("listing symbols: %w", err)
	}
	if len(symbols) == 0 {
		r.log.Info("no symbols to refresh", "assetType", assetType)
		return 0, nil
	}

	end := util.Today()
	start := util.DaysAgo(lookbackDays)
	params := domain.DefaultStrategyParams()

	jobCh := make(chan string, len(symbols))
	for _, sym := range symbols {
		jobCh <- sym
	}
	close(jobCh)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		rows []domain.StockAnalysis
	)
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobCh {
				if ctx.Err() != nil {
					return
				}
				row, err := r.analyzeSymbol(ctx, assetType, sym, start, end, params)
				if err != nil {
					r.log.Warn("analysis failed", "symbol", sym, "error", err)
					continue
				}
				if row == nil {
					continue
				}
				mu.Lock()
				rows = append(rows, *row)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		r.log.Info("refresh produced no rows", "assetType", assetType)
		return 0, nil
	}

	if err := r.signals.SaveAnalyses(ctx, assetType, rows, time.Now()); err != nil {
		return 0, fmt.Errorf("saving analyses: %w", err)
	}
	r.log.Info("refresh complete", "assetType", assetType, "symbols", len(symbols), "rows", len(rows))
	return len(rows), nil
}

// analyzeSymbol returns nil without error when the symbol has too little
// history to classify.
func (r *Refresher) analyzeSymbol(ctx context.Context, assetType, symbol, start, end string, params domain.StrategyParams) (*domain.StockAnalysis, error) {
	bars, err := r.bars.ReadBars(ctx, assetType, symbol, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) < minBarsRequired {
		return nil, nil
	}

	snaps := indicator.Compute(bars, params)
	if len(snaps) == 0 {
		return nil, nil
	}
	last := snaps[len(snaps)-1]

	row := domain.StockAnalysis{
		Symbol:           symbol,
		Price:            last.Price,
		Signal:           indicator.Classify(snaps, params.RSIPeriod),
		MACDHistogram:    last.Histogram,
		MACDHistogramAdj: last.HistogramAdj,
		RSI:              last.RSI,
		SignalStrength:   indicator.Strength(snaps),
		LastSignalChange: indicator.LastSignalChangeDate(snaps),
		SignalChanges:    indicator.CountSignalChanges(snaps),
		DataPoints:       len(bars),
		Volume:           bars[len(bars)-1].Volume,
	}

	if len(bars) >= 2 {
		prev := bars[len(bars)-2].Close
		row.Change = last.Price - prev
		if prev != 0 {
			row.ChangePercent = (last.Price - prev) / prev * 100
		}
	}

	meta, err := r.meta.GetSymbolMeta(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if meta != nil {
		row.Name = meta.Name
		row.Exchange = meta.Exchange
		row.Sector = meta.Sector
	}

	return &row, nil
}
