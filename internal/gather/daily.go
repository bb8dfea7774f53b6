package gather

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"mateo/internal/domain"
	"mateo/internal/store"
	"mateo/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ Gatherer = (*StockDailyGatherer)(nil)
var _ Gatherer = (*CryptoDailyGatherer)(nil)

const (
	fetchAttempts  = 3
	fetchBaseDelay = 2 * time.Second
)

// ---------------------------------------------------------------------------
// StockDailyGatherer — daily OHLCV bars for US equities.
// ---------------------------------------------------------------------------

// StockDailyGatherer fetches daily bars for the known equity universe via the
// Alpaca market-data API. The universe comes from synced symbol metadata,
// falling back to symbols already present in the bar store.
type StockDailyGatherer struct {
	client    *marketdata.Client
	bars      store.BarStore
	meta      store.MetadataStore
	batchSize int
	workers   int
	startDate string
	limiter   *util.RateLimiter
	log       *slog.Logger
}

// NewStockDailyGatherer creates a StockDailyGatherer with the given Alpaca
// credentials, target stores, and batch parameters.
func NewStockDailyGatherer(apiKey, apiSecret, dataURL string, bars store.BarStore, meta store.MetadataStore, batchSize, workers, rateLimitPerMin int, startDate string) *StockDailyGatherer {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	return &StockDailyGatherer{
		client:    marketdata.NewClient(opts),
		bars:      bars,
		meta:      meta,
		batchSize: max(batchSize, 1),
		workers:   max(workers, 1),
		startDate: startDate,
		limiter:   util.NewRateLimiter(rateLimitPerMin),
		log:       slog.Default().With("gatherer", "stock-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *StockDailyGatherer) Name() string { return "stock-daily" }

// Run fetches daily bars for the equity universe and writes them to the bar
// store. A rerun the same day refetches only dates after the last stored bar,
// so it is cheap and idempotent.
func (g *StockDailyGatherer) Run(ctx context.Context) error {
	symbols, err := resolveUniverse(ctx, g.meta, g.bars, domain.AssetTypeStock)
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		g.log.Info("no symbols to gather")
		return nil
	}

	start, end, err := fetchWindow(ctx, g.bars, domain.AssetTypeStock, g.startDate)
	if err != nil {
		return err
	}
	if !start.Before(end) {
		g.log.Info("already up to date", "through", formatDay(end))
		return nil
	}

	batches := splitBatches(symbols, g.batchSize)
	g.log.Info("starting stock-daily",
		"symbols", len(symbols),
		"batches", len(batches),
		"start", formatDay(start),
		"end", formatDay(end),
	)

	written, err := g.runBatches(ctx, batches, start, end)
	if err != nil {
		return err
	}
	g.log.Info("complete", "symbols", len(symbols), "barsWritten", written)
	return nil
}

func (g *StockDailyGatherer) runBatches(ctx context.Context, batches [][]string, start, end time.Time) (int64, error) {
	jobCh := make(chan int, len(batches))
	for i := range batches {
		jobCh <- i
	}
	close(jobCh)

	var (
		wg      sync.WaitGroup
		written atomic.Int64
	)
	workers := min(g.workers, len(batches))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobCh {
				if ctx.Err() != nil {
					return
				}
				n, err := g.fetchBatch(ctx, batches[idx], start, end)
				if err != nil {
					g.log.Error("batch failed", "batch", fmt.Sprintf("%d/%d", idx+1, len(batches)), "error", err)
					continue
				}
				written.Add(n)
				g.log.Info("batch done", "batch", fmt.Sprintf("%d/%d", idx+1, len(batches)), "bars", n)
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return written.Load(), err
	}
	return written.Load(), nil
}

func (g *StockDailyGatherer) fetchBatch(ctx context.Context, symbols []string, start, end time.Time) (int64, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	var multiBars map[string][]marketdata.Bar
	err := util.Retry(ctx, fetchAttempts, fetchBaseDelay, func() error {
		var ferr error
		multiBars, ferr = g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end,
			Feed:      "sip",
		})
		return ferr
	})
	if err != nil {
		return 0, fmt.Errorf("GetMultiBars: %w", err)
	}

	var written int64
	for symbol, alpacaBars := range multiBars {
		bars := make([]domain.Bar, 0, len(alpacaBars))
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Date:   formatDay(ab.Timestamp),
				Open:   ab.Open,
				High:   ab.High,
				Low:    ab.Low,
				Close:  ab.Close,
				Volume: int64(ab.Volume),
			})
		}
		if len(bars) == 0 {
			continue
		}
		if err := g.bars.WriteBars(ctx, domain.AssetTypeStock, strings.ToUpper(symbol), bars); err != nil {
			return written, fmt.Errorf("writing %s: %w", symbol, err)
		}
		written += int64(len(bars))
	}
	return written, nil
}

// ---------------------------------------------------------------------------
// CryptoDailyGatherer — daily OHLCV bars for crypto pairs.
// ---------------------------------------------------------------------------

// defaultCryptoPairs seeds the crypto universe when no metadata has been
// synced yet.
var defaultCryptoPairs = []string{
	"BTC/USD", "ETH/USD", "LTC/USD", "BCH/USD", "SOL/USD",
	"DOGE/USD", "AVAX/USD", "LINK/USD", "DOT/USD", "UNI/USD",
}

// CryptoDailyGatherer fetches daily bars for crypto pairs via the Alpaca
// crypto market-data API.
type CryptoDailyGatherer struct {
	client    *marketdata.Client
	bars      store.BarStore
	meta      store.MetadataStore
	batchSize int
	workers   int
	startDate string
	limiter   *util.RateLimiter
	log       *slog.Logger
}

// NewCryptoDailyGatherer creates a CryptoDailyGatherer with the given Alpaca
// credentials, target stores, and batch parameters.
func NewCryptoDailyGatherer(apiKey, apiSecret, dataURL string, bars store.BarStore, meta store.MetadataStore, batchSize, workers, rateLimitPerMin int, startDate string) *CryptoDailyGatherer {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	return &CryptoDailyGatherer{
		client:    marketdata.NewClient(opts),
		bars:      bars,
		meta:      meta,
		batchSize: max(batchSize, 1),
		workers:   max(workers, 1),
		startDate: startDate,
		limiter:   util.NewRateLimiter(rateLimitPerMin),
		log:       slog.Default().With("gatherer", "crypto-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *CryptoDailyGatherer) Name() string { return "crypto-daily" }

// Run fetches daily bars for the crypto universe. Pairs are stored under
// their flattened symbol (BTC/USD becomes BTCUSD) so store paths stay flat.
func (g *CryptoDailyGatherer) Run(ctx context.Context) error {
	pairs, err := g.resolvePairs(ctx)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		g.log.Info("no pairs to gather")
		return nil
	}

	start, end, err := fetchWindow(ctx, g.bars, domain.AssetTypeCrypto, g.startDate)
	if err != nil {
		return err
	}
	if !start.Before(end) {
		g.log.Info("already up to date", "through", formatDay(end))
		return nil
	}

	batches := splitBatches(pairs, g.batchSize)
	g.log.Info("starting crypto-daily",
		"pairs", len(pairs),
		"batches", len(batches),
		"start", formatDay(start),
		"end", formatDay(end),
	)

	jobCh := make(chan int, len(batches))
	for i := range batches {
		jobCh <- i
	}
	close(jobCh)

	var (
		wg      sync.WaitGroup
		written atomic.Int64
	)
	workers := min(g.workers, len(batches))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobCh {
				if ctx.Err() != nil {
					return
				}
				n, err := g.fetchBatch(ctx, batches[idx], start, end)
				if err != nil {
					g.log.Error("batch failed", "batch", fmt.Sprintf("%d/%d", idx+1, len(batches)), "error", err)
					continue
				}
				written.Add(n)
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	g.log.Info("complete", "pairs", len(pairs), "barsWritten", written.Load())
	return nil
}

// resolvePairs prefers synced crypto metadata, then falls back to the default
// major pairs. Metadata symbols are stored flattened, so slashes are restored
// for the API call.
func (g *CryptoDailyGatherer) resolvePairs(ctx context.Context) ([]string, error) {
	symbols, err := g.meta.ListSymbolsByExchange(ctx, domain.AssetTypeCrypto, "")
	if err != nil {
		return nil, fmt.Errorf("listing crypto symbols: %w", err)
	}
	if len(symbols) == 0 {
		return defaultCryptoPairs, nil
	}

	pairs := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		pairs = append(pairs, restorePair(sym))
	}
	sort.Strings(pairs)
	return pairs, nil
}

func (g *CryptoDailyGatherer) fetchBatch(ctx context.Context, pairs []string, start, end time.Time) (int64, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	var multiBars map[string][]marketdata.CryptoBar
	err := util.Retry(ctx, fetchAttempts, fetchBaseDelay, func() error {
		var ferr error
		multiBars, ferr = g.client.GetCryptoMultiBars(pairs, marketdata.GetCryptoBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end,
		})
		return ferr
	})
	if err != nil {
		return 0, fmt.Errorf("GetCryptoMultiBars: %w", err)
	}

	var written int64
	for pair, cryptoBars := range multiBars {
		bars := make([]domain.Bar, 0, len(cryptoBars))
		for _, cb := range cryptoBars {
			bars = append(bars, domain.Bar{
				Date:   formatDay(cb.Timestamp),
				Open:   cb.Open,
				High:   cb.High,
				Low:    cb.Low,
				Close:  cb.Close,
				Volume: int64(cb.Volume),
			})
		}
		if len(bars) == 0 {
			continue
		}
		if err := g.bars.WriteBars(ctx, domain.AssetTypeCrypto, flattenPair(pair), bars); err != nil {
			return written, fmt.Errorf("writing %s: %w", pair, err)
		}
		written += int64(len(bars))
	}
	return written, nil
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

// resolveUniverse prefers synced metadata over symbols already in the bar
// store, so a fresh deployment gathers the full listed universe after one
// asset sync.
func resolveUniverse(ctx context.Context, meta store.MetadataStore, bars store.BarStore, assetType string) ([]string, error) {
	symbols, err := meta.ListSymbolsByExchange(ctx, assetType, "")
	if err != nil {
		return nil, fmt.Errorf("listing %s metadata: %w", assetType, err)
	}
	if len(symbols) == 0 {
		symbols, err = bars.ListSymbols(ctx, assetType)
		if err != nil {
			return nil, fmt.Errorf("listing stored %s symbols: %w", assetType, err)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// fetchWindow returns the [start, end) fetch range: the configured start, or
// the day after the newest stored bar when data already exists. End is the
// start of today UTC so only finished days are fetched.
func fetchWindow(ctx context.Context, bars store.BarStore, assetType, startDate string) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing start date %q: %w", startDate, err)
	}

	_, maxDate, err := bars.DataRange(ctx, assetType)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("reading data range: %w", err)
	}
	if maxDate != "" {
		last, err := time.Parse("2006-01-02", maxDate)
		if err == nil {
			resume := last.AddDate(0, 0, 1)
			if resume.After(start) {
				start = resume
			}
		}
	}

	now := time.Now().UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return start, end, nil
}

// splitBatches chunks symbols into batchSize groups preserving order.
func splitBatches(symbols []string, batchSize int) [][]string {
	if batchSize < 1 {
		batchSize = 1
	}
	var batches [][]string
	for i := 0; i < len(symbols); i += batchSize {
		end := min(i+batchSize, len(symbols))
		batches = append(batches, symbols[i:end])
	}
	return batches
}

// flattenPair strips the slash from a crypto pair for use as a store symbol.
func flattenPair(pair string) string {
	return strings.ToUpper(strings.ReplaceAll(pair, "/", ""))
}

// restorePair rebuilds the API pair form from a flattened symbol. Quote
// currency is assumed to be the trailing USD-style code.
func restorePair(symbol string) string {
	symbol = strings.ToUpper(symbol)
	if strings.Contains(symbol, "/") {
		return symbol
	}
	for _, quote := range []string{"USDT", "USDC", "USD", "BTC", "ETH"} {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			return symbol[:len(symbol)-len(quote)] + "/" + quote
		}
	}
	return symbol
}

func formatDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
