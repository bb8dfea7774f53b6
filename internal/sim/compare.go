package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"mateo/internal/domain"
)

// minWindowDays is the minimum trading-day gap guaranteed between a randomly
// drawn start date and the horizon's end.
const minWindowDays = 60

// Comparator runs randomized simulations across strategies and lookback
// horizons. Random start draws come from an injectable seeded source so runs
// are reproducible in tests.
type Comparator struct {
	engine  *Engine
	workers int
	log     *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand

	// Progress, when set, is called after every finished iteration with the
	// number of completed and total iterations.
	Progress func(completed, total int)
}

// NewComparator creates a comparator running at most workers simulations
// concurrently.
func NewComparator(engine *Engine, workers int, log *slog.Logger) *Comparator {
	if workers <= 0 {
		workers = 4
	}
	if log == nil {
		log = slog.Default()
	}
	return &Comparator{
		engine:  engine,
		workers: workers,
		log:     log,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Seed reseeds the random source. Tests use this to make start-date draws
// deterministic.
func (c *Comparator) Seed(seed int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rng = rand.New(rand.NewSource(seed))
}

// CompareSpec is a fully resolved comparison request.
type CompareSpec struct {
	Strategies     []domain.NamedStrategy
	Periods        []int // lookback horizons in years
	InitialCapital float64
	Iterations     int
	Symbols        []string
	AssetType      string
	Exchange       string
	EndDate        string // defaults to today
}

// Compare evaluates every strategy over every horizon. Iterations that fail
// are dropped from the aggregate; a horizon with no successful iteration
// reports zeroed metrics with SampleCount 0.
func (c *Comparator) Compare(ctx context.Context, spec CompareSpec) (*domain.StrategyComparison, error) {
	endDate := spec.EndDate
	if endDate == "" {
		endDate = time.Now().UTC().Format("2006-01-02")
	}

	// Each horizon's data is strategy-independent, so load it once and size
	// the iteration count here. The exact total lets the progress stream
	// reach 100% even when short histories reduce the draw span.
	type horizon struct {
		years int
		data  []SymbolData
		dates []string
		span  int
		iters int
	}
	horizons := make([]horizon, 0, len(spec.Periods))
	total := 0
	for _, years := range spec.Periods {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		startDate, err := yearsBefore(endDate, years)
		if err != nil {
			return nil, err
		}
		data, err := c.engine.loader.LoadPriceData(ctx, spec.Symbols, startDate, endDate, spec.AssetType, spec.Exchange)
		if err != nil {
			return nil, fmt.Errorf("loading %dy horizon: %w", years, err)
		}

		h := horizon{years: years, data: data}
		if len(data) > 0 && len(data[0].Bars) >= minBarsPerSymbol {
			h.dates = unionDates(data)
			h.span = len(h.dates) - minWindowDays
			if h.span < 1 {
				h.span = 1
			}
			h.iters = spec.Iterations
			if h.span < h.iters {
				h.iters = h.span
			}
			if h.iters < 1 {
				h.iters = 1
			}
		}
		horizons = append(horizons, h)
		total += h.iters * len(spec.Strategies)
	}

	out := &domain.StrategyComparison{}
	done := 0

	for _, strat := range spec.Strategies {
		var periodResults []domain.PeriodResult

		for _, h := range horizons {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			if h.iters == 0 {
				periodResults = append(periodResults, zeroPeriod(h.years))
				continue
			}

			// Draw all start dates up front, sequentially, so the outcome for
			// a given seed does not depend on worker scheduling.
			starts := make([]string, h.iters)
			c.mu.Lock()
			for i := range starts {
				starts[i] = h.dates[c.rng.Intn(h.span)]
			}
			c.mu.Unlock()

			results := c.runIterations(ctx, h.data, starts, endDate, spec.InitialCapital, strat.Params, &done, total)
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			periodResults = append(periodResults, aggregatePeriod(h.years, results))
		}

		out.Strategies = append(out.Strategies, domain.StrategyResult{
			Name:    strat.Name,
			Params:  strat.Params,
			Results: periodResults,
		})
	}

	return out, nil
}

// runIterations fans the start dates out to the worker pool and collects the
// successful results.
func (c *Comparator) runIterations(ctx context.Context, data []SymbolData, starts []string, endDate string, capital float64, params domain.StrategyParams, done *int, total int) []*domain.SimulationResult {
	jobCh := make(chan string, len(starts))
	for _, s := range starts {
		jobCh <- s
	}
	close(jobCh)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*domain.SimulationResult
	)

	workers := c.workers
	if len(starts) < workers {
		workers = len(starts)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for start := range jobCh {
				if ctx.Err() != nil {
					return
				}
				res, err := runWindow(ctx, data, start, endDate, capital, params, c.engine.benchmark)
				mu.Lock()
				if err == nil {
					results = append(results, res)
				} else if ctx.Err() == nil {
					c.log.Debug("comparison iteration dropped", "start", start, "err", err)
				}
				*done++
				if c.Progress != nil {
					c.Progress(*done, total)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return results
}

// runWindow simulates over [start, end] using an already-loaded superset of
// the window. Bars are re-sliced and indicators recomputed so warm-up starts
// at the window's first bar, exactly as a fresh load would.
func runWindow(ctx context.Context, data []SymbolData, start, end string, capital float64, params domain.StrategyParams, benchmark string) (*domain.SimulationResult, error) {
	window := sliceWindow(data, start, end)
	return runLoaded(ctx, window, capital, params, start, end, benchmark)
}

// sliceWindow restricts each symbol's bars to [start, end], dropping symbols
// left with too little history. The returned SymbolData share bar backing
// arrays with the input but own their Indicators.
func sliceWindow(data []SymbolData, start, end string) []SymbolData {
	var out []SymbolData
	for _, sd := range data {
		lo := 0
		for lo < len(sd.Bars) && sd.Bars[lo].Date < start {
			lo++
		}
		hi := len(sd.Bars)
		for hi > lo && sd.Bars[hi-1].Date > end {
			hi--
		}
		bars := sd.Bars[lo:hi]
		if len(bars) < minBarsPerSymbol {
			continue
		}
		out = append(out, SymbolData{Symbol: sd.Symbol, Bars: bars})
	}
	return out
}

func aggregatePeriod(years int, results []*domain.SimulationResult) domain.PeriodResult {
	if len(results) == 0 {
		return zeroPeriod(years)
	}

	returns := make([]float64, len(results))
	returnPcts := make([]float64, len(results))
	annualized := make([]float64, len(results))
	sharpes := make([]float64, len(results))
	wins := 0
	worstDrawdown := 0.0
	for i, r := range results {
		returns[i] = r.TotalReturn
		returnPcts[i] = r.TotalReturnPct
		annualized[i] = r.AnnualizedReturn
		sharpes[i] = r.SharpeRatio
		if r.TotalReturn > 0 {
			wins++
		}
		if r.MaxDrawdownPct > worstDrawdown {
			worstDrawdown = r.MaxDrawdownPct
		}
	}

	return domain.PeriodResult{
		Period:         fmt.Sprintf("%dy", years),
		Years:          years,
		AvgReturn:      stat.Mean(returns, nil),
		AvgReturnPct:   stat.Mean(returnPcts, nil),
		AvgAnnualized:  stat.Mean(annualized, nil),
		WinRate:        float64(wins) / float64(len(results)) * 100,
		MaxDrawdownPct: worstDrawdown,
		SharpeRatio:    stat.Mean(sharpes, nil),
		SampleCount:    len(results),
	}
}

func zeroPeriod(years int) domain.PeriodResult {
	return domain.PeriodResult{Period: fmt.Sprintf("%dy", years), Years: years}
}

func yearsBefore(date string, years int) (string, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", date, err)
	}
	return t.AddDate(-years, 0, 0).Format("2006-01-02"), nil
}
