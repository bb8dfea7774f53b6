package sim

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"mateo/internal/domain"
)

const (
	smaPeriod          = 200
	regimeLookbackYrs  = 10
	maxRegimePeriods   = 5 // simulated periods per condition per strategy
	regimeThresholdPct = 5.0
)

// ClassifyRegimes labels each day of a benchmark series bull, bear, or
// sideways by its distance from the 200-day SMA, then collapses consecutive
// same-condition days into periods. Classification starts at the 200th bar;
// no two adjacent periods share a condition.
func ClassifyRegimes(bars []domain.Bar) []domain.MarketPeriod {
	if len(bars) == 0 {
		return nil
	}

	sma := make([]float64, len(bars))
	sum := 0.0
	for i, b := range bars {
		sum += b.Close
		if i >= smaPeriod {
			sum -= bars[i-smaPeriod].Close
		}
		window := float64(i + 1)
		if i >= smaPeriod {
			window = smaPeriod
		}
		sma[i] = sum / window
	}

	current := domain.ConditionSideways
	periodStart := bars[0].Date
	if len(bars) > smaPeriod {
		periodStart = bars[smaPeriod].Date
	}

	var periods []domain.MarketPeriod
	for i := smaPeriod; i < len(bars); i++ {
		pctAbove := 0.0
		if sma[i] != 0 {
			pctAbove = (bars[i].Close - sma[i]) / sma[i] * 100
		}

		condition := domain.ConditionSideways
		if pctAbove > regimeThresholdPct {
			condition = domain.ConditionBull
		} else if pctAbove < -regimeThresholdPct {
			condition = domain.ConditionBear
		}

		if condition != current {
			// The seeded sideways period is empty when the very first
			// classified day already disagrees; emitting it would produce an
			// inverted date range.
			if bars[i-1].Date >= periodStart {
				periods = append(periods, domain.MarketPeriod{
					Condition: current,
					StartDate: periodStart,
					EndDate:   bars[i-1].Date,
				})
			}
			current = condition
			periodStart = bars[i].Date
		}
	}
	periods = append(periods, domain.MarketPeriod{
		Condition: current,
		StartDate: periodStart,
		EndDate:   bars[len(bars)-1].Date,
	})
	return periods
}

// MarketConditionsSpec is a fully resolved regime analysis request.
type MarketConditionsSpec struct {
	Strategies     []domain.NamedStrategy
	InitialCapital float64
	Benchmark      string
	Symbols        []string
	AssetType      string
	Exchange       string
	EndDate        string // defaults to today
}

// MarketConditions classifies the last ten years of the benchmark into
// regime periods and reports each strategy's simulated performance within
// each condition. Fails with ErrNoBenchmark when the benchmark has no data.
func (c *Comparator) MarketConditions(ctx context.Context, spec MarketConditionsSpec) ([]domain.MarketConditionResult, error) {
	endDate := spec.EndDate
	if endDate == "" {
		endDate = time.Now().UTC().Format("2006-01-02")
	}
	startDate, err := yearsBefore(endDate, regimeLookbackYrs)
	if err != nil {
		return nil, err
	}

	benchData, err := c.engine.loader.LoadPriceData(ctx, []string{spec.Benchmark}, startDate, endDate, spec.AssetType, "")
	if err != nil {
		return nil, err
	}
	if len(benchData) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoBenchmark, spec.Benchmark)
	}

	allPeriods := ClassifyRegimes(benchData[0].Bars)

	// One universe load covers every period's simulation window.
	data, err := c.engine.loader.LoadPriceData(ctx, spec.Symbols, startDate, endDate, spec.AssetType, spec.Exchange)
	if err != nil {
		return nil, err
	}

	conditions := []string{domain.ConditionBull, domain.ConditionBear, domain.ConditionSideways}
	results := make([]domain.MarketConditionResult, 0, len(conditions))

	for _, condition := range conditions {
		var condPeriods []domain.MarketPeriod
		for _, p := range allPeriods {
			if p.Condition == condition {
				condPeriods = append(condPeriods, p)
			}
		}

		if len(condPeriods) == 0 {
			perf := make([]domain.StrategyPerformance, 0, len(spec.Strategies))
			for _, strat := range spec.Strategies {
				perf = append(perf, domain.StrategyPerformance{StrategyName: strat.Name})
			}
			results = append(results, domain.MarketConditionResult{
				Condition:           condition,
				StrategyPerformance: perf,
			})
			continue
		}

		simPeriods := condPeriods
		if len(simPeriods) > maxRegimePeriods {
			simPeriods = simPeriods[:maxRegimePeriods]
		}

		perf, err := c.regimePerformance(ctx, data, simPeriods, spec)
		if err != nil {
			return nil, err
		}

		results = append(results, domain.MarketConditionResult{
			Condition:           condition,
			PeriodCount:         len(condPeriods),
			AvgDuration:         avgDurationDays(condPeriods),
			StrategyPerformance: perf,
		})
	}

	return results, nil
}

// regimePerformance simulates every strategy over every period through the
// worker pool and aggregates per strategy.
func (c *Comparator) regimePerformance(ctx context.Context, data []SymbolData, periods []domain.MarketPeriod, spec MarketConditionsSpec) ([]domain.StrategyPerformance, error) {
	type job struct {
		strat  int
		period domain.MarketPeriod
	}
	jobs := make([]job, 0, len(spec.Strategies)*len(periods))
	for si := range spec.Strategies {
		for _, p := range periods {
			jobs = append(jobs, job{strat: si, period: p})
		}
	}

	jobCh := make(chan job, len(jobs))
	for _, j := range jobs {
		jobCh <- j
	}
	close(jobCh)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		byStrat = make([][]*domain.SimulationResult, len(spec.Strategies))
	)

	workers := c.workers
	if len(jobs) < workers {
		workers = len(jobs)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobCh {
				if ctx.Err() != nil {
					return
				}
				res, err := runWindow(ctx, data, j.period.StartDate, j.period.EndDate, spec.InitialCapital, spec.Strategies[j.strat].Params, c.engine.benchmark)
				if err != nil {
					if ctx.Err() == nil {
						c.log.Debug("regime period dropped",
							"strategy", spec.Strategies[j.strat].Name,
							"start", j.period.StartDate, "end", j.period.EndDate, "err", err)
					}
					continue
				}
				mu.Lock()
				byStrat[j.strat] = append(byStrat[j.strat], res)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	perf := make([]domain.StrategyPerformance, 0, len(spec.Strategies))
	for si, strat := range spec.Strategies {
		results := byStrat[si]
		if len(results) == 0 {
			perf = append(perf, domain.StrategyPerformance{StrategyName: strat.Name})
			continue
		}
		returnPcts := make([]float64, len(results))
		annualized := make([]float64, len(results))
		wins := 0
		worstDrawdown := 0.0
		for i, r := range results {
			returnPcts[i] = r.TotalReturnPct
			annualized[i] = r.AnnualizedReturn
			if r.TotalReturn > 0 {
				wins++
			}
			if r.MaxDrawdownPct > worstDrawdown {
				worstDrawdown = r.MaxDrawdownPct
			}
		}
		perf = append(perf, domain.StrategyPerformance{
			StrategyName:   strat.Name,
			AvgReturnPct:   stat.Mean(returnPcts, nil),
			AvgAnnualized:  stat.Mean(annualized, nil),
			WinRate:        float64(wins) / float64(len(results)) * 100,
			MaxDrawdownPct: worstDrawdown,
		})
	}
	return perf, nil
}

// avgDurationDays is the mean calendar span of the periods, rounded.
func avgDurationDays(periods []domain.MarketPeriod) int {
	if len(periods) == 0 {
		return 0
	}
	total := 0.0
	for _, p := range periods {
		start, err1 := time.Parse("2006-01-02", p.StartDate)
		end, err2 := time.Parse("2006-01-02", p.EndDate)
		if err1 != nil || err2 != nil {
			continue
		}
		total += end.Sub(start).Hours() / 24
	}
	return int(math.Round(total / float64(len(periods))))
}
