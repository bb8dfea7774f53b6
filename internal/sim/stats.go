package sim

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"mateo/internal/domain"
)

const (
	tradingDaysPerYear = 252
	maxTimelinePoints  = 500
)

// buildResult condenses a ledger into a SimulationResult: realized-trade
// matching, win/loss stats, annualized return, Sharpe, benchmark comparison,
// and timeline downsampling.
func buildResult(data []SymbolData, led *ledger, initialCapital float64, params domain.StrategyParams, start, end, benchmark string) *domain.SimulationResult {
	completed := matchTrades(led.trades)

	var winning, losing []float64
	for _, pnl := range completed {
		if pnl > 0 {
			winning = append(winning, pnl)
		} else {
			losing = append(losing, pnl)
		}
	}

	winRate := 0.0
	if len(completed) > 0 {
		winRate = float64(len(winning)) / float64(len(completed)) * 100
	}
	avgWin := 0.0
	if len(winning) > 0 {
		avgWin = stat.Mean(winning, nil)
	}
	avgLoss := 0.0
	if len(losing) > 0 {
		avgLoss = stat.Mean(losing, nil)
	}

	finalValue := initialCapital
	if n := len(led.timeline); n > 0 {
		finalValue = led.timeline[n-1].PortfolioValue
	}
	totalReturn := finalValue - initialCapital

	years := float64(len(led.dates)) / tradingDaysPerYear
	annualized := 0.0
	if years > 0 {
		annualized = (math.Pow(finalValue/initialCapital, 1/years) - 1) * 100
	}

	resultStart, resultEnd := start, end
	if len(led.dates) > 0 {
		resultStart = led.dates[0]
		resultEnd = led.dates[len(led.dates)-1]
	}

	benchReturn, benchReturnPct := benchmarkReturn(data, benchmark, initialCapital)
	best, worst := extremeSells(led.trades)

	return &domain.SimulationResult{
		StrategyParams:   params,
		StartDate:        resultStart,
		EndDate:          resultEnd,
		InitialCapital:   initialCapital,
		FinalValue:       finalValue,
		TotalReturn:      totalReturn,
		TotalReturnPct:   totalReturn / initialCapital * 100,
		AnnualizedReturn: annualized,
		MaxDrawdown:      led.maxDrawdown,
		MaxDrawdownPct:   led.maxDrawdownPct,
		SharpeRatio:      sharpeRatio(led.timeline),
		WinRate:          winRate,
		TotalTrades:      len(led.trades),
		WinningTrades:    len(winning),
		LosingTrades:     len(losing),
		AvgWin:           avgWin,
		AvgLoss:          avgLoss,
		BestTrade:        best,
		WorstTrade:       worst,
		Timeline:         downsample(led.timeline, maxTimelinePoints),
		Trades:           led.trades,
		BenchmarkReturn:  benchReturn,
		BenchmarkRetPct:  benchReturnPct,
	}
}

// matchTrades pairs each SELL with the symbol's most recently opened
// still-open BUY and returns the realized P&L per completed round trip.
// Single position per symbol makes the pairing unambiguous; the stack keeps
// the policy explicit should that ever change.
func matchTrades(trades []domain.TradeRecord) []float64 {
	openBuys := make(map[string][]float64)
	var completed []float64
	for _, t := range trades {
		switch t.Action {
		case domain.ActionBuy:
			openBuys[t.Symbol] = append(openBuys[t.Symbol], t.Price)
		case domain.ActionSell:
			stack := openBuys[t.Symbol]
			if len(stack) == 0 {
				continue
			}
			buyPrice := stack[len(stack)-1]
			openBuys[t.Symbol] = stack[:len(stack)-1]
			completed = append(completed, (t.Price-buyPrice)*float64(t.Quantity))
		}
	}
	return completed
}

// sharpeRatio is the annualized mean/stddev of daily relative returns, 0
// when the deviation is 0. Population stddev, matching how the daily return
// series is the complete outcome rather than a sample.
func sharpeRatio(timeline []domain.PortfolioSnapshot) float64 {
	if len(timeline) == 0 {
		return 0
	}
	returns := make([]float64, len(timeline))
	for i := 1; i < len(timeline); i++ {
		prev := timeline[i-1].PortfolioValue
		if prev > 0 {
			returns[i] = (timeline[i].PortfolioValue - prev) / prev
		}
	}
	mean := stat.Mean(returns, nil)
	std := stat.PopStdDev(returns, nil)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}

// benchmarkReturn reports the buy-and-hold return of the benchmark symbol
// over the loaded window, 0 when the benchmark is absent.
func benchmarkReturn(data []SymbolData, benchmark string, initialCapital float64) (float64, float64) {
	for _, sd := range data {
		if sd.Symbol != benchmark || len(sd.Bars) < 2 {
			continue
		}
		first := sd.Bars[0].Close
		last := sd.Bars[len(sd.Bars)-1].Close
		if first == 0 {
			return 0, 0
		}
		pct := (last - first) / first * 100
		return initialCapital * pct / 100, pct
	}
	return 0, 0
}

// extremeSells returns the SELL fills with the largest and smallest totals.
func extremeSells(trades []domain.TradeRecord) (best, worst *domain.TradeRecord) {
	for i := range trades {
		t := &trades[i]
		if t.Action != domain.ActionSell {
			continue
		}
		if best == nil || t.Total > best.Total {
			best = t
		}
		if worst == nil || t.Total < worst.Total {
			worst = t
		}
	}
	return best, worst
}

// downsample subsamples the timeline at a fixed stride so it never exceeds
// maxPoints, always retaining the final point.
func downsample(timeline []domain.PortfolioSnapshot, maxPoints int) []domain.PortfolioSnapshot {
	if len(timeline) <= maxPoints {
		return timeline
	}
	step := (len(timeline) + maxPoints - 1) / maxPoints
	out := make([]domain.PortfolioSnapshot, 0, maxPoints+1)
	for i := 0; i < len(timeline); i += step {
		out = append(out, timeline[i])
	}
	if out[len(out)-1].Date != timeline[len(timeline)-1].Date {
		out = append(out, timeline[len(timeline)-1])
	}
	return out
}
