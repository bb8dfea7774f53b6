// Package indicator derives per-day technical indicator snapshots from raw
// daily bar series (MACD family, RSI, ADX trend strength, moving-average and
// volatility bands) and classifies the latest state into a BUY/SELL/HOLD
// signal. Everything here is a pure function of (bars, parameters); no state
// survives the call.
package indicator

import (
	"math"

	"mateo/internal/domain"
)

// crossoverWarmupBars guards the crossover flag against noisy early EMAs:
// the flag is forced false for this many leading bars.
const crossoverWarmupBars = 10

const (
	adxPeriod       = 14
	maPeriod        = 50
	bollingerPeriod = 20
)

// Compute derives one IndicatorSnapshot per bar. It returns nil when fewer
// than two bars are supplied. Snapshots are index-aligned with bars and each
// depends only on bars up to and including its own day.
func Compute(bars []domain.Bar, params domain.StrategyParams) []domain.IndicatorSnapshot {
	if len(bars) < 2 {
		return nil
	}

	snaps := computeMACD(bars, params)
	computeRSI(snaps, bars, params.RSIPeriod)
	computeADX(snaps, bars)
	computeMABands(snaps, bars)
	return snaps
}

// computeMACD seeds both EMAs at the first close and smooths forward. The
// signal line is an EMA of the MACD line seeded at zero.
func computeMACD(bars []domain.Bar, params domain.StrategyParams) []domain.IndicatorSnapshot {
	alphaFast := 2.0 / (float64(params.MACDFastPeriod) + 1.0)
	alphaSlow := 2.0 / (float64(params.MACDSlowPeriod) + 1.0)
	alphaSignal := 2.0 / (float64(params.MACDSignalPeriod) + 1.0)

	snaps := make([]domain.IndicatorSnapshot, len(bars))
	snaps[0] = domain.IndicatorSnapshot{
		EMAFast: bars[0].Close,
		EMASlow: bars[0].Close,
		RSI:     50,
		MA50:    bars[0].Close,
		Price:   bars[0].Close,
		Date:    bars[0].Date,
	}

	for i := 1; i < len(bars); i++ {
		prev := snaps[i-1]
		close := bars[i].Close

		emaFast := alphaFast*close + (1-alphaFast)*prev.EMAFast
		emaSlow := alphaSlow*close + (1-alphaSlow)*prev.EMASlow
		macdLine := emaFast - emaSlow
		macdSignal := alphaSignal*macdLine + (1-alphaSignal)*prev.MACDSignal
		hist := macdLine - macdSignal

		histAdj := 0.0
		if close != 0 {
			histAdj = hist / close
		}

		crossover := false
		if i > crossoverWarmupBars {
			crossover = macdLine > macdSignal
		}

		snaps[i] = domain.IndicatorSnapshot{
			EMAFast:      emaFast,
			EMASlow:      emaSlow,
			MACDLine:     macdLine,
			MACDSignal:   macdSignal,
			Histogram:    hist,
			HistogramAdj: histAdj,
			Crossover:    crossover,
			RSI:          50,
			MA50:         close,
			Price:        close,
			Date:         bars[i].Date,
		}
	}
	return snaps
}

// computeRSI applies Wilder's smoothed RSI: the first value at index
// `period` is seeded with the simple mean of gains/losses over the first
// `period` changes, then smoothed. Snapshots before that keep the neutral 50.
func computeRSI(snaps []domain.IndicatorSnapshot, bars []domain.Bar, period int) {
	if period <= 0 || len(bars) < period+1 {
		return
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	snaps[period].RSI = rsiFrom(avgGain, avgLoss)

	for i := period + 1; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		snaps[i].RSI = rsiFrom(avgGain, avgLoss)
	}
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// computeADX runs a 14-period Wilder-smoothed directional-movement
// calculation. Snapshots stay at zero until 2*period+1 bars exist; callers
// treat zero as "trend strength unavailable".
func computeADX(snaps []domain.IndicatorSnapshot, bars []domain.Bar) {
	period := adxPeriod
	if len(bars) < period*2+1 {
		return
	}

	trueRanges := make([]float64, len(bars))
	plusDMs := make([]float64, len(bars))
	minusDMs := make([]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		high, low := bars[i].High, bars[i].Low
		prevClose := bars[i-1].Close
		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		trueRanges[i] = tr

		upMove := high - bars[i-1].High
		downMove := bars[i-1].Low - low
		if upMove > downMove && upMove > 0 {
			plusDMs[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDMs[i] = downMove
		}
	}

	var smoothTR, smoothPlusDM, smoothMinusDM float64
	for i := 1; i <= period; i++ {
		smoothTR += trueRanges[i]
		smoothPlusDM += plusDMs[i]
		smoothMinusDM += minusDMs[i]
	}

	dx := func(sTR, sPDM, sMDM float64) float64 {
		if sTR <= 0 {
			return 0
		}
		plusDI := sPDM / sTR * 100
		minusDI := sMDM / sTR * 100
		diSum := plusDI + minusDI
		if diSum <= 0 {
			return 0
		}
		return math.Abs(plusDI-minusDI) / diSum * 100
	}

	dxValues := []float64{dx(smoothTR, smoothPlusDM, smoothMinusDM)}
	for i := period + 1; i < len(bars); i++ {
		smoothTR = smoothTR - smoothTR/float64(period) + trueRanges[i]
		smoothPlusDM = smoothPlusDM - smoothPlusDM/float64(period) + plusDMs[i]
		smoothMinusDM = smoothMinusDM - smoothMinusDM/float64(period) + minusDMs[i]
		dxValues = append(dxValues, dx(smoothTR, smoothPlusDM, smoothMinusDM))

		if len(dxValues) == period {
			var sum float64
			for _, v := range dxValues {
				sum += v
			}
			snaps[i].ADX = sum / float64(period)
		} else if len(dxValues) > period {
			prevADX := snaps[i-1].ADX
			snaps[i].ADX = (prevADX*float64(period-1) + dxValues[len(dxValues)-1]) / float64(period)
		}
	}
}

// computeMABands fills the 50-day simple moving average and the 20-period
// Bollinger bandwidth (band spread as a percent of the band mean). Both use
// whatever history is available when the series is shorter than the window.
func computeMABands(snaps []domain.IndicatorSnapshot, bars []domain.Bar) {
	for i := range bars {
		maStart := max(0, i-maPeriod+1)
		var maSum float64
		for j := maStart; j <= i; j++ {
			maSum += bars[j].Close
		}
		snaps[i].MA50 = maSum / float64(i-maStart+1)

		bbStart := max(0, i-bollingerPeriod+1)
		n := float64(i - bbStart + 1)
		var bbSum float64
		for j := bbStart; j <= i; j++ {
			bbSum += bars[j].Close
		}
		mean := bbSum / n

		var variance float64
		for j := bbStart; j <= i; j++ {
			d := bars[j].Close - mean
			variance += d * d
		}
		variance /= n
		stdDev := math.Sqrt(variance)

		if mean > 0 {
			// Upper minus lower band over the mean: 4 standard deviations.
			snaps[i].BollingerBW = 4 * stdDev / mean * 100
		}
	}
}
