package indicator

import (
	"math"

	"mateo/internal/domain"
)

// holdLookback bounds the "no recent crossover flip" scan.
const holdLookback = 5

// Classify reduces an indicator sequence to BUY, SELL, or HOLD based on the
// last snapshot.
//
// HOLD is detected first: when at least four of five near-neutral conditions
// hold (RSI in [45,55], histogram magnitude under 0.1% of price, no crossover
// flip in the recent window, price within 2% of the 50-day MA, ADX under 20)
// the market is directionless and the crossover is not actionable. The RSI
// and ADX conditions only count once enough history exists for those
// indicators to be real measurements rather than warm-up defaults.
func Classify(snaps []domain.IndicatorSnapshot, rsiPeriod int) string {
	if len(snaps) == 0 {
		return domain.SignalHold
	}
	last := snaps[len(snaps)-1]

	rsiDefined := len(snaps) > rsiPeriod
	rsiNeutral := rsiDefined && last.RSI >= 45 && last.RSI <= 55
	histNearZero := last.Price > 0 && math.Abs(last.Histogram) < 1e-3*last.Price
	priceNearMA := last.MA50 > 0 && math.Abs(last.Price-last.MA50)/last.MA50 <= 0.02
	weakTrend := last.ADX > 0 && last.ADX < 20

	noRecentFlip := true
	lookback := min(holdLookback, len(snaps)-1)
	for j := len(snaps) - lookback; j < len(snaps); j++ {
		if j > 0 && snaps[j].Crossover != snaps[j-1].Crossover {
			noRecentFlip = false
			break
		}
	}

	held := 0
	for _, c := range []bool{rsiNeutral, histNearZero, noRecentFlip, priceNearMA, weakTrend} {
		if c {
			held++
		}
	}
	if held >= 4 {
		return domain.SignalHold
	}

	switch {
	case last.RSI > 70 && !last.Crossover:
		return domain.SignalSell
	case last.RSI < 30 && last.Crossover:
		return domain.SignalBuy
	case last.Crossover:
		return domain.SignalBuy
	default:
		return domain.SignalSell
	}
}

// Strength scores the latest snapshot on a basis-points-like scale
// (|price-normalized histogram| x 10000), making cross-symbol ranking stable
// regardless of absolute price.
func Strength(snaps []domain.IndicatorSnapshot) float64 {
	if len(snaps) == 0 {
		return 0
	}
	return math.Abs(snaps[len(snaps)-1].HistogramAdj) * 10000
}

// CountSignalChanges counts crossover-flag flips across the sequence.
func CountSignalChanges(snaps []domain.IndicatorSnapshot) int {
	changes := 0
	for i := 1; i < len(snaps); i++ {
		if snaps[i].Crossover != snaps[i-1].Crossover {
			changes++
		}
	}
	return changes
}

// LastSignalChangeDate returns the date of the most recent crossover flip,
// or the last snapshot's date when the flag never flipped.
func LastSignalChangeDate(snaps []domain.IndicatorSnapshot) string {
	for i := len(snaps) - 1; i > 0; i-- {
		if snaps[i].Crossover != snaps[i-1].Crossover {
			return snaps[i].Date
		}
	}
	if len(snaps) > 0 {
		return snaps[len(snaps)-1].Date
	}
	return ""
}
