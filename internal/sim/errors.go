package sim

import "errors"

// Sentinel errors. Callers test with errors.Is; the comparator and regime
// analyzer skip iterations that fail with ErrNoData.
var (
	ErrNoData      = errors.New("no price data in range")
	ErrNoBenchmark = errors.New("benchmark data not found")
)
