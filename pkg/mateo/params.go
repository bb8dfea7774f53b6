package mateo

// StrategyParams is the fully resolved configuration for one simulation run.
// It is read-only input to every simulation call and never mutated mid-run.
type StrategyParams struct {
	MACDFastPeriod   int     `json:"macdFastPeriod"`
	MACDSlowPeriod   int     `json:"macdSlowPeriod"`
	MACDSignalPeriod int     `json:"macdSignalPeriod"`
	RSIPeriod        int     `json:"rsiPeriod"`
	RSIOverbought    float64 `json:"rsiOverbought"`
	RSIOversold      float64 `json:"rsiOversold"`
	MinBuySignal     float64 `json:"minBuySignal"`
	MaxSharePrice    float64 `json:"maxSharePrice"`
	MinCashReserve   float64 `json:"minCashReserve"`
	// MaxPositionPct caps a single position at this percent of the *initial*
	// capital, not current equity.
	MaxPositionPct     float64 `json:"maxPositionPct"`
	StopLossPct        float64 `json:"stopLossPct"`
	TakeProfitPct      float64 `json:"takeProfitPct"`
	PreferNewBuys      bool    `json:"preferNewBuys"`
	NewBuyLookbackDays int     `json:"newBuyLookbackDays"`
	// MaxTradesPerDay bounds buys and sells combined per trading day.
	// 0 means unlimited.
	MaxTradesPerDay int `json:"maxTradesPerDay"`
	// MinHoldDays suppresses signal-based exits (crossover flip, RSI
	// overbought) for this many days after entry. Stop-loss and take-profit
	// always fire.
	MinHoldDays int `json:"minHoldDays"`
	// UseEndOfDayPrices selects the execution price: true fills and marks at
	// the day's close, false at the day's open.
	UseEndOfDayPrices bool `json:"useEndOfDayPrices"`
}

// ParamsPatch is a partially specified StrategyParams, as received from API
// clients. Nil fields fall back to the defaults; the simulator only ever
// sees fully resolved parameters.
type ParamsPatch struct {
	MACDFastPeriod     *int     `json:"macdFastPeriod,omitempty"`
	MACDSlowPeriod     *int     `json:"macdSlowPeriod,omitempty"`
	MACDSignalPeriod   *int     `json:"macdSignalPeriod,omitempty"`
	RSIPeriod          *int     `json:"rsiPeriod,omitempty"`
	RSIOverbought      *float64 `json:"rsiOverbought,omitempty"`
	RSIOversold        *float64 `json:"rsiOversold,omitempty"`
	MinBuySignal       *float64 `json:"minBuySignal,omitempty"`
	MaxSharePrice      *float64 `json:"maxSharePrice,omitempty"`
	MinCashReserve     *float64 `json:"minCashReserve,omitempty"`
	MaxPositionPct     *float64 `json:"maxPositionPct,omitempty"`
	StopLossPct        *float64 `json:"stopLossPct,omitempty"`
	TakeProfitPct      *float64 `json:"takeProfitPct,omitempty"`
	PreferNewBuys      *bool    `json:"preferNewBuys,omitempty"`
	NewBuyLookbackDays *int     `json:"newBuyLookbackDays,omitempty"`
	MaxTradesPerDay    *int     `json:"maxTradesPerDay,omitempty"`
	MinHoldDays        *int     `json:"minHoldDays,omitempty"`
	UseEndOfDayPrices  *bool    `json:"useEndOfDayPrices,omitempty"`
}

// DefaultStrategyParams returns the stock default strategy.
func DefaultStrategyParams() StrategyParams {
	return StrategyParams{
		MACDFastPeriod:     12,
		MACDSlowPeriod:     26,
		MACDSignalPeriod:   9,
		RSIPeriod:          12,
		RSIOverbought:      70,
		RSIOversold:        30,
		MinBuySignal:       4,
		MaxSharePrice:      500,
		MinCashReserve:     100,
		MaxPositionPct:     25,
		StopLossPct:        10,
		TakeProfitPct:      20,
		PreferNewBuys:      false,
		NewBuyLookbackDays: 5,
		MaxTradesPerDay:    10,
		MinHoldDays:        0,
		UseEndOfDayPrices:  true,
	}
}

// WithDefaults resolves a partial patch against the defaults, returning a
// fully specified StrategyParams.
func (p ParamsPatch) WithDefaults() StrategyParams {
	return p.ApplyTo(DefaultStrategyParams())
}

// ApplyTo layers the patch's non-nil fields onto base.
func (p ParamsPatch) ApplyTo(base StrategyParams) StrategyParams {
	out := base
	if p.MACDFastPeriod != nil {
		out.MACDFastPeriod = *p.MACDFastPeriod
	}
	if p.MACDSlowPeriod != nil {
		out.MACDSlowPeriod = *p.MACDSlowPeriod
	}
	if p.MACDSignalPeriod != nil {
		out.MACDSignalPeriod = *p.MACDSignalPeriod
	}
	if p.RSIPeriod != nil {
		out.RSIPeriod = *p.RSIPeriod
	}
	if p.RSIOverbought != nil {
		out.RSIOverbought = *p.RSIOverbought
	}
	if p.RSIOversold != nil {
		out.RSIOversold = *p.RSIOversold
	}
	if p.MinBuySignal != nil {
		out.MinBuySignal = *p.MinBuySignal
	}
	if p.MaxSharePrice != nil {
		out.MaxSharePrice = *p.MaxSharePrice
	}
	if p.MinCashReserve != nil {
		out.MinCashReserve = *p.MinCashReserve
	}
	if p.MaxPositionPct != nil {
		out.MaxPositionPct = *p.MaxPositionPct
	}
	if p.StopLossPct != nil {
		out.StopLossPct = *p.StopLossPct
	}
	if p.TakeProfitPct != nil {
		out.TakeProfitPct = *p.TakeProfitPct
	}
	if p.PreferNewBuys != nil {
		out.PreferNewBuys = *p.PreferNewBuys
	}
	if p.NewBuyLookbackDays != nil {
		out.NewBuyLookbackDays = *p.NewBuyLookbackDays
	}
	if p.MaxTradesPerDay != nil {
		out.MaxTradesPerDay = *p.MaxTradesPerDay
	}
	if p.MinHoldDays != nil {
		out.MinHoldDays = *p.MinHoldDays
	}
	if p.UseEndOfDayPrices != nil {
		out.UseEndOfDayPrices = *p.UseEndOfDayPrices
	}
	return out
}
