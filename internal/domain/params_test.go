package domain

import (
	"encoding/json"
	"testing"
)

func TestDefaultStrategyParams(t *testing.T) {
	p := DefaultStrategyParams()

	if p.MACDFastPeriod != 12 || p.MACDSlowPeriod != 26 || p.MACDSignalPeriod != 9 {
		t.Errorf("unexpected MACD defaults: %d/%d/%d", p.MACDFastPeriod, p.MACDSlowPeriod, p.MACDSignalPeriod)
	}
	if p.RSIPeriod != 12 {
		t.Errorf("RSIPeriod = %d, want 12", p.RSIPeriod)
	}
	if p.RSIOverbought != 70 || p.RSIOversold != 30 {
		t.Errorf("RSI thresholds = %v/%v, want 70/30", p.RSIOverbought, p.RSIOversold)
	}
	if p.MaxPositionPct != 25 {
		t.Errorf("MaxPositionPct = %v, want 25", p.MaxPositionPct)
	}
	if !p.UseEndOfDayPrices {
		t.Error("UseEndOfDayPrices should default to true")
	}
	if p.MinHoldDays != 0 {
		t.Errorf("MinHoldDays = %d, want 0", p.MinHoldDays)
	}
	if p.MaxTradesPerDay != 10 {
		t.Errorf("MaxTradesPerDay = %d, want 10", p.MaxTradesPerDay)
	}
}

func TestParamsPatchWithDefaults(t *testing.T) {
	stop := 5.0
	hold := 3
	eod := false
	patch := ParamsPatch{
		StopLossPct:       &stop,
		MinHoldDays:       &hold,
		UseEndOfDayPrices: &eod,
	}

	resolved := patch.WithDefaults()

	if resolved.StopLossPct != 5.0 {
		t.Errorf("StopLossPct = %v, want 5", resolved.StopLossPct)
	}
	if resolved.MinHoldDays != 3 {
		t.Errorf("MinHoldDays = %d, want 3", resolved.MinHoldDays)
	}
	if resolved.UseEndOfDayPrices {
		t.Error("UseEndOfDayPrices should be overridden to false")
	}

	// Unpatched fields keep defaults.
	if resolved.TakeProfitPct != 20 {
		t.Errorf("TakeProfitPct = %v, want default 20", resolved.TakeProfitPct)
	}
	if resolved.MACDFastPeriod != 12 {
		t.Errorf("MACDFastPeriod = %d, want default 12", resolved.MACDFastPeriod)
	}
}

func TestParamsPatchEmptyResolvesToDefaults(t *testing.T) {
	// An empty JSON object must resolve to exactly the defaults.
	var patch ParamsPatch
	if err := json.Unmarshal([]byte(`{}`), &patch); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if patch.WithDefaults() != DefaultStrategyParams() {
		t.Error("empty patch should resolve to DefaultStrategyParams")
	}
}

func TestParamsPatchZeroValueIsExplicit(t *testing.T) {
	// A client sending 0 is an explicit choice, distinct from absent.
	var patch ParamsPatch
	if err := json.Unmarshal([]byte(`{"maxTradesPerDay":0}`), &patch); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	resolved := patch.WithDefaults()
	if resolved.MaxTradesPerDay != 0 {
		t.Errorf("MaxTradesPerDay = %d, want explicit 0 (unlimited)", resolved.MaxTradesPerDay)
	}
}
