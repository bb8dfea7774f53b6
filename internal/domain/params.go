package domain

import "mateo/pkg/mateo"

// StrategyParams is the fully resolved configuration for one simulation run.
type StrategyParams = mateo.StrategyParams

// ParamsPatch is a partially specified StrategyParams, as received from API
// clients. Nil fields fall back to the defaults.
type ParamsPatch = mateo.ParamsPatch

// DefaultStrategyParams returns the stock default strategy.
func DefaultStrategyParams() StrategyParams {
	return mateo.DefaultStrategyParams()
}
