package config

import "fmt"

func validate(c *Config) error {
	m := c.Market
	if m.RegimeMinTicks > m.RegimeMaxTicks {
		return fmt.Errorf("market.regime_min_ticks (%d) 不能大于 regime_max_ticks (%d)", m.RegimeMinTicks, m.RegimeMaxTicks)
	}
	if m.BullDrift <= 0 {
		return fmt.Errorf("market.bull_drift 必须为正: %f", m.BullDrift)
	}
	if m.BearDrift >= 0 {
		return fmt.Errorf("market.bear_drift 必须为负: %f", m.BearDrift)
	}
	if m.SpreadPct <= 0 || m.SpreadPct >= 0.1 {
		return fmt.Errorf("market.spread_pct 必须在 (0, 0.1) 区间: %f", m.SpreadPct)
	}
	if m.LevelSizeMin > m.LevelSizeMax {
		return fmt.Errorf("market.level_size_min (%f) 不能大于 level_size_max (%f)", m.LevelSizeMin, m.LevelSizeMax)
	}
	if m.VolumeMin > m.VolumeMax {
		return fmt.Errorf("market.volume_min (%f) 不能大于 volume_max (%f)", m.VolumeMin, m.VolumeMax)
	}
	if m.ScenarioProbability < 0 || m.ScenarioProbability > 1 {
		return fmt.Errorf("market.scenario_probability 必须在 [0,1]: %f", m.ScenarioProbability)
	}
	e := c.Exchange
	if e.CommissionRate < 0 || e.CommissionRate >= 0.05 {
		return fmt.Errorf("exchange.commission_rate 必须在 [0, 0.05): %f", e.CommissionRate)
	}
	if e.MaxLeverage < 1 || e.MaxLeverage > 125 {
		return fmt.Errorf("exchange.max_leverage 必须在 [1,125]: %f", e.MaxLeverage)
	}
	a := c.Analysis
	if a.RSIPeriod < 2 {
		return fmt.Errorf("analysis.rsi_period 至少为 2: %d", a.RSIPeriod)
	}
	if a.TrendWindow < 5 {
		return fmt.Errorf("analysis.trend_window 至少为 5: %d", a.TrendWindow)
	}
	return nil
}
