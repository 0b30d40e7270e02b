package config

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.DataDir == "" {
		c.App.DataDir = "data"
	}

	m := &c.Market
	if m.Symbol == "" {
		m.Symbol = "TRAIN"
	}
	if m.StartPrice <= 0 {
		m.StartPrice = 100
	}
	if m.TickIntervalMs <= 0 {
		m.TickIntervalMs = 1000
	}
	if m.HistoryMax <= 0 {
		m.HistoryMax = 500
	}
	if m.RegimeMinTicks <= 0 {
		m.RegimeMinTicks = 30
	}
	if m.RegimeMaxTicks <= 0 {
		m.RegimeMaxTicks = 120
	}
	if m.BaseVolatility <= 0 {
		m.BaseVolatility = 0.004
	}
	if m.WickVolatility <= 0 {
		m.WickVolatility = 0.002
	}
	if m.BullDrift == 0 {
		m.BullDrift = 0.0008
	}
	if m.BearDrift == 0 {
		m.BearDrift = -0.0008
	}
	if m.BullWeight <= 0 {
		m.BullWeight = 1
	}
	if m.BearWeight <= 0 {
		m.BearWeight = 1
	}
	if m.ChopWeight <= 0 {
		m.ChopWeight = 1.2
	}
	if m.ScenarioProbability <= 0 {
		m.ScenarioProbability = 0.15
	}
	if m.BookDepth <= 0 {
		m.BookDepth = 10
	}
	if m.SpreadPct <= 0 {
		m.SpreadPct = 0.0008
	}
	if m.LevelStepPct <= 0 {
		m.LevelStepPct = 0.0004
	}
	if m.LevelSizeMin <= 0 {
		m.LevelSizeMin = 50
	}
	if m.LevelSizeMax <= 0 {
		m.LevelSizeMax = 500
	}
	if m.VolumeMin <= 0 {
		m.VolumeMin = 100
	}
	if m.VolumeMax <= 0 {
		m.VolumeMax = 2000
	}

	e := &c.Exchange
	if e.StartingBalance <= 0 {
		e.StartingBalance = 100000
	}
	if e.CommissionRate < 0 {
		e.CommissionRate = 0
	}
	if e.CommissionRate == 0 {
		e.CommissionRate = 0.0005 // 5bps
	}
	if e.MaxLeverage < 1 {
		e.MaxLeverage = 10
	}

	a := &c.Analysis
	if a.ScanLatencyMs <= 0 {
		a.ScanLatencyMs = 1500
	}
	if a.ScanPerMinute <= 0 {
		a.ScanPerMinute = 12
	}
	if a.RSIPeriod <= 0 {
		a.RSIPeriod = 14
	}
	if a.VelocityWindow <= 0 {
		a.VelocityWindow = 10
	}
	if a.VolumeWindow <= 0 {
		a.VolumeWindow = 20
	}
	if a.TrendWindow <= 0 {
		a.TrendWindow = 30
	}
	if a.PatternWindow <= 0 {
		a.PatternWindow = 5
	}

	if c.Record.Dir == "" {
		c.Record.Dir = "data/records"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":9980"
	}
}
