package config

// Config 汇总应用的全部配置段。
type Config struct {
	App      AppConfig      `toml:"app"`
	Market   MarketConfig   `toml:"market"`
	Exchange ExchangeConfig `toml:"exchange"`
	Analysis AnalysisConfig `toml:"analysis"`
	Record   RecordConfig   `toml:"record"`
	HTTP     HTTPConfig     `toml:"http"`
}

// AppConfig 应用级配置。
type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	DataDir  string `toml:"data_dir"`
}

// MarketConfig 控制行情生成器与订单簿合成。
type MarketConfig struct {
	Symbol         string  `toml:"symbol"`
	StartPrice     float64 `toml:"start_price"`
	TickIntervalMs int     `toml:"tick_interval_ms"`
	HistoryMax     int     `toml:"history_max"`

	// Regime 参数
	RegimeMinTicks int     `toml:"regime_min_ticks"`
	RegimeMaxTicks int     `toml:"regime_max_ticks"`
	BaseVolatility float64 `toml:"base_volatility"`
	WickVolatility float64 `toml:"wick_volatility"`
	BullDrift      float64 `toml:"bull_drift"`
	BearDrift      float64 `toml:"bear_drift"`
	ChopDrift      float64 `toml:"chop_drift"`
	BullWeight     float64 `toml:"bull_weight"`
	BearWeight     float64 `toml:"bear_weight"`
	ChopWeight     float64 `toml:"chop_weight"`

	// Scenario 参数
	ScenarioProbability float64 `toml:"scenario_probability"`
	ScenarioFile        string  `toml:"scenario_file"`

	// 订单簿合成参数
	BookDepth    int     `toml:"book_depth"`
	SpreadPct    float64 `toml:"spread_pct"`
	LevelStepPct float64 `toml:"level_step_pct"`
	LevelSizeMin float64 `toml:"level_size_min"`
	LevelSizeMax float64 `toml:"level_size_max"`

	// 成交量范围
	VolumeMin float64 `toml:"volume_min"`
	VolumeMax float64 `toml:"volume_max"`
}

// ExchangeConfig 控制撮合与账户。
type ExchangeConfig struct {
	StartingBalance float64 `toml:"starting_balance"`
	CommissionRate  float64 `toml:"commission_rate"`
	MaxLeverage     float64 `toml:"max_leverage"`
}

// AnalysisConfig 控制分析引擎。
type AnalysisConfig struct {
	ScanLatencyMs  int `toml:"scan_latency_ms"`
	ScanPerMinute  int `toml:"scan_per_minute"`
	RSIPeriod      int `toml:"rsi_period"`
	VelocityWindow int `toml:"velocity_window"`
	VolumeWindow   int `toml:"volume_window"`
	TrendWindow    int `toml:"trend_window"`
	PatternWindow  int `toml:"pattern_window"`
}

// RecordConfig 控制会话落盘（审计用，外部协作方）。
type RecordConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// HTTPConfig HTTP/WS 服务配置。
type HTTPConfig struct {
	Addr string `toml:"addr"`
}
