package market

import (
	"math"
	"math/rand"
	"time"

	"tradegym/internal/logger"
	"tradegym/internal/scenario"
)

// Regime 表示多 tick 的宏观漂移模式。
type Regime int

const (
	RegimeBull Regime = iota
	RegimeBear
	RegimeChop
)

func (r Regime) String() string {
	switch r {
	case RegimeBull:
		return "BULL"
	case RegimeBear:
		return "BEAR"
	case RegimeChop:
		return "CHOP"
	default:
		return "UNKNOWN"
	}
}

// Scenario 是叠加在 regime 之上的短时确定性价格路径。
// Remaining 归零后清除，同一时刻至多一个生效。
type Scenario struct {
	Kind      string  `json:"kind"`
	Remaining int     `json:"remaining"`
	Total     int     `json:"total"`
	StepPct   float64 `json:"step_pct"`
}

// EngineConfig 控制行情引擎的随机过程参数。
type EngineConfig struct {
	StartPrice     float64
	HistoryMax     int
	RegimeMinTicks int
	RegimeMaxTicks int
	BaseVolatility float64
	WickVolatility float64
	BullDrift      float64
	BearDrift      float64
	ChopDrift      float64
	BullWeight     float64
	BearWeight     float64
	ChopWeight     float64

	ScenarioProbability float64
	VolumeMin           float64
	VolumeMax           float64
}

// TemplateSource 提供可触发的剧本模板（通常是 scenario.Registry）。
type TemplateSource interface {
	Templates() []scenario.Template
}

// Engine 驱动价格/K线生成。全部随机性内部有界，Advance 不会失败。
// 非并发安全，由会话层的单写者循环串行调用。
type Engine struct {
	cfg       EngineConfig
	rng       *rand.Rand
	templates TemplateSource

	price     float64
	regime    Regime
	ticksLeft int
	scen      *Scenario
	history   *History
	clock     time.Time
}

const minPrice = 0.0001

func NewEngine(cfg EngineConfig, templates TemplateSource, seed int64) *Engine {
	if cfg.StartPrice <= 0 {
		cfg.StartPrice = 100
	}
	e := &Engine{
		cfg:       cfg,
		templates: templates,
		history:   NewHistory(cfg.HistoryMax),
	}
	e.Reset(seed)
	return e
}

// Reset 重置价格、regime、剧本与随机源，并清空历史。
func (e *Engine) Reset(seed int64) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	e.rng = rand.New(rand.NewSource(seed))
	e.price = e.cfg.StartPrice
	e.scen = nil
	e.history.Reset()
	e.clock = time.Now().Truncate(time.Second)
	e.enterRegime(e.pickRegime())
}

// Advance 生成下一根 K 线并推进内部状态。
func (e *Engine) Advance(dt time.Duration) Candle {
	open := e.price
	step := e.drift() + e.cfg.BaseVolatility*e.rng.NormFloat64()
	scenarioActive := false
	if e.scen != nil {
		step += e.scen.StepPct
		scenarioActive = true
		e.scen.Remaining--
		if e.scen.Remaining <= 0 {
			logger.Debugf("scenario %s 结束", e.scen.Kind)
			e.scen = nil
		}
	}
	close := open * (1 + step)
	if close < minPrice {
		close = minPrice
	}

	upperWick := math.Abs(e.rng.NormFloat64()) * e.cfg.WickVolatility * open
	lowerWick := math.Abs(e.rng.NormFloat64()) * e.cfg.WickVolatility * open
	high := math.Max(open, close) + upperWick
	low := math.Min(open, close) - lowerWick
	if low < minPrice {
		low = minPrice
	}

	volume := e.uniform(e.cfg.VolumeMin, e.cfg.VolumeMax)
	if scenarioActive {
		// 剧本期放大成交量，模拟恐慌/追涨
		volume *= 1 + 2*math.Abs(step)/math.Max(e.cfg.BaseVolatility, 1e-9)*0.1
	}

	openTime := e.clock
	e.clock = e.clock.Add(dt)
	candle := Candle{
		OpenTime:  openTime.UnixMilli(),
		CloseTime: e.clock.UnixMilli(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
	}
	e.price = close
	e.history.Append(candle)

	e.ticksLeft--
	if e.ticksLeft <= 0 {
		next := e.pickRegime()
		e.enterRegime(next)
		e.maybeTriggerScenario()
	}
	return candle
}

// InjectScenario 立即激活指定剧本（训练用的外部注入）。
// 已有剧本在途时直接覆盖。
func (e *Engine) InjectScenario(s Scenario) {
	if s.Total <= 0 {
		s.Total = s.Remaining
	}
	if s.Remaining <= 0 {
		return
	}
	cp := s
	e.scen = &cp
	logger.Infof("注入剧本 %s：%d tick，step=%.4f", s.Kind, s.Remaining, s.StepPct)
}

func (e *Engine) Price() float64       { return e.price }
func (e *Engine) Regime() Regime       { return e.regime }
func (e *Engine) History() *History    { return e.history }
func (e *Engine) ActiveScenario() *Scenario {
	if e.scen == nil {
		return nil
	}
	cp := *e.scen
	return &cp
}

func (e *Engine) drift() float64 {
	switch e.regime {
	case RegimeBull:
		return e.cfg.BullDrift
	case RegimeBear:
		return e.cfg.BearDrift
	default:
		return e.cfg.ChopDrift
	}
}

// pickRegime 按权重随机选择下一个 regime。
func (e *Engine) pickRegime() Regime {
	bw, sw, cw := e.cfg.BullWeight, e.cfg.BearWeight, e.cfg.ChopWeight
	total := bw + sw + cw
	if total <= 0 {
		return RegimeChop
	}
	roll := e.rng.Float64() * total
	switch {
	case roll < bw:
		return RegimeBull
	case roll < bw+sw:
		return RegimeBear
	default:
		return RegimeChop
	}
}

// enterRegime 进入 regime 并抽取其持续 tick 数；持续期内不会提前退出。
func (e *Engine) enterRegime(r Regime) {
	e.regime = r
	lo, hi := e.cfg.RegimeMinTicks, e.cfg.RegimeMaxTicks
	if lo <= 0 {
		lo = 1
	}
	if hi < lo {
		hi = lo
	}
	e.ticksLeft = lo + e.rng.Intn(hi-lo+1)
	logger.Debugf("进入 regime %s，持续 %d tick", r, e.ticksLeft)
}

// maybeTriggerScenario 在 regime 切换点按概率触发一个剧本。
func (e *Engine) maybeTriggerScenario() {
	if e.scen != nil || e.templates == nil {
		return
	}
	if e.rng.Float64() >= e.cfg.ScenarioProbability {
		return
	}
	templates := e.templates.Templates()
	if len(templates) == 0 {
		return
	}
	var total float64
	for _, tpl := range templates {
		total += tpl.Weight
	}
	if total <= 0 {
		return
	}
	roll := e.rng.Float64() * total
	var chosen scenario.Template
	for _, tpl := range templates {
		roll -= tpl.Weight
		if roll <= 0 {
			chosen = tpl
			break
		}
		chosen = tpl
	}
	duration := chosen.MinTicks
	if chosen.MaxTicks > chosen.MinTicks {
		duration += e.rng.Intn(chosen.MaxTicks - chosen.MinTicks + 1)
	}
	e.scen = &Scenario{
		Kind:      chosen.ID,
		Remaining: duration,
		Total:     duration,
		StepPct:   chosen.StepPct,
	}
	logger.Infof("触发剧本 %s：%d tick，step=%.4f", chosen.ID, duration, chosen.StepPct)
}

func (e *Engine) uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + e.rng.Float64()*(hi-lo)
}

// RNG 暴露内部随机源，供订单簿合成共用同一单写者随机流。
// 以方法值形式传给合成器，Reset 换源后每次调用取到的都是新源。
func (e *Engine) RNG() *rand.Rand { return e.rng }
