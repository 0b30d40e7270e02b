package market

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tradegym/internal/scenario"
)

func testEngineConfig() EngineConfig {
	return EngineConfig{
		StartPrice:     50,
		HistoryMax:     500,
		RegimeMinTicks: 20,
		RegimeMaxTicks: 40,
		BaseVolatility: 0.002,
		WickVolatility: 0.001,
		BullDrift:      0.0006,
		BearDrift:      -0.0006,
		ChopDrift:      0,
		BullWeight:     1,
		BearWeight:     1,
		ChopWeight:     1,
		VolumeMin:      100,
		VolumeMax:      1000,
	}
}

func TestAdvanceCandleInvariants(t *testing.T) {
	e := NewEngine(testEngineConfig(), nil, 42)
	prevClose := e.Price()
	for i := 0; i < 500; i++ {
		c := e.Advance(time.Second)
		assert.InDelta(t, prevClose, c.Open, 1e-9, "开盘价衔接上一根收盘价")
		assert.GreaterOrEqual(t, c.High, math.Max(c.Open, c.Close))
		assert.LessOrEqual(t, c.Low, math.Min(c.Open, c.Close))
		assert.Greater(t, c.Close, 0.0)
		assert.Greater(t, c.Low, 0.0)
		assert.GreaterOrEqual(t, c.Volume, 100.0)
		assert.Greater(t, c.CloseTime, c.OpenTime)
		prevClose = c.Close
	}
	assert.Equal(t, 500, e.History().Len())
}

func TestDeterministicWithSameSeed(t *testing.T) {
	a := NewEngine(testEngineConfig(), nil, 7)
	b := NewEngine(testEngineConfig(), nil, 7)
	for i := 0; i < 100; i++ {
		ca := a.Advance(time.Second)
		cb := b.Advance(time.Second)
		assert.Equal(t, ca.Close, cb.Close)
		assert.Equal(t, ca.Volume, cb.Volume)
	}
}

func TestRegimeDurationRespected(t *testing.T) {
	cfg := testEngineConfig()
	cfg.RegimeMinTicks = 10
	cfg.RegimeMaxTicks = 10
	e := NewEngine(cfg, nil, 1)

	first := e.Regime()
	for i := 0; i < 9; i++ {
		e.Advance(time.Second)
		assert.Equal(t, first, e.Regime(), "持续期内 regime 不变")
	}
}

func TestInjectScenarioDrivesPrice(t *testing.T) {
	cfg := testEngineConfig()
	cfg.BaseVolatility = 0 // 去掉噪声，隔离剧本位移
	cfg.ChopDrift = 0
	cfg.BullDrift = 0
	cfg.BearDrift = 0
	cfg.WickVolatility = 0
	e := NewEngine(cfg, nil, 3)

	start := e.Price()
	e.InjectScenario(Scenario{Kind: "crash", Remaining: 5, StepPct: -0.02})
	for i := 0; i < 5; i++ {
		assert.NotNil(t, e.ActiveScenario())
		e.Advance(time.Second)
	}
	assert.Nil(t, e.ActiveScenario(), "剧本到期自动清除")
	want := start * math.Pow(0.98, 5)
	assert.InDelta(t, want, e.Price(), want*1e-9)
}

func TestInjectScenarioOverridesActive(t *testing.T) {
	e := NewEngine(testEngineConfig(), nil, 3)
	e.InjectScenario(Scenario{Kind: "a", Remaining: 10, StepPct: 0.01})
	e.InjectScenario(Scenario{Kind: "b", Remaining: 3, StepPct: -0.01})
	sc := e.ActiveScenario()
	assert.Equal(t, "b", sc.Kind)
	assert.Equal(t, 3, sc.Remaining)
}

type stubTemplates struct{ tpls []scenario.Template }

func (s stubTemplates) Templates() []scenario.Template { return s.tpls }

func TestScenarioTriggeredOnRegimeSwitch(t *testing.T) {
	cfg := testEngineConfig()
	cfg.RegimeMinTicks = 1
	cfg.RegimeMaxTicks = 1
	cfg.ScenarioProbability = 1 // 每次切换必触发
	src := stubTemplates{tpls: []scenario.Template{
		{ID: "crash", MinTicks: 3, MaxTicks: 3, StepPct: -0.02, Weight: 1},
	}}
	e := NewEngine(cfg, src, 9)

	e.Advance(time.Second) // 第一次 regime 结束，触发剧本
	sc := e.ActiveScenario()
	assert.NotNil(t, sc)
	assert.Equal(t, "crash", sc.Kind)
}

func TestPriceFloorsAtMinimum(t *testing.T) {
	cfg := testEngineConfig()
	cfg.StartPrice = 0.001
	e := NewEngine(cfg, nil, 5)
	e.InjectScenario(Scenario{Kind: "crash", Remaining: 1000, StepPct: -0.5})
	for i := 0; i < 50; i++ {
		c := e.Advance(time.Second)
		assert.GreaterOrEqual(t, c.Close, minPrice)
		assert.GreaterOrEqual(t, c.Low, 0.0)
	}
}

func TestResetRestoresStartPrice(t *testing.T) {
	e := NewEngine(testEngineConfig(), nil, 11)
	for i := 0; i < 50; i++ {
		e.Advance(time.Second)
	}
	e.Reset(11)
	assert.InDelta(t, 50.0, e.Price(), 1e-9)
	assert.Equal(t, 0, e.History().Len())
	assert.Nil(t, e.ActiveScenario())
}

func TestSentimentBounds(t *testing.T) {
	e := NewEngine(testEngineConfig(), nil, 13)
	for i := 0; i < 200; i++ {
		e.Advance(time.Second)
		s := e.Sentiment()
		assert.GreaterOrEqual(t, s, 5)
		assert.LessOrEqual(t, s, 95)
	}
}

func TestBookSynthesizerInvariants(t *testing.T) {
	b := NewBookSynthesizer(BookConfig{
		Depth:        10,
		SpreadPct:    0.0008,
		LevelStepPct: 0.0005,
		SizeMin:      50,
		SizeMax:      400,
	}, nil)

	snap := b.Synthesize(1000, 50, 50)
	assert.Len(t, snap.Bids, 10)
	assert.Len(t, snap.Asks, 10)

	best, _ := snap.BestBid()
	bestAsk, _ := snap.BestAsk()
	assert.Less(t, best.Price, bestAsk.Price, "买一恒低于卖一")
	assert.Less(t, best.Price, snap.Mid)
	assert.Greater(t, bestAsk.Price, snap.Mid)

	for i := 1; i < len(snap.Bids); i++ {
		assert.Less(t, snap.Bids[i].Price, snap.Bids[i-1].Price, "买盘严格降序")
	}
	for i := 1; i < len(snap.Asks); i++ {
		assert.Greater(t, snap.Asks[i].Price, snap.Asks[i-1].Price, "卖盘严格升序")
	}
	for _, lv := range append(snap.Bids, snap.Asks...) {
		assert.Greater(t, lv.Quantity, 0.0)
	}
}

func TestBookSentimentSkew(t *testing.T) {
	b := NewBookSynthesizer(BookConfig{
		Depth:        10,
		SpreadPct:    0.0008,
		LevelStepPct: 0.0005,
		SizeMin:      200,
		SizeMax:      200, // 固定档位量，隔离倾斜系数
	}, nil)

	bullish := b.Synthesize(0, 50, 90)
	assert.Greater(t, bullish.BidDepth(), bullish.AskDepth(), "高情绪买盘更厚")

	bearish := b.Synthesize(0, 50, 10)
	assert.Less(t, bearish.BidDepth(), bearish.AskDepth(), "低情绪卖盘更厚")
}

func TestResetReproducesBooks(t *testing.T) {
	e := NewEngine(testEngineConfig(), nil, 7)
	b := NewBookSynthesizer(BookConfig{
		Depth:        10,
		SpreadPct:    0.0008,
		LevelStepPct: 0.0005,
		SizeMin:      50,
		SizeMax:      400,
	}, e.RNG)

	run := func() (closes, bidQtys []float64) {
		for i := 0; i < 5; i++ {
			c := e.Advance(time.Second)
			snap := b.Synthesize(c.CloseTime, c.Close, e.Sentiment())
			best, ok := snap.BestBid()
			assert.True(t, ok)
			closes = append(closes, c.Close)
			bidQtys = append(bidQtys, best.Quantity)
		}
		return
	}

	closes1, bids1 := run()
	e.Reset(7)
	closes2, bids2 := run()

	assert.Equal(t, closes1, closes2, "同种子重置后价格序列复现")
	assert.Equal(t, bids1, bids2, "同种子重置后档位量序列复现")
}

func TestHistoryBounded(t *testing.T) {
	h := NewHistory(10)
	for i := 0; i < 25; i++ {
		h.Append(Candle{OpenTime: int64(i)})
	}
	assert.Equal(t, 10, h.Len())
	all := h.All()
	assert.Equal(t, int64(15), all[0].OpenTime, "最旧的被淘汰")
	assert.Equal(t, int64(24), all[len(all)-1].OpenTime)

	tail := h.Tail(3)
	assert.Len(t, tail, 3)
	assert.Equal(t, int64(22), tail[0].OpenTime)
}
