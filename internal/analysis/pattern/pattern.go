package pattern

import (
	"fmt"
	"math"

	"tradegym/internal/market"
)

// Result 形态扫描结果。未命中时 Detected=false，Signal=neutral。
type Result struct {
	Detected    bool   `json:"detected"`
	Name        string `json:"name,omitempty"`
	Signal      string `json:"signal"`
	Confidence  int    `json:"confidence"`
	Description string `json:"description"`
}

const (
	SignalBullish = "bullish"
	SignalBearish = "bearish"
	SignalNeutral = "neutral"
)

type rule struct {
	name   string
	detect func(candles []market.Candle) (Result, bool)
}

// 按可信度从高到低排列，命中即返回。
var catalog = []rule{
	{"morning_star", detectMorningStar},
	{"evening_star", detectEveningStar},
	{"bullish_engulfing", detectBullishEngulfing},
	{"bearish_engulfing", detectBearishEngulfing},
	{"hammer", detectHammer},
	{"shooting_star", detectShootingStar},
	{"doji", detectDoji},
}

// Detect 在最近几根 K 线上扫描固定形态目录，返回首个命中。
func Detect(candles []market.Candle) Result {
	if len(candles) == 0 {
		return Result{Signal: SignalNeutral, Description: "无可用K线数据"}
	}
	for _, r := range catalog {
		if res, ok := r.detect(candles); ok {
			res.Detected = true
			res.Name = r.name
			return res
		}
	}
	return Result{Signal: SignalNeutral, Description: "未发现显著形态"}
}

func body(c market.Candle) float64      { return math.Abs(c.Close - c.Open) }
func candleRange(c market.Candle) float64 { return c.High - c.Low }
func upperWick(c market.Candle) float64 { return c.High - math.Max(c.Open, c.Close) }
func lowerWick(c market.Candle) float64 { return math.Min(c.Open, c.Close) - c.Low }
func isBull(c market.Candle) bool       { return c.Close > c.Open }
func isBear(c market.Candle) bool       { return c.Close < c.Open }

func last(candles []market.Candle, n int) []market.Candle {
	if len(candles) < n {
		return nil
	}
	return candles[len(candles)-n:]
}

func detectBullishEngulfing(candles []market.Candle) (Result, bool) {
	pair := last(candles, 2)
	if pair == nil {
		return Result{}, false
	}
	prev, cur := pair[0], pair[1]
	if !isBear(prev) || !isBull(cur) {
		return Result{}, false
	}
	if cur.Open > prev.Close || cur.Close < prev.Open {
		return Result{}, false
	}
	conf := engulfConfidence(body(cur), body(prev))
	return Result{
		Signal:      SignalBullish,
		Confidence:  conf,
		Description: fmt.Sprintf("看涨吞没：阳线实体覆盖前一阴线（%.2f→%.2f）", prev.Close, cur.Close),
	}, true
}

func detectBearishEngulfing(candles []market.Candle) (Result, bool) {
	pair := last(candles, 2)
	if pair == nil {
		return Result{}, false
	}
	prev, cur := pair[0], pair[1]
	if !isBull(prev) || !isBear(cur) {
		return Result{}, false
	}
	if cur.Open < prev.Close || cur.Close > prev.Open {
		return Result{}, false
	}
	conf := engulfConfidence(body(cur), body(prev))
	return Result{
		Signal:      SignalBearish,
		Confidence:  conf,
		Description: fmt.Sprintf("看跌吞没：阴线实体覆盖前一阳线（%.2f→%.2f）", prev.Close, cur.Close),
	}, true
}

func engulfConfidence(curBody, prevBody float64) int {
	if prevBody <= 0 {
		return 60
	}
	ratio := curBody / prevBody
	conf := 60 + int(math.Min(25, (ratio-1)*25))
	if conf < 60 {
		conf = 60
	}
	return conf
}

func detectHammer(candles []market.Candle) (Result, bool) {
	cur := candles[len(candles)-1]
	b := body(cur)
	if b <= 0 || candleRange(cur) <= 0 {
		return Result{}, false
	}
	if lowerWick(cur) >= 2*b && upperWick(cur) <= 0.4*b {
		return Result{
			Signal:      SignalBullish,
			Confidence:  65,
			Description: fmt.Sprintf("锤子线：下影线约为实体的 %.1f 倍，低位承接明显", lowerWick(cur)/b),
		}, true
	}
	return Result{}, false
}

func detectShootingStar(candles []market.Candle) (Result, bool) {
	cur := candles[len(candles)-1]
	b := body(cur)
	if b <= 0 || candleRange(cur) <= 0 {
		return Result{}, false
	}
	if upperWick(cur) >= 2*b && lowerWick(cur) <= 0.4*b {
		return Result{
			Signal:      SignalBearish,
			Confidence:  65,
			Description: fmt.Sprintf("射击之星：上影线约为实体的 %.1f 倍，上方抛压沉重", upperWick(cur)/b),
		}, true
	}
	return Result{}, false
}

func detectDoji(candles []market.Candle) (Result, bool) {
	cur := candles[len(candles)-1]
	rng := candleRange(cur)
	if rng <= 0 {
		return Result{}, false
	}
	if body(cur) <= 0.1*rng {
		return Result{
			Signal:      SignalNeutral,
			Confidence:  50,
			Description: "十字星：多空力量暂时均衡",
		}, true
	}
	return Result{}, false
}

func detectMorningStar(candles []market.Candle) (Result, bool) {
	trio := last(candles, 3)
	if trio == nil {
		return Result{}, false
	}
	a, b, c := trio[0], trio[1], trio[2]
	if !isBear(a) || !isBull(c) {
		return Result{}, false
	}
	if body(b) > body(a)*0.5 {
		return Result{}, false
	}
	midpoint := (a.Open + a.Close) / 2
	if c.Close <= midpoint {
		return Result{}, false
	}
	return Result{
		Signal:      SignalBullish,
		Confidence:  78,
		Description: "早晨之星：长阴后缩量十字，阳线收复前阴过半",
	}, true
}

func detectEveningStar(candles []market.Candle) (Result, bool) {
	trio := last(candles, 3)
	if trio == nil {
		return Result{}, false
	}
	a, b, c := trio[0], trio[1], trio[2]
	if !isBull(a) || !isBear(c) {
		return Result{}, false
	}
	if body(b) > body(a)*0.5 {
		return Result{}, false
	}
	midpoint := (a.Open + a.Close) / 2
	if c.Close >= midpoint {
		return Result{}, false
	}
	return Result{
		Signal:      SignalBearish,
		Confidence:  78,
		Description: "黄昏之星：长阳后缩量十字，阴线跌破前阳过半",
	}, true
}
