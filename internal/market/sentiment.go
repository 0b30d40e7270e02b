package market

import "math"

// 情绪分基线：regime 决定基调，近期动量修正。
const (
	sentimentBull = 62
	sentimentBear = 38
	sentimentChop = 50

	sentimentMomentumBars = 10
	sentimentMomentumGain = 400
	sentimentMomentumCap  = 15
)

// Sentiment 输出 0–100 的买方情绪分，供订单簿合成倾斜挂量。
func (e *Engine) Sentiment() int {
	base := sentimentChop
	switch e.regime {
	case RegimeBull:
		base = sentimentBull
	case RegimeBear:
		base = sentimentBear
	}

	tail := e.history.Tail(sentimentMomentumBars)
	if len(tail) >= 2 {
		first := tail[0].Close
		last := tail[len(tail)-1].Close
		if first > 0 {
			mom := (last - first) / first * sentimentMomentumGain
			mom = math.Max(-sentimentMomentumCap, math.Min(sentimentMomentumCap, mom))
			base += int(math.Round(mom))
		}
	}
	if base < 5 {
		base = 5
	}
	if base > 95 {
		base = 95
	}
	return base
}
