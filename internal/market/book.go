package market

import (
	"math/rand"
)

// PriceLevel 订单簿单档。
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// BookSnapshot 一次 tick 的完整订单簿快照。
// Bids 按价格严格降序，Asks 严格升序，买一恒低于卖一。
// 每 tick 整体重建，不跨 tick 维护增量状态。
type BookSnapshot struct {
	Time int64        `json:"time"`
	Mid  float64      `json:"mid"`
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}

func (s BookSnapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

func (s BookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// BidDepth 返回买方累计挂量。
func (s BookSnapshot) BidDepth() float64 {
	var sum float64
	for _, lv := range s.Bids {
		sum += lv.Quantity
	}
	return sum
}

// AskDepth 返回卖方累计挂量。
func (s BookSnapshot) AskDepth() float64 {
	var sum float64
	for _, lv := range s.Asks {
		sum += lv.Quantity
	}
	return sum
}

// BookConfig 控制订单簿合成。
type BookConfig struct {
	Depth        int
	SpreadPct    float64
	LevelStepPct float64
	SizeMin      float64
	SizeMax      float64
}

// BookSynthesizer 由中间价与情绪分合成订单簿。
// 这是一个流动性展示模型而非真实限价簿：没有第三方挂单的
// 存续状态，快照逐 tick 全量重建。
type BookSynthesizer struct {
	cfg BookConfig
	// rng 每次调用取当前随机源；Engine.Reset 换种子后档位量随之复现。
	rng func() *rand.Rand
}

func NewBookSynthesizer(cfg BookConfig, rng func() *rand.Rand) *BookSynthesizer {
	if cfg.Depth <= 0 {
		cfg.Depth = 10
	}
	if rng == nil {
		owned := rand.New(rand.NewSource(1))
		rng = func() *rand.Rand { return owned }
	}
	return &BookSynthesizer{cfg: cfg, rng: rng}
}

// Synthesize 生成快照。sentiment∈[0,100]，高于 50 放大买盘、压缩卖盘，反之亦然。
func (b *BookSynthesizer) Synthesize(now int64, mid float64, sentiment int) BookSnapshot {
	if sentiment < 0 {
		sentiment = 0
	}
	if sentiment > 100 {
		sentiment = 100
	}
	skew := float64(sentiment-50) / 100.0 // [-0.5, 0.5]
	bidScale := 1 + skew
	askScale := 1 - skew

	halfSpread := mid * b.cfg.SpreadPct / 2
	step := mid * b.cfg.LevelStepPct

	snap := BookSnapshot{
		Time: now,
		Mid:  mid,
		Bids: make([]PriceLevel, 0, b.cfg.Depth),
		Asks: make([]PriceLevel, 0, b.cfg.Depth),
	}
	for i := 0; i < b.cfg.Depth; i++ {
		offset := float64(i) * step
		bidPrice := mid - halfSpread - offset
		if bidPrice < minPrice {
			bidPrice = minPrice / float64(i+1)
		}
		snap.Bids = append(snap.Bids, PriceLevel{
			Price:    bidPrice,
			Quantity: b.levelSize(bidScale),
		})
		snap.Asks = append(snap.Asks, PriceLevel{
			Price:    mid + halfSpread + offset,
			Quantity: b.levelSize(askScale),
		})
	}
	return snap
}

func (b *BookSynthesizer) levelSize(scale float64) float64 {
	lo, hi := b.cfg.SizeMin, b.cfg.SizeMax
	size := lo
	if hi > lo {
		size = lo + b.rng().Float64()*(hi-lo)
	}
	size *= scale
	if size < 1 {
		size = 1
	}
	return size
}
