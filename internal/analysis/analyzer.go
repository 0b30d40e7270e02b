package analysis

import (
	"fmt"
	"math"

	"tradegym/internal/analysis/indicator"
	"tradegym/internal/analysis/pattern"
	"tradegym/internal/market"
)

// Recommendation 最终建议方向。
type Recommendation string

const (
	RecommendLong  Recommendation = "LONG"
	RecommendShort Recommendation = "SHORT"
	RecommendHold  Recommendation = "HOLD"
)

// OverallView 综合结论。
type OverallView struct {
	Recommendation Recommendation `json:"recommendation"`
	Confidence     int            `json:"confidence"`
	Reasons        []string       `json:"reasons"`
}

// TrendView 趋势子结论。
type TrendView struct {
	Direction   string `json:"direction"`
	Strength    int    `json:"strength"`
	Description string `json:"description"`
}

// BookView 盘口压力子结论。
type BookView struct {
	BuyPressure  float64 `json:"buy_pressure"`
	SellPressure float64 `json:"sell_pressure"`
	Description  string  `json:"description"`
}

// MomentumView 动量子结论。
type MomentumView struct {
	RSI         float64 `json:"rsi"`
	Velocity    float64 `json:"velocity"`
	VolumeTrend string  `json:"volume_trend"`
	Description string  `json:"description"`
}

// PatternView K线形态子结论。
type PatternView struct {
	Detected    bool   `json:"detected"`
	Signal      string `json:"signal"`
	Confidence  int    `json:"confidence"`
	Description string `json:"description"`
}

// DetailedAnalysis 一次扫描的完整产出，产出后不可变，被下一次扫描整体取代。
type DetailedAnalysis struct {
	Timestamp int64        `json:"timestamp"`
	Overall   OverallView  `json:"overall"`
	Trend     TrendView    `json:"trend"`
	OrderBook BookView     `json:"order_book"`
	Momentum  MomentumView `json:"momentum"`
	Pattern   PatternView  `json:"pattern"`
}

// Settings 分析参数。
type Settings struct {
	RSIPeriod      int
	VelocityWindow int
	VolumeWindow   int
	TrendWindow    int
	PatternWindow  int
}

func (s *Settings) applyDefaults() {
	if s.RSIPeriod <= 0 {
		s.RSIPeriod = 14
	}
	if s.VelocityWindow <= 0 {
		s.VelocityWindow = 10
	}
	if s.VolumeWindow <= 0 {
		s.VolumeWindow = 20
	}
	if s.TrendWindow <= 0 {
		s.TrendWindow = 30
	}
	if s.PatternWindow <= 0 {
		s.PatternWindow = 5
	}
}

// 综合评分权重与阈值。纯规则加权，无任何学习成分。
const (
	weightTrend    = 0.35
	weightMomentum = 0.25
	weightBook     = 0.20
	weightPattern  = 0.20

	recommendThreshold = 20.0

	volumeUpRatio   = 1.15
	volumeDownRatio = 0.87
)

// Analyzer 规则化技术分析引擎。对输入只读，不触碰订单簿与持仓。
type Analyzer struct {
	cfg Settings
}

func NewAnalyzer(cfg Settings) *Analyzer {
	cfg.applyDefaults()
	return &Analyzer{cfg: cfg}
}

// Scan 对给定历史与盘口做一次完整扫描。相同输入产出相同结论。
func (a *Analyzer) Scan(candles []market.Candle, book market.BookSnapshot) (DetailedAnalysis, error) {
	need := a.cfg.RSIPeriod + 1
	if len(candles) < need {
		return DetailedAnalysis{}, fmt.Errorf("分析需要至少 %d 根K线，只有 %d", need, len(candles))
	}

	trend := a.scanTrend(candles)
	momentum, err := a.scanMomentum(candles)
	if err != nil {
		return DetailedAnalysis{}, err
	}
	bookView := scanBook(book)
	pat := a.scanPattern(candles)

	out := DetailedAnalysis{
		Timestamp: book.Time,
		Trend:     trend,
		OrderBook: bookView,
		Momentum:  momentum,
		Pattern:   pat,
	}
	out.Overall = a.aggregate(trend, momentum, bookView, pat)
	return out, nil
}

func (a *Analyzer) scanTrend(candles []market.Candle) TrendView {
	window := candles
	if len(window) > a.cfg.TrendWindow {
		window = window[len(window)-a.cfg.TrendWindow:]
	}
	closes := indicator.Closes(window)
	slope, _ := indicator.FitLine(closes)
	lastClose := closes[len(closes)-1]

	// 斜率换算为窗口内的总相对位移，便于跨价格水平比较
	rel := 0.0
	if lastClose > 0 {
		rel = slope * float64(len(closes)) / lastClose
	}
	direction := "neutral"
	switch {
	case rel > 0.005:
		direction = "bullish"
	case rel < -0.005:
		direction = "bearish"
	}
	strength := int(math.Min(100, math.Abs(rel)*1000))
	return TrendView{
		Direction:   direction,
		Strength:    strength,
		Description: fmt.Sprintf("线性回归斜率=%.6f，窗口位移 %.2f%%", slope, rel*100),
	}
}

func (a *Analyzer) scanMomentum(candles []market.Candle) (MomentumView, error) {
	rsi, err := indicator.RSI(candles, a.cfg.RSIPeriod)
	if err != nil {
		return MomentumView{}, err
	}
	closes := indicator.Closes(candles)
	velocity := 0.0
	if w := a.cfg.VelocityWindow; len(closes) > w && closes[len(closes)-1-w] > 0 {
		base := closes[len(closes)-1-w]
		velocity = (closes[len(closes)-1] - base) / base * 100
	}
	volTrend := a.volumeTrend(candles)
	return MomentumView{
		RSI:         rsi,
		Velocity:    velocity,
		VolumeTrend: volTrend,
		Description: fmt.Sprintf("RSI(%d)=%.1f，%d tick 变速 %.2f%%，量能%s", a.cfg.RSIPeriod, rsi, a.cfg.VelocityWindow, velocity, volumeTrendCN(volTrend)),
	}, nil
}

func (a *Analyzer) volumeTrend(candles []market.Candle) string {
	w := a.cfg.VolumeWindow
	if len(candles) < 2*w {
		return "flat"
	}
	vols := indicator.Volumes(candles)
	recent := indicator.Mean(vols[len(vols)-w:])
	prior := indicator.Mean(vols[len(vols)-2*w : len(vols)-w])
	if prior <= 0 {
		return "flat"
	}
	ratio := recent / prior
	switch {
	case ratio > volumeUpRatio:
		return "increasing"
	case ratio < volumeDownRatio:
		return "decreasing"
	default:
		return "flat"
	}
}

func scanBook(book market.BookSnapshot) BookView {
	bid := book.BidDepth()
	ask := book.AskDepth()
	buy := 50.0
	if bid+ask > 0 {
		buy = bid / (bid + ask) * 100
	}
	sell := 100 - buy
	desc := "盘口均衡"
	switch {
	case buy >= 60:
		desc = fmt.Sprintf("买盘占优，买压 %.1f%%", buy)
	case sell >= 60:
		desc = fmt.Sprintf("卖盘占优，卖压 %.1f%%", sell)
	}
	return BookView{BuyPressure: buy, SellPressure: sell, Description: desc}
}

func (a *Analyzer) scanPattern(candles []market.Candle) PatternView {
	window := candles
	if len(window) > a.cfg.PatternWindow {
		window = window[len(window)-a.cfg.PatternWindow:]
	}
	res := pattern.Detect(window)
	return PatternView{
		Detected:    res.Detected,
		Signal:      res.Signal,
		Confidence:  res.Confidence,
		Description: res.Description,
	}
}

// aggregate 以固定权重合成 [-100,100] 的多空分，阈值化为建议。
func (a *Analyzer) aggregate(trend TrendView, momentum MomentumView, book BookView, pat PatternView) OverallView {
	var reasons []string

	trendScore := 0.0
	switch trend.Direction {
	case "bullish":
		trendScore = float64(trend.Strength)
		reasons = append(reasons, fmt.Sprintf("趋势偏多（强度 %d）", trend.Strength))
	case "bearish":
		trendScore = -float64(trend.Strength)
		reasons = append(reasons, fmt.Sprintf("趋势偏空（强度 %d）", trend.Strength))
	}

	momScore := (50 - momentum.RSI) * 2
	switch {
	case momentum.RSI <= 30:
		reasons = append(reasons, fmt.Sprintf("RSI %.1f 超卖", momentum.RSI))
	case momentum.RSI >= 70:
		reasons = append(reasons, fmt.Sprintf("RSI %.1f 超买", momentum.RSI))
	}
	if momentum.VolumeTrend == "increasing" {
		reasons = append(reasons, "量能放大")
	}

	bookScore := (book.BuyPressure - 50) * 2
	if math.Abs(book.BuyPressure-50) >= 10 {
		reasons = append(reasons, book.Description)
	}

	patScore := 0.0
	if pat.Detected {
		switch pat.Signal {
		case pattern.SignalBullish:
			patScore = float64(pat.Confidence)
		case pattern.SignalBearish:
			patScore = -float64(pat.Confidence)
		}
		reasons = append(reasons, pat.Description)
	}

	total := weightTrend*trendScore + weightMomentum*momScore + weightBook*bookScore + weightPattern*patScore

	view := OverallView{Reasons: reasons}
	switch {
	case total >= recommendThreshold:
		view.Recommendation = RecommendLong
		view.Confidence = clampConfidence(total)
	case total <= -recommendThreshold:
		view.Recommendation = RecommendShort
		view.Confidence = clampConfidence(-total)
	default:
		view.Recommendation = RecommendHold
		view.Confidence = clampConfidence(100 - math.Abs(total)*2)
		if len(view.Reasons) == 0 {
			view.Reasons = append(view.Reasons, "信号不足，建议观望")
		}
	}
	return view
}

func clampConfidence(v float64) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(math.Round(v))
}

func volumeTrendCN(trend string) string {
	switch trend {
	case "increasing":
		return "放大"
	case "decreasing":
		return "萎缩"
	default:
		return "持平"
	}
}
