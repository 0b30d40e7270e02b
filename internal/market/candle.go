package market

// Candle 描述一根 K 线，由行情引擎每 tick 生成一根，生成后不可变。
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// History 维护有界 K 线历史，超出上限时丢弃最旧的一根。
type History struct {
	max     int
	candles []Candle
}

func NewHistory(max int) *History {
	if max <= 0 {
		max = 500
	}
	return &History{max: max, candles: make([]Candle, 0, max)}
}

func (h *History) Append(c Candle) {
	h.candles = append(h.candles, c)
	if len(h.candles) > h.max {
		h.candles = h.candles[len(h.candles)-h.max:]
	}
}

func (h *History) Len() int { return len(h.candles) }

func (h *History) Last() (Candle, bool) {
	if len(h.candles) == 0 {
		return Candle{}, false
	}
	return h.candles[len(h.candles)-1], true
}

// All 返回历史快照副本，调用方可安全持有。
func (h *History) All() []Candle {
	out := make([]Candle, len(h.candles))
	copy(out, h.candles)
	return out
}

// Tail 返回最近 n 根（不足时返回全部）的副本。
func (h *History) Tail(n int) []Candle {
	if n <= 0 || len(h.candles) == 0 {
		return nil
	}
	if n > len(h.candles) {
		n = len(h.candles)
	}
	out := make([]Candle, n)
	copy(out, h.candles[len(h.candles)-n:])
	return out
}

func (h *History) Closes() []float64 {
	out := make([]float64, len(h.candles))
	for i, c := range h.candles {
		out[i] = c.Close
	}
	return out
}

func (h *History) Reset() {
	h.candles = h.candles[:0]
}
