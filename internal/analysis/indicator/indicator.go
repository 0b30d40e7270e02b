package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"tradegym/internal/market"
)

// RSI 计算收盘价序列的 RSI，返回最新值，恒在 [0,100]。
func RSI(candles []market.Candle, period int) (float64, error) {
	if period <= 0 {
		period = 14
	}
	if len(candles) < period+1 {
		return 0, fmt.Errorf("rsi 需要至少 %d 根K线，只有 %d", period+1, len(candles))
	}
	closes := Closes(candles)
	series := sanitizeSeries(talib.Rsi(closes, period))
	val := lastValid(series)
	if val < 0 {
		val = 0
	}
	if val > 100 {
		val = 100
	}
	return val, nil
}

// ATR 计算平均真实波幅，用于趋势强度归一。
func ATR(candles []market.Candle, period int) (float64, error) {
	if period <= 0 {
		period = 14
	}
	if len(candles) < period+1 {
		return 0, fmt.Errorf("atr 需要至少 %d 根K线，只有 %d", period+1, len(candles))
	}
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}
	series := sanitizeSeries(talib.Atr(highs, lows, closes, period))
	if len(series) == 0 {
		return 0, fmt.Errorf("atr series empty")
	}
	return lastValid(series), nil
}

func Closes(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func Volumes(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

// FitLine 最小二乘拟合，返回斜率与截距。
func FitLine(series []float64) (slope, intercept float64) {
	if len(series) == 0 {
		return 0, 0
	}
	var sumX, sumY, sumXY, sumXX float64
	n := float64(len(series))
	for i, y := range series {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, series[len(series)-1]
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return
}

// Mean 求均值，空序列返回 0。
func Mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

func sanitizeSeries(src []float64) []float64 {
	out := make([]float64, 0, len(src))
	for _, v := range src {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i]
		}
	}
	return 0
}
