package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tradegym/internal/market"
)

func candlesFromCloses(closes []float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, cl := range closes {
		out[i] = market.Candle{
			Open:  cl,
			High:  cl * 1.01,
			Low:   cl * 0.99,
			Close: cl,
		}
	}
	return out
}

func TestRSIInsufficientData(t *testing.T) {
	_, err := RSI(candlesFromCloses([]float64{1, 2, 3}), 14)
	assert.Error(t, err)
}

func TestRSIMonotonicRiseIsHigh(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	rsi, err := RSI(candlesFromCloses(closes), 14)
	assert.NoError(t, err)
	assert.Greater(t, rsi, 70.0, "单边上涨 RSI 应超买")
	assert.LessOrEqual(t, rsi, 100.0)
}

func TestRSIMonotonicFallIsLow(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 - float64(i)
	}
	rsi, err := RSI(candlesFromCloses(closes), 14)
	assert.NoError(t, err)
	assert.Less(t, rsi, 30.0, "单边下跌 RSI 应超卖")
	assert.GreaterOrEqual(t, rsi, 0.0)
}

func TestATR(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	atr, err := ATR(candlesFromCloses(closes), 14)
	assert.NoError(t, err)
	assert.Greater(t, atr, 0.0)
}

func TestFitLine(t *testing.T) {
	slope, intercept := FitLine([]float64{1, 3, 5, 7, 9})
	assert.InDelta(t, 2.0, slope, 1e-9)
	assert.InDelta(t, 1.0, intercept, 1e-9)

	slope, _ = FitLine([]float64{5, 5, 5, 5})
	assert.InDelta(t, 0.0, slope, 1e-9)

	slope, intercept = FitLine(nil)
	assert.Zero(t, slope)
	assert.Zero(t, intercept)
}

func TestMean(t *testing.T) {
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-9)
	assert.Zero(t, Mean(nil))
}
