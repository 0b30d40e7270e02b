package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tradegym/internal/market"
)

func c(open, high, low, close float64) market.Candle {
	return market.Candle{Open: open, High: high, Low: low, Close: close}
}

func TestDetectEmptyInput(t *testing.T) {
	res := Detect(nil)
	assert.False(t, res.Detected)
	assert.Equal(t, SignalNeutral, res.Signal)
}

func TestBullishEngulfing(t *testing.T) {
	candles := []market.Candle{
		c(10.0, 10.1, 9.4, 9.5),  // 阴线
		c(9.4, 10.3, 9.3, 10.2), // 阳线实体覆盖前一根
	}
	res := Detect(candles)
	assert.True(t, res.Detected)
	assert.Equal(t, "bullish_engulfing", res.Name)
	assert.Equal(t, SignalBullish, res.Signal)
	assert.GreaterOrEqual(t, res.Confidence, 60)
}

func TestBearishEngulfing(t *testing.T) {
	candles := []market.Candle{
		c(9.5, 10.2, 9.4, 10.0),
		c(10.1, 10.2, 9.2, 9.3),
	}
	res := Detect(candles)
	assert.True(t, res.Detected)
	assert.Equal(t, "bearish_engulfing", res.Name)
	assert.Equal(t, SignalBearish, res.Signal)
}

func TestHammer(t *testing.T) {
	// 小实体 + 长下影 + 短上影
	candles := []market.Candle{c(10.0, 10.21, 9.0, 10.2)}
	res := Detect(candles)
	assert.True(t, res.Detected)
	assert.Equal(t, "hammer", res.Name)
	assert.Equal(t, SignalBullish, res.Signal)
}

func TestShootingStar(t *testing.T) {
	candles := []market.Candle{c(10.0, 11.0, 9.99, 9.99)}
	res := Detect(candles)
	assert.True(t, res.Detected)
	assert.Equal(t, "shooting_star", res.Name)
	assert.Equal(t, SignalBearish, res.Signal)
}

func TestDoji(t *testing.T) {
	candles := []market.Candle{c(10.0, 10.5, 9.5, 10.01)}
	res := Detect(candles)
	assert.True(t, res.Detected)
	assert.Equal(t, "doji", res.Name)
	assert.Equal(t, SignalNeutral, res.Signal)
}

func TestMorningStar(t *testing.T) {
	candles := []market.Candle{
		c(10.0, 10.05, 8.9, 9.0),   // 长阴
		c(9.0, 9.1, 8.85, 8.95),    // 小实体
		c(8.95, 9.9, 8.9, 9.8),     // 阳线收复前阴过半
	}
	res := Detect(candles)
	assert.True(t, res.Detected)
	assert.Equal(t, "morning_star", res.Name)
	assert.Equal(t, SignalBullish, res.Signal)
	assert.Equal(t, 78, res.Confidence)
}

func TestEveningStar(t *testing.T) {
	candles := []market.Candle{
		c(9.0, 10.1, 8.95, 10.0),
		c(10.0, 10.15, 9.9, 10.05),
		c(10.05, 10.1, 9.0, 9.1),
	}
	res := Detect(candles)
	assert.True(t, res.Detected)
	assert.Equal(t, "evening_star", res.Name)
	assert.Equal(t, SignalBearish, res.Signal)
}

func TestNoPatternOnPlainCandles(t *testing.T) {
	// 两根普通阳线，彼此不吞没、无长影线
	candles := []market.Candle{
		c(10.0, 10.55, 9.95, 10.5),
		c(10.5, 11.05, 10.45, 11.0),
	}
	res := Detect(candles)
	assert.False(t, res.Detected)
	assert.Equal(t, SignalNeutral, res.Signal)
}
