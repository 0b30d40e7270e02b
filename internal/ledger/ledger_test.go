package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tradegym/internal/exchange"
)

func buyFill(price, qty float64) exchange.Fill {
	return exchange.Fill{Side: exchange.SideBuy, Price: price, Quantity: qty, Time: 1000}
}

func sellFill(price, qty float64) exchange.Fill {
	return exchange.Fill{Side: exchange.SideSell, Price: price, Quantity: qty, Time: 2000}
}

func TestApplyFillOpensLots(t *testing.T) {
	l := NewLedger("SIMUSDT")

	h, realized, err := l.ApplyFill(buyFill(10, 100))
	assert.NoError(t, err)
	assert.Empty(t, realized)
	assert.InDelta(t, 100.0, h.Quantity, 1e-9)
	assert.InDelta(t, 10.0, h.AverageCost, 1e-9)

	h, _, err = l.ApplyFill(buyFill(12, 50))
	assert.NoError(t, err)
	assert.Len(t, l.Lots(), 2)
	assert.InDelta(t, 150.0, h.Quantity, 1e-9)
	// 均价 = (100*10 + 50*12) / 150
	assert.InDelta(t, (100*10.0+50*12.0)/150.0, h.AverageCost, 1e-9)
}

func TestApplyFillFIFOClose(t *testing.T) {
	l := NewLedger("SIMUSDT")
	_, _, err := l.ApplyFill(buyFill(10, 100))
	assert.NoError(t, err)
	_, _, err = l.ApplyFill(buyFill(12, 50))
	assert.NoError(t, err)

	// 卖 120：吃掉整个 L1(100@10)，再吃 L2 的 20
	h, realized, err := l.ApplyFill(sellFill(15, 120))
	assert.NoError(t, err)
	assert.Len(t, realized, 2)
	assert.InDelta(t, 100.0, realized[0].Quantity, 1e-9)
	assert.InDelta(t, (15.0-10.0)*100, realized[0].PnL, 1e-9)
	assert.InDelta(t, 20.0, realized[1].Quantity, 1e-9)
	assert.InDelta(t, (15.0-12.0)*20, realized[1].PnL, 1e-9)

	lots := l.Lots()
	assert.Len(t, lots, 1)
	assert.InDelta(t, 30.0, lots[0].Quantity, 1e-9)
	assert.InDelta(t, 12.0, lots[0].Price, 1e-9)
	assert.InDelta(t, 30.0, h.Quantity, 1e-9)
}

func TestApplyFillReversal(t *testing.T) {
	l := NewLedger("SIMUSDT")
	_, _, err := l.ApplyFill(buyFill(10, 100))
	assert.NoError(t, err)

	// 卖 150：平掉 100 多头后反手开 50 空头
	h, realized, err := l.ApplyFill(sellFill(11, 150))
	assert.NoError(t, err)
	assert.Len(t, realized, 1)
	assert.InDelta(t, (11.0-10.0)*100, realized[0].PnL, 1e-9)
	assert.InDelta(t, -50.0, h.Quantity, 1e-9)

	lots := l.Lots()
	assert.Len(t, lots, 1)
	assert.InDelta(t, -50.0, lots[0].Quantity, 1e-9)
	assert.InDelta(t, 11.0, lots[0].Price, 1e-9)
}

func TestShortPositionPnL(t *testing.T) {
	l := NewLedger("SIMUSDT")
	_, _, err := l.ApplyFill(sellFill(20, 100))
	assert.NoError(t, err)

	h := l.MarkToMarket(18)
	assert.InDelta(t, -100.0, h.Quantity, 1e-9)
	// 空头跌 2 块，每单位赚 2
	assert.InDelta(t, 200.0, h.UnrealizedPnl, 1e-9)

	// 买回 60 平部分空头
	_, realized, err := l.ApplyFill(buyFill(17, 60))
	assert.NoError(t, err)
	assert.Len(t, realized, 1)
	assert.InDelta(t, (20.0-17.0)*60, realized[0].PnL, 1e-9)
	assert.InDelta(t, -40.0, l.Holding().Quantity, 1e-9)
}

func TestCloseLotBypassesFIFO(t *testing.T) {
	l := NewLedger("SIMUSDT")
	_, _, err := l.ApplyFill(buyFill(10, 100))
	assert.NoError(t, err)
	_, _, err = l.ApplyFill(buyFill(12, 50))
	assert.NoError(t, err)

	lots := l.Lots()
	target := lots[1] // 后开的 L2

	realized, err := l.CloseLot(target.ID, 13)
	assert.NoError(t, err)
	assert.InDelta(t, 50.0, realized.Quantity, 1e-9)
	assert.InDelta(t, (13.0-12.0)*50, realized.PnL, 1e-9)

	remaining := l.Lots()
	assert.Len(t, remaining, 1)
	assert.Equal(t, lots[0].ID, remaining[0].ID, "其余 lot 不受影响")

	_, err = l.CloseLot("no-such-lot", 13)
	assert.ErrorIs(t, err, ErrLotNotFound)
}

func TestHoldingRecomputedNotDrifting(t *testing.T) {
	l := NewLedger("SIMUSDT")
	_, _, err := l.ApplyFill(buyFill(10, 100))
	assert.NoError(t, err)

	// 连续 mark 不改变均价
	for i := 0; i < 10; i++ {
		l.MarkToMarket(10 + float64(i))
	}
	h := l.Holding()
	assert.InDelta(t, 10.0, h.AverageCost, 1e-9)
	assert.InDelta(t, 100.0, h.Quantity, 1e-9)
}

func TestUnrealizedPnlPercent(t *testing.T) {
	l := NewLedger("SIMUSDT")
	_, _, err := l.ApplyFill(buyFill(100, 10))
	assert.NoError(t, err)

	h := l.MarkToMarket(110)
	assert.InDelta(t, 100.0, h.UnrealizedPnl, 1e-9)
	assert.InDelta(t, 10.0, h.UnrealizedPnlPercent, 1e-9)
}

func TestResetClearsEverything(t *testing.T) {
	l := NewLedger("SIMUSDT")
	_, _, err := l.ApplyFill(buyFill(10, 100))
	assert.NoError(t, err)
	l.Reset()
	assert.Empty(t, l.Lots())
	assert.InDelta(t, 0.0, l.Holding().Quantity, 1e-9)
}

func TestEmptyHoldingIsZero(t *testing.T) {
	l := NewLedger("SIMUSDT")
	h := l.Holding()
	assert.Equal(t, "SIMUSDT", h.Symbol)
	assert.Zero(t, h.Quantity)
	assert.Zero(t, h.AverageCost)
	assert.Zero(t, h.UnrealizedPnl)
}
