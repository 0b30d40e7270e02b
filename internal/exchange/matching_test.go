package exchange

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"tradegym/internal/market"
)

func testBook(mid float64) market.BookSnapshot {
	return market.BookSnapshot{
		Time: 1000,
		Mid:  mid,
		Bids: []market.PriceLevel{
			{Price: mid - 0.01, Quantity: 100},
			{Price: mid - 0.02, Quantity: 100},
			{Price: mid - 0.03, Quantity: 100},
		},
		Asks: []market.PriceLevel{
			{Price: mid + 0.01, Quantity: 100},
			{Price: mid + 0.02, Quantity: 100},
			{Price: mid + 0.03, Quantity: 100},
		},
	}
}

func newTestEngine() *Engine {
	e := NewEngine(Config{
		StartingBalance: 100000,
		CommissionRate:  0.0005,
		MaxLeverage:     10,
	})
	e.SetClock(func() int64 { return 1000 })
	return e
}

func TestSubmitMarketOrderFullFill(t *testing.T) {
	e := newTestEngine()
	book := testBook(50.00)

	order, fills, err := e.Submit(OrderInput{Side: SideBuy, Type: OrderMarket, Quantity: 100}, book)
	assert.NoError(t, err)
	assert.Equal(t, StatusFilled, order.Status)
	assert.Len(t, fills, 1)
	assert.InDelta(t, 100.0, fills[0].Quantity, 1e-9)
	assert.InDelta(t, 50.01, fills[0].Price, 1e-9)

	// 余额扣减全额名义金额加佣金
	expected := 100000 - 100*50.01*1.0005
	assert.InDelta(t, expected, e.Balance(), 1e-6)
}

func TestSubmitMarketOrderVWAPAcrossLevels(t *testing.T) {
	e := newTestEngine()
	book := testBook(50.00)

	// 250 > 第一档 100，跨三档：100@50.01 + 100@50.02 + 50@50.03
	_, fills, err := e.Submit(OrderInput{Side: SideBuy, Type: OrderMarket, Quantity: 250}, book)
	assert.NoError(t, err)
	assert.Len(t, fills, 1)
	wantVWAP := (100*50.01 + 100*50.02 + 50*50.03) / 250
	assert.InDelta(t, wantVWAP, fills[0].Price, 1e-9)
}

func TestSubmitMarketOrderBeyondDisplayedDepth(t *testing.T) {
	e := newTestEngine()
	book := testBook(50.00)

	// 展示深度共 300，其余 200 按最差档位 50.03 补足
	_, fills, err := e.Submit(OrderInput{Side: SideSell, Type: OrderMarket, Quantity: 500}, book)
	assert.NoError(t, err)
	assert.Len(t, fills, 1)
	assert.InDelta(t, 500.0, fills[0].Quantity, 1e-9)
	wantVWAP := (100*49.99 + 100*49.98 + 100*49.97 + 200*49.97) / 500
	assert.InDelta(t, wantVWAP, fills[0].Price, 1e-9)
}

func TestSubmitLimitOrderRestsWhenUnmarketable(t *testing.T) {
	e := newTestEngine()
	book := testBook(50.00)

	order, fills, err := e.Submit(OrderInput{Side: SideBuy, Type: OrderLimit, Quantity: 50, Price: 49.50}, book)
	assert.NoError(t, err)
	assert.Empty(t, fills)
	assert.Equal(t, StatusPending, order.Status)
	assert.Len(t, e.PendingOrders(), 1)
	assert.InDelta(t, 100000.0, e.Balance(), 1e-9, "挂单不动现金")
}

func TestSubmitLimitOrderPartialFill(t *testing.T) {
	e := newTestEngine()
	book := testBook(50.00)

	// 限价 50.01 只吃得到第一档 100
	order, fills, err := e.Submit(OrderInput{Side: SideBuy, Type: OrderLimit, Quantity: 150, Price: 50.01}, book)
	assert.NoError(t, err)
	assert.Equal(t, StatusPartial, order.Status)
	assert.Len(t, fills, 1)
	assert.InDelta(t, 100.0, fills[0].Quantity, 1e-9)

	pend := e.PendingOrders()
	assert.Len(t, pend, 1)
	assert.InDelta(t, 50.0, pend[0].Remaining, 1e-9)
	assert.Equal(t, StatusPartial, pend[0].Status)
}

func TestOnTickFillsPendingInSubmissionOrder(t *testing.T) {
	e := newTestEngine()
	empty := market.BookSnapshot{
		Mid:  50,
		Bids: []market.PriceLevel{{Price: 49.99, Quantity: 1}},
		Asks: []market.PriceLevel{{Price: 51.00, Quantity: 1}},
	}
	o1, _, err := e.Submit(OrderInput{Side: SideBuy, Type: OrderLimit, Quantity: 80, Price: 50.01}, empty)
	assert.NoError(t, err)
	o2, _, err := e.Submit(OrderInput{Side: SideBuy, Type: OrderLimit, Quantity: 80, Price: 50.01}, empty)
	assert.NoError(t, err)

	// 新 tick 上限价内流动性只有第一档 100，先提交者先吃
	fills := e.OnTick(testBook(50.00))
	var got = map[string]float64{}
	for _, f := range fills {
		got[f.OrderID] += f.Quantity
	}
	assert.InDelta(t, 80.0, got[o1.ID], 1e-9)
	assert.InDelta(t, 20.0, got[o2.ID], 1e-9)

	st1, _ := e.Status(o1.ID)
	st2, _ := e.Status(o2.ID)
	assert.Equal(t, StatusFilled, st1)
	assert.Equal(t, StatusPartial, st2)
}

func TestCancelPendingOrder(t *testing.T) {
	e := newTestEngine()
	book := testBook(50.00)
	order, _, err := e.Submit(OrderInput{Side: SideSell, Type: OrderLimit, Quantity: 10, Price: 55}, book)
	assert.NoError(t, err)

	po, err := e.Cancel(order.ID)
	assert.NoError(t, err)
	assert.Equal(t, StatusCancelled, po.Status)
	assert.Empty(t, e.PendingOrders())

	// 再次取消：已终态
	_, err = e.Cancel(order.ID)
	assert.True(t, errors.Is(err, ErrAlreadyTerminal))

	_, err = e.Cancel("no-such-order")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCancelFilledOrderIsTerminal(t *testing.T) {
	e := newTestEngine()
	order, _, err := e.Submit(OrderInput{Side: SideBuy, Type: OrderMarket, Quantity: 10}, testBook(50.00))
	assert.NoError(t, err)
	_, err = e.Cancel(order.ID)
	assert.True(t, errors.Is(err, ErrAlreadyTerminal))
}

func TestSubmitValidation(t *testing.T) {
	e := newTestEngine()
	book := testBook(50.00)

	cases := []struct {
		name   string
		in     OrderInput
		reason RejectReason
	}{
		{"零数量", OrderInput{Side: SideBuy, Type: OrderMarket, Quantity: 0}, RejectQuantity},
		{"负数量", OrderInput{Side: SideSell, Type: OrderMarket, Quantity: -5}, RejectQuantity},
		{"限价缺价格", OrderInput{Side: SideBuy, Type: OrderLimit, Quantity: 10}, RejectPrice},
		{"负杠杆", OrderInput{Side: SideBuy, Type: OrderMarket, Quantity: 10, Leverage: -1}, RejectLeverage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := e.Submit(tc.in, book)
			re, ok := AsReject(err)
			assert.True(t, ok)
			assert.Equal(t, tc.reason, re.Reason)
		})
	}
}

func TestSubmitInsufficientBalance(t *testing.T) {
	e := NewEngine(Config{StartingBalance: 100, CommissionRate: 0.0005, MaxLeverage: 10})
	book := testBook(50.00)

	_, _, err := e.Submit(OrderInput{Side: SideBuy, Type: OrderMarket, Quantity: 100}, book)
	re, ok := AsReject(err)
	assert.True(t, ok)
	assert.Equal(t, RejectBalance, re.Reason)
	assert.InDelta(t, 100.0, e.Balance(), 1e-9, "拒单不动现金")
	assert.Empty(t, e.Trades())
}

func TestSubmitLeverageReducesRequiredMargin(t *testing.T) {
	e := NewEngine(Config{StartingBalance: 600, CommissionRate: 0.0005, MaxLeverage: 10})
	book := testBook(50.00)

	// 名义 ~5001，10x 杠杆保证金 ~500.1 + 佣金，余额 600 放行
	_, _, err := e.Submit(OrderInput{Side: SideBuy, Type: OrderMarket, Quantity: 100, Leverage: 10}, book)
	assert.NoError(t, err)
}

func TestResetRestoresInitialState(t *testing.T) {
	e := newTestEngine()
	book := testBook(50.00)
	_, _, err := e.Submit(OrderInput{Side: SideBuy, Type: OrderMarket, Quantity: 10}, book)
	assert.NoError(t, err)
	_, _, err = e.Submit(OrderInput{Side: SideBuy, Type: OrderLimit, Quantity: 5, Price: 40}, book)
	assert.NoError(t, err)

	e.Reset()
	assert.InDelta(t, 100000.0, e.Balance(), 1e-9)
	assert.Empty(t, e.PendingOrders())
	assert.Empty(t, e.Trades())
}

func TestSettleClose(t *testing.T) {
	e := newTestEngine()
	notional, commission := e.SettleClose(SideSell, 52.0, 100)
	assert.InDelta(t, 5200.0, notional, 1e-9)
	assert.InDelta(t, 2.6, commission, 1e-9)
	assert.InDelta(t, 100000+5200-2.6, e.Balance(), 1e-6)
}
