package exchange

import (
	"fmt"
	"time"

	"tradegym/internal/logger"
	"tradegym/internal/market"
	"tradegym/internal/pkg/decmath"

	"github.com/google/uuid"
)

// qtyEps 以下的剩余量视为完全成交。
const qtyEps = 1e-9

// Config 撮合引擎参数。
type Config struct {
	StartingBalance float64
	CommissionRate  float64
	MaxLeverage     float64
}

// Engine 针对合成订单簿撮合用户订单。非并发安全，
// 由会话层单写者循环串行调用，tick 之间不保留簿内流动性。
type Engine struct {
	cfg Config

	balance  float64
	pendings []*PendingOrder
	index    map[string]*PendingOrder
	statuses map[string]OrderStatus
	trades   []Trade
	seq      int64
	now      func() int64
}

func NewEngine(cfg Config) *Engine {
	e := &Engine{
		cfg: cfg,
		now: func() int64 { return time.Now().UnixMilli() },
	}
	e.Reset()
	return e
}

// SetClock 注入毫秒时钟，测试用。
func (e *Engine) SetClock(now func() int64) {
	if now != nil {
		e.now = now
	}
}

// Reset 恢复初始余额并清空挂单、成交与状态登记。
func (e *Engine) Reset() {
	e.balance = e.cfg.StartingBalance
	e.pendings = nil
	e.index = make(map[string]*PendingOrder)
	e.statuses = make(map[string]OrderStatus)
	e.trades = nil
	e.seq = 0
}

func (e *Engine) Balance() float64 { return e.balance }

// ApplyCash 直接调整现金余额（持仓平仓回款等账务入口）。
func (e *Engine) ApplyCash(delta float64) {
	e.balance = decmath.Add(e.balance, delta)
}

// SettleClose 结算一笔不经过订单簿的平仓现金流（按 lot 平仓走这里）。
// 平多视同卖出：入账名义金额减佣金；平空视同买入：出账名义金额加佣金。
// 返回名义金额与佣金，供调用方记账。
func (e *Engine) SettleClose(closeSide Side, price, qty float64) (notional, commission float64) {
	notional = decmath.Mul(price, qty)
	commission = decmath.Mul(notional, e.cfg.CommissionRate)
	if closeSide == SideSell {
		e.balance = decmath.Add(e.balance, decmath.Sub(notional, commission))
	} else {
		e.balance = decmath.Sub(e.balance, decmath.Add(notional, commission))
	}
	return notional, commission
}

// Trades 返回成交流水副本。
func (e *Engine) Trades() []Trade {
	out := make([]Trade, len(e.trades))
	copy(out, e.trades)
	return out
}

// PendingOrders 返回当前挂单快照（按提交顺序）。
func (e *Engine) PendingOrders() []PendingOrder {
	out := make([]PendingOrder, 0, len(e.pendings))
	for _, po := range e.pendings {
		out = append(out, *po)
	}
	return out
}

// Status 查询任意已提交订单的状态。
func (e *Engine) Status(orderID string) (OrderStatus, bool) {
	st, ok := e.statuses[orderID]
	return st, ok
}

// Submit 校验并撮合一笔订单意图。
// 市价单按展示簿 VWAP 全量成交（展示深度之外假定流动性无限）；
// 可成交限价单立即按限价内档位成交，剩余转入挂单。
func (e *Engine) Submit(in OrderInput, book market.BookSnapshot) (Order, []Fill, error) {
	if err := e.validate(in, book); err != nil {
		return Order{}, nil, err
	}
	leverage := clampLeverage(in.Leverage, e.cfg.MaxLeverage)
	now := e.now()
	order := Order{
		ID:          uuid.NewString(),
		Side:        in.Side,
		Type:        in.Type,
		Quantity:    in.Quantity,
		LimitPrice:  in.Price,
		Leverage:    leverage,
		Status:      StatusPending,
		SubmittedAt: now,
	}

	opposite := e.oppositeLevels(in.Side, book)
	var fills []Fill

	switch in.Type {
	case OrderMarket:
		vwap, filled := walkLevels(opposite, in.Quantity, 0, in.Side, true)
		if filled < in.Quantity-qtyEps {
			// 展示簿为空才会走到这里，属于内部错误而非用户错误
			return Order{}, nil, fmt.Errorf("market order %s unfillable: displayed book empty", order.ID)
		}
		fills = append(fills, e.executeFill(order.ID, in.Side, vwap, filled, leverage, now))
		order.Status = StatusFilled
	case OrderLimit:
		vwap, filled := walkLevels(opposite, in.Quantity, in.Price, in.Side, false)
		if filled > 0 {
			fills = append(fills, e.executeFill(order.ID, in.Side, vwap, filled, leverage, now))
		}
		remaining := in.Quantity - filled
		if remaining <= qtyEps {
			order.Status = StatusFilled
		} else {
			status := StatusPending
			if filled > 0 {
				status = StatusPartial
			}
			e.seq++
			po := &PendingOrder{
				ID:          order.ID,
				Side:        in.Side,
				Quantity:    in.Quantity,
				Remaining:   remaining,
				LimitPrice:  in.Price,
				Leverage:    leverage,
				SubmittedAt: now,
				Seq:         e.seq,
				Status:      status,
			}
			e.pendings = append(e.pendings, po)
			e.index[po.ID] = po
			order.Status = status
		}
	}
	e.statuses[order.ID] = order.Status
	logger.Debugf("订单 %s %s %s qty=%.4f status=%s fills=%d", order.ID, in.Type, in.Side, in.Quantity, order.Status, len(fills))
	return order, fills, nil
}

// Cancel 撤销挂单。已终态返回 ErrAlreadyTerminal，未知返回 ErrNotFound。
func (e *Engine) Cancel(orderID string) (PendingOrder, error) {
	po, ok := e.index[orderID]
	if !ok {
		if st, known := e.statuses[orderID]; known && st.Terminal() {
			return PendingOrder{}, ErrAlreadyTerminal
		}
		return PendingOrder{}, ErrNotFound
	}
	delete(e.index, orderID)
	for i, p := range e.pendings {
		if p.ID == orderID {
			e.pendings = append(e.pendings[:i], e.pendings[i+1:]...)
			break
		}
	}
	po.Status = StatusCancelled
	e.statuses[orderID] = StatusCancelled
	return *po, nil
}

// OnTick 用新快照重估全部挂单。
// 按提交序遍历（价格时间优先），先到的订单先消耗展示流动性。
func (e *Engine) OnTick(book market.BookSnapshot) []Fill {
	if len(e.pendings) == 0 {
		return nil
	}
	bids := copyLevels(book.Bids)
	asks := copyLevels(book.Asks)
	now := e.now()

	var fills []Fill
	kept := e.pendings[:0]
	for _, po := range e.pendings {
		levels := asks
		if po.Side == SideSell {
			levels = bids
		}
		vwap, filled := consumeLevels(levels, po.Remaining, po.LimitPrice, po.Side)
		if filled > 0 {
			fills = append(fills, e.executeFill(po.ID, po.Side, vwap, filled, po.Leverage, now))
			po.Remaining -= filled
		}
		if po.Remaining <= qtyEps {
			po.Status = StatusFilled
			e.statuses[po.ID] = StatusFilled
			delete(e.index, po.ID)
			continue
		}
		if filled > 0 {
			po.Status = StatusPartial
			e.statuses[po.ID] = StatusPartial
		}
		kept = append(kept, po)
	}
	e.pendings = kept
	return fills
}

// executeFill 落一笔成交：记录 Trade、收取佣金、更新现金。
// 佣金按每笔成交的名义金额计收（部分成交亦然）。
func (e *Engine) executeFill(orderID string, side Side, price, qty, leverage float64, now int64) Fill {
	notional := decmath.Mul(price, qty)
	commission := decmath.Mul(notional, e.cfg.CommissionRate)
	if side == SideBuy {
		e.balance = decmath.Sub(e.balance, decmath.Add(notional, commission))
	} else {
		e.balance = decmath.Add(e.balance, decmath.Sub(notional, commission))
	}
	trade := Trade{
		ID:        uuid.NewString(),
		Time:      now,
		Price:     price,
		Quantity:  qty,
		TakerSide: side,
	}
	e.trades = append(e.trades, trade)
	return Fill{
		OrderID:    orderID,
		TradeID:    trade.ID,
		Side:       side,
		Price:      price,
		Quantity:   qty,
		Notional:   notional,
		Commission: commission,
		Leverage:   leverage,
		Time:       now,
	}
}

func (e *Engine) validate(in OrderInput, book market.BookSnapshot) error {
	if !in.Side.Valid() {
		return &RejectError{Reason: RejectQuantity, Detail: fmt.Sprintf("unknown side %q", in.Side)}
	}
	if in.Type != OrderMarket && in.Type != OrderLimit {
		return &RejectError{Reason: RejectQuantity, Detail: fmt.Sprintf("unknown order type %q", in.Type)}
	}
	if in.Quantity <= 0 {
		return &RejectError{Reason: RejectQuantity, Detail: fmt.Sprintf("quantity must be positive, got %f", in.Quantity)}
	}
	if in.Type == OrderLimit && in.Price <= 0 {
		return &RejectError{Reason: RejectPrice, Detail: "limit order requires a price"}
	}
	if in.Leverage < 0 {
		return &RejectError{Reason: RejectLeverage, Detail: fmt.Sprintf("leverage must be >= 1, got %f", in.Leverage)}
	}
	if in.Side == SideBuy {
		leverage := clampLeverage(in.Leverage, e.cfg.MaxLeverage)
		total := e.estimateTotal(in, book)
		commission := decmath.Mul(total, e.cfg.CommissionRate)
		required := decmath.Add(total/leverage, commission)
		if decmath.LT(e.balance, required) {
			return &RejectError{
				Reason: RejectBalance,
				Detail: fmt.Sprintf("need %.2f, have %.2f", required, e.balance),
			}
		}
	}
	return nil
}

// estimateTotal 估算买单名义金额：市价按簿面 VWAP 推演，限价按限价计。
func (e *Engine) estimateTotal(in OrderInput, book market.BookSnapshot) float64 {
	if in.Type == OrderLimit {
		return decmath.Mul(in.Price, in.Quantity)
	}
	vwap, filled := walkLevels(book.Asks, in.Quantity, 0, SideBuy, true)
	if filled <= 0 {
		return decmath.Mul(book.Mid, in.Quantity)
	}
	return decmath.Mul(vwap, in.Quantity)
}

func (e *Engine) oppositeLevels(side Side, book market.BookSnapshot) []market.PriceLevel {
	if side == SideBuy {
		return book.Asks
	}
	return book.Bids
}

func clampLeverage(v, max float64) float64 {
	if v < 1 {
		return 1
	}
	if max >= 1 && v > max {
		return max
	}
	return v
}

// walkLevels 沿对手盘从最优价向外推演成交，返回 VWAP 与成交量。
// limit>0 时只吃限价内档位；marketOrder 时展示深度吃完后剩余量
// 按最差档位价补足（展示流动性之外假定无限）。
func walkLevels(levels []market.PriceLevel, qty, limit float64, side Side, marketOrder bool) (vwap, filled float64) {
	remaining := qty
	var notional float64
	var lastPrice float64
	for _, lv := range levels {
		if remaining <= qtyEps {
			break
		}
		if limit > 0 {
			if side == SideBuy && decmath.GT(lv.Price, limit) {
				break
			}
			if side == SideSell && decmath.LT(lv.Price, limit) {
				break
			}
		}
		take := lv.Quantity
		if take > remaining {
			take = remaining
		}
		notional += lv.Price * take
		remaining -= take
		lastPrice = lv.Price
	}
	if marketOrder && remaining > qtyEps && lastPrice > 0 {
		notional += lastPrice * remaining
		remaining = 0
	}
	filled = qty - remaining
	if filled <= 0 {
		return 0, 0
	}
	return notional / filled, filled
}

// consumeLevels 与 walkLevels 同口径，但就地扣减档位余量，
// 供同一 tick 内多个挂单按先后顺序分享流动性。
func consumeLevels(levels []market.PriceLevel, qty, limit float64, side Side) (vwap, filled float64) {
	remaining := qty
	var notional float64
	for i := range levels {
		if remaining <= qtyEps {
			break
		}
		lv := &levels[i]
		if lv.Quantity <= qtyEps {
			continue
		}
		if limit > 0 {
			if side == SideBuy && decmath.GT(lv.Price, limit) {
				break
			}
			if side == SideSell && decmath.LT(lv.Price, limit) {
				break
			}
		}
		take := lv.Quantity
		if take > remaining {
			take = remaining
		}
		notional += lv.Price * take
		lv.Quantity -= take
		remaining -= take
	}
	filled = qty - remaining
	if filled <= 0 {
		return 0, 0
	}
	return notional / filled, filled
}

func copyLevels(src []market.PriceLevel) []market.PriceLevel {
	out := make([]market.PriceLevel, len(src))
	copy(out, src)
	return out
}
