package ledger

import (
	"errors"
	"fmt"
	"math"

	"tradegym/internal/exchange"
	"tradegym/internal/pkg/decmath"

	"github.com/google/uuid"
)

const (
	qtyEps       = 1e-9
	invariantEps = 1e-6
)

var ErrLotNotFound = errors.New("lot not found")

// ConsistencyError 表示仓位不变量被破坏（lot 合计 ≠ 持仓量）。
// 这是程序缺陷而非用户错误，调用方必须视为致命并中止会话。
type ConsistencyError struct {
	Detail string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("ledger consistency violated: %s", e.Detail)
}

// Lot 一笔仍然敞开的入场。Quantity 带符号：多头为正，空头为负。
// 数量归零即移除，绝不保留零量 lot。
type Lot struct {
	ID       string  `json:"id"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Time     int64   `json:"time"`
}

// Holding 对当前 lot 集的聚合视图，始终重算、从不独立维护。
type Holding struct {
	Symbol               string  `json:"symbol"`
	Quantity             float64 `json:"quantity"`
	AverageCost          float64 `json:"average_cost"`
	MarketValue          float64 `json:"market_value"`
	UnrealizedPnl        float64 `json:"unrealized_pnl"`
	UnrealizedPnlPercent float64 `json:"unrealized_pnl_percent"`
}

// RealizedPnL 一次平仓实现的盈亏。
type RealizedPnL struct {
	LotID      string  `json:"lot_id"`
	Quantity   float64 `json:"quantity"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	PnL        float64 `json:"pnl"`
}

// Ledger 按 lot 维护单一 symbol 的仓位。
// lots 保持插入序（FIFO 平仓依赖它），index 提供按 ID 的 O(1) 查找。
// 非并发安全，由会话层串行调用。
type Ledger struct {
	symbol    string
	lots      []*Lot
	index     map[string]*Lot
	quantity  float64 // 增量维护，仅用于与 lot 合计交叉校验
	lastPrice float64
}

func NewLedger(symbol string) *Ledger {
	l := &Ledger{symbol: symbol}
	l.Reset()
	return l
}

func (l *Ledger) Reset() {
	l.lots = nil
	l.index = make(map[string]*Lot)
	l.quantity = 0
	l.lastPrice = 0
}

// Lots 返回当前开仓 lot 的副本（插入序）。
func (l *Ledger) Lots() []Lot {
	out := make([]Lot, 0, len(l.lots))
	for _, lot := range l.lots {
		out = append(out, *lot)
	}
	return out
}

// ApplyFill 应用一笔成交：同向加仓新增 lot，反向先按 FIFO 消耗
// 最旧的 lot，超出部分反手开新仓。返回新的持仓视图与实现盈亏。
func (l *Ledger) ApplyFill(f exchange.Fill) (Holding, []RealizedPnL, error) {
	signed := f.Quantity * f.Side.Sign()
	if math.Abs(signed) <= qtyEps {
		return l.holdingAt(l.lastPrice), nil, nil
	}
	l.lastPrice = f.Price

	var realized []RealizedPnL
	if l.quantity == 0 || sameSign(l.quantity, signed) {
		l.appendLot(f.Price, signed, f.Time)
	} else {
		closing := math.Abs(signed)
		posSign := sign(l.quantity)
		for closing > qtyEps && len(l.lots) > 0 && sameSign(l.lots[0].Quantity, l.quantity) {
			lot := l.lots[0]
			avail := math.Abs(lot.Quantity)
			take := math.Min(avail, closing)
			realized = append(realized, RealizedPnL{
				LotID:      lot.ID,
				Quantity:   take,
				EntryPrice: lot.Price,
				ExitPrice:  f.Price,
				PnL:        (f.Price - lot.Price) * take * posSign,
			})
			if take >= avail-qtyEps {
				l.removeLot(lot.ID)
			} else {
				lot.Quantity -= take * posSign
			}
			closing -= take
		}
		if closing > qtyEps {
			// 一笔成交内反手
			l.appendLot(f.Price, closing*-posSign, f.Time)
		}
	}

	l.quantity = decmath.Add(l.quantity, signed)
	if err := l.checkInvariant(); err != nil {
		return Holding{}, nil, err
	}
	return l.holdingAt(f.Price), realized, nil
}

// CloseLot 按当前价整体平掉指定 lot，显式绕过 FIFO 顺序，
// 其余 lot 不受影响。
func (l *Ledger) CloseLot(lotID string, price float64) (RealizedPnL, error) {
	lot, ok := l.index[lotID]
	if !ok {
		return RealizedPnL{}, ErrLotNotFound
	}
	qty := math.Abs(lot.Quantity)
	result := RealizedPnL{
		LotID:      lot.ID,
		Quantity:   qty,
		EntryPrice: lot.Price,
		ExitPrice:  price,
		PnL:        (price - lot.Price) * qty * sign(lot.Quantity),
	}
	l.quantity = decmath.Sub(l.quantity, lot.Quantity)
	l.removeLot(lotID)
	l.lastPrice = price
	if err := l.checkInvariant(); err != nil {
		return RealizedPnL{}, err
	}
	return result, nil
}

// MarkToMarket 按最新价重算未实现盈亏，不改变任何 lot。
func (l *Ledger) MarkToMarket(price float64) Holding {
	l.lastPrice = price
	return l.holdingAt(price)
}

// Holding 返回按最近已知价格计算的持仓视图。
func (l *Ledger) Holding() Holding {
	return l.holdingAt(l.lastPrice)
}

func (l *Ledger) appendLot(price, signedQty float64, ts int64) {
	lot := &Lot{
		ID:       uuid.NewString(),
		Price:    price,
		Quantity: signedQty,
		Time:     ts,
	}
	l.lots = append(l.lots, lot)
	l.index[lot.ID] = lot
}

func (l *Ledger) removeLot(id string) {
	delete(l.index, id)
	for i, lot := range l.lots {
		if lot.ID == id {
			l.lots = append(l.lots[:i], l.lots[i+1:]...)
			return
		}
	}
}

// holdingAt 全量重算聚合视图。均价取 |数量| 加权的 lot 价格均值，
// 每次结构变化后重算而非增量维护，避免漂移。
func (l *Ledger) holdingAt(price float64) Holding {
	h := Holding{Symbol: l.symbol}
	if len(l.lots) == 0 {
		return h
	}
	var qtySum, absSum, costSum, unrealized float64
	for _, lot := range l.lots {
		qtySum += lot.Quantity
		abs := math.Abs(lot.Quantity)
		absSum += abs
		costSum += lot.Price * abs
		unrealized += (price - lot.Price) * lot.Quantity
	}
	h.Quantity = qtySum
	if absSum > 0 {
		h.AverageCost = costSum / absSum
	}
	h.MarketValue = price * qtySum
	h.UnrealizedPnl = unrealized
	if basis := h.AverageCost * absSum; basis > 0 {
		h.UnrealizedPnlPercent = unrealized / basis * 100
	}
	return h
}

// checkInvariant 校验增量维护的持仓量与 lot 合计一致。
func (l *Ledger) checkInvariant() error {
	var sum float64
	for _, lot := range l.lots {
		sum += lot.Quantity
	}
	if !decmath.EqualWithin(sum, l.quantity, invariantEps) {
		return &ConsistencyError{
			Detail: fmt.Sprintf("lot sum %.9f != tracked quantity %.9f", sum, l.quantity),
		}
	}
	return nil
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
