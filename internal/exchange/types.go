package exchange

import (
	"errors"
	"fmt"
)

// Side 订单方向。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// Sign 返回方向符号：买 +1，卖 -1。
func (s Side) Sign() float64 {
	if s == SideBuy {
		return 1
	}
	return -1
}

// OrderType 订单类型，仅支持市价与限价。
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// OrderStatus 订单状态机：
// submitted → (filled | partial → filled | partial → cancelled | rejected)
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPartial   OrderStatus = "partial"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
	StatusRejected  OrderStatus = "rejected"
)

// Terminal 报告状态是否为终态。
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// OrderInput 用户提交的订单意图。
type OrderInput struct {
	Side     Side      `json:"side"`
	Type     OrderType `json:"type"`
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price,omitempty"`
	Leverage float64   `json:"leverage,omitempty"`
}

// Order 提交结果视图。
type Order struct {
	ID          string      `json:"order_id"`
	Side        Side        `json:"side"`
	Type        OrderType   `json:"type"`
	Quantity    float64     `json:"quantity"`
	LimitPrice  float64     `json:"limit_price,omitempty"`
	Leverage    float64     `json:"leverage"`
	Status      OrderStatus `json:"status"`
	SubmittedAt int64       `json:"submitted_at"`
}

// PendingOrder 驻留的未成交限价单。GTC，只能由取消或成交移除。
type PendingOrder struct {
	ID          string      `json:"order_id"`
	Side        Side        `json:"side"`
	Quantity    float64     `json:"quantity"`
	Remaining   float64     `json:"remaining"`
	LimitPrice  float64     `json:"limit_price"`
	Leverage    float64     `json:"leverage"`
	SubmittedAt int64       `json:"submitted_at"`
	Seq         int64       `json:"-"`
	Status      OrderStatus `json:"status"`
}

// Trade 一笔成交，append-only。
type Trade struct {
	ID        string  `json:"trade_id"`
	Time      int64   `json:"time"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
	TakerSide Side    `json:"taker_side"`
}

// Fill 单次成交明细（整单或部分），VWAP 口径。
type Fill struct {
	OrderID    string  `json:"order_id"`
	TradeID    string  `json:"trade_id"`
	Side       Side    `json:"side"`
	Price      float64 `json:"price"`
	Quantity   float64 `json:"quantity"`
	Notional   float64 `json:"notional"`
	Commission float64 `json:"commission"`
	Leverage   float64 `json:"leverage"`
	Time       int64   `json:"time"`
}

// OrderRecord 不可变审计记录，每次成交/取消各落一条。
type OrderRecord struct {
	OrderID    string      `json:"order_id"`
	TradeID    string      `json:"trade_id,omitempty"`
	Time       int64       `json:"time"`
	Side       Side        `json:"side"`
	Quantity   float64     `json:"quantity"`
	Price      float64     `json:"price"`
	Total      float64     `json:"total"`
	Commission float64     `json:"commission"`
	Status     OrderStatus `json:"status"`
	PnL        *float64    `json:"pnl,omitempty"`
}

// 查询类失败。
var (
	ErrNotFound        = errors.New("order not found")
	ErrAlreadyTerminal = errors.New("order already terminal")
)

// RejectReason 下单校验失败的具体原因。
type RejectReason string

const (
	RejectQuantity RejectReason = "invalid_quantity"
	RejectPrice    RejectReason = "missing_limit_price"
	RejectLeverage RejectReason = "invalid_leverage"
	RejectBalance  RejectReason = "insufficient_balance"
)

// RejectError 同步校验失败，未发生任何状态变更。
type RejectError struct {
	Reason RejectReason
	Detail string
}

func (e *RejectError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

// AsReject 判定 err 是否为下单拒绝。
func AsReject(err error) (*RejectError, bool) {
	var re *RejectError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
