package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tradegym/internal/analysis"
	"tradegym/internal/exchange"
	"tradegym/internal/ledger"
	"tradegym/internal/logger"
	"tradegym/internal/market"
	"tradegym/internal/scenario"
)

var (
	ErrScanInFlight  = errors.New("scan already in flight")
	ErrScanThrottled = errors.New("scan rate limit exceeded")
	ErrHalted        = errors.New("session halted")
)

// Config 会话参数。
type Config struct {
	Symbol        string
	Seed          int64
	TickInterval  time.Duration
	ScanLatency   time.Duration
	ScanPerMinute int
}

// TickEvent 一次 tick 的完整产出，推送给订阅方（WS 广播等）。
type TickEvent struct {
	Seq       int64               `json:"seq"`
	Candle    market.Candle       `json:"candle"`
	Book      market.BookSnapshot `json:"book"`
	Regime    string              `json:"regime"`
	Sentiment int                 `json:"sentiment"`
	Scenario  *market.Scenario    `json:"scenario,omitempty"`
	Fills     []exchange.Fill     `json:"fills,omitempty"`
	Holding   ledger.Holding      `json:"holding"`
	Balance   float64             `json:"balance"`
	Equity    float64             `json:"equity"`
}

// State 面向接口层的会话全景快照。
type State struct {
	Symbol    string                     `json:"symbol"`
	Tick      int64                      `json:"tick"`
	Price     float64                    `json:"price"`
	Regime    string                     `json:"regime"`
	Sentiment int                        `json:"sentiment"`
	Scenario  *market.Scenario           `json:"scenario,omitempty"`
	Balance   float64                    `json:"balance"`
	Equity    float64                    `json:"equity"`
	Holding   ledger.Holding             `json:"holding"`
	Lots      []ledger.Lot               `json:"lots"`
	Pending   []exchange.PendingOrder    `json:"pending_orders"`
	Analysis  *analysis.DetailedAnalysis `json:"analysis,omitempty"`
	Scanning  bool                       `json:"scanning"`
	Halted    bool                       `json:"halted"`
}

// CloseResult lot 平仓的产出。
type CloseResult struct {
	Realized   ledger.RealizedPnL `json:"realized"`
	Commission float64            `json:"commission"`
	Balance    float64            `json:"balance"`
	Holding    ledger.Holding     `json:"holding"`
}

// Session 把行情、撮合、持仓、分析捆成单写者状态机。
// 全部外部入口经 mu 串行化，包内组件因此无需自带锁。
// 仓位不变量被破坏时会话进入 halted，只有 Reset 能恢复。
type Session struct {
	mu  sync.Mutex
	cfg Config

	engine   *market.Engine
	book     *market.BookSynthesizer
	exch     *exchange.Engine
	ledger   *ledger.Ledger
	analyzer *analysis.Analyzer
	recorder Recorder

	limiter  *rate.Limiter
	scanning bool

	tick     int64
	lastBook market.BookSnapshot
	lastScan *analysis.DetailedAnalysis
	fatal    error

	subMu  sync.Mutex
	subSeq int
	subs   map[int]chan TickEvent
}

func New(cfg Config, engine *market.Engine, book *market.BookSynthesizer, exch *exchange.Engine, led *ledger.Ledger, analyzer *analysis.Analyzer, recorder Recorder) *Session {
	if cfg.ScanPerMinute <= 0 {
		cfg.ScanPerMinute = 12
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Session{
		cfg:      cfg,
		engine:   engine,
		book:     book,
		exch:     exch,
		ledger:   led,
		analyzer: analyzer,
		recorder: recorder,
		limiter:  rate.NewLimiter(rate.Limit(float64(cfg.ScanPerMinute)/60.0), 1),
		subs:     make(map[int]chan TickEvent),
	}
}

// Subscribe 注册 tick 事件订阅，返回取消函数。
// 慢消费者不会阻塞会话：缓冲满时事件被丢弃。
func (s *Session) Subscribe(buffer int) (<-chan TickEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan TickEvent, buffer)
	s.subMu.Lock()
	s.subSeq++
	id := s.subSeq
	s.subs[id] = ch
	s.subMu.Unlock()
	cancel := func() {
		s.subMu.Lock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *Session) publish(ev TickEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Tick 推进一个模拟步：生成 K 线与订单簿，重估挂单并更新持仓。
func (s *Session) Tick(ctx context.Context) (TickEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal != nil {
		return TickEvent{}, fmt.Errorf("%w: %v", ErrHalted, s.fatal)
	}

	candle := s.engine.Advance(s.cfg.TickInterval)
	sentiment := s.engine.Sentiment()
	book := s.book.Synthesize(candle.CloseTime, candle.Close, sentiment)
	s.lastBook = book
	s.tick++

	fills := s.exch.OnTick(book)
	for _, f := range fills {
		if err := s.applyFillLocked(ctx, f); err != nil {
			return TickEvent{}, err
		}
	}
	holding := s.ledger.MarkToMarket(candle.Close)

	if err := s.recorder.RecordCandle(ctx, candle); err != nil {
		logger.Warnf("K线落盘失败: %v", err)
	}

	ev := TickEvent{
		Seq:       s.tick,
		Candle:    candle,
		Book:      book,
		Regime:    s.engine.Regime().String(),
		Sentiment: sentiment,
		Scenario:  s.engine.ActiveScenario(),
		Fills:     fills,
		Holding:   holding,
		Balance:   s.exch.Balance(),
		Equity:    s.equityLocked(candle.Close),
	}
	s.publish(ev)
	return ev, nil
}

// SubmitOrder 提交订单并把即时成交记入持仓。
func (s *Session) SubmitOrder(ctx context.Context, in exchange.OrderInput) (exchange.Order, []exchange.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal != nil {
		return exchange.Order{}, nil, fmt.Errorf("%w: %v", ErrHalted, s.fatal)
	}
	order, fills, err := s.exch.Submit(in, s.lastBook)
	if err != nil {
		if re, ok := exchange.AsReject(err); ok {
			logger.Infof("订单被拒: %s", re.Error())
		}
		return exchange.Order{}, nil, err
	}
	for _, f := range fills {
		if err := s.applyFillLocked(ctx, f); err != nil {
			return exchange.Order{}, nil, err
		}
	}
	return order, fills, nil
}

// CancelOrder 撤销挂单。
func (s *Session) CancelOrder(ctx context.Context, orderID string) (exchange.PendingOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal != nil {
		return exchange.PendingOrder{}, fmt.Errorf("%w: %v", ErrHalted, s.fatal)
	}
	po, err := s.exch.Cancel(orderID)
	if err != nil {
		return exchange.PendingOrder{}, err
	}
	rec := exchange.OrderRecord{
		OrderID:  po.ID,
		Time:     time.Now().UnixMilli(),
		Side:     po.Side,
		Quantity: po.Remaining,
		Price:    po.LimitPrice,
		Status:   exchange.StatusCancelled,
	}
	if err := s.recorder.RecordOrder(ctx, rec); err != nil {
		logger.Warnf("撤单记录落盘失败: %v", err)
	}
	return po, nil
}

// CloseLot 按当前价整体平掉指定 lot，绕过 FIFO，现金按市价结算。
func (s *Session) CloseLot(ctx context.Context, lotID string) (CloseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal != nil {
		return CloseResult{}, fmt.Errorf("%w: %v", ErrHalted, s.fatal)
	}
	price := s.engine.Price()
	lots := s.ledger.Lots()
	var side exchange.Side
	found := false
	for _, lot := range lots {
		if lot.ID == lotID {
			found = true
			if lot.Quantity > 0 {
				side = exchange.SideSell
			} else {
				side = exchange.SideBuy
			}
			break
		}
	}
	if !found {
		return CloseResult{}, ledger.ErrLotNotFound
	}
	realized, err := s.ledger.CloseLot(lotID, price)
	if err != nil {
		return CloseResult{}, s.maybeHalt(err)
	}
	notional, commission := s.exch.SettleClose(side, price, realized.Quantity)
	pnl := realized.PnL
	rec := exchange.OrderRecord{
		OrderID:    lotID,
		Time:       time.Now().UnixMilli(),
		Side:       side,
		Quantity:   realized.Quantity,
		Price:      price,
		Total:      notional,
		Commission: commission,
		Status:     exchange.StatusFilled,
		PnL:        &pnl,
	}
	if err := s.recorder.RecordOrder(ctx, rec); err != nil {
		logger.Warnf("平仓记录落盘失败: %v", err)
	}
	return CloseResult{
		Realized:   realized,
		Commission: commission,
		Balance:    s.exch.Balance(),
		Holding:    s.ledger.Holding(),
	}, nil
}

// StartScan 触发一次异步分析扫描。同一时刻至多一次在途，
// 且受每分钟频率限制；两者都不满足时同步报错，不排队。
func (s *Session) StartScan(ctx context.Context) error {
	s.mu.Lock()
	if s.fatal != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrHalted, s.fatal)
	}
	if s.scanning {
		s.mu.Unlock()
		return ErrScanInFlight
	}
	if !s.limiter.Allow() {
		s.mu.Unlock()
		return ErrScanThrottled
	}
	candles := s.engine.History().All()
	book := s.lastBook
	s.scanning = true
	s.mu.Unlock()

	go s.runScan(ctx, candles, book)
	return nil
}

// runScan 在扫描开始时冻结输入，人工延迟模拟分析耗时，
// 结果回写后才对查询可见。
func (s *Session) runScan(ctx context.Context, candles []market.Candle, book market.BookSnapshot) {
	defer func() {
		s.mu.Lock()
		s.scanning = false
		s.mu.Unlock()
	}()

	if err := sleepWithContext(ctx, s.cfg.ScanLatency); err != nil {
		logger.Debugf("扫描取消: %v", err)
		return
	}
	result, err := s.analyzer.Scan(candles, book)
	if err != nil {
		logger.Warnf("扫描失败: %v", err)
		return
	}
	s.mu.Lock()
	s.lastScan = &result
	s.mu.Unlock()
	if err := s.recorder.RecordAnalysis(ctx, result); err != nil {
		logger.Warnf("分析结果落盘失败: %v", err)
	}
	logger.Infof("扫描完成: %s 置信度=%d", result.Overall.Recommendation, result.Overall.Confidence)
}

// Analysis 返回最近一次完成的扫描结果。
func (s *Session) Analysis() *analysis.DetailedAnalysis {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastScan == nil {
		return nil
	}
	cp := *s.lastScan
	return &cp
}

// InjectScenario 外部注入剧本（训练编排入口）。
func (s *Session) InjectScenario(sc market.Scenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal != nil {
		return fmt.Errorf("%w: %v", ErrHalted, s.fatal)
	}
	s.engine.InjectScenario(sc)
	return nil
}

// InjectTemplate 按模板注入剧本，持续时间取模板上限。
func (s *Session) InjectTemplate(tpl scenario.Template) error {
	ticks := tpl.MaxTicks
	if ticks <= 0 {
		ticks = tpl.MinTicks
	}
	return s.InjectScenario(market.Scenario{
		Kind:      tpl.ID,
		Remaining: ticks,
		Total:     ticks,
		StepPct:   tpl.StepPct,
	})
}

// Reset 把整个会话恢复到初始状态。seed=0 时取当前时间。
func (s *Session) Reset(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.Reset(seed)
	s.exch.Reset()
	s.ledger.Reset()
	s.lastBook = market.BookSnapshot{}
	s.lastScan = nil
	s.tick = 0
	s.fatal = nil
	logger.Infof("会话重置，seed=%d", seed)
}

// State 返回会话全景快照。
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	price := s.engine.Price()
	st := State{
		Symbol:    s.cfg.Symbol,
		Tick:      s.tick,
		Price:     price,
		Regime:    s.engine.Regime().String(),
		Sentiment: s.engine.Sentiment(),
		Scenario:  s.engine.ActiveScenario(),
		Balance:   s.exch.Balance(),
		Equity:    s.equityLocked(price),
		Holding:   s.ledger.Holding(),
		Lots:      s.ledger.Lots(),
		Pending:   s.exch.PendingOrders(),
		Scanning:  s.scanning,
		Halted:    s.fatal != nil,
	}
	if s.lastScan != nil {
		cp := *s.lastScan
		st.Analysis = &cp
	}
	return st
}

// Candles 返回最近 n 根 K 线（n<=0 时返回全部）。
func (s *Session) Candles(n int) []market.Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		return s.engine.History().All()
	}
	return s.engine.History().Tail(n)
}

// Book 返回最近一次合成的订单簿。
func (s *Session) Book() market.BookSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBook
}

// Trades 返回成交流水。
func (s *Session) Trades() []exchange.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exch.Trades()
}

// OrderStatus 查询任意已提交订单的状态。
func (s *Session) OrderStatus(orderID string) (exchange.OrderStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exch.Status(orderID)
}

func (s *Session) applyFillLocked(ctx context.Context, f exchange.Fill) error {
	_, realized, err := s.ledger.ApplyFill(f)
	if err != nil {
		return s.maybeHalt(err)
	}
	var pnlPtr *float64
	if len(realized) > 0 {
		var sum float64
		for _, r := range realized {
			sum += r.PnL
		}
		pnlPtr = &sum
	}
	rec := exchange.OrderRecord{
		OrderID:    f.OrderID,
		TradeID:    f.TradeID,
		Time:       f.Time,
		Side:       f.Side,
		Quantity:   f.Quantity,
		Price:      f.Price,
		Total:      f.Notional,
		Commission: f.Commission,
		Status:     exchange.StatusFilled,
		PnL:        pnlPtr,
	}
	if err := s.recorder.RecordOrder(ctx, rec); err != nil {
		logger.Warnf("成交记录落盘失败: %v", err)
	}
	return nil
}

// maybeHalt 把一致性破坏升级为会话致命错误。
func (s *Session) maybeHalt(err error) error {
	var ce *ledger.ConsistencyError
	if errors.As(err, &ce) {
		s.fatal = err
		logger.Errorf("仓位不变量被破坏，会话中止: %v", err)
	}
	return err
}

// equityLocked = 现金 + 持仓市值（空头市值为负）。
func (s *Session) equityLocked(price float64) float64 {
	return s.exch.Balance() + s.ledger.MarkToMarket(price).MarketValue
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
