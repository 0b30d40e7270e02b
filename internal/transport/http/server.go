package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tradegym/internal/exchange"
	"tradegym/internal/ledger"
	"tradegym/internal/market"
	"tradegym/internal/scenario"
	"tradegym/internal/session"
	"tradegym/internal/store"
)

// Server 提供模拟器的 HTTP/WS 接口。
type Server struct {
	addr     string
	sess     *session.Session
	registry *scenario.Registry
	records  *store.RecordStore
	archive  *store.CandleArchive
	symbol   string
	router   *gin.Engine
}

type Config struct {
	Addr     string
	Symbol   string
	Session  *session.Session
	Registry *scenario.Registry
	Records  *store.RecordStore
	Archive  *store.CandleArchive
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Session == nil {
		return nil, errors.New("session 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:     cfg.Addr,
		sess:     cfg.Session,
		registry: cfg.Registry,
		records:  cfg.Records,
		archive:  cfg.Archive,
		symbol:   cfg.Symbol,
		router:   router,
	}
	s.registerRoutes()
	return s, nil
}

// Router 暴露底层路由，测试用。
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	api := s.router.Group("/api/sim")
	api.GET("/state", s.handleState)
	api.GET("/candles", s.handleCandles)
	api.GET("/book", s.handleBook)
	api.GET("/trades", s.handleTrades)
	api.GET("/analysis", s.handleAnalysis)
	api.POST("/tick", s.handleTick)
	api.POST("/orders", s.handleSubmitOrder)
	api.GET("/orders/pending", s.handlePendingOrders)
	api.GET("/orders/:id", s.handleOrderStatus)
	api.DELETE("/orders/:id", s.handleCancelOrder)
	api.POST("/lots/:id/close", s.handleCloseLot)
	api.POST("/scan", s.handleScan)
	api.GET("/scenarios", s.handleScenarios)
	api.POST("/scenarios/inject", s.handleInjectScenario)
	api.POST("/reset", s.handleReset)
	api.GET("/records/orders", s.handleOrderRecords)
	api.GET("/records/analyses", s.handleAnalysisRecords)
	api.GET("/records/candles", s.handleArchivedCandles)
	s.router.GET("/ws", s.handleStream)
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": s.sess.State()})
}

func (s *Server) handleCandles(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "200"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit 非法"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candles": s.sess.Candles(limit)})
}

func (s *Server) handleBook(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"book": s.sess.Book()})
}

func (s *Server) handleTrades(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"trades": s.sess.Trades()})
}

func (s *Server) handleAnalysis(c *gin.Context) {
	a := s.sess.Analysis()
	if a == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "尚无完成的扫描"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analysis": a})
}

// handleTick 手动推进一个 tick（编排/调试入口，常规推进由内部循环驱动）。
func (s *Server) handleTick(c *gin.Context) {
	ev, err := s.sess.Tick(c.Request.Context())
	if err != nil {
		s.writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tick": ev})
}

func (s *Server) handleSubmitOrder(c *gin.Context) {
	var in exchange.OrderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	order, fills, err := s.sess.SubmitOrder(c.Request.Context(), in)
	if err != nil {
		if re, ok := exchange.AsReject(err); ok {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": re.Error(), "reason": re.Reason})
			return
		}
		s.writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": order, "fills": fills})
}

func (s *Server) handlePendingOrders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"orders": s.sess.State().Pending})
}

func (s *Server) handleOrderStatus(c *gin.Context) {
	st, ok := s.sess.OrderStatus(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": c.Param("id"), "status": st})
}

func (s *Server) handleCancelOrder(c *gin.Context) {
	po, err := s.sess.CancelOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, exchange.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, exchange.ErrAlreadyTerminal):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			s.writeSessionError(c, err)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": po})
}

func (s *Server) handleCloseLot(c *gin.Context) {
	result, err := s.sess.CloseLot(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ledger.ErrLotNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		s.writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"close": result})
}

func (s *Server) handleScan(c *gin.Context) {
	if err := s.sess.StartScan(context.WithoutCancel(c.Request.Context())); err != nil {
		switch {
		case errors.Is(err, session.ErrScanInFlight):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, session.ErrScanThrottled):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		default:
			s.writeSessionError(c, err)
		}
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "scanning"})
}

func (s *Server) handleScenarios(c *gin.Context) {
	if s.registry == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "剧本库未启用"})
		return
	}
	snap := s.registry.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"version":   snap.Version,
		"loaded_at": snap.LoadedAt,
		"scenarios": snap.Templates,
	})
}

func (s *Server) handleInjectScenario(c *gin.Context) {
	var req struct {
		ID      string  `json:"id"`
		Ticks   int     `json:"ticks"`
		StepPct float64 `json:"step_pct"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var err error
	switch {
	case req.ID != "" && s.registry != nil:
		tpl, ok := s.registry.Template(req.ID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "未知剧本 " + req.ID})
			return
		}
		err = s.sess.InjectTemplate(tpl)
	case req.Ticks > 0:
		err = s.sess.InjectScenario(market.Scenario{
			Kind:      "custom",
			Remaining: req.Ticks,
			Total:     req.Ticks,
			StepPct:   req.StepPct,
		})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "需要 id 或 ticks/step_pct"})
		return
	}
	if err != nil {
		s.writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "injected"})
}

func (s *Server) handleReset(c *gin.Context) {
	var req struct {
		Seed int64 `json:"seed"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	s.sess.Reset(req.Seed)
	c.JSON(http.StatusOK, gin.H{"state": s.sess.State()})
}

func (s *Server) handleOrderRecords(c *gin.Context) {
	if s.records == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "记录存储未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	recs, err := s.records.ListOrderRecords(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

func (s *Server) handleAnalysisRecords(c *gin.Context) {
	if s.records == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "记录存储未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	recs, err := s.records.ListAnalyses(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": recs})
}

func (s *Server) handleArchivedCandles(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "K线归档未启用"})
		return
	}
	from, _ := strconv.ParseInt(c.DefaultQuery("from", "0"), 10, 64)
	to, _ := strconv.ParseInt(c.DefaultQuery("to", "0"), 10, 64)
	if to <= 0 {
		to = time.Now().UnixMilli()
	}
	data, err := s.archive.Range(c.Request.Context(), s.symbol, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candles": data})
}

func (s *Server) writeSessionError(c *gin.Context, err error) {
	if errors.Is(err, session.ErrHalted) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
