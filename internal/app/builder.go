package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"tradegym/internal/analysis"
	"tradegym/internal/config"
	"tradegym/internal/exchange"
	"tradegym/internal/ledger"
	"tradegym/internal/logger"
	"tradegym/internal/market"
	"tradegym/internal/scenario"
	"tradegym/internal/session"
	"tradegym/internal/store"
	simhttp "tradegym/internal/transport/http"
)

// AppBuilder 按依赖顺序装配应用：剧本库 → 行情 → 撮合/持仓 →
// 分析 → 存储 → 会话 → HTTP。构造函数字段可在测试中替换。
type AppBuilder struct {
	cfg *config.Config

	registryFn func(string) (*scenario.Registry, error)
	recordsFn  func(string) (*store.RecordStore, error)
	archiveFn  func(string) (*store.CandleArchive, error)
	serverFn   func(simhttp.Config) (*simhttp.Server, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		registryFn: scenario.NewRegistry,
		recordsFn:  store.NewRecordStore,
		archiveFn:  store.NewCandleArchive,
		serverFn:   simhttp.NewServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	registry, err := b.registryFn(cfg.Market.ScenarioFile)
	if err != nil {
		return nil, fmt.Errorf("加载剧本库失败: %w", err)
	}
	logger.Infof("✓ 剧本库就绪：%d 个模板", len(registry.Templates()))

	engine := market.NewEngine(market.EngineConfig{
		StartPrice:          cfg.Market.StartPrice,
		HistoryMax:          cfg.Market.HistoryMax,
		RegimeMinTicks:      cfg.Market.RegimeMinTicks,
		RegimeMaxTicks:      cfg.Market.RegimeMaxTicks,
		BaseVolatility:      cfg.Market.BaseVolatility,
		WickVolatility:      cfg.Market.WickVolatility,
		BullDrift:           cfg.Market.BullDrift,
		BearDrift:           cfg.Market.BearDrift,
		ChopDrift:           cfg.Market.ChopDrift,
		BullWeight:          cfg.Market.BullWeight,
		BearWeight:          cfg.Market.BearWeight,
		ChopWeight:          cfg.Market.ChopWeight,
		ScenarioProbability: cfg.Market.ScenarioProbability,
		VolumeMin:           cfg.Market.VolumeMin,
		VolumeMax:           cfg.Market.VolumeMax,
	}, registry, 0)

	book := market.NewBookSynthesizer(market.BookConfig{
		Depth:        cfg.Market.BookDepth,
		SpreadPct:    cfg.Market.SpreadPct,
		LevelStepPct: cfg.Market.LevelStepPct,
		SizeMin:      cfg.Market.LevelSizeMin,
		SizeMax:      cfg.Market.LevelSizeMax,
	}, engine.RNG)

	exch := exchange.NewEngine(exchange.Config{
		StartingBalance: cfg.Exchange.StartingBalance,
		CommissionRate:  cfg.Exchange.CommissionRate,
		MaxLeverage:     cfg.Exchange.MaxLeverage,
	})

	led := ledger.NewLedger(cfg.Market.Symbol)

	analyzer := analysis.NewAnalyzer(analysis.Settings{
		RSIPeriod:      cfg.Analysis.RSIPeriod,
		VelocityWindow: cfg.Analysis.VelocityWindow,
		VolumeWindow:   cfg.Analysis.VolumeWindow,
		TrendWindow:    cfg.Analysis.TrendWindow,
		PatternWindow:  cfg.Analysis.PatternWindow,
	})

	var (
		records  *store.RecordStore
		archive  *store.CandleArchive
		recorder session.Recorder = session.NopRecorder{}
	)
	if cfg.Record.Enabled {
		records, err = b.recordsFn(filepath.Join(cfg.Record.Dir, "records.db"))
		if err != nil {
			return nil, fmt.Errorf("初始化记录存储失败: %w", err)
		}
		archive, err = b.archiveFn(filepath.Join(cfg.Record.Dir, "candles"))
		if err != nil {
			return nil, fmt.Errorf("初始化K线归档失败: %w", err)
		}
		recorder = store.NewSessionRecorder(cfg.Market.Symbol, records, archive)
		logger.Infof("✓ 会话录制开启：%s", cfg.Record.Dir)
	}

	sess := session.New(session.Config{
		Symbol:        cfg.Market.Symbol,
		TickInterval:  time.Duration(cfg.Market.TickIntervalMs) * time.Millisecond,
		ScanLatency:   time.Duration(cfg.Analysis.ScanLatencyMs) * time.Millisecond,
		ScanPerMinute: cfg.Analysis.ScanPerMinute,
	}, engine, book, exch, led, analyzer, recorder)

	server, err := b.serverFn(simhttp.Config{
		Addr:     cfg.HTTP.Addr,
		Symbol:   cfg.Market.Symbol,
		Session:  sess,
		Registry: registry,
		Records:  records,
		Archive:  archive,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}

	return &App{
		cfg:      cfg,
		session:  sess,
		registry: registry,
		server:   server,
		records:  records,
		archive:  archive,
		Summary:  newStartupSummary(cfg, registry),
	}, nil
}
