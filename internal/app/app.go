package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"tradegym/internal/config"
	"tradegym/internal/logger"
	"tradegym/internal/scenario"
	"tradegym/internal/session"
	"tradegym/internal/store"
	simhttp "tradegym/internal/transport/http"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 与 tick 循环。
type App struct {
	cfg      *config.Config
	session  *session.Session
	registry *scenario.Registry
	server   *simhttp.Server
	records  *store.RecordStore
	archive  *store.CandleArchive
	Summary  *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Session 暴露底层会话（测试与编排复用）。
func (a *App) Session() *session.Session {
	if a == nil {
		return nil
	}
	return a.session
}

// Run 启动 HTTP 服务与 tick 循环，阻塞直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		defer a.closeStores()
		return a.tickLoop(ctx)
	})

	return group.Wait()
}

// tickLoop 以固定节奏推进模拟。会话中止后循环继续运转，
// 等待外部 reset 恢复，不拖垮整个进程。
func (a *App) tickLoop(ctx context.Context) error {
	interval := time.Duration(a.cfg.Market.TickIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	haltLogged := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := a.session.Tick(ctx); err != nil {
				if errors.Is(err, session.ErrHalted) {
					if !haltLogged {
						logger.Errorf("会话中止，等待 reset: %v", err)
						haltLogged = true
					}
					continue
				}
				return err
			}
			haltLogged = false
		}
	}
}

func (a *App) closeStores() {
	if a.records != nil {
		if err := a.records.Close(); err != nil {
			logger.Warnf("关闭记录存储失败: %v", err)
		}
	}
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			logger.Warnf("关闭K线归档失败: %v", err)
		}
	}
}
