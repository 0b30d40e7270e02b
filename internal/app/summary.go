package app

import (
	"fmt"
	"sort"
	"strings"

	"tradegym/internal/config"
	"tradegym/internal/logger"
	"tradegym/internal/scenario"
)

// StartupSummary 启动时打印一次的配置摘要，方便核对参数。
type StartupSummary struct {
	lines []string
}

func newStartupSummary(cfg *config.Config, registry *scenario.Registry) *StartupSummary {
	var ids []string
	if registry != nil {
		for _, tpl := range registry.Templates() {
			ids = append(ids, tpl.ID)
		}
		sort.Strings(ids)
	}
	lines := []string{
		fmt.Sprintf("标的：%s，起始价 %.2f，tick 间隔 %dms", cfg.Market.Symbol, cfg.Market.StartPrice, cfg.Market.TickIntervalMs),
		fmt.Sprintf("账户：初始余额 %.2f，佣金率 %.4f，最大杠杆 %.0fx", cfg.Exchange.StartingBalance, cfg.Exchange.CommissionRate, cfg.Exchange.MaxLeverage),
		fmt.Sprintf("剧本：%s（概率 %.2f）", strings.Join(ids, ", "), cfg.Market.ScenarioProbability),
		fmt.Sprintf("分析：RSI(%d)，扫描延迟 %dms，限频 %d 次/分", cfg.Analysis.RSIPeriod, cfg.Analysis.ScanLatencyMs, cfg.Analysis.ScanPerMinute),
		fmt.Sprintf("接口：%s", cfg.HTTP.Addr),
	}
	return &StartupSummary{lines: lines}
}

func (s *StartupSummary) Print() {
	if s == nil {
		return
	}
	logger.Infof("[启动摘要]\n%s", strings.Join(s.lines, "\n"))
}
