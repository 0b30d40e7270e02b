package session

import (
	"context"

	"tradegym/internal/analysis"
	"tradegym/internal/exchange"
	"tradegym/internal/market"
)

// Recorder 接收会话产生的审计事实。实现方（落库、导出）自行
// 保证幂等与持久化，会话只负责按发生顺序推送。
type Recorder interface {
	RecordOrder(ctx context.Context, rec exchange.OrderRecord) error
	RecordCandle(ctx context.Context, c market.Candle) error
	RecordAnalysis(ctx context.Context, a analysis.DetailedAnalysis) error
}

// NopRecorder 丢弃一切记录，录制关闭时使用。
type NopRecorder struct{}

func (NopRecorder) RecordOrder(context.Context, exchange.OrderRecord) error          { return nil }
func (NopRecorder) RecordCandle(context.Context, market.Candle) error                { return nil }
func (NopRecorder) RecordAnalysis(context.Context, analysis.DetailedAnalysis) error { return nil }
