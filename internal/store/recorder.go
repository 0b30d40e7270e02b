package store

import (
	"context"

	"tradegym/internal/analysis"
	"tradegym/internal/exchange"
	"tradegym/internal/market"
)

// SessionRecorder 把会话事实分发到记录库与 K 线归档。
// 任一后端为 nil 时对应类别直接丢弃。
type SessionRecorder struct {
	symbol  string
	records *RecordStore
	archive *CandleArchive
}

func NewSessionRecorder(symbol string, records *RecordStore, archive *CandleArchive) *SessionRecorder {
	return &SessionRecorder{symbol: symbol, records: records, archive: archive}
}

func (r *SessionRecorder) RecordOrder(ctx context.Context, rec exchange.OrderRecord) error {
	if r == nil || r.records == nil {
		return nil
	}
	return r.records.InsertOrderRecord(ctx, rec)
}

func (r *SessionRecorder) RecordCandle(ctx context.Context, c market.Candle) error {
	if r == nil || r.archive == nil {
		return nil
	}
	return r.archive.Append(ctx, r.symbol, c)
}

func (r *SessionRecorder) RecordAnalysis(ctx context.Context, a analysis.DetailedAnalysis) error {
	if r == nil || r.records == nil {
		return nil
	}
	return r.records.InsertAnalysis(ctx, a)
}
