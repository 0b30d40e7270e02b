package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tradegym/internal/analysis"
	"tradegym/internal/exchange"
)

// RecordStore 把订单与分析记录落入 SQLite（gorm），供复盘查询。
// 记录是 append-only 的事实，不存在更新路径。
type RecordStore struct {
	db *gorm.DB
}

type orderRecordModel struct {
	ID         int64    `gorm:"column:id;primaryKey"`
	OrderID    string   `gorm:"column:order_id;index"`
	TradeID    string   `gorm:"column:trade_id"`
	Time       int64    `gorm:"column:time;index"`
	Side       string   `gorm:"column:side"`
	Quantity   float64  `gorm:"column:quantity"`
	Price      float64  `gorm:"column:price"`
	Total      float64  `gorm:"column:total"`
	Commission float64  `gorm:"column:commission"`
	Status     string   `gorm:"column:status"`
	PnL        *float64 `gorm:"column:pnl"`
}

func (orderRecordModel) TableName() string { return "order_records" }

type analysisRecordModel struct {
	ID             int64          `gorm:"column:id;primaryKey"`
	Time           int64          `gorm:"column:time;index"`
	Recommendation string         `gorm:"column:recommendation"`
	Confidence     int            `gorm:"column:confidence"`
	Payload        datatypes.JSON `gorm:"column:payload"`
	CreatedAtUnix  int64          `gorm:"column:created_at"`
}

func (analysisRecordModel) TableName() string { return "analysis_records" }

func NewRecordStore(path string) (*RecordStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("record store: 路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&orderRecordModel{}, &analysisRecordModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: 少量并行即可满足 HTTP 读，控制锁竞争
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &RecordStore{db: db}, nil
}

func (s *RecordStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertOrderRecord 追加一条订单审计记录。
func (s *RecordStore) InsertOrderRecord(ctx context.Context, rec exchange.OrderRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("record store 未初始化")
	}
	model := orderRecordModel{
		OrderID:    rec.OrderID,
		TradeID:    rec.TradeID,
		Time:       rec.Time,
		Side:       string(rec.Side),
		Quantity:   rec.Quantity,
		Price:      rec.Price,
		Total:      rec.Total,
		Commission: rec.Commission,
		Status:     string(rec.Status),
		PnL:        rec.PnL,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListOrderRecords 按时间倒序分页返回订单记录。
func (s *RecordStore) ListOrderRecords(ctx context.Context, limit, offset int) ([]exchange.OrderRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("record store 未初始化")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	var models []orderRecordModel
	if err := s.db.WithContext(ctx).
		Order("time DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]exchange.OrderRecord, 0, len(models))
	for _, m := range models {
		out = append(out, exchange.OrderRecord{
			OrderID:    m.OrderID,
			TradeID:    m.TradeID,
			Time:       m.Time,
			Side:       exchange.Side(m.Side),
			Quantity:   m.Quantity,
			Price:      m.Price,
			Total:      m.Total,
			Commission: m.Commission,
			Status:     exchange.OrderStatus(m.Status),
			PnL:        m.PnL,
		})
	}
	return out, nil
}

// InsertAnalysis 追加一条分析快照，完整结论以 JSON 存档。
func (s *RecordStore) InsertAnalysis(ctx context.Context, a analysis.DetailedAnalysis) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("record store 未初始化")
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	model := analysisRecordModel{
		Time:           a.Timestamp,
		Recommendation: string(a.Overall.Recommendation),
		Confidence:     a.Overall.Confidence,
		Payload:        datatypes.JSON(payload),
		CreatedAtUnix:  time.Now().UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListAnalyses 按时间倒序返回最近的分析快照。
func (s *RecordStore) ListAnalyses(ctx context.Context, limit int) ([]analysis.DetailedAnalysis, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("record store 未初始化")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var models []analysisRecordModel
	if err := s.db.WithContext(ctx).
		Order("time DESC, id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]analysis.DetailedAnalysis, 0, len(models))
	for _, m := range models {
		var a analysis.DetailedAnalysis
		if err := json.Unmarshal(m.Payload, &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
