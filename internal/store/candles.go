package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"tradegym/internal/market"
)

// CandleArchive 把生成的 K 线按 symbol 归档到独立 SQLite 文件。
// 走 database/sql 裸写，避免 ORM 在高频小事务上的开销。
type CandleArchive struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func NewCandleArchive(root string) (*CandleArchive, error) {
	if root == "" {
		return nil, fmt.Errorf("candle archive: 数据目录不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &CandleArchive{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (a *CandleArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var firstErr error
	for k, db := range a.dbs {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(a.dbs, k)
	}
	return firstErr
}

func (a *CandleArchive) db(symbol string) (*sql.DB, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol 不能为空")
	}
	key := strings.ToUpper(symbol)
	a.mu.Lock()
	defer a.mu.Unlock()
	if db, ok := a.dbs[key]; ok && db != nil {
		return db, nil
	}
	path := filepath.Join(a.root, key+".db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureCandleSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	a.dbs[key] = db
	return db, nil
}

func ensureCandleSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			open_time  INTEGER PRIMARY KEY,
			close_time INTEGER NOT NULL,
			open       REAL NOT NULL,
			high       REAL NOT NULL,
			low        REAL NOT NULL,
			close      REAL NOT NULL,
			volume     REAL NOT NULL
		)`)
	return err
}

// Append 写入一根 K 线，open_time 重复时覆盖。
func (a *CandleArchive) Append(ctx context.Context, symbol string, c market.Candle) error {
	db, err := a.db(symbol)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO candles (open_time, close_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(open_time) DO UPDATE SET
		    close_time=excluded.close_time,
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    volume=excluded.volume`,
		c.OpenTime, c.CloseTime, c.Open, c.High, c.Low, c.Close, c.Volume)
	return err
}

// Range 返回 [from, to] 区间内按时间升序的 K 线。
func (a *CandleArchive) Range(ctx context.Context, symbol string, from, to int64) ([]market.Candle, error) {
	db, err := a.db(symbol)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT open_time, close_time, open, high, low, close, volume
		FROM candles
		WHERE open_time >= ? AND open_time <= ?
		ORDER BY open_time ASC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Candle
	for rows.Next() {
		var c market.Candle
		if err := rows.Scan(&c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count 返回已归档的 K 线数量。
func (a *CandleArchive) Count(ctx context.Context, symbol string) (int64, error) {
	db, err := a.db(symbol)
	if err != nil {
		return 0, err
	}
	var n int64
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM candles`).Scan(&n)
	return n, err
}
