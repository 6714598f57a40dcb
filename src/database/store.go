package database

import (
	"context"
	"time"

	"equitybot/src/market"
	"equitybot/src/session"
	"equitybot/src/tracking"
)

// BarStore 1分钟K线存储
type BarStore interface {
	// GetBars 截至 asOf（含）的最近 count 根，按时间升序
	GetBars(ctx context.Context, symbol string, asOf time.Time, count int) (market.Window, error)

	// GetBarsInRange [start, end) 内的K线
	GetBarsInRange(ctx context.Context, symbol string, start, end time.Time) (market.Window, error)

	// SaveBar 按 (symbol, open_time) 幂等写入
	SaveBar(ctx context.Context, symbol string, bar *market.Bar) error

	// SaveBars 批量写入
	SaveBars(ctx context.Context, symbol string, bars []*market.Bar) error

	// LatestBarTime 最新K线时间，没有数据时为零值
	LatestBarTime(ctx context.Context, symbol string) (time.Time, error)

	// ListSymbols 有K线的标的
	ListSymbols(ctx context.Context) ([]string, error)
}

// OrderStore 订单、持仓、交易存储，按自然键幂等
type OrderStore interface {
	SaveOrder(ctx context.Context, order *tracking.Order) error
	SavePosition(ctx context.Context, position *tracking.Position) error
	DeletePosition(ctx context.Context, symbol string) error
	SaveTrade(ctx context.Context, trade *tracking.Trade) error
	LoadPositions(ctx context.Context) ([]*tracking.Position, error)
}

// StatStore 标的统计存储
type StatStore interface {
	SaveStats(ctx context.Context, stats []*tracking.Stat) error
	LoadStats(ctx context.Context) ([]*tracking.Stat, error)
}

// Store 全部存储能力
type Store interface {
	BarStore
	OrderStore
	StatStore
	session.Sink
	Close() error
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
