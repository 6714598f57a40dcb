package engine

import (
	"context"
	"errors"
	"time"

	"equitybot/src/market"
	"equitybot/src/session"

	"github.com/xpwu/go-log/log"
)

// BarReader 截至某时刻的1分钟K线，database.BarManager 满足此接口
type BarReader interface {
	GetBars(ctx context.Context, symbol string, asOf time.Time, count int) (market.Window, error)
}

// BarFeed 按会话时钟取K线窗口，实盘和回测共用
type BarFeed struct {
	bars  BarReader
	clock session.Clock
}

// NewBarFeed 创建K线窗口加载器
func NewBarFeed(bars BarReader, clock session.Clock) *BarFeed {
	return &BarFeed{bars: bars, clock: clock}
}

// Window 最近 size 根 scale 分钟K线，scale 大于1时由1分钟K线聚合
//
// 只包含会话时钟此刻已收盘的K线。
func (f *BarFeed) Window(ctx context.Context, symbol string, scale, size int) (market.Window, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("BarFeed")

	raw, err := f.bars.GetBars(ctx, symbol, market.ClosedAsOf(f.clock.Now()), size*scale)
	if err != nil {
		var dataErr *market.DataError
		if errors.As(err, &dataErr) {
			return nil, err
		}
		return nil, market.NewDataError(symbol, err)
	}
	if len(raw) == 0 {
		return nil, market.NewDataError(symbol, market.ErrNoBars)
	}

	w, err := market.Resample(raw, scale)
	if err != nil {
		return nil, market.NewDataError(symbol, err)
	}
	logger.Debug("window loaded", "symbol", symbol, "scale", scale, "bars", len(w))
	return w, nil
}
